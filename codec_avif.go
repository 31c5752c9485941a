package pyjamaz

import (
	"bytes"
	"fmt"
	"image"

	"github.com/gen2brain/avif"
)

// avifCodec wraps gen2brain/avif, another wazero-hosted binding (libavif
// compiled to WASM) — chosen over a cgo binding against libavif/dav1d so
// the whole codec layer stays cgo-free; see DESIGN.md. Quality 100 selects
// avif's near-lossless mode per Format.IsLosslessAt.
type avifCodec struct{}

// avifSpeed is the encoder speed/effort knob (0 slowest/smallest, 10
// fastest). It's deliberately not exposed on Job: spec.md's quality-to-size
// search only ever varies quality, and a second free dimension would break
// the binary search's monotonicity assumption. See DESIGN.md.
const avifSpeed = 6

func (avifCodec) Format() Format { return AVIF }

func (avifCodec) Encode(buf *Buffer, quality int) ([]byte, error) {
	if err := checkQuality(AVIF, quality); err != nil {
		return nil, err
	}
	if err := checkDimensions(AVIF, int(buf.Width), int(buf.Height)); err != nil {
		return nil, err
	}
	opts := avif.Options{
		Quality:      quality,
		QualityAlpha: quality,
		Speed:        avifSpeed,
	}
	img := buf.toImage()
	data, err := withCallbackRecovery(KindEncodeFailed, "avifCodec.Encode", func() ([]byte, error) {
		var out bytes.Buffer
		if err := avif.Encode(&out, img, opts); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	})
	if err != nil {
		return nil, asPyjamazError(err, KindEncodeFailed, "avifCodec.Encode")
	}
	if err := verifyEncodedOutput(AVIF, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (avifCodec) Decode(data []byte) (*Buffer, error) {
	if err := checkDecodeInput(AVIF, data); err != nil {
		return nil, err
	}
	img, err := withDecodeRecovery(KindDecodeFailed, "avifCodec.Decode", func() (image.Image, error) {
		return avif.Decode(bytes.NewReader(data))
	})
	if err != nil {
		return nil, asPyjamazError(err, KindDecodeFailed, "avifCodec.Decode")
	}
	b := img.Bounds()
	if err := checkDimensions(AVIF, b.Dx(), b.Dy()); err != nil {
		return nil, err
	}
	if int64(b.Dx())*int64(b.Dy()) > maxDecodedPixels {
		return nil, &Error{Kind: KindInvalidImage, Op: "avifCodec.Decode", Err: fmt.Errorf("pixel count exceeds %d", maxDecodedPixels)}
	}
	return bufferFromImage(img, true), nil
}
