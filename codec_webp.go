package pyjamaz

import (
	"bytes"
	"fmt"
	"image"

	"github.com/gen2brain/webp"
)

// webpCodec wraps gen2brain/webp, a cgo-free binding that runs libwebp
// compiled to WASM under wazero. Quality 100 selects lossless encoding per
// Format.IsLosslessAt; every other value is lossy.
type webpCodec struct{}

func (webpCodec) Format() Format { return WebP }

func (webpCodec) Encode(buf *Buffer, quality int) ([]byte, error) {
	if err := checkQuality(WebP, quality); err != nil {
		return nil, err
	}
	if err := checkDimensions(WebP, int(buf.Width), int(buf.Height)); err != nil {
		return nil, err
	}
	opts := webp.Options{
		Lossless: WebP.IsLosslessAt(quality),
		Quality:  float32(quality),
	}
	img := buf.toImage()
	data, err := withCallbackRecovery(KindEncodeFailed, "webpCodec.Encode", func() ([]byte, error) {
		var out bytes.Buffer
		if err := webp.Encode(&out, img, opts); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	})
	if err != nil {
		return nil, asPyjamazError(err, KindEncodeFailed, "webpCodec.Encode")
	}
	if err := verifyEncodedOutput(WebP, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (webpCodec) Decode(data []byte) (*Buffer, error) {
	if err := checkDecodeInput(WebP, data); err != nil {
		return nil, err
	}
	img, err := withDecodeRecovery(KindDecodeFailed, "webpCodec.Decode", func() (image.Image, error) {
		return webp.Decode(bytes.NewReader(data))
	})
	if err != nil {
		return nil, asPyjamazError(err, KindDecodeFailed, "webpCodec.Decode")
	}
	b := img.Bounds()
	if err := checkDimensions(WebP, b.Dx(), b.Dy()); err != nil {
		return nil, err
	}
	if int64(b.Dx())*int64(b.Dy()) > maxDecodedPixels {
		return nil, &Error{Kind: KindInvalidImage, Op: "webpCodec.Decode", Err: fmt.Errorf("pixel count exceeds %d", maxDecodedPixels)}
	}
	return bufferFromImage(img, true), nil
}
