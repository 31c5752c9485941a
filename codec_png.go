package pyjamaz

import (
	"bytes"
	"fmt"
	"image/png"
)

// pngCodec wraps the standard library's image/png. PNG quality in this
// library's vocabulary maps to png.CompressionLevel; it's always lossless
// regardless of the number, as Format.IsLosslessAt reports.
type pngCodec struct{}

func (pngCodec) Format() Format { return PNG }

func (pngCodec) Encode(buf *Buffer, quality int) ([]byte, error) {
	if err := checkQuality(PNG, quality); err != nil {
		return nil, err
	}
	if err := checkDimensions(PNG, int(buf.Width), int(buf.Height)); err != nil {
		return nil, err
	}
	enc := &png.Encoder{CompressionLevel: compressionLevelFor(quality)}
	var out bytes.Buffer
	if err := enc.Encode(&out, buf.toImage()); err != nil {
		return nil, &Error{Kind: KindEncodeFailed, Op: "pngCodec.Encode", Err: err}
	}
	data := out.Bytes()
	if err := verifyEncodedOutput(PNG, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (pngCodec) Decode(data []byte) (*Buffer, error) {
	if err := checkDecodeInput(PNG, data); err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Kind: KindDecodeFailed, Op: "pngCodec.Decode", Err: err}
	}
	b := img.Bounds()
	if err := checkDimensions(PNG, b.Dx(), b.Dy()); err != nil {
		return nil, err
	}
	if int64(b.Dx())*int64(b.Dy()) > maxDecodedPixels {
		return nil, &Error{Kind: KindInvalidImage, Op: "pngCodec.Decode", Err: fmt.Errorf("pixel count exceeds %d", maxDecodedPixels)}
	}
	return bufferFromImage(img, true), nil
}

// compressionLevelFor maps the 0-9 quality range spec's table gives PNG
// onto png.Encoder's four discrete levels: 0 is stored, 1-3 speed, 4-6
// default, 7-9 best compression.
func compressionLevelFor(quality int) png.CompressionLevel {
	switch {
	case quality <= 0:
		return png.NoCompression
	case quality <= 3:
		return png.BestSpeed
	case quality <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}
