package pyjamaz

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
)

// jpegCodec wraps the standard library's image/jpeg. No third-party JPEG
// encoder in the retrieval pack offers anything image/jpeg doesn't already
// cover for this job (a single quality knob, baseline encoding); see
// DESIGN.md for why this one codec stays on stdlib.
type jpegCodec struct{}

func (jpegCodec) Format() Format { return JPEG }

func (jpegCodec) Encode(buf *Buffer, quality int) ([]byte, error) {
	if err := checkQuality(JPEG, quality); err != nil {
		return nil, err
	}
	if err := checkDimensions(JPEG, int(buf.Width), int(buf.Height)); err != nil {
		return nil, err
	}
	img := buf.toImage()
	if !buf.isOpaque() {
		// JPEG has no alpha channel; flatten onto opaque RGB. The dropped
		// alpha is not reported: neither this codec nor its callers emit a
		// warning for it.
		img = flattenToRGB(buf)
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, &Error{Kind: KindEncodeFailed, Op: "jpegCodec.Encode", Err: err}
	}
	data := out.Bytes()
	if err := verifyEncodedOutput(JPEG, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (jpegCodec) Decode(data []byte) (*Buffer, error) {
	if err := checkDecodeInput(JPEG, data); err != nil {
		return nil, err
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Kind: KindDecodeFailed, Op: "jpegCodec.Decode", Err: err}
	}
	b := img.Bounds()
	if err := checkDimensions(JPEG, b.Dx(), b.Dy()); err != nil {
		return nil, err
	}
	if int64(b.Dx())*int64(b.Dy()) > maxDecodedPixels {
		return nil, &Error{Kind: KindInvalidImage, Op: "jpegCodec.Decode", Err: fmt.Errorf("pixel count exceeds %d", maxDecodedPixels)}
	}
	return bufferFromImage(img, false), nil
}

// flattenToRGB drops alpha by compositing onto opaque white.
func flattenToRGB(buf *Buffer) image.Image {
	rect := image.Rect(0, 0, int(buf.Width), int(buf.Height))
	rgba := image.NewRGBA(rect)
	draw.Draw(rgba, rect, image.White, image.Point{}, draw.Src)
	draw.Draw(rgba, rect, buf.toImage(), rect.Min, draw.Over)
	return rgba
}
