package pyjamaz

import (
	"fmt"
	"image"
)

// maxDecodedPixels bounds decode-time allocation against decompression
// bombs; it mirrors the metric layer's 500,000,000-pixel ceiling.
const maxDecodedPixels = 500_000_000

// Buffer is an owned, row-major raw pixel plane: 8-bit, 3 (RGB) or 4
// (RGBA) channels. It is created by a decoder, never mutated in place by
// anything downstream, and shared by immutable reference across candidate
// workers.
type Buffer struct {
	Width    uint32
	Height   uint32
	Channels uint8
	Stride   uint32
	Pix      []byte
}

// NewBuffer allocates a zeroed buffer and validates the stride/length
// invariant: len(Pix) == Stride*Height, Stride == Width*Channels.
func NewBuffer(width, height uint32, channels uint8) (*Buffer, error) {
	if width == 0 || height == 0 {
		return nil, &Error{Kind: KindInvalidImage, Op: "NewBuffer", Err: fmt.Errorf("zero dimension %dx%d", width, height)}
	}
	if channels != 3 && channels != 4 {
		return nil, &Error{Kind: KindInvalidImage, Op: "NewBuffer", Err: fmt.Errorf("invalid channel count %d", channels)}
	}
	stride := width * uint32(channels)
	b := &Buffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Stride:   stride,
		Pix:      make([]byte, uint64(stride)*uint64(height)),
	}
	return b, nil
}

// validate checks the buffer's own length invariant. It is called after
// any construction path that doesn't go through NewBuffer (e.g. conversion
// from image.Image).
func (b *Buffer) validate() error {
	if b.Stride != b.Width*uint32(b.Channels) {
		return &Error{Kind: KindInvalidImage, Op: "Buffer.validate", Err: fmt.Errorf("stride %d != width %d * channels %d", b.Stride, b.Width, b.Channels)}
	}
	if uint64(len(b.Pix)) != uint64(b.Stride)*uint64(b.Height) {
		return &Error{Kind: KindInvalidImage, Op: "Buffer.validate", Err: fmt.Errorf("pix length %d != stride %d * height %d", len(b.Pix), b.Stride, b.Height)}
	}
	return nil
}

// Clone returns a deep copy. Required whenever a buffer or candidate
// crosses from a worker's private arena into a shared allocator.
func (b *Buffer) Clone() *Buffer {
	dst := &Buffer{
		Width:    b.Width,
		Height:   b.Height,
		Channels: b.Channels,
		Stride:   b.Stride,
		Pix:      make([]byte, len(b.Pix)),
	}
	copy(dst.Pix, b.Pix)
	return dst
}

// RowAt returns a view of row y's raw bytes. The caller must not retain it
// past the buffer's lifetime or mutate it.
func (b *Buffer) RowAt(y uint32) []byte {
	off := uint64(y) * uint64(b.Stride)
	return b.Pix[off : off+uint64(b.Stride)]
}

// isOpaque reports whether every pixel has full alpha (or the buffer has
// no alpha channel at all).
func (b *Buffer) isOpaque() bool {
	if b.Channels != 4 {
		return true
	}
	for i := 3; i < len(b.Pix); i += 4 {
		if b.Pix[i] != 0xff {
			return false
		}
	}
	return true
}

// toImage converts the buffer to a standard library image.Image so it can
// be handed to a codec library's encoder. Channels == 4 yields *image.NRGBA;
// channels == 3 is padded into *image.NRGBA with full alpha, since none of
// the codec libraries this module depends on accept a bare RGB layout.
func (b *Buffer) toImage() image.Image {
	rect := image.Rect(0, 0, int(b.Width), int(b.Height))
	if b.Channels == 4 {
		return &image.NRGBA{Pix: b.Pix, Stride: int(b.Stride), Rect: rect}
	}

	dst := image.NewNRGBA(rect)
	for y := uint32(0); y < b.Height; y++ {
		srcOff := y * b.Stride
		dstOff := y * uint32(dst.Stride)
		for x := uint32(0); x < b.Width; x++ {
			so := srcOff + x*3
			do := dstOff + x*4
			dst.Pix[do] = b.Pix[so]
			dst.Pix[do+1] = b.Pix[so+1]
			dst.Pix[do+2] = b.Pix[so+2]
			dst.Pix[do+3] = 0xff
		}
	}
	return dst
}

// bufferFromImage converts a decoded image.Image into an owned Buffer,
// un-premultiplying alpha where necessary. keepAlpha selects 4-channel
// output; otherwise the result is flattened to RGB (alpha dropped).
func bufferFromImage(img image.Image, keepAlpha bool) *Buffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	channels := uint8(3)
	if keepAlpha {
		channels = 4
	}
	stride := uint32(w) * uint32(channels)
	pix := make([]byte, uint64(stride)*uint64(h))

	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == image.Pt(0, 0) {
		for y := 0; y < h; y++ {
			srcOff := y * nrgba.Stride
			dstOff := y * int(stride)
			for x := 0; x < w; x++ {
				so := srcOff + x*4
				do := dstOff + x*int(channels)
				pix[do] = nrgba.Pix[so]
				pix[do+1] = nrgba.Pix[so+1]
				pix[do+2] = nrgba.Pix[so+2]
				if keepAlpha {
					pix[do+3] = nrgba.Pix[so+3]
				}
			}
		}
		return &Buffer{Width: uint32(w), Height: uint32(h), Channels: channels, Stride: stride, Pix: pix}
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		dstOff := (y - bounds.Min.Y) * int(stride)
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			do := dstOff + (x-bounds.Min.X)*int(channels)
			if a == 0 {
				pix[do], pix[do+1], pix[do+2] = 0, 0, 0
			} else if a == 0xffff {
				pix[do] = uint8(r >> 8)
				pix[do+1] = uint8(g >> 8)
				pix[do+2] = uint8(b >> 8)
			} else {
				pix[do] = uint8(((r * 0xffff) / a) >> 8)
				pix[do+1] = uint8(((g * 0xffff) / a) >> 8)
				pix[do+2] = uint8(((b * 0xffff) / a) >> 8)
			}
			if keepAlpha {
				pix[do+3] = uint8(a >> 8)
			}
		}
	}
	return &Buffer{Width: uint32(w), Height: uint32(h), Channels: channels, Stride: stride, Pix: pix}
}

func clampByte(x float64) uint8 {
	if x < 0 {
		return 0
	}
	if x > 255 {
		return 255
	}
	return uint8(x + 0.5)
}
