package pyjamaz

import (
	"bytes"
	"context"
	"image"
	"image/draw"
	"image/jpeg"
	"testing"
)

func makeTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.Black, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatalf("failed to build test fixture: %v", err)
	}
	return buf.Bytes()
}

func TestOptimizeBufferRejectsUnknownFormat(t *testing.T) {
	_, err := OptimizeBuffer(context.Background(), []byte("not an image at all, long enough to pass length"))
	if err == nil {
		t.Fatal("expected an error for unrecognized input")
	}
	pe, ok := err.(*Error)
	if !ok || pe.Kind != KindInvalidImage {
		t.Errorf("expected KindInvalidImage, got %v", err)
	}
}

func TestOptimizeBufferRejectsOversizedInput(t *testing.T) {
	oversized := make([]byte, maxInputBytes+1)
	copy(oversized, []byte{0xFF, 0xD8, 0xFF})
	_, err := OptimizeBuffer(context.Background(), oversized)
	if err == nil {
		t.Fatal("expected an error for oversized input")
	}
	pe, ok := err.(*Error)
	if !ok || pe.Kind != KindFileTooLarge {
		t.Errorf("expected KindFileTooLarge, got %v", err)
	}
}

func TestOptimizeBufferProducesSelection(t *testing.T) {
	data := makeTestJPEG(t, 32, 32)
	result, err := OptimizeBuffer(context.Background(), data, WithFormats(JPEG, PNG), WithParallel(false))
	if err != nil {
		t.Fatalf("OptimizeBuffer: %v", err)
	}
	if !result.Success || result.Selected == nil {
		t.Fatal("expected a successful selection")
	}
	if result.Timings.TotalNS <= 0 {
		t.Error("expected positive total timing")
	}
	if result.Timings.DecodeNS <= 0 {
		t.Error("expected positive decode timing")
	}
}

func TestOptimizeBufferWithMaxBytesRespectsBudget(t *testing.T) {
	data := makeTestJPEG(t, 64, 64)
	budget := uint64(len(data) / 4)
	result, err := OptimizeBuffer(context.Background(), data,
		WithFormats(JPEG), WithMaxBytes(budget), WithParallel(false))
	if err != nil {
		t.Fatalf("OptimizeBuffer: %v", err)
	}
	if result.Success && result.Selected.FileSize > budget {
		// the baseline candidate can still win if nothing else fits and the
		// baseline itself happens to be under budget; only flag a real miss.
		t.Errorf("selected %d bytes exceeds budget %d", result.Selected.FileSize, budget)
	}
}

func TestOptimizeBufferUsesCacheOnSecondCall(t *testing.T) {
	data := makeTestJPEG(t, 16, 16)
	cache, err := OpenCache(CacheConfig{Dir: t.TempDir(), MaxSizeBytes: 1 << 20, Enabled: true})
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}

	first, err := OptimizeBuffer(context.Background(), data, WithFormats(JPEG, PNG), WithCache(cache), WithParallel(false))
	if err != nil {
		t.Fatalf("first OptimizeBuffer: %v", err)
	}
	if !first.Success {
		t.Fatal("expected first call to succeed")
	}

	second, err := OptimizeBuffer(context.Background(), data, WithFormats(JPEG, PNG), WithCache(cache), WithParallel(false))
	if err != nil {
		t.Fatalf("second OptimizeBuffer: %v", err)
	}
	if !second.Success || len(second.AllCandidates) != 1 {
		t.Errorf("expected a single cached candidate on the second call, got %d", len(second.AllCandidates))
	}
}

func TestResolveInputPrefersBytesOverPath(t *testing.T) {
	job := &Job{Input: []byte{1, 2, 3}, InputPath: "/does/not/exist"}
	data, err := resolveInput(job)
	if err != nil {
		t.Fatalf("resolveInput: %v", err)
	}
	if len(data) != 3 {
		t.Errorf("expected the in-memory bytes to win, got %v", data)
	}
}

func TestResolveInputFailsWithNeitherSet(t *testing.T) {
	job := &Job{}
	if _, err := resolveInput(job); err == nil {
		t.Error("expected an error when neither Input nor InputPath is set")
	}
}
