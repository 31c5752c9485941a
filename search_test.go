package pyjamaz

import "testing"

func TestSearchQualityConvergesWithinRoundBudget(t *testing.T) {
	buf := makeDetailedBuffer(64, 64)
	codec := jpegCodec{}

	full, err := codec.Encode(buf, 100)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	target := uint64(len(full) / 2)

	cand, err := searchQuality(codec, buf, target)
	if err != nil {
		t.Fatalf("searchQuality: %v", err)
	}
	if cand.FileSize > target && cand.PassedConstraints {
		t.Errorf("candidate marked passed but %d bytes exceeds target %d", cand.FileSize, target)
	}
}

func TestSearchQualityHonorsGenerousBudget(t *testing.T) {
	buf := makeDetailedBuffer(16, 16)
	codec := jpegCodec{}

	cand, err := searchQuality(codec, buf, 1<<30)
	if err != nil {
		t.Fatalf("searchQuality: %v", err)
	}
	if !cand.PassedConstraints {
		t.Error("a generous budget should always be satisfiable")
	}
	if cand.Quality != 100 {
		t.Errorf("quality = %d, want 100 for an unconstrained budget", cand.Quality)
	}
}

func TestSearchQualityUnsatisfiableBudgetReturnsClosest(t *testing.T) {
	buf := makeDetailedBuffer(32, 32)
	codec := jpegCodec{}

	cand, err := searchQuality(codec, buf, 1)
	if err != nil {
		t.Fatalf("searchQuality: %v", err)
	}
	if cand.PassedConstraints {
		t.Error("a 1-byte budget should never be satisfiable")
	}
	if cand.Quality != 1 {
		t.Errorf("expected the lowest quality as closest candidate, got %d", cand.Quality)
	}
}

func TestSearchQualityPNGCompressionRange(t *testing.T) {
	// PNG's "quality" is its 0-9 compression level rather than a fidelity
	// scale; search over that range must still yield a candidate.
	buf := makeDetailedBuffer(8, 8)
	codec := pngCodec{}
	cand, err := searchQuality(codec, buf, 1<<20)
	if err != nil {
		t.Fatalf("searchQuality: %v", err)
	}
	if cand == nil {
		t.Fatal("expected a candidate")
	}
}

func makeDetailedBuffer(w, h uint32) *Buffer {
	buf, _ := NewBuffer(w, h, 4)
	for y := uint32(0); y < h; y++ {
		for x := uint32(0); x < w; x++ {
			off := (y*w + x) * 4
			buf.Pix[off] = byte((x * 17) ^ (y * 31))
			buf.Pix[off+1] = byte((x * 7) + (y * 13))
			buf.Pix[off+2] = byte((x ^ y) * 3)
			buf.Pix[off+3] = 0xff
		}
	}
	return buf
}
