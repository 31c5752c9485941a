package pyjamaz

import "testing"

func makeSolidBuffer(w, h uint32, r, g, b byte) *Buffer {
	buf, _ := NewBuffer(w, h, 3)
	for y := uint32(0); y < h; y++ {
		row := buf.RowAt(y)
		for x := uint32(0); x < w; x++ {
			row[x*3] = r
			row[x*3+1] = g
			row[x*3+2] = b
		}
	}
	return buf
}

func TestNoneMetricAlwaysZero(t *testing.T) {
	a := makeSolidBuffer(16, 16, 0, 0, 0)
	b := makeSolidBuffer(16, 16, 255, 255, 255)
	score, err := noneMetric{}.Score(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0.0 {
		t.Errorf("noneMetric.Score() = %f, want 0", score)
	}
}

func TestSsimulacra2MetricUnsupported(t *testing.T) {
	a := makeSolidBuffer(4, 4, 0, 0, 0)
	_, err := ssimulacra2Metric{}.Score(a, a)
	var pe *Error
	if err == nil {
		t.Fatal("expected UnsupportedMetric error")
	}
	if pe, _ = err.(*Error); pe == nil || pe.Kind != KindUnsupportedMetric {
		t.Errorf("expected KindUnsupportedMetric, got %v", err)
	}
}

func TestDssimIdenticalImagesScoreZero(t *testing.T) {
	a := makeSolidBuffer(32, 32, 128, 64, 200)
	b := a.Clone()
	score, err := dssimMetric{}.Score(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score > 1e-9 {
		t.Errorf("identical images should score ~0, got %f", score)
	}
}

func TestDssimDifferentImagesScorePositive(t *testing.T) {
	a := makeSolidBuffer(32, 32, 0, 0, 0)
	b := makeSolidBuffer(32, 32, 255, 255, 255)
	score, err := dssimMetric{}.Score(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score <= 0 {
		t.Errorf("maximally different images should score > 0, got %f", score)
	}
}

func TestDssimDimensionMismatch(t *testing.T) {
	a := makeSolidBuffer(16, 16, 0, 0, 0)
	b := makeSolidBuffer(8, 8, 0, 0, 0)
	_, err := dssimMetric{}.Score(a, b)
	pe, ok := err.(*Error)
	if !ok || pe.Kind != KindDimensionMismatch {
		t.Errorf("expected KindDimensionMismatch, got %v", err)
	}
}

func TestBoxDownsampleAveragesBlocks(t *testing.T) {
	plane := []float64{0, 0, 10, 10, 0, 0, 10, 10}
	out, w, h := boxDownsample(plane, 4, 2, 2)
	if w != 2 || h != 1 {
		t.Fatalf("unexpected downsampled shape %dx%d", w, h)
	}
	if out[0] != 0 || out[1] != 10 {
		t.Errorf("unexpected downsample result %v", out)
	}
}

func TestPixelSSIMIdentical(t *testing.T) {
	plane := []float64{10, 20, 30, 40}
	if got := pixelSSIM(plane, plane); got < 0.999 {
		t.Errorf("pixelSSIM of identical planes = %f, want ~1", got)
	}
}

func TestMetricForDispatch(t *testing.T) {
	if _, ok := metricFor(MetricDSSIM).(dssimMetric); !ok {
		t.Error("metricFor(MetricDSSIM) should return dssimMetric")
	}
	if _, ok := metricFor(MetricNone).(noneMetric); !ok {
		t.Error("metricFor(MetricNone) should return noneMetric")
	}
	if _, ok := metricFor(MetricSSIMULACRA2).(ssimulacra2Metric); !ok {
		t.Error("metricFor(MetricSSIMULACRA2) should return ssimulacra2Metric")
	}
}
