package pyjamaz

import (
	"fmt"
	"math"
	"sync"
)

// Wang et al.'s SSIM stabilizing constants, for an 8-bit dynamic range.
const (
	ssimC1 = 6.5025  // (0.01*255)^2
	ssimC2 = 58.5225 // (0.03*255)^2
)

// ssimWindow is the side length of the sliding comparison window.
const ssimWindow = 8

// ssimFastThreshold is the dimension above which Score box-downsamples
// before running the windowed comparison, trading precision for the
// latency budget spec's candidate engine runs under.
const ssimFastThreshold = 512

// Metric scores perceptual difference between an original and a candidate
// buffer. 0.0 means identical; 1.0 means maximally different. Both buffers
// must share dimensions.
type Metric interface {
	Kind() MetricKind
	Score(original, candidate *Buffer) (float64, error)
}

func metricFor(kind MetricKind) Metric {
	switch kind {
	case MetricDSSIM:
		return dssimMetric{}
	case MetricSSIMULACRA2:
		return ssimulacra2Metric{}
	default:
		return noneMetric{}
	}
}

// noneMetric disables perceptual filtering entirely: every candidate
// scores 0.0, so MaxDiff constraints (if any) always pass.
type noneMetric struct{}

func (noneMetric) Kind() MetricKind { return MetricNone }
func (noneMetric) Score(*Buffer, *Buffer) (float64, error) { return 0.0, nil }

// ssimulacra2Metric is reserved: the corpus this module was built from only
// carries a DSSIM implementation, so selecting ssimulacra2 fails closed
// with UnsupportedMetric rather than silently falling back. See DESIGN.md.
type ssimulacra2Metric struct{}

func (ssimulacra2Metric) Kind() MetricKind { return MetricSSIMULACRA2 }

func (ssimulacra2Metric) Score(*Buffer, *Buffer) (float64, error) {
	return 0, &Error{Kind: KindUnsupportedMetric, Op: "ssimulacra2Metric.Score", Err: fmt.Errorf("ssimulacra2 is not implemented")}
}

// dssimMetric derives structural dissimilarity from windowed SSIM:
// (1-ssim)/2, clamped to [0,1], computed on BT.601 luminance.
type dssimMetric struct{}

func (dssimMetric) Kind() MetricKind { return MetricDSSIM }

func (dssimMetric) Score(original, candidate *Buffer) (float64, error) {
	if original.Width != candidate.Width || original.Height != candidate.Height {
		return 0, &Error{Kind: KindDimensionMismatch, Op: "dssimMetric.Score", Err: fmt.Errorf("%dx%d vs %dx%d", original.Width, original.Height, candidate.Width, candidate.Height)}
	}
	if int64(original.Width)*int64(original.Height) > maxDecodedPixels {
		return 0, &Error{Kind: KindInvalidImage, Op: "dssimMetric.Score", Err: fmt.Errorf("pixel count exceeds %d", maxDecodedPixels)}
	}
	ssim := ssimScore(original, candidate)
	d := (1 - ssim) / 2
	if d < 0 {
		d = 0
	}
	if d > 1 {
		d = 1
	}
	return d, nil
}

// ssimScore computes windowed SSIM on luminance, box-downsampling first
// when either dimension exceeds ssimFastThreshold.
func ssimScore(a, b *Buffer) float64 {
	la, lb := toLuminance(a), toLuminance(b)
	w, h := int(a.Width), int(a.Height)

	if w > ssimFastThreshold || h > ssimFastThreshold {
		scale := w
		if h > scale {
			scale = h
		}
		factor := (scale + ssimFastThreshold - 1) / ssimFastThreshold
		if factor < 1 {
			factor = 1
		}
		la, w, h = boxDownsample(la, w, h, factor)
		lb, _, _ = boxDownsample(lb, int(a.Width), int(a.Height), factor)
	}

	if w < ssimWindow || h < ssimWindow {
		return pixelSSIM(la, lb)
	}
	return windowedSSIM(la, lb, w, h)
}

// toLuminance converts a buffer to a row-major float64 luminance plane
// using the BT.601 coefficients.
func toLuminance(b *Buffer) []float64 {
	n := int(b.Width) * int(b.Height)
	out := make([]float64, n)
	ch := int(b.Channels)
	for i := 0; i < n; i++ {
		off := i * ch
		r := float64(b.Pix[off])
		g := float64(b.Pix[off+1])
		bl := float64(b.Pix[off+2])
		out[i] = 0.299*r + 0.587*g + 0.114*bl
	}
	return out
}

// boxDownsample averages factor-by-factor blocks, mirroring the fast-path
// approximation used throughout the codebase this module was built from.
func boxDownsample(plane []float64, w, h, factor int) ([]float64, int, int) {
	if factor <= 1 {
		return plane, w, h
	}
	nw := (w + factor - 1) / factor
	nh := (h + factor - 1) / factor
	out := make([]float64, nw*nh)
	for by := 0; by < nh; by++ {
		for bx := 0; bx < nw; bx++ {
			var sum float64
			var count int
			for dy := 0; dy < factor; dy++ {
				y := by*factor + dy
				if y >= h {
					continue
				}
				for dx := 0; dx < factor; dx++ {
					x := bx*factor + dx
					if x >= w {
						continue
					}
					sum += plane[y*w+x]
					count++
				}
			}
			if count > 0 {
				out[by*nw+bx] = sum / float64(count)
			}
		}
	}
	return out, nw, nh
}

// gaussianKernel returns a normalized 1D kernel of the given size and
// sigma, used as a separable weighting for each comparison window.
func gaussianKernel(size int, sigma float64) []float64 {
	k := make([]float64, size)
	sum := 0.0
	half := float64(size-1) / 2
	for i := 0; i < size; i++ {
		x := float64(i) - half
		k[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// windowedSSIM slides a Gaussian-weighted window across both planes,
// parallelized by row band, and averages the per-window index.
func windowedSSIM(a, b []float64, w, h int) float64 {
	kernel := gaussianKernel(ssimWindow, 1.5)
	stepsX := w - ssimWindow + 1
	stepsY := h - ssimWindow + 1
	if stepsX <= 0 || stepsY <= 0 {
		return pixelSSIM(a, b)
	}

	workers := 8
	if workers > stepsY {
		workers = stepsY
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	sums := make([]float64, workers)
	counts := make([]int, workers)
	band := (stepsY + workers - 1) / workers

	for wi := 0; wi < workers; wi++ {
		wg.Add(1)
		go func(wi int) {
			defer wg.Done()
			y0 := wi * band
			y1 := y0 + band
			if y1 > stepsY {
				y1 = stepsY
			}
			var localSum float64
			var localCount int
			for y := y0; y < y1; y++ {
				for x := 0; x < stepsX; x++ {
					localSum += windowIndex(a, b, w, x, y, kernel)
					localCount++
				}
			}
			sums[wi] = localSum
			counts[wi] = localCount
		}(wi)
	}
	wg.Wait()

	var total float64
	var n int
	for i := range sums {
		total += sums[i]
		n += counts[i]
	}
	if n == 0 {
		return 1.0
	}
	return total / float64(n)
}

// windowIndex computes the weighted SSIM index for one ssimWindow x
// ssimWindow window anchored at (x,y).
func windowIndex(a, b []float64, w, x, y int, kernel []float64) float64 {
	var muA, muB float64
	var weights [ssimWindow][ssimWindow]float64
	var weightSum float64
	for dy := 0; dy < ssimWindow; dy++ {
		wy := kernel[dy]
		for dx := 0; dx < ssimWindow; dx++ {
			wgt := wy * kernel[dx]
			weights[dy][dx] = wgt
			weightSum += wgt
			idx := (y+dy)*w + (x + dx)
			muA += wgt * a[idx]
			muB += wgt * b[idx]
		}
	}
	muA /= weightSum
	muB /= weightSum

	var varA, varB, covAB float64
	for dy := 0; dy < ssimWindow; dy++ {
		for dx := 0; dx < ssimWindow; dx++ {
			idx := (y+dy)*w + (x + dx)
			da := a[idx] - muA
			db := b[idx] - muB
			wgt := weights[dy][dx]
			varA += wgt * da * da
			varB += wgt * db * db
			covAB += wgt * da * db
		}
	}
	varA /= weightSum
	varB /= weightSum
	covAB /= weightSum

	num := (2*muA*muB + ssimC1) * (2*covAB + ssimC2)
	den := (muA*muA + muB*muB + ssimC1) * (varA + varB + ssimC2)
	if den == 0 {
		return 1.0
	}
	return num / den
}

// pixelSSIM is the whole-plane fallback for images smaller than one
// comparison window.
func pixelSSIM(a, b []float64) float64 {
	n := len(a)
	if n == 0 {
		return 1.0
	}
	var muA, muB float64
	for i := range a {
		muA += a[i]
		muB += b[i]
	}
	muA /= float64(n)
	muB /= float64(n)

	var varA, varB, covAB float64
	for i := range a {
		da := a[i] - muA
		db := b[i] - muB
		varA += da * da
		varB += db * db
		covAB += da * db
	}
	varA /= float64(n)
	varB /= float64(n)
	covAB /= float64(n)

	num := (2*muA*muB + ssimC1) * (2*covAB + ssimC2)
	den := (muA*muA + muB*muB + ssimC1) * (varA + varB + ssimC2)
	if den == 0 {
		return 1.0
	}
	return num / den
}
