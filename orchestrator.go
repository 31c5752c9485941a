package pyjamaz

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Optimize runs the full pipeline: resolve input, probe the cache, decode,
// generate candidates, score them, inject the original as a baseline
// candidate, and select the best survivor.
func Optimize(ctx context.Context, job Job) (*Result, error) {
	start := time.Now()
	result := &Result{AllCandidates: nil}

	input, err := resolveInput(&job)
	if err != nil {
		return nil, err
	}
	if len(input) > maxInputBytes {
		return nil, &Error{Kind: KindFileTooLarge, Op: "Optimize", Err: fmt.Errorf("input is %d bytes, exceeds %d", len(input), maxInputBytes)}
	}
	if job.Metric != MetricNone && job.Metric != MetricDSSIM {
		return nil, &Error{Kind: KindUnsupportedMetric, Op: "Optimize", Err: fmt.Errorf("metric %s is not supported", job.Metric)}
	}

	srcFormat := DetectFormat(input)
	if srcFormat == Unknown {
		return nil, &Error{Kind: KindInvalidImage, Op: "Optimize", Err: fmt.Errorf("unrecognized image format")}
	}

	probeFormats := job.Formats
	if len(probeFormats) == 0 {
		probeFormats = DefaultFormats()
	}
	if job.Cache != nil {
		for _, f := range probeFormats {
			key := ComputeKey(input, job.MaxBytes, job.MaxDiff, job.Metric, f)
			cand, ok := job.Cache.Get(key, f)
			if !ok {
				continue
			}
			result.Selected = cand
			result.AllCandidates = []*Candidate{cand}
			result.Success = cand.PassedConstraints
			result.Timings.TotalNS = time.Since(start).Nanoseconds()
			return result, nil
		}
	}

	decodeStart := time.Now()
	srcCodec, err := codecFor(srcFormat)
	if err != nil {
		return nil, err
	}
	original, err := srcCodec.Decode(input)
	if err != nil {
		return nil, err
	}
	result.Timings.DecodeNS = time.Since(decodeStart).Nanoseconds()

	encodeStart := time.Now()
	candidates := generateCandidates(ctx, &job, original, result)
	scoreCandidates(&job, original, candidates, result)
	result.Timings.EncodeNS = time.Since(encodeStart).Nanoseconds()

	candidates = append(candidates, baselineCandidate(&job, input, srcFormat))
	result.AllCandidates = candidates

	selected, reason := selectBest(&job, candidates)
	result.Selected = selected
	result.Reason = reason
	result.Success = selected != nil

	if result.Success && job.Cache != nil {
		key := ComputeKey(input, job.MaxBytes, job.MaxDiff, job.Metric, selected.Format)
		job.Cache.Put(key, selected)
	}

	result.Timings.TotalNS = time.Since(start).Nanoseconds()
	return result, nil
}

// OptimizeBuffer is the functional-options entry point for callers that
// already hold the image bytes in memory and don't want to build a Job by
// hand.
func OptimizeBuffer(ctx context.Context, data []byte, opts ...JobOption) (*Result, error) {
	job := DefaultJob(data)
	for _, opt := range opts {
		opt(&job)
	}
	return Optimize(ctx, job)
}

// resolveInput returns job.Input, reading job.InputPath when Input is
// empty. Exactly one of the two is expected to be set by the caller.
func resolveInput(job *Job) ([]byte, error) {
	if len(job.Input) > 0 {
		return job.Input, nil
	}
	if job.InputPath == "" {
		return nil, &Error{Kind: KindInvalidImage, Op: "resolveInput", Err: fmt.Errorf("no input bytes or path given")}
	}
	data, err := os.ReadFile(job.InputPath)
	if err != nil {
		return nil, &Error{Kind: KindInvalidImage, Op: "resolveInput", Err: err}
	}
	return data, nil
}
