package pyjamaz

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// generateCandidates runs one encode (quality-to-size search when
// MaxBytes is set, else the format's default quality) per requested
// format. A single format's failure is recorded as a warning and does not
// abort the others — the caller decides whether the survivors are enough.
func generateCandidates(ctx context.Context, job *Job, buf *Buffer, result *Result) []*Candidate {
	formats := job.Formats
	if len(formats) == 0 {
		formats = DefaultFormats()
	}
	if len(formats) > MaxFormats {
		formats = formats[:MaxFormats]
	}

	if job.Parallel && len(formats) > 1 && job.Concurrency > 1 {
		return generateCandidatesParallel(ctx, job, buf, result, formats)
	}
	return generateCandidatesSequential(job, buf, result, formats)
}

func generateCandidatesSequential(job *Job, buf *Buffer, result *Result, formats []Format) []*Candidate {
	out := make([]*Candidate, 0, len(formats))
	for _, f := range formats {
		cand, err := candidateFor(job, buf, f)
		if err != nil {
			result.addWarning(job.logEntry(), "format %s: %v", f, err)
			continue
		}
		out = append(out, cand)
	}
	return out
}

func generateCandidatesParallel(ctx context.Context, job *Job, buf *Buffer, result *Result, formats []Format) []*Candidate {
	limit := job.Concurrency
	if limit <= 0 {
		limit = 4
	}
	if limit > len(formats) {
		limit = len(formats)
	}
	if limit > MaxFormats {
		limit = MaxFormats
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	slots := make([]*Candidate, len(formats))
	warnings := make([]string, len(formats))

	for i, f := range formats {
		i, f := i, f
		g.Go(func() error {
			// Each worker clones its own buffer so encoders that mutate
			// scratch state internally never race across goroutines.
			cand, err := candidateFor(job, buf.Clone(), f)
			if err != nil {
				warnings[i] = f.String() + ": " + err.Error()
				return nil
			}
			slots[i] = cand
			return nil
		})
	}
	// Errors are recorded per-worker above and every worker returns nil,
	// so g.Wait never reports an error.
	_ = g.Wait()

	out := make([]*Candidate, 0, len(formats))
	for i, cand := range slots {
		if cand != nil {
			out = append(out, cand)
			continue
		}
		if warnings[i] != "" {
			result.addWarning(job.logEntry(), "%s", warnings[i])
		}
	}
	return out
}

// candidateFor runs the single-format encode path: a bounded quality
// search when a size budget is set, otherwise one encode at the format's
// default quality.
func candidateFor(job *Job, buf *Buffer, f Format) (*Candidate, error) {
	codec, err := codecFor(f)
	if err != nil {
		return nil, err
	}

	var cand *Candidate
	if job.MaxBytes != nil {
		cand, err = searchQuality(codec, buf, *job.MaxBytes)
	} else {
		cand, err = encodeAt(codec, buf, f.DefaultQuality())
		if err == nil {
			cand.PassedConstraints = job.MaxBytes == nil || cand.FileSize <= *job.MaxBytes
		}
	}
	if err != nil {
		return nil, err
	}
	return cand, nil
}

// scoreCandidates runs the job's metric against every candidate in place,
// recording decode/metric failures as a warning and a conservative score
// of 0.0 (assume identical) so the candidate survives selection rather
// than being dropped over a scoring failure that says nothing about its
// actual fidelity.
func scoreCandidates(job *Job, original *Buffer, candidates []*Candidate, result *Result) {
	if job.Metric == MetricNone {
		return
	}
	metric := metricFor(job.Metric)
	for _, cand := range candidates {
		codec, err := codecFor(cand.Format)
		if err != nil {
			result.addWarning(job.logEntry(), "score %s: %v", cand.Format, err)
			cand.DiffScore = 0.0
			continue
		}
		decoded, err := codec.Decode(cand.Encoded)
		if err != nil {
			result.addWarning(job.logEntry(), "score %s: re-decode failed: %v", cand.Format, err)
			cand.DiffScore = 0.0
			continue
		}
		score, err := metric.Score(original, decoded)
		if err != nil {
			result.addWarning(job.logEntry(), "score %s: %v", cand.Format, err)
			cand.DiffScore = 0.0
			continue
		}
		cand.DiffScore = score
		if job.MaxDiff != nil && score > *job.MaxDiff {
			cand.PassedConstraints = false
		}
	}
}
