package pyjamaz

import "sort"

// selectBest filters candidates to those that PassedConstraints, then
// picks the smallest file size, tie-breaking by format preference (AVIF >
// WebP > JPEG > PNG). It returns nil and the reason nothing qualified
// when the candidate list has no survivors.
func selectBest(job *Job, candidates []*Candidate) (*Candidate, UnmetReason) {
	survivors := make([]*Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.PassedConstraints {
			survivors = append(survivors, c)
		}
	}
	if len(survivors) == 0 {
		return nil, unmetReasonFor(job, candidates)
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		if survivors[i].FileSize != survivors[j].FileSize {
			return survivors[i].FileSize < survivors[j].FileSize
		}
		return survivors[i].Format.preference() > survivors[j].Format.preference()
	})
	return survivors[0].Clone(), UnmetNone
}

// unmetReasonFor inspects why every candidate failed its constraints, so
// the caller's exit-code mapping can distinguish a size miss from a
// perceptual-ceiling miss. A candidate that missed both counts toward the
// size reason, since that's the harder constraint to relax.
func unmetReasonFor(job *Job, candidates []*Candidate) UnmetReason {
	if len(candidates) == 0 {
		return UnmetNone
	}
	sawSizeMiss := false
	sawDiffMiss := false
	for _, c := range candidates {
		if job.MaxBytes != nil && c.FileSize > *job.MaxBytes {
			sawSizeMiss = true
			continue
		}
		if job.MaxDiff != nil && c.DiffScore > *job.MaxDiff {
			sawDiffMiss = true
		}
	}
	if sawSizeMiss {
		return UnmetSizeBudget
	}
	if sawDiffMiss {
		return UnmetPerceptualCeiling
	}
	return UnmetNone
}

// baselineCandidate builds the original-bytes fallback candidate: quality
// 100, zero perceptual difference by definition, passing only if there's
// no size budget or the original already fits it.
func baselineCandidate(job *Job, input []byte, format Format) *Candidate {
	passed := job.MaxBytes == nil || uint64(len(input)) <= *job.MaxBytes
	return &Candidate{
		Format:            format,
		Encoded:           append([]byte(nil), input...),
		FileSize:          uint64(len(input)),
		Quality:           100,
		DiffScore:         0.0,
		PassedConstraints: passed,
	}
}
