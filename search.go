package pyjamaz

import "time"

// maxSearchRounds bounds the quality-to-size binary search: spec's
// candidate engine must converge (or give up) within 7 encode rounds.
const maxSearchRounds = 7

// searchQuality binary-searches a format's quality range for the highest
// quality whose encoded size is still <= targetBytes, the same "prefer
// the best-looking candidate that still fits" rule the teacher's optimal
// JPEG-quality search used, generalized across all four codecs' distinct
// quality ranges.
//
// It always returns the best candidate it found even when none fit
// target, so the selector can report why (PassedConstraints will be
// false on every returned candidate in that case).
func searchQuality(codec Codec, buf *Buffer, targetBytes uint64) (*Candidate, error) {
	format := codec.Format()
	lo, hi := format.QualityRange()

	best, err := encodeAt(codec, buf, hi)
	if err != nil {
		return nil, err
	}
	if best.FileSize <= targetBytes {
		best.PassedConstraints = true
		return best, nil
	}

	smallest, err := encodeAt(codec, buf, lo)
	if err != nil {
		return nil, err
	}
	if smallest.FileSize > targetBytes {
		// Even the smallest quality doesn't fit; it's still the closest
		// candidate available, constraints unmet.
		return smallest, nil
	}
	if lo == hi {
		smallest.PassedConstraints = true
		return smallest, nil
	}

	// Binary search over the open interval (lo, hi), keeping the best
	// (highest-quality) candidate seen that still fits.
	best = smallest
	best.PassedConstraints = true
	round := 2
	left, right := lo, hi
	for left < right-1 && round < maxSearchRounds {
		mid := left + (right-left)/2
		cand, err := encodeAt(codec, buf, mid)
		if err != nil {
			return nil, err
		}
		round++
		if cand.FileSize <= targetBytes {
			if cand.Quality >= best.Quality {
				cand.PassedConstraints = true
				best = cand
			}
			left = mid
		} else {
			right = mid
		}
	}
	return best, nil
}

// encodeAt runs one encode round and reports its duration, the unit of
// work both searchQuality and the candidate engine's baseline-at-default
// path count against their round/latency budgets.
func encodeAt(codec Codec, buf *Buffer, quality int) (*Candidate, error) {
	start := time.Now()
	data, err := codec.Encode(buf, quality)
	if err != nil {
		return nil, err
	}
	return &Candidate{
		Format:         codec.Format(),
		Encoded:        data,
		FileSize:       uint64(len(data)),
		Quality:        uint8(quality),
		EncodeDuration: time.Since(start),
	}, nil
}
