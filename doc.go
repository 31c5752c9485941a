// Package pyjamaz implements a budget-aware, perceptually-guarded image
// optimizer. Given one input image and a set of constraints — a target byte
// budget, a target perceptual-distance ceiling, and a set of candidate
// output formats — it produces the smallest encoding of that image that
// satisfies every constraint across JPEG, PNG, WebP and AVIF, and guarantees
// the chosen output is never larger than the input.
//
// pyjamaz — packs your image into the smallest suitcase that still looks
// like it did before you left.
//
// The core pipeline:
//
//   - Decode the input into a raw pixel buffer.
//   - Generate one encoding candidate per requested format, in parallel,
//     each using a bounded binary search over its quality parameter to
//     converge on the byte budget when one is given (otherwise a single
//     encode at the format's default quality).
//   - Score every candidate against the original with a perceptual metric.
//   - Always add the original bytes as a baseline candidate, so the
//     optimizer can never choose something larger than what it was given.
//   - Select the smallest candidate that satisfies every constraint.
//
// A content-addressed, LRU-evicting disk cache sits in front of the whole
// pipeline so repeat requests for the same (image, constraints) pair are
// free.
package pyjamaz
