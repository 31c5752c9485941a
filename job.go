package pyjamaz

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// MetricKind selects the perceptual scorer used to judge candidates.
type MetricKind int

const (
	// MetricNone disables perceptual filtering: every candidate scores 0.0.
	MetricNone MetricKind = iota
	// MetricDSSIM is the primary structural-dissimilarity scorer.
	MetricDSSIM
	// MetricSSIMULACRA2 is reserved; selecting it fails with
	// UnsupportedMetric. See DESIGN.md for the open-question decision.
	MetricSSIMULACRA2
)

func (m MetricKind) String() string {
	switch m {
	case MetricDSSIM:
		return "dssim"
	case MetricSSIMULACRA2:
		return "ssimulacra2"
	default:
		return "none"
	}
}

// MaxFormats bounds both the size of a Job's format list and the number of
// concurrent candidate-engine workers.
const MaxFormats = 10

// maxInputBytes is the 100 MB ceiling beyond which a job fails with
// FileTooLarge before the baseline candidate is even considered.
const maxInputBytes = 100 * 1024 * 1024

// Job is the immutable input to the optimizer.
type Job struct {
	// Input holds the raw bytes of the source image. Exactly one of Input
	// or InputPath should be set; Optimize reads InputPath itself when
	// Input is empty.
	Input []byte
	// InputPath is an optional path Optimize will read Input from.
	InputPath string
	// OutputPath is carried through for the external CLI collaborator;
	// the core orchestrator never writes to disk itself.
	OutputPath string

	MaxBytes *uint64
	MaxDiff  *float64
	Metric   MetricKind
	Formats  []Format

	Concurrency int
	Parallel    bool

	Cache *Cache

	logger *logrus.Logger
}

// DefaultJob returns a Job with the spec's defaults: concurrency 4,
// parallel true, metric none, formats [avif, webp, jpeg, png].
func DefaultJob(input []byte) Job {
	return Job{
		Input:       input,
		Metric:      MetricNone,
		Formats:     DefaultFormats(),
		Concurrency: 4,
		Parallel:    true,
	}
}

func (j *Job) logEntry() *logrus.Logger {
	if j.logger != nil {
		return j.logger
	}
	return defaultLogger
}

// JobOption configures a Job built via OptimizeBuffer's functional-option
// constructor.
type JobOption func(*Job)

func WithMaxBytes(n uint64) JobOption { return func(j *Job) { j.MaxBytes = &n } }
func WithMaxDiff(d float64) JobOption { return func(j *Job) { j.MaxDiff = &d } }
func WithMetric(m MetricKind) JobOption {
	return func(j *Job) { j.Metric = m }
}
func WithFormats(formats ...Format) JobOption {
	return func(j *Job) { j.Formats = formats }
}
func WithConcurrency(n int) JobOption { return func(j *Job) { j.Concurrency = n } }
func WithParallel(p bool) JobOption   { return func(j *Job) { j.Parallel = p } }
func WithCache(c *Cache) JobOption    { return func(j *Job) { j.Cache = c } }
func WithLogger(l *logrus.Logger) JobOption {
	return func(j *Job) { j.logger = l }
}

// Candidate is one completed encoding attempt.
type Candidate struct {
	Format            Format
	Encoded           []byte
	FileSize          uint64
	Quality           uint8
	DiffScore         float64
	PassedConstraints bool
	EncodeDuration    time.Duration
}

// Clone returns a deep copy, required whenever a candidate crosses from a
// worker's private arena into the shared result.
func (c *Candidate) Clone() *Candidate {
	cp := *c
	cp.Encoded = make([]byte, len(c.Encoded))
	copy(cp.Encoded, c.Encoded)
	return &cp
}

// Timings is the decode/encode/total breakdown spec.md §4.8 requires:
// DecodeNS covers decode alone, EncodeNS spans candidate generation through
// scoring, TotalNS spans the whole job including cache probe and store.
type Timings struct {
	DecodeNS int64
	EncodeNS int64
	TotalNS  int64
}

// UnmetReason distinguishes why a job produced no selection, for the
// caller's exit-code mapping (spec.md §6: 10 for size, 11 for perceptual
// ceiling).
type UnmetReason int

const (
	UnmetNone UnmetReason = iota
	UnmetSizeBudget
	UnmetPerceptualCeiling
)

// Result is the orchestrator's output: the selected candidate (if any),
// every candidate considered, timings, warnings, and a success flag.
type Result struct {
	Selected      *Candidate
	AllCandidates []*Candidate
	Timings       Timings
	Warnings      []string
	Success       bool
	Reason        UnmetReason
}

// ExitCode maps a Result to the spec's exit-code taxonomy for a failed
// job that didn't produce a Go error: 10 for an unmet size budget, 11 for
// an unmet perceptual ceiling, 0 on success, 1 otherwise.
func (r *Result) ExitCode() int {
	if r.Success {
		return 0
	}
	switch r.Reason {
	case UnmetSizeBudget:
		return 10
	case UnmetPerceptualCeiling:
		return 11
	default:
		return 1
	}
}

func (r *Result) addWarning(logger *logrus.Logger, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.Warnings = append(r.Warnings, msg)
	if logger != nil {
		logger.Warn(msg)
	}
}
