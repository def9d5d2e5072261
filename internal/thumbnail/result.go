package thumbnail

import (
	"errors"
	"time"
)

// Derivation failure reasons. They are reported through Result, never returned.
var (
	ErrNoIdentifier      = errors.New("thumbnail: edit has no identifier")
	ErrSourceUnreachable = errors.New("thumbnail: video source unreachable")
	ErrBinaryNotFound    = errors.New("thumbnail: ffmpeg binary not runnable")
	ErrExtractionFailed  = errors.New("thumbnail: frame extraction failed")
	ErrTimeout           = errors.New("thumbnail: frame extraction timed out")
	ErrOutputMissing     = errors.New("thumbnail: extracted frame missing or unreadable")
	ErrPersist           = errors.New("thumbnail: persisting thumbnail failed")
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Result is the outcome of one derivation attempt.
type Result struct {
	EditID   int64
	Outcome  Outcome
	Ref      string // stored thumbnail reference on success
	Err      error  // wraps one of the Err* reasons on failure
	Duration time.Duration
}

// OK reports whether a thumbnail was stored and recorded.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSucceeded
}

// Reason returns a short label for the failure, used for logs and metrics.
func (r Result) Reason() string {
	switch {
	case r.Err == nil:
		return "none"
	case errors.Is(r.Err, ErrNoIdentifier):
		return "no_identifier"
	case errors.Is(r.Err, ErrSourceUnreachable):
		return "source_unreachable"
	case errors.Is(r.Err, ErrBinaryNotFound):
		return "binary_not_found"
	case errors.Is(r.Err, ErrTimeout):
		return "timeout"
	case errors.Is(r.Err, ErrExtractionFailed):
		return "extraction_failed"
	case errors.Is(r.Err, ErrOutputMissing):
		return "output_missing"
	case errors.Is(r.Err, ErrPersist):
		return "persist"
	default:
		return "other"
	}
}
