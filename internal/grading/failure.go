package grading

import (
	"errors"
	"fmt"
)

// Reason classifies a grading failure.
type Reason string

const (
	ReasonCall      Reason = "call"
	ReasonTimeout   Reason = "timeout"
	ReasonMalformed Reason = "malformed"
	ReasonQuota     Reason = "quota"
	ReasonPrompt    Reason = "prompt"
)

// ErrQuotaExceeded is returned by a Quota when the monthly allowance is
// used up.
var ErrQuotaExceeded = errors.New("monthly AI quota exceeded")

// ErrInvalidAnswer rejects a submission whose answers do not match the quiz.
var ErrInvalidAnswer = errors.New("invalid answer")

// Failure means an open-ended answer could not be graded automatically. It
// never carries a score; the answer goes to manual review.
type Failure struct {
	Reason Reason
	Err    error
	// Raw is the model output when the failure happened while reading it.
	Raw string
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("grading failed (%s): %v", f.Reason, f.Err)
	}
	return fmt.Sprintf("grading failed (%s)", f.Reason)
}

func (f *Failure) Unwrap() error { return f.Err }
