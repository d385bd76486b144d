package research

import (
	"errors"
	"fmt"
)

// ErrProModeDisabled is returned for pro requests while pro mode is switched off.
var ErrProModeDisabled = errors.New("pro mode is not enabled")

// PlanningError means the planner produced no usable plan.
type PlanningError struct {
	Reason string
	Err    error
}

func (e *PlanningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("planning failed: %s: %v", e.Reason, e.Err)
	}
	return "planning failed: " + e.Reason
}

func (e *PlanningError) Unwrap() error { return e.Err }

// QueryGenerationError means no search queries were produced for a step.
type QueryGenerationError struct {
	Step int
	Err  error
}

func (e *QueryGenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search query generation failed for step %d: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("no search queries generated for step %d", e.Step)
}

func (e *QueryGenerationError) Unwrap() error { return e.Err }

// SynthesisError wraps a failure of the answer stream.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string { return "answer generation failed: " + e.Err.Error() }

func (e *SynthesisError) Unwrap() error { return e.Err }

// fallbackReason labels err for the fallback metric.
func fallbackReason(err error) string {
	var (
		pe *PlanningError
		qe *QueryGenerationError
		se *SynthesisError
	)
	switch {
	case errors.As(err, &pe):
		return "planning"
	case errors.As(err, &qe):
		return "query_generation"
	case errors.As(err, &se):
		return "synthesis"
	default:
		return "other"
	}
}
