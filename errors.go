package mealagent

import (
	"errors"
	"fmt"
)

// Inference failure kinds. Backends wrap provider errors with one of these.
var (
	ErrNetwork          = errors.New("inference network error")
	ErrQuotaExceeded    = errors.New("inference quota exceeded")
	ErrMalformedRequest = errors.New("malformed inference request")
)

// Pipeline errors
var (
	ErrEmptyResult  = errors.New("inference returned an empty result")
	ErrEmptyRequest = errors.New("analysis request has neither image nor transcript")
)

// FatalInferenceError aborts an analysis. It is the only error that crosses the pipeline boundary.
type FatalInferenceError struct {
	Stage Tool
	Err   error
}

func (e *FatalInferenceError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *FatalInferenceError) Unwrap() error { return e.Err }

// DegradedStageError is recorded when an escalation stage fails. The pipeline logs it
// and continues with the best estimate so far.
type DegradedStageError struct {
	Stage Tool
	Err   error
}

func (e *DegradedStageError) Error() string {
	return fmt.Sprintf("%s degraded: %v", e.Stage, e.Err)
}

func (e *DegradedStageError) Unwrap() error { return e.Err }
