// Package executor runs a BuildPlan: parallel compiles under a bounded
// worker pool, sequential archives and links, serial external recipes,
// with fingerprint-driven skipping and first-error cancellation.
package executor

import (
	"fmt"

	"harbour/internal/surface"
)

// StepErrorKind classifies an execution failure by the step that
// produced it.
type StepErrorKind string

const (
	CompileFailed        StepErrorKind = "compile failed"
	ArchiveFailed        StepErrorKind = "archive failed"
	LinkFailed           StepErrorKind = "link failed"
	ExternalRecipeFailed StepErrorKind = "external recipe failed"
	RecipeOutputMissing  StepErrorKind = "recipe output missing"
	Cancelled            StepErrorKind = "cancelled"
)

// StepError carries a failure's provenance chain — package, target,
// step — plus the subprocess cause and its captured output.
type StepError struct {
	Kind   StepErrorKind
	Target surface.TargetRef
	Step   string
	Cause  error
	Output string
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("%s: %s (step %s)", e.Kind, e.Target, e.Step)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

func (e *StepError) Unwrap() error { return e.Cause }
