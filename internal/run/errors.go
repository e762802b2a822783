package run

import (
	"context"
	"errors"
	"fmt"

	"meal-plan-coordinator/internal/llm"
	"meal-plan-coordinator/internal/planner"
	"meal-plan-coordinator/internal/runstore"
)

var (
	// ErrRunTerminal is returned for writes to a completed or failed run.
	ErrRunTerminal = errors.New("run is already terminal")
	// ErrRunNotFound is returned for writes to a run with no record.
	ErrRunNotFound = errors.New("run not found")
	// ErrInvalidInput is returned when a run is started with a bad profile.
	ErrInvalidInput = errors.New("invalid input")
)

// PhaseOrderingError reports a transition that skips or repeats a phase.
// It indicates a bug in the caller.
type PhaseOrderingError struct {
	RunID string
	From  Phase
	To    Phase
}

func (e *PhaseOrderingError) Error() string {
	return fmt.Sprintf("run %s: illegal phase transition %s -> %s", e.RunID, e.From, e.To)
}

// Kind names a failure class in a failed run's payload.
type Kind string

const (
	KindInvalidInput       Kind = "InvalidInput"
	KindStorageUnavailable Kind = "StorageUnavailable"
	KindProviderFailure    Kind = "ProviderFailure"
	KindPhaseOrderingFault Kind = "PhaseOrderingFault"
	KindTimeout            Kind = "Timeout"
	KindInternal           Kind = "Internal"
)

// FailurePayload is the payload stored on a failed run.
type FailurePayload struct {
	Kind  Kind   `json:"kind"`
	Error string `json:"error"`
	Phase Phase  `json:"phase,omitempty"`
}

// KindOf classifies err.
func KindOf(err error) Kind {
	var ordering *PhaseOrderingError
	switch {
	case errors.As(err, &ordering):
		return KindPhaseOrderingFault
	case errors.Is(err, llm.ErrProviderFailure), errors.Is(err, planner.ErrInvalidPlan):
		return KindProviderFailure
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, runstore.ErrUnavailable):
		return KindStorageUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindInternal
	}
}
