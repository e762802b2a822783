// Package run coordinates plan-generation runs and their persisted state.
package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"meal-plan-coordinator/internal/runstore"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
	StatusUnknown  Status = "unknown"
)

// Phase is a stage of a running job. Phases only move forward, one at a time.
type Phase string

const (
	PhaseTargets    Phase = "targets"
	PhasePlanning   Phase = "planning"
	PhaseMarket     Phase = "market"
	PhaseFinalizing Phase = "finalizing"
)

var phaseOrder = []Phase{PhaseTargets, PhasePlanning, PhaseMarket, PhaseFinalizing}

// Index is the position of p in the phase order, or -1.
func (p Phase) Index() int {
	for i, q := range phaseOrder {
		if q == p {
			return i
		}
	}
	return -1
}

// Next returns the phase that follows p.
func (p Phase) Next() (Phase, bool) {
	i := p.Index()
	if i < 0 || i+1 >= len(phaseOrder) {
		return "", false
	}
	return phaseOrder[i+1], true
}

// Record is the persisted state of one run. Phase is only set while running
// and Payload only once terminal.
type Record struct {
	Status    Status          `json:"status"`
	Phase     Phase           `json:"phase,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	StartedAt time.Time       `json:"startedAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Terminal reports whether the record can no longer change.
func (r Record) Terminal() bool {
	return r.Status == StatusComplete || r.Status == StatusFailed
}

// State is the tagged view of a record. It is one of Running, Complete,
// Failed or Unknown.
type State interface {
	Status() Status
}

type Running struct {
	Phase     Phase
	StartedAt time.Time
	UpdatedAt time.Time
}

type Complete struct {
	Payload   json.RawMessage
	UpdatedAt time.Time
}

type Failed struct {
	Payload   json.RawMessage
	UpdatedAt time.Time
}

// Unknown covers runs that expired or never existed.
type Unknown struct{}

func (Running) Status() Status  { return StatusRunning }
func (Complete) Status() Status { return StatusComplete }
func (Failed) Status() Status   { return StatusFailed }
func (Unknown) Status() Status  { return StatusUnknown }

// State converts the record into its tagged form. A record without
// updatedAt reports its start time instead.
func (r Record) State() (State, error) {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.StartedAt
	}
	switch r.Status {
	case StatusRunning:
		if r.Phase.Index() < 0 {
			return nil, fmt.Errorf("running record has unknown phase %q", r.Phase)
		}
		return Running{Phase: r.Phase, StartedAt: r.StartedAt, UpdatedAt: r.UpdatedAt}, nil
	case StatusComplete:
		return Complete{Payload: r.Payload, UpdatedAt: r.UpdatedAt}, nil
	case StatusFailed:
		return Failed{Payload: r.Payload, UpdatedAt: r.UpdatedAt}, nil
	default:
		return nil, fmt.Errorf("record has unknown status %q", r.Status)
	}
}

func loadRecord(ctx context.Context, store runstore.Store, runID string) (Record, error) {
	raw, err := store.Get(ctx, runstore.RunKey(runID))
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to decode run record %s: %w", runID, err)
	}
	return rec, nil
}

// Lookup reads the current state of a run. Missing or expired runs are
// Unknown, not an error. Store failures keep runstore.ErrUnavailable in
// their chain.
func Lookup(ctx context.Context, store runstore.Store, runID string) (State, error) {
	rec, err := loadRecord(ctx, store, runID)
	if errors.Is(err, runstore.ErrNotFound) {
		return Unknown{}, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.State()
}
