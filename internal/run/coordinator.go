package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"meal-plan-coordinator/internal/diagnostics"
	"meal-plan-coordinator/internal/market"
	"meal-plan-coordinator/internal/nutrition"
	"meal-plan-coordinator/internal/planner"
	"meal-plan-coordinator/internal/runstore"

	"github.com/google/uuid"
)

// PlanGenerator produces a validated meal plan.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, profile nutrition.Profile, targets nutrition.Targets) (planner.GenerationResult, error)
}

// IngredientResolver matches plan ingredients to store products.
type IngredientResolver interface {
	Resolve(ctx context.Context, plan *planner.MealPlan, rec market.Recorder, onResolved func(market.Resolution)) (map[string]market.Resolution, error)
}

// Options tune a Coordinator.
type Options struct {
	// TTL is how long run records and diagnostics stay readable.
	TTL time.Duration
	// Timeout bounds one background run.
	Timeout time.Duration
}

// Coordinator owns run records. Every transition is written to the store
// before it is published to sinks.
type Coordinator struct {
	store    runstore.Store
	planner  PlanGenerator
	resolver IngredientResolver
	sinks    []Sink
	ttl      time.Duration
	timeout  time.Duration

	// mu serializes read-modify-write cycles on records.
	mu sync.Mutex

	liveMu sync.Mutex
	live   map[string]*diagnostics.Recorder

	wg    sync.WaitGroup
	now   func() time.Time
	newID func() string
}

// NewCoordinator creates a coordinator over store.
func NewCoordinator(store runstore.Store, gen PlanGenerator, res IngredientResolver, opts Options, sinks ...Sink) *Coordinator {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	return &Coordinator{
		store:    store,
		planner:  gen,
		resolver: res,
		sinks:    sinks,
		ttl:      opts.TTL,
		timeout:  opts.Timeout,
		live:     make(map[string]*diagnostics.Recorder),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// StartRun validates profile and writes a new running record at the
// targets phase.
func (c *Coordinator) StartRun(ctx context.Context, profile nutrition.Profile) (string, error) {
	if err := profile.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	runID := c.newID()
	now := c.now().UTC()
	rec := Record{Status: StatusRunning, Phase: PhaseTargets, StartedAt: now, UpdatedAt: now}

	c.mu.Lock()
	err := c.save(ctx, runID, rec)
	c.mu.Unlock()
	if err != nil {
		return "", err
	}

	slog.Info("run started", "run_id", runID, "days", profile.DayCount, "meals_per_day", profile.MealsPerDay)
	c.publish(Event{Type: EventPhase, RunID: runID, Phase: PhaseTargets, At: now})
	return runID, nil
}

// Advance moves a run to phase, which must directly follow the stored
// phase. partial is attached to the published event.
func (c *Coordinator) Advance(ctx context.Context, runID string, phase Phase, partial any) error {
	rec, err := c.transition(ctx, runID, func(rec *Record) error {
		next, ok := rec.Phase.Next()
		if !ok || next != phase {
			return &PhaseOrderingError{RunID: runID, From: rec.Phase, To: phase}
		}
		rec.Phase = phase
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("phase advanced", "run_id", runID, "phase", phase)
	c.publish(Event{Type: EventPhase, RunID: runID, Phase: phase, Data: partial, At: rec.UpdatedAt})
	return nil
}

// Complete stores artifact as the payload of a successful run.
func (c *Coordinator) Complete(ctx context.Context, runID string, artifact any) error {
	payload, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to marshal run artifact: %w", err)
	}

	rec, err := c.transition(ctx, runID, func(rec *Record) error {
		rec.Status = StatusComplete
		rec.Phase = ""
		rec.Payload = payload
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("run complete", "run_id", runID, "elapsed", rec.UpdatedAt.Sub(rec.StartedAt))
	c.publish(Event{Type: EventComplete, RunID: runID, Data: json.RawMessage(payload), At: rec.UpdatedAt})
	return nil
}

// Fail ends a run with cause recorded under kind.
func (c *Coordinator) Fail(ctx context.Context, runID string, kind Kind, cause error) error {
	var detail FailurePayload
	rec, err := c.transition(ctx, runID, func(rec *Record) error {
		detail = FailurePayload{Kind: kind, Error: cause.Error(), Phase: rec.Phase}
		payload, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("failed to marshal failure: %w", err)
		}
		rec.Status = StatusFailed
		rec.Phase = ""
		rec.Payload = payload
		return nil
	})
	if err != nil {
		return err
	}

	slog.Warn("run failed", "run_id", runID, "kind", kind, "phase", detail.Phase, "error", cause)
	c.publish(Event{Type: EventFailed, RunID: runID, Phase: detail.Phase, Message: detail.Error, Data: detail, At: rec.UpdatedAt})
	return nil
}

// transition applies mutate to a running record and persists it.
func (c *Coordinator) transition(ctx context.Context, runID string, mutate func(*Record) error) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := loadRecord(ctx, c.store, runID)
	if errors.Is(err, runstore.ErrNotFound) {
		return Record{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Record{}, err
	}
	if rec.Terminal() {
		return Record{}, fmt.Errorf("%w: %s is %s", ErrRunTerminal, runID, rec.Status)
	}

	if err := mutate(&rec); err != nil {
		return Record{}, err
	}
	rec.UpdatedAt = c.now().UTC()
	if err := c.save(ctx, runID, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (c *Coordinator) save(ctx context.Context, runID string, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}
	if err := c.store.Set(ctx, runstore.RunKey(runID), raw, c.ttl); err != nil {
		return fmt.Errorf("failed to persist run %s: %w", runID, err)
	}
	return nil
}

func (c *Coordinator) publish(e Event) {
	for _, s := range c.sinks {
		s.Publish(e)
	}
}

// Diagnostics returns the diagnostics of a run, live while it runs and from
// the store afterwards.
func (c *Coordinator) Diagnostics(ctx context.Context, runID string) (diagnostics.Snapshot, error) {
	c.liveMu.Lock()
	rec, ok := c.live[runID]
	c.liveMu.Unlock()
	if ok {
		return rec.Snapshot(), nil
	}

	raw, err := c.store.Get(ctx, runstore.DiagnosticsKey(runID))
	if err != nil {
		return diagnostics.Snapshot{}, err
	}
	var snap diagnostics.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return diagnostics.Snapshot{}, fmt.Errorf("failed to decode diagnostics for %s: %w", runID, err)
	}
	return snap, nil
}

// Launch starts a run and executes it in the background, detached from ctx
// and bounded by the configured timeout.
func (c *Coordinator) Launch(ctx context.Context, profile nutrition.Profile) (string, error) {
	runID, err := c.StartRun(ctx, profile)
	if err != nil {
		return "", err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		runCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if _, err := c.Execute(runCtx, runID, profile); err != nil {
			slog.Debug("background run ended with error", "run_id", runID, "error", err)
		}
	}()
	return runID, nil
}

// Wait blocks until background runs finish or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
