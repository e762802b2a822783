package run

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"meal-plan-coordinator/internal/nutrition"
	"meal-plan-coordinator/internal/runstore"
)

// --- Mocks ---

type collectingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *collectingSink) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *collectingSink) ofType(t EventType) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// storeCheckingSink verifies that every transition it sees is already
// visible through the store.
type storeCheckingSink struct {
	t     *testing.T
	store runstore.Store
	mu    sync.Mutex
	seen  int
}

func (s *storeCheckingSink) Publish(e Event) {
	var want Status
	switch e.Type {
	case EventPhase:
		want = StatusRunning
	case EventComplete:
		want = StatusComplete
	case EventFailed:
		want = StatusFailed
	default:
		return
	}

	state, err := Lookup(context.Background(), s.store, e.RunID)
	if err != nil {
		s.t.Errorf("Lookup during publish failed: %v", err)
		return
	}
	if state.Status() != want {
		s.t.Errorf("Expected stored status %s before %s event, got %s", want, e.Type, state.Status())
	}
	if r, ok := state.(Running); ok && r.Phase != e.Phase {
		s.t.Errorf("Expected stored phase %s before broadcast, got %s", e.Phase, r.Phase)
	}

	s.mu.Lock()
	s.seen++
	s.mu.Unlock()
}

type brokenStore struct{}

func (brokenStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, runstore.ErrUnavailable
}

func (brokenStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return runstore.ErrUnavailable
}

func testProfile() nutrition.Profile {
	return nutrition.Profile{
		HeightCm:          180,
		WeightKg:          80,
		Age:               30,
		Sex:               "male",
		ActivityLevel:     "moderate",
		Goal:              "maintain",
		DietaryPreference: "balanced",
		DayCount:          1,
		MealsPerDay:       2,
	}
}

func newCoordinator(store runstore.Store, gen PlanGenerator, res IngredientResolver, sinks ...Sink) *Coordinator {
	c := NewCoordinator(store, gen, res, Options{TTL: time.Hour, Timeout: 5 * time.Second}, sinks...)
	ids := 0
	c.newID = func() string {
		ids++
		return "run-000000" + string(rune('a'+ids-1))
	}
	return c
}

// --- Tests ---

func TestPhaseOrder(t *testing.T) {
	if next, ok := PhaseTargets.Next(); !ok || next != PhasePlanning {
		t.Errorf("Expected planning after targets, got %s", next)
	}
	if _, ok := PhaseFinalizing.Next(); ok {
		t.Error("Expected no phase after finalizing")
	}
	if Phase("cooking").Index() != -1 {
		t.Error("Expected unknown phase to have index -1")
	}
	if !(PhaseTargets.Index() < PhasePlanning.Index() && PhasePlanning.Index() < PhaseMarket.Index() && PhaseMarket.Index() < PhaseFinalizing.Index()) {
		t.Error("Expected targets < planning < market < finalizing")
	}
}

func TestStartRun(t *testing.T) {
	ctx := context.Background()
	store := runstore.NewMemoryStore()
	sink := &collectingSink{}
	c := newCoordinator(store, nil, nil, sink)

	t.Run("WritesRunningRecord", func(t *testing.T) {
		runID, err := c.StartRun(ctx, testProfile())
		if err != nil {
			t.Fatalf("StartRun failed: %v", err)
		}
		if len(runID) < 10 {
			t.Errorf("Expected run id of at least 10 chars, got %q", runID)
		}

		state, err := Lookup(ctx, store, runID)
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		running, ok := state.(Running)
		if !ok {
			t.Fatalf("Expected Running state, got %T", state)
		}
		if running.Phase != PhaseTargets {
			t.Errorf("Expected phase targets, got %s", running.Phase)
		}
		if running.StartedAt.IsZero() || !running.StartedAt.Equal(running.UpdatedAt) {
			t.Errorf("Expected startedAt == updatedAt, got %v / %v", running.StartedAt, running.UpdatedAt)
		}
		if got := sink.ofType(EventPhase); len(got) != 1 || got[0].Phase != PhaseTargets {
			t.Errorf("Expected one targets event, got %+v", got)
		}
	})

	t.Run("RejectsInvalidProfile", func(t *testing.T) {
		p := testProfile()
		p.DayCount = 0
		if _, err := c.StartRun(ctx, p); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("StoreUnavailable", func(t *testing.T) {
		broken := newCoordinator(brokenStore{}, nil, nil)
		if _, err := broken.StartRun(ctx, testProfile()); !errors.Is(err, runstore.ErrUnavailable) {
			t.Errorf("Expected ErrUnavailable, got %v", err)
		}
	})
}

func TestAdvance(t *testing.T) {
	ctx := context.Background()
	store := runstore.NewMemoryStore()
	c := newCoordinator(store, nil, nil)

	runID, err := c.StartRun(ctx, testProfile())
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	t.Run("SkippingPhaseIsOrderingFault", func(t *testing.T) {
		err := c.Advance(ctx, runID, PhaseMarket, nil)
		var ordering *PhaseOrderingError
		if !errors.As(err, &ordering) {
			t.Fatalf("Expected PhaseOrderingError, got %v", err)
		}
		if ordering.From != PhaseTargets || ordering.To != PhaseMarket {
			t.Errorf("Expected targets -> market, got %s -> %s", ordering.From, ordering.To)
		}
		if KindOf(err) != KindPhaseOrderingFault {
			t.Errorf("Expected kind PhaseOrderingFault, got %s", KindOf(err))
		}
		state, _ := Lookup(ctx, store, runID)
		if state.(Running).Phase != PhaseTargets {
			t.Error("Expected rejected transition to leave the record unchanged")
		}
	})

	t.Run("ImmediateSuccessorIsAccepted", func(t *testing.T) {
		if err := c.Advance(ctx, runID, PhasePlanning, nil); err != nil {
			t.Fatalf("Advance failed: %v", err)
		}
		state, _ := Lookup(ctx, store, runID)
		if state.(Running).Phase != PhasePlanning {
			t.Errorf("Expected planning, got %+v", state)
		}
	})

	t.Run("RepeatingPhaseIsOrderingFault", func(t *testing.T) {
		var ordering *PhaseOrderingError
		if err := c.Advance(ctx, runID, PhasePlanning, nil); !errors.As(err, &ordering) {
			t.Errorf("Expected PhaseOrderingError, got %v", err)
		}
	})

	t.Run("MovingBackwardIsOrderingFault", func(t *testing.T) {
		var ordering *PhaseOrderingError
		if err := c.Advance(ctx, runID, PhaseTargets, nil); !errors.As(err, &ordering) {
			t.Errorf("Expected PhaseOrderingError, got %v", err)
		}
	})

	t.Run("UnknownRun", func(t *testing.T) {
		if err := c.Advance(ctx, "does-not-exist", PhasePlanning, nil); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("Expected ErrRunNotFound, got %v", err)
		}
	})
}

func TestTerminalRecordsAreImmutable(t *testing.T) {
	ctx := context.Background()
	store := runstore.NewMemoryStore()
	c := newCoordinator(store, nil, nil)

	runID, _ := c.StartRun(ctx, testProfile())
	if err := c.Complete(ctx, runID, map[string]int{"answer": 42}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	before, _ := store.Get(ctx, runstore.RunKey(runID))

	if err := c.Advance(ctx, runID, PhasePlanning, nil); !errors.Is(err, ErrRunTerminal) {
		t.Errorf("Expected ErrRunTerminal from Advance, got %v", err)
	}
	if err := c.Fail(ctx, runID, KindInternal, errors.New("late")); !errors.Is(err, ErrRunTerminal) {
		t.Errorf("Expected ErrRunTerminal from Fail, got %v", err)
	}
	if err := c.Complete(ctx, runID, "other"); !errors.Is(err, ErrRunTerminal) {
		t.Errorf("Expected ErrRunTerminal from Complete, got %v", err)
	}

	after, _ := store.Get(ctx, runstore.RunKey(runID))
	if !bytes.Equal(before, after) {
		t.Errorf("Expected terminal record to stay byte-identical, got %s then %s", before, after)
	}

	state, _ := Lookup(ctx, store, runID)
	complete, ok := state.(Complete)
	if !ok {
		t.Fatalf("Expected Complete state, got %T", state)
	}
	if string(complete.Payload) != `{"answer":42}` {
		t.Errorf("Expected stored artifact, got %s", complete.Payload)
	}
}

func TestFail(t *testing.T) {
	ctx := context.Background()
	store := runstore.NewMemoryStore()
	sink := &collectingSink{}
	c := newCoordinator(store, nil, nil, sink)

	runID, _ := c.StartRun(ctx, testProfile())
	c.Advance(ctx, runID, PhasePlanning, nil)
	if err := c.Fail(ctx, runID, KindProviderFailure, errors.New("all providers failed")); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	state, _ := Lookup(ctx, store, runID)
	failed, ok := state.(Failed)
	if !ok {
		t.Fatalf("Expected Failed state, got %T", state)
	}
	var detail FailurePayload
	if err := json.Unmarshal(failed.Payload, &detail); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if detail.Kind != KindProviderFailure || detail.Error != "all providers failed" || detail.Phase != PhasePlanning {
		t.Errorf("Unexpected failure payload %+v", detail)
	}
	if got := sink.ofType(EventFailed); len(got) != 1 || !got[0].Terminal() {
		t.Errorf("Expected one terminal failed event, got %+v", got)
	}
}

func TestLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingIsUnknown", func(t *testing.T) {
		state, err := Lookup(ctx, runstore.NewMemoryStore(), "abc1234567")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if _, ok := state.(Unknown); !ok {
			t.Errorf("Expected Unknown, got %T", state)
		}
	})

	t.Run("UnavailableIsError", func(t *testing.T) {
		if _, err := Lookup(ctx, brokenStore{}, "abc1234567"); !errors.Is(err, runstore.ErrUnavailable) {
			t.Errorf("Expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("CorruptRecord", func(t *testing.T) {
		store := runstore.NewMemoryStore()
		store.Set(ctx, runstore.RunKey("abc1234567"), []byte("not json"), time.Minute)
		if _, err := Lookup(ctx, store, "abc1234567"); err == nil {
			t.Error("Expected decode error")
		}
		store.Set(ctx, runstore.RunKey("abc1234567"), []byte(`{"status":"paused"}`), time.Minute)
		if _, err := Lookup(ctx, store, "abc1234567"); err == nil {
			t.Error("Expected unknown status error")
		}
	})
}

func TestKindOf(t *testing.T) {
	tests := map[string]struct {
		err  error
		want Kind
	}{
		"Deadline":   {context.DeadlineExceeded, KindTimeout},
		"Input":      {ErrInvalidInput, KindInvalidInput},
		"Storage":    {runstore.ErrUnavailable, KindStorageUnavailable},
		"Ordering":   {&PhaseOrderingError{From: PhaseTargets, To: PhaseMarket}, KindPhaseOrderingFault},
		"Unexpected": {errors.New("boom"), KindInternal},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
