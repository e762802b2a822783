// Package diagnostics records per-run troubleshooting streams.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Stream names accepted by WriteJSONL.
const (
	StreamSteps             = "steps"
	StreamFailedIngredients = "failed_ingredients"
	StreamMacroDebug        = "macro_debug"
)

// StepEntry is one orchestrator log line.
type StepEntry struct {
	At      time.Time      `json:"at"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// FailedIngredientEntry records an ingredient with no usable product.
type FailedIngredientEntry struct {
	At         time.Time `json:"at"`
	Ingredient string    `json:"ingredient"`
	Reason     string    `json:"reason"`
}

// Macros are the values compared in the macro-debug stream.
type Macros struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Fat      float64 `json:"fat"`
	Carbs    float64 `json:"carbs"`
}

// MacroDebugEntry compares a meal's macros with its per-meal target.
type MacroDebugEntry struct {
	At     time.Time `json:"at"`
	Day    int       `json:"day"`
	Meal   string    `json:"meal"`
	Target Macros    `json:"target"`
	Actual Macros    `json:"actual"`
	Delta  Macros    `json:"delta"`
}

// Snapshot is a copy of all three streams.
type Snapshot struct {
	Steps             []StepEntry             `json:"steps"`
	FailedIngredients []FailedIngredientEntry `json:"failedIngredients"`
	MacroDebug        []MacroDebugEntry       `json:"macroDebug"`
}

// Recorder collects append-only diagnostics for one run. It is safe for
// concurrent use.
type Recorder struct {
	mu     sync.Mutex
	snap   Snapshot
	onStep func(StepEntry)
	now    func() time.Time
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// OnStep registers fn to observe each step entry after it is stored.
func (r *Recorder) OnStep(fn func(StepEntry)) {
	r.mu.Lock()
	r.onStep = fn
	r.mu.Unlock()
}

// Step appends an orchestrator log line. attrs are key/value pairs.
func (r *Recorder) Step(message string, attrs ...any) {
	e := StepEntry{At: r.now().UTC(), Message: message}
	if len(attrs) > 0 {
		e.Attrs = make(map[string]any, len(attrs)/2)
		for i := 0; i < len(attrs); i += 2 {
			key := fmt.Sprint(attrs[i])
			if i+1 < len(attrs) {
				e.Attrs[key] = attrs[i+1]
			} else {
				e.Attrs[key] = nil
			}
		}
	}

	r.mu.Lock()
	r.snap.Steps = append(r.snap.Steps, e)
	fn := r.onStep
	r.mu.Unlock()

	if fn != nil {
		fn(e)
	}
}

// FailedIngredient appends a product-match failure.
func (r *Recorder) FailedIngredient(ingredient, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.FailedIngredients = append(r.snap.FailedIngredients, FailedIngredientEntry{
		At:         r.now().UTC(),
		Ingredient: ingredient,
		Reason:     reason,
	})
}

// MacroDelta appends a per-meal target-versus-actual comparison.
func (r *Recorder) MacroDelta(day int, meal string, target, actual Macros) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.MacroDebug = append(r.snap.MacroDebug, MacroDebugEntry{
		At:     r.now().UTC(),
		Day:    day,
		Meal:   meal,
		Target: target,
		Actual: actual,
		Delta: Macros{
			Calories: actual.Calories - target.Calories,
			Protein:  actual.Protein - target.Protein,
			Fat:      actual.Fat - target.Fat,
			Carbs:    actual.Carbs - target.Carbs,
		},
	})
}

// Snapshot returns a copy of the streams recorded so far.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Steps:             append([]StepEntry{}, r.snap.Steps...),
		FailedIngredients: append([]FailedIngredientEntry{}, r.snap.FailedIngredients...),
		MacroDebug:        append([]MacroDebugEntry{}, r.snap.MacroDebug...),
	}
}

// WriteJSONL writes one stream of snap as JSON Lines.
func WriteJSONL(w io.Writer, snap Snapshot, stream string) error {
	enc := json.NewEncoder(w)
	switch stream {
	case StreamSteps:
		return encodeEach(enc, snap.Steps)
	case StreamFailedIngredients:
		return encodeEach(enc, snap.FailedIngredients)
	case StreamMacroDebug:
		return encodeEach(enc, snap.MacroDebug)
	default:
		return fmt.Errorf("unknown diagnostics stream %q", stream)
	}
}

func encodeEach[T any](enc *json.Encoder, entries []T) error {
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("failed to write diagnostics entry: %w", err)
		}
	}
	return nil
}
