package run

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"meal-plan-coordinator/internal/diagnostics"
	"meal-plan-coordinator/internal/market"
	"meal-plan-coordinator/internal/nutrition"
	"meal-plan-coordinator/internal/planner"
	"meal-plan-coordinator/internal/runstore"
	"meal-plan-coordinator/internal/shopping"
)

// Artifact is the payload of a completed run.
type Artifact struct {
	Targets           nutrition.Targets            `json:"targets"`
	MealPlan          *planner.MealPlan            `json:"mealPlan"`
	Resolutions       map[string]market.Resolution `json:"resolutions"`
	ShoppingList      shopping.ShoppingList        `json:"shoppingList"`
	Provider          string                       `json:"provider"`
	FailedIngredients int                          `json:"failedIngredients"`
}

// PlanSummary is attached to the market phase event.
type PlanSummary struct {
	Provider    string `json:"provider"`
	Days        int    `json:"days"`
	Ingredients int    `json:"ingredients"`
}

// Execute drives a started run through every phase and completes or fails
// it. Terminal writes survive cancellation of ctx.
func (c *Coordinator) Execute(ctx context.Context, runID string, profile nutrition.Profile) (*Artifact, error) {
	rec := diagnostics.NewRecorder()
	rec.OnStep(func(e diagnostics.StepEntry) {
		c.publish(Event{Type: EventLog, RunID: runID, Message: e.Message, Data: e.Attrs, At: e.At})
	})

	c.liveMu.Lock()
	c.live[runID] = rec
	c.liveMu.Unlock()
	defer func() {
		c.liveMu.Lock()
		delete(c.live, runID)
		c.liveMu.Unlock()
	}()

	artifact, err := c.pipeline(ctx, runID, profile, rec)

	// Terminal writes must land even when the run timed out.
	final := context.WithoutCancel(ctx)
	if err != nil {
		kind := KindOf(err)
		rec.Step("run failed", "kind", string(kind), "error", err.Error())
		c.saveDiagnostics(final, runID, rec)
		if ferr := c.Fail(final, runID, kind, err); ferr != nil {
			slog.Error("failed to mark run failed", "run_id", runID, "error", ferr)
		}
		return nil, err
	}

	rec.Step("run complete", "total_cost", artifact.ShoppingList.TotalCost, "failed_ingredients", artifact.FailedIngredients)
	c.saveDiagnostics(final, runID, rec)
	if err := c.Complete(final, runID, artifact); err != nil {
		slog.Error("failed to mark run complete", "run_id", runID, "error", err)
		return nil, err
	}
	return artifact, nil
}

func (c *Coordinator) pipeline(ctx context.Context, runID string, profile nutrition.Profile, rec *diagnostics.Recorder) (*Artifact, error) {
	rec.Step("calculating targets", "phase", string(PhaseTargets))
	targets, err := nutrition.Calculate(profile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	rec.Step("targets calculated", "calories", targets.Calories, "protein", targets.Protein, "fat", targets.Fat, "carbs", targets.Carbs)

	if err := c.Advance(ctx, runID, PhasePlanning, targets); err != nil {
		return nil, err
	}
	gen, err := c.planner.GeneratePlan(ctx, profile, targets)
	for _, f := range gen.Failures {
		rec.Step("provider attempt failed", "provider", f.Name, "elapsed_ms", f.Elapsed.Milliseconds(), "error", f.Err.Error())
	}
	for _, m := range gen.Metas {
		if m.Success {
			rec.Step("provider attempt", "provider", m.Provider, "success", true, "latency_ms", m.Latency.Milliseconds(), "tokens", m.Usage.TotalTokens)
		}
	}
	if err != nil {
		return nil, err
	}
	rec.Step("plan generated", "provider", gen.Provider, "days", len(gen.Plan.Days))
	recordMacroDeltas(rec, gen.Plan, nutrition.PerMeal(targets, profile.MealsPerDay))

	keys := market.UniqueKeys(gen.Plan)
	summary := PlanSummary{Provider: gen.Provider, Days: len(gen.Plan.Days), Ingredients: len(keys)}
	if err := c.Advance(ctx, runID, PhaseMarket, summary); err != nil {
		return nil, err
	}
	resolutions, err := c.resolver.Resolve(ctx, gen.Plan, rec, func(r market.Resolution) {
		c.publish(Event{Type: EventIngredient, RunID: runID, Phase: PhaseMarket, Message: r.Key, Data: r, At: c.now().UTC()})
	})
	if err != nil {
		return nil, err
	}

	failed := 0
	for _, r := range resolutions {
		if r.Status == market.StatusFailed {
			failed++
		}
	}
	rec.Step("ingredients resolved", "matched", len(resolutions)-failed, "failed", failed)

	if err := c.Advance(ctx, runID, PhaseFinalizing, nil); err != nil {
		return nil, err
	}
	list := shopping.Aggregate(gen.Plan, resolutions)
	rec.Step("shopping list aggregated", "items", len(list.Items), "total_cost", list.TotalCost)

	return &Artifact{
		Targets:           targets,
		MealPlan:          gen.Plan,
		Resolutions:       resolutions,
		ShoppingList:      list,
		Provider:          gen.Provider,
		FailedIngredients: failed,
	}, nil
}

func recordMacroDeltas(rec *diagnostics.Recorder, plan *planner.MealPlan, perMeal nutrition.Targets) {
	target := diagnostics.Macros{
		Calories: float64(perMeal.Calories),
		Protein:  float64(perMeal.Protein),
		Fat:      float64(perMeal.Fat),
		Carbs:    float64(perMeal.Carbs),
	}
	for _, day := range plan.Days {
		for _, meal := range day.Meals {
			rec.MacroDelta(day.Day, meal.Name, target, diagnostics.Macros(meal.Macros))
		}
	}
}

func (c *Coordinator) saveDiagnostics(ctx context.Context, runID string, rec *diagnostics.Recorder) {
	raw, err := json.Marshal(rec.Snapshot())
	if err != nil {
		slog.Error("failed to marshal diagnostics", "run_id", runID, "error", err)
		return
	}
	if err := c.store.Set(ctx, runstore.DiagnosticsKey(runID), raw, c.ttl); err != nil {
		slog.Warn("failed to persist diagnostics", "run_id", runID, "error", err)
	}
}
