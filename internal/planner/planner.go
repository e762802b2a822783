package planner

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"text/template"

	"meal-plan-coordinator/internal/fallback"
	"meal-plan-coordinator/internal/llm"
	"meal-plan-coordinator/internal/nutrition"
	"meal-plan-coordinator/internal/shared"
)

//go:embed planner_prompt.md
var plannerPrompt string

var plannerTmpl = template.Must(template.New("planner").Parse(plannerPrompt))

const agentName = "Planner"

// GenerationResult is a validated plan plus where it came from.
type GenerationResult struct {
	Plan     *MealPlan
	Provider string
	Metas    []shared.AgentMeta
	Failures []fallback.Failure
}

// Planner generates meal plans through the provider gateway.
type Planner struct {
	gateway *llm.Gateway
}

// NewPlanner creates a new Planner instance.
func NewPlanner(gateway *llm.Gateway) *Planner {
	return &Planner{gateway: gateway}
}

type promptData struct {
	nutrition.Profile
	Targets nutrition.Targets
	PerMeal nutrition.Targets
}

// GeneratePlan asks the gateway for a plan matching profile and targets.
// Responses with the wrong shape are rejected and the next provider is tried.
func (p *Planner) GeneratePlan(ctx context.Context, profile nutrition.Profile, targets nutrition.Targets) (GenerationResult, error) {
	prompt, err := BuildPrompt(profile, targets)
	if err != nil {
		return GenerationResult{}, err
	}

	decode := func(content string) (*MealPlan, error) {
		var plan MealPlan
		if err := json.Unmarshal([]byte(llm.CleanJSON(content)), &plan); err != nil {
			return nil, fmt.Errorf("failed to parse MealPlan: %w", err)
		}
		if err := ValidatePlan(&plan, profile.DayCount, profile.MealsPerDay); err != nil {
			return nil, err
		}
		return &plan, nil
	}

	res, err := llm.Generate(ctx, p.gateway, agentName, prompt, decode)
	if err != nil {
		return GenerationResult{Metas: res.Meta, Failures: res.Failures}, fmt.Errorf("failed to generate meal plan: %w", err)
	}

	return GenerationResult{Plan: res.Value, Provider: res.Provider, Metas: res.Meta, Failures: res.Failures}, nil
}

// BuildPrompt renders the planner prompt template.
func BuildPrompt(profile nutrition.Profile, targets nutrition.Targets) (string, error) {
	var buf bytes.Buffer
	data := promptData{
		Profile: profile,
		Targets: targets,
		PerMeal: nutrition.PerMeal(targets, profile.MealsPerDay),
	}
	if err := plannerTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render planner prompt: %w", err)
	}
	return buf.String(), nil
}
