package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"meal-plan-coordinator/internal/catalog"
	"meal-plan-coordinator/internal/market"
	"meal-plan-coordinator/internal/nutrition"
	"meal-plan-coordinator/internal/planner"
	"meal-plan-coordinator/internal/run"
	"meal-plan-coordinator/internal/shopping"
)

func TestRenderArtifact(t *testing.T) {
	plan := &planner.MealPlan{Days: []planner.DayPlan{{Day: 1, Meals: []planner.Meal{{
		Name:        "Chicken Bowl",
		Macros:      planner.Macros{Calories: 650},
		Ingredients: []planner.Ingredient{{Name: "chicken breast", Quantity: 1200, Unit: "g"}, {Name: "saffron", Quantity: 1, Unit: "g"}},
	}}}}}
	resolutions := map[string]market.Resolution{
		"chicken breast": {Key: "chicken breast", Status: market.StatusMatched, Product: &market.Candidate{
			Product: catalog.Product{ID: "c", Name: "Chicken", Price: 1000, PackSize: 1, PackUnit: "kg"},
		}},
	}
	a := &run.Artifact{
		Targets:           nutrition.Targets{Calories: 2400, Protein: 180, Fat: 70, Carbs: 250},
		MealPlan:          plan,
		ShoppingList:      shopping.Aggregate(plan, resolutions),
		Provider:          "groq",
		FailedIngredients: 1,
	}

	out := RenderArtifact(a)
	for _, want := range []string{"2400 kcal", "groq", "Chicken Bowl", "1,200", "(not found)", "1 ingredients could not be priced"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()

	t.Run("Valid", func(t *testing.T) {
		path := filepath.Join(dir, "profile.json")
		os.WriteFile(path, []byte(`{"heightCm":180,"weightKg":80,"age":30,"sex":"male","dayCount":3,"mealsPerDay":2}`), 0644)
		p, err := loadProfile(path)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if p.DayCount != 3 || p.Sex != "male" {
			t.Errorf("Expected parsed profile, got %+v", p)
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		os.WriteFile(path, []byte(`{`), 0644)
		if _, err := loadProfile(path); err == nil {
			t.Error("Expected parse error")
		}
	})

	t.Run("Missing", func(t *testing.T) {
		if _, err := loadProfile(filepath.Join(dir, "nope.json")); err == nil {
			t.Error("Expected read error")
		}
	})
}
