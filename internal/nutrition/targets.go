// Package nutrition computes daily calorie and macro targets from a user profile.
package nutrition

import (
	"fmt"
	"math"
)

// Profile holds the user inputs a plan is generated from.
type Profile struct {
	HeightCm          float64 `json:"heightCm"`
	WeightKg          float64 `json:"weightKg"`
	Age               int     `json:"age"`
	Sex               string  `json:"sex"`
	ActivityLevel     string  `json:"activityLevel"`
	Goal              string  `json:"goal"`
	DietaryPreference string  `json:"dietaryPreference"`
	DayCount          int     `json:"dayCount"`
	MealsPerDay       int     `json:"mealsPerDay"`
	Store             string  `json:"store,omitempty"`
	CostPriority      string  `json:"costPriority,omitempty"`
	Variety           string  `json:"variety,omitempty"`
	CuisineNotes      string  `json:"cuisineNotes,omitempty"`
}

// Targets are daily integer goals.
type Targets struct {
	Calories int `json:"calories"`
	Protein  int `json:"protein"`
	Fat      int `json:"fat"`
	Carbs    int `json:"carbs"`
}

var activityMultipliers = map[string]float64{
	"sedentary":   1.2,
	"light":       1.375,
	"moderate":    1.55,
	"active":      1.725,
	"very_active": 1.9,
}

var goalAdjustments = map[string]float64{
	"maintain":        0,
	"moderate_cut":    -0.15,
	"aggressive_cut":  -0.25,
	"lean_bulk":       0.15,
	"aggressive_bulk": 0.25,
}

// macroSplit is the share of calories from protein, fat and carbs.
type macroSplit struct {
	protein, fat, carbs float64
}

var dietSplits = map[string]macroSplit{
	"balanced":      {0.30, 0.30, 0.40},
	"high_protein":  {0.40, 0.30, 0.30},
	"low_carb":      {0.35, 0.40, 0.25},
	"keto":          {0.25, 0.70, 0.05},
	"vegetarian":    {0.25, 0.30, 0.45},
	"vegan":         {0.20, 0.30, 0.50},
	"mediterranean": {0.25, 0.35, 0.40},
}

var costPriorities = map[string]bool{"": true, "low": true, "balanced": true, "premium": true}
var varieties = map[string]bool{"": true, "low": true, "medium": true, "high": true}

// Validate reports the first invalid field of p.
func (p Profile) Validate() error {
	switch {
	case p.HeightCm < 100 || p.HeightCm > 250:
		return fmt.Errorf("heightCm must be between 100 and 250")
	case p.WeightKg < 30 || p.WeightKg > 300:
		return fmt.Errorf("weightKg must be between 30 and 300")
	case p.Age < 14 || p.Age > 100:
		return fmt.Errorf("age must be between 14 and 100")
	case p.Sex != "male" && p.Sex != "female":
		return fmt.Errorf("sex must be male or female")
	case p.DayCount < 1 || p.DayCount > 14:
		return fmt.Errorf("dayCount must be between 1 and 14")
	case p.MealsPerDay < 1 || p.MealsPerDay > 6:
		return fmt.Errorf("mealsPerDay must be between 1 and 6")
	case !costPriorities[p.CostPriority]:
		return fmt.Errorf("unknown costPriority %q", p.CostPriority)
	case !varieties[p.Variety]:
		return fmt.Errorf("unknown variety %q", p.Variety)
	}
	if _, ok := activityMultipliers[p.ActivityLevel]; !ok {
		return fmt.Errorf("unknown activityLevel %q", p.ActivityLevel)
	}
	if _, ok := goalAdjustments[p.Goal]; !ok {
		return fmt.Errorf("unknown goal %q", p.Goal)
	}
	if _, ok := dietSplits[p.DietaryPreference]; !ok {
		return fmt.Errorf("unknown dietaryPreference %q", p.DietaryPreference)
	}
	return nil
}

// BMR returns the Mifflin-St Jeor basal metabolic rate in kcal.
func BMR(p Profile) float64 {
	base := 10*p.WeightKg + 6.25*p.HeightCm - 5*float64(p.Age)
	if p.Sex == "female" {
		return base - 161
	}
	return base + 5
}

// Calculate derives daily targets. It is deterministic for a given profile.
func Calculate(p Profile) (Targets, error) {
	if err := p.Validate(); err != nil {
		return Targets{}, err
	}

	tdee := BMR(p) * activityMultipliers[p.ActivityLevel]
	calories := tdee * (1 + goalAdjustments[p.Goal])
	split := dietSplits[p.DietaryPreference]

	return Targets{
		Calories: round(calories),
		Protein:  round(calories * split.protein / 4),
		Fat:      round(calories * split.fat / 9),
		Carbs:    round(calories * split.carbs / 4),
	}, nil
}

// PerMeal splits daily targets evenly across meals.
func PerMeal(t Targets, meals int) Targets {
	if meals <= 0 {
		return t
	}
	n := float64(meals)
	return Targets{
		Calories: round(float64(t.Calories) / n),
		Protein:  round(float64(t.Protein) / n),
		Fat:      round(float64(t.Fat) / n),
		Carbs:    round(float64(t.Carbs) / n),
	}
}

func round(v float64) int {
	return int(math.Round(v))
}
