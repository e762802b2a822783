package planner

import (
	"errors"
	"fmt"
)

// ErrInvalidPlan is returned when a generated plan does not match the requested shape.
var ErrInvalidPlan = errors.New("invalid meal plan")

// Ingredient is one line of a meal's ingredient list.
type Ingredient struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// Macros are per-meal nutrition subtotals.
type Macros struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Fat      float64 `json:"fat"`
	Carbs    float64 `json:"carbs"`
}

// Meal is a single eating occasion.
type Meal struct {
	Name        string       `json:"name"`
	Type        string       `json:"type,omitempty"`
	Description string       `json:"description,omitempty"`
	Ingredients []Ingredient `json:"ingredients"`
	Macros      Macros       `json:"macros"`
}

// DayPlan represents the plan for a single day.
type DayPlan struct {
	Day   int    `json:"day"`
	Meals []Meal `json:"meals"`
}

// MealPlan is an ordered list of days.
type MealPlan struct {
	Days []DayPlan `json:"days"`
}

// ValidatePlan checks a plan against the requested day and meal counts.
func ValidatePlan(plan *MealPlan, dayCount, mealsPerDay int) error {
	if plan == nil {
		return fmt.Errorf("%w: empty plan", ErrInvalidPlan)
	}
	if len(plan.Days) != dayCount {
		return fmt.Errorf("%w: expected %d days, got %d", ErrInvalidPlan, dayCount, len(plan.Days))
	}

	for i, day := range plan.Days {
		if day.Day != i+1 {
			return fmt.Errorf("%w: day %d is numbered %d", ErrInvalidPlan, i+1, day.Day)
		}
		if len(day.Meals) != mealsPerDay {
			return fmt.Errorf("%w: day %d has %d meals, expected %d", ErrInvalidPlan, day.Day, len(day.Meals), mealsPerDay)
		}
		for j, meal := range day.Meals {
			if meal.Name == "" {
				return fmt.Errorf("%w: day %d meal %d has no name", ErrInvalidPlan, day.Day, j+1)
			}
			m := meal.Macros
			if m.Calories < 0 || m.Protein < 0 || m.Fat < 0 || m.Carbs < 0 {
				return fmt.Errorf("%w: %q has negative macros", ErrInvalidPlan, meal.Name)
			}
			if len(meal.Ingredients) == 0 {
				return fmt.Errorf("%w: %q has no ingredients", ErrInvalidPlan, meal.Name)
			}
			for _, ing := range meal.Ingredients {
				if ing.Name == "" || ing.Quantity <= 0 {
					return fmt.Errorf("%w: %q has an ingredient without name or quantity", ErrInvalidPlan, meal.Name)
				}
			}
		}
	}
	return nil
}

// ClampDay returns day if it addresses a day of plan, otherwise 1.
func ClampDay(day int, plan *MealPlan) int {
	if plan == nil || day < 1 || day > len(plan.Days) {
		return 1
	}
	return day
}

// DayAt returns the 1-based day, clamped into range.
func (p *MealPlan) DayAt(day int) (DayPlan, bool) {
	if len(p.Days) == 0 {
		return DayPlan{}, false
	}
	return p.Days[ClampDay(day, p)-1], true
}

// Ingredients returns every ingredient line of the plan in day and meal order.
func (p *MealPlan) Ingredients() []Ingredient {
	var out []Ingredient
	for _, d := range p.Days {
		for _, m := range d.Meals {
			out = append(out, m.Ingredients...)
		}
	}
	return out
}
