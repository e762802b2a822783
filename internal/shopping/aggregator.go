package shopping

import (
	"math"
	"sort"
	"strings"

	"meal-plan-coordinator/internal/market"
	"meal-plan-coordinator/internal/planner"
)

// categoryKeywords is checked in order; the first keyword found in an
// ingredient name decides its category.
var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"frozen", []string{"frozen"}},
	{"meat & fish", []string{"chicken", "beef", "pork", "turkey", "lamb", "salmon", "tuna", "cod", "shrimp", "prawn", "fish", "mince", "steak", "bacon", "ham"}},
	{"dairy & eggs", []string{"milk", "cheese", "yogurt", "yoghurt", "butter", "cream", "egg", "kefir", "skyr"}},
	{"bakery", []string{"bread", "bagel", "tortilla", "wrap", "pita", "bun", "roll"}},
	{"produce", []string{"apple", "banana", "berry", "berries", "spinach", "lettuce", "tomato", "onion", "garlic", "pepper", "carrot", "broccoli", "potato", "lemon", "lime", "avocado", "cucumber", "zucchini", "mushroom", "kale", "herb", "basil", "parsley", "ginger", "fruit"}},
	{"pantry", []string{"rice", "oat", "pasta", "flour", "oil", "bean", "lentil", "chickpea", "quinoa", "sugar", "salt", "spice", "sauce", "stock", "broth", "honey", "nut", "seed", "vinegar", "tofu", "powder"}},
}

// Categorize assigns a store section from an ingredient name.
func Categorize(name string) string {
	words := make(map[string]bool)
	for _, t := range strings.Fields(market.NormalizeName(name)) {
		words[t] = true
		words[strings.TrimSuffix(t, "s")] = true
		words[strings.TrimSuffix(t, "es")] = true
	}
	for _, c := range categoryKeywords {
		for _, w := range c.words {
			if words[w] {
				return c.category
			}
		}
	}
	return "other"
}

// LineKey identifies a merged line: ingredient key plus base unit.
func LineKey(name, unit string) string {
	return name + "|" + unit
}

// Aggregate merges every ingredient of plan by normalized name and unit and
// prices each line from its resolution.
func Aggregate(plan *planner.MealPlan, resolutions map[string]market.Resolution) ShoppingList {
	list := ShoppingList{
		Items:      make(map[string]LineItem),
		Categories: make(map[string][]string),
	}

	for _, ing := range plan.Ingredients() {
		name := market.NormalizeName(ing.Name)
		if name == "" {
			continue
		}
		qty, unit := market.NormalizeQuantity(ing.Quantity, ing.Unit)
		key := LineKey(name, unit)

		item, ok := list.Items[key]
		if !ok {
			item = LineItem{Key: key, Name: name, Unit: unit}
		}
		item.Quantity += qty
		list.Items[key] = item
	}

	var total float64
	for key, item := range list.Items {
		res, ok := resolutions[item.Name]
		if !ok || res.Status != market.StatusMatched || res.Product == nil {
			item.Unresolved = true
			item.Cost = 0
			item.Category = Categorize(item.Name)
		} else {
			item.Product = res.Product
			item.Cost, item.UnitMismatch = lineCost(res.Product, item.Quantity, item.Unit)
			item.Category = res.Product.Category
			if item.Category == "" {
				item.Category = Categorize(item.Name)
			}
		}
		total += item.Cost
		list.Items[key] = item
		list.Categories[item.Category] = append(list.Categories[item.Category], key)
	}

	for _, keys := range list.Categories {
		sort.Strings(keys)
	}
	list.TotalCost = roundCents(total)
	return list
}

// lineCost prices qty of unit from product's pack. When the pack is sold in
// a different unit the line costs one pack.
func lineCost(p *market.Candidate, qty float64, unit string) (float64, bool) {
	size := p.PackSize
	if size <= 0 {
		size = 1
	}
	packQty, packUnit := market.NormalizeQuantity(size, p.PackUnit)
	if packUnit != unit || packQty <= 0 {
		return roundCents(p.Price), true
	}
	return roundCents(p.Price / packQty * qty), false
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
