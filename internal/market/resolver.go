// Package market matches plan ingredients to store products.
package market

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"meal-plan-coordinator/internal/catalog"
	"meal-plan-coordinator/internal/planner"

	"golang.org/x/sync/errgroup"
)

// Status of an ingredient resolution.
type Status string

const (
	StatusMatched Status = "matched"
	StatusFailed  Status = "failed"
)

// Candidate is a ranked product option.
type Candidate struct {
	catalog.Product
	IsCheapest bool `json:"isCheapest"`
}

// Resolution is the outcome for one normalized ingredient.
type Resolution struct {
	Key         string                  `json:"key"`
	Status      Status                  `json:"status"`
	Reason      string                  `json:"reason,omitempty"`
	Product     *Candidate              `json:"product,omitempty"`
	Substitutes []Candidate             `json:"substitutes,omitempty"`
	Nutrition   *catalog.NutritionFacts `json:"nutrition,omitempty"`
}

// Recorder receives resolver diagnostics.
type Recorder interface {
	Step(message string, attrs ...any)
	FailedIngredient(ingredient, reason string)
}

// Resolver looks up every unique plan ingredient with a bounded worker pool.
type Resolver struct {
	catalog   catalog.Catalog
	nutrition *catalog.NutritionCache
	workers   int
}

// NewResolver creates a resolver running at most workers lookups at once.
// Nutrition lookups go through cache, which is shared across runs.
func NewResolver(c catalog.Catalog, cache *catalog.NutritionCache, workers int) *Resolver {
	if workers < 1 {
		workers = 1
	}
	if cache == nil {
		cache = catalog.NewNutritionCache(c)
	}
	return &Resolver{catalog: c, nutrition: cache, workers: workers}
}

// UniqueKeys returns the sorted normalized ingredient keys of plan.
func UniqueKeys(plan *planner.MealPlan) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, ing := range plan.Ingredients() {
		k := NormalizeName(ing.Name)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolve matches every unique ingredient of plan. A missing match becomes a
// failed Resolution and a diagnostics entry, never an error. onResolved, if
// set, is called once per ingredient from worker goroutines.
func (r *Resolver) Resolve(ctx context.Context, plan *planner.MealPlan, rec Recorder, onResolved func(Resolution)) (map[string]Resolution, error) {
	keys := UniqueKeys(plan)
	results := make(map[string]Resolution, len(keys))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := r.resolveOne(gctx, key, rec)
			if err := gctx.Err(); err != nil {
				return err
			}

			mu.Lock()
			results[key] = res
			mu.Unlock()

			if onResolved != nil {
				onResolved(res)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ingredient resolution interrupted: %w", err)
	}
	return results, nil
}

func (r *Resolver) resolveOne(ctx context.Context, key string, rec Recorder) Resolution {
	products, err := r.catalog.Search(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			return Resolution{Key: key, Status: StatusFailed, Reason: "cancelled"}
		}
		reason := fmt.Sprintf("catalog search failed: %v", err)
		rec.FailedIngredient(key, reason)
		return Resolution{Key: key, Status: StatusFailed, Reason: reason}
	}

	ranked := Rank(key, products)
	if len(ranked) == 0 {
		reason := fmt.Sprintf("no matching product among %d results", len(products))
		rec.FailedIngredient(key, reason)
		return Resolution{Key: key, Status: StatusFailed, Reason: reason}
	}

	res := Resolution{Key: key, Status: StatusMatched, Product: &ranked[0], Substitutes: ranked[1:]}

	facts, err := r.nutrition.Nutrition(ctx, ranked[0].ID)
	if err != nil {
		rec.Step("nutrition lookup failed", "ingredient", key, "product", ranked[0].ID, "error", err.Error())
	} else {
		res.Nutrition = &facts
	}
	return res
}

// Rank keeps products whose name shares at least one token with key and
// orders them by pack price, cheapest first, ties broken by product id. Only the first is marked cheapest.
func Rank(key string, products []catalog.Product) []Candidate {
	var ranked []Candidate
	for _, p := range products {
		if p.Price < 0 || sharedTokens(key, p.Name) == 0 {
			continue
		}
		ranked = append(ranked, Candidate{Product: p})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Price != ranked[j].Price {
			return ranked[i].Price < ranked[j].Price
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > 0 {
		ranked[0].IsCheapest = true
	}
	return ranked
}
