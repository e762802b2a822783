package catalog

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// NutritionCache wraps a Catalog so each product's nutrition is fetched at
// most once. Concurrent lookups for the same id share one call.
type NutritionCache struct {
	Catalog
	mu    sync.RWMutex
	facts map[string]NutritionFacts
	group singleflight.Group
}

// NewNutritionCache creates a cache in front of c.
func NewNutritionCache(c Catalog) *NutritionCache {
	return &NutritionCache{
		Catalog: c,
		facts:   make(map[string]NutritionFacts),
	}
}

// Nutrition returns cached facts, calling the catalog on a miss.
// Failures are not cached.
func (c *NutritionCache) Nutrition(ctx context.Context, productID string) (NutritionFacts, error) {
	c.mu.RLock()
	f, ok := c.facts[productID]
	c.mu.RUnlock()
	if ok {
		return f, nil
	}

	v, err, _ := c.group.Do(productID, func() (interface{}, error) {
		c.mu.RLock()
		f, ok := c.facts[productID]
		c.mu.RUnlock()
		if ok {
			return f, nil
		}

		f, err := c.Catalog.Nutrition(ctx, productID)
		if err != nil {
			return NutritionFacts{}, err
		}
		c.mu.Lock()
		c.facts[productID] = f
		c.mu.Unlock()
		return f, nil
	})
	if err != nil {
		return NutritionFacts{}, err
	}
	return v.(NutritionFacts), nil
}

// Len reports how many products are cached.
func (c *NutritionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.facts)
}
