package shopping

import (
	"sort"
	"time"

	"meal-plan-coordinator/internal/market"
)

// LineItem is one merged shopping list entry.
type LineItem struct {
	Key          string            `json:"key"`
	Name         string            `json:"name"`
	Quantity     float64           `json:"quantity"`
	Unit         string            `json:"unit"`
	Product      *market.Candidate `json:"product,omitempty"`
	Category     string            `json:"category"`
	Cost         float64           `json:"cost"`
	Unresolved   bool              `json:"unresolved,omitempty"`
	UnitMismatch bool              `json:"unitMismatch,omitempty"`
}

// ShoppingList is the deduplicated list for a whole plan.
type ShoppingList struct {
	Items      map[string]LineItem `json:"items"`
	Categories map[string][]string `json:"categories"`
	TotalCost  float64             `json:"totalCost"`
}

// Sorted returns the items ordered by category, then key.
func (l ShoppingList) Sorted() []LineItem {
	items := make([]LineItem, 0, len(l.Items))
	for _, it := range l.Items {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Category != items[j].Category {
			return items[i].Category < items[j].Category
		}
		return items[i].Key < items[j].Key
	})
	return items
}

// Unresolved returns the keys of items without a product.
func (l ShoppingList) Unresolved() []string {
	var keys []string
	for k, it := range l.Items {
		if it.Unresolved {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// SavedList is a shopping list stored with a saved plan.
type SavedList struct {
	PlanID    string       `json:"planId"`
	UserID    string       `json:"userId"`
	List      ShoppingList `json:"list"`
	CreatedAt time.Time    `json:"createdAt"`
}
