// Package catalog talks to a grocery store's product catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrNotFound is returned when a product id is unknown to the catalog.
var ErrNotFound = errors.New("product not found")

// Product is one store item that can satisfy an ingredient.
type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	PackSize float64 `json:"packSize"`
	PackUnit string  `json:"packUnit"`
	Category string  `json:"category,omitempty"`
}

// UnitPrice is the price per PackUnit. A missing pack size counts as one unit.
func (p Product) UnitPrice() float64 {
	if p.PackSize <= 0 {
		return p.Price
	}
	return p.Price / p.PackSize
}

// NutritionFacts are per-100g (or per-100ml) values for a product.
type NutritionFacts struct {
	ProductID string  `json:"productId"`
	Calories  float64 `json:"calories"`
	Protein   float64 `json:"protein"`
	Fat       float64 `json:"fat"`
	Carbs     float64 `json:"carbs"`
}

// Catalog searches products and looks up their nutrition.
type Catalog interface {
	Search(ctx context.Context, query string) ([]Product, error)
	Nutrition(ctx context.Context, productID string) (NutritionFacts, error)
}

var numberRe = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// ParseNumber extracts the first decimal number from text like "$3.50", "2,20 €" or "12.5 g".
func ParseNumber(s string) (float64, error) {
	m := numberRe.FindString(s)
	if m == "" {
		return 0, fmt.Errorf("no number in %q", s)
	}
	return strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
}
