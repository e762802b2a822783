package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

// Selectors locate product data in a store's HTML pages.
type Selectors struct {
	Item      string // one search result
	Name      string
	Price     string
	Nutrient  string // elements carrying data-nutrient="calories|protein|fat|carbs"
	IDAttr    string
	SizeAttr  string
	UnitAttr  string
	CatAttr   string
	SearchURL string // path with %s for the escaped query
	ItemURL   string // path with %s for the escaped product id
}

// DefaultSelectors match the markup of the reference storefront.
var DefaultSelectors = Selectors{
	Item:      ".product-tile",
	Name:      ".product-name",
	Price:     ".product-price",
	Nutrient:  "[data-nutrient]",
	IDAttr:    "data-product-id",
	SizeAttr:  "data-pack-size",
	UnitAttr:  "data-pack-unit",
	CatAttr:   "data-category",
	SearchURL: "/search?q=%s",
	ItemURL:   "/product/%s",
}

// HTMLClient reads products from a storefront's rendered search pages.
type HTMLClient struct {
	baseURL string
	sel     Selectors
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTMLClient creates a scraping catalog limited to rps requests per second.
func NewHTMLClient(baseURL string, sel Selectors, rps float64) *HTMLClient {
	return &HTMLClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		sel:     sel,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Search scrapes the search results page for query.
func (c *HTMLClient) Search(ctx context.Context, query string) ([]Product, error) {
	doc, err := c.fetch(ctx, c.baseURL+fmt.Sprintf(c.sel.SearchURL, url.QueryEscape(query)))
	if err != nil {
		return nil, err
	}

	var products []Product
	doc.Find(c.sel.Item).Each(func(_ int, s *goquery.Selection) {
		id, ok := s.Attr(c.sel.IDAttr)
		if !ok || id == "" {
			return
		}
		price, err := ParseNumber(s.Find(c.sel.Price).First().Text())
		if err != nil {
			return
		}
		size, _ := strconv.ParseFloat(s.AttrOr(c.sel.SizeAttr, "1"), 64)
		products = append(products, Product{
			ID:       id,
			Name:     strings.TrimSpace(s.Find(c.sel.Name).First().Text()),
			Price:    price,
			PackSize: size,
			PackUnit: s.AttrOr(c.sel.UnitAttr, "unit"),
			Category: s.AttrOr(c.sel.CatAttr, ""),
		})
	})
	return products, nil
}

// Nutrition scrapes the nutrition table of a product page.
func (c *HTMLClient) Nutrition(ctx context.Context, productID string) (NutritionFacts, error) {
	doc, err := c.fetch(ctx, c.baseURL+fmt.Sprintf(c.sel.ItemURL, url.PathEscape(productID)))
	if err != nil {
		return NutritionFacts{}, err
	}

	facts := NutritionFacts{ProductID: productID}
	found := 0
	doc.Find(c.sel.Nutrient).Each(func(_ int, s *goquery.Selection) {
		v, err := ParseNumber(s.Text())
		if err != nil {
			return
		}
		switch s.AttrOr("data-nutrient", "") {
		case "calories":
			facts.Calories = v
		case "protein":
			facts.Protein = v
		case "fat":
			facts.Fat = v
		case "carbs":
			facts.Carbs = v
		default:
			return
		}
		found++
	})
	if found == 0 {
		return NutritionFacts{}, fmt.Errorf("no nutrition table for product %s", productID)
	}
	return facts, nil
}

func (c *HTMLClient) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("catalog rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch URL: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	// Promotions and tracking markup can carry fake product tiles.
	doc.Find("script, style, nav, footer, iframe, .ads, #ads").Each(func(_ int, s *goquery.Selection) {
		s.Remove()
	})
	return doc, nil
}
