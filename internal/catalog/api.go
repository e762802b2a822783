package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// APIClient is a JSON catalog client.
//
//	GET {base}/products/search?q=&store=&max_results=
//	GET {base}/products/{id}/nutrition
type APIClient struct {
	apiKey  string
	baseURL string
	store   string
	client  *http.Client
	limiter *rate.Limiter
}

// NewAPIClient creates a catalog client limited to rps requests per second.
func NewAPIClient(baseURL, apiKey, store string, rps float64) *APIClient {
	return &APIClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		store:   store,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Search returns candidate products for an ingredient.
func (c *APIClient) Search(ctx context.Context, query string) ([]Product, error) {
	reqURL, err := url.Parse(c.baseURL + "/products/search")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	params := reqURL.Query()
	params.Add("q", query)
	params.Add("max_results", "20")
	if c.store != "" {
		params.Add("store", c.store)
	}
	reqURL.RawQuery = params.Encode()

	var apiResponse struct {
		Products []Product `json:"products"`
	}
	if err := c.getJSON(ctx, reqURL.String(), &apiResponse); err != nil {
		return nil, err
	}
	return apiResponse.Products, nil
}

// Nutrition returns nutrition facts for a product.
func (c *APIClient) Nutrition(ctx context.Context, productID string) (NutritionFacts, error) {
	var facts NutritionFacts
	err := c.getJSON(ctx, fmt.Sprintf("%s/products/%s/nutrition", c.baseURL, url.PathEscape(productID)), &facts)
	if err != nil {
		return NutritionFacts{}, err
	}
	facts.ProductID = productID
	return facts, nil
}

func (c *APIClient) getJSON(ctx context.Context, reqURL string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("catalog rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("catalog request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
