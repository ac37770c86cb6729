package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a fetched model catalog stays fresh.
const DefaultCacheTTL = time.Hour

// ModelPricing holds per-token unit prices as decimal strings.
type ModelPricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// Model describes one available model from the catalog.
type Model struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	ContextLength int          `json:"context_length"`
	Pricing       ModelPricing `json:"pricing"`
	IsFree        bool         `json:"is_free"`
}

// ModelCache holds a fetched catalog with its fetch time and TTL. The clock
// is a field so tests can control expiry.
type ModelCache struct {
	mu        sync.Mutex
	entries   []Model
	fetchedAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

// NewModelCache creates an empty cache with the given TTL.
func NewModelCache(ttl time.Duration) *ModelCache {
	return &ModelCache{
		ttl: ttl,
		now: time.Now,
	}
}

// SetClock replaces the cache's time source (for tests).
func (c *ModelCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// get returns the cached entries and whether they are still fresh.
func (c *ModelCache) get() ([]Model, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return nil, false
	}
	return c.entries, c.now().Sub(c.fetchedAt) < c.ttl
}

// put replaces the cached entries and stamps the fetch time.
func (c *ModelCache) put(entries []Model) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries
	c.fetchedAt = c.now()
}

// modelsResponse is the wire shape of GET /models.
type modelsResponse struct {
	Data []struct {
		ID            string       `json:"id"`
		Name          string       `json:"name"`
		ContextLength int          `json:"context_length"`
		Pricing       ModelPricing `json:"pricing"`
	} `json:"data"`
}

// ListModels returns the available models, each enriched with an IsFree flag.
// Results are cached for the cache's TTL; on upstream failure the stale cache
// (possibly empty) is returned rather than an error.
func (c *Client) ListModels(ctx context.Context) []Model {
	if cached, fresh := c.cache.get(); fresh {
		return cached
	}

	models, err := c.fetchModels(ctx)
	if err != nil {
		slog.Warn("Failed to fetch model catalog, serving stale cache", "error", err)
		stale, _ := c.cache.get()
		return stale
	}

	c.cache.put(models)
	return models
}

func (c *Client) fetchModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, newAPIError(resp.StatusCode, errBody)
	}

	var parsed modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode models: %w", err)
	}

	models := make([]Model, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, Model{
			ID:            m.ID,
			Name:          m.Name,
			ContextLength: m.ContextLength,
			Pricing:       m.Pricing,
			IsFree:        isFree(m.Pricing),
		})
	}

	return models, nil
}

// isFree reports whether both unit prices parse to exactly zero.
func isFree(p ModelPricing) bool {
	prompt, err := strconv.ParseFloat(p.Prompt, 64)
	if err != nil {
		return false
	}
	completion, err := strconv.ParseFloat(p.Completion, 64)
	if err != nil {
		return false
	}
	return prompt == 0.0 && completion == 0.0
}
