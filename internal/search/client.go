// Package search abstracts the web-search provider. Zero results is a
// legitimate response, not an error.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-ai/researchd/internal/config"
	"github.com/kestrel-ai/researchd/internal/models"
)

// Client is the search capability used by the orchestrator.
type Client interface {
	Search(ctx context.Context, query string, limit int) ([]models.Source, error)
}

// SerpClient queries a SerpAPI-compatible endpoint for Google organic results.
type SerpClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSerpClient builds a client from configuration.
func NewSerpClient(cfg config.Search, logger *zap.Logger) *SerpClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &SerpClient{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type serpResponse struct {
	OrganicResults []struct {
		Title string `json:"title"`
		Link  string `json:"link"`
	} `json:"organic_results"`
}

// Search implements Client. A missing API key or a non-2xx provider response
// yields zero results rather than an error; only transport failures surface
// as errors for the retry policy to account.
func (c *SerpClient) Search(ctx context.Context, query string, limit int) ([]models.Source, error) {
	if c.apiKey == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("engine", "google")
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call search provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Search provider returned non-OK status",
			zap.Int("status", resp.StatusCode),
			zap.String("query", query),
		)
		return nil, nil
	}

	var data serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := data.OrganicResults
	if len(results) > limit {
		results = results[:limit]
	}
	sources := make([]models.Source, 0, len(results))
	for _, item := range results {
		if item.Link == "" {
			continue
		}
		sources = append(sources, models.Source{
			Title:    item.Title,
			Type:     "web",
			Location: item.Link,
		})
	}
	return sources, nil
}
