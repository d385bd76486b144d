package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/tracing"
	"go.uber.org/zap"
)

const defaultSearxngResults = 6

// SearxngConfig configures the SearXNG provider.
type SearxngConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxResults int
}

// Searxng queries a SearXNG instance through its JSON API.
type Searxng struct {
	baseURL    string
	maxResults int
	http       *circuitbreaker.HTTPWrapper
	logger     *zap.Logger
}

// NewSearxng builds a provider whose HTTP calls run behind a circuit breaker.
func NewSearxng(cfg SearxngConfig, logger *zap.Logger) *Searxng {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultSearxngResults
	}
	client := &http.Client{Timeout: cfg.Timeout}
	return &Searxng{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxResults: cfg.MaxResults,
		http:       circuitbreaker.NewHTTPWrapper(client, "searxng", "search", logger),
		logger:     logger,
	}
}

type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search runs a link search. Images are not requested; the image endpoint is too slow to
// sit on the critical path.
func (s *Searxng) Search(ctx context.Context, query string, timeRange TimeRange) (SearchResponse, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	if timeRange.Valid() {
		params.Set("time_range", string(timeRange))
	}
	endpoint := fmt.Sprintf("%s/search?%s", s.baseURL, params.Encode())

	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodGet, endpoint)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := s.http.Do(req)
	if err != nil {
		return SearchResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return SearchResponse{}, fmt.Errorf("searxng returned status %d", resp.StatusCode)
	}

	var raw searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return SearchResponse{}, fmt.Errorf("decode searxng response: %w", err)
	}

	out := SearchResponse{Results: make([]SearchResult, 0, s.maxResults), Images: []string{}}
	for i, r := range raw.Results {
		if i >= s.maxResults {
			break
		}
		if r.URL == "" {
			continue
		}
		out.Results = append(out.Results, SearchResult{Title: r.Title, URL: r.URL, Content: r.Content})
	}
	s.logger.Debug("SearXNG search complete",
		zap.String("query", query),
		zap.String("time_range", string(timeRange)),
		zap.Int("results", len(out.Results)),
	)
	return out, nil
}
