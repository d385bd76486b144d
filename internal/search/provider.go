package search

import (
	"context"
	"fmt"
	"time"

	ometrics "github.com/Kocoro-lab/Shannon/go/prosearch/internal/metrics"
	"go.uber.org/zap"
)

// Provider turns a query into ranked links and images.
type Provider interface {
	Search(ctx context.Context, query string, timeRange TimeRange) (SearchResponse, error)
}

// SearchProviderError describes a failed backend call. It never escapes SafeProvider.
type SearchProviderError struct {
	Provider string
	Query    string
	Err      error
}

func (e *SearchProviderError) Error() string {
	return fmt.Sprintf("search provider %s failed for %q: %v", e.Provider, e.Query, e.Err)
}

func (e *SearchProviderError) Unwrap() error { return e.Err }

// SafeProvider wraps a Provider so that failures degrade to an empty response.
type SafeProvider struct {
	name   string
	inner  Provider
	logger *zap.Logger
}

// NewSafeProvider wraps inner; name labels logs and metrics.
func NewSafeProvider(name string, inner Provider, logger *zap.Logger) *SafeProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SafeProvider{name: name, inner: inner, logger: logger}
}

// Search never returns an error; the signature matches Provider so it can be nested.
func (p *SafeProvider) Search(ctx context.Context, query string, timeRange TimeRange) (SearchResponse, error) {
	start := time.Now()
	resp, err := p.inner.Search(ctx, query, timeRange)
	ometrics.SearchLatency.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
	if err != nil {
		perr := &SearchProviderError{Provider: p.name, Query: query, Err: err}
		ometrics.SearchErrors.WithLabelValues(p.name).Inc()
		p.logger.Warn("Search failed, continuing with empty results",
			zap.String("provider", p.name),
			zap.String("query", query),
			zap.Error(perr),
		)
		return SearchResponse{Results: []SearchResult{}, Images: []string{}}, nil
	}
	if resp.Results == nil {
		resp.Results = []SearchResult{}
	}
	if resp.Images == nil {
		resp.Images = []string{}
	}
	ometrics.SearchResults.WithLabelValues(p.name).Observe(float64(len(resp.Results)))
	return resp, nil
}
