package search

import (
	"context"
	"time"

	ometrics "github.com/Kocoro-lab/Shannon/go/prosearch/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Aggregator fans a batch of queries out to a provider and merges the answers.
type Aggregator struct {
	provider Provider
	logger   *zap.Logger
}

// NewAggregator builds an aggregator. The provider is expected to be a SafeProvider;
// any error that still leaks out is treated as an empty response.
func NewAggregator(provider Provider, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{provider: provider, logger: logger}
}

// Search issues every query concurrently, waits for all of them and returns
// the interleaved, url-deduplicated results plus the first-seen union of images.
func (a *Aggregator) Search(ctx context.Context, queries []string, timeRange TimeRange) ([]SearchResult, []string) {
	ctx, span := tracing.StartSpan(ctx, "search.aggregate")
	defer span.End()
	span.SetAttributes(attribute.Int("queries", len(queries)))

	start := time.Now()
	responses := make([]SearchResponse, len(queries))

	var g errgroup.Group
	for i, q := range queries {
		g.Go(func() error {
			resp, err := a.provider.Search(ctx, q, timeRange)
			if err != nil {
				a.logger.Warn("Search call failed inside aggregate", zap.String("query", q), zap.Error(err))
				return nil
			}
			responses[i] = resp
			return nil
		})
	}
	_ = g.Wait()

	lists := make([][]SearchResult, len(responses))
	imageLists := make([][]string, len(responses))
	for i, r := range responses {
		lists[i] = r.Results
		imageLists[i] = r.Images
	}

	results := Dedupe(Interleave(lists))
	images := UnionImages(imageLists)

	ometrics.AggregateDuration.Observe(time.Since(start).Seconds())
	a.logger.Debug("Aggregated search results",
		zap.Int("queries", len(queries)),
		zap.Int("results", len(results)),
		zap.Int("images", len(images)),
	)
	span.SetAttributes(attribute.Int("results", len(results)))
	return results, images
}

// Interleave visits position 0 of every list, then position 1, and so on,
// skipping lists once they are exhausted.
func Interleave(lists [][]SearchResult) []SearchResult {
	longest, total := 0, 0
	for _, l := range lists {
		total += len(l)
		if len(l) > longest {
			longest = len(l)
		}
	}
	out := make([]SearchResult, 0, total)
	for pos := 0; pos < longest; pos++ {
		for _, l := range lists {
			if pos < len(l) {
				out = append(out, l[pos])
			}
		}
	}
	return out
}

// UnionImages merges image lists keeping first-seen order.
func UnionImages(lists [][]string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, l := range lists {
		for _, img := range l {
			if _, ok := seen[img]; ok {
				continue
			}
			seen[img] = struct{}{}
			out = append(out, img)
		}
	}
	return out
}
