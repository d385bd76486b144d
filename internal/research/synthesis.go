package research

import (
	"context"
	"fmt"
	"strings"

	ometrics "github.com/Kocoro-lab/Shannon/go/prosearch/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/search"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/streaming"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	// CitationTarget is the number of results shown as citations for a multi-step answer.
	CitationTarget = 12
	// ImagesPerDependency caps images taken from each dependency.
	ImagesPerDependency = 2
)

// DistributeResults spreads CitationTarget results evenly over deps. The per-dependency
// cap is min(CitationTarget/n, total/n); a cap of zero contributes nothing. Results are
// url-deduplicated after concatenation; images are not.
func DistributeResults(deps []int, results map[int][]search.SearchResult, images map[int][]string) ([]search.SearchResult, []string) {
	n := len(deps)
	if n == 0 {
		return []search.SearchResult{}, []string{}
	}
	total := 0
	for _, id := range deps {
		total += len(results[id])
	}
	perDep := min(CitationTarget/n, total/n)

	capped := make([]search.SearchResult, 0, CitationTarget)
	imgs := make([]string, 0, n*ImagesPerDependency)
	for _, id := range deps {
		rs := results[id]
		capped = append(capped, rs[:min(perDep, len(rs))]...)
		is := images[id]
		imgs = append(imgs, is[:min(ImagesPerDependency, len(is))]...)
	}
	return search.Dedupe(capped), imgs
}

// ResponseSynthesizer streams the final answer and the closing events shared by both modes.
type ResponseSynthesizer struct {
	answerer AnswerStreamer
	related  *RelatedQuestions
	logger   *zap.Logger
}

func NewResponseSynthesizer(answerer AnswerStreamer, related *RelatedQuestions, logger *zap.Logger) *ResponseSynthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseSynthesizer{answerer: answerer, related: related, logger: logger}
}

// Synthesize starts the related-question prefetch, emits the citation results, forwards
// answer deltas as they arrive, then closes the stream. buildContext runs after the
// prefetch is launched so prompt assembly overlaps with it.
func (s *ResponseSynthesizer) Synthesize(
	ctx context.Context,
	query string,
	results []search.SearchResult,
	images []string,
	buildContext func() string,
	sink streaming.Sink,
) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "research.synthesize")
	defer span.End()

	// the prefetch is cancelled on every return path
	relatedCtx, cancelRelated := context.WithCancel(ctx)
	defer cancelRelated()
	pending := s.related.Prefetch(relatedCtx, query, results)

	if err := sink.Emit(ctx, streaming.NewSearchResults(results, images)); err != nil {
		return "", err
	}

	prompt := fmt.Sprintf(chatPrompt, buildContext(), query)
	var full strings.Builder
	chunks := 0
	for delta, err := range s.answerer.Stream(ctx, prompt) {
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", &SynthesisError{Err: err}
		}
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		chunks++
		ometrics.TextChunks.Inc()
		if err := sink.Emit(ctx, streaming.NewTextChunk(delta)); err != nil {
			return "", err
		}
	}
	span.SetAttributes(attribute.Int("chunks", chunks))

	questions, err := pending.Await(ctx)
	if err != nil {
		return "", err
	}
	for _, evt := range []streaming.Event{
		streaming.NewRelatedQueries(questions),
		streaming.NewFinalResponse(full.String()),
		streaming.NewStreamEnd(),
	} {
		if err := sink.Emit(ctx, evt); err != nil {
			return "", err
		}
	}
	s.logger.Debug("Answer streamed", zap.Int("chunks", chunks), zap.Int("chars", full.Len()))
	return full.String(), nil
}
