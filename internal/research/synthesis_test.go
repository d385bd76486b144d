package research

import (
	"context"
	"testing"

	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/search"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/streaming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDistributeResultsUnevenDependencies(t *testing.T) {
	byStep := map[int][]search.SearchResult{
		0: results("one", 1),
		1: results("many", 20),
	}
	got, _ := DistributeResults([]int{0, 1}, byStep, nil)
	// min(12/2, 21/2) = 6: the first dependency only has one to give
	require.Len(t, got, 7)
	assert.Equal(t, byStep[0][0], got[0])
	assert.Equal(t, byStep[1][:6], got[1:])
}

func TestDistributeResultsZeroCap(t *testing.T) {
	byStep := map[int][]search.SearchResult{
		0: results("a", 1),
		1: results("b", 1),
		2: {},
	}
	got, _ := DistributeResults([]int{0, 1, 2}, byStep, nil)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestDistributeResultsDedupesAcrossDependencies(t *testing.T) {
	shared := results("shared", 6)
	byStep := map[int][]search.SearchResult{0: shared, 1: shared}
	got, _ := DistributeResults([]int{0, 1}, byStep, nil)
	assert.Equal(t, shared, got)
}

func TestDistributeResultsImagesTwoPerDependencyNoDedup(t *testing.T) {
	images := map[int][]string{
		0: {"i1", "i2", "i3"},
		1: {"i1"},
		2: {},
	}
	_, imgs := DistributeResults([]int{0, 1, 2}, map[int][]search.SearchResult{}, images)
	assert.Equal(t, []string{"i1", "i2", "i1"}, imgs)
}

func TestSynthesizeEventOrder(t *testing.T) {
	answer := &fakeAnswer{tokens: []string{"Go ", "is ", "fun"}}
	related := NewRelatedQuestions(&fakeText{text: "1. A?\n2. B?\n3. C?"}, zaptest.NewLogger(t))
	synth := NewResponseSynthesizer(answer, related, zaptest.NewLogger(t))
	rec := &streaming.Recorder{}

	full, err := synth.Synthesize(context.Background(), "q", results("r", 2), []string{"img"},
		func() string { return "CTX" }, rec)
	require.NoError(t, err)
	assert.Equal(t, "Go is fun", full)
	assert.Equal(t, []streaming.Type{
		streaming.SearchResults,
		streaming.TextChunk, streaming.TextChunk, streaming.TextChunk,
		streaming.RelatedQueries,
		streaming.FinalResponse,
		streaming.StreamEnd,
	}, rec.Types())
	assert.Contains(t, answer.prompts[0], "CTX")
	assert.Contains(t, answer.prompts[0], "Question: q")

	events := rec.Events()
	assert.Equal(t, []string{"A?", "B?", "C?"}, events[4].Data.(streaming.RelatedQueriesData).RelatedQueries)
	assert.Equal(t, "Go is fun", events[5].Data.(streaming.FinalResponseData).Message)
}

func TestSynthesizeStreamFailureIsSynthesisError(t *testing.T) {
	answer := &fakeAnswer{tokens: []string{"a", "b"}, err: errBoom, failAfter: 1}
	synth := NewResponseSynthesizer(answer, NewRelatedQuestions(&fakeText{}, zaptest.NewLogger(t)), zaptest.NewLogger(t))
	rec := &streaming.Recorder{}

	_, err := synth.Synthesize(context.Background(), "q", nil, nil, func() string { return "" }, rec)
	var se *SynthesisError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, errBoom)
	assert.NotContains(t, rec.Types(), streaming.StreamEnd)
}

// blockingText never answers until its context ends.
type blockingText struct{ started chan struct{} }

func (b *blockingText) Complete(ctx context.Context, prompt string) (string, error) {
	close(b.started)
	<-ctx.Done()
	return "", ctx.Err()
}

func TestSynthesizeStopsOnDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocker := &blockingText{started: make(chan struct{})}
	synth := NewResponseSynthesizer(&fakeAnswer{tokens: []string{"a", "b", "c"}},
		NewRelatedQuestions(blocker, zaptest.NewLogger(t)), zaptest.NewLogger(t))

	n := 0
	sink := streaming.SinkFunc(func(ctx context.Context, evt streaming.Event) error {
		if evt.Type == streaming.TextChunk {
			n++
			if n == 2 {
				cancel()
			}
		}
		return ctx.Err()
	})
	_, err := synth.Synthesize(ctx, "q", nil, nil, func() string { return "" }, sink)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, n)
	<-blocker.started
}
