package streaming

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBufferHoldsUntilCommit(t *testing.T) {
	ctx := context.Background()
	rec := &Recorder{}
	buf := NewBuffer(rec, true)

	require.NoError(t, buf.Emit(ctx, NewAgentQueryPlan([]string{"a", "b"})))
	require.NoError(t, buf.Emit(ctx, NewAgentFinish()))
	assert.Empty(t, rec.Events())
	assert.False(t, buf.Committed())

	require.NoError(t, buf.Commit(ctx))
	require.NoError(t, buf.Emit(ctx, NewTextChunk("hi")))
	assert.Equal(t, []Type{AgentQueryPlan, AgentFinish, TextChunk}, rec.Types())
	assert.True(t, buf.Committed())
}

func TestBufferDiscardDropsHeldEvents(t *testing.T) {
	ctx := context.Background()
	rec := &Recorder{}
	buf := NewBuffer(rec, true)
	_ = buf.Emit(ctx, NewAgentQueryPlan([]string{"a"}))
	_ = buf.Emit(ctx, NewAgentSearchQueries(0, []string{"q"}))

	assert.Equal(t, 2, buf.Discard())
	require.NoError(t, buf.Commit(ctx))
	assert.Empty(t, rec.Events())
}

func TestBufferPassThrough(t *testing.T) {
	rec := &Recorder{}
	buf := NewBuffer(rec, false)
	require.NoError(t, buf.Emit(context.Background(), NewBeginStream("q")))
	assert.Len(t, rec.Events(), 1)
}

func TestEventWireShape(t *testing.T) {
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(NewStreamEnd().Marshal(), &decoded))
	assert.Equal(t, "stream-end", decoded["event"])
	data := decoded["data"].(map[string]any)
	v, ok := data["thread_id"]
	assert.True(t, ok)
	assert.Nil(t, v)

	require.NoError(t, json.Unmarshal(NewSearchResults(nil, nil).Marshal(), &decoded))
	data = decoded["data"].(map[string]any)
	assert.Equal(t, []any{}, data["results"])
	assert.Equal(t, []any{}, data["images"])
}

func TestSSEWriterFormatsEvents(t *testing.T) {
	rr := httptest.NewRecorder()
	w, err := NewSSEWriter(rr, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, w.Emit(context.Background(), NewBeginStream("golang")))
	require.NoError(t, w.Emit(context.Background(), NewTextChunk("Go")))

	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	body := rr.Body.String()
	assert.True(t, strings.HasPrefix(body, "id: 1\nevent: begin-stream\ndata: {\"event\":\"begin-stream\",\"data\":{\"query\":\"golang\"}}\n\n"), body)
	assert.Contains(t, body, "id: 2\nevent: text-chunk\n")
}

func TestSSEWriterStopsAfterCancel(t *testing.T) {
	rr := httptest.NewRecorder()
	w, err := NewSSEWriter(rr, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Emit(ctx, NewTextChunk("late")), context.Canceled)
	assert.Empty(t, rr.Body.String())
}

func TestCollectorBuildsResponse(t *testing.T) {
	ctx := context.Background()
	c := NewCollector()
	results := []search.SearchResult{{Title: "t", URL: "https://a", Content: "c"}}
	for _, evt := range []Event{
		NewBeginStream("q"),
		NewAgentQueryPlan([]string{"s0", "s1"}),
		NewAgentSearchQueries(0, []string{"q0"}),
		NewAgentReadResults(0, results),
		NewAgentFinish(),
		NewSearchResults(results, []string{"img"}),
		NewTextChunk("Hel"),
		NewTextChunk("lo"),
		NewRelatedQueries([]string{"a?", "b?", "c?"}),
		NewFinalResponse("Hello"),
		NewStreamEnd(),
	} {
		require.NoError(t, c.Emit(ctx, evt))
	}

	resp := c.Response()
	assert.True(t, c.Finished())
	assert.Equal(t, "Hello", resp.Message)
	assert.Equal(t, results, resp.SearchResults)
	assert.Equal(t, []string{"img"}, resp.Images)
	assert.Equal(t, []string{"a?", "b?", "c?"}, resp.RelatedQueries)
	require.Len(t, resp.Steps, 1)
	assert.Equal(t, "done", resp.Steps[0].Status)
	assert.Equal(t, []string{"q0"}, resp.Steps[0].Queries)
}

func TestBufferReleasesOnFirstReleaseEvent(t *testing.T) {
	ctx := context.Background()
	rec := &Recorder{}
	buf := NewBuffer(rec, true, TextChunk, RelatedQueries)

	require.NoError(t, buf.Emit(ctx, NewAgentFinish()))
	require.NoError(t, buf.Emit(ctx, NewSearchResults(nil, nil)))
	assert.Empty(t, rec.Events())

	require.NoError(t, buf.Emit(ctx, NewTextChunk("a")))
	require.NoError(t, buf.Emit(ctx, NewTextChunk("b")))
	assert.Equal(t, []Type{AgentFinish, SearchResults, TextChunk, TextChunk}, rec.Types())
	assert.True(t, buf.Committed())
	assert.Zero(t, buf.Discard())
}
