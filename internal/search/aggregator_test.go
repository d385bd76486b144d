package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func r(url string) SearchResult { return SearchResult{Title: url, URL: url, Content: url} }

func urls(rs []SearchResult) []string {
	out := make([]string, len(rs))
	for i, x := range rs {
		out[i] = x.URL
	}
	return out
}

type mapProvider struct {
	responses map[string]SearchResponse
	errs      map[string]error
	delay     time.Duration

	inFlight atomic.Int32
	peak     atomic.Int32
}

func (p *mapProvider) Search(ctx context.Context, query string, tr TimeRange) (SearchResponse, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if err := p.errs[query]; err != nil {
		return SearchResponse{}, err
	}
	return p.responses[query], nil
}

func TestInterleaveRoundRobin(t *testing.T) {
	got := Interleave([][]SearchResult{
		{r("a1"), r("a2"), r("a3")},
		{r("b1")},
		nil,
		{r("c1"), r("c2")},
	})
	assert.Equal(t, []string{"a1", "b1", "c1", "a2", "c2", "a3"}, urls(got))
}

func TestDedupeKeepsFirstOccurrence(t *testing.T) {
	first := SearchResult{Title: "first", URL: "x"}
	later := SearchResult{Title: "later", URL: "x"}
	got := Dedupe([]SearchResult{first, r("y"), later})
	assert.Equal(t, []SearchResult{first, r("y")}, got)
	assert.Equal(t, got, Dedupe(got))
}

func TestUnionImagesFirstSeen(t *testing.T) {
	assert.Equal(t, []string{"i1", "i2", "i3"}, UnionImages([][]string{{"i1", "i2"}, {"i2", "i3", "i1"}}))
	assert.Equal(t, []string{}, UnionImages(nil))
}

func TestAggregatorInterleavesAndDedupes(t *testing.T) {
	p := &mapProvider{responses: map[string]SearchResponse{
		"q1": {Results: []SearchResult{r("shared"), r("q1-b")}, Images: []string{"img1"}},
		"q2": {Results: []SearchResult{r("q2-a"), r("shared"), r("q2-c")}, Images: []string{"img1", "img2"}},
	}}
	agg := NewAggregator(p, zaptest.NewLogger(t))

	got, images := agg.Search(context.Background(), []string{"q1", "q2"}, TimeRangeNone)
	assert.Equal(t, []string{"shared", "q2-a", "q1-b", "q2-c"}, urls(got))
	assert.Equal(t, []string{"img1", "img2"}, images)
}

func TestAggregatorFansOutConcurrently(t *testing.T) {
	p := &mapProvider{delay: 50 * time.Millisecond, responses: map[string]SearchResponse{}}
	agg := NewAggregator(p, zaptest.NewLogger(t))

	agg.Search(context.Background(), []string{"a", "b", "c"}, TimeRangeNone)
	assert.Equal(t, int32(3), p.peak.Load())
}

func TestAggregatorSurvivesProviderFailure(t *testing.T) {
	inner := &mapProvider{
		responses: map[string]SearchResponse{"ok": {Results: []SearchResult{r("good")}}},
		errs:      map[string]error{"bad": errors.New("backend down")},
	}
	agg := NewAggregator(NewSafeProvider("test", inner, zaptest.NewLogger(t)), zaptest.NewLogger(t))

	got, images := agg.Search(context.Background(), []string{"bad", "ok"}, TimeRangeDay)
	assert.Equal(t, []string{"good"}, urls(got))
	assert.Empty(t, images)
}

func TestSafeProviderNeverErrors(t *testing.T) {
	inner := &mapProvider{errs: map[string]error{"q": errors.New("timeout")}}
	resp, err := NewSafeProvider("test", inner, zaptest.NewLogger(t)).Search(context.Background(), "q", TimeRangeNone)
	require.NoError(t, err)
	assert.NotNil(t, resp.Results)
	assert.NotNil(t, resp.Images)
	assert.Empty(t, resp.Results)
}

func TestAggregatorConcurrentRequests(t *testing.T) {
	p := &mapProvider{responses: map[string]SearchResponse{"q": {Results: []SearchResult{r("a")}}}}
	agg := NewAggregator(p, zaptest.NewLogger(t))
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _ := agg.Search(context.Background(), []string{"q", "q"}, TimeRangeNone)
			assert.Equal(t, []string{"a"}, urls(got))
		}()
	}
	wg.Wait()
}

func TestParseTimeRange(t *testing.T) {
	assert.Equal(t, TimeRangeWeek, ParseTimeRange(" Week "))
	assert.Equal(t, TimeRangeNone, ParseTimeRange("decade"))
	assert.Equal(t, TimeRangeNone, ParseTimeRange(""))
}
