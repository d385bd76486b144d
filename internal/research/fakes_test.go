package research

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"sync"

	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/search"
)

type structuredFunc func(ctx context.Context, prompt string) (any, error)

// fakeStructured answers CompleteStructured by round-tripping a Go value through JSON.
type fakeStructured struct {
	fn    structuredFunc
	mu    sync.Mutex
	calls int
}

func (f *fakeStructured) CompleteStructured(ctx context.Context, prompt string, out any) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	v, err := f.fn(ctx, prompt)
	if err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func staticStructured(v any) *fakeStructured {
	return &fakeStructured{fn: func(context.Context, string) (any, error) { return v, nil }}
}

func failingStructured(err error) *fakeStructured {
	return &fakeStructured{fn: func(context.Context, string) (any, error) { return nil, err }}
}

type fakeText struct {
	text string
	err  error

	mu      sync.Mutex
	prompts []string
}

func (f *fakeText) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.text, f.err
}

// fakeAnswer yields tokens. With err set, a failing call yields failAfter tokens and then err.
type fakeAnswer struct {
	tokens    []string
	err       error
	failAfter int
	// failCalls limits failures to the first n calls; zero fails every call.
	failCalls int

	mu      sync.Mutex
	calls   int
	prompts []string
}

func (f *fakeAnswer) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	fail := f.err != nil && (f.failCalls == 0 || call <= f.failCalls)
	return func(yield func(string, error) bool) {
		for i, tok := range f.tokens {
			if fail && i == f.failAfter {
				yield("", f.err)
				return
			}
			if ctx.Err() != nil {
				yield("", ctx.Err())
				return
			}
			if !yield(tok, nil) {
				return
			}
		}
		if fail {
			yield("", f.err)
		}
	}
}

type fakeSearcher struct {
	byQuery map[string]search.SearchResponse

	mu      sync.Mutex
	batches [][]string
	ranges  []search.TimeRange
}

func (f *fakeSearcher) Search(ctx context.Context, queries []string, tr search.TimeRange) ([]search.SearchResult, []string) {
	f.mu.Lock()
	f.batches = append(f.batches, queries)
	f.ranges = append(f.ranges, tr)
	f.mu.Unlock()
	lists := make([][]search.SearchResult, 0, len(queries))
	imgs := make([][]string, 0, len(queries))
	for _, q := range queries {
		r := f.byQuery[q]
		lists = append(lists, r.Results)
		imgs = append(imgs, r.Images)
	}
	return search.Dedupe(search.Interleave(lists)), search.UnionImages(imgs)
}

func results(prefix string, n int) []search.SearchResult {
	out := make([]search.SearchResult, n)
	for i := range out {
		out[i] = search.SearchResult{
			Title:   prefix + " title",
			URL:     "https://" + prefix + ".example/" + string(rune('a'+i)),
			Content: prefix + " content",
		}
	}
	return out
}

var errBoom = errors.New("boom")
