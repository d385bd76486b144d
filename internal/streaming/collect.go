package streaming

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/search"
)

// StepSummary is the per-step record reported to non-streaming callers.
type StepSummary struct {
	StepNumber int                   `json:"step_number"`
	Queries    []string              `json:"queries"`
	Results    []search.SearchResult `json:"results"`
	Status     string                `json:"status"`
}

// Response is the single JSON body returned when the caller does not stream.
type Response struct {
	Message        string                `json:"message"`
	SearchResults  []search.SearchResult `json:"search_results"`
	Images         []string              `json:"images"`
	RelatedQueries []string              `json:"related_queries"`
	Steps          []StepSummary         `json:"steps"`
}

// Collector folds an event stream into a Response.
type Collector struct {
	mu       sync.Mutex
	text     strings.Builder
	final    *string
	resp     Response
	steps    map[int]*StepSummary
	finished bool
}

func NewCollector() *Collector {
	return &Collector{steps: map[int]*StepSummary{}}
}

func (c *Collector) Emit(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch d := evt.Data.(type) {
	case AgentSearchQueriesData:
		s := c.step(d.StepNumber)
		s.Queries = d.Queries
		s.Status = "pending"
	case AgentReadResultsData:
		s := c.step(d.StepNumber)
		s.Results = d.Results
		s.Status = "done"
	case SearchResultsData:
		c.resp.SearchResults = d.Results
		c.resp.Images = d.Images
	case TextChunkData:
		c.text.WriteString(d.Text)
	case RelatedQueriesData:
		c.resp.RelatedQueries = d.RelatedQueries
	case FinalResponseData:
		msg := d.Message
		c.final = &msg
	case StreamEndData:
		c.finished = true
	}
	return nil
}

func (c *Collector) step(n int) *StepSummary {
	s, ok := c.steps[n]
	if !ok {
		s = &StepSummary{StepNumber: n, Queries: []string{}, Results: []search.SearchResult{}}
		c.steps[n] = s
	}
	return s
}

// Finished reports whether a stream-end event was seen.
func (c *Collector) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

// Response returns the collected body. The final-response message wins over
// concatenated chunks when both are present.
func (c *Collector) Response() Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.resp
	if c.final != nil {
		out.Message = *c.final
	} else {
		out.Message = c.text.String()
	}
	if out.SearchResults == nil {
		out.SearchResults = []search.SearchResult{}
	}
	if out.Images == nil {
		out.Images = []string{}
	}
	if out.RelatedQueries == nil {
		out.RelatedQueries = []string{}
	}
	out.Steps = make([]StepSummary, 0, len(c.steps))
	for _, s := range c.steps {
		out.Steps = append(out.Steps, *s)
	}
	sort.Slice(out.Steps, func(i, j int) bool { return out.Steps[i].StepNumber < out.Steps[j].StepNumber })
	return out
}
