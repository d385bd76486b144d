package research

import (
	"context"
	"iter"

	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/llm"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/search"
)

// TextCompleter turns a prompt into free text.
type TextCompleter interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// StructuredCompleter decodes a schema-conformant answer into out.
type StructuredCompleter interface {
	CompleteStructured(ctx context.Context, prompt string, out any) error
}

// AnswerStreamer yields answer deltas; the consumer sets the pace.
type AnswerStreamer interface {
	Stream(ctx context.Context, prompt string) iter.Seq2[string, error]
}

// Searcher runs a batch of queries and merges the results.
type Searcher interface {
	Search(ctx context.Context, queries []string, timeRange search.TimeRange) ([]search.SearchResult, []string)
}

// Capabilities are the language agents used for one request.
type Capabilities struct {
	Rephraser   TextCompleter
	Planner     StructuredCompleter
	QueryWriter StructuredCompleter
	Answerer    AnswerStreamer
	Related     TextCompleter
}

// CapabilitiesFrom resolves each capability from an agent set.
func CapabilitiesFrom(set *llm.AgentSet) Capabilities {
	return Capabilities{
		Rephraser:   set.Agent(llm.KindRephrase),
		Planner:     set.Agent(llm.KindPlanning),
		QueryWriter: set.Agent(llm.KindSearchQuery),
		Answerer:    set.Agent(llm.KindAnswer),
		Related:     set.Agent(llm.KindRelated),
	}
}

func (c Capabilities) check(pro bool) error {
	missing := ""
	switch {
	case c.Answerer == nil:
		missing = "answer"
	case c.Related == nil:
		missing = "related"
	case pro && c.Planner == nil:
		missing = "planning"
	case pro && c.QueryWriter == nil:
		missing = "search_query"
	}
	if missing != "" {
		return &llm.ConfigurationError{Field: "llm.agents." + missing, Reason: "capability not available"}
	}
	return nil
}
