package streaming

import (
	"encoding/json"

	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/search"
)

// Type discriminates stream events on the wire.
type Type string

const (
	BeginStream        Type = "begin-stream"
	AgentQueryPlan     Type = "agent-query-plan"
	AgentSearchQueries Type = "agent-search-queries"
	AgentReadResults   Type = "agent-read-results"
	AgentFinish        Type = "agent-finish"
	SearchResults      Type = "search-results"
	TextChunk          Type = "text-chunk"
	RelatedQueries     Type = "related-queries"
	FinalResponse      Type = "final-response"
	StreamEnd          Type = "stream-end"
	Error              Type = "error"
)

// IsAgent reports whether t belongs to the multi-step planning family.
func (t Type) IsAgent() bool {
	switch t {
	case AgentQueryPlan, AgentSearchQueries, AgentReadResults, AgentFinish:
		return true
	}
	return false
}

// Event is one protocol message: a discriminator plus its payload.
type Event struct {
	Type Type `json:"event"`
	Data any  `json:"data"`
}

// Marshal returns the JSON encoding used for SSE data lines.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

type BeginStreamData struct {
	Query string `json:"query"`
}

type AgentQueryPlanData struct {
	Steps []string `json:"steps"`
}

type AgentSearchQueriesData struct {
	Queries    []string `json:"queries"`
	StepNumber int      `json:"step_number"`
}

type AgentReadResultsData struct {
	Results    []search.SearchResult `json:"results"`
	StepNumber int                   `json:"step_number"`
}

type AgentFinishData struct{}

type SearchResultsData struct {
	Results []search.SearchResult `json:"results"`
	Images  []string              `json:"images"`
}

type TextChunkData struct {
	Text string `json:"text"`
}

type RelatedQueriesData struct {
	RelatedQueries []string `json:"related_queries"`
}

type FinalResponseData struct {
	Message string `json:"message"`
}

// StreamEndData carries no thread id; conversations are not persisted.
type StreamEndData struct {
	ThreadID *int `json:"thread_id"`
}

type ErrorData struct {
	Detail string `json:"detail"`
}

func NewBeginStream(query string) Event {
	return Event{Type: BeginStream, Data: BeginStreamData{Query: query}}
}

func NewAgentQueryPlan(steps []string) Event {
	return Event{Type: AgentQueryPlan, Data: AgentQueryPlanData{Steps: steps}}
}

func NewAgentSearchQueries(step int, queries []string) Event {
	return Event{Type: AgentSearchQueries, Data: AgentSearchQueriesData{Queries: queries, StepNumber: step}}
}

func NewAgentReadResults(step int, results []search.SearchResult) Event {
	return Event{Type: AgentReadResults, Data: AgentReadResultsData{Results: nonNil(results), StepNumber: step}}
}

func NewAgentFinish() Event {
	return Event{Type: AgentFinish, Data: AgentFinishData{}}
}

func NewSearchResults(results []search.SearchResult, images []string) Event {
	if images == nil {
		images = []string{}
	}
	return Event{Type: SearchResults, Data: SearchResultsData{Results: nonNil(results), Images: images}}
}

func NewTextChunk(text string) Event {
	return Event{Type: TextChunk, Data: TextChunkData{Text: text}}
}

func NewRelatedQueries(questions []string) Event {
	return Event{Type: RelatedQueries, Data: RelatedQueriesData{RelatedQueries: questions}}
}

func NewFinalResponse(message string) Event {
	return Event{Type: FinalResponse, Data: FinalResponseData{Message: message}}
}

func NewStreamEnd() Event {
	return Event{Type: StreamEnd, Data: StreamEndData{}}
}

func NewError(detail string) Event {
	return Event{Type: Error, Data: ErrorData{Detail: detail}}
}

func nonNil(r []search.SearchResult) []search.SearchResult {
	if r == nil {
		return []search.SearchResult{}
	}
	return r
}
