package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	ometrics "github.com/Kocoro-lab/Shannon/go/prosearch/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/search"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/streaming"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// MaxStepQueries bounds the search queries issued for one step.
const MaxStepQueries = 3

// StepStatus tracks an executed step for reporting.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepDone    StepStatus = "done"
)

// AgentSearchStep records what one step did.
type AgentSearchStep struct {
	StepNumber int                   `json:"step_number"`
	Step       string                `json:"step"`
	Queries    []string              `json:"queries"`
	Results    []search.SearchResult `json:"results"`
	Status     StepStatus            `json:"status"`
}

// QueryStepExecution is the structured output of the search query agent.
type QueryStepExecution struct {
	SearchQueries []string `json:"search_queries" jsonschema:"minItems=1,maxItems=3" jsonschema_description:"The search queries to complete the step"`
}

// Execution is the request-scoped state of a pro run. Each map slot is written once.
type Execution struct {
	Plan     QueryPlan
	Query    string
	Contexts map[int]StepContext
	Results  map[int][]search.SearchResult
	Images   map[int][]string
	Steps    []AgentSearchStep
}

func newExecution(plan QueryPlan, query string) *Execution {
	return &Execution{
		Plan:     plan,
		Query:    query,
		Contexts: make(map[int]StepContext, len(plan.Steps)),
		Results:  make(map[int][]search.SearchResult, len(plan.Steps)),
		Images:   make(map[int][]string, len(plan.Steps)),
	}
}

// StepExecutor runs the non-terminal steps of a plan strictly in plan order.
type StepExecutor struct {
	queryWriter StructuredCompleter
	searcher    Searcher
	logger      *zap.Logger
}

func NewStepExecutor(queryWriter StructuredCompleter, searcher Searcher, logger *zap.Logger) *StepExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StepExecutor{queryWriter: queryWriter, searcher: searcher, logger: logger}
}

// Run executes every step but the last and returns the accumulated state.
func (e *StepExecutor) Run(ctx context.Context, plan QueryPlan, query string, timeRange search.TimeRange, sink streaming.Sink) (*Execution, error) {
	exec := newExecution(plan, query)
	for _, step := range plan.Steps[:len(plan.Steps)-1] {
		if err := e.runStep(ctx, exec, step, timeRange, sink); err != nil {
			return exec, err
		}
	}
	return exec, nil
}

func (e *StepExecutor) runStep(ctx context.Context, exec *Execution, step QueryPlanStep, timeRange search.TimeRange, sink streaming.Sink) error {
	ctx, span := tracing.StartSpan(ctx, "research.step")
	defer span.End()
	span.SetAttributes(attribute.Int("step_id", step.ID))
	start := time.Now()
	defer func() { ometrics.StepDuration.Observe(time.Since(start).Seconds()) }()

	relevant := make([]StepContext, 0, len(step.Dependencies))
	for _, dep := range step.Dependencies {
		relevant = append(relevant, exec.Contexts[dep])
	}

	queries, err := e.generateQueries(ctx, exec.Query, step, relevant)
	if err != nil {
		return err
	}
	if err := sink.Emit(ctx, streaming.NewAgentSearchQueries(step.ID, queries)); err != nil {
		return err
	}

	results, images := e.searcher.Search(ctx, queries, timeRange)
	exec.Results[step.ID] = results
	exec.Images[step.ID] = images

	if err := sink.Emit(ctx, streaming.NewAgentReadResults(step.ID, results)); err != nil {
		return err
	}
	exec.Contexts[step.ID] = StepContext{Step: step.Step, Context: BuildStepContext(results)}
	exec.Steps = append(exec.Steps, AgentSearchStep{
		StepNumber: step.ID,
		Step:       step.Step,
		Queries:    queries,
		Results:    results,
		Status:     StepDone,
	})

	e.logger.Debug("Step executed",
		zap.Int("step", step.ID),
		zap.Strings("queries", queries),
		zap.Int("results", len(results)),
	)
	return nil
}

func (e *StepExecutor) generateQueries(ctx context.Context, query string, step QueryPlanStep, relevant []StepContext) ([]string, error) {
	prompt := fmt.Sprintf(searchQueryPrompt, query, FormatStepContexts(relevant), step.Step)
	var out QueryStepExecution
	if err := e.queryWriter.CompleteStructured(ctx, prompt, &out); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &QueryGenerationError{Step: step.ID, Err: err}
	}

	queries := make([]string, 0, MaxStepQueries)
	for _, q := range out.SearchQueries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if len(queries) == MaxStepQueries {
			e.logger.Debug("Dropping extra search queries", zap.Int("step", step.ID), zap.Int("generated", len(out.SearchQueries)))
			break
		}
		queries = append(queries, q)
	}
	if len(queries) == 0 {
		return nil, &QueryGenerationError{Step: step.ID}
	}
	return queries, nil
}
