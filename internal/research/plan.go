package research

import (
	"context"
	"fmt"
	"slices"
	"time"

	ometrics "github.com/Kocoro-lab/Shannon/go/prosearch/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// MaxPlanSteps bounds the size of a query plan.
const MaxPlanSteps = 4

// QueryPlanStep is one node of the plan. Dependencies name earlier steps only.
type QueryPlanStep struct {
	ID           int    `json:"id" jsonschema_description:"Unique id of the step"`
	Step         string `json:"step" jsonschema_description:"Description of the search step to perform"`
	Dependencies []int  `json:"dependencies" jsonschema_description:"List of step ids that this step depends on information from"`
}

// QueryPlan is the ordered step list. The last step is the terminal synthesis step.
type QueryPlan struct {
	Steps []QueryPlanStep `json:"steps" jsonschema:"minItems=1,maxItems=4" jsonschema_description:"The steps to complete the query"`
}

// Texts returns the step descriptions in plan order.
func (p QueryPlan) Texts() []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Step
	}
	return out
}

// Terminal returns the synthesis step.
func (p QueryPlan) Terminal() QueryPlanStep {
	return p.Steps[len(p.Steps)-1]
}

// ValidatePlan checks the plan shape and returns a copy with duplicate dependencies removed.
// Steps must have unique ids and may only depend on steps that come before them. The
// terminal step must depend on at least one step because it performs no search of its own.
func ValidatePlan(p QueryPlan) (QueryPlan, error) {
	if len(p.Steps) == 0 {
		return QueryPlan{}, &PlanningError{Reason: "plan has no steps"}
	}
	if len(p.Steps) > MaxPlanSteps {
		return QueryPlan{}, &PlanningError{Reason: fmt.Sprintf("plan has %d steps, at most %d allowed", len(p.Steps), MaxPlanSteps)}
	}

	out := QueryPlan{Steps: make([]QueryPlanStep, len(p.Steps))}
	seen := make(map[int]struct{}, len(p.Steps))
	for i, step := range p.Steps {
		if _, dup := seen[step.ID]; dup {
			return QueryPlan{}, &PlanningError{Reason: fmt.Sprintf("duplicate step id %d", step.ID)}
		}
		deps := make([]int, 0, len(step.Dependencies))
		for _, dep := range step.Dependencies {
			if _, ok := seen[dep]; !ok {
				return QueryPlan{}, &PlanningError{Reason: fmt.Sprintf("step %d depends on %d which does not precede it", step.ID, dep)}
			}
			if !slices.Contains(deps, dep) {
				deps = append(deps, dep)
			}
		}
		seen[step.ID] = struct{}{}
		out.Steps[i] = QueryPlanStep{ID: step.ID, Step: step.Step, Dependencies: deps}
	}
	if len(out.Terminal().Dependencies) == 0 {
		return QueryPlan{}, &PlanningError{Reason: "final step has no dependencies"}
	}
	return out, nil
}

// StepPlanner asks the planning agent for a QueryPlan.
type StepPlanner struct {
	planner StructuredCompleter
	logger  *zap.Logger
}

func NewStepPlanner(planner StructuredCompleter, logger *zap.Logger) *StepPlanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StepPlanner{planner: planner, logger: logger}
}

// Plan calls the planner once. Any failure is a PlanningError.
func (p *StepPlanner) Plan(ctx context.Context, query string) (QueryPlan, error) {
	ctx, span := tracing.StartSpan(ctx, "research.plan")
	defer span.End()
	start := time.Now()

	var raw QueryPlan
	if err := p.planner.CompleteStructured(ctx, fmt.Sprintf(queryPlanPrompt, query), &raw); err != nil {
		if ctx.Err() != nil {
			return QueryPlan{}, ctx.Err()
		}
		return QueryPlan{}, &PlanningError{Reason: "planner call failed", Err: err}
	}
	plan, err := ValidatePlan(raw)
	ometrics.PlanLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return QueryPlan{}, err
	}
	ometrics.PlanSteps.Observe(float64(len(plan.Steps)))
	span.SetAttributes(attribute.Int("steps", len(plan.Steps)))
	p.logger.Debug("Query plan ready", zap.Strings("steps", plan.Texts()))
	return plan, nil
}
