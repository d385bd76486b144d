package research

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/search"
)

const (
	// StepContextBudget caps a single step's context, in characters.
	StepContextBudget = 7000
	// CrossStepContextBudget caps the assembled multi-step context, in characters.
	CrossStepContextBudget = 10000
)

// StepContext is the bounded summary of one completed step.
type StepContext struct {
	Step    string
	Context string
}

// BuildStepContext joins result display strings and clips to StepContextBudget.
func BuildStepContext(results []search.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.String()
	}
	return truncate(strings.Join(parts, "\n"), StepContextBudget)
}

// FormatStepContexts renders dependency contexts for the search query prompt.
func FormatStepContexts(contexts []StepContext) string {
	parts := make([]string, len(contexts))
	for i, c := range contexts {
		parts[i] = fmt.Sprintf("Step: %s\nContext: %s", c.Step, c.Context)
	}
	return strings.Join(parts, "\n")
}

// BuildCrossStepContext labels every completed step's context in ascending id order
// and clips the whole to CrossStepContextBudget.
func BuildCrossStepContext(contexts map[int]StepContext) string {
	ids := make([]int, 0, len(contexts))
	for id := range contexts {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	blocks := make([]string, len(ids))
	for i, id := range ids {
		c := contexts[id]
		blocks[i] = fmt.Sprintf("Everything below is context for step: %s\nContext: %s\n%s\n", c.Step, c.Context, strings.Repeat("-", 20))
	}
	return truncate(strings.Join(blocks, "\n"), CrossStepContextBudget)
}

// BuildBasicContext numbers results as citations for single-step answers.
func BuildBasicContext(results []search.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("Citation %d. %s", i+1, r.String())
	}
	return strings.Join(parts, "\n\n")
}

// truncate hard-clips s to n characters.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
