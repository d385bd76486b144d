package research

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	ometrics "github.com/Kocoro-lab/Shannon/go/prosearch/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/search"
	"go.uber.org/zap"
)

// RelatedQuestionCount is how many follow-up questions every answer carries.
const RelatedQuestionCount = 3

var fallbackQuestions = [RelatedQuestionCount]string{
	"What are the main applications of this technology?",
	"How does this compare to similar solutions?",
	"What are the potential benefits and limitations?",
}

var questionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d+\.\s*(.+\?)\s*$`),
	regexp.MustCompile(`^-\s*(.+\?)\s*$`),
	regexp.MustCompile(`^(.+\?)\s*$`),
}

// RelatedQuestions generates follow-up questions. It never fails outward.
type RelatedQuestions struct {
	completer TextCompleter
	logger    *zap.Logger
}

func NewRelatedQuestions(completer TextCompleter, logger *zap.Logger) *RelatedQuestions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelatedQuestions{completer: completer, logger: logger}
}

// Generate always returns exactly RelatedQuestionCount non-empty questions.
func (r *RelatedQuestions) Generate(ctx context.Context, query string, results []search.SearchResult) []string {
	prompt := fmt.Sprintf(relatedQuestionPrompt, query, BuildStepContext(results))
	text, err := r.completer.Complete(ctx, prompt)
	if err != nil {
		r.logger.Warn("Related questions unavailable, using defaults", zap.Error(err))
		return ParseRelatedQuestions("")
	}
	return ParseRelatedQuestions(text)
}

// Prefetch starts Generate in the background. The caller collects the answer with Await.
func (r *RelatedQuestions) Prefetch(ctx context.Context, query string, results []search.SearchResult) *PendingQuestions {
	p := &PendingQuestions{done: make(chan []string, 1)}
	go func() {
		p.done <- r.Generate(ctx, query, results)
	}()
	return p
}

// PendingQuestions is an in-flight prefetch.
type PendingQuestions struct {
	done chan []string
}

// Await waits for the prefetch unless ctx ends first.
func (p *PendingQuestions) Await(ctx context.Context) ([]string, error) {
	select {
	case qs := <-p.done:
		return qs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ParseRelatedQuestions accepts {"related_questions": [...]}, a JSON array, or
// numbered, dashed or bare question lines, and pads with generic questions up to
// RelatedQuestionCount.
func ParseRelatedQuestions(text string) []string {
	questions := parseJSONQuestions(text)
	if len(questions) == 0 {
		questions = parseLineQuestions(text)
	}
	if len(questions) > RelatedQuestionCount {
		questions = questions[:RelatedQuestionCount]
	}
	if len(questions) < RelatedQuestionCount {
		ometrics.RelatedQuestionsFallback.Inc()
	}
	for len(questions) < RelatedQuestionCount {
		questions = append(questions, fallbackQuestions[len(questions)])
	}
	return questions
}

func parseJSONQuestions(text string) []string {
	text = strings.TrimSpace(text)
	var raw []string
	var obj struct {
		RelatedQuestions []string `json:"related_questions"`
	}
	switch {
	case json.Unmarshal([]byte(text), &obj) == nil && len(obj.RelatedQuestions) > 0:
		raw = obj.RelatedQuestions
	case json.Unmarshal([]byte(text), &raw) == nil:
	default:
		return nil
	}
	out := make([]string, 0, RelatedQuestionCount)
	for _, q := range raw {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

func parseLineQuestions(text string) []string {
	out := make([]string, 0, RelatedQuestionCount)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, re := range questionPatterns {
			m := re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			if q := strings.TrimSpace(m[1]); q != "" && len(out) < RelatedQuestionCount {
				out = append(out, q)
			}
			break
		}
	}
	return out
}
