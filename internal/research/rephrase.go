package research

import (
	"context"
	"fmt"
	"strings"
)

// Message is one prior turn of the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Rephrase turns a follow-up question into a standalone query using the chat history.
// Without history the question is returned unchanged.
func Rephrase(ctx context.Context, rephraser TextCompleter, question string, history []Message) (string, error) {
	if len(history) == 0 {
		return question, nil
	}
	lines := make([]string, len(history))
	for i, m := range history {
		lines[i] = fmt.Sprintf("%s: %s", m.Role, m.Content)
	}
	text, err := rephraser.Complete(ctx, fmt.Sprintf(historyRephrasePrompt, strings.Join(lines, "\n"), question))
	if err != nil {
		return "", fmt.Errorf("rephrase query: %w", err)
	}
	text = strings.TrimSpace(strings.ReplaceAll(text, `"`, ""))
	if text == "" {
		return question, nil
	}
	return text, nil
}
