package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/circuitbreaker"
	ometrics "github.com/Kocoro-lab/Shannon/go/prosearch/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/tracing"
	"go.uber.org/zap"
)

const (
	completionModel = "lyzr-agent"
	streamUserID    = "default_user"
	streamSessionID = "default_session"
	maxErrorBody    = 512
)

// Agent calls one remote agent over the inference API.
type Agent struct {
	kind    Kind
	agentID string
	baseURL string
	apiKey  string

	http   *circuitbreaker.HTTPWrapper
	stream *circuitbreaker.HTTPWrapper
	logger *zap.Logger
}

// Kind returns the capability this agent serves.
func (a *Agent) Kind() Kind { return a.kind }

// ID returns the remote agent id, possibly empty.
func (a *Agent) ID() string { return a.agentID }

func (a *Agent) check() error {
	if a.apiKey == "" {
		return &ConfigurationError{Field: "llm.api_key", Reason: "no api key for agent calls"}
	}
	if a.agentID == "" {
		return &ConfigurationError{Field: "llm.agents." + a.kind.String(), Reason: "agent id is not configured"}
	}
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type completionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Stream         bool            `json:"stream"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type streamRequest struct {
	UserID                string         `json:"user_id"`
	SystemPromptVariables map[string]any `json:"system_prompt_variables"`
	AgentID               string         `json:"agent_id"`
	SessionID             string         `json:"session_id"`
	Message               string         `json:"message"`
}

// Complete returns the full text answer for prompt.
func (a *Agent) Complete(ctx context.Context, prompt string) (string, error) {
	if err := a.check(); err != nil {
		return "", err
	}
	start := time.Now()
	content, err := a.complete(ctx, completionRequest{
		Model:    completionModel,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	a.observe("complete", start, err)
	if err != nil {
		return "", err
	}
	return contentText(content)
}

// CompleteStructured asks for a JSON object conforming to the schema of out and decodes into it.
// Output that does not decode is an error; there is no text recovery.
func (a *Agent) CompleteStructured(ctx context.Context, prompt string, out any) error {
	if err := a.check(); err != nil {
		return err
	}
	schema, err := SchemaFor(out)
	if err != nil {
		return err
	}
	schemaJSON, _ := json.Marshal(schema)
	structuredPrompt := fmt.Sprintf("%s\n\nRespond with a JSON object that matches this schema:\n%s\n\nOnly return valid JSON, no additional text.", prompt, schemaJSON)

	start := time.Now()
	content, err := a.complete(ctx, completionRequest{
		Model:    completionModel,
		Messages: []chatMessage{{Role: "user", Content: structuredPrompt}},
		ResponseFormat: &responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchemaFormat{Name: SchemaName(out), Strict: true, Schema: schema},
		},
	})
	if err == nil {
		err = decodeStructured(content, out)
	}
	a.observe("structured", start, err)
	return err
}

// Stream yields answer deltas as they arrive. Breaking out of the loop closes the connection.
// If the stream cannot be opened, the agent falls back to a single completion yielded once.
func (a *Agent) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := a.check(); err != nil {
			yield("", err)
			return
		}
		start := time.Now()
		body, err := a.openStream(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				a.observe("stream", start, ctx.Err())
				yield("", ctx.Err())
				return
			}
			a.logger.Warn("Agent stream unavailable, falling back to completion",
				zap.String("kind", a.kind.String()),
				zap.Error(err),
			)
			text, cerr := a.Complete(ctx, prompt)
			if cerr != nil {
				a.observe("stream", start, cerr)
				yield("", cerr)
				return
			}
			a.observe("stream", start, nil)
			yield(text, nil)
			return
		}
		defer body.Close()

		var streamErr error
		defer func() { a.observe("stream", start, streamErr) }()

		reader := bufio.NewReader(body)
		for {
			line, rerr := reader.ReadString('\n')
			token, done := parseStreamLine(line)
			if done {
				return
			}
			if token != "" && !yield(token, nil) {
				return
			}
			if rerr != nil {
				if errors.Is(rerr, io.EOF) {
					return
				}
				if ctx.Err() != nil {
					rerr = ctx.Err()
				}
				streamErr = fmt.Errorf("read agent stream: %w", rerr)
				yield("", streamErr)
				return
			}
		}
	}
}

// parseStreamLine extracts the token from one "data: <token>" line.
func parseStreamLine(line string) (token string, done bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	if line == "[DONE]" || line == "data: [DONE]" {
		return "", true
	}
	if strings.HasPrefix(line, "data: ") {
		return line[len("data: "):], false
	}
	return "", false
}

func (a *Agent) openStream(ctx context.Context, prompt string) (io.ReadCloser, error) {
	payload, err := json.Marshal(streamRequest{
		UserID:                streamUserID,
		SystemPromptVariables: map[string]any{},
		AgentID:               a.agentID,
		SessionID:             streamSessionID,
		Message:               prompt,
	})
	if err != nil {
		return nil, err
	}
	endpoint := a.baseURL + "/v3/inference/stream/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	a.setHeaders(ctx, req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := a.stream.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

func (a *Agent) complete(ctx context.Context, body completionRequest) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/v3/inference/%s/chat/completions", a.baseURL, a.agentID)
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, endpoint)
	defer span.End()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	a.setHeaders(ctx, req)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s agent: %w", a.kind, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s agent: %w", a.kind, statusError(resp))
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%s agent: decode response: %w", a.kind, err)
	}
	if len(parsed.Choices) == 0 || len(parsed.Choices[0].Message.Content) == 0 {
		return nil, fmt.Errorf("%s agent: response has no content", a.kind)
	}
	return parsed.Choices[0].Message.Content, nil
}

func (a *Agent) setHeaders(ctx context.Context, req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	tracing.InjectTraceparent(ctx, req)
}

func (a *Agent) observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ometrics.CapabilityCalls.WithLabelValues(a.kind.String(), status).Inc()
	ometrics.CapabilityLatency.WithLabelValues(a.kind.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		a.logger.Debug("Agent call failed",
			zap.String("kind", a.kind.String()),
			zap.String("op", op),
			zap.Error(err),
		)
	}
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

// unwrapContent resolves the content field, which is either a string or an object
// carrying the answer under "response".
func unwrapContent(raw json.RawMessage) json.RawMessage {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if inner, ok := envelope["response"]; ok {
			return inner
		}
	}
	return raw
}

func contentText(raw json.RawMessage) (string, error) {
	raw = unwrapContent(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", errors.New("agent returned null content")
	}
	return string(raw), nil
}

func decodeStructured(raw json.RawMessage, out any) error {
	raw = unwrapContent(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(strings.TrimSpace(s))
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode structured output: %w", err)
	}
	return nil
}
