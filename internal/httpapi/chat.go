package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/llm"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/research"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/search"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/streaming"
	"go.uber.org/zap"
)

const (
	maxBodyBytes = 1 << 20
	// genericErrorDetail is the only failure text callers ever see.
	genericErrorDetail = "An error occurred while processing your request. Please try again."
)

// Engine answers a request by emitting events to a sink.
type Engine interface {
	Stream(ctx context.Context, req research.Request, caps research.Capabilities, sink streaming.Sink) (research.Result, error)
}

// CapabilitySource resolves the capability set for a caller's API key.
type CapabilitySource func(apiKey string) research.Capabilities

// RegistryCapabilities adapts an agent registry to a CapabilitySource.
func RegistryCapabilities(reg *llm.Registry) CapabilitySource {
	return func(apiKey string) research.Capabilities {
		return research.CapabilitiesFrom(reg.Get(apiKey))
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Query     string        `json:"query"`
	History   []chatMessage `json:"history"`
	ProSearch bool          `json:"pro_search"`
	TimeRange string        `json:"time_range"`
	// Stream defaults to true.
	Stream *bool `json:"stream,omitempty"`
}

func (c ChatRequest) streaming() bool { return c.Stream == nil || *c.Stream }

func (c ChatRequest) toResearch() research.Request {
	history := make([]research.Message, 0, len(c.History))
	for _, m := range c.History {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		history = append(history, research.Message{Role: m.Role, Content: m.Content})
	}
	return research.Request{
		Query:     strings.TrimSpace(c.Query),
		History:   history,
		ProSearch: c.ProSearch,
		TimeRange: search.ParseTimeRange(c.TimeRange),
	}
}

// ChatHandler serves POST /chat.
type ChatHandler struct {
	engine    Engine
	caps      CapabilitySource
	heartbeat time.Duration
	logger    *zap.Logger
}

func NewChatHandler(engine Engine, caps CapabilitySource, heartbeat time.Duration, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{engine: engine, caps: caps, heartbeat: heartbeat, logger: logger}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	var body ChatRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "")
		return
	}
	req := body.toResearch()
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required", "")
		return
	}

	creds, _ := CredentialsFrom(r.Context())
	caps := h.caps(creds.APIKey)
	logger := h.logger.With(
		zap.String("request_id", RequestIDFrom(r.Context())),
		zap.String("user_id", creds.UserID),
		zap.Bool("pro_search", req.ProSearch),
	)

	if body.streaming() {
		h.serveStream(w, r, req, caps, logger)
		return
	}
	h.serveJSON(w, r, req, caps, logger)
}

func (h *ChatHandler) serveStream(w http.ResponseWriter, r *http.Request, req research.Request, caps research.Capabilities, logger *zap.Logger) {
	sse, err := streaming.NewSSEWriter(w, logger)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming not supported", "")
		return
	}
	ctx := r.Context()
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		sse.Heartbeat(hbCtx, h.heartbeat)
	}()

	res, err := h.engine.Stream(ctx, req, caps, sse)
	stopHeartbeat()
	<-hbDone
	if err == nil {
		logger.Info("Chat stream finished",
			zap.String("mode", string(res.Mode)),
			zap.Bool("downgraded", res.Downgraded),
			zap.Bool("fell_back", res.FellBack),
		)
		return
	}
	if ctx.Err() != nil {
		logger.Info("Client disconnected", zap.Error(err))
		return
	}
	if !sse.Started() {
		status, msg := statusFor(err)
		writeError(w, status, msg, "")
		return
	}
	// status line already sent
	if emitErr := sse.Emit(ctx, streaming.NewError(genericErrorDetail)); emitErr != nil {
		logger.Debug("Failed to send error event", zap.Error(emitErr))
	}
}

func (h *ChatHandler) serveJSON(w http.ResponseWriter, r *http.Request, req research.Request, caps research.Capabilities, logger *zap.Logger) {
	collector := streaming.NewCollector()
	res, err := h.engine.Stream(r.Context(), req, caps, collector)
	if err != nil {
		if r.Context().Err() != nil {
			logger.Info("Client disconnected", zap.Error(err))
			return
		}
		status, msg := statusFor(err)
		writeError(w, status, msg, "")
		return
	}
	if !collector.Finished() {
		logger.Error("Stream ended without stream-end")
		writeError(w, http.StatusInternalServerError, genericErrorDetail, "")
		return
	}
	logger.Info("Chat request finished",
		zap.String("mode", string(res.Mode)),
		zap.Bool("fell_back", res.FellBack),
	)
	writeJSON(w, http.StatusOK, collector.Response())
}

// statusFor maps a failure to an HTTP status and a caller-safe message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, research.ErrProModeDisabled):
		return http.StatusBadRequest, "Pro mode is not enabled"
	case llm.IsConfigurationError(err):
		return http.StatusServiceUnavailable, "Service is not configured for this request"
	default:
		return http.StatusInternalServerError, genericErrorDetail
	}
}
