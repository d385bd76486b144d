package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// RouterConfig collects the handlers mounted by NewRouter.
type RouterConfig struct {
	Chat    *ChatHandler
	Health  *HealthHandler
	Limiter *RateLimiter
	Logger  *zap.Logger
}

// NewRouter mounts POST /chat behind credentials and rate limiting, and GET /health.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	var chat http.Handler = cfg.Chat
	if cfg.Limiter != nil {
		chat = cfg.Limiter.Middleware(chat)
	}
	chat = RequireCredentials(logger)(chat)
	mux.Handle("/chat", chat)

	if cfg.Health != nil {
		mux.HandleFunc("GET /health", cfg.Health.Health)
	}
	return RequestID(logger)(mux)
}
