package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Time    time.Time         `json:"time"`
	ProMode bool              `json:"pro_mode"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// BreakerState is implemented by circuit breakers reported on /health.
type BreakerState interface {
	Name() string
	IsOpen() bool
}

// HealthHandler reports liveness plus the state of optional dependencies.
type HealthHandler struct {
	redis    *redis.Client
	breakers []BreakerState
	proMode  func() bool
	logger   *zap.Logger
}

func NewHealthHandler(rdb *redis.Client, breakers []BreakerState, proMode func() bool, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{redis: rdb, breakers: breakers, proMode: proMode, logger: logger}
}

// Health never fails the probe on dependency state; degraded dependencies are only reported.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "healthy",
		Time:   time.Now().UTC(),
		Checks: map[string]string{"server": "ok"},
	}
	if h.proMode != nil {
		resp.ProMode = h.proMode()
	}
	for _, b := range h.breakers {
		if b == nil {
			continue
		}
		if b.IsOpen() {
			resp.Checks[b.Name()] = "open"
			resp.Status = "degraded"
		} else {
			resp.Checks[b.Name()] = "ok"
		}
	}
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := h.redis.Ping(ctx).Err(); err != nil {
			h.logger.Warn("Redis ping failed", zap.Error(err))
			resp.Checks["redis"] = "unavailable"
			resp.Status = "degraded"
		} else {
			resp.Checks["redis"] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
