package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/tracing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ctxKey int

const (
	credentialsKey ctxKey = iota
	requestIDKey
)

// Credentials identify the caller of /chat.
type Credentials struct {
	APIKey string
	UserID string
}

// CredentialsFrom returns the credentials stored by RequireCredentials.
func CredentialsFrom(ctx context.Context) (Credentials, bool) {
	c, ok := ctx.Value(credentialsKey).(Credentials)
	return c, ok
}

// RequestIDFrom returns the id assigned by RequestID.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// RequireCredentials rejects requests without x-api-key and x-user-id.
// PROSEARCH_SKIP_AUTH=1 substitutes a local development identity.
func RequireCredentials(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds := Credentials{
				APIKey: strings.TrimSpace(r.Header.Get("x-api-key")),
				UserID: strings.TrimSpace(r.Header.Get("x-user-id")),
			}
			if os.Getenv("PROSEARCH_SKIP_AUTH") == "1" {
				if creds.UserID == "" {
					creds.UserID = "local-dev"
				}
				logger.Debug("Auth skipped (PROSEARCH_SKIP_AUTH=1)", zap.String("path", r.URL.Path))
			} else if creds.APIKey == "" || creds.UserID == "" {
				logger.Debug("Missing credentials",
					zap.String("path", r.URL.Path),
					zap.Bool("has_api_key", creds.APIKey != ""),
					zap.Bool("has_user_id", creds.UserID != ""),
				)
				writeError(w, http.StatusUnauthorized, "Unauthorized", "x-api-key and x-user-id headers are required")
				return
			}
			ctx := context.WithValue(r.Context(), credentialsKey, creds)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestID propagates X-Request-ID, generating one when absent, and opens a server span.
func RequestID(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				if traceID, _, _, ok := tracing.ParseTraceparent(r.Header.Get("traceparent")); ok {
					id = traceID
				} else {
					id = uuid.New().String()
				}
			}
			w.Header().Set("X-Request-ID", id)

			ctx, span := tracing.StartSpan(r.Context(), "http "+r.Method+" "+r.URL.Path)
			defer span.End()
			ctx = context.WithValue(ctx, requestIDKey, id)

			start := time.Now()
			next.ServeHTTP(w, r.WithContext(ctx))
			logger.Debug("Request handled",
				zap.String("request_id", id),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errText, message string) {
	writeJSON(w, status, errorBody{Error: errText, Message: message})
}
