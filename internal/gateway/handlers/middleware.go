package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

type contextKey string

const apiKeyContextKey contextKey = "api_key"

// KeyStore validates gateway API keys
type KeyStore interface {
	GetAPIKey(ctx context.Context, rawKey string) (*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, apiKeyID string) error
}

// KeyLimiter applies the per API key request budget
type KeyLimiter interface {
	CheckRateLimit(ctx context.Context, apiKeyID string, limit int) (bool, int, error)
}

type Middleware struct {
	keys         KeyStore
	limiter      KeyLimiter
	defaultLimit int
}

// NewMiddleware creates the auth and rate limit middleware. limiter may be
// nil, in which case no per-key budget is enforced.
func NewMiddleware(keys KeyStore, limiter KeyLimiter, defaultLimit int) *Middleware {
	return &Middleware{
		keys:         keys,
		limiter:      limiter,
		defaultLimit: defaultLimit,
	}
}

// APIKeyFromContext returns the key set by AuthMiddleware
func APIKeyFromContext(ctx context.Context) (*models.APIKey, bool) {
	apiKey, ok := ctx.Value(apiKeyContextKey).(*models.APIKey)
	return apiKey, ok
}

// AuthMiddleware validates API keys
func (m *Middleware) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing authorization header")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || scheme != "Bearer" || token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid authorization header format")
			return
		}

		apiKey, err := m.keys.GetAPIKey(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
			return
		}

		go func(id string) {
			if err := m.keys.UpdateAPIKeyLastUsed(context.Background(), id); err != nil {
				log.Warn().Err(err).Str("api_key_id", id).Msg("failed to update API key last used")
			}
		}(apiKey.ID)

		ctx := context.WithValue(r.Context(), apiKeyContextKey, apiKey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimitMiddleware enforces the per API key request budget
func (m *Middleware) RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey, ok := APIKeyFromContext(r.Context())
		if !ok || m.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		limit := apiKey.RateLimitPerMinute
		if limit <= 0 {
			limit = m.defaultLimit
		}

		exceeded, remaining, err := m.limiter.CheckRateLimit(r.Context(), apiKey.ID, limit)
		if err != nil {
			// Fail open when Redis is unavailable
			log.Warn().Err(err).Str("api_key_id", apiKey.ID).Msg("rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if exceeded {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware allows browser clients from origins and exposes the
// dispatch response headers
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"X-Cache-Hit", "X-Provider-ID", "X-Dispatch-ID", "X-Failover", "X-Latency-Ms", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		MaxAge:         300,
	})
}

// RequestLogger logs one line per request through zerolog
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			log.Info().
				Str("request_id", chimiddleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		}()

		next.ServeHTTP(ww, r)
	})
}
