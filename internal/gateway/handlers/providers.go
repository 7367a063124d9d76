package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/gateway/providers"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/secrets"
	"github.com/go-chi/chi/v5"
)

const probePrompt = "Reply with the single word: ok"

// ProviderLookup finds a configured provider by id
type ProviderLookup interface {
	Provider(ctx context.Context, id int64) (models.ProviderConfig, bool, error)
}

// MetricsReader exposes usage counters
type MetricsReader interface {
	All() []models.UsageMetrics
}

type ProvidersHandler struct {
	dispatcher Dispatcher
	registry   ProviderLookup
	metrics    MetricsReader
}

func NewProvidersHandler(d Dispatcher, registry ProviderLookup, metrics MetricsReader) *ProvidersHandler {
	return &ProvidersHandler{dispatcher: d, registry: registry, metrics: metrics}
}

// HandleMetrics handles GET /v1/providers/metrics
func (h *ProvidersHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	usage := h.metrics.All()
	if usage == nil {
		usage = []models.UsageMetrics{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": usage})
}

type probeResponse struct {
	OK         bool                `json:"ok"`
	ProviderID int64               `json:"provider_id"`
	Kind       models.ProviderKind `json:"kind"`
	Model      string              `json:"model"`
	Credential string              `json:"credential,omitempty"`
	LatencyMs  int64               `json:"latency_ms"`
	Content    string              `json:"content,omitempty"`
	Error      string              `json:"error,omitempty"`
	StatusCode int                 `json:"status_code,omitempty"`
	Retryable  bool                `json:"retryable,omitempty"`
}

// HandleTest handles POST /v1/providers/{id}/test
func (h *ProvidersHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "provider id must be an integer")
		return
	}

	cfg, ok, err := h.registry.Provider(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "provider not found")
		return
	}

	user := ""
	if apiKey, ok := APIKeyFromContext(r.Context()); ok {
		user = apiKey.Name
	}

	start := time.Now()
	res, err := h.dispatcher.Probe(r.Context(), cfg, probePrompt, user)
	out := probeResponse{
		ProviderID: cfg.ID,
		Kind:       cfg.Kind,
		Model:      cfg.Model,
		Credential: secrets.Mask(cfg.Credentials),
		LatencyMs:  time.Since(start).Milliseconds(),
	}
	if err != nil {
		out.Error = err.Error()
		if pe, ok := providers.AsProviderError(err); ok {
			out.StatusCode = pe.StatusCode
			out.Retryable = pe.Retryable()
		}
		writeJSON(w, http.StatusBadGateway, out)
		return
	}

	out.OK = true
	out.Content = res.Content
	if res.Model != "" {
		out.Model = res.Model
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleHealth handles GET /health
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
