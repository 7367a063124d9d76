package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/gateway/dispatch"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
	"github.com/rs/zerolog/log"
)

// maxBodyBytes caps request bodies; attachments arrive base64 encoded
const maxBodyBytes = 32 << 20

// Dispatcher is the orchestrator as seen by the HTTP layer
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.DispatchRequest) (*dispatch.Result, error)
	Probe(ctx context.Context, cfg models.ProviderConfig, prompt, user string) (*dispatch.Result, error)
}

type DispatchHandler struct {
	dispatcher Dispatcher
}

func NewDispatchHandler(d Dispatcher) *DispatchHandler {
	return &DispatchHandler{dispatcher: d}
}

type dispatchRequest struct {
	UsageType string            `json:"usage_type"`
	Prompt    string            `json:"prompt"`
	Context   map[string]any    `json:"context,omitempty"`
	Files     []models.FileBlob `json:"files,omitempty"`
	User      string            `json:"user,omitempty"`
}

// HandleDispatch handles POST /v1/dispatch
func (h *DispatchHandler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req dispatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	user := req.User
	if user == "" {
		if apiKey, ok := APIKeyFromContext(r.Context()); ok {
			user = apiKey.Name
		}
	}

	res, err := h.dispatcher.Dispatch(r.Context(), dispatch.DispatchRequest{
		UsageType: req.UsageType,
		Prompt:    req.Prompt,
		Context:   req.Context,
		Files:     req.Files,
		User:      user,
	})
	if err != nil {
		status, code := dispatchErrorStatus(err)
		log.Warn().Err(err).Str("usage_type", req.UsageType).Int("status", status).Msg("dispatch failed")
		writeError(w, status, code, err.Error())
		return
	}

	w.Header().Set("X-Cache-Hit", strconv.FormatBool(res.CacheHit))
	w.Header().Set("X-Provider-ID", strconv.FormatInt(res.ProviderID, 10))
	w.Header().Set("X-Dispatch-ID", res.DispatchID)
	w.Header().Set("X-Latency-Ms", fmt.Sprintf("%d", time.Since(startTime).Milliseconds()))
	if res.FailoverUsed {
		w.Header().Set("X-Failover", "true")
	}

	writeJSON(w, http.StatusOK, res.Response)
}

func dispatchErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, dispatch.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, dispatch.ErrNoProviderAvailable):
		return http.StatusNotFound, "no_provider_available"
	case errors.Is(err, dispatch.ErrDispatchAborted) && errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded"
	case errors.Is(err, dispatch.ErrDispatchAborted):
		return http.StatusServiceUnavailable, "canceled"
	case errors.Is(err, dispatch.ErrAllProvidersExhausted):
		return http.StatusBadGateway, "all_providers_exhausted"
	}
	return http.StatusInternalServerError, "internal_error"
}
