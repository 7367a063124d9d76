package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/gateway/audit"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/gateway/cache"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/gateway/providers"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

const (
	maxLoggedPrompt = 1000
	maxLoggedText   = 2000
)

// ChainSelector returns the ordered providers for a usage type
type ChainSelector interface {
	SelectChain(ctx context.Context, usageType string) ([]models.ProviderConfig, error)
}

// AdapterSource builds the adapter for a provider config
type AdapterSource interface {
	Adapter(cfg models.ProviderConfig) (providers.Provider, error)
}

// RateLimiter admits or rejects one call to a provider
type RateLimiter interface {
	CheckAndRecord(providerID int64, perMinute, perHour int) error
}

// ResponseCache stores successful responses by key
type ResponseCache interface {
	Get(ctx context.Context, key string) (*providers.Response, bool)
	Put(ctx context.Context, key string, resp *providers.Response, ttl time.Duration)
}

// MetricsRecorder accounts physical provider calls
type MetricsRecorder interface {
	RecordAttempt(providerID int64, success bool, latency time.Duration, tokens int, costPer1k float64)
}

// Options wires the orchestrator. Registry, Adapters, Limiter and Metrics
// are required; Cache and Audit may be nil.
type Options struct {
	Registry ChainSelector
	Adapters AdapterSource
	Limiter  RateLimiter
	Cache    ResponseCache
	CacheTTL time.Duration
	Metrics  MetricsRecorder
	Audit    audit.Sink

	// Deadline bounds a whole dispatch including retries and fallbacks.
	// Zero disables it.
	Deadline time.Duration
}

// DispatchRequest is one logical request from a business module
type DispatchRequest struct {
	UsageType string
	Prompt    string
	Context   map[string]any
	Files     []models.FileBlob
	User      string
}

// Result is the response of a dispatch plus how it was served
type Result struct {
	providers.Response
	ProviderID   int64
	CacheHit     bool
	FailoverUsed bool
	DispatchID   string
}

// Orchestrator runs the cache, rate limit, retry and fallback pipeline
// over a provider chain
type Orchestrator struct {
	registry ChainSelector
	adapters AdapterSource
	limiter  RateLimiter
	cache    ResponseCache
	cacheTTL time.Duration
	metrics  MetricsRecorder
	audit    audit.Sink
	deadline time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		registry: opts.Registry,
		adapters: opts.Adapters,
		limiter:  opts.Limiter,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		metrics:  opts.Metrics,
		audit:    opts.Audit,
		deadline: opts.Deadline,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// dispatchState carries the per-dispatch values every audit entry shares
type dispatchState struct {
	dispatchID string
	req        DispatchRequest
}

// Dispatch serves req from the first provider in its chain that succeeds
func (o *Orchestrator) Dispatch(ctx context.Context, req DispatchRequest) (*Result, error) {
	if strings.TrimSpace(req.UsageType) == "" {
		return nil, fmt.Errorf("%w: usage type is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}

	if o.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deadline)
		defer cancel()
	}

	chain, err := o.registry.SelectChain(ctx, req.UsageType)
	if err != nil {
		return nil, fmt.Errorf("failed to select providers: %w", err)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w for usage type %q", ErrNoProviderAvailable, req.UsageType)
	}

	a := dispatchState{dispatchID: ulid.Make().String(), req: req}

	var (
		lastErr error
		tried   = make(map[int64]bool, len(chain))
	)
	for _, cfg := range chain {
		if tried[cfg.ID] {
			continue
		}
		tried[cfg.ID] = true

		if err := ctx.Err(); err != nil {
			return nil, aborted(err, lastErr)
		}

		resp, hit, err := o.serve(ctx, a, cfg)
		if err == nil {
			return &Result{
				Response:     *resp,
				ProviderID:   cfg.ID,
				CacheHit:     hit,
				FailoverUsed: len(tried) > 1,
				DispatchID:   a.dispatchID,
			}, nil
		}

		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, aborted(ctxErr, lastErr)
		}

		log.Warn().
			Err(err).
			Str("dispatch_id", a.dispatchID).
			Int64("provider_id", cfg.ID).
			Str("usage_type", req.UsageType).
			Msg("provider failed, falling back")
	}

	return nil, &AllProvidersExhaustedError{UsageType: req.UsageType, Tried: len(tried), Last: lastErr}
}

// serve tries one provider: cache, then up to MaxRetries rate limited calls
func (o *Orchestrator) serve(ctx context.Context, a dispatchState, cfg models.ProviderConfig) (*providers.Response, bool, error) {
	// Attachments are not part of the cache key
	useCache := o.cache != nil && len(a.req.Files) == 0

	var key string
	if useCache {
		key = cache.Key(cfg.Kind, cfg.Model, a.req.Prompt, a.req.Context, cfg.Temperature)
		if resp, ok := o.cache.Get(ctx, key); ok {
			log.Debug().Str("dispatch_id", a.dispatchID).Int64("provider_id", cfg.ID).Msg("cache hit")
			return resp, true, nil
		}
	}

	adapter, err := o.adapters.Adapter(cfg)
	if err != nil {
		log.Error().Err(err).Int64("provider_id", cfg.ID).Msg("failed to build provider adapter")
		return nil, false, fmt.Errorf("provider %d: %w", cfg.ID, err)
	}

	preq := providers.Request{Prompt: a.req.Prompt, Context: a.req.Context, Files: a.req.Files}

	maxAttempts := cfg.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for n := 1; n <= maxAttempts; n++ {
		resp, limited, err := o.attempt(ctx, a, cfg, adapter, preq, n)
		if err == nil {
			if useCache {
				o.cache.Put(ctx, key, resp, o.cacheTTL)
			}
			return resp, false, nil
		}
		if limited {
			// Fall back without spending a retry
			return nil, false, fmt.Errorf("provider %d: %w", cfg.ID, err)
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if n < maxAttempts {
			if err := o.sleep(ctx, cfg.RetryDelay*time.Duration(n)); err != nil {
				break
			}
		}
	}
	return nil, false, lastErr
}

// attempt makes one rate limited call and writes its audit entry. limited
// reports a limiter rejection, in which case the adapter was not called.
func (o *Orchestrator) attempt(ctx context.Context, a dispatchState, cfg models.ProviderConfig, adapter providers.Provider, req providers.Request, n int) (*providers.Response, bool, error) {
	entry := models.RequestLogEntry{
		DispatchID:   a.dispatchID,
		ProviderID:   cfg.ID,
		ProviderKind: cfg.Kind,
		UsageType:    a.req.UsageType,
		Attempt:      n,
		Prompt:       truncate(a.req.Prompt, maxLoggedPrompt),
		User:         a.req.User,
	}

	if err := o.limiter.CheckAndRecord(cfg.ID, cfg.RateLimitPerMinute, cfg.RateLimitPerHour); err != nil {
		entry.Error = err.Error()
		o.record(ctx, entry)
		return nil, true, err
	}

	start := o.now()
	resp, err := o.call(ctx, cfg, adapter, req)
	latency := o.now().Sub(start)
	entry.LatencyMs = latency.Milliseconds()

	if err != nil {
		o.metrics.RecordAttempt(cfg.ID, false, latency, 0, cfg.CostPer1kTokens)
		entry.Error = truncate(err.Error(), maxLoggedText)
		o.record(ctx, entry)
		return nil, false, err
	}

	o.metrics.RecordAttempt(cfg.ID, true, latency, resp.TokensUsed, cfg.CostPer1kTokens)
	entry.Success = true
	entry.Response = truncate(resp.Content, maxLoggedText)
	entry.TokensUsed = resp.TokensUsed
	o.record(ctx, entry)
	return resp, false, nil
}

// call invokes the adapter under the provider's own timeout
func (o *Orchestrator) call(ctx context.Context, cfg models.ProviderConfig, adapter providers.Provider, req providers.Request) (*providers.Response, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	resp, err := adapter.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, &providers.ProviderError{Kind: cfg.Kind, Message: "adapter returned no response"}
	}
	if resp.ProviderKind == "" {
		resp.ProviderKind = cfg.Kind
	}
	return resp, nil
}

// Probe makes one uncached call to cfg, counted in metrics and audit like
// any other attempt
func (o *Orchestrator) Probe(ctx context.Context, cfg models.ProviderConfig, prompt, user string) (*Result, error) {
	adapter, err := o.adapters.Adapter(cfg)
	if err != nil {
		return nil, fmt.Errorf("provider %d: %w", cfg.ID, err)
	}

	a := dispatchState{
		dispatchID: ulid.Make().String(),
		req:        DispatchRequest{UsageType: cfg.UsageType, Prompt: prompt, User: user},
	}
	resp, _, err := o.attempt(ctx, a, cfg, adapter, providers.Request{Prompt: prompt}, 1)
	if err != nil {
		return nil, err
	}
	return &Result{Response: *resp, ProviderID: cfg.ID, DispatchID: a.dispatchID}, nil
}

func (o *Orchestrator) record(ctx context.Context, e models.RequestLogEntry) {
	if o.audit == nil {
		return
	}
	e.ID = ulid.Make().String()
	e.CreatedAt = o.now().UTC()

	// The entry is written even when the caller gave up
	if err := o.audit.Record(context.WithoutCancel(ctx), e); err != nil {
		log.Error().Err(err).Str("dispatch_id", e.DispatchID).Int64("provider_id", e.ProviderID).Msg("failed to write audit entry")
	}
}

func aborted(ctxErr, lastErr error) error {
	if lastErr == nil {
		return fmt.Errorf("%w: %w", ErrDispatchAborted, ctxErr)
	}
	return fmt.Errorf("%w: %w (last error: %v)", ErrDispatchAborted, ctxErr, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
