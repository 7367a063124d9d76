package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/gateway/cache"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/gateway/metrics"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/gateway/providers"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/gateway/ratelimit"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/gateway/registry"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
	"github.com/stretchr/testify/require"
)

type callLog struct {
	mu  sync.Mutex
	ids []int64
}

func (l *callLog) add(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = append(l.ids, id)
}

func (l *callLog) list() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int64(nil), l.ids...)
}

type scriptedAdapter struct {
	id  int64
	log *callLog
	fn  func(ctx context.Context, call int) (*providers.Response, error)

	mu    sync.Mutex
	calls int
}

func (s *scriptedAdapter) Call(ctx context.Context, req providers.Request) (*providers.Response, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()

	s.log.add(s.id)
	return s.fn(ctx, n)
}

func (s *scriptedAdapter) Kind() models.ProviderKind { return models.KindOpenAI }

func (s *scriptedAdapter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeAdapters map[int64]*scriptedAdapter

func (f fakeAdapters) Adapter(cfg models.ProviderConfig) (providers.Provider, error) {
	a, ok := f[cfg.ID]
	if !ok {
		return nil, fmt.Errorf("no adapter for provider %d", cfg.ID)
	}
	return a, nil
}

type memorySink struct {
	mu      sync.Mutex
	entries []models.RequestLogEntry
}

func (s *memorySink) Record(ctx context.Context, e models.RequestLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *memorySink) all() []models.RequestLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RequestLogEntry(nil), s.entries...)
}

type harness struct {
	orch     *Orchestrator
	adapters fakeAdapters
	calls    *callLog
	sink     *memorySink
	metrics  *metrics.Store
	store    *cache.MemoryStore

	mu     sync.Mutex
	clock  time.Time
	sleeps []time.Duration
}

func newHarness(t *testing.T, configs []models.ProviderConfig, cacheEnabled bool) *harness {
	t.Helper()

	h := &harness{
		adapters: fakeAdapters{},
		calls:    &callLog{},
		sink:     &memorySink{},
		store:    cache.NewMemoryStore(),
		clock:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	h.metrics = metrics.NewStoreWithClock(h.now)

	h.orch = New(Options{
		Registry: registry.New(registry.StaticSource(configs)),
		Adapters: h.adapters,
		Limiter:  ratelimit.NewWithClock(h.now),
		Cache:    cache.New(h.store, cacheEnabled),
		CacheTTL: time.Hour,
		Metrics:  h.metrics,
		Audit:    h.sink,
	})
	h.orch.now = h.now
	h.orch.sleep = func(ctx context.Context, d time.Duration) error {
		h.mu.Lock()
		h.sleeps = append(h.sleeps, d)
		h.mu.Unlock()
		return ctx.Err()
	}
	return h
}

func (h *harness) now() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clock
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clock = h.clock.Add(d)
}

func (h *harness) adapter(id int64, fn func(ctx context.Context, call int) (*providers.Response, error)) *scriptedAdapter {
	a := &scriptedAdapter{id: id, log: h.calls, fn: fn}
	h.adapters[id] = a
	return a
}

func succeed(content string, tokens int) func(context.Context, int) (*providers.Response, error) {
	return func(context.Context, int) (*providers.Response, error) {
		return &providers.Response{Content: content, TokensUsed: tokens, Model: "test-model", ProviderKind: models.KindOpenAI}, nil
	}
}

func fail(context.Context, int) (*providers.Response, error) {
	return nil, &providers.ProviderError{Kind: models.KindOpenAI, StatusCode: http.StatusServiceUnavailable, Message: "overloaded"}
}

func cfg(id int64, priority int) models.ProviderConfig {
	return models.ProviderConfig{
		ID:         id,
		Name:       fmt.Sprintf("provider-%d", id),
		Kind:       models.KindOpenAI,
		Model:      "test-model",
		UsageType:  models.UsageRiskAssessment,
		Active:     true,
		Priority:   priority,
		MaxRetries: 1,
	}
}

func riskRequest(prompt string) DispatchRequest {
	return DispatchRequest{UsageType: models.UsageRiskAssessment, Prompt: prompt, User: "buyer@erp"}
}

func TestDispatch_FollowsPriorityOrder(t *testing.T) {
	h := newHarness(t, []models.ProviderConfig{cfg(13, 1), cfg(11, 10), cfg(12, 5)}, false)
	h.adapter(11, fail)
	h.adapter(12, fail)
	h.adapter(13, succeed("third", 10))

	res, err := h.orch.Dispatch(context.Background(), riskRequest("score vendor"))
	require.NoError(t, err)
	require.Equal(t, []int64{11, 12, 13}, h.calls.list())
	require.Equal(t, int64(13), res.ProviderID)
	require.Equal(t, "third", res.Content)
	require.True(t, res.FailoverUsed)
	require.False(t, res.CacheHit)
	require.NotEmpty(t, res.DispatchID)
}

func TestDispatch_RateLimitFallsBackWithoutRetry(t *testing.T) {
	a := cfg(1, 10)
	a.RateLimitPerMinute = 3
	a.MaxRetries = 3
	a.RetryDelay = time.Second
	h := newHarness(t, []models.ProviderConfig{a, cfg(2, 5)}, false)
	h.adapter(1, succeed("from A", 5))
	h.adapter(2, succeed("from B", 5))

	for i := 0; i < 3; i++ {
		res, err := h.orch.Dispatch(context.Background(), riskRequest(fmt.Sprintf("request %d", i)))
		require.NoError(t, err)
		require.Equal(t, int64(1), res.ProviderID)
	}

	res, err := h.orch.Dispatch(context.Background(), riskRequest("request 4"))
	require.NoError(t, err)
	require.Equal(t, int64(2), res.ProviderID)
	require.True(t, res.FailoverUsed)

	require.Equal(t, 3, h.adapters[1].Calls())
	require.Empty(t, h.sleeps)

	entries := h.sink.all()
	require.Len(t, entries, 5)
	rejected := entries[3]
	require.Equal(t, int64(1), rejected.ProviderID)
	require.False(t, rejected.Success)
	require.Equal(t, 1, rejected.Attempt)
	require.Contains(t, rejected.Error, ratelimit.ErrRateLimitExceeded.Error())
	require.Equal(t, rejected.DispatchID, entries[4].DispatchID)
	require.Equal(t, res.DispatchID, entries[4].DispatchID)

	// The rejection is not a provider call
	m, _ := h.metrics.Snapshot(1)
	require.Equal(t, int64(3), m.TotalRequests)
}

func TestDispatch_AllRateLimited(t *testing.T) {
	a := cfg(1, 10)
	a.RateLimitPerMinute = 1
	h := newHarness(t, []models.ProviderConfig{a}, false)
	h.adapter(1, succeed("ok", 1))

	_, err := h.orch.Dispatch(context.Background(), riskRequest("first"))
	require.NoError(t, err)

	_, err = h.orch.Dispatch(context.Background(), riskRequest("second"))
	require.ErrorIs(t, err, ErrAllProvidersExhausted)
	require.ErrorIs(t, err, ratelimit.ErrRateLimitExceeded)
}

func TestDispatch_CacheIdempotence(t *testing.T) {
	a := cfg(1, 10)
	a.Temperature = 0.3
	h := newHarness(t, []models.ProviderConfig{a}, true)
	adapter := h.adapter(1, succeed("cached answer", 77))

	req := riskRequest("assess  vendor ACME ")
	req.Context = map[string]any{"vendor": "ACME", "spend": 120000}

	first, err := h.orch.Dispatch(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	req.Prompt = "assess vendor ACME"
	second, err := h.orch.Dispatch(context.Background(), req)
	require.NoError(t, err)
	require.True(t, second.CacheHit)
	require.Equal(t, first.Response, second.Response)
	require.Equal(t, int64(1), second.ProviderID)

	require.Equal(t, 1, adapter.Calls())

	key := cache.Key(models.KindOpenAI, "test-model", req.Prompt, req.Context, 0.3)
	entry, ok := h.store.Peek(key)
	require.True(t, ok)
	require.Equal(t, int64(1), entry.HitCount)

	// Hits produce no audit entry and no metrics
	require.Len(t, h.sink.all(), 1)
	m, _ := h.metrics.Snapshot(1)
	require.Equal(t, int64(1), m.TotalRequests)
}

func TestDispatch_CacheDisabled(t *testing.T) {
	h := newHarness(t, []models.ProviderConfig{cfg(1, 10)}, false)
	adapter := h.adapter(1, succeed("fresh", 1))

	for i := 0; i < 2; i++ {
		res, err := h.orch.Dispatch(context.Background(), riskRequest("same prompt"))
		require.NoError(t, err)
		require.False(t, res.CacheHit)
	}
	require.Equal(t, 2, adapter.Calls())
	require.Equal(t, 0, h.store.Len())
}

func TestDispatch_FilesBypassCache(t *testing.T) {
	h := newHarness(t, []models.ProviderConfig{cfg(1, 10)}, true)
	adapter := h.adapter(1, succeed("read", 1))

	req := riskRequest("summarize attachment")
	req.Files = []models.FileBlob{{Name: "po.txt", MimeType: "text/plain", Data: []byte("PO-1")}}

	for i := 0; i < 2; i++ {
		_, err := h.orch.Dispatch(context.Background(), req)
		require.NoError(t, err)
	}
	require.Equal(t, 2, adapter.Calls())
	require.Equal(t, 0, h.store.Len())
}

func TestDispatch_RetriesExactlyMaxRetries(t *testing.T) {
	a := cfg(1, 10)
	a.MaxRetries = 3
	a.RetryDelay = 100 * time.Millisecond
	h := newHarness(t, []models.ProviderConfig{a}, false)
	h.adapter(1, fail)

	_, err := h.orch.Dispatch(context.Background(), riskRequest("always fails"))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrAllProvidersExhausted)

	var exhausted *AllProvidersExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 1, exhausted.Tried)

	pe, ok := providers.AsProviderError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusServiceUnavailable, pe.StatusCode)

	require.Equal(t, 3, h.adapters[1].Calls())
	require.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, h.sleeps)

	entries := h.sink.all()
	require.Len(t, entries, 3)
	for i, e := range entries {
		require.Equal(t, i+1, e.Attempt)
		require.False(t, e.Success)
		require.Contains(t, e.Error, "overloaded")
	}

	m, _ := h.metrics.Snapshot(1)
	require.Equal(t, int64(3), m.FailedRequests)
}

func TestDispatch_ZeroMaxRetriesMeansOneAttempt(t *testing.T) {
	a := cfg(1, 10)
	a.MaxRetries = 0
	h := newHarness(t, []models.ProviderConfig{a}, false)
	h.adapter(1, fail)

	_, err := h.orch.Dispatch(context.Background(), riskRequest("x"))
	require.ErrorIs(t, err, ErrAllProvidersExhausted)
	require.Equal(t, 1, h.adapters[1].Calls())
}

type fixedChain []models.ProviderConfig

func (f fixedChain) SelectChain(ctx context.Context, usageType string) ([]models.ProviderConfig, error) {
	return f, nil
}

func TestDispatch_NoSelfFallback(t *testing.T) {
	a := cfg(1, 10)
	a.MaxRetries = 2
	h := newHarness(t, nil, false)
	h.orch.registry = fixedChain{a, a}
	h.adapter(1, fail)

	_, err := h.orch.Dispatch(context.Background(), riskRequest("x"))
	require.ErrorIs(t, err, ErrAllProvidersExhausted)
	require.Equal(t, 2, h.adapters[1].Calls())
}

func TestDispatch_MetricsMeanAndCost(t *testing.T) {
	a := cfg(1, 10)
	a.CostPer1kTokens = 0.02
	h := newHarness(t, []models.ProviderConfig{a}, false)

	latencies := []time.Duration{200 * time.Millisecond, 600 * time.Millisecond, 1300 * time.Millisecond}
	tokens := []int{100, 250, 1150}
	h.adapter(1, func(ctx context.Context, call int) (*providers.Response, error) {
		h.advance(latencies[call-1])
		return &providers.Response{Content: "ok", TokensUsed: tokens[call-1]}, nil
	})

	for i := range latencies {
		_, err := h.orch.Dispatch(context.Background(), riskRequest(fmt.Sprintf("call %d", i)))
		require.NoError(t, err)
	}

	m, ok := h.metrics.Snapshot(1)
	require.True(t, ok)
	require.Equal(t, int64(3), m.SuccessfulRequests)
	require.InDelta(t, 0.7, m.AvgResponseTime, 1e-9)
	require.Equal(t, int64(1500), m.TotalTokensUsed)
	require.InDelta(t, 1500.0/1000*0.02, m.TotalCost, 1e-12)

	entries := h.sink.all()
	require.Equal(t, int64(1300), entries[2].LatencyMs)
	require.Equal(t, 1150, entries[2].TokensUsed)
}

func TestDispatch_RiskAssessmentScenario(t *testing.T) {
	a := cfg(1, 10)
	a.MaxRetries = 3
	a.RetryDelay = 50 * time.Millisecond
	h := newHarness(t, []models.ProviderConfig{a, cfg(2, 5)}, true)

	h.adapter(1, func(ctx context.Context, call int) (*providers.Response, error) {
		if call < 3 {
			return fail(ctx, call)
		}
		return &providers.Response{Content: "risk: medium", TokensUsed: 64, Model: "a-model", ProviderKind: models.KindOpenAI}, nil
	})
	b := h.adapter(2, succeed("from B", 1))

	res, err := h.orch.Dispatch(context.Background(), riskRequest("evaluate supplier"))
	require.NoError(t, err)
	require.Equal(t, "risk: medium", res.Content)
	require.Equal(t, int64(1), res.ProviderID)
	require.False(t, res.FailoverUsed)
	require.Equal(t, 0, b.Calls())

	entries := h.sink.all()
	require.Len(t, entries, 3)
	var failed, succeeded int
	for i, e := range entries {
		require.Equal(t, int64(1), e.ProviderID)
		require.Equal(t, i+1, e.Attempt)
		require.Equal(t, res.DispatchID, e.DispatchID)
		require.Equal(t, models.UsageRiskAssessment, e.UsageType)
		require.Equal(t, "buyer@erp", e.User)
		if e.Success {
			succeeded++
		} else {
			failed++
		}
	}
	require.Equal(t, 2, failed)
	require.Equal(t, 1, succeeded)
	require.Equal(t, []time.Duration{50 * time.Millisecond, 100 * time.Millisecond}, h.sleeps)
}

func TestDispatch_NoProviderAvailable(t *testing.T) {
	inactive := cfg(1, 10)
	inactive.Active = false
	h := newHarness(t, []models.ProviderConfig{inactive}, false)
	h.adapter(1, succeed("never", 1))

	_, err := h.orch.Dispatch(context.Background(), riskRequest("x"))
	require.ErrorIs(t, err, ErrNoProviderAvailable)
	require.Empty(t, h.calls.list())
	require.Empty(t, h.sink.all())

	_, err = h.orch.Dispatch(context.Background(), DispatchRequest{UsageType: "unknown_usage", Prompt: "x"})
	require.ErrorIs(t, err, ErrNoProviderAvailable)
}

func TestDispatch_InvalidRequest(t *testing.T) {
	h := newHarness(t, []models.ProviderConfig{cfg(1, 10)}, false)

	_, err := h.orch.Dispatch(context.Background(), DispatchRequest{Prompt: "x"})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = h.orch.Dispatch(context.Background(), DispatchRequest{UsageType: models.UsageVendorSuggestion, Prompt: "   "})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestDispatch_AdapterBuildFailureFallsBack(t *testing.T) {
	h := newHarness(t, []models.ProviderConfig{cfg(1, 10), cfg(2, 5)}, false)
	h.adapter(2, succeed("B", 1))

	res, err := h.orch.Dispatch(context.Background(), riskRequest("x"))
	require.NoError(t, err)
	require.Equal(t, int64(2), res.ProviderID)
}

func TestDispatch_CancelDuringBackoff(t *testing.T) {
	a := cfg(1, 10)
	a.MaxRetries = 3
	a.RetryDelay = time.Hour
	h := newHarness(t, []models.ProviderConfig{a, cfg(2, 5)}, false)
	h.orch.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.adapter(1, func(_ context.Context, call int) (*providers.Response, error) {
		cancel()
		return fail(ctx, call)
	})
	b := h.adapter(2, succeed("B", 1))

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Dispatch(ctx, riskRequest("x"))
		done <- err
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrDispatchAborted)
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not abort on cancellation")
	}
	require.Equal(t, 0, b.Calls())
	require.Len(t, h.sink.all(), 1)
}

func TestDispatch_OverallDeadline(t *testing.T) {
	h := newHarness(t, []models.ProviderConfig{cfg(1, 10), cfg(2, 5)}, false)
	h.orch.deadline = 50 * time.Millisecond

	h.adapter(1, func(ctx context.Context, _ int) (*providers.Response, error) {
		<-ctx.Done()
		return nil, &providers.ProviderError{Kind: models.KindOpenAI, Err: ctx.Err()}
	})
	b := h.adapter(2, succeed("B", 1))

	_, err := h.orch.Dispatch(context.Background(), riskRequest("x"))
	require.ErrorIs(t, err, ErrDispatchAborted)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 0, b.Calls())
}

func TestDispatch_PerAttemptTimeoutIsAFailure(t *testing.T) {
	a := cfg(1, 10)
	a.Timeout = 20 * time.Millisecond
	h := newHarness(t, []models.ProviderConfig{a, cfg(2, 5)}, false)

	h.adapter(1, func(ctx context.Context, _ int) (*providers.Response, error) {
		<-ctx.Done()
		return nil, &providers.ProviderError{Kind: models.KindOpenAI, Err: ctx.Err()}
	})
	h.adapter(2, succeed("B", 1))

	res, err := h.orch.Dispatch(context.Background(), riskRequest("x"))
	require.NoError(t, err)
	require.Equal(t, int64(2), res.ProviderID)

	entries := h.sink.all()
	require.Len(t, entries, 2)
	require.Contains(t, entries[0].Error, context.DeadlineExceeded.Error())
}

func TestDispatch_EveryAttemptTimingOutExhaustsChain(t *testing.T) {
	a := cfg(1, 10)
	a.Timeout = 20 * time.Millisecond
	h := newHarness(t, []models.ProviderConfig{a}, false)

	h.adapter(1, func(ctx context.Context, _ int) (*providers.Response, error) {
		<-ctx.Done()
		return nil, &providers.ProviderError{Kind: models.KindOpenAI, Err: ctx.Err()}
	})

	_, err := h.orch.Dispatch(context.Background(), riskRequest("x"))
	require.ErrorIs(t, err, ErrAllProvidersExhausted)
	require.NotErrorIs(t, err, ErrDispatchAborted)
}

func TestDispatch_ConcurrentCallersRespectLimits(t *testing.T) {
	a := cfg(1, 10)
	a.RateLimitPerMinute = 5
	h := newHarness(t, []models.ProviderConfig{a, cfg(2, 5)}, false)
	h.adapter(1, succeed("A", 10))
	h.adapter(2, succeed("B", 10))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.orch.Dispatch(context.Background(), riskRequest(fmt.Sprintf("req %d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 5, h.adapters[1].Calls())
	require.Equal(t, 15, h.adapters[2].Calls())

	all := h.metrics.All()
	require.Len(t, all, 2)
	require.Equal(t, int64(5), all[0].TotalRequests)
	require.Equal(t, int64(15), all[1].TotalRequests)
}

func TestDispatch_TruncatesLoggedText(t *testing.T) {
	h := newHarness(t, []models.ProviderConfig{cfg(1, 10)}, false)
	long := make([]rune, 3000)
	for i := range long {
		long[i] = 'é'
	}
	h.adapter(1, succeed(string(long), 1))

	_, err := h.orch.Dispatch(context.Background(), riskRequest(string(long)))
	require.NoError(t, err)

	e := h.sink.all()[0]
	require.Equal(t, maxLoggedPrompt, len([]rune(e.Prompt)))
	require.Equal(t, maxLoggedText, len([]rune(e.Response)))
}

func TestProbe(t *testing.T) {
	h := newHarness(t, nil, true)
	h.adapter(5, succeed("pong", 3))

	p := cfg(5, 1)
	p.Active = false
	res, err := h.orch.Probe(context.Background(), p, "ping", "admin")
	require.NoError(t, err)
	require.Equal(t, "pong", res.Content)
	require.Equal(t, int64(5), res.ProviderID)

	entries := h.sink.all()
	require.Len(t, entries, 1)
	require.Equal(t, "admin", entries[0].User)
	require.True(t, entries[0].Success)
	require.Equal(t, 0, h.store.Len())

	m, _ := h.metrics.Snapshot(5)
	require.Equal(t, int64(1), m.TotalRequests)

	h.adapter(6, fail)
	_, err = h.orch.Probe(context.Background(), cfg(6, 1), "ping", "admin")
	_, ok := providers.AsProviderError(err)
	require.True(t, ok)

	_, err = h.orch.Probe(context.Background(), cfg(7, 1), "ping", "admin")
	require.Error(t, err)
}

func TestAllProvidersExhaustedError(t *testing.T) {
	last := errors.New("boom")
	err := fmt.Errorf("dispatch: %w", &AllProvidersExhaustedError{UsageType: "general", Tried: 2, Last: last})

	require.ErrorIs(t, err, ErrAllProvidersExhausted)
	require.ErrorIs(t, err, last)
	require.Contains(t, err.Error(), `all 2 providers for "general" exhausted: boom`)
}
