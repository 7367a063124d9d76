package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
)

type counter struct {
	mu sync.Mutex
	m  models.UsageMetrics
}

// Store aggregates per-provider usage. Updates to one provider are
// serialized; different providers never contend.
type Store struct {
	counters sync.Map // int64 -> *counter
	now      func() time.Time
}

// NewStore creates an empty metrics store
func NewStore() *Store {
	return &Store{now: time.Now}
}

// NewStoreWithClock creates a store with an injected clock for LastUsed
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{now: now}
}

func (s *Store) counter(providerID int64) *counter {
	val, _ := s.counters.LoadOrStore(providerID, &counter{m: models.UsageMetrics{ProviderID: providerID}})
	return val.(*counter)
}

// RecordAttempt accounts one physical provider call
func (s *Store) RecordAttempt(providerID int64, success bool, latency time.Duration, tokens int, costPer1k float64) {
	c := s.counter(providerID)

	c.mu.Lock()
	defer c.mu.Unlock()

	m := &c.m
	m.TotalRequests++
	if success {
		m.SuccessfulRequests++
	} else {
		m.FailedRequests++
	}

	n := float64(m.TotalRequests)
	m.AvgResponseTime = (m.AvgResponseTime*(n-1) + latency.Seconds()) / n

	if tokens > 0 {
		m.TotalTokensUsed += int64(tokens)
		m.TotalCost += float64(tokens) / 1000 * costPer1k
	}

	used := s.now()
	m.LastUsed = &used
}

// Snapshot returns a copy of one provider's metrics
func (s *Store) Snapshot(providerID int64) (models.UsageMetrics, bool) {
	val, ok := s.counters.Load(providerID)
	if !ok {
		return models.UsageMetrics{}, false
	}
	c := val.(*counter)

	c.mu.Lock()
	defer c.mu.Unlock()
	return copyMetrics(c.m), true
}

// All returns copies of every provider's metrics ordered by provider id
func (s *Store) All() []models.UsageMetrics {
	var out []models.UsageMetrics
	s.counters.Range(func(_, val any) bool {
		c := val.(*counter)
		c.mu.Lock()
		out = append(out, copyMetrics(c.m))
		c.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}

func copyMetrics(m models.UsageMetrics) models.UsageMetrics {
	if m.LastUsed != nil {
		t := *m.LastUsed
		m.LastUsed = &t
	}
	return m
}
