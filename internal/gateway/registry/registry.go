package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
	"github.com/rs/zerolog/log"
)

// Source supplies provider configs. The registry never writes to it.
type Source interface {
	ListProviders(ctx context.Context) ([]models.ProviderConfig, error)
}

// Decrypter turns stored credentials into API keys
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// Option configures a Registry
type Option func(*Registry)

// WithDecrypter decrypts every credential after loading
func WithDecrypter(d Decrypter) Option {
	return func(r *Registry) { r.decrypter = d }
}

// WithRefreshInterval sets how long a loaded snapshot is served before the
// source is read again. Zero reads the source on every selection.
func WithRefreshInterval(d time.Duration) Option {
	return func(r *Registry) { r.refresh = d }
}

// Registry caches provider configs and builds selection chains
type Registry struct {
	source    Source
	decrypter Decrypter
	refresh   time.Duration
	now       func() time.Time

	mu        sync.RWMutex
	providers []models.ProviderConfig
	loadedAt  time.Time
	loaded    bool
}

// New creates a registry over source
func New(source Source, opts ...Option) *Registry {
	r := &Registry{source: source, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh reloads configs from the source
func (r *Registry) Refresh(ctx context.Context) error {
	configs, err := r.source.ListProviders(ctx)
	if err != nil {
		return fmt.Errorf("failed to load provider configs: %w", err)
	}

	loaded := make([]models.ProviderConfig, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Kind.Valid() {
			log.Warn().Int64("provider_id", cfg.ID).Str("kind", string(cfg.Kind)).Msg("skipping provider with unknown kind")
			continue
		}
		if r.decrypter != nil && cfg.Credentials != "" {
			plain, err := r.decrypter.Decrypt(cfg.Credentials)
			if err != nil {
				log.Error().Err(err).Int64("provider_id", cfg.ID).Msg("skipping provider with undecryptable credentials")
				continue
			}
			cfg.Credentials = plain
		}
		loaded = append(loaded, cfg)
	}

	r.mu.Lock()
	r.providers = loaded
	r.loadedAt = r.now()
	r.loaded = true
	r.mu.Unlock()

	log.Debug().Int("providers", len(loaded)).Msg("provider registry refreshed")
	return nil
}

func (r *Registry) snapshot(ctx context.Context) ([]models.ProviderConfig, error) {
	r.mu.RLock()
	fresh := r.loaded && r.refresh > 0 && r.now().Sub(r.loadedAt) < r.refresh
	providers := r.providers
	loaded := r.loaded
	r.mu.RUnlock()

	if fresh {
		return providers, nil
	}

	if err := r.Refresh(ctx); err != nil {
		if !loaded {
			return nil, err
		}
		// Keep serving the last good snapshot
		log.Warn().Err(err).Msg("provider refresh failed, using previous configs")
		return providers, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers, nil
}

// SelectChain returns the active providers for usageType ordered by
// priority desc then id asc. No match gives an empty chain.
func (r *Registry) SelectChain(ctx context.Context, usageType string) ([]models.ProviderConfig, error) {
	providers, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	chain := make([]models.ProviderConfig, 0, len(providers))
	for _, p := range providers {
		if p.Active && p.UsageType == usageType {
			chain = append(chain, p)
		}
	}

	sort.SliceStable(chain, func(i, j int) bool {
		if chain[i].Priority != chain[j].Priority {
			return chain[i].Priority > chain[j].Priority
		}
		return chain[i].ID < chain[j].ID
	})
	return chain, nil
}

// Provider looks up one config by id, active or not
func (r *Registry) Provider(ctx context.Context, id int64) (models.ProviderConfig, bool, error) {
	providers, err := r.snapshot(ctx)
	if err != nil {
		return models.ProviderConfig{}, false, err
	}
	for _, p := range providers {
		if p.ID == id {
			return p, true, nil
		}
	}
	return models.ProviderConfig{}, false, nil
}
