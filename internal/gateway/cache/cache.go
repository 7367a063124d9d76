package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/gateway/providers"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
	"github.com/rs/zerolog/log"
)

// Store persists cache entries. Lookup returns nil, nil on a miss, treats
// entries with ExpiresAt <= now as missing and increments HitCount on a hit.
type Store interface {
	Lookup(ctx context.Context, key string) (*models.CacheEntry, error)
	Save(ctx context.Context, entry models.CacheEntry) error
	Purge(ctx context.Context) (int, error)
}

// Cache stores dispatch responses. A disabled cache always misses and
// drops writes.
type Cache struct {
	store   Store
	enabled bool
	now     func() time.Time
}

// New creates a new cache instance
func New(store Store, enabled bool) *Cache {
	return &Cache{store: store, enabled: enabled, now: time.Now}
}

// Enabled reports whether lookups can ever hit
func (c *Cache) Enabled() bool {
	return c != nil && c.enabled && c.store != nil
}

// Get retrieves a cached response. Store errors are logged and reported
// as a miss.
func (c *Cache) Get(ctx context.Context, key string) (*providers.Response, bool) {
	if !c.Enabled() {
		return nil, false
	}

	entry, err := c.store.Lookup(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("cache_key", key).Msg("cache lookup failed")
		return nil, false
	}
	if entry == nil {
		return nil, false
	}

	var resp providers.Response
	if err := json.Unmarshal(entry.Payload, &resp); err != nil {
		log.Warn().Err(err).Str("cache_key", key).Msg("failed to deserialize cached response")
		return nil, false
	}
	return &resp, true
}

// Put stores a response for ttl. Store errors are logged.
func (c *Cache) Put(ctx context.Context, key string, resp *providers.Response, ttl time.Duration) {
	if !c.Enabled() || resp == nil || ttl <= 0 {
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		log.Warn().Err(err).Str("cache_key", key).Msg("failed to serialize response")
		return
	}

	entry := models.CacheEntry{
		Key:       key,
		Payload:   data,
		ExpiresAt: c.now().Add(ttl),
	}
	if err := c.store.Save(ctx, entry); err != nil {
		log.Warn().Err(err).Str("cache_key", key).Msg("cache write failed")
	}
}

// Purge removes expired entries from the backing store
func (c *Cache) Purge(ctx context.Context) (int, error) {
	if c == nil || c.store == nil {
		return 0, nil
	}
	return c.store.Purge(ctx)
}

type keyDocument struct {
	Kind        models.ProviderKind `json:"kind"`
	Model       string              `json:"model"`
	Prompt      string              `json:"prompt"`
	Context     map[string]any      `json:"context"`
	Temperature float64             `json:"temperature"`
}

// Key derives the cache key of a logical request. encoding/json writes map
// keys in sorted order, so equal inputs always give the same key.
func Key(kind models.ProviderKind, model, prompt string, reqContext map[string]any, temperature float64) string {
	doc := keyDocument{
		Kind:        kind,
		Model:       model,
		Prompt:      normalizePrompt(prompt),
		Context:     reqContext,
		Temperature: temperature,
	}

	data, err := json.Marshal(doc)
	if err != nil {
		// Context holds a value JSON cannot encode
		data = []byte(fmt.Sprintf("%s|%s|%s|%v|%v", doc.Kind, doc.Model, doc.Prompt, doc.Context, doc.Temperature))
	}

	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func normalizePrompt(prompt string) string {
	return strings.Join(strings.Fields(prompt), " ")
}
