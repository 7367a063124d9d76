package providers

import (
	"fmt"
	"sync"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
)

// Constructor builds an adapter for one provider config
type Constructor func(cfg models.ProviderConfig) (Provider, error)

type builtAdapter struct {
	cfg      models.ProviderConfig
	provider Provider
}

// Manager builds adapters by provider kind and reuses them while the
// underlying config is unchanged
type Manager struct {
	mu           sync.Mutex
	constructors map[models.ProviderKind]Constructor
	built        map[int64]builtAdapter
}

// NewManager creates a manager with every built-in adapter registered
func NewManager() *Manager {
	m := &Manager{
		constructors: make(map[models.ProviderKind]Constructor),
		built:        make(map[int64]builtAdapter),
	}

	m.Register(models.KindClaude, NewClaudeProvider)
	m.Register(models.KindOpenAI, NewOpenAIProvider)
	m.Register(models.KindAzureOpenAI, NewAzureProvider)
	m.Register(models.KindGemini, NewGeminiProvider)
	m.Register(models.KindHuggingFace, NewHuggingFaceProvider)
	m.Register(models.KindCustom, NewCustomProvider)

	return m
}

// Register adds or replaces the constructor for a kind
func (m *Manager) Register(kind models.ProviderKind, c Constructor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.constructors[kind] = c
	for id, b := range m.built {
		if b.cfg.Kind == kind {
			delete(m.built, id)
		}
	}
}

// Adapter returns the adapter for cfg, building it on first use or when
// the config changed since the last build
func (m *Manager) Adapter(cfg models.ProviderConfig) (Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.built[cfg.ID]; ok && b.cfg == cfg {
		return b.provider, nil
	}

	construct, ok := m.constructors[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider kind %q", cfg.Kind)
	}

	p, err := construct(cfg)
	if err != nil {
		return nil, err
	}
	m.built[cfg.ID] = builtAdapter{cfg: cfg, provider: p}
	return p, nil
}
