package registry

import (
	"context"
	"fmt"
	"os"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
	"gopkg.in/yaml.v3"
)

// StaticSource serves a fixed list of configs
type StaticSource []models.ProviderConfig

func (s StaticSource) ListProviders(ctx context.Context) ([]models.ProviderConfig, error) {
	out := make([]models.ProviderConfig, len(s))
	copy(out, s)
	return out, nil
}

// FileSource reads configs from a YAML file on every load:
//
//	providers:
//	  - id: 1
//	    name: claude-risk
//	    kind: claude
//	    credentials: ${fernet token}
//	    model: claude-sonnet-4-5
//	    usage_type: risk_assessment
//	    active: true
//	    priority: 10
//	    timeout: 30s
//	    retry_delay: 1s
type FileSource struct {
	Path string
}

type providersFile struct {
	Providers []models.ProviderConfig `yaml:"providers"`
}

func (s FileSource) ListProviders(ctx context.Context) ([]models.ProviderConfig, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}

	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse providers file %s: %w", s.Path, err)
	}

	seen := make(map[int64]bool, len(file.Providers))
	for _, p := range file.Providers {
		if p.ID == 0 {
			return nil, fmt.Errorf("providers file %s: provider %q has no id", s.Path, p.Name)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("providers file %s: duplicate provider id %d", s.Path, p.ID)
		}
		seen[p.ID] = true
	}
	return file.Providers, nil
}
