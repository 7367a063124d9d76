package providers

import (
	"context"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
)

// Request is the provider-neutral input of a single call
type Request struct {
	Prompt  string
	Context map[string]any
	Files   []models.FileBlob
}

// Response is the provider-neutral result of a single call
type Response struct {
	Content      string              `json:"content"`
	TokensUsed   int                 `json:"tokens_used"`
	Model        string              `json:"model"`
	ProviderKind models.ProviderKind `json:"provider_kind"`
}

// Provider is the interface all AI backends must implement.
// Call must return a *ProviderError for any non-success response or
// transport failure.
type Provider interface {
	Call(ctx context.Context, req Request) (*Response, error)
	Kind() models.ProviderKind
}
