package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider handles OpenAI chat completions. Azure OpenAI and custom
// OpenAI-compatible endpoints reuse it with a different client config.
type OpenAIProvider struct {
	client      *openai.Client
	kind        models.ProviderKind
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIProvider creates an adapter for api.openai.com or, when the
// config has an endpoint, an OpenAI-compatible base URL
func NewOpenAIProvider(cfg models.ProviderConfig) (Provider, error) {
	if cfg.Credentials == "" {
		return nil, fmt.Errorf("openai provider %d: missing API key", cfg.ID)
	}
	clientCfg := openai.DefaultConfig(cfg.Credentials)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}
	return newOpenAICompatible(cfg, clientCfg, models.KindOpenAI), nil
}

// NewCustomProvider creates an adapter for a self-hosted OpenAI-compatible API
func NewCustomProvider(cfg models.ProviderConfig) (Provider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("custom provider %d: endpoint is required", cfg.ID)
	}
	// Local servers often run without auth
	clientCfg := openai.DefaultConfig(cfg.Credentials)
	clientCfg.BaseURL = cfg.Endpoint
	return newOpenAICompatible(cfg, clientCfg, models.KindCustom), nil
}

// NewAzureProvider creates an Azure OpenAI adapter. The config model is the
// deployment name.
func NewAzureProvider(cfg models.ProviderConfig) (Provider, error) {
	if cfg.Credentials == "" || cfg.Endpoint == "" {
		return nil, fmt.Errorf("azure provider %d: API key and endpoint are required", cfg.ID)
	}
	clientCfg := openai.DefaultAzureConfig(cfg.Credentials, cfg.Endpoint)
	if cfg.APIVersion != "" {
		clientCfg.APIVersion = cfg.APIVersion
	}
	clientCfg.AzureModelMapperFunc = func(model string) string { return model }
	return newOpenAICompatible(cfg, clientCfg, models.KindAzureOpenAI), nil
}

func newOpenAICompatible(cfg models.ProviderConfig, clientCfg openai.ClientConfig, kind models.ProviderKind) *OpenAIProvider {
	clientCfg.HTTPClient = httpClient(cfg)

	// go-openai omits a zero temperature, which would fall back to the API default
	temperature := float32(cfg.Temperature)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(clientCfg),
		kind:        kind,
		model:       cfg.Model,
		maxTokens:   maxTokens(cfg),
		temperature: temperature,
	}
}

// Kind returns the provider kind
func (p *OpenAIProvider) Kind() models.ProviderKind {
	return p.kind
}

// Call makes a chat completion request
func (p *OpenAIProvider) Call(ctx context.Context, req Request) (*Response, error) {
	openaiReq := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    p.convertMessages(req),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}

	resp, err := p.client.CreateChatCompletion(ctx, openaiReq)
	if err != nil {
		return nil, p.wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Kind: p.kind, StatusCode: 200, Message: "response has no choices"}
	}

	model := resp.Model
	if model == "" {
		model = p.model
	}

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		TokensUsed:   resp.Usage.TotalTokens,
		Model:        model,
		ProviderKind: p.kind,
	}, nil
}

// convertMessages puts context in a system message and images in
// multi-part user content
func (p *OpenAIProvider) convertMessages(req Request) []openai.ChatCompletionMessage {
	var messages []openai.ChatCompletionMessage
	if system := contextInstruction(req.Context); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	text := inlineText(req.Prompt, req.Files, isImage)

	var images []models.FileBlob
	for _, f := range req.Files {
		if isImage(f) {
			images = append(images, f)
		}
	}

	if len(images) == 0 {
		return append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: text,
		})
	}

	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: text}}
	for _, img := range images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:" + img.MimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	})
}

func (p *OpenAIProvider) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Kind: p.kind, StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Kind: p.kind, StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error(), Err: err}
	}
	return transportError(p.kind, err)
}
