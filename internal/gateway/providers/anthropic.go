package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// ClaudeProvider handles Anthropic Messages API requests
type ClaudeProvider struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// ClaudeRequest represents a request to Anthropic's Messages API
type ClaudeRequest struct {
	Model       string          `json:"model"`
	Messages    []ClaudeMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
	System      string          `json:"system,omitempty"`
}

// ClaudeMessage is a message with typed content blocks
type ClaudeMessage struct {
	Role    string        `json:"role"`
	Content []ClaudeBlock `json:"content"`
}

// ClaudeBlock is a text, image or document content block
type ClaudeBlock struct {
	Type   string        `json:"type"`
	Text   string        `json:"text,omitempty"`
	Source *ClaudeSource `json:"source,omitempty"`
}

// ClaudeSource carries base64 encoded attachment data
type ClaudeSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ClaudeResponse represents a response from Anthropic's API
type ClaudeResponse struct {
	ID      string        `json:"id"`
	Model   string        `json:"model"`
	Content []ClaudeBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewClaudeProvider creates a Claude adapter from a provider config
func NewClaudeProvider(cfg models.ProviderConfig) (Provider, error) {
	if cfg.Credentials == "" {
		return nil, fmt.Errorf("claude provider %d: missing API key", cfg.ID)
	}
	baseURL := strings.TrimRight(cfg.Endpoint, "/")
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &ClaudeProvider{
		apiKey:      cfg.Credentials,
		baseURL:     baseURL,
		model:       cfg.Model,
		maxTokens:   maxTokens(cfg),
		temperature: cfg.Temperature,
		httpClient:  httpClient(cfg),
	}, nil
}

// Kind returns the provider kind
func (p *ClaudeProvider) Kind() models.ProviderKind {
	return models.KindClaude
}

// Call sends one prompt to the Messages API
func (p *ClaudeProvider) Call(ctx context.Context, req Request) (*Response, error) {
	claudeReq := p.convertRequest(req)

	reqBody, err := json.Marshal(claudeReq)
	if err != nil {
		return nil, &ProviderError{Kind: models.KindClaude, Message: "encode request", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(reqBody))
	if err != nil {
		return nil, transportError(models.KindClaude, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(models.KindClaude, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, transportError(models.KindClaude, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, statusError(models.KindClaude, httpResp.StatusCode, respBody)
	}

	var claudeResp ClaudeResponse
	if err := json.Unmarshal(respBody, &claudeResp); err != nil {
		return nil, &ProviderError{Kind: models.KindClaude, StatusCode: httpResp.StatusCode, Message: "failed to parse response", Err: err}
	}

	return p.convertResponse(claudeResp), nil
}

// convertRequest builds a single user turn; images and PDFs become
// base64 blocks, text attachments are inlined.
func (p *ClaudeProvider) convertRequest(req Request) ClaudeRequest {
	temperature := p.temperature
	claudeReq := ClaudeRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		Temperature: &temperature,
		System:      contextInstruction(req.Context),
	}

	attachable := func(f models.FileBlob) bool { return isImage(f) || isPDF(f) }

	var blocks []ClaudeBlock
	for _, f := range req.Files {
		if !attachable(f) {
			continue
		}
		blockType := "image"
		if isPDF(f) {
			blockType = "document"
		}
		blocks = append(blocks, ClaudeBlock{
			Type: blockType,
			Source: &ClaudeSource{
				Type:      "base64",
				MediaType: f.MimeType,
				Data:      base64.StdEncoding.EncodeToString(f.Data),
			},
		})
	}
	blocks = append(blocks, ClaudeBlock{Type: "text", Text: inlineText(req.Prompt, req.Files, attachable)})

	claudeReq.Messages = []ClaudeMessage{{Role: "user", Content: blocks}}
	return claudeReq
}

func (p *ClaudeProvider) convertResponse(resp ClaudeResponse) *Response {
	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	model := resp.Model
	if model == "" {
		model = p.model
	}

	return &Response{
		Content:      content.String(),
		TokensUsed:   resp.Usage.InputTokens + resp.Usage.OutputTokens,
		Model:        model,
		ProviderKind: models.KindClaude,
	}
}
