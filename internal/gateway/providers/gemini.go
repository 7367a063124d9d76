package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiProvider handles Google Gemini API requests
type GeminiProvider struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// GeminiRequest represents a request to Gemini's API
type GeminiRequest struct {
	Contents          []GeminiContent         `json:"contents"`
	SystemInstruction *GeminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

// GeminiContent represents content in Gemini format
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart is either text or inline binary data
type GeminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *GeminiInlineData `json:"inline_data,omitempty"`
}

// GeminiInlineData carries a base64 attachment
type GeminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// GeminiGenerationConfig represents generation parameters
type GeminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

// GeminiResponse represents a response from Gemini API
type GeminiResponse struct {
	Candidates []struct {
		Content      GeminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// NewGeminiProvider creates a Gemini adapter from a provider config
func NewGeminiProvider(cfg models.ProviderConfig) (Provider, error) {
	if cfg.Credentials == "" {
		return nil, fmt.Errorf("gemini provider %d: missing API key", cfg.ID)
	}
	baseURL := strings.TrimRight(cfg.Endpoint, "/")
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	return &GeminiProvider{
		apiKey:      cfg.Credentials,
		baseURL:     baseURL,
		model:       cfg.Model,
		maxTokens:   maxTokens(cfg),
		temperature: cfg.Temperature,
		httpClient:  httpClient(cfg),
	}, nil
}

// Kind returns the provider kind
func (p *GeminiProvider) Kind() models.ProviderKind {
	return models.KindGemini
}

// Call makes a generateContent request
func (p *GeminiProvider) Call(ctx context.Context, req Request) (*Response, error) {
	geminiReq := p.convertRequest(req)

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, url.PathEscape(p.model))

	reqBody, err := json.Marshal(geminiReq)
	if err != nil {
		return nil, &ProviderError{Kind: models.KindGemini, Message: "encode request", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, transportError(models.KindGemini, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(models.KindGemini, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(models.KindGemini, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(models.KindGemini, resp.StatusCode, body)
	}

	var geminiResp GeminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return nil, &ProviderError{Kind: models.KindGemini, StatusCode: resp.StatusCode, Message: "failed to parse response", Err: err}
	}
	if len(geminiResp.Candidates) == 0 {
		return nil, &ProviderError{Kind: models.KindGemini, StatusCode: resp.StatusCode, Message: "response has no candidates"}
	}

	return p.convertResponse(geminiResp), nil
}

// convertRequest maps context to systemInstruction and files to inline_data parts
func (p *GeminiProvider) convertRequest(req Request) GeminiRequest {
	binary := func(f models.FileBlob) bool { return isImage(f) || isPDF(f) }

	parts := []GeminiPart{{Text: inlineText(req.Prompt, req.Files, binary)}}
	for _, f := range req.Files {
		if !binary(f) {
			continue
		}
		parts = append(parts, GeminiPart{InlineData: &GeminiInlineData{
			MimeType: f.MimeType,
			Data:     base64.StdEncoding.EncodeToString(f.Data),
		}})
	}

	temperature := p.temperature
	geminiReq := GeminiRequest{
		Contents: []GeminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &GeminiGenerationConfig{
			Temperature:     &temperature,
			MaxOutputTokens: p.maxTokens,
		},
	}
	if system := contextInstruction(req.Context); system != "" {
		geminiReq.SystemInstruction = &GeminiContent{Parts: []GeminiPart{{Text: system}}}
	}
	return geminiReq
}

// convertResponse joins the text parts of the first candidate
func (p *GeminiProvider) convertResponse(resp GeminiResponse) *Response {
	var content strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		content.WriteString(part.Text)
	}

	model := resp.ModelVersion
	if model == "" {
		model = p.model
	}

	return &Response{
		Content:      content.String(),
		TokensUsed:   resp.UsageMetadata.TotalTokenCount,
		Model:        model,
		ProviderKind: models.KindGemini,
	}
}
