package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
)

const huggingFaceBaseURL = "https://api-inference.huggingface.co/models/"

// HuggingFaceProvider calls the text-generation inference API.
// The backend is text only; attachments are inlined or named.
type HuggingFaceProvider struct {
	apiKey      string
	endpoint    string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

type huggingFaceRequest struct {
	Inputs     string                `json:"inputs"`
	Parameters huggingFaceParameters `json:"parameters"`
}

type huggingFaceParameters struct {
	Temperature    float64 `json:"temperature,omitempty"`
	MaxNewTokens   int     `json:"max_new_tokens"`
	ReturnFullText bool    `json:"return_full_text"`
}

type huggingFaceGeneration struct {
	GeneratedText string `json:"generated_text"`
}

// NewHuggingFaceProvider creates an adapter. Without an endpoint the public
// inference API URL for the model is used.
func NewHuggingFaceProvider(cfg models.ProviderConfig) (Provider, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.Model == "" {
			return nil, fmt.Errorf("huggingface provider %d: model or endpoint is required", cfg.ID)
		}
		endpoint = huggingFaceBaseURL + cfg.Model
	}
	return &HuggingFaceProvider{
		apiKey:      cfg.Credentials,
		endpoint:    endpoint,
		model:       cfg.Model,
		maxTokens:   maxTokens(cfg),
		temperature: cfg.Temperature,
		httpClient:  httpClient(cfg),
	}, nil
}

// Kind returns the provider kind
func (p *HuggingFaceProvider) Kind() models.ProviderKind {
	return models.KindHuggingFace
}

// Call runs one text generation
func (p *HuggingFaceProvider) Call(ctx context.Context, req Request) (*Response, error) {
	input := inlineText(req.Prompt, req.Files, nil)
	if system := contextInstruction(req.Context); system != "" {
		input = system + "\n\n" + input
	}

	hfReq := huggingFaceRequest{
		Inputs: input,
		Parameters: huggingFaceParameters{
			Temperature:  p.temperature,
			MaxNewTokens: p.maxTokens,
		},
	}

	reqBody, err := json.Marshal(hfReq)
	if err != nil {
		return nil, &ProviderError{Kind: models.KindHuggingFace, Message: "encode request", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, transportError(models.KindHuggingFace, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(models.KindHuggingFace, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(models.KindHuggingFace, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(models.KindHuggingFace, resp.StatusCode, body)
	}

	text, err := parseHuggingFaceBody(body)
	if err != nil {
		return nil, &ProviderError{Kind: models.KindHuggingFace, StatusCode: resp.StatusCode, Message: err.Error(), Err: err}
	}

	return &Response{
		Content:      text,
		TokensUsed:   estimateTokens(input, text),
		Model:        p.model,
		ProviderKind: models.KindHuggingFace,
	}, nil
}

// parseHuggingFaceBody accepts both the list and the single object shapes
func parseHuggingFaceBody(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		var gens []huggingFaceGeneration
		if err := json.Unmarshal(trimmed, &gens); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if len(gens) == 0 {
			return "", fmt.Errorf("response has no generations")
		}
		return strings.TrimSpace(gens[0].GeneratedText), nil
	}

	var single struct {
		GeneratedText string `json:"generated_text"`
		Error         string `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if single.Error != "" {
		return "", fmt.Errorf("inference error: %s", single.Error)
	}
	return strings.TrimSpace(single.GeneratedText), nil
}
