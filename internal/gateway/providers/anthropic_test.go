package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
	"github.com/stretchr/testify/require"
)

func TestClaudeProvider_Call(t *testing.T) {
	var got ClaudeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		require.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","model":"claude-sonnet-4-5","content":[{"type":"text","text":"low "},{"type":"text","text":"risk"}],"usage":{"input_tokens":120,"output_tokens":30}}`))
	}))
	defer srv.Close()

	p, err := NewClaudeProvider(models.ProviderConfig{
		ID: 1, Kind: models.KindClaude, Credentials: "sk-ant-test", Endpoint: srv.URL,
		Model: "claude-sonnet-4-5", Temperature: 0.2, MaxTokens: 512,
	})
	require.NoError(t, err)

	resp, err := p.Call(context.Background(), Request{
		Prompt:  "assess vendor risk",
		Context: map[string]any{"vendor": "ACME"},
		Files: []models.FileBlob{
			{Name: "scan.png", MimeType: "image/png", Data: []byte{0x89, 0x50}},
			{Name: "notes.txt", MimeType: "text/plain", Data: []byte("late deliveries")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "low risk", resp.Content)
	require.Equal(t, 150, resp.TokensUsed)
	require.Equal(t, models.KindClaude, resp.ProviderKind)

	require.Equal(t, 512, got.MaxTokens)
	require.NotNil(t, got.Temperature)
	require.InDelta(t, 0.2, *got.Temperature, 1e-9)
	require.Contains(t, got.System, `"vendor": "ACME"`)
	require.Len(t, got.Messages, 1)
	blocks := got.Messages[0].Content
	require.Len(t, blocks, 2)
	require.Equal(t, "image", blocks[0].Type)
	require.Equal(t, "image/png", blocks[0].Source.MediaType)
	require.Equal(t, "text", blocks[1].Type)
	require.Contains(t, blocks[1].Text, "late deliveries")
}

func TestClaudeProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	p, err := NewClaudeProvider(models.ProviderConfig{ID: 1, Credentials: "k", Endpoint: srv.URL, Model: "m"})
	require.NoError(t, err)

	_, err = p.Call(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)

	pe, ok := AsProviderError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
	require.True(t, pe.Retryable())
	require.Contains(t, pe.Error(), "rate_limit_error")
}

func TestClaudeProvider_MissingKey(t *testing.T) {
	_, err := NewClaudeProvider(models.ProviderConfig{ID: 3})
	require.Error(t, err)
}
