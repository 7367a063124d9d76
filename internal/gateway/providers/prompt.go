package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 4096
)

// contextInstruction renders caller context as a system instruction.
// encoding/json sorts map keys, so the output is stable.
func contextInstruction(ctx map[string]any) string {
	if len(ctx) == 0 {
		return ""
	}
	b, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return fmt.Sprintf("Context: %v", ctx)
	}
	return "Use the following context when answering.\nContext:\n" + string(b)
}

func isImage(f models.FileBlob) bool {
	return strings.HasPrefix(f.MimeType, "image/")
}

func isPDF(f models.FileBlob) bool {
	return f.MimeType == "application/pdf"
}

func isText(f models.FileBlob) bool {
	switch {
	case strings.HasPrefix(f.MimeType, "text/"):
		return true
	case f.MimeType == "application/json", f.MimeType == "application/xml":
		return true
	}
	return false
}

// inlineText appends text attachments to the prompt and names the ones a
// text-only backend cannot carry.
func inlineText(prompt string, files []models.FileBlob, keep func(models.FileBlob) bool) string {
	var b strings.Builder
	b.WriteString(prompt)
	for _, f := range files {
		if keep != nil && keep(f) {
			continue
		}
		if isText(f) && utf8.Valid(f.Data) {
			fmt.Fprintf(&b, "\n\n--- %s ---\n%s", f.Name, f.Data)
			continue
		}
		fmt.Fprintf(&b, "\n\n[attachment %s (%s) not supported by this provider]", f.Name, f.MimeType)
	}
	return b.String()
}

// estimateTokens approximates usage for backends that do not report it
func estimateTokens(texts ...string) int {
	n := 0
	for _, t := range texts {
		n += utf8.RuneCountInString(t)
	}
	return (n + 3) / 4
}

func httpClient(cfg models.ProviderConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func maxTokens(cfg models.ProviderConfig) int {
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return defaultMaxTokens
}
