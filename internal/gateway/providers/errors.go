package providers

import (
	"errors"
	"fmt"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
)

// maxErrorBody caps how much of an upstream error body is kept
const maxErrorBody = 512

// ProviderError is a failed call to an upstream provider
type ProviderError struct {
	Kind       models.ProviderKind
	StatusCode int // 0 for transport failures
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s API error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s API error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s API error: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient (rate limit, timeout,
// server error or transport failure).
func (e *ProviderError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == 408, e.StatusCode == 429:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// AsProviderError extracts a *ProviderError from err
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func statusError(kind models.ProviderKind, status int, body []byte) *ProviderError {
	msg := string(body)
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	return &ProviderError{Kind: kind, StatusCode: status, Message: msg}
}

func transportError(kind models.ProviderKind, err error) *ProviderError {
	return &ProviderError{Kind: kind, Message: err.Error(), Err: err}
}
