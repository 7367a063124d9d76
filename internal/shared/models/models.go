package models

import "time"

// ProviderKind identifies the wire protocol family of a configured backend
type ProviderKind string

const (
	KindClaude      ProviderKind = "claude"
	KindOpenAI      ProviderKind = "openai"
	KindGemini      ProviderKind = "gemini"
	KindAzureOpenAI ProviderKind = "azure_openai"
	KindHuggingFace ProviderKind = "huggingface"
	KindCustom      ProviderKind = "custom"
)

// Valid reports whether k is one of the known provider kinds
func (k ProviderKind) Valid() bool {
	switch k {
	case KindClaude, KindOpenAI, KindGemini, KindAzureOpenAI, KindHuggingFace, KindCustom:
		return true
	}
	return false
}

// Usage types requested by business modules. Any non-empty tag is accepted;
// these are the ones the purchasing and HR modules use today.
const (
	UsageRiskAssessment   = "risk_assessment"
	UsageVendorSuggestion = "vendor_suggestion"
	UsageDocumentAnalysis = "document_analysis"
)

// ProviderConfig is one configured backend for one usage type
type ProviderConfig struct {
	ID                 int64         `json:"id" yaml:"id"`
	Name               string        `json:"name" yaml:"name"`
	Kind               ProviderKind  `json:"kind" yaml:"kind"`
	Credentials        string        `json:"-" yaml:"credentials"`
	Endpoint           string        `json:"endpoint,omitempty" yaml:"endpoint"`
	Model              string        `json:"model" yaml:"model"`
	APIVersion         string        `json:"api_version,omitempty" yaml:"api_version"`
	UsageType          string        `json:"usage_type" yaml:"usage_type"`
	Active             bool          `json:"active" yaml:"active"`
	Priority           int           `json:"priority" yaml:"priority"`
	Temperature        float64       `json:"temperature" yaml:"temperature"`
	MaxTokens          int           `json:"max_tokens" yaml:"max_tokens"`
	Timeout            time.Duration `json:"timeout" yaml:"timeout"`
	MaxRetries         int           `json:"max_retries" yaml:"max_retries"`
	RetryDelay         time.Duration `json:"retry_delay" yaml:"retry_delay"`
	RateLimitPerMinute int           `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	RateLimitPerHour   int           `json:"rate_limit_per_hour" yaml:"rate_limit_per_hour"`
	CostPer1kTokens    float64       `json:"cost_per_1k_tokens" yaml:"cost_per_1k_tokens"`
	UpdatedAt          time.Time     `json:"updated_at" yaml:"-"`
}

// UsageMetrics aggregates every physical call made to one provider
type UsageMetrics struct {
	ProviderID         int64      `json:"provider_id"`
	TotalRequests      int64      `json:"total_requests"`
	SuccessfulRequests int64      `json:"successful_requests"`
	FailedRequests     int64      `json:"failed_requests"`
	AvgResponseTime    float64    `json:"avg_response_time"` // seconds
	TotalTokensUsed    int64      `json:"total_tokens_used"`
	TotalCost          float64    `json:"total_cost"`
	LastUsed           *time.Time `json:"last_used,omitempty"`
}

// CacheEntry is a stored dispatch response
type CacheEntry struct {
	Key       string    `json:"key"`
	Payload   []byte    `json:"payload"`
	ExpiresAt time.Time `json:"expires_at"`
	HitCount  int64     `json:"hit_count"`
}

// RequestLogEntry is the audit record of one dispatch attempt
type RequestLogEntry struct {
	ID           string       `json:"id"`
	DispatchID   string       `json:"dispatch_id"`
	ProviderID   int64        `json:"provider_id"`
	ProviderKind ProviderKind `json:"provider_kind"`
	UsageType    string       `json:"usage_type"`
	Attempt      int          `json:"attempt"`
	Prompt       string       `json:"prompt"`
	Response     string       `json:"response,omitempty"`
	Error        string       `json:"error,omitempty"`
	Success      bool         `json:"success"`
	User         string       `json:"user,omitempty"`
	LatencyMs    int64        `json:"latency_ms"`
	TokensUsed   int          `json:"tokens_used"`
	CreatedAt    time.Time    `json:"created_at"`
}

// FileBlob is an attachment forwarded to multi-modal providers
type FileBlob struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// APIKey represents a gateway API key
type APIKey struct {
	ID                 string
	KeyHash            string
	KeyPrefix          string
	Name               string
	RateLimitPerMinute int
	IsActive           bool
	LastUsedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
