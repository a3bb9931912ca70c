package models

import "time"

// API backends a credential can target.
const (
	APITypeOpenAI = "openai"
	APITypeGemini = "gemini"
)

// ApiKey is a persisted remote-model credential with usage bookkeeping.
type ApiKey struct {
	ID               int64      `json:"id"`
	Key              string     `json:"-"`
	BaseURL          string     `json:"base_url"`
	APIType          string     `json:"api_type"`
	Counter          int        `json:"counter"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`
	LastErrorMessage string     `json:"last_error_message,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// MaskedKey shows only the first characters of the secret.
func (k *ApiKey) MaskedKey() string {
	return MaskSecret(k.Key)
}

func MaskSecret(s string) string {
	if len(s) <= 10 {
		return "***"
	}
	return s[:10] + "..."
}

// ClientStatus is a point-in-time view of one pooled client.
type ClientStatus struct {
	Handle         int        `json:"handle"`
	KeyID          int64      `json:"key_id"`
	Key            string     `json:"key"`
	BaseURL        string     `json:"base_url"`
	APIType        string     `json:"api_type"`
	ActiveRequests int        `json:"active_requests"`
	TotalRequests  int64      `json:"total_requests"`
	FailedRequests int64      `json:"failed_requests"`
	LastError      string     `json:"last_error,omitempty"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
}
