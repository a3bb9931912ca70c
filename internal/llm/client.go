// Package llm talks to remote generative-model backends.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vrsandeep/transdoc-go/internal/models"
)

// RemoteClient is a single-credential adapter. Both calls return either the
// model's text or a structured *Error; neither panics.
type RemoteClient interface {
	ChatWithText(ctx context.Context, message string) (string, error)
	ChatWithImage(ctx context.Context, message string, img Image) (string, error)
}

// Credential is one secret bound to an endpoint.
type Credential struct {
	ID      int64
	Key     string
	BaseURL string
	APIType string
}

// CredentialFromApiKey converts a stored key.
func CredentialFromApiKey(k *models.ApiKey) Credential {
	return Credential{ID: k.ID, Key: k.Key, BaseURL: k.BaseURL, APIType: k.APIType}
}

// Options configure clients built by New.
type Options struct {
	Model       string
	GeminiModel string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

const (
	defaultOpenAIModel = "gpt-4o-mini"
	defaultGeminiModel = "gemini-1.5-flash"
)

// New builds the backend matching the credential's API type.
func New(cred Credential, opts Options) (RemoteClient, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	base := strings.TrimRight(cred.BaseURL, "/")

	switch strings.ToLower(cred.APIType) {
	case "", models.APITypeOpenAI:
		model := opts.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		return &OpenAIClient{apiKey: cred.Key, baseURL: base, model: model, httpClient: httpClient}, nil
	case models.APITypeGemini:
		model := opts.GeminiModel
		if model == "" {
			model = defaultGeminiModel
		}
		return &GeminiClient{apiKey: cred.Key, baseURL: base, model: model, httpClient: httpClient}, nil
	}
	return nil, fmt.Errorf("unknown api type %q", cred.APIType)
}
