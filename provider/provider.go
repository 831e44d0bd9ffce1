// Package provider implements translation clients for the supported AI
// backends: Google AI (Gemini, native HTTP), OpenAI-compatible chat endpoints
// (OpenAI, Groq, Ollama, custom) through go-openai, and self-hosted
// translator functions on AWS Lambda.
//
// Every client performs exactly one blocking call per Translate and maps its
// errors into retry.Failure values; retrying is the caller's business.
package provider

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// ---------------------------------------------------------------------------
// Provider IDs
// ---------------------------------------------------------------------------

const (
	ProviderGoogle       = "google"
	ProviderOpenAI       = "openai"
	ProviderGroq         = "groq"
	ProviderOllama       = "ollama"
	ProviderCustomOpenAI = "custom-openai"
	ProviderLambda       = "lambda"
)

// Client performs one translation call: prompt in, translated text out.
// Implementations must be safe for concurrent use.
type Client interface {
	Translate(ctx context.Context, prompt, model string) (string, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, prompt, model string) (string, error)

// Translate calls f.
func (f ClientFunc) Translate(ctx context.Context, prompt, model string) (string, error) {
	return f(ctx, prompt, model)
}

// ---------------------------------------------------------------------------
// Provider configuration
// ---------------------------------------------------------------------------

// Provider holds the configuration for a translation backend.
type Provider struct {
	// ID is the provider identifier (google, openai, groq, ...).
	ID string
	// Name is the display name.
	Name string
	// BaseURL is the API base URL. For the lambda provider it is the
	// function name or ARN.
	BaseURL string
	// APIKey is the authentication key (empty for local services and lambda).
	APIKey string
	// Model is the default model identifier.
	Model string
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string
	// Timeout is the per-request timeout.
	Timeout time.Duration
	// Temperature is the sampling temperature (nil = DefaultTemperature).
	// The lambda provider ignores it.
	Temperature *float64
	// Verbose logs each request at [DEBUG] level.
	Verbose bool
}

// DefaultTemperature keeps translations close to the source.
const DefaultTemperature = 0.3

func (p Provider) temperature() float64 {
	if p.Temperature != nil {
		return *p.Temperature
	}
	return DefaultTemperature
}

// NeedsAPIKey reports whether the provider cannot work without a key.
func (p Provider) NeedsAPIKey() bool {
	switch p.ID {
	case ProviderOllama, ProviderLambda:
		return false
	}
	return true
}

// DefaultProviders returns the pre-configured provider definitions.
func DefaultProviders() map[string]Provider {
	return map[string]Provider{
		ProviderGoogle: {
			ID:      ProviderGoogle,
			Name:    "Google AI (Gemini)",
			BaseURL: "https://generativelanguage.googleapis.com",
			Model:   "gemini-2.5-flash",
			Timeout: 120 * time.Second,
		},
		ProviderOpenAI: {
			ID:      ProviderOpenAI,
			Name:    "OpenAI",
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: 120 * time.Second,
		},
		ProviderGroq: {
			ID:      ProviderGroq,
			Name:    "Groq",
			BaseURL: "https://api.groq.com/openai/v1",
			Model:   "llama-3.3-70b-versatile",
			Timeout: 60 * time.Second,
		},
		ProviderOllama: {
			ID:      ProviderOllama,
			Name:    "Ollama",
			BaseURL: "http://localhost:11434/v1",
			Model:   "qwen2.5",
			Timeout: 300 * time.Second,
		},
		ProviderCustomOpenAI: {
			ID:      ProviderCustomOpenAI,
			Name:    "Custom OpenAI",
			Timeout: 60 * time.Second,
		},
		ProviderLambda: {
			ID:      ProviderLambda,
			Name:    "AWS Lambda translator",
			Timeout: 120 * time.Second,
		},
	}
}

// IDs returns the known provider IDs, sorted.
func IDs() []string {
	ids := make([]string, 0, len(DefaultProviders()))
	for id := range DefaultProviders() {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lookup returns the default definition for id.
func Lookup(id string) (Provider, bool) {
	p, ok := DefaultProviders()[id]
	return p, ok
}

// New constructs the client for p. The client is built once and shared by
// all workers of a run.
func New(ctx context.Context, p Provider) (Client, error) {
	switch p.ID {
	case ProviderGoogle:
		if p.APIKey == "" {
			return nil, fmt.Errorf("%s: API key is required", p.Name)
		}
		return NewGeminiClient(p), nil
	case ProviderOpenAI, ProviderGroq, ProviderOllama:
		if p.NeedsAPIKey() && p.APIKey == "" {
			return nil, fmt.Errorf("%s: API key is required", p.Name)
		}
		return NewOpenAIClient(p), nil
	case ProviderCustomOpenAI:
		if p.BaseURL == "" {
			return nil, fmt.Errorf("%s: base URL is required", p.Name)
		}
		return NewOpenAIClient(p), nil
	case ProviderLambda:
		if p.BaseURL == "" {
			return nil, fmt.Errorf("%s: function name is required (set base_url)", p.Name)
		}
		return NewLambdaClient(ctx, p)
	default:
		return nil, fmt.Errorf("unknown provider %q", p.ID)
	}
}

// model picks the per-call model, falling back to the provider default.
func (p Provider) model(override string) string {
	if override != "" {
		return override
	}
	return p.Model
}

// truncate shortens s to maxLen bytes for error messages.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
