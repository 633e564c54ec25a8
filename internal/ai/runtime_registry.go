package ai

import (
	"context"
	"fmt"
	"time"
)

// RuntimeFactory builds a Runtime from the generic config below.
type RuntimeFactory func(RuntimeConfig) (Runtime, error)

// RuntimeConfig carries common knobs used by runtimes.
type RuntimeConfig struct {
	// Common
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	APIKey      string
	// OpenAI-compatible endpoints
	BaseURL string
	// Ollama
	Host string
}

var registry = map[string]RuntimeFactory{}

// RegisterRuntime registers a provider name with its factory.
func RegisterRuntime(name string, f RuntimeFactory) { registry[name] = f }

// GetRuntime creates a Runtime for the given provider if registered.
func GetRuntime(name string, cfg RuntimeConfig) (Runtime, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("provider not supported: %s", name)
	}
	return f(cfg)
}

// init registers built-in runtimes.
func init() {
	RegisterRuntime(ProviderOpenAI, func(c RuntimeConfig) (Runtime, error) {
		return NewClient(c.APIKey, c.BaseURL, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay), nil
	})
	RegisterRuntime(ProviderOllama, func(c RuntimeConfig) (Runtime, error) {
		return NewOllamaClient(c.Host, c.HTTPTimeout, c.RetryMax, c.BaseDelay), nil
	})
	RegisterRuntime(ProviderGemini, func(c RuntimeConfig) (Runtime, error) {
		return NewGeminiClient(context.Background(), c.APIKey)
	})
}
