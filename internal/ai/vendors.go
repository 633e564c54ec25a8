package ai

import (
	"sort"
	"strings"
)

// Vendor is a preset bundling an upstream endpoint, its runtime provider,
// the models offered for selection and whether replies stream by default.
type Vendor struct {
	ID        string   `json:"id" yaml:"id"`
	Name      string   `json:"name" yaml:"name"`
	Provider  string   `json:"provider" yaml:"provider"`
	BaseURL   string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Models    []string `json:"models" yaml:"models"`
	Stream    bool     `json:"stream" yaml:"stream"`
	APIKeyEnv string   `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
}

// DefaultModel is the first model offered by the vendor.
func (v Vendor) DefaultModel() string {
	if len(v.Models) == 0 {
		return ""
	}
	return v.Models[0]
}

var vendors = map[string]Vendor{
	"openai": {
		ID:        "openai",
		Name:      "OpenAI",
		Provider:  ProviderOpenAI,
		BaseURL:   "https://api.openai.com/v1",
		Models:    []string{"gpt-4o-mini", "gpt-3.5-turbo", "gpt-4o", "gpt-4.1-mini", "gpt-4.1"},
		APIKeyEnv: "OPENAI_API_KEY",
	},
	"deepseek": {
		ID:        "deepseek",
		Name:      "DeepSeek",
		Provider:  ProviderOpenAI,
		BaseURL:   "https://api.deepseek.com",
		Models:    []string{"deepseek-chat", "deepseek-reasoner"},
		Stream:    true,
		APIKeyEnv: "DEEPSEEK_API_KEY",
	},
	"openrouter": {
		ID:        "openrouter",
		Name:      "OpenRouter",
		Provider:  ProviderOpenAI,
		BaseURL:   "https://openrouter.ai/api/v1",
		Models:    []string{"openai/gpt-4o-mini", "deepseek/deepseek-chat", "anthropic/claude-3.5-sonnet"},
		Stream:    true,
		APIKeyEnv: "OPENROUTER_API_KEY",
	},
	"gemini": {
		ID:        "gemini",
		Name:      "Google Gemini",
		Provider:  ProviderGemini,
		Models:    []string{"gemini-2.0-flash-001", "gemini-1.5-pro"},
		Stream:    true,
		APIKeyEnv: "GEMINI_API_KEY",
	},
	"ollama": {
		ID:       "ollama",
		Name:     "Ollama (local)",
		Provider: ProviderOllama,
		BaseURL:  "http://127.0.0.1:11434",
		Models:   []string{"llama3.1:8b-instruct", "qwen2.5:7b", "mistral:7b-instruct"},
		Stream:   true,
	},
}

// LookupVendor resolves a vendor preset by id (case-insensitive).
func LookupVendor(id string) (Vendor, bool) {
	v, ok := vendors[strings.ToLower(strings.TrimSpace(id))]
	return v, ok
}

// Vendors returns all presets sorted by id.
func Vendors() []Vendor {
	out := make([]Vendor, 0, len(vendors))
	for _, v := range vendors {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
