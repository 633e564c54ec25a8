package ai

import (
	"testing"

	"google.golang.org/genai"
)

func TestLookupVendorIsCaseInsensitive(t *testing.T) {
	v, ok := LookupVendor(" DeepSeek ")
	if !ok {
		t.Fatalf("expected deepseek preset")
	}
	if v.Provider != ProviderOpenAI || !v.Stream || v.DefaultModel() != "deepseek-chat" {
		t.Fatalf("unexpected deepseek preset: %+v", v)
	}
	if _, ok := LookupVendor("nope"); ok {
		t.Fatalf("unknown vendor resolved")
	}
}

func TestVendorsSortedAndRegistered(t *testing.T) {
	vs := Vendors()
	for i := 1; i < len(vs); i++ {
		if vs[i-1].ID >= vs[i].ID {
			t.Fatalf("vendors not sorted: %s >= %s", vs[i-1].ID, vs[i].ID)
		}
	}
	for _, v := range vs {
		if _, ok := registry[v.Provider]; !ok {
			t.Fatalf("vendor %s uses unregistered provider %s", v.ID, v.Provider)
		}
		if len(v.Models) == 0 {
			t.Fatalf("vendor %s offers no models", v.ID)
		}
	}
}

func TestGetRuntimeUnknownProvider(t *testing.T) {
	if _, err := GetRuntime("carrier-pigeon", RuntimeConfig{}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestGeminiRequiresKey(t *testing.T) {
	if _, err := GetRuntime(ProviderGemini, RuntimeConfig{}); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestGeminiContentsMapping(t *testing.T) {
	system, contents := geminiContents([]Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})
	if system == nil || system.Parts[0].Text != "be brief" {
		t.Fatalf("expected system instruction, got %+v", system)
	}
	if len(contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(contents))
	}
	if contents[0].Role != genai.RoleUser || contents[1].Role != genai.RoleModel {
		t.Fatalf("unexpected roles: %s %s", contents[0].Role, contents[1].Role)
	}
	cfg := geminiConfig(GenerateRequest{Temperature: Float64(0), MaxTokens: 8192}, system)
	if cfg.Temperature == nil || *cfg.Temperature != 0 || cfg.MaxOutputTokens != 8192 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
