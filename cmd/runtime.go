package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/KaramelBytes/tablechat/internal/ai"
	cfgpkg "github.com/KaramelBytes/tablechat/internal/config"
)

type runtimeOptions struct {
	VendorFlag string
	ModelFlag  string
	StreamFlag string
}

// resolvedRuntime is a ready runtime plus the choices that produced it.
type resolvedRuntime struct {
	Runtime ai.Runtime
	Vendor  ai.Vendor
	Model   string
	Stream  bool
}

// newRuntime is swapped in tests.
var newRuntime = ai.GetRuntime

func vendorIDs() string {
	ids := make([]string, 0, len(ai.Vendors()))
	for _, v := range ai.Vendors() {
		ids = append(ids, v.ID)
	}
	return strings.Join(ids, ", ")
}

// resolveStream maps a stream mode onto the vendor's default.
func resolveStream(mode string, v ai.Vendor) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", cfgpkg.StreamAuto:
		return v.Stream, nil
	case cfgpkg.StreamOn:
		return true, nil
	case cfgpkg.StreamOff:
		return false, nil
	}
	return false, fmt.Errorf("invalid stream mode %q (want auto, on or off)", mode)
}

func buildRuntime(cfg *cfgpkg.Global, opts runtimeOptions) (*resolvedRuntime, error) {
	httpTimeout := 120 * time.Second
	retryMax := 1
	baseDelay := 500 * time.Millisecond
	maxDelay := 4 * time.Second
	if cfg != nil {
		if cfg.HTTPTimeoutSec > 0 {
			httpTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		if cfg.RetryMaxAttempts > 0 {
			retryMax = cfg.RetryMaxAttempts
		}
		if cfg.RetryBaseDelayMs > 0 {
			baseDelay = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
		}
		if cfg.RetryMaxDelayMs > 0 {
			maxDelay = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
		}
	}

	vendorID := strings.TrimSpace(opts.VendorFlag)
	if vendorID == "" && cfg != nil {
		vendorID = cfg.Vendor
	}
	if vendorID == "" {
		vendorID = "deepseek"
	}
	vendor, ok := ai.LookupVendor(vendorID)
	if !ok {
		return nil, fmt.Errorf("unknown vendor %q (available: %s)", vendorID, vendorIDs())
	}

	// model, api_key and base_url in the config belong to the configured
	// vendor; a different vendor picked by flag falls back to its preset.
	own := cfg != nil && ownsVendor(cfg, vendor)

	model := strings.TrimSpace(opts.ModelFlag)
	if model == "" && own {
		model = cfg.Model
	}
	if model == "" {
		model = vendor.DefaultModel()
	}

	mode := opts.StreamFlag
	if mode == "" && cfg != nil {
		mode = cfg.Stream
	}
	stream, err := resolveStream(mode, vendor)
	if err != nil {
		return nil, err
	}

	apiKey := ""
	if vendor.APIKeyEnv != "" {
		apiKey = os.Getenv(vendor.APIKeyEnv)
	}
	if apiKey == "" && own {
		apiKey = cfg.APIKey
	}
	rc := ai.RuntimeConfig{
		HTTPTimeout: httpTimeout,
		RetryMax:    retryMax,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		APIKey:      apiKey,
		BaseURL:     vendor.BaseURL,
	}
	if own && cfg.BaseURL != "" {
		rc.BaseURL = cfg.BaseURL
	}
	if vendor.Provider == ai.ProviderOllama {
		rc.Host = vendor.BaseURL
		if cfg != nil && cfg.OllamaHost != "" {
			rc.Host = cfg.OllamaHost
		}
	}

	rt, err := newRuntime(vendor.Provider, rc)
	if err != nil {
		return nil, fmt.Errorf("vendor %s: %w", vendor.ID, err)
	}
	return &resolvedRuntime{Runtime: rt, Vendor: vendor, Model: model, Stream: stream}, nil
}

func ownsVendor(cfg *cfgpkg.Global, v ai.Vendor) bool {
	id := strings.TrimSpace(cfg.Vendor)
	if id == "" {
		id = "deepseek"
	}
	return strings.EqualFold(id, v.ID)
}
