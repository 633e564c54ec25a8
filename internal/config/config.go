package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Stream modes for the chat relay.
const (
	StreamAuto = "auto"
	StreamOn   = "on"
	StreamOff  = "off"
)

// Global configuration structure.
type Global struct {
	Vendor  string `mapstructure:"vendor" yaml:"vendor"`
	Model   string `mapstructure:"model" yaml:"model"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	// Stream is auto (vendor preset decides), on or off.
	Stream string `mapstructure:"stream" yaml:"stream"`

	SystemPrompt    string  `mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`
	Greeting        string  `mapstructure:"greeting" yaml:"greeting"`
	MaxTokens       int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	ChatTemperature float64 `mapstructure:"chat_temperature" yaml:"chat_temperature"`

	// Analysis
	AnalysisLanguage   string `mapstructure:"analysis_language" yaml:"analysis_language"`
	ContextTokenBudget int    `mapstructure:"context_token_budget" yaml:"context_token_budget"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost string `mapstructure:"ollama_host" yaml:"ollama_host"`

	ServerAddr string `mapstructure:"server_addr" yaml:"server_addr"`
	LogLevel   string `mapstructure:"log_level" yaml:"log_level"`
}

var defaults = map[string]any{
	"vendor":               "deepseek",
	"model":                "",
	"stream":               StreamAuto,
	"system_prompt":        "",
	"greeting":             "Hello, how can I help you?",
	"max_tokens":           8192,
	"chat_temperature":     0.7,
	"analysis_language":    "en",
	"context_token_budget": 6000,
	"http_timeout_sec":     120,
	"retry_max_attempts":   1,
	"retry_base_delay_ms":  500,
	"retry_max_delay_ms":   4000,
	"ollama_host":          "http://127.0.0.1:11434",
	"server_addr":          "127.0.0.1:8080",
	"log_level":            "info",
}

// Keys lists the recognised configuration keys in sorted order.
func Keys() []string {
	out := make([]string, 0, len(defaults)+2)
	for k := range defaults {
		out = append(out, k)
	}
	out = append(out, "api_key", "base_url")
	sort.Strings(out)
	return out
}

// DefaultPath returns ~/.tablechat/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".tablechat", "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.tablechat/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults; flags are applied by the caller.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("TABLECHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	// AutomaticEnv only sees keys viper already knows about.
	_ = v.BindEnv("api_key")
	_ = v.BindEnv("base_url")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(filepath.Dir(path))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// A missing file is fine; a broken one is not.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks enumerated values.
func (c *Global) Validate() error {
	switch c.Stream {
	case StreamAuto, StreamOn, StreamOff:
	default:
		return fmt.Errorf("invalid stream mode %q (want auto, on or off)", c.Stream)
	}
	switch c.AnalysisLanguage {
	case "en", "zh":
	default:
		return fmt.Errorf("invalid analysis_language %q (want en or zh)", c.AnalysisLanguage)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	return nil
}

// Set assigns a single key from its string form, as used by `config set`.
func (c *Global) Set(key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("%s: expected integer: %w", key, err)
		}
		return n, nil
	}
	var err error
	switch key {
	case "vendor":
		c.Vendor = value
	case "model":
		c.Model = value
	case "api_key":
		c.APIKey = value
	case "base_url":
		c.BaseURL = value
	case "stream":
		c.Stream = value
	case "system_prompt":
		c.SystemPrompt = value
	case "greeting":
		c.Greeting = value
	case "max_tokens":
		c.MaxTokens, err = atoi()
	case "chat_temperature":
		c.ChatTemperature, err = strconv.ParseFloat(value, 64)
		if err != nil {
			err = fmt.Errorf("%s: expected number: %w", key, err)
		}
	case "analysis_language":
		c.AnalysisLanguage = value
	case "context_token_budget":
		c.ContextTokenBudget, err = atoi()
	case "http_timeout_sec":
		c.HTTPTimeoutSec, err = atoi()
	case "retry_max_attempts":
		c.RetryMaxAttempts, err = atoi()
	case "retry_base_delay_ms":
		c.RetryBaseDelayMs, err = atoi()
	case "retry_max_delay_ms":
		c.RetryMaxDelayMs, err = atoi()
	case "ollama_host":
		c.OllamaHost = value
	case "server_addr":
		c.ServerAddr = value
	case "log_level":
		c.LogLevel = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	if err != nil {
		return err
	}
	return c.Validate()
}
