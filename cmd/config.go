package cmd

import (
	"fmt"
	"io"

	cfgpkg "github.com/KaramelBytes/tablechat/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set tablechat configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No config loaded")
			return nil
		}
		showConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := cfg.Set(key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved %s\n", key)
		return nil
	},
}

func showConfig(w io.Writer, c *cfgpkg.Global) {
	fmt.Fprintf(w, "vendor: %s\n", c.Vendor)
	fmt.Fprintf(w, "model: %s\n", c.Model)
	fmt.Fprintf(w, "api_key: %s\n", mask(c.APIKey))
	if c.BaseURL != "" {
		fmt.Fprintf(w, "base_url: %s\n", c.BaseURL)
	}
	fmt.Fprintf(w, "stream: %s\n", c.Stream)
	if c.SystemPrompt != "" {
		fmt.Fprintf(w, "system_prompt: %s\n", c.SystemPrompt)
	}
	fmt.Fprintf(w, "greeting: %s\n", c.Greeting)
	fmt.Fprintf(w, "max_tokens: %d\n", c.MaxTokens)
	fmt.Fprintf(w, "chat_temperature: %.3f\n", c.ChatTemperature)
	fmt.Fprintf(w, "analysis_language: %s\n", c.AnalysisLanguage)
	fmt.Fprintf(w, "context_token_budget: %d\n", c.ContextTokenBudget)
	fmt.Fprintf(w, "http_timeout_sec: %d\n", c.HTTPTimeoutSec)
	fmt.Fprintf(w, "retry_max_attempts: %d\n", c.RetryMaxAttempts)
	fmt.Fprintf(w, "retry_base_delay_ms: %d\n", c.RetryBaseDelayMs)
	fmt.Fprintf(w, "retry_max_delay_ms: %d\n", c.RetryMaxDelayMs)
	fmt.Fprintf(w, "ollama_host: %s\n", c.OllamaHost)
	fmt.Fprintf(w, "server_addr: %s\n", c.ServerAddr)
	fmt.Fprintf(w, "log_level: %s\n", c.LogLevel)
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
