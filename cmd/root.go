package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	cfgpkg "github.com/KaramelBytes/tablechat/internal/config"
	"github.com/KaramelBytes/tablechat/internal/logging"
	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"
)

var (
	// Global flags
	cfgFile string
	envFile string
	debug   bool
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "tablechat",
	Short: "Chat with an LLM and ask questions about tabular data",
	Long: `tablechat relays conversations to OpenAI-compatible, Gemini or Ollama runtimes
and answers questions about CSV/XLSX files with tables and text charts.
It can also serve the same features over HTTP and WebSocket.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	// Initialize configuration before executing commands
	cobra.OnInitialize(loadConfig)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	logging.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.tablechat/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config (missing file is ignored)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max attempts on 429/5xx (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

func loadConfig() {
	if envFile != "" {
		// Existing environment variables win over the file.
		if err := gotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load %s: %v\n", envFile, err)
		}
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		if lerr := logging.Init("info", debug); lerr != nil {
			fmt.Fprintf(os.Stderr, "⚠ Warning: logger setup failed: %v\n", lerr)
		}
		return
	}
	cfg = c
	applyFlagOverrides(cfg, rootCmd)
	if err := logging.Init(cfg.LogLevel, debug); err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: logger setup failed: %v\n", err)
	}
}

// applyFlagOverrides copies explicitly set persistent flags over c.
func applyFlagOverrides(c *cfgpkg.Global, root *cobra.Command) {
	f := root.PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		c.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		c.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		c.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		c.RetryMaxDelayMs = flagRetryMaxDelayMs
	}
}

// requireConfig returns the loaded configuration or explains why there is none.
func requireConfig() (*cfgpkg.Global, error) {
	if cfg == nil {
		return nil, fmt.Errorf("no usable configuration (fix the config file or run with --config)")
	}
	return cfg, nil
}
