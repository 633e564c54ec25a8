package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/KaramelBytes/tablechat/internal/ai"
	"github.com/KaramelBytes/tablechat/internal/analyst"
	"github.com/KaramelBytes/tablechat/internal/chat"
	"github.com/KaramelBytes/tablechat/internal/logging"
	"github.com/KaramelBytes/tablechat/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveAddr    string
	serveVendor  string
	serveModel   string
	serveStream  string
	serveMaxRows int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat and analysis APIs over HTTP/WebSocket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		rr, err := buildRuntime(c, runtimeOptions{VendorFlag: serveVendor, ModelFlag: serveModel, StreamFlag: serveStream})
		if err != nil {
			return err
		}
		log := logging.L()
		srv := server.New(server.Options{
			Relay: chat.NewRelay(rr.Runtime, chat.Options{
				Model:        rr.Model,
				SystemPrompt: c.SystemPrompt,
				MaxTokens:    c.MaxTokens,
				Temperature:  ai.Float64(c.ChatTemperature),
				Logger:       log,
			}),
			Streaming: rr.Stream,
			Analyst: analyst.New(rr.Runtime, analyst.Options{
				Model:              rr.Model,
				MaxTokens:          c.MaxTokens,
				Language:           analyst.ParseLanguage(c.AnalysisLanguage),
				ContextTokenBudget: c.ContextTokenBudget,
				Logger:             log,
			}),
			Greeting: c.Greeting,
			MaxRows:  serveMaxRows,
			Logger:   log,
		})

		addr := serveAddr
		if addr == "" {
			addr = c.ServerAddr
		}
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start(addr) }()
		log.Info("serving",
			zap.String("addr", addr),
			zap.String("vendor", rr.Vendor.ID),
			zap.String("model", rr.Model))

		select {
		case err := <-errCh:
			return err
		case <-cmd.Context().Done():
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config server_addr)")
	serveCmd.Flags().StringVar(&serveVendor, "vendor", "", "vendor preset")
	serveCmd.Flags().StringVar(&serveModel, "model", "", "model id")
	serveCmd.Flags().StringVar(&serveStream, "stream", "", "stream WebSocket replies: auto|on|off")
	serveCmd.Flags().IntVar(&serveMaxRows, "max-rows", 100000, "maximum rows loaded per uploaded dataset (0 = unlimited)")
}
