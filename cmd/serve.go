package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/huangsam/digitaldiary/internal/api"
	"github.com/spf13/cobra"
)

// serveCmd runs the origin: the static app plus the AI collaborator endpoints.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the story app and its API",
	Long: `Serve the static Digital Diary app and the /api/ endpoints it calls.

Endpoints:
  POST /api/punctuate   - add punctuation to a transcribed story
  POST /api/title       - suggest a short story title
  POST /api/transcribe  - turn a recording into text
  POST /api/verify-pin  - check the parent PIN

Secrets come from the environment (OPENAI_API_KEY, PARENT_PIN_HASH).

Examples:
  # Serve ./public on :8080
  diary serve

  # Serve another build directory
  diary serve --static-dir dist --serve-addr :9000`,
	PreRunE: configSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		apiCfg, err := api.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load API config: %w", err)
		}

		ctx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		handler := api.NewOriginHandler(cfg.StaticDir, api.NewServer(apiCfg, nil))
		return listenAndServe(ctx, "origin", newHTTPServer(cfg.ServeAddr, handler))
	},
}
