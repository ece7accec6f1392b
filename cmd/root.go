// Package cmd provides the policyfaq CLI commands.
//
// Commands:
//   - serve: HTTP API server with WebSocket streaming
//   - migrate: apply pending database migrations
//   - version: show build information
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ankabe/policyfaq/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "policyfaq",
	Short: "policyfaq - retrieval-augmented policy question answering",
	Long: `policyfaq answers compliance and policy questions grounded in the
documents each session uploads. Documents are chunked, embedded, and stored
in PostgreSQL with pgvector; answers cite the passages they come from and
escalate when the documents do not cover the question.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the main entry point for the policyfaq CLI.
func Execute() error {
	slog.SetDefault(initLogger())
	return rootCmd.Execute()
}

// initLogger builds the process-wide logger.
// DEBUG enables debug level; POLICYFAQ_LOG_JSON switches to JSON output.
func initLogger() *slog.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	if os.Getenv("POLICYFAQ_LOG_JSON") != "" {
		cfg.JSON = true
	}
	return log.New(cfg)
}
