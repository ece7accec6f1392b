// Package app provides application initialization and dependency wiring.
//
// App is the container that holds every long-lived component: the database
// pool, the Genkit runtime, the vector store, the RAG pipeline, and the
// session registry with its background sweeper.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ankabe/policyfaq/internal/config"
	"github.com/ankabe/policyfaq/internal/ingest"
	"github.com/ankabe/policyfaq/internal/rag"
	"github.com/ankabe/policyfaq/internal/session"
	"github.com/ankabe/policyfaq/internal/vecstore"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Pool     *pgxpool.Pool

	Store    *vecstore.Store
	Registry *session.Registry
	Pipeline *rag.Pipeline
	Ingest   *ingest.Service

	// Lifecycle management
	cancel      func() // stops the session sweeper
	otelCleanup func()
}

// Close gracefully shuts down all resources.
// Safe to call on a partially initialized App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.cancel != nil {
		a.cancel()
	}

	if a.Pool != nil {
		a.Pool.Close()
	}

	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}
