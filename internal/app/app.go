// Package app provides application initialization and dependency wiring.
//
// App is the container that assembles the answer pipeline: Genkit with
// the configured AI provider, the PostgreSQL pool behind both knowledge
// sources, the optional Redis session memory, the optional S3 document
// resolver, the orchestrator and the HTTP server.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragline/ragline/internal/api"
	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/orchestrator"
	"github.com/ragline/ragline/internal/resolve"
	"github.com/ragline/ragline/internal/session"
)

// App is the assembled application.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Memory       session.Memory    // nil when sessions are disabled
	Resolver     *resolve.Resolver // nil when no document bucket is configured
	Orchestrator *orchestrator.Orchestrator
	Server       *api.Server

	otelCleanup func()
	redisStore  *session.RedisStore
}

// Close releases all resources in reverse initialization order.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.redisStore != nil {
		if err := a.redisStore.Close(); err != nil {
			a.Logger.Warn("closing redis client", "error", err)
		}
	}
	if a.DBPool != nil {
		a.DBPool.Close()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
