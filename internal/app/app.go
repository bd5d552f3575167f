// Package app provides application initialization and dependency wiring.
//
// App is the container that holds all long-lived components: the database
// pool, the keyword index, the Genkit instance, the retriever, and the agent.
// Setup builds them in dependency order; Close releases them in reverse.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chidori-ai/chidori/internal/agent"
	"github.com/chidori-ai/chidori/internal/config"
	"github.com/chidori-ai/chidori/internal/ingest"
	"github.com/chidori-ai/chidori/internal/knowledge"
	"github.com/chidori-ai/chidori/internal/log"
	"github.com/chidori-ai/chidori/internal/rag"
	"github.com/chidori-ai/chidori/internal/retriever"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	// Core services. Genkit and Embedder are nil in degraded mode
	// (no provider API key); the agent then answers with placeholder
	// replies instead of model output.
	Genkit    *genkit.Genkit
	Embedder  ai.Embedder
	DBPool    *pgxpool.Pool
	Knowledge *knowledge.Store
	Keyword   *retriever.KeywordIndex
	Retriever retriever.Retriever // nil when retrieval is unavailable
	Pipeline  *rag.Pipeline       // nil when Retriever is nil
	Agent     *agent.Agent
}

// Degraded reports whether the app runs without a configured model provider.
func (a *App) Degraded() bool {
	return a.Genkit == nil
}

// NewIngestPipeline creates a document ingestion pipeline from the app's
// components. Requires an embedder, so it fails in degraded mode.
func (a *App) NewIngestPipeline() (*ingest.Pipeline, error) {
	if a.Embedder == nil {
		return nil, errEmbedderRequired
	}
	var splitter ingest.TextSplitter
	switch a.Config.Splitter {
	case config.SplitterFixed:
		splitter = ingest.NewFixedSplitter(a.Config.ChunkSize, a.Config.ChunkOverlap)
	default:
		splitter = ingest.NewSeparatorSplitter(a.Config.ChunkSize, a.Config.ChunkOverlap)
	}
	return ingest.NewPipeline(a.Knowledge, a.Keyword, a.Embedder, splitter, ingest.Options{
		Collection: a.Config.Collection,
		BatchSize:  a.Config.EmbeddingBatchSize,
	}, a.Logger), nil
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	var firstErr error
	if a.Keyword != nil {
		if err := a.Keyword.Close(); err != nil {
			firstErr = err
			a.Logger.Warn("closing keyword index", "error", err)
		}
	}
	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database pool closed")
	}
	return firstErr
}
