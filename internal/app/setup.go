package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/chidori-ai/chidori/db"
	"github.com/chidori-ai/chidori/internal/agent"
	"github.com/chidori-ai/chidori/internal/config"
	"github.com/chidori-ai/chidori/internal/knowledge"
	"github.com/chidori-ai/chidori/internal/llm"
	"github.com/chidori-ai/chidori/internal/log"
	"github.com/chidori-ai/chidori/internal/rag"
	"github.com/chidori-ai/chidori/internal/retriever"
	"github.com/chidori-ai/chidori/internal/tools"
)

var errEmbedderRequired = errors.New("an embedder is required; set a provider API key")

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
//
// Setup succeeds without a provider API key: the app then runs in degraded
// mode where the agent answers with placeholder replies and retrieval is
// limited to what works without embeddings.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool
	a.Knowledge = knowledge.NewStore(pool, logger)

	keyword, err := retriever.OpenKeywordIndex(cfg.KeywordIndexPath)
	if err != nil {
		return nil, fmt.Errorf("opening keyword index: %w", err)
	}
	a.Keyword = keyword

	if cfg.HasAPIKey() {
		g, err := provideGenkit(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.Genkit = g

		embedder := provideEmbedder(g, cfg)
		if embedder == nil {
			return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
		}
		a.Embedder = embedder
	} else {
		logger.Warn("no provider API key set, running in degraded mode",
			"provider", cfg.Provider,
			"key", placeholderKeyName(cfg.Provider))
	}

	a.Retriever = wireRetriever(cfg, a.Knowledge, a.Embedder, keyword, logger)

	model, err := provideChatModel(a)
	if err != nil {
		return nil, err
	}

	if a.Retriever != nil {
		pipeline, err := rag.New(rag.Config{
			Retriever: a.Retriever,
			Model:     model,
			TopK:      cfg.TopK,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating rag pipeline: %w", err)
		}
		a.Pipeline = pipeline
	}

	ag, err := agent.New(agent.Config{
		Model:      model,
		Calculator: tools.NewCalculator(logger),
		Pipeline:   a.Pipeline,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}
	a.Agent = ag

	return a, nil
}

// provideDBPool runs migrations and creates a PostgreSQL connection pool
// with pgvector types registered on every connection.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default), ollama, and openai providers.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	var g *genkit.Genkit

	switch provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // "gemini"
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the AI provider plugin.
// Each provider registers embedders differently:
//   - gemini: GoogleAIEmbedder(g, modelName)
//   - ollama: registered in provideGenkit, keyed by server address
//   - openai: auto-registered in Init(), looked up by model name
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	switch provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default: // "gemini"
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// wireRetriever builds the configured retrieval strategy from the available
// components. Strategies needing embeddings degrade when no embedder is set:
// hybrid falls back to keyword-only, vector to no retrieval at all.
func wireRetriever(cfg *config.Config, store *knowledge.Store, embedder ai.Embedder, keyword *retriever.KeywordIndex, logger log.Logger) retriever.Retriever {
	kw := retriever.NewKeyword(keyword, cfg.Collection, logger)

	switch cfg.Retriever {
	case config.RetrieverKeyword:
		return kw

	case config.RetrieverHybrid:
		if embedder == nil {
			logger.Warn("hybrid retriever needs an embedder, using keyword only")
			return kw
		}
		vec := retriever.NewVector(store, embedder, cfg.Collection, logger)
		h, err := retriever.NewHybrid(vec, kw, cfg.VectorWeight, cfg.KeywordWeight, logger)
		if err != nil {
			logger.Warn("creating hybrid retriever, using keyword only", "error", err)
			return kw
		}
		return h

	default: // "vector"
		if embedder == nil {
			logger.Warn("vector retriever needs an embedder, retrieval disabled")
			return nil
		}
		return retriever.NewVector(store, embedder, cfg.Collection, logger)
	}
}

// provideChatModel returns the generation backend: a real Genkit client when
// a provider is configured, a placeholder otherwise.
func provideChatModel(a *App) (rag.ChatModel, error) {
	if a.Genkit == nil {
		return llm.NewUnconfigured(placeholderKeyName(a.Config.Provider)), nil
	}
	client, err := llm.NewClient(llm.Config{
		Genkit:      a.Genkit,
		ModelName:   a.Config.FullModelName(),
		Temperature: float64(a.Config.Temperature),
		MaxTokens:   a.Config.MaxTokens,
		Logger:      a.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat client: %w", err)
	}
	return client, nil
}

// placeholderKeyName names the environment variable a provider needs.
func placeholderKeyName(provider string) string {
	switch provider {
	case config.ProviderOpenAI:
		return "OPENAI_API_KEY"
	case config.ProviderOllama:
		return "OLLAMA_HOST"
	default:
		return "GEMINI_API_KEY"
	}
}
