package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragline/ragline/db"
	"github.com/ragline/ragline/internal/api"
	"github.com/ragline/ragline/internal/citation"
	"github.com/ragline/ragline/internal/compose"
	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/evidence"
	"github.com/ragline/ragline/internal/generate"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/observability"
	"github.com/ragline/ragline/internal/orchestrator"
	"github.com/ragline/ragline/internal/resolve"
	"github.com/ragline/ragline/internal/retrieval"
	"github.com/ragline/ragline/internal/router"
	"github.com/ragline/ragline/internal/session"
)

// corpusSchema describes the structured corpus for the SQL generator.
// Must be kept in sync with db/migrations.
const corpusSchema = `products(product_id text primary key, product_name text, product_type text, price numeric)
customers(customer_id text primary key, full_name text, region text)
reviews(review_id bigint primary key, product_id text references products, customer_id text references customers, rating int 1-5, review_text text, created_at timestamptz)`

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
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

	a.otelCleanup = observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	}, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

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

	if cfg.SessionsEnabled() {
		a.redisStore = session.NewRedisStore(session.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.SessionTTL(),
		}, logger)
		a.Memory = a.redisStore
	}

	if cfg.DocumentBucket != "" {
		a.Resolver = resolve.New(resolve.Config{
			Bucket:    cfg.DocumentBucket,
			Region:    cfg.DocumentRegion,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			TTL:       cfg.PresignTTL(),
		}, logger)
	}

	orch, err := provideOrchestrator(cfg, g, embedder, pool, a.Memory, logger)
	if err != nil {
		return nil, err
	}
	a.Orchestrator = orch

	a.Server = api.NewServer(orch, resolverOrNil(a.Resolver), pool, api.Config{
		RatePerSecond: cfg.RatePerSec,
		RateBurst:     cfg.RateBurst,
		TrustProxy:    cfg.TrustProxy,
	}, logger)

	return a, nil
}

// resolverOrNil avoids handing the server a typed nil interface value.
func resolverOrNil(r *resolve.Resolver) api.CitationResolver {
	if r == nil {
		return nil
	}
	return r
}

// provideDBPool runs migrations and creates the PostgreSQL pool shared by
// the vector store and the structured corpus.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

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
// Supports gemini (default) and ollama.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = "gemini"
	}

	var g *genkit.Genkit

	switch provider {
	case "ollama":
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery).
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		if cfg.RouterModel != "" && cfg.RouterModel != cfg.ModelName {
			ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
				Name: cfg.RouterModel,
				Type: "chat",
			}, nil)
		}
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	default: // "gemini"
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case "ollama":
		return ollama.Embedder(g, cfg.OllamaHost)
	default: // "gemini"
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideOrchestrator assembles the pipeline.
func provideOrchestrator(cfg *config.Config, g *genkit.Genkit, embedder ai.Embedder, pool *pgxpool.Pool, memory session.Memory, logger log.Logger) (*orchestrator.Orchestrator, error) {
	var classifier router.Classifier
	if cfg.RouterModel != "" {
		classifier = router.NewModelClassifier(g, cfg.RouterModel)
	}

	composer, err := compose.New(cfg.EvidenceTokenBudget)
	if err != nil {
		return nil, fmt.Errorf("creating composer: %w", err)
	}

	unstructured := retrieval.NewUnstructured(embedder, retrieval.NewPgChunkIndex(pool), logger)
	structured := retrieval.NewStructured(
		retrieval.NewModelSQLGenerator(g, cfg.ModelName, corpusSchema),
		retrieval.NewPgRowQuerier(pool),
		logger,
	)

	generator := generate.New(g, cfg.ModelName, generate.ModelConfig{
		Temperature: float64(cfg.Temperature),
		MaxTokens:   cfg.MaxTokens,
	}, cfg.GenerationTimeout(), generate.RetryConfig{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}, logger)

	return orchestrator.New(orchestrator.Options{
		Router:           router.New(classifier, cfg.ConfidenceThreshold, logger),
		Unstructured:     unstructured,
		Structured:       structured,
		Aggregator:       evidence.NewAggregator(logger),
		Composer:         composer,
		Generator:        generator,
		Extractor:        citation.NewExtractor(logger),
		Memory:           memory,
		TopK:             cfg.TopK,
		RetrievalTimeout: cfg.RetrievalTimeout(),
		Logger:           logger,
	}), nil
}
