// Package app wires the analysis pipeline from configuration. The API
// server and the queue worker share it.
package app

import (
	"context"
	"fmt"
	"io"

	"documind/internal/agents"
	"documind/internal/ai"
	"documind/internal/cache"
	"documind/internal/chunker"
	"documind/internal/config"
	"documind/internal/database"
	"documind/internal/logger"
	"documind/internal/maintenance"
	"documind/internal/orchestrator"
	"documind/internal/retriever"
	"documind/internal/router"
	"documind/internal/telemetry"
	"documind/internal/vectorindex"
	"documind/models"
	"documind/utils"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// App holds the long-lived dependencies of one process.
type App struct {
	Config       *config.Config
	Metrics      *telemetry.Metrics
	Mongo        *mongo.Client
	DB           *mongo.Database
	Redis        *redis.Client
	Index        vectorindex.Index
	Tasks        database.TaskStore
	Documents    database.DocumentStore
	Usage        ai.UsageLedger
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *maintenance.Scheduler

	closers []func()
}

// New connects to the stores and builds the orchestrator.
func New(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	a.Mongo = mongoClient
	a.DB = mongoClient.Database(cfg.DBName)
	a.closers = append(a.closers, func() {
		ctx, cancel := utils.WithTimeout(context.Background())
		defer cancel()
		if err := mongoClient.Disconnect(ctx); err != nil {
			logger.Error("Failed to disconnect MongoDB", "error", err)
		}
	})

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.Redis = rdb
	a.closers = append(a.closers, func() { _ = rdb.Close() })

	a.Tasks = database.NewMongoTaskStore(a.DB)
	a.Documents = database.NewMongoDocumentStore(a.DB)
	a.Usage = ai.NewMongoUsageLedger(a.DB)

	a.Index, err = vectorindex.New(cfg, a.DB)
	if err != nil {
		return nil, err
	}

	embedder, err := ai.NewEmbedder(ctx, cfg, metrics)
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	if c, isCloser := embedder.(io.Closer); isCloser {
		a.closers = append(a.closers, func() { _ = c.Close() })
	}

	registry, err := a.newRegistry(ctx)
	if err != nil {
		return nil, err
	}

	var store cache.Store
	var sweeper maintenance.Sweeper
	switch cfg.CacheBackend {
	case "redis":
		store = cache.NewRedisStore(rdb)
	default:
		mem := cache.NewMemoryStore()
		store, sweeper = mem, mem
	}
	resultCache := cache.New(store, cache.Options{TTL: cfg.CacheTTL, ClaimTTL: cfg.CacheClaimTTL})

	rules, err := agents.LoadRules(cfg.ComplianceRulesFile)
	if err != nil {
		return nil, fmt.Errorf("compliance rules: %w", err)
	}

	override, _ := models.ParseTier(cfg.RouterTierOverride)
	retry := ai.PolicyFromConfig(cfg)
	caller := agents.NewCaller(registry, router.New(override), resultCache, agents.CallerOptions{
		Retry:         retry,
		PromptVersion: cfg.PromptVersion,
		Usage:         a.Usage,
		Metrics:       metrics,
	})

	ch := chunker.New(embedder,
		chunker.WithStrategy(chunker.Strategy(cfg.ChunkStrategy)),
		chunker.WithMaxChunkSize(cfg.MaxChunkSize),
		chunker.WithOverlap(cfg.ChunkOverlap),
		chunker.WithSemanticThreshold(cfg.SemanticThreshold),
		chunker.WithRetry(retry),
	)
	rtv := retriever.New(embedder, a.Index, retriever.NewLexicalReranker(cfg.RerankWeight), retriever.OptionsFromConfig(cfg))
	rag := agents.RAGOptions{K: cfg.RetrievalK, ContextBudget: cfg.ContextTokenBudget}

	executors := []agents.Executor{
		agents.NewParser(a.Documents, ch, embedder, a.Index, retry),
		agents.NewSummarizer(caller, agents.SummarizerOptions{
			MapTokenBudget:    cfg.MapTokenBudget,
			ReduceTokenBudget: cfg.ReduceTokenBudget,
			MapConcurrency:    cfg.MapConcurrency,
		}),
		agents.NewQA(caller, rtv, rag),
		agents.NewCompliance(caller, rtv, rules, rag),
		agents.NewReporter(),
	}
	a.Orchestrator = orchestrator.New(executors, a.Tasks, metrics, cfg.TaskTimeout)

	a.Scheduler = maintenance.NewScheduler()
	if err := maintenance.Register(a.Scheduler, sweeper, a.Tasks, cfg.TaskTimeout); err != nil {
		return nil, fmt.Errorf("schedule maintenance: %w", err)
	}

	ok = true
	return a, nil
}

// newRegistry creates one client per provider named by the tier specs.
func (a *App) newRegistry(ctx context.Context) (*ai.Registry, error) {
	cfg := a.Config
	specs := map[models.Tier]string{
		models.TierFast:     cfg.ModelFor(string(models.TierFast)),
		models.TierBalanced: cfg.ModelFor(string(models.TierBalanced)),
		models.TierQuality:  cfg.ModelFor(string(models.TierQuality)),
	}

	clients := map[string]ai.LLM{}
	for _, spec := range specs {
		provider, _, err := config.ParseModelSpec(spec)
		if err != nil {
			return nil, err
		}
		if _, exists := clients[provider]; exists {
			continue
		}
		switch provider {
		case "gemini":
			gc, err := ai.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.LLMRateTier, a.Metrics)
			if err != nil {
				return nil, fmt.Errorf("gemini client: %w", err)
			}
			a.closers = append(a.closers, func() { _ = gc.Close() })
			clients[provider] = gc
		case "openai":
			clients[provider] = ai.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.LLMRateTier, a.Metrics)
		case "anthropic":
			clients[provider] = ai.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.LLMRateTier, a.Metrics)
		}
	}
	return ai.NewRegistry(specs, clients)
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
