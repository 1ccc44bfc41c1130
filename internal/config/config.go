package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string
	MaxBodySize int64

	// MongoDB
	MongoURI string
	DBName   string

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Provider credentials
	GeminiAPIKey    string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	LLMRateTier     string // "free", "tier1", "tier2"

	// Embeddings configuration
	EmbeddingsProvider    string // "google" (default), "openai", "local"
	GoogleEmbeddingsModel string
	OpenAIEmbeddingsModel string
	VectorDimensions      int

	// Vector store
	VectorStore      string // "memory", "qdrant", "mongo"
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string
	VectorIndexName  string

	// Cache
	CacheBackend  string // "memory", "redis"
	CacheTTL      time.Duration
	CacheClaimTTL time.Duration

	// Chunking
	ChunkStrategy     string
	MaxChunkSize      int
	ChunkOverlap      int
	SemanticThreshold float64

	// Retrieval
	RetrievalK              int
	RetrievalOverFetch      int
	RetrievalScoreThreshold float64
	MMRLambda               float64
	RerankWeight            float64

	// Token budgets
	ContextTokenBudget int
	MapTokenBudget     int
	ReduceTokenBudget  int
	MapConcurrency     int

	// Model routing, "provider:model" per tier
	ModelFast          string
	ModelBalanced      string
	ModelQuality       string
	RouterTierOverride string
	PromptVersion      string

	// Retry
	LLMMaxRetries  int
	LLMBackoffBase time.Duration
	LLMBackoffMax  time.Duration

	// Tasks
	TaskTimeout         time.Duration
	MaxConcurrentTasks  int
	TaskDispatch        string // "local", "queue"
	ComplianceRulesFile string

	// Request limits
	RateLimitReqs   int
	RateLimitWindow int

	// Telemetry
	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: getEnvList("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"),
		MaxBodySize: getEnvInt64("MAX_BODY_SIZE", 20971520), // 20MB of raw text

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/documind"),
		DBName:   getEnv("DB_NAME", "documind"),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		LLMRateTier:     getEnv("LLM_RATE_TIER", "tier1"),

		EmbeddingsProvider:    getEnv("EMBEDDINGS_PROVIDER", "google"),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		OpenAIEmbeddingsModel: getEnv("OPENAI_EMBEDDINGS_MODEL", "text-embedding-3-large"),
		VectorDimensions:      getEnvInt("VECTOR_DIM", 768),

		VectorStore:      getEnv("VECTOR_STORE", "qdrant"),
		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:     getEnv("QDRANT_API_KEY", ""),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "documind_chunks"),
		VectorIndexName:  getEnv("MONGODB_VECTOR_INDEX", "chunk_vectors_index"),

		CacheBackend:  getEnv("CACHE_BACKEND", "redis"),
		CacheTTL:      getEnvDuration("CACHE_TTL", time.Hour),
		CacheClaimTTL: getEnvDuration("CACHE_CLAIM_TTL", 2*time.Minute),

		ChunkStrategy:     getEnv("CHUNK_STRATEGY", "recursive"),
		MaxChunkSize:      getEnvInt("MAX_CHUNK_SIZE", 1000),
		ChunkOverlap:      getEnvInt("CHUNK_OVERLAP", 200),
		SemanticThreshold: getEnvFloat64("SEMANTIC_THRESHOLD", 0.5),

		RetrievalK:              getEnvInt("RETRIEVAL_K", 5),
		RetrievalOverFetch:      getEnvInt("RETRIEVAL_OVERFETCH", 3),
		RetrievalScoreThreshold: getEnvFloat64("RETRIEVAL_SCORE_THRESHOLD", 0.3),
		MMRLambda:               getEnvFloat64("MMR_LAMBDA", 0.7),
		RerankWeight:            getEnvFloat64("RERANK_WEIGHT", 0.7),

		ContextTokenBudget: getEnvInt("CONTEXT_TOKEN_BUDGET", 3000),
		MapTokenBudget:     getEnvInt("MAP_TOKEN_BUDGET", 3000),
		ReduceTokenBudget:  getEnvInt("REDUCE_TOKEN_BUDGET", 6000),
		MapConcurrency:     getEnvInt("MAP_CONCURRENCY", 4),

		ModelFast:          getEnv("MODEL_FAST", "gemini:gemini-2.0-flash"),
		ModelBalanced:      getEnv("MODEL_BALANCED", "openai:gpt-4o"),
		ModelQuality:       getEnv("MODEL_QUALITY", "anthropic:claude-3-5-sonnet-latest"),
		RouterTierOverride: getEnv("ROUTER_TIER_OVERRIDE", ""),
		PromptVersion:      getEnv("PROMPT_VERSION", "v1"),

		LLMMaxRetries:  getEnvInt("LLM_MAX_RETRIES", 3),
		LLMBackoffBase: getEnvDuration("LLM_BACKOFF_BASE", time.Second),
		LLMBackoffMax:  getEnvDuration("LLM_BACKOFF_MAX", 30*time.Second),

		TaskTimeout:         getEnvDuration("TASK_TIMEOUT", 10*time.Minute),
		MaxConcurrentTasks:  getEnvInt("MAX_CONCURRENT_TASKS", 8),
		TaskDispatch:        getEnv("TASK_DISPATCH", "local"),
		ComplianceRulesFile: getEnv("COMPLIANCE_RULES_FILE", ""),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		OTelEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: getEnvFloat64("OTEL_SAMPLE_RATIO", 0.1),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and that every selected provider has a key.
func (c *Config) Validate() error {
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("MAX_CHUNK_SIZE must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.MaxChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, MAX_CHUNK_SIZE)")
	}
	switch c.ChunkStrategy {
	case "recursive", "semantic", "structure":
	default:
		return fmt.Errorf("unknown CHUNK_STRATEGY: %s", c.ChunkStrategy)
	}
	if c.RetrievalK <= 0 || c.RetrievalOverFetch <= 0 {
		return fmt.Errorf("RETRIEVAL_K and RETRIEVAL_OVERFETCH must be positive")
	}
	if c.MMRLambda < 0 || c.MMRLambda > 1 {
		return fmt.Errorf("MMR_LAMBDA must be in [0, 1]")
	}
	if c.ContextTokenBudget <= 0 || c.MapTokenBudget <= 0 || c.ReduceTokenBudget <= 0 {
		return fmt.Errorf("token budgets must be positive")
	}
	if c.LLMMaxRetries < 1 {
		return fmt.Errorf("LLM_MAX_RETRIES must be at least 1")
	}
	switch c.VectorStore {
	case "memory", "qdrant", "mongo":
	default:
		return fmt.Errorf("unknown VECTOR_STORE: %s", c.VectorStore)
	}
	switch c.CacheBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown CACHE_BACKEND: %s", c.CacheBackend)
	}
	switch c.TaskDispatch {
	case "local", "queue":
	default:
		return fmt.Errorf("unknown TASK_DISPATCH: %s", c.TaskDispatch)
	}

	providers := map[string]bool{}
	for _, spec := range []string{c.ModelFast, c.ModelBalanced, c.ModelQuality} {
		provider, _, err := ParseModelSpec(spec)
		if err != nil {
			return err
		}
		providers[provider] = true
	}
	switch c.EmbeddingsProvider {
	case "google":
		providers["gemini"] = true
	case "openai":
		providers["openai"] = true
	case "local":
	default:
		return fmt.Errorf("unknown EMBEDDINGS_PROVIDER: %s", c.EmbeddingsProvider)
	}

	if providers["gemini"] && c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}
	if providers["openai"] && c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required - set it in .env file")
	}
	if providers["anthropic"] && c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required - set it in .env file")
	}
	return nil
}

// ModelFor returns the "provider:model" spec configured for a tier name.
func (c *Config) ModelFor(tier string) string {
	switch tier {
	case "fast":
		return c.ModelFast
	case "quality":
		return c.ModelQuality
	default:
		return c.ModelBalanced
	}
}

// ParseModelSpec splits "provider:model".
func ParseModelSpec(spec string) (provider, model string, err error) {
	provider, model, ok := strings.Cut(spec, ":")
	if !ok || model == "" {
		return "", "", fmt.Errorf("invalid model spec %q, want provider:model", spec)
	}
	switch provider {
	case "gemini", "openai", "anthropic":
		return provider, model, nil
	}
	return "", "", fmt.Errorf("unknown model provider %q", provider)
}
