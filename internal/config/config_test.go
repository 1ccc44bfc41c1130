package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setKeys(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g")
	t.Setenv("OPENAI_API_KEY", "o")
	t.Setenv("ANTHROPIC_API_KEY", "a")
}

func TestLoadConfigDefaults(t *testing.T) {
	setKeys(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 1000, cfg.MaxChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, "recursive", cfg.ChunkStrategy)
	assert.Equal(t, 5, cfg.RetrievalK)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:8080"}, cfg.CORSOrigins)
	assert.Equal(t, "anthropic:claude-3-5-sonnet-latest", cfg.ModelFor("quality"))
	assert.Equal(t, "openai:gpt-4o", cfg.ModelFor("balanced"))
}

func TestLoadConfigOverrides(t *testing.T) {
	setKeys(t)
	t.Setenv("MAX_CHUNK_SIZE", "500")
	t.Setenv("CHUNK_OVERLAP", "50")
	t.Setenv("TASK_TIMEOUT", "90s")
	t.Setenv("MMR_LAMBDA", "0.5")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.MaxChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, 90*time.Second, cfg.TaskTimeout)
	assert.InDelta(t, 0.5, cfg.MMRLambda, 1e-9)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"overlap too large", map[string]string{"CHUNK_OVERLAP": "1000"}, "CHUNK_OVERLAP"},
		{"bad strategy", map[string]string{"CHUNK_STRATEGY": "random"}, "CHUNK_STRATEGY"},
		{"bad vector store", map[string]string{"VECTOR_STORE": "pinecone"}, "VECTOR_STORE"},
		{"bad model spec", map[string]string{"MODEL_FAST": "gpt-4o"}, "provider:model"},
		{"missing anthropic key", map[string]string{"ANTHROPIC_API_KEY": ""}, "ANTHROPIC_API_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setKeys(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLocalProvidersNeedNoKeys(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "o")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("EMBEDDINGS_PROVIDER", "local")
	t.Setenv("MODEL_FAST", "openai:gpt-4o-mini")
	t.Setenv("MODEL_QUALITY", "openai:gpt-4o")

	_, err := LoadConfig()
	assert.NoError(t, err)
}

func TestParseModelSpec(t *testing.T) {
	provider, model, err := ParseModelSpec("gemini:gemini-2.0-flash")
	require.NoError(t, err)
	assert.Equal(t, "gemini", provider)
	assert.Equal(t, "gemini-2.0-flash", model)

	_, _, err = ParseModelSpec("mistral:large")
	assert.Error(t, err)
	_, _, err = ParseModelSpec("openai:")
	assert.Error(t, err)
}

func TestRedisOptions(t *testing.T) {
	opt, err := RedisOptions(&Config{RedisURL: "redis://:secret@cache:6380/2"})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opt.Addr)
	assert.Equal(t, 2, opt.DB)

	opt, err = RedisOptions(&Config{RedisURL: "localhost:6379", RedisDB: 1})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opt.Addr)
	assert.Equal(t, 1, opt.DB)
}
