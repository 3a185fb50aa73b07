package profile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"CHATTURN_OPENAI_API_KEY", "CHATTURN_OPENAI_BASE_URL", "CHATTURN_KERNEL_PROVIDER",
		"CHATTURN_KERNEL_MODEL", "CHATTURN_KERNEL_API_KEY", "CHATTURN_EMBEDDING_MODEL",
		"CHATTURN_EMBEDDING_DIMENSIONS", "CHATTURN_CACHE_REDIS_ADDR",
	} {
		t.Setenv(key, "")
	}

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "https://api.openai.com/v1", p.OpenAIBaseURL)
	assert.Equal(t, "openai", p.KernelProvider)
	assert.Equal(t, "gpt-4o-mini", p.KernelModel)
	assert.Equal(t, "text-embedding-3-small", p.EmbeddingModel)
	assert.Equal(t, 1536, p.EmbeddingDimensions)
	assert.Empty(t, p.RedisAddr)
	assert.False(t, p.IsModelConfigured())
}

func TestProfileFromEnvOverrides(t *testing.T) {
	t.Setenv("CHATTURN_OPENAI_API_KEY", "sk-test")
	t.Setenv("CHATTURN_KERNEL_API_KEY", "")
	t.Setenv("CHATTURN_EMBEDDING_DIMENSIONS", "1024")
	t.Setenv("CHATTURN_KERNEL_MODEL", "deepseek-chat")

	p := &Profile{KernelProvider: "deepseek"}
	p.FromEnv()

	assert.Equal(t, "sk-test", p.OpenAIAPIKey)
	assert.Equal(t, "sk-test", p.KernelAPIKey, "kernel key falls back to the OpenAI key")
	assert.Equal(t, "deepseek", p.KernelProvider, "flag value wins over env")
	assert.Equal(t, "deepseek-chat", p.KernelModel)
	assert.Equal(t, 1024, p.EmbeddingDimensions)
	assert.True(t, p.IsModelConfigured())
}

func TestProfileValidate(t *testing.T) {
	t.Run("sqlite derives dsn from data dir", func(t *testing.T) {
		dir := t.TempDir()
		p := &Profile{Mode: "bogus", Data: dir}
		require.NoError(t, p.Validate())
		assert.Equal(t, "demo", p.Mode)
		assert.Equal(t, "sqlite", p.Driver)
		assert.Equal(t, filepath.Join(dir, "chatturn_demo.db"), p.DSN)
		assert.Equal(t, 2.0, p.TurnRateLimit)
		assert.Equal(t, 10, p.TurnRateBurst)
	})

	t.Run("explicit rate limit kept", func(t *testing.T) {
		p := &Profile{Mode: "prod", Driver: "postgres", DSN: "postgres://x", TurnRateLimit: 0.5, TurnRateBurst: 3}
		require.NoError(t, p.Validate())
		assert.Equal(t, 0.5, p.TurnRateLimit)
		assert.Equal(t, 3, p.TurnRateBurst)
	})

	t.Run("postgres requires dsn", func(t *testing.T) {
		p := &Profile{Mode: "prod", Driver: "postgres"}
		assert.Error(t, p.Validate())
	})

	t.Run("unknown driver rejected", func(t *testing.T) {
		p := &Profile{Mode: "prod", Driver: "mysql"}
		assert.Error(t, p.Validate())
	})

	t.Run("missing data dir rejected", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: filepath.Join(t.TempDir(), "missing")}
		assert.Error(t, p.Validate())
	})
}
