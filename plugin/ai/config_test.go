package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/chatturn/internal/profile"
)

func TestNewConfigFromProfile(t *testing.T) {
	prof := &profile.Profile{
		OpenAIAPIKey:        "sk-test",
		OpenAIBaseURL:       "https://api.openai.com/v1",
		KernelProvider:      "deepseek",
		KernelModel:         "deepseek-chat",
		KernelAPIKey:        "deepseek-key",
		KernelBaseURL:       "https://api.deepseek.com",
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDimensions: 1536,
	}

	cfg := NewConfigFromProfile(prof)

	assert.Equal(t, "sk-test", cfg.Completion.APIKey)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, "deepseek", cfg.Kernel.Provider)
	assert.Equal(t, "deepseek-key", cfg.Kernel.APIKey)
	assert.Equal(t, 2048, cfg.Kernel.MaxTokens)
	assert.InDelta(t, 0.7, cfg.Kernel.Temperature, 1e-6)
	require.NoError(t, cfg.Validate())
}

func TestNewConfigFromProfile_KernelKeyFallback(t *testing.T) {
	cfg := NewConfigFromProfile(&profile.Profile{
		OpenAIAPIKey:   "sk-test",
		KernelProvider: "openai",
		KernelModel:    "gpt-4o-mini",
		EmbeddingModel: "text-embedding-3-small",
	})
	assert.Equal(t, "sk-test", cfg.Kernel.APIKey)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Completion: CompletionConfig{APIKey: "sk"},
			Embedding:  EmbeddingConfig{Provider: "openai", Model: "m"},
			Kernel:     LLMConfig{Provider: "openai", APIKey: "sk"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing completion key", mutate: func(c *Config) { c.Completion.APIKey = "" }, wantErr: "completion API key"},
		{name: "missing embedding model", mutate: func(c *Config) { c.Embedding.Model = "" }, wantErr: "embedding model"},
		{name: "missing kernel provider", mutate: func(c *Config) { c.Kernel.Provider = "" }, wantErr: "kernel provider"},
		{name: "missing kernel key", mutate: func(c *Config) { c.Kernel.APIKey = "" }, wantErr: "kernel API key"},
		{name: "ollama needs no key", mutate: func(c *Config) { c.Kernel.Provider = "ollama"; c.Kernel.APIKey = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
