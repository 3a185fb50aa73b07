package ai

import (
	"errors"

	"github.com/hrygo/chatturn/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	Completion CompletionConfig
	Embedding  EmbeddingConfig
	Kernel     LLMConfig
}

// CompletionConfig represents the OpenAI-compatible endpoint used for raw completions,
// summaries and image generation.
type CompletionConfig struct {
	APIKey  string
	BaseURL string
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string // openai, siliconflow
	Model      string // text-embedding-3-small
	Dimensions int    // 1536
	APIKey     string
	BaseURL    string
}

// LLMConfig represents the kernel model configuration.
type LLMConfig struct {
	Provider    string // openai, deepseek, ollama
	Model       string // gpt-4o-mini
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 2048
	Temperature float32 // default: 0.7
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Completion: CompletionConfig{
			APIKey:  p.OpenAIAPIKey,
			BaseURL: p.OpenAIBaseURL,
		},
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			Model:      p.EmbeddingModel,
			Dimensions: p.EmbeddingDimensions,
			APIKey:     p.OpenAIAPIKey,
			BaseURL:    p.OpenAIBaseURL,
		},
		Kernel: LLMConfig{
			Provider:    p.KernelProvider,
			Model:       p.KernelModel,
			APIKey:      p.KernelAPIKey,
			BaseURL:     p.KernelBaseURL,
			MaxTokens:   2048,
			Temperature: 0.7,
		},
	}
	if cfg.Kernel.APIKey == "" {
		cfg.Kernel.APIKey = p.OpenAIAPIKey
	}
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Completion.APIKey == "" {
		return errors.New("completion API key is required")
	}

	if c.Embedding.Model == "" {
		return errors.New("embedding model is required")
	}

	if c.Kernel.Provider == "" {
		return errors.New("kernel provider is required")
	}

	if c.Kernel.Provider != "ollama" && c.Kernel.APIKey == "" {
		return errors.New("kernel API key is required")
	}

	return nil
}
