package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// ImageGenerator generates one image per prompt and returns its URL.
type ImageGenerator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

type imageGenerator struct {
	client *openai.Client
}

// NewImageGenerator creates an ImageGenerator over go-openai.
func NewImageGenerator(cfg *CompletionConfig) ImageGenerator {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &imageGenerator{client: openai.NewClientWithConfig(clientConfig)}
}

func (g *imageGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          model,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", fmt.Errorf("create image failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", errors.New("image response carries no url")
	}
	return resp.Data[0].URL, nil
}
