package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// CompletionRequest is one raw chat completion call.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// CompletionClient calls an OpenAI-compatible chat completion endpoint.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type completionClient struct {
	client *openai.Client
}

// NewCompletionClient creates a CompletionClient over go-openai.
func NewCompletionClient(cfg *CompletionConfig) CompletionClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &completionClient{client: openai.NewClientWithConfig(clientConfig)}
}

func (c *completionClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if req.Model == "" {
		return "", errors.New("completion model is required")
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("create chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Summarize asks the client to condense text under a single system prompt.
// The returned summary is trimmed; an empty summary is not an error.
func Summarize(ctx context.Context, client CompletionClient, model, prompt string, maxTokens int, temperature float32) (string, error) {
	out, err := client.Complete(ctx, CompletionRequest{
		Model:       model,
		Messages:    []Message{SystemPrompt(prompt)},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
