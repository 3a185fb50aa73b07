package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestNewLLMService(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *LLMConfig
		expectError bool
	}{
		{
			name: "DeepSeek config",
			cfg: &LLMConfig{
				Provider:    "deepseek",
				Model:       "deepseek-chat",
				APIKey:      "test-key",
				BaseURL:     "https://api.deepseek.com",
				MaxTokens:   2048,
				Temperature: 0.7,
			},
		},
		{
			name: "OpenAI config",
			cfg: &LLMConfig{
				Provider: "openai",
				Model:    "gpt-4o-mini",
				APIKey:   "test-key",
			},
		},
		{
			name: "Ollama config",
			cfg: &LLMConfig{
				Provider: "ollama",
				Model:    "llama3",
				BaseURL:  "http://localhost:11434",
			},
		},
		{
			name:        "Unsupported provider",
			cfg:         &LLMConfig{Provider: "unsupported"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewLLMService(tt.cfg)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cfg.Model, svc.Model())
		})
	}
}

// stubModel answers every call with a fixed reply and records the last request.
type stubModel struct {
	reply string
	err   error
	last  []llms.MessageContent
}

func (m *stubModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.last = messages
	if m.err != nil {
		return nil, m.err
	}
	if m.reply == "" {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestLLMService_Chat(t *testing.T) {
	model := &stubModel{reply: "hello"}
	svc := NewLLMServiceFromModel(model, "stub", 100, 0.2)

	out, err := svc.Chat(context.Background(), []Message{SystemPrompt("be brief"), UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	require.Len(t, model.last, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.last[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.last[1].Role)
}

func TestLLMService_ChatErrors(t *testing.T) {
	_, err := NewLLMServiceFromModel(&stubModel{}, "stub", 0, 0).Chat(context.Background(), []Message{UserMessage("hi")})
	assert.EqualError(t, err, "empty response")

	_, err = NewLLMServiceFromModel(&stubModel{err: errors.New("boom")}, "stub", 0, 0).Chat(context.Background(), []Message{UserMessage("hi")})
	assert.EqualError(t, err, "boom")
}

func TestConvertMessages(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "You are a helpful assistant"},
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there"},
	}

	llmMessages := convertMessages(messages)

	require.Len(t, llmMessages, 3)
	assert.Equal(t, llms.ChatMessageTypeAI, llmMessages[2].Role)
}

func TestTranscript(t *testing.T) {
	out := Transcript([]Message{UserMessage("hi"), AssistantMessage("hello")})
	assert.Equal(t, "user: hi\nassistant: hello", out)
}
