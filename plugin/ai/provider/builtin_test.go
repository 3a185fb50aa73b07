package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/chatturn/plugin/ai"
)

type fakeCompletion struct {
	reply string
	err   error
	calls []ai.CompletionRequest
}

func (f *fakeCompletion) Complete(_ context.Context, req ai.CompletionRequest) (string, error) {
	f.calls = append(f.calls, req)
	return f.reply, f.err
}

type fakeLLM struct {
	reply string
	err   error
}

func (f *fakeLLM) Chat(context.Context, []ai.Message) (string, error) { return f.reply, f.err }
func (f *fakeLLM) Model() string                                      { return "fake" }

func TestOpenAIChat_Generate(t *testing.T) {
	client := &fakeCompletion{reply: "answer"}
	p := NewOpenAIChat(client, "gpt-4o")

	out, err := p.Generate(context.Background(), []ai.Message{ai.SystemPrompt("s"), ai.UserMessage("q")})
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	require.Len(t, client.calls, 1)
	assert.Equal(t, "gpt-4o", client.calls[0].Model)
}

func TestOpenAIChat_RejectsMalformedHistory(t *testing.T) {
	client := &fakeCompletion{reply: "answer"}
	p := NewOpenAIChat(client, "gpt-4o")

	_, err := p.Generate(context.Background(), nil)
	assert.Error(t, err)

	_, err = p.Generate(context.Background(), []ai.Message{ai.AssistantMessage("a")})
	assert.Error(t, err)
	assert.Empty(t, client.calls)
}

func TestOpenAIChat_ContextLength(t *testing.T) {
	client := &fakeCompletion{err: &openai.APIError{Code: "context_length_exceeded", Message: "too long", HTTPStatusCode: http.StatusBadRequest}}
	p := NewOpenAIChat(client, "gpt-4o")

	_, err := p.Generate(context.Background(), []ai.Message{ai.UserMessage("q")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContextLength)
}

func TestKernel_Generate(t *testing.T) {
	p := NewKernel(&fakeLLM{reply: "kernel says hi"})
	out, err := p.Generate(context.Background(), []ai.Message{ai.UserMessage("q")})
	require.NoError(t, err)
	assert.Equal(t, "kernel says hi", out)
	assert.Equal(t, "kernel", p.Name())
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"context length message", errors.New("This model's maximum context length is 8192 tokens"), ErrorClassContextLength},
		{"context length code", &openai.APIError{Code: "context_length_exceeded", HTTPStatusCode: 400}, ErrorClassContextLength},
		{"rate limited", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}, ErrorClassTransient},
		{"server error", &openai.APIError{HTTPStatusCode: http.StatusBadGateway, Message: "bad gateway"}, ErrorClassTransient},
		{"bad request", &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "invalid model"}, ErrorClassPermanent},
		{"timeout", context.DeadlineExceeded, ErrorClassTransient},
		{"connection refused", errors.New("dial tcp 127.0.0.1:1: connection refused"), ErrorClassTransient},
		{"unknown", errors.New("boom"), ErrorClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err).Class)
		})
	}

	assert.Nil(t, ClassifyError(nil))
	assert.True(t, IsContextLength(ErrContextLength))
}
