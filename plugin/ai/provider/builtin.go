package provider

import (
	"context"
	"errors"

	"github.com/hrygo/chatturn/plugin/ai"
)

// RegisterBuiltins registers the model-level providers: raw completion and bare kernel.
// Agent providers are registered by the agent package.
func RegisterBuiltins(r *Registry) error {
	if err := r.Register(TypeOpenAIChat, newOpenAIChat); err != nil {
		return err
	}
	return r.Register(TypeKernel, newKernel)
}

// OpenAIChat is the raw completion model, the last resort of every fallback chain.
type OpenAIChat struct {
	client ai.CompletionClient
	model  string
}

func NewOpenAIChat(client ai.CompletionClient, model string) *OpenAIChat {
	return &OpenAIChat{client: client, model: model}
}

func newOpenAIChat(spec Spec, deps Deps) (CompletionProvider, error) {
	if deps.Completion == nil {
		return nil, errors.New("completion client is required")
	}
	if spec.Model == "" {
		return nil, errors.New("model is required")
	}
	return NewOpenAIChat(deps.Completion, spec.Model), nil
}

func (p *OpenAIChat) Name() string {
	return p.model
}

// Generate requires a non-empty history that ends with a user message.
func (p *OpenAIChat) Generate(ctx context.Context, history []ai.Message) (string, error) {
	if len(history) == 0 {
		return "", errors.New("cannot generate response: no conversation history available")
	}
	if history[len(history)-1].Role != ai.RoleUser {
		return "", errors.New("conversation history improperly formed: last message is not from the user")
	}

	out, err := p.client.Complete(ctx, ai.CompletionRequest{Model: p.model, Messages: history})
	if err != nil {
		if c := ClassifyError(err); c.Class == ErrorClassContextLength {
			return "", c
		}
		return "", err
	}
	return out, nil
}

// Kernel chats through the configured langchaingo model without agent instructions.
type Kernel struct {
	svc ai.LLMService
}

func NewKernel(svc ai.LLMService) *Kernel {
	return &Kernel{svc: svc}
}

func newKernel(spec Spec, deps Deps) (CompletionProvider, error) {
	if spec.Model != "" && deps.KernelFor != nil {
		svc, err := deps.KernelFor(spec.Model)
		if err != nil {
			return nil, err
		}
		return NewKernel(svc), nil
	}
	if deps.Kernel == nil {
		return nil, errors.New("kernel is required")
	}
	return NewKernel(deps.Kernel), nil
}

func (p *Kernel) Name() string {
	return "kernel"
}

func (p *Kernel) Generate(ctx context.Context, history []ai.Message) (string, error) {
	return p.svc.Chat(ctx, history)
}
