// Package provider defines the completion provider contract shared by every
// response-generation strategy and the registry that builds them by type tag.
package provider

import (
	"context"

	"github.com/hrygo/chatturn/plugin/ai"
)

// CompletionProvider generates one reply for a message history.
// Implementations normalize their own call shape; callers only see text or an error.
type CompletionProvider interface {
	Name() string
	Generate(ctx context.Context, history []ai.Message) (string, error)
}

// Built-in provider type tags.
const (
	TypeOpenAIChat   = "openai-chat"
	TypeKernel       = "kernel"
	TypeChatAgent    = "chat-agent"
	TypeMultiAgent   = "multi-agent"
	TypeAgentService = "agent-service"
)

// Spec describes one provider instance to build.
type Spec struct {
	Type         string
	Name         string
	DisplayName  string
	Model        string
	Instructions string
	// Participants are the names of providers a multi-agent orchestrator delegates to.
	Participants []string

	// Remote agent service settings.
	Endpoint string
	Project  string
	AgentID  string
	APIKey   string
}

// Deps are the shared collaborators a factory may draw on.
type Deps struct {
	Completion ai.CompletionClient
	Kernel     ai.LLMService
	// KernelFor builds a kernel bound to a specific model. Optional.
	KernelFor func(model string) (ai.LLMService, error)
	// Lookup resolves an already built provider by name. Optional.
	Lookup func(name string) (CompletionProvider, bool)
}

// Func adapts a function to CompletionProvider.
type Func struct {
	ProviderName string
	Fn           func(ctx context.Context, history []ai.Message) (string, error)
}

func (f Func) Name() string {
	return f.ProviderName
}

func (f Func) Generate(ctx context.Context, history []ai.Message) (string, error) {
	return f.Fn(ctx, history)
}
