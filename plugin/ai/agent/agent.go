// Package agent implements the agent-level completion providers: a single
// conversational agent, a multi-agent orchestrator and a remote agent service.
package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/chatturn/plugin/ai"
	"github.com/hrygo/chatturn/plugin/ai/provider"
)

// RegisterBuiltins registers every built-in provider type, model-level and agent-level.
func RegisterBuiltins(r *provider.Registry) error {
	if err := provider.RegisterBuiltins(r); err != nil {
		return err
	}
	if err := r.Register(provider.TypeChatAgent, newChatAgent); err != nil {
		return err
	}
	if err := r.Register(provider.TypeMultiAgent, newOrchestrator); err != nil {
		return err
	}
	return r.Register(provider.TypeAgentService, newServiceClient)
}

// ChatAgent is a named conversational agent: its instructions followed by the turn history.
type ChatAgent struct {
	name         string
	displayName  string
	instructions string
	kernel       ai.LLMService
}

func NewChatAgent(name, displayName, instructions string, kernel ai.LLMService) *ChatAgent {
	return &ChatAgent{
		name:         name,
		displayName:  displayName,
		instructions: instructions,
		kernel:       kernel,
	}
}

func newChatAgent(spec provider.Spec, deps provider.Deps) (provider.CompletionProvider, error) {
	if spec.Name == "" {
		return nil, errors.New("agent name is required")
	}
	kernel := deps.Kernel
	if spec.Model != "" && deps.KernelFor != nil {
		k, err := deps.KernelFor(spec.Model)
		if err != nil {
			return nil, err
		}
		kernel = k
	}
	if kernel == nil {
		return nil, errors.New("kernel is required")
	}
	return NewChatAgent(spec.Name, spec.DisplayName, spec.Instructions, kernel), nil
}

func (a *ChatAgent) Name() string {
	return a.name
}

func (a *ChatAgent) DisplayName() string {
	if a.displayName != "" {
		return a.displayName
	}
	return a.name
}

func (a *ChatAgent) Generate(ctx context.Context, history []ai.Message) (string, error) {
	messages := make([]ai.Message, 0, len(history)+1)
	if instructions := strings.TrimSpace(a.instructions); instructions != "" {
		messages = append(messages, ai.SystemPrompt(instructions))
	}
	messages = append(messages, history...)

	out, err := a.kernel.Chat(ctx, messages)
	if err != nil {
		return "", errors.Wrapf(err, "agent %s failed", a.name)
	}
	return out, nil
}

// Orchestrator runs its participants in turn over a shared transcript; each participant
// sees the contributions before it, and the last contribution is the reply.
type Orchestrator struct {
	name         string
	participants []provider.CompletionProvider
}

func NewOrchestrator(name string, participants ...provider.CompletionProvider) *Orchestrator {
	return &Orchestrator{name: name, participants: participants}
}

func newOrchestrator(spec provider.Spec, deps provider.Deps) (provider.CompletionProvider, error) {
	if deps.Lookup == nil {
		return nil, errors.New("participant lookup is required")
	}
	participants := make([]provider.CompletionProvider, 0, len(spec.Participants))
	for _, name := range spec.Participants {
		p, ok := deps.Lookup(name)
		if !ok {
			return nil, errors.Errorf("participant %q not found", name)
		}
		participants = append(participants, p)
	}
	if len(participants) == 0 {
		return nil, errors.New("orchestrator needs at least one participant")
	}
	name := spec.Name
	if name == "" {
		name = "orchestrator"
	}
	return NewOrchestrator(name, participants...), nil
}

func (o *Orchestrator) Name() string {
	return o.name
}

func (o *Orchestrator) Generate(ctx context.Context, history []ai.Message) (string, error) {
	if len(o.participants) == 0 {
		return "", errors.New("orchestrator has no participants")
	}

	transcript := append([]ai.Message(nil), history...)
	var last string
	for i, p := range o.participants {
		out, err := p.Generate(ctx, transcript)
		if err != nil {
			return "", errors.Wrapf(err, "orchestration failed at participant %s", p.Name())
		}
		slog.Debug("orchestrator participant replied",
			slog.String("orchestrator", o.name),
			slog.String("participant", p.Name()),
			slog.Int("round", i+1),
		)
		last = out
		if i < len(o.participants)-1 {
			transcript = append(transcript,
				ai.AssistantMessage(p.Name()+": "+out),
				ai.UserMessage("Continue from the contributions above."),
			)
		}
	}
	return last, nil
}
