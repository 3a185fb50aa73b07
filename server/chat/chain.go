package chat

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/chatturn/internal/settings"
	"github.com/hrygo/chatturn/plugin/ai"
	"github.com/hrygo/chatturn/plugin/ai/provider"
	"github.com/hrygo/chatturn/plugin/ai/timeout"
	"github.com/hrygo/chatturn/server/internal/observability"
	"github.com/hrygo/chatturn/store"
)

// Chat modes and model labels of the agentic steps.
const (
	ModeMultiAgent   = "multi-agent-chat"
	ModeAgent        = "agent"
	ModeAgentService = "agent-service"
	ModeKernel       = "kernel"

	orchestratorAgentName = "orchestrator"
)

// Degraded-mode notices.
const (
	SingleAgentNotice = "[SK Fallback]: The AI assistant is running in single agent fallback mode. " +
		"Some advanced features may not be available. " +
		"Please contact your administrator to configure Semantic Kernel for richer responses."
	KernelNotice = "[SK fallback] Running in kernel only mode. Ask your administrator to configure Semantic Kernel for richer responses."
	GPTNotice    = "[SK Fallback]: The AI assistant is running in GPT only mode. " +
		"No advanced features are available. " +
		"Please contact your administrator to resolve Semantic Kernel integration."
	GPTReplyPrefix     = "[GPT Fallback. Advanced features not available.] "
	ContextLengthReply = "Sorry, the conversation history is too long even after summarization. " +
		"Please start a new conversation or try a shorter message."
)

// ChainBuilder turns settings into the fallback steps of a turn.
type ChainBuilder struct {
	registry *provider.Registry
	deps     provider.Deps
	// agentServiceEnv locates the agent service when settings defer to the environment.
	agentServiceEnv provider.Spec
}

func NewChainBuilder(registry *provider.Registry, deps provider.Deps, agentServiceEnv provider.Spec) *ChainBuilder {
	return &ChainBuilder{registry: registry, deps: deps, agentServiceEnv: agentServiceEnv}
}

// AgentPlan is the resolved set of generators for one turn.
type AgentPlan struct {
	// Enabled is set when the kernel is enabled and the user turned agents on.
	Enabled    bool
	PerUser    bool
	MultiAgent bool

	Selected     *store.AgentConfig
	selected     provider.CompletionProvider
	orchestrator provider.CompletionProvider

	agentServiceOn  bool
	agentService    provider.CompletionProvider
	agentServiceErr error

	kernel provider.CompletionProvider
	gpt    provider.CompletionProvider
	gptErr error
	model  string
}

// SelectedName returns the selected agent name, or "".
func (p *AgentPlan) SelectedName() string {
	if p.Selected == nil {
		return ""
	}
	return p.Selected.Name
}

// SelectedID returns the selected agent id, or "".
func (p *AgentPlan) SelectedID() string {
	if p.Selected == nil {
		return ""
	}
	return p.Selected.ID
}

// Plan resolves the agents of a turn. Per-user mode draws agents and the
// selection from the user's settings and never orchestrates; global mode uses
// the configured agents and global selection.
func (b *ChainBuilder) Plan(ctx context.Context, s *settings.Settings, user *store.UserSettings, model string) *AgentPlan {
	if user == nil {
		user = &store.UserSettings{}
	}
	plan := &AgentPlan{
		Enabled: s.EnableSemanticKernel && user.EnableAgents,
		PerUser: s.PerUserSemanticKernel,
		model:   model,
	}
	plan.gpt, plan.gptErr = b.registry.Build(provider.Spec{Type: provider.TypeOpenAIChat, Name: model, Model: model}, b.deps)
	if !plan.Enabled {
		return plan
	}

	pool, selection := s.Agents, ""
	if plan.PerUser {
		pool, selection = user.Agents, user.SelectedAgent
	} else {
		plan.MultiAgent = s.EnableMultiAgentOrchestration
		if s.GlobalSelectedAgent != nil {
			selection = s.GlobalSelectedAgent.Name
		}
	}

	logger := observability.LoggerFrom(ctx, "")
	built := b.buildAgents(logger, pool)
	if sel, ok := SelectAgent(pool, selection); ok {
		plan.Selected = &sel
		plan.selected = built[sel.Name]
		if plan.selected == nil {
			logger.Error("selected agent could not be built", nil, slog.String("agent", sel.Name))
		}
	} else {
		logger.Warn("no agents configured", slog.Bool("per_user", plan.PerUser))
	}
	if plan.MultiAgent {
		plan.orchestrator = built[orchestratorAgentName]
	}

	if s.EnableAgentService {
		plan.agentServiceOn = true
		plan.agentService, plan.agentServiceErr = b.registry.Build(b.agentServiceSpec(s), b.deps)
	}
	if b.deps.Kernel != nil {
		plan.kernel, _ = b.registry.Build(provider.Spec{Type: provider.TypeKernel, Name: ModeKernel}, b.deps)
	}
	return plan
}

func (b *ChainBuilder) agentServiceSpec(s *settings.Settings) provider.Spec {
	spec := b.agentServiceEnv
	spec.Type = provider.TypeAgentService
	spec.Name = ModeAgentService
	if !s.AgentService.UseEnv {
		spec.Endpoint = s.AgentService.Endpoint
		spec.Project = s.AgentService.Project
		spec.AgentID = s.AgentService.AgentID
	}
	return spec
}

// buildAgents builds every agent of the pool, orchestrators last so their
// participants can be looked up. Agents that fail to build are logged and left out.
func (b *ChainBuilder) buildAgents(logger *observability.RequestContext, pool []store.AgentConfig) map[string]provider.CompletionProvider {
	built := make(map[string]provider.CompletionProvider, len(pool))
	deps := b.deps
	deps.Lookup = func(name string) (provider.CompletionProvider, bool) {
		p, ok := built[name]
		return p, ok
	}

	specs := make([]provider.Spec, 0, len(pool))
	for _, a := range pool {
		specs = append(specs, agentSpec(a))
	}
	for _, pass := range []bool{false, true} {
		for _, spec := range specs {
			if (spec.Type == provider.TypeMultiAgent) != pass {
				continue
			}
			p, err := b.registry.Build(spec, deps)
			if err != nil {
				logger.Error("failed to build agent", err, slog.String("agent", spec.Name))
				continue
			}
			built[spec.Name] = p
		}
	}
	return built
}

func agentSpec(a store.AgentConfig) provider.Spec {
	t := a.Type
	if t == "" {
		t = provider.TypeChatAgent
		if len(a.Participants) > 0 {
			t = provider.TypeMultiAgent
		}
	}
	return provider.Spec{
		Type:         t,
		Name:         a.Name,
		DisplayName:  a.DisplayName,
		Model:        a.Model,
		Instructions: a.Instructions,
		Participants: a.Participants,
	}
}

// SelectAgent picks the agent named selection, else the default agent, else the first one.
func SelectAgent(pool []store.AgentConfig, selection string) (store.AgentConfig, bool) {
	if selection != "" {
		for _, a := range pool {
			if a.Name == selection {
				return a, true
			}
		}
	}
	for _, a := range pool {
		if a.DefaultAgent {
			return a, true
		}
	}
	if len(pool) > 0 {
		return pool[0], true
	}
	return store.AgentConfig{}, false
}

// Steps returns the fallback chain over history: orchestrator, selected agent,
// agent service, kernel, then the raw completion model which is always present.
func (p *AgentPlan) Steps(history []ai.Message) []Step {
	var steps []Step
	if p.Enabled {
		if p.MultiAgent && !p.PerUser && p.orchestrator != nil {
			steps = append(steps, Step{
				Name:    orchestratorAgentName,
				Timeout: timeout.AgentTimeout,
				Run: generate(p.orchestrator, history, func(text string) Outcome {
					return Outcome{Text: text, Model: ModeMultiAgent, Mode: ModeMultiAgent}
				}),
			})
		}
		if p.selected != nil {
			name := p.Selected.Name
			notice := ""
			if p.MultiAgent && !p.PerUser {
				notice = SingleAgentNotice
			}
			steps = append(steps, Step{
				Name:    ModeAgent,
				Timeout: timeout.AgentTimeout,
				Run: generate(p.selected, history, func(text string) Outcome {
					return Outcome{Text: text, Model: name, Mode: ModeAgent, Notice: notice}
				}),
			})
		}
		if p.agentServiceOn {
			run := generate(p.agentService, history, func(text string) Outcome {
				return Outcome{Text: text, Model: ModeAgentService, Mode: ModeAgentService}
			})
			if p.agentServiceErr != nil {
				run = fail(p.agentServiceErr)
			}
			steps = append(steps, Step{Name: ModeAgentService, Timeout: timeout.AgentTimeout, Run: run})
		}
		if p.kernel != nil {
			steps = append(steps, Step{
				Name:    ModeKernel,
				Timeout: timeout.ProviderTimeout,
				Run: generate(p.kernel, history, func(text string) Outcome {
					return Outcome{Text: text, Model: ModeKernel, Mode: ModeKernel, Notice: KernelNotice}
				}),
			})
		}
	}
	return append(steps, p.gptStep(history))
}

func (p *AgentPlan) gptStep(history []ai.Message) Step {
	step := Step{Name: "gpt", Timeout: timeout.ProviderTimeout}
	if p.gptErr != nil {
		step.Run = fail(p.gptErr)
		return step
	}
	agentsOn := p.Enabled
	model := p.model
	step.Run = func(ctx context.Context) Result {
		text, err := p.gpt.Generate(ctx, history)
		if err != nil {
			if provider.IsContextLength(err) {
				return Failure{Err: err, Reply: ContextLengthReply}
			}
			return Failure{Err: err}
		}
		out := Outcome{Text: text, Model: model}
		if agentsOn {
			out.Text = GPTReplyPrefix + text
			out.Notice = GPTNotice
		}
		return Success{Outcome: out}
	}
	return step
}

func generate(p provider.CompletionProvider, history []ai.Message, transform func(string) Outcome) func(context.Context) Result {
	return func(ctx context.Context) Result {
		text, err := p.Generate(ctx, history)
		if err != nil {
			return Failure{Err: errors.Wrapf(err, "%s failed", p.Name())}
		}
		return Success{Outcome: transform(text)}
	}
}

func fail(err error) func(context.Context) Result {
	return func(context.Context) Result {
		return Failure{Err: err}
	}
}
