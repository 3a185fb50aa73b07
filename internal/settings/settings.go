// Package settings holds the admin-level chat configuration snapshot read once per turn.
package settings

import (
	"math"

	"github.com/pkg/errors"

	"github.com/hrygo/chatturn/store"
)

// ModelRef names one model deployment.
type ModelRef struct {
	DeploymentName string `json:"deployment_name" mapstructure:"deployment_name"`
}

// ModelSelection is the admin-selected list of deployments; the first entry is used.
type ModelSelection struct {
	Selected []ModelRef `json:"selected" mapstructure:"selected"`
}

// First returns the first selected deployment name, or "".
func (m ModelSelection) First() string {
	if len(m.Selected) == 0 {
		return ""
	}
	return m.Selected[0].DeploymentName
}

// AgentRef points at an agent by name.
type AgentRef struct {
	Name string `json:"name" mapstructure:"name"`
}

// AgentServiceConfig locates the remote agent service.
type AgentServiceConfig struct {
	// UseEnv takes endpoint, project and agent id from the process profile instead.
	UseEnv   bool   `json:"use_env" mapstructure:"use_env"`
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
	Project  string `json:"project" mapstructure:"project"`
	AgentID  string `json:"agent_id" mapstructure:"agent_id"`
}

// Settings is one configuration snapshot.
type Settings struct {
	// History
	ConversationHistoryLimit              int  `json:"conversation_history_limit" mapstructure:"conversation_history_limit"`
	EnableSummarizeHistoryBeyondLimit     bool `json:"enable_summarize_content_history_beyond_conversation_history_limit" mapstructure:"enable_summarize_content_history_beyond_conversation_history_limit"`
	EnableSummarizeHistoryForSearch       bool `json:"enable_summarize_content_history_for_search" mapstructure:"enable_summarize_content_history_for_search"`
	NumberOfHistoricalMessagesToSummarize int  `json:"number_of_historical_messages_to_summarize" mapstructure:"number_of_historical_messages_to_summarize"`

	DefaultSystemPrompt string `json:"default_system_prompt" mapstructure:"default_system_prompt"`
	EnableContentSafety bool   `json:"enable_content_safety" mapstructure:"enable_content_safety"`

	// Completion model selection
	EnableGPTAPIM     bool           `json:"enable_gpt_apim" mapstructure:"enable_gpt_apim"`
	APIMGPTDeployment string         `json:"azure_apim_gpt_deployment" mapstructure:"azure_apim_gpt_deployment"`
	GPTModel          ModelSelection `json:"gpt_model" mapstructure:"gpt_model"`

	// Image generation
	EnableImageGenAPIM     bool           `json:"enable_image_gen_apim" mapstructure:"enable_image_gen_apim"`
	APIMImageGenDeployment string         `json:"azure_apim_image_gen_deployment" mapstructure:"azure_apim_image_gen_deployment"`
	ImageGenModel          ModelSelection `json:"image_gen_model" mapstructure:"image_gen_model"`

	// Agents
	EnableSemanticKernel          bool                `json:"enable_semantic_kernel" mapstructure:"enable_semantic_kernel"`
	PerUserSemanticKernel         bool                `json:"per_user_semantic_kernel" mapstructure:"per_user_semantic_kernel"`
	EnableMultiAgentOrchestration bool                `json:"enable_multi_agent_orchestration" mapstructure:"enable_multi_agent_orchestration"`
	Agents                        []store.AgentConfig `json:"semantic_kernel_agents" mapstructure:"semantic_kernel_agents"`
	GlobalSelectedAgent           *AgentRef           `json:"global_selected_agent" mapstructure:"global_selected_agent"`

	EnableAgentService bool               `json:"enable_azure_agent_service" mapstructure:"enable_azure_agent_service"`
	AgentService       AgentServiceConfig `json:"azure_agent_service" mapstructure:"azure_agent_service"`
}

// Default returns the settings used for keys a source leaves unset.
func Default() Settings {
	return Settings{
		ConversationHistoryLimit:              6,
		EnableSummarizeHistoryBeyondLimit:     true,
		EnableSummarizeHistoryForSearch:       false,
		NumberOfHistoricalMessagesToSummarize: 10,
		AgentService:                          AgentServiceConfig{UseEnv: true},
	}
}

// Validate rejects snapshots no turn could run with.
func (s *Settings) Validate() error {
	if s.ConversationHistoryLimit < 0 {
		return errors.Errorf("conversation_history_limit must not be negative, got %d", s.ConversationHistoryLimit)
	}
	if s.NumberOfHistoricalMessagesToSummarize < 0 {
		return errors.Errorf("number_of_historical_messages_to_summarize must not be negative, got %d", s.NumberOfHistoricalMessagesToSummarize)
	}
	seen := make(map[string]bool, len(s.Agents))
	for _, a := range s.Agents {
		if a.Name == "" {
			return errors.New("every agent needs a name")
		}
		if seen[a.Name] {
			return errors.Errorf("duplicate agent name %q", a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

// HistoryLimit returns the recency window rounded up to an even number,
// so user/assistant pairs stay aligned.
func (s *Settings) HistoryLimit() int {
	return EvenWindow(float64(s.ConversationHistoryLimit))
}

// EvenWindow rounds n up to an integer and then up to the next even number.
func EvenWindow(n float64) int {
	limit := int(math.Ceil(n))
	if limit%2 != 0 {
		limit++
	}
	return limit
}
