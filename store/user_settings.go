package store

// AgentConfig describes one invocable agent.
type AgentConfig struct {
	ID           string `json:"id" mapstructure:"id"`
	Name         string `json:"name" mapstructure:"name"`
	DisplayName  string `json:"display_name" mapstructure:"display_name"`
	Type         string `json:"type" mapstructure:"type"`
	Model        string `json:"model" mapstructure:"model"`
	Instructions string `json:"instructions" mapstructure:"instructions"`
	DefaultAgent bool   `json:"default_agent" mapstructure:"default_agent"`
	IsGlobal     bool   `json:"is_global" mapstructure:"is_global"`
	// Participants lists agent names an orchestrator delegates to.
	Participants []string `json:"participants,omitempty" mapstructure:"participants"`
}

// UserSettings are per-user chat preferences.
type UserSettings struct {
	UserID        string        `json:"user_id"`
	DisplayName   string        `json:"display_name"`
	Email         string        `json:"email"`
	EnableAgents  bool          `json:"enable_agents"`
	SelectedAgent string        `json:"selected_agent"`
	Agents        []AgentConfig `json:"agents"`
	UpdatedTs     int64         `json:"updated_ts"`
}
