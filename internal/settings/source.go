package settings

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Source loads a settings snapshot.
type Source interface {
	Load(ctx context.Context) (*Settings, error)
}

// FileSource reads settings from a YAML or JSON file through viper.
// Environment variables prefixed CHATTURN_SETTINGS_ override file keys.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Load(_ context.Context) (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CHATTURN_SETTINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if s.path != "" {
		v.SetConfigFile(s.path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read settings file %s", s.path)
		}
	}

	out := &Settings{}
	if err := v.Unmarshal(out); err != nil {
		return nil, errors.Wrapf(err, "failed to decode settings file %s", s.path)
	}
	return out, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("conversation_history_limit", d.ConversationHistoryLimit)
	v.SetDefault("enable_summarize_content_history_beyond_conversation_history_limit", d.EnableSummarizeHistoryBeyondLimit)
	v.SetDefault("enable_summarize_content_history_for_search", d.EnableSummarizeHistoryForSearch)
	v.SetDefault("number_of_historical_messages_to_summarize", d.NumberOfHistoricalMessagesToSummarize)
	v.SetDefault("azure_agent_service.use_env", d.AgentService.UseEnv)
}

// StaticSource always returns a copy of the same settings.
type StaticSource struct {
	Settings Settings
}

func (s StaticSource) Load(context.Context) (*Settings, error) {
	out := s.Settings
	return &out, nil
}
