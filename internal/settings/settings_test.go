package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/chatturn/store"
)

func TestEvenWindow(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0, 0},
		{1, 2},
		{5, 6},
		{6, 6},
		{6.2, 8},
		{7, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EvenWindow(tt.in), "EvenWindow(%v)", tt.in)
	}

	s := Settings{ConversationHistoryLimit: 5}
	assert.Equal(t, 6, s.HistoryLimit())
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Settings) {}},
		{name: "negative history", mutate: func(s *Settings) { s.ConversationHistoryLimit = -1 }, wantErr: true},
		{name: "negative summarize", mutate: func(s *Settings) { s.NumberOfHistoricalMessagesToSummarize = -2 }, wantErr: true},
		{name: "unnamed agent", mutate: func(s *Settings) { s.Agents = []store.AgentConfig{{}} }, wantErr: true},
		{name: "duplicate agent", mutate: func(s *Settings) {
			s.Agents = []store.AgentConfig{{Name: "a"}, {Name: "a"}}
		}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFileSource_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
conversation_history_limit: 4
default_system_prompt: "You are helpful."
enable_content_safety: true
gpt_model:
  selected:
    - deployment_name: gpt-4o
enable_semantic_kernel: true
semantic_kernel_agents:
  - name: researcher
    default_agent: true
    instructions: Research carefully.
global_selected_agent:
  name: researcher
`), 0o600))

	s, err := NewFileSource(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, s.ConversationHistoryLimit)
	assert.Equal(t, 10, s.NumberOfHistoricalMessagesToSummarize, "default applies to unset keys")
	assert.True(t, s.EnableSummarizeHistoryBeyondLimit)
	assert.True(t, s.AgentService.UseEnv)
	assert.Equal(t, "You are helpful.", s.DefaultSystemPrompt)
	assert.Equal(t, "gpt-4o", s.GPTModel.First())
	require.Len(t, s.Agents, 1)
	assert.True(t, s.Agents[0].DefaultAgent)
	require.NotNil(t, s.GlobalSelectedAgent)
	assert.Equal(t, "researcher", s.GlobalSelectedAgent.Name)
}

func TestFileSource_MissingFile(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "missing.yaml")).Load(context.Background())
	assert.Error(t, err)
}

type flakySource struct {
	mu       sync.Mutex
	settings []Settings
	err      error
}

func (f *flakySource) Load(context.Context) (*Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := f.settings[0]
	if len(f.settings) > 1 {
		f.settings = f.settings[1:]
	}
	return &s, nil
}

func TestHandle_Reload(t *testing.T) {
	first := Default()
	second := Default()
	second.DefaultSystemPrompt = "v2"
	src := &flakySource{settings: []Settings{first, second}}

	h, err := NewHandle(context.Background(), src)
	require.NoError(t, err)
	snap := h.Get()
	assert.Equal(t, int64(1), snap.Version)
	assert.Empty(t, snap.Settings.DefaultSystemPrompt)

	next, err := h.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.Version)
	assert.Equal(t, "v2", h.Get().Settings.DefaultSystemPrompt)
	assert.Empty(t, snap.Settings.DefaultSystemPrompt, "earlier snapshot is unchanged")

	src.err = errors.New("disk gone")
	_, err = h.Reload(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(2), h.Get().Version, "failed reload keeps the current snapshot")
}

func TestHandle_RejectsInvalid(t *testing.T) {
	bad := Default()
	bad.ConversationHistoryLimit = -1
	_, err := NewHandle(context.Background(), StaticSource{Settings: bad})
	assert.Error(t, err)
}

func TestHandle_ConcurrentReads(t *testing.T) {
	h, err := NewHandle(context.Background(), StaticSource{Settings: Default()})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = h.Reload(context.Background())
		}()
		go func() {
			defer wg.Done()
			assert.NotNil(t, h.Get())
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(9), h.Get().Version)
}
