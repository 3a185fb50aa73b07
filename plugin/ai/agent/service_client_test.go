package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/chatturn/plugin/ai"
)

func newRunServer(t *testing.T, status int, resp runResponse) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/projects/proj/agents/agent-1/runs", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("api-key"))

		var req runRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.Messages)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestServiceClient(t *testing.T, endpoint string) *ServiceClient {
	t.Helper()
	c, err := NewServiceClient(ServiceConfig{Endpoint: endpoint, Project: "proj", AgentID: "agent-1", APIKey: "secret", RequestsPerSecond: 100})
	require.NoError(t, err)
	return c
}

func TestServiceClient_ReturnsLastAssistantMessage(t *testing.T) {
	server := newRunServer(t, http.StatusOK, runResponse{
		Status: "completed",
		Messages: []ai.Message{
			ai.UserMessage("q"),
			ai.AssistantMessage("first"),
			ai.AssistantMessage("second"),
		},
	})

	out, err := newTestServiceClient(t, server.URL).Generate(context.Background(), []ai.Message{ai.UserMessage("q")})
	require.NoError(t, err)
	assert.Equal(t, "second", out)
}

func TestServiceClient_NoAssistantMessage(t *testing.T) {
	server := newRunServer(t, http.StatusOK, runResponse{Status: "completed"})

	out, err := newTestServiceClient(t, server.URL).Generate(context.Background(), []ai.Message{ai.UserMessage("q")})
	require.NoError(t, err)
	assert.Equal(t, noAssistantReply, out)
}

func TestServiceClient_Failures(t *testing.T) {
	t.Run("failed run", func(t *testing.T) {
		server := newRunServer(t, http.StatusOK, runResponse{Status: "failed", LastError: "tool crashed"})
		_, err := newTestServiceClient(t, server.URL).Generate(context.Background(), []ai.Message{ai.UserMessage("q")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tool crashed")
	})

	t.Run("http error", func(t *testing.T) {
		server := newRunServer(t, http.StatusInternalServerError, runResponse{})
		_, err := newTestServiceClient(t, server.URL).Generate(context.Background(), []ai.Message{ai.UserMessage("q")})
		assert.Error(t, err)
	})
}
