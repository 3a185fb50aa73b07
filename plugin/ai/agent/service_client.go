package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/hrygo/chatturn/plugin/ai"
	"github.com/hrygo/chatturn/plugin/ai/provider"
	"github.com/hrygo/chatturn/plugin/ai/timeout"
)

const noAssistantReply = "No assistant response found in thread"

// ServiceConfig locates one agent of the remote agent service.
type ServiceConfig struct {
	Endpoint string
	Project  string
	AgentID  string
	APIKey   string
	// RequestsPerSecond limits outbound runs. Zero means 2/s.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// ServiceClient invokes a hosted agent: it posts the whole history as a run
// and returns the last assistant message of the finished run.
type ServiceClient struct {
	cfg     ServiceConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewServiceClient(cfg ServiceConfig) (*ServiceClient, error) {
	if cfg.Endpoint == "" || cfg.Project == "" || cfg.AgentID == "" {
		return nil, errors.New("missing agent service configuration: endpoint, project and agent id are required")
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout.AgentTimeout}
	}
	return &ServiceClient{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

func newServiceClient(spec provider.Spec, _ provider.Deps) (provider.CompletionProvider, error) {
	return NewServiceClient(ServiceConfig{
		Endpoint: spec.Endpoint,
		Project:  spec.Project,
		AgentID:  spec.AgentID,
		APIKey:   spec.APIKey,
	})
}

func (c *ServiceClient) Name() string {
	return "agent-service"
}

type runRequest struct {
	Messages []ai.Message `json:"messages"`
}

type runResponse struct {
	Status    string       `json:"status"`
	LastError string       `json:"last_error"`
	Messages  []ai.Message `json:"messages"`
}

func (c *ServiceClient) Generate(ctx context.Context, history []ai.Message) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "agent service rate limit wait")
	}

	body, err := json.Marshal(runRequest{Messages: history})
	if err != nil {
		return "", errors.Wrap(err, "failed to encode agent run")
	}

	endpoint := fmt.Sprintf("%s/api/projects/%s/agents/%s/runs",
		strings.TrimRight(c.cfg.Endpoint, "/"), url.PathEscape(c.cfg.Project), url.PathEscape(c.cfg.AgentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to create agent run request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("api-key", c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "agent run request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", errors.Errorf("agent service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var run runResponse
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return "", errors.Wrap(err, "failed to decode agent run")
	}
	if run.Status == "failed" {
		return "", errors.Errorf("agent run failed: %s", run.LastError)
	}

	reply := ""
	for _, m := range run.Messages {
		if m.Role == ai.RoleAssistant && m.Content != "" {
			reply = m.Content
		}
	}
	if reply == "" {
		reply = noAssistantReply
	}
	slog.Debug("agent service run finished",
		slog.String("agent_id", c.cfg.AgentID),
		slog.String("status", run.Status),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return reply, nil
}
