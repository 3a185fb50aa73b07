package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/chatturn/plugin/ai"
	"github.com/hrygo/chatturn/plugin/ai/provider"
	"github.com/hrygo/chatturn/server/internal/observability"
)

type MockProvider struct {
	mock.Mock
	name string
}

func (m *MockProvider) Name() string {
	return m.name
}

func (m *MockProvider) Generate(ctx context.Context, history []ai.Message) (string, error) {
	args := m.Called(ctx, history)
	return args.String(0), args.Error(1)
}

func providerStep(p *MockProvider) Step {
	return Step{
		Name: p.name,
		Run: generate(p, nil, func(text string) Outcome {
			return Outcome{Text: text, Model: p.name, Mode: p.name}
		}),
	}
}

// loggedContext returns a context whose request logger writes JSON lines to buf.
func loggedContext(t *testing.T, requestID, userID, conversationID string) (context.Context, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	reqCtx := observability.NewRequestContextWithID(logger, requestID, userID)
	reqCtx.SetConversation(conversationID)
	return observability.WithRequestContext(context.Background(), reqCtx), buf
}

// logRecords decodes the JSON log lines in buf that carry msg.
func logRecords(t *testing.T, buf *bytes.Buffer, msg string) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(bytes.NewReader(buf.Bytes()))
	for dec.More() {
		rec := map[string]any{}
		require.NoError(t, dec.Decode(&rec))
		if rec["msg"] == msg {
			out = append(out, rec)
		}
	}
	return out
}

func TestExecutor_StopsAtFirstSuccess(t *testing.T) {
	first := &MockProvider{name: "orchestrator"}
	first.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("boom"))
	second := &MockProvider{name: "agent"}
	second.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("still down"))
	third := &MockProvider{name: "kernel"}
	third.On("Generate", mock.Anything, mock.Anything).Return("hello", nil)
	fourth := &MockProvider{name: "gpt"}

	metrics := observability.NewMetrics(nil)
	out := NewExecutor(metrics).Run(context.Background(),
		[]Step{providerStep(first), providerStep(second), providerStep(third), providerStep(fourth)}, "gpt-4o")

	assert.Equal(t, "hello", out.Text)
	assert.Equal(t, "kernel", out.Model)
	assert.False(t, out.Exhausted)
	first.AssertNumberOfCalls(t, "Generate", 1)
	second.AssertNumberOfCalls(t, "Generate", 1)
	third.AssertNumberOfCalls(t, "Generate", 1)
	fourth.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FallbackSteps().WithLabelValues("orchestrator", observability.ResultFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FallbackSteps().WithLabelValues("kernel", observability.ResultSuccess)))
}

func TestExecutor_Exhausted(t *testing.T) {
	var steps []Step
	var providers []*MockProvider
	for _, name := range []string{"agent", "kernel", "gpt"} {
		p := &MockProvider{name: name}
		p.On("Generate", mock.Anything, mock.Anything).Return("", errors.New(name+" failed"))
		providers = append(providers, p)
		steps = append(steps, providerStep(p))
	}

	var seen []error
	steps[0].OnError = func(err error) { seen = append(seen, err) }

	out := NewExecutor(nil).Run(context.Background(), steps, "gpt-4o")
	assert.Equal(t, TerminalReply, out.Text)
	assert.Equal(t, "gpt-4o", out.Model)
	assert.Empty(t, out.Mode)
	assert.True(t, out.Exhausted)
	for _, p := range providers {
		p.AssertNumberOfCalls(t, "Generate", 1)
	}
	require.Len(t, seen, 1)
	assert.ErrorContains(t, seen[0], "agent failed")
}

func TestExecutor_FailureReplyOverridesTerminal(t *testing.T) {
	steps := []Step{
		{Name: "agent", Run: fail(errors.New("down"))},
		{Name: "gpt", Run: func(context.Context) Result {
			return Failure{Err: errors.New("context length exceeded"), Reply: ContextLengthReply}
		}},
	}
	out := NewExecutor(nil).Run(context.Background(), steps, "gpt-4o")
	assert.Equal(t, ContextLengthReply, out.Text)
	assert.Equal(t, "gpt-4o", out.Model)
	assert.True(t, out.Exhausted)
}

func TestExecutor_StepWithoutRunFails(t *testing.T) {
	steps := []Step{
		{Name: "empty"},
		{Name: "nil-result", Run: func(context.Context) Result { return nil }},
		{Name: "gpt", Run: func(context.Context) Result { return Success{Outcome{Text: "ok", Model: "gpt-4o"}} }},
	}
	out := NewExecutor(nil).Run(context.Background(), steps, "default")
	assert.Equal(t, "ok", out.Text)
	assert.Equal(t, "gpt-4o", out.Model)
}

func TestExecutor_StepTimeout(t *testing.T) {
	steps := []Step{
		{Name: "slow", Timeout: 1, Run: func(ctx context.Context) Result {
			<-ctx.Done()
			return Failure{Err: ctx.Err()}
		}},
	}
	out := NewExecutor(nil).Run(context.Background(), steps, "gpt-4o")
	assert.True(t, out.Exhausted)
	assert.Equal(t, TerminalReply, out.Text)
}

func TestExecutor_ClassifiesStepErrors(t *testing.T) {
	steps := []Step{
		{Name: "orchestrator", Run: fail(errors.New("dial tcp 10.0.0.1:443: connection refused"))},
		{Name: "agent", Run: fail(errors.New("bad request"))},
		{Name: "gpt", Run: fail(fmt.Errorf("generate: %w", provider.ErrContextLength))},
		{Name: "empty"},
	}
	metrics := observability.NewMetrics(nil)
	ctx, buf := loggedContext(t, "r1", "u1", "c1")
	out := NewExecutor(metrics).Run(ctx, steps, "gpt-4o")
	assert.True(t, out.Exhausted)

	errs := metrics.StepErrors()
	assert.Equal(t, 1.0, testutil.ToFloat64(errs.WithLabelValues("orchestrator", "transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(errs.WithLabelValues("agent", "permanent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(errs.WithLabelValues("gpt", "context_length")))
	assert.Equal(t, 1.0, testutil.ToFloat64(errs.WithLabelValues("empty", "permanent")))

	records := logRecords(t, buf, "fallback step failed")
	require.Len(t, records, 4)
	want := map[string]string{
		"orchestrator": "transient",
		"agent":        "permanent",
		"gpt":          "context_length",
		"empty":        "permanent",
	}
	for _, rec := range records {
		step, _ := rec[observability.LogFieldStep].(string)
		assert.Equal(t, want[step], rec[observability.LogFieldErrorClass], step)
		assert.Equal(t, "r1", rec[observability.LogFieldRequestID])
		assert.Equal(t, "c1", rec[observability.LogFieldConversationID])
	}
}
