package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hrygo/chatturn/plugin/ai/provider"
	"github.com/hrygo/chatturn/server/internal/observability"
)

// TerminalReply is returned when every fallback step failed.
const TerminalReply = "Sorry, I encountered an error."

var (
	errNoRun    = errors.New("fallback step has nothing to run")
	errNoResult = errors.New("fallback step returned no result")
)

// Outcome is a generated reply and how it was produced.
type Outcome struct {
	Text string
	// Model is the label stored as the reply's model deployment.
	Model string
	// Mode is the chat mode, empty for the raw completion model.
	Mode string
	// Notice warns the user about degraded capabilities, or is empty.
	Notice string
	// Exhausted is set when no step succeeded.
	Exhausted bool
}

// Result is the value of one fallback step: Success or Failure.
type Result interface {
	isResult()
}

// Success ends the chain with its outcome.
type Success struct {
	Outcome
}

// Failure moves the chain on to the next step.
type Failure struct {
	Err error
	// Reply, when set, replaces TerminalReply if no later step succeeds.
	Reply string
}

func (Success) isResult() {}
func (Failure) isResult() {}

// Step is one named generation strategy of a fallback chain.
type Step struct {
	Name string
	// Timeout bounds Run when positive.
	Timeout time.Duration
	Run     func(ctx context.Context) Result
	// OnError is called after a failure has been logged. Optional.
	OnError func(err error)
}

// Executor runs a fallback chain: steps in order, stopping at the first success.
type Executor struct {
	metrics *observability.Metrics
}

func NewExecutor(metrics *observability.Metrics) *Executor {
	if metrics == nil {
		metrics = observability.NewMetrics(nil)
	}
	return &Executor{metrics: metrics}
}

// Run returns the outcome of the first successful step. Step N runs only if
// steps 1..N-1 all failed. When every step fails the reply is TerminalReply, or
// the reply carried by the last failure that set one, with defaultModel as model.
func (e *Executor) Run(ctx context.Context, steps []Step, defaultModel string) Outcome {
	ctx, span := observability.StartSpan(ctx, "chat.fallback", attribute.Int("steps", len(steps)))
	defer span.End()

	logger := observability.LoggerFrom(ctx, "")
	reply := TerminalReply
	for i, step := range steps {
		result := e.runStep(ctx, step)
		switch r := result.(type) {
		case Success:
			e.metrics.RecordStep(step.Name, true)
			span.SetAttributes(attribute.String("step", step.Name), attribute.Int("attempts", i+1))
			logger.Info("fallback step succeeded",
				slog.String(observability.LogFieldStep, step.Name),
				slog.Int("attempt", i+1))
			return r.Outcome
		case Failure:
			class := errorClass(r.Err)
			e.metrics.RecordStep(step.Name, false)
			e.metrics.RecordStepError(step.Name, class)
			logger.Error("fallback step failed", r.Err,
				slog.String(observability.LogFieldStep, step.Name),
				slog.String(observability.LogFieldErrorClass, class))
			if step.OnError != nil {
				step.OnError(r.Err)
			}
			if r.Reply != "" {
				reply = r.Reply
			}
		}
	}
	span.SetAttributes(attribute.Bool("exhausted", true))
	return Outcome{Text: reply, Model: defaultModel, Exhausted: true}
}

// errorClass names the provider error class of a step failure.
func errorClass(err error) string {
	if err == nil {
		err = errNoResult
	}
	return provider.ClassifyError(err).Class.String()
}

func (e *Executor) runStep(ctx context.Context, step Step) Result {
	if step.Run == nil {
		return Failure{Err: errNoRun}
	}
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}
	ctx, span := observability.StartSpan(ctx, "chat.fallback.step", attribute.String("step", step.Name))
	result := step.Run(ctx)
	if result == nil {
		result = Failure{Err: errNoResult}
	}
	if f, ok := result.(Failure); ok {
		observability.EndSpan(span, f.Err)
	} else {
		observability.EndSpan(span, nil)
	}
	return result
}
