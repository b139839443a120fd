package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/oracle/internal/observability"
	"github.com/harun/oracle/internal/tracing"
	"github.com/harun/oracle/pkg/agent"
)

const tracerName = "oracle/backend"

// Options tune every tool of a session
type Options struct {
	// ToolContext is the system instruction sent ahead of each prompt.
	ToolContext string
	// Timeout bounds one call including the permit wait. Zero means none.
	Timeout   time.Duration
	MaxTokens int
	Logger    zerolog.Logger
}

// Tool invokes one backend under the session limiter.
type Tool struct {
	session    SessionContext
	desc       Descriptor
	capability agent.LLMProvider
	opts       Options
}

// NewTool binds a backend descriptor and its capability to a session.
func NewTool(sc SessionContext, d Descriptor, capability agent.LLMProvider, opts Options) (*Tool, error) {
	if sc.Limiter == nil {
		return nil, ErrNoLimiter
	}
	if capability == nil {
		return nil, fmt.Errorf("%w: backend %s has no capability", ErrInvalidDescriptor, d.Name)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &Tool{session: sc, desc: d, capability: capability, opts: opts}, nil
}

// NewTools builds the session's tools in descriptor order. Descriptors that
// share a provider share one client.
func NewTools(ctx context.Context, sc SessionContext, creator agent.ProviderCreator, opts Options) ([]*Tool, error) {
	providers := make(map[string]agent.LLMProvider)
	tools := make([]*Tool, 0, len(sc.Backends))

	for _, d := range sc.Backends {
		name := agent.NormalizeProvider(d.Provider)
		capability, ok := providers[name]
		if !ok {
			var err error
			capability, err = creator.NewProvider(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("backend %s: %w", d.Name, err)
			}
			providers[name] = capability
		}

		tool, err := NewTool(sc, d, capability, opts)
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

func (t *Tool) Name() string {
	return t.desc.ToolName()
}

func (t *Tool) Description() string {
	return fmt.Sprintf("Ask %s with the given prompt.", t.desc.Name)
}

// Descriptor returns a copy of the backend descriptor
func (t *Tool) Descriptor() Descriptor {
	return t.desc
}

// Invoke sends prompt to the backend and returns its text.
//
// The call ignores cancellation of ctx: once dispatched it runs to completion
// and its permit is released normally. Only Options.Timeout bounds it.
func (t *Tool) Invoke(ctx context.Context, prompt string) (string, error) {
	ctx = tracing.Detach(ctx)
	ctx = tracing.WithSessionID(ctx, t.session.ID)
	ctx = tracing.WithBackend(ctx, t.desc.Name)

	if t.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.Timeout)
		defer cancel()
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "backend.invoke",
		attribute.String("oracle.provider", t.desc.Provider),
		attribute.String("oracle.model", t.desc.Model),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, t.opts.Logger)

	start := time.Now()
	text, err := t.call(ctx, prompt)
	elapsed := time.Since(start)

	if err == nil {
		observability.RecordBackendCall(t.desc.Name, "success", elapsed)
		logger.Info().
			Str("model", t.desc.Model).
			Int("prompt_len", len(prompt)).
			Int("response_len", len(text)).
			Dur("duration", elapsed).
			Msg("Backend call finished")
		return text, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if t.desc.policy() == PolicySubstitute {
		observability.RecordBackendCall(t.desc.Name, "substituted", elapsed)
		logger.Warn().
			Err(err).
			Str("model", t.desc.Model).
			Dur("duration", elapsed).
			Msg("Backend call failed, returning error text")
		return fmt.Sprintf("%s call failed with error: %v", t.desc.Name, err), nil
	}

	observability.RecordBackendCall(t.desc.Name, "failed", elapsed)
	logger.Error().
		Err(err).
		Str("model", t.desc.Model).
		Dur("duration", elapsed).
		Msg("Backend call failed")
	return "", &InvocationError{
		Backend:  t.desc.Name,
		Provider: t.desc.Provider,
		Model:    t.desc.Model,
		Err:      err,
	}
}

// call holds a permit for exactly the duration of one capability call.
func (t *Tool) call(ctx context.Context, prompt string) (text string, err error) {
	waitStart := time.Now()
	permit, err := t.session.Limiter.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire permit: %w", err)
	}
	observability.RecordPermitAcquired(time.Since(waitStart))
	defer func() {
		permit.Release()
		observability.RecordPermitReleased()
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCapabilityPanic, r)
		}
	}()

	resp, err := t.capability.Call(ctx, agent.LLMRequest{
		Model: t.desc.Model,
		Messages: []agent.Message{
			agent.SystemMessage(t.opts.ToolContext),
			agent.HumanMessage(prompt),
		},
		MaxTokens: t.opts.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", agent.ErrEmptyResponse
	}
	return resp.Content, nil
}
