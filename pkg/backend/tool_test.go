package backend

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/harun/oracle/internal/tracing"
	"github.com/harun/oracle/pkg/agent"
	"github.com/harun/oracle/pkg/limiter"
)

type fakeProvider struct {
	name string
	call func(ctx context.Context, req agent.LLMRequest) (*agent.LLMResponse, error)
}

func (f *fakeProvider) Call(ctx context.Context, req agent.LLMRequest) (*agent.LLMResponse, error) {
	return f.call(ctx, req)
}

func (f *fakeProvider) Provider() string { return f.name }

func replying(text string) *fakeProvider {
	return &fakeProvider{name: "fake", call: func(context.Context, agent.LLMRequest) (*agent.LLMResponse, error) {
		return &agent.LLMResponse{Content: text}, nil
	}}
}

func failing(err error) *fakeProvider {
	return &fakeProvider{name: "fake", call: func(context.Context, agent.LLMRequest) (*agent.LLMResponse, error) {
		return nil, err
	}}
}

func newSession(t *testing.T, capacity int) SessionContext {
	t.Helper()
	l, err := limiter.New(capacity)
	require.NoError(t, err)
	return SessionContext{ID: "sess-1", Limiter: l}
}

func descriptor(name string, policy FailurePolicy) Descriptor {
	return Descriptor{Name: name, Provider: "openai", Model: "o4-mini", FailurePolicy: policy}
}

func TestInvokeBuildsTwoMessageRequest(t *testing.T) {
	var got agent.LLMRequest
	capability := &fakeProvider{name: "fake", call: func(_ context.Context, req agent.LLMRequest) (*agent.LLMResponse, error) {
		got = req
		return &agent.LLMResponse{Content: "42"}, nil
	}}

	tool, err := NewTool(newSession(t, 3), descriptor("gpt", PolicyPropagate), capability, Options{ToolContext: "answer briefly"})
	require.NoError(t, err)

	out, err := tool.Invoke(context.Background(), "meaning of life?")
	require.NoError(t, err)
	assert.Equal(t, "42", out)

	assert.Equal(t, "o4-mini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, agent.RoleSystem, got.Messages[0].Role)
	assert.Equal(t, "answer briefly", got.Messages[0].Content.Text)
	assert.Equal(t, agent.RoleHuman, got.Messages[1].Role)
	assert.Equal(t, "meaning of life?", got.Messages[1].Content.Text)

	assert.Equal(t, "ask_gpt", tool.Name())
	assert.Contains(t, tool.Description(), "gpt")
}

func TestFailurePolicy(t *testing.T) {
	cause := errors.New("rate limited")

	t.Run("substitute returns error text", func(t *testing.T) {
		tool, err := NewTool(newSession(t, 3), descriptor("gpt", PolicySubstitute), failing(cause), Options{})
		require.NoError(t, err)

		out, err := tool.Invoke(context.Background(), "q")
		require.NoError(t, err)
		assert.Contains(t, out, "failed")
		assert.Equal(t, "gpt call failed with error: rate limited", out)
	})

	t.Run("propagate surfaces InvocationError", func(t *testing.T) {
		tool, err := NewTool(newSession(t, 3), descriptor("claude", PolicyPropagate), failing(cause), Options{})
		require.NoError(t, err)

		out, err := tool.Invoke(context.Background(), "q")
		require.Error(t, err)
		assert.Empty(t, out)
		assert.ErrorIs(t, err, ErrBackendInvocation)
		assert.ErrorIs(t, err, cause)

		var invErr *InvocationError
		require.ErrorAs(t, err, &invErr)
		assert.Equal(t, "claude", invErr.Backend)
		assert.Equal(t, "o4-mini", invErr.Model)
	})

	t.Run("empty policy propagates", func(t *testing.T) {
		tool, err := NewTool(newSession(t, 3), descriptor("gemini", ""), failing(cause), Options{})
		require.NoError(t, err)

		_, err = tool.Invoke(context.Background(), "q")
		assert.ErrorIs(t, err, ErrBackendInvocation)
	})
}

func TestPermitReleasedOnFailure(t *testing.T) {
	sc := newSession(t, 3)
	bad, err := NewTool(sc, descriptor("claude", PolicyPropagate), failing(errors.New("down")), Options{})
	require.NoError(t, err)
	good, err := NewTool(sc, descriptor("gpt", PolicyPropagate), replying("ok"), Options{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := bad.Invoke(context.Background(), "q")
		require.Error(t, err)
	}

	done := make(chan string, 1)
	go func() {
		out, _ := good.Invoke(context.Background(), "q")
		done <- out
	}()

	select {
	case out := <-done:
		assert.Equal(t, "ok", out)
	case <-time.After(2 * time.Second):
		t.Fatal("call after failures deadlocked")
	}
	assert.Equal(t, 0, sc.Limiter.InUse())
}

func TestPanicIsRecoveredAndPermitReleased(t *testing.T) {
	sc := newSession(t, 1)
	capability := &fakeProvider{name: "fake", call: func(context.Context, agent.LLMRequest) (*agent.LLMResponse, error) {
		panic("sdk bug")
	}}

	tool, err := NewTool(sc, descriptor("claude", PolicyPropagate), capability, Options{})
	require.NoError(t, err)

	_, err = tool.Invoke(context.Background(), "q")
	assert.ErrorIs(t, err, ErrCapabilityPanic)
	assert.Equal(t, 0, sc.Limiter.InUse())
}

func TestBoundedConcurrencyAcrossTools(t *testing.T) {
	sc := newSession(t, 3)

	var current, peak atomic.Int64
	capability := &fakeProvider{name: "fake", call: func(context.Context, agent.LLMRequest) (*agent.LLMResponse, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		return &agent.LLMResponse{Content: "ok"}, nil
	}}

	var tools []*Tool
	for _, name := range []string{"claude", "gpt", "gemini"} {
		tool, err := NewTool(sc, descriptor(name, PolicyPropagate), capability, Options{})
		require.NoError(t, err)
		tools = append(tools, tool)
	}

	var wg sync.WaitGroup
	var completed atomic.Int64
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(tool *Tool) {
			defer wg.Done()
			if _, err := tool.Invoke(context.Background(), "q"); err == nil {
				completed.Add(1)
			}
		}(tools[i%len(tools)])
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.Equal(t, int64(12), completed.Load())
}

func TestInvokeIgnoresCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	capability := &fakeProvider{name: "fake", call: func(ctx context.Context, _ agent.LLMRequest) (*agent.LLMResponse, error) {
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &agent.LLMResponse{Content: "finished"}, nil
	}}

	sc := newSession(t, 1)
	tool, err := NewTool(sc, descriptor("claude", PolicyPropagate), capability, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan string, 1)
	go func() {
		out, _ := tool.Invoke(ctx, "q")
		result <- out
	}()

	cancel()
	close(release)

	select {
	case out := <-result:
		assert.Equal(t, "finished", out)
	case <-time.After(2 * time.Second):
		t.Fatal("invoke never returned")
	}
	assert.Equal(t, 0, sc.Limiter.InUse())
}

func TestInvokeTimeout(t *testing.T) {
	capability := &fakeProvider{name: "fake", call: func(ctx context.Context, _ agent.LLMRequest) (*agent.LLMResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	tool, err := NewTool(newSession(t, 1), descriptor("gpt", PolicySubstitute), capability, Options{Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	out, err := tool.Invoke(context.Background(), "q")
	require.NoError(t, err)
	assert.Contains(t, out, "deadline exceeded")
}

func TestInvokeLogsOneRecordTaggedWithSession(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	tool, err := NewTool(newSession(t, 1), descriptor("gpt", PolicySubstitute), failing(errors.New("nope")), Options{Logger: logger})
	require.NoError(t, err)

	_, err = tool.Invoke(context.Background(), "q")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"session_id":"sess-1"`)
	assert.Contains(t, lines[0], `"backend":"gpt"`)
}

func TestInvokeExportsSpanMatchingLogTraceID(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	_, err := tracing.Install(context.Background(), tracing.Config{ServiceName: "oracle-test"}, sdktrace.WithSyncer(exp))
	require.NoError(t, err)
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	var buf bytes.Buffer
	tool, err := NewTool(newSession(t, 1), descriptor("gpt", PolicyPropagate), replying("ok"), Options{Logger: zerolog.New(&buf)})
	require.NoError(t, err)

	_, err = tool.Invoke(context.Background(), "q")
	require.NoError(t, err)

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "backend.invoke", spans[0].Name)

	var backendAttr string
	for _, kv := range spans[0].Attributes {
		if kv.Key == "oracle.backend" {
			backendAttr = kv.Value.AsString()
		}
	}
	assert.Equal(t, "gpt", backendAttr)

	assert.Contains(t, buf.String(), `"trace_id":"`+spans[0].SpanContext.TraceID().String()+`"`)
}

func TestNewToolValidation(t *testing.T) {
	_, err := NewTool(SessionContext{ID: "x"}, descriptor("gpt", PolicyPropagate), replying("ok"), Options{})
	assert.ErrorIs(t, err, ErrNoLimiter)

	_, err = NewTool(newSession(t, 1), descriptor("gpt", PolicyPropagate), nil, Options{})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	_, err = NewTool(newSession(t, 1), descriptor("gpt", "retry"), replying("ok"), Options{})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}

type countingCreator struct {
	calls map[string]int
	fail  string
}

func (c *countingCreator) NewProvider(_ context.Context, provider string) (agent.LLMProvider, error) {
	c.calls[provider]++
	if provider == c.fail {
		return nil, agent.ErrMissingCredentials
	}
	return replying(provider), nil
}

func TestNewTools(t *testing.T) {
	sc := newSession(t, 3)
	sc.Backends = []Descriptor{
		{Name: "claude", Provider: "anthropic", Model: "claude-3-7-sonnet-latest"},
		{Name: "gpt", Provider: "openai", Model: "o4-mini", FailurePolicy: PolicySubstitute},
		{Name: "gpt-mini", Provider: "gpt", Model: "gpt-4o-mini"},
	}

	creator := &countingCreator{calls: map[string]int{}}
	tools, err := NewTools(context.Background(), sc, creator, Options{})
	require.NoError(t, err)

	require.Len(t, tools, 3)
	assert.Equal(t, "ask_claude", tools[0].Name())
	assert.Equal(t, "ask_gpt", tools[1].Name())
	assert.Equal(t, "ask_gpt-mini", tools[2].Name())
	assert.Equal(t, 1, creator.calls[agent.ProviderOpenAI])

	creator = &countingCreator{calls: map[string]int{}, fail: agent.ProviderAnthropic}
	_, err = NewTools(context.Background(), sc, creator, Options{})
	assert.ErrorIs(t, err, agent.ErrMissingCredentials)
}
