package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/oracle/pkg/agent"
	"github.com/harun/oracle/pkg/aggregator"
	"github.com/harun/oracle/pkg/backend"
	"github.com/harun/oracle/pkg/session"
)

type funcProvider func(ctx context.Context, req agent.LLMRequest) (*agent.LLMResponse, error)

func (f funcProvider) Call(ctx context.Context, req agent.LLMRequest) (*agent.LLMResponse, error) {
	return f(ctx, req)
}

func (f funcProvider) Provider() string { return "fake" }

type fakeCreator struct {
	aggregator func() agent.LLMProvider
	backend    agent.LLMProvider
}

func (c *fakeCreator) NewProvider(_ context.Context, provider string) (agent.LLMProvider, error) {
	if agent.NormalizeProvider(provider) == agent.ProviderAnthropic {
		return c.aggregator(), nil
	}
	return c.backend, nil
}

// scriptedAggregator answers every prompt with rounds of tool calls
// followed by the prompt echoed back.
func scriptedAggregator(rounds int) func() agent.LLMProvider {
	return func() agent.LLMProvider {
		return funcProvider(func(_ context.Context, req agent.LLMRequest) (*agent.LLMResponse, error) {
			var prompt string
			toolResults := 0
			for _, msg := range req.Messages {
				switch msg.Role {
				case agent.RoleHuman:
					prompt = msg.Content.Text
				case agent.RoleTool:
					toolResults++
				}
			}
			if prompt == "fail" {
				return nil, errors.New("aggregator unavailable")
			}
			if toolResults < rounds {
				return &agent.LLMResponse{ToolCalls: []agent.ToolCall{{
					ID:         "call",
					Name:       "ask_gpt",
					Parameters: map[string]interface{}{"prompt": prompt},
				}}}, nil
			}
			return &agent.LLMResponse{Content: "answer: " + prompt}, nil
		})
	}
}

func echoBackend() agent.LLMProvider {
	return funcProvider(func(_ context.Context, req agent.LLMRequest) (*agent.LLMResponse, error) {
		return &agent.LLMResponse{Content: "backend says yes"}, nil
	})
}

func newTestManager(t *testing.T, creator agent.ProviderCreator) *session.Manager {
	t.Helper()
	m, err := session.NewManager(session.Config{
		Aggregator: session.AggregatorConfig{Provider: "anthropic", Model: "claude-3-7-sonnet-latest"},
		Backends: []backend.Descriptor{
			{Name: "gpt", Provider: "openai", Model: "o4-mini", FailurePolicy: backend.PolicySubstitute},
		},
		Providers: creator,
	})
	require.NoError(t, err)
	return m
}

// gatedAggregator answers with the prompt echoed back once release is
// closed. started is closed when the first answer begins.
func gatedAggregator(started, release chan struct{}) func() agent.LLMProvider {
	var once sync.Once
	return func() agent.LLMProvider {
		return funcProvider(func(ctx context.Context, req agent.LLMRequest) (*agent.LLMResponse, error) {
			once.Do(func() { close(started) })
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			var prompt string
			for _, msg := range req.Messages {
				if msg.Role == agent.RoleHuman {
					prompt = msg.Content.Text
				}
			}
			return &agent.LLMResponse{Content: "answer: " + prompt}, nil
		})
	}
}

func waitStarted(t *testing.T, started <-chan struct{}) {
	t.Helper()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("answer never started")
	}
}

func readEvent(t *testing.T, ws *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var evt Event
	require.NoError(t, ws.ReadJSON(&evt))
	return evt
}

func startTestServer(t *testing.T, m *session.Manager) (*Server, *httptest.Server) {
	t.Helper()
	return startTestServerWith(t, Config{Sessions: m})
}

func startTestServerWith(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/chat"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readUntilTerminal(t *testing.T, ws *websocket.Conn) []Event {
	t.Helper()
	var events []Event
	for {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
		var evt Event
		require.NoError(t, ws.ReadJSON(&evt))
		events = append(events, evt)
		if evt.Type == EventDone || evt.Type == EventError {
			return events
		}
	}
}

func TestChatRelaysChunksInOrder(t *testing.T) {
	m := newTestManager(t, &fakeCreator{aggregator: scriptedAggregator(2), backend: echoBackend()})
	_, ts := startTestServer(t, m)
	ws := dial(t, ts)

	require.NoError(t, ws.WriteJSON(PromptMessage{Content: "is the sky blue?"}))
	events := readUntilTerminal(t, ws)

	assert.Equal(t, []Event{
		ChunkEvent(aggregator.ThinkingPlaceholder),
		ChunkEvent(aggregator.ThinkingPlaceholder),
		ChunkEvent("answer: is the sky blue?"),
		DoneEvent(),
	}, events)
}

func TestChatSessionSurvivesFailedAnswer(t *testing.T) {
	m := newTestManager(t, &fakeCreator{aggregator: scriptedAggregator(0), backend: echoBackend()})
	_, ts := startTestServer(t, m)
	ws := dial(t, ts)

	require.NoError(t, ws.WriteJSON(PromptMessage{Content: "fail"}))
	events := readUntilTerminal(t, ws)
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Contains(t, events[0].Data, "aggregator unavailable")

	require.NoError(t, ws.WriteJSON(PromptMessage{Content: "second"}))
	events = readUntilTerminal(t, ws)
	assert.Equal(t, []Event{ChunkEvent("answer: second"), DoneEvent()}, events)
}

func TestChatPromptsAreAnsweredSequentially(t *testing.T) {
	m := newTestManager(t, &fakeCreator{aggregator: scriptedAggregator(1), backend: echoBackend()})
	_, ts := startTestServer(t, m)
	ws := dial(t, ts)

	require.NoError(t, ws.WriteJSON(PromptMessage{Content: "one"}))
	require.NoError(t, ws.WriteJSON(PromptMessage{Content: "two"}))

	first := readUntilTerminal(t, ws)
	second := readUntilTerminal(t, ws)

	assert.Equal(t, ChunkEvent("answer: one"), first[len(first)-2])
	assert.Equal(t, ChunkEvent("answer: two"), second[len(second)-2])
}

func TestChatRejectsInvalidFrame(t *testing.T) {
	m := newTestManager(t, &fakeCreator{aggregator: scriptedAggregator(0), backend: echoBackend()})
	_, ts := startTestServer(t, m)
	ws := dial(t, ts)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"prompt":"hi"}`)))
	evt := readEvent(t, ws)
	assert.Equal(t, EventInvalid, evt.Type)
	assert.Contains(t, evt.Data, "content")

	require.NoError(t, ws.WriteJSON(PromptMessage{Content: "hi"}))
	events := readUntilTerminal(t, ws)
	assert.Equal(t, EventDone, events[len(events)-1].Type)
}

func TestInvalidFrameDoesNotEndStreamingAnswer(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	m := newTestManager(t, &fakeCreator{aggregator: gatedAggregator(started, release), backend: echoBackend()})
	_, ts := startTestServerWith(t, Config{Sessions: m})
	ws := dial(t, ts)

	require.NoError(t, ws.WriteJSON(PromptMessage{Content: "slow question"}))
	waitStarted(t, started)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"prompt":"typo"}`)))
	assert.Equal(t, EventInvalid, readEvent(t, ws).Type)

	close(release)
	events := readUntilTerminal(t, ws)
	assert.Equal(t, []Event{ChunkEvent("answer: slow question"), DoneEvent()}, events)
}

func TestPromptsBeyondPendingLimitAreRejected(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	m := newTestManager(t, &fakeCreator{aggregator: gatedAggregator(started, release), backend: echoBackend()})
	_, ts := startTestServerWith(t, Config{Sessions: m, MaxPendingPrompts: 2})
	ws := dial(t, ts)

	require.NoError(t, ws.WriteJSON(PromptMessage{Content: "one"}))
	waitStarted(t, started)
	require.NoError(t, ws.WriteJSON(PromptMessage{Content: "two"}))
	require.NoError(t, ws.WriteJSON(PromptMessage{Content: "three"}))

	assert.Equal(t, RejectedEvent("too many pending prompts"), readEvent(t, ws))

	close(release)
	assert.Equal(t, []Event{ChunkEvent("answer: one"), DoneEvent()}, readUntilTerminal(t, ws))
	assert.Equal(t, []Event{ChunkEvent("answer: two"), DoneEvent()}, readUntilTerminal(t, ws))

	require.NoError(t, ws.WriteJSON(PromptMessage{Content: "four"}))
	assert.Equal(t, []Event{ChunkEvent("answer: four"), DoneEvent()}, readUntilTerminal(t, ws))
}

func TestPromptsBeyondRateLimitAreRejected(t *testing.T) {
	m := newTestManager(t, &fakeCreator{aggregator: scriptedAggregator(0), backend: echoBackend()})
	_, ts := startTestServerWith(t, Config{Sessions: m, PromptsPerMinute: 1})
	ws := dial(t, ts)

	require.NoError(t, ws.WriteJSON(PromptMessage{Content: "one"}))
	assert.Equal(t, []Event{ChunkEvent("answer: one"), DoneEvent()}, readUntilTerminal(t, ws))

	require.NoError(t, ws.WriteJSON(PromptMessage{Content: "two"}))
	assert.Equal(t, RejectedEvent("rate limit exceeded"), readEvent(t, ws))
}

func TestRegisterConnAfterStop(t *testing.T) {
	m := newTestManager(t, &fakeCreator{aggregator: scriptedAggregator(0), backend: echoBackend()})
	srv, err := NewServer(Config{Sessions: m})
	require.NoError(t, err)

	assert.True(t, srv.registerConn(&Conn{ID: "early"}))
	srv.conns.Remove("early")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	assert.False(t, srv.registerConn(&Conn{ID: "late"}))
	assert.Equal(t, 0, srv.conns.Count())
}

func TestDisconnectEndsSession(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	blocking := func() agent.LLMProvider {
		return funcProvider(func(ctx context.Context, _ agent.LLMRequest) (*agent.LLMResponse, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return nil, ctx.Err()
		})
	}

	m := newTestManager(t, &fakeCreator{aggregator: blocking, backend: echoBackend()})
	_, ts := startTestServer(t, m)
	ws := dial(t, ts)

	require.NoError(t, ws.WriteJSON(PromptMessage{Content: "slow"}))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("answer never started")
	}
	assert.Equal(t, 1, m.Count())

	require.NoError(t, ws.Close())

	assert.Eventually(t, func() bool { return m.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHealthz(t *testing.T) {
	m := newTestManager(t, &fakeCreator{aggregator: scriptedAggregator(0), backend: echoBackend()})
	_, ts := startTestServer(t, m)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health["status"])
}

func TestStartAndStop(t *testing.T) {
	m := newTestManager(t, &fakeCreator{aggregator: scriptedAggregator(0), backend: echoBackend()})
	srv, err := NewServer(Config{Addr: "127.0.0.1:0", Sessions: m})
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/chat", nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(PromptMessage{Content: "ping"}))
	var evt Event
	require.NoError(t, ws.ReadJSON(&evt))
	assert.Equal(t, ChunkEvent("answer: ping"), evt)
	require.NoError(t, ws.ReadJSON(&evt))
	assert.Equal(t, DoneEvent(), evt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = ws.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, m.Count())

	_, _, err = websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/chat", nil)
	assert.Error(t, err)
}

func TestNewServerRequiresSessions(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}
