package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harun/oracle/internal/observability"
	"github.com/harun/oracle/pkg/agent"
	"github.com/harun/oracle/pkg/aggregator"
	"github.com/harun/oracle/pkg/backend"
	"github.com/harun/oracle/pkg/limiter"
)

// ErrNoProviders is returned by NewManager without a provider creator
var ErrNoProviders = errors.New("session manager requires a provider creator")

// AggregatorConfig selects and tunes the aggregating model
type AggregatorConfig struct {
	Provider     string
	Model        string
	SystemPrompt string
	MaxSteps     int
	MaxTokens    int
	Temperature  float64
}

// Config holds the static settings every session is built from
type Config struct {
	Aggregator       AggregatorConfig
	Backends         []backend.Descriptor
	LimiterCapacity  int
	ToolContext      string
	BackendTimeout   time.Duration
	BackendMaxTokens int
	AnswerTimeout    time.Duration
	Providers        agent.ProviderCreator
	Logger           zerolog.Logger
}

// Manager creates sessions and tracks the live ones.
type Manager struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Providers == nil {
		return nil, ErrNoProviders
	}
	if cfg.LimiterCapacity == 0 {
		cfg.LimiterCapacity = limiter.DefaultCapacity
	}
	if cfg.LimiterCapacity < 0 {
		return nil, limiter.ErrInvalidCapacity
	}
	for _, d := range cfg.Backends {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}

	// descriptors are copied so later edits by the caller never reach a session
	backends := make([]backend.Descriptor, len(cfg.Backends))
	copy(backends, cfg.Backends)
	cfg.Backends = backends

	observability.EnsureRegistered()

	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}, nil
}

// Open builds a fresh session and registers it.
func (m *Manager) Open(ctx context.Context) (*Session, error) {
	id := m.reserveID()

	sess, err := m.build(ctx, id)
	if err != nil {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = sess
	count := m.countLocked()
	m.mu.Unlock()

	observability.RecordSessionOpened()
	observability.SetActiveSessions(count)

	m.cfg.Logger.Info().
		Str("session_id", id).
		Int("backends", len(sess.tools)).
		Int("capacity", sess.Context.Limiter.Capacity()).
		Msg("Session opened")

	return sess, nil
}

// reserveID claims an ID no live session holds.
func (m *Manager) reserveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		id := newSessionID()
		if _, taken := m.sessions[id]; !taken {
			m.sessions[id] = nil
			return id
		}
	}
}

func newSessionID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

func (m *Manager) build(ctx context.Context, id string) (*Session, error) {
	lim, err := limiter.New(m.cfg.LimiterCapacity)
	if err != nil {
		return nil, err
	}

	backends := make([]backend.Descriptor, len(m.cfg.Backends))
	copy(backends, m.cfg.Backends)

	sc := backend.SessionContext{ID: id, Limiter: lim, Backends: backends}
	tools, err := backend.NewTools(ctx, sc, m.cfg.Providers, backend.Options{
		ToolContext: m.cfg.ToolContext,
		Timeout:     m.cfg.BackendTimeout,
		MaxTokens:   m.cfg.BackendMaxTokens,
		Logger:      m.cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build backend tools: %w", err)
	}

	aggProvider, err := m.cfg.Providers.NewProvider(ctx, m.cfg.Aggregator.Provider)
	if err != nil {
		return nil, fmt.Errorf("build aggregator: %w", err)
	}

	exposed := make([]aggregator.Tool, len(tools))
	for i, t := range tools {
		exposed[i] = t
	}

	orch, err := aggregator.New(aggregator.Config{
		SessionID:    id,
		SystemPrompt: m.cfg.Aggregator.SystemPrompt,
		Reasoner: &aggregator.ToolLoopReasoner{
			Provider:    aggProvider,
			Model:       m.cfg.Aggregator.Model,
			MaxSteps:    m.cfg.Aggregator.MaxSteps,
			MaxTokens:   m.cfg.Aggregator.MaxTokens,
			Temperature: m.cfg.Aggregator.Temperature,
			Logger:      m.cfg.Logger,
		},
		Tools:         exposed,
		AnswerTimeout: m.cfg.AnswerTimeout,
		Logger:        m.cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:           id,
		Context:      sc,
		OpenedAt:     time.Now(),
		tools:        tools,
		orchestrator: orch,
	}, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok || sess == nil {
		return nil, false
	}
	return sess, true
}

// Close discards a session. It reports whether the session was live.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok && sess != nil {
		delete(m.sessions, id)
	}
	count := m.countLocked()
	m.mu.Unlock()

	if !ok || sess == nil {
		return false
	}

	observability.SetActiveSessions(count)
	m.cfg.Logger.Info().
		Str("session_id", id).
		Dur("lifetime", time.Since(sess.OpenedAt)).
		Msg("Session closed")
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countLocked()
}

func (m *Manager) countLocked() int {
	n := 0
	for _, s := range m.sessions {
		if s != nil {
			n++
		}
	}
	return n
}
