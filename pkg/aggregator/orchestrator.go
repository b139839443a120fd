package aggregator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/oracle/internal/observability"
	"github.com/harun/oracle/internal/tracing"
	"github.com/harun/oracle/pkg/agent"
)

const tracerName = "oracle/aggregator"

// ThinkingPlaceholder stands in for structured assistant content.
const ThinkingPlaceholder = "Thinking..."

// Config configures an Orchestrator
type Config struct {
	SessionID    string
	SystemPrompt string
	Reasoner     Reasoner
	Tools        []Tool
	// AnswerTimeout bounds one answer. Zero means none.
	AnswerTimeout time.Duration
	Logger        zerolog.Logger
}

// Orchestrator turns prompts into chunk streams for one session.
type Orchestrator struct {
	cfg      Config
	inFlight atomic.Bool
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Reasoner == nil {
		return nil, ErrNoReasoner
	}
	return &Orchestrator{cfg: cfg}, nil
}

// Answer prepares the stream for prompt. Nothing runs until the stream is
// iterated.
func (o *Orchestrator) Answer(ctx context.Context, prompt string) *Stream {
	return &Stream{orch: o, ctx: ctx, prompt: prompt}
}

// State is a stream's position in its lifecycle.
type State int

const (
	StateInit State = iota
	StateStep
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateStep:
		return "step"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stream is the lazy chunk sequence of one answer. It can be iterated once.
type Stream struct {
	orch   *Orchestrator
	ctx    context.Context
	prompt string

	consumed atomic.Bool

	mu    sync.Mutex
	state State
	err   error
	steps int
}

// State returns the current state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that ended the stream, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Steps returns how many snapshots were processed.
func (s *Stream) Steps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

func (s *Stream) step() {
	s.mu.Lock()
	s.state = StateStep
	s.steps++
	s.mu.Unlock()
}

func (s *Stream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDone || s.state == StateError {
		return
	}
	s.err = err
	if err != nil {
		s.state = StateError
	} else {
		s.state = StateDone
	}
}

// Chunks yields each new assistant message once, in order: plain text as
// is, structured content as ThinkingPlaceholder. An error is yielded at
// most once and always last.
func (s *Stream) Chunks() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			yield("", ErrStreamConsumed)
			return
		}
		if !s.orch.inFlight.CompareAndSwap(false, true) {
			s.finish(ErrAnswerInFlight)
			yield("", ErrAnswerInFlight)
			return
		}
		defer s.orch.inFlight.Store(false)

		cfg := s.orch.cfg
		ctx := tracing.NewRunContext(s.ctx, cfg.SessionID)
		if cfg.AnswerTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.AnswerTimeout)
			defer cancel()
		}
		ctx, span := tracing.StartSpan(ctx, tracerName, "aggregator.answer",
			attribute.Int("oracle.prompt_len", len(s.prompt)),
		)
		defer span.End()

		logger := tracing.LoggerFromContext(ctx, cfg.Logger)
		start := time.Now()

		end := func(err error) {
			s.finish(err)
			status := "done"
			switch {
			case errors.Is(err, ErrStopped):
				status = "stopped"
			case err != nil:
				status = "error"
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			observability.RecordAnswer(status, s.Steps(), time.Since(start))

			var event *zerolog.Event
			if status == "error" {
				event = logger.Warn().Err(err)
			} else {
				event = logger.Info()
			}
			event.Str("status", status).
				Int("steps", s.Steps()).
				Dur("duration", time.Since(start)).
				Msg("Answer finished")
		}

		initial := agent.NewTranscript(
			agent.SystemMessage(cfg.SystemPrompt),
			agent.HumanMessage(s.prompt),
		)

		emitted := 0
		for snap, err := range cfg.Reasoner.Run(ctx, initial, cfg.Tools) {
			if err != nil {
				end(err)
				yield("", err)
				return
			}
			s.step()

			c, err := agent.Classify(snap)
			if err != nil {
				end(err)
				yield("", err)
				return
			}

			for i := emitted; i < len(c.Assistant); i++ {
				chunk, err := renderAssistant(c.Assistant[i], i)
				if err != nil {
					end(err)
					yield("", err)
					return
				}
				emitted = i + 1
				if !yield(chunk, nil) {
					end(ErrStopped)
					return
				}
			}
		}
		end(nil)
	}
}

func renderAssistant(msg agent.Message, index int) (string, error) {
	switch msg.Content.Kind {
	case agent.ContentText:
		return msg.Content.Text, nil
	case agent.ContentParts:
		return ThinkingPlaceholder, nil
	default:
		return "", &agent.ContentShapeError{Index: index, Kind: msg.Content.Kind}
	}
}
