package session

import (
	"context"
	"time"

	"github.com/harun/oracle/pkg/aggregator"
	"github.com/harun/oracle/pkg/backend"
)

// Session is the state bound to one connection.
type Session struct {
	ID       string
	Context  backend.SessionContext
	OpenedAt time.Time

	tools        []*backend.Tool
	orchestrator *aggregator.Orchestrator
}

// Answer starts answering prompt. The orchestrator allows one answer in
// flight; a second concurrent stream fails with aggregator.ErrAnswerInFlight.
func (s *Session) Answer(ctx context.Context, prompt string) *aggregator.Stream {
	return s.orchestrator.Answer(ctx, prompt)
}

// Tools returns the session's backend tools in configuration order.
func (s *Session) Tools() []*backend.Tool {
	out := make([]*backend.Tool, len(s.tools))
	copy(out, s.tools)
	return out
}
