package aggregator

import (
	"context"
	"fmt"
	"iter"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/harun/oracle/internal/tracing"
	"github.com/harun/oracle/pkg/agent"
)

// DefaultMaxSteps bounds the model calls of one run.
const DefaultMaxSteps = 10

// Reasoner is a multi-step reasoning process. Run yields one snapshot per
// step, starting with the initial transcript. A non-nil error ends the
// sequence.
type Reasoner interface {
	Run(ctx context.Context, initial agent.Transcript, tools []Tool) iter.Seq2[agent.Snapshot, error]
}

// ToolLoopReasoner drives a tool-calling model until it answers without
// requesting tools.
type ToolLoopReasoner struct {
	Provider    agent.LLMProvider
	Model       string
	MaxSteps    int
	MaxTokens   int
	Temperature float64
	Logger      zerolog.Logger
}

func (r *ToolLoopReasoner) maxSteps() int {
	if r.MaxSteps <= 0 {
		return DefaultMaxSteps
	}
	return r.MaxSteps
}

// Run implements Reasoner.
func (r *ToolLoopReasoner) Run(ctx context.Context, initial agent.Transcript, tools []Tool) iter.Seq2[agent.Snapshot, error] {
	return func(yield func(agent.Snapshot, error) bool) {
		transcript := initial
		if !yield(transcript.Snapshot(), nil) {
			return
		}

		defs := toolDefinitions(tools)
		byName := make(map[string]Tool, len(tools))
		for _, t := range tools {
			byName[t.Name()] = t
		}

		logger := tracing.LoggerFromContext(ctx, r.Logger)
		maxSteps := r.maxSteps()

		for step := 1; step <= maxSteps; step++ {
			if err := ctx.Err(); err != nil {
				yield(agent.Snapshot{}, err)
				return
			}

			messages := transcript.Messages()
			resp, err := r.Provider.Call(ctx, agent.LLMRequest{
				Model:       r.Model,
				Messages:    messages,
				Tools:       defs,
				Temperature: r.Temperature,
				MaxTokens:   r.MaxTokens,
			})
			if err == nil && resp == nil {
				err = agent.ErrEmptyResponse
			}
			if err != nil {
				yield(agent.Snapshot{}, fmt.Errorf("aggregator step %d: %w", step, err))
				return
			}

			logger.Debug().
				Int("step", step).
				Int("estimated_tokens", agent.EstimateTokens(messages)).
				Int("tool_calls", len(resp.ToolCalls)).
				Int("content_len", len(resp.Content)).
				Msg("Aggregator step")

			if len(resp.ToolCalls) == 0 {
				if resp.Content != "" {
					transcript = transcript.Append(agent.AssistantText(resp.Content))
					yield(transcript.Snapshot(), nil)
				}
				return
			}

			transcript = transcript.Append(assistantStep(resp))
			if !yield(transcript.Snapshot(), nil) {
				return
			}

			results, err := dispatch(ctx, resp.ToolCalls, byName, logger)
			if err != nil {
				yield(agent.Snapshot{}, err)
				return
			}

			transcript = transcript.Append(results...)
			if !yield(transcript.Snapshot(), nil) {
				return
			}
		}

		yield(agent.Snapshot{}, fmt.Errorf("%w (%d)", ErrMaxStepsExceeded, maxSteps))
	}
}

// assistantStep records a tool-requesting response as a structured message.
func assistantStep(resp *agent.LLMResponse) agent.Message {
	parts := make([]agent.Part, 0, len(resp.ToolCalls)+2)
	if resp.Reasoning != "" {
		parts = append(parts, agent.Part{Type: agent.PartReasoning, Text: resp.Reasoning})
	}
	if resp.Content != "" {
		parts = append(parts, agent.Part{Type: agent.PartText, Text: resp.Content})
	}
	for i := range resp.ToolCalls {
		call := resp.ToolCalls[i]
		parts = append(parts, agent.Part{Type: agent.PartToolUse, ToolCall: &call})
	}
	return agent.AssistantParts(parts...)
}

// dispatch runs all calls of one step concurrently and returns their
// results in request order. A propagated tool error fails the step without
// cancelling its siblings. If ctx ends first, dispatch returns at once and
// the calls finish in the background.
func dispatch(ctx context.Context, calls []agent.ToolCall, byName map[string]Tool, logger zerolog.Logger) ([]agent.Message, error) {
	results := make([]agent.Message, len(calls))

	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			out, err := invoke(ctx, byName, call)
			if err != nil {
				logger.Warn().Err(err).Str("tool", call.Name).Msg("Tool call failed")
				return fmt.Errorf("tool %s: %w", call.Name, err)
			}
			results[i] = agent.ToolResultMessage(call.ID, call.Name, out)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// invoke resolves and calls one tool. Calls the model got wrong come back as
// error text so the model can correct itself.
func invoke(ctx context.Context, byName map[string]Tool, call agent.ToolCall) (string, error) {
	tool, ok := byName[call.Name]
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q", call.Name), nil
	}
	prompt, err := validateArguments(call.Parameters)
	if err != nil {
		return fmt.Sprintf("Error: invalid arguments for %s: %v", call.Name, err), nil
	}
	return tool.Invoke(ctx, prompt)
}
