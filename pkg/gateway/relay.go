package gateway

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/harun/oracle/pkg/aggregator"
)

// Sender writes events to one client
type Sender interface {
	Send(evt Event) error
}

// Relay forwards an answer stream to a client, one frame per chunk.
type Relay struct {
	Logger zerolog.Logger
}

// Stream relays every chunk in production order and finishes with a done
// event, or with an error event when the answer fails. A failed answer is
// not an error here: Stream only returns an error when the client can no
// longer be written to or ctx ended, and the session should stop.
func (r *Relay) Stream(ctx context.Context, stream *aggregator.Stream, sender Sender) error {
	for chunk, err := range stream.Chunks() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			r.Logger.Warn().Err(err).Msg("Answer failed")
			if sendErr := sender.Send(ErrorEvent(err.Error())); sendErr != nil {
				return fmt.Errorf("send error event: %w", sendErr)
			}
			return nil
		}
		if err := sender.Send(ChunkEvent(chunk)); err != nil {
			return fmt.Errorf("send chunk: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sender.Send(DoneEvent()); err != nil {
		return fmt.Errorf("send done: %w", err)
	}
	return nil
}
