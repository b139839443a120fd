package aggregator

import "errors"

var (
	// ErrMaxStepsExceeded is returned when the reasoning loop never settles on an answer
	ErrMaxStepsExceeded = errors.New("maximum reasoning steps exceeded")

	// ErrStreamConsumed is returned when a Stream is iterated a second time
	ErrStreamConsumed = errors.New("answer stream already consumed")

	// ErrAnswerInFlight is returned when a second answer starts before the first ends
	ErrAnswerInFlight = errors.New("another answer is in flight")

	// ErrStopped marks a stream whose consumer stopped pulling chunks
	ErrStopped = errors.New("answer stream stopped by consumer")

	// ErrNoReasoner is returned by New without a Reasoner
	ErrNoReasoner = errors.New("orchestrator requires a reasoner")
)
