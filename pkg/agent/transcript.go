package agent

// Transcript is an append-only ordered sequence of messages.
// Append never touches the receiver, so values handed out earlier stay valid.
type Transcript struct {
	messages []Message
}

// NewTranscript creates a transcript holding msgs in order.
func NewTranscript(msgs ...Message) Transcript {
	return Transcript{}.Append(msgs...)
}

// Append returns a new transcript with msgs added at the end.
func (t Transcript) Append(msgs ...Message) Transcript {
	out := make([]Message, len(t.messages), len(t.messages)+len(msgs))
	copy(out, t.messages)
	out = append(out, msgs...)
	return Transcript{messages: out}
}

// Len returns the number of messages.
func (t Transcript) Len() int {
	return len(t.messages)
}

// Messages returns a copy of the messages.
func (t Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Snapshot freezes the transcript at its current length.
func (t Transcript) Snapshot() Snapshot {
	return Snapshot{messages: t.messages[:len(t.messages):len(t.messages)]}
}

// Snapshot is an immutable view of a transcript at one reasoning step.
type Snapshot struct {
	messages []Message
}

// NewSnapshot builds a snapshot directly from messages.
func NewSnapshot(msgs ...Message) Snapshot {
	return NewTranscript(msgs...).Snapshot()
}

// Len returns the number of messages in the snapshot.
func (s Snapshot) Len() int {
	return len(s.messages)
}

// At returns the i-th message.
func (s Snapshot) At(i int) Message {
	return s.messages[i]
}

// Messages returns a copy of the messages.
func (s Snapshot) Messages() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}
