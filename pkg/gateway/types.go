package gateway

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Event types sent to clients. Chunk, done and error belong to an answer.
// Invalid and rejected answer a single inbound frame and may arrive while
// another answer is streaming.
const (
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
	// EventInvalid means the frame could not be decoded. Nothing was queued.
	EventInvalid = "invalid"
	// EventRejected means a prompt was received but will not be answered.
	EventRejected = "rejected"
)

// PromptMessage is the only frame a client sends
type PromptMessage struct {
	Content string `json:"content"`
}

// Event is a server to client frame. Data holds chunk text or an error
// message and is empty for done.
type Event struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func ChunkEvent(text string) Event { return Event{Type: EventChunk, Data: text} }
func DoneEvent() Event             { return Event{Type: EventDone} }
func ErrorEvent(msg string) Event  { return Event{Type: EventError, Data: msg} }

func InvalidEvent(msg string) Event     { return Event{Type: EventInvalid, Data: msg} }
func RejectedEvent(reason string) Event { return Event{Type: EventRejected, Data: reason} }

const promptSchemaJSON = `{
	"type": "object",
	"properties": {
		"content": {"type": "string"}
	},
	"required": ["content"]
}`

var (
	promptSchemaOnce sync.Once
	promptSchema     *gojsonschema.Schema
	promptSchemaErr  error
)

// DecodePrompt validates an inbound frame and returns its prompt. Fields
// other than content are ignored.
func DecodePrompt(data []byte) (PromptMessage, error) {
	promptSchemaOnce.Do(func() {
		promptSchema, promptSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(promptSchemaJSON))
	})
	if promptSchemaErr != nil {
		return PromptMessage{}, promptSchemaErr
	}

	result, err := promptSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return PromptMessage{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if !result.Valid() {
		return PromptMessage{}, fmt.Errorf("%w: %s", ErrInvalidFrame, result.Errors()[0].String())
	}

	var msg PromptMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return PromptMessage{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return msg, nil
}
