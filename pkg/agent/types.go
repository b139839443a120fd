package agent

import "strings"

// Role identifies the author category of a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the four known categories.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleHuman, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// ContentKind discriminates the shape of message content.
// The zero value is not a valid kind.
type ContentKind int

const (
	ContentText ContentKind = iota + 1
	ContentParts
)

func (k ContentKind) String() string {
	switch k {
	case ContentText:
		return "text"
	case ContentParts:
		return "parts"
	default:
		return "unknown"
	}
}

// PartType identifies a fragment inside a multi-part payload.
type PartType string

const (
	PartText      PartType = "text"
	PartReasoning PartType = "reasoning"
	PartToolUse   PartType = "tool_use"
)

// Part is one fragment of a structured assistant payload
type Part struct {
	Type     PartType  `json:"type"`
	Text     string    `json:"text,omitempty"`
	ToolCall *ToolCall `json:"tool_call,omitempty"`
}

// Content is either plain text or a structured multi-part payload.
type Content struct {
	Kind  ContentKind `json:"kind"`
	Text  string      `json:"text,omitempty"`
	Parts []Part      `json:"parts,omitempty"`
}

// TextContent wraps plain text.
func TextContent(text string) Content {
	return Content{Kind: ContentText, Text: text}
}

// PartsContent wraps a structured payload.
func PartsContent(parts ...Part) Content {
	return Content{Kind: ContentParts, Parts: parts}
}

// PlainText flattens content into the text a provider should see.
// Reasoning and tool_use fragments are dropped.
func (c Content) PlainText() string {
	switch c.Kind {
	case ContentText:
		return c.Text
	case ContentParts:
		var b strings.Builder
		for _, p := range c.Parts {
			if p.Type == PartText {
				b.WriteString(p.Text)
			}
		}
		return b.String()
	default:
		return ""
	}
}

// ToolCall represents a tool invocation requested by the model
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// Message is one entry of a transcript.
type Message struct {
	Role       Role       `json:"role"`
	Content    Content    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// SystemMessage builds a system instruction message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: TextContent(text)}
}

// HumanMessage builds a user prompt message.
func HumanMessage(text string) Message {
	return Message{Role: RoleHuman, Content: TextContent(text)}
}

// AssistantText builds a plain-text assistant message.
func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Content: TextContent(text)}
}

// AssistantParts builds a structured assistant message. Tool-use parts are
// mirrored into ToolCalls so providers can replay them.
func AssistantParts(parts ...Part) Message {
	msg := Message{Role: RoleAssistant, Content: PartsContent(parts...)}
	for _, p := range parts {
		if p.Type == PartToolUse && p.ToolCall != nil {
			msg.ToolCalls = append(msg.ToolCalls, *p.ToolCall)
		}
	}
	return msg
}

// ToolResultMessage builds the result of one tool call.
func ToolResultMessage(callID, toolName, output string) Message {
	return Message{
		Role:       RoleTool,
		Content:    TextContent(output),
		ToolCallID: callID,
		Name:       toolName,
	}
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ToolDefinition describes a callable tool for the model.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// EstimateTokens provides a rough token count estimation
func EstimateTokens(messages []Message) int {
	totalChars := 0
	for _, msg := range messages {
		totalChars += len(msg.Content.PlainText())
	}
	// Rough estimation: 1 token ≈ 4 characters
	return (totalChars + 3) / 4
}
