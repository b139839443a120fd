package agent

// Classification partitions a transcript by role, keeping original order
// within each category.
type Classification struct {
	System     []Message
	Human      []Message
	Assistant  []Message
	ToolResult []Message
}

// Classify partitions the snapshot. A single message with an unknown role
// fails the whole call.
func Classify(s Snapshot) (Classification, error) {
	return ClassifyMessages(s.messages)
}

// ClassifyMessages is Classify over a plain slice.
func ClassifyMessages(messages []Message) (Classification, error) {
	var c Classification
	for i, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			c.System = append(c.System, msg)
		case RoleHuman:
			c.Human = append(c.Human, msg)
		case RoleAssistant:
			c.Assistant = append(c.Assistant, msg)
		case RoleTool:
			c.ToolResult = append(c.ToolResult, msg)
		default:
			return Classification{}, &UnsupportedRoleError{Index: i, Role: msg.Role}
		}
	}
	return c, nil
}
