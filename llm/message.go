// Package llm defines the language-model contract consumed by the decision
// policy and the argument resolver. Concrete backends live outside the core;
// they implement Client and surface failures as ErrUnavailable or
// ErrMalformedOutput.
package llm

// Role represents the role of a message sender in a conversation.
type Role string

const (
	// RoleSystem represents system-level instructions or context.
	RoleSystem Role = "system"

	// RoleUser represents messages from the user.
	RoleUser Role = "user"

	// RoleAssistant represents messages from the AI assistant.
	RoleAssistant Role = "assistant"

	// RoleTool represents tool execution results.
	RoleTool Role = "tool"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is one of the defined constants.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// Message represents a single message in a conversation.
type Message struct {
	// Role indicates who sent the message.
	Role Role `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`

	// Name identifies the tool that produced this message.
	// Only set when Role is RoleTool.
	Name string `json:"name,omitempty"`
}

// IsValid validates that the message has appropriate fields for its role.
func (m Message) IsValid() bool {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant:
		return m.Content != ""
	case RoleTool:
		return m.Name != "" && m.Content != ""
	default:
		return false
	}
}

// System creates a system message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User creates a user message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant creates an assistant message.
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolNote creates a tool-result message attributed to a tool name.
func ToolNote(name, content string) Message {
	return Message{Role: RoleTool, Name: name, Content: content}
}

// Window returns the last n messages. A leading system message rides along
// on top of the n and does not count against it. n <= 0 returns the input
// unchanged.
func Window(messages []Message, n int) []Message {
	if n <= 0 {
		return messages
	}
	var system []Message
	rest := messages
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		system = messages[:1]
		rest = messages[1:]
	}
	if len(rest) <= n {
		return messages
	}
	out := make([]Message, 0, n+len(system))
	out = append(out, system...)
	out = append(out, rest[len(rest)-n:]...)
	return out
}
