package chat

import "strings"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Stored reports whether the role may appear in a persisted history.
// The system role is only ever sent with a request.
func (r Role) Stored() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one turn of the conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage builds the persona instruction sent ahead of the history.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// Blank reports whether s carries no visible text.
func Blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
