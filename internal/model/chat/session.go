package chat

import (
	"errors"
	"fmt"
)

// Record is the durable form of one conversation.
type Record struct {
	PersonaName   string    `json:"personaName"`
	PersonaPrompt string    `json:"personaPrompt"`
	Identifier    string    `json:"identifier"`
	Messages      []Message `json:"messages"`
}

// Clone returns a copy that shares no message storage with r.
func (r Record) Clone() Record {
	out := r
	out.Messages = make([]Message, len(r.Messages))
	copy(out.Messages, r.Messages)
	return out
}

// Validate checks the fields a persisted record must carry.
func (r Record) Validate() error {
	if r.Identifier == "" {
		return errors.New("identifier is required")
	}
	if r.PersonaPrompt == "" {
		return errors.New("personaPrompt is required")
	}
	for i, msg := range r.Messages {
		if !msg.Role.Stored() {
			return fmt.Errorf("message %d has unsupported role %q", i, msg.Role)
		}
		if msg.Content == "" {
			return fmt.Errorf("message %d has empty content", i)
		}
	}
	return nil
}
