package session

import (
	"strings"

	"github.com/zhouzirui/aichat/internal/model/chat"
	"github.com/zhouzirui/aichat/internal/model/persona"
)

// Active is the conversation currently being edited. Callers own
// synchronisation; the chat controller is the only writer.
type Active struct {
	record chat.Record
}

// NewActive starts an empty conversation for p under id.
func NewActive(p persona.Persona, id string) *Active {
	a := &Active{}
	a.Reset(p, id)
	return a
}

// ID returns the storage key of the conversation.
func (a *Active) ID() string {
	return a.record.Identifier
}

// Persona returns the current persona name and prompt.
func (a *Active) Persona() (name, prompt string) {
	return a.record.PersonaName, a.record.PersonaPrompt
}

// Len returns the number of stored messages.
func (a *Active) Len() int {
	return len(a.record.Messages)
}

// Messages returns a copy of the history in conversation order.
func (a *Active) Messages() []chat.Message {
	out := make([]chat.Message, len(a.record.Messages))
	copy(out, a.record.Messages)
	return out
}

// AppendMessage adds a turn to the end of the history.
func (a *Active) AppendMessage(role chat.Role, content string) error {
	if !role.Stored() {
		return ErrInvalidRole
	}
	if content == "" {
		return ErrEmptyContent
	}
	a.record.Messages = append(a.record.Messages, chat.Message{Role: role, Content: content})
	return nil
}

// SetPersona updates the persona fields; blank values leave a field unchanged.
func (a *Active) SetPersona(name, prompt string) {
	if strings.TrimSpace(name) != "" {
		a.record.PersonaName = name
	}
	if strings.TrimSpace(prompt) != "" {
		a.record.PersonaPrompt = prompt
	}
}

// ToRecord snapshots the conversation for persistence.
func (a *Active) ToRecord() chat.Record {
	return a.record.Clone()
}

// Replace swaps in a loaded conversation.
func (a *Active) Replace(r chat.Record) {
	a.record = r.Clone()
}

// Reset discards the history and returns to p under a new id.
func (a *Active) Reset(p persona.Persona, id string) {
	a.record = chat.Record{
		PersonaName:   p.Name,
		PersonaPrompt: p.Prompt,
		Identifier:    id,
		Messages:      []chat.Message{},
	}
}
