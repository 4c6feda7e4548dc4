package chat

import (
	"errors"

	"github.com/zhouzirui/aichat/internal/model/chat"
	"github.com/zhouzirui/aichat/internal/service/ai"
	"github.com/zhouzirui/aichat/internal/service/session"
)

// EventType names a step of a user turn reported to the presentation layer.
type EventType string

const (
	EventUserMessageAppended       EventType = "user_message_appended"
	EventPartialTextUpdated        EventType = "partial_text_updated"
	EventAssistantMessageFinalized EventType = "assistant_message_finalized"
	EventErrorOccurred             EventType = "error_occurred"
)

// Event is emitted synchronously while a turn runs. Text holds the message
// content, or the whole reply so far for partial updates.
type Event struct {
	Type      EventType `json:"event"`
	TurnID    string    `json:"turnId"`
	SessionID string    `json:"sessionId"`
	Role      chat.Role `json:"role,omitempty"`
	Text      string    `json:"text,omitempty"`
	Kind      ErrorKind `json:"kind,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Listener receives turn events. It runs on the submitting goroutine, before
// the next fragment is read.
type Listener func(Event)

// ErrorKind groups failures for display.
type ErrorKind string

const (
	KindNotFound       ErrorKind = "not_found"
	KindCorruptRecord  ErrorKind = "corrupt_record"
	KindInvalidRole    ErrorKind = "invalid_role"
	KindInvalidMessage ErrorKind = "invalid_message"
	KindTransport      ErrorKind = "transport"
	KindRemoteAPI      ErrorKind = "remote_api"
	KindStorageWrite   ErrorKind = "storage_write"
	KindBusy           ErrorKind = "busy"
	KindEmptyInput     ErrorKind = "empty_input"
	KindInternal       ErrorKind = "internal"
)

// ClassifyError maps err onto an ErrorKind.
func ClassifyError(err error) ErrorKind {
	var writeErr *session.StorageWriteError
	var apiErr *ai.APIError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrEmptyInput):
		return KindEmptyInput
	case errors.Is(err, session.ErrNotFound):
		return KindNotFound
	case errors.Is(err, session.ErrCorruptRecord):
		return KindCorruptRecord
	case errors.Is(err, session.ErrInvalidRole):
		return KindInvalidRole
	case errors.Is(err, session.ErrEmptyContent):
		return KindInvalidMessage
	case errors.As(err, &apiErr), errors.Is(err, ai.ErrMissingAPIKey):
		return KindRemoteAPI
	case errors.Is(err, ai.ErrTransport):
		return KindTransport
	case errors.As(err, &writeErr):
		return KindStorageWrite
	default:
		return KindInternal
	}
}
