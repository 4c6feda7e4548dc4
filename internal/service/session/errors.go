package session

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrCorruptRecord = errors.New("session record is corrupt")
	ErrInvalidRole   = errors.New("invalid message role")
	ErrEmptyContent  = errors.New("message content is empty")
)

// StorageWriteError reports a failed save. The in-memory session is unaffected.
type StorageWriteError struct {
	Identifier string
	Err        error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("save session %s: %v", e.Identifier, e.Err)
}

func (e *StorageWriteError) Unwrap() error {
	return e.Err
}
