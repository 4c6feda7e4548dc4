package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/aichat/internal/model/chat"
)

const recordExt = ".json"

// Store persists conversation records keyed by identifier.
type Store interface {
	List() ([]string, error)
	Save(record chat.Record) error
	Load(id string) (chat.Record, error)
	Delete(id string) error
	Exists(id string) bool
}

// FileStore keeps one JSON file per conversation in a directory.
type FileStore struct {
	dir    string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewFileStore returns a store rooted at dir. The directory is created on first save.
func NewFileStore(dir string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{dir: dir, logger: logger.Named("session.store")}
}

// Dir returns the storage directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// List returns stored identifiers, most recent first.
func (s *FileStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read session directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != recordExt {
			continue
		}
		id := strings.TrimSuffix(name, recordExt)
		if !ValidIdentifier(id) {
			s.logger.Debug("skipping unaddressable session file", zap.String("file", name))
			continue
		}
		ids = append(ids, id)
	}
	// Identifiers sort chronologically; a base id sorts before its suffixed twins.
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// Save writes record atomically, replacing any previous version.
func (s *FileStore) Save(record chat.Record) error {
	id := record.Identifier
	if !ValidIdentifier(id) {
		return &StorageWriteError{Identifier: id, Err: fmt.Errorf("invalid identifier %q", id)}
	}
	if err := record.Validate(); err != nil {
		return &StorageWriteError{Identifier: id, Err: err}
	}
	if record.Messages == nil {
		record.Messages = []chat.Message{}
	}

	data, err := encodeRecord(record)
	if err != nil {
		return &StorageWriteError{Identifier: id, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &StorageWriteError{Identifier: id, Err: fmt.Errorf("create session directory: %w", err)}
	}
	if err := writeFileAtomic(s.dir, s.path(id), data); err != nil {
		return &StorageWriteError{Identifier: id, Err: err}
	}

	s.logger.Debug("session saved", zap.String("id", id), zap.Int("messages", len(record.Messages)))
	return nil
}

// Load reads the record stored under id.
func (s *FileStore) Load(id string) (chat.Record, error) {
	if !ValidIdentifier(id) {
		return chat.Record{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	s.mu.Lock()
	data, err := os.ReadFile(s.path(id))
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return chat.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return chat.Record{}, fmt.Errorf("read session %s: %w", id, err)
	}

	record, err := decodeRecord(data, id)
	if err != nil {
		s.logger.Warn("refusing corrupt session", zap.String("id", id), zap.Error(err))
		return chat.Record{}, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, id, err)
	}
	if record.Identifier != id {
		return chat.Record{}, fmt.Errorf("%w: %s: stored identifier %q does not match", ErrCorruptRecord, id, record.Identifier)
	}
	return record, nil
}

// Delete removes the record for id. Missing records are not an error;
// identifiers the store cannot address are reported as ErrNotFound.
func (s *FileStore) Delete(id string) error {
	if !ValidIdentifier(id) {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	s.logger.Debug("session deleted", zap.String("id", id))
	return nil
}

// Exists reports whether a record is stored under id.
func (s *FileStore) Exists(id string) bool {
	if !ValidIdentifier(id) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := os.Stat(s.path(id))
	return err == nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+recordExt)
}

func encodeRecord(record chat.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(record); err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return buf.Bytes(), nil
}

// storedRecord accepts the current keys and the niki_* keys of older files.
type storedRecord struct {
	PersonaName   *string         `json:"personaName"`
	PersonaPrompt *string         `json:"personaPrompt"`
	Identifier    *string         `json:"identifier"`
	Messages      *[]chat.Message `json:"messages"`

	LegacyName       *string `json:"niki_name"`
	LegacyPrompt     *string `json:"niki_nature"`
	LegacyIdentifier *string `json:"current_session"`
}

// decodeRecord parses a stored file. Older files were named after their
// persona and kept a timestamp under current_session, so for them the file
// name fileID is the identifier.
func decodeRecord(data []byte, fileID string) (chat.Record, error) {
	var raw storedRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return chat.Record{}, err
	}

	name := firstPresent(raw.PersonaName, raw.LegacyName)
	prompt := firstPresent(raw.PersonaPrompt, raw.LegacyPrompt)
	id := firstPresent(raw.Identifier, raw.LegacyIdentifier)
	switch {
	case id == nil:
		return chat.Record{}, errors.New("missing identifier")
	case name == nil:
		return chat.Record{}, errors.New("missing personaName")
	case prompt == nil:
		return chat.Record{}, errors.New("missing personaPrompt")
	case raw.Messages == nil:
		return chat.Record{}, errors.New("missing messages")
	}
	if raw.Identifier == nil {
		id = &fileID
	}

	record := chat.Record{
		PersonaName:   *name,
		PersonaPrompt: *prompt,
		Identifier:    *id,
		Messages:      *raw.Messages,
	}
	if record.Messages == nil {
		record.Messages = []chat.Message{}
	}
	if err := record.Validate(); err != nil {
		return chat.Record{}, err
	}
	return record, nil
}

func firstPresent(values ...*string) *string {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	tmpName = ""
	return nil
}
