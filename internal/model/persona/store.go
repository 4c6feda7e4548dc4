package persona

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Store exposes persona retrieval for the presentation layer.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns the preset list.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}

type presetFile struct {
	Personas []Persona `yaml:"personas"`
}

// LoadFile reads a YAML preset catalogue of the form
//
//	personas:
//	  - id: pirate
//	    name: 船长
//	    prompt: ...
//
// Presets from the file replace built-ins with the same id and are appended otherwise.
func LoadFile(path string, base []Persona) ([]Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}

	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse persona file %s: %w", path, err)
	}

	out := append([]Persona(nil), base...)
	for i, p := range file.Personas {
		if p.ID == "" || !p.Valid() {
			return nil, fmt.Errorf("persona file %s: entry %d needs id, name and prompt", path, i)
		}
		replaced := false
		for j := range out {
			if out[j].ID == p.ID {
				out[j] = p
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, p)
		}
	}
	return out, nil
}
