package starter

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store exposes starter retrieval for HTTP handlers.
type Store interface {
	List() []Starter
	FindByID(id string) (Starter, bool)
	Surprises() []string
}

// MemoryStore implements Store with in-memory slices.
type MemoryStore struct {
	items     []Starter
	surprises []string
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied starters and surprise prompts.
func NewMemoryStore(items []Starter, surprises []string) *MemoryStore {
	return &MemoryStore{
		items:     append([]Starter(nil), items...),
		surprises: append([]string(nil), surprises...),
	}
}

// List returns the starter catalogue.
func (s *MemoryStore) List() []Starter {
	return append([]Starter(nil), s.items...)
}

// FindByID looks up a starter by identifier.
func (s *MemoryStore) FindByID(id string) (Starter, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Starter{}, false
}

// Surprises returns the surprise prompt pool.
func (s *MemoryStore) Surprises() []string {
	return append([]string(nil), s.surprises...)
}

type catalogueFile struct {
	Starters  []Starter `yaml:"starters"`
	Surprises []string  `yaml:"surprises"`
}

// LoadFile reads a YAML catalogue. Sections missing from the file fall back to the built-in seed.
func LoadFile(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read starters file: %w", err)
	}

	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse starters file: %w", err)
	}

	for i, item := range file.Starters {
		if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.Prompt) == "" {
			return nil, fmt.Errorf("starter #%d: id and prompt are required", i+1)
		}
	}

	starters := file.Starters
	if len(starters) == 0 {
		starters = Seed()
	}
	surprises := file.Surprises
	if len(surprises) == 0 {
		surprises = SurprisePrompts()
	}
	return NewMemoryStore(starters, surprises), nil
}
