// Package settings implements the per-extension key/value store consumed
// by the defaults import namespace. Values are persisted as one JSON file
// per extension; unset keys fall back to the defaults declared by the
// extension's settings schema.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Kind enumerates the supported setting value kinds.
type Kind int

const (
	KindNull Kind = iota
	KindBytes
	KindBool
	KindInt
	KindFloat
	KindString
	KindStringList
)

// Value is one setting value.
type Value struct {
	Kind       Kind     `json:"kind"`
	Bytes      []byte   `json:"bytes,omitempty"`
	Bool       bool     `json:"bool,omitempty"`
	Int        int64    `json:"int,omitempty"`
	Float      float64  `json:"float,omitempty"`
	String     string   `json:"string,omitempty"`
	StringList []string `json:"string_list,omitempty"`
}

// Null is the zero setting value.
func Null() Value { return Value{Kind: KindNull} }

// Store is the settings collaborator surface consumed by the runtime.
type Store interface {
	Get(key string) Value
	Set(key string, v Value)
	Save() error
}

// FileStore persists settings for one extension as a JSON file and
// layers lookups over schema-declared defaults.
type FileStore struct {
	path     string
	values   map[string]Value
	defaults map[string]Value
	logger   *zap.Logger
}

// NewFileStore loads (or initializes) the settings file for an extension.
// A missing file is an empty store; a corrupt file is an error so user
// settings are never silently dropped.
func NewFileStore(dir, extensionID string, defaults map[string]Value, logger *zap.Logger) (*FileStore, error) {
	path := filepath.Join(dir, extensionID+".json")
	s := &FileStore{
		path:     path,
		values:   make(map[string]Value),
		defaults: defaults,
		logger:   logger.With(zap.String("component", "settings"), zap.String("extension", extensionID)),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

// Get returns the stored value for key, the schema default when unset,
// or null when neither exists.
func (s *FileStore) Get(key string) Value {
	if v, ok := s.values[key]; ok {
		return v
	}
	if v, ok := s.defaults[key]; ok {
		return v
	}
	return Null()
}

// Set stores a value. Storing null removes the override so the schema
// default shows through again.
func (s *FileStore) Set(key string, v Value) {
	if v.Kind == KindNull {
		delete(s.values, key)
		return
	}
	s.values[key] = v
}

// Save writes the current overrides to disk.
func (s *FileStore) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write settings %s: %w", s.path, err)
	}
	s.logger.Debug("settings saved", zap.Int("keys", len(s.values)))
	return nil
}

// MemoryStore is an in-memory Store for tests and ephemeral loads.
type MemoryStore struct {
	values   map[string]Value
	defaults map[string]Value
}

// NewMemoryStore creates an empty in-memory store over defaults.
func NewMemoryStore(defaults map[string]Value) *MemoryStore {
	return &MemoryStore{values: make(map[string]Value), defaults: defaults}
}

func (s *MemoryStore) Get(key string) Value {
	if v, ok := s.values[key]; ok {
		return v
	}
	if v, ok := s.defaults[key]; ok {
		return v
	}
	return Null()
}

func (s *MemoryStore) Set(key string, v Value) {
	if v.Kind == KindNull {
		delete(s.values, key)
		return
	}
	s.values[key] = v
}

func (s *MemoryStore) Save() error { return nil }
