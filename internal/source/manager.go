package source

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Manager discovers extension packages under configured paths and owns
// their lifecycle.
type Manager struct {
	paths    []string
	loader   *Loader
	registry *Registry
	logger   *zap.Logger

	mu     sync.RWMutex
	loaded bool
}

// NewManager creates a source manager.
func NewManager(paths []string, loader *Loader, logger *zap.Logger) *Manager {
	return &Manager{
		paths:    paths,
		loader:   loader,
		registry: NewRegistry(logger),
		logger:   logger.With(zap.String("component", "source-manager")),
	}
}

// LoadAll discovers and loads every package under the configured paths.
// A package that fails to load is skipped with a log entry; it never
// takes the host down.
func (m *Manager) LoadAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return fmt.Errorf("sources already loaded")
	}

	m.logger.Info("loading sources", zap.Strings("paths", m.paths))

	pkgs := m.discover()
	if len(pkgs) == 0 {
		m.logger.Warn("no extension packages found", zap.Strings("paths", m.paths))
		m.loaded = true
		return nil
	}

	count := 0
	for _, path := range pkgs {
		src, err := m.loader.Load(ctx, path)
		if err != nil {
			m.logger.Error("source load failed",
				zap.String("path", path), zap.Error(err))
			continue
		}
		if err := m.registry.Register(src); err != nil {
			m.logger.Error("source registration failed",
				zap.String("id", src.ID()), zap.Error(err))
			src.Close()
			continue
		}
		count++
	}
	m.loaded = true

	m.logger.Info("sources loaded", zap.Int("count", count))
	return nil
}

// discover walks the configured paths collecting package files.
func (m *Manager) discover() []string {
	var pkgs []string
	for _, root := range m.paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext == ".aix" || ext == ".zip" {
				pkgs = append(pkgs, path)
			}
			return nil
		})
		if err != nil {
			m.logger.Warn("source path walk failed",
				zap.String("path", root), zap.Error(err))
		}
	}
	return pkgs
}

// GetSource retrieves a loaded source by ID.
func (m *Manager) GetSource(id string) (*Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src, ok := m.registry.Get(id)
	if !ok {
		return nil, &NotFoundError{SourceID: id}
	}
	return src, nil
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// IsLoaded reports whether discovery has run.
func (m *Manager) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// Shutdown closes every loaded source.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down source manager")

	for _, src := range m.registry.List() {
		m.registry.Unregister(src.ID())
	}

	m.logger.Info("source manager shutdown complete")
	return nil
}
