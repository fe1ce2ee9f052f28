package wasm

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

// Runtime manages one wazero runtime lifecycle. Each loaded extension
// gets its own Runtime so host-function closures stay private to the
// source; compiled modules are cached by source path so reloading a
// package skips recompilation.
type Runtime struct {
	runtime wazero.Runtime

	// Compiled module cache (key: source path -> *CompiledModule).
	modules sync.Map

	config *RuntimeConfig
	logger *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// RuntimeConfig holds runtime configuration.
type RuntimeConfig struct {
	// Memory limit per guest instance, in 64KB pages.
	// Default: 512 pages = 32MB.
	MemoryPages uint32

	// Enable debug logging for guest execution.
	DebugEnabled bool
}

// CompiledModule wraps a wazero.CompiledModule with metadata.
type CompiledModule struct {
	Module wazero.CompiledModule

	Name       string
	Source     string
	SizeBytes  int64
	CompiledAt int64
}

// NewRuntime creates and initializes the shared wazero runtime.
func NewRuntime(ctx context.Context, logger *zap.Logger, config *RuntimeConfig) (*Runtime, error) {
	if config == nil {
		config = DefaultRuntimeConfig()
	}

	cfg := wazero.NewRuntimeConfig()
	if config.MemoryPages > 0 {
		cfg = cfg.WithMemoryLimitPages(config.MemoryPages)
	}

	r := &Runtime{
		runtime: wazero.NewRuntimeWithConfig(ctx, cfg),
		config:  config,
		logger:  logger.With(zap.String("component", "wasm-runtime")),
		closed:  make(chan struct{}),
	}

	r.logger.Info("wasm runtime initialized",
		zap.Uint32("memory_pages", config.MemoryPages),
		zap.Bool("debug_enabled", config.DebugEnabled),
	)

	return r, nil
}

// DefaultRuntimeConfig returns sensible defaults.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		MemoryPages:  512, // 32MB
		DebugEnabled: false,
	}
}

// Wazero exposes the underlying wazero runtime for host-module
// registration and instantiation.
func (r *Runtime) Wazero() wazero.Runtime { return r.runtime }

// Close gracefully shuts down the runtime. Idempotent. Closing the
// runtime closes every compiled module and live instance under it.
func (r *Runtime) Close(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		r.logger.Info("shutting down wasm runtime")
		err = r.runtime.Close(ctx)
		close(r.closed)
	})
	return err
}

// IsClosed reports whether the runtime has been closed.
func (r *Runtime) IsClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

// GetCompiledModule retrieves a compiled module from cache.
func (r *Runtime) GetCompiledModule(name string) (*CompiledModule, bool) {
	if val, ok := r.modules.Load(name); ok {
		if mod, ok := val.(*CompiledModule); ok {
			return mod, true
		}
	}
	return nil, false
}

// StoreCompiledModule stores a compiled module in cache.
func (r *Runtime) StoreCompiledModule(module *CompiledModule) {
	r.modules.Store(module.Name, module)
}
