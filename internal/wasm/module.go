package wasm

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// ModuleLoader compiles the guest bytecode carried by extension
// packages. Compiled modules are cached under the extension's source
// ID, so reloading the same extension skips recompilation.
type ModuleLoader struct {
	runtime *Runtime
	logger  *zap.Logger
}

// NewModuleLoader creates a loader bound to one runtime.
func NewModuleLoader(runtime *Runtime, logger *zap.Logger) *ModuleLoader {
	return &ModuleLoader{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-loader")),
	}
}

// ModuleSource yields guest bytecode together with the cache key it
// compiles under.
type ModuleSource interface {
	// Bytes returns the wasm bytecode.
	Bytes() ([]byte, error)

	// Name returns the cache key, normally the extension's source ID.
	Name() string

	// Size returns the bytecode size in bytes.
	Size() int64
}

// PackageModuleSource carries bytecode already extracted from an
// extension package archive. This is the normal path: the package
// reader hands over the module without touching disk again.
type PackageModuleSource struct {
	SourceID string
	Wasm     []byte
}

func (p *PackageModuleSource) Bytes() ([]byte, error) {
	if len(p.Wasm) == 0 {
		return nil, fmt.Errorf("package %s carries no module bytes", p.SourceID)
	}
	return p.Wasm, nil
}

func (p *PackageModuleSource) Name() string {
	return p.SourceID
}

func (p *PackageModuleSource) Size() int64 {
	return int64(len(p.Wasm))
}

// FileModuleSource reads a bare .wasm file, bypassing the package
// archive. Useful when developing an extension locally.
type FileModuleSource struct {
	Path string
}

func (f *FileModuleSource) Bytes() ([]byte, error) {
	return os.ReadFile(f.Path)
}

func (f *FileModuleSource) Name() string {
	return f.Path
}

func (f *FileModuleSource) Size() int64 {
	info, err := os.Stat(f.Path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// LoadModule compiles the source's bytecode, or returns the cached
// compilation when this extension was loaded before.
func (l *ModuleLoader) LoadModule(ctx context.Context, source ModuleSource) (*CompiledModule, error) {
	if cached, ok := l.runtime.GetCompiledModule(source.Name()); ok {
		l.logger.Debug("compiled module cache hit", zap.String("source", source.Name()))
		return cached, nil
	}

	wasmBytes, err := source.Bytes()
	if err != nil {
		return nil, fmt.Errorf("read module for %s: %w", source.Name(), err)
	}

	l.logger.Info("compiling extension module",
		zap.String("source", source.Name()),
		zap.Int64("size_bytes", source.Size()),
	)
	startTime := time.Now()

	compiled, err := l.runtime.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, &CompilationError{
			ModuleName: source.Name(),
			Err:        err,
		}
	}

	compiledModule := &CompiledModule{
		Module:     compiled,
		Name:       source.Name(),
		Source:     source.Name(),
		SizeBytes:  source.Size(),
		CompiledAt: time.Now().Unix(),
	}
	l.runtime.StoreCompiledModule(compiledModule)

	l.logger.Info("extension module compiled",
		zap.String("source", source.Name()),
		zap.Duration("duration", time.Since(startTime)),
	)
	return compiledModule, nil
}

// LoadPackageModule compiles bytecode extracted from an extension
// package, keyed by its source ID.
func (l *ModuleLoader) LoadPackageModule(ctx context.Context, sourceID string, wasmBytes []byte) (*CompiledModule, error) {
	return l.LoadModule(ctx, &PackageModuleSource{SourceID: sourceID, Wasm: wasmBytes})
}

// LoadModuleFromFile compiles a bare .wasm file from disk.
func (l *ModuleLoader) LoadModuleFromFile(ctx context.Context, path string) (*CompiledModule, error) {
	return l.LoadModule(ctx, &FileModuleSource{Path: path})
}
