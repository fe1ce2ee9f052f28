package wasm

import (
	"context"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// Instance is one instantiated guest module. It is not safe for
// concurrent use: guest code runs on a single logical thread of control
// and every host function mutates per-instance tables, so callers must
// serialize access (the source façade does).
type Instance struct {
	module api.Module

	Name      string
	CreatedAt int64

	exports map[string]api.Function
	memory  *Memory
	logger  *zap.Logger
}

// Instantiate creates an instance from a compiled module. The import
// surface for the instance must already be instantiated into the same
// wazero runtime under the namespaces the module imports.
func Instantiate(ctx context.Context, runtime *Runtime, compiled *CompiledModule, name string, logger *zap.Logger) (*Instance, error) {
	moduleConfig := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions() // exports are probed and started explicitly

	module, err := runtime.runtime.InstantiateModule(ctx, compiled.Module, moduleConfig)
	if err != nil {
		return nil, &InstantiationError{
			ModuleName: compiled.Name,
			InstanceID: name,
			Err:        err,
		}
	}

	inst := &Instance{
		module:    module,
		Name:      name,
		CreatedAt: time.Now().Unix(),
		exports:   make(map[string]api.Function),
		logger:    logger.With(zap.String("component", "wasm-instance"), zap.String("instance", name)),
	}
	inst.memory = NewMemory(module)

	inst.logger.Debug("module instantiated", zap.String("module", compiled.Name))
	return inst, nil
}

// HasExport reports whether the guest exports a function by name.
func (i *Instance) HasExport(name string) bool {
	return i.function(name) != nil
}

// Call invokes an exported function, caching the export lookup.
func (i *Instance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn := i.function(name)
	if fn == nil {
		return nil, &FunctionNotFoundError{ModuleName: i.Name, FunctionName: name}
	}
	results, err := fn.Call(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", name, err)
	}
	return results, nil
}

// Memory returns the bounds-checked linear memory accessor.
func (i *Instance) Memory() *Memory { return i.memory }

// Module returns the raw wazero module.
func (i *Instance) Module() api.Module { return i.module }

// Close closes the instance and releases its guest memory.
func (i *Instance) Close(ctx context.Context) error {
	return i.module.Close(ctx)
}

func (i *Instance) function(name string) api.Function {
	if fn, ok := i.exports[name]; ok {
		return fn
	}
	fn := i.module.ExportedFunction(name)
	if fn != nil {
		i.exports[name] = fn
	}
	return fn
}
