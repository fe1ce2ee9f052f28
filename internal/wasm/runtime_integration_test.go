package wasm

import (
	"context"
	"os"
	"testing"

	"go.uber.org/zap/zaptest"
)

// minimalModule is a valid empty module: magic and version only.
var minimalModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // \0asm
	0x01, 0x00, 0x00, 0x00, // version 1
}

// memoryModule exports one page of linear memory and nothing else.
var memoryModule = []byte{
	0x00, 0x61, 0x73, 0x6d,
	0x01, 0x00, 0x00, 0x00,
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: min 1 page
	0x07, 0x0a, 0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
}

func TestLoadPackageModule(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)

	module, err := loader.LoadPackageModule(ctx, "test-module", minimalModule)
	if err != nil {
		t.Fatalf("Failed to load module: %v", err)
	}

	if module.Name != "test-module" {
		t.Errorf("Module name = %s, want 'test-module'", module.Name)
	}

	// Loading again under the same name should hit the cache.
	module2, err := loader.LoadPackageModule(ctx, "test-module", minimalModule)
	if err != nil {
		t.Fatalf("Failed to load module from cache: %v", err)
	}

	if module2 != module {
		t.Error("Cache should return the same module instance")
	}
}

func TestLoadPackageModuleEmptyBytes(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)

	if _, err := loader.LoadPackageModule(ctx, "hollow", nil); err == nil {
		t.Fatal("Expected error for a package with no module bytes")
	}
}

func TestLoadModuleInvalidBytes(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)

	_, err = loader.LoadPackageModule(ctx, "broken", []byte{0x00, 0x01, 0x02})
	if err == nil {
		t.Fatal("Expected compilation error for invalid bytes")
	}
	if _, ok := err.(*CompilationError); !ok {
		t.Errorf("Error type = %T, want *CompilationError", err)
	}
}

func TestModuleLoaderFileSource(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)

	tmpDir := t.TempDir()
	wasmFile := tmpDir + "/test.wasm"
	if err := os.WriteFile(wasmFile, minimalModule, 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := loader.LoadModuleFromFile(ctx, wasmFile); err != nil {
		t.Fatalf("Failed to load module from file: %v", err)
	}
}

func TestInstanceExportsAndMemory(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)
	compiled, err := loader.LoadPackageModule(ctx, "memory-test", memoryModule)
	if err != nil {
		t.Fatalf("Failed to load module: %v", err)
	}

	instance, err := Instantiate(ctx, runtime, compiled, "memory-test-1", logger)
	if err != nil {
		t.Fatalf("Failed to instantiate: %v", err)
	}
	defer instance.Close(ctx)

	if instance.HasExport("get_manga_list") {
		t.Error("Module should export no functions")
	}

	mem := instance.Memory()
	if mem == nil {
		t.Fatal("Memory helper is nil")
	}

	if ok := mem.WriteAt(0, []byte{0x78, 0x56, 0x34, 0x12}); !ok {
		t.Fatal("Failed to write to memory")
	}

	v, ok := mem.ReadU32(0)
	if !ok {
		t.Fatal("Failed to read from memory")
	}
	if v != 0x12345678 {
		t.Errorf("ReadU32 = %#x, want 0x12345678", v)
	}

	data, ok := mem.ReadBytes(0, 4)
	if !ok || len(data) != 4 {
		t.Fatalf("ReadBytes failed: ok=%v len=%d", ok, len(data))
	}

	// The module exports no allocator, so guest allocation must fail.
	if _, err := mem.Alloc(ctx, 16); err == nil {
		t.Error("Alloc should fail without a guest allocator export")
	}
}

func TestCallMissingExport(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)
	compiled, err := loader.LoadPackageModule(ctx, "empty", minimalModule)
	if err != nil {
		t.Fatal(err)
	}

	instance, err := Instantiate(ctx, runtime, compiled, "empty-1", logger)
	if err != nil {
		t.Fatal(err)
	}
	defer instance.Close(ctx)

	_, err = instance.Call(ctx, "does_not_exist")
	if err == nil {
		t.Fatal("Expected error calling a missing export")
	}
	if _, ok := err.(*FunctionNotFoundError); !ok {
		t.Errorf("Error type = %T, want *FunctionNotFoundError", err)
	}
}
