package wasm

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

// Memory provides bounds-checked operations on guest linear memory.
//
// Guest modules own an isolated memory space; every read is validated by
// wazero against the current memory size. Writes go through the guest's
// own allocator export so the guest never sees host data in memory it did
// not hand out.
type Memory struct {
	module api.Module
	mem    api.Memory
	alloc  api.Function
}

// allocExports are tried in order when resolving the guest allocator.
var allocExports = []string{"malloc", "alloc", "__wasm_alloc"}

// NewMemory creates a memory helper for a module instance.
func NewMemory(module api.Module) *Memory {
	m := &Memory{module: module, mem: module.Memory()}
	for _, name := range allocExports {
		if fn := module.ExportedFunction(name); fn != nil {
			m.alloc = fn
			break
		}
	}
	return m
}

// Raw exposes the underlying wazero memory.
func (m *Memory) Raw() api.Memory { return m.mem }

// ReadBytes reads raw bytes from guest memory, copied out of the guest's
// address space.
func (m *Memory) ReadBytes(ptr uint32, length uint32) ([]byte, bool) {
	buf, ok := m.mem.Read(ptr, length)
	if !ok {
		return nil, false
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, true
}

// ReadString reads length bytes from guest memory as UTF-8 text.
func (m *Memory) ReadString(ptr uint32, length uint32) (string, bool) {
	buf, ok := m.mem.Read(ptr, length)
	if !ok {
		return "", false
	}
	return string(buf), true
}

// ReadU32 reads a little-endian u32.
func (m *Memory) ReadU32(ptr uint32) (uint32, bool) {
	return m.mem.ReadUint32Le(ptr)
}

// ReadI32 reads a little-endian i32.
func (m *Memory) ReadI32(ptr uint32) (int32, bool) {
	v, ok := m.mem.ReadUint32Le(ptr)
	return int32(v), ok
}

// ReadF64 reads a little-endian f64.
func (m *Memory) ReadF64(ptr uint32) (float64, bool) {
	return m.mem.ReadFloat64Le(ptr)
}

// Alloc asks the guest allocator for size bytes, returning the guest
// pointer.
func (m *Memory) Alloc(ctx context.Context, size uint32) (uint32, error) {
	if m.alloc == nil {
		return 0, &MemoryAccessError{Operation: "alloc", Length: size,
			Err: &FunctionNotFoundError{ModuleName: m.module.Name(), FunctionName: "malloc"}}
	}
	results, err := m.alloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, &MemoryAccessError{Operation: "alloc", Length: size, Err: err}
	}
	return uint32(results[0]), nil
}

// WriteBytes allocates guest memory and copies data into it, returning
// the guest pointer.
func (m *Memory) WriteBytes(ctx context.Context, data []byte) (uint32, error) {
	ptr, err := m.Alloc(ctx, uint32(len(data)))
	if err != nil {
		return 0, err
	}
	if !m.mem.Write(ptr, data) {
		return 0, &MemoryAccessError{Operation: "write", Address: ptr, Length: uint32(len(data))}
	}
	return ptr, nil
}

// WriteAt copies data to an address the guest already owns.
func (m *Memory) WriteAt(ptr uint32, data []byte) bool {
	return m.mem.Write(ptr, data)
}

// WriteString allocates guest memory for s and copies it in.
func (m *Memory) WriteString(ctx context.Context, s string) (uint32, error) {
	return m.WriteBytes(ctx, []byte(s))
}
