package testutil

import (
	"encoding/binary"
	"math"
)

// WebAssembly value types.
const (
	I32 byte = 0x7f
	I64 byte = 0x7e
	F32 byte = 0x7d
	F64 byte = 0x7c
)

// Common instruction encodings.
var (
	// Spin loops forever: loop { br 0 }.
	Spin = []byte{0x03, 0x40, 0x0c, 0x00, 0x0b}
)

// WasmImport is an imported host function.
type WasmImport struct {
	Module  string
	Name    string
	Params  []byte
	Results []byte
}

// WasmFunc is a defined function. Body holds the instructions without the
// trailing end opcode. An empty Name keeps the function unexported.
type WasmFunc struct {
	Name    string
	Params  []byte
	Results []byte
	Locals  []byte
	Body    []byte
}

// WasmData is an active data segment of memory 0.
type WasmData struct {
	Bytes  []byte
	Offset uint32
}

// WasmModule assembles a minimal binary module for tests. Functions are
// indexed after imports, in declaration order.
type WasmModule struct {
	Imports     []WasmImport
	Funcs       []WasmFunc
	Data        []WasmData
	MemoryPages uint32
}

// Bytes encodes the module.
func (m WasmModule) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	var types [][]byte
	for _, imp := range m.Imports {
		types = append(types, funcType(imp.Params, imp.Results))
	}
	for _, fn := range m.Funcs {
		types = append(types, funcType(fn.Params, fn.Results))
	}
	if len(types) > 0 {
		out = section(out, 1, vector(types))
	}

	if len(m.Imports) > 0 {
		var imports [][]byte
		for i, imp := range m.Imports {
			entry := append(name(imp.Module), name(imp.Name)...)
			entry = append(entry, 0x00)
			entry = append(entry, uleb(uint64(i))...)
			imports = append(imports, entry)
		}
		out = section(out, 2, vector(imports))
	}

	if len(m.Funcs) > 0 {
		var funcs [][]byte
		for i := range m.Funcs {
			funcs = append(funcs, uleb(uint64(len(m.Imports)+i)))
		}
		out = section(out, 3, vector(funcs))
	}

	if m.MemoryPages > 0 {
		limits := append([]byte{0x00}, uleb(uint64(m.MemoryPages))...)
		out = section(out, 5, vector([][]byte{limits}))
	}

	var exports [][]byte
	for i, fn := range m.Funcs {
		if fn.Name == "" {
			continue
		}
		entry := append(name(fn.Name), 0x00)
		exports = append(exports, append(entry, uleb(uint64(len(m.Imports)+i))...))
	}
	if m.MemoryPages > 0 {
		exports = append(exports, append(name("memory"), 0x02, 0x00))
	}
	if len(exports) > 0 {
		out = section(out, 7, vector(exports))
	}

	if len(m.Funcs) > 0 {
		var codes [][]byte
		for _, fn := range m.Funcs {
			var locals [][]byte
			for _, l := range fn.Locals {
				locals = append(locals, []byte{0x01, l})
			}
			body := append(vector(locals), fn.Body...)
			body = append(body, 0x0b)
			codes = append(codes, append(uleb(uint64(len(body))), body...))
		}
		out = section(out, 10, vector(codes))
	}

	if len(m.Data) > 0 {
		var segs [][]byte
		for _, d := range m.Data {
			seg := []byte{0x00}
			seg = append(seg, I32Const(int32(d.Offset))...) //nolint:gosec // G115: test offsets are small
			seg = append(seg, 0x0b)
			seg = append(seg, uleb(uint64(len(d.Bytes)))...)
			segs = append(segs, append(seg, d.Bytes...))
		}
		out = section(out, 11, vector(segs))
	}
	return out
}

// LocalGet encodes local.get.
func LocalGet(i uint32) []byte { return append([]byte{0x20}, uleb(uint64(i))...) }

// Call encodes call.
func Call(fn uint32) []byte { return append([]byte{0x10}, uleb(uint64(fn))...) }

// I32Const encodes i32.const.
func I32Const(v int32) []byte { return append([]byte{0x41}, sleb(int64(v))...) }

// I64Const encodes i64.const.
func I64Const(v int64) []byte { return append([]byte{0x42}, sleb(v)...) }

// F64Const encodes f64.const.
func F64Const(v float64) []byte {
	b := make([]byte, 9)
	b[0] = 0x44
	binary.LittleEndian.PutUint64(b[1:], math.Float64bits(v))
	return b
}

// PackPtrLen packs a guest pointer and length into the i64 form host
// imports take.
func PackPtrLen(ptr, length uint32) int64 {
	return int64(uint64(ptr)<<32 | uint64(length)) //nolint:gosec // G115: bit packing
}

// Concat joins instruction sequences.
func Concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func funcType(params, results []byte) []byte {
	t := []byte{0x60}
	t = append(t, uleb(uint64(len(params)))...)
	t = append(t, params...)
	t = append(t, uleb(uint64(len(results)))...)
	return append(t, results...)
}

func name(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func vector(items [][]byte) []byte {
	out := uleb(uint64(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func section(out []byte, id byte, payload []byte) []byte {
	out = append(out, id)
	out = append(out, uleb(uint64(len(payload)))...)
	return append(out, payload...)
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := v == 0 && b&0x40 == 0 || v == -1 && b&0x40 != 0
		if done {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
