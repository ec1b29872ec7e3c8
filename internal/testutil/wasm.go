package testutil

import "bytes"

// Wasm value types.
const (
	I32 byte = 0x7f
	I64 byte = 0x7e
)

// Wasm opcodes used by the helpers below.
const (
	OpUnreachable byte = 0x00
	OpLoop        byte = 0x03
	OpBr          byte = 0x0c
	OpEnd         byte = 0x0b
	OpCall        byte = 0x10
	OpDrop        byte = 0x1a
	OpI32Const    byte = 0x41
	OpI64Const    byte = 0x42
	OpI64Or       byte = 0x84
	OpI64ExtendU  byte = 0xad
)

// WasmImport is an imported host function.
type WasmImport struct {
	Module, Name    string
	Params, Results []byte
}

// WasmFunc is a function defined by the module. Export may be empty.
type WasmFunc struct {
	Export          string
	Params, Results []byte
	Body            []byte // instructions without the trailing end
}

// WasmData is an active data segment in memory 0.
type WasmData struct {
	Offset uint32
	Bytes  []byte
}

// WasmModule is a tiny WebAssembly binary encoder for tests. Function
// indices start after the imports.
type WasmModule struct {
	Imports      []WasmImport
	Funcs        []WasmFunc
	MemoryPages  uint32
	ExportMemory bool
	Data         []WasmData
}

// Encode returns the binary module.
func (m WasmModule) Encode() []byte {
	var out bytes.Buffer
	out.Write([]byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00})

	var types [][]byte
	for _, im := range m.Imports {
		types = append(types, funcType(im.Params, im.Results))
	}
	for _, fn := range m.Funcs {
		types = append(types, funcType(fn.Params, fn.Results))
	}
	section(&out, 1, vec(types))

	if len(m.Imports) > 0 {
		var items [][]byte
		for i, im := range m.Imports {
			var b []byte
			b = append(b, name(im.Module)...)
			b = append(b, name(im.Name)...)
			b = append(b, 0x00)
			b = append(b, uleb(uint64(i))...)
			items = append(items, b)
		}
		section(&out, 2, vec(items))
	}

	if len(m.Funcs) > 0 {
		var items [][]byte
		for i := range m.Funcs {
			items = append(items, uleb(uint64(len(m.Imports)+i)))
		}
		section(&out, 3, vec(items))
	}

	if m.MemoryPages > 0 {
		section(&out, 5, vec([][]byte{append([]byte{0x00}, uleb(uint64(m.MemoryPages))...)}))
	}

	var exports [][]byte
	for i, fn := range m.Funcs {
		if fn.Export == "" {
			continue
		}
		b := append(name(fn.Export), 0x00)
		exports = append(exports, append(b, uleb(uint64(len(m.Imports)+i))...))
	}
	if m.ExportMemory && m.MemoryPages > 0 {
		exports = append(exports, append(name("memory"), 0x02, 0x00))
	}
	if len(exports) > 0 {
		section(&out, 7, vec(exports))
	}

	if len(m.Funcs) > 0 {
		var bodies [][]byte
		for _, fn := range m.Funcs {
			body := append([]byte{0x00}, fn.Body...) // no locals
			body = append(body, OpEnd)
			bodies = append(bodies, append(uleb(uint64(len(body))), body...))
		}
		section(&out, 10, vec(bodies))
	}

	if len(m.Data) > 0 {
		var segs [][]byte
		for _, d := range m.Data {
			b := []byte{0x00, OpI32Const}
			b = append(b, sleb(int64(d.Offset))...)
			b = append(b, OpEnd)
			b = append(b, uleb(uint64(len(d.Bytes)))...)
			segs = append(segs, append(b, d.Bytes...))
		}
		section(&out, 11, vec(segs))
	}
	return out.Bytes()
}

// I32Const encodes i32.const v.
func I32Const(v int32) []byte { return append([]byte{OpI32Const}, sleb(int64(v))...) }

// I64Const encodes i64.const v.
func I64Const(v int64) []byte { return append([]byte{OpI64Const}, sleb(v)...) }

// Call encodes call idx.
func Call(idx uint32) []byte { return append([]byte{OpCall}, uleb(uint64(idx))...) }

// Packed returns the body of a function returning a packed string pointer.
func Packed(ptr, length uint32) []byte {
	return I64Const(int64(uint64(ptr)<<32 | uint64(length)))
}

// Spin is a body that never returns.
func Spin() []byte {
	return []byte{OpLoop, 0x40, OpBr, 0x00, OpEnd, OpUnreachable}
}

// Trap is a body that traps immediately.
func Trap() []byte { return []byte{OpUnreachable} }

// Concat joins instruction sequences.
func Concat(parts ...[]byte) []byte { return bytes.Join(parts, nil) }

func funcType(params, results []byte) []byte {
	b := []byte{0x60}
	b = append(b, uleb(uint64(len(params)))...)
	b = append(b, params...)
	b = append(b, uleb(uint64(len(results)))...)
	return append(b, results...)
}

func section(out *bytes.Buffer, id byte, payload []byte) {
	out.WriteByte(id)
	out.Write(uleb(uint64(len(payload))))
	out.Write(payload)
}

func vec(items [][]byte) []byte {
	b := uleb(uint64(len(items)))
	for _, it := range items {
		b = append(b, it...)
	}
	return b
}

func name(s string) []byte { return append(uleb(uint64(len(s))), s...) }

func uleb(v uint64) []byte {
	var b []byte
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}

func sleb(v int64) []byte {
	var b []byte
	for {
		c := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0)
		if !done {
			c |= 0x80
		}
		b = append(b, c)
		if done {
			return b
		}
	}
}
