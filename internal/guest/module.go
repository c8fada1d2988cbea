// Package guest builds small wasm components in Go for tests, examples and
// the built-in demo.
package guest

import (
	"fmt"
	"slices"

	"github.com/tetratelabs/wabin/binary"
	"github.com/tetratelabs/wabin/leb128"
	"github.com/tetratelabs/wabin/wasm"

	"github.com/wippyai/wasm-host/component"
)

const i32 = wasm.ValueTypeI32

// Sig is a core function type.
type Sig struct {
	Params  []wasm.ValueType
	Results []wasm.ValueType
}

// Import is an imported core function.
type Import struct {
	Module string
	Name   string
	Sig    Sig
}

// Func is a defined core function. Export may be empty.
type Func struct {
	Export string
	Sig    Sig
	Locals []wasm.ValueType
	Body   []byte
}

// Data is an active data segment in memory 0.
type Data struct {
	Bytes  []byte
	Offset int32
}

// Module describes a component: a core module plus the WIT text of its
// world.
// Function indices count imports first, then Funcs in order.
type Module struct {
	World   string
	Imports []Import
	Funcs   []Func
	Data    []Data
	// Globals are mutable i32 globals with the given initial values.
	Globals []int32
	// MemoryPages is the size of memory 0, exported as "memory". Zero means
	// no memory.
	MemoryPages uint32
	// Start is the function index run by the start section, if set.
	Start *uint32
}

// Encode returns the component binary wrapping the core module. Without a
// World it returns the bare core module. It panics if the world does not
// parse or does not fit the core module.
func (m *Module) Encode() []byte {
	core := m.Core()
	if m.World == "" {
		return core
	}
	w, err := component.ParseWorld(m.World)
	if err != nil {
		panic(fmt.Sprintf("guest world: %v", err))
	}
	bin, err := component.Encode(core, w)
	if err != nil {
		panic(fmt.Sprintf("guest component: %v", err))
	}
	return bin
}

// Core returns the binary core module.
func (m *Module) Core() []byte {
	mod := &wasm.Module{}

	typeIndex := func(s Sig) wasm.Index {
		for i, t := range mod.TypeSection {
			if slices.Equal(t.Params, s.Params) && slices.Equal(t.Results, s.Results) {
				return wasm.Index(i)
			}
		}
		mod.TypeSection = append(mod.TypeSection, &wasm.FunctionType{Params: s.Params, Results: s.Results})
		return wasm.Index(len(mod.TypeSection) - 1)
	}

	for _, imp := range m.Imports {
		mod.ImportSection = append(mod.ImportSection, &wasm.Import{
			Type:     wasm.ExternTypeFunc,
			Module:   imp.Module,
			Name:     imp.Name,
			DescFunc: typeIndex(imp.Sig),
		})
	}

	for i, fn := range m.Funcs {
		mod.FunctionSection = append(mod.FunctionSection, typeIndex(fn.Sig))
		mod.CodeSection = append(mod.CodeSection, &wasm.Code{LocalTypes: fn.Locals, Body: fn.Body})
		if fn.Export != "" {
			mod.ExportSection = append(mod.ExportSection, &wasm.Export{
				Type:  wasm.ExternTypeFunc,
				Name:  fn.Export,
				Index: wasm.Index(len(m.Imports) + i),
			})
		}
	}

	if m.MemoryPages > 0 {
		mod.MemorySection = &wasm.Memory{Min: m.MemoryPages, Max: m.MemoryPages, IsMaxEncoded: true}
		mod.ExportSection = append(mod.ExportSection, &wasm.Export{Type: wasm.ExternTypeMemory, Name: "memory"})
	}

	for _, g := range m.Globals {
		mod.GlobalSection = append(mod.GlobalSection, &wasm.Global{
			Type: &wasm.GlobalType{ValType: i32, Mutable: true},
			Init: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: leb128.EncodeInt32(g)},
		})
	}

	for _, d := range m.Data {
		mod.DataSection = append(mod.DataSection, &wasm.DataSegment{
			OffsetExpression: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: leb128.EncodeInt32(d.Offset)},
			Init:             d.Bytes,
		})
	}

	mod.StartSection = m.Start
	return binary.EncodeModule(mod)
}

func sig(p []wasm.ValueType, results ...wasm.ValueType) Sig {
	return Sig{Params: p, Results: results}
}

func params(vt ...wasm.ValueType) []wasm.ValueType { return vt }
