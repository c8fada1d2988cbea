package component

import (
	"slices"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-host/transcoder"
)

// Param is a named function parameter.
type Param struct {
	Type wit.Type
	Name string
}

// FuncType is the WIT type of a function.
type FuncType struct {
	Params  []Param
	Results []wit.Type
}

// ParamTypes returns the parameter types in order.
func (f *FuncType) ParamTypes() []wit.Type {
	types := make([]wit.Type, len(f.Params))
	for i, p := range f.Params {
		types[i] = p.Type
	}
	return types
}

// String renders f in WIT syntax, e.g. "func(name: string) -> string".
func (f *FuncType) String() string {
	var b strings.Builder
	b.WriteString("func(")
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		b.WriteString(": ")
		b.WriteString(transcoder.TypeName(p.Type))
	}
	b.WriteString(")")
	if len(f.Results) > 0 {
		b.WriteString(" -> ")
		b.WriteString(transcoder.TypeName(f.Results[0]))
	}
	return b.String()
}

// clone copies the parameter and result lists. The WIT types themselves
// are shared.
func (f *FuncType) clone() *FuncType {
	if f == nil {
		return nil
	}
	return &FuncType{Params: slices.Clone(f.Params), Results: slices.Clone(f.Results)}
}

// Equal reports whether f and other have structurally identical parameter
// and result types. Parameter names are not compared.
func (f *FuncType) Equal(other *FuncType) bool {
	if f == nil || other == nil {
		return f == other
	}
	if len(f.Params) != len(other.Params) || len(f.Results) != len(other.Results) {
		return false
	}
	for i := range f.Params {
		if !transcoder.Equal(f.Params[i].Type, other.Params[i].Type) {
			return false
		}
	}
	for i := range f.Results {
		if !transcoder.Equal(f.Results[i], other.Results[i]) {
			return false
		}
	}
	return true
}

// RootModule is the core module name world-level function imports use.
const RootModule = "$root"

// Import is a function the component requires from its host.
type Import struct {
	Type *FuncType
	// Interface is the interface name, e.g. "wasi:cli/stdout@0.2.0", or
	// empty for a world-level function.
	Interface string
	Name      string
}

// QualifiedName is name for world-level functions and interface#name
// otherwise.
func (i Import) QualifiedName() string {
	if i.Interface == "" {
		return i.Name
	}
	return i.Interface + "#" + i.Name
}

// Module is the core module name the import is bound under.
func (i Import) Module() string {
	if i.Interface == "" {
		return RootModule
	}
	return i.Interface
}

// Export is a function the component provides.
type Export struct {
	Type *FuncType
	Name string
}

// World is the typed surface of a component.
type World struct {
	Name    string
	Imports []Import
	Exports []Export
}

// Interfaces returns the distinct imported interfaces in declaration order.
func (w *World) Interfaces() []string {
	var out []string
	seen := make(map[string]bool)
	for _, imp := range w.Imports {
		if imp.Interface == "" || seen[imp.Interface] {
			continue
		}
		seen[imp.Interface] = true
		out = append(out, imp.Interface)
	}
	return out
}

// Export looks up an export by name.
func (w *World) Export(name string) (Export, bool) {
	for _, e := range w.Exports {
		if e.Name == name {
			return e, true
		}
	}
	return Export{}, false
}
