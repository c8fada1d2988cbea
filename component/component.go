package component

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tetratelabs/wabin/binary"
	"github.com/tetratelabs/wabin/wasm"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/transcoder"
)

// TypeSection is the custom section a core module carries its encoded
// world in. A ":suffix" naming the producer is allowed.
const TypeSection = "component-type"

// Well-known core exports and import names.
const (
	MemoryExport       = "memory"
	InitializeExport   = "_initialize"
	PostReturnPrefix   = "cabi_post_"
	ResourceDropPrefix = "[resource-drop]"
)

// Option configures Load.
type Option func(*loadConfig)

type loadConfig struct {
	world string
	name  string
}

// WithWorld supplies the world as WIT text instead of reading it from the
// binary. Every declared import must then be imported by the core module.
func WithWorld(text string) Option {
	return func(c *loadConfig) { c.world = text }
}

// WithName overrides the component name, which defaults to the world name.
func WithName(name string) Option {
	return func(c *loadConfig) { c.name = name }
}

// Component is a loaded, type-checked component. It is immutable and may be
// linked and instantiated any number of times.
type Component struct {
	compiled   wazero.CompiledModule
	world      *World
	exports    map[string]Export
	postReturn map[string]bool
	name       string
	hasStart   bool
	initialize bool
	realloc    bool
	memory     bool
}

// Load decodes, compiles and type-checks a component. bin is either a
// component binary or a core module carrying its world in a component-type
// section. Structural problems give errors.ErrMalformed; disagreements
// between the world and the core module give errors.ErrLoadTypeMismatch.
func Load(ctx context.Context, eng *engine.Engine, bin []byte, opts ...Option) (*Component, error) {
	cfg := &loadConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	core := bin
	var world *World
	if IsComponent(bin) {
		d, err := decodeComponent(bin)
		if err != nil {
			return nil, errors.Malformed("decode component", err)
		}
		if core, err = d.coreModule(); err != nil {
			return nil, err
		}
		if world, err = d.world(); err != nil {
			return nil, errors.Malformed("decode component world", err)
		}
	}

	mod, err := binary.DecodeModule(core, wasm.CoreFeaturesV2)
	if err != nil {
		return nil, errors.Malformed("decode core module", err)
	}

	if cfg.world != "" {
		if world, err = ParseWorld(cfg.world); err != nil {
			return nil, errors.Malformed("parse world", err)
		}
	} else {
		if world == nil {
			if world, err = embeddedWorld(mod); err != nil {
				return nil, err
			}
		}
		world = world.prune(mod)
	}

	compiled, err := eng.Compile(ctx, core)
	if err != nil {
		return nil, errors.Malformed("compile core module", err)
	}

	c := &Component{
		compiled:   compiled,
		world:      world,
		exports:    make(map[string]Export, len(world.Exports)),
		postReturn: make(map[string]bool),
		name:       world.Name,
		hasStart:   mod.StartSection != nil,
	}
	if cfg.name != "" {
		c.name = cfg.name
	}

	if err := c.check(mod); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	engine.Logger().Debug("component loaded",
		zap.String("name", c.name),
		zap.Int("imports", len(world.Imports)),
		zap.Int("exports", len(world.Exports)),
		zap.Bool("start", c.hasStart))
	return c, nil
}

// embeddedWorld decodes the worlds in a core module's component-type
// sections, merging them when there are several.
func embeddedWorld(mod *wasm.Module) (*World, error) {
	var world *World
	for _, cs := range mod.CustomSections {
		if cs.Name != TypeSection && !strings.HasPrefix(cs.Name, TypeSection+":") {
			continue
		}
		if !IsComponent(cs.Data) {
			return nil, errors.Malformed(fmt.Sprintf("%s section does not hold an encoded world; use WithWorld for WIT text", cs.Name), nil)
		}
		w, err := decodeWorld(cs.Data)
		if err != nil {
			return nil, errors.Malformed("decode "+cs.Name, err)
		}
		world = world.merge(w)
	}
	if world == nil {
		return nil, errors.Malformed(fmt.Sprintf("missing %q custom section", TypeSection), nil)
	}
	return world, nil
}

// merge adds the imports and exports of other that w lacks. A nil w
// yields other.
func (w *World) merge(other *World) *World {
	if w == nil {
		return other
	}
	seen := make(map[string]bool)
	for _, imp := range w.Imports {
		seen["import "+imp.QualifiedName()] = true
	}
	for _, exp := range w.Exports {
		seen["export "+exp.Name] = true
	}
	for _, imp := range other.Imports {
		if !seen["import "+imp.QualifiedName()] {
			w.Imports = append(w.Imports, imp)
		}
	}
	for _, exp := range other.Exports {
		if !seen["export "+exp.Name] {
			w.Exports = append(w.Exports, exp)
		}
	}
	return w
}

// prune keeps the imports the core module imports. Encoded worlds carry
// whole interfaces, resource drops included, of which a guest typically
// calls a few functions.
func (w *World) prune(mod *wasm.Module) *World {
	used := make(map[string]bool, len(mod.ImportSection))
	for _, imp := range mod.ImportSection {
		used[imp.Module+"#"+imp.Name] = true
	}
	out := &World{Name: w.Name, Exports: w.Exports}
	for _, imp := range w.Imports {
		if used[imp.Module()+"#"+imp.Name] {
			out.Imports = append(out.Imports, imp)
		}
	}
	return out
}

// check verifies the core module against the declared world.
func (c *Component) check(mod *wasm.Module) error {
	for _, imp := range mod.ImportSection {
		if imp.Type != wasm.ExternTypeFunc {
			return errors.LoadTypeMismatch(imp.Module+"#"+imp.Name,
				fmt.Sprintf("core module imports a %s; only functions can be provided", wasm.ExternTypeName(imp.Type)))
		}
	}

	imported := c.compiled.ImportedFunctions()
	coreImports := make(map[string]api.FunctionDefinition, len(imported))
	for _, def := range imported {
		module, name, _ := def.Import()
		coreImports[module+"#"+name] = def
	}

	coreExports := c.compiled.ExportedFunctions()
	_, c.memory = c.compiled.ExportedMemories()[MemoryExport]

	if fn, ok := coreExports[engine.ReallocExport]; ok {
		if !sameCore(fn, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}) {
			return errors.LoadTypeMismatch(engine.ReallocExport, "want (i32, i32, i32, i32) -> (i32), got "+formatDef(fn))
		}
		c.realloc = true
	}
	if fn, ok := coreExports[InitializeExport]; ok {
		if !sameCore(fn, nil, nil) {
			return errors.LoadTypeMismatch(InitializeExport, "want () -> (), got "+formatDef(fn))
		}
		c.initialize = true
	}

	declared := make(map[string]bool, len(c.world.Imports))
	for _, imp := range c.world.Imports {
		key := imp.Module() + "#" + imp.Name
		declared[key] = true

		def, ok := coreImports[key]
		if !ok {
			return errors.LoadTypeMismatch(imp.QualifiedName(), "declared import is not imported by the core module")
		}
		sig := transcoder.ImportSignature(imp.Type.ParamTypes(), imp.Type.Results)
		if !sameCore(def, sig.Params, sig.Results) {
			return errors.LoadTypeMismatch(imp.QualifiedName(), fmt.Sprintf("%s lowers to %s, core module imports %s",
				imp.Type, transcoder.FormatCore(sig.Params, sig.Results), formatDef(def)))
		}
		if usesMemory(imp.Type, sig) && !c.memory {
			return errors.LoadTypeMismatch(imp.QualifiedName(), "core module exports no memory")
		}
		if needsImportAlloc(imp.Type) && !c.realloc {
			return errors.LoadTypeMismatch(imp.QualifiedName(), "returns heap data but core module exports no "+engine.ReallocExport)
		}
	}
	for _, def := range imported {
		module, name, _ := def.Import()
		if key := module + "#" + name; !declared[key] {
			return errors.LoadTypeMismatch(key, "core import is not declared by the world")
		}
	}

	for _, exp := range c.world.Exports {
		def, ok := coreExports[exp.Name]
		if !ok {
			return errors.LoadTypeMismatch(exp.Name, "declared export is not exported by the core module")
		}
		sig := transcoder.ExportSignature(exp.Type.ParamTypes(), exp.Type.Results)
		if !sameCore(def, sig.Params, sig.Results) {
			return errors.LoadTypeMismatch(exp.Name, fmt.Sprintf("%s lifts from %s, core module exports %s",
				exp.Type, transcoder.FormatCore(sig.Params, sig.Results), formatDef(def)))
		}
		if usesMemory(exp.Type, sig) && !c.memory {
			return errors.LoadTypeMismatch(exp.Name, "core module exports no memory")
		}
		if needsExportAlloc(exp.Type, sig) && !c.realloc {
			return errors.LoadTypeMismatch(exp.Name, "takes heap data but core module exports no "+engine.ReallocExport)
		}
		if post, ok := coreExports[PostReturnPrefix+exp.Name]; ok {
			if !sameCore(post, sig.Results, nil) {
				return errors.LoadTypeMismatch(PostReturnPrefix+exp.Name, "post-return must take the export's core results")
			}
			c.postReturn[exp.Name] = true
		}
		c.exports[exp.Name] = exp
	}
	return nil
}

func sameCore(def api.FunctionDefinition, params, results []api.ValueType) bool {
	return slices.Equal(def.ParamTypes(), params) && slices.Equal(def.ResultTypes(), results)
}

func formatDef(def api.FunctionDefinition) string {
	return transcoder.FormatCore(def.ParamTypes(), def.ResultTypes())
}

// usesMemory reports whether calls of ft move data through linear memory.
func usesMemory(ft *FuncType, sig transcoder.CoreSignature) bool {
	if sig.IndirectParams || sig.IndirectResults {
		return true
	}
	for _, p := range ft.Params {
		if hasHeap(p.Type) {
			return true
		}
	}
	for _, r := range ft.Results {
		if hasHeap(r) {
			return true
		}
	}
	return false
}

// needsImportAlloc reports whether the host must allocate in the guest to
// return ft's results.
func needsImportAlloc(ft *FuncType) bool {
	for _, r := range ft.Results {
		if hasHeap(r) {
			return true
		}
	}
	return false
}

// needsExportAlloc reports whether the host must allocate in the guest to
// pass ft's arguments.
func needsExportAlloc(ft *FuncType, sig transcoder.CoreSignature) bool {
	if sig.IndirectParams {
		return true
	}
	for _, p := range ft.Params {
		if hasHeap(p.Type) {
			return true
		}
	}
	return false
}

// hasHeap reports whether values of t reference separately allocated
// memory (strings or lists).
func hasHeap(t wit.Type) bool {
	switch typ := t.(type) {
	case wit.String:
		return true
	case *wit.TypeDef:
		switch kind := typ.Kind.(type) {
		case *wit.List:
			return true
		case *wit.Option:
			return hasHeap(kind.Type)
		case *wit.Result:
			return hasHeap(kind.OK) || hasHeap(kind.Err)
		case *wit.Tuple:
			for _, e := range kind.Types {
				if hasHeap(e) {
					return true
				}
			}
		case *wit.Record:
			for _, f := range kind.Fields {
				if hasHeap(f.Type) {
					return true
				}
			}
		case *wit.Variant:
			for _, c := range kind.Cases {
				if hasHeap(c.Type) {
					return true
				}
			}
		case wit.Type:
			return hasHeap(kind)
		}
	}
	return false
}

// Name returns the component name.
func (c *Component) Name() string { return c.name }

// World returns a copy of the declared world.
func (c *Component) World() *World {
	return &World{Name: c.world.Name, Imports: c.Imports(), Exports: c.Exports()}
}

// Imports returns a copy of the declared imports in declaration order.
func (c *Component) Imports() []Import {
	out := slices.Clone(c.world.Imports)
	for i := range out {
		out[i].Type = out[i].Type.clone()
	}
	return out
}

// Exports returns a copy of the declared exports in declaration order.
func (c *Component) Exports() []Export {
	out := slices.Clone(c.world.Exports)
	for i := range out {
		out[i].Type = out[i].Type.clone()
	}
	return out
}

// Export looks up a declared export.
func (c *Component) Export(name string) (Export, bool) {
	e, ok := c.exports[name]
	e.Type = e.Type.clone()
	return e, ok
}

// Compiled returns the compiled core module.
func (c *Component) Compiled() wazero.CompiledModule { return c.compiled }

// HasStart reports whether the core module has a start section.
func (c *Component) HasStart() bool { return c.hasStart }

// HasInitialize reports whether the core module exports _initialize.
func (c *Component) HasInitialize() bool { return c.initialize }

// HasPostReturn reports whether export name has a cabi_post_ function.
func (c *Component) HasPostReturn(name string) bool { return c.postReturn[name] }

// HasRealloc reports whether the core module exports cabi_realloc.
func (c *Component) HasRealloc() bool { return c.realloc }

// Close releases the compiled module.
func (c *Component) Close(ctx context.Context) error {
	return c.compiled.Close(ctx)
}
