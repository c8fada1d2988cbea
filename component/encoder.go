package component

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/tetratelabs/wabin/binary"
	"github.com/tetratelabs/wabin/leb128"
	"github.com/tetratelabs/wabin/wasm"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/transcoder"
)

// worldPackage qualifies world names in encoded worlds.
const worldPackage = "root:component/"

// Indirection modules for imports that need the main module's memory.
const (
	importsTable = "$imports"
	shimModule   = 1
	fixupModule  = 2
)

// EncodeWorld encodes w as a type-only component, the payload of a
// component-type custom section.
func EncodeWorld(w *World) ([]byte, error) {
	body, err := worldType(w)
	if err != nil {
		return nil, err
	}

	// The package type exports the world as a component type.
	pkg := []byte{0x41}
	pkg = appendU32(pkg, 2)
	pkg = append(pkg, 0x01)
	pkg = append(pkg, body...)
	pkg = append(pkg, 0x04)
	pkg = appendExternName(pkg, worldPackage+w.Name)
	pkg = append(pkg, externComponent, 0x00)

	s := newSectionWriter()
	s.item(sectionType, pkg)
	exp := appendExternName(nil, w.Name)
	exp = append(exp, externType, 0x00, 0x00)
	s.item(sectionExport, exp)
	return s.bytes(), nil
}

// Embed returns core with w encoded in a component-type custom section,
// the layout component tooling reads before wrapping a core module.
func Embed(core []byte, w *World) ([]byte, error) {
	if len(core) < 8 || !bytes.Equal(core[:4], wasmMagic) || IsComponent(core) {
		return nil, errors.Malformed("embed world: not a core module", nil)
	}
	payload, err := EncodeWorld(w)
	if err != nil {
		return nil, err
	}
	sec := appendName(nil, TypeSection+":"+w.Name)
	sec = append(sec, payload...)

	out := slices.Clip(slices.Clone(core))
	out = append(out, sectionCustom)
	out = appendU32(out, uint32(len(sec)))
	return append(out, sec...), nil
}

// Encode wraps a core module in a component with w's imports and exports.
// Every core import must be declared by w and every export of w must be
// exported by the core module. Imports that pass data through memory are
// lowered into a table the core module calls through, filled once its
// memory exists.
func Encode(core []byte, w *World) ([]byte, error) {
	mod, err := binary.DecodeModule(core, wasm.CoreFeaturesV2)
	if err != nil {
		return nil, errors.Malformed("decode core module", err)
	}
	e := &encoder{
		s:         newSectionWriter(),
		mod:       mod,
		rootFuncs: make(map[string]uint32),
		instances: make(map[string]uint32),
	}
	e.types = newTypeScope(
		func(body []byte) { e.s.item(sectionType, body) },
		func(name string, desc []byte) { e.s.item(sectionImport, append(appendExternName(nil, name), desc...)) },
	)
	if err := e.encode(core, w); err != nil {
		return nil, fmt.Errorf("encode component %q: %w", w.Name, err)
	}
	return e.s.bytes(), nil
}

type encoder struct {
	s     *sectionWriter
	types *typeScope
	mod   *wasm.Module
	// rootFuncs and instances index imported functions and interfaces.
	rootFuncs map[string]uint32

	instances     map[string]uint32
	funcs         uint32
	compInstances uint32
	coreFuncs     uint32
	coreInstances uint32
	coreMemories  uint32
	coreTables    uint32
}

// lowering is how one core import is provided.
type lowering struct {
	imp  Import
	sig  *wasm.FunctionType
	slot int
}

func (e *encoder) encode(core []byte, w *World) error {
	for _, g := range groupImports(w.Imports) {
		if g.iface == "" {
			f := g.funcs[0]
			if strings.HasPrefix(f.name, ResourceDropPrefix) {
				return fmt.Errorf("%s: resource drops must belong to an interface", f.name)
			}
			idx, err := e.types.funcTypeIndex(f.typ)
			if err != nil {
				return fmt.Errorf("%s: %w", f.name, err)
			}
			b := appendExternName(nil, f.name)
			b = append(b, externFunc)
			e.s.item(sectionImport, appendU32(b, idx))
			e.rootFuncs[f.name] = e.funcs
			e.funcs++
			continue
		}
		body, err := instanceTypeBody(g.funcs)
		if err != nil {
			return fmt.Errorf("%s: %w", g.iface, err)
		}
		idx := e.types.add(body)
		b := appendExternName(nil, g.iface)
		b = append(b, externInstance)
		e.s.item(sectionImport, appendU32(b, idx))
		e.instances[g.iface] = e.compInstances
		e.compInstances++
	}

	e.s.section(sectionCoreModule, core)

	hasMemory := e.coreExports(wasm.ExternTypeMemory, MemoryExport)
	hasRealloc := e.coreExports(wasm.ExternTypeFunc, engine.ReallocExport)

	declared := make(map[string]Import, len(w.Imports))
	for _, imp := range w.Imports {
		declared[imp.Module()+"#"+imp.Name] = imp
	}
	var plan []lowering
	var slots []*wasm.FunctionType
	for _, ci := range e.mod.ImportSection {
		key := ci.Module + "#" + ci.Name
		if ci.Type != wasm.ExternTypeFunc {
			return fmt.Errorf("core import %s is a %s", key, wasm.ExternTypeName(ci.Type))
		}
		imp, ok := declared[key]
		if !ok {
			return fmt.Errorf("core import %s is not declared by the world", key)
		}
		if int(ci.DescFunc) >= len(e.mod.TypeSection) {
			return fmt.Errorf("core import %s has no type", key)
		}
		l := lowering{imp: imp, sig: e.mod.TypeSection[ci.DescFunc], slot: -1}
		sig := transcoder.ImportSignature(imp.Type.ParamTypes(), imp.Type.Results)
		if !isDrop(imp) && (hasMemory || hasRealloc) && usesMemory(imp.Type, sig) {
			l.slot = len(slots)
			slots = append(slots, l.sig)
		}
		plan = append(plan, l)
	}

	var shim uint32
	if len(slots) > 0 {
		e.s.section(sectionCoreModule, shimBinary(slots))
		e.s.section(sectionCoreModule, fixupBinary(slots))
		shim = e.instantiate(shimModule, nil)
	}

	coreFor := make([]uint32, len(plan))
	for i, l := range plan {
		switch {
		case l.slot >= 0:
			coreFor[i] = e.aliasCore(coreFunc, shim, strconv.Itoa(l.slot))
		case isDrop(l.imp):
			res, err := droppedResource(l.imp.Type)
			if err != nil {
				return fmt.Errorf("%s: %w", l.imp.QualifiedName(), err)
			}
			t := e.aliasType(e.instances[l.imp.Interface], *res.Name)
			e.s.item(sectionCanon, appendU32([]byte{0x03}, t))
			coreFor[i] = e.nextCoreFunc()
		default:
			f := e.componentFunc(l.imp)
			e.s.item(sectionCanon, append(appendU32([]byte{0x01, 0x00}, f), 0x00))
			coreFor[i] = e.nextCoreFunc()
		}
	}

	// One core instance per imported core module name feeds the main
	// instantiation.
	var order []string
	bundles := make(map[string][][]byte)
	for i, ci := range e.mod.ImportSection {
		if _, ok := bundles[ci.Module]; !ok {
			order = append(order, ci.Module)
		}
		b := appendName(nil, ci.Name)
		b = append(b, coreFunc)
		bundles[ci.Module] = append(bundles[ci.Module], appendU32(b, coreFor[i]))
	}
	var args [][]byte
	for _, m := range order {
		inst := e.fromExports(bundles[m])
		b := appendName(nil, m)
		b = append(b, coreInstance)
		args = append(args, appendU32(b, inst))
	}
	main := e.instantiate(0, args)

	memory, realloc := int64(-1), int64(-1)
	if hasMemory {
		memory = int64(e.aliasCore(coreMemory, main, MemoryExport))
	}
	if hasRealloc {
		realloc = int64(e.aliasCore(coreFunc, main, engine.ReallocExport))
	}

	if len(slots) > 0 {
		table := e.aliasCore(coreTable, shim, importsTable)
		b := appendName(nil, importsTable)
		b = append(b, coreTable)
		fixups := [][]byte{appendU32(b, table)}
		for _, l := range plan {
			if l.slot < 0 {
				continue
			}
			f := e.componentFunc(l.imp)
			var opts canonOptions
			opts.add(optUTF8)
			if memory >= 0 {
				opts.add(optMemory, uint32(memory))
			}
			if realloc >= 0 && needsImportAlloc(l.imp.Type) {
				opts.add(optRealloc, uint32(realloc))
			}
			lower := appendU32([]byte{0x01, 0x00}, f)
			e.s.item(sectionCanon, append(lower, opts.bytes()...))
			b := appendName(nil, strconv.Itoa(l.slot))
			b = append(b, coreFunc)
			fixups = append(fixups, appendU32(b, e.nextCoreFunc()))
		}
		arg := appendName(nil, "")
		arg = append(arg, coreInstance)
		e.instantiate(fixupModule, [][]byte{appendU32(arg, e.fromExports(fixups))})
	}

	lifted := make(map[string]uint32, len(w.Exports))
	for _, exp := range w.Exports {
		if !e.coreExports(wasm.ExternTypeFunc, exp.Name) {
			return fmt.Errorf("export %s is not exported by the core module", exp.Name)
		}
		cf := e.aliasCore(coreFunc, main, exp.Name)

		var opts canonOptions
		sig := transcoder.ExportSignature(exp.Type.ParamTypes(), exp.Type.Results)
		if usesMemory(exp.Type, sig) {
			opts.add(optUTF8)
			if memory >= 0 {
				opts.add(optMemory, uint32(memory))
			}
			if realloc >= 0 && needsExportAlloc(exp.Type, sig) {
				opts.add(optRealloc, uint32(realloc))
			}
		}
		if post := PostReturnPrefix + exp.Name; e.coreExports(wasm.ExternTypeFunc, post) {
			opts.add(optPostReturn, e.aliasCore(coreFunc, main, post))
		}

		t, err := e.types.funcTypeIndex(exp.Type)
		if err != nil {
			return fmt.Errorf("%s: %w", exp.Name, err)
		}
		lift := appendU32([]byte{0x00, 0x00}, cf)
		lift = append(lift, opts.bytes()...)
		e.s.item(sectionCanon, appendU32(lift, t))
		lifted[exp.Name] = e.funcs
		e.funcs++
	}

	for _, g := range groupExports(w.Exports) {
		if g.iface == "" {
			b := appendExternName(nil, g.funcs[0].name)
			b = append(b, externFunc)
			b = appendU32(b, lifted[g.funcs[0].name])
			e.s.item(sectionExport, append(b, 0x00))
			e.funcs++
			continue
		}
		b := appendU32([]byte{0x01}, uint32(len(g.funcs)))
		for _, f := range g.funcs {
			b = appendExternName(b, f.name)
			b = append(b, externFunc)
			b = appendU32(b, lifted[g.iface+"#"+f.name])
		}
		e.s.item(sectionInstance, b)
		inst := e.compInstances
		e.compInstances++

		exp := appendExternName(nil, g.iface)
		exp = append(exp, externInstance)
		exp = appendU32(exp, inst)
		e.s.item(sectionExport, append(exp, 0x00))
		e.compInstances++
	}

	sub := appendName(nil, w.Name)
	name := appendName(nil, NameSection)
	name = append(name, 0x00)
	name = appendU32(name, uint32(len(sub)))
	e.s.section(sectionCustom, append(name, sub...))
	return nil
}

func (e *encoder) coreExports(kind wasm.ExternType, name string) bool {
	for _, exp := range e.mod.ExportSection {
		if exp.Type == kind && exp.Name == name {
			return true
		}
	}
	return false
}

func (e *encoder) nextCoreFunc() uint32 {
	e.coreFuncs++
	return e.coreFuncs - 1
}

// componentFunc returns the component function an import is lowered from,
// aliasing it out of its interface instance when needed.
func (e *encoder) componentFunc(imp Import) uint32 {
	if imp.Interface == "" {
		return e.rootFuncs[imp.Name]
	}
	b := []byte{externFunc, 0x00}
	b = appendU32(b, e.instances[imp.Interface])
	e.s.item(sectionAlias, appendName(b, imp.Name))
	e.funcs++
	return e.funcs - 1
}

func (e *encoder) aliasType(inst uint32, name string) uint32 {
	b := appendU32([]byte{externType, 0x00}, inst)
	e.s.item(sectionAlias, appendName(b, name))
	return e.types.bump()
}

func (e *encoder) aliasCore(sort byte, inst uint32, name string) uint32 {
	b := appendU32([]byte{sortCore, sort, 0x01}, inst)
	e.s.item(sectionAlias, appendName(b, name))
	var n *uint32
	switch sort {
	case coreMemory:
		n = &e.coreMemories
	case coreTable:
		n = &e.coreTables
	default:
		n = &e.coreFuncs
	}
	*n++
	return *n - 1
}

func (e *encoder) instantiate(module uint32, args [][]byte) uint32 {
	b := appendU32([]byte{0x00}, module)
	e.s.item(sectionCoreInstance, appendVec(b, args))
	e.coreInstances++
	return e.coreInstances - 1
}

func (e *encoder) fromExports(items [][]byte) uint32 {
	e.s.item(sectionCoreInstance, appendVec([]byte{0x01}, items))
	e.coreInstances++
	return e.coreInstances - 1
}

type canonOptions struct {
	b []byte
	n uint32
}

func (o *canonOptions) add(opt byte, idx ...uint32) {
	o.b = append(o.b, opt)
	for _, i := range idx {
		o.b = appendU32(o.b, i)
	}
	o.n++
}

func (o *canonOptions) bytes() []byte {
	return append(appendU32(nil, o.n), o.b...)
}

func appendVec(b []byte, items [][]byte) []byte {
	b = appendU32(b, uint32(len(items)))
	for _, it := range items {
		b = append(b, it...)
	}
	return b
}

func isDrop(imp Import) bool {
	return strings.HasPrefix(imp.Name, ResourceDropPrefix)
}

// droppedResource returns the resource a [resource-drop] function takes.
func droppedResource(ft *FuncType) (*wit.TypeDef, error) {
	if len(ft.Params) == 1 && len(ft.Results) == 0 {
		if td, ok := ft.Params[0].Type.(*wit.TypeDef); ok {
			if own, ok := td.Kind.(*wit.Own); ok {
				if res := resourceOf(own.Type); res != nil && res.Name != nil {
					return res, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("resource drop must take one own handle, got %s", ft)
}

// shimBinary builds a core module exporting a funcref table and, per slot,
// a function that calls through the table at that slot.
func shimBinary(sigs []*wasm.FunctionType) []byte {
	m := &wasm.Module{}
	n := uint32(len(sigs))
	m.TableSection = []*wasm.Table{{Min: n, Max: &n, Type: wasm.RefTypeFuncref}}
	for k, sig := range sigs {
		ti := coreTypeIndex(m, sig)
		var body []byte
		for p := range sig.Params {
			body = appendU32(append(body, wasm.OpcodeLocalGet), uint32(p))
		}
		body = append(append(body, wasm.OpcodeI32Const), leb128.EncodeInt32(int32(k))...)
		body = appendU32(append(body, wasm.OpcodeCallIndirect), ti)
		body = append(body, 0x00, wasm.OpcodeEnd)

		m.FunctionSection = append(m.FunctionSection, ti)
		m.CodeSection = append(m.CodeSection, &wasm.Code{Body: body})
		m.ExportSection = append(m.ExportSection, &wasm.Export{Type: wasm.ExternTypeFunc, Name: strconv.Itoa(k), Index: wasm.Index(k)})
	}
	m.ExportSection = append(m.ExportSection, &wasm.Export{Type: wasm.ExternTypeTable, Name: importsTable})
	return binary.EncodeModule(m)
}

// fixupBinary builds a core module that imports the shim's table and the
// lowered functions and fills the table when instantiated.
func fixupBinary(sigs []*wasm.FunctionType) []byte {
	m := &wasm.Module{}
	n := uint32(len(sigs))
	init := make([]*wasm.Index, n)
	for k, sig := range sigs {
		m.ImportSection = append(m.ImportSection, &wasm.Import{
			Type:     wasm.ExternTypeFunc,
			Name:     strconv.Itoa(k),
			DescFunc: coreTypeIndex(m, sig),
		})
		idx := wasm.Index(k)
		init[k] = &idx
	}
	m.ImportSection = append(m.ImportSection, &wasm.Import{
		Type:      wasm.ExternTypeTable,
		Name:      importsTable,
		DescTable: &wasm.Table{Min: n, Max: &n, Type: wasm.RefTypeFuncref},
	})
	m.ElementSection = []*wasm.ElementSegment{{
		OffsetExpr: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: leb128.EncodeInt32(0)},
		Init:       init,
		Type:       wasm.RefTypeFuncref,
		Mode:       wasm.ElementModeActive,
	}}
	return binary.EncodeModule(m)
}

func coreTypeIndex(m *wasm.Module, sig *wasm.FunctionType) wasm.Index {
	for i, t := range m.TypeSection {
		if slices.Equal(t.Params, sig.Params) && slices.Equal(t.Results, sig.Results) {
			return wasm.Index(i)
		}
	}
	m.TypeSection = append(m.TypeSection, &wasm.FunctionType{Params: sig.Params, Results: sig.Results})
	return wasm.Index(len(m.TypeSection) - 1)
}

// group is an interface's functions, or a single world-level function
// when iface is empty.
type group struct {
	iface string
	funcs []namedFunc
}

type namedFunc struct {
	typ  *FuncType
	name string
}

// groupImports groups imports by interface in order of first appearance.
func groupImports(imports []Import) []group {
	var out []group
	pos := make(map[string]int)
	for _, imp := range imports {
		f := namedFunc{name: imp.Name, typ: imp.Type}
		if imp.Interface == "" {
			out = append(out, group{funcs: []namedFunc{f}})
			continue
		}
		i, ok := pos[imp.Interface]
		if !ok {
			i = len(out)
			pos[imp.Interface] = i
			out = append(out, group{iface: imp.Interface})
		}
		out[i].funcs = append(out[i].funcs, f)
	}
	return out
}

// groupExports groups "iface#name" exports by interface.
func groupExports(exports []Export) []group {
	imports := make([]Import, len(exports))
	for i, exp := range exports {
		iface, name, ok := strings.Cut(exp.Name, "#")
		if !ok {
			iface, name = "", exp.Name
		}
		imports[i] = Import{Interface: iface, Name: name, Type: exp.Type}
	}
	return groupImports(imports)
}

// worldType encodes the component type of a world.
func worldType(w *World) ([]byte, error) {
	var decls [][]byte
	s := newTypeScope(
		func(body []byte) { decls = append(decls, append([]byte{0x01}, body...)) },
		func(name string, desc []byte) {
			decls = append(decls, append(appendExternName([]byte{0x03}, name), desc...))
		},
	)
	decl := func(kind byte, name string, sort byte, idx uint32) {
		b := appendExternName([]byte{kind}, name)
		decls = append(decls, appendU32(append(b, sort), idx))
	}

	for _, g := range groupImports(w.Imports) {
		if g.iface == "" {
			f := g.funcs[0]
			if strings.HasPrefix(f.name, ResourceDropPrefix) {
				return nil, fmt.Errorf("%s: resource drops must belong to an interface", f.name)
			}
			idx, err := s.funcTypeIndex(f.typ)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.name, err)
			}
			decl(0x03, f.name, externFunc, idx)
			continue
		}
		body, err := instanceTypeBody(g.funcs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g.iface, err)
		}
		decl(0x03, g.iface, externInstance, s.add(body))
	}

	for _, g := range groupExports(w.Exports) {
		if g.iface == "" {
			idx, err := s.funcTypeIndex(g.funcs[0].typ)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", g.funcs[0].name, err)
			}
			decl(0x04, g.funcs[0].name, externFunc, idx)
			continue
		}
		body, err := instanceTypeBody(g.funcs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g.iface, err)
		}
		decl(0x04, g.iface, externInstance, s.add(body))
	}
	return appendVec([]byte{0x41}, decls), nil
}

// instanceTypeBody encodes an interface as an instance type. Resources are
// exported from the instance; their [resource-drop] functions are implied.
func instanceTypeBody(funcs []namedFunc) ([]byte, error) {
	var decls [][]byte
	s := newTypeScope(
		func(body []byte) { decls = append(decls, append([]byte{0x01}, body...)) },
		func(name string, desc []byte) {
			decls = append(decls, append(appendExternName([]byte{0x04}, name), desc...))
		},
	)
	for _, f := range funcs {
		if strings.HasPrefix(f.name, ResourceDropPrefix) {
			res, err := droppedResource(f.typ)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.name, err)
			}
			if _, err := s.typeIndex(res); err != nil {
				return nil, err
			}
			continue
		}
		idx, err := s.funcTypeIndex(f.typ)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		b := appendExternName([]byte{0x04}, f.name)
		decls = append(decls, appendU32(append(b, externFunc), idx))
	}
	return appendVec([]byte{0x42}, decls), nil
}

// typeScope assigns type indices while encoding one index space: the
// component itself or the body of an instance or component type.
type typeScope struct {
	known map[*wit.TypeDef]uint32
	// define emits a type definition; declare emits an import or export of
	// a type. Each adds one type index.
	define  func(body []byte)
	declare func(name string, desc []byte)
	next    uint32
}

func newTypeScope(define func([]byte), declare func(string, []byte)) *typeScope {
	return &typeScope{known: make(map[*wit.TypeDef]uint32), define: define, declare: declare}
}

func (s *typeScope) bump() uint32 {
	s.next++
	return s.next - 1
}

func (s *typeScope) add(body []byte) uint32 {
	s.define(body)
	return s.bump()
}

func (s *typeScope) name(name string, desc []byte) uint32 {
	s.declare(name, desc)
	return s.bump()
}

func (s *typeScope) funcTypeIndex(ft *FuncType) (uint32, error) {
	b := []byte{0x40}
	b = appendU32(b, uint32(len(ft.Params)))
	for _, p := range ft.Params {
		vt, err := s.valType(p.Type)
		if err != nil {
			return 0, fmt.Errorf("param %s: %w", p.Name, err)
		}
		b = append(appendName(b, p.Name), vt...)
	}
	switch len(ft.Results) {
	case 0:
		b = append(b, 0x01, 0x00)
	case 1:
		vt, err := s.valType(ft.Results[0])
		if err != nil {
			return 0, fmt.Errorf("result: %w", err)
		}
		b = append(append(b, 0x00), vt...)
	default:
		return 0, fmt.Errorf("%d results; at most one is supported", len(ft.Results))
	}
	return s.add(b), nil
}

func (s *typeScope) valType(t wit.Type) ([]byte, error) {
	if b, ok := primitiveByte(t); ok {
		return []byte{b}, nil
	}
	td, ok := t.(*wit.TypeDef)
	if !ok {
		return nil, fmt.Errorf("unsupported type %T", t)
	}
	if _, isRes := td.Kind.(*wit.Resource); isRes {
		return nil, fmt.Errorf("resource %s used as a value", transcoder.TypeName(td))
	}
	idx, err := s.typeIndex(td)
	if err != nil {
		return nil, err
	}
	return leb128.EncodeInt64(int64(idx)), nil
}

func (s *typeScope) optValType(t wit.Type) ([]byte, error) {
	if t == nil {
		return []byte{0x00}, nil
	}
	vt, err := s.valType(t)
	return append([]byte{0x01}, vt...), err
}

// typeIndex defines td, and names it when it has a name, on first use.
func (s *typeScope) typeIndex(td *wit.TypeDef) (uint32, error) {
	if idx, ok := s.known[td]; ok {
		return idx, nil
	}

	var idx uint32
	switch kind := td.Kind.(type) {
	case *wit.Resource:
		if td.Name == nil {
			return 0, fmt.Errorf("resource without a name")
		}
		idx = s.name(*td.Name, []byte{externType, 0x01})
		s.known[td] = idx
		return idx, nil
	case wit.Type:
		if b, ok := primitiveByte(kind); ok {
			idx = s.add([]byte{b})
			break
		}
		inner, ok := kind.(*wit.TypeDef)
		if !ok {
			return 0, fmt.Errorf("unsupported type %T", kind)
		}
		var err error
		if idx, err = s.typeIndex(inner); err != nil {
			return 0, err
		}
	default:
		body, err := s.defValType(td.Kind)
		if err != nil {
			return 0, err
		}
		idx = s.add(body)
	}

	if td.Name != nil {
		idx = s.name(*td.Name, appendU32([]byte{externType, 0x00}, idx))
	}
	s.known[td] = idx
	return idx, nil
}

func (s *typeScope) defValType(kind wit.TypeDefKind) ([]byte, error) {
	var b []byte
	var err error
	vt := func(t wit.Type) {
		if err != nil {
			return
		}
		var v []byte
		v, err = s.valType(t)
		b = append(b, v...)
	}

	switch k := kind.(type) {
	case *wit.Record:
		b = appendU32([]byte{0x72}, uint32(len(k.Fields)))
		for _, f := range k.Fields {
			b = appendName(b, f.Name)
			vt(f.Type)
		}
	case *wit.Variant:
		b = appendU32([]byte{0x71}, uint32(len(k.Cases)))
		for _, c := range k.Cases {
			b = appendName(b, c.Name)
			if err == nil {
				var v []byte
				v, err = s.optValType(c.Type)
				b = append(b, v...)
			}
			b = append(b, 0x00)
		}
	case *wit.List:
		b = []byte{0x70}
		vt(k.Type)
	case *wit.Tuple:
		b = appendU32([]byte{0x6f}, uint32(len(k.Types)))
		for _, t := range k.Types {
			vt(t)
		}
	case *wit.Flags:
		b = appendU32([]byte{0x6e}, uint32(len(k.Flags)))
		for _, f := range k.Flags {
			b = appendName(b, f.Name)
		}
	case *wit.Enum:
		b = appendU32([]byte{0x6d}, uint32(len(k.Cases)))
		for _, c := range k.Cases {
			b = appendName(b, c.Name)
		}
	case *wit.Option:
		b = []byte{0x6b}
		vt(k.Type)
	case *wit.Result:
		b = []byte{0x6a}
		for _, t := range []wit.Type{k.OK, k.Err} {
			if err == nil {
				var v []byte
				v, err = s.optValType(t)
				b = append(b, v...)
			}
		}
	case *wit.Own:
		var idx uint32
		idx, err = s.typeIndex(k.Type)
		b = appendU32([]byte{0x69}, idx)
	case *wit.Borrow:
		var idx uint32
		idx, err = s.typeIndex(k.Type)
		b = appendU32([]byte{0x68}, idx)
	default:
		return nil, fmt.Errorf("unsupported type %T", kind)
	}
	return b, err
}

func primitiveByte(t wit.TypeDefKind) (byte, bool) {
	switch t.(type) {
	case wit.Bool:
		return 0x7f, true
	case wit.S8:
		return 0x7e, true
	case wit.U8:
		return 0x7d, true
	case wit.S16:
		return 0x7c, true
	case wit.U16:
		return 0x7b, true
	case wit.S32:
		return 0x7a, true
	case wit.U32:
		return 0x79, true
	case wit.S64:
		return 0x78, true
	case wit.U64:
		return 0x77, true
	case wit.F32:
		return 0x76, true
	case wit.F64:
		return 0x75, true
	case wit.Char:
		return 0x74, true
	case wit.String:
		return 0x73, true
	}
	return 0, false
}

// sectionWriter accumulates a component binary. Consecutive items with
// the same section id share one section.
type sectionWriter struct {
	out   []byte
	items []byte
	count uint32
	id    byte
}

func newSectionWriter() *sectionWriter {
	out := slices.Clone(wasmMagic)
	return &sectionWriter{out: append(out, componentVersion, 0x00, componentLayer, 0x00)}
}

func (s *sectionWriter) item(id byte, b []byte) {
	if s.count > 0 && s.id != id {
		s.flush()
	}
	s.id = id
	s.count++
	s.items = append(s.items, b...)
}

func (s *sectionWriter) section(id byte, payload []byte) {
	s.flush()
	s.out = append(s.out, id)
	s.out = appendU32(s.out, uint32(len(payload)))
	s.out = append(s.out, payload...)
}

func (s *sectionWriter) flush() {
	if s.count == 0 {
		return
	}
	payload := appendU32(nil, s.count)
	payload = append(payload, s.items...)
	s.count, s.items = 0, nil
	s.section(s.id, payload)
}

func (s *sectionWriter) bytes() []byte {
	s.flush()
	return s.out
}
