package component

import (
	"bytes"
	"fmt"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/errors"
)

// Component preamble: "\0asm", version 0x0d and layer 1.
const (
	componentVersion = 0x0d
	componentLayer   = 0x01
)

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// Component section ids.
const (
	sectionCustom       byte = 0
	sectionCoreModule   byte = 1
	sectionCoreInstance byte = 2
	sectionCoreType     byte = 3
	sectionComponent    byte = 4
	sectionInstance     byte = 5
	sectionAlias        byte = 6
	sectionType         byte = 7
	sectionCanon        byte = 8
	sectionStart        byte = 9
	sectionImport       byte = 10
	sectionExport       byte = 11
	sectionValue        byte = 12
)

// Extern descriptor kinds. The same bytes are the component-level sorts,
// with 0x00 prefixing a core sort.
const (
	externCoreModule byte = 0x00
	externFunc       byte = 0x01
	externValue      byte = 0x02
	externType       byte = 0x03
	externComponent  byte = 0x04
	externInstance   byte = 0x05

	sortCore = externCoreModule
)

// Core sorts.
const (
	coreFunc     byte = 0x00
	coreTable    byte = 0x01
	coreMemory   byte = 0x02
	coreGlobal   byte = 0x03
	coreType     byte = 0x10
	coreModule   byte = 0x11
	coreInstance byte = 0x12
)

// Canonical options.
const (
	optUTF8       byte = 0x00
	optUTF16      byte = 0x01
	optLatin1     byte = 0x02
	optMemory     byte = 0x03
	optRealloc    byte = 0x04
	optPostReturn byte = 0x05
	optAsync      byte = 0x06
	optCallback   byte = 0x07
)

// NameSection is the custom section carrying a component's name.
const NameSection = "component-name"

// defaultName names components that carry no name.
const defaultName = "component"

// emptyModule is the core module run for components that define none.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// IsComponent reports whether bin starts with the component preamble
// rather than a core module header.
func IsComponent(bin []byte) bool {
	return len(bin) >= 8 && bytes.Equal(bin[:4], wasmMagic) &&
		bin[6] == componentLayer && bin[7] == 0x00
}

// typeDef is one entry of a type index space. Exactly one field is set.
type typeDef struct {
	val  wit.Type
	fn   *FuncType
	inst *instanceType
	comp *componentType
}

// extern is an import, an export or an item of an instance.
type extern struct {
	def  typeDef
	name string
	kind byte
	// index is the func index an instance item or export was built from,
	// or -1.
	index int
}

type instanceType struct {
	exports []extern
}

func (it *instanceType) export(name string) (extern, bool) {
	for _, e := range it.exports {
		if e.name == name {
			return e, true
		}
	}
	return extern{}, false
}

type componentType struct {
	imports []extern
	exports []extern
}

type canonOpts struct {
	memory     int64
	realloc    int64
	postReturn int64
	encoding   byte
	async      bool
}

type funcDef struct {
	typ *FuncType
	// lift is set for functions defined by canon lift.
	lift *canonLift
}

type canonLift struct {
	opts canonOpts
	core uint32
}

// coreItem is a core func or memory. Items aliased from a core instance
// export carry that instance and name; instance is -1 otherwise.
type coreItem struct {
	name     string
	instance int
}

// scope holds the component-level index spaces of a component or of the
// body of an instance or component type.
type scope struct {
	outer      *scope
	types      []typeDef
	funcs      []funcDef
	instances  []*instanceType
	components []*componentType
	depth      int
}

// decoder walks a component binary and records its index spaces.
type decoder struct {
	scope
	modules [][]byte
	// coreInstances holds the module each core instance instantiates, or
	// -1 for instances built from exports.
	coreInstances []int
	coreFuncs     []coreItem
	coreMemories  []coreItem
	imports       []extern
	exports       []extern
	name          string
	coreTables    int
	coreGlobals   int
}

// decodeComponent decodes the sections of a component binary.
func decodeComponent(bin []byte) (*decoder, error) {
	if len(bin) < 8 || !bytes.Equal(bin[:4], wasmMagic) {
		return nil, fmt.Errorf("missing wasm magic")
	}
	if !IsComponent(bin) {
		return nil, fmt.Errorf("not a component: layer %d", bin[6])
	}
	if bin[4] != componentVersion || bin[5] != 0x00 {
		return nil, fmt.Errorf("unsupported component version 0x%02x%02x", bin[5], bin[4])
	}

	d := &decoder{}
	r := getReader(bin[8:])
	defer putReader(r)

	for n := 0; r.Len() > 0; n++ {
		id, _ := r.ReadByte()
		size, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("section %d: read size: %w", n, err)
		}
		data, err := readBytes(r, size)
		if err != nil {
			return nil, fmt.Errorf("section %d: size %d exceeds remaining %d bytes", n, size, r.Len())
		}
		if err := d.section(id, data); err != nil {
			return nil, fmt.Errorf("section %d (id %d): %w", n, id, err)
		}
	}
	return d, nil
}

func (d *decoder) section(id byte, data []byte) error {
	switch id {
	case sectionCustom:
		return d.custom(data)
	case sectionCoreModule:
		d.modules = append(d.modules, data)
		return nil
	case sectionComponent:
		return fmt.Errorf("nested components are not supported")
	case sectionStart:
		return fmt.Errorf("component start functions are not supported")
	case sectionValue:
		return fmt.Errorf("value definitions are not supported")
	}

	r := getReader(data)
	defer putReader(r)

	n, err := readCount(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		switch id {
		case sectionCoreInstance:
			err = d.coreInstance(r)
		case sectionCoreType:
			err = skipCoreType(r, 0)
		case sectionInstance:
			err = d.instance(r)
		case sectionAlias:
			err = d.alias(r)
		case sectionType:
			err = d.defineType(r)
		case sectionCanon:
			err = d.canon(r)
		case sectionImport:
			err = d.importItem(r)
		case sectionExport:
			err = d.exportItem(r)
		default:
			return fmt.Errorf("unknown section id %d", id)
		}
		if err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	if r.Len() != 0 {
		return fmt.Errorf("%d trailing bytes", r.Len())
	}
	return nil
}

// custom records the component name; other custom sections are skipped.
func (d *decoder) custom(data []byte) error {
	r := getReader(data)
	defer putReader(r)

	name, err := readName(r)
	if err != nil || name != NameSection {
		return err
	}
	for r.Len() > 0 {
		id, _ := r.ReadByte()
		size, err := readU32(r)
		if err != nil {
			return err
		}
		body, err := readBytes(r, size)
		if err != nil {
			return fmt.Errorf("name subsection %d: %w", id, err)
		}
		if id != 0 {
			continue
		}
		sub := getReader(body)
		d.name, err = readName(sub)
		putReader(sub)
		if err != nil {
			return fmt.Errorf("component name: %w", err)
		}
	}
	return nil
}

func (d *decoder) coreInstance(r *bytes.Reader) error {
	kind, err := r.ReadByte()
	if err != nil {
		return err
	}
	switch kind {
	case 0x00:
		m, err := readU32(r)
		if err != nil {
			return err
		}
		if int(m) >= len(d.modules) {
			return fmt.Errorf("core module %d out of range", m)
		}
		n, err := readCount(r)
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			if _, err := readName(r); err != nil {
				return err
			}
			if err := expectByte(r, coreInstance, "instantiation argument"); err != nil {
				return err
			}
			idx, err := readU32(r)
			if err != nil {
				return err
			}
			if int(idx) >= len(d.coreInstances) {
				return fmt.Errorf("core instance %d out of range", idx)
			}
		}
		d.coreInstances = append(d.coreInstances, int(m))
	case 0x01:
		n, err := readCount(r)
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			if _, err := readName(r); err != nil {
				return err
			}
			sort, err := r.ReadByte()
			if err != nil {
				return err
			}
			idx, err := readU32(r)
			if err != nil {
				return err
			}
			if err := d.checkCore(sort, idx); err != nil {
				return err
			}
		}
		d.coreInstances = append(d.coreInstances, -1)
	default:
		return fmt.Errorf("unknown core instance kind 0x%02x", kind)
	}
	return nil
}

func (d *decoder) checkCore(sort byte, idx uint32) error {
	var n int
	switch sort {
	case coreFunc:
		n = len(d.coreFuncs)
	case coreTable:
		n = d.coreTables
	case coreMemory:
		n = len(d.coreMemories)
	case coreGlobal:
		n = d.coreGlobals
	default:
		return fmt.Errorf("core sort 0x%02x is not supported", sort)
	}
	if int(idx) >= n {
		return fmt.Errorf("core item %d of sort 0x%02x out of range", idx, sort)
	}
	return nil
}

// instance reads a component instance. Only instances bundling existing
// items are supported.
func (d *decoder) instance(r *bytes.Reader) error {
	kind, err := r.ReadByte()
	if err != nil {
		return err
	}
	if kind == 0x00 {
		return fmt.Errorf("instantiating nested components is not supported")
	}
	if kind != 0x01 {
		return fmt.Errorf("unknown instance kind 0x%02x", kind)
	}
	n, err := readCount(r)
	if err != nil {
		return err
	}
	it := &instanceType{}
	for i := uint32(0); i < n; i++ {
		name, err := readExternName(r)
		if err != nil {
			return err
		}
		sort, err := r.ReadByte()
		if err != nil {
			return err
		}
		if sort == sortCore {
			return fmt.Errorf("instance item %q: core items are not supported", name)
		}
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		e, err := d.item(name, sort, idx)
		if err != nil {
			return err
		}
		it.exports = append(it.exports, e)
	}
	d.instances = append(d.instances, it)
	return nil
}

func (d *decoder) alias(r *bytes.Reader) error {
	sort, err := r.ReadByte()
	if err != nil {
		return err
	}
	if sort != sortCore {
		return d.aliasSort(r, sort)
	}

	cs, err := r.ReadByte()
	if err != nil {
		return err
	}
	if err := expectByte(r, 0x01, "core alias target"); err != nil {
		return err
	}
	inst, err := readU32(r)
	if err != nil {
		return err
	}
	name, err := readName(r)
	if err != nil {
		return err
	}
	if int(inst) >= len(d.coreInstances) {
		return fmt.Errorf("core instance %d out of range", inst)
	}

	item := coreItem{name: name, instance: int(inst)}
	switch cs {
	case coreFunc:
		d.coreFuncs = append(d.coreFuncs, item)
	case coreMemory:
		d.coreMemories = append(d.coreMemories, item)
	case coreTable:
		d.coreTables++
	case coreGlobal:
		d.coreGlobals++
	default:
		return fmt.Errorf("core alias of sort 0x%02x is not supported", cs)
	}
	return nil
}

func (d *decoder) canon(r *bytes.Reader) error {
	op, err := r.ReadByte()
	if err != nil {
		return err
	}
	switch op {
	case 0x00:
		if err := expectByte(r, 0x00, "canon lift"); err != nil {
			return err
		}
		core, err := readU32(r)
		if err != nil {
			return err
		}
		if int(core) >= len(d.coreFuncs) {
			return fmt.Errorf("core func %d out of range", core)
		}
		opts, err := d.readOpts(r)
		if err != nil {
			return err
		}
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		t, err := d.typeAt(idx)
		if err != nil {
			return err
		}
		if t.fn == nil {
			return fmt.Errorf("type %d is not a function type", idx)
		}
		d.funcs = append(d.funcs, funcDef{typ: t.fn, lift: &canonLift{core: core, opts: opts}})
	case 0x01:
		if err := expectByte(r, 0x00, "canon lower"); err != nil {
			return err
		}
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		if _, err := d.funcAt(idx); err != nil {
			return err
		}
		if _, err := d.readOpts(r); err != nil {
			return err
		}
		d.coreFuncs = append(d.coreFuncs, coreItem{instance: -1})
	case 0x02, 0x03, 0x04, 0x07:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		if _, err := d.resourceAt(idx); err != nil {
			return err
		}
		d.coreFuncs = append(d.coreFuncs, coreItem{instance: -1})
	default:
		return fmt.Errorf("canonical function 0x%02x is not supported", op)
	}
	return nil
}

func (d *decoder) readOpts(r *bytes.Reader) (canonOpts, error) {
	opts := canonOpts{memory: -1, realloc: -1, postReturn: -1}
	n, err := readCount(r)
	if err != nil {
		return opts, err
	}
	for i := uint32(0); i < n; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return opts, err
		}
		switch b {
		case optUTF8, optUTF16, optLatin1:
			opts.encoding = b
		case optMemory, optRealloc, optPostReturn, optCallback:
			idx, err := readU32(r)
			if err != nil {
				return opts, err
			}
			if b == optMemory {
				if int(idx) >= len(d.coreMemories) {
					return opts, fmt.Errorf("core memory %d out of range", idx)
				}
				opts.memory = int64(idx)
				continue
			}
			if int(idx) >= len(d.coreFuncs) {
				return opts, fmt.Errorf("core func %d out of range", idx)
			}
			switch b {
			case optRealloc:
				opts.realloc = int64(idx)
			case optPostReturn:
				opts.postReturn = int64(idx)
			default:
				opts.async = true
			}
		case optAsync:
			opts.async = true
		default:
			return opts, fmt.Errorf("unknown canonical option 0x%02x", b)
		}
	}
	return opts, nil
}

func (d *decoder) importItem(r *bytes.Reader) error {
	name, err := readExternName(r)
	if err != nil {
		return err
	}
	e, err := d.readExternDesc(r, name)
	if err != nil {
		return fmt.Errorf("import %q: %w", name, err)
	}
	d.introduce(e)
	d.imports = append(d.imports, e)
	return nil
}

func (d *decoder) exportItem(r *bytes.Reader) error {
	name, err := readExternName(r)
	if err != nil {
		return err
	}
	sort, err := r.ReadByte()
	if err != nil {
		return err
	}
	if sort == sortCore {
		return fmt.Errorf("export %q: core module exports are not supported", name)
	}
	idx, err := readU32(r)
	if err != nil {
		return err
	}
	e, err := d.item(name, sort, idx)
	if err != nil {
		return fmt.Errorf("export %q: %w", name, err)
	}

	// Optional type ascription.
	asc, err := r.ReadByte()
	if err != nil {
		return err
	}
	switch asc {
	case 0x00:
	case 0x01:
		if _, err := d.readExternDesc(r, name); err != nil {
			return fmt.Errorf("export %q: %w", name, err)
		}
	default:
		return fmt.Errorf("export %q: unknown ascription 0x%02x", name, asc)
	}

	if sort == externFunc {
		// The exported copy is lifted the same way as its source.
		d.funcs = append(d.funcs, d.funcs[idx])
	} else {
		d.introduce(e)
	}
	d.exports = append(d.exports, e)
	return nil
}

// world assembles the world the component's imports and exports describe.
func (d *decoder) world() (*World, error) {
	name := d.name
	if name == "" {
		name = defaultName
	}
	return buildWorld(name, d.imports, d.exports)
}

// coreModule returns the core module every export is lifted from and
// checks each lift against what the runtime can call.
func (d *decoder) coreModule() ([]byte, error) {
	main := -1
	check := func(name string, idx int) error {
		if idx < 0 || idx >= len(d.funcs) || d.funcs[idx].lift == nil {
			return errors.LoadTypeMismatch(name, "export is not lifted from a core function")
		}
		lift := d.funcs[idx].lift
		cf := d.coreFuncs[lift.core]
		if cf.instance < 0 || d.coreInstances[cf.instance] < 0 {
			return errors.LoadTypeMismatch(name, "lifted function is not exported by a core module")
		}
		if cf.name != name {
			return errors.LoadTypeMismatch(name, fmt.Sprintf("lifted from core export %q", cf.name))
		}
		if err := d.checkOpts(name, lift.opts); err != nil {
			return err
		}
		m := d.coreInstances[cf.instance]
		if main >= 0 && main != m {
			return errors.Malformed("exports are lifted from more than one core module", nil)
		}
		main = m
		return nil
	}

	for _, e := range d.exports {
		switch e.kind {
		case externFunc:
			if err := check(e.name, e.index); err != nil {
				return nil, err
			}
		case externInstance:
			for _, x := range e.def.inst.exports {
				if x.kind != externFunc {
					continue
				}
				if err := check(e.name+"#"+x.name, x.index); err != nil {
					return nil, err
				}
			}
		}
	}

	if main < 0 {
		// Nothing is lifted; the main module comes first.
		if len(d.modules) == 0 {
			return emptyModule, nil
		}
		main = 0
	}
	return d.modules[main], nil
}

func (d *decoder) checkOpts(name string, o canonOpts) error {
	switch {
	case o.encoding != optUTF8:
		return errors.LoadTypeMismatch(name, "only utf8 string encoding is supported")
	case o.async:
		return errors.LoadTypeMismatch(name, "async lifts are not supported")
	case o.memory >= 0 && d.coreMemories[o.memory].name != MemoryExport:
		return errors.LoadTypeMismatch(name, fmt.Sprintf("lift uses core memory %q", d.coreMemories[o.memory].name))
	case o.realloc >= 0 && d.coreFuncs[o.realloc].name != engine.ReallocExport:
		return errors.LoadTypeMismatch(name, fmt.Sprintf("lift uses realloc %q", d.coreFuncs[o.realloc].name))
	case o.postReturn >= 0 && d.coreFuncs[o.postReturn].name != PostReturnPrefix+name:
		return errors.LoadTypeMismatch(name, fmt.Sprintf("lift uses post-return %q", d.coreFuncs[o.postReturn].name))
	}
	return nil
}

// decodeWorld decodes the world in a type-only component, the payload of a
// component-type custom section.
func decodeWorld(payload []byte) (*World, error) {
	d, err := decodeComponent(payload)
	if err != nil {
		return nil, err
	}
	if len(d.modules) > 0 {
		return nil, fmt.Errorf("type-only component contains core modules")
	}
	for _, e := range d.exports {
		if e.kind == externType && e.def.comp != nil {
			return worldOf(e.def.comp, e.name)
		}
	}
	for _, t := range d.types {
		if t.comp != nil {
			return worldOf(t.comp, d.name)
		}
	}
	return nil, fmt.Errorf("no world type")
}

// worldOf unwraps a package type, which exports its world as a component,
// and builds the world.
func worldOf(ct *componentType, name string) (*World, error) {
	for len(ct.imports) == 0 && len(ct.exports) == 1 && ct.exports[0].kind == externComponent {
		name = ct.exports[0].name
		ct = ct.exports[0].def.comp
	}
	return buildWorld(worldName(name), ct.imports, ct.exports)
}

// worldName strips the package and version from "ns:pkg/world@1.0.0".
func worldName(s string) string {
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return defaultName
	}
	return s
}

// buildWorld flattens imported and exported instances into interface
// functions. Every resource an imported instance exports gets a
// [resource-drop] import.
func buildWorld(name string, imports, exports []extern) (*World, error) {
	w := &World{Name: name}
	for _, imp := range imports {
		switch imp.kind {
		case externFunc:
			w.Imports = append(w.Imports, Import{Name: imp.name, Type: imp.def.fn})
		case externInstance:
			for _, e := range imp.def.inst.exports {
				if e.kind == externFunc {
					w.Imports = append(w.Imports, Import{Interface: imp.name, Name: e.name, Type: e.def.fn})
				}
			}
			for _, e := range imp.def.inst.exports {
				if res := resourceOf(e.def.val); e.kind == externType && res != nil {
					w.Imports = append(w.Imports, Import{
						Interface: imp.name,
						Name:      ResourceDropPrefix + e.name,
						Type:      &FuncType{Params: []Param{{Name: "self", Type: &wit.TypeDef{Kind: &wit.Own{Type: res}}}}},
					})
				}
			}
		case externType:
		default:
			return nil, fmt.Errorf("import %q: only functions, instances and types are supported", imp.name)
		}
	}

	for _, exp := range exports {
		switch exp.kind {
		case externFunc:
			w.Exports = append(w.Exports, Export{Name: exp.name, Type: exp.def.fn})
		case externInstance:
			for _, e := range exp.def.inst.exports {
				if e.kind == externFunc {
					w.Exports = append(w.Exports, Export{Name: exp.name + "#" + e.name, Type: e.def.fn})
				}
			}
		case externType:
		default:
			return nil, fmt.Errorf("export %q: only functions, instances and types are supported", exp.name)
		}
	}
	return w, nil
}

func (sc *scope) typeAt(idx uint32) (typeDef, error) {
	if int(idx) >= len(sc.types) {
		return typeDef{}, fmt.Errorf("type %d out of range", idx)
	}
	return sc.types[idx], nil
}

func (sc *scope) funcAt(idx uint32) (funcDef, error) {
	if int(idx) >= len(sc.funcs) {
		return funcDef{}, fmt.Errorf("func %d out of range", idx)
	}
	return sc.funcs[idx], nil
}

func (sc *scope) instanceAt(idx uint32) (*instanceType, error) {
	if int(idx) >= len(sc.instances) {
		return nil, fmt.Errorf("instance %d out of range", idx)
	}
	return sc.instances[idx], nil
}

func (sc *scope) componentAt(idx uint32) (*componentType, error) {
	if int(idx) >= len(sc.components) {
		return nil, fmt.Errorf("component %d out of range", idx)
	}
	return sc.components[idx], nil
}

func (sc *scope) resourceAt(idx uint32) (*wit.TypeDef, error) {
	t, err := sc.typeAt(idx)
	if err != nil {
		return nil, err
	}
	res := resourceOf(t.val)
	if res == nil {
		return nil, fmt.Errorf("type %d is not a resource", idx)
	}
	return res, nil
}

// resourceOf follows aliases to a resource definition.
func resourceOf(t wit.Type) *wit.TypeDef {
	for {
		td, ok := t.(*wit.TypeDef)
		if !ok {
			return nil
		}
		switch kind := td.Kind.(type) {
		case *wit.Resource:
			return td
		case wit.Type:
			t = kind
		default:
			return nil
		}
	}
}

// introduce adds an imported, exported or aliased item to its index space.
func (sc *scope) introduce(e extern) {
	switch e.kind {
	case externFunc:
		sc.funcs = append(sc.funcs, funcDef{typ: e.def.fn})
	case externType:
		sc.types = append(sc.types, e.def)
	case externInstance:
		sc.instances = append(sc.instances, e.def.inst)
	case externComponent:
		sc.components = append(sc.components, e.def.comp)
	}
}

// item resolves a sort index to an instance item named name.
func (sc *scope) item(name string, sort byte, idx uint32) (extern, error) {
	e := extern{name: name, kind: sort, index: -1}
	switch sort {
	case externFunc:
		f, err := sc.funcAt(idx)
		if err != nil {
			return e, err
		}
		e.def.fn = f.typ
		e.index = int(idx)
	case externType:
		t, err := sc.typeAt(idx)
		if err != nil {
			return e, err
		}
		e.def = nameType(name, t)
	case externInstance:
		it, err := sc.instanceAt(idx)
		if err != nil {
			return e, err
		}
		e.def.inst = it
	case externComponent:
		ct, err := sc.componentAt(idx)
		if err != nil {
			return e, err
		}
		e.def.comp = ct
	default:
		return e, fmt.Errorf("sort 0x%02x is not supported", sort)
	}
	return e, nil
}

// aliasSort reads a component-level alias whose sort byte was consumed.
func (sc *scope) aliasSort(r *bytes.Reader, sort byte) error {
	if sort == sortCore {
		return fmt.Errorf("core aliases are not supported in types")
	}
	target, err := r.ReadByte()
	if err != nil {
		return err
	}
	switch target {
	case 0x00:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		name, err := readName(r)
		if err != nil {
			return err
		}
		it, err := sc.instanceAt(idx)
		if err != nil {
			return err
		}
		e, ok := it.export(name)
		if !ok {
			return fmt.Errorf("instance %d has no export %q", idx, name)
		}
		if e.kind != sort {
			return fmt.Errorf("export %q of instance %d has sort 0x%02x, want 0x%02x", name, idx, e.kind, sort)
		}
		if sort == externFunc {
			sc.funcs = append(sc.funcs, funcDef{typ: e.def.fn})
			return nil
		}
		sc.introduce(e)
	case 0x02:
		count, err := readU32(r)
		if err != nil {
			return err
		}
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		o := sc
		for i := uint32(0); i < count; i++ {
			if o = o.outer; o == nil {
				return fmt.Errorf("outer alias count %d exceeds nesting", count)
			}
		}
		switch sort {
		case externType:
			t, err := o.typeAt(idx)
			if err != nil {
				return err
			}
			sc.types = append(sc.types, t)
		case externComponent:
			ct, err := o.componentAt(idx)
			if err != nil {
				return err
			}
			sc.components = append(sc.components, ct)
		default:
			return fmt.Errorf("outer alias of sort 0x%02x is not supported", sort)
		}
	default:
		return fmt.Errorf("alias target 0x%02x is not supported for sort 0x%02x", target, sort)
	}
	return nil
}

func (sc *scope) defineType(r *bytes.Reader) error {
	t, err := sc.readTypeDef(r)
	if err != nil {
		return err
	}
	sc.types = append(sc.types, t)
	return nil
}

func (sc *scope) readTypeDef(r *bytes.Reader) (typeDef, error) {
	b, err := r.ReadByte()
	if err != nil {
		return typeDef{}, err
	}
	switch b {
	case 0x40:
		fn, err := sc.readFuncType(r)
		return typeDef{fn: fn}, err
	case 0x41:
		ct, err := sc.readComponentType(r)
		return typeDef{comp: ct}, err
	case 0x42:
		it, err := sc.readInstanceType(r)
		return typeDef{inst: it}, err
	case 0x3f:
		if err := expectByte(r, 0x7f, "resource representation"); err != nil {
			return typeDef{}, err
		}
		dtor, err := r.ReadByte()
		if err != nil {
			return typeDef{}, err
		}
		switch dtor {
		case 0x00:
		case 0x01:
			if _, err := readU32(r); err != nil {
				return typeDef{}, err
			}
		default:
			return typeDef{}, fmt.Errorf("unknown resource destructor flag 0x%02x", dtor)
		}
		return typeDef{val: &wit.TypeDef{Kind: &wit.Resource{}}}, nil
	}
	if err := r.UnreadByte(); err != nil {
		return typeDef{}, err
	}
	t, err := sc.readDefValType(r)
	return typeDef{val: t}, err
}

func (sc *scope) readFuncType(r *bytes.Reader) (*FuncType, error) {
	n, err := readCount(r)
	if err != nil {
		return nil, err
	}
	ft := &FuncType{}
	for i := uint32(0); i < n; i++ {
		name, err := readName(r)
		if err != nil {
			return nil, err
		}
		t, err := sc.readValType(r)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", name, err)
		}
		ft.Params = append(ft.Params, Param{Name: name, Type: t})
	}

	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch b {
	case 0x00:
		t, err := sc.readValType(r)
		if err != nil {
			return nil, fmt.Errorf("result: %w", err)
		}
		ft.Results = []wit.Type{t}
	case 0x01:
		// Named results; only the empty list is still produced.
		n, err := readCount(r)
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < n; i++ {
			if _, err := readName(r); err != nil {
				return nil, err
			}
			t, err := sc.readValType(r)
			if err != nil {
				return nil, err
			}
			ft.Results = append(ft.Results, t)
		}
	default:
		return nil, fmt.Errorf("unknown result list kind 0x%02x", b)
	}
	return ft, nil
}

func (sc *scope) child() (*scope, error) {
	if sc.depth >= maxTypeDepth {
		return nil, fmt.Errorf("type nesting exceeds %d levels", maxTypeDepth)
	}
	return &scope{outer: sc, depth: sc.depth + 1}, nil
}

func (sc *scope) readInstanceType(r *bytes.Reader) (*instanceType, error) {
	ct, err := sc.readDecls(r, false)
	if err != nil {
		return nil, err
	}
	return &instanceType{exports: ct.exports}, nil
}

func (sc *scope) readComponentType(r *bytes.Reader) (*componentType, error) {
	return sc.readDecls(r, true)
}

// readDecls reads the declarations of an instance or component type.
// Only component types may import.
func (sc *scope) readDecls(r *bytes.Reader, imports bool) (*componentType, error) {
	inner, err := sc.child()
	if err != nil {
		return nil, err
	}
	n, err := readCount(r)
	if err != nil {
		return nil, err
	}
	ct := &componentType{}
	for i := uint32(0); i < n; i++ {
		kind, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		switch {
		case kind == 0x00:
			err = skipCoreType(r, 0)
		case kind == 0x01:
			err = inner.defineType(r)
		case kind == 0x02:
			var sort byte
			if sort, err = r.ReadByte(); err == nil {
				err = inner.aliasSort(r, sort)
			}
		case kind == 0x03 && imports, kind == 0x04:
			var name string
			var e extern
			if name, err = readExternName(r); err != nil {
				break
			}
			if e, err = inner.readExternDesc(r, name); err != nil {
				err = fmt.Errorf("%q: %w", name, err)
				break
			}
			inner.introduce(e)
			if kind == 0x03 {
				ct.imports = append(ct.imports, e)
			} else {
				ct.exports = append(ct.exports, e)
			}
		default:
			err = fmt.Errorf("unknown declaration 0x%02x", kind)
		}
		if err != nil {
			return nil, fmt.Errorf("declaration %d: %w", i, err)
		}
	}
	return ct, nil
}

func (sc *scope) readExternDesc(r *bytes.Reader, name string) (extern, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return extern{}, err
	}
	e := extern{name: name, kind: kind, index: -1}
	switch kind {
	case externCoreModule:
		if err := expectByte(r, coreModule, "module descriptor"); err != nil {
			return e, err
		}
		_, err = readU32(r)
	case externFunc:
		var idx uint32
		var t typeDef
		if idx, err = readU32(r); err != nil {
			break
		}
		if t, err = sc.typeAt(idx); err != nil {
			break
		}
		if t.fn == nil {
			err = fmt.Errorf("type %d is not a function type", idx)
		}
		e.def.fn = t.fn
	case externValue:
		var b byte
		if b, err = r.ReadByte(); err != nil {
			break
		}
		switch b {
		case 0x00:
			_, err = readU32(r)
		case 0x01:
			_, err = sc.readValType(r)
		default:
			err = fmt.Errorf("unknown value bound 0x%02x", b)
		}
	case externType:
		var b byte
		if b, err = r.ReadByte(); err != nil {
			break
		}
		switch b {
		case 0x00:
			var idx uint32
			var t typeDef
			if idx, err = readU32(r); err != nil {
				break
			}
			if t, err = sc.typeAt(idx); err == nil {
				e.def = nameType(name, t)
			}
		case 0x01:
			e.def.val = named(name, &wit.Resource{})
		default:
			err = fmt.Errorf("unknown type bound 0x%02x", b)
		}
	case externComponent:
		var idx uint32
		var t typeDef
		if idx, err = readU32(r); err != nil {
			break
		}
		if t, err = sc.typeAt(idx); err == nil && t.comp == nil {
			err = fmt.Errorf("type %d is not a component type", idx)
		}
		e.def.comp = t.comp
	case externInstance:
		var idx uint32
		var t typeDef
		if idx, err = readU32(r); err != nil {
			break
		}
		if t, err = sc.typeAt(idx); err == nil && t.inst == nil {
			err = fmt.Errorf("type %d is not an instance type", idx)
		}
		e.def.inst = t.inst
	default:
		err = fmt.Errorf("unknown extern kind 0x%02x", kind)
	}
	return e, err
}

// nameType gives a value type the name it is imported or exported under.
// Anonymous definitions take the name; named types and primitives get a
// named alias, and resources keep their identity.
func nameType(name string, t typeDef) typeDef {
	if t.val == nil {
		return t
	}
	if td, ok := t.val.(*wit.TypeDef); ok {
		if td.Name == nil {
			td.Name = &name
			return t
		}
		if *td.Name == name {
			return t
		}
		if _, isRes := td.Kind.(*wit.Resource); isRes {
			return t
		}
	}
	return typeDef{val: named(name, t.val)}
}

func (sc *scope) readValType(r *bytes.Reader) (wit.Type, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if p, ok := primitive(b); ok {
		return p, nil
	}
	if err := r.UnreadByte(); err != nil {
		return nil, err
	}
	idx, err := readS33(r)
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx > int64(^uint32(0)) {
		return nil, fmt.Errorf("invalid value type 0x%02x", b)
	}
	t, err := sc.typeAt(uint32(idx))
	if err != nil {
		return nil, err
	}
	if t.val == nil {
		return nil, fmt.Errorf("type %d is not a value type", idx)
	}
	if td, ok := t.val.(*wit.TypeDef); ok {
		if _, isRes := td.Kind.(*wit.Resource); isRes {
			return nil, fmt.Errorf("resource type %d used as a value", idx)
		}
	}
	return t.val, nil
}

func (sc *scope) readOptValType(r *bytes.Reader) (wit.Type, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch b {
	case 0x00:
		return nil, nil
	case 0x01:
		return sc.readValType(r)
	}
	return nil, fmt.Errorf("unknown optional flag 0x%02x", b)
}

func (sc *scope) readDefValType(r *bytes.Reader) (wit.Type, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if p, ok := primitive(b); ok {
		return p, nil
	}

	var kind wit.TypeDefKind
	switch b {
	case 0x72:
		rec := &wit.Record{}
		err = readVec(r, func() error {
			name, err := readName(r)
			if err != nil {
				return err
			}
			t, err := sc.readValType(r)
			rec.Fields = append(rec.Fields, wit.Field{Name: name, Type: t})
			return err
		})
		kind = rec
	case 0x71:
		v := &wit.Variant{}
		err = readVec(r, func() error {
			name, err := readName(r)
			if err != nil {
				return err
			}
			t, err := sc.readOptValType(r)
			if err != nil {
				return err
			}
			v.Cases = append(v.Cases, wit.Case{Name: name, Type: t})
			// Older encodings may carry a refinement index here.
			refines, err := r.ReadByte()
			if err == nil && refines == 0x01 {
				_, err = readU32(r)
			} else if err == nil && refines != 0x00 {
				err = fmt.Errorf("unknown case refinement 0x%02x", refines)
			}
			return err
		})
		kind = v
	case 0x70:
		var t wit.Type
		t, err = sc.readValType(r)
		kind = &wit.List{Type: t}
	case 0x6f:
		tup := &wit.Tuple{}
		err = readVec(r, func() error {
			t, err := sc.readValType(r)
			tup.Types = append(tup.Types, t)
			return err
		})
		kind = tup
	case 0x6e:
		f := &wit.Flags{}
		err = readVec(r, func() error {
			name, err := readName(r)
			f.Flags = append(f.Flags, wit.Flag{Name: name})
			return err
		})
		kind = f
	case 0x6d:
		en := &wit.Enum{}
		err = readVec(r, func() error {
			name, err := readName(r)
			en.Cases = append(en.Cases, wit.EnumCase{Name: name})
			return err
		})
		kind = en
	case 0x6b:
		var t wit.Type
		t, err = sc.readValType(r)
		kind = &wit.Option{Type: t}
	case 0x6a:
		res := &wit.Result{}
		if res.OK, err = sc.readOptValType(r); err == nil {
			res.Err, err = sc.readOptValType(r)
		}
		kind = res
	case 0x69, 0x68:
		var idx uint32
		var res *wit.TypeDef
		if idx, err = readU32(r); err == nil {
			res, err = sc.resourceAt(idx)
		}
		if b == 0x69 {
			kind = &wit.Own{Type: res}
		} else {
			kind = &wit.Borrow{Type: res}
		}
	default:
		return nil, fmt.Errorf("value type 0x%02x is not supported", b)
	}
	if err != nil {
		return nil, err
	}
	return &wit.TypeDef{Kind: kind}, nil
}

func readVec(r *bytes.Reader, fn func() error) error {
	n, err := readCount(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func primitive(b byte) (wit.Type, bool) {
	switch b {
	case 0x7f:
		return wit.Bool{}, true
	case 0x7e:
		return wit.S8{}, true
	case 0x7d:
		return wit.U8{}, true
	case 0x7c:
		return wit.S16{}, true
	case 0x7b:
		return wit.U16{}, true
	case 0x7a:
		return wit.S32{}, true
	case 0x79:
		return wit.U32{}, true
	case 0x78:
		return wit.S64{}, true
	case 0x77:
		return wit.U64{}, true
	case 0x76:
		return wit.F32{}, true
	case 0x75:
		return wit.F64{}, true
	case 0x74:
		return wit.Char{}, true
	case 0x73:
		return wit.String{}, true
	}
	return nil, false
}

// skipCoreType skips a core function or module type.
func skipCoreType(r *bytes.Reader, depth int) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	switch b {
	case 0x60:
		if err := readVec(r, func() error { return skipCoreValType(r) }); err != nil {
			return err
		}
		return readVec(r, func() error { return skipCoreValType(r) })
	case 0x50:
		if depth > 0 {
			return fmt.Errorf("nested core module type")
		}
		return readVec(r, func() error {
			decl, err := r.ReadByte()
			if err != nil {
				return err
			}
			switch decl {
			case 0x00:
				if _, err := readName(r); err != nil {
					return err
				}
				if _, err := readName(r); err != nil {
					return err
				}
				return skipImportDesc(r)
			case 0x01:
				return skipCoreType(r, depth+1)
			case 0x02:
				if _, err := r.ReadByte(); err != nil {
					return err
				}
				if err := expectByte(r, 0x01, "core outer alias"); err != nil {
					return err
				}
				if _, err := readU32(r); err != nil {
					return err
				}
				_, err := readU32(r)
				return err
			case 0x03:
				if _, err := readName(r); err != nil {
					return err
				}
				return skipImportDesc(r)
			}
			return fmt.Errorf("unknown module type declaration 0x%02x", decl)
		})
	}
	return fmt.Errorf("core type 0x%02x is not supported", b)
}

func skipCoreValType(r *bytes.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	switch b {
	case 0x7f, 0x7e, 0x7d, 0x7c, 0x7b, 0x70, 0x6f:
		return nil
	case 0x63, 0x64:
		_, err := readS33(r)
		return err
	}
	return fmt.Errorf("unknown core value type 0x%02x", b)
}

func skipImportDesc(r *bytes.Reader) error {
	kind, err := r.ReadByte()
	if err != nil {
		return err
	}
	switch kind {
	case 0x00:
		_, err = readU32(r)
	case 0x01:
		if err = skipCoreValType(r); err == nil {
			err = skipLimits(r)
		}
	case 0x02:
		err = skipLimits(r)
	case 0x03:
		if err = skipCoreValType(r); err == nil {
			_, err = r.ReadByte()
		}
	case 0x04:
		if err = expectByte(r, 0x00, "tag attribute"); err == nil {
			_, err = readU32(r)
		}
	default:
		err = fmt.Errorf("unknown import descriptor 0x%02x", kind)
	}
	return err
}

func skipLimits(r *bytes.Reader) error {
	flag, err := r.ReadByte()
	if err != nil {
		return err
	}
	if flag > 0x07 {
		return fmt.Errorf("unknown limits flag 0x%02x", flag)
	}
	if _, err := readU64(r); err != nil {
		return err
	}
	if flag&0x01 != 0 {
		_, err = readU64(r)
	}
	return err
}
