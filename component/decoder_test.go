package component

import (
	"context"
	stderrors "errors"
	"slices"
	"strings"
	"testing"

	"github.com/tetratelabs/wabin/binary"
	"github.com/tetratelabs/wabin/wasm"

	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/errors"
)

var preamble = []byte{0x00, 0x61, 0x73, 0x6d, componentVersion, 0x00, componentLayer, 0x00}

func sec(id byte, body []byte) []byte {
	return append(appendU32([]byte{id}, uint32(len(body))), body...)
}

// answerCore is a core module exporting a func() -> i32 returning 42.
func answerCore(export string) []byte {
	return binary.EncodeModule(&wasm.Module{
		TypeSection:     []*wasm.FunctionType{{Results: []wasm.ValueType{wasm.ValueTypeI32}}},
		FunctionSection: []wasm.Index{0},
		CodeSection:     []*wasm.Code{{Body: []byte{wasm.OpcodeI32Const, 42, wasm.OpcodeEnd}}},
		ExportSection:   []*wasm.Export{{Type: wasm.ExternTypeFunc, Name: export, Index: 0}},
	})
}

// answerComponent lifts coreExport of answerCore as "answer: func() ->
// u32". opts is the encoded canonical option vector.
func answerComponent(coreExport string, opts []byte) []byte {
	b := slices.Clone(preamble)
	b = append(b, sec(sectionCoreModule, answerCore(coreExport))...)
	b = append(b, sec(sectionCoreInstance, []byte{0x01, 0x00, 0x00, 0x00})...)
	alias := append([]byte{0x01, sortCore, coreFunc, 0x01, 0x00}, appendName(nil, coreExport)...)
	b = append(b, sec(sectionAlias, alias)...)
	b = append(b, sec(sectionType, []byte{0x01, 0x40, 0x00, 0x00, 0x79})...)
	lift := append([]byte{0x01, 0x00, 0x00, 0x00}, opts...)
	b = append(b, sec(sectionCanon, append(lift, 0x00))...)
	exp := appendExternName([]byte{0x01}, "answer")
	b = append(b, sec(sectionExport, append(exp, externFunc, 0x00, 0x00))...)
	return b
}

func loadEngine(t *testing.T) *engine.Engine {
	t.Helper()
	ctx := context.Background()
	eng, err := engine.New(ctx, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close(ctx) })
	return eng
}

func TestIsComponent(t *testing.T) {
	tests := []struct {
		name string
		bin  []byte
		want bool
	}{
		{"preamble", preamble, true},
		{"core module", answerCore("f"), false},
		{"short", preamble[:7], false},
		{"bad magic", []byte{0x00, 'w', 'a', 't', 0x0d, 0x00, 0x01, 0x00}, false},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsComponent(tt.bin); got != tt.want {
				t.Errorf("IsComponent = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoad_ComponentBinary(t *testing.T) {
	ctx := context.Background()
	eng := loadEngine(t)

	empty, err := Load(ctx, eng, preamble)
	if err != nil {
		t.Fatalf("Load empty component: %v", err)
	}
	defer empty.Close(ctx)
	if empty.Name() != defaultName || len(empty.Imports()) != 0 || len(empty.Exports()) != 0 {
		t.Errorf("empty component = %q, %d imports, %d exports", empty.Name(), len(empty.Imports()), len(empty.Exports()))
	}

	c, err := Load(ctx, eng, answerComponent("answer", []byte{0x00}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer c.Close(ctx)

	exp, ok := c.Export("answer")
	if !ok || exp.Type.String() != "func() -> u32" {
		t.Fatalf("answer = %+v, %v", exp, ok)
	}
	if _, ok := c.Compiled().ExportedFunctions()["answer"]; !ok {
		t.Error("compiled core module does not export answer")
	}
}

func TestLoad_LiftOptions(t *testing.T) {
	ctx := context.Background()
	eng := loadEngine(t)

	tests := []struct {
		name       string
		coreExport string
		opts       []byte
	}{
		{"renamed core export", "f", []byte{0x00}},
		{"utf16", "answer", []byte{0x01, optUTF16}},
		{"latin1", "answer", []byte{0x01, optLatin1}},
		{"async", "answer", []byte{0x01, optAsync}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(ctx, eng, answerComponent(tt.coreExport, tt.opts))
			if !stderrors.Is(err, errors.ErrLoadTypeMismatch) {
				t.Fatalf("got %v, want type mismatch", err)
			}
		})
	}
}

func TestLoad_MalformedComponent(t *testing.T) {
	ctx := context.Background()
	eng := loadEngine(t)

	answer := answerComponent("answer", []byte{0x00})
	withSection := func(id byte, body []byte) []byte {
		return append(slices.Clone(preamble), sec(id, body)...)
	}
	badVersion := slices.Clone(answer)
	badVersion[4] = 0x0c

	tests := []struct {
		name string
		bin  []byte
	}{
		{"bad version", badVersion},
		{"truncated", answer[:len(answer)-3]},
		{"oversized section", append(slices.Clone(preamble), sectionType, 0x7f, 0x01)},
		{"unknown section", withSection(13, []byte{0x01, 0x00})},
		{"nested component", withSection(sectionComponent, preamble)},
		{"start function", withSection(sectionStart, []byte{0x00, 0x00, 0x00})},
		{"trailing bytes", withSection(sectionType, []byte{0x00, 0x00})},
		{"lowered func out of range", withSection(sectionCanon, []byte{0x01, 0x01, 0x00, 0x00})},
		{"unknown valtype", withSection(sectionType, []byte{0x01, 0x40, 0x01, 0x01, 'a', 0x50, 0x01, 0x00})},
		{"core func out of range", withSection(sectionCanon, []byte{0x01, 0x00, 0x00, 0x05, 0x00, 0x00})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(ctx, eng, tt.bin)
			if !stderrors.Is(err, errors.ErrMalformed) {
				t.Fatalf("got %v, want malformed", err)
			}
		})
	}
}

func TestLoad_ComponentTypeSection(t *testing.T) {
	ctx := context.Background()
	eng := loadEngine(t)

	w, err := ParseWorld(`world answerer {
  import name: func() -> string;
  export answer: func() -> u32;
}`)
	if err != nil {
		t.Fatalf("ParseWorld: %v", err)
	}

	t.Run("embedded", func(t *testing.T) {
		bin, err := Embed(answerCore("answer"), w)
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
		c, err := Load(ctx, eng, bin)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		defer c.Close(ctx)
		if c.Name() != "answerer" {
			t.Errorf("Name = %q", c.Name())
		}
		// name is declared but never imported by the core module.
		if len(c.Imports()) != 0 || len(c.Exports()) != 1 {
			t.Errorf("imports=%d exports=%d", len(c.Imports()), len(c.Exports()))
		}
	})

	t.Run("several sections merge", func(t *testing.T) {
		other := &World{Name: "other", Exports: w.Exports}
		first, err := Embed(answerCore("answer"), w)
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
		bin, err := Embed(first, other)
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
		c, err := Load(ctx, eng, bin)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		defer c.Close(ctx)
		if c.Name() != "answerer" || len(c.Exports()) != 1 {
			t.Errorf("Name = %q, exports = %d", c.Name(), len(c.Exports()))
		}
	})

	t.Run("text section", func(t *testing.T) {
		bin := binary.EncodeModule(&wasm.Module{
			CustomSections: []*wasm.CustomSection{{Name: TypeSection, Data: []byte(`world w { export f: func(); }`)}},
		})
		_, err := Load(ctx, eng, bin)
		if !stderrors.Is(err, errors.ErrMalformed) {
			t.Fatalf("got %v, want malformed", err)
		}
	})

	t.Run("text via WithWorld", func(t *testing.T) {
		c, err := Load(ctx, eng, answerCore("answer"), WithWorld(`world text { export answer: func() -> u32; }`))
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		defer c.Close(ctx)
		if c.Name() != "text" {
			t.Errorf("Name = %q", c.Name())
		}
	})

	t.Run("embed into component", func(t *testing.T) {
		_, err := Embed(preamble, w)
		if !stderrors.Is(err, errors.ErrMalformed) {
			t.Fatalf("got %v, want malformed", err)
		}
	})
}

func TestEncodeWorld_RoundTrip(t *testing.T) {
	declarations, err := ParseWorld(`world app {
  type id = u64;
  enum level { low, high }
  record entry { key: string, level: level, }
  variant shape { circle(f32), square(f32), none }
  flags perms { read, write }

  import demo:store/kv@1.2.0 {
    resource bucket;
    get: func(b: borrow<bucket>, key: string) -> option<list<u8>>;
    open: func(name: string) -> result<own<bucket>, string>;
    [resource-drop]bucket: func(self: own<bucket>);
  }
  import log: interface {
    write: func(e: entry);
  }
  export lookup: func(ids: list<id>, p: perms) -> tuple<shape, bool>;
}`)
	if err != nil {
		t.Fatalf("ParseWorld: %v", err)
	}
	hello, err := ParseWorld(helloWorld)
	if err != nil {
		t.Fatalf("ParseWorld: %v", err)
	}
	ifaces := &World{
		Name: "calc",
		Exports: []Export{
			{Name: "demo:api/calc@0.1.0#add", Type: MustParseFuncType("func(a: s32, b: s32) -> s32")},
			{Name: "demo:api/calc@0.1.0#reset", Type: MustParseFuncType("func()")},
			{Name: "version", Type: MustParseFuncType("func() -> string")},
		},
	}

	for _, w := range []*World{hello, declarations, ifaces} {
		t.Run(w.Name, func(t *testing.T) {
			payload, err := EncodeWorld(w)
			if err != nil {
				t.Fatalf("EncodeWorld: %v", err)
			}
			got, err := decodeWorld(payload)
			if err != nil {
				t.Fatalf("decodeWorld: %v", err)
			}
			if got.Name != w.Name {
				t.Errorf("Name = %q, want %q", got.Name, w.Name)
			}
			assertSameWorld(t, got, w)
		})
	}
}

// assertSameWorld compares worlds by name and type. Decoded worlds may
// carry extra drops for resources an interface only uses.
func assertSameWorld(t *testing.T, got, want *World) {
	t.Helper()
	for _, imp := range got.Imports {
		if _, ok := want.importNamed(imp.QualifiedName()); !ok && !strings.HasPrefix(imp.Name, ResourceDropPrefix) {
			t.Errorf("unexpected import %s", imp.QualifiedName())
		}
	}
	for _, imp := range want.Imports {
		i := slices.IndexFunc(got.Imports, func(g Import) bool { return g.QualifiedName() == imp.QualifiedName() })
		if i < 0 {
			t.Errorf("import %s missing", imp.QualifiedName())
			continue
		}
		if !got.Imports[i].Type.Equal(imp.Type) {
			t.Errorf("import %s = %s, want %s", imp.QualifiedName(), got.Imports[i].Type, imp.Type)
		}
	}
	if len(got.Exports) != len(want.Exports) {
		t.Fatalf("got %d exports, want %d", len(got.Exports), len(want.Exports))
	}
	for _, exp := range want.Exports {
		g, ok := got.Export(exp.Name)
		if !ok {
			t.Errorf("export %s missing", exp.Name)
			continue
		}
		if !g.Type.Equal(exp.Type) {
			t.Errorf("export %s = %s, want %s", exp.Name, g.Type, exp.Type)
		}
	}
}

func TestEncode_InterfaceExports(t *testing.T) {
	ctx := context.Background()
	eng := loadEngine(t)

	const name = "demo:api/answers@0.1.0#answer"
	w := &World{Name: "answers", Exports: []Export{{Name: name, Type: MustParseFuncType("func() -> u32")}}}
	bin, err := Encode(answerCore(name), w)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !IsComponent(bin) {
		t.Fatal("Encode did not produce a component")
	}

	c, err := Load(ctx, eng, bin)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer c.Close(ctx)
	if c.Name() != "answers" {
		t.Errorf("Name = %q", c.Name())
	}
	assertSameWorld(t, c.World(), w)
}

func TestEncode_Errors(t *testing.T) {
	answer := MustParseFuncType("func() -> u32")
	tests := []struct {
		name string
		core []byte
		w    *World
	}{
		{"not a core module", []byte("nope"), &World{Name: "w"}},
		{"missing core export", answerCore("f"), &World{Name: "w", Exports: []Export{{Name: "answer", Type: answer}}}},
		{"root resource drop", answerCore("f"), &World{Name: "w", Imports: []Import{{
			Name: ResourceDropPrefix + "thing",
			Type: MustParseFuncType("func(x: u32)"),
		}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Encode(tt.core, tt.w); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestWorldName(t *testing.T) {
	tests := map[string]string{
		"root:component/hello-world":   "hello-world",
		"wasi:cli/command@0.2.0":       "command",
		"plain":                        "plain",
		"ns:pkg/":                      defaultName,
		"example:demo/app@1.0.0-rc.1": "app",
	}
	for in, want := range tests {
		if got := worldName(in); got != want {
			t.Errorf("worldName(%q) = %q, want %q", in, got, want)
		}
	}
}

func (w *World) importNamed(name string) (Import, bool) {
	for _, imp := range w.Imports {
		if imp.QualifiedName() == name {
			return imp, true
		}
	}
	return Import{}, false
}
