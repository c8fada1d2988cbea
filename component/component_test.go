package component_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/tetratelabs/wabin/wasm"
	"pgregory.net/rapid"

	"github.com/wippyai/wasm-host/component"
	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/internal/guest"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	ctx := context.Background()
	eng, err := engine.New(ctx, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close(ctx) })
	return eng
}

func TestLoad_Fixtures(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	tests := []struct {
		name    string
		bin     []byte
		world   string
		imports int
		exports int
	}{
		{"hello", guest.Hello(), "hello-world", 4, 1},
		{"calculator", guest.Calculator(), "calculator", 0, 3},
		{"out of bounds", guest.OutOfBounds(), "out-of-bounds", 0, 2},
		{"start trap", guest.StartTrap(), "start-trap", 0, 1},
		{"initialize", guest.Initialize(), "reactor", 0, 1},
		{"exit", guest.Exit(), "exiter", 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := component.Load(ctx, eng, tt.bin)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			defer c.Close(ctx)

			if c.Name() != tt.world {
				t.Errorf("Name = %q, want %q", c.Name(), tt.world)
			}
			if len(c.Imports()) != tt.imports {
				t.Errorf("imports = %d, want %d", len(c.Imports()), tt.imports)
			}
			if len(c.Exports()) != tt.exports {
				t.Errorf("exports = %d, want %d", len(c.Exports()), tt.exports)
			}
			if c.Compiled() == nil {
				t.Error("Compiled is nil")
			}
		})
	}
}

func TestLoad_Accessors(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	calc, err := component.Load(ctx, eng, guest.Calculator(), component.WithName("calc"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if calc.Name() != "calc" {
		t.Errorf("Name = %q", calc.Name())
	}
	if !calc.HasPostReturn("echo") || calc.HasPostReturn("add") {
		t.Error("only echo has a post-return function")
	}
	if !calc.HasRealloc() {
		t.Error("calculator exports cabi_realloc")
	}
	if calc.HasStart() || calc.HasInitialize() {
		t.Error("calculator has no start routines")
	}
	exp, ok := calc.Export("echo")
	if !ok || exp.Type.String() != "func(s: string) -> string" {
		t.Errorf("echo = %+v, %v", exp, ok)
	}
	if _, ok := calc.Export("missing"); ok {
		t.Error("unexpected export")
	}

	start, err := component.Load(ctx, eng, guest.StartTrap())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !start.HasStart() {
		t.Error("HasStart = false")
	}

	reactor, err := component.Load(ctx, eng, guest.Initialize())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reactor.HasInitialize() {
		t.Error("HasInitialize = false")
	}
}

func TestLoad_Malformed(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	invalid := (&guest.Module{
		World: `world w { export f: func() -> u32; }`,
		Funcs: []guest.Func{
			{Export: "f", Sig: guest.Sig{Results: []wasm.ValueType{wasm.ValueTypeI32}}, Body: new(guest.Code).Body()},
		},
	}).Encode()

	tests := []struct {
		name string
		bin  []byte
		opts []component.Option
	}{
		{"empty", nil, nil},
		{"garbage", []byte("definitely not wasm"), nil},
		{"truncated", guest.Hello()[:20], nil},
		{"no world section", (&guest.Module{}).Encode(), nil},
		{"bad world text", guest.Calculator(), []component.Option{component.WithWorld("world {")}},
		{"fails validation", invalid, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := component.Load(ctx, eng, tt.bin, tt.opts...)
			if !stderrors.Is(err, errors.ErrMalformed) {
				t.Fatalf("got %v, want malformed", err)
			}
		})
	}
}

func TestLoad_TypeMismatch(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	i32 := wasm.ValueTypeI32
	nameImport := guest.Import{Module: component.RootModule, Name: "name", Sig: guest.Sig{Params: []wasm.ValueType{i32}}}

	tests := []struct {
		name     string
		bin      []byte
		world    string
		wantName string
	}{
		{
			name:     "export signature",
			bin:      guest.Calculator(),
			world:    `world c { export add: func(a: s64, b: s32) -> s32; }`,
			wantName: "add",
		},
		{
			name:     "missing export",
			bin:      guest.Calculator(),
			world:    `world c { export sub: func(a: s32, b: s32) -> s32; }`,
			wantName: "sub",
		},
		{
			name:     "undeclared core import",
			bin:      guest.Exit(),
			world:    `world e { export succeed: func(); }`,
			wantName: "wasi:cli/exit@0.2.0#exit",
		},
		{
			name:     "declared import not imported",
			bin:      guest.Calculator(),
			world:    `world c { import name: func() -> string; export add: func(a: s32, b: s32) -> s32; }`,
			wantName: "name",
		},
		{
			name:     "import signature",
			bin:      guest.Exit(),
			world:    `world e { import wasi:cli/exit@0.2.0 { exit: func(status: u64); } }`,
			wantName: "wasi:cli/exit@0.2.0#exit",
		},
		{
			name: "heap result without realloc",
			bin: (&guest.Module{
				World:       `world w { import name: func() -> string; }`,
				Imports:     []guest.Import{nameImport},
				MemoryPages: 1,
			}).Encode(),
			wantName: "name",
		},
		{
			name: "heap result without memory",
			bin: (&guest.Module{
				World:   `world w { import name: func() -> string; }`,
				Imports: []guest.Import{nameImport},
			}).Encode(),
			wantName: "name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []component.Option
			if tt.world != "" {
				opts = append(opts, component.WithWorld(tt.world))
			}
			_, err := component.Load(ctx, eng, tt.bin, opts...)
			if !stderrors.Is(err, errors.ErrLoadTypeMismatch) {
				t.Fatalf("got %v, want type mismatch", err)
			}
			var e *errors.Error
			if stderrors.As(err, &e) && e.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", e.Name, tt.wantName)
			}
		})
	}
}

func TestLoad_WithWorldSubset(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	// Exports missing from the world are simply not callable.
	c, err := component.Load(ctx, eng, guest.Calculator(), component.WithWorld(`world c { export add: func(x: s32, y: s32) -> s32; }`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := c.Export("echo"); ok {
		t.Error("echo should not be declared")
	}
}

func TestLoad_Deterministic(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	for _, bin := range [][]byte{guest.Hello(), guest.Calculator(), guest.Exit()} {
		a, errA := component.Load(ctx, eng, bin)
		b, errB := component.Load(ctx, eng, bin)
		if errA != nil || errB != nil {
			t.Fatalf("Load: %v, %v", errA, errB)
		}
		if a.Name() != b.Name() || len(a.Imports()) != len(b.Imports()) {
			t.Fatalf("loads differ")
		}
		for i := range a.Imports() {
			ia, ib := a.Imports()[i], b.Imports()[i]
			if ia.QualifiedName() != ib.QualifiedName() || !ia.Type.Equal(ib.Type) {
				t.Errorf("import %d differs: %s vs %s", i, ia.QualifiedName(), ib.QualifiedName())
			}
		}
	}

	rapid.Check(t, func(t *rapid.T) {
		bin := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "bin")
		_, errA := component.Load(ctx, eng, bin)
		_, errB := component.Load(ctx, eng, bin)
		kindA, _ := errors.KindOf(errA)
		kindB, _ := errors.KindOf(errB)
		if (errA == nil) != (errB == nil) || kindA != kindB {
			t.Fatalf("non-deterministic load: %v vs %v", errA, errB)
		}
	})
}

func TestLoad_EncodedTypes(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	for _, tt := range []struct {
		bin   []byte
		world string
	}{
		{guest.Hello(), guest.HelloWorld},
		{guest.Calculator(), guest.CalculatorWorld},
		{guest.Exit(), guest.ExitWorld},
	} {
		want, err := component.ParseWorld(tt.world)
		if err != nil {
			t.Fatalf("ParseWorld: %v", err)
		}
		c, err := component.Load(ctx, eng, tt.bin)
		if err != nil {
			t.Fatalf("Load %s: %v", want.Name, err)
		}
		for _, imp := range want.Imports {
			got, ok := findImport(c.Imports(), imp.QualifiedName())
			if !ok || !got.Type.Equal(imp.Type) {
				t.Errorf("%s: import %s = %v, want %s", want.Name, imp.QualifiedName(), got.Type, imp.Type)
			}
		}
		for _, exp := range want.Exports {
			got, ok := c.Export(exp.Name)
			if !ok || !got.Type.Equal(exp.Type) {
				t.Errorf("%s: export %s = %v, want %s", want.Name, exp.Name, got.Type, exp.Type)
			}
		}
		_ = c.Close(ctx)
	}
}

func TestLoad_AccessorsReturnCopies(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	c, err := component.Load(ctx, eng, guest.Hello())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer c.Close(ctx)

	imports := c.Imports()
	imports[0].Name = "changed"
	imports[0].Type.Params = append(imports[0].Type.Params, component.Param{Name: "x"})

	exports := c.Exports()
	exports[0].Type.Results = nil
	exports[0].Name = "changed"

	w := c.World()
	w.Name = "changed"
	w.Imports = w.Imports[:1]
	w.Exports[0].Name = "changed"

	exp, _ := c.Export("greet")
	exp.Type.Params = append(exp.Type.Params, component.Param{Name: "y"})

	if got := c.Imports()[0]; got.Name != "name" || len(got.Type.Params) != 0 {
		t.Errorf("import mutated through accessor: %s %s", got.Name, got.Type)
	}
	if got, ok := c.Export("greet"); !ok || got.Type.String() != "func()" {
		t.Errorf("export mutated through accessor: %v %v", got.Type, ok)
	}
	if got := c.World(); got.Name != "hello-world" || len(got.Imports) != 4 || got.Exports[0].Name != "greet" {
		t.Errorf("world mutated through accessor: %s, %d imports, export %s", got.Name, len(got.Imports), got.Exports[0].Name)
	}
}

func findImport(imports []component.Import, name string) (component.Import, bool) {
	for _, imp := range imports {
		if imp.QualifiedName() == name {
			return imp, true
		}
	}
	return component.Import{}, false
}
