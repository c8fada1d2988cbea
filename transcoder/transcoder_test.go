package transcoder

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/errors"
)

// memoryModule is a core module exporting one page of memory.
var memoryModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x05, 0x03, 0x01, 0x00, 0x01,
	0x07, 0x0a, 0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
}

func newContext(t *testing.T) *Context {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = r.Close(ctx) })

	mod, err := r.Instantiate(ctx, memoryModule)
	if err != nil {
		t.Fatalf("instantiate memory module: %v", err)
	}

	next := uint32(1024)
	alloc := wasmhost.AllocatorFunc(func(_ context.Context, size, align uint32) (uint32, error) {
		ptr := alignTo(next, align)
		next = ptr + size
		return ptr, nil
	})
	return &Context{Memory: mod.Memory(), Alloc: alloc}
}

func list(t wit.Type) *wit.TypeDef        { return &wit.TypeDef{Kind: &wit.List{Type: t}} }
func option(t wit.Type) *wit.TypeDef      { return &wit.TypeDef{Kind: &wit.Option{Type: t}} }
func result(ok, err wit.Type) *wit.TypeDef { return &wit.TypeDef{Kind: &wit.Result{OK: ok, Err: err}} }
func tuple(ts ...wit.Type) *wit.TypeDef    { return &wit.TypeDef{Kind: &wit.Tuple{Types: ts}} }

var openFlags = &wit.TypeDef{Kind: &wit.Flags{Flags: []wit.Flag{
	{Name: "create"}, {Name: "directory"}, {Name: "exclusive"}, {Name: "truncate"},
}}}

func TestLayoutOf(t *testing.T) {
	tests := []struct {
		name string
		typ  wit.Type
		want Info
	}{
		{"bool", wit.Bool{}, Info{1, 1}},
		{"u16", wit.U16{}, Info{2, 2}},
		{"char", wit.Char{}, Info{4, 4}},
		{"f64", wit.F64{}, Info{8, 8}},
		{"string", wit.String{}, Info{8, 4}},
		{"list", list(wit.U64{}), Info{8, 4}},
		{"option<u8>", option(wit.U8{}), Info{2, 1}},
		{"option<u64>", option(wit.U64{}), Info{16, 8}},
		{"result<_, string>", result(nil, wit.String{}), Info{12, 4}},
		{"result", result(nil, nil), Info{1, 1}},
		{"tuple<u8, u32>", tuple(wit.U8{}, wit.U32{}), Info{8, 4}},
		{"record", &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{
			{Name: "a", Type: wit.U8{}},
			{Name: "b", Type: wit.U16{}},
			{Name: "c", Type: wit.U8{}},
		}}}, Info{6, 2}},
		{"enum", &wit.TypeDef{Kind: &wit.Enum{Cases: []wit.EnumCase{{Name: "a"}, {Name: "b"}}}}, Info{1, 1}},
		{"own", &wit.TypeDef{Kind: &wit.Own{}}, Info{4, 4}},
		{"flags", openFlags, Info{1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LayoutOf(tt.typ); got != tt.want {
				t.Errorf("LayoutOf = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFlatten(t *testing.T) {
	i32, i64, f32, f64 := api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64

	tests := []struct {
		name string
		typ  wit.Type
		want []api.ValueType
	}{
		{"u8", wit.U8{}, []api.ValueType{i32}},
		{"s64", wit.S64{}, []api.ValueType{i64}},
		{"f32", wit.F32{}, []api.ValueType{f32}},
		{"string", wit.String{}, []api.ValueType{i32, i32}},
		{"option<f64>", option(wit.F64{}), []api.ValueType{i32, f64}},
		{"result<u32, f32>", result(wit.U32{}, wit.F32{}), []api.ValueType{i32, i32}},
		{"result<u64, f32>", result(wit.U64{}, wit.F32{}), []api.ValueType{i32, i64}},
		{"result<_, string>", result(nil, wit.String{}), []api.ValueType{i32, i32, i32}},
		{"tuple<u8, f64>", tuple(wit.U8{}, wit.F64{}), []api.ValueType{i32, f64}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Flatten(tt.typ)); diff != "" {
				t.Errorf("Flatten mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSignatures(t *testing.T) {
	i32 := api.ValueTypeI32

	t.Run("import returning string uses retptr", func(t *testing.T) {
		sig := ImportSignature(nil, []wit.Type{wit.String{}})
		if !sig.IndirectResults {
			t.Fatal("expected indirect results")
		}
		if !sig.Equal([]api.ValueType{i32}, nil) {
			t.Errorf("got %s", FormatCore(sig.Params, sig.Results))
		}
	})

	t.Run("export returning string returns pointer", func(t *testing.T) {
		sig := ExportSignature([]wit.Type{wit.String{}}, []wit.Type{wit.String{}})
		if !sig.Equal([]api.ValueType{i32, i32}, []api.ValueType{i32}) {
			t.Errorf("got %s", FormatCore(sig.Params, sig.Results))
		}
	})

	t.Run("no params no results", func(t *testing.T) {
		sig := ExportSignature(nil, nil)
		if !sig.Equal(nil, nil) {
			t.Errorf("got %s", FormatCore(sig.Params, sig.Results))
		}
	})

	t.Run("too many params go indirect", func(t *testing.T) {
		params := make([]wit.Type, 9)
		for i := range params {
			params[i] = wit.String{}
		}
		sig := ImportSignature(params, []wit.Type{wit.U32{}})
		if !sig.IndirectParams || !sig.Equal([]api.ValueType{i32}, []api.ValueType{i32}) {
			t.Errorf("got %+v", sig)
		}
	})
}

func TestFormatCore(t *testing.T) {
	got := FormatCore([]api.ValueType{api.ValueTypeI32, api.ValueTypeI64}, []api.ValueType{api.ValueTypeF32})
	if got != "(i32, i64) -> (f32)" {
		t.Errorf("FormatCore = %q", got)
	}
}

func TestTypeName(t *testing.T) {
	name := "output-stream"
	res := &wit.TypeDef{Name: &name, Kind: &wit.Resource{}}

	tests := []struct {
		typ  wit.Type
		want string
	}{
		{wit.String{}, "string"},
		{list(wit.U8{}), "list<u8>"},
		{option(wit.Char{}), "option<char>"},
		{result(nil, nil), "result"},
		{result(wit.U32{}, nil), "result<u32>"},
		{result(nil, wit.String{}), "result<_, string>"},
		{tuple(wit.U8{}, wit.S64{}), "tuple<u8, s64>"},
		{&wit.TypeDef{Kind: &wit.Own{Type: res}}, "own<output-stream>"},
		{&wit.TypeDef{Kind: &wit.Borrow{Type: res}}, "borrow<output-stream>"},
	}

	for _, tt := range tests {
		if got := TypeName(tt.typ); got != tt.want {
			t.Errorf("TypeName = %q, want %q", got, tt.want)
		}
	}
}

func TestEqual(t *testing.T) {
	a, b := "a", "b"
	resA := &wit.TypeDef{Name: &a, Kind: &wit.Resource{}}
	resB := &wit.TypeDef{Name: &b, Kind: &wit.Resource{}}
	alias := &wit.TypeDef{Name: &a, Kind: wit.U32{}}

	tests := []struct {
		name string
		x, y wit.Type
		want bool
	}{
		{"same primitive", wit.U32{}, wit.U32{}, true},
		{"different primitive", wit.U32{}, wit.S32{}, false},
		{"nil vs nil", nil, nil, true},
		{"nil vs type", nil, wit.U8{}, false},
		{"structural list", list(wit.String{}), list(wit.String{}), true},
		{"list element differs", list(wit.String{}), list(wit.U8{}), false},
		{"alias is transparent", alias, wit.U32{}, true},
		{"result err differs", result(nil, wit.String{}), result(nil, wit.U32{}), false},
		{"own same resource", &wit.TypeDef{Kind: &wit.Own{Type: resA}}, &wit.TypeDef{Kind: &wit.Own{Type: resA}}, true},
		{"own different resource", &wit.TypeDef{Kind: &wit.Own{Type: resA}}, &wit.TypeDef{Kind: &wit.Own{Type: resB}}, false},
		{"own vs borrow", &wit.TypeDef{Kind: &wit.Own{Type: resA}}, &wit.TypeDef{Kind: &wit.Borrow{Type: resA}}, false},
		{"primitive vs typedef", wit.String{}, list(wit.U8{}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.x, tt.y); got != tt.want {
				t.Errorf("Equal = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStoreLoad(t *testing.T) {
	ctx := context.Background()
	stream := &wit.TypeDef{Kind: &wit.Variant{Cases: []wit.Case{
		{Name: "last-operation-failed", Type: wit.U32{}},
		{Name: "closed"},
	}}}
	record := &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{
		{Name: "path", Type: wit.String{}},
		{Name: "size", Type: wit.U64{}},
		{Name: "ok", Type: wit.Bool{}},
	}}}

	tests := []struct {
		name  string
		typ   wit.Type
		value any
	}{
		{"string", wit.String{}, "Hello, me!"},
		{"empty string", wit.String{}, ""},
		{"bytes", list(wit.U8{}), []byte{1, 2, 3}},
		{"list of strings", list(wit.String{}), []any{"a", "bc"}},
		{"option some", option(wit.S16{}), Some(int16(-7))},
		{"option none", option(wit.S16{}), None()},
		{"result ok", result(wit.U32{}, stream), OK(uint32(9))},
		{"result err variant", result(nil, stream), Err(Variant{Case: "closed"})},
		{"variant payload", stream, Variant{Case: "last-operation-failed", Value: uint32(3)}},
		{"record", record, map[string]any{"path": "/a", "size": uint64(42), "ok": true}},
		{"tuple", tuple(wit.Char{}, wit.F64{}), []any{'é', 1.5}},
		{"flags", openFlags, uint32(0b1001)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cx := newContext(t)
			ptr := uint32(64)
			if err := cx.Store(ctx, tt.typ, tt.value, ptr, nil); err != nil {
				t.Fatalf("Store: %v", err)
			}
			got, err := cx.Load(tt.typ, ptr, nil)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if diff := cmp.Diff(tt.value, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLowerLiftFlat_VariantJoin(t *testing.T) {
	ctx := context.Background()
	cx := newContext(t)
	typ := result(wit.U64{}, wit.F32{})

	flat, err := cx.LowerFlat(ctx, typ, Err(float32(2.5)), nil)
	if err != nil {
		t.Fatalf("LowerFlat: %v", err)
	}
	if len(flat) != 2 || flat[0] != 1 {
		t.Fatalf("flat = %v", flat)
	}

	got, rest, err := cx.LiftFlat(typ, append(flat, 99), nil)
	if err != nil {
		t.Fatalf("LiftFlat: %v", err)
	}
	if diff := cmp.Diff(Err(float32(2.5)), got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if len(rest) != 1 || rest[0] != 99 {
		t.Errorf("rest = %v", rest)
	}
}

func TestLowerResults_Retptr(t *testing.T) {
	ctx := context.Background()
	cx := newContext(t)
	types := []wit.Type{wit.String{}}

	flat, err := cx.LowerResults(ctx, types, []any{"me"}, 128)
	if err != nil {
		t.Fatalf("LowerResults: %v", err)
	}
	if flat != nil {
		t.Fatalf("expected no flat results, got %v", flat)
	}

	got, err := cx.LiftResults(types, []uint64{128})
	if err != nil {
		t.Fatalf("LiftResults: %v", err)
	}
	if diff := cmp.Diff([]any{"me"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestLowerParams_Coercion(t *testing.T) {
	ctx := context.Background()
	cx := newContext(t)
	types := []wit.Type{wit.U8{}, wit.S32{}, wit.U64{}}

	flat, err := cx.LowerParams(ctx, types, []any{200, -1, 7})
	if err != nil {
		t.Fatalf("LowerParams: %v", err)
	}
	want := []uint64{200, 0xffffffff, 7}
	if diff := cmp.Diff(want, flat); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	vals, err := cx.LiftParams(types, flat)
	if err != nil {
		t.Fatalf("LiftParams: %v", err)
	}
	if diff := cmp.Diff([]any{uint8(200), int32(-1), uint64(7)}, vals); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestLowerErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		typ   wit.Type
		value any
		kind  errors.Kind
	}{
		{"overflow", wit.U8{}, 256, errors.KindTypeMismatch},
		{"negative unsigned", wit.U32{}, -1, errors.KindTypeMismatch},
		{"wrong go type", wit.String{}, 42, errors.KindTypeMismatch},
		{"surrogate char", wit.Char{}, rune(0xD800), errors.KindTypeMismatch},
		{"invalid utf8", wit.String{}, string([]byte{0xff, 0xfe}), errors.KindInvalidUTF8},
		{"unknown case", &wit.TypeDef{Kind: &wit.Enum{Cases: []wit.EnumCase{{Name: "a"}}}}, "b", errors.KindInvalidData},
		{"flag out of range", openFlags, 16, errors.KindTypeMismatch},
		{"missing field", &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{{Name: "x", Type: wit.U8{}}}}}, map[string]any{}, errors.KindInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cx := newContext(t)
			_, err := cx.LowerFlat(ctx, tt.typ, tt.value, nil)
			if kind, _ := errors.KindOf(err); kind != tt.kind {
				t.Fatalf("LowerFlat error = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestLowerWithoutAllocator(t *testing.T) {
	cx := newContext(t)
	cx.Alloc = nil

	_, err := cx.LowerFlat(context.Background(), wit.String{}, "x", nil)
	if kind, _ := errors.KindOf(err); kind != errors.KindAllocation {
		t.Fatalf("error = %v, want allocation", err)
	}

	flat, err := cx.LowerFlat(context.Background(), wit.String{}, "", nil)
	if err != nil {
		t.Fatalf("empty string should not allocate: %v", err)
	}
	if flat[1] != 0 {
		t.Errorf("len = %d", flat[1])
	}
}

func TestLiftErrors(t *testing.T) {
	cx := newContext(t)
	size := cx.Memory.Size()

	t.Run("string out of bounds", func(t *testing.T) {
		_, _, err := cx.LiftFlat(wit.String{}, []uint64{uint64(size - 2), 16}, nil)
		if !errorsKind(err, errors.KindOutOfBounds) {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("invalid utf8", func(t *testing.T) {
		cx.Memory.Write(32, []byte{0xc3, 0x28})
		_, _, err := cx.LiftFlat(wit.String{}, []uint64{32, 2}, nil)
		if !errorsKind(err, errors.KindInvalidUTF8) {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("bad discriminant", func(t *testing.T) {
		_, _, err := cx.LiftFlat(option(wit.U8{}), []uint64{5, 0}, nil)
		if !errorsKind(err, errors.KindInvalidData) {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("invalid char", func(t *testing.T) {
		_, _, err := cx.LiftFlat(wit.Char{}, []uint64{0x110000}, nil)
		if !errorsKind(err, errors.KindInvalidData) {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("too few values", func(t *testing.T) {
		_, _, err := cx.LiftFlat(wit.String{}, []uint64{1}, nil)
		if !errorsKind(err, errors.KindInvalidData) {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("misaligned load", func(t *testing.T) {
		_, err := cx.Load(wit.U32{}, 3, nil)
		if !errorsKind(err, errors.KindInvalidData) {
			t.Fatalf("error = %v", err)
		}
	})
}

func errorsKind(err error, kind errors.Kind) bool {
	k, ok := errors.KindOf(err)
	return ok && k == kind
}
