package transcoder

import (
	"context"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/errors"
)

// Context carries guest memory and the guest allocator for lifting and
// lowering values of one call.
type Context struct {
	Memory api.Memory
	Alloc  wasmhost.Allocator
}

// LowerParams lowers export arguments to core values. More than
// MaxFlatParams flat values are stored in guest memory as a tuple and
// passed by pointer.
func (c *Context) LowerParams(ctx context.Context, types []wit.Type, vals []any) ([]uint64, error) {
	sig := ExportSignature(types, nil)
	if !sig.IndirectParams {
		var flat []uint64
		for i, t := range types {
			f, err := c.LowerFlat(ctx, t, vals[i], []string{fmt.Sprintf("param%d", i)})
			if err != nil {
				return nil, err
			}
			flat = append(flat, f...)
		}
		return flat, nil
	}

	ptr, err := c.storeTuple(ctx, types, vals)
	if err != nil {
		return nil, err
	}
	return []uint64{uint64(ptr)}, nil
}

// LowerResults lowers host function results. When the results do not fit
// in MaxFlatResults they are stored at retptr and no flat values are
// returned.
func (c *Context) LowerResults(ctx context.Context, types []wit.Type, vals []any, retptr uint32) ([]uint64, error) {
	if len(vals) != len(types) {
		return nil, errors.New(errors.PhaseABI, errors.KindTypeMismatch).
			Detail("host returned %d results, want %d", len(vals), len(types)).
			Build()
	}

	sig := ImportSignature(nil, types)
	if !sig.IndirectResults {
		var flat []uint64
		for i, t := range types {
			f, err := c.LowerFlat(ctx, t, vals[i], []string{fmt.Sprintf("result%d", i)})
			if err != nil {
				return nil, err
			}
			flat = append(flat, f...)
		}
		return flat, nil
	}

	offsets := fieldOffsets(types)
	for i, t := range types {
		if err := c.Store(ctx, t, vals[i], retptr+offsets[i], []string{fmt.Sprintf("result%d", i)}); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (c *Context) storeTuple(ctx context.Context, types []wit.Type, vals []any) (uint32, error) {
	l := layoutStruct(types)
	ptr, err := c.alloc(ctx, l.Size, l.Align)
	if err != nil {
		return 0, err
	}
	offsets := fieldOffsets(types)
	for i, t := range types {
		if err := c.Store(ctx, t, vals[i], ptr+offsets[i], []string{fmt.Sprintf("param%d", i)}); err != nil {
			return 0, err
		}
	}
	return ptr, nil
}

// LowerFlat lowers v of type t to its flat core values.
func (c *Context) LowerFlat(ctx context.Context, t wit.Type, v any, path []string) ([]uint64, error) {
	switch typ := t.(type) {
	case wit.Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch(path, v, t)
		}
		if b {
			return []uint64{1}, nil
		}
		return []uint64{0}, nil
	case wit.U8, wit.U16, wit.U32, wit.U64, wit.S8, wit.S16, wit.S32, wit.S64:
		bits, err := lowerInt(t, v, path)
		if err != nil {
			return nil, err
		}
		return []uint64{bits}, nil
	case wit.F32:
		f, ok := v.(float32)
		if !ok {
			return nil, mismatch(path, v, t)
		}
		return []uint64{canonicalF32(f)}, nil
	case wit.F64:
		f, ok := v.(float64)
		if !ok {
			return nil, mismatch(path, v, t)
		}
		return []uint64{canonicalF64(f)}, nil
	case wit.Char:
		r, ok := v.(rune)
		if !ok || !validChar(r) {
			return nil, mismatch(path, v, t)
		}
		return []uint64{uint64(uint32(r))}, nil
	case wit.String:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch(path, v, t)
		}
		if !utf8.ValidString(s) {
			return nil, errors.InvalidUTF8(path, []byte(s))
		}
		ptr, n, err := c.storeBytes(ctx, []byte(s), 1)
		if err != nil {
			return nil, err
		}
		return []uint64{uint64(ptr), uint64(n)}, nil
	case *wit.TypeDef:
		return c.lowerTypeDef(ctx, typ, v, path)
	}
	return nil, errors.Unsupported(errors.PhaseABI, fmt.Sprintf("lower %T", t))
}

func (c *Context) lowerTypeDef(ctx context.Context, t *wit.TypeDef, v any, path []string) ([]uint64, error) {
	switch kind := t.Kind.(type) {
	case *wit.List:
		ptr, n, err := c.storeList(ctx, kind.Type, v, path)
		if err != nil {
			return nil, err
		}
		return []uint64{uint64(ptr), uint64(n)}, nil
	case *wit.Own, *wit.Borrow:
		h, ok := toUint(v, math.MaxUint32)
		if !ok {
			return nil, mismatch(path, v, t)
		}
		return []uint64{h}, nil
	case *wit.Flags:
		bits, err := flagBits(kind, v, path)
		if err != nil || len(kind.Flags) == 0 {
			return nil, err
		}
		return []uint64{bits}, nil
	case *wit.Record:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, mismatch(path, v, t)
		}
		var flat []uint64
		for _, f := range kind.Fields {
			fv, ok := m[f.Name]
			if !ok {
				return nil, errors.New(errors.PhaseABI, errors.KindInvalidData).
					Path(sub(path, f.Name)...).
					Detail("missing record field").
					Build()
			}
			ff, err := c.LowerFlat(ctx, f.Type, fv, sub(path, f.Name))
			if err != nil {
				return nil, err
			}
			flat = append(flat, ff...)
		}
		return flat, nil
	case *wit.Tuple:
		elems, ok := v.([]any)
		if !ok || len(elems) != len(kind.Types) {
			return nil, mismatch(path, v, t)
		}
		var flat []uint64
		for i, typ := range kind.Types {
			ff, err := c.LowerFlat(ctx, typ, elems[i], sub(path, fmt.Sprint(i)))
			if err != nil {
				return nil, err
			}
			flat = append(flat, ff...)
		}
		return flat, nil
	case *wit.Enum, *wit.Variant, *wit.Option, *wit.Result:
		cases := casesOf(t)
		disc, payload, err := caseOf(t, cases, v, path)
		if err != nil {
			return nil, err
		}
		width := len(flattenVariant(cases))
		flat := make([]uint64, 1, width)
		flat[0] = uint64(disc)
		if typ := cases[disc].Type; typ != nil {
			pf, err := c.LowerFlat(ctx, typ, payload, sub(path, cases[disc].Name))
			if err != nil {
				return nil, err
			}
			flat = append(flat, pf...)
		}
		for len(flat) < width {
			flat = append(flat, 0)
		}
		return flat, nil
	case wit.Type:
		return c.LowerFlat(ctx, kind, v, path)
	}
	return nil, errors.Unsupported(errors.PhaseABI, fmt.Sprintf("lower %T", t.Kind))
}

// Store writes v of type t into guest memory at ptr.
func (c *Context) Store(ctx context.Context, t wit.Type, v any, ptr uint32, path []string) error {
	switch typ := t.(type) {
	case wit.Bool:
		b, ok := v.(bool)
		if !ok {
			return mismatch(path, v, t)
		}
		var u uint8
		if b {
			u = 1
		}
		return c.write(path, ptr, 1, c.Memory.WriteByte(ptr, u))
	case wit.U8, wit.S8:
		bits, err := lowerInt(t, v, path)
		if err != nil {
			return err
		}
		return c.write(path, ptr, 1, c.Memory.WriteByte(ptr, uint8(bits)))
	case wit.U16, wit.S16:
		bits, err := lowerInt(t, v, path)
		if err != nil {
			return err
		}
		return c.write(path, ptr, 2, c.Memory.WriteUint16Le(ptr, uint16(bits)))
	case wit.U32, wit.S32:
		bits, err := lowerInt(t, v, path)
		if err != nil {
			return err
		}
		return c.write(path, ptr, 4, c.Memory.WriteUint32Le(ptr, uint32(bits)))
	case wit.U64, wit.S64:
		bits, err := lowerInt(t, v, path)
		if err != nil {
			return err
		}
		return c.write(path, ptr, 8, c.Memory.WriteUint64Le(ptr, bits))
	case wit.F32:
		f, ok := v.(float32)
		if !ok {
			return mismatch(path, v, t)
		}
		return c.write(path, ptr, 4, c.Memory.WriteUint32Le(ptr, uint32(canonicalF32(f))))
	case wit.F64:
		f, ok := v.(float64)
		if !ok {
			return mismatch(path, v, t)
		}
		return c.write(path, ptr, 8, c.Memory.WriteUint64Le(ptr, canonicalF64(f)))
	case wit.Char:
		r, ok := v.(rune)
		if !ok || !validChar(r) {
			return mismatch(path, v, t)
		}
		return c.write(path, ptr, 4, c.Memory.WriteUint32Le(ptr, uint32(r)))
	case wit.String:
		s, ok := v.(string)
		if !ok {
			return mismatch(path, v, t)
		}
		if !utf8.ValidString(s) {
			return errors.InvalidUTF8(path, []byte(s))
		}
		p, n, err := c.storeBytes(ctx, []byte(s), 1)
		if err != nil {
			return err
		}
		return c.storePair(path, ptr, p, n)
	case *wit.TypeDef:
		return c.storeTypeDef(ctx, typ, v, ptr, path)
	}
	return errors.Unsupported(errors.PhaseABI, fmt.Sprintf("store %T", t))
}

func (c *Context) storeTypeDef(ctx context.Context, t *wit.TypeDef, v any, ptr uint32, path []string) error {
	switch kind := t.Kind.(type) {
	case *wit.List:
		p, n, err := c.storeList(ctx, kind.Type, v, path)
		if err != nil {
			return err
		}
		return c.storePair(path, ptr, p, n)
	case *wit.Own, *wit.Borrow:
		h, ok := toUint(v, math.MaxUint32)
		if !ok {
			return mismatch(path, v, t)
		}
		return c.write(path, ptr, 4, c.Memory.WriteUint32Le(ptr, uint32(h)))
	case *wit.Flags:
		bits, err := flagBits(kind, v, path)
		if err != nil {
			return err
		}
		switch layoutFlags(len(kind.Flags)).Size {
		case 0:
			return nil
		case 1:
			return c.write(path, ptr, 1, c.Memory.WriteByte(ptr, uint8(bits)))
		case 2:
			return c.write(path, ptr, 2, c.Memory.WriteUint16Le(ptr, uint16(bits)))
		}
		return c.write(path, ptr, 4, c.Memory.WriteUint32Le(ptr, uint32(bits)))
	case *wit.Record:
		m, ok := v.(map[string]any)
		if !ok {
			return mismatch(path, v, t)
		}
		types := make([]wit.Type, len(kind.Fields))
		for i, f := range kind.Fields {
			types[i] = f.Type
		}
		offsets := fieldOffsets(types)
		for i, f := range kind.Fields {
			fv, ok := m[f.Name]
			if !ok {
				return errors.New(errors.PhaseABI, errors.KindInvalidData).
					Path(sub(path, f.Name)...).
					Detail("missing record field").
					Build()
			}
			if err := c.Store(ctx, f.Type, fv, ptr+offsets[i], sub(path, f.Name)); err != nil {
				return err
			}
		}
		return nil
	case *wit.Tuple:
		elems, ok := v.([]any)
		if !ok || len(elems) != len(kind.Types) {
			return mismatch(path, v, t)
		}
		offsets := fieldOffsets(kind.Types)
		for i, typ := range kind.Types {
			if err := c.Store(ctx, typ, elems[i], ptr+offsets[i], sub(path, fmt.Sprint(i))); err != nil {
				return err
			}
		}
		return nil
	case *wit.Enum, *wit.Variant, *wit.Option, *wit.Result:
		cases := casesOf(t)
		disc, payload, err := caseOf(t, cases, v, path)
		if err != nil {
			return err
		}
		if err := c.storeDisc(path, ptr, len(cases), disc); err != nil {
			return err
		}
		if typ := cases[disc].Type; typ != nil {
			return c.Store(ctx, typ, payload, ptr+payloadOffset(cases), sub(path, cases[disc].Name))
		}
		return nil
	case wit.Type:
		return c.Store(ctx, kind, v, ptr, path)
	}
	return errors.Unsupported(errors.PhaseABI, fmt.Sprintf("store %T", t.Kind))
}

func (c *Context) storeDisc(path []string, ptr uint32, numCases, disc int) error {
	switch discriminantSize(numCases) {
	case 1:
		return c.write(path, ptr, 1, c.Memory.WriteByte(ptr, uint8(disc)))
	case 2:
		return c.write(path, ptr, 2, c.Memory.WriteUint16Le(ptr, uint16(disc)))
	default:
		return c.write(path, ptr, 4, c.Memory.WriteUint32Le(ptr, uint32(disc)))
	}
}

func (c *Context) storeList(ctx context.Context, elem wit.Type, v any, path []string) (uint32, uint32, error) {
	if _, isByte := elem.(wit.U8); isByte {
		if b, ok := v.([]byte); ok {
			return c.storeBytes(ctx, b, 1)
		}
	}

	elems, ok := v.([]any)
	if !ok {
		return 0, 0, mismatch(path, v, &wit.TypeDef{Kind: &wit.List{Type: elem}})
	}

	l := LayoutOf(elem)
	size := uint64(l.Size) * uint64(len(elems))
	if size > math.MaxUint32 {
		return 0, 0, errors.AllocationFailed(math.MaxUint32, l.Align, fmt.Errorf("list of %d elements too large", len(elems)))
	}
	if len(elems) == 0 {
		return l.Align, 0, nil
	}

	ptr, err := c.alloc(ctx, uint32(size), l.Align)
	if err != nil {
		return 0, 0, err
	}
	for i, e := range elems {
		if err := c.Store(ctx, elem, e, ptr+uint32(i)*l.Size, sub(path, fmt.Sprint(i))); err != nil {
			return 0, 0, err
		}
	}
	return ptr, uint32(len(elems)), nil
}

// storeBytes copies b into a fresh guest allocation. Empty data gets a
// dangling aligned pointer without allocating.
func (c *Context) storeBytes(ctx context.Context, b []byte, align uint32) (uint32, uint32, error) {
	if len(b) == 0 {
		return align, 0, nil
	}
	if uint64(len(b)) > math.MaxUint32 {
		return 0, 0, errors.AllocationFailed(math.MaxUint32, align, fmt.Errorf("%d bytes too large", len(b)))
	}
	ptr, err := c.alloc(ctx, uint32(len(b)), align)
	if err != nil {
		return 0, 0, err
	}
	if !c.Memory.Write(ptr, b) {
		return 0, 0, errors.OutOfBounds(nil, ptr, uint32(len(b)))
	}
	return ptr, uint32(len(b)), nil
}

func (c *Context) storePair(path []string, ptr, a, b uint32) error {
	if err := c.write(path, ptr, 4, c.Memory.WriteUint32Le(ptr, a)); err != nil {
		return err
	}
	return c.write(path, ptr+4, 4, c.Memory.WriteUint32Le(ptr+4, b))
}

func (c *Context) alloc(ctx context.Context, size, align uint32) (uint32, error) {
	if c.Alloc == nil {
		return 0, errors.AllocationFailed(size, align, fmt.Errorf("guest exports no allocator"))
	}
	ptr, err := c.Alloc.Alloc(ctx, size, align)
	if err != nil {
		return 0, errors.AllocationFailed(size, align, err)
	}
	if align > 1 && ptr%align != 0 {
		return 0, errors.AllocationFailed(size, align, fmt.Errorf("allocator returned misaligned pointer %d", ptr))
	}
	return ptr, nil
}

func (c *Context) write(path []string, ptr, size uint32, ok bool) error {
	if !ok {
		return errors.OutOfBounds(path, ptr, size)
	}
	return nil
}

func lowerInt(t wit.Type, v any, path []string) (uint64, error) {
	var (
		bits uint64
		ok   bool
	)
	switch t.(type) {
	case wit.U8:
		bits, ok = toUint(v, math.MaxUint8)
	case wit.U16:
		bits, ok = toUint(v, math.MaxUint16)
	case wit.U32:
		bits, ok = toUint(v, math.MaxUint32)
	case wit.U64:
		bits, ok = toUint(v, math.MaxUint64)
	case wit.S8:
		var i int64
		i, ok = toInt(v, math.MinInt8, math.MaxInt8)
		bits = uint64(uint32(int32(i)))
	case wit.S16:
		var i int64
		i, ok = toInt(v, math.MinInt16, math.MaxInt16)
		bits = uint64(uint32(int32(i)))
	case wit.S32:
		var i int64
		i, ok = toInt(v, math.MinInt32, math.MaxInt32)
		bits = uint64(uint32(int32(i)))
	case wit.S64:
		var i int64
		i, ok = toInt(v, math.MinInt64, math.MaxInt64)
		bits = uint64(i)
	}
	if !ok {
		return 0, mismatch(path, v, t)
	}
	return bits, nil
}

// flagBits accepts a bitmask where bit i is the i-th flag. At most 32 flags
// are supported.
func flagBits(t *wit.Flags, v any, path []string) (uint64, error) {
	n := len(t.Flags)
	if n > 32 {
		return 0, errors.Unsupported(errors.PhaseABI, fmt.Sprintf("flags with %d members", n))
	}
	bits, ok := toUint(v, 1<<n-1)
	if !ok {
		return 0, mismatch(path, v, &wit.TypeDef{Kind: t})
	}
	return bits, nil
}

// caseOf maps a Go value to the case index and payload of a variant-like type.
func caseOf(t *wit.TypeDef, cases []variantCase, v any, path []string) (int, any, error) {
	switch t.Kind.(type) {
	case *wit.Option:
		o, ok := v.(Option)
		if !ok {
			return 0, nil, mismatch(path, v, t)
		}
		if o.Some {
			return 1, o.Value, nil
		}
		return 0, nil, nil
	case *wit.Result:
		r, ok := v.(Result)
		if !ok {
			return 0, nil, mismatch(path, v, t)
		}
		if r.IsErr {
			return 1, r.Value, nil
		}
		return 0, r.Value, nil
	}

	var name string
	var payload any
	switch val := v.(type) {
	case Variant:
		name, payload = val.Case, val.Value
	case string:
		name = val
	default:
		return 0, nil, mismatch(path, v, t)
	}
	for i, c := range cases {
		if c.Name == name {
			return i, payload, nil
		}
	}
	return 0, nil, errors.New(errors.PhaseABI, errors.KindInvalidData).
		Path(path...).
		WitType(TypeName(t)).
		Detail("unknown case %q", name).
		Build()
}

func mismatch(path []string, v any, t wit.Type) error {
	return errors.TypeMismatch(path, v, TypeName(t))
}

// sub extends path without sharing its backing array.
func sub(path []string, elem string) []string {
	return append(path[:len(path):len(path)], elem)
}
