package transcoder

import (
	"fmt"
	"math"
	"unicode/utf8"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-host/errors"
)

// LiftParams lifts the core arguments of a host function call. When the
// params did not fit in MaxFlatParams, flat holds a single pointer to a
// tuple in guest memory.
func (c *Context) LiftParams(types []wit.Type, flat []uint64) ([]any, error) {
	sig := ImportSignature(types, nil)
	if sig.IndirectParams {
		if len(flat) < 1 {
			return nil, errors.InvalidInput(errors.PhaseABI, "missing params pointer")
		}
		return c.loadTuple(types, uint32(flat[0]), "param")
	}

	vals := make([]any, len(types))
	for i, t := range types {
		v, rest, err := c.LiftFlat(t, flat, []string{fmt.Sprintf("param%d", i)})
		if err != nil {
			return nil, err
		}
		vals[i] = v
		flat = rest
	}
	return vals, nil
}

// LiftResults lifts the core results of an export call. When the results
// did not fit in MaxFlatResults, raw holds a pointer to a tuple in guest
// memory.
func (c *Context) LiftResults(types []wit.Type, raw []uint64) ([]any, error) {
	sig := ExportSignature(nil, types)
	if sig.IndirectResults {
		if len(raw) < 1 {
			return nil, errors.InvalidInput(errors.PhaseABI, "missing results pointer")
		}
		return c.loadTuple(types, uint32(raw[0]), "result")
	}

	vals := make([]any, len(types))
	for i, t := range types {
		v, rest, err := c.LiftFlat(t, raw, []string{fmt.Sprintf("result%d", i)})
		if err != nil {
			return nil, err
		}
		vals[i] = v
		raw = rest
	}
	return vals, nil
}

func (c *Context) loadTuple(types []wit.Type, ptr uint32, prefix string) ([]any, error) {
	offsets := fieldOffsets(types)
	vals := make([]any, len(types))
	for i, t := range types {
		v, err := c.Load(t, ptr+offsets[i], []string{fmt.Sprintf("%s%d", prefix, i)})
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// LiftFlat lifts one value of type t from the front of flat and returns
// the remaining values.
func (c *Context) LiftFlat(t wit.Type, flat []uint64, path []string) (any, []uint64, error) {
	n := FlatCount(t)
	if len(flat) < n {
		return nil, nil, errors.New(errors.PhaseABI, errors.KindInvalidData).
			Path(path...).
			WitType(TypeName(t)).
			Detail("need %d core values, have %d", n, len(flat)).
			Build()
	}
	v, err := c.liftFlat(t, flat[:n], path)
	if err != nil {
		return nil, nil, err
	}
	return v, flat[n:], nil
}

func (c *Context) liftFlat(t wit.Type, flat []uint64, path []string) (any, error) {
	switch typ := t.(type) {
	case wit.Bool:
		return uint32(flat[0]) != 0, nil
	case wit.U8:
		return uint8(flat[0]), nil
	case wit.U16:
		return uint16(flat[0]), nil
	case wit.U32:
		return uint32(flat[0]), nil
	case wit.U64:
		return flat[0], nil
	case wit.S8:
		return int8(flat[0]), nil
	case wit.S16:
		return int16(flat[0]), nil
	case wit.S32:
		return int32(flat[0]), nil
	case wit.S64:
		return int64(flat[0]), nil
	case wit.F32:
		return math.Float32frombits(uint32(flat[0])), nil
	case wit.F64:
		return math.Float64frombits(flat[0]), nil
	case wit.Char:
		return liftChar(uint32(flat[0]), path)
	case wit.String:
		return c.loadString(uint32(flat[0]), uint32(flat[1]), path)
	case *wit.TypeDef:
		return c.liftTypeDef(typ, flat, path)
	}
	return nil, errors.Unsupported(errors.PhaseABI, fmt.Sprintf("lift %T", t))
}

func (c *Context) liftTypeDef(t *wit.TypeDef, flat []uint64, path []string) (any, error) {
	switch kind := t.Kind.(type) {
	case *wit.List:
		return c.loadList(kind.Type, uint32(flat[0]), uint32(flat[1]), path)
	case *wit.Own, *wit.Borrow:
		return uint32(flat[0]), nil
	case *wit.Flags:
		if len(kind.Flags) == 0 {
			return uint32(0), nil
		}
		return uint32(flat[0]) & flagMask(len(kind.Flags)), nil
	case *wit.Record:
		m := make(map[string]any, len(kind.Fields))
		for _, f := range kind.Fields {
			v, rest, err := c.LiftFlat(f.Type, flat, sub(path, f.Name))
			if err != nil {
				return nil, err
			}
			m[f.Name] = v
			flat = rest
		}
		return m, nil
	case *wit.Tuple:
		elems := make([]any, len(kind.Types))
		for i, typ := range kind.Types {
			v, rest, err := c.LiftFlat(typ, flat, sub(path, fmt.Sprint(i)))
			if err != nil {
				return nil, err
			}
			elems[i] = v
			flat = rest
		}
		return elems, nil
	case *wit.Enum, *wit.Variant, *wit.Option, *wit.Result:
		cases := casesOf(t)
		disc := uint32(flat[0])
		if int(disc) >= len(cases) {
			return nil, errors.InvalidDiscriminant(path, disc, uint32(len(cases)-1))
		}
		var payload any
		if typ := cases[disc].Type; typ != nil {
			v, _, err := c.LiftFlat(typ, flat[1:], sub(path, cases[disc].Name))
			if err != nil {
				return nil, err
			}
			payload = v
		}
		return caseValue(t, cases, int(disc), payload), nil
	case wit.Type:
		return c.liftFlat(kind, flat, path)
	}
	return nil, errors.Unsupported(errors.PhaseABI, fmt.Sprintf("lift %T", t.Kind))
}

// Load reads a value of type t from guest memory at ptr.
func (c *Context) Load(t wit.Type, ptr uint32, path []string) (any, error) {
	l := LayoutOf(t)
	if l.Align > 1 && ptr%l.Align != 0 {
		return nil, errors.New(errors.PhaseABI, errors.KindInvalidData).
			Path(path...).
			WitType(TypeName(t)).
			Detail("pointer %d not aligned to %d", ptr, l.Align).
			Build()
	}

	switch typ := t.(type) {
	case wit.Bool:
		b, err := c.readU8(path, ptr)
		return b != 0, err
	case wit.U8:
		return c.readU8(path, ptr)
	case wit.S8:
		b, err := c.readU8(path, ptr)
		return int8(b), err
	case wit.U16:
		return c.readU16(path, ptr)
	case wit.S16:
		v, err := c.readU16(path, ptr)
		return int16(v), err
	case wit.U32:
		return c.readU32(path, ptr)
	case wit.S32:
		v, err := c.readU32(path, ptr)
		return int32(v), err
	case wit.U64:
		return c.readU64(path, ptr)
	case wit.S64:
		v, err := c.readU64(path, ptr)
		return int64(v), err
	case wit.F32:
		v, err := c.readU32(path, ptr)
		return math.Float32frombits(v), err
	case wit.F64:
		v, err := c.readU64(path, ptr)
		return math.Float64frombits(v), err
	case wit.Char:
		v, err := c.readU32(path, ptr)
		if err != nil {
			return nil, err
		}
		return liftChar(v, path)
	case wit.String:
		p, n, err := c.readPair(path, ptr)
		if err != nil {
			return nil, err
		}
		return c.loadString(p, n, path)
	case *wit.TypeDef:
		return c.loadTypeDef(typ, ptr, path)
	}
	return nil, errors.Unsupported(errors.PhaseABI, fmt.Sprintf("load %T", t))
}

func (c *Context) loadTypeDef(t *wit.TypeDef, ptr uint32, path []string) (any, error) {
	switch kind := t.Kind.(type) {
	case *wit.List:
		p, n, err := c.readPair(path, ptr)
		if err != nil {
			return nil, err
		}
		return c.loadList(kind.Type, p, n, path)
	case *wit.Own, *wit.Borrow:
		return c.readU32(path, ptr)
	case *wit.Flags:
		var bits uint32
		switch layoutFlags(len(kind.Flags)).Size {
		case 0:
			return uint32(0), nil
		case 1:
			b, err := c.readU8(path, ptr)
			if err != nil {
				return nil, err
			}
			bits = uint32(b)
		case 2:
			v, err := c.readU16(path, ptr)
			if err != nil {
				return nil, err
			}
			bits = uint32(v)
		default:
			v, err := c.readU32(path, ptr)
			if err != nil {
				return nil, err
			}
			bits = v
		}
		return bits & flagMask(len(kind.Flags)), nil
	case *wit.Record:
		types := make([]wit.Type, len(kind.Fields))
		for i, f := range kind.Fields {
			types[i] = f.Type
		}
		offsets := fieldOffsets(types)
		m := make(map[string]any, len(kind.Fields))
		for i, f := range kind.Fields {
			v, err := c.Load(f.Type, ptr+offsets[i], sub(path, f.Name))
			if err != nil {
				return nil, err
			}
			m[f.Name] = v
		}
		return m, nil
	case *wit.Tuple:
		offsets := fieldOffsets(kind.Types)
		elems := make([]any, len(kind.Types))
		for i, typ := range kind.Types {
			v, err := c.Load(typ, ptr+offsets[i], sub(path, fmt.Sprint(i)))
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return elems, nil
	case *wit.Enum, *wit.Variant, *wit.Option, *wit.Result:
		cases := casesOf(t)
		disc, err := c.readDisc(path, ptr, len(cases))
		if err != nil {
			return nil, err
		}
		if int(disc) >= len(cases) {
			return nil, errors.InvalidDiscriminant(path, disc, uint32(len(cases)-1))
		}
		var payload any
		if typ := cases[disc].Type; typ != nil {
			payload, err = c.Load(typ, ptr+payloadOffset(cases), sub(path, cases[disc].Name))
			if err != nil {
				return nil, err
			}
		}
		return caseValue(t, cases, int(disc), payload), nil
	case wit.Type:
		return c.Load(kind, ptr, path)
	}
	return nil, errors.Unsupported(errors.PhaseABI, fmt.Sprintf("load %T", t.Kind))
}

func (c *Context) loadString(ptr, n uint32, path []string) (string, error) {
	b, ok := c.Memory.Read(ptr, n)
	if !ok {
		return "", errors.OutOfBounds(path, ptr, n)
	}
	if !utf8.Valid(b) {
		return "", errors.InvalidUTF8(path, b)
	}
	return string(b), nil
}

func (c *Context) loadList(elem wit.Type, ptr, n uint32, path []string) (any, error) {
	l := LayoutOf(elem)
	size := uint64(l.Size) * uint64(n)
	if size > math.MaxUint32 {
		return nil, errors.OutOfBounds(path, ptr, math.MaxUint32)
	}

	if _, isByte := elem.(wit.U8); isByte {
		b, ok := c.Memory.Read(ptr, n)
		if !ok {
			return nil, errors.OutOfBounds(path, ptr, n)
		}
		out := make([]byte, n)
		copy(out, b)
		return out, nil
	}

	if _, ok := c.Memory.Read(ptr, uint32(size)); !ok {
		return nil, errors.OutOfBounds(path, ptr, uint32(size))
	}
	elems := make([]any, n)
	for i := uint32(0); i < n; i++ {
		v, err := c.Load(elem, ptr+i*l.Size, sub(path, fmt.Sprint(i)))
		if err != nil {
			return nil, err
		}
		elems[i] = v
	}
	return elems, nil
}

func (c *Context) readDisc(path []string, ptr uint32, numCases int) (uint32, error) {
	switch discriminantSize(numCases) {
	case 1:
		v, err := c.readU8(path, ptr)
		return uint32(v), err
	case 2:
		v, err := c.readU16(path, ptr)
		return uint32(v), err
	default:
		return c.readU32(path, ptr)
	}
}

func (c *Context) readU8(path []string, ptr uint32) (uint8, error) {
	v, ok := c.Memory.ReadByte(ptr)
	if !ok {
		return 0, errors.OutOfBounds(path, ptr, 1)
	}
	return v, nil
}

func (c *Context) readU16(path []string, ptr uint32) (uint16, error) {
	v, ok := c.Memory.ReadUint16Le(ptr)
	if !ok {
		return 0, errors.OutOfBounds(path, ptr, 2)
	}
	return v, nil
}

func (c *Context) readU32(path []string, ptr uint32) (uint32, error) {
	v, ok := c.Memory.ReadUint32Le(ptr)
	if !ok {
		return 0, errors.OutOfBounds(path, ptr, 4)
	}
	return v, nil
}

func (c *Context) readU64(path []string, ptr uint32) (uint64, error) {
	v, ok := c.Memory.ReadUint64Le(ptr)
	if !ok {
		return 0, errors.OutOfBounds(path, ptr, 8)
	}
	return v, nil
}

func (c *Context) readPair(path []string, ptr uint32) (uint32, uint32, error) {
	a, err := c.readU32(path, ptr)
	if err != nil {
		return 0, 0, err
	}
	b, err := c.readU32(path, ptr+4)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func flagMask(n int) uint32 {
	if n >= 32 {
		return math.MaxUint32
	}
	return 1<<n - 1
}

func liftChar(v uint32, path []string) (rune, error) {
	r := rune(v)
	if v > math.MaxInt32 || !validChar(r) {
		return 0, errors.New(errors.PhaseABI, errors.KindInvalidData).
			Path(path...).
			WitType("char").
			Detail("invalid unicode scalar value %#x", v).
			Build()
	}
	return r, nil
}

// caseValue builds the Go value of a lifted variant-like type.
func caseValue(t *wit.TypeDef, cases []variantCase, disc int, payload any) any {
	switch t.Kind.(type) {
	case *wit.Option:
		if disc == 1 {
			return Some(payload)
		}
		return None()
	case *wit.Result:
		if disc == 1 {
			return Err(payload)
		}
		return OK(payload)
	case *wit.Enum:
		return cases[disc].Name
	}
	return Variant{Case: cases[disc].Name, Value: payload}
}
