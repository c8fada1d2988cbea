package transcoder

import (
	"go.bytecodealliance.org/wit"
)

// Info describes the in-memory layout of a WIT type.
type Info struct {
	Size  uint32
	Align uint32
}

// LayoutOf returns the canonical ABI size and alignment of t.
func LayoutOf(t wit.Type) Info {
	switch typ := t.(type) {
	case nil:
		return Info{Size: 0, Align: 1}
	case wit.U8, wit.S8, wit.Bool:
		return Info{Size: 1, Align: 1}
	case wit.U16, wit.S16:
		return Info{Size: 2, Align: 2}
	case wit.U32, wit.S32, wit.F32, wit.Char:
		return Info{Size: 4, Align: 4}
	case wit.U64, wit.S64, wit.F64:
		return Info{Size: 8, Align: 8}
	case wit.String:
		return Info{Size: 8, Align: 4} // [ptr: u32, len: u32]
	case *wit.TypeDef:
		return layoutTypeDef(typ)
	default:
		return Info{Size: 0, Align: 1}
	}
}

func layoutTypeDef(t *wit.TypeDef) Info {
	switch kind := t.Kind.(type) {
	case *wit.List:
		return Info{Size: 8, Align: 4}
	case *wit.Own, *wit.Borrow:
		return Info{Size: 4, Align: 4}
	case *wit.Record:
		types := make([]wit.Type, len(kind.Fields))
		for i, f := range kind.Fields {
			types[i] = f.Type
		}
		return layoutStruct(types)
	case *wit.Tuple:
		return layoutStruct(kind.Types)
	case *wit.Enum, *wit.Variant, *wit.Option, *wit.Result:
		cases := casesOf(t)
		return layoutVariant(cases)
	case *wit.Flags:
		return layoutFlags(len(kind.Flags))
	case wit.Type:
		return LayoutOf(kind)
	default:
		return Info{Size: 0, Align: 1}
	}
}

func layoutStruct(types []wit.Type) Info {
	maxAlign := uint32(1)
	offset := uint32(0)

	for _, typ := range types {
		l := LayoutOf(typ)
		offset = alignTo(offset, l.Align)
		if l.Align > maxAlign {
			maxAlign = l.Align
		}
		offset += l.Size
	}

	return Info{
		Size:  alignTo(offset, maxAlign),
		Align: maxAlign,
	}
}

func layoutVariant(cases []variantCase) Info {
	discSize := discriminantSize(len(cases))

	maxAlign := discSize
	maxSize := uint32(0)
	for _, c := range cases {
		if c.Type == nil {
			continue
		}
		l := LayoutOf(c.Type)
		if l.Align > maxAlign {
			maxAlign = l.Align
		}
		if l.Size > maxSize {
			maxSize = l.Size
		}
	}

	payload := alignTo(discSize, maxAlign)
	return Info{
		Size:  alignTo(payload+maxSize, maxAlign),
		Align: maxAlign,
	}
}

// layoutFlags packs flags into the smallest of u8, u16 or u32.
func layoutFlags(n int) Info {
	switch {
	case n == 0:
		return Info{Size: 0, Align: 1}
	case n <= 8:
		return Info{Size: 1, Align: 1}
	case n <= 16:
		return Info{Size: 2, Align: 2}
	}
	return Info{Size: 4, Align: 4}
}

// fieldOffsets returns the offset of each element of a record or tuple.
func fieldOffsets(types []wit.Type) []uint32 {
	offsets := make([]uint32, len(types))
	offset := uint32(0)
	for i, typ := range types {
		l := LayoutOf(typ)
		offset = alignTo(offset, l.Align)
		offsets[i] = offset
		offset += l.Size
	}
	return offsets
}

// payloadOffset returns where a variant's payload starts.
func payloadOffset(cases []variantCase) uint32 {
	maxAlign := uint32(1)
	for _, c := range cases {
		if c.Type == nil {
			continue
		}
		if a := LayoutOf(c.Type).Align; a > maxAlign {
			maxAlign = a
		}
	}
	return alignTo(discriminantSize(len(cases)), maxAlign)
}

// discriminantSize is 1 byte for <=256 cases, 2 for <=65536, else 4.
func discriminantSize(numCases int) uint32 {
	if numCases <= 256 {
		return 1
	} else if numCases <= 65536 {
		return 2
	}
	return 4
}

func alignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}
