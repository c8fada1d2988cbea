package transcoder

import (
	"strings"

	"go.bytecodealliance.org/wit"
)

// Go representations of WIT values:
//
//	bool, u8..u64, s8..s64, f32, f64  bool, uint8..uint64, int8..int64, float32, float64
//	char                              rune
//	string                            string
//	list<u8>                          []byte
//	list<T>, tuple<...>               []any
//	record                            map[string]any
//	option<T>                         Option
//	result<T, E>                      Result
//	variant                           Variant
//	enum                              string case name (Variant also accepted)
//	flags                             uint32 bitmask, bit i is the i-th flag
//	own<R>, borrow<R>                 uint32 handle
//
// When lowering, any Go integer type is accepted for an integer WIT type if
// the value fits.

// Option is the Go value of option<T>.
type Option struct {
	Value any
	Some  bool
}

// Some returns a present option.
func Some(v any) Option { return Option{Value: v, Some: true} }

// None returns an absent option.
func None() Option { return Option{} }

// Result is the Go value of result<T, E>.
type Result struct {
	Value any
	IsErr bool
}

// OK returns a successful result.
func OK(v any) Result { return Result{Value: v} }

// Err returns a failed result.
func Err(v any) Result { return Result{Value: v, IsErr: true} }

// Variant is the Go value of a variant or enum.
type Variant struct {
	Value any
	Case  string
}

// TypeName renders t in WIT syntax. Named types render by name.
func TypeName(t wit.Type) string {
	switch typ := t.(type) {
	case nil:
		return "_"
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.U16:
		return "u16"
	case wit.U32:
		return "u32"
	case wit.U64:
		return "u64"
	case wit.S8:
		return "s8"
	case wit.S16:
		return "s16"
	case wit.S32:
		return "s32"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if typ.Name != nil {
			return *typ.Name
		}
		return kindName(typ)
	}
	return "unknown"
}

func kindName(t *wit.TypeDef) string {
	switch kind := t.Kind.(type) {
	case *wit.List:
		return "list<" + TypeName(kind.Type) + ">"
	case *wit.Option:
		return "option<" + TypeName(kind.Type) + ">"
	case *wit.Result:
		switch {
		case kind.OK == nil && kind.Err == nil:
			return "result"
		case kind.Err == nil:
			return "result<" + TypeName(kind.OK) + ">"
		default:
			return "result<" + TypeName(kind.OK) + ", " + TypeName(kind.Err) + ">"
		}
	case *wit.Tuple:
		names := make([]string, len(kind.Types))
		for i, typ := range kind.Types {
			names[i] = TypeName(typ)
		}
		return "tuple<" + strings.Join(names, ", ") + ">"
	case *wit.Own:
		return "own<" + resourceName(kind.Type) + ">"
	case *wit.Borrow:
		return "borrow<" + resourceName(kind.Type) + ">"
	case *wit.Record:
		fields := make([]string, len(kind.Fields))
		for i, f := range kind.Fields {
			fields[i] = f.Name + ": " + TypeName(f.Type)
		}
		return "record { " + strings.Join(fields, ", ") + " }"
	case *wit.Enum:
		cases := make([]string, len(kind.Cases))
		for i, c := range kind.Cases {
			cases[i] = c.Name
		}
		return "enum { " + strings.Join(cases, ", ") + " }"
	case *wit.Flags:
		names := make([]string, len(kind.Flags))
		for i, f := range kind.Flags {
			names[i] = f.Name
		}
		return "flags { " + strings.Join(names, ", ") + " }"
	case *wit.Variant:
		cases := make([]string, len(kind.Cases))
		for i, c := range kind.Cases {
			if c.Type != nil {
				cases[i] = c.Name + "(" + TypeName(c.Type) + ")"
			} else {
				cases[i] = c.Name
			}
		}
		return "variant { " + strings.Join(cases, ", ") + " }"
	case wit.Type:
		return TypeName(kind)
	}
	return "unknown"
}

func resourceName(t *wit.TypeDef) string {
	if t == nil || t.Name == nil {
		return "_"
	}
	return *t.Name
}

// Equal reports whether two WIT types are structurally identical. Aliases
// are transparent; resource handles compare by resource name.
func Equal(a, b wit.Type) bool {
	a, b = resolveAlias(a), resolveAlias(b)

	if a == nil || b == nil {
		return a == nil && b == nil
	}

	ta, okA := a.(*wit.TypeDef)
	tb, okB := b.(*wit.TypeDef)
	if !okA || !okB {
		if okA || okB {
			return false
		}
		return TypeName(a) == TypeName(b)
	}
	if ta == tb {
		return true
	}

	switch ka := ta.Kind.(type) {
	case *wit.List:
		kb, ok := tb.Kind.(*wit.List)
		return ok && Equal(ka.Type, kb.Type)
	case *wit.Option:
		kb, ok := tb.Kind.(*wit.Option)
		return ok && Equal(ka.Type, kb.Type)
	case *wit.Result:
		kb, ok := tb.Kind.(*wit.Result)
		return ok && Equal(ka.OK, kb.OK) && Equal(ka.Err, kb.Err)
	case *wit.Tuple:
		kb, ok := tb.Kind.(*wit.Tuple)
		if !ok || len(ka.Types) != len(kb.Types) {
			return false
		}
		for i := range ka.Types {
			if !Equal(ka.Types[i], kb.Types[i]) {
				return false
			}
		}
		return true
	case *wit.Record:
		kb, ok := tb.Kind.(*wit.Record)
		if !ok || len(ka.Fields) != len(kb.Fields) {
			return false
		}
		for i := range ka.Fields {
			if ka.Fields[i].Name != kb.Fields[i].Name || !Equal(ka.Fields[i].Type, kb.Fields[i].Type) {
				return false
			}
		}
		return true
	case *wit.Enum:
		kb, ok := tb.Kind.(*wit.Enum)
		if !ok || len(ka.Cases) != len(kb.Cases) {
			return false
		}
		for i := range ka.Cases {
			if ka.Cases[i].Name != kb.Cases[i].Name {
				return false
			}
		}
		return true
	case *wit.Variant:
		kb, ok := tb.Kind.(*wit.Variant)
		if !ok || len(ka.Cases) != len(kb.Cases) {
			return false
		}
		for i := range ka.Cases {
			if ka.Cases[i].Name != kb.Cases[i].Name || !Equal(ka.Cases[i].Type, kb.Cases[i].Type) {
				return false
			}
		}
		return true
	case *wit.Flags:
		kb, ok := tb.Kind.(*wit.Flags)
		if !ok || len(ka.Flags) != len(kb.Flags) {
			return false
		}
		for i := range ka.Flags {
			if ka.Flags[i].Name != kb.Flags[i].Name {
				return false
			}
		}
		return true
	case *wit.Own:
		kb, ok := tb.Kind.(*wit.Own)
		return ok && resourceName(ka.Type) == resourceName(kb.Type)
	case *wit.Borrow:
		kb, ok := tb.Kind.(*wit.Borrow)
		return ok && resourceName(ka.Type) == resourceName(kb.Type)
	}
	return false
}

// resolveAlias follows TypeDefs whose kind is another type.
func resolveAlias(t wit.Type) wit.Type {
	for {
		td, ok := t.(*wit.TypeDef)
		if !ok {
			return t
		}
		inner, ok := td.Kind.(wit.Type)
		if !ok {
			return t
		}
		t = inner
	}
}
