package transcoder

import (
	"fmt"
	"math"
	"unicode/utf8"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-host/errors"
)

// CheckParams reports whether vals can be lowered as arguments of the
// given types. It applies the same rules as lowering but touches no guest
// memory and calls no guest allocator.
func CheckParams(types []wit.Type, vals []any) error {
	if len(vals) != len(types) {
		return errors.New(errors.PhaseABI, errors.KindTypeMismatch).
			Detail("got %d arguments, want %d", len(vals), len(types)).
			Build()
	}
	for i, t := range types {
		if err := Check(t, vals[i], []string{fmt.Sprintf("param%d", i)}); err != nil {
			return err
		}
	}
	return nil
}

// Check reports whether v is a valid Go value for t.
func Check(t wit.Type, v any, path []string) error {
	switch typ := t.(type) {
	case wit.Bool:
		if _, ok := v.(bool); !ok {
			return mismatch(path, v, t)
		}
	case wit.U8, wit.U16, wit.U32, wit.U64, wit.S8, wit.S16, wit.S32, wit.S64:
		_, err := lowerInt(t, v, path)
		return err
	case wit.F32:
		if _, ok := v.(float32); !ok {
			return mismatch(path, v, t)
		}
	case wit.F64:
		if _, ok := v.(float64); !ok {
			return mismatch(path, v, t)
		}
	case wit.Char:
		if r, ok := v.(rune); !ok || !validChar(r) {
			return mismatch(path, v, t)
		}
	case wit.String:
		s, ok := v.(string)
		if !ok {
			return mismatch(path, v, t)
		}
		if !utf8.ValidString(s) {
			return errors.InvalidUTF8(path, []byte(s))
		}
	case *wit.TypeDef:
		return checkTypeDef(typ, v, path)
	default:
		return errors.Unsupported(errors.PhaseABI, fmt.Sprintf("check %T", t))
	}
	return nil
}

func checkTypeDef(t *wit.TypeDef, v any, path []string) error {
	switch kind := t.Kind.(type) {
	case *wit.List:
		if _, isByte := kind.Type.(wit.U8); isByte {
			if _, ok := v.([]byte); ok {
				return nil
			}
		}
		elems, ok := v.([]any)
		if !ok {
			return mismatch(path, v, t)
		}
		for i, e := range elems {
			if err := Check(kind.Type, e, sub(path, fmt.Sprint(i))); err != nil {
				return err
			}
		}
	case *wit.Own, *wit.Borrow:
		if _, ok := toUint(v, math.MaxUint32); !ok {
			return mismatch(path, v, t)
		}
	case *wit.Flags:
		_, err := flagBits(kind, v, path)
		return err
	case *wit.Record:
		m, ok := v.(map[string]any)
		if !ok {
			return mismatch(path, v, t)
		}
		for _, f := range kind.Fields {
			fv, ok := m[f.Name]
			if !ok {
				return errors.New(errors.PhaseABI, errors.KindInvalidData).
					Path(sub(path, f.Name)...).
					Detail("missing record field").
					Build()
			}
			if err := Check(f.Type, fv, sub(path, f.Name)); err != nil {
				return err
			}
		}
	case *wit.Tuple:
		elems, ok := v.([]any)
		if !ok || len(elems) != len(kind.Types) {
			return mismatch(path, v, t)
		}
		for i, typ := range kind.Types {
			if err := Check(typ, elems[i], sub(path, fmt.Sprint(i))); err != nil {
				return err
			}
		}
	case *wit.Enum, *wit.Variant, *wit.Option, *wit.Result:
		cases := casesOf(t)
		disc, payload, err := caseOf(t, cases, v, path)
		if err != nil {
			return err
		}
		if typ := cases[disc].Type; typ != nil {
			return Check(typ, payload, sub(path, cases[disc].Name))
		}
	case wit.Type:
		return Check(kind, v, path)
	default:
		return errors.Unsupported(errors.PhaseABI, fmt.Sprintf("check %T", t.Kind))
	}
	return nil
}
