package transcoder

import (
	"slices"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
)

// Flat limits of the canonical ABI. Beyond them values travel through
// linear memory instead of the core value stack.
const (
	MaxFlatParams  = 16
	MaxFlatResults = 1
)

type variantCase struct {
	Name string
	Type wit.Type
}

// casesOf returns the cases of an enum, variant, option or result TypeDef.
// Option and result are treated as the variants they specialize.
func casesOf(t *wit.TypeDef) []variantCase {
	switch kind := t.Kind.(type) {
	case *wit.Enum:
		cases := make([]variantCase, len(kind.Cases))
		for i, c := range kind.Cases {
			cases[i] = variantCase{Name: c.Name}
		}
		return cases
	case *wit.Variant:
		cases := make([]variantCase, len(kind.Cases))
		for i, c := range kind.Cases {
			cases[i] = variantCase{Name: c.Name, Type: c.Type}
		}
		return cases
	case *wit.Option:
		return []variantCase{{Name: "none"}, {Name: "some", Type: kind.Type}}
	case *wit.Result:
		return []variantCase{{Name: "ok", Type: kind.OK}, {Name: "error", Type: kind.Err}}
	}
	return nil
}

// Flatten returns the core value types that carry t on the value stack.
func Flatten(t wit.Type) []api.ValueType {
	switch typ := t.(type) {
	case nil:
		return nil
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char:
		return []api.ValueType{api.ValueTypeI32}
	case wit.U64, wit.S64:
		return []api.ValueType{api.ValueTypeI64}
	case wit.F32:
		return []api.ValueType{api.ValueTypeF32}
	case wit.F64:
		return []api.ValueType{api.ValueTypeF64}
	case wit.String:
		return []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}
	case *wit.TypeDef:
		return flattenTypeDef(typ)
	}
	return []api.ValueType{api.ValueTypeI32}
}

func flattenTypeDef(t *wit.TypeDef) []api.ValueType {
	switch kind := t.Kind.(type) {
	case *wit.List:
		return []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}
	case *wit.Own, *wit.Borrow:
		return []api.ValueType{api.ValueTypeI32}
	case *wit.Record:
		var flat []api.ValueType
		for _, f := range kind.Fields {
			flat = append(flat, Flatten(f.Type)...)
		}
		return flat
	case *wit.Tuple:
		var flat []api.ValueType
		for _, typ := range kind.Types {
			flat = append(flat, Flatten(typ)...)
		}
		return flat
	case *wit.Enum, *wit.Variant, *wit.Option, *wit.Result:
		return flattenVariant(casesOf(t))
	case *wit.Flags:
		if len(kind.Flags) == 0 {
			return nil
		}
		return []api.ValueType{api.ValueTypeI32}
	case wit.Type:
		return Flatten(kind)
	}
	return []api.ValueType{api.ValueTypeI32}
}

func flattenVariant(cases []variantCase) []api.ValueType {
	var payload []api.ValueType
	for _, c := range cases {
		for i, vt := range Flatten(c.Type) {
			if i < len(payload) {
				payload[i] = join(payload[i], vt)
			} else {
				payload = append(payload, vt)
			}
		}
	}
	return append([]api.ValueType{api.ValueTypeI32}, payload...)
}

func join(a, b api.ValueType) api.ValueType {
	if a == b {
		return a
	}
	if (a == api.ValueTypeI32 && b == api.ValueTypeF32) || (a == api.ValueTypeF32 && b == api.ValueTypeI32) {
		return api.ValueTypeI32
	}
	return api.ValueTypeI64
}

// FlatCount returns the number of core values that carry t.
func FlatCount(t wit.Type) int {
	return len(Flatten(t))
}

// CoreSignature is the core wasm function type a WIT function lowers to.
type CoreSignature struct {
	Params  []api.ValueType
	Results []api.ValueType
	// IndirectParams means the params are stored in memory as a tuple and
	// passed by a single i32 pointer.
	IndirectParams bool
	// IndirectResults means the results are stored in memory as a tuple: at
	// a caller-supplied retptr for imports, at a returned pointer for exports.
	IndirectResults bool
}

// ImportSignature returns the core type of a host function lowered into
// the guest (canon lower).
func ImportSignature(params, results []wit.Type) CoreSignature {
	sig := flattenFunc(params, results)
	if sig.IndirectResults {
		sig.Params = append(sig.Params, api.ValueTypeI32)
		sig.Results = nil
	}
	return sig
}

// ExportSignature returns the core type of a guest function lifted to the
// host (canon lift).
func ExportSignature(params, results []wit.Type) CoreSignature {
	sig := flattenFunc(params, results)
	if sig.IndirectResults {
		sig.Results = []api.ValueType{api.ValueTypeI32}
	}
	return sig
}

func flattenFunc(params, results []wit.Type) CoreSignature {
	var sig CoreSignature
	for _, p := range params {
		sig.Params = append(sig.Params, Flatten(p)...)
	}
	if len(sig.Params) > MaxFlatParams {
		sig.Params = []api.ValueType{api.ValueTypeI32}
		sig.IndirectParams = true
	}
	for _, r := range results {
		sig.Results = append(sig.Results, Flatten(r)...)
	}
	if len(sig.Results) > MaxFlatResults {
		sig.IndirectResults = true
	}
	return sig
}

// Equal reports whether two core signatures have identical value types.
func (s CoreSignature) Equal(params, results []api.ValueType) bool {
	return slices.Equal(s.Params, params) && slices.Equal(s.Results, results)
}

// FormatCore renders a core signature as "(i32, i32) -> (i32)".
func FormatCore(params, results []api.ValueType) string {
	return "(" + joinNames(params) + ") -> (" + joinNames(results) + ")"
}

func joinNames(types []api.ValueType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return strings.Join(names, ", ")
}
