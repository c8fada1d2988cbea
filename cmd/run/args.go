package main

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-host/transcoder"
)

// convertArg parses a command-line value as a Go value of WIT type t.
func convertArg(value string, t wit.Type) (any, error) {
	switch typ := t.(type) {
	case wit.String:
		return value, nil
	case wit.Bool:
		return strconv.ParseBool(value)
	case wit.U8:
		v, err := strconv.ParseUint(value, 0, 8)
		return uint8(v), err
	case wit.U16:
		v, err := strconv.ParseUint(value, 0, 16)
		return uint16(v), err
	case wit.U32:
		v, err := strconv.ParseUint(value, 0, 32)
		return uint32(v), err
	case wit.U64:
		return strconv.ParseUint(value, 0, 64)
	case wit.S8:
		v, err := strconv.ParseInt(value, 0, 8)
		return int8(v), err
	case wit.S16:
		v, err := strconv.ParseInt(value, 0, 16)
		return int16(v), err
	case wit.S32:
		v, err := strconv.ParseInt(value, 0, 32)
		return int32(v), err
	case wit.S64:
		return strconv.ParseInt(value, 0, 64)
	case wit.F32:
		v, err := strconv.ParseFloat(value, 32)
		return float32(v), err
	case wit.F64:
		return strconv.ParseFloat(value, 64)
	case wit.Char:
		r, size := utf8.DecodeRuneInString(value)
		if r == utf8.RuneError || size != len(value) {
			return nil, fmt.Errorf("%q is not a single character", value)
		}
		return r, nil
	case *wit.TypeDef:
		switch kind := typ.Kind.(type) {
		case *wit.Enum:
			return value, nil
		case *wit.List:
			if _, ok := kind.Type.(wit.U8); ok {
				return []byte(value), nil
			}
		case wit.Type:
			return convertArg(value, kind)
		}
	}
	return nil, fmt.Errorf("cannot pass %s from the command line", transcoder.TypeName(t))
}

// convertArgs converts values for the parameters of types.
func convertArgs(values []string, types []wit.Type) ([]any, error) {
	if len(values) != len(types) {
		return nil, fmt.Errorf("got %d parameters, want %d", len(values), len(types))
	}
	args := make([]any, len(values))
	for i, v := range values {
		a, err := convertArg(v, types[i])
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		args[i] = a
	}
	return args, nil
}

// formatValue renders a lifted value for display.
func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return strconv.Quote(val)
	case []byte:
		return fmt.Sprintf("%q", val)
	case []any:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = formatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case transcoder.Option:
		if !val.Some {
			return "none"
		}
		return "some(" + formatValue(val.Value) + ")"
	case transcoder.Result:
		tag := "ok"
		if val.IsErr {
			tag = "err"
		}
		if val.Value == nil {
			return tag
		}
		return tag + "(" + formatValue(val.Value) + ")"
	case transcoder.Variant:
		if val.Value == nil {
			return val.Case
		}
		return val.Case + "(" + formatValue(val.Value) + ")"
	default:
		return fmt.Sprint(v)
	}
}

// splitPair splits "key=value" at the first separator.
func splitPair(s string, sep byte) (string, string, error) {
	i := strings.IndexByte(s, sep)
	if i <= 0 {
		return "", "", fmt.Errorf("%q: want KEY%cVALUE", s, sep)
	}
	return s[:i], s[i+1:], nil
}
