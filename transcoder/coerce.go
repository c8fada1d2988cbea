package transcoder

import "math"

// toUint converts any Go integer to a uint64 no larger than max.
func toUint(value any, max uint64) (uint64, bool) {
	var u uint64
	switch v := value.(type) {
	case uint8:
		u = uint64(v)
	case uint16:
		u = uint64(v)
	case uint32:
		u = uint64(v)
	case uint64:
		u = v
	case uint:
		u = uint64(v)
	case int8, int16, int32, int64, int:
		i, _ := toInt(v, math.MinInt64, math.MaxInt64)
		if i < 0 {
			return 0, false
		}
		u = uint64(i)
	default:
		return 0, false
	}
	if u > max {
		return 0, false
	}
	return u, true
}

// toInt converts any Go integer to an int64 within [min, max].
func toInt(value any, min, max int64) (int64, bool) {
	var i int64
	switch v := value.(type) {
	case int8:
		i = int64(v)
	case int16:
		i = int64(v)
	case int32:
		i = int64(v)
	case int64:
		i = v
	case int:
		i = int64(v)
	case uint8:
		i = int64(v)
	case uint16:
		i = int64(v)
	case uint32:
		i = int64(v)
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		i = int64(v)
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		i = int64(v)
	default:
		return 0, false
	}
	if i < min || i > max {
		return 0, false
	}
	return i, true
}

// validChar rejects surrogates (0xD800-0xDFFF) and values >= 0x110000.
func validChar(r rune) bool {
	if r >= 0xD800 && r <= 0xDFFF {
		return false
	}
	return r >= 0 && r < 0x110000
}

const (
	canonicalNaN32 = 0x7fc00000
	canonicalNaN64 = 0x7ff8000000000000
)

func canonicalF32(f float32) uint64 {
	if f != f {
		return canonicalNaN32
	}
	return uint64(math.Float32bits(f))
}

func canonicalF64(f float64) uint64 {
	if f != f {
		return canonicalNaN64
	}
	return math.Float64bits(f)
}
