package linker

import (
	"strconv"
	"strings"
)

// Version is the semantic version of an interface name.
type Version struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// ParseVersion parses "1.2.3", "1.2" or "1". Pre-release and build
// suffixes are not accepted.
func ParseVersion(s string) (Version, bool) {
	if s == "" {
		return Version{}, false
	}
	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return Version{}, false
	}

	var nums [3]uint32
	for i, p := range parts {
		if p == "" || strings.IndexFunc(p, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
			return Version{}, false
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return Version{}, false
		}
		nums[i] = uint32(n)
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, true
}

// Compatible reports whether an implementation at v can serve an import
// of want. Majors must match; below 1.0 minors must match too; the patch
// must not be older.
func (v Version) Compatible(want Version) bool {
	if v.Major != want.Major {
		return false
	}
	if v.Major == 0 {
		return v.Minor == want.Minor && v.Patch >= want.Patch
	}
	if v.Minor != want.Minor {
		return v.Minor > want.Minor
	}
	return v.Patch >= want.Patch
}

// Less orders versions.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	return v.Patch < o.Patch
}

func (v Version) String() string {
	return strconv.FormatUint(uint64(v.Major), 10) + "." +
		strconv.FormatUint(uint64(v.Minor), 10) + "." +
		strconv.FormatUint(uint64(v.Patch), 10)
}

// splitVersion splits "wasi:io/streams@0.2.0" into its unversioned name
// and version. ok is false when the name has no parseable version.
func splitVersion(iface string) (base string, v Version, ok bool) {
	idx := strings.LastIndex(iface, "@")
	if idx < 0 {
		return iface, Version{}, false
	}
	v, ok = ParseVersion(iface[idx+1:])
	if !ok {
		return iface, Version{}, false
	}
	return iface[:idx], v, true
}
