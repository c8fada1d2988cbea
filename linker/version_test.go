package linker

import "testing"

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input  string
		want   Version
		wantOk bool
	}{
		{"0.2.0", Version{0, 2, 0}, true},
		{"1.0.0", Version{1, 0, 0}, true},
		{"0.2", Version{0, 2, 0}, true},
		{"1", Version{1, 0, 0}, true},
		{"10.20.30", Version{10, 20, 30}, true},
		{"4294967295", Version{4294967295, 0, 0}, true},
		{"4294967296", Version{}, false},
		{"", Version{}, false},
		{"abc", Version{}, false},
		{"1.2.3.4", Version{}, false},
		{"1.a.0", Version{}, false},
		{"1..0", Version{}, false},
		{"1.0.", Version{}, false},
		{"+1.0.0", Version{}, false},
		{"0.2.0-rc", Version{}, false},
	}

	for _, tt := range tests {
		v, ok := ParseVersion(tt.input)
		if ok != tt.wantOk {
			t.Errorf("ParseVersion(%q) ok = %v, want %v", tt.input, ok, tt.wantOk)
		}
		if ok && v != tt.want {
			t.Errorf("ParseVersion(%q) = %v, want %v", tt.input, v, tt.want)
		}
	}
}

func TestVersionCompatible(t *testing.T) {
	tests := []struct {
		have, want Version
		compat     bool
	}{
		{Version{0, 2, 0}, Version{0, 2, 0}, true},
		{Version{0, 2, 3}, Version{0, 2, 0}, true},
		{Version{0, 2, 0}, Version{0, 2, 1}, false},
		{Version{0, 3, 0}, Version{0, 2, 0}, false},
		{Version{1, 0, 0}, Version{0, 2, 0}, false},
		{Version{1, 3, 0}, Version{1, 2, 5}, true},
		{Version{1, 2, 4}, Version{1, 2, 5}, false},
		{Version{1, 1, 9}, Version{1, 2, 0}, false},
		{Version{2, 0, 0}, Version{1, 0, 0}, false},
	}

	for _, tt := range tests {
		if got := tt.have.Compatible(tt.want); got != tt.compat {
			t.Errorf("%v.Compatible(%v) = %v, want %v", tt.have, tt.want, got, tt.compat)
		}
	}
}

func TestVersionString(t *testing.T) {
	if s := (Version{1, 2, 3}).String(); s != "1.2.3" {
		t.Errorf("String() = %q", s)
	}
	if !(Version{0, 2, 0}).Less(Version{0, 2, 3}) || (Version{1, 0, 0}).Less(Version{0, 9, 9}) {
		t.Error("Less")
	}
}

func TestSplitVersion(t *testing.T) {
	tests := []struct {
		in   string
		base string
		ok   bool
	}{
		{"wasi:cli/stdout@0.2.0", "wasi:cli/stdout", true},
		{"wasi:cli/stdout", "wasi:cli/stdout", false},
		{"demo:x/y@bad", "demo:x/y@bad", false},
	}
	for _, tt := range tests {
		base, _, ok := splitVersion(tt.in)
		if base != tt.base || ok != tt.ok {
			t.Errorf("splitVersion(%q) = %q, %v", tt.in, base, ok)
		}
	}
}
