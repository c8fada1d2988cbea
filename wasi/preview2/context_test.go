package preview2

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/wasm-host/resource"
)

func TestNewContext_Defaults(t *testing.T) {
	c, err := NewContext(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if len(c.Env()) != 0 || len(c.Args()) != 0 || c.Cwd() != "/" {
		t.Errorf("env=%v args=%v cwd=%q", c.Env(), c.Args(), c.Cwd())
	}
	if c.StdoutInherited() || c.StderrInherited() || c.StdinInherited() {
		t.Error("nothing should be inherited by default")
	}
	handles, _, err := c.Preopens()
	if err != nil || len(handles) != 0 {
		t.Errorf("Preopens() = %v, %v", handles, err)
	}

	h, err := c.NewStdin()
	if err != nil {
		t.Fatal(err)
	}
	r, _ := c.Table().Resolve(h)
	_, err = r.(interface{ Read(uint64) ([]byte, error) }).Read(1)
	if !AsStreamError(err).Closed {
		t.Errorf("default stdin should be empty: %v", err)
	}
}

func TestNewContext_Stdout(t *testing.T) {
	table := resource.NewTable()
	sink := NewSink(0)
	c, err := NewContext(table, NewConfig().WithStdout(sink))
	if err != nil {
		t.Fatal(err)
	}

	h1, _ := c.NewStdout()
	h2, _ := c.NewStdout()
	if h1 == h2 {
		t.Fatal("each call must allocate a fresh handle")
	}

	s1, err := resource.ResolveAs[*OutputStream](table, h1)
	if err != nil {
		t.Fatal(err)
	}
	_ = s1.Write([]byte("a"))
	if err := table.Close(h1); err != nil {
		t.Fatal(err)
	}
	s2, _ := resource.ResolveAs[*OutputStream](table, h2)
	if err := s2.Write([]byte("b")); err != nil {
		t.Fatalf("closing one handle must not close stdout: %v", err)
	}
	if sink.String() != "ab" {
		t.Errorf("stdout = %q", sink.String())
	}
}

func TestNewContext_Stdin(t *testing.T) {
	c, _ := NewContext(nil, NewConfig().WithStdin([]byte("xyz")))
	h1, _ := c.NewStdin()
	h2, _ := c.NewStdin()

	read := func(h resource.Handle) string {
		r, _ := c.Table().Resolve(h)
		b, _ := r.(interface{ Read(uint64) ([]byte, error) }).Read(1)
		return string(b)
	}
	if got := read(h1) + read(h2) + read(h1); got != "xyz" {
		t.Errorf("stdin handles should share one position, got %q", got)
	}

	_ = c.Table().Close(h1)
	if r, err := c.Table().Resolve(h2); err != nil || r == nil {
		t.Errorf("second stdin handle should survive: %v", err)
	}
}

func TestNewContext_Env(t *testing.T) {
	t.Setenv("WASMHOST_TEST_ALLOWED", "yes")
	t.Setenv("WASMHOST_TEST_HIDDEN", "no")
	t.Setenv("WASMHOST_TEST_OVERRIDE", "host")

	cfg := NewConfig().
		WithEnv("GREETING", "hi").
		WithEnv("WASMHOST_TEST_OVERRIDE", "explicit").
		WithEnvAllow("WASMHOST_TEST_ALLOWED", "WASMHOST_TEST_OVERRIDE", "WASMHOST_TEST_UNSET").
		WithArgs("prog", "--flag").
		WithCwd("/work")

	c, err := NewContext(nil, cfg)
	if err != nil {
		t.Fatal(err)
	}

	want := [][2]string{
		{"GREETING", "hi"},
		{"WASMHOST_TEST_OVERRIDE", "explicit"},
		{"WASMHOST_TEST_ALLOWED", "yes"},
	}
	if diff := cmp.Diff(want, c.Env()); diff != "" {
		t.Errorf("env mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"prog", "--flag"}, c.Args()); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	if c.Cwd() != "/work" {
		t.Errorf("cwd = %q", c.Cwd())
	}
}

func TestNewContext_Preopens(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(dir+"/f", []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := NewContext(nil, NewConfig().WithPreopen("/data", dir))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	handles, paths, err := c.Preopens()
	if err != nil || len(handles) != 1 || paths[0] != "/data" {
		t.Fatalf("Preopens() = %v %v %v", handles, paths, err)
	}
	d, err := resource.ResolveAs[*Descriptor](c.Table(), handles[0])
	if err != nil {
		t.Fatal(err)
	}
	f, err := d.OpenAt("f", false, false)
	if err != nil {
		t.Fatal(err)
	}
	data, _, _ := f.Read(10, 0)
	if string(data) != "data" {
		t.Errorf("read %q", data)
	}

	if _, err := NewContext(nil, NewConfig().WithPreopen("/x", dir+"/missing")); err == nil {
		t.Error("missing preopen directory should fail")
	}
}

func TestNewContext_Deterministic(t *testing.T) {
	read := func() []byte {
		c, _ := NewContext(nil, NewConfig().WithRandomSeed(42))
		buf := make([]byte, 16)
		_, _ = c.Random().Read(buf)
		return buf
	}
	a, b := read(), read()
	if !bytes.Equal(a, b) {
		t.Error("seeded random should repeat")
	}

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c, _ := NewContext(nil, NewConfig().WithClock(FixedClock(at)))
	if !c.Clock().Now().Equal(at) || c.Clock().Monotonic() != 0 {
		t.Error("fixed clock")
	}
}

func TestContext_ClosedTable(t *testing.T) {
	table := resource.NewTable()
	c, _ := NewContext(table, nil)
	table.CloseAll()
	if _, err := c.NewStdout(); err == nil {
		t.Error("allocation on a closed table should fail")
	}
	if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		t.Error(err)
	}
}
