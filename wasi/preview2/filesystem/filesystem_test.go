package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/resource"
	"github.com/wippyai/wasm-host/transcoder"
	"github.com/wippyai/wasm-host/wasi/preview2"
)

func newState(t *testing.T) *host.State {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("remember the milk"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	wc, err := preview2.NewContext(resource.NewTable(), preview2.NewConfig().WithPreopen("/data", dir))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	st := host.New(nil, wc)
	t.Cleanup(func() { st.Close() })
	return st
}

// root returns the handle of the /data preopen.
func root(t *testing.T, st *host.State) uint32 {
	t.Helper()
	out, err := NewPreopensHost().GetDirectories(context.Background(), st, nil)
	if err != nil {
		t.Fatalf("GetDirectories: %v", err)
	}
	dirs := out[0].([]any)
	if len(dirs) != 1 {
		t.Fatalf("got %d preopens", len(dirs))
	}
	pair := dirs[0].([]any)
	if pair[1] != "/data" {
		t.Errorf("guest path = %v", pair[1])
	}
	return pair[0].(uint32)
}

// expect returns a checker for a result<T, error-code>. It fails the test
// on a trap or when the result side differs from isErr.
func expect(t *testing.T, isErr bool) func([]any, error) any {
	return func(out []any, err error) any {
		t.Helper()
		if err != nil {
			t.Fatalf("trap: %v", err)
		}
		res := out[0].(transcoder.Result)
		if res.IsErr != isErr {
			t.Fatalf("result = %+v, want IsErr %v", res, isErr)
		}
		return res.Value
	}
}

func TestGetDirectories_None(t *testing.T) {
	st := host.New(nil, nil)
	out, err := NewPreopensHost().GetDirectories(context.Background(), st, nil)
	if err != nil {
		t.Fatalf("GetDirectories: %v", err)
	}
	if got := out[0].([]any); len(got) != 0 {
		t.Errorf("preopens = %v, want none", got)
	}
}

func TestOpenAndRead(t *testing.T) {
	st := newState(t)
	dir := root(t, st)
	h := NewTypesHost()
	ctx := context.Background()
	ok := expect(t, false)

	typ := ok(h.GetType(ctx, st, []any{dir}))
	if typ != "directory" {
		t.Errorf("root type = %v", typ)
	}

	file := ok(h.OpenAt(ctx, st, []any{dir, uint32(0), "notes.txt", uint32(0), uint32(flagRead)}))
	if got := ok(h.GetType(ctx, st, []any{file})); got != "regular-file" {
		t.Errorf("file type = %v", got)
	}

	data := ok(h.Read(ctx, st, []any{file, uint64(20), uint64(9)}))
	if diff := cmp.Diff([]any{[]byte("the milk"), true}, data); diff != "" {
		t.Errorf("read (-want +got):\n%s", diff)
	}

	if got := ok(h.GetFlags(ctx, st, []any{file})); got != uint32(flagRead) {
		t.Errorf("flags = %v", got)
	}
}

func TestErrorCodes(t *testing.T) {
	st := newState(t)
	dir := root(t, st)
	h := NewTypesHost()
	ctx := context.Background()

	tests := []struct {
		name      string
		path      string
		openFlags uint32
		flags     uint32
		want      string
	}{
		{"missing", "nope.txt", 0, flagRead, "no-entry"},
		{"escape", "../etc/passwd", 0, flagRead, "not-permitted"},
		{"create", "new.txt", openCreate, flagRead, "read-only"},
		{"write access", "notes.txt", 0, flagRead | flagWrite, "read-only"},
		{"file as directory", "notes.txt", openDirectory, flagRead, "not-directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := expect(t, true)(h.OpenAt(ctx, st, []any{dir, uint32(0), tt.path, tt.openFlags, tt.flags}))
			if got != tt.want {
				t.Errorf("error-code = %v, want %s", got, tt.want)
			}
		})
	}

	fail := expect(t, true)
	if got := fail(h.Read(ctx, st, []any{dir, uint64(1), uint64(0)})); got != "is-directory" {
		t.Errorf("read on directory = %v", got)
	}
	if got := fail(h.Write(ctx, st, []any{dir, []byte("x"), uint64(0)})); got != "read-only" {
		t.Errorf("write = %v", got)
	}
	if got := fail(h.Read(ctx, st, []any{uint32(999), uint64(1), uint64(0)})); got != "bad-descriptor" {
		t.Errorf("read on unknown descriptor = %v", got)
	}
}

func TestReadDirectory(t *testing.T) {
	st := newState(t)
	dir := root(t, st)
	h := NewTypesHost()
	ctx := context.Background()
	ok := expect(t, false)

	stream := ok(h.ReadDirectory(ctx, st, []any{dir}))

	var got []any
	for {
		e := ok(h.ReadDirectoryEntry(ctx, st, []any{stream})).(transcoder.Option)
		if !e.Some {
			break
		}
		got = append(got, e.Value)
	}
	want := []any{
		map[string]any{"type": "regular-file", "name": "notes.txt"},
		map[string]any{"type": "directory", "name": "sub"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entries (-want +got):\n%s", diff)
	}
}

func TestFilesystemErrorCode(t *testing.T) {
	st := newState(t)
	h := NewTypesHost()
	table := st.CapabilityState()

	fsErr, _ := table.Allocate(preview2.WrapError(&preview2.StreamError{Err: &preview2.FSError{Code: "io"}}))
	plain, _ := table.Allocate(preview2.NewError("nothing to see"))

	got, err := h.FilesystemErrorCode(context.Background(), st, []any{uint32(fsErr)})
	if err != nil {
		t.Fatalf("FilesystemErrorCode: %v", err)
	}
	if diff := cmp.Diff([]any{transcoder.Some("io")}, got); diff != "" {
		t.Errorf("code (-want +got):\n%s", diff)
	}

	got, _ = h.FilesystemErrorCode(context.Background(), st, []any{uint32(plain)})
	if diff := cmp.Diff([]any{transcoder.None()}, got); diff != "" {
		t.Errorf("plain error (-want +got):\n%s", diff)
	}
}

func TestHosts(t *testing.T) {
	hosts := Hosts()
	if len(hosts) != 2 {
		t.Fatalf("got %d hosts", len(hosts))
	}
	for _, h := range hosts {
		for _, b := range h.Bindings() {
			if b.Type == nil {
				t.Errorf("%s#%s has no type", h.Namespace(), b.Name)
			}
		}
	}
}
