package filesystem

import (
	"context"
	"errors"

	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/resource"
	"github.com/wippyai/wasm-host/transcoder"
	"github.com/wippyai/wasm-host/wasi/preview2"
	"github.com/wippyai/wasm-host/wasi/preview2/internal/bind"
)

// Bits of open-flags and descriptor-flags.
const (
	openCreate    = 1 << 0
	openDirectory = 1 << 1
	flagRead      = 1 << 0
	flagWrite     = 1 << 1
)

type TypesHost struct{}

func NewTypesHost() *TypesHost {
	return &TypesHost{}
}

func (h *TypesHost) Namespace() string {
	return bind.Namespace("filesystem", "types")
}

const method = "[method]descriptor."

func (h *TypesHost) Bindings() []linker.Binding {
	return []linker.Binding{
		bind.Func(method+"read",
			"func(self: borrow<descriptor>, length: filesize, offset: filesize) -> result<tuple<list<u8>, bool>, error-code>", h.Read),
		bind.Func(method+"write",
			"func(self: borrow<descriptor>, buffer: list<u8>, offset: filesize) -> result<filesize, error-code>", h.Write),
		bind.Func(method+"open-at",
			"func(self: borrow<descriptor>, path-flags: path-flags, path: string, open-flags: open-flags, %flags: descriptor-flags) -> result<own<descriptor>, error-code>", h.OpenAt),
		bind.Func(method+"get-type",
			"func(self: borrow<descriptor>) -> result<descriptor-type, error-code>", h.GetType),
		bind.Func(method+"get-flags",
			"func(self: borrow<descriptor>) -> result<descriptor-flags, error-code>", h.GetFlags),
		bind.Func(method+"read-directory",
			"func(self: borrow<descriptor>) -> result<own<directory-entry-stream>, error-code>", h.ReadDirectory),
		bind.Func("[method]directory-entry-stream.read-directory-entry",
			"func(self: borrow<directory-entry-stream>) -> result<option<directory-entry>, error-code>", h.ReadDirectoryEntry),
		bind.Func("filesystem-error-code",
			"func(err: borrow<error>) -> option<error-code>", h.FilesystemErrorCode),
		bind.Drop("descriptor"),
		bind.Drop("directory-entry-stream"),
	}
}

func descriptor(st *host.State, v any) (*preview2.Descriptor, error) {
	return resource.ResolveAs[*preview2.Descriptor](st.CapabilityState(), bind.Handle(v))
}

// fail returns err as the error-code side of a result. An unknown handle
// is bad-descriptor.
func fail(err error) ([]any, error) {
	return []any{transcoder.Err(preview2.ErrorCode(err))}, nil
}

func (h *TypesHost) Read(_ context.Context, st *host.State, p []any) ([]any, error) {
	d, err := descriptor(st, p[0])
	if err != nil {
		return fail(err)
	}
	data, eof, err := d.Read(p[1].(uint64), p[2].(uint64))
	if err != nil {
		return fail(err)
	}
	return []any{transcoder.OK([]any{data, eof})}, nil
}

func (h *TypesHost) Write(_ context.Context, st *host.State, p []any) ([]any, error) {
	if _, err := descriptor(st, p[0]); err != nil {
		return fail(err)
	}
	return fail(&preview2.FSError{Code: "read-only"})
}

func (h *TypesHost) OpenAt(_ context.Context, st *host.State, p []any) ([]any, error) {
	d, err := descriptor(st, p[0])
	if err != nil {
		return fail(err)
	}
	path, _ := p[2].(string)
	open, _ := p[3].(uint32)
	flags, _ := p[4].(uint32)
	if flags&flagWrite != 0 {
		return fail(&preview2.FSError{Code: "read-only"})
	}

	sub, err := d.OpenAt(path, open&openDirectory != 0, open&openCreate != 0)
	if err != nil {
		return fail(err)
	}
	nh, err := bind.Allocate(st, sub)
	if err != nil {
		return nil, err
	}
	return []any{transcoder.OK(nh)}, nil
}

func (h *TypesHost) GetType(_ context.Context, st *host.State, p []any) ([]any, error) {
	d, err := descriptor(st, p[0])
	if err != nil {
		return fail(err)
	}
	typ, err := d.Type()
	if err != nil {
		return fail(err)
	}
	return []any{transcoder.OK(typ)}, nil
}

func (h *TypesHost) GetFlags(_ context.Context, st *host.State, p []any) ([]any, error) {
	if _, err := descriptor(st, p[0]); err != nil {
		return fail(err)
	}
	return []any{transcoder.OK(uint32(flagRead))}, nil
}

func (h *TypesHost) ReadDirectory(_ context.Context, st *host.State, p []any) ([]any, error) {
	d, err := descriptor(st, p[0])
	if err != nil {
		return fail(err)
	}
	s, err := d.ReadDirectory()
	if err != nil {
		return fail(err)
	}
	nh, err := bind.Allocate(st, s)
	if err != nil {
		return nil, err
	}
	return []any{transcoder.OK(nh)}, nil
}

func (h *TypesHost) ReadDirectoryEntry(_ context.Context, st *host.State, p []any) ([]any, error) {
	s, err := resource.ResolveAs[*preview2.DirectoryEntryStream](st.CapabilityState(), bind.Handle(p[0]))
	if err != nil {
		return fail(err)
	}
	e, ok := s.Next()
	if !ok {
		return []any{transcoder.OK(transcoder.None())}, nil
	}
	return []any{transcoder.OK(transcoder.Some(map[string]any{"type": e.Type, "name": e.Name}))}, nil
}

// FilesystemErrorCode recovers the error-code of a stream error that came
// from a filesystem operation.
func (h *TypesHost) FilesystemErrorCode(_ context.Context, st *host.State, p []any) ([]any, error) {
	e, err := resource.ResolveAs[*preview2.Error](st.CapabilityState(), bind.Handle(p[0]))
	if err != nil {
		return nil, err
	}
	var fe *preview2.FSError
	if errors.As(e.Cause(), &fe) {
		return []any{transcoder.Some(fe.Code)}, nil
	}
	return []any{transcoder.None()}, nil
}
