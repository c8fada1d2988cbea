package filesystem

import (
	"context"

	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/wasi/preview2/internal/bind"
)

// Hosts returns both filesystem hosts.
func Hosts() []linker.Host {
	return []linker.Host{NewPreopensHost(), NewTypesHost()}
}

type PreopensHost struct{}

func NewPreopensHost() *PreopensHost {
	return &PreopensHost{}
}

func (h *PreopensHost) Namespace() string {
	return bind.Namespace("filesystem", "preopens")
}

func (h *PreopensHost) Bindings() []linker.Binding {
	return []linker.Binding{
		bind.Func("get-directories", "func() -> list<tuple<own<descriptor>, string>>", h.GetDirectories),
	}
}

// GetDirectories allocates a descriptor per preopen on every call, in
// configuration order. It is empty when no directory was granted.
func (h *PreopensHost) GetDirectories(_ context.Context, st *host.State, _ []any) ([]any, error) {
	handles, paths, err := st.WASI().Preopens()
	if err != nil {
		return nil, err
	}
	out := make([]any, len(handles))
	for i := range handles {
		out[i] = []any{uint32(handles[i]), paths[i]}
	}
	return []any{out}, nil
}
