package cli

import (
	"context"

	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/wasi/preview2/internal/bind"
)

// StdinHost hands out input streams on the configured stdin. All handles
// share one read position.
type StdinHost struct{}

func NewStdinHost() *StdinHost {
	return &StdinHost{}
}

func (h *StdinHost) Namespace() string {
	return bind.Namespace("cli", "stdin")
}

func (h *StdinHost) Bindings() []linker.Binding {
	return []linker.Binding{
		bind.Func("get-stdin", "func() -> own<input-stream>", h.GetStdin),
	}
}

func (h *StdinHost) GetStdin(_ context.Context, st *host.State, _ []any) ([]any, error) {
	hd, err := st.WASI().NewStdin()
	return bind.One(uint32(hd), err)
}
