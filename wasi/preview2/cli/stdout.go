package cli

import (
	"context"

	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/wasi/preview2/internal/bind"
)

// StdoutHost hands out output streams on the configured stdout.
type StdoutHost struct{}

func NewStdoutHost() *StdoutHost {
	return &StdoutHost{}
}

func (h *StdoutHost) Namespace() string {
	return bind.Namespace("cli", "stdout")
}

func (h *StdoutHost) Bindings() []linker.Binding {
	return []linker.Binding{
		bind.Func("get-stdout", "func() -> own<output-stream>", h.GetStdout),
	}
}

// GetStdout allocates a fresh handle on every call.
func (h *StdoutHost) GetStdout(_ context.Context, st *host.State, _ []any) ([]any, error) {
	hd, err := st.WASI().NewStdout()
	return bind.One(uint32(hd), err)
}
