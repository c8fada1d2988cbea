package cli

import (
	"context"

	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/wasi/preview2/internal/bind"
)

type StderrHost struct{}

func NewStderrHost() *StderrHost {
	return &StderrHost{}
}

func (h *StderrHost) Namespace() string {
	return bind.Namespace("cli", "stderr")
}

func (h *StderrHost) Bindings() []linker.Binding {
	return []linker.Binding{
		bind.Func("get-stderr", "func() -> own<output-stream>", h.GetStderr),
	}
}

func (h *StderrHost) GetStderr(_ context.Context, st *host.State, _ []any) ([]any, error) {
	hd, err := st.WASI().NewStderr()
	return bind.One(uint32(hd), err)
}
