package random

import (
	"context"

	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/wasi/preview2/internal/bind"
)

type InsecureSeedHost struct{}

func NewInsecureSeedHost() *InsecureSeedHost {
	return &InsecureSeedHost{}
}

func (h *InsecureSeedHost) Namespace() string {
	return bind.Namespace("random", "insecure-seed")
}

func (h *InsecureSeedHost) Bindings() []linker.Binding {
	return []linker.Binding{
		bind.Func("insecure-seed", "func() -> tuple<u64, u64>", h.InsecureSeed),
	}
}

func (h *InsecureSeedHost) InsecureSeed(_ context.Context, st *host.State, _ []any) ([]any, error) {
	r := st.WASI().InsecureRandom()
	a, err := readU64(r)
	if err != nil {
		return nil, err
	}
	b, err := readU64(r)
	if err != nil {
		return nil, err
	}
	return []any{[]any{a, b}}, nil
}
