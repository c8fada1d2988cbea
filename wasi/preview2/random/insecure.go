package random

import (
	"context"

	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/wasi/preview2/internal/bind"
)

type InsecureRandomHost struct{}

func NewInsecureRandomHost() *InsecureRandomHost {
	return &InsecureRandomHost{}
}

func (h *InsecureRandomHost) Namespace() string {
	return bind.Namespace("random", "insecure")
}

func (h *InsecureRandomHost) Bindings() []linker.Binding {
	return []linker.Binding{
		bind.Func("get-insecure-random-bytes", "func(len: u64) -> list<u8>", h.GetInsecureRandomBytes),
		bind.Func("get-insecure-random-u64", "func() -> u64", h.GetInsecureRandomU64),
	}
}

func (h *InsecureRandomHost) GetInsecureRandomBytes(_ context.Context, st *host.State, p []any) ([]any, error) {
	return bind.One(readBytes(st.WASI().InsecureRandom(), p[0].(uint64)))
}

func (h *InsecureRandomHost) GetInsecureRandomU64(_ context.Context, st *host.State, _ []any) ([]any, error) {
	return bind.One(readU64(st.WASI().InsecureRandom()))
}
