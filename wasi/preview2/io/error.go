package io

import (
	"context"

	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/resource"
	"github.com/wippyai/wasm-host/wasi/preview2"
	"github.com/wippyai/wasm-host/wasi/preview2/internal/bind"
)

type ErrorHost struct{}

func NewErrorHost() *ErrorHost {
	return &ErrorHost{}
}

func (h *ErrorHost) Namespace() string {
	return bind.Namespace("io", "error")
}

func (h *ErrorHost) Bindings() []linker.Binding {
	return []linker.Binding{
		bind.Func("[method]error.to-debug-string", "func(self: borrow<error>) -> string", h.ToDebugString),
		bind.Drop("error"),
	}
}

func (h *ErrorHost) ToDebugString(_ context.Context, st *host.State, p []any) ([]any, error) {
	e, err := resource.ResolveAs[*preview2.Error](st.CapabilityState(), bind.Handle(p[0]))
	if err != nil {
		return nil, err
	}
	return []any{e.DebugString()}, nil
}
