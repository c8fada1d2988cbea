package cli

import (
	"context"

	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/transcoder"
	"github.com/wippyai/wasm-host/wasi/preview2/internal/bind"
)

// EnvironmentHost serves the environment, arguments and initial working
// directory granted by the configuration.
type EnvironmentHost struct{}

func NewEnvironmentHost() *EnvironmentHost {
	return &EnvironmentHost{}
}

func (h *EnvironmentHost) Namespace() string {
	return bind.Namespace("cli", "environment")
}

func (h *EnvironmentHost) Bindings() []linker.Binding {
	return []linker.Binding{
		bind.Func("get-environment", "func() -> list<tuple<string, string>>", h.GetEnvironment),
		bind.Func("get-arguments", "func() -> list<string>", h.GetArguments),
		bind.Func("initial-cwd", "func() -> option<string>", h.InitialCwd),
	}
}

func (h *EnvironmentHost) GetEnvironment(_ context.Context, st *host.State, _ []any) ([]any, error) {
	env := st.WASI().Env()
	out := make([]any, len(env))
	for i, kv := range env {
		out[i] = []any{kv[0], kv[1]}
	}
	return []any{out}, nil
}

func (h *EnvironmentHost) GetArguments(_ context.Context, st *host.State, _ []any) ([]any, error) {
	args := st.WASI().Args()
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a
	}
	return []any{out}, nil
}

func (h *EnvironmentHost) InitialCwd(_ context.Context, st *host.State, _ []any) ([]any, error) {
	if cwd := st.WASI().Cwd(); cwd != "" {
		return []any{transcoder.Some(cwd)}, nil
	}
	return []any{transcoder.None()}, nil
}
