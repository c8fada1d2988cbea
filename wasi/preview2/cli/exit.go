package cli

import (
	"context"

	"github.com/tetratelabs/wazero/sys"

	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/transcoder"
	"github.com/wippyai/wasm-host/wasi/preview2/internal/bind"
)

// ExitHost ends the guest. It never touches the host process: the exit
// surfaces to the caller of the running export.
type ExitHost struct{}

func NewExitHost() *ExitHost {
	return &ExitHost{}
}

func (h *ExitHost) Namespace() string {
	return bind.Namespace("cli", "exit")
}

func (h *ExitHost) Bindings() []linker.Binding {
	return []linker.Binding{
		bind.Func("exit", "func(status: result)", h.Exit),
	}
}

// Exit maps ok to exit code 0 and err to 1.
func (h *ExitHost) Exit(_ context.Context, _ *host.State, p []any) ([]any, error) {
	status, _ := p[0].(transcoder.Result)
	if status.IsErr {
		return nil, sys.NewExitError(1)
	}
	return nil, sys.NewExitError(0)
}
