package cli

import (
	"context"
	"os"
	"sync/atomic"

	"golang.org/x/term"

	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/resource"
	"github.com/wippyai/wasm-host/transcoder"
	"github.com/wippyai/wasm-host/wasi/preview2"
	"github.com/wippyai/wasm-host/wasi/preview2/internal/bind"
)

var (
	stdinIsTerminal  int32 = -1 // -1 = unchecked, 0 = no, 1 = yes
	stdoutIsTerminal int32 = -1
	stderrIsTerminal int32 = -1
)

// isTerminal is a variable so tests can pretend to have a terminal.
var isTerminal = func(f *os.File, cached *int32) bool {
	if v := atomic.LoadInt32(cached); v >= 0 {
		return v == 1
	}
	result := term.IsTerminal(int(f.Fd()))
	if result {
		atomic.StoreInt32(cached, 1)
	} else {
		atomic.StoreInt32(cached, 0)
	}
	return result
}

// terminal returns some(handle) of a new terminal resource when the stream
// is inherited from the host and the host descriptor is a terminal.
func terminal(st *host.State, inherited bool, f *os.File, cached *int32, r resource.Resource) ([]any, error) {
	if !inherited || !isTerminal(f, cached) {
		return []any{transcoder.None()}, nil
	}
	h, err := bind.Allocate(st, r)
	if err != nil {
		return nil, err
	}
	return []any{transcoder.Some(h)}, nil
}

type TerminalInputHost struct{}

func NewTerminalInputHost() *TerminalInputHost { return &TerminalInputHost{} }

func (h *TerminalInputHost) Namespace() string {
	return bind.Namespace("cli", "terminal-input")
}

func (h *TerminalInputHost) Bindings() []linker.Binding {
	return []linker.Binding{bind.Drop("terminal-input")}
}

type TerminalOutputHost struct{}

func NewTerminalOutputHost() *TerminalOutputHost { return &TerminalOutputHost{} }

func (h *TerminalOutputHost) Namespace() string {
	return bind.Namespace("cli", "terminal-output")
}

func (h *TerminalOutputHost) Bindings() []linker.Binding {
	return []linker.Binding{bind.Drop("terminal-output")}
}

type TerminalStdinHost struct{}

func NewTerminalStdinHost() *TerminalStdinHost { return &TerminalStdinHost{} }

func (h *TerminalStdinHost) Namespace() string {
	return bind.Namespace("cli", "terminal-stdin")
}

func (h *TerminalStdinHost) Bindings() []linker.Binding {
	return []linker.Binding{
		bind.Func("get-terminal-stdin", "func() -> option<own<terminal-input>>", h.GetTerminalStdin),
	}
}

func (h *TerminalStdinHost) GetTerminalStdin(_ context.Context, st *host.State, _ []any) ([]any, error) {
	return terminal(st, st.WASI().StdinInherited(), os.Stdin, &stdinIsTerminal, preview2.NewTerminalInput())
}

type TerminalStdoutHost struct{}

func NewTerminalStdoutHost() *TerminalStdoutHost { return &TerminalStdoutHost{} }

func (h *TerminalStdoutHost) Namespace() string {
	return bind.Namespace("cli", "terminal-stdout")
}

func (h *TerminalStdoutHost) Bindings() []linker.Binding {
	return []linker.Binding{
		bind.Func("get-terminal-stdout", "func() -> option<own<terminal-output>>", h.GetTerminalStdout),
	}
}

func (h *TerminalStdoutHost) GetTerminalStdout(_ context.Context, st *host.State, _ []any) ([]any, error) {
	return terminal(st, st.WASI().StdoutInherited(), os.Stdout, &stdoutIsTerminal, preview2.NewTerminalOutput())
}

type TerminalStderrHost struct{}

func NewTerminalStderrHost() *TerminalStderrHost { return &TerminalStderrHost{} }

func (h *TerminalStderrHost) Namespace() string {
	return bind.Namespace("cli", "terminal-stderr")
}

func (h *TerminalStderrHost) Bindings() []linker.Binding {
	return []linker.Binding{
		bind.Func("get-terminal-stderr", "func() -> option<own<terminal-output>>", h.GetTerminalStderr),
	}
}

func (h *TerminalStderrHost) GetTerminalStderr(_ context.Context, st *host.State, _ []any) ([]any, error) {
	return terminal(st, st.WASI().StderrInherited(), os.Stderr, &stderrIsTerminal, preview2.NewTerminalOutput())
}
