package cli

import "github.com/wippyai/wasm-host/linker"

// Hosts returns every wasi:cli host.
func Hosts() []linker.Host {
	return []linker.Host{
		NewEnvironmentHost(),
		NewExitHost(),
		NewStdinHost(),
		NewStdoutHost(),
		NewStderrHost(),
		NewTerminalInputHost(),
		NewTerminalOutputHost(),
		NewTerminalStdinHost(),
		NewTerminalStdoutHost(),
		NewTerminalStderrHost(),
	}
}
