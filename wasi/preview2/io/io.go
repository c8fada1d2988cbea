package io

import "github.com/wippyai/wasm-host/linker"

// Hosts returns every wasi:io host.
func Hosts() []linker.Host {
	return []linker.Host{
		NewErrorHost(),
		NewPollHost(),
		NewStreamsHost(),
	}
}
