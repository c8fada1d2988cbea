package runtime

import (
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/wasi/preview2/cli"
	"github.com/wippyai/wasm-host/wasi/preview2/clocks"
	"github.com/wippyai/wasm-host/wasi/preview2/filesystem"
	"github.com/wippyai/wasm-host/wasi/preview2/io"
	"github.com/wippyai/wasm-host/wasi/preview2/random"
)

// WASIHosts returns every standard interface host.
func WASIHosts() []linker.Host {
	var hosts []linker.Host
	hosts = append(hosts, io.Hosts()...)
	hosts = append(hosts, clocks.Hosts()...)
	hosts = append(hosts, random.Hosts()...)
	hosts = append(hosts, cli.Hosts()...)
	hosts = append(hosts, filesystem.Hosts()...)
	return hosts
}

// RegisterWASI defines the standard interface hosts on the runtime's
// linker. What a guest can reach is decided per instance by the
// preview2.Config of its host state. Calling it again has no effect.
func (r *Runtime) RegisterWASI() error {
	r.wasi.Do(func() {
		for _, h := range WASIHosts() {
			if err := r.linker.Define(h); err != nil {
				r.wasiErr = errors.Wrap(errors.PhaseHost, errors.KindInvalidInput, err, "register "+h.Namespace())
				return
			}
		}
	})
	return r.wasiErr
}
