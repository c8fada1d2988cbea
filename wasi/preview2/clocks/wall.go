package clocks

import (
	"context"

	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/wasi/preview2/internal/bind"
)

// Hosts returns both clock hosts.
func Hosts() []linker.Host {
	return []linker.Host{NewWallClockHost(), NewMonotonicClockHost()}
}

type WallClockHost struct{}

func NewWallClockHost() *WallClockHost {
	return &WallClockHost{}
}

func (h *WallClockHost) Namespace() string {
	return bind.Namespace("clocks", "wall-clock")
}

func (h *WallClockHost) Bindings() []linker.Binding {
	return []linker.Binding{
		bind.Func("now", "func() -> datetime", h.Now),
		bind.Func("resolution", "func() -> datetime", h.Resolution),
	}
}

func datetime(seconds uint64, nanos uint32) map[string]any {
	return map[string]any{"seconds": seconds, "nanoseconds": nanos}
}

func (h *WallClockHost) Now(_ context.Context, st *host.State, _ []any) ([]any, error) {
	now := st.WASI().Clock().Now()
	return []any{datetime(uint64(now.Unix()), uint32(now.Nanosecond()))}, nil
}

func (h *WallClockHost) Resolution(_ context.Context, _ *host.State, _ []any) ([]any, error) {
	return []any{datetime(0, 1)}, nil
}
