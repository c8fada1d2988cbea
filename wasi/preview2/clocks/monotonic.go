package clocks

import (
	"context"
	"math"
	"time"

	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/wasi/preview2"
	"github.com/wippyai/wasm-host/wasi/preview2/internal/bind"
)

type MonotonicClockHost struct{}

func NewMonotonicClockHost() *MonotonicClockHost {
	return &MonotonicClockHost{}
}

func (h *MonotonicClockHost) Namespace() string {
	return bind.Namespace("clocks", "monotonic-clock")
}

func (h *MonotonicClockHost) Bindings() []linker.Binding {
	return []linker.Binding{
		bind.Func("now", "func() -> instant", h.Now),
		bind.Func("resolution", "func() -> duration", h.Resolution),
		bind.Func("subscribe-instant", "func(when: instant) -> own<pollable>", h.SubscribeInstant),
		bind.Func("subscribe-duration", "func(when: duration) -> own<pollable>", h.SubscribeDuration),
	}
}

func (h *MonotonicClockHost) Now(_ context.Context, st *host.State, _ []any) ([]any, error) {
	return []any{uint64(st.WASI().Clock().Monotonic())}, nil
}

func (h *MonotonicClockHost) Resolution(_ context.Context, _ *host.State, _ []any) ([]any, error) {
	return []any{uint64(1)}, nil
}

func (h *MonotonicClockHost) SubscribeInstant(_ context.Context, st *host.State, p []any) ([]any, error) {
	clock := st.WASI().Clock()
	return bind.One(bind.Allocate(st, preview2.NewTimer(clock, nanos(p[0].(uint64)))))
}

func (h *MonotonicClockHost) SubscribeDuration(_ context.Context, st *host.State, p []any) ([]any, error) {
	clock := st.WASI().Clock()
	deadline := clock.Monotonic() + nanos(p[0].(uint64))
	if deadline < 0 {
		deadline = math.MaxInt64
	}
	return bind.One(bind.Allocate(st, preview2.NewTimer(clock, deadline)))
}

func nanos(n uint64) time.Duration {
	if n > math.MaxInt64 {
		return math.MaxInt64
	}
	return time.Duration(n)
}
