package io

import (
	"context"

	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/resource"
	"github.com/wippyai/wasm-host/wasi/preview2"
	"github.com/wippyai/wasm-host/wasi/preview2/internal/bind"
)

type PollHost struct{}

func NewPollHost() *PollHost {
	return &PollHost{}
}

func (h *PollHost) Namespace() string {
	return bind.Namespace("io", "poll")
}

func (h *PollHost) Bindings() []linker.Binding {
	return []linker.Binding{
		bind.Func("[method]pollable.ready", "func(self: borrow<pollable>) -> bool", h.Ready),
		bind.Func("[method]pollable.block", "func(self: borrow<pollable>)", h.Block),
		bind.Func("poll", "func(in: list<borrow<pollable>>) -> list<u32>", h.Poll),
		bind.Drop("pollable"),
	}
}

func pollable(st *host.State, v any) (preview2.Pollable, error) {
	return resource.ResolveAs[preview2.Pollable](st.CapabilityState(), bind.Handle(v))
}

func (h *PollHost) Ready(_ context.Context, st *host.State, p []any) ([]any, error) {
	pl, err := pollable(st, p[0])
	if err != nil {
		return nil, err
	}
	return []any{pl.Ready()}, nil
}

func (h *PollHost) Block(ctx context.Context, st *host.State, p []any) ([]any, error) {
	pl, err := pollable(st, p[0])
	if err != nil {
		return nil, err
	}
	pl.Block(ctx)
	return nil, ctx.Err()
}

// Poll blocks until at least one pollable is ready and returns the indices
// of the ready ones. An empty list traps.
func (h *PollHost) Poll(ctx context.Context, st *host.State, p []any) ([]any, error) {
	in, _ := p[0].([]any)
	if len(in) == 0 {
		return nil, errors.InvalidInput(errors.PhaseHost, "poll called with no pollables")
	}
	list := make([]preview2.Pollable, len(in))
	for i, v := range in {
		pl, err := pollable(st, v)
		if err != nil {
			return nil, err
		}
		list[i] = pl
	}

	for {
		var ready []any
		for i, pl := range list {
			if pl.Ready() {
				ready = append(ready, uint32(i))
			}
		}
		if len(ready) > 0 {
			return []any{ready}, nil
		}
		// Nothing is ready: wait on the first one and look again.
		list[0].Block(ctx)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}
