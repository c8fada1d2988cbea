package clocks

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/resource"
	"github.com/wippyai/wasm-host/wasi/preview2"
)

func newState(t *testing.T, clock preview2.Clock) *host.State {
	t.Helper()
	wc, err := preview2.NewContext(resource.NewTable(), preview2.NewConfig().WithClock(clock))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	st := host.New(nil, wc)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestWallClock(t *testing.T) {
	st := newState(t, preview2.FixedClock(time.Unix(1700000000, 250)))
	h := NewWallClockHost()

	now, err := h.Now(context.Background(), st, nil)
	if err != nil {
		t.Fatalf("Now: %v", err)
	}
	want := []any{map[string]any{"seconds": uint64(1700000000), "nanoseconds": uint32(250)}}
	if diff := cmp.Diff(want, now); diff != "" {
		t.Errorf("now (-want +got):\n%s", diff)
	}

	res, _ := h.Resolution(context.Background(), st, nil)
	if diff := cmp.Diff([]any{map[string]any{"seconds": uint64(0), "nanoseconds": uint32(1)}}, res); diff != "" {
		t.Errorf("resolution (-want +got):\n%s", diff)
	}
}

func TestMonotonicClock(t *testing.T) {
	st := newState(t, preview2.FixedClock(time.Unix(0, 0)))
	h := NewMonotonicClockHost()
	ctx := context.Background()

	now, err := h.Now(ctx, st, nil)
	if err != nil || now[0] != uint64(0) {
		t.Fatalf("Now = %v, %v", now, err)
	}

	ready := func(out []any) bool {
		t.Helper()
		p, err := resource.ResolveAs[preview2.Pollable](st.CapabilityState(), resource.Handle(out[0].(uint32)))
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		return p.Ready()
	}

	zero, err := h.SubscribeDuration(ctx, st, []any{uint64(0)})
	if err != nil {
		t.Fatalf("SubscribeDuration: %v", err)
	}
	if !ready(zero) {
		t.Error("a zero duration is ready at once")
	}

	later, err := h.SubscribeInstant(ctx, st, []any{uint64(time.Hour)})
	if err != nil {
		t.Fatalf("SubscribeInstant: %v", err)
	}
	if ready(later) {
		t.Error("a future instant should not be ready on a frozen clock")
	}

	forever, err := h.SubscribeDuration(ctx, st, []any{uint64(math.MaxUint64)})
	if err != nil {
		t.Fatalf("SubscribeDuration: %v", err)
	}
	if ready(forever) {
		t.Error("an overflowing duration should clamp, not wrap to the past")
	}
}

func TestNanos(t *testing.T) {
	if nanos(5) != 5 {
		t.Error("small values pass through")
	}
	if nanos(math.MaxUint64) != math.MaxInt64 {
		t.Error("large values clamp")
	}
}

func TestHosts(t *testing.T) {
	hosts := Hosts()
	if len(hosts) != 2 {
		t.Fatalf("got %d hosts", len(hosts))
	}
	if hosts[0].Namespace() == hosts[1].Namespace() {
		t.Error("namespaces should differ")
	}
}
