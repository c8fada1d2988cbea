package io

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/resource"
	"github.com/wippyai/wasm-host/transcoder"
	"github.com/wippyai/wasm-host/wasi/preview2"
)

func newState(t *testing.T, cfg *preview2.Config) *host.State {
	t.Helper()
	wc, err := preview2.NewContext(resource.NewTable(), cfg)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	st := host.New(nil, wc)
	t.Cleanup(func() { st.Close() })
	return st
}

func stdout(t *testing.T, st *host.State) uint32 {
	t.Helper()
	h, err := st.WASI().NewStdout()
	if err != nil {
		t.Fatalf("NewStdout: %v", err)
	}
	return uint32(h)
}

func stdin(t *testing.T, st *host.State) uint32 {
	t.Helper()
	h, err := st.WASI().NewStdin()
	if err != nil {
		t.Fatalf("NewStdin: %v", err)
	}
	return uint32(h)
}

func TestStreams_Write(t *testing.T) {
	sink := preview2.NewSink(0)
	st := newState(t, preview2.NewConfig().WithStdout(sink))
	h := NewStreamsHost()
	out := stdout(t, st)

	got, err := h.Write(context.Background(), st, []any{out, []byte("hello")})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if diff := cmp.Diff([]any{transcoder.OK(nil)}, got); diff != "" {
		t.Errorf("result (-want +got):\n%s", diff)
	}
	if sink.String() != "hello" {
		t.Errorf("sink = %q", sink.String())
	}

	check, err := h.CheckWrite(context.Background(), st, []any{out})
	if err != nil {
		t.Fatalf("CheckWrite: %v", err)
	}
	if check[0].(transcoder.Result).Value != uint64(preview2.DefaultBufferSize) {
		t.Errorf("check-write = %v", check[0])
	}
}

func TestStreams_WriteOverflow(t *testing.T) {
	sink := preview2.NewSink(4)
	st := newState(t, preview2.NewConfig().WithStdout(sink))
	h := NewStreamsHost()
	out := stdout(t, st)

	got, err := h.BlockingWriteAndFlush(context.Background(), st, []any{out, []byte("too long")})
	if err != nil {
		t.Fatalf("a full sink is a stream error, not a trap: %v", err)
	}
	res := got[0].(transcoder.Result)
	v := res.Value.(transcoder.Variant)
	if !res.IsErr || v.Case != "last-operation-failed" {
		t.Fatalf("result = %+v", res)
	}
	if sink.Len() != 0 {
		t.Errorf("sink should be untouched, has %q", sink.String())
	}

	msg, err := NewErrorHost().ToDebugString(context.Background(), st, []any{v.Value})
	if err != nil {
		t.Fatalf("ToDebugString: %v", err)
	}
	if !strings.Contains(msg[0].(string), preview2.ErrSinkFull.Error()) {
		t.Errorf("debug string = %q", msg[0])
	}

	check, _ := h.CheckWrite(context.Background(), st, []any{out})
	if check[0].(transcoder.Result).Value != uint64(4) {
		t.Errorf("check-write = %v, want remaining capacity", check[0])
	}
}

func TestStreams_WriteZeroes(t *testing.T) {
	sink := preview2.NewSink(0)
	st := newState(t, preview2.NewConfig().WithStdout(sink))
	h := NewStreamsHost()
	out := stdout(t, st)

	if _, err := h.WriteZeroes(context.Background(), st, []any{out, uint64(3)}); err != nil {
		t.Fatalf("WriteZeroes: %v", err)
	}
	if sink.String() != "\x00\x00\x00" {
		t.Errorf("sink = %q", sink.String())
	}
	if _, err := h.WriteZeroes(context.Background(), st, []any{out, uint64(preview2.DefaultBufferSize + 1)}); err == nil {
		t.Error("expected error beyond the check-write budget")
	}
	if _, err := h.BlockingWriteZeroesAndFlush(context.Background(), st, []any{out, uint64(preview2.BlockingWriteLimit + 1)}); err == nil {
		t.Error("expected error beyond the blocking write limit")
	}
	if sink.Len() != 3 {
		t.Errorf("rejected writes reached the sink: %d bytes", sink.Len())
	}
}

func TestStreams_WritePermit(t *testing.T) {
	ctx := context.Background()
	h := NewStreamsHost()

	t.Run("write beyond check-write traps", func(t *testing.T) {
		sink := preview2.NewSink(4)
		st := newState(t, preview2.NewConfig().WithStdout(sink))
		out := stdout(t, st)

		_, err := h.Write(ctx, st, []any{out, []byte("too long")})
		if kind, _ := errors.KindOf(err); kind != errors.KindInvalidInput {
			t.Fatalf("err = %v, want invalid input", err)
		}
		if sink.Len() != 0 {
			t.Errorf("sink = %q", sink.String())
		}

		got, err := h.Write(ctx, st, []any{out, []byte("four")})
		if err != nil {
			t.Fatalf("write within the permit: %v", err)
		}
		if diff := cmp.Diff([]any{transcoder.OK(nil)}, got); diff != "" {
			t.Errorf("result (-want +got):\n%s", diff)
		}
	})

	t.Run("blocking write is capped", func(t *testing.T) {
		sink := preview2.NewSink(0)
		st := newState(t, preview2.NewConfig().WithStdout(sink))
		out := stdout(t, st)

		limit := make([]byte, preview2.BlockingWriteLimit)
		if _, err := h.BlockingWriteAndFlush(ctx, st, []any{out, limit}); err != nil {
			t.Fatalf("write at the limit: %v", err)
		}
		_, err := h.BlockingWriteAndFlush(ctx, st, []any{out, make([]byte, preview2.BlockingWriteLimit+1)})
		if kind, _ := errors.KindOf(err); kind != errors.KindInvalidInput {
			t.Fatalf("err = %v, want invalid input", err)
		}
		if sink.Len() != preview2.BlockingWriteLimit {
			t.Errorf("sink holds %d bytes", sink.Len())
		}
	})
}

func TestStreams_Read(t *testing.T) {
	st := newState(t, preview2.NewConfig().WithStdin([]byte("abcdef")))
	h := NewStreamsHost()
	in := stdin(t, st)
	ctx := context.Background()

	got, err := h.Read(ctx, st, []any{in, uint64(2)})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := cmp.Diff([]any{transcoder.OK([]byte("ab"))}, got); diff != "" {
		t.Errorf("read (-want +got):\n%s", diff)
	}

	skipped, err := h.Skip(ctx, st, []any{in, uint64(3)})
	if err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if skipped[0].(transcoder.Result).Value != uint64(3) {
		t.Errorf("skip = %v", skipped[0])
	}

	rest, _ := h.Read(ctx, st, []any{in, uint64(10)})
	if diff := cmp.Diff([]any{transcoder.OK([]byte("f"))}, rest); diff != "" {
		t.Errorf("rest (-want +got):\n%s", diff)
	}

	end, err := h.Read(ctx, st, []any{in, uint64(10)})
	if err != nil {
		t.Fatalf("Read at end: %v", err)
	}
	want := []any{transcoder.Err(transcoder.Variant{Case: "closed"})}
	if diff := cmp.Diff(want, end); diff != "" {
		t.Errorf("end of input (-want +got):\n%s", diff)
	}
}

func TestStreams_InvalidHandle(t *testing.T) {
	st := newState(t, nil)
	h := NewStreamsHost()
	ctx := context.Background()

	lastFailed := func(name string, got []any, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		res, ok := got[0].(transcoder.Result)
		if !ok || !res.IsErr {
			t.Fatalf("%s: result = %+v", name, got[0])
		}
		if v, ok := res.Value.(transcoder.Variant); !ok || v.Case != "last-operation-failed" {
			t.Errorf("%s: error = %+v", name, res.Value)
		}
	}

	got, err := h.Write(ctx, st, []any{uint32(99), []byte("x")})
	lastFailed("write on an unknown handle", got, err)

	got, err = h.CheckWrite(ctx, st, []any{stdin(t, st)})
	lastFailed("check-write on an input stream", got, err)

	if _, err := h.Subscribe(ctx, st, []any{uint32(99)}); err == nil {
		t.Error("subscribe has no error case and should trap")
	}
}

func TestPoll(t *testing.T) {
	st := newState(t, nil)
	ctx := context.Background()
	out := stdout(t, st)

	sub, err := NewStreamsHost().Subscribe(ctx, st, []any{out})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	h := NewPollHost()

	ready, err := h.Ready(ctx, st, sub)
	if err != nil || ready[0] != true {
		t.Fatalf("Ready = %v, %v", ready, err)
	}
	if _, err := h.Block(ctx, st, sub); err != nil {
		t.Fatalf("Block: %v", err)
	}

	later, err := st.CapabilityState().Allocate(preview2.NewTimer(st.WASI().Clock(), time.Hour))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	got, err := h.Poll(ctx, st, []any{[]any{uint32(later), sub[0]}})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if diff := cmp.Diff([]any{[]any{uint32(1)}}, got); diff != "" {
		t.Errorf("poll (-want +got):\n%s", diff)
	}

	if _, err := h.Poll(ctx, st, []any{[]any{}}); err == nil {
		t.Error("polling nothing should trap")
	}
}

func TestPoll_Cancelled(t *testing.T) {
	st := newState(t, nil)
	later, err := st.CapabilityState().Allocate(preview2.NewTimer(st.WASI().Clock(), time.Hour))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewPollHost().Poll(ctx, st, []any{[]any{uint32(later)}}); err == nil {
		t.Error("expected cancellation error")
	}
}

func TestDrop(t *testing.T) {
	st := newState(t, nil)
	out := stdout(t, st)

	var drop func(context.Context, *host.State, []any) ([]any, error)
	for _, b := range NewStreamsHost().Bindings() {
		if b.Name == "[resource-drop]output-stream" {
			drop = b.Func
		}
	}
	if drop == nil {
		t.Fatal("no drop binding")
	}
	if _, err := drop(context.Background(), st, []any{out}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if _, err := drop(context.Background(), st, []any{out}); err == nil {
		t.Error("second drop should fail")
	}
}
