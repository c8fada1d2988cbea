package io

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/resource"
	"github.com/wippyai/wasm-host/transcoder"
	"github.com/wippyai/wasm-host/wasi/preview2"
	"github.com/wippyai/wasm-host/wasi/preview2/internal/bind"
)

// reader is any input-stream resource.
type reader interface {
	resource.Resource
	Read(n uint64) ([]byte, error)
}

// StreamsHost implements wasi:io/streams over the input and output stream
// resources in the instance's capability table.
type StreamsHost struct{}

// NewStreamsHost creates the wasi:io/streams host.
func NewStreamsHost() *StreamsHost {
	return &StreamsHost{}
}

// Namespace returns the versioned interface name.
func (h *StreamsHost) Namespace() string {
	return bind.Namespace("io", "streams")
}

const (
	readSig      = "func(self: borrow<input-stream>, len: u64) -> result<list<u8>, stream-error>"
	skipSig      = "func(self: borrow<input-stream>, len: u64) -> result<u64, stream-error>"
	checkSig     = "func(self: borrow<output-stream>) -> result<u64, stream-error>"
	writeSig     = "func(self: borrow<output-stream>, contents: list<u8>) -> result<_, stream-error>"
	flushSig     = "func(self: borrow<output-stream>) -> result<_, stream-error>"
	zeroesSig    = "func(self: borrow<output-stream>, len: u64) -> result<_, stream-error>"
	inSubSig     = "func(self: borrow<input-stream>) -> own<pollable>"
	outSubSig    = "func(self: borrow<output-stream>) -> own<pollable>"
	inputPrefix  = "[method]input-stream."
	outputPrefix = "[method]output-stream."
)

// Bindings returns the stream methods and resource drops.
func (h *StreamsHost) Bindings() []linker.Binding {
	return []linker.Binding{
		bind.Func(inputPrefix+"read", readSig, h.Read),
		bind.Func(inputPrefix+"blocking-read", readSig, h.Read),
		bind.Func(inputPrefix+"skip", skipSig, h.Skip),
		bind.Func(inputPrefix+"blocking-skip", skipSig, h.Skip),
		bind.Func(inputPrefix+"subscribe", inSubSig, h.Subscribe),
		bind.Drop("input-stream"),

		bind.Func(outputPrefix+"check-write", checkSig, h.CheckWrite),
		bind.Func(outputPrefix+"write", writeSig, h.Write),
		bind.Func(outputPrefix+"blocking-write-and-flush", writeSig, h.BlockingWriteAndFlush),
		bind.Func(outputPrefix+"flush", flushSig, h.Flush),
		bind.Func(outputPrefix+"blocking-flush", flushSig, h.Flush),
		bind.Func(outputPrefix+"write-zeroes", zeroesSig, h.WriteZeroes),
		bind.Func(outputPrefix+"blocking-write-zeroes-and-flush", zeroesSig, h.BlockingWriteZeroesAndFlush),
		bind.Func(outputPrefix+"subscribe", outSubSig, h.Subscribe),
		bind.Drop("output-stream"),
	}
}

func input(st *host.State, v any) (reader, error) {
	return resource.ResolveAs[reader](st.CapabilityState(), bind.Handle(v))
}

func output(st *host.State, v any) (*preview2.OutputStream, error) {
	return resource.ResolveAs[*preview2.OutputStream](st.CapabilityState(), bind.Handle(v))
}

// result wraps the outcome of a stream operation. Stream failures and
// unknown handles are values for the guest.
func result(st *host.State, ok any, err error) ([]any, error) {
	if err == nil {
		return []any{transcoder.OK(ok)}, nil
	}
	r, aerr := bind.StreamError(st, err)
	if aerr != nil {
		return nil, aerr
	}
	return []any{r}, nil
}

// Read backs read and blocking-read. Data is returned as soon as any is
// available.
func (h *StreamsHost) Read(_ context.Context, st *host.State, p []any) ([]any, error) {
	s, err := input(st, p[0])
	if err != nil {
		return result(st, nil, err)
	}
	data, err := s.Read(p[1].(uint64))
	return result(st, data, err)
}

// Skip backs skip and blocking-skip.
func (h *StreamsHost) Skip(_ context.Context, st *host.State, p []any) ([]any, error) {
	s, err := input(st, p[0])
	if err != nil {
		return result(st, nil, err)
	}
	data, err := s.Read(p[1].(uint64))
	return result(st, uint64(len(data)), err)
}

// CheckWrite reports how many bytes the next write may carry.
func (h *StreamsHost) CheckWrite(_ context.Context, st *host.State, p []any) ([]any, error) {
	s, err := output(st, p[0])
	if err != nil {
		return result(st, nil, err)
	}
	n, err := s.CheckWrite()
	return result(st, n, err)
}

// Write is write. Contents larger than check-write allows trap.
func (h *StreamsHost) Write(_ context.Context, st *host.State, p []any) ([]any, error) {
	data := p[1].([]byte)
	return put(st, p[0], "write", uint64(len(data)), false, func() []byte { return data })
}

// BlockingWriteAndFlush writes and flushes at most
// preview2.BlockingWriteLimit bytes; more traps. A write the target
// rejects, such as a full sink, is last-operation-failed.
func (h *StreamsHost) BlockingWriteAndFlush(_ context.Context, st *host.State, p []any) ([]any, error) {
	data := p[1].([]byte)
	return put(st, p[0], "blocking-write-and-flush", uint64(len(data)), true, func() []byte { return data })
}

// Flush backs flush and blocking-flush.
func (h *StreamsHost) Flush(_ context.Context, st *host.State, p []any) ([]any, error) {
	s, err := output(st, p[0])
	if err != nil {
		return result(st, nil, err)
	}
	return result(st, nil, s.Flush())
}

// WriteZeroes is write-zeroes, bounded like Write.
func (h *StreamsHost) WriteZeroes(_ context.Context, st *host.State, p []any) ([]any, error) {
	n := p[1].(uint64)
	return put(st, p[0], "write-zeroes", n, false, func() []byte { return make([]byte, n) })
}

// BlockingWriteZeroesAndFlush is blocking-write-zeroes-and-flush, bounded
// like BlockingWriteAndFlush.
func (h *StreamsHost) BlockingWriteZeroesAndFlush(_ context.Context, st *host.State, p []any) ([]any, error) {
	n := p[1].(uint64)
	return put(st, p[0], "blocking-write-zeroes-and-flush", n, true, func() []byte { return make([]byte, n) })
}

// put writes the n bytes fill returns. Blocking calls are bounded by
// preview2.BlockingWriteLimit and flush afterwards; the others by the
// current check-write permit. Exceeding the bound traps before fill runs.
func put(st *host.State, handle any, op string, n uint64, blocking bool, fill func() []byte) ([]any, error) {
	s, err := output(st, handle)
	if err != nil {
		return result(st, nil, err)
	}

	limit := uint64(preview2.BlockingWriteLimit)
	if !blocking {
		if limit, err = s.CheckWrite(); err != nil {
			return result(st, nil, err)
		}
	}
	if n > limit {
		return nil, errors.InvalidInput(errors.PhaseHost,
			fmt.Sprintf("%s of %d bytes exceeds the %d permitted", op, n, limit))
	}

	if err := s.Write(fill()); err != nil {
		preview2.Logger().Debug("stream write failed", zap.Uint32("handle", uint32(bind.Handle(handle))), zap.Error(err))
		return result(st, nil, err)
	}
	if !blocking {
		return result(st, nil, nil)
	}
	return result(st, nil, s.Flush())
}

// Subscribe returns a pollable that is ready at once.
func (h *StreamsHost) Subscribe(_ context.Context, st *host.State, p []any) ([]any, error) {
	if _, err := st.CapabilityState().Resolve(bind.Handle(p[0])); err != nil {
		return nil, err
	}
	return bind.One(bind.Allocate(st, preview2.NewTimer(st.WASI().Clock(), 0)))
}
