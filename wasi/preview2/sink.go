package preview2

import (
	"bytes"
	"errors"
	"math"
	"sync"
)

// ErrSinkFull is returned by Sink.Write when the write would exceed the
// sink's capacity.
var ErrSinkFull = errors.New("write beyond sink capacity")

// Sink is an in-memory output stream target. It is append-only and may be
// read at any time, typically after the guest returns.
type Sink struct {
	buf      bytes.Buffer
	capacity int
	mu       sync.Mutex
}

// NewSink creates a sink holding at most capacity bytes. Zero means
// unbounded.
func NewSink(capacity int) *Sink {
	return &Sink{capacity: capacity}
}

// Write appends p. A write that does not fit in the remaining capacity is
// rejected whole with ErrSinkFull.
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capacity > 0 && s.buf.Len()+len(p) > s.capacity {
		return 0, ErrSinkFull
	}
	return s.buf.Write(p)
}

// Remaining returns how many more bytes the sink accepts.
func (s *Sink) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capacity == 0 {
		return math.MaxInt
	}
	return s.capacity - s.buf.Len()
}

// Bytes returns a copy of everything written so far.
func (s *Sink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.buf.Bytes())
}

// String returns the contents as a string.
func (s *Sink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Len returns the number of bytes written.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// Reset discards the contents.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
}
