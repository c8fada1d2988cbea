package preview2

import (
	"errors"
	"io"
	"sync"

	"github.com/wippyai/wasm-host/resource"
)

// DefaultBufferSize is what check-write reports for targets without a
// capacity (64 KB).
const DefaultBufferSize = 65536

// BlockingWriteLimit is the most one blocking-write-and-flush or
// blocking-write-zeroes-and-flush call may carry.
const BlockingWriteLimit = 4096

// MaxReadSize caps a single stream read (1 MB).
const MaxReadSize = 1 << 20

// StreamError is the host side of the WASI stream-error variant.
type StreamError struct {
	Err    error // cause of a failed operation
	Closed bool  // stream is closed
}

func (e *StreamError) Error() string {
	if e.Closed {
		return "stream closed"
	}
	if e.Err != nil {
		return "stream operation failed: " + e.Err.Error()
	}
	return "stream operation failed"
}

func (e *StreamError) Unwrap() error { return e.Err }

// AsStreamError converts err to a StreamError, treating unknown errors as
// a failed operation.
func AsStreamError(err error) *StreamError {
	var se *StreamError
	if errors.As(err, &se) {
		return se
	}
	return &StreamError{Err: err}
}

// remainer is implemented by targets with a bounded capacity, such as Sink.
type remainer interface {
	Remaining() int
}

type flusher interface {
	Flush() error
}

// OutputStream is an output-stream resource over a host writer. Dropping
// the handle closes the stream but never the writer, so several handles
// may share one target.
type OutputStream struct {
	w      io.Writer
	mu     sync.Mutex
	closed bool
}

// NewOutputStream wraps w. A nil w discards everything.
func NewOutputStream(w io.Writer) *OutputStream {
	if w == nil {
		w = io.Discard
	}
	return &OutputStream{w: w}
}

func (s *OutputStream) Kind() resource.Kind { return resource.KindOutputStream }

// Drop closes the stream.
func (s *OutputStream) Drop() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// CheckWrite reports how many bytes the next write may carry.
func (s *OutputStream) CheckWrite() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, &StreamError{Closed: true}
	}
	if r, ok := s.w.(remainer); ok {
		return uint64(min(r.Remaining(), DefaultBufferSize)), nil
	}
	return DefaultBufferSize, nil
}

// Write writes all of p or fails.
func (s *OutputStream) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &StreamError{Closed: true}
	}
	if _, err := s.w.Write(p); err != nil {
		return &StreamError{Err: err}
	}
	return nil
}

// Flush flushes buffered targets.
func (s *OutputStream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &StreamError{Closed: true}
	}
	// Files are unbuffered; only buffered writers need an explicit flush.
	var err error
	if f, ok := s.w.(flusher); ok {
		err = f.Flush()
	}
	if err != nil {
		return &StreamError{Err: err}
	}
	return nil
}

// InputStream is an input-stream resource over bytes or a reader.
type InputStream struct {
	reader io.Reader
	data   []byte
	offset int
	mu     sync.Mutex
	closed bool
}

// NewInputStream reads from data.
func NewInputStream(data []byte) *InputStream {
	return &InputStream{data: data}
}

// NewReaderStream reads from r.
func NewReaderStream(r io.Reader) *InputStream {
	return &InputStream{reader: r}
}

func (s *InputStream) Kind() resource.Kind { return resource.KindInputStream }

// Drop closes the stream.
func (s *InputStream) Drop() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Read returns up to n bytes. The end of input is reported as a closed
// stream error.
func (s *InputStream) Read(n uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, &StreamError{Closed: true}
	}
	n = min(n, MaxReadSize)

	if s.reader != nil {
		buf := make([]byte, n)
		got, err := s.reader.Read(buf)
		if got > 0 {
			return buf[:got], nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, &StreamError{Closed: true}
			}
			return nil, &StreamError{Err: err}
		}
		return []byte{}, nil
	}

	remaining := len(s.data) - s.offset
	if remaining == 0 {
		return nil, &StreamError{Closed: true}
	}
	toRead := min(int(n), remaining)
	out := s.data[s.offset : s.offset+toRead]
	s.offset += toRead
	return out, nil
}

// Error is an error resource carrying a debug message.
type Error struct {
	msg   string
	cause error
}

// NewError creates an error resource.
func NewError(msg string) *Error {
	return &Error{msg: msg}
}

// WrapError creates an error resource whose message is err's text.
func WrapError(err error) *Error {
	return &Error{msg: err.Error(), cause: err}
}

// Cause returns the wrapped error, if any.
func (e *Error) Cause() error { return e.cause }

func (e *Error) Kind() resource.Kind { return resource.KindError }

// DebugString returns the message.
func (e *Error) DebugString() string { return e.msg }

// Terminal is a terminal-input or terminal-output resource.
type Terminal struct {
	kind resource.Kind
}

// NewTerminalInput creates a terminal-input resource.
func NewTerminalInput() *Terminal { return &Terminal{kind: resource.KindTerminalInput} }

// NewTerminalOutput creates a terminal-output resource.
func NewTerminalOutput() *Terminal { return &Terminal{kind: resource.KindTerminalOutput} }

func (t *Terminal) Kind() resource.Kind { return t.kind }
