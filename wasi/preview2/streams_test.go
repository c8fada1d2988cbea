package preview2

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/wippyai/wasm-host/resource"
)

func TestOutputStream_Write(t *testing.T) {
	sink := NewSink(0)
	s := NewOutputStream(sink)

	if s.Kind() != resource.KindOutputStream {
		t.Errorf("Kind() = %s", s.Kind())
	}
	if n, err := s.CheckWrite(); err != nil || n != DefaultBufferSize {
		t.Errorf("CheckWrite() = %d, %v", n, err)
	}
	if err := s.Write([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	if sink.String() != "abc" {
		t.Errorf("sink = %q", sink.String())
	}

	s.Drop()
	err := s.Write([]byte("x"))
	var se *StreamError
	if !errors.As(err, &se) || !se.Closed {
		t.Errorf("write after drop = %v, want closed", err)
	}
	if _, err := s.CheckWrite(); err == nil {
		t.Error("CheckWrite after drop should fail")
	}
}

func TestOutputStream_SharedTarget(t *testing.T) {
	sink := NewSink(0)
	a, b := NewOutputStream(sink), NewOutputStream(sink)

	_ = a.Write([]byte("one "))
	a.Drop()
	if err := b.Write([]byte("two")); err != nil {
		t.Fatalf("dropping one stream must not close the target: %v", err)
	}
	if sink.String() != "one two" {
		t.Errorf("sink = %q", sink.String())
	}
}

func TestOutputStream_BoundedSink(t *testing.T) {
	sink := NewSink(4)
	s := NewOutputStream(sink)

	if n, _ := s.CheckWrite(); n != 4 {
		t.Errorf("CheckWrite() = %d, want 4", n)
	}
	err := s.Write([]byte("too long"))
	var se *StreamError
	if !errors.As(err, &se) || se.Closed {
		t.Fatalf("err = %v, want last-operation-failed", err)
	}
	if !errors.Is(err, ErrSinkFull) {
		t.Errorf("err should wrap ErrSinkFull: %v", err)
	}
}

func TestOutputStream_NilWriter(t *testing.T) {
	if err := NewOutputStream(nil).Write([]byte("discarded")); err != nil {
		t.Error(err)
	}
}

func TestInputStream_Bytes(t *testing.T) {
	s := NewInputStream([]byte("hello"))

	got, err := s.Read(3)
	if err != nil || string(got) != "hel" {
		t.Fatalf("Read(3) = %q, %v", got, err)
	}
	got, err = s.Read(10)
	if err != nil || string(got) != "lo" {
		t.Fatalf("Read(10) = %q, %v", got, err)
	}
	_, err = s.Read(1)
	var se *StreamError
	if !errors.As(err, &se) || !se.Closed {
		t.Errorf("read at end = %v, want closed", err)
	}
}

func TestInputStream_Reader(t *testing.T) {
	s := NewReaderStream(strings.NewReader("abc"))
	got, err := s.Read(100)
	if err != nil || !bytes.Equal(got, []byte("abc")) {
		t.Fatalf("Read = %q, %v", got, err)
	}
	if _, err := s.Read(1); !AsStreamError(err).Closed {
		t.Errorf("EOF should close the stream: %v", err)
	}

	s.Drop()
	if _, err := s.Read(1); err == nil {
		t.Error("read after drop should fail")
	}
}

func TestAsStreamError(t *testing.T) {
	plain := errors.New("boom")
	se := AsStreamError(plain)
	if se.Closed || !errors.Is(se, plain) {
		t.Errorf("AsStreamError(plain) = %+v", se)
	}

	closed := &StreamError{Closed: true}
	if AsStreamError(closed) != closed {
		t.Error("existing StreamError should be returned as is")
	}
	if closed.Error() != "stream closed" {
		t.Errorf("Error() = %q", closed.Error())
	}
}

func TestErrorResource(t *testing.T) {
	e := NewError("disk on fire")
	if e.Kind() != resource.KindError || e.DebugString() != "disk on fire" {
		t.Errorf("error resource = %s %q", e.Kind(), e.DebugString())
	}
	cause := &FSError{Code: "no-entry"}
	w := WrapError(cause)
	if w.DebugString() != "no-entry" || w.Cause() != error(cause) {
		t.Errorf("wrapped error = %q %v", w.DebugString(), w.Cause())
	}
	if NewTerminalInput().Kind() != resource.KindTerminalInput {
		t.Error("terminal-input kind")
	}
	if NewTerminalOutput().Kind() != resource.KindTerminalOutput {
		t.Error("terminal-output kind")
	}
}
