package component

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/tetratelabs/wabin/leb128"
)

// Bounds on decoded sizes so malformed binaries cannot force large
// allocations or deep recursion.
const (
	maxNameLength = 100000
	maxCount      = 100000
	maxTypeDepth  = 64
)

var readerPool = sync.Pool{
	New: func() any {
		return &bytes.Reader{}
	},
}

// getReader gets a pooled reader initialized with data.
func getReader(data []byte) *bytes.Reader {
	r := readerPool.Get().(*bytes.Reader)
	r.Reset(data)
	return r
}

func putReader(r *bytes.Reader) {
	r.Reset(nil)
	readerPool.Put(r)
}

func readU32(r *bytes.Reader) (uint32, error) {
	v, _, err := leb128.DecodeUint32(r)
	return v, err
}

func readU64(r *bytes.Reader) (uint64, error) {
	v, _, err := leb128.DecodeUint64(r)
	return v, err
}

func readS33(r *bytes.Reader) (int64, error) {
	v, _, err := leb128.DecodeInt33AsInt64(r)
	return v, err
}

// readCount reads a vector length.
func readCount(r *bytes.Reader) (uint32, error) {
	n, err := readU32(r)
	if err != nil {
		return 0, err
	}
	if n > maxCount || int64(n) > int64(r.Len()) {
		return 0, fmt.Errorf("vector length %d exceeds remaining %d bytes", n, r.Len())
	}
	return n, nil
}

func readBytes(r *bytes.Reader, n uint32) ([]byte, error) {
	if int64(n) > int64(r.Len()) {
		return nil, io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	_, err := io.ReadFull(r, b)
	return b, err
}

// readName reads a length-prefixed UTF-8 string.
func readName(r *bytes.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	if n > maxNameLength {
		return "", fmt.Errorf("name length %d exceeds maximum %d", n, maxNameLength)
	}
	b, err := readBytes(r, n)
	if err != nil {
		return "", fmt.Errorf("read name: %w", err)
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("name %q is not UTF-8", b)
	}
	return string(b), nil
}

// readExternName reads an importname' or exportname': a 0x00 or 0x01
// prefix byte and the name.
func readExternName(r *bytes.Reader) (string, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	if kind > 0x01 {
		return "", fmt.Errorf("unknown name kind 0x%02x", kind)
	}
	return readName(r)
}

// expectByte consumes one byte that must equal want.
func expectByte(r *bytes.Reader, want byte, what string) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	if b != want {
		return fmt.Errorf("%s: want 0x%02x, got 0x%02x", what, want, b)
	}
	return nil
}

func appendName(b []byte, s string) []byte {
	b = append(b, leb128.EncodeUint32(uint32(len(s)))...)
	return append(b, s...)
}

func appendExternName(b []byte, s string) []byte {
	return appendName(append(b, 0x00), s)
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, leb128.EncodeUint32(v)...)
}
