package random

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/wasi/preview2/internal/bind"
)

// MaxRandomBytes limits single-call allocation (1MB).
const MaxRandomBytes = 1 << 20

// Hosts returns every wasi:random host.
func Hosts() []linker.Host {
	return []linker.Host{NewSecureRandomHost(), NewInsecureRandomHost(), NewInsecureSeedHost()}
}

type SecureRandomHost struct{}

func NewSecureRandomHost() *SecureRandomHost {
	return &SecureRandomHost{}
}

func (h *SecureRandomHost) Namespace() string {
	return bind.Namespace("random", "random")
}

func (h *SecureRandomHost) Bindings() []linker.Binding {
	return []linker.Binding{
		bind.Func("get-random-bytes", "func(len: u64) -> list<u8>", h.GetRandomBytes),
		bind.Func("get-random-u64", "func() -> u64", h.GetRandomU64),
	}
}

func (h *SecureRandomHost) GetRandomBytes(_ context.Context, st *host.State, p []any) ([]any, error) {
	return bind.One(readBytes(st.WASI().Random(), p[0].(uint64)))
}

func (h *SecureRandomHost) GetRandomU64(_ context.Context, st *host.State, _ []any) ([]any, error) {
	return bind.One(readU64(st.WASI().Random()))
}

func readBytes(r io.Reader, n uint64) ([]byte, error) {
	buf := make([]byte, min(n, MaxRandomBytes))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
