// Package host holds the per-instantiation state passed to every host
// function.
//
// A State bundles the embedder's own value (the user state) with the WASI
// capability context and its handle table. The runtime binds a State to
// exactly one instance; host functions receive it as an explicit argument.
package host

import (
	"context"
	"sync/atomic"

	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/resource"
	"github.com/wippyai/wasm-host/wasi/preview2"
)

// State is the host state container of one instantiation.
type State struct {
	user  any
	wasi  *preview2.Context
	table *resource.Table
	bound atomic.Bool
}

// New creates a state carrying user and the capabilities in caps. A nil
// caps grants nothing: output is discarded and the table starts empty.
func New(user any, caps *preview2.Context) *State {
	if caps == nil {
		// NewContext fails only on preopens, and the default config has none.
		caps, _ = preview2.NewContext(resource.NewTable(), nil)
	}
	return &State{
		user:  user,
		wasi:  caps,
		table: caps.Table(),
	}
}

// CapabilityState returns the handle table.
func (s *State) CapabilityState() *resource.Table { return s.table }

// UserState returns the embedder's value.
func (s *State) UserState() any { return s.user }

// WASI returns the WASI capability context.
func (s *State) WASI() *preview2.Context { return s.wasi }

// User returns the user state as a T.
func User[T any](s *State) (T, bool) {
	v, ok := s.user.(T)
	return v, ok
}

// Acquire binds the state to an instance. A state serves one instance at
// a time.
func (s *State) Acquire() error {
	if !s.bound.CompareAndSwap(false, true) {
		return errors.InvalidInput(errors.PhaseInstantiate, "host state is already bound to a live instance")
	}
	return nil
}

// Release unbinds the state.
func (s *State) Release() {
	s.bound.Store(false)
}

// Bound reports whether an instance holds the state.
func (s *State) Bound() bool { return s.bound.Load() }

// Close drops every resource in the table and releases preopened
// directories.
func (s *State) Close() error {
	s.table.CloseAll()
	return s.wasi.Close()
}

type stateKey struct{}

// WithState returns a context carrying st.
func WithState(ctx context.Context, st *State) context.Context {
	return context.WithValue(ctx, stateKey{}, st)
}

// FromContext returns the state carried by ctx, or nil.
func FromContext(ctx context.Context) *State {
	st, _ := ctx.Value(stateKey{}).(*State)
	return st
}
