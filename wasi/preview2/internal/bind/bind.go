// Package bind holds helpers shared by the WASI host packages.
package bind

import (
	"context"

	"github.com/wippyai/wasm-host/component"
	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/resource"
	"github.com/wippyai/wasm-host/transcoder"
	"github.com/wippyai/wasm-host/wasi/preview2"
)

// Namespace returns the versioned name of a WASI interface, e.g.
// Namespace("cli", "stdout") is "wasi:cli/stdout@0.2.8".
func Namespace(pkg, iface string) string {
	return "wasi:" + pkg + "/" + iface + "@" + preview2.Version
}

// Func builds a binding from a WIT signature.
func Func(name, sig string, fn linker.HostFunc) linker.Binding {
	return linker.Binding{Name: name, Type: component.MustParseFuncType(sig), Func: fn}
}

// Drop builds the [resource-drop] binding of a resource type. Dropping
// closes the handle; an unknown handle traps.
func Drop(res string) linker.Binding {
	return Func("[resource-drop]"+res, "func(self: own<"+res+">)",
		func(_ context.Context, st *host.State, p []any) ([]any, error) {
			return nil, st.CapabilityState().Close(Handle(p[0]))
		})
}

// Handle converts a lifted own or borrow argument.
func Handle(v any) resource.Handle {
	h, _ := v.(uint32)
	return resource.Handle(h)
}

// Allocate stores r in the state's table and returns the handle as a
// lowerable value.
func Allocate(st *host.State, r resource.Resource) (uint32, error) {
	h, err := st.CapabilityState().Allocate(r)
	return uint32(h), err
}

// StreamError converts a failed stream operation to the err side of a
// result<_, stream-error>. Failures other than a closed stream carry a
// new error resource.
func StreamError(st *host.State, err error) (transcoder.Result, error) {
	se := preview2.AsStreamError(err)
	if se.Closed {
		return transcoder.Err(transcoder.Variant{Case: "closed"}), nil
	}
	h, aerr := Allocate(st, preview2.WrapError(se))
	if aerr != nil {
		return transcoder.Result{}, aerr
	}
	return transcoder.Err(transcoder.Variant{Case: "last-operation-failed", Value: h}), nil
}

// One wraps a single result.
func One(v any, err error) ([]any, error) {
	if err != nil {
		return nil, err
	}
	return []any{v}, nil
}
