// Package linker resolves a component's imports against host bindings.
//
// Bindings are registered by interface and function name with the WIT
// signature they implement:
//
//	l := linker.New()
//	l.Register("", "name", component.MustParseFuncType("func() -> string"),
//	    func(ctx context.Context, st *host.State, _ []any) ([]any, error) {
//	        return []any{"me"}, nil
//	    })
//	linked, err := l.Link(comp)
//
// Link is a pure check. Every import must resolve to exactly one binding
// with an equal signature, otherwise it fails with a *errors.LinkErrors
// listing unsatisfied imports, duplicate bindings and signature
// mismatches in declaration order.
//
// An import of a versioned interface prefers a binding of exactly that
// interface and falls back to the highest semver-compatible version, so a
// wasi:cli/stdout@0.2.0 import binds to a wasi:cli/stdout@0.2.3 host.
//
// A Linked component builds one wazero host module per imported core
// module name. Each host function lifts its arguments through the
// canonical ABI, calls the binding with the calling instance's host.State
// and lowers the results. A binding error traps the guest.
package linker
