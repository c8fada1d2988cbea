// Package wasmhost hosts WebAssembly components: it loads them, resolves
// their imports against host-provided bindings, instantiates them with
// per-instance state and invokes their exports.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	wasmhost/            Root package with the guest Allocator interface
//	├── runtime/         High-level API: load, link, instantiate, invoke
//	├── component/       Component loading, world parsing and type checks
//	├── linker/          Host binding registry and link-time checks
//	├── host/            Per-instantiation host state
//	├── engine/          wazero integration and guest allocation
//	├── transcoder/      Canonical ABI lifting and lowering
//	├── resource/        Capability handle table
//	├── errors/          Structured error types
//	├── wasi/preview2/   WASI preview2 capability context and hosts
//	└── cmd/run/         Command-line runner
//
// # Lifecycle
//
// A component moves through Unlinked (loaded), Linked (every import has
// exactly one matching binding), Instantiated and then Ready. An invocation
// that traps leaves the instance Trapped; a guest calling wasi:cli/exit
// leaves it Completed. Both are terminal.
//
// # Thread Safety
//
// Runtime, Linker and Component are safe for concurrent use. An Instance
// serializes its own calls, and a host.State serves a single instance.
//
// # Memory Model
//
// WASM linear memory can only grow, never shrink. Guest memory freed by the
// guest stays allocated to the instance until it is closed.
package wasmhost
