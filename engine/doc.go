// Package engine wraps the wazero runtime shared by a host.
//
// An Engine owns one wazero.Runtime and its compilation cache. Components,
// host modules and instances are all compiled and instantiated in that
// runtime, so closing the engine releases everything created through it.
//
// The runtime is configured with WithCloseOnContextDone, which lets a
// cancelled context interrupt a running guest call.
//
// GuestAllocator adapts a guest's cabi_realloc export to the
// wasmhost.Allocator interface used by the transcoder when values have to
// be copied into guest memory.
//
// Logging goes through the package-level Logger, which is a no-op until
// SetLogger is called.
package engine
