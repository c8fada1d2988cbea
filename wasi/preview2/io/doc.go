// Package io implements the wasi:io interfaces.
//
// Implements:
//   - wasi:io/streams - input and output streams
//   - wasi:io/poll - pollables
//   - wasi:io/error - errors carried by stream-error
//
// Every stream operation completes synchronously, so blocking and
// non-blocking variants behave the same and subscribe returns a pollable
// that is already ready.
package io
