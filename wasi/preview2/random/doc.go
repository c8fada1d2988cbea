// Package random implements wasi:random/random, wasi:random/insecure and
// wasi:random/insecure-seed over the configured random sources.
package random
