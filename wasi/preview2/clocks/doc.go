// Package clocks implements wasi:clocks/wall-clock and
// wasi:clocks/monotonic-clock over the configured clock source.
package clocks
