// Package preview2 holds the host side of the WASI 0.2 capabilities a
// component may be granted.
//
// A Config describes what one instantiation may touch: where stdout and
// stderr go (an in-memory Sink, any io.Writer, or the host process), what
// stdin contains, which environment variables and host directories are
// visible, and the clock and random sources. NewContext applies a Config
// to a capability table; the host functions in the subpackages then reach
// every resource through that table.
//
//	stdout := preview2.NewSink(0)
//	cfg := preview2.NewConfig().
//	    WithStdout(stdout).
//	    WithEnvAllow("HOME").
//	    WithPreopen("/data", "./testdata")
//
// Nothing is granted by default. Output is discarded, stdin is empty, and
// the filesystem and environment are invisible.
//
// Subpackages implement the interfaces themselves:
//
//   - cli: environment, exit, stdin, stdout, stderr, terminal-*
//   - io: error, poll, streams
//   - clocks: wall-clock, monotonic-clock
//   - random: random, insecure, insecure-seed
//   - filesystem: preopens, types (read-only)
package preview2
