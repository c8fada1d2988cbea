// Package cli implements the wasi:cli interfaces.
//
// Implements:
//   - wasi:cli/environment - granted variables, arguments and cwd
//   - wasi:cli/exit - guest exit with a status
//   - wasi:cli/stdin, stdout, stderr - handles on the configured targets
//   - wasi:cli/terminal-input, terminal-output - terminal resources
//   - wasi:cli/terminal-stdin, terminal-stdout, terminal-stderr
package cli
