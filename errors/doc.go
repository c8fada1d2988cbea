// Package errors provides structured error types for the wasm-host library.
//
// Errors are categorized by Phase (load, link, instantiate, invoke, capability)
// and Kind. Each host-visible failure of the component lifecycle has a sentinel
// that matches on phase and kind with the standard library's errors.Is:
//
//	_, err := linker.Link(comp)
//	if stderrors.Is(err, errors.ErrUnsatisfiedImport) {
//		...
//	}
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLink, errors.KindSignatureMismatch).
//		Name("name").
//		Detail("component declares %s", want).
//		Build()
//
// PhaseOf reports which lifecycle phase failed, for user-facing output.
package errors
