package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in the host lifecycle the error occurred
type Phase string

const (
	PhaseLoad        Phase = "load"        // decoding and type-checking a component
	PhaseLink        Phase = "link"        // import resolution
	PhaseInstantiate Phase = "instantiate" // instance creation and start routines
	PhaseInvoke      Phase = "invoke"      // export calls
	PhaseCapability  Phase = "capability"  // capability table operations
	PhaseHost        Phase = "host"        // host binding registration
	PhaseABI         Phase = "abi"         // canonical ABI lifting and lowering
	PhaseParse       Phase = "parse"       // WIT parsing
)

// Kind categorizes the error
type Kind string

const (
	KindMalformed           Kind = "malformed"
	KindTypeMismatch        Kind = "type_mismatch"
	KindUnsatisfiedImport   Kind = "unsatisfied_import"
	KindSignatureMismatch   Kind = "signature_mismatch"
	KindDuplicateBinding    Kind = "duplicate_binding"
	KindStartTrap           Kind = "start_trap"
	KindTrap                Kind = "trap"
	KindUnknownExport       Kind = "unknown_export"
	KindArityOrTypeMismatch Kind = "arity_or_type_mismatch"
	KindInvalidHandle       Kind = "invalid_handle"
	KindExit                Kind = "exit"
	KindTerminated          Kind = "terminated"
	KindOutOfBounds         Kind = "out_of_bounds"
	KindInvalidData         Kind = "invalid_data"
	KindInvalidUTF8         Kind = "invalid_utf8"
	KindUnsupported         Kind = "unsupported"
	KindAllocation          Kind = "allocation"
	KindInvalidInput        Kind = "invalid_input"
	KindSyntax              Kind = "syntax"
)

// Sentinels for errors.Is checks. Matching compares Phase and Kind only.
var (
	ErrMalformed           = &Error{Phase: PhaseLoad, Kind: KindMalformed}
	ErrLoadTypeMismatch    = &Error{Phase: PhaseLoad, Kind: KindTypeMismatch}
	ErrUnsatisfiedImport   = &Error{Phase: PhaseLink, Kind: KindUnsatisfiedImport}
	ErrSignatureMismatch   = &Error{Phase: PhaseLink, Kind: KindSignatureMismatch}
	ErrDuplicateBinding    = &Error{Phase: PhaseLink, Kind: KindDuplicateBinding}
	ErrStartTrap           = &Error{Phase: PhaseInstantiate, Kind: KindStartTrap}
	ErrTrap                = &Error{Phase: PhaseInvoke, Kind: KindTrap}
	ErrUnknownExport       = &Error{Phase: PhaseInvoke, Kind: KindUnknownExport}
	ErrArityOrTypeMismatch = &Error{Phase: PhaseInvoke, Kind: KindArityOrTypeMismatch}
	ErrExit                = &Error{Phase: PhaseInvoke, Kind: KindExit}
	ErrTerminated          = &Error{Phase: PhaseInvoke, Kind: KindTerminated}
	ErrInvalidHandle       = &Error{Phase: PhaseCapability, Kind: KindInvalidHandle}
)

// Error is the structured error type used throughout the host
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	Name    string // import, export or handle the error refers to
	WitType string
	Detail  string
	Path    []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Name != "" {
		b.WriteString(" ")
		b.WriteString(fmt.Sprintf("%q", e.Name))
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.WitType != "" {
		b.WriteString(": WIT type ")
		b.WriteString(e.WitType)
	}

	if e.Detail != "" {
		if e.WitType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Name sets the import, export or handle name
func (b *Builder) Name(name string) *Builder {
	b.err.Name = name
	return b
}

// Path sets the value path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// WitType sets the WIT type name
func (b *Builder) WitType(t string) *Builder {
	b.err.WitType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// PhaseOf returns the phase of the first structured error in err's tree.
func PhaseOf(err error) (Phase, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Phase, true
	}
	return "", false
}

// KindOf returns the kind of the first structured error in err's tree.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Loader errors

// Malformed reports structural corruption of a component binary
func Malformed(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindMalformed,
		Detail: detail,
		Cause:  cause,
	}
}

// LoadTypeMismatch reports an interface inconsistency between the declared
// world and the core module
func LoadTypeMismatch(name, detail string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindTypeMismatch,
		Name:   name,
		Detail: detail,
	}
}

// Linker errors

// UnsatisfiedImport reports an import with no registered binding
func UnsatisfiedImport(name string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindUnsatisfiedImport,
		Name:   name,
		Detail: "no binding registered",
	}
}

// SignatureMismatch reports a binding whose signature differs from the import
func SignatureMismatch(name, want, got string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindSignatureMismatch,
		Name:   name,
		Detail: fmt.Sprintf("component declares %s, binding provides %s", want, got),
	}
}

// DuplicateBinding reports an import bound more than once
func DuplicateBinding(name string, count int) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindDuplicateBinding,
		Name:   name,
		Value:  count,
		Detail: fmt.Sprintf("%d bindings registered", count),
	}
}

// LinkErrors aggregates every failed import of one link attempt, in
// declaration order.
type LinkErrors struct {
	Errors []*Error
}

func (e *LinkErrors) Error() string {
	if len(e.Errors) == 0 {
		return "[link] no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d imports failed to link:", len(e.Errors)))
	for _, err := range e.Errors {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap exposes every link failure to errors.Is and errors.As
func (e *LinkErrors) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		errs[i] = err
	}
	return errs
}

// First returns the primary link failure
func (e *LinkErrors) First() *Error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[0]
}

// Instance errors

// StartTrap reports a trap raised by a guest start routine
func StartTrap(routine string, cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindStartTrap,
		Name:   routine,
		Detail: "guest initialization trapped",
		Cause:  cause,
	}
}

// Trap reports a guest fault during an export call
func Trap(export string, cause error) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindTrap,
		Name:   export,
		Detail: "guest trapped",
		Cause:  cause,
	}
}

// UnknownExport reports a call to an export the component does not declare
func UnknownExport(export string) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindUnknownExport,
		Name:   export,
		Detail: "export not declared",
	}
}

// ArityOrTypeMismatch reports arguments that do not match an export
func ArityOrTypeMismatch(export, detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindArityOrTypeMismatch,
		Name:   export,
		Detail: detail,
		Cause:  cause,
	}
}

// Exit reports a guest that requested process exit with a non-zero code
func Exit(export string, code uint32) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindExit,
		Name:   export,
		Value:  code,
		Detail: fmt.Sprintf("guest exited with code %d", code),
	}
}

// Terminated reports an invoke on an instance that can no longer run
func Terminated(export, state string) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindTerminated,
		Name:   export,
		Detail: fmt.Sprintf("instance is %s", state),
	}
}

// Capability errors

// InvalidHandle reports an unknown, closed or wrong-typed handle
func InvalidHandle(handle uint32, detail string) *Error {
	return &Error{
		Phase:  PhaseCapability,
		Kind:   KindInvalidHandle,
		Name:   fmt.Sprintf("%d", handle),
		Value:  handle,
		Detail: detail,
	}
}

// Canonical ABI errors

// TypeMismatch creates a value/type mismatch error while lifting or lowering
func TypeMismatch(path []string, goValue any, witType string) *Error {
	return &Error{
		Phase:   PhaseABI,
		Kind:    KindTypeMismatch,
		Path:    path,
		Value:   goValue,
		WitType: witType,
		Detail:  fmt.Sprintf("cannot use %T", goValue),
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  PhaseABI,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// OutOfBounds reports a guest pointer outside linear memory
func OutOfBounds(path []string, offset, length uint32) *Error {
	return &Error{
		Phase:  PhaseABI,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("range [%d, %d) outside linear memory", offset, uint64(offset)+uint64(length)),
	}
}

// InvalidDiscriminant creates an invalid discriminant error for variants
func InvalidDiscriminant(path []string, disc uint32, maxValid uint32) *Error {
	return &Error{
		Phase:  PhaseABI,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: fmt.Sprintf("discriminant %d out of range (max %d)", disc, maxValid),
		Value:  disc,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(size, align uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseABI,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
		Cause:  cause,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Syntax reports a world text parse failure on a line
func Syntax(line int, detail string) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindSyntax,
		Value:  line,
		Detail: fmt.Sprintf("line %d: %s", line, detail),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
