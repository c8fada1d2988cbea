package linker

import "strings"

// HostCallError is the trap cause raised when a host function fails.
type HostCallError struct {
	Cause  error
	Import string
}

func (e *HostCallError) Error() string {
	var b strings.Builder
	b.WriteString("host function ")
	b.WriteString(e.Import)
	b.WriteString(" failed")
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *HostCallError) Unwrap() error {
	return e.Cause
}

// InstantiationError reports a host module that could not be built or
// instantiated.
type InstantiationError struct {
	Cause  error
	Module string
	Reason string
}

func (e *InstantiationError) Error() string {
	var b strings.Builder
	b.WriteString("instantiation failed")
	if e.Module != "" {
		b.WriteString(": ")
		b.WriteString(e.Module)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *InstantiationError) Unwrap() error {
	return e.Cause
}
