// Package transcoder implements the Canonical ABI for host calls.
//
// It converts between dynamically typed Go values and the Component Model's
// representation on the core value stack and in guest linear memory, driven
// by go.bytecodealliance.org/wit type descriptions.
//
// # Memory Layout
//
//	Type            Size    Alignment
//	──────────────────────────────────
//	bool            1       1
//	u8/s8           1       1
//	u16/s16         2       2
//	u32/s32/f32     4       4
//	u64/s64/f64     8       8
//	char            4       4
//	string          8       4 (ptr + len)
//	list<T>         8       4 (ptr + len)
//	own/borrow      4       4
//	record/tuple    sum     max field align
//	variant         varies  max(discriminant, case align)
//
// # Signatures
//
// ImportSignature and ExportSignature give the core function type a WIT
// function lowers or lifts to, including the indirect forms used when more
// than MaxFlatParams params or MaxFlatResults results are involved.
//
// # Calls
//
// A Context binds guest memory and the guest's cabi_realloc:
//
//	cx := &transcoder.Context{Memory: mod.Memory(), Alloc: alloc}
//	args, err := cx.LiftParams(paramTypes, stack)
//	flat, err := cx.LowerResults(ctx, resultTypes, results, retptr)
package transcoder
