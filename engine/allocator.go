package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"
)

// ReallocExport is the allocator a guest exports for the canonical ABI.
const ReallocExport = "cabi_realloc"

// GuestAllocator calls a guest's cabi_realloc(old_ptr, old_size, align,
// new_size) to reserve memory for values the host passes in.
type GuestAllocator struct {
	fn    api.Function
	stack []uint64
	mu    sync.Mutex
}

// NewGuestAllocator returns an allocator backed by the module's
// cabi_realloc export, or nil when it has none.
func NewGuestAllocator(mod api.Module) *GuestAllocator {
	fn := mod.ExportedFunction(ReallocExport)
	if fn == nil {
		return nil
	}
	return &GuestAllocator{fn: fn, stack: make([]uint64, 4)}
}

// Alloc implements wasmhost.Allocator.
func (a *GuestAllocator) Alloc(ctx context.Context, size, align uint32) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stack[0] = 0
	a.stack[1] = 0
	a.stack[2] = uint64(align)
	a.stack[3] = uint64(size)
	if err := a.fn.CallWithStack(ctx, a.stack); err != nil {
		return 0, err
	}
	ptr := uint32(a.stack[0])
	if ptr == 0 && size > 0 {
		return 0, fmt.Errorf("%s returned null for %d bytes", ReallocExport, size)
	}
	return ptr, nil
}
