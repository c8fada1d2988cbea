package wasmhost

import "context"

// Allocator allocates memory in guest linear memory
type Allocator interface {
	Alloc(ctx context.Context, size, align uint32) (uint32, error)
}

// AllocatorFunc adapts a function to the Allocator interface
type AllocatorFunc func(ctx context.Context, size, align uint32) (uint32, error)

func (f AllocatorFunc) Alloc(ctx context.Context, size, align uint32) (uint32, error) {
	return f(ctx, size, align)
}
