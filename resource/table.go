package resource

import (
	"math"
	"slices"
	"sync"

	"github.com/wippyai/wasm-host/errors"
)

// Table maps guest-visible handles to host resources for one instantiation.
//
// Handles are issued in increasing order starting at 1 and are never reissued,
// so a handle the guest still holds after Close can only ever resolve to an
// InvalidHandle error.
type Table struct {
	entries   map[Handle]Resource
	observers []subscription
	nextSub   int
	next      Handle
	limit     int
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithLimit caps the number of live resources. Zero means unlimited.
func WithLimit(n int) TableOption {
	return func(t *Table) {
		t.limit = n
	}
}

// NewTable creates an empty capability table.
func NewTable(opts ...TableOption) *Table {
	t := &Table{
		entries: make(map[Handle]Resource),
		next:    1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Allocate stores r and returns its new handle.
func (t *Table) Allocate(r Resource) (Handle, error) {
	if r == nil {
		return 0, errors.InvalidInput(errors.PhaseCapability, "resource cannot be nil")
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, errors.New(errors.PhaseCapability, errors.KindInvalidInput).
			Detail("table closed").
			Build()
	}
	if t.limit > 0 && len(t.entries) >= t.limit {
		t.mu.Unlock()
		return 0, errors.New(errors.PhaseCapability, errors.KindAllocation).
			Detail("resource limit %d reached", t.limit).
			Build()
	}
	if t.next == math.MaxUint32 {
		t.mu.Unlock()
		return 0, errors.New(errors.PhaseCapability, errors.KindAllocation).
			Detail("handle space exhausted").
			Build()
	}

	h := t.next
	t.next++
	t.entries[h] = r
	t.mu.Unlock()

	t.notify(Event{Type: EventCreated, Handle: h, Resource: r})
	return h, nil
}

// Resolve returns the resource behind h.
func (t *Table) Resolve(h Handle) (Resource, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.entries[h]
	if !ok {
		return nil, errors.InvalidHandle(uint32(h), "unknown or closed handle")
	}
	return r, nil
}

// ResolveKind returns the resource behind h if it is of the given kind.
func (t *Table) ResolveKind(h Handle, kind Kind) (Resource, error) {
	r, err := t.Resolve(h)
	if err != nil {
		return nil, err
	}
	if r.Kind() != kind {
		return nil, errors.InvalidHandle(uint32(h), "handle is "+r.Kind().String()+", not "+kind.String())
	}
	return r, nil
}

// ResolveAs returns the resource behind h as a T.
func ResolveAs[T Resource](t *Table, h Handle) (T, error) {
	var zero T
	r, err := t.Resolve(h)
	if err != nil {
		return zero, err
	}
	v, ok := r.(T)
	if !ok {
		return zero, errors.InvalidHandle(uint32(h), "handle is "+r.Kind().String())
	}
	return v, nil
}

// Close removes h from the table and drops its resource.
func (t *Table) Close(h Handle) error {
	t.mu.Lock()
	r, ok := t.entries[h]
	if !ok {
		t.mu.Unlock()
		return errors.InvalidHandle(uint32(h), "unknown or closed handle")
	}
	delete(t.entries, h)
	t.mu.Unlock()

	if d, ok := r.(Dropper); ok {
		d.Drop()
	}
	t.notify(Event{Type: EventClosed, Handle: h, Resource: r})
	return nil
}

// Handles returns the live handles in allocation order.
func (t *Table) Handles() []Handle {
	t.mu.RLock()
	handles := make([]Handle, 0, len(t.entries))
	for h := range t.entries {
		handles = append(handles, h)
	}
	t.mu.RUnlock()

	slices.Sort(handles)
	return handles
}

// Len returns the number of live resources.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

type subscription struct {
	observer Observer
	id       int
}

// Subscribe adds an observer for lifecycle events and returns a function
// that removes it.
func (t *Table) Subscribe(o Observer) (unsubscribe func()) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.observers = append(t.observers, subscription{id: id, observer: o})

	return func() {
		t.obsMu.Lock()
		defer t.obsMu.Unlock()
		t.observers = slices.DeleteFunc(t.observers, func(s subscription) bool {
			return s.id == id
		})
	}
}

// CloseAll drops every live resource in allocation order and stops
// accepting allocations.
func (t *Table) CloseAll() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	for _, h := range t.Handles() {
		_ = t.Close(h)
	}
}

// Closed reports whether CloseAll has been called.
func (t *Table) Closed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, s := range t.observers {
		s.observer.OnResourceEvent(e)
	}
}
