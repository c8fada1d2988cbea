// Package resource implements the capability table.
//
// A Table maps integer handles to host-side resources (streams, pollables,
// descriptors). Guest code only ever sees the handle; every operation on a
// resource goes through the host, which resolves the handle first:
//
//	table := resource.NewTable()
//
//	h, err := table.Allocate(stdout)
//	r, err := table.Resolve(h)          // InvalidHandle if unknown or closed
//	s, err := resource.ResolveAs[*preview2.OutputStream](table, h)
//	err = table.Close(h)                // drops the resource
//
// Handles start at 1 and increase monotonically; a closed handle is never
// issued again for the lifetime of the table.
//
// # Observers
//
//	unsubscribe := table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//		log.Printf("%d: %v", e.Handle, e.Type)
//	}))
//
// One table belongs to exactly one instantiation. CloseAll releases every
// remaining resource when the instance is closed.
package resource
