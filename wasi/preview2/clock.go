package preview2

import (
	"context"
	"time"

	"github.com/wippyai/wasm-host/resource"
)

// Clock is the time source behind wasi:clocks.
type Clock interface {
	// Now returns wall-clock time.
	Now() time.Time
	// Monotonic returns the time elapsed since the clock was created.
	Monotonic() time.Duration
}

type realClock struct {
	start time.Time
}

// RealClock reads the host clocks.
func RealClock() Clock {
	return &realClock{start: time.Now()}
}

func (c *realClock) Now() time.Time           { return time.Now() }
func (c *realClock) Monotonic() time.Duration { return time.Since(c.start) }

type fixedClock struct {
	t time.Time
}

// FixedClock always reports t and a monotonic time of zero, for
// deterministic runs.
func FixedClock(t time.Time) Clock {
	return fixedClock{t: t}
}

func (c fixedClock) Now() time.Time           { return c.t }
func (c fixedClock) Monotonic() time.Duration { return 0 }

// Timer is a pollable that becomes ready once the clock's monotonic time
// reaches the deadline.
type Timer struct {
	clock    Clock
	deadline time.Duration
}

// NewTimer creates a pollable ready at the monotonic instant deadline.
func NewTimer(clock Clock, deadline time.Duration) *Timer {
	return &Timer{clock: clock, deadline: deadline}
}

func (t *Timer) Kind() resource.Kind { return resource.KindPollable }

// Ready reports whether the deadline has passed.
func (t *Timer) Ready() bool {
	return t.clock.Monotonic() >= t.deadline
}

// Block waits until the deadline or until ctx is done.
func (t *Timer) Block(ctx context.Context) {
	remaining := t.deadline - t.clock.Monotonic()
	if remaining <= 0 {
		return
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Pollable is implemented by resources that can be waited on.
type Pollable interface {
	resource.Resource
	Ready() bool
	Block(ctx context.Context)
}
