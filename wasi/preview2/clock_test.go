package preview2

import (
	"context"
	"testing"
	"time"
)

type stepClock struct {
	now time.Duration
}

func (c *stepClock) Now() time.Time           { return time.Unix(0, int64(c.now)) }
func (c *stepClock) Monotonic() time.Duration { return c.now }

func TestTimer_Ready(t *testing.T) {
	clock := &stepClock{}
	timer := NewTimer(clock, time.Second)
	if timer.Ready() {
		t.Error("timer ready before deadline")
	}
	clock.now = time.Second
	if !timer.Ready() {
		t.Error("timer not ready at deadline")
	}
	timer.Block(context.Background())
}

func TestTimer_BlockCancelled(t *testing.T) {
	timer := NewTimer(RealClock(), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		timer.Block(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Block ignored cancellation")
	}
}

func TestRealClock(t *testing.T) {
	c := RealClock()
	a := c.Monotonic()
	time.Sleep(time.Millisecond)
	if c.Monotonic() <= a {
		t.Error("monotonic clock did not advance")
	}
}
