package resource

import (
	stderrors "errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"

	"github.com/wippyai/wasm-host/errors"
)

type testResource struct {
	name    string
	kind    Kind
	dropped int
}

func (r *testResource) Kind() Kind { return r.kind }
func (r *testResource) Drop()      { r.dropped++ }

type plainResource struct{}

func (plainResource) Kind() Kind { return KindPollable }

type testObserver struct {
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.events = append(o.events, e)
}

func TestTable_Basic(t *testing.T) {
	table := NewTable()
	r := &testResource{name: "stdout", kind: KindOutputStream}

	h, err := table.Allocate(r)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if h == 0 {
		t.Fatal("expected non-zero handle")
	}

	got, err := table.Resolve(h)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != r {
		t.Fatalf("Resolve returned %v, want %v", got, r)
	}

	if _, err := table.ResolveKind(h, KindOutputStream); err != nil {
		t.Fatalf("ResolveKind with matching kind: %v", err)
	}
	if _, err := table.ResolveKind(h, KindInputStream); !stderrors.Is(err, errors.ErrInvalidHandle) {
		t.Fatalf("ResolveKind with wrong kind: %v", err)
	}

	if err := table.Close(h); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if r.dropped != 1 {
		t.Fatalf("dropped = %d, want 1", r.dropped)
	}
	if table.Len() != 0 {
		t.Fatalf("Len = %d after Close", table.Len())
	}
}

func TestTable_InvalidHandle(t *testing.T) {
	table := NewTable()

	tests := []struct {
		name string
		h    Handle
	}{
		{"zero", 0},
		{"never issued", 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := table.Resolve(tt.h); !stderrors.Is(err, errors.ErrInvalidHandle) {
				t.Errorf("Resolve(%d) = %v", tt.h, err)
			}
			if err := table.Close(tt.h); !stderrors.Is(err, errors.ErrInvalidHandle) {
				t.Errorf("Close(%d) = %v", tt.h, err)
			}
		})
	}
}

func TestTable_CloseTwice(t *testing.T) {
	table := NewTable()
	h, _ := table.Allocate(plainResource{})

	if err := table.Close(h); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := table.Close(h); !stderrors.Is(err, errors.ErrInvalidHandle) {
		t.Fatalf("second Close = %v, want invalid handle", err)
	}
}

func TestTable_HandlesNotReused(t *testing.T) {
	table := NewTable()

	h1, _ := table.Allocate(plainResource{})
	if err := table.Close(h1); err != nil {
		t.Fatal(err)
	}
	h2, _ := table.Allocate(plainResource{})

	if h1 == h2 {
		t.Fatalf("handle %d was reissued", h1)
	}
	if _, err := table.Resolve(h1); !stderrors.Is(err, errors.ErrInvalidHandle) {
		t.Fatalf("stale handle resolved: %v", err)
	}
}

func TestTable_ResolveAs(t *testing.T) {
	table := NewTable()
	h, _ := table.Allocate(&testResource{name: "in", kind: KindInputStream})
	p, _ := table.Allocate(plainResource{})

	r, err := ResolveAs[*testResource](table, h)
	if err != nil {
		t.Fatalf("ResolveAs: %v", err)
	}
	if r.name != "in" {
		t.Errorf("name = %q", r.name)
	}

	if _, err := ResolveAs[*testResource](table, p); !stderrors.Is(err, errors.ErrInvalidHandle) {
		t.Errorf("ResolveAs wrong type = %v", err)
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	unsubscribe := table.Subscribe(obs)

	h, _ := table.Allocate(plainResource{})
	_ = table.Close(h)

	want := []Event{
		{Type: EventCreated, Handle: h, Resource: plainResource{}},
		{Type: EventClosed, Handle: h, Resource: plainResource{}},
	}
	if diff := cmp.Diff(want, obs.events); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}

	unsubscribe()
	_, _ = table.Allocate(plainResource{})
	if len(obs.events) != 2 {
		t.Fatalf("observer notified after unsubscribe: %d events", len(obs.events))
	}
}

func TestTable_ObserverFunc(t *testing.T) {
	table := NewTable()
	var created int
	unsubscribe := table.Subscribe(ObserverFunc(func(e Event) {
		if e.Type == EventCreated {
			created++
		}
	}))
	defer unsubscribe()

	for i := 0; i < 3; i++ {
		_, _ = table.Allocate(plainResource{})
	}
	if created != 3 {
		t.Fatalf("created = %d", created)
	}
}

func TestTable_Limit(t *testing.T) {
	table := NewTable(WithLimit(2))

	h1, err := table.Allocate(plainResource{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := table.Allocate(plainResource{}); err != nil {
		t.Fatal(err)
	}
	if _, err := table.Allocate(plainResource{}); err == nil {
		t.Fatal("expected limit error")
	}

	_ = table.Close(h1)
	if _, err := table.Allocate(plainResource{}); err != nil {
		t.Fatalf("allocation after close: %v", err)
	}
}

func TestTable_CloseAll(t *testing.T) {
	table := NewTable()
	var closed []Handle
	table.Subscribe(ObserverFunc(func(e Event) {
		if e.Type == EventClosed {
			closed = append(closed, e.Handle)
		}
	}))

	resources := []*testResource{
		{kind: KindOutputStream},
		{kind: KindOutputStream},
		{kind: KindInputStream},
	}
	var handles []Handle
	for _, r := range resources {
		h, _ := table.Allocate(r)
		handles = append(handles, h)
	}

	table.CloseAll()

	if diff := cmp.Diff(handles, closed); diff != "" {
		t.Fatalf("close order mismatch (-want +got):\n%s", diff)
	}
	for i, r := range resources {
		if r.dropped != 1 {
			t.Errorf("resource %d dropped %d times", i, r.dropped)
		}
	}
	if !table.Closed() {
		t.Error("Closed() = false")
	}
	if _, err := table.Allocate(plainResource{}); err == nil {
		t.Error("Allocate succeeded on closed table")
	}
}

func TestTable_Nil(t *testing.T) {
	table := NewTable()
	if _, err := table.Allocate(nil); err == nil {
		t.Fatal("expected error for nil resource")
	}
}

func TestTable_HandlesUniqueProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		table := NewTable()
		live := make(map[Handle]bool)
		issued := make(map[Handle]bool)

		ops := rapid.SliceOfN(rapid.IntRange(0, 2), 1, 200).Draw(t, "ops")
		for _, op := range ops {
			switch {
			case op < 2 || len(live) == 0:
				h, err := table.Allocate(plainResource{})
				if err != nil {
					t.Fatalf("Allocate: %v", err)
				}
				if issued[h] {
					t.Fatalf("handle %d issued twice", h)
				}
				issued[h] = true
				live[h] = true
			default:
				handles := table.Handles()
				idx := rapid.IntRange(0, len(handles)-1).Draw(t, "victim")
				h := handles[idx]
				if err := table.Close(h); err != nil {
					t.Fatalf("Close(%d): %v", h, err)
				}
				delete(live, h)
			}
		}

		if table.Len() != len(live) {
			t.Fatalf("Len = %d, want %d", table.Len(), len(live))
		}
		handles := table.Handles()
		for i := 1; i < len(handles); i++ {
			if handles[i-1] >= handles[i] {
				t.Fatalf("handles not in allocation order: %v", handles)
			}
		}
	})
}
