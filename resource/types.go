package resource

// Handle is an opaque reference to a resource in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Kind identifies the variant of a capability stored in a table.
type Kind uint8

const (
	KindOutputStream Kind = iota + 1
	KindInputStream
	KindPollable
	KindDescriptor
	KindDirectoryStream
	KindError
	KindTerminalInput
	KindTerminalOutput
)

func (k Kind) String() string {
	switch k {
	case KindOutputStream:
		return "output-stream"
	case KindInputStream:
		return "input-stream"
	case KindPollable:
		return "pollable"
	case KindDescriptor:
		return "descriptor"
	case KindDirectoryStream:
		return "directory-entry-stream"
	case KindError:
		return "error"
	case KindTerminalInput:
		return "terminal-input"
	case KindTerminalOutput:
		return "terminal-output"
	default:
		return "unknown"
	}
}

// Resource is a host-side value the guest can reference only by handle.
type Resource interface {
	Kind() Kind
}

// Dropper is optionally implemented by resources that need cleanup.
type Dropper interface {
	Drop()
}

// EventType identifies a resource lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventClosed
)

// Event represents a resource lifecycle event.
type Event struct {
	Resource Resource
	Handle   Handle
	Type     EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) {
	f(e)
}
