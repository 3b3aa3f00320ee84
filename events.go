package psrouter

// StreamEvent enumerates the three named events a PeerStream emits. Events
// are fire-and-forget: a subscriber must not assume any ordering relative
// to the return of the operation that triggered it.
type StreamEvent int

const (
	// EventStreamInbound fires at most once per PeerStream, on its first
	// successful AttachInbound. A closed PeerStream accepts no further
	// attach.
	EventStreamInbound StreamEvent = iota
	// EventStreamOutbound fires at most once per PeerStream, on its first
	// successful AttachOutbound. A closed PeerStream accepts no further
	// attach.
	EventStreamOutbound
	// EventClose fires exactly once per PeerStream, the only time being
	// when Close (loud) completes; a quiet outbound replacement does not
	// raise it.
	EventClose
)

// EventHandler observes PeerStream lifecycle events. It is invoked in its
// own goroutine so that a handler is free to call back into the PeerStream
// (e.g. Router.RemovePeer on EventClose) without deadlocking.
type EventHandler func(*PeerStream, StreamEvent)
