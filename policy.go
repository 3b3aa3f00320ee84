package psrouter

// RoutingPolicy is the set of operations a concrete routing algorithm
// (flood-style broadcast, mesh-style gossip, ...) supplies to a Router. The
// base only defines these hooks; it never decides on-the-wire routing
// semantics itself.
type RoutingPolicy interface {
	// Publish broadcasts msg according to the policy's routing algorithm.
	Publish(msg *Message) error
	// Subscribe registers interest in topic.
	Subscribe(topic string) error
	// Unsubscribe withdraws interest in topic.
	Unsubscribe(topic string) error
	// GetTopics returns the topics currently subscribed to.
	GetTopics() ([]string, error)
	// ProcessMessages consumes frames from a peer's inbound iterator until
	// it ends, decoding, validating, deduping, and re-dispatching at the
	// policy's discretion.
	ProcessMessages(peerID string, inbound *InboundIterator, stream *PeerStream)
}

// BasePolicy supplies defaults for the RoutingPolicy hooks a concrete
// policy does not override: Publish, Subscribe, Unsubscribe and GetTopics
// return ErrNotImplemented; ProcessMessages returns at once without reading
// the iterator and reports no error. This is the idiomatic Go
// stand-in for an abstract base class: embed BasePolicy and shadow only
// the methods your algorithm actually implements.
type BasePolicy struct{}

func (BasePolicy) Publish(*Message) error       { return ErrNotImplemented }
func (BasePolicy) Subscribe(string) error       { return ErrNotImplemented }
func (BasePolicy) Unsubscribe(string) error     { return ErrNotImplemented }
func (BasePolicy) GetTopics() ([]string, error) { return nil, ErrNotImplemented }
func (BasePolicy) ProcessMessages(string, *InboundIterator, *PeerStream) {}

var _ RoutingPolicy = BasePolicy{}
