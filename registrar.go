package psrouter

import (
	"context"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
)

// StreamHandler is invoked by the registrar for every incoming stream that
// negotiates one of the router's configured multicodecs.
type StreamHandler func(protocolID protocol.ID, stream network.Stream, conn Connection)

// Topology groups a set of multicodecs with connect/disconnect callbacks.
// It is registered once per Router lifetime via Registrar.Register.
type Topology struct {
	Multicodecs []protocol.ID
	OnConnect   func(ctx context.Context, p peer.ID, conn Connection)
	OnDisconnect func(p peer.ID, err error)
}

// RegistrationReceipt is the opaque handle returned by Registrar.Register
// and required by Registrar.Unregister. Its zero value is never valid.
type RegistrationReceipt struct {
	token uuid.UUID
	valid bool
}

// newRegistrationReceipt mints a fresh, valid receipt.
func newRegistrationReceipt() RegistrationReceipt {
	return RegistrationReceipt{token: uuid.New(), valid: true}
}

// String returns the receipt's textual form, for logging only; it carries
// no meaning outside this process.
func (r RegistrationReceipt) String() string {
	return r.token.String()
}

// Connection is the narrow capability set a host connection must expose:
// the remote peer's identity, and the ability to negotiate a fresh
// outbound stream for one of the offered multicodecs.
type Connection interface {
	// RemotePeer returns the identity of the peer at the other end.
	RemotePeer() peer.ID
	// NewStream negotiates one of the offered multicodecs and returns the
	// resulting duplex stream together with the protocol that was agreed.
	NewStream(ctx context.Context, multicodecs []protocol.ID) (network.Stream, protocol.ID, error)
}

// Registrar is the capability set a host networking node must expose for a
// Router to bind to it. It replaces the duck-typed registrar of the
// original design with an explicit, minimal contract.
type Registrar interface {
	// Handle registers handler for incoming streams that negotiate any of
	// multicodecs. Only one handler may be active per multicodec at a
	// time; a second Handle call for the same protocol replaces the first.
	Handle(multicodecs []protocol.ID, handler StreamHandler)
	// Register subscribes to the host's connection topology events for
	// the multicodecs named in topology, and returns an opaque receipt
	// that must be passed to Unregister to reverse the registration.
	Register(ctx context.Context, topology Topology) (RegistrationReceipt, error)
	// Unregister reverses a prior Register call and removes the stream
	// handler installed by Handle.
	Unregister(ctx context.Context, receipt RegistrationReceipt) error
}
