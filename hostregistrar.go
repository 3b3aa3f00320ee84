package psrouter

import (
	"context"
	"sync"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
)

// HostRegistrar adapts a real libp2p host.Host to the Registrar interface,
// so a Router can bind directly to a network node instead of to a test
// double. It is the only place in this package that imports host.Host.
type HostRegistrar struct {
	h host.Host

	mu       sync.Mutex
	notifiee *network.NotifyBundle
}

// NewHostRegistrar wraps h.
func NewHostRegistrar(h host.Host) *HostRegistrar {
	return &HostRegistrar{h: h}
}

// Handle installs a libp2p stream handler for each of multicodecs.
func (hr *HostRegistrar) Handle(multicodecs []protocol.ID, handler StreamHandler) {
	for _, pid := range multicodecs {
		pid := pid
		hr.h.SetStreamHandler(pid, func(s network.Stream) {
			handler(pid, s, hostConnection{h: hr.h, remote: s.Conn().RemotePeer()})
		})
	}
}

// Register subscribes to the host's network notifications. The connect
// callback runs in its own goroutine so a slow stream negotiation never
// blocks the host's notification dispatch; the disconnect callback runs
// synchronously on the notifying goroutine.
func (hr *HostRegistrar) Register(ctx context.Context, topology Topology) (RegistrationReceipt, error) {
	bundle := &network.NotifyBundle{
		ConnectedF: func(_ network.Network, conn network.Conn) {
			go topology.OnConnect(context.Background(), conn.RemotePeer(), hostConnection{h: hr.h, remote: conn.RemotePeer()})
		},
		DisconnectedF: func(_ network.Network, conn network.Conn) {
			topology.OnDisconnect(conn.RemotePeer(), nil)
		},
	}
	hr.h.Network().Notify(bundle)

	hr.mu.Lock()
	hr.notifiee = bundle
	hr.mu.Unlock()

	return newRegistrationReceipt(), nil
}

// Unregister stops the host notifications installed by Register. The
// stream handlers installed by Handle are not removed from the host.
func (hr *HostRegistrar) Unregister(ctx context.Context, receipt RegistrationReceipt) error {
	hr.mu.Lock()
	bundle := hr.notifiee
	hr.notifiee = nil
	hr.mu.Unlock()

	if bundle != nil {
		hr.h.Network().StopNotify(bundle)
	}
	return nil
}

var _ Registrar = (*HostRegistrar)(nil)

type hostConnection struct {
	h      host.Host
	remote peer.ID
}

func (c hostConnection) RemotePeer() peer.ID { return c.remote }

func (c hostConnection) NewStream(ctx context.Context, multicodecs []protocol.ID) (network.Stream, protocol.ID, error) {
	s, err := c.h.NewStream(ctx, c.remote, multicodecs...)
	if err != nil {
		return nil, "", err
	}
	return s, s.Protocol(), nil
}

var _ Connection = hostConnection{}
