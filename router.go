package psrouter

import (
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/sirupsen/logrus"
)

// Router is the pubsub router base: it owns the peer registry and the
// registrar handshake, and dispatches inbound streams to a RoutingPolicy.
// It never decides on-the-wire routing semantics itself.
type Router struct {
	cfg    Config
	policy RoutingPolicy

	mu           sync.Mutex
	started      bool
	peers        map[string]*PeerStream
	topics       map[string]map[*PeerStream]struct{}
	registration RegistrationReceipt
}

// NewRouter validates cfg's options and constructs a Router bound to
// policy. It does not start the router; call Start to bind to the
// registrar.
func NewRouter(policy RoutingPolicy, opts ...Option) (*Router, error) {
	if policy == nil {
		return nil, fmt.Errorf("%w: routing policy must not be nil", ErrInvalidConfig)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.debugName == "" {
		return nil, fmt.Errorf("%w: debugName is required", ErrInvalidConfig)
	}
	if len(cfg.multicodecs) == 0 {
		return nil, fmt.Errorf("%w: at least one multicodec is required", ErrInvalidConfig)
	}
	if cfg.identity.ID == "" {
		return nil, fmt.Errorf("%w: peerId is required", ErrInvalidConfig)
	}
	if cfg.registrar == nil {
		return nil, fmt.Errorf("%w: registrar is required", ErrInvalidConfig)
	}
	if cfg.signMessages && cfg.identity.Priv == nil {
		return nil, fmt.Errorf("%w: signMessages requires identity to carry a private key", ErrInvalidConfig)
	}

	return &Router{
		cfg:    cfg,
		policy: policy,
		peers:  make(map[string]*PeerStream),
		topics: make(map[string]map[*PeerStream]struct{}),
	}, nil
}

func (r *Router) log() logrus.FieldLogger {
	return r.cfg.logger.WithField("router", r.cfg.debugName)
}

// Start binds the router to its registrar. It is idempotent: calling
// Start again while already started is a no-op.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	r.cfg.registrar.Handle(r.cfg.multicodecs, r.onIncomingStream)

	receipt, err := r.cfg.registrar.Register(ctx, Topology{
		Multicodecs:  r.cfg.multicodecs,
		OnConnect:    r.onPeerConnected,
		OnDisconnect: r.onPeerDisconnected,
	})
	if err != nil {
		return fmt.Errorf("psrouter: start: %w", err)
	}

	r.mu.Lock()
	r.registration = receipt
	r.started = true
	r.mu.Unlock()

	r.log().Debug("psrouter: started")
	return nil
}

// Stop unregisters from the registrar and closes every active peer. It is
// idempotent, and does not fail if individual peer closes do — teardown
// always makes progress.
func (r *Router) Stop(ctx context.Context) {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	receipt := r.registration
	peersSnapshot := r.peers
	r.peers = make(map[string]*PeerStream)
	r.started = false
	r.mu.Unlock()

	if err := r.cfg.registrar.Unregister(ctx, receipt); err != nil {
		r.log().WithError(err).Warn("psrouter: unregister failed during stop")
	}

	for _, ps := range peersSnapshot {
		ps.SetEventHandler(nil)
		ps.Close()
	}

	r.log().Debug("psrouter: stopped")
}

// AddPeer returns the existing PeerStream for id if one exists; otherwise
// it constructs one, stores it, and subscribes to its close event so that
// it is removed automatically once closed.
func (r *Router) AddPeer(id peer.ID, proto protocol.ID) *PeerStream {
	key := b58(id)

	r.mu.Lock()
	if existing, ok := r.peers[key]; ok {
		r.mu.Unlock()
		return existing
	}
	ps := NewPeerStream(id, proto, r.cfg.outboundQueueSize, r.cfg.maxFrameSize)
	r.peers[key] = ps
	r.mu.Unlock()

	ps.SetEventHandler(func(p *PeerStream, ev StreamEvent) {
		if ev == EventClose {
			r.RemovePeer(p.ID)
		}
	})
	return ps
}

// RemovePeer removes id's entry if present, detaches its close listener,
// closes it, and returns it. It returns nil if id was not present.
func (r *Router) RemovePeer(id peer.ID) *PeerStream {
	key := b58(id)

	r.mu.Lock()
	ps, ok := r.peers[key]
	if ok {
		delete(r.peers, key)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	ps.SetEventHandler(nil)
	ps.Close()
	return ps
}

// onIncomingStream is registered with the registrar for the router's
// configured multicodecs.
func (r *Router) onIncomingStream(protoID protocol.ID, stream network.Stream, conn Connection) {
	pid := conn.RemotePeer()
	ps := r.AddPeer(pid, protoID)

	it := ps.AttachInbound(stream)
	if it == nil {
		// The PeerStream was closed concurrently with this attach.
		return
	}
	go r.policy.ProcessMessages(b58(pid), it, ps)
}

// onPeerConnected opens the router's own outbound stream on conn. A
// negotiation failure is logged and leaves the peer without an outbound;
// per this substrate's design, retry happens only on the next connect
// event, not on a timer.
func (r *Router) onPeerConnected(ctx context.Context, pid peer.ID, conn Connection) {
	stream, negotiated, err := conn.NewStream(ctx, r.cfg.multicodecs)
	if err != nil {
		r.log().WithError(err).WithField("peer", pid).Debug("psrouter: opening outbound stream failed")
		return
	}

	ps := r.AddPeer(pid, negotiated)
	if err := ps.AttachOutbound(stream); err != nil {
		r.log().WithError(err).WithField("peer", pid).Debug("psrouter: attaching outbound stream failed")
	}
}

// onPeerDisconnected removes pid's PeerStream. A spurious disconnect for
// an id with no entry is a no-op.
func (r *Router) onPeerDisconnected(pid peer.ID, err error) {
	r.RemovePeer(pid)
	if err == nil {
		return
	}
	if err.Error() == "socket hang up" {
		r.log().WithField("peer", pid).Error("psrouter: socket hang up")
		return
	}
	r.log().WithField("peer", pid).WithError(err).Debug("psrouter: peer disconnected")
}

// BuildMessage normalises msg's fields to their canonical form and, when
// signing is enabled, signs it with the router's identity.
func (r *Router) BuildMessage(msg *Message) (*Message, error) {
	normalised := msg.Clone()
	if normalised.TopicIDs == nil {
		normalised.TopicIDs = []string{}
	}
	if !r.cfg.signMessages {
		return normalised, nil
	}
	return Sign(r.cfg.identity, normalised)
}

// Validate enforces the strict-signing policy and checks any present
// signature.
func (r *Router) Validate(msg *Message) error {
	if len(msg.Signature) == 0 {
		if r.cfg.strictSigning {
			return ErrMissingSignature
		}
		return nil
	}
	ok, err := Verify(msg)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}
	if !ok {
		return ErrInvalidSignature
	}
	return nil
}

// GetSubscribers returns the base58 ids of the PeerStreams a policy has
// recorded as subscribers of topic.
func (r *Router) GetSubscribers(topic string) ([]string, error) {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return nil, ErrNotStarted
	}
	if topic == "" {
		return nil, ErrInvalidTopic
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	subs, ok := r.topics[topic]
	if !ok {
		return []string{}, nil
	}
	out := make([]string, 0, len(subs))
	for ps := range subs {
		out = append(out, b58(ps.ID))
	}
	return out, nil
}

// AddSubscriber records ps as a subscriber of topic. It is the only
// sanctioned way for a RoutingPolicy to mutate the router's topic index.
func (r *Router) AddSubscriber(topic string, ps *PeerStream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.topics[topic]
	if !ok {
		set = make(map[*PeerStream]struct{})
		r.topics[topic] = set
	}
	set[ps] = struct{}{}
}

// RemoveSubscriber withdraws ps from topic's subscriber set.
func (r *Router) RemoveSubscriber(topic string, ps *PeerStream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.topics[topic]
	if !ok {
		return
	}
	delete(set, ps)
	if len(set) == 0 {
		delete(r.topics, topic)
	}
}

// Peers returns a snapshot of the current peer registry, keyed by base58
// id. Mutating the returned map does not affect the router.
func (r *Router) Peers() map[string]*PeerStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*PeerStream, len(r.peers))
	for k, v := range r.peers {
		out[k] = v
	}
	return out
}

// PeerCount returns the number of peers currently registered.
func (r *Router) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Multicodecs returns the protocols this router negotiates.
func (r *Router) Multicodecs() []protocol.ID {
	return append([]protocol.ID(nil), r.cfg.multicodecs...)
}

// Identity returns the router's local identity.
func (r *Router) Identity() LocalIdentity {
	return r.cfg.identity
}

// Started reports whether the router is currently started.
func (r *Router) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Publish delegates to the routing policy.
func (r *Router) Publish(msg *Message) error { return r.policy.Publish(msg) }

// Subscribe delegates to the routing policy.
func (r *Router) Subscribe(topic string) error { return r.policy.Subscribe(topic) }

// Unsubscribe delegates to the routing policy.
func (r *Router) Unsubscribe(topic string) error { return r.policy.Unsubscribe(topic) }

// GetTopics delegates to the routing policy.
func (r *Router) GetTopics() ([]string, error) { return r.policy.GetTopics() }
