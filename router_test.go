package psrouter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
)

const routerTestProto = "/psrouter-router-test/1.0.0"

// testPolicy is a minimal RoutingPolicy used only to exercise Router's own
// mechanics: it floods a publish to every attached peer and records every
// validated inbound message it decodes.
type testPolicy struct {
	BasePolicy
	router   *Router
	received chan *Message
}

func newTestPolicy() *testPolicy {
	return &testPolicy{received: make(chan *Message, 8)}
}

func (p *testPolicy) Publish(msg *Message) error {
	built, err := p.router.BuildMessage(msg)
	if err != nil {
		return err
	}
	raw, err := built.Marshal()
	if err != nil {
		return err
	}
	var firstErr error
	for _, ps := range p.router.Peers() {
		if err := ps.Write(raw); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *testPolicy) GetTopics() ([]string, error) { return []string{}, nil }

func (p *testPolicy) ProcessMessages(peerID string, inbound *InboundIterator, stream *PeerStream) {
	ctx := context.Background()
	for {
		frame, err := inbound.Next(ctx)
		if err != nil || frame == nil {
			return
		}
		msg, err := UnmarshalMessage(frame)
		if err != nil {
			continue
		}
		msg.ReceivedFrom = peerID
		if err := p.router.Validate(msg); err != nil {
			continue
		}
		p.router.AddSubscriber("test-topic", stream)
		p.received <- msg
	}
}

func newTestRouterHost(t *testing.T) (host.Host, LocalIdentity) {
	t.Helper()
	priv, _, err := crypto.GenerateKeyPair(crypto.Ed25519, 0)
	if err != nil {
		t.Fatal(err)
	}
	id, err := NewLocalIdentity(priv)
	if err != nil {
		t.Fatal(err)
	}
	h, err := libp2p.New(libp2p.Identity(priv), libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { h.Close() })
	return h, id
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestRouterConnectsPublishesAndTracksSubscribers(t *testing.T) {
	ctx := context.Background()

	h1, id1 := newTestRouterHost(t)
	h2, id2 := newTestRouterHost(t)

	p1, p2 := newTestPolicy(), newTestPolicy()

	r1, err := NewRouter(p1,
		WithDebugName("node-1"),
		WithMulticodecs(routerTestProto),
		WithIdentity(id1),
		WithRegistrar(NewHostRegistrar(h1)),
	)
	if err != nil {
		t.Fatalf("new router 1: %v", err)
	}
	p1.router = r1

	r2, err := NewRouter(p2,
		WithDebugName("node-2"),
		WithMulticodecs(routerTestProto),
		WithIdentity(id2),
		WithRegistrar(NewHostRegistrar(h2)),
	)
	if err != nil {
		t.Fatalf("new router 2: %v", err)
	}
	p2.router = r2

	if err := r1.Start(ctx); err != nil {
		t.Fatalf("start router 1: %v", err)
	}
	if err := r2.Start(ctx); err != nil {
		t.Fatalf("start router 2: %v", err)
	}

	if err := h1.Connect(ctx, peer.AddrInfo{ID: h2.ID(), Addrs: h2.Addrs()}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool { return r1.PeerCount() == 1 && r2.PeerCount() == 1 })

	msg := &Message{From: []byte(id1.ID), Data: []byte("hello"), Seqno: []byte{1}, TopicIDs: []string{"test-topic"}}
	if err := p1.Publish(msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-p2.received:
		if string(got.Data) != "hello" {
			t.Fatalf("got data %q, want %q", got.Data, "hello")
		}
		if len(got.Signature) == 0 {
			t.Fatal("expected the published message to carry a signature")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the message to arrive")
	}

	waitFor(t, 2*time.Second, func() bool {
		subs, err := r2.GetSubscribers("test-topic")
		return err == nil && len(subs) == 1 && subs[0] == b58(id1.ID)
	})

	r1.Stop(ctx)
	r2.Stop(ctx)

	waitFor(t, 2*time.Second, func() bool { return r1.PeerCount() == 0 && r2.PeerCount() == 0 })
}

func TestNewRouterValidatesConfig(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair(crypto.Ed25519, 0)
	if err != nil {
		t.Fatal(err)
	}
	id, err := NewLocalIdentity(priv)
	if err != nil {
		t.Fatal(err)
	}
	fakeRegistrar := &noopRegistrar{}

	cases := []struct {
		name string
		opts []Option
	}{
		{"missing debug name", []Option{WithMulticodecs(routerTestProto), WithIdentity(id), WithRegistrar(fakeRegistrar)}},
		{"missing multicodecs", []Option{WithDebugName("n"), WithIdentity(id), WithRegistrar(fakeRegistrar)}},
		{"missing identity", []Option{WithDebugName("n"), WithMulticodecs(routerTestProto), WithRegistrar(fakeRegistrar)}},
		{"missing registrar", []Option{WithDebugName("n"), WithMulticodecs(routerTestProto), WithIdentity(id)}},
		{"signing enabled without a private key", []Option{WithDebugName("n"), WithMulticodecs(routerTestProto), WithIdentity(LocalIdentity{ID: id.ID, Pub: id.Pub}), WithRegistrar(fakeRegistrar)}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := NewRouter(newTestPolicy(), c.opts...); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestNewRouterRejectsNilPolicy(t *testing.T) {
	if _, err := NewRouter(nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

// noopRegistrar satisfies Registrar without ever calling back; it exists
// only to give NewRouterValidatesConfig a non-nil registrar to compare
// the other missing fields against.
type noopRegistrar struct{}

func (noopRegistrar) Handle([]protocol.ID, StreamHandler)                             {}
func (noopRegistrar) Register(context.Context, Topology) (RegistrationReceipt, error) { return RegistrationReceipt{}, nil }
func (noopRegistrar) Unregister(context.Context, RegistrationReceipt) error           { return nil }
