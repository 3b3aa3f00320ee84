package psrouter

import (
	"context"
	"io"
	"sync"

	pool "github.com/libp2p/go-buffer-pool"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/sirupsen/logrus"
)

// DefaultOutboundQueueSize bounds how many enqueued-but-unwritten frames a
// PeerStream's outbound direction buffers before Write blocks.
const DefaultOutboundQueueSize = 32

// InboundIterator is a cancellable, length-prefix-decoded lazy sequence of
// frames read from a peer's inbound stream. Cancelling it (via the
// PeerStream that owns it) makes Next return cleanly rather than with an
// error; a genuine read failure is instead surfaced through Next's error
// return.
type InboundIterator struct {
	frames chan []byte

	mu  sync.Mutex
	err error
}

func newInboundIterator() *InboundIterator {
	return &InboundIterator{frames: make(chan []byte)}
}

func (it *InboundIterator) setErr(err error) {
	it.mu.Lock()
	it.err = err
	it.mu.Unlock()
}

// Next blocks until a frame is available, the iterator ends, or ctx is
// done. A (nil, nil) return means the iterator ended cleanly, whether by
// cancellation or by the peer closing its side of the stream. A (nil, err)
// return means either that ctx is done (err is ctx.Err()) or that a genuine
// protocol error occurred on the wire.
func (it *InboundIterator) Next(ctx context.Context) ([]byte, error) {
	select {
	case f, ok := <-it.frames:
		if !ok {
			it.mu.Lock()
			err := it.err
			it.mu.Unlock()
			return nil, err
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (it *InboundIterator) run(ctx context.Context, fr *FrameReader) {
	defer close(it.frames)
	for {
		frame, err := fr.ReadFrame()
		if err != nil {
			select {
			case <-ctx.Done():
				// The read failure was caused by our own cancellation
				// resetting the raw stream; this is a clean end, not an
				// error to surface.
				return
			default:
			}
			if err == io.EOF {
				return
			}
			it.setErr(err)
			return
		}
		select {
		case it.frames <- frame:
		case <-ctx.Done():
			fr.Release(frame)
			return
		}
	}
}

// outboundQueue is the single-producer push queue behind PeerStream's
// outbound direction. push and end share a mutex so that end never closes
// the channel while a push is mid-send, and push never sends on a channel
// that has already been closed.
type outboundQueue struct {
	mu     sync.Mutex
	in     chan []byte
	closed bool
	quiet  bool
	done   chan struct{}
}

func newOutboundQueue(size int) *outboundQueue {
	if size <= 0 {
		size = DefaultOutboundQueueSize
	}
	return &outboundQueue{in: make(chan []byte, size), done: make(chan struct{})}
}

func (q *outboundQueue) push(buf []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.in <- buf
	return true
}

// end terminates the queue. quiet=true models a silent replacement
// (AttachOutbound superseding this queue); quiet=false models an ordinary
// close, whether requested by the caller or forced by a write failure.
func (q *outboundQueue) end(quiet bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.quiet = quiet
	close(q.in)
}

// PeerStream is the per-peer state the router maintains: a cancellable
// inbound read stream and an outbound write queue, framed with
// length-prefixed encoding, with clean replacement and clean teardown.
type PeerStream struct {
	ID       peer.ID
	Protocol protocol.ID

	outboundQueueSize int
	maxFrameSize      int

	mu sync.Mutex

	rawInbound  network.Stream
	rawOutbound network.Stream

	inbound       *InboundIterator
	inboundCancel func()

	outbound *outboundQueue

	readable bool
	writable bool
	closed   bool

	onEvent   EventHandler
	closeOnce sync.Once
}

// NewPeerStream constructs an unattached PeerStream: readable=false,
// writable=false.
func NewPeerStream(id peer.ID, proto protocol.ID, outboundQueueSize, maxFrameSize int) *PeerStream {
	return &PeerStream{
		ID:                id,
		Protocol:          proto,
		outboundQueueSize: outboundQueueSize,
		maxFrameSize:      maxFrameSize,
	}
}

// SetEventHandler installs the observer for this PeerStream's events,
// replacing any previous one. Passing nil removes the observer — this is
// how Router.RemovePeer detaches its close listener before calling Close.
func (ps *PeerStream) SetEventHandler(h EventHandler) {
	ps.mu.Lock()
	ps.onEvent = h
	ps.mu.Unlock()
}

func (ps *PeerStream) emit(ev StreamEvent) {
	ps.mu.Lock()
	h := ps.onEvent
	ps.mu.Unlock()
	if h != nil {
		go h(ps, ev)
	}
}

func (ps *PeerStream) emitCloseOnce() {
	ps.closeOnce.Do(func() {
		ps.emit(EventClose)
	})
}

// Readable reports whether an inbound stream is currently attached.
func (ps *PeerStream) Readable() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.readable
}

// Writable reports whether an outbound queue is currently attached.
func (ps *PeerStream) Writable() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.writable
}

// Inbound returns the current inbound iterator, or nil if none is
// attached. The returned iterator remains valid until the next
// AttachInbound or Close.
func (ps *PeerStream) Inbound() *InboundIterator {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.inbound
}

// AttachInbound installs raw as the peer's inbound stream. Any existing
// inbound iterator is cancelled (its Next returns cleanly) before the new
// one is installed. stream:inbound fires only on the first successful
// attach. On a closed PeerStream it attaches nothing and returns nil.
func (ps *PeerStream) AttachInbound(raw network.Stream) *InboundIterator {
	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return nil
	}
	if ps.inboundCancel != nil {
		ps.inboundCancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	it := newInboundIterator()
	fr := NewFrameReader(raw, ps.maxFrameSize)

	ps.rawInbound = raw
	ps.inbound = it
	ps.inboundCancel = func() {
		cancel()
		raw.Reset()
	}
	firstAttach := !ps.readable
	ps.readable = true
	ps.mu.Unlock()

	go it.run(ctx, fr)

	if firstAttach {
		ps.emit(EventStreamInbound)
	}
	return it
}

// AttachOutbound installs raw as the peer's outbound stream. Any existing
// outbound queue is ended quietly and drained before the new one is
// installed; no close event fires for that replacement. stream:outbound
// fires only on the first successful attach. On a closed PeerStream it
// attaches nothing and returns ErrNotWritable.
func (ps *PeerStream) AttachOutbound(raw network.Stream) error {
	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return ErrNotWritable
	}
	old := ps.outbound
	ps.mu.Unlock()

	if old != nil {
		old.end(true)
		<-old.done
	}

	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return ErrNotWritable
	}
	q := newOutboundQueue(ps.outboundQueueSize)
	ps.rawOutbound = raw
	ps.outbound = q
	firstAttach := !ps.writable
	ps.writable = true
	ps.mu.Unlock()

	go ps.runOutbound(raw, q)

	if firstAttach {
		ps.emit(EventStreamOutbound)
	}
	return nil
}

func (ps *PeerStream) runOutbound(raw network.Stream, q *outboundQueue) {
	fw := NewFrameWriter(raw)
	failed := false
	for buf := range q.in {
		if !failed {
			if err := fw.WriteFrame(buf); err != nil {
				logrus.WithFields(logrus.Fields{"peer": ps.ID, "err": err}).Debug("psrouter: outbound write failed")
				failed = true
				q.end(false)
			} else {
				logrus.WithFields(logrus.Fields{
					"peer":     ps.ID,
					"bytes":    len(buf),
					"overhead": FrameOverhead(len(buf)),
				}).Trace("psrouter: wrote frame")
			}
		}
		pool.Put(buf)
	}
	ps.finishOutbound(raw, q)
	close(q.done)
}

// finishOutbound runs once a queue's channel has fully drained. A quiet
// end (superseded by a newer AttachOutbound) leaves ps's fields alone —
// AttachOutbound blocks on this queue's done channel before installing the
// replacement, so clearing rawOutbound/outbound/writable here would only
// let AttachOutbound observe a spurious not-writable gap and, worse, make
// it see writable go true→false→true and mistake the replacement for a
// first attach. A loud end that Close already knows about is a no-op. A
// loud end nobody asked for — a write failure — escalates to a full
// Close, since the spec requires an outbound failure to tear down the
// whole PeerStream, not just its write side.
func (ps *PeerStream) finishOutbound(raw network.Stream, q *outboundQueue) {
	raw.Reset()

	if q.quiet {
		return
	}

	ps.mu.Lock()
	if ps.outbound == q {
		ps.rawOutbound = nil
		ps.outbound = nil
		ps.writable = false
	}
	alreadyClosed := ps.closed
	ps.mu.Unlock()

	if alreadyClosed {
		return
	}
	ps.Close()
}

// Write enqueues b's bytes on the outbound queue; the frame codec applies
// the length prefix downstream. It fails with ErrNotWritable when no
// outbound queue is attached, or the PeerStream is closed.
func (ps *PeerStream) Write(b []byte) error {
	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return ErrNotWritable
	}
	q := ps.outbound
	ps.mu.Unlock()

	if q == nil {
		return ErrNotWritable
	}
	if ps.maxFrameSize > 0 && len(b) > ps.maxFrameSize {
		return ErrMalformedFrame
	}

	buf := pool.Get(len(b))
	copy(buf, b)
	if !q.push(buf) {
		pool.Put(buf)
		return ErrNotWritable
	}
	return nil
}

// Close ends the outbound queue (loud), cancels the inbound iterator,
// clears all four stream fields, and emits close exactly once. Further
// calls are no-ops.
func (ps *PeerStream) Close() {
	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return
	}
	ps.closed = true
	q := ps.outbound
	cancelInbound := ps.inboundCancel
	ps.mu.Unlock()

	if q != nil {
		q.end(false)
	}
	if cancelInbound != nil {
		cancelInbound()
	}

	ps.mu.Lock()
	ps.rawInbound = nil
	ps.rawOutbound = nil
	ps.inbound = nil
	ps.outbound = nil
	ps.inboundCancel = nil
	ps.readable = false
	ps.writable = false
	ps.mu.Unlock()

	ps.emitCloseOnce()
}
