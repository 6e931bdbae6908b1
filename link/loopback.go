package link

import "sync"

// Loopback is an in-memory Driver used by tests and by the reference
// server in internal/testserver. Frames sent via Send are handed
// synchronously to a registered peer (typically another Loopback
// wired up as the "server side" of a test), and frames arriving from
// that peer are published into this driver's Inbox exactly as a real
// receive callback would.
type Loopback struct {
	mu    sync.Mutex
	inbox *Inbox
	peer  *Loopback
}

// NewLoopback creates a driver with no peer attached yet. Use Pair to
// connect two of them.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// Pair connects two Loopback drivers so that frames sent on one arrive
// at the other's inbox.
func Pair(a, b *Loopback) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()

	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
}

func (l *Loopback) SetInbox(inbox *Inbox) {
	l.mu.Lock()
	l.inbox = inbox
	l.mu.Unlock()
}

func (l *Loopback) Send(frame []byte) error {
	l.mu.Lock()
	peer := l.peer
	l.mu.Unlock()

	if peer == nil {
		return nil
	}

	peer.mu.Lock()
	inbox := peer.inbox
	peer.mu.Unlock()

	if inbox == nil {
		return nil
	}

	buf := inbox.Reserve(len(frame))
	if buf == nil {
		// Mirrors a real driver dropping a frame it has nowhere to put;
		// the transport will simply time out and retry.
		return nil
	}
	copy(buf, frame)
	inbox.Publish()
	return nil
}

func (l *Loopback) Close() error { return nil }
