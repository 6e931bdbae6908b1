package etherdfs

import (
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/require"

	"github.com/etherdfs/etherdfs-go/internal/frame"
	"github.com/etherdfs/etherdfs-go/internal/wire"
	"github.com/etherdfs/etherdfs-go/link"
)

// pairedTransport wires a Transport to one end of a link.Loopback pair
// and returns the other end for a test to act as the remote peer.
func pairedTransport(t *testing.T, local, peer MAC, checksumEnabled bool) (*Transport, *link.Loopback) {
	t.Helper()
	a := link.NewLoopback()
	b := link.NewLoopback()
	link.Pair(a, b)

	tr := NewTransport(a, local, checksumEnabled)
	tr.PeerMAC = peer
	tr.AttemptTimeout = 20 * time.Millisecond
	tr.PollInterval = time.Millisecond
	tr.MaxAttempts = 3

	return tr, b
}

// respondOnce waits for a single frame on peer's inbox and writes back a
// reply built from the given payload and ax word, reusing the observed
// sequence number.
func respondOnce(t *testing.T, peer *link.Loopback, localMAC, remoteMAC MAC, payload []byte, ax uint16, checksumEnabled bool) {
	t.Helper()

	inbox := link.NewInbox(make([]byte, wire.FrameSize))
	peer.SetInbox(inbox)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if n, ok := inbox.Ready(); ok {
			req := inbox.Take()[:n]
			seq := req[wire.OffSeq]
			protoVer := req[wire.OffProtoVer]

			var send frame.SendBuffer
			send.Reset()
			copy(send.Payload(), payload)
			send.SetPayloadLen(len(payload))
			send.SetHeader(remoteMAC, localMAC, protoVer, seq, byte(ax), byte(ax>>8))
			if checksumEnabled {
				send.SetChecksum(checksum(send.ChecksumRegion()))
			}
			peer.Send(send.Bytes())
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("respondOnce: no request observed within deadline")
}

func TestTransportRequestSuccess(t *testing.T) {
	local := MAC{1, 1, 1, 1, 1, 1}
	peerMAC := MAC{2, 2, 2, 2, 2, 2}
	tr, peer := pairedTransport(t, local, peerMAC, true)

	done := make(chan struct{})
	go func() {
		respondOnce(t, peer, peerMAC, local, []byte{0xAA, 0xBB}, 0, true)
		close(done)
	}()

	payload, ax, err := tr.Request(wire.OpGetAttr, 0, 0, false)
	<-done

	require.NoError(t, err)
	require.Equal(t, uint16(0), ax)
	require.Equal(t, []byte{0xAA, 0xBB}, payload)
}

func TestTransportRequestPeerError(t *testing.T) {
	local := MAC{1, 1, 1, 1, 1, 1}
	peerMAC := MAC{2, 2, 2, 2, 2, 2}
	tr, peer := pairedTransport(t, local, peerMAC, false)

	go respondOnce(t, peer, peerMAC, local, nil, 2, false)

	_, ax, err := tr.Request(wire.OpDelete, 0, 0, false)
	require.NoError(t, err)
	require.Equal(t, uint16(2), ax)
}

func TestTransportRequestTimesOutWithNoResponder(t *testing.T) {
	local := MAC{1, 1, 1, 1, 1, 1}
	peerMAC := MAC{2, 2, 2, 2, 2, 2}
	tr, _ := pairedTransport(t, local, peerMAC, false)

	_, _, err := tr.Request(wire.OpGetAttr, 0, 0, false)
	require.ErrorIs(t, err, ErrNetwork)
}

func TestTransportDiscoveryAdoptsPeerMAC(t *testing.T) {
	local := MAC{1, 1, 1, 1, 1, 1}
	realPeer := MAC{9, 9, 9, 9, 9, 9}
	a := link.NewLoopback()
	b := link.NewLoopback()
	link.Pair(a, b)

	tr := NewTransport(a, local, false)
	tr.PeerMAC = BroadcastMAC
	tr.AttemptTimeout = 20 * time.Millisecond
	tr.PollInterval = time.Millisecond
	tr.MaxAttempts = 3

	go respondOnce(t, b, realPeer, local, make([]byte, 6), 4, false)

	_, ax, err := tr.Request(wire.OpDiskSpace, 0, 0, true)
	require.NoError(t, err)
	require.Equal(t, uint16(4), ax)
	require.Equal(t, realPeer, tr.PeerMAC)
}

func TestTransportRejectsChecksumMismatch(t *testing.T) {
	local := MAC{1, 1, 1, 1, 1, 1}
	peerMAC := MAC{2, 2, 2, 2, 2, 2}
	tr, peer := pairedTransport(t, local, peerMAC, true)
	tr.MaxAttempts = 1

	inbox := link.NewInbox(make([]byte, wire.FrameSize))
	peer.SetInbox(inbox)
	go func() {
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			if n, ok := inbox.Ready(); ok {
				req := inbox.Take()[:n]
				seq := req[wire.OffSeq]

				var send frame.SendBuffer
				send.Reset()
				send.SetPayloadLen(0)
				send.SetHeader(local, peerMAC, 0x81, seq, 0, 0)
				send.SetChecksum(0xDEAD) // deliberately wrong
				peer.Send(send.Bytes())
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	_, _, err := tr.Request(wire.OpGetAttr, 0, 0, false)
	require.ErrorIs(t, err, ErrNetwork)
}

func TestTransportUsesInjectedClock(t *testing.T) {
	local := MAC{1, 1, 1, 1, 1, 1}
	a := link.NewLoopback()
	tr := NewTransport(a, local, false)
	clock := timeutil.NewSimulatedClock(time.Unix(0, 0))
	tr.SetClock(clock)
	tr.MaxAttempts = 1
	tr.AttemptTimeout = time.Millisecond
	tr.PollInterval = time.Millisecond

	// Advance the simulated clock past the attempt deadline shortly after
	// Request starts polling, proving the loop is driven by the injected
	// clock rather than wall time.
	go func() {
		time.Sleep(5 * time.Millisecond)
		clock.AdvanceTime(time.Second)
	}()

	_, _, err := tr.Request(wire.OpGetAttr, 0, 0, false)
	require.ErrorIs(t, err, ErrNetwork)
}
