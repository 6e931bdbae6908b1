package etherdfs

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/etherdfs/etherdfs-go/ops"
)

// BroadcastMAC is the Ethernet broadcast address, the destination
// discovery addresses its first probe to.
var BroadcastMAC = MAC{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// Discover sends a DISKSPACE probe against the first mapped local
// drive to the broadcast address, and adopts whichever peer answers
// first as PeerMAC. It requires at least one drive already be mapped;
// callers map drives before calling Discover.
func (e *Engine) Discover() (ops.DiskSpaceReply, error) {
	local, ok := e.Mapping.FirstMapped()
	if !ok {
		e.logEntry().Warn("etherdfs: discover attempted with no drive mapped")
		return ops.DiskSpaceReply{}, ErrFileNotFound
	}

	e.logEntry().WithField("drive", local).Debug("etherdfs: broadcasting discovery probe")

	e.mu.Lock()
	e.transport.PeerMAC = BroadcastMAC
	e.mu.Unlock()

	reply, _, err := e.DiskSpace(local, true)
	if err != nil {
		e.logEntry().WithField("drive", local).WithError(err).Warn("etherdfs: discovery failed")
		return reply, err
	}

	e.logEntry().WithField("drive", local).WithField("peer", e.PeerMAC()).Info("etherdfs: discovery found peer")
	return reply, nil
}

// logEntry returns e.Log, or a discarding no-op entry if the Engine was
// constructed without one (e.g. the zero-value Engine used by some unit
// tests that never call NewEngine).
func (e *Engine) logEntry() *logrus.Entry {
	if e.Log != nil {
		return e.Log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
