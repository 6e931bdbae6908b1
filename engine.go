package etherdfs

import (
	"github.com/jacobsa/gcloud/syncutil"
	"github.com/sirupsen/logrus"

	"github.com/etherdfs/etherdfs-go/link"
)

// Engine is the top-level object a caller constructs once per running
// instance: it owns the drive mapping table and the single Transport,
// and serializes every dispatch call behind one mutex, mirroring the
// non-reentrant, single-stack discipline a DOS redirector hook runs
// under.
type Engine struct {
	mu syncutil.InvariantMutex

	Mapping   *MappingTable
	transport *Transport
	Log       *logrus.Entry
}

// NewEngine wires a Transport over driver and returns a ready Engine.
// checksumEnabled controls whether requests this engine sends ask the
// peer to verify the rolling checksum.
func NewEngine(driver link.Driver, local MAC, checksumEnabled bool, log *logrus.Logger) *Engine {
	if log == nil {
		log = defaultLogger()
	}
	e := &Engine{
		Mapping:   NewMappingTable(),
		transport: NewTransport(driver, local, checksumEnabled),
		Log:       log.WithField("component", "engine"),
	}
	e.transport.SetLog(log.WithField("component", "transport"))
	e.mu = syncutil.NewInvariantMutex(e.checkInvariants)
	return e
}

// checkInvariants enforces the drive-mapping invariant (a letter
// appears in at most one mapping, and every mapped ordinal is in
// range). Only run when built with the InvariantMutex's checking build
// tag.
func (e *Engine) checkInvariants() {
	for _, local := range e.Mapping.Letters() {
		remote, ok := e.Mapping.Lookup(local)
		if !ok {
			panic("etherdfs: Letters() returned an unmapped ordinal")
		}
		if local >= NumDriveLetters || remote >= NumDriveLetters {
			panic("etherdfs: mapping table holds an out-of-range ordinal")
		}
	}
}

// PeerMAC returns the currently known remote MAC address.
func (e *Engine) PeerMAC() MAC {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transport.PeerMAC
}

// SetPeerMAC sets the remote MAC address explicitly, bypassing
// discovery (used when the server MAC is supplied on the command
// line).
func (e *Engine) SetPeerMAC(mac MAC) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transport.PeerMAC = mac
}
