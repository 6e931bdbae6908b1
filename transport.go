package etherdfs

import (
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/etherdfs/etherdfs-go/internal/frame"
	"github.com/etherdfs/etherdfs-go/internal/wire"
	"github.com/etherdfs/etherdfs-go/link"
)

// ErrNetwork means no valid reply arrived within MaxAttempts.
var ErrNetwork = errors.New("etherdfs: network error")

// DefaultAttemptTimeout and DefaultMaxAttempts give a ~100ms window per
// attempt, five attempts total.
const (
	DefaultAttemptTimeout = 100 * time.Millisecond
	DefaultMaxAttempts    = 5
	defaultPollInterval   = 500 * time.Microsecond
)

// MAC is a 6-byte Ethernet hardware address.
type MAC [6]byte

// Transport is the request/response engine: it owns the send/receive
// frame buffers and the sequence counter, and talks to a link.Driver
// through a single link.Inbox. It is not safe for concurrent use: at
// most one request may be in flight at a time, and Engine enforces
// that by serializing all calls into Transport.
type Transport struct {
	driver link.Driver
	inbox  *link.Inbox
	clock  timeutil.Clock
	log    *logrus.Entry

	send frame.SendBuffer
	recv frame.RecvBuffer

	LocalMAC MAC
	PeerMAC  MAC

	// ProtoVer is the protocol-version byte written on every request;
	// bit 7 requests checksum verification.
	ProtoVer byte

	seq byte

	// AttemptTimeout and MaxAttempts default to ~100ms / 5 attempts but
	// are overridable so tests can run the retry/timeout state machine
	// without waiting in real time.
	AttemptTimeout time.Duration
	MaxAttempts    int
	PollInterval   time.Duration
}

// NewTransport creates a Transport bound to driver, with a receive
// inbox of the standard frame size registered on it.
func NewTransport(driver link.Driver, local MAC, checksumEnabled bool) *Transport {
	t := &Transport{
		driver:         driver,
		clock:          timeutil.RealClock(),
		log:            logrus.New().WithField("component", "transport"),
		LocalMAC:       local,
		ProtoVer:       protocolVersion(checksumEnabled),
		AttemptTimeout: DefaultAttemptTimeout,
		MaxAttempts:    DefaultMaxAttempts,
		PollInterval:   defaultPollInterval,
	}
	t.inbox = link.NewInbox(t.recv.Bytes())
	driver.SetInbox(t.inbox)
	return t
}

// SetLog replaces the logger a Transport reports wire retries against,
// letting Engine hand it a child of its own structured logger instead
// of the bare default created by NewTransport.
func (t *Transport) SetLog(log *logrus.Entry) { t.log = log }

// protocolVersion packs the checksum-enabled flag into bit 7 of the
// protocol-version byte.
func protocolVersion(checksumEnabled bool) byte {
	var v byte = 1
	if checksumEnabled {
		v |= wire.ChecksumFlagBit
	}
	return v
}

// SetClock overrides the clock used for the attempt timeout, letting
// tests inject a timeutil.SimulatedClock.
func (t *Transport) SetClock(c timeutil.Clock) { t.clock = c }

// Payload returns the mutable region of the send buffer where a caller
// marshals request arguments before calling Request. Precondition:
// len(args written) + wire.OffPayload <= FrameSize.
func (t *Transport) Payload() []byte {
	return t.send.Payload()
}

// Request builds and emits a request frame, waits for a matching valid
// reply with retry/timeout, and returns the reply payload plus its AX
// word. updatePeerMAC is used only during discovery: it relaxes the
// source-MAC check on the reply and, on success, adopts the reply's
// source MAC as the new PeerMAC.
func (t *Transport) Request(op, drive byte, payloadLen int, updatePeerMAC bool) (replyPayload []byte, ax uint16, err error) {
	if !t.send.SetPayloadLen(payloadLen) {
		return nil, 0, errors.Errorf("etherdfs: payload of %d bytes exceeds frame capacity", payloadLen)
	}

	t.seq++
	seq := t.seq

	t.send.SetHeader(t.PeerMAC, t.LocalMAC, t.ProtoVer, seq, drive, op)
	if checksumEnabled(t.ProtoVer) {
		t.send.SetChecksum(checksum(t.send.ChecksumRegion()))
	} else {
		t.send.SetChecksum(0)
	}

	attempts := t.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	timeout := t.AttemptTimeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	poll := t.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	entry := t.log.WithFields(logrus.Fields{"seq": seq, "op": op, "drive": drive})

	for attempt := 0; attempt < attempts; attempt++ {
		t.inbox.Reset()

		entry.WithField("attempt", attempt+1).Debug("etherdfs: sending request")

		if sendErr := t.driver.Send(t.send.Bytes()); sendErr != nil {
			return nil, 0, errors.Wrap(sendErr, "etherdfs: link send failed")
		}

		deadline := t.clock.Now().Add(timeout)
		for {
			if n, ok := t.inbox.Ready(); ok {
				if payload, axWord, valid := t.validateReply(n, seq, updatePeerMAC); valid {
					entry.WithField("attempt", attempt+1).Debug("etherdfs: got valid reply")
					return payload, axWord, nil
				}
				// Drop: not a valid reply for this request. Keep waiting
				// until the attempt's deadline.
				t.inbox.Reset()
			}

			if !t.clock.Now().Before(deadline) {
				break
			}
			time.Sleep(poll)
		}

		entry.WithField("attempt", attempt+1).Warn("etherdfs: request attempt timed out")
	}

	entry.WithField("attempts", attempts).Error("etherdfs: no valid reply, giving up")
	return nil, 0, ErrNetwork
}

// validateReply applies the seven validity checks, in order,
// short-circuiting on the first failure.
func (t *Transport) validateReply(n int, seq byte, updatePeerMAC bool) (payload []byte, ax uint16, ok bool) {
	if n < wire.MinFrameLen {
		return nil, 0, false
	}

	if t.recv.DestMAC() != t.LocalMAC {
		return nil, 0, false
	}

	if !updatePeerMAC && t.recv.SrcMAC() != t.PeerMAC {
		return nil, 0, false
	}

	if !t.recv.EtherTypeOK() {
		return nil, 0, false
	}

	if t.recv.Seq() != seq {
		return nil, 0, false
	}

	total := int(t.recv.TotalLen())
	if total < wire.MinFrameLen || total > n {
		return nil, 0, false
	}

	if checksumEnabled(t.ProtoVer) {
		region := t.recv.ChecksumRegion(total)
		if checksum(region) != t.recv.Checksum() {
			return nil, 0, false
		}
	}

	if updatePeerMAC {
		t.PeerMAC = t.recv.SrcMAC()
	}

	return t.recv.PayloadAt(total - wire.OffPayload), t.recv.AX(), true
}
