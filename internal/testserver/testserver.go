// Package testserver is an in-memory reference EtherDFS server used
// only by tests, paired with a link.Loopback in place of a real NIC.
// It understands just enough of the wire protocol to drive the engine
// through end-to-end request/reply scenarios: a single flat directory
// of named byte blobs, no subdirectories.
package testserver

import (
	"encoding/binary"

	"github.com/etherdfs/etherdfs-go/internal/frame"
	"github.com/etherdfs/etherdfs-go/internal/wire"
	"github.com/etherdfs/etherdfs-go/link"
)

type file struct {
	name string
	data []byte
	attr uint8
}

// Server is a minimal in-memory EtherDFS peer: one drive, one
// directory, open file handles keyed by a monotonically increasing
// fileid.
type Server struct {
	MAC   [6]byte
	files []*file
	open  map[uint16]*openHandle

	nextFileID uint16
	driver     link.Driver
	inbox      *link.Inbox
	recv       frame.RecvBuffer
	send       frame.SendBuffer
}

type openHandle struct {
	f *file
}

// New creates a server with an empty file list, bound to driver (a
// link.Loopback peered with the Engine under test).
func New(mac [6]byte, driver link.Driver) *Server {
	s := &Server{
		MAC:        mac,
		open:       make(map[uint16]*openHandle),
		nextFileID: 1,
		driver:     driver,
	}
	s.inbox = link.NewInbox(s.recv.Bytes())
	driver.SetInbox(s.inbox)
	return s
}

// PutFile seeds the server's single directory with a named blob, for
// tests to read back through the engine.
func (s *Server) PutFile(name string, data []byte, attr uint8) {
	s.files = append(s.files, &file{name: name, data: append([]byte(nil), data...), attr: attr})
}

func (s *Server) findFile(name string) *file {
	for _, f := range s.files {
		if f.name == name {
			return f
		}
	}
	return nil
}

// ServeOne processes a single pending request, if any is ready in the
// inbox, and returns whether it handled one. Tests call this in a loop
// (or in a background goroutine) opposite an Engine driven by the
// paired Loopback.
func (s *Server) ServeOne() bool {
	n, ok := s.inbox.Ready()
	if !ok {
		return false
	}
	reqLen := n
	defer s.inbox.Reset()

	if reqLen < wire.MinFrameLen {
		return true
	}

	destMAC := s.recv.DestMAC()
	if destMAC != s.MAC && destMAC != ([6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}) {
		return true
	}

	op := s.recv.Bytes()[wire.OffOp]
	seq := s.recv.Seq()
	srcMAC := s.recv.SrcMAC()
	payload := s.recv.PayloadAt(reqLen - wire.OffPayload)

	var ax uint16
	var replyPayload []byte

	switch op {
	case wire.OpDiskSpace:
		replyPayload = make([]byte, 6)
		binary.LittleEndian.PutUint16(replyPayload[0:], 640)
		binary.LittleEndian.PutUint16(replyPayload[2:], 512)
		binary.LittleEndian.PutUint16(replyPayload[4:], 320)
		ax = 4 // sectors per cluster

	case wire.OpOpen, wire.OpCreate, wire.OpSpOpen:
		requestedMode := binary.LittleEndian.Uint16(payload[4:6])
		tail := string(payload[6:])
		f := s.findFile(tail)
		if f == nil {
			if op == wire.OpCreate {
				f = &file{name: tail}
				s.files = append(s.files, f)
			} else {
				ax = 2
				break
			}
		}
		id := s.nextFileID
		s.nextFileID++
		s.open[id] = &openHandle{f: f}

		replyPayload = make([]byte, wire.ReplyLenOpenCreate)
		replyPayload[0] = f.attr
		copy(replyPayload[1:12], padName(f.name))
		binary.LittleEndian.PutUint32(replyPayload[12:16], 0)
		binary.LittleEndian.PutUint32(replyPayload[16:20], uint32(len(f.data)))
		binary.LittleEndian.PutUint16(replyPayload[20:22], id)
		replyPayload[22] = byte(requestedMode)

	case wire.OpReadFil:
		offset := binary.LittleEndian.Uint32(payload[0:4])
		id := binary.LittleEndian.Uint16(payload[4:6])
		chunkLen := binary.LittleEndian.Uint16(payload[6:8])
		h, ok := s.open[id]
		if !ok {
			ax = 2
			break
		}
		start := int(offset)
		if start > len(h.f.data) {
			start = len(h.f.data)
		}
		end := start + int(chunkLen)
		if end > len(h.f.data) {
			end = len(h.f.data)
		}
		replyPayload = h.f.data[start:end]

	case wire.OpWriteFil:
		offset := binary.LittleEndian.Uint32(payload[0:4])
		id := binary.LittleEndian.Uint16(payload[4:6])
		data := payload[6:]
		h, ok := s.open[id]
		if !ok {
			ax = 2
			break
		}
		needed := int(offset) + len(data)
		if needed > len(h.f.data) {
			grown := make([]byte, needed)
			copy(grown, h.f.data)
			h.f.data = grown
		} else if len(data) == 0 {
			h.f.data = h.f.data[:offset]
		}
		copy(h.f.data[offset:], data)

		replyPayload = make([]byte, 2)
		binary.LittleEndian.PutUint16(replyPayload, uint16(len(data)))

	case wire.OpClsFil:
		id := binary.LittleEndian.Uint16(payload[0:2])
		delete(s.open, id)

	case wire.OpCmmtFil:
		// no-op

	case wire.OpDelete:
		tail := string(payload)
		for i, f := range s.files {
			if f.name == tail {
				s.files = append(s.files[:i], s.files[i+1:]...)
				break
			}
		}

	default:
		ax = 2
	}

	s.send.SetPayloadLen(len(replyPayload))
	copy(s.send.Payload(), replyPayload)
	// Reply frames repurpose the drive/op byte slots to carry AX's low
	// and high bytes.
	s.send.SetHeader(srcMAC, s.MAC, s.recv.ProtoVer(), seq, byte(ax), byte(ax>>8))
	if s.recv.ProtoVer()&0x80 != 0 {
		s.send.SetChecksum(rollingChecksum(s.send.ChecksumRegion()))
	} else {
		s.send.SetChecksum(0)
	}
	s.driver.Send(s.send.Bytes())

	return true
}

// rollingChecksum mirrors the root package's rotate-then-add checksum
// (checksum.go), duplicated here because that function is unexported
// and this server stands in for an independent peer, not the engine.
func rollingChecksum(payload []byte) uint16 {
	var sum uint16
	for _, b := range payload {
		bits := uint(1) & 15
		sum = (sum>>bits | sum<<(16-bits)) + uint16(b)
	}
	return sum
}

func padName(name string) []byte {
	out := make([]byte, 11)
	for i := range out {
		out[i] = ' '
	}
	copy(out, name)
	return out
}
