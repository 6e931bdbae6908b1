// Package frame provides the two process-wide frame buffers described in
// the data model: a SendBuffer the engine fills and hands to the link
// driver, and a RecvBuffer the link driver fills under the tri-state
// inbox protocol and the transport then validates and reads back.
//
// Unlike the kernel-ABI buffers this package is modeled on, EtherDFS
// frames are a flat byte-oriented protocol of our own devising, so
// plain encoding/binary accessors are used instead of unsafe struct
// overlays.
package frame

import (
	"encoding/binary"

	"github.com/etherdfs/etherdfs-go/internal/wire"
)

// SendBuffer is the single, process-wide send frame described in spec
// section 3. It is owned exclusively by the transport.
type SendBuffer struct {
	buf [wire.FrameSize]byte
	len int
}

// Reset zeroes the header bytes and sets the length to the header size,
// ready for a new request to be marshaled at wire.OffPayload.
func (s *SendBuffer) Reset() {
	for i := range s.buf[:wire.OffPayload] {
		s.buf[i] = 0
	}
	s.len = wire.OffPayload
}

// Bytes returns the portion of the buffer currently in use.
func (s *SendBuffer) Bytes() []byte {
	return s.buf[:s.len]
}

// Payload returns the mutable payload region starting at wire.OffPayload,
// sized to the frame's remaining capacity. Callers write their marshaled
// arguments here and then call SetPayloadLen.
func (s *SendBuffer) Payload() []byte {
	return s.buf[wire.OffPayload:]
}

// SetPayloadLen records how many bytes of Payload() were actually used
// and updates the buffer's overall length accordingly. It returns false
// if the requested length would overflow the frame.
func (s *SendBuffer) SetPayloadLen(n int) bool {
	if wire.OffPayload+n > len(s.buf) {
		return false
	}
	s.len = wire.OffPayload + n
	return true
}

// SetHeader writes the fixed header fields that precede the payload.
func (s *SendBuffer) SetHeader(dstMAC, srcMAC [6]byte, protoVer, seq, drive, op byte) {
	copy(s.buf[wire.OffDestMAC:], dstMAC[:])
	copy(s.buf[wire.OffSrcMAC:], srcMAC[:])
	s.buf[wire.OffEtherType] = 0xED
	s.buf[wire.OffEtherType+1] = 0xF5
	binary.LittleEndian.PutUint16(s.buf[wire.OffTotalLen:], uint16(s.len))
	s.buf[wire.OffProtoVer] = protoVer
	s.buf[wire.OffSeq] = seq
	s.buf[wire.OffDrive] = drive
	s.buf[wire.OffOp] = op
}

// SetChecksum writes the 16-bit checksum field.
func (s *SendBuffer) SetChecksum(sum uint16) {
	binary.LittleEndian.PutUint16(s.buf[wire.OffChecksum:], sum)
}

// ChecksumRegion returns the byte range the checksum is computed over:
// everything from wire.OffProtoVer to the end of the frame.
func (s *SendBuffer) ChecksumRegion() []byte {
	return s.buf[wire.OffProtoVer:s.len]
}

// inboxState mirrors the tri-state inbox length described in spec
// section 3: 0 = empty, negative = reserved (fill in progress),
// positive = ready.
type inboxState int32

const (
	stateEmpty    inboxState = 0
	stateReserved inboxState = -1
)

// RecvBuffer is the single, process-wide receive frame. The transport
// reads it after link.Inbox reports it ready; the link driver is the
// only other writer, and only under the Reserve/Publish protocol
// exposed by link.Inbox.
type RecvBuffer struct {
	buf [wire.FrameSize]byte
}

// Bytes returns the full backing array, for the link driver to fill.
func (r *RecvBuffer) Bytes() []byte {
	return r.buf[:]
}

// View returns the first n bytes, once the transport knows the reply
// length.
func (r *RecvBuffer) View(n int) []byte {
	if n > len(r.buf) {
		n = len(r.buf)
	}
	return r.buf[:n]
}

// TotalLen reads the announced frame length at wire.OffTotalLen.
func (r *RecvBuffer) TotalLen() uint16 {
	return binary.LittleEndian.Uint16(r.buf[wire.OffTotalLen:])
}

// Checksum reads the stored checksum field.
func (r *RecvBuffer) Checksum() uint16 {
	return binary.LittleEndian.Uint16(r.buf[wire.OffChecksum:])
}

// ChecksumRegion returns the byte range the checksum is computed over
// for a reply of the given total length.
func (r *RecvBuffer) ChecksumRegion(totalLen int) []byte {
	if totalLen > len(r.buf) {
		totalLen = len(r.buf)
	}
	if totalLen < wire.OffProtoVer {
		return nil
	}
	return r.buf[wire.OffProtoVer:totalLen]
}

func (r *RecvBuffer) DestMAC() [6]byte {
	var m [6]byte
	copy(m[:], r.buf[wire.OffDestMAC:])
	return m
}

func (r *RecvBuffer) SrcMAC() [6]byte {
	var m [6]byte
	copy(m[:], r.buf[wire.OffSrcMAC:])
	return m
}

func (r *RecvBuffer) EtherTypeOK() bool {
	return r.buf[wire.OffEtherType] == 0xED && r.buf[wire.OffEtherType+1] == 0xF5
}

func (r *RecvBuffer) ProtoVer() byte { return r.buf[wire.OffProtoVer] }
func (r *RecvBuffer) Seq() byte      { return r.buf[wire.OffSeq] }
func (r *RecvBuffer) AXLow() byte    { return r.buf[wire.OffDrive] }
func (r *RecvBuffer) AXHigh() byte   { return r.buf[wire.OffOp] }

// AX reassembles the reply's protocol-level result word from bytes
// 58..59 (the drive and op byte slots, repurposed on replies).
func (r *RecvBuffer) AX() uint16 {
	return uint16(r.AXHigh())<<8 | uint16(r.AXLow())
}

// PayloadAt returns the n bytes of reply payload starting at
// wire.OffPayload.
func (r *RecvBuffer) PayloadAt(n int) []byte {
	end := wire.OffPayload + n
	if end > len(r.buf) {
		end = len(r.buf)
	}
	if end < wire.OffPayload {
		return nil
	}
	return r.buf[wire.OffPayload:end]
}
