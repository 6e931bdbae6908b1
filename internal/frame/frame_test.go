package frame

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"

	"github.com/etherdfs/etherdfs-go/internal/wire"
)

func TestSendBufferHeaderRoundTrip(t *testing.T) {
	var s SendBuffer
	s.Reset()

	payload := []byte("hello")
	n := copy(s.Payload(), payload)
	if !s.SetPayloadLen(n) {
		t.Fatal("SetPayloadLen rejected a small payload")
	}

	dst := [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	src := [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	s.SetHeader(dst, src, 0x81, 7, 2, wire.OpGetAttr)

	got := s.Bytes()
	if got[wire.OffEtherType] != 0xED || got[wire.OffEtherType+1] != 0xF5 {
		t.Errorf("EtherType bytes = %#02x %#02x, want ED F5", got[wire.OffEtherType], got[wire.OffEtherType+1])
	}
	if got[wire.OffProtoVer] != 0x81 {
		t.Errorf("ProtoVer = %#02x, want 0x81", got[wire.OffProtoVer])
	}
	if got[wire.OffSeq] != 7 {
		t.Errorf("Seq = %d, want 7", got[wire.OffSeq])
	}
	if got[wire.OffDrive] != 2 {
		t.Errorf("Drive = %d, want 2", got[wire.OffDrive])
	}
	if got[wire.OffOp] != wire.OpGetAttr {
		t.Errorf("Op = %#02x, want %#02x", got[wire.OffOp], wire.OpGetAttr)
	}
	if diff := pretty.Compare(got[wire.OffPayload:s.len], payload); diff != "" {
		t.Errorf("payload mismatch (-got +want):\n%s", diff)
	}
}

func TestSetPayloadLenRejectsOverflow(t *testing.T) {
	var s SendBuffer
	s.Reset()
	if s.SetPayloadLen(wire.FrameSize) {
		t.Error("SetPayloadLen should reject a length that overflows the frame")
	}
}

func TestRecvBufferFieldAccessors(t *testing.T) {
	var r RecvBuffer
	buf := r.Bytes()

	buf[wire.OffEtherType] = 0xED
	buf[wire.OffEtherType+1] = 0xF5
	buf[wire.OffProtoVer] = 0x01
	buf[wire.OffSeq] = 9
	buf[wire.OffDrive] = 0x00 // AX low
	buf[wire.OffOp] = 0x00    // AX high

	if !r.EtherTypeOK() {
		t.Error("expected EtherType to validate")
	}
	if r.Seq() != 9 {
		t.Errorf("Seq() = %d, want 9", r.Seq())
	}
	if r.AX() != 0 {
		t.Errorf("AX() = %d, want 0", r.AX())
	}
}

func TestRecvBufferAXReassembly(t *testing.T) {
	var r RecvBuffer
	buf := r.Bytes()
	buf[wire.OffDrive] = 0x34 // low byte
	buf[wire.OffOp] = 0x12    // high byte

	if got, want := r.AX(), uint16(0x1234); got != want {
		t.Errorf("AX() = %#04x, want %#04x", got, want)
	}
}

func TestChecksumRegionBounds(t *testing.T) {
	var s SendBuffer
	s.Reset()
	s.SetPayloadLen(4)
	region := s.ChecksumRegion()
	if len(region) != s.len-wire.OffProtoVer {
		t.Errorf("ChecksumRegion length = %d, want %d", len(region), s.len-wire.OffProtoVer)
	}
}
