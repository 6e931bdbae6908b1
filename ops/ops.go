// Package ops holds the wire-shape request and reply structs for every
// operation the dispatcher recognizes, separating the wire shape of an
// operation's arguments from dispatching and interpreting it (that
// half lives in the root package's dispatch.go). Marshal writes a
// request's arguments into a caller-supplied payload buffer and
// returns the number of bytes used; Unmarshal reads a reply's fixed
// payload back out.
package ops

import "encoding/binary"

// RmdirMkdirChdirReq is the shared payload shape for RMDIR/MKDIR/CHDIR
// (01/03/05): the path tail with the drive prefix already stripped.
type RmdirMkdirChdirReq struct {
	Tail string
}

func (r RmdirMkdirChdirReq) Marshal(buf []byte) int {
	return copy(buf, r.Tail)
}

// ClsFilReq is CLSFIL's (06) payload: the fileid from the SFT.
type ClsFilReq struct {
	FileID uint16
}

func (r ClsFilReq) Marshal(buf []byte) int {
	binary.LittleEndian.PutUint16(buf, r.FileID)
	return 2
}

// ReadFilReq is one chunk of READFIL's (08) payload.
type ReadFilReq struct {
	Offset    uint32
	FileID    uint16
	ChunkLen  uint16
}

func (r ReadFilReq) Marshal(buf []byte) int {
	binary.LittleEndian.PutUint32(buf[0:], r.Offset)
	binary.LittleEndian.PutUint16(buf[4:], r.FileID)
	binary.LittleEndian.PutUint16(buf[6:], r.ChunkLen)
	return 8
}

// WriteFilReq is one chunk of WRITEFIL's (09) payload: offset, fileid,
// then the data bytes themselves (copied by the caller after Marshal).
type WriteFilReq struct {
	Offset uint32
	FileID uint16
}

func (r WriteFilReq) Marshal(buf []byte) int {
	binary.LittleEndian.PutUint32(buf[0:], r.Offset)
	binary.LittleEndian.PutUint16(buf[4:], r.FileID)
	return 6
}

// WriteFilReplyLen is the fixed-size part of WRITEFIL's reply: a u16
// accepted-byte count. AX carries the success/error word separately.
const WriteFilReplyLen = 2

func UnmarshalWriteFilReply(payload []byte) (accepted uint16, ok bool) {
	if len(payload) < WriteFilReplyLen {
		return 0, false
	}
	return binary.LittleEndian.Uint16(payload), true
}

// LockRecord is one 8-byte record in a LOCKFIL/UNLOCKFIL payload.
type LockRecord struct {
	Start uint32
	Len   uint32
}

// LockFilReq is LOCKFIL/UNLOCKFIL's (0A, BL in {0,1}) payload.
type LockFilReq struct {
	FileID  uint16
	Records []LockRecord
}

func (r LockFilReq) Marshal(buf []byte) int {
	binary.LittleEndian.PutUint16(buf[0:], uint16(len(r.Records)))
	binary.LittleEndian.PutUint16(buf[2:], r.FileID)
	off := 4
	for _, rec := range r.Records {
		binary.LittleEndian.PutUint32(buf[off:], rec.Start)
		binary.LittleEndian.PutUint32(buf[off+4:], rec.Len)
		off += 8
	}
	return off
}

// DiskSpaceReply is DISKSPACE's (0C) fixed 6-byte reply payload; the
// reply's AX word itself carries sectors_per_cluster.
type DiskSpaceReply struct {
	TotalClusters uint16
	BytesPerSector uint16
	FreeClusters  uint16
}

func UnmarshalDiskSpaceReply(payload []byte) (DiskSpaceReply, bool) {
	if len(payload) < 6 {
		return DiskSpaceReply{}, false
	}
	return DiskSpaceReply{
		TotalClusters:  binary.LittleEndian.Uint16(payload[0:]),
		BytesPerSector: binary.LittleEndian.Uint16(payload[2:]),
		FreeClusters:   binary.LittleEndian.Uint16(payload[4:]),
	}, true
}

// SetAttrReq is SETATTR's (0E) payload: the attribute byte then the
// path tail.
type SetAttrReq struct {
	Attr uint8
	Tail string
}

func (r SetAttrReq) Marshal(buf []byte) int {
	buf[0] = r.Attr
	n := copy(buf[1:], r.Tail)
	return 1 + n
}

// GetAttrReq is GETATTR's (0F) payload: the path tail.
type GetAttrReq struct {
	Tail string
}

func (r GetAttrReq) Marshal(buf []byte) int {
	return copy(buf, r.Tail)
}

// GetAttrReply is GETATTR's fixed 9-byte reply payload.
type GetAttrReply struct {
	Time uint16
	Date uint16
	Size uint32
	Attr uint8
}

func UnmarshalGetAttrReply(payload []byte) (GetAttrReply, bool) {
	if len(payload) < 9 {
		return GetAttrReply{}, false
	}
	return GetAttrReply{
		Time: binary.LittleEndian.Uint16(payload[0:]),
		Date: binary.LittleEndian.Uint16(payload[2:]),
		Size: binary.LittleEndian.Uint32(payload[4:]),
		Attr: payload[8],
	}, true
}

// RenameReq is RENAME's (11) payload: the old tail's length, then the
// old tail, then the new tail.
type RenameReq struct {
	OldTail string
	NewTail string
}

func (r RenameReq) Marshal(buf []byte) int {
	buf[0] = byte(len(r.OldTail))
	n := 1
	n += copy(buf[n:], r.OldTail)
	n += copy(buf[n:], r.NewTail)
	return n
}

// DeleteReq is DELETE's (13) payload: the path tail.
type DeleteReq struct {
	Tail string
}

func (r DeleteReq) Marshal(buf []byte) int {
	return copy(buf, r.Tail)
}

// OpenCreateReq is OPEN/CREATE/SPOPEN's (16/17/2E) payload. ActionCode
// and OpenMode only matter for SPOPEN but are always sent.
type OpenCreateReq struct {
	StackWord uint16
	ActionCode uint16
	OpenMode  uint16
	Tail      string
}

func (r OpenCreateReq) Marshal(buf []byte) int {
	binary.LittleEndian.PutUint16(buf[0:], r.StackWord)
	binary.LittleEndian.PutUint16(buf[2:], r.ActionCode)
	binary.LittleEndian.PutUint16(buf[4:], r.OpenMode)
	n := 6 + copy(buf[6:], r.Tail)
	return n
}

// OpenCreateReply is OPEN/CREATE/SPOPEN's fixed 25-byte reply payload.
type OpenCreateReply struct {
	Attr        uint8
	Name        [11]byte
	Time        uint32
	Size        uint32
	FileID      uint16
	OpenModeLow uint8
	SpOpenWord  uint16 // offset 22, only meaningful for SPOPEN
}

func UnmarshalOpenCreateReply(payload []byte) (OpenCreateReply, bool) {
	if len(payload) < 25 {
		return OpenCreateReply{}, false
	}
	var rep OpenCreateReply
	rep.Attr = payload[0]
	copy(rep.Name[:], payload[1:12])
	rep.Time = binary.LittleEndian.Uint32(payload[12:16])
	rep.Size = binary.LittleEndian.Uint32(payload[16:20])
	rep.FileID = binary.LittleEndian.Uint16(payload[20:22])
	rep.OpenModeLow = payload[22]
	rep.SpOpenWord = binary.LittleEndian.Uint16(payload[22:24])
	return rep, true
}

// FindFirstReq is FINDFIRST's (1B) payload: search attribute mask then
// the path tail.
type FindFirstReq struct {
	SearchAttr uint8
	Tail       string
}

func (r FindFirstReq) Marshal(buf []byte) int {
	buf[0] = r.SearchAttr
	return 1 + copy(buf[1:], r.Tail)
}

// FindNextReq is FINDNEXT's (1C) payload, taken from the scan cursor.
type FindNextReq struct {
	ParentID   uint16
	DirEntry   uint16
	SearchAttr uint8
	Template   [11]byte
}

func (r FindNextReq) Marshal(buf []byte) int {
	binary.LittleEndian.PutUint16(buf[0:], r.ParentID)
	binary.LittleEndian.PutUint16(buf[2:], r.DirEntry)
	buf[4] = r.SearchAttr
	copy(buf[5:16], r.Template[:])
	return 16
}

// FindEntryReply is FINDFIRST/FINDNEXT's fixed 24-byte reply payload.
type FindEntryReply struct {
	Attr     uint8
	Name     [11]byte
	Time     uint16
	Date     uint16
	Size     uint32
	ParentID uint16
	DirEntry uint16
}

func UnmarshalFindEntryReply(payload []byte) (FindEntryReply, bool) {
	if len(payload) < 24 {
		return FindEntryReply{}, false
	}
	var rep FindEntryReply
	rep.Attr = payload[0]
	copy(rep.Name[:], payload[1:12])
	rep.Time = binary.LittleEndian.Uint16(payload[12:14])
	rep.Date = binary.LittleEndian.Uint16(payload[14:16])
	rep.Size = binary.LittleEndian.Uint32(payload[16:20])
	rep.ParentID = binary.LittleEndian.Uint16(payload[20:22])
	rep.DirEntry = binary.LittleEndian.Uint16(payload[22:24])
	return rep, true
}

// SkfmEndReq is SKFMEND's (21) payload: a signed 32-bit offset split
// into two little-endian words, then the fileid.
type SkfmEndReq struct {
	OffsetLow  uint16
	OffsetHigh uint16
	FileID     uint16
}

func (r SkfmEndReq) Marshal(buf []byte) int {
	binary.LittleEndian.PutUint16(buf[0:], r.OffsetLow)
	binary.LittleEndian.PutUint16(buf[2:], r.OffsetHigh)
	binary.LittleEndian.PutUint16(buf[4:], r.FileID)
	return 6
}

// SkfmEndReply is SKFMEND's fixed 4-byte reply payload: the new
// absolute position.
func UnmarshalSkfmEndReply(payload []byte) (position uint32, ok bool) {
	if len(payload) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(payload), true
}
