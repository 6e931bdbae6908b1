package etherdfs

import (
	"github.com/pkg/errors"

	"github.com/etherdfs/etherdfs-go/internal/wire"
	"github.com/etherdfs/etherdfs-go/ops"
)

// ErrNotOurs is returned by Engine's operation methods when the call
// names a drive letter this instance does not map. Such a call belongs
// to whatever handler ran before this one was installed (see
// Installer.Route in lifecycle.go).
var ErrNotOurs = errors.New("etherdfs: drive not mapped by this instance")

// remoteOrdinal resolves a local drive letter to the byte the wire
// protocol wants in OffDrive: the remote ordinal on success, or
// ErrNotOurs if local isn't one of ours.
func (e *Engine) remoteOrdinal(local uint8) (uint8, error) {
	remote, ok := e.Mapping.Lookup(local)
	if !ok {
		return 0, ErrNotOurs
	}
	return remote, nil
}

// Rmdir implements RMDIR (01). tail is the path with its drive prefix
// already stripped. Removing the drive's current directory is rejected
// locally without a wire round-trip.
func (e *Engine) Rmdir(local uint8, tail string, isCurrentDir bool) error {
	if isCurrentDir {
		return ErrCurrentDirectory
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	remote, err := e.remoteOrdinal(local)
	if err != nil {
		return err
	}

	req := ops.RmdirMkdirChdirReq{Tail: tail}
	n := req.Marshal(e.transport.Payload())
	_, ax, err := e.transport.Request(wire.OpRmdir, remote, n, false)
	return e.axResult(ax, err)
}

// Mkdir implements MKDIR (03).
func (e *Engine) Mkdir(local uint8, tail string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	remote, err := e.remoteOrdinal(local)
	if err != nil {
		return err
	}

	req := ops.RmdirMkdirChdirReq{Tail: tail}
	n := req.Marshal(e.transport.Payload())
	_, ax, err := e.transport.Request(wire.OpMkdir, remote, n, false)
	return e.axResult(ax, err)
}

// Chdir implements CHDIR (05): validates tail exists and is a directory
// on the server without altering any local state. The caller owns the
// actual current-directory string.
func (e *Engine) Chdir(local uint8, tail string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	remote, err := e.remoteOrdinal(local)
	if err != nil {
		return err
	}

	req := ops.RmdirMkdirChdirReq{Tail: tail}
	n := req.Marshal(e.transport.Payload())
	_, ax, err := e.transport.Request(wire.OpChdir, remote, n, false)
	return e.axResult(ax, err)
}

// ClsFil implements CLSFIL (06). The file handle carries its own drive
// ordinal per the routing rule for file-handle operations.
func (e *Engine) ClsFil(f *OpenFile) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	remote, err := e.remoteOrdinal(f.DriveOrdinal())
	if err != nil {
		return err
	}

	req := ops.ClsFilReq{FileID: f.FileID}
	n := req.Marshal(e.transport.Payload())
	_, ax, err := e.transport.Request(wire.OpClsFil, remote, n, false)
	return e.axResult(ax, err)
}

// CmmtFil implements CMMTFIL (07): flush a file's buffered writes.
func (e *Engine) CmmtFil(f *OpenFile) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	remote, err := e.remoteOrdinal(f.DriveOrdinal())
	if err != nil {
		return err
	}

	req := ops.ClsFilReq{FileID: f.FileID}
	n := req.Marshal(e.transport.Payload())
	_, ax, err := e.transport.Request(wire.OpCmmtFil, remote, n, false)
	return e.axResult(ax, err)
}

// maxReadChunk and maxWriteChunk are the largest data a single
// READFIL/WRITEFIL round-trip can carry: a READFIL reply is all data,
// so the whole payload area; a WRITEFIL request gives up its 6-byte
// offset/fileid header.
const (
	maxReadChunk  = wire.FrameSize - wire.OffPayload
	maxWriteChunk = wire.FrameSize - wire.OffPayload - 6
)

// ReadFil implements READFIL (08), chunking the request across as many
// round-trips as needed and advancing f.FilePos as bytes arrive. It
// returns the bytes actually read, which may be less than len(dst) at
// end of file.
func (e *Engine) ReadFil(f *OpenFile, dst []byte) (int, error) {
	if f.WriteOnly() {
		return 0, ErrFileNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	remote, err := e.remoteOrdinal(f.DriveOrdinal())
	if err != nil {
		return 0, err
	}

	if len(dst) == 0 {
		return 0, nil
	}

	total := 0
	for total < len(dst) {
		chunk := len(dst) - total
		if chunk > maxReadChunk {
			chunk = maxReadChunk
		}

		req := ops.ReadFilReq{Offset: f.FilePos, FileID: f.FileID, ChunkLen: uint16(chunk)}
		n := req.Marshal(e.transport.Payload())
		payload, ax, err := e.transport.Request(wire.OpReadFil, remote, n, false)
		if err != nil {
			return total, ErrFileNotFound
		}
		if he := axError(ax); he != nil {
			return total, he
		}

		got := copy(dst[total:total+chunk], payload)
		total += got
		f.FilePos += uint32(got)

		if got < chunk {
			// Short read: end of file reached mid-chunk.
			break
		}
	}

	return total, nil
}

// WriteFil implements WRITEFIL (09). A zero-length src is the
// truncate-at-current-position special case and is still treated as a
// successful write of zero bytes.
func (e *Engine) WriteFil(f *OpenFile, src []byte) (int, error) {
	if f.ReadOnly() {
		return 0, ErrFileNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	remote, err := e.remoteOrdinal(f.DriveOrdinal())
	if err != nil {
		return 0, err
	}

	if len(src) == 0 {
		req := ops.WriteFilReq{Offset: f.FilePos, FileID: f.FileID}
		hdrLen := req.Marshal(e.transport.Payload())
		payload, ax, err := e.transport.Request(wire.OpWriteFil, remote, hdrLen, false)
		if err != nil {
			return 0, ErrFileNotFound
		}
		if he := axError(ax); he != nil {
			return 0, he
		}
		accepted, _ := ops.UnmarshalWriteFilReply(payload)
		f.FileSize = f.FilePos
		return int(accepted), nil
	}

	total := 0
	for total < len(src) {
		chunk := len(src) - total
		if chunk > maxWriteChunk {
			chunk = maxWriteChunk
		}

		payloadBuf := e.transport.Payload()
		req := ops.WriteFilReq{Offset: f.FilePos, FileID: f.FileID}
		hdrLen := req.Marshal(payloadBuf)
		copy(payloadBuf[hdrLen:], src[total:total+chunk])

		payload, ax, err := e.transport.Request(wire.OpWriteFil, remote, hdrLen+chunk, false)
		if err != nil {
			return total, ErrFileNotFound
		}
		if he := axError(ax); he != nil {
			return total, he
		}

		accepted, ok := ops.UnmarshalWriteFilReply(payload)
		if !ok {
			return total, ErrFileNotFound
		}

		total += int(accepted)
		f.FilePos += uint32(accepted)
		if f.FilePos > f.FileSize {
			f.FileSize = f.FilePos
		}

		if int(accepted) < chunk {
			break
		}
	}

	return total, nil
}

// LockType selects LOCKFIL versus UNLOCKFIL, carried in BL.
type LockType uint8

const (
	LockTypeLock   LockType = 0
	LockTypeUnlock LockType = 1
)

// LockFil implements LOCKFIL/UNLOCKFIL (0A). kind must be LockTypeLock
// or LockTypeUnlock; any other value is rejected locally.
func (e *Engine) LockFil(f *OpenFile, kind LockType, records []ops.LockRecord) error {
	if kind != LockTypeLock && kind != LockTypeUnlock {
		return ErrFileNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	remote, err := e.remoteOrdinal(f.DriveOrdinal())
	if err != nil {
		return err
	}

	req := ops.LockFilReq{FileID: f.FileID, Records: records}
	n := req.Marshal(e.transport.Payload())
	_, ax, err := e.transport.Request(wire.OpLockFil+uint8(kind), remote, n, false)
	return e.axResult(ax, err)
}

// DiskSpace implements DISKSPACE (0C). The returned AX word is the
// reply's sectors-per-cluster value, not an error code. When
// updatePeerMAC is set (discovery, which first points PeerMAC at the
// broadcast address) the reply's source MAC is adopted as the new peer.
func (e *Engine) DiskSpace(local uint8, updatePeerMAC bool) (ops.DiskSpaceReply, uint16, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	remote, err := e.remoteOrdinal(local)
	if err != nil {
		return ops.DiskSpaceReply{}, 0, err
	}

	payload, ax, err := e.transport.Request(wire.OpDiskSpace, remote, 0, updatePeerMAC)
	if err != nil {
		return ops.DiskSpaceReply{}, 0, ErrFileNotFound
	}
	reply, ok := ops.UnmarshalDiskSpaceReply(payload)
	if !ok {
		return ops.DiskSpaceReply{}, ax, ErrFileNotFound
	}
	return reply, ax, nil
}

// SetAttr implements SETATTR (0E).
func (e *Engine) SetAttr(local uint8, attr uint8, tail string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	remote, err := e.remoteOrdinal(local)
	if err != nil {
		return err
	}

	req := ops.SetAttrReq{Attr: attr, Tail: tail}
	n := req.Marshal(e.transport.Payload())
	_, ax, err := e.transport.Request(wire.OpSetAttr, remote, n, false)
	return e.axResult(ax, err)
}

// GetAttr implements GETATTR (0F).
func (e *Engine) GetAttr(local uint8, tail string) (ops.GetAttrReply, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	remote, err := e.remoteOrdinal(local)
	if err != nil {
		return ops.GetAttrReply{}, err
	}

	req := ops.GetAttrReq{Tail: tail}
	n := req.Marshal(e.transport.Payload())
	payload, ax, err := e.transport.Request(wire.OpGetAttr, remote, n, false)
	if err != nil {
		return ops.GetAttrReply{}, ErrFileNotFound
	}
	if he := axError(ax); he != nil {
		return ops.GetAttrReply{}, he
	}
	reply, ok := ops.UnmarshalGetAttrReply(payload)
	if !ok {
		return ops.GetAttrReply{}, ErrFileNotFound
	}
	return reply, nil
}

// Rename implements RENAME (11). oldPath and newPath are fully
// qualified (drive letter included) so the cross-drive guard can be
// checked before stripping prefixes.
func (e *Engine) Rename(oldPath, newPath string) error {
	if !SameDrive(oldPath, newPath) {
		return ErrPathNotFound
	}
	oldTail := StripDrivePrefix(oldPath)
	newTail := StripDrivePrefix(newPath)
	if HasWildcard(oldTail) || HasWildcard(newTail) {
		return ErrPathNotFound
	}

	local, _ := DriveLetterOrdinal(oldPath)

	e.mu.Lock()
	defer e.mu.Unlock()

	remote, err := e.remoteOrdinal(local)
	if err != nil {
		return err
	}

	req := ops.RenameReq{OldTail: oldTail, NewTail: newTail}
	n := req.Marshal(e.transport.Payload())
	_, ax, err := e.transport.Request(wire.OpRename, remote, n, false)
	return e.axResult(ax, err)
}

// Delete implements DELETE (13).
func (e *Engine) Delete(local uint8, tail string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	remote, err := e.remoteOrdinal(local)
	if err != nil {
		return err
	}

	req := ops.DeleteReq{Tail: tail}
	n := req.Marshal(e.transport.Payload())
	_, ax, err := e.transport.Request(wire.OpDelete, remote, n, false)
	return e.axResult(ax, err)
}

// OpenKind distinguishes plain OPEN/CREATE from SPOPEN, the only
// variant that carries an explicit sharing/open mode word. All three
// reject a wildcard path. Open does not return the SPOPEN reply word
// (ops.OpenCreateReply.SpOpenWord) to its caller for any kind.
type OpenKind uint8

const (
	OpenKindOpen OpenKind = iota
	OpenKindCreate
	OpenKindSpOpen
)

// Open implements OPEN/CREATE/SPOPEN (16/17/2E). f is populated in
// place on success.
func (e *Engine) Open(local uint8, kind OpenKind, stackWord, actionCode, openMode uint16, tail string, f *OpenFile) error {
	if HasWildcard(tail) {
		return ErrPathNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	remote, err := e.remoteOrdinal(local)
	if err != nil {
		return err
	}

	var op byte
	switch kind {
	case OpenKindOpen:
		op = wire.OpOpen
	case OpenKindCreate:
		op = wire.OpCreate
	case OpenKindSpOpen:
		op = wire.OpSpOpen
	}

	req := ops.OpenCreateReq{StackWord: stackWord, ActionCode: actionCode, OpenMode: openMode, Tail: tail}
	n := req.Marshal(e.transport.Payload())
	payload, ax, err := e.transport.Request(op, remote, n, false)
	if err != nil {
		return ErrFileNotFound
	}
	if he := axError(ax); he != nil {
		return he
	}
	reply, ok := ops.UnmarshalOpenCreateReply(payload)
	if !ok {
		return ErrFileNotFound
	}

	f.populateFromOpenReply(local, reply.Attr, reply.Name, reply.Time, reply.Size, reply.FileID, reply.OpenModeLow)
	return nil
}

// FindFirst implements FINDFIRST (1B), initializing cursor for the scan.
func (e *Engine) FindFirst(local uint8, searchAttr uint8, tail string, cursor *DirCursor) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	remote, err := e.remoteOrdinal(local)
	if err != nil {
		return err
	}

	req := ops.FindFirstReq{SearchAttr: searchAttr, Tail: tail}
	n := req.Marshal(e.transport.Payload())
	payload, ax, err := e.transport.Request(wire.OpFindFirst, remote, n, false)
	if err != nil {
		return ErrFileNotFound
	}
	if he := axError(ax); he != nil {
		return he
	}
	reply, ok := ops.UnmarshalFindEntryReply(payload)
	if !ok {
		return ErrNoMoreFiles
	}

	cursor.DriveOrdinal = local
	cursor.SearchTmpl = FCBName(tail)
	cursor.SearchAttr = searchAttr
	cursor.advance(reply.Attr, reply.Name, reply.Time, reply.Date, reply.Size, reply.ParentID, reply.DirEntry)
	return nil
}

// FindNext implements FINDNEXT (1C). Unlike most ops, a transport
// failure here maps to ErrNoMoreFiles rather than ErrFileNotFound.
func (e *Engine) FindNext(cursor *DirCursor) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	remote, err := e.remoteOrdinal(cursor.Drive())
	if err != nil {
		return err
	}

	req := ops.FindNextReq{
		ParentID:   cursor.ParentID,
		DirEntry:   cursor.DirEntry,
		SearchAttr: cursor.SearchAttr,
		Template:   cursor.SearchTmpl,
	}
	n := req.Marshal(e.transport.Payload())
	payload, ax, err := e.transport.Request(wire.OpFindNext, remote, n, false)
	if err != nil {
		return ErrNoMoreFiles
	}
	if he := axError(ax); he != nil {
		return he
	}
	reply, ok := ops.UnmarshalFindEntryReply(payload)
	if !ok {
		return ErrNoMoreFiles
	}

	cursor.advance(reply.Attr, reply.Name, reply.Time, reply.Date, reply.Size, reply.ParentID, reply.DirEntry)
	return nil
}

// SkfmEnd implements SKFMEND (21): seek relative to end of file.
func (e *Engine) SkfmEnd(f *OpenFile, offset int32) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	remote, err := e.remoteOrdinal(f.DriveOrdinal())
	if err != nil {
		return 0, err
	}

	req := ops.SkfmEndReq{
		OffsetLow:  uint16(uint32(offset)),
		OffsetHigh: uint16(uint32(offset) >> 16),
		FileID:     f.FileID,
	}
	n := req.Marshal(e.transport.Payload())
	payload, ax, err := e.transport.Request(wire.OpSkfmEnd, remote, n, false)
	if err != nil {
		return 0, ErrFileNotFound
	}
	if he := axError(ax); he != nil {
		return 0, he
	}
	pos, ok := ops.UnmarshalSkfmEndReply(payload)
	if !ok {
		return 0, ErrFileNotFound
	}
	f.FilePos = pos
	return pos, nil
}

// Unknown2D implements UNKNOWN_2D (2D): a file-handle op that is routed
// like any other (the file's drive ordinal decides ErrNotOurs) but
// never goes out on the wire, always reporting host AX=2.
func (e *Engine) Unknown2D(f *OpenFile) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.remoteOrdinal(f.DriveOrdinal()); err != nil {
		return err
	}
	return ErrFileNotFound
}

// axResult folds a transport error and a reply's AX word into the
// single error value callers that don't need the reply payload expect.
func (e *Engine) axResult(ax uint16, transportErr error) error {
	if transportErr != nil {
		return ErrFileNotFound
	}
	return axError(ax)
}

// axError turns a nonzero reply AX word into a HostError: the
// dispatcher writes AX straight back as the DOS error code on failure,
// and AX==0 means success.
func axError(ax uint16) error {
	if ax == 0 {
		return nil
	}
	return HostError(ax)
}
