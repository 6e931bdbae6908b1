package etherdfs

import "time"

// devInfoNetBit and devInfoUnwrittenBit are the high bits OPEN/CREATE/
// SPOPEN set on dev_info_word, flagging the handle as network and
// unwritten.
const (
	devInfoNetBit       = 0x8000
	devInfoUnwrittenBit = 0x0040
	devInfoDriveMask    = 0x003F
)

// OpenMode bits recognized on OpenFile.OpenMode.
const (
	OpenModeReadOnly  = 0x00
	OpenModeWriteOnly = 0x01
	OpenModeReadWrite = 0x02
	OpenModeAccessMask = 0x03
	OpenModeFCBBit    = 1 << 15
)

// OpenFile is the Go-native stand-in for the host-owned SFT fields the
// engine mutates in place. The host allocates one on OPEN/CREATE/
// SPOPEN; the engine populates it from the reply and mutates it on
// every subsequent READ/WRITE/SEEK. CLOSE leaves it unchanged; it
// carries no handle count.
type OpenFile struct {
	OpenMode  uint16
	FileAttr  uint8
	DevInfo   uint16
	FileSize  uint32
	FilePos   uint32
	FileTime  uint32
	FileID    uint16 // server-assigned handle, the wire's "start_sector"
	Name      [11]byte
	RelSector uint16
	AbsSector uint16
	DirEntry  uint8
}

// DriveOrdinal extracts the local drive ordinal from DevInfo, used to
// route file-handle ops back to their owning drive.
func (f *OpenFile) DriveOrdinal() uint8 {
	return uint8(f.DevInfo & devInfoDriveMask)
}

// ReadOnly and WriteOnly report the access mode recorded in OpenMode's
// low bits, used by READFIL/WRITEFIL's local preconditions.
func (f *OpenFile) ReadOnly() bool  { return f.OpenMode&OpenModeAccessMask == OpenModeReadOnly }
func (f *OpenFile) WriteOnly() bool { return f.OpenMode&OpenModeAccessMask == OpenModeWriteOnly }

// populateFromOpenReply fills in the fields OPEN/CREATE/SPOPEN's 25-byte
// reply contract describes, setting DevInfo, RelSector/AbsSector/
// DirEntry to their fixed sentinels.
func (f *OpenFile) populateFromOpenReply(driveOrdinal uint8, attr uint8, name [11]byte, fileTime, fileSize uint32, fileID uint16, openModeLow uint8) {
	f.FileAttr = attr
	f.Name = name
	f.FileTime = fileTime
	f.FileSize = fileSize
	f.FileID = fileID
	f.OpenMode = (f.OpenMode &^ 0xFF) | uint16(openModeLow)
	f.DevInfo = devInfoNetBit | devInfoUnwrittenBit | uint16(driveOrdinal)
	f.RelSector = 0xFFFF
	f.AbsSector = 0xFFFF
	f.DirEntry = 0xFF
	f.FilePos = 0
}

// FoundFile is the 32-byte found-entry area a directory scan writes
// into on FINDFIRST/FINDNEXT.
type FoundFile struct {
	Attr     uint8
	Name     [11]byte
	Time     uint16
	Date     uint16
	Size     uint32
	ParentID uint16
	DirEntry uint16
}

// DirCursor is the Go-native stand-in for the 21-byte directory scan
// control block. Initialized by FINDFIRST, advanced by FINDNEXT until
// the server signals no-more-files.
type DirCursor struct {
	DriveOrdinal uint8 // low 5 bits + network bit
	SearchTmpl   [11]byte
	SearchAttr   uint8
	ParentID     uint16
	DirEntry     uint16

	Found FoundFile
}

// Drive extracts the plain drive ordinal from DriveOrdinal's low 5
// bits, used to route a FINDNEXT call back to its owning drive.
func (c *DirCursor) Drive() uint8 {
	return c.DriveOrdinal & 0x1F
}

// advance records a FINDFIRST/FINDNEXT reply into the cursor, matching
// the fixed 24-byte reply contract both ops share.
func (c *DirCursor) advance(attr uint8, name [11]byte, timeW, dateW uint16, size uint32, parentID, dirEntry uint16) {
	c.Found = FoundFile{
		Attr:     attr,
		Name:     name,
		Time:     timeW,
		Date:     dateW,
		Size:     size,
		ParentID: parentID,
		DirEntry: dirEntry,
	}
	c.ParentID = parentID
	c.DirEntry = dirEntry
}

// dosPack packs a time.Time into the classic FAT date and time words.
// No operation in this package calls it; the server is the source of
// truth for timestamps.
func dosPack(t time.Time) (date, timeOfDay uint16) {
	date = uint16((t.Year()-1980)<<9) | uint16(t.Month())<<5 | uint16(t.Day())
	timeOfDay = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	return
}
