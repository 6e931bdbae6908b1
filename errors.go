package etherdfs

import (
	"errors"
	"fmt"
)

// HostError is a DOS-style host-visible error code, the value the
// dispatcher writes back into AX for the caller. HostError gives these
// bare integers an Error() string so the rest of the engine can treat
// them as ordinary Go errors.
type HostError uint16

const (
	// ErrFileNotFound (2) is both a literal "file not found" and the
	// generic stand-in for a transport failure.
	ErrFileNotFound HostError = 2
	// ErrPathNotFound (3) covers missing paths and rejected wildcards.
	ErrPathNotFound HostError = 3
	// ErrCurrentDirectory (16) is RMDIR's local guard against removing
	// the drive's current working directory.
	ErrCurrentDirectory HostError = 16
	// ErrNoMoreFiles (18) is FINDNEXT's transport-failure mapping.
	ErrNoMoreFiles HostError = 18
)

var hostErrorText = map[HostError]string{
	0:                   "success",
	ErrFileNotFound:     "file not found",
	ErrPathNotFound:     "path not found",
	ErrCurrentDirectory: "cannot remove current directory",
	ErrNoMoreFiles:      "no more files",
}

func (e HostError) Error() string {
	if s, ok := hostErrorText[e]; ok {
		return fmt.Sprintf("etherdfs: %s (%d)", s, uint16(e))
	}
	return fmt.Sprintf("etherdfs: host error %d", uint16(e))
}

// IsHostError reports whether err is (or wraps) a HostError, and
// returns it.
func IsHostError(err error) (HostError, bool) {
	var he HostError
	ok := errors.As(err, &he)
	return he, ok
}
