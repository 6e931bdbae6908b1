package etherdfs

import (
	"fmt"
	"sync"
)

// NumDriveLetters is the number of ordinals a drive letter can take,
// A=0 .. Z=25.
const NumDriveLetters = 26

// mappingEntry is one slot of the drive mapping table. An unmapped slot
// carries the sentinel remoteOrdinal == unmappedOrdinal.
type mappingEntry struct {
	mapped        bool
	remoteOrdinal uint8
}

const unmappedOrdinal = 0xFF

// MappingTable is the per-drive-letter state: an array indexed by
// local-letter ordinal. A letter appears in at most one mapping. The
// remote MAC shared by all mappings is not kept here; it is
// Transport.PeerMAC.
type MappingTable struct {
	mu      sync.Mutex
	entries [NumDriveLetters]mappingEntry
}

// NewMappingTable returns an empty table; every slot unmapped.
func NewMappingTable() *MappingTable {
	t := &MappingTable{}
	for i := range t.entries {
		t.entries[i] = mappingEntry{mapped: false, remoteOrdinal: unmappedOrdinal}
	}
	return t
}

// Map binds local letter ordinal `local` to remote letter ordinal
// `remote`. It returns an error if either ordinal is out of range or
// `local` is already mapped, preserving the invariant that a letter
// appears in at most one mapping.
func (t *MappingTable) Map(local, remote uint8) error {
	if local >= NumDriveLetters || remote >= NumDriveLetters {
		return fmt.Errorf("etherdfs: drive ordinal out of range (local=%d remote=%d)", local, remote)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.entries[local].mapped {
		return fmt.Errorf("etherdfs: local drive %c is already mapped", 'A'+local)
	}

	t.entries[local] = mappingEntry{mapped: true, remoteOrdinal: remote}
	return nil
}

// Unmap clears a local letter's mapping, if any.
func (t *MappingTable) Unmap(local uint8) {
	if local >= NumDriveLetters {
		return
	}
	t.mu.Lock()
	t.entries[local] = mappingEntry{mapped: false, remoteOrdinal: unmappedOrdinal}
	t.mu.Unlock()
}

// Lookup returns the remote ordinal bound to local, and whether local
// is mapped at all. An ordinal that is out of range or unmapped means
// "not for us".
func (t *MappingTable) Lookup(local uint8) (remote uint8, ok bool) {
	if local >= NumDriveLetters {
		return 0, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[local]
	return e.remoteOrdinal, e.mapped
}

// Mapped reports whether any drive letter at all is mapped. Discovery
// needs at least one mapped drive to probe against.
func (t *MappingTable) Mapped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.mapped {
			return true
		}
	}
	return false
}

// FirstMapped returns the ordinal of the first mapped local drive, used
// by discovery to pick a DISKSPACE target.
func (t *MappingTable) FirstMapped() (local uint8, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.entries {
		if e.mapped {
			return uint8(i), true
		}
	}
	return 0, false
}

// Letters returns the local ordinals that are currently mapped, in
// ascending order. Unload walks this list to clear each mapped drive's
// host-visible state.
func (t *MappingTable) Letters() []uint8 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []uint8
	for i, e := range t.entries {
		if e.mapped {
			out = append(out, uint8(i))
		}
	}
	return out
}
