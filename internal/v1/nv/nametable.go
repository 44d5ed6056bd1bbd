// Package nv implements the Network-Variable engine (C7): per-room global
// and per-client replicated key-value state, last-writer-wins conflict
// resolution, name interning with a CRC32 digest, a bounded delta ring, and
// the flush/resync cadence described in spec.md §4.7. Grounded line-for-line
// on the original server's styly_netsync/nv_sync.py.
package nv

import (
	"hash/crc32"
	"sort"
	"time"

	"github.com/vrnetsync/hub/internal/v1/types"
)

// NameTable interns UTF-8 variable names to monotonically increasing
// 16-bit IDs. IDs are never reused within a room's lifetime (§9
// "Name-table monotonicity"), even after trimStale removes an entry.
type NameTable struct {
	nameToID    map[string]types.NameID
	idToName    map[types.NameID]string
	lastUsed    map[types.NameID]time.Time
	nextID      uint32 // wider than NameID so overflow is detectable
	pendingAdded []types.NameTableEntry
	baseVersion uint64 // version as of the last collected delta
	version     uint64
	crc32       uint32
}

// NewNameTable constructs an empty, monotonic name table.
func NewNameTable() *NameTable {
	return &NameTable{
		nameToID: make(map[string]types.NameID),
		idToName: make(map[types.NameID]string),
		lastUsed: make(map[types.NameID]time.Time),
		nextID:   1,
	}
}

// Lookup returns the interned ID for name, if any.
func (nt *NameTable) Lookup(name string) (types.NameID, bool) {
	id, ok := nt.nameToID[name]
	return id, ok
}

// Resolve returns the ID for name, interning it if this is the first time
// the table has seen it. isNew reports whether a new ID was allocated.
func (nt *NameTable) Resolve(name string) (id types.NameID, isNew bool) {
	if id, ok := nt.nameToID[name]; ok {
		return id, false
	}
	id = types.NameID(nt.nextID)
	nt.nextID++
	nt.nameToID[name] = id
	nt.idToName[id] = name
	nt.version++
	nt.pendingAdded = append(nt.pendingAdded, types.NameTableEntry{NameID: id, Name: name})
	nt.recomputeCRC32()
	return id, true
}

// Touch records that id was referenced at now, used by trimStale to decide
// which entries are cold.
func (nt *NameTable) Touch(id types.NameID, now time.Time) {
	nt.lastUsed[id] = now
}

// Entries returns every (nameID, name) pair, sorted by nameID.
func (nt *NameTable) Entries() []types.NameTableEntry {
	out := make([]types.NameTableEntry, 0, len(nt.idToName))
	for id, name := range nt.idToName {
		out = append(out, types.NameTableEntry{NameID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NameID < out[j].NameID })
	return out
}

// Digest returns the current (version, count, crc32) summary.
func (nt *NameTable) Digest() types.NameTableDigest {
	return types.NameTableDigest{Version: nt.version, Count: len(nt.idToName), CRC32: nt.crc32}
}

// CollectDelta returns the entries interned since the last call (or since
// construction), clearing the pending list. Returns ok=false if nothing is
// pending — callers should skip emitting a NameTableDelta in that case.
func (nt *NameTable) CollectDelta() (base uint64, added []types.NameTableEntry, newVersion uint64, ok bool) {
	if len(nt.pendingAdded) == 0 {
		return 0, nil, 0, false
	}
	base = nt.baseVersion
	added = nt.pendingAdded
	newVersion = nt.version
	nt.pendingAdded = nil
	nt.baseVersion = newVersion
	return base, added, newVersion, true
}

// TrimStale removes entries whose last reference is older than staleAfter.
// The freed name is never reinterned under a new ID — nextID only climbs.
func (nt *NameTable) TrimStale(now time.Time, staleAfter time.Duration) {
	changed := false
	for id, last := range nt.lastUsed {
		if now.Sub(last) > staleAfter {
			name := nt.idToName[id]
			delete(nt.idToName, id)
			delete(nt.nameToID, name)
			delete(nt.lastUsed, id)
			changed = true
		}
	}
	if changed {
		nt.recomputeCRC32()
	}
}

// recomputeCRC32 packs sorted <u16 nameId><utf8 name> entries and computes
// CRC-32/ISO-HDLC, matching the original's zlib.crc32 over the same layout.
func (nt *NameTable) recomputeCRC32() {
	entries := nt.Entries()
	buf := make([]byte, 0, len(entries)*8)
	for _, e := range entries {
		buf = append(buf, byte(e.NameID), byte(e.NameID>>8))
		buf = append(buf, e.Name...)
	}
	nt.crc32 = crc32.ChecksumIEEE(buf)
}
