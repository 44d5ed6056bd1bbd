package nv

import (
	"github.com/vrnetsync/hub/internal/v1/codec"
	"github.com/vrnetsync/hub/internal/v1/types"
)

// BuildSnapshot renders the current full state plus the name-table digest,
// the reply to a client whose DeltaAck indicates it has fallen off the
// delta ring (§4.7 "Resync").
func (rs *RoomState) BuildSnapshot() codec.SnapshotPayload {
	globals := make(map[uint16]string)
	for id, v := range rs.Globals() {
		globals[uint16(id)] = v
	}
	clients := make(map[uint16]map[uint16]string)
	for no, scope := range rs.Clients() {
		m := make(map[uint16]string, len(scope))
		for id, v := range scope {
			m[uint16(id)] = v
		}
		clients[uint16(no)] = m
	}

	entries := rs.nameTable.Entries()
	wireEntries := make([]codec.NameTableEntryWire, len(entries))
	for i, e := range entries {
		wireEntries[i] = codec.NameTableEntryWire{NameID: uint16(e.NameID), Name: e.Name}
	}
	digest := rs.nameTable.Digest()

	return codec.SnapshotPayload{
		RoomID:  string(rs.RoomID),
		NVSeq:   rs.nvSeq,
		Globals: globals,
		Clients: clients,
		NameTable: codec.NameTablePayload{
			Version: digest.Version,
			Entries: wireEntries,
			Count:   digest.Count,
			CRC32:   digest.CRC32,
		},
	}
}

// BuildDelta renders the pending mutation records as a Delta payload,
// clearing the pending list. ok is false if nothing was pending.
func (rs *RoomState) BuildDelta() (codec.DeltaPayload, bool) {
	baseSeq, records, ok := rs.CollectPendingDeltas()
	if !ok {
		return codec.DeltaPayload{}, false
	}
	items := make([]codec.DeltaItem, len(records))
	for i, r := range records {
		item := codec.DeltaItem{
			Seq:    r.Seq,
			Scope:  r.Scope.String(),
			Op:     r.Op.String(),
			NameID: uint16(r.NameID),
		}
		if r.Scope == types.ScopeClient {
			no := uint16(r.ClientNo)
			item.ClientNo = &no
		}
		if r.Op == types.OpSet {
			v := r.Value
			item.Value = &v
		}
		items[i] = item
	}
	return codec.DeltaPayload{RoomID: string(rs.RoomID), BaseSeq: baseSeq, Items: items}, true
}

// BuildNameTableDelta renders names interned since the last flush, if any.
func (rs *RoomState) BuildNameTableDelta() (codec.NameTableDeltaPayload, bool) {
	base, added, newVersion, ok := rs.nameTable.CollectDelta()
	if !ok {
		return codec.NameTableDeltaPayload{}, false
	}
	wireAdded := make([]codec.NameTableEntryWire, len(added))
	for i, e := range added {
		wireAdded[i] = codec.NameTableEntryWire{NameID: uint16(e.NameID), Name: e.Name}
	}
	return codec.NameTableDeltaPayload{
		RoomID:      string(rs.RoomID),
		BaseVersion: base,
		Added:       wireAdded,
		NewVersion:  newVersion,
	}, true
}

// BuildNameTableDigest renders the current (version, count, crc32) summary.
func (rs *RoomState) BuildNameTableDigest() codec.NameTableDigestPayload {
	d := rs.nameTable.Digest()
	return codec.NameTableDigestPayload{RoomID: string(rs.RoomID), Version: d.Version, Count: d.Count, CRC32: d.CRC32}
}
