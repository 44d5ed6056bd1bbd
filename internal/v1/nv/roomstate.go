package nv

import (
	"time"

	"github.com/vrnetsync/hub/internal/v1/types"
)

// versionedValue is the stored value for one NV key plus the (timestamp,
// writer) pair the next incoming set is compared against under LWW.
type versionedValue struct {
	value          string
	timestamp      float64
	lastWriterNo   types.ClientNo
}

// Limits bounds what a single room's NV state may hold; values come from
// config (§6.3) and are injected at construction so the engine never reads
// global config directly.
type Limits struct {
	MaxGlobalVars      int
	MaxClientVars       int
	MaxVarNameLength    int
	MaxVarValueLength   int
	DeltaRingSize       int
}

// SetResult reports what happened to a Set/Delete call, for metrics and
// logging at the ingress dispatcher.
type SetResult int

const (
	ResultAccepted SetResult = iota
	ResultRejectedStale     // LWW: older or tie-lost
	ResultRejectedNoop      // deduped before LWW: identical value
	ResultRejectedLimit     // would exceed max_global_vars/max_client_vars
	ResultDeletedNoop       // delete of an unknown name
)

// RoomState holds one room's NV state: interned names, global and
// per-client variable maps, the bounded delta ring, and pending-flush
// records. Not safe for concurrent use on its own — callers (room.Room)
// hold a room-scoped lock across every call.
type RoomState struct {
	RoomID types.RoomID

	nameTable *NameTable
	limits    Limits

	nvSeq      uint64
	deltaLog   []types.DeltaRecord // ring, capacity == limits.DeltaRingSize
	deltaFloor uint64
	pending    []types.DeltaRecord

	globals map[types.NameID]*versionedValue
	clients map[types.ClientNo]map[types.NameID]*versionedValue
}

// NewRoomState constructs an empty RoomState. deltaFloor starts at 1 since
// nvSeq starts at 0 and the floor formula is nvSeq - len(ring) + 1.
func NewRoomState(roomID types.RoomID, limits Limits) *RoomState {
	if limits.DeltaRingSize <= 0 {
		limits.DeltaRingSize = 10000
	}
	return &RoomState{
		RoomID:     roomID,
		nameTable:  NewNameTable(),
		limits:     limits,
		deltaFloor: 1,
		globals:    make(map[types.NameID]*versionedValue),
		clients:    make(map[types.ClientNo]map[types.NameID]*versionedValue),
	}
}

// NameTable exposes the room's name table for snapshot/digest building.
func (rs *RoomState) NameTable() *NameTable { return rs.nameTable }

// NVSeq returns the current mutation counter.
func (rs *RoomState) NVSeq() uint64 { return rs.nvSeq }

func (rs *RoomState) nextSeq() uint64 {
	rs.nvSeq++
	return rs.nvSeq
}

func (rs *RoomState) appendDelta(rec types.DeltaRecord) {
	rs.deltaLog = append(rs.deltaLog, rec)
	if len(rs.deltaLog) > rs.limits.DeltaRingSize {
		rs.deltaLog = rs.deltaLog[len(rs.deltaLog)-rs.limits.DeltaRingSize:]
	}
	rs.deltaFloor = rs.nvSeq - uint64(len(rs.deltaLog)) + 1
	rs.pending = append(rs.pending, rec)
}

// clampField truncates name/value to their wire caps, matching the
// truncate-silently decision recorded for the §9 Open Question. The caller
// reports which field(s) were truncated so it can bump a metric.
func clampField(s string, max int) (out string, truncated bool) {
	if len(s) <= max {
		return s, false
	}
	return s[:max], true
}

// SetGlobal applies a set to a per-room global variable with LWW conflict
// resolution. Returns the result and whether the name/value were truncated.
func (rs *RoomState) SetGlobal(name, value string, ts float64, senderNo types.ClientNo, now time.Time) (SetResult, bool, bool) {
	name, nameTrunc := clampField(name, rs.limits.MaxVarNameLength)
	value, valTrunc := clampField(value, rs.limits.MaxVarValueLength)

	id, isNew := rs.nameTable.Resolve(name)
	rs.nameTable.Touch(id, now)

	_ = isNew
	existing, exists := rs.globals[id]
	if exists && existing.value == value {
		return ResultRejectedNoop, nameTrunc, valTrunc
	}
	if !exists && len(rs.globals) >= rs.limits.MaxGlobalVars {
		return ResultRejectedLimit, nameTrunc, valTrunc
	}
	if exists && !lwwAccept(ts, senderNo, existing.timestamp, existing.lastWriterNo) {
		return ResultRejectedStale, nameTrunc, valTrunc
	}

	rs.globals[id] = &versionedValue{value: value, timestamp: ts, lastWriterNo: senderNo}
	rs.appendDelta(types.DeltaRecord{
		Seq: rs.nextSeq(), Scope: types.ScopeGlobal, Op: types.OpSet,
		NameID: id, Value: value,
	})
	return ResultAccepted, nameTrunc, valTrunc
}

// DeleteGlobal removes a global variable if it exists.
func (rs *RoomState) DeleteGlobal(name string) SetResult {
	id, ok := rs.nameTable.Lookup(name)
	if !ok {
		return ResultDeletedNoop
	}
	if _, ok := rs.globals[id]; !ok {
		return ResultDeletedNoop
	}
	delete(rs.globals, id)
	rs.appendDelta(types.DeltaRecord{Seq: rs.nextSeq(), Scope: types.ScopeGlobal, Op: types.OpDel, NameID: id})
	return ResultAccepted
}

func (rs *RoomState) ensureClientScope(no types.ClientNo) map[types.NameID]*versionedValue {
	m, ok := rs.clients[no]
	if !ok {
		m = make(map[types.NameID]*versionedValue)
		rs.clients[no] = m
	}
	return m
}

// SetClient applies a set to a per-client variable with LWW conflict
// resolution, scoped to targetNo.
func (rs *RoomState) SetClient(targetNo types.ClientNo, name, value string, ts float64, senderNo types.ClientNo, now time.Time) (SetResult, bool, bool) {
	name, nameTrunc := clampField(name, rs.limits.MaxVarNameLength)
	value, valTrunc := clampField(value, rs.limits.MaxVarValueLength)

	id, isNew := rs.nameTable.Resolve(name)
	rs.nameTable.Touch(id, now)

	scope := rs.ensureClientScope(targetNo)
	existing, exists := scope[id]
	if exists && existing.value == value {
		return ResultRejectedNoop, nameTrunc, valTrunc
	}
	if !exists && len(scope) >= rs.limits.MaxClientVars {
		_ = isNew
		return ResultRejectedLimit, nameTrunc, valTrunc
	}
	if exists && !lwwAccept(ts, senderNo, existing.timestamp, existing.lastWriterNo) {
		return ResultRejectedStale, nameTrunc, valTrunc
	}

	scope[id] = &versionedValue{value: value, timestamp: ts, lastWriterNo: senderNo}
	rs.appendDelta(types.DeltaRecord{
		Seq: rs.nextSeq(), Scope: types.ScopeClient, Op: types.OpSet,
		NameID: id, ClientNo: targetNo, Value: value,
	})
	return ResultAccepted, nameTrunc, valTrunc
}

// DeleteClient removes a per-client variable if it exists.
func (rs *RoomState) DeleteClient(targetNo types.ClientNo, name string) SetResult {
	id, ok := rs.nameTable.Lookup(name)
	if !ok {
		return ResultDeletedNoop
	}
	scope, ok := rs.clients[targetNo]
	if !ok {
		return ResultDeletedNoop
	}
	if _, ok := scope[id]; !ok {
		return ResultDeletedNoop
	}
	delete(scope, id)
	rs.appendDelta(types.DeltaRecord{Seq: rs.nextSeq(), Scope: types.ScopeClient, Op: types.OpDel, NameID: id, ClientNo: targetNo})
	return ResultAccepted
}

// lwwAccept implements §4.7's LWW decision: reject if older, reject on a
// tie where the sender's client number is lower, else accept.
func lwwAccept(ts float64, senderNo types.ClientNo, existingTs float64, existingWriter types.ClientNo) bool {
	if ts < existingTs {
		return false
	}
	if ts == existingTs && senderNo < existingWriter {
		return false
	}
	return true
}

// OldestSeqAvailable returns the lowest sequence number still present in
// the delta ring.
func (rs *RoomState) OldestSeqAvailable() uint64 { return rs.deltaFloor }

// RequiresResync reports whether a client acking lastSeq has fallen behind
// the delta ring and must receive a fresh Snapshot.
func (rs *RoomState) RequiresResync(lastSeq uint64) bool {
	if rs.deltaFloor <= 1 {
		return false
	}
	return lastSeq < rs.deltaFloor-1
}

// CollectPendingDeltas returns and clears the records accumulated since the
// last flush, along with the base sequence they apply atop.
func (rs *RoomState) CollectPendingDeltas() (baseSeq uint64, items []types.DeltaRecord, ok bool) {
	if len(rs.pending) == 0 {
		return 0, nil, false
	}
	baseSeq = rs.pending[0].Seq - 1
	items = rs.pending
	rs.pending = nil
	return baseSeq, items, true
}

// HasPending reports whether a flush would produce anything.
func (rs *RoomState) HasPending() bool { return len(rs.pending) > 0 }

// Globals returns a snapshot-ready copy of the global variable map, keyed
// by interned name ID.
func (rs *RoomState) Globals() map[types.NameID]string {
	out := make(map[types.NameID]string, len(rs.globals))
	for id, v := range rs.globals {
		out[id] = v.value
	}
	return out
}

// Clients returns a snapshot-ready copy of the per-client variable maps.
func (rs *RoomState) Clients() map[types.ClientNo]map[types.NameID]string {
	out := make(map[types.ClientNo]map[types.NameID]string, len(rs.clients))
	for no, scope := range rs.clients {
		s := make(map[types.NameID]string, len(scope))
		for id, v := range scope {
			s[id] = v.value
		}
		out[no] = s
	}
	return out
}
