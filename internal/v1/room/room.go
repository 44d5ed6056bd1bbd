// Package room implements the per-room aggregate (part of C3): membership,
// the device-ID <-> client-number mapping, the dirty bit the broadcast
// scheduler polls, and the embedded NV state. Grounded on the teacher's
// room/room.go — a single mutex per room, "Locked" suffix for the unexported
// helper that assumes the lock is already held, by-value return so callers
// never hold the lock across I/O.
package room

import (
	"sync"
	"time"

	"github.com/vrnetsync/hub/internal/v1/nv"
	"github.com/vrnetsync/hub/internal/v1/types"
)

// ClientRecord is one device's state inside a room (§3 "Client record").
type ClientRecord struct {
	ClientNo      types.ClientNo
	LastUpdate    time.Time
	LastTransform types.ClientTransform
	CachedPayload []byte // short-form body encoded at ingress from the last accepted transform, reused verbatim on broadcast
	Stealth       bool
}

// MappingEntry is one row of a device-ID mapping broadcast.
type MappingEntry struct {
	ClientNo types.ClientNo
	DeviceID types.DeviceID
}

// Room is keyed by a UTF-8 room ID and holds every piece of state scoped to
// it: membership, the two mutual-inverse ID maps, the dirty bit, and NV
// state. All mutation goes through exported methods that take rm.mu;
// unexported *Locked methods assume the caller already holds it.
type Room struct {
	ID types.RoomID

	mu sync.Mutex

	clients      map[types.DeviceID]*ClientRecord
	deviceToNo   map[types.DeviceID]types.ClientNo
	noToDevice   map[types.ClientNo]types.DeviceID
	nextClientNo uint32 // wider than ClientNo to detect the 65536 rollover

	dirty         bool
	lastBroadcast time.Time
	emptySince    *time.Time

	nv *nv.RoomState
}

// New constructs an empty room with client number allocation starting at 1
// (§3: "next-client-number counter (starts at 1)"). The last-broadcast time
// starts at creation, so the first dirty broadcast waits out the dirty
// threshold like every later one.
func New(id types.RoomID, limits nv.Limits) *Room {
	return &Room{
		ID:            id,
		clients:       make(map[types.DeviceID]*ClientRecord),
		deviceToNo:    make(map[types.DeviceID]types.ClientNo),
		noToDevice:    make(map[types.ClientNo]types.DeviceID),
		nextClientNo:  1,
		lastBroadcast: time.Now(),
		nv:            nv.NewRoomState(id, limits),
	}
}

// NV exposes the room's NV engine state. Callers that mutate it alongside
// membership should hold Lock/Unlock around the whole operation.
func (r *Room) NV() *nv.RoomState { return r.nv }

// Lock/Unlock let higher-level code (ingress dispatcher, lifecycle sweep)
// compose several room operations as one critical section when needed.
func (r *Room) Lock()   { r.mu.Lock() }
func (r *Room) Unlock() { r.mu.Unlock() }

type roomExhaustedError struct{}

func (roomExhaustedError) Error() string { return "room: client number pool exhausted" }

// ErrRoomExhausted is returned when client-number allocation wraps past
// 65535 with no reclaimable entry (§4.3).
var ErrRoomExhausted error = roomExhaustedError{}

// GetOrAssignClientNo returns the device's existing client number, or
// allocates the next counter value. If the counter would exceed 65535, it
// scans for a reclaimable entry (no last-seen, or last-seen older than
// deviceIDExpiry) and reuses that slot; otherwise it fails with
// ErrRoomExhausted.
func (r *Room) GetOrAssignClientNo(deviceID types.DeviceID, now time.Time, deviceIDExpiry time.Duration, lastSeen func(types.DeviceID) (time.Time, bool)) (types.ClientNo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if no, ok := r.deviceToNo[deviceID]; ok {
		return no, nil
	}

	if r.nextClientNo > 65535 {
		for candidate, owner := range r.noToDevice {
			seen, ok := lastSeen(owner)
			if !ok || now.Sub(seen) > deviceIDExpiry {
				delete(r.clients, owner)
				delete(r.deviceToNo, owner)
				r.noToDevice[candidate] = deviceID
				r.deviceToNo[deviceID] = candidate
				return candidate, nil
			}
		}
		return 0, ErrRoomExhausted
	}

	no := types.ClientNo(r.nextClientNo)
	r.nextClientNo++
	r.deviceToNo[deviceID] = no
	r.noToDevice[no] = deviceID
	return no, nil
}

// DeviceIDOf is a pure lookup: client number -> device ID.
func (r *Room) DeviceIDOf(no types.ClientNo) (types.DeviceID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.noToDevice[no]
	return d, ok
}

// ClientNoOf is a pure lookup: device ID -> client number.
func (r *Room) ClientNoOf(deviceID types.DeviceID) (types.ClientNo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	no, ok := r.deviceToNo[deviceID]
	return no, ok
}

// ForgetDeviceMapping removes deviceID's client-number mapping, freeing the
// slot immediately instead of leaving it for the lazy 65535-rollover reclaim
// in GetOrAssignClientNo (§4.9 "remove any residual mapping"). A no-op if
// the device holds no mapping in this room.
func (r *Room) ForgetDeviceMapping(deviceID types.DeviceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	no, ok := r.deviceToNo[deviceID]
	if !ok {
		return
	}
	delete(r.deviceToNo, deviceID)
	delete(r.noToDevice, no)
}

// UpdateTransform records an accepted ClientTransform: creates the client
// record on first sight, refreshes last-update, caches the short-form
// payload, marks the room dirty, and updates the stealth flag. Returns
// whether this device is newly joining the room (non-stealth joins trigger
// a DeviceIdMapping rebroadcast per §4.3).
func (r *Room) UpdateTransform(deviceID types.DeviceID, no types.ClientNo, transform types.ClientTransform, cachedPayload []byte, now time.Time) (isNewMember bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.clients[deviceID]
	if !exists {
		rec = &ClientRecord{ClientNo: no}
		r.clients[deviceID] = rec
		isNewMember = true
	}
	rec.LastUpdate = now
	rec.LastTransform = transform
	rec.CachedPayload = cachedPayload
	rec.Stealth = transform.IsStealth()
	r.dirty = true
	r.emptySince = nil
	return isNewMember
}

// IsStealth reports whether the given device's current record is flagged
// stealth. Returns false for an unknown device.
func (r *Room) IsStealth(deviceID types.DeviceID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.clients[deviceID]
	return ok && rec.Stealth
}

// RemoveDevice evicts a client record (used on explicit disconnect).
// Returns whether the device existed.
func (r *Room) RemoveDevice(deviceID types.DeviceID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[deviceID]; !ok {
		return false
	}
	delete(r.clients, deviceID)
	r.dirty = true
	return true
}

// NonStealthMappingEntries returns the (clientNo, deviceID) pairs to carry
// in a DeviceIdMapping broadcast, excluding stealth entries (§4.3).
func (r *Room) NonStealthMappingEntries() []MappingEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MappingEntry, 0, len(r.clients))
	for devID, rec := range r.clients {
		if rec.Stealth {
			continue
		}
		out = append(out, MappingEntry{ClientNo: rec.ClientNo, DeviceID: devID})
	}
	return out
}

// NonStealthPayloads returns the cached short-form body of every
// non-stealth client, for the broadcast scheduler to concatenate into one
// RoomTransform (§4.5).
func (r *Room) NonStealthPayloads() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, 0, len(r.clients))
	for _, rec := range r.clients {
		if rec.Stealth {
			continue
		}
		out = append(out, rec.CachedPayload)
	}
	return out
}

// IsDirty reports whether the room has unbroadcast changes.
func (r *Room) IsDirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

// LastBroadcast returns the last time a RoomTransform was emitted.
func (r *Room) LastBroadcast() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastBroadcast
}

// MarkBroadcast clears the dirty bit and records now as the last-broadcast
// time, called by the scheduler immediately after emission (§4.5).
func (r *Room) MarkBroadcast(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirty = false
	r.lastBroadcast = now
}

// MemberCount returns the current number of client records (stealth
// included — emptiness is about membership, not visibility).
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// SweepTimeouts removes every client record whose last update predates
// now-timeout, returning the removed device IDs so the caller can schedule
// a DeviceIdMapping rebroadcast (§4.9).
func (r *Room) SweepTimeouts(now time.Time, timeout time.Duration) []types.DeviceID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []types.DeviceID
	for devID, rec := range r.clients {
		if now.Sub(rec.LastUpdate) > timeout {
			delete(r.clients, devID)
			removed = append(removed, devID)
		}
	}
	if len(removed) > 0 {
		r.dirty = true
	}
	return removed
}

// MarkEmptyIfNeeded stamps emptySince when membership just dropped to zero,
// and reports whether the room should now be destroyed per empty_room_expiry.
func (r *Room) MarkEmptyIfNeeded(now time.Time, emptyRoomExpiry time.Duration) (shouldDestroy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.clients) > 0 {
		r.emptySince = nil
		return false
	}
	if r.emptySince == nil {
		t := now
		r.emptySince = &t
		return false
	}
	return now.Sub(*r.emptySince) > emptyRoomExpiry
}
