// Package registry implements the process-wide half of C3: the rooms map
// (lazy creation, grace-period-free removal once empty past TTL) and the
// device-ID liveness table that backs client-number reclaim (§4.3, §4.9).
// Grounded on the teacher's transport/hub.go Hub type — one mutex guarding
// a map[id]*room.Room, metrics bumped on create/destroy — generalized from
// a one-shot AfterFunc grace timer to the periodic sweep spec.md §4.9 calls
// for.
package registry

import (
	"sync"
	"time"

	"github.com/vrnetsync/hub/internal/v1/metrics"
	"github.com/vrnetsync/hub/internal/v1/nv"
	"github.com/vrnetsync/hub/internal/v1/room"
	"github.com/vrnetsync/hub/internal/v1/types"
)

// Publisher hands an encoded frame to every connection subscribed to a room.
// Implemented by the transport package; registry stays decoupled from
// websocket/ZeroMQ plumbing.
type Publisher interface {
	PublishToRoom(roomID types.RoomID, frame []byte)
}

// Registry owns every room and the process-wide device-ID liveness map
// (§3 "Device-ID liveness": "process-wide, independent of room membership").
type Registry struct {
	mu         sync.Mutex
	rooms      map[types.RoomID]*room.Room
	limits     nv.Limits
	deviceSeen map[types.DeviceID]time.Time
	publisher  Publisher
}

// New constructs an empty registry. publisher may be nil in tests that
// don't exercise ForEachRoomState's publish callback.
func New(limits nv.Limits, publisher Publisher) *Registry {
	return &Registry{
		rooms:      make(map[types.RoomID]*room.Room),
		limits:     limits,
		deviceSeen: make(map[types.DeviceID]time.Time),
		publisher:  publisher,
	}
}

// GetOrCreateRoom returns the existing room or lazily creates one.
func (reg *Registry) GetOrCreateRoom(id types.RoomID) *room.Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if r, ok := reg.rooms[id]; ok {
		return r
	}
	r := room.New(id, reg.limits)
	reg.rooms[id] = r
	metrics.ActiveRooms.Inc()
	return r
}

// LookupRoom returns the room only if it already exists.
func (reg *Registry) LookupRoom(id types.RoomID) (*room.Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[id]
	return r, ok
}

// RoomCount reports the number of live rooms.
func (reg *Registry) RoomCount() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// MarkDeviceSeen stamps now as the device's last-seen time, refreshed on
// every accepted ClientTransform (§3 "Device-ID liveness").
func (reg *Registry) MarkDeviceSeen(id types.DeviceID, now time.Time) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.deviceSeen[id] = now
}

// DeviceLastSeen is the callback shape room.Room.GetOrAssignClientNo expects
// for its client-number reclaim decision.
func (reg *Registry) DeviceLastSeen(id types.DeviceID) (time.Time, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	t, ok := reg.deviceSeen[id]
	return t, ok
}

// ExpireDevices purges device-ID liveness entries older than expiry,
// returning the device IDs removed (§4.9 "device-ID expiry sweep").
func (reg *Registry) ExpireDevices(now time.Time, expiry time.Duration) []types.DeviceID {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var expired []types.DeviceID
	for id, seen := range reg.deviceSeen {
		if now.Sub(seen) > expiry {
			delete(reg.deviceSeen, id)
			expired = append(expired, id)
		}
	}
	return expired
}

// ForEachRoom visits every room under the registry lock briefly held only
// to snapshot the slice; the per-room lock is the caller's to acquire.
func (reg *Registry) ForEachRoom(fn func(id types.RoomID, r *room.Room)) {
	reg.mu.Lock()
	snapshot := make([]types.RoomID, 0, len(reg.rooms))
	rooms := make([]*room.Room, 0, len(reg.rooms))
	for id, r := range reg.rooms {
		snapshot = append(snapshot, id)
		rooms = append(rooms, r)
	}
	reg.mu.Unlock()

	for i, id := range snapshot {
		fn(id, rooms[i])
	}
}

// ForEachRoomState adapts ForEachRoom to nv.RoomSource for the Flusher,
// handing back the room's own lock so the flusher can hold it across its
// RoomState reads the same way the ingress dispatcher holds it across writes.
func (reg *Registry) ForEachRoomState(fn func(roomID string, state *nv.RoomState, lock sync.Locker, publish func(frame []byte))) {
	reg.ForEachRoom(func(id types.RoomID, r *room.Room) {
		fn(string(id), r.NV(), r, func(frame []byte) {
			if reg.publisher != nil {
				reg.publisher.PublishToRoom(id, frame)
			}
		})
	})
}

// RemoveEmptyRooms destroys every room that has been empty for longer than
// emptyRoomExpiry, returning the removed room IDs (§4.9 "empty-room expiry").
func (reg *Registry) RemoveEmptyRooms(now time.Time, emptyRoomExpiry time.Duration) []types.RoomID {
	reg.mu.Lock()
	candidates := make([]types.RoomID, 0, len(reg.rooms))
	for id, r := range reg.rooms {
		if r.MemberCount() == 0 {
			candidates = append(candidates, id)
		}
	}
	reg.mu.Unlock()

	var removed []types.RoomID
	for _, id := range candidates {
		reg.mu.Lock()
		r, ok := reg.rooms[id]
		reg.mu.Unlock()
		if !ok {
			continue
		}
		if r.MarkEmptyIfNeeded(now, emptyRoomExpiry) {
			reg.mu.Lock()
			delete(reg.rooms, id)
			reg.mu.Unlock()
			metrics.ActiveRooms.Dec()
			metrics.RoomClients.DeleteLabelValues(string(id))
			removed = append(removed, id)
		}
	}
	return removed
}
