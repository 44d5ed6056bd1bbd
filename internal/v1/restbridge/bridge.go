package restbridge

import (
	"time"

	"github.com/vrnetsync/hub/internal/v1/nv"
	"github.com/vrnetsync/hub/internal/v1/room"
	"github.com/vrnetsync/hub/internal/v1/types"
)

// systemSender is a reserved client number no real handshake ever gets
// assigned (client numbers start at 1), used so preseed writes still flow
// through last-writer-wins like any other client-var set.
const systemSender types.ClientNo = 0

// RegistryView is the subset of registry.Registry the bridge needs.
type RegistryView interface {
	GetOrCreateRoom(id types.RoomID) *room.Room
}

// Bridge applies preseeded client variables immediately if the target
// device already has a client number, otherwise queues them in Store.
type Bridge struct {
	registry RegistryView
	store    *Store
}

// NewBridge builds a Bridge over the given registry and preseed store.
func NewBridge(registry RegistryView, store *Store) *Bridge {
	return &Bridge{registry: registry, store: store}
}

// Status is the per-key outcome returned to the REST caller.
type Status string

const (
	StatusApplied Status = "applied"
	StatusQueued  Status = "queued"
	StatusFailed  Status = "failed"
)

// ApplyOrQueue attempts to apply each variable immediately if the device
// already has an assigned client number; otherwise it queues the full set
// for FlushOnHandshake to apply later.
func (b *Bridge) ApplyOrQueue(roomID types.RoomID, deviceID types.DeviceID, kvs map[string]string) (map[string]Status, error) {
	if _, err := b.store.Upsert(string(roomID), string(deviceID), kvs); err != nil {
		return nil, err
	}

	r := b.registry.GetOrCreateRoom(roomID)
	no, known := r.ClientNoOf(deviceID)
	statuses := make(map[string]Status, len(kvs))
	if !known {
		for name := range kvs {
			statuses[name] = StatusQueued
		}
		return statuses, nil
	}

	applied := b.apply(r, no, kvs)
	for name := range kvs {
		if applied[name] {
			statuses[name] = StatusApplied
		} else {
			statuses[name] = StatusFailed
		}
	}
	b.store.Take(string(roomID), string(deviceID))
	return statuses, nil
}

// FlushOnHandshake applies anything queued for deviceID in roomID now that
// it has a client number. Call this right after a successful handshake.
func (b *Bridge) FlushOnHandshake(roomID types.RoomID, deviceID types.DeviceID, no types.ClientNo) {
	kvs := b.store.Take(string(roomID), string(deviceID))
	if len(kvs) == 0 {
		return
	}
	r := b.registry.GetOrCreateRoom(roomID)
	b.apply(r, no, kvs)
}

func (b *Bridge) apply(r *room.Room, no types.ClientNo, kvs map[string]string) map[string]bool {
	now := time.Now()
	ts := float64(now.UnixNano()) / 1e9
	applied := make(map[string]bool, len(kvs))
	r.Lock()
	defer r.Unlock()
	for name, value := range kvs {
		result, _, _ := r.NV().SetClient(no, name, value, ts, systemSender, now)
		applied[name] = result == nv.ResultAccepted || result == nv.ResultRejectedNoop
	}
	return applied
}
