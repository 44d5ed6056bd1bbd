// Package restbridge implements the out-of-scope REST preseed endpoint:
// an operator can push client-variable key/values for a device before it
// ever connects, and the hub applies them the moment the device's
// handshake assigns it a client number. Grounded on
// original_source/.../rest_bridge.py's PreseedStore/RoomBridge split, but
// simplified: the Python bridge drives a *separate* ZeroMQ client process
// to reach the hub, because rest_bridge.py there is an external sidecar.
// Here the bridge runs in the same process as the hub, so it writes
// straight into the room/NV engine instead of round-tripping a socket.
package restbridge

import (
	"fmt"
	"sync"
)

// MaxClientVars caps queued-or-applied variables per device, mirroring the
// original bridge's MAX_CLIENT_VARS.
const MaxClientVars = 20

type deviceKey struct {
	roomID   string
	deviceID string
}

// Store holds client variables queued for devices that haven't connected
// yet (or whose writes raced ahead of their handshake).
type Store struct {
	mu   sync.Mutex
	data map[deviceKey]map[string]string
}

// NewStore builds an empty preseed store.
func NewStore() *Store {
	return &Store{data: make(map[deviceKey]map[string]string)}
}

// Upsert merges kvs into the stored set for (roomID, deviceID), rejecting
// the write if it would push the device over MaxClientVars distinct keys.
func (s *Store) Upsert(roomID, deviceID string, kvs map[string]string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := deviceKey{roomID, deviceID}
	current := s.data[key]
	if current == nil {
		current = make(map[string]string)
	}

	newKeys := 0
	for name := range kvs {
		if _, exists := current[name]; !exists {
			newKeys++
		}
	}
	if len(current)+newKeys > MaxClientVars {
		return nil, fmt.Errorf("restbridge: too many client variables (> %d) for device %s", MaxClientVars, deviceID)
	}

	for name, value := range kvs {
		current[name] = value
	}
	s.data[key] = current

	out := make(map[string]string, len(current))
	for k, v := range current {
		out[k] = v
	}
	return out, nil
}

// Take removes and returns everything queued for (roomID, deviceID).
func (s *Store) Take(roomID, deviceID string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := deviceKey{roomID, deviceID}
	kvs := s.data[key]
	delete(s.data, key)
	return kvs
}
