// Package lifecycle implements C9: the periodic client-timeout sweep,
// empty-room destruction, and the separate device-ID expiry purge.
// Grounded on the teacher's transport/hub.go removeRoom grace-period
// timer, generalized from a one-shot AfterFunc into the two independent
// periodic sweeps spec.md §4.9 calls for.
package lifecycle

import (
	"context"
	"time"

	"github.com/vrnetsync/hub/internal/v1/codec"
	"github.com/vrnetsync/hub/internal/v1/logging"
	"github.com/vrnetsync/hub/internal/v1/metrics"
	"github.com/vrnetsync/hub/internal/v1/room"
	"github.com/vrnetsync/hub/internal/v1/types"
	"go.uber.org/zap"
)

// Publisher hands an encoded frame to a room's subscribers, used here to
// rebroadcast DeviceIdMapping after a timeout eviction.
type Publisher interface {
	PublishToRoom(roomID types.RoomID, frame []byte)
}

// Registry is the subset of registry.Registry the lifecycle manager needs.
type Registry interface {
	ForEachRoom(fn func(id types.RoomID, r *room.Room))
	RemoveEmptyRooms(now time.Time, emptyRoomExpiry time.Duration) []types.RoomID
	ExpireDevices(now time.Time, expiry time.Duration) []types.DeviceID
}

// Config carries the §6.3 cadences and timeouts.
type Config struct {
	SweepInterval           time.Duration // default 1s
	ClientTimeout           time.Duration // default per §6.3
	EmptyRoomExpiry         time.Duration
	DeviceIDCleanupInterval time.Duration // default 60s
	DeviceIDExpiry          time.Duration // default 300s
}

// DefaultConfig matches the §6.3 defaults.
func DefaultConfig() Config {
	return Config{
		SweepInterval:           time.Second,
		ClientTimeout:           time.Second,
		EmptyRoomExpiry:         86400 * time.Second,
		DeviceIDCleanupInterval: 60 * time.Second,
		DeviceIDExpiry:          300 * time.Second,
	}
}

// Manager runs both lifecycle loops.
type Manager struct {
	cfg       Config
	registry  Registry
	publisher Publisher
	cancel    context.CancelFunc
	done      chan struct{}
}

// New constructs a Manager; call Start to begin both sweeps.
func New(cfg Config, registry Registry, publisher Publisher) *Manager {
	return &Manager{cfg: cfg, registry: registry, publisher: publisher, done: make(chan struct{})}
}

// Start launches the sweep loop in its own goroutine.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go m.run(ctx)
}

// Stop cancels the loop and blocks until it has exited.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	<-m.done
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)
	sweepTicker := time.NewTicker(m.cfg.SweepInterval)
	defer sweepTicker.Stop()
	deviceTicker := time.NewTicker(m.cfg.DeviceIDCleanupInterval)
	defer deviceTicker.Stop()

	logging.Info(ctx, "lifecycle manager starting",
		zap.Duration("sweep_interval", m.cfg.SweepInterval),
		zap.Duration("device_id_cleanup_interval", m.cfg.DeviceIDCleanupInterval))
	for {
		select {
		case <-ctx.Done():
			logging.Info(ctx, "lifecycle manager stopping")
			return
		case <-sweepTicker.C:
			m.sweep(ctx, time.Now())
		case <-deviceTicker.C:
			m.purgeDevices(ctx, time.Now())
		}
	}
}

// sweep performs the per-room timeout/empty-room pass.
func (m *Manager) sweep(ctx context.Context, now time.Time) {
	m.registry.ForEachRoom(func(id types.RoomID, r *room.Room) {
		removed := r.SweepTimeouts(now, m.cfg.ClientTimeout)
		if len(removed) == 0 {
			return
		}
		for range removed {
			metrics.LifecycleEvictions.WithLabelValues("client_timeout").Inc()
		}
		logging.Info(ctx, "evicted timed-out clients", zap.String("room_id", string(id)), zap.Int("count", len(removed)))

		entries := r.NonStealthMappingEntries()
		wireEntries := make([]codec.DeviceIDMappingEntry, len(entries))
		for i, e := range entries {
			wireEntries[i] = codec.DeviceIDMappingEntry{ClientNo: e.ClientNo, DeviceID: e.DeviceID}
		}
		frame, err := codec.EncodeDeviceIDMapping(wireEntries)
		if err != nil {
			logging.Warn(ctx, "failed to encode device id mapping after eviction", zap.Error(err))
			return
		}
		if m.publisher != nil {
			m.publisher.PublishToRoom(id, frame)
		}
	})

	removedRooms := m.registry.RemoveEmptyRooms(now, m.cfg.EmptyRoomExpiry)
	for range removedRooms {
		metrics.LifecycleEvictions.WithLabelValues("empty_room").Inc()
	}
	if len(removedRooms) > 0 {
		logging.Info(ctx, "destroyed expired empty rooms", zap.Int("count", len(removedRooms)))
	}
}

func (m *Manager) purgeDevices(ctx context.Context, now time.Time) {
	expired := m.registry.ExpireDevices(now, m.cfg.DeviceIDExpiry)
	if len(expired) == 0 {
		return
	}

	m.registry.ForEachRoom(func(id types.RoomID, r *room.Room) {
		for _, deviceID := range expired {
			r.ForgetDeviceMapping(deviceID)
		}
	})

	metrics.LifecycleEvictions.WithLabelValues("device_id_expiry").Add(float64(len(expired)))
	logging.Info(ctx, "purged expired device ids", zap.Int("count", len(expired)))
}
