package nv

import (
	"context"
	"sync"
	"time"

	"github.com/vrnetsync/hub/internal/v1/codec"
	"github.com/vrnetsync/hub/internal/v1/logging"
	"github.com/vrnetsync/hub/internal/v1/metrics"
	"go.uber.org/zap"
)

// RoomSource lists the rooms the flusher should visit on every tick and
// hands back the per-room lock each visit must hold while touching state.
// The room package satisfies this; nv stays decoupled from room's concrete
// type.
type RoomSource interface {
	ForEachRoomState(fn func(roomID string, state *RoomState, lock sync.Locker, publish func(frame []byte)))
}

// Flusher runs the §4.7 "Flush cadence" loop: every interval, for each room
// with pending deltas, emit (optionally) a NameTableDelta, then a Delta,
// encoding both as MessagePack frames handed to the room's publish func.
type Flusher struct {
	interval time.Duration
	source   RoomSource
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewFlusher constructs a Flusher; call Start to begin ticking.
func NewFlusher(source RoomSource, interval time.Duration) *Flusher {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Flusher{interval: interval, source: source, done: make(chan struct{})}
}

// Start launches the flush loop in its own goroutine. Stop cancels it.
func (f *Flusher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	go f.run(ctx)
}

// Stop cancels the loop and blocks until it has exited.
func (f *Flusher) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	<-f.done
}

func (f *Flusher) run(ctx context.Context) {
	defer close(f.done)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	logging.Info(ctx, "nv flusher starting", zap.Duration("interval", f.interval))
	for {
		select {
		case <-ctx.Done():
			logging.Info(ctx, "nv flusher stopping")
			return
		case <-ticker.C:
			f.tick(ctx)
		}
	}
}

func (f *Flusher) tick(ctx context.Context) {
	f.source.ForEachRoomState(func(roomID string, state *RoomState, lock sync.Locker, publish func(frame []byte)) {
		lock.Lock()
		if !state.HasPending() {
			lock.Unlock()
			return
		}
		start := time.Now()
		ntd, hasNTD := state.BuildNameTableDelta()
		delta, hasDelta := state.BuildDelta()
		lock.Unlock()

		metrics.NVFlushDuration.WithLabelValues(roomID).Observe(time.Since(start).Seconds())

		if hasNTD {
			frame, err := codec.EncodeNameTableDelta(ntd)
			if err != nil {
				logging.Warn(ctx, "failed to encode name table delta", zap.String("room_id", roomID), zap.Error(err))
			} else {
				publish(frame)
			}
		}

		if !hasDelta {
			return
		}
		frame, err := codec.EncodeDelta(delta)
		if err != nil {
			logging.Warn(ctx, "failed to encode delta", zap.String("room_id", roomID), zap.Error(err))
			return
		}
		publish(frame)
	})
}
