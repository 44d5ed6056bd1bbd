// Package broadcast implements C5: the adaptive per-room broadcast
// scheduler. A fixed tick drives each room through the dirty/idle
// threshold rule (§4.5); cached raw per-client bodies are concatenated
// without a decode/re-encode round trip. Grounded on the teacher's
// room.go broadcast helpers, generalized from a push-on-notify model to a
// tick-driven pull model, and on the cancellable-ticker shape used
// throughout the pack's background loops.
package broadcast

import (
	"context"
	"time"

	"github.com/vrnetsync/hub/internal/v1/codec"
	"github.com/vrnetsync/hub/internal/v1/logging"
	"github.com/vrnetsync/hub/internal/v1/metrics"
	"github.com/vrnetsync/hub/internal/v1/room"
	"github.com/vrnetsync/hub/internal/v1/tracing"
	"github.com/vrnetsync/hub/internal/v1/types"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Publisher hands an encoded frame to a room's subscribers.
type Publisher interface {
	PublishToRoom(roomID types.RoomID, frame []byte)
}

// RoomSource enumerates the rooms the scheduler should visit each tick.
type RoomSource interface {
	ForEachRoom(fn func(id types.RoomID, r *room.Room))
}

// Config carries the two tick thresholds from §4.5 and §6.3.
type Config struct {
	TickInterval         time.Duration // default 50ms
	DirtyThreshold       time.Duration // default 50ms  => <=20Hz
	IdleBroadcastInterval time.Duration // default 500ms => 2Hz
}

// DefaultConfig matches the §6.3 defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:          50 * time.Millisecond,
		DirtyThreshold:        50 * time.Millisecond,
		IdleBroadcastInterval: 500 * time.Millisecond,
	}
}

// Scheduler runs the adaptive broadcast loop.
type Scheduler struct {
	cfg       Config
	source    RoomSource
	publisher Publisher
	cancel    context.CancelFunc
	done      chan struct{}
}

// New constructs a Scheduler; call Start to begin ticking.
func New(cfg Config, source RoomSource, publisher Publisher) *Scheduler {
	return &Scheduler{cfg: cfg, source: source, publisher: publisher, done: make(chan struct{})}
}

// Start launches the tick loop in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(ctx)
}

// Stop cancels the loop and blocks until it has exited.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	logging.Info(ctx, "broadcast scheduler starting", zap.Duration("tick", s.cfg.TickInterval))
	for {
		select {
		case <-ctx.Done():
			logging.Info(ctx, "broadcast scheduler stopping")
			return
		case <-ticker.C:
			s.tick(ctx, time.Now())
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.source.ForEachRoom(func(id types.RoomID, r *room.Room) {
		start := time.Now()
		metrics.RoomClients.WithLabelValues(string(id)).Set(float64(r.MemberCount()))
		emitted := s.tickRoom(ctx, id, r, now)
		metrics.BroadcastTickDuration.WithLabelValues(string(id)).Observe(time.Since(start).Seconds())
		if !emitted {
			metrics.SkippedBroadcasts.Inc()
		}
	})
}

// tickRoom applies the dirty/idle threshold rule to a single room and
// returns whether a RoomTransform was emitted.
func (s *Scheduler) tickRoom(ctx context.Context, id types.RoomID, r *room.Room, now time.Time) bool {
	ctx, span := tracing.Tracer().Start(ctx, "netsync.broadcast.tick")
	defer span.End()
	span.SetAttributes(attribute.String("netsync.room_id", string(id)))

	if r.MemberCount() == 0 {
		return false
	}

	delta := now.Sub(r.LastBroadcast())
	var shouldEmit bool
	if r.IsDirty() {
		shouldEmit = delta >= s.cfg.DirtyThreshold
	} else {
		shouldEmit = delta >= s.cfg.IdleBroadcastInterval
	}
	if !shouldEmit {
		return false
	}

	payloads := r.NonStealthPayloads()
	if len(payloads) == 0 {
		r.MarkBroadcast(now)
		return false
	}

	frame, err := codec.EncodeRoomTransform(id, payloads)
	if err != nil {
		logging.Warn(ctx, "failed to encode room transform", zap.String("room_id", string(id)), zap.Error(err))
		r.MarkBroadcast(now)
		return false
	}

	s.publisher.PublishToRoom(id, frame)
	r.MarkBroadcast(now)
	return true
}
