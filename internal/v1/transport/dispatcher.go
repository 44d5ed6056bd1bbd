package transport

import (
	"context"
	"time"

	"github.com/vrnetsync/hub/internal/v1/codec"
	"github.com/vrnetsync/hub/internal/v1/discovery"
	"github.com/vrnetsync/hub/internal/v1/logging"
	"github.com/vrnetsync/hub/internal/v1/metrics"
	"github.com/vrnetsync/hub/internal/v1/nv"
	"github.com/vrnetsync/hub/internal/v1/room"
	"github.com/vrnetsync/hub/internal/v1/rpc"
	"github.com/vrnetsync/hub/internal/v1/tracing"
	"github.com/vrnetsync/hub/internal/v1/types"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RoomRegistry is the subset of registry.Registry the dispatcher needs.
type RoomRegistry interface {
	GetOrCreateRoom(id types.RoomID) *room.Room
	MarkDeviceSeen(id types.DeviceID, now time.Time)
	DeviceLastSeen(id types.DeviceID) (time.Time, bool)
}

// Monitor observes per-device NV request rate (§4.7 step 2: monitoring, not
// enforcement). Implemented by the ratelimit package; nil disables it.
type Monitor interface {
	Observe(deviceID types.DeviceID, now time.Time) (exceeded bool)
}

// HandshakeLimiter throttles handshake attempts per device ID.
// Implemented by the ratelimit package; nil disables throttling.
type HandshakeLimiter interface {
	Allow(key string) bool
}

// PreseedFlusher applies any REST-preseeded client variables queued for a
// device the moment its handshake assigns it a client number. Implemented
// by the restbridge package; nil disables preseeding.
type PreseedFlusher interface {
	FlushOnHandshake(roomID types.RoomID, deviceID types.DeviceID, no types.ClientNo)
}

// Config carries the handshake and client-number reclaim parameters.
type Config struct {
	Gate             discovery.Gate
	DeviceIDExpiry   time.Duration
	PublishQueueSize int
	HandshakeLimiter HandshakeLimiter
	Preseed          PreseedFlusher
}

// Hub wires the registry, publisher, and handshake gate into the per-
// connection ingress loop (§4.4). Grounded on the teacher's Hub/Client pair:
// Hub owns shared state, each Connection runs its own read/write pump.
type Hub struct {
	cfg       Config
	registry  RoomRegistry
	publisher *Publisher
	monitor   Monitor
}

// NewHub constructs a dispatcher Hub.
func NewHub(cfg Config, registry RoomRegistry, publisher *Publisher, monitor Monitor) *Hub {
	return &Hub{cfg: cfg, registry: registry, publisher: publisher, monitor: monitor}
}

// HandleConnection runs the read loop for one accepted transport-level
// connection until it disconnects or fails the handshake gate. roomID is
// the topic this connection's transport-level identity is bound to — in
// the reference ZeroMQ transport this is carried by the envelope; here it
// comes from the route the peer dialed (§6.2).
func (h *Hub) HandleConnection(ctx context.Context, conn wsConnection, roomID types.RoomID) {
	c := NewConnection(conn, h.cfg.PublishQueueSize)
	c.pendingRoomID = roomID
	go c.writePump()
	defer h.cleanup(c)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.dispatch(ctx, c, data)
	}
}

func (h *Hub) cleanup(c *Connection) {
	c.Close()
	if c.IsHandshakeComplete() {
		if r := h.registry.GetOrCreateRoom(c.RoomID()); r != nil {
			r.RemoveDevice(c.DeviceID())
		}
		h.publisher.Unsubscribe(c.RoomID(), c)
	}
}

func (h *Hub) dispatch(ctx context.Context, c *Connection, frame []byte) {
	ctx, span := tracing.Tracer().Start(ctx, "netsync.dispatch")
	defer span.End()

	msg, err := codec.Decode(frame)
	if err != nil {
		span.SetAttributes(attribute.Bool("netsync.malformed", true))
		logging.Warn(ctx, "dropping malformed frame", zap.Error(err))
		return
	}
	span.SetAttributes(attribute.Int("netsync.frame_kind", int(msg.Kind)))

	if !c.IsHandshakeComplete() {
		h.handleHandshake(ctx, c, msg)
		return
	}

	switch msg.Kind {
	case codec.KindClientTransform:
		h.handleClientTransform(ctx, c, msg.ClientTransform.Transform, frame[1:])
	case codec.KindRPC:
		h.handleRPCBroadcast(ctx, c, *msg.RPC)
	case codec.KindRPCTargeted:
		h.handleRPCTargeted(ctx, c, *msg.RPCTargeted)
	case codec.KindGlobalVarSet:
		h.handleGlobalVarSet(ctx, c, *msg.GlobalVarSet)
	case codec.KindClientVarSet:
		h.handleClientVarSet(ctx, c, *msg.ClientVarSet)
	case codec.KindDeltaAck:
		h.handleDeltaAck(ctx, c, *msg.DeltaAck)
	default:
		logging.Warn(ctx, "ignoring unexpected frame kind after handshake", zap.Uint8("kind", uint8(msg.Kind)))
	}
}

// handleHandshake enforces §4.4 step 1: the first message must be Hello and
// must pass the appId gate, or the connection is closed.
func (h *Hub) handleHandshake(ctx context.Context, c *Connection, msg codec.Message) {
	if msg.Kind != codec.KindHello || msg.Hello == nil {
		metrics.HandshakeOutcomes.WithLabelValues("denied").Inc()
		c.Close()
		return
	}
	if !h.cfg.Gate.Permit(msg.Hello.AppID) {
		metrics.HandshakeOutcomes.WithLabelValues("denied").Inc()
		c.Close()
		return
	}

	deviceID := types.DeviceID(msg.Hello.DeviceID)
	if h.cfg.HandshakeLimiter != nil && !h.cfg.HandshakeLimiter.Allow(string(deviceID)) {
		metrics.HandshakeOutcomes.WithLabelValues("throttled").Inc()
		c.Close()
		return
	}

	roomID := c.pendingRoomID
	r := h.registry.GetOrCreateRoom(roomID)
	now := time.Now()
	no, err := r.GetOrAssignClientNo(deviceID, now, h.cfg.DeviceIDExpiry, h.registry.DeviceLastSeen)
	if err != nil {
		metrics.HandshakeOutcomes.WithLabelValues("denied").Inc()
		c.Close()
		return
	}

	c.markHandshake(msg.Hello.AppID, deviceID, roomID)
	c.SetClientNo(no)
	h.registry.MarkDeviceSeen(deviceID, now)
	h.publisher.Subscribe(roomID, c)
	if h.cfg.Preseed != nil {
		h.cfg.Preseed.FlushOnHandshake(roomID, deviceID, no)
	}
	metrics.HandshakeOutcomes.WithLabelValues("allowed").Inc()
	logging.Info(ctx, "handshake accepted", zap.String("room_id", string(roomID)), zap.String("device_id", logging.RedactDeviceID(string(deviceID))))
}

func (h *Hub) handleClientTransform(ctx context.Context, c *Connection, ct types.ClientTransform, rawBody []byte) {
	r := h.registry.GetOrCreateRoom(c.RoomID())
	now := time.Now()
	ct.ClientNo = c.ClientNo()
	cachedBody := codec.EncodeClientTransformShort(c.ClientNo(), ct)
	isNewMember := r.UpdateTransform(c.DeviceID(), c.ClientNo(), ct, cachedBody, now)
	h.registry.MarkDeviceSeen(c.DeviceID(), now)
	_ = rawBody // retained on Message per §4.1; the cached short-form body is what broadcast reuses
	if !isNewMember || ct.IsStealth() {
		return
	}
	entries := r.NonStealthMappingEntries()
	wireEntries := make([]codec.DeviceIDMappingEntry, len(entries))
	for i, e := range entries {
		wireEntries[i] = codec.DeviceIDMappingEntry{ClientNo: e.ClientNo, DeviceID: e.DeviceID}
	}
	frame, err := codec.EncodeDeviceIDMapping(wireEntries)
	if err != nil {
		logging.Warn(ctx, "failed to encode device id mapping after join", zap.Error(err))
		return
	}
	h.publisher.PublishToRoom(c.RoomID(), frame)
}

func (h *Hub) handleRPCBroadcast(ctx context.Context, c *Connection, msg codec.RPC) {
	frame, err := rpc.RouteBroadcast(msg, c.ClientNo())
	if err != nil {
		logging.Warn(ctx, "failed to route broadcast rpc", zap.Error(err))
		return
	}
	h.publisher.PublishToRoom(c.RoomID(), frame)
}

func (h *Hub) handleRPCTargeted(ctx context.Context, c *Connection, msg codec.RPCTargeted) {
	frame, err := rpc.RouteTargeted(msg, c.ClientNo())
	if err != nil {
		logging.Warn(ctx, "failed to route targeted rpc", zap.Error(err))
		return
	}
	h.publisher.PublishToRoom(c.RoomID(), frame)
}

func (h *Hub) handleGlobalVarSet(ctx context.Context, c *Connection, msg codec.GlobalVarSet) {
	h.observeNVRate(ctx, c)
	r := h.registry.GetOrCreateRoom(c.RoomID())
	r.Lock()
	res, nameTrunc, valTrunc := r.NV().SetGlobal(msg.Name, msg.Value, msg.Timestamp, c.ClientNo(), time.Now())
	r.Unlock()
	recordNVResult("global", res, nameTrunc, valTrunc)
}

func (h *Hub) handleClientVarSet(ctx context.Context, c *Connection, msg codec.ClientVarSet) {
	h.observeNVRate(ctx, c)
	r := h.registry.GetOrCreateRoom(c.RoomID())
	r.Lock()
	res, nameTrunc, valTrunc := r.NV().SetClient(msg.TargetClientNo, msg.Name, msg.Value, msg.Timestamp, c.ClientNo(), time.Now())
	r.Unlock()
	recordNVResult("client", res, nameTrunc, valTrunc)
}

// recordNVResult counts truncations and LWW/limit rejections of one NV set.
func recordNVResult(scope string, res nv.SetResult, nameTrunc, valTrunc bool) {
	if nameTrunc {
		metrics.NVTruncated.WithLabelValues("name").Inc()
	}
	if valTrunc {
		metrics.NVTruncated.WithLabelValues("value").Inc()
	}
	switch res {
	case nv.ResultRejectedStale:
		metrics.NVLWWRejected.Inc()
	case nv.ResultRejectedLimit:
		metrics.NVLimitRejected.WithLabelValues(scope).Inc()
	}
}

func (h *Hub) observeNVRate(ctx context.Context, c *Connection) {
	if h.monitor == nil {
		return
	}
	if h.monitor.Observe(c.DeviceID(), time.Now()) {
		metrics.NVMonitorExceeded.Inc()
		logging.Warn(ctx, "nv request rate exceeded monitor threshold", zap.String("device_id", logging.RedactDeviceID(string(c.DeviceID()))))
	}
}

// handleDeltaAck checks whether the acking client has fallen off the delta
// ring and, if so, replies with a fresh Snapshot (§4.7 "Resync").
func (h *Hub) handleDeltaAck(ctx context.Context, c *Connection, ack codec.DeltaAckPayload) {
	r := h.registry.GetOrCreateRoom(c.RoomID())
	r.Lock()
	nvState := r.NV()
	needsResync := nvState.RequiresResync(ack.LastSeq)
	var snapshot codec.SnapshotPayload
	if needsResync {
		snapshot = nvState.BuildSnapshot()
	}
	r.Unlock()
	if !needsResync {
		return
	}
	frame, err := codec.EncodeSnapshot(snapshot)
	if err != nil {
		logging.Warn(ctx, "failed to encode resync snapshot", zap.Error(err))
		return
	}
	c.Send(frame)
}
