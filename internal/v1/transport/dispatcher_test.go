package transport

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/vrnetsync/hub/internal/v1/codec"
	"github.com/vrnetsync/hub/internal/v1/discovery"
	"github.com/vrnetsync/hub/internal/v1/metrics"
	"github.com/vrnetsync/hub/internal/v1/nv"
	"github.com/vrnetsync/hub/internal/v1/registry"
	"github.com/vrnetsync/hub/internal/v1/types"
)

func testLimits() nv.Limits {
	return nv.Limits{MaxGlobalVars: 100, MaxClientVars: 100, MaxVarNameLength: 64, MaxVarValueLength: 1024, DeltaRingSize: 10000}
}

func newTestHub(allowedAppIDs []string) (*Hub, *registry.Registry, *Publisher) {
	pub := NewPublisher()
	reg := registry.New(testLimits(), pub)
	cfg := Config{Gate: discovery.NewGate(allowedAppIDs), DeviceIDExpiry: time.Minute, PublishQueueSize: 100}
	return NewHub(cfg, reg, pub, nil), reg, pub
}

func mustEncode(t *testing.T, frame []byte, err error) []byte {
	t.Helper()
	require.NoError(t, err)
	return frame
}

// S4 — AppId gate: a Hello with a disallowed appId gets no further traffic
// and the connection is closed; handshake_denied increases by exactly one.
func TestHandshakeDeniesDisallowedAppID(t *testing.T) {
	hub, _, _ := newTestHub([]string{"com.styly.prod"})
	hello := mustEncode(t, codec.EncodeHello(codec.Hello{AppID: "com.other", DeviceID: "dev-1"}))
	conn := newFakeConn(hello)
	denied := metrics.HandshakeOutcomes.WithLabelValues("denied")
	before := testutil.ToFloat64(denied)

	hub.HandleConnection(context.Background(), conn, "room-1")

	require.True(t, conn.closed)
	require.Equal(t, before+1, testutil.ToFloat64(denied))
}

func TestHandshakeAcceptsAllowedAppIDAndAssignsClientNo(t *testing.T) {
	hub, reg, _ := newTestHub([]string{"com.styly.prod"})
	hello := mustEncode(t, codec.EncodeHello(codec.Hello{AppID: "com.styly.prod", DeviceID: "dev-1"}))
	conn := newFakeConn(hello)

	hub.HandleConnection(context.Background(), conn, "room-1")

	r, ok := reg.LookupRoom("room-1")
	require.True(t, ok)
	no, ok := r.ClientNoOf("dev-1")
	require.True(t, ok)
	require.Equal(t, types.ClientNo(1), no)
}

func TestFirstFrameNotHelloIsDenied(t *testing.T) {
	hub, _, _ := newTestHub(nil)
	rpcFrame := mustEncode(t, codec.EncodeRPC(codec.RPC{FnName: "ping"}))
	conn := newFakeConn(rpcFrame)

	hub.HandleConnection(context.Background(), conn, "room-1")
	require.True(t, conn.closed)
}

func TestClientTransformUpdatesRoomAndMarksDirty(t *testing.T) {
	hub, reg, _ := newTestHub(nil)
	hello := mustEncode(t, codec.EncodeHello(codec.Hello{AppID: "anyapp", DeviceID: "dev-1"}))
	ct := mustEncode(t, codec.EncodeClientTransform(types.ClientTransform{DeviceID: "dev-1"}))
	conn := newFakeConn(hello, ct)

	hub.HandleConnection(context.Background(), conn, "room-1")

	r, _ := reg.LookupRoom("room-1")
	require.True(t, r.IsDirty())
}

func TestMalformedFrameIsDroppedWithoutDisconnecting(t *testing.T) {
	hub, reg, _ := newTestHub(nil)
	hello := mustEncode(t, codec.EncodeHello(codec.Hello{AppID: "anyapp", DeviceID: "dev-1"}))
	garbage := []byte{0xAB} // unknown kind tag
	ct := mustEncode(t, codec.EncodeClientTransform(types.ClientTransform{DeviceID: "dev-1"}))
	conn := newFakeConn(hello, garbage, ct)

	hub.HandleConnection(context.Background(), conn, "room-1")

	// The socket is closed by cleanup once the fake runs out of frames, so
	// the check is that the ClientTransform after the malformed frame was
	// still applied on the same connection.
	r, ok := reg.LookupRoom("room-1")
	require.True(t, ok)
	require.True(t, r.IsDirty(), "a malformed frame after handshake must not disconnect a conforming peer")
}

// TestConcurrentNVSetsAndFlushDoNotRace drives many connections' global/
// client var sets against one room at the same time the NV flusher ticks
// over it, the way production runs one goroutine per connection plus one
// flusher goroutine. Run with -race: every RoomState touch must go through
// room.Room's lock or this panics with a concurrent map write.
func TestConcurrentNVSetsAndFlushDoNotRace(t *testing.T) {
	hub, reg, _ := newTestHub(nil)

	flusher := nv.NewFlusher(reg, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	flusher.Start(ctx)
	defer func() {
		cancel()
		flusher.Stop()
	}()

	const connCount = 8
	const setsPerConn = 25

	var wg sync.WaitGroup
	for i := 0; i < connCount; i++ {
		deviceID := fmt.Sprintf("dev-%d", i)
		frames := [][]byte{mustEncode(t, codec.EncodeHello(codec.Hello{AppID: "anyapp", DeviceID: deviceID}))}
		for j := 0; j < setsPerConn; j++ {
			frames = append(frames,
				mustEncode(t, codec.EncodeGlobalVarSet(codec.GlobalVarSet{
					Name: fmt.Sprintf("g-%d-%d", i, j), Value: "v", Timestamp: float64(j),
				})),
				mustEncode(t, codec.EncodeClientVarSet(codec.ClientVarSet{
					TargetClientNo: types.ClientNo(i + 1), Name: fmt.Sprintf("c-%d-%d", i, j), Value: "v", Timestamp: float64(j),
				})),
			)
		}
		conn := newFakeConn(frames...)

		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.HandleConnection(ctx, conn, "room-race")
		}()
	}
	wg.Wait()

	r, ok := reg.LookupRoom("room-race")
	require.True(t, ok)
	require.NotNil(t, r.NV())
}
