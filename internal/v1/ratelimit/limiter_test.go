package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vrnetsync/hub/internal/v1/types"
)

func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	l, err := New(Config{
		DiscoveryProbeRate: "2-M",
		HandshakeRate:      "2-M",
		NVMonitorRate:      "2-M",
	}, nil)
	require.NoError(t, err)
	return l
}

func TestAllowPermitsUpToConfiguredRate(t *testing.T) {
	l := newTestLimiter(t)
	require.True(t, l.Allow("1.2.3.4"))
	require.True(t, l.Allow("1.2.3.4"))
	require.False(t, l.Allow("1.2.3.4"), "third probe within the window must be throttled")
}

func TestAllowTracksKeysIndependently(t *testing.T) {
	l := newTestLimiter(t)
	require.True(t, l.Allow("peer-a"))
	require.True(t, l.Allow("peer-a"))
	require.True(t, l.Allow("peer-b"), "a distinct key must have its own budget")
}

func TestHandshakeGateUsesSeparateCounterFromDiscovery(t *testing.T) {
	l := newTestLimiter(t)
	gate := HandshakeGate{L: l}
	require.True(t, l.Allow("dev-1"))
	require.True(t, l.Allow("dev-1"))
	require.False(t, l.Allow("dev-1"))

	// the handshake counter is independent of the discovery-probe counter
	require.True(t, gate.Allow("dev-1"))
}

func TestObserveReportsExceededOnceThresholdCrossed(t *testing.T) {
	l := newTestLimiter(t)
	now := time.Now()
	require.False(t, l.Observe(types.DeviceID("dev-1"), now))
	require.False(t, l.Observe(types.DeviceID("dev-1"), now))
	require.True(t, l.Observe(types.DeviceID("dev-1"), now), "third NV set within the window must report exceeded")
}

func TestObserveNeverReturnsAnErrorPath(t *testing.T) {
	l := newTestLimiter(t)
	// a nil redis client means every counter runs in-memory; Observe must
	// never panic or block regardless of how many devices are tracked.
	for i := 0; i < 50; i++ {
		l.Observe(types.DeviceID("dev-x"), time.Now())
	}
}
