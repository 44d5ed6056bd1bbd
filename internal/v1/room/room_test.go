package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vrnetsync/hub/internal/v1/nv"
	"github.com/vrnetsync/hub/internal/v1/types"
)

func testLimits() nv.Limits {
	return nv.Limits{MaxGlobalVars: 100, MaxClientVars: 100, MaxVarNameLength: 64, MaxVarValueLength: 1024, DeltaRingSize: 10000}
}

func noLastSeen(types.DeviceID) (time.Time, bool) { return time.Time{}, false }

// Invariant 1: the two mapping directions are mutual inverses at all times.
func TestClientNoMappingIsMutualInverse(t *testing.T) {
	r := New("r1", testLimits())
	no, err := r.GetOrAssignClientNo("devA", time.Now(), time.Minute, noLastSeen)
	require.NoError(t, err)
	require.Equal(t, types.ClientNo(1), no)

	dev, ok := r.DeviceIDOf(no)
	require.True(t, ok)
	require.Equal(t, types.DeviceID("devA"), dev)

	got, ok := r.ClientNoOf("devA")
	require.True(t, ok)
	require.Equal(t, no, got)
}

func TestGetOrAssignClientNoIsIdempotentPerDevice(t *testing.T) {
	r := New("r1", testLimits())
	no1, _ := r.GetOrAssignClientNo("devA", time.Now(), time.Minute, noLastSeen)
	no2, _ := r.GetOrAssignClientNo("devA", time.Now(), time.Minute, noLastSeen)
	require.Equal(t, no1, no2)
}

func TestClientNoStartsAtOne(t *testing.T) {
	r := New("r1", testLimits())
	no, _ := r.GetOrAssignClientNo("devA", time.Now(), time.Minute, noLastSeen)
	require.Equal(t, types.ClientNo(1), no)
}

// Boundary test: client number 65535 accepted; allocation past it triggers reclaim.
func TestClientNoExhaustionReclaimsStaleEntry(t *testing.T) {
	r := New("r1", testLimits())
	r.nextClientNo = 65536 // force the next allocation past the u16 ceiling

	old := time.Now().Add(-time.Hour)
	r.deviceToNo["stale-device"] = 65535
	r.noToDevice[65535] = "stale-device"

	lastSeen := func(d types.DeviceID) (time.Time, bool) {
		if d == "stale-device" {
			return old, true
		}
		return time.Time{}, false
	}

	no, err := r.GetOrAssignClientNo("new-device", time.Now(), time.Minute, lastSeen)
	require.NoError(t, err)
	require.Equal(t, types.ClientNo(65535), no)

	_, stillThere := r.ClientNoOf("stale-device")
	require.False(t, stillThere)
}

func TestClientNoExhaustionFailsWithNoReclaimable(t *testing.T) {
	r := New("r1", testLimits())
	r.nextClientNo = 65536
	r.deviceToNo["active-device"] = 1
	r.noToDevice[1] = "active-device"

	lastSeen := func(types.DeviceID) (time.Time, bool) { return time.Now(), true }

	_, err := r.GetOrAssignClientNo("new-device", time.Now(), time.Minute, lastSeen)
	require.ErrorIs(t, err, ErrRoomExhausted)
}

// S3 — stealth handshake: a stealth client never appears in broadcasts.
func TestStealthClientExcludedFromPayloadsAndMapping(t *testing.T) {
	r := New("r1", testLimits())
	stealthNo, _ := r.GetOrAssignClientNo("ghost", time.Now(), time.Minute, noLastSeen)
	normalNo, _ := r.GetOrAssignClientNo("normal", time.Now(), time.Minute, noLastSeen)

	nan := float32(0)
	nan = nan / nan
	stealthTransform := types.ClientTransform{
		Physical: types.Transform{PosX: nan, PosY: nan, PosZ: nan, RotX: nan, RotY: nan, RotZ: nan},
		Head:     types.Transform{PosX: nan, PosY: nan, PosZ: nan, RotX: nan, RotY: nan, RotZ: nan},
		RightHand: types.Transform{PosX: nan, PosY: nan, PosZ: nan, RotX: nan, RotY: nan, RotZ: nan},
		LeftHand:  types.Transform{PosX: nan, PosY: nan, PosZ: nan, RotX: nan, RotY: nan, RotZ: nan},
	}
	r.UpdateTransform("ghost", stealthNo, stealthTransform, []byte("stealth-body"), time.Now())
	r.UpdateTransform("normal", normalNo, types.ClientTransform{}, []byte("normal-body"), time.Now())

	payloads := r.NonStealthPayloads()
	require.Len(t, payloads, 1)
	require.Equal(t, []byte("normal-body"), payloads[0])

	entries := r.NonStealthMappingEntries()
	require.Len(t, entries, 1)
	require.Equal(t, types.DeviceID("normal"), entries[0].DeviceID)
}

func TestUpdateTransformMarksRoomDirtyAndClearsEmptySince(t *testing.T) {
	r := New("r1", testLimits())
	require.False(t, r.IsDirty())

	r.MarkEmptyIfNeeded(time.Now(), time.Hour)
	require.NotNil(t, r.emptySince)
	r.UpdateTransform("devA", 1, types.ClientTransform{}, nil, time.Now())
	require.True(t, r.IsDirty())
	require.Nil(t, r.emptySince)

	r.MarkBroadcast(time.Now())
	require.False(t, r.IsDirty())
}

func TestSweepTimeoutsRemovesStaleClients(t *testing.T) {
	r := New("r1", testLimits())
	old := time.Now().Add(-time.Hour)
	r.UpdateTransform("devA", 1, types.ClientTransform{}, nil, old)

	removed := r.SweepTimeouts(time.Now(), time.Second)
	require.Equal(t, []types.DeviceID{"devA"}, removed)
	require.Equal(t, 0, r.MemberCount())
}

func TestMarkEmptyIfNeededHonorsExpiry(t *testing.T) {
	r := New("r1", testLimits())
	require.False(t, r.MarkEmptyIfNeeded(time.Now(), time.Hour))

	future := time.Now().Add(2 * time.Hour)
	require.True(t, r.MarkEmptyIfNeeded(future, time.Hour))
}

func TestForgetDeviceMappingClearsBothDirections(t *testing.T) {
	r := New("r1", testLimits())
	no, err := r.GetOrAssignClientNo("devA", time.Now(), time.Minute, noLastSeen)
	require.NoError(t, err)

	r.ForgetDeviceMapping("devA")

	_, ok := r.ClientNoOf("devA")
	require.False(t, ok)
	_, ok = r.DeviceIDOf(no)
	require.False(t, ok)
}

func TestForgetDeviceMappingIsNoopForUnknownDevice(t *testing.T) {
	r := New("r1", testLimits())
	require.NotPanics(t, func() { r.ForgetDeviceMapping("never-seen") })
}
