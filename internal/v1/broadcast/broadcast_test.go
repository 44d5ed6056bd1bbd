package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vrnetsync/hub/internal/v1/codec"
	"github.com/vrnetsync/hub/internal/v1/nv"
	"github.com/vrnetsync/hub/internal/v1/room"
	"github.com/vrnetsync/hub/internal/v1/types"
)

func testLimits() nv.Limits {
	return nv.Limits{MaxGlobalVars: 100, MaxClientVars: 100, MaxVarNameLength: 64, MaxVarValueLength: 1024, DeltaRingSize: 10000}
}

type singleRoomSource struct {
	id types.RoomID
	r  *room.Room
}

func (s singleRoomSource) ForEachRoom(fn func(id types.RoomID, r *room.Room)) { fn(s.id, s.r) }

type recordingPublisher struct {
	frames [][]byte
}

func (p *recordingPublisher) PublishToRoom(_ types.RoomID, frame []byte) {
	p.frames = append(p.frames, frame)
}

// S1 — adaptive broadcast: a dirty room emits at the dirty cadence, an idle
// room only at the slower idle cadence.
func TestTickRoomEmitsOnceDirtyThresholdElapses(t *testing.T) {
	r := room.New("r1", testLimits())
	r.UpdateTransform("devA", 1, types.ClientTransform{}, codec.EncodeClientTransformShort(1, types.ClientTransform{}), time.Now())

	sched := New(Config{TickInterval: time.Millisecond, DirtyThreshold: 50 * time.Millisecond, IdleBroadcastInterval: 500 * time.Millisecond}, nil, &recordingPublisher{})

	now := time.Now()
	require.False(t, sched.tickRoom(context.Background(), "r1", r, now), "must not emit before the dirty threshold elapses")

	later := now.Add(60 * time.Millisecond)
	pub := &recordingPublisher{}
	sched.publisher = pub
	require.True(t, sched.tickRoom(context.Background(), "r1", r, later))
	require.Len(t, pub.frames, 1)
	require.False(t, r.IsDirty())
}

func TestTickRoomIdleUsesSlowerCadence(t *testing.T) {
	r := room.New("r1", testLimits())
	r.UpdateTransform("devA", 1, types.ClientTransform{}, codec.EncodeClientTransformShort(1, types.ClientTransform{}), time.Now())
	pub := &recordingPublisher{}
	sched := New(DefaultConfig(), nil, pub)

	now := time.Now()
	sched.tickRoom(context.Background(), "r1", r, now.Add(60*time.Millisecond)) // clears dirty bit
	require.False(t, r.IsDirty())

	afterFirst := r.LastBroadcast()
	require.False(t, sched.tickRoom(context.Background(), "r1", r, afterFirst.Add(100*time.Millisecond)), "idle room must not emit before idle interval")
	require.True(t, sched.tickRoom(context.Background(), "r1", r, afterFirst.Add(600*time.Millisecond)))
}

func TestTickRoomSkipsEmptyRoom(t *testing.T) {
	r := room.New("r1", testLimits())
	sched := New(DefaultConfig(), nil, &recordingPublisher{})
	require.False(t, sched.tickRoom(context.Background(), "r1", r, time.Now()))
}

func TestTickExcludesStealthClientsFromPayload(t *testing.T) {
	r := room.New("r1", testLimits())
	nan := float32(0)
	nan = nan / nan
	stealth := types.ClientTransform{
		Physical:  types.Transform{PosX: nan, PosY: nan, PosZ: nan, RotX: nan, RotY: nan, RotZ: nan},
		Head:      types.Transform{PosX: nan, PosY: nan, PosZ: nan, RotX: nan, RotY: nan, RotZ: nan},
		RightHand: types.Transform{PosX: nan, PosY: nan, PosZ: nan, RotX: nan, RotY: nan, RotZ: nan},
		LeftHand:  types.Transform{PosX: nan, PosY: nan, PosZ: nan, RotX: nan, RotY: nan, RotZ: nan},
	}
	r.UpdateTransform("ghost", 1, stealth, codec.EncodeClientTransformShort(1, stealth), time.Now())
	r.UpdateTransform("normal", 2, types.ClientTransform{}, codec.EncodeClientTransformShort(2, types.ClientTransform{}), time.Now())

	pub := &recordingPublisher{}
	sched := New(DefaultConfig(), nil, pub)
	now := time.Now().Add(100 * time.Millisecond)
	require.True(t, sched.tickRoom(context.Background(), "r1", r, now))

	rt, err := codec.DecodeRoomTransform(pub.frames[0][1:])
	require.NoError(t, err)
	require.Len(t, rt.Clients, 1)
	require.Equal(t, types.ClientNo(2), rt.Clients[0].ClientNo)
}
