package nv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vrnetsync/hub/internal/v1/types"
)

func testLimits() Limits {
	return Limits{MaxGlobalVars: 100, MaxClientVars: 100, MaxVarNameLength: 64, MaxVarValueLength: 1024, DeltaRingSize: 10000}
}

// S2 — LWW tie-break: two sets at the same timestamp, higher client number wins.
func TestLWWTieBreakHigherClientWins(t *testing.T) {
	rs := NewRoomState("r1", testLimits())
	now := time.Now()

	res, _, _ := rs.SetGlobal("state", "A", 100.0, 1, now)
	require.Equal(t, ResultAccepted, res)

	res, _, _ = rs.SetGlobal("state", "B", 100.0, 2, now)
	require.Equal(t, ResultAccepted, res)

	require.Equal(t, "B", rs.Globals()[mustResolve(rs, "state")])

	baseSeq, items, ok := rs.CollectPendingDeltas()
	require.True(t, ok)
	require.Equal(t, uint64(0), baseSeq)
	require.Len(t, items, 2)
	require.Equal(t, "B", items[1].Value)
}

func TestLWWRejectsOlderTimestamp(t *testing.T) {
	rs := NewRoomState("r1", testLimits())
	now := time.Now()

	rs.SetGlobal("k", "first", 100.0, 1, now)
	res, _, _ := rs.SetGlobal("k", "second", 50.0, 2, now)
	require.Equal(t, ResultRejectedStale, res)
	require.Equal(t, "first", rs.Globals()[mustResolve(rs, "k")])
}

func TestLWWRejectsLowerClientNoOnTie(t *testing.T) {
	rs := NewRoomState("r1", testLimits())
	now := time.Now()

	rs.SetGlobal("k", "from2", 100.0, 2, now)
	res, _, _ := rs.SetGlobal("k", "from1", 100.0, 1, now)
	require.Equal(t, ResultRejectedStale, res)
	require.Equal(t, "from2", rs.Globals()[mustResolve(rs, "k")])
}

func TestDedupeBeforeLWWDropsNoopSet(t *testing.T) {
	rs := NewRoomState("r1", testLimits())
	now := time.Now()

	rs.SetGlobal("k", "same", 100.0, 1, now)
	_, _, _ = rs.CollectPendingDeltas()

	res, _, _ := rs.SetGlobal("k", "same", 200.0, 1, now)
	require.Equal(t, ResultRejectedNoop, res)

	_, _, ok := rs.CollectPendingDeltas()
	require.False(t, ok, "no-op set must not append a pending delta")
}

func TestTruncatesOversizeNameAndValue(t *testing.T) {
	rs := NewRoomState("r1", testLimits())
	longName := make([]byte, 65)
	for i := range longName {
		longName[i] = 'a'
	}
	longValue := make([]byte, 1025)
	for i := range longValue {
		longValue[i] = 'b'
	}

	_, nameTrunc, valTrunc := rs.SetGlobal(string(longName), string(longValue), 1, 1, time.Now())
	require.True(t, nameTrunc)
	require.True(t, valTrunc)
}

func TestGlobalVarLimitRejectsNewKeyPastBudget(t *testing.T) {
	limits := testLimits()
	limits.MaxGlobalVars = 1
	rs := NewRoomState("r1", limits)
	now := time.Now()

	res, _, _ := rs.SetGlobal("a", "1", 1, 1, now)
	require.Equal(t, ResultAccepted, res)

	res, _, _ = rs.SetGlobal("b", "2", 2, 1, now)
	require.Equal(t, ResultRejectedLimit, res)

	// Updating the existing key always succeeds.
	res, _, _ = rs.SetGlobal("a", "updated", 3, 1, now)
	require.Equal(t, ResultAccepted, res)
}

func TestDeleteUnknownNameIsNoop(t *testing.T) {
	rs := NewRoomState("r1", testLimits())
	require.Equal(t, ResultDeletedNoop, rs.DeleteGlobal("nope"))
}

// S6 — Delta resync: a small ring forces requires_resync once acked seq
// falls behind the floor.
func TestDeltaRingResyncThreshold(t *testing.T) {
	limits := testLimits()
	limits.DeltaRingSize = 4
	rs := NewRoomState("r1", limits)
	now := time.Now()

	for i := 0; i < 10; i++ {
		rs.SetGlobal("k", string(rune('a'+i)), float64(i), 1, now)
	}

	require.Equal(t, uint64(7), rs.OldestSeqAvailable())
	require.True(t, rs.RequiresResync(3))
	require.False(t, rs.RequiresResync(7))
}

func mustResolve(rs *RoomState, name string) types.NameID {
	id, _ := rs.nameTable.Resolve(name)
	return id
}
