package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vrnetsync/hub/internal/v1/codec"
)

func roomTransformFrame(t *testing.T, id byte) []byte {
	t.Helper()
	return []byte{byte(codec.KindRoomTransform), id}
}

func rpcFrame(id byte) []byte {
	return []byte{byte(codec.KindRPC), id}
}

func TestOutboundQueueEvictsOldestRoomTransformOnOverflow(t *testing.T) {
	q := newOutboundQueue(2)
	q.push(roomTransformFrame(t, 1))
	q.push(rpcFrame(2))
	q.push(roomTransformFrame(t, 3)) // forces eviction since queue is full

	first, ok := q.pop()
	require.True(t, ok)
	require.Equal(t, rpcFrame(2), first, "the rpc frame must survive, the stale room transform is evicted")

	second, ok := q.pop()
	require.True(t, ok)
	require.Equal(t, roomTransformFrame(t, 3), second)

	_, ok = q.pop()
	require.False(t, ok)
}

func TestOutboundQueueDropsIncomingWhenNoRoomTransformToEvict(t *testing.T) {
	q := newOutboundQueue(1)
	q.push(rpcFrame(1))
	q.push(rpcFrame(2)) // no RoomTransform present to evict; incoming is dropped instead

	first, ok := q.pop()
	require.True(t, ok)
	require.Equal(t, rpcFrame(1), first)

	_, ok = q.pop()
	require.False(t, ok)
}

func TestOutboundQueuePreservesFIFOOrder(t *testing.T) {
	q := newOutboundQueue(10)
	q.push(rpcFrame(1))
	q.push(rpcFrame(2))
	q.push(rpcFrame(3))

	for i := byte(1); i <= 3; i++ {
		got, ok := q.pop()
		require.True(t, ok)
		require.Equal(t, rpcFrame(i), got)
	}
}
