package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vrnetsync/hub/internal/v1/types"
)

func TestPublisherFansOutOnlyToSubscribersOfTopic(t *testing.T) {
	pub := NewPublisher()
	connA := NewConnection(&fakeConn{}, 10)
	connB := NewConnection(&fakeConn{}, 10)

	pub.Subscribe("room-a", connA)
	pub.Subscribe("room-b", connB)

	pub.PublishToRoom("room-a", []byte{1, 2, 3})

	frame, ok := connA.outbound.pop()
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3}, frame)

	_, ok = connB.outbound.pop()
	require.False(t, ok, "room-b subscriber must not receive a room-a publish")
}

func TestPublisherUnsubscribeStopsDelivery(t *testing.T) {
	pub := NewPublisher()
	conn := NewConnection(&fakeConn{}, 10)
	pub.Subscribe("room-a", conn)
	pub.Unsubscribe("room-a", conn)

	pub.PublishToRoom("room-a", []byte{1})
	_, ok := conn.outbound.pop()
	require.False(t, ok)
}

func TestPublishToRoomWithNoSubscribersIsNoop(t *testing.T) {
	pub := NewPublisher()
	require.NotPanics(t, func() { pub.PublishToRoom(types.RoomID("ghost-room"), []byte{1}) })
}
