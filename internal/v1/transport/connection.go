// Package transport implements C4 (ingress dispatcher + handshake gate) and
// C8 (publisher). Grounded on the teacher's transport/client.go: a small
// wsConnection interface to keep tests off real sockets, a dedicated
// writePump goroutine draining an outbound queue, readPump decoding and
// routing inbound frames. Generalized from the teacher's priority/normal
// channel pair to a single scan-capable queue so the publisher can apply
// the drop-oldest-RoomTransform-first policy (§4.8).
package transport

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vrnetsync/hub/internal/v1/codec"
	"github.com/vrnetsync/hub/internal/v1/metrics"
	"github.com/vrnetsync/hub/internal/v1/types"
)

const writeWait = 10 * time.Second

// wsConnection is the slice of *websocket.Conn this package depends on.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
}

type queuedFrame struct {
	kind codec.Kind
	data []byte
}

// outboundQueue is the per-connection send buffer the publisher fans frames
// into. Unlike a bare channel it supports scanning to evict a specific kind
// on overflow (§4.8: drop the oldest RoomTransform, never RPC/NV/mapping).
type outboundQueue struct {
	mu       sync.Mutex
	items    []queuedFrame
	capacity int
	notify   chan struct{}
}

func newOutboundQueue(capacity int) *outboundQueue {
	return &outboundQueue{capacity: capacity, notify: make(chan struct{}, 1)}
}

func (q *outboundQueue) push(data []byte) {
	kind := codec.Kind(0)
	if len(data) > 0 {
		kind = codec.Kind(data[0])
	}

	q.mu.Lock()
	if len(q.items) >= q.capacity {
		evicted := false
		for i, it := range q.items {
			if it.kind == codec.KindRoomTransform {
				q.items = append(q.items[:i], q.items[i+1:]...)
				evicted = true
				break
			}
		}
		if evicted {
			metrics.PublisherDrops.WithLabelValues("room_transform").Inc()
		} else {
			q.mu.Unlock()
			metrics.PublisherDrops.WithLabelValues("overflow").Inc()
			return
		}
	}
	q.items = append(q.items, queuedFrame{kind: kind, data: data})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *outboundQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	it := q.items[0]
	q.items = q.items[1:]
	return it.data, true
}

// Connection is one client's transport-level identity (§6.2's "stable
// transport-level identity across the connection"), holding handshake and
// routing state plus the outbound queue its writePump drains.
type Connection struct {
	id   string
	conn wsConnection

	pendingRoomID types.RoomID // set by the caller before the handshake completes

	mu                sync.Mutex
	handshakeComplete bool
	appID             string
	deviceID          types.DeviceID
	roomID            types.RoomID
	clientNo          types.ClientNo

	outbound *outboundQueue
	closeOnce sync.Once
	closed    chan struct{}
}

// NewConnection wraps a transport-level socket with routing state. capacity
// bounds the outbound queue (§4.8, default 10000).
func NewConnection(conn wsConnection, capacity int) *Connection {
	return &Connection{
		id:       uuid.NewString(),
		conn:     conn,
		outbound: newOutboundQueue(capacity),
		closed:   make(chan struct{}),
	}
}

// ID is the stable per-connection transport identity.
func (c *Connection) ID() string { return c.id }

// Send enqueues a frame for delivery, implementing registry/broadcast/
// lifecycle's Publisher-subscriber fan-out target.
func (c *Connection) Send(frame []byte) { c.outbound.push(frame) }

func (c *Connection) markHandshake(appID string, deviceID types.DeviceID, roomID types.RoomID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handshakeComplete = true
	c.appID = appID
	c.deviceID = deviceID
	c.roomID = roomID
}

func (c *Connection) IsHandshakeComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handshakeComplete
}

func (c *Connection) DeviceID() types.DeviceID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID
}

func (c *Connection) RoomID() types.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Connection) SetClientNo(no types.ClientNo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clientNo = no
}

func (c *Connection) ClientNo() types.ClientNo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientNo
}

// Close closes the underlying socket exactly once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

// writePump drains the outbound queue to the socket until closed.
func (c *Connection) writePump() {
	for {
		select {
		case <-c.closed:
			return
		case <-c.outbound.notify:
			for {
				data, ok := c.outbound.pop()
				if !ok {
					break
				}
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
					c.Close()
					return
				}
			}
		}
	}
}
