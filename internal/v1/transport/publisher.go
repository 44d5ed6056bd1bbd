package transport

import (
	"sync"

	"github.com/vrnetsync/hub/internal/v1/types"
)

// Publisher tracks, per room topic, which connections are subscribed and
// fans an encoded frame out to all of them (§4.8, §6.2's publish socket).
// Satisfies registry.Publisher, broadcast.Publisher, and lifecycle.Publisher
// with the same PublishToRoom(roomID, frame) method.
type Publisher struct {
	mu   sync.Mutex
	subs map[types.RoomID]map[*Connection]struct{}
}

// NewPublisher constructs an empty Publisher.
func NewPublisher() *Publisher {
	return &Publisher{subs: make(map[types.RoomID]map[*Connection]struct{})}
}

// Subscribe adds c to roomID's fan-out set (topic filtering per §6.2).
func (p *Publisher) Subscribe(roomID types.RoomID, c *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.subs[roomID]
	if !ok {
		set = make(map[*Connection]struct{})
		p.subs[roomID] = set
	}
	set[c] = struct{}{}
}

// Unsubscribe removes c from roomID's fan-out set.
func (p *Publisher) Unsubscribe(roomID types.RoomID, c *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.subs[roomID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(p.subs, roomID)
	}
}

// PublishToRoom hands frame to every subscriber's own outbound queue, which
// applies the per-connection drop-oldest-RoomTransform policy independently.
// Delivery order within a topic is preserved since each push is ordered and
// each connection drains its queue in FIFO order (§5 "Ordering guarantees").
func (p *Publisher) PublishToRoom(roomID types.RoomID, frame []byte) {
	p.mu.Lock()
	set := p.subs[roomID]
	snapshot := make([]*Connection, 0, len(set))
	for c := range set {
		snapshot = append(snapshot, c)
	}
	p.mu.Unlock()

	for _, c := range snapshot {
		c.Send(frame)
	}
}
