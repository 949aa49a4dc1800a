package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"pkt.systems/atelier/internal/logx"
	"pkt.systems/atelier/schema"
	"pkt.systems/pslog"
)

// connBufferSize is the per-connection event buffer. The hub never blocks on
// a slow observer; a full buffer marks the connection closed instead.
const connBufferSize = 256

type observer struct {
	id       schema.ConnID
	state    schema.ConnState
	events   chan schema.Notification
	lastSeen time.Time
}

// Hub is the connection registry and broadcaster. Change events arrive from
// both request handlers and the watcher goroutine; per-connection buffered
// channels carry them over to each observer's writer without blocking the
// producer. Connections that miss heartbeats or overflow their buffer are
// marked closed and reaped by Sweep; a closed connection is never
// resurrected.
type Hub struct {
	mu               sync.Mutex
	conns            map[schema.ConnID]*observer
	capacity         int
	heartbeatTimeout time.Duration
	log              pslog.Logger
	now              func() time.Time
}

// NewHub constructs a hub with the given capacity and heartbeat timeout.
func NewHub(capacity int, heartbeatTimeout time.Duration, logger pslog.Logger) *Hub {
	if capacity <= 0 {
		capacity = schema.DefaultMaxConnections
	}
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = schema.DefaultHeartbeatTimeout
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Hub{
		conns:            make(map[schema.ConnID]*observer),
		capacity:         capacity,
		heartbeatTimeout: heartbeatTimeout,
		log:              logger,
		now:              time.Now,
	}
}

// Register admits a new observer connection in the connecting state. Ids are
// fresh per connection and never reused; broadcasts skip the connection until
// Activate.
func (h *Hub) Register() (schema.ConnID, <-chan schema.Notification, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.conns) >= h.capacity {
		h.log.Warn("hub register rejected", "reason", "capacity", "conns", len(h.conns))
		return "", nil, schema.ErrCapacityExceeded
	}
	id := schema.ConnID(uuid.NewString())
	obs := &observer{
		id:       id,
		state:    schema.ConnConnecting,
		events:   make(chan schema.Notification, connBufferSize),
		lastSeen: h.now(),
	}
	h.conns[id] = obs
	h.log.Info("hub register", "conn", id, "conns", len(h.conns))
	return id, obs.events, nil
}

// Activate promotes a connecting connection to active once its transport is
// established, making it eligible for broadcasts.
func (h *Hub) Activate(id schema.ConnID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	obs := h.conns[id]
	if obs == nil || obs.state == schema.ConnClosed {
		return schema.ErrConnectionClosed
	}
	obs.state = schema.ConnActive
	obs.lastSeen = h.now()
	return nil
}

// Heartbeat refreshes the liveness timestamp for a connection.
func (h *Hub) Heartbeat(id schema.ConnID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	obs := h.conns[id]
	if obs == nil || obs.state == schema.ConnClosed {
		return schema.ErrConnectionClosed
	}
	obs.lastSeen = h.now()
	return nil
}

// MarkClosed transitions a connection to closed. The entry stays in the
// registry until Sweep or Remove reaps it.
func (h *Hub) MarkClosed(id schema.ConnID) {
	h.mu.Lock()
	obs := h.conns[id]
	if obs != nil && obs.state != schema.ConnClosed {
		obs.state = schema.ConnClosed
	}
	h.mu.Unlock()
}

// Remove deletes a connection and closes its event channel.
func (h *Hub) Remove(id schema.ConnID) {
	h.mu.Lock()
	obs := h.conns[id]
	delete(h.conns, id)
	remaining := len(h.conns)
	h.mu.Unlock()
	if obs == nil {
		return
	}
	close(obs.events)
	h.log.Info("hub remove", "conn", id, "conns", remaining)
}

// Sweep reaps connections that are closed or whose last heartbeat is older
// than the timeout, and returns the reaped ids.
func (h *Hub) Sweep() []schema.ConnID {
	h.mu.Lock()
	cutoff := h.now().Add(-h.heartbeatTimeout)
	var reaped []*observer
	for id, obs := range h.conns {
		if obs.state == schema.ConnClosed || obs.lastSeen.Before(cutoff) {
			reaped = append(reaped, obs)
			delete(h.conns, id)
		}
	}
	remaining := len(h.conns)
	h.mu.Unlock()
	ids := make([]schema.ConnID, 0, len(reaped))
	for _, obs := range reaped {
		close(obs.events)
		ids = append(ids, obs.id)
	}
	if len(ids) > 0 {
		h.log.Info("hub sweep", "reaped", len(ids), "conns", remaining)
	}
	return ids
}

// Len reports the number of registered connections, closed ones included.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast delivers a notification to every active connection except the
// excluded one. A connection whose buffer is full is marked closed; its
// removal is deferred to the sweeper.
func (h *Hub) Broadcast(note schema.Notification, exclude schema.ConnID) {
	h.mu.Lock()
	dropped := 0
	for id, obs := range h.conns {
		if id == exclude || obs.state != schema.ConnActive {
			continue
		}
		// The send stays under mu: it never blocks, and Remove and Sweep
		// only close a channel after taking its entry out of the map, so a
		// channel reachable here cannot be closed underneath the send.
		select {
		case obs.events <- note:
		default:
			obs.state = schema.ConnClosed
			dropped++
		}
	}
	h.mu.Unlock()
	if dropped > 0 {
		h.log.Warn("hub broadcast overflow", "type", note.Type, "dropped", dropped)
	}
}

// OnFileChange implements core.EventSink and the watcher sink: the change is
// translated to its protocol frame and fanned out, excluding the originator.
func (h *Hub) OnFileChange(event schema.ChangeEvent) {
	log := logx.WithConn(context.Background(), event.Origin)
	log.Trace("hub change event", "path", event.Path, "kind", event.Kind)
	h.Broadcast(schema.NotificationFor(event), event.Origin)
}
