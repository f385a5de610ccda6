// Package ws binds websockets to users and keeps every client's view of
// who is online current.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/sinchita-code/quickchat/internal/events"
	"github.com/sinchita-code/quickchat/internal/metrics"
	"github.com/sinchita-code/quickchat/internal/presence"
	"go.uber.org/zap"
)

// Hub tracks every live connection, including ones evicted from the
// registry by a newer connection for the same user. Roster broadcasts go
// to all of them.
type Hub struct {
	registry *presence.Registry
	lastSeen presence.LastSeenStore
	logger   *zap.Logger

	// mu guards conns and serialises broadcasts, so every connection sees
	// snapshots in the same order.
	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func NewHub(registry *presence.Registry, lastSeen presence.LastSeenStore, logger *zap.Logger) *Hub {
	if lastSeen == nil {
		lastSeen = presence.NopLastSeen{}
	}
	return &Hub{
		registry: registry,
		lastSeen: lastSeen,
		logger:   logger,
		conns:    make(map[*Conn]struct{}),
	}
}

// Run attaches c, pumps it until the peer disconnects, then detaches it.
// It blocks for the life of the connection.
func (h *Hub) Run(c *Conn) {
	h.Attach(c)
	go c.writePump()
	c.readPump()
	h.Detach(c)
}

// Attach registers c as its user's addressable handle and broadcasts the
// new online set. It completes before any pump starts.
func (h *Hub) Attach(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[c] = struct{}{}
	if prev := h.registry.Register(c.userID, c); prev != nil {
		c.logger.Info("replaced previous connection", zap.String("previous", prev.ID()))
	}
	metrics.OnlineUsers.Set(float64(h.registry.Len()))
	c.logger.Info("client connected", zap.Int("online", h.registry.Len()))

	h.broadcastLocked()
}

// Detach removes c once its read pump has ended.
//
// Order matters here:
//   - Unregister first, guarded by c's handle. If a newer connection for
//     the same user already replaced c, the registry entry belongs to the
//     newer one and stays; last-seen is only stamped when the user really
//     went offline.
//   - Broadcast next, while c is out of conns, so every remaining client
//     gets the new online set before anything about c is torn down.
//   - Close the send queue last. The writer drains what was queued, sends
//     a close frame and releases the socket. Pushes that race in after
//     this point see the closed flag and are dropped.
func (h *Hub) Detach(c *Conn) {
	if h.registry.Unregister(c.userID, c) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := h.lastSeen.Touch(ctx, c.userID, time.Now().UTC()); err != nil {
			c.logger.Warn("failed to record last seen", zap.Error(err))
		}
		cancel()
	}

	h.mu.Lock()
	delete(h.conns, c)
	metrics.OnlineUsers.Set(float64(h.registry.Len()))
	h.broadcastLocked()
	h.mu.Unlock()

	c.closeSend()
	c.logger.Info("client disconnected", zap.Int("online", h.registry.Len()))
}

// Close shuts every connection down. Their read pumps then fail and run
// the normal detach path.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.closeSend()
	}
}

// Len is the number of live connections, evicted ones included.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) broadcastLocked() {
	evt := events.Online(h.registry.Snapshot())
	frame, err := events.Encode(evt)
	if err != nil {
		h.logger.Error("failed to encode online users", zap.Error(err))
		return
	}

	for c := range h.conns {
		metrics.RecordPush(evt.Name, c.enqueue(frame))
	}
}
