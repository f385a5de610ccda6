package ws

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sinchita-code/quickchat/internal/events"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 4 << 10
	sendQueueSize  = 64
)

// Conn is one authenticated websocket. It is the presence.Handle the hub
// registers for its user.
//
// Outbound frames go through a buffered queue drained by a single writer
// goroutine, so gorilla's one-writer rule holds without a write lock.
type Conn struct {
	id     string
	userID uuid.UUID
	ws     *websocket.Conn
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newConn(ws *websocket.Conn, userID uuid.UUID, logger *zap.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:     id,
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, sendQueueSize),
		logger: logger.With(zap.String("conn", id), zap.String("user_id", userID.String())),
	}
}

func (c *Conn) ID() string { return c.id }

// Push encodes evt and queues it. False means the connection is closed or
// its queue is full; the event is dropped.
func (c *Conn) Push(evt events.Event) bool {
	frame, err := events.Encode(evt)
	if err != nil {
		c.logger.Error("failed to encode event", zap.String("event", evt.Name), zap.Error(err))
		return false
	}
	return c.enqueue(frame)
}

func (c *Conn) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn("send queue full, dropping frame")
		return false
	}
}

// closeSend stops the writer, which then sends a close frame and tears the
// socket down. Safe to call more than once.
func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// readPump blocks until the peer goes away. Clients never send
// application frames; anything they do send is read and discarded.
func (c *Conn) readPump() {
	c.ws.SetReadLimit(maxInboundSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			var ne net.Error
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				c.logger.Debug("peer closed")
			case errors.As(err, &ne) && ne.Timeout():
				c.logger.Info("read deadline exceeded")
			default:
				c.logger.Debug("read failed", zap.Error(err))
			}
			return
		}
	}
}
