package websocket

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nameishyam/code-together/domain"
	"github.com/nameishyam/code-together/wire"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var (
	ErrClosed    = errors.New("websocket: connection closed")
	ErrQueueFull = errors.New("websocket: send queue full")
)

// unknownEvent labels drops of frames whose event could not be read.
const unknownEvent = "unknown"

// DropCounter is told about frames discarded before they reach the handler.
type DropCounter interface {
	Dropped(event, reason string)
}

type Conn struct {
	id        string
	ws        *websocket.Conn
	codec     wire.Codec
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	handler   domain.MessageHandler
	limiter   *rate.Limiter
	maxSize   int64
	drops     DropCounter
}

func (c *Conn) ID() string { return c.id }

// Send encodes msg with the connection's codec and queues it without
// blocking.
func (c *Conn) Send(msg domain.Outbound) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	data, err := c.encode(msg)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

func (c *Conn) encode(msg domain.Outbound) ([]byte, error) {
	if msg.Frames == nil {
		return c.codec.Encode(msg)
	}
	return msg.Frames.Load(c.codec.Name(), func() ([]byte, error) { return c.codec.Encode(msg) })
}

// Close asks the write pump to send a close frame and tear the socket down.
// The read pump then observes the closed socket and runs the disconnect
// path.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *Conn) readPump() {
	defer func() {
		c.handler.Disconnect(c)
		c.Close()
	}()

	c.ws.SetReadLimit(c.maxSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	throttled := 0
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				slog.Error("read error", "conn", c.id, "error", err)
			}
			return
		}

		if !c.limiter.Allow() {
			throttled++
			if throttled%100 == 1 {
				slog.Warn("rate limit exceeded", "conn", c.id, "dropped", throttled)
			}
			c.drops.Dropped(unknownEvent, "rate_limited")
			continue
		}

		frame, err := c.codec.Decode(data)
		if err != nil {
			slog.Debug("invalid frame", "conn", c.id, "error", err)
			c.drops.Dropped(unknownEvent, "malformed")
			continue
		}

		c.handler.Handle(c, frame)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(c.codec.FrameType(), message); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
