package client

import (
	"context"
	"sync"
	"time"

	"github.com/nameishyam/code-together/domain"
)

// EmitInterval is the minimum spacing between two cursor emissions.
const EmitInterval = 50 * time.Millisecond

// Rect is the editing surface's bounding box in pointer coordinates.
type Rect struct {
	Left, Top, Width, Height float64
}

// Normalize maps a pointer position into [0,1] relative to the box. A
// degenerate box is treated as one unit wide.
func (r Rect) Normalize(px, py float64) (x, y float64) {
	w, h := r.Width, r.Height
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	return domain.ClampUnit((px - r.Left) / w), domain.ClampUnit((py - r.Top) / h)
}

// Sender is the part of a session the emitter writes through.
type Sender interface {
	Connected() bool
	Emit(event string, data any) error
}

type position struct {
	x, y float64
	at   time.Time
}

// Emitter coalesces pointer movement into a fixed-rate cursor stream. The
// latest known position is re-sent on every slot so peers keep seeing it.
type Emitter struct {
	sender   Sender
	room     string
	clientID string
	color    *string
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	latest   *position
	lastEmit time.Time
}

func NewEmitter(s Sender, room, clientID, color string, now func() time.Time) *Emitter {
	if now == nil {
		now = time.Now
	}
	e := &Emitter{
		sender:   s,
		room:     room,
		clientID: clientID,
		interval: EmitInterval,
		now:      now,
	}
	if color != "" {
		e.color = &color
	}
	return e
}

// Track records a pointer position inside box.
func (e *Emitter) Track(px, py float64, box Rect) {
	x, y := box.Normalize(px, py)
	e.mu.Lock()
	e.latest = &position{x: x, y: y, at: e.now()}
	e.mu.Unlock()
}

// Tick emits the latest position if a slot is free at now. It reports
// whether a message was sent. A disconnected sender is skipped silently. The
// slot is reserved under the lock and the write happens outside it, so Track
// never waits on the network.
func (e *Emitter) Tick(now time.Time) bool {
	e.mu.Lock()
	if e.latest == nil || !e.lastEmit.IsZero() && now.Sub(e.lastEmit) < e.interval {
		e.mu.Unlock()
		return false
	}
	pos := *e.latest
	prev := e.lastEmit
	e.lastEmit = now
	e.mu.Unlock()

	if e.send(pos) {
		return true
	}

	e.mu.Lock()
	if e.lastEmit.Equal(now) {
		e.lastEmit = prev
	}
	e.mu.Unlock()
	return false
}

func (e *Emitter) send(pos position) bool {
	if !e.sender.Connected() {
		return false
	}
	err := e.sender.Emit(domain.EventCursorMove, domain.CursorMovePayload{
		Room:     e.room,
		ClientID: e.clientID,
		X:        &pos.x,
		Y:        &pos.y,
		TS:       float64(pos.at.UnixMilli()),
		Color:    e.color,
	})
	return err == nil
}

// Run polls faster than the emit interval so slots are not missed to
// ticker jitter. It stops when ctx is cancelled.
func (e *Emitter) Run(ctx context.Context) {
	t := time.NewTicker(e.interval / 4)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.Tick(e.now())
		}
	}
}
