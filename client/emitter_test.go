package client

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nameishyam/code-together/domain"
)

type recordingSender struct {
	mu        sync.Mutex
	connected bool
	err       error
	sent      []domain.CursorMovePayload
}

func (s *recordingSender) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *recordingSender) Emit(event string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if event == domain.EventCursorMove {
		s.sent = append(s.sent, data.(domain.CursorMovePayload))
	}
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

var box = Rect{Left: 100, Top: 50, Width: 800, Height: 400}

func TestEmitter_ThrottlesContinuousMovement(t *testing.T) {
	clock := newFakeClock()
	t0 := clock.Now()
	s := &recordingSender{connected: true}
	e := NewEmitter(s, "x:1:editor", "u1", "#f00", clock.Now)

	for ms := 0; ms < 500; ms++ {
		now := t0.Add(time.Duration(ms) * time.Millisecond)
		clock.Set(now)
		e.Track(100+float64(ms), 250, box)
		e.Tick(now)
	}

	assert.LessOrEqual(t, s.count(), 10)
	assert.GreaterOrEqual(t, s.count(), 9)
}

func TestEmitter_PayloadIsNormalized(t *testing.T) {
	clock := newFakeClock()
	s := &recordingSender{connected: true}
	e := NewEmitter(s, "x:1:editor", "u1", "#f00", clock.Now)

	e.Track(500, 250, box)
	require.True(t, e.Tick(clock.Now()))

	p := s.sent[0]
	assert.Equal(t, "x:1:editor", p.Room)
	assert.Equal(t, "u1", p.ClientID)
	assert.Equal(t, 0.5, *p.X)
	assert.Equal(t, 0.5, *p.Y)
	assert.Equal(t, float64(clock.Now().UnixMilli()), p.TS)
	assert.Equal(t, "#f00", *p.Color)
}

func TestEmitter_NothingToSendBeforeFirstMove(t *testing.T) {
	s := &recordingSender{connected: true}
	e := NewEmitter(s, "r", "u1", "", nil)

	assert.False(t, e.Tick(time.Now()))
	assert.Zero(t, s.count())
}

func TestEmitter_ResendsLatestPositionEverySlot(t *testing.T) {
	clock := newFakeClock()
	t0 := clock.Now()
	s := &recordingSender{connected: true}
	e := NewEmitter(s, "r", "u1", "", clock.Now)
	e.Track(500, 250, box)

	for _, at := range []time.Duration{0, 50 * time.Millisecond, 100 * time.Millisecond} {
		assert.True(t, e.Tick(t0.Add(at)))
	}
	assert.Equal(t, 3, s.count())
}

func TestEmitter_SkipsWhileDisconnected(t *testing.T) {
	clock := newFakeClock()
	t0 := clock.Now()
	s := &recordingSender{connected: false}
	e := NewEmitter(s, "r", "u1", "", clock.Now)
	e.Track(500, 250, box)

	assert.False(t, e.Tick(t0))
	assert.Zero(t, s.count())

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	assert.True(t, e.Tick(t0.Add(time.Millisecond)), "slot was not consumed while offline")
}

func TestEmitter_FailedEmitDoesNotConsumeSlot(t *testing.T) {
	clock := newFakeClock()
	t0 := clock.Now()
	s := &recordingSender{connected: true, err: errors.New("broken pipe")}
	e := NewEmitter(s, "r", "u1", "", clock.Now)
	e.Track(500, 250, box)

	assert.False(t, e.Tick(t0))
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
	assert.True(t, e.Tick(t0.Add(time.Millisecond)))
}

func TestRect_Normalize(t *testing.T) {
	tests := []struct {
		name         string
		r            Rect
		px, py       float64
		wantX, wantY float64
	}{
		{name: "centre", r: box, px: 500, py: 250, wantX: 0.5, wantY: 0.5},
		{name: "top-left corner", r: box, px: 100, py: 50, wantX: 0, wantY: 0},
		{name: "left of box", r: box, px: -140, py: 250, wantX: 0, wantY: 0.5},
		{name: "past bottom-right", r: box, px: 2000, py: 2000, wantX: 1, wantY: 1},
		{name: "zero-size box", r: Rect{}, px: 0.25, py: 3, wantX: 0.25, wantY: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := tt.r.Normalize(tt.px, tt.py)
			assert.Equal(t, tt.wantX, x)
			assert.Equal(t, tt.wantY, y)
		})
	}
}

// stalledSender blocks in Emit until release is closed.
type stalledSender struct {
	entered chan struct{}
	release chan struct{}
}

func (s *stalledSender) Connected() bool { return true }

func (s *stalledSender) Emit(string, any) error {
	close(s.entered)
	<-s.release
	return nil
}

func TestEmitter_TrackDoesNotWaitOnSlowEmit(t *testing.T) {
	s := &stalledSender{entered: make(chan struct{}), release: make(chan struct{})}
	e := NewEmitter(s, "r", "u1", "", nil)
	e.Track(500, 250, box)
	t0 := time.Now()

	ticked := make(chan bool)
	go func() { ticked <- e.Tick(t0) }()
	<-s.entered

	tracked := make(chan struct{})
	go func() {
		e.Track(600, 250, box)
		assert.False(t, e.Tick(t0), "slot is held by the in-flight emit")
		close(tracked)
	}()

	select {
	case <-tracked:
	case <-time.After(time.Second):
		t.Fatal("Track blocked behind Emit")
	}
	close(s.release)
	assert.True(t, <-ticked)
}
