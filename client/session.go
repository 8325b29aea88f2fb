// Package client is the consumer side of the relay: it joins a room over a
// websocket, projects peers' cursors and buffer into local state, and sends
// local edits and pointer movement back up.
//
// A Session owns three periodic or looping tasks while it runs: the frame
// reader, the stale-cursor sweep (every 2s, 7s window) and the cursor
// emitter (at most one move per 50ms). All stop when the Run context is
// cancelled; on the way out the session sends an explicit leave.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nameishyam/code-together/domain"
	"github.com/nameishyam/code-together/wire"
)

const writeWait = 10 * time.Second

var ErrNotConnected = errors.New("client: not connected")

type Options struct {
	URL      string
	Room     string
	ClientID string
	Color    string
	Name     string
	// Codec is wire.JSON (default) or wire.MsgPack.
	Codec  string
	Header http.Header

	// OnRemote, if set, is called after each applied peer event.
	OnRemote func(event, clientID string)

	// Now overrides the clock used for cursor bookkeeping.
	Now func() time.Time
}

type Session struct {
	opts      Options
	ws        *websocket.Conn
	codec     wire.Codec
	connected atomic.Bool
	writeMu   sync.Mutex

	Cursors *CursorMap
	Buffer  *Buffer
	emitter *Emitter
}

// Dial connects to the relay, binds surface to the room buffer and sends the
// join message.
func Dial(ctx context.Context, opts Options, surface Surface) (*Session, error) {
	if opts.Room == "" || opts.ClientID == "" {
		return nil, fmt.Errorf("client: room and client id are required")
	}
	if opts.Codec == "" {
		opts.Codec = wire.JSON
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	d := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{opts.Codec},
	}
	ws, _, err := d.DialContext(ctx, opts.URL, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", opts.URL, err)
	}

	codec, err := wire.ForName(ws.Subprotocol())
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("client: %w", err)
	}

	s := &Session{
		opts:    opts,
		ws:      ws,
		codec:   codec,
		Cursors: NewCursorMap(opts.Now),
	}
	s.connected.Store(true)
	s.emitter = NewEmitter(s, opts.Room, opts.ClientID, opts.Color, opts.Now)
	s.Buffer = NewBuffer(surface, s.publishCode)

	join := domain.JoinPayload{Room: opts.Room, ClientID: opts.ClientID}
	if opts.Color != "" {
		join.Color = &opts.Color
	}
	if opts.Name != "" {
		join.Name = &opts.Name
	}
	if err := s.Emit(domain.EventJoin, join); err != nil {
		ws.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) Connected() bool { return s.connected.Load() }

// Emit sends one event. It fails with ErrNotConnected once the socket is
// gone.
func (s *Session) Emit(event string, data any) error {
	if !s.connected.Load() {
		return ErrNotConnected
	}
	frame, err := s.codec.Encode(domain.Outbound{Event: event, Data: data})
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.ws.WriteMessage(s.codec.FrameType(), frame); err != nil {
		return fmt.Errorf("client: write %s: %w", event, err)
	}
	return nil
}

// MovePointer feeds a pointer position to the cursor emitter.
func (s *Session) MovePointer(px, py float64, box Rect) {
	s.emitter.Track(px, py, box)
}

func (s *Session) publishCode(code string) {
	c := code
	err := s.Emit(domain.EventCodeChange, domain.CodeChangePayload{
		Room:     s.opts.Room,
		ClientID: s.opts.ClientID,
		Code:     &c,
	})
	if err != nil && !errors.Is(err, ErrNotConnected) {
		slog.Warn("code change not sent", "room", s.opts.Room, "error", err)
	}
}

// Run reads frames until ctx is cancelled or the connection drops. A
// cancelled context is a clean exit and returns nil.
func (s *Session) Run(ctx context.Context) error {
	tasks, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.Cursors.Run(tasks, SweepInterval)
	}()
	go func() {
		defer wg.Done()
		s.emitter.Run(tasks)
	}()
	go func() {
		defer wg.Done()
		<-tasks.Done()
		s.close()
	}()

	var readErr error
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		frame, err := s.codec.Decode(data)
		if err != nil {
			slog.Debug("invalid frame from relay", "error", err)
			continue
		}
		s.dispatch(frame)
	}

	cancel()
	wg.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("client: connection lost: %w", readErr)
}

// close sends a best-effort leave and tears the socket down.
func (s *Session) close() {
	if s.connected.Load() {
		s.Emit(domain.EventLeave, domain.LeavePayload{Room: s.opts.Room, ClientID: s.opts.ClientID})
	}
	s.connected.Store(false)

	s.writeMu.Lock()
	s.ws.SetWriteDeadline(time.Now().Add(time.Second))
	s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	s.ws.Close()
}

func (s *Session) dispatch(f *wire.Frame) {
	var clientID string
	switch f.Event() {
	case domain.EventCodeChange:
		var p domain.CodeChangePayload
		if f.Bind(&p) != nil || p.Code == nil || p.ClientID == s.opts.ClientID {
			return
		}
		clientID = p.ClientID
		s.Buffer.ApplyRemote(*p.Code)

	case domain.EventCursorMove:
		var p domain.CursorMove
		if f.Bind(&p) != nil || p.ClientID == s.opts.ClientID {
			return
		}
		clientID = p.ClientID
		s.Cursors.Move(p)

	case domain.EventCursorJoin:
		var p domain.CursorJoin
		if f.Bind(&p) != nil || p.ClientID == s.opts.ClientID {
			return
		}
		clientID = p.ClientID
		s.Cursors.Join(p)

	case domain.EventCursorDisconnect:
		var p domain.CursorDisconnect
		if f.Bind(&p) != nil {
			return
		}
		clientID = p.ClientID
		s.Cursors.Remove(p.ClientID)

	default:
		return
	}

	if s.opts.OnRemote != nil {
		s.opts.OnRemote(f.Event(), clientID)
	}
}
