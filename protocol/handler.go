package protocol

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/nameishyam/code-together/domain"
)

var (
	errMalformed       = errors.New("malformed payload")
	errMissingIdentity = errors.New("room and clientId required")
	errNotMember       = errors.New("connection is not a member of the room")
	errUnknownEvent    = errors.New("unknown event")
)

// Recorder observes message outcomes. Reasons are drawn from a small fixed
// set so they can be used as metric labels.
type Recorder interface {
	Received(event string)
	Relayed(event string, peers int)
	Dropped(event, reason string)
}

type nopRecorder struct{}

func (nopRecorder) Received(string)        {}
func (nopRecorder) Relayed(string, int)    {}
func (nopRecorder) Dropped(string, string) {}

type Option func(*Handler)

func WithRecorder(r Recorder) Option {
	return func(h *Handler) { h.recorder = r }
}

// WithClock replaces the clock used to stamp cursor moves that arrive
// without a numeric ts.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

type route func(conn domain.Connection, in domain.Inbound) error

// Handler dispatches decoded frames from one connection at a time. Handle
// never blocks on peers: delivery goes through the broadcaster's
// non-blocking queues.
type Handler struct {
	broadcaster domain.Broadcaster
	recorder    Recorder
	now         func() time.Time
	routes      map[string]route
}

func NewHandler(b domain.Broadcaster, opts ...Option) *Handler {
	h := &Handler{
		broadcaster: b,
		recorder:    nopRecorder{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.routes = map[string]route{
		domain.EventJoin:       h.join,
		domain.EventLeave:      h.leave,
		domain.EventCodeChange: h.codeChange,
		domain.EventCursorMove: h.cursorMove,
	}
	return h
}

func (h *Handler) Handle(conn domain.Connection, in domain.Inbound) {
	event := in.Event()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panic", "conn", conn.ID(), "event", event, "panic", r)
			h.recorder.Dropped(event, "panic")
		}
	}()

	h.recorder.Received(event)

	fn, ok := h.routes[event]
	if !ok {
		h.drop(conn, event, errUnknownEvent)
		return
	}
	if err := fn(conn, in); err != nil {
		h.drop(conn, event, err)
	}
}

// Disconnect is the unconditional cleanup path for a closed transport. It
// announces the departure only if the connection still holds a membership,
// so an earlier explicit leave is never announced twice.
func (h *Handler) Disconnect(conn domain.Connection) {
	d, ok := h.broadcaster.Leave(conn)
	if !ok {
		return
	}
	h.announceDeparture(conn, d)
}

func (h *Handler) drop(conn domain.Connection, event string, err error) {
	slog.Debug("message dropped", "conn", conn.ID(), "event", event, "error", err)
	h.recorder.Dropped(event, reason(err))
}

func reason(err error) string {
	switch {
	case errors.Is(err, errMissingIdentity):
		return "missing_identity"
	case errors.Is(err, errNotMember):
		return "not_member"
	case errors.Is(err, errUnknownEvent):
		return "unknown_event"
	default:
		return "malformed"
	}
}

func (h *Handler) relay(room string, sender domain.Connection, event string, data any) {
	n := h.broadcaster.Broadcast(room, sender, domain.Outbound{Event: event, Data: data})
	h.recorder.Relayed(event, n)
}

func (h *Handler) announceDeparture(conn domain.Connection, d domain.Departure) {
	if d.Shared {
		return
	}
	h.relay(d.Room, conn, domain.EventCursorDisconnect, domain.CursorDisconnect{ClientID: d.ClientID})
}

// member verifies conn currently belongs to room.
func (h *Handler) member(conn domain.Connection, room string) error {
	m, ok := h.broadcaster.Lookup(conn)
	if !ok || m.Room != room {
		return errNotMember
	}
	return nil
}

func bind(in domain.Inbound, v any) error {
	if err := in.Bind(v); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}

func (h *Handler) join(conn domain.Connection, in domain.Inbound) error {
	var p domain.JoinPayload
	if err := bind(in, &p); err != nil {
		return err
	}
	if p.Room == "" || p.ClientID == "" {
		return errMissingIdentity
	}

	if prev, replaced := h.broadcaster.Join(conn, p.Room, p.ClientID); replaced {
		h.announceDeparture(conn, prev)
	}
	h.relay(p.Room, conn, domain.EventCursorJoin, domain.CursorJoin{
		ClientID: p.ClientID,
		Color:    p.Color,
		Name:     p.Name,
	})
	return nil
}

func (h *Handler) leave(conn domain.Connection, in domain.Inbound) error {
	var p domain.LeavePayload
	if err := bind(in, &p); err != nil {
		return err
	}
	if p.Room == "" || p.ClientID == "" {
		return errMissingIdentity
	}
	if err := h.member(conn, p.Room); err != nil {
		return err
	}

	if d, ok := h.broadcaster.Leave(conn); ok {
		h.announceDeparture(conn, d)
	}
	return nil
}

func (h *Handler) codeChange(conn domain.Connection, in domain.Inbound) error {
	var p domain.CodeChangePayload
	if err := bind(in, &p); err != nil {
		return err
	}
	if p.Room == "" || p.ClientID == "" {
		return errMissingIdentity
	}
	if p.Code == nil {
		return fmt.Errorf("%w: code is not text", errMalformed)
	}
	if err := h.member(conn, p.Room); err != nil {
		return err
	}

	h.relay(p.Room, conn, domain.EventCodeChange, domain.CodeChangePayload{
		ClientID: p.ClientID,
		Code:     p.Code,
	})
	return nil
}

func (h *Handler) cursorMove(conn domain.Connection, in domain.Inbound) error {
	var p domain.CursorMovePayload
	if err := bind(in, &p); err != nil {
		return err
	}
	if p.X == nil || p.Y == nil {
		return fmt.Errorf("%w: x and y must be numbers", errMalformed)
	}
	if p.Room == "" || p.ClientID == "" {
		return errMissingIdentity
	}
	if err := h.member(conn, p.Room); err != nil {
		return err
	}

	ts, ok := numeric(p.TS)
	if !ok {
		ts = float64(h.now().UnixMilli())
	}
	h.relay(p.Room, conn, domain.EventCursorMove, domain.CursorMove{
		ClientID: p.ClientID,
		X:        domain.ClampUnit(*p.X),
		Y:        domain.ClampUnit(*p.Y),
		TS:       ts,
		Color:    p.Color,
	})
	return nil
}

// numeric reports v as a finite float64 if it holds any numeric type the
// codecs can produce.
func numeric(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
