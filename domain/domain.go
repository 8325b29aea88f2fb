package domain

const (
	EventJoin             = "join"
	EventLeave            = "leave"
	EventCodeChange       = "editor_code_change"
	EventCursorMove       = "editor_cursor_move"
	EventCursorJoin       = "cursor_join"
	EventCursorDisconnect = "cursor_disconnect"
)

// Outbound is one event queued for delivery to a connection. Data is encoded
// by the connection's codec at send time; when Frames is set the encoded
// bytes are shared with every other connection using the same codec.
type Outbound struct {
	Event  string
	Data   any
	Frames *FrameCache
}

type JoinPayload struct {
	Room     string  `json:"room" msgpack:"room"`
	ClientID string  `json:"clientId" msgpack:"clientId"`
	Color    *string `json:"color,omitempty" msgpack:"color,omitempty"`
	Name     *string `json:"name,omitempty" msgpack:"name,omitempty"`
}

type LeavePayload struct {
	Room     string `json:"room" msgpack:"room"`
	ClientID string `json:"clientId" msgpack:"clientId"`
}

// CodeChangePayload is used both inbound (Room set) and outbound (Room
// omitted). Code is a pointer so a missing field can be told apart from an
// empty buffer.
type CodeChangePayload struct {
	Room     string  `json:"room,omitempty" msgpack:"room,omitempty"`
	ClientID string  `json:"clientId" msgpack:"clientId"`
	Code     *string `json:"code" msgpack:"code"`
}

// CursorMovePayload is the inbound cursor event. TS is left untyped because
// any numeric encoding is accepted and anything else is replaced.
type CursorMovePayload struct {
	Room     string   `json:"room" msgpack:"room"`
	ClientID string   `json:"clientId" msgpack:"clientId"`
	X        *float64 `json:"x" msgpack:"x"`
	Y        *float64 `json:"y" msgpack:"y"`
	TS       any      `json:"ts,omitempty" msgpack:"ts,omitempty"`
	Color    *string  `json:"color,omitempty" msgpack:"color,omitempty"`
}

// CursorMove is the relayed cursor event as peers receive it.
type CursorMove struct {
	ClientID string  `json:"clientId" msgpack:"clientId"`
	X        float64 `json:"x" msgpack:"x"`
	Y        float64 `json:"y" msgpack:"y"`
	TS       float64 `json:"ts" msgpack:"ts"`
	Color    *string `json:"color" msgpack:"color"`
}

type CursorJoin struct {
	ClientID string  `json:"clientId" msgpack:"clientId"`
	Color    *string `json:"color" msgpack:"color"`
	Name     *string `json:"name" msgpack:"name"`
}

type CursorDisconnect struct {
	ClientID string `json:"clientId" msgpack:"clientId"`
}

type Connection interface {
	ID() string
	Send(msg Outbound) error
	Close() error
}

// Membership is the room and identity a connection joined with.
type Membership struct {
	Room     string
	ClientID string
}

// Departure is a membership that was just removed. Shared reports that
// another connection in the same room still presents the same clientId.
type Departure struct {
	Membership
	Shared bool
}

type Broadcaster interface {
	Join(conn Connection, room, clientID string) (replaced Departure, ok bool)
	Leave(conn Connection) (Departure, bool)
	Lookup(conn Connection) (Membership, bool)
	Broadcast(room string, exclude Connection, msg Outbound) int
	Stats() (rooms, clients int)
}

// Inbound is one decoded frame. Bind decodes the payload into v using the
// codec the frame arrived with.
type Inbound interface {
	Event() string
	Bind(v any) error
}

type MessageHandler interface {
	Handle(conn Connection, in Inbound)
	Disconnect(conn Connection)
}
