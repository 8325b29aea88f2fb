package wire

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nameishyam/code-together/domain"
)

func TestForName(t *testing.T) {
	tests := []struct {
		name      string
		wantName  string
		wantFrame int
		wantErr   bool
	}{
		{name: "", wantName: JSON, wantFrame: websocket.TextMessage},
		{name: "json", wantName: JSON, wantFrame: websocket.TextMessage},
		{name: "msgpack", wantName: MsgPack, wantFrame: websocket.BinaryMessage},
		{name: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ForName(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownCodec)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, c.Name())
			assert.Equal(t, tt.wantFrame, c.FrameType())
		})
	}
}

func TestJSON_DecodeJoin(t *testing.T) {
	c, _ := ForName(JSON)
	f, err := c.Decode([]byte(`{"event":"join","data":{"room":"x:1:editor","clientId":"u1","color":"#f00"}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.EventJoin, f.Event())

	var p domain.JoinPayload
	require.NoError(t, f.Bind(&p))
	assert.Equal(t, "x:1:editor", p.Room)
	assert.Equal(t, "u1", p.ClientID)
	require.NotNil(t, p.Color)
	assert.Equal(t, "#f00", *p.Color)
	assert.Nil(t, p.Name)
}

func TestJSON_DecodeRejects(t *testing.T) {
	c, _ := ForName(JSON)

	tests := []struct {
		name    string
		frame   string
		bindErr bool
	}{
		{name: "not json", frame: `hello`},
		{name: "no event", frame: `{"data":{}}`},
		{name: "null data", frame: `{"event":"join","data":null}`, bindErr: true},
		{name: "missing data", frame: `{"event":"join"}`, bindErr: true},
		{name: "wrong type", frame: `{"event":"editor_cursor_move","data":{"x":"left"}}`, bindErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := c.Decode([]byte(tt.frame))
			if !tt.bindErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			var p domain.CursorMovePayload
			assert.Error(t, f.Bind(&p))
		})
	}
}

func TestJSON_EncodeCursorMoveKeepsNullColor(t *testing.T) {
	c, _ := ForName(JSON)
	out, err := c.Encode(domain.Outbound{
		Event: domain.EventCursorMove,
		Data:  domain.CursorMove{ClientID: "u1", X: 0.5, Y: 1, TS: 1700000000000},
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"event":"editor_cursor_move","data":{"clientId":"u1","x":0.5,"y":1,"ts":1700000000000,"color":null}}`,
		string(out))
}

func TestJSON_EncodeCodeChangeOmitsRoom(t *testing.T) {
	c, _ := ForName(JSON)
	code := "print(1)"
	out, err := c.Encode(domain.Outbound{
		Event: domain.EventCodeChange,
		Data:  domain.CodeChangePayload{ClientID: "u1", Code: &code},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"editor_code_change","data":{"clientId":"u1","code":"print(1)"}}`, string(out))
}

func TestMsgPack_CursorMoveAcceptsIntegerCoordinates(t *testing.T) {
	c, _ := ForName(MsgPack)
	frame, err := msgpack.Marshal(map[string]any{
		"event": domain.EventCursorMove,
		"data": map[string]any{
			"room":     "r",
			"clientId": "u1",
			"x":        1,
			"y":        0.25,
			"ts":       int64(42),
		},
	})
	require.NoError(t, err)

	f, err := c.Decode(frame)
	require.NoError(t, err)

	var p domain.CursorMovePayload
	require.NoError(t, f.Bind(&p))
	require.NotNil(t, p.X)
	require.NotNil(t, p.Y)
	assert.Equal(t, 1.0, *p.X)
	assert.Equal(t, 0.25, *p.Y)
	assert.NotNil(t, p.TS)
}

func TestMsgPack_EncodeDecodeEnvelope(t *testing.T) {
	c, _ := ForName(MsgPack)
	out, err := c.Encode(domain.Outbound{
		Event: domain.EventCursorDisconnect,
		Data:  domain.CursorDisconnect{ClientID: "u9"},
	})
	require.NoError(t, err)

	f, err := c.Decode(out)
	require.NoError(t, err)
	assert.Equal(t, domain.EventCursorDisconnect, f.Event())

	var p domain.CursorDisconnect
	require.NoError(t, f.Bind(&p))
	assert.Equal(t, "u9", p.ClientID)
}

func TestMsgPack_DecodeRejectsGarbage(t *testing.T) {
	c, _ := ForName(MsgPack)
	_, err := c.Decode([]byte{0xff, 0x00})
	assert.Error(t, err)
}
