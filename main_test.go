package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nameishyam/code-together/api"
	"github.com/nameishyam/code-together/config"
	"github.com/nameishyam/code-together/hub"
	"github.com/nameishyam/code-together/metrics"
	"github.com/nameishyam/code-together/protocol"
	ws "github.com/nameishyam/code-together/websocket"
)

func newTestServer(t *testing.T, wsPath string) *httptest.Server {
	t.Helper()
	broadcaster := hub.New()
	collector := metrics.NewCollector()
	wsServer := ws.NewServer(protocol.NewHandler(broadcaster, protocol.WithRecorder(collector)), ws.Options{Drops: collector})
	apiHandler := api.New(broadcaster, wsServer, collector, config.NewOrigins([]string{"*"}))

	srv := httptest.NewServer(routes(wsPath, wsServer, apiHandler))
	t.Cleanup(srv.Close)
	return srv
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t, "/ws")

	tests := []struct {
		path       string
		wantStatus int
	}{
		{path: "/health", wantStatus: http.StatusOK},
		{path: "/wake", wantStatus: http.StatusOK},
		{path: "/ws", wantStatus: http.StatusBadRequest},
		{path: "/socket.io/", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestRoutes_WebSocketOnlyAtConfiguredPath(t *testing.T) {
	srv := newTestServer(t, "/relay")
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(base+"/relay", nil)
	require.NoError(t, err)
	conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(base+"/socket.io/", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
