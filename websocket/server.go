package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nameishyam/code-together/domain"
	"github.com/nameishyam/code-together/wire"
)

type Options struct {
	// CheckOrigin decides whether a browser origin may upgrade. Nil accepts
	// every origin.
	CheckOrigin func(r *http.Request) bool

	SendBuffer     int
	MaxMessageSize int64

	// RateLimit is the sustained inbound frames per second per connection.
	// Zero disables limiting.
	RateLimit float64
	RateBurst int

	Drops DropCounter
}

type nopDrops struct{}

func (nopDrops) Dropped(string, string) {}

// Server upgrades HTTP requests to relay connections and tracks them until
// they close.
type Server struct {
	handler  domain.MessageHandler
	opts     Options
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*Conn]struct{}
	wg    sync.WaitGroup
}

func NewServer(h domain.MessageHandler, opts Options) *Server {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 1 << 20
	}
	if opts.Drops == nil {
		opts.Drops = nopDrops{}
	}
	check := opts.CheckOrigin
	if check == nil {
		check = func(r *http.Request) bool { return true }
	}

	return &Server{
		handler: h,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			Subprotocols:    wire.Subprotocols,
			CheckOrigin:     check,
		},
		conns: make(map[*Conn]struct{}),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("upgrade error", "origin", r.Header.Get("Origin"), "error", err)
		return
	}

	codec, err := wire.ForName(ws.Subprotocol())
	if err != nil {
		slog.Error("codec negotiation", "error", err)
		ws.Close()
		return
	}

	limit, burst := rate.Inf, s.opts.RateBurst
	if s.opts.RateLimit > 0 {
		limit = rate.Limit(s.opts.RateLimit)
	}
	if burst < 1 {
		burst = 1
	}

	c := &Conn{
		id:      uuid.New().String(),
		ws:      ws,
		codec:   codec,
		send:    make(chan []byte, s.opts.SendBuffer),
		done:    make(chan struct{}),
		handler: s.handler,
		limiter: rate.NewLimiter(limit, burst),
		maxSize: s.opts.MaxMessageSize,
		drops:   s.opts.Drops,
	}
	s.start(c)
	slog.Debug("client connected", "conn", c.id, "codec", codec.Name(), "remote", r.RemoteAddr)
}

func (s *Server) start(c *Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go c.writePump()
	go func() {
		defer s.wg.Done()
		defer s.forget(c)
		c.readPump()
	}()
}

func (s *Server) forget(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	slog.Debug("client disconnected", "conn", c.id)
}

// Count returns the number of open connections, joined or not.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown closes every open connection and waits until each has run its
// disconnect cleanup, or ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	open := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		open = append(open, c)
	}
	s.mu.Unlock()

	for _, c := range open {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
