// Package api serves the relay's plain HTTP surface: liveness probes, room
// statistics and the metrics exposition.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nameishyam/code-together/config"
	"github.com/nameishyam/code-together/hub"
	"github.com/nameishyam/code-together/metrics"
)

const banner = "code-together relay is running\n"

// Rooms is the read side of the hub.
type Rooms interface {
	Stats() (rooms, clients int)
	Rooms() []hub.RoomInfo
}

// Connections reports open websocket connections.
type Connections interface {
	Count() int
}

type API struct {
	rooms     Rooms
	conns     Connections
	collector *metrics.Collector
	origins   *config.Origins
}

func New(rooms Rooms, conns Connections, collector *metrics.Collector, origins *config.Origins) *API {
	return &API{
		rooms:     rooms,
		conns:     conns,
		collector: collector,
		origins:   origins,
	}
}

// Register mounts every endpoint on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", a.BannerHandler)
	mux.HandleFunc("GET /health", a.HealthHandler)
	mux.HandleFunc("GET /wake", a.HealthHandler)
	mux.HandleFunc("GET /stats", a.StatsHandler)
	mux.HandleFunc("GET /api/rooms", a.RoomsHandler)
	mux.HandleFunc("GET /metrics", a.MetricsHandler)
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("encode response", "error", err)
	}
}

func (a *API) BannerHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(banner))
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, clients := a.rooms.Stats()
	jsonResponse(w, http.StatusOK, map[string]int{"rooms": rooms, "clients": clients})
}

func (a *API) RoomsHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, a.rooms.Rooms())
}

func (a *API) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, clients := a.rooms.Stats()
	families := a.collector.Gather(metrics.Gauges{
		Rooms:       rooms,
		Clients:     clients,
		Connections: a.conns.Count(),
	})

	w.Header().Set("Content-Type", metrics.ContentType)
	if err := metrics.WriteText(w, families); err != nil {
		slog.Warn("write metrics", "error", err)
	}
}

// CORS answers preflight requests and echoes allowed origins with
// credentials enabled.
func (a *API) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && a.origins.Allowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
