package config

import (
	"net/http"
	"strings"
	"sync/atomic"
)

// Origins is the live allowed-origin policy. It is safe for concurrent use
// and can be replaced while the server runs.
type Origins struct {
	list atomic.Pointer[[]string]
}

func NewOrigins(list []string) *Origins {
	o := &Origins{}
	o.Set(list)
	return o
}

func (o *Origins) Set(list []string) {
	cp := make([]string, len(list))
	copy(cp, list)
	o.list.Store(&cp)
}

func (o *Origins) List() []string {
	return *o.list.Load()
}

// Allowed reports whether origin may connect. Matching ignores case and a
// trailing slash.
func (o *Origins) Allowed(origin string) bool {
	origin = strings.TrimSuffix(origin, "/")
	for _, allowed := range o.List() {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// CheckOrigin is a websocket upgrade check. Requests without an Origin
// header come from non-browser clients and are accepted.
func (o *Origins) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return o.Allowed(origin)
}
