package client

import (
	"context"
	"sync"
	"time"

	"github.com/nameishyam/code-together/domain"
)

const (
	// StaleAfter is how long a peer cursor survives without an update.
	StaleAfter = 7 * time.Second
	// SweepInterval is how often stale cursors are purged.
	SweepInterval = 2 * time.Second

	DefaultColor = "#666"
)

type RemoteCursor struct {
	X, Y     float64
	Color    string
	Name     string
	LastSeen time.Time
}

// CursorMap is the local projection of peer cursors keyed by clientId.
type CursorMap struct {
	mu         sync.Mutex
	entries    map[string]RemoteCursor
	staleAfter time.Duration
	now        func() time.Time
}

func NewCursorMap(now func() time.Time) *CursorMap {
	if now == nil {
		now = time.Now
	}
	return &CursorMap{
		entries:    make(map[string]RemoteCursor),
		staleAfter: StaleAfter,
		now:        now,
	}
}

// Join places a newly announced peer at the origin.
func (m *CursorMap) Join(p domain.CursorJoin) {
	if p.ClientID == "" {
		return
	}
	c := RemoteCursor{Color: colorOr(p.Color), LastSeen: m.now()}
	if p.Name != nil {
		c.Name = *p.Name
	}
	m.mu.Lock()
	m.entries[p.ClientID] = c
	m.mu.Unlock()
}

// Move records a peer position, clamping it again on the way in.
func (m *CursorMap) Move(p domain.CursorMove) {
	if p.ClientID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.entries[p.ClientID]
	c.X = domain.ClampUnit(p.X)
	c.Y = domain.ClampUnit(p.Y)
	c.Color = colorOr(p.Color)
	c.LastSeen = m.now()
	m.entries[p.ClientID] = c
}

func (m *CursorMap) Remove(clientID string) {
	m.mu.Lock()
	delete(m.entries, clientID)
	m.mu.Unlock()
}

// Sweep drops every entry last seen before now minus the staleness window
// and returns how many were removed.
func (m *CursorMap) Sweep(now time.Time) int {
	cutoff := now.Add(-m.staleAfter)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, c := range m.entries {
		if c.LastSeen.Before(cutoff) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

func (m *CursorMap) Get(clientID string) (RemoteCursor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.entries[clientID]
	return c, ok
}

// Snapshot returns a copy of the map.
func (m *CursorMap) Snapshot() map[string]RemoteCursor {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]RemoteCursor, len(m.entries))
	for id, c := range m.entries {
		out[id] = c
	}
	return out
}

// Run sweeps every interval until ctx is cancelled.
func (m *CursorMap) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep(m.now())
		}
	}
}

func colorOr(c *string) string {
	if c == nil || *c == "" {
		return DefaultColor
	}
	return *c
}
