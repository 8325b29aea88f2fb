package client

import "sync"

// Surface is the editing widget. SetValue must notify OnChange listeners
// synchronously, the same way a user edit does.
type Surface interface {
	Value() string
	SetValue(code string)
	OnChange(fn func(code string))
}

// Buffer links a Surface to the relay. Local edits are published; remote
// buffers replace the surface content without being published back.
type Buffer struct {
	surface Surface
	publish func(code string)

	mu sync.Mutex
	// pending holds remote contents whose change notification is still
	// expected. Each entry absorbs exactly one notification with equal code.
	pending []string
}

func NewBuffer(s Surface, publish func(code string)) *Buffer {
	b := &Buffer{surface: s, publish: publish}
	s.OnChange(b.localChanged)
	return b
}

func (b *Buffer) localChanged(code string) {
	if b.absorb(code) {
		return
	}
	b.publish(code)
}

func (b *Buffer) absorb(code string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, p := range b.pending {
		if p == code {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			return true
		}
	}
	return false
}

// ApplyRemote replaces the surface content with code. Only the notification
// carrying code itself is suppressed, so a local edit made concurrently is
// still published. The expectation is dropped if the surface panics or never
// notifies. It reports whether the content changed.
func (b *Buffer) ApplyRemote(code string) bool {
	if b.surface.Value() == code {
		return false
	}
	b.mu.Lock()
	b.pending = append(b.pending, code)
	b.mu.Unlock()
	defer b.absorb(code)

	b.surface.SetValue(code)
	return true
}

func (b *Buffer) Value() string { return b.surface.Value() }

// TextSurface is an in-memory Surface.
type TextSurface struct {
	mu        sync.Mutex
	text      string
	listeners []func(string)
}

func NewTextSurface(initial string) *TextSurface {
	return &TextSurface{text: initial}
}

func (s *TextSurface) Value() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

func (s *TextSurface) SetValue(code string) {
	s.mu.Lock()
	s.text = code
	listeners := append([]func(string){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(code)
	}
}

func (s *TextSurface) OnChange(fn func(code string)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}
