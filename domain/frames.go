package domain

import "sync"

// FrameCache memoizes the encoded form of one Outbound per codec name, so a
// message broadcast to many connections is encoded once per codec.
type FrameCache struct {
	mu     sync.Mutex
	frames map[string][]byte
}

func NewFrameCache() *FrameCache {
	return &FrameCache{frames: make(map[string][]byte)}
}

// Load returns the frame stored under codec, calling encode to produce it on
// first use. Encode errors are not cached.
func (c *FrameCache) Load(codec string, encode func() ([]byte, error)) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.frames[codec]; ok {
		return f, nil
	}
	f, err := encode()
	if err != nil {
		return nil, err
	}
	c.frames[codec] = f
	return f, nil
}
