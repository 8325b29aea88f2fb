package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameCache_EncodesOncePerCodec(t *testing.T) {
	c := NewFrameCache()
	calls := map[string]int{}
	encoder := func(name string) func() ([]byte, error) {
		return func() ([]byte, error) {
			calls[name]++
			return []byte(name), nil
		}
	}

	for i := 0; i < 3; i++ {
		f, err := c.Load("json", encoder("json"))
		require.NoError(t, err)
		assert.Equal(t, []byte("json"), f)
	}
	_, err := c.Load("msgpack", encoder("msgpack"))
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"json": 1, "msgpack": 1}, calls)
}

func TestFrameCache_ErrorsAreNotCached(t *testing.T) {
	c := NewFrameCache()
	boom := errors.New("boom")

	_, err := c.Load("json", func() ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	f, err := c.Load("json", func() ([]byte, error) { return []byte("ok"), nil })
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), f)
}
