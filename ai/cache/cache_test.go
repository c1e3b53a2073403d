package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	c, err := Open("", true, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_PutGet(t *testing.T) {
	c := openTestCache(t)

	vector := []float32{0.1, 0.2, 0.3, 0.4}
	require.NoError(t, c.Put("openai", "الفصل 97", vector))

	got, ok := c.Get("openai", "الفصل 97")
	require.True(t, ok)
	assert.Equal(t, vector, got)
}

func TestCache_MissOnUnknownText(t *testing.T) {
	c := openTestCache(t)

	_, ok := c.Get("openai", "never stored")
	assert.False(t, ok)
}

func TestCache_ProviderIsolation(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.Put("openai", "same text", []float32{1, 0}))

	_, ok := c.Get("ollama", "same text")
	assert.False(t, ok, "providers must not share cache slots")
}

func TestCache_Overwrite(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.Put("openai", "text", []float32{1, 0}))
	require.NoError(t, c.Put("openai", "text", []float32{0, 1}))

	got, ok := c.Get("openai", "text")
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, got)
}

func TestCache_TTLExpiry(t *testing.T) {
	c := openTestCache(t, WithTTL(50*time.Millisecond))

	require.NoError(t, c.Put("openai", "short lived", []float32{1, 0}))

	_, ok := c.Get("openai", "short lived")
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)

	_, ok = c.Get("openai", "short lived")
	assert.False(t, ok)
}

func TestEntryRoundTrip(t *testing.T) {
	in := &entry{
		Provider:  "openai",
		Vector:    []float32{0.5, -0.25, 1.75},
		CreatedAt: time.Now().Unix(),
	}

	out, err := unmarshalEntry(marshalEntry(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestUnmarshalEntry_Corrupt(t *testing.T) {
	_, err := unmarshalEntry([]byte{0xff})
	assert.Error(t, err)
}
