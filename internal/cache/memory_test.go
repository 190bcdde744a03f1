package cache

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMemory() (*Memory, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewMemoryWithClock(clock.Now), clock
}

func TestMemory_NoExpiry(t *testing.T) {
	m, clock := newTestMemory()
	m.Set("models", []string{"gpt-4o"}, 0)

	clock.Advance(24 * time.Hour)
	v, ok := m.Get("models")
	require.True(t, ok)
	assert.Equal(t, []string{"gpt-4o"}, v)
}

func TestMemory_LazyEviction(t *testing.T) {
	m, clock := newTestMemory()
	m.Set("stats", 7, 10*time.Second)

	clock.Advance(10 * time.Second)
	_, ok := m.Get("stats")
	assert.True(t, ok, "entry is still valid at its deadline")

	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, m.Len(), "nothing is evicted before a read")
	_, ok = m.Get("stats")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())

	_, ok = m.Get("stats")
	assert.False(t, ok)
}

func TestMemory_GetJSON(t *testing.T) {
	m, _ := newTestMemory()
	m.SetJSON("cfg", map[string]any{"model": "gpt-4o", "max_tokens": 2048}, 0)

	var cfg struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
	}
	require.True(t, m.GetJSON("cfg", &cfg))
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, 2048, cfg.MaxTokens)

	m.Set("plain", "hello", 0)
	var s string
	require.True(t, m.GetJSON("plain", &s))
	assert.Equal(t, "hello", s)

	assert.False(t, m.GetJSON("absent", &s))
}

func TestMemory_RemoveClearAndNil(t *testing.T) {
	m, _ := newTestMemory()
	m.Set("a", 1, 0)
	m.Set("b", 2, 0)
	m.Set("", 3, 0)
	m.Set("c", nil, 0)
	assert.Equal(t, 2, m.Len())

	m.Remove("a")
	_, ok := m.Get("a")
	assert.False(t, ok)

	m.Clear()
	assert.Equal(t, 0, m.Len())

	var nilMem *Memory
	nilMem.Set("a", 1, 0)
	_, ok = nilMem.Get("a")
	assert.False(t, ok)
}

func TestProperty_MemoryExpiry(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("entries are never returned after their deadline", prop.ForAll(
		func(ttlMs, elapsedMs int) bool {
			m, clock := newTestMemory()
			m.Set("k", "v", time.Duration(ttlMs)*time.Millisecond)
			clock.Advance(time.Duration(elapsedMs) * time.Millisecond)

			_, ok := m.Get("k")
			if elapsedMs > ttlMs {
				return !ok && m.Len() == 0
			}
			return ok
		},
		gen.IntRange(1, 5000),
		gen.IntRange(0, 10000),
	))

	properties.TestingRun(t)
}
