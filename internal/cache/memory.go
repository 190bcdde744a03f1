package cache

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
)

type memoryEntry struct {
	value    any
	expireAt time.Time // zero means no expiry
}

// Memory is an in-process store whose entries may carry a deadline.
// Expired entries are dropped when they are read; there is no sweeper.
type Memory struct {
	mu    sync.Mutex
	items map[string]memoryEntry
	now   func() time.Time
}

// NewMemory returns an empty Memory using the wall clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock returns an empty Memory that reads time from now.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{items: make(map[string]memoryEntry), now: now}
}

// Set stores value under key. A zero expire keeps the entry until it is
// removed; otherwise the entry expires expire from now.
func (m *Memory) Set(key string, value any, expire time.Duration) {
	if m == nil || key == "" || value == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: value}
	if expire != 0 {
		e.expireAt = m.now().Add(expire)
	}
	m.items[key] = e
}

// Get returns the value under key unless it is absent or expired.
func (m *Memory) Get(key string) (any, bool) {
	if m == nil || key == "" {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[key]
	if !ok {
		return nil, false
	}
	if !e.expireAt.IsZero() && m.now().After(e.expireAt) {
		delete(m.items, key)
		return nil, false
	}
	return e.value, true
}

// SetJSON is Set; values are kept as they are.
func (m *Memory) SetJSON(key string, value any, expire time.Duration) {
	m.Set(key, value, expire)
}

// GetJSON converts the value under key into out.
func (m *Memory) GetJSON(key string, out any) bool {
	v, ok := m.Get(key)
	if !ok {
		return false
	}
	var data []byte
	switch raw := v.(type) {
	case string:
		if p, ok := out.(*string); ok {
			*p = raw
			return true
		}
		data = []byte(raw)
	case []byte:
		data = raw
	case json.RawMessage:
		data = raw
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return false
		}
	}
	return json.Unmarshal(data, out) == nil
}

func (m *Memory) Remove(key string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
}

func (m *Memory) Clear() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]memoryEntry)
}

// Len counts stored entries, including expired ones not yet read.
func (m *Memory) Len() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
