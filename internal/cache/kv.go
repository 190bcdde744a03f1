package cache

import (
	"fmt"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

// KV is the facade over one Backend. A nil KV, or one without a backend,
// behaves as an unavailable store: writes are dropped and reads miss.
type KV struct {
	name    string
	backend Backend
}

// NewKV wraps backend. name only appears in log lines.
func NewKV(name string, backend Backend) *KV {
	return &KV{name: name, backend: backend}
}

// Backend returns the underlying store, or nil when unavailable.
func (s *KV) Backend() Backend {
	if s == nil {
		return nil
	}
	return s.backend
}

func (s *KV) available() bool {
	return s != nil && s.backend != nil
}

// Set stores value under key. The empty key and a nil value are ignored.
// Strings are stored as is, anything else in its fmt rendering.
func (s *KV) Set(key string, value any) {
	if !s.available() || key == "" || value == nil {
		return
	}
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		raw = fmt.Sprint(v)
	}
	if err := s.backend.SetItem(key, raw); err != nil {
		log.WithField("store", s.name).Warnf("cache: failed to set %q: %v", key, err)
	}
}

// Get returns the raw value stored under key.
func (s *KV) Get(key string) (string, bool) {
	if !s.available() || key == "" {
		return "", false
	}
	v, ok, err := s.backend.GetItem(key)
	if err != nil {
		log.WithField("store", s.name).Warnf("cache: failed to get %q: %v", key, err)
		return "", false
	}
	return v, ok
}

// SetJSON stores the JSON encoding of v. A nil v is ignored.
func (s *KV) SetJSON(key string, v any) {
	if v == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.WithField("store", s.name).Warnf("cache: failed to encode %q: %v", key, err)
		return
	}
	s.Set(key, string(data))
}

// GetJSON decodes the value under key into out. It reports false when the
// key is absent or the stored text is not valid JSON.
func (s *KV) GetJSON(key string, out any) bool {
	raw, ok := s.Get(key)
	if !ok {
		return false
	}
	if err := decodeJSON(raw, out); err != nil {
		log.WithField("store", s.name).Debugf("cache: malformed JSON under %q: %v", key, err)
		return false
	}
	return true
}

func decodeJSON(raw string, out any) error {
	return json.Unmarshal([]byte(raw), out)
}

// Remove deletes key.
func (s *KV) Remove(key string) {
	if !s.available() {
		return
	}
	if err := s.backend.RemoveItem(key); err != nil {
		log.WithField("store", s.name).Warnf("cache: failed to remove %q: %v", key, err)
	}
}

// Clear deletes every key.
func (s *KV) Clear() {
	if !s.available() {
		return
	}
	if err := s.backend.Clear(); err != nil {
		log.WithField("store", s.name).Warnf("cache: failed to clear: %v", err)
	}
}
