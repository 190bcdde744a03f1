// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cache provides the client-side storage facade: a session-scoped
// store, a persistent store and an in-process memory store with TTL.
package cache

import "sync"

// Backend is the primitive key/value store behind a KV.
// A missing key is reported as ("", false, nil).
type Backend interface {
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
	Clear() error
}

// MapBackend is an in-process Backend. Its content lives as long as the
// process, which makes it the session-scoped store.
type MapBackend struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMapBackend returns an empty MapBackend.
func NewMapBackend() *MapBackend {
	return &MapBackend{items: make(map[string]string)}
}

func (b *MapBackend) GetItem(key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.items[key]
	return v, ok, nil
}

func (b *MapBackend) SetItem(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[key] = value
	return nil
}

func (b *MapBackend) RemoveItem(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.items, key)
	return nil
}

func (b *MapBackend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = make(map[string]string)
	return nil
}
