// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/chatdesk/internal/util"
)

// FileBackend keeps the persistent store as one JSON document on disk.
// Every operation re-reads the file, so several processes sharing the
// state directory see each other's writes (last write wins).
type FileBackend struct {
	path   string
	sb     *util.StateBox
	sealer *sealer

	mu sync.Mutex
	// notified is the content the watcher last reported, plus this
	// process's own writes. Reads never touch it.
	notified map[string]string
}

// FileBackendOption configures a FileBackend.
type FileBackendOption func(*FileBackend)

// WithPassphrase seals the file with a key derived from passphrase.
func WithPassphrase(passphrase string) FileBackendOption {
	return func(b *FileBackend) {
		if passphrase != "" {
			b.sealer = newSealer(passphrase)
		}
	}
}

// OpenFileBackend opens (or prepares) the store at path. A relative path
// is resolved against the state directory of sb.
func OpenFileBackend(sb *util.StateBox, path string, opts ...FileBackendOption) (*FileBackend, error) {
	if sb != nil {
		path = sb.ResolvePath(path)
	}
	b := &FileBackend{path: path, sb: sb}
	for _, opt := range opts {
		opt(b)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	items, err := b.loadLocked()
	if err != nil {
		return nil, err
	}
	b.notified = items
	return b, nil
}

// Path returns the file backing the store.
func (b *FileBackend) Path() string {
	return b.path
}

func (b *FileBackend) loadLocked() (map[string]string, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("cache: read %s: %w", b.path, err)
	}

	if b.sealer != nil {
		if data, err = b.sealer.open(data); err != nil {
			return nil, err
		}
	} else if isSealed(data) {
		return nil, ErrWrongPassphrase
	}

	items := make(map[string]string)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("cache: parse %s: %w", b.path, err)
		}
	}
	return items, nil
}

func (b *FileBackend) writeLocked(items map[string]string) error {
	if b.sealer == nil {
		return util.SecureWriteJSON(b.sb, b.path, items, nil)
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	if data, err = b.sealer.seal(data); err != nil {
		return err
	}
	return util.SecureWrite(b.sb, b.path, data, nil)
}

func (b *FileBackend) GetItem(key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	items, err := b.loadLocked()
	if err != nil {
		return "", false, err
	}
	v, ok := items[key]
	return v, ok, nil
}

func (b *FileBackend) SetItem(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	items, err := b.loadLocked()
	if err != nil {
		return err
	}
	next := cloneItems(items)
	next[key] = value
	if err := b.writeLocked(next); err != nil {
		return err
	}
	b.notified[key] = value
	return nil
}

func (b *FileBackend) RemoveItem(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	items, err := b.loadLocked()
	if err != nil {
		return err
	}
	if _, ok := items[key]; !ok {
		return nil
	}
	next := cloneItems(items)
	delete(next, key)
	if err := b.writeLocked(next); err != nil {
		return err
	}
	delete(b.notified, key)
	return nil
}

func (b *FileBackend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.writeLocked(make(map[string]string)); err != nil {
		return err
	}
	b.notified = make(map[string]string)
	return nil
}

// Watch calls fn with every key whose value changes because another process
// rewrote the file. It returns once the watcher is running; the watcher
// stops when ctx is done.
func (b *FileBackend) Watch(ctx context.Context, fn func(key string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(b.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(b.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				// let the writer finish its rename
				time.Sleep(20 * time.Millisecond)
				for _, key := range b.refresh() {
					fn(key)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("storage watcher error: %v", err)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// refresh reloads the file and returns the keys that differ from what the
// watcher last reported.
func (b *FileBackend) refresh() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	after, err := b.loadLocked()
	if err != nil {
		log.Warnf("storage watcher: reload failed: %v", err)
		return nil
	}
	keys := changedKeys(b.notified, after)
	b.notified = after
	return keys
}

func changedKeys(before, after map[string]string) []string {
	var keys []string
	for k, v := range after {
		if old, ok := before[k]; !ok || old != v {
			keys = append(keys, k)
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			keys = append(keys, k)
		}
	}
	return keys
}

func cloneItems(items map[string]string) map[string]string {
	out := make(map[string]string, len(items)+1)
	for k, v := range items {
		out[k] = v
	}
	return out
}
