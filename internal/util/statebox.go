// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package util provides filesystem helpers shared by the chatdesk client.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// StateDirEnv overrides the state directory root.
	StateDirEnv = "CHATDESK_STATE_DIR"
	// ReadOnlyEnv disables every write into the state directory when set to "1".
	ReadOnlyEnv = "CHATDESK_READONLY"

	defaultStateDir = "~/.chatdesk"
)

// StateBox manages the state directory of the client: persistent storage,
// rotated logs and exported conversations all live below its root.
type StateBox struct {
	rootPath string
	readOnly bool
	mu       sync.RWMutex
}

// NewStateBox creates a StateBox rooted at CHATDESK_STATE_DIR, or ~/.chatdesk
// when the variable is unset. CHATDESK_READONLY=1 switches it to read-only mode.
func NewStateBox() (*StateBox, error) {
	return NewStateBoxAt(os.Getenv(StateDirEnv))
}

// NewStateBoxAt creates a StateBox rooted at dir. An empty dir falls back to
// the default location.
func NewStateBoxAt(dir string) (*StateBox, error) {
	if dir == "" {
		dir = defaultStateDir
	}

	resolvedPath, err := ExpandPath(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve state directory: %w", err)
	}

	return &StateBox{
		rootPath: resolvedPath,
		readOnly: os.Getenv(ReadOnlyEnv) == "1",
	}, nil
}

// RootPath returns the resolved root directory.
func (sb *StateBox) RootPath() string {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.rootPath
}

// IsReadOnly reports whether writes are disabled.
func (sb *StateBox) IsReadOnly() bool {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.readOnly
}

// SetReadOnly toggles read-only mode.
func (sb *StateBox) SetReadOnly(readOnly bool) {
	sb.mu.Lock()
	sb.readOnly = readOnly
	sb.mu.Unlock()
}

// StorageDir returns the directory holding the persistent key/value store.
func (sb *StateBox) StorageDir() string {
	return filepath.Join(sb.RootPath(), "storage")
}

// LogsDir returns the directory for rotated log files.
func (sb *StateBox) LogsDir() string {
	return filepath.Join(sb.RootPath(), "logs")
}

// ExportsDir returns the default destination of exported conversations.
func (sb *StateBox) ExportsDir() string {
	return filepath.Join(sb.RootPath(), "exports")
}

// ResolvePath joins a relative path with the root.
// Absolute and tilde-prefixed paths are returned cleaned and expanded.
func (sb *StateBox) ResolvePath(relativePath string) string {
	if relativePath == "" {
		return sb.RootPath()
	}

	if strings.HasPrefix(relativePath, "~") || filepath.IsAbs(relativePath) {
		cleaned, err := ExpandPath(relativePath)
		if err != nil {
			return filepath.Clean(relativePath)
		}
		return cleaned
	}

	return filepath.Join(sb.RootPath(), relativePath)
}

// EnsureDir creates path with 0700 permissions if it doesn't exist.
func (sb *StateBox) EnsureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("path exists but is not a directory: %s", path)
		}
		return nil
	}

	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat directory %s: %w", path, err)
	}

	if sb != nil && sb.IsReadOnly() {
		return ErrReadOnlyMode
	}

	if err := os.MkdirAll(path, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	return nil
}

// ExpandPath expands a leading tilde to the user's home directory and cleans the result.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Clean(path), nil
}
