// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewStateBox_DefaultPath(t *testing.T) {
	t.Setenv(StateDirEnv, "")
	t.Setenv(ReadOnlyEnv, "")

	sb, err := NewStateBox()
	if err != nil {
		t.Fatalf("NewStateBox() failed: %v", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("Failed to get home directory: %v", err)
	}
	expected := filepath.Join(home, ".chatdesk")

	if sb.RootPath() != expected {
		t.Errorf("Expected root path %s, got %s", expected, sb.RootPath())
	}
	if sb.IsReadOnly() {
		t.Error("Expected read-only to be false by default")
	}
}

func TestNewStateBox_EnvVarOverride(t *testing.T) {
	customDir := filepath.Join(t.TempDir(), "custom-state")
	t.Setenv(StateDirEnv, customDir)

	sb, err := NewStateBox()
	if err != nil {
		t.Fatalf("NewStateBox() failed: %v", err)
	}

	if sb.RootPath() != customDir {
		t.Errorf("Expected root path %s, got %s", customDir, sb.RootPath())
	}
	if sb.StorageDir() != filepath.Join(customDir, "storage") {
		t.Errorf("unexpected storage dir %s", sb.StorageDir())
	}
}

func TestNewStateBox_TildeExpansion(t *testing.T) {
	t.Setenv(StateDirEnv, "~/my-state")

	sb, err := NewStateBox()
	if err != nil {
		t.Fatalf("NewStateBox() failed: %v", err)
	}

	home, _ := os.UserHomeDir()
	if sb.RootPath() != filepath.Join(home, "my-state") {
		t.Errorf("tilde not expanded: %s", sb.RootPath())
	}
}

func TestStateBox_ResolvePath(t *testing.T) {
	root := t.TempDir()
	sb, err := NewStateBoxAt(root)
	if err != nil {
		t.Fatalf("NewStateBoxAt() failed: %v", err)
	}

	if got := sb.ResolvePath("exports/a.json"); got != filepath.Join(root, "exports", "a.json") {
		t.Errorf("relative path resolved to %s", got)
	}
	if got := sb.ResolvePath("/var/tmp/x"); got != "/var/tmp/x" {
		t.Errorf("absolute path resolved to %s", got)
	}
	if got := sb.ResolvePath(""); got != root {
		t.Errorf("empty path resolved to %s", got)
	}
}

func TestStateBox_EnsureDir(t *testing.T) {
	sb, _ := NewStateBoxAt(t.TempDir())

	dir := filepath.Join(sb.RootPath(), "a", "b")
	if err := sb.EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir() failed: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}

	file := filepath.Join(sb.RootPath(), "file")
	if err := os.WriteFile(file, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := sb.EnsureDir(file); err == nil {
		t.Error("expected an error for a regular file")
	}

	sb.SetReadOnly(true)
	if err := sb.EnsureDir(filepath.Join(sb.RootPath(), "c")); err != ErrReadOnlyMode {
		t.Errorf("expected ErrReadOnlyMode, got %v", err)
	}
}
