// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package auth reads and writes the persisted token and user profile.
package auth

import (
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/chatdesk/internal/cache"
)

// Keys of the persisted entries.
const (
	TokenKey    = "Admin-Token"
	UserInfoKey = "userInfo"
)

// Helpers are accessors over the persistent store. They talk to the
// backend directly rather than through the cache facade.
type Helpers struct {
	store cache.Backend
}

// New returns Helpers backed by store. A nil store behaves as empty.
func New(store cache.Backend) *Helpers {
	return &Helpers{store: store}
}

func (h *Helpers) get(key string) (string, bool) {
	if h == nil || h.store == nil {
		return "", false
	}
	v, ok, err := h.store.GetItem(key)
	if err != nil {
		log.Warnf("auth: failed to read %s: %v", key, err)
		return "", false
	}
	return v, ok
}

func (h *Helpers) set(key, value string) {
	if h == nil || h.store == nil {
		return
	}
	if err := h.store.SetItem(key, value); err != nil {
		log.Warnf("auth: failed to write %s: %v", key, err)
	}
}

func (h *Helpers) remove(key string) {
	if h == nil || h.store == nil {
		return
	}
	if err := h.store.RemoveItem(key); err != nil {
		log.Warnf("auth: failed to remove %s: %v", key, err)
	}
}

// GetToken returns the persisted token, or "" when there is none.
func (h *Helpers) GetToken() string {
	v, _ := h.get(TokenKey)
	return v
}

func (h *Helpers) SetToken(token string) { h.set(TokenKey, token) }
func (h *Helpers) RemoveToken()          { h.remove(TokenKey) }

// GetUserInfo returns the persisted profile, or nil when it is absent or
// not a JSON object.
func (h *Helpers) GetUserInfo() Profile {
	v, ok := h.get(UserInfoKey)
	if !ok {
		return nil
	}
	p := Profile(v)
	if !p.Valid() {
		return nil
	}
	return p
}

// SetUserInfo persists p. An empty profile is ignored.
func (h *Helpers) SetUserInfo(p Profile) {
	if len(p) == 0 {
		return
	}
	h.set(UserInfoKey, string(p))
}

func (h *Helpers) RemoveUserInfo() { h.remove(UserInfoKey) }

// IsLoggedIn reports whether a token is persisted.
func (h *Helpers) IsLoggedIn() bool {
	return h.GetToken() != ""
}

// ClearAuth removes the token and the profile.
func (h *Helpers) ClearAuth() {
	h.RemoveToken()
	h.RemoveUserInfo()
}
