// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package session holds the signed-in user's token, profile, roles and
// permissions, and keeps the token and profile mirrored in the persistent
// store.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/traylinx/chatdesk/internal/auth"
	"github.com/traylinx/chatdesk/internal/cache"
	"github.com/traylinx/chatdesk/internal/config"
	"github.com/traylinx/chatdesk/internal/transport"
)

// ErrNotAuthenticated is returned when a token is required but absent.
var ErrNotAuthenticated = errors.New("session: not logged in")

// Credentials are sent to /login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Code     string `json:"code,omitempty"`
	UUID     string `json:"uuid,omitempty"`
}

// State is a copy of the session.
type State struct {
	Token       string
	Name        string
	Avatar      string
	Roles       []string
	Permissions []string
	UserInfo    auth.Profile
}

// InfoResponse is the body of /getInfo.
type InfoResponse struct {
	User        auth.Profile `json:"user"`
	Roles       []string     `json:"roles"`
	Permissions []string     `json:"permissions"`
}

// Options tune a Store.
type Options struct {
	DefaultRole   string
	DefaultAvatar string
}

// Store is the session state container. It is safe for concurrent use.
type Store struct {
	client transport.Doer
	auth   *auth.Helpers
	opts   Options

	mu    sync.RWMutex
	state State
}

// New returns a Store whose token is recovered from the persistent store.
func New(client transport.Doer, helpers *auth.Helpers, opts Options) *Store {
	if opts.DefaultRole == "" {
		opts.DefaultRole = config.DefaultRole
	}
	s := &Store{client: client, auth: helpers, opts: opts}
	s.state.Token = helpers.GetToken()
	if p := helpers.GetUserInfo(); p != nil {
		s.state.UserInfo = p
		s.state.Name = p.DisplayName()
	}
	return s
}

// SetClient attaches the request layer after construction; the transport
// itself needs the store's token source, so one of them is built first.
func (s *Store) SetClient(client transport.Doer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = client
}

func (s *Store) doer() (transport.Doer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, errors.New("session: no request client configured")
	}
	return s.client, nil
}

// Login exchanges credentials for a token. On failure the state is left
// untouched and the error is returned.
func (s *Store) Login(ctx context.Context, creds Credentials) error {
	client, err := s.doer()
	if err != nil {
		return err
	}
	creds.Username = strings.TrimSpace(creds.Username)

	resp, err := client.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   "/login",
		Data:   creds,
		NoAuth: true,
	})
	if err != nil {
		return err
	}

	body := resp.JSON()
	token := body.Get("token").String()
	if token == "" {
		token = body.Get("data.token").String()
	}
	if token == "" {
		return fmt.Errorf("session: login response carried no token")
	}

	s.SetToken(token)
	log.Infof("logged in as %s", creds.Username)
	return nil
}

// GetInfo loads the profile, roles and permissions. When the response has
// no roles the default role is assigned and permissions are kept as they
// were. A failed request leaves the state untouched. Without a token it
// returns ErrNotAuthenticated and sends nothing.
func (s *Store) GetInfo(ctx context.Context) (*InfoResponse, error) {
	if s.Token() == "" {
		return nil, ErrNotAuthenticated
	}
	client, err := s.doer()
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(ctx, &transport.Request{Method: http.MethodGet, Path: "/getInfo"})
	if err != nil {
		return nil, err
	}

	var info InfoResponse
	if err := json.Unmarshal(resp.Body, &info); err != nil {
		return nil, fmt.Errorf("session: decode getInfo: %w", err)
	}

	avatar := info.User.Avatar()
	if avatar == "" {
		avatar = s.opts.DefaultAvatar
	}

	s.mu.Lock()
	if len(info.Roles) > 0 {
		s.state.Roles = slices.Clone(info.Roles)
		s.state.Permissions = slices.Clone(info.Permissions)
	} else {
		s.state.Roles = []string{s.opts.DefaultRole}
	}
	s.state.Name = info.User.UserName()
	s.state.Avatar = avatar
	s.state.UserInfo = info.User
	s.mu.Unlock()

	s.auth.SetUserInfo(info.User)
	return &info, nil
}

// LogOut ends the session on the server and locally. Local state and the
// persisted entries are cleared even when the server call fails; that
// failure is returned afterwards.
func (s *Store) LogOut(ctx context.Context) error {
	var remoteErr error
	if client, err := s.doer(); err != nil {
		remoteErr = err
	} else {
		_, remoteErr = client.Do(ctx, &transport.Request{Method: http.MethodPost, Path: "/logout"})
	}

	s.clearLocal()
	if remoteErr != nil {
		log.Warnf("remote logout failed, local session cleared: %v", remoteErr)
	}
	return remoteErr
}

// FedLogOut clears the session without contacting the server.
func (s *Store) FedLogOut() {
	s.clearLocal()
}

func (s *Store) clearLocal() {
	s.ResetState()
	s.auth.RemoveToken()
	s.auth.RemoveUserInfo()
}

// SetToken replaces the token in memory and in the persistent store.
func (s *Store) SetToken(token string) {
	s.mu.Lock()
	s.state.Token = token
	s.mu.Unlock()
	s.auth.SetToken(token)
}

// SetUserInfo replaces the profile; the name becomes userName or name.
func (s *Store) SetUserInfo(p auth.Profile) {
	s.mu.Lock()
	s.state.UserInfo = p
	s.state.Name = p.DisplayName()
	s.mu.Unlock()
	s.auth.SetUserInfo(p)
}

func (s *Store) SetRoles(roles []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Roles = slices.Clone(roles)
}

func (s *Store) SetPermissions(permissions []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Permissions = slices.Clone(permissions)
}

// ResetState empties the in-memory state only.
func (s *Store) ResetState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	st.Roles = slices.Clone(s.state.Roles)
	st.Permissions = slices.Clone(s.state.Permissions)
	return st
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Token
}

func (s *Store) IsLoggedIn() bool {
	return s.Token() != ""
}

func (s *Store) HasRole(role string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.state.Roles, role)
}

func (s *Store) HasPermission(permission string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.state.Permissions, permission)
}

// TokenSource exposes the session token to the request layer.
func (s *Store) TokenSource() oauth2.TokenSource {
	return tokenSource{s}
}

type tokenSource struct{ s *Store }

func (ts tokenSource) Token() (*oauth2.Token, error) {
	tok := ts.s.Token()
	if tok == "" {
		return nil, ErrNotAuthenticated
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer"}, nil
}

// Sync mirrors changes that other processes make to the persisted token
// and profile into this store until ctx is done.
func (s *Store) Sync(ctx context.Context, w cache.Watcher) error {
	if w == nil {
		return nil
	}
	return w.Watch(ctx, func(key string) {
		switch key {
		case auth.TokenKey:
			token := s.auth.GetToken()
			if token == "" {
				log.Info("session ended by another process")
				s.ResetState()
				return
			}
			s.mu.Lock()
			s.state.Token = token
			s.mu.Unlock()
		case auth.UserInfoKey:
			p := s.auth.GetUserInfo()
			s.mu.Lock()
			s.state.UserInfo = p
			s.state.Name = p.DisplayName()
			s.mu.Unlock()
		}
	})
}
