package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/chatdesk/internal/auth"
	"github.com/traylinx/chatdesk/internal/cache"
	"github.com/traylinx/chatdesk/internal/config"
	"github.com/traylinx/chatdesk/internal/transport"
	"github.com/traylinx/chatdesk/internal/util"
)

type fakeDoer struct {
	requests []*transport.Request
	respond  func(r *transport.Request) (*transport.Response, error)
}

func (f *fakeDoer) Do(_ context.Context, r *transport.Request) (*transport.Response, error) {
	f.requests = append(f.requests, r)
	return f.respond(r)
}

func jsonResponse(body string) *transport.Response {
	return &transport.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte(body)}
}

func newStore(doer transport.Doer) (*Store, *cache.MapBackend) {
	backend := cache.NewMapBackend()
	return New(doer, auth.New(backend), Options{DefaultAvatar: "/img/profile.jpg"}), backend
}

func TestStore_LoginStoresToken(t *testing.T) {
	doer := &fakeDoer{respond: func(r *transport.Request) (*transport.Response, error) {
		return jsonResponse(`{"code":200,"msg":"ok","token":"tok-1"}`), nil
	}}
	s, backend := newStore(doer)

	err := s.Login(context.Background(), Credentials{Username: "  admin ", Password: "admin123", Code: "7", UUID: "u-1"})
	require.NoError(t, err)

	require.Len(t, doer.requests, 1)
	req := doer.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/login", req.Path)
	assert.True(t, req.NoAuth)
	assert.Equal(t, "admin", req.Data.(Credentials).Username)

	assert.True(t, s.IsLoggedIn())
	assert.Equal(t, "tok-1", s.Token())
	v, ok, _ := backend.GetItem(auth.TokenKey)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", v)
}

func TestStore_LoginFailureLeavesState(t *testing.T) {
	doer := &fakeDoer{respond: func(r *transport.Request) (*transport.Response, error) {
		return nil, &transport.APIError{StatusCode: 200, Code: 500, Message: "bad captcha"}
	}}
	s, _ := newStore(doer)

	err := s.Login(context.Background(), Credentials{Username: "admin"})
	var apiErr *transport.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.False(t, s.IsLoggedIn())
}

func TestStore_LoginWithoutToken(t *testing.T) {
	doer := &fakeDoer{respond: func(r *transport.Request) (*transport.Response, error) {
		return jsonResponse(`{"code":200}`), nil
	}}
	s, _ := newStore(doer)
	assert.Error(t, s.Login(context.Background(), Credentials{Username: "admin"}))
	assert.False(t, s.IsLoggedIn())
}

func TestStore_GetInfoDefaultRole(t *testing.T) {
	doer := &fakeDoer{respond: func(r *transport.Request) (*transport.Response, error) {
		return jsonResponse(`{"code":200,"user":{"userName":"guest","avatar":""},"roles":[],"permissions":["chat:read"]}`), nil
	}}
	s, backend := newStore(doer)
	s.SetToken("tok-1")
	s.SetPermissions([]string{"existing"})

	info, err := s.GetInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "guest", info.User.UserName())

	st := s.Snapshot()
	assert.Equal(t, []string{config.DefaultRole}, st.Roles)
	assert.Equal(t, []string{"existing"}, st.Permissions)
	assert.Equal(t, "guest", st.Name)
	assert.Equal(t, "/img/profile.jpg", st.Avatar)
	assert.True(t, s.HasRole("ROLE_DEFAULT"))

	_, ok, _ := backend.GetItem(auth.UserInfoKey)
	assert.True(t, ok, "profile is mirrored")
}

func TestStore_GetInfoWithRoles(t *testing.T) {
	doer := &fakeDoer{respond: func(r *transport.Request) (*transport.Response, error) {
		return jsonResponse(`{"code":200,"user":{"userName":"admin","avatar":"/a.png"},"roles":["admin"],"permissions":["*:*:*"]}`), nil
	}}
	s, _ := newStore(doer)
	s.SetToken("tok-1")

	_, err := s.GetInfo(context.Background())
	require.NoError(t, err)
	st := s.Snapshot()
	assert.Equal(t, []string{"admin"}, st.Roles)
	assert.Equal(t, []string{"*:*:*"}, st.Permissions)
	assert.Equal(t, "/a.png", st.Avatar)
	assert.True(t, s.HasPermission("*:*:*"))
	assert.False(t, s.HasRole("ROLE_DEFAULT"))
}

func TestStore_GetInfoFailureLeavesState(t *testing.T) {
	doer := &fakeDoer{respond: func(r *transport.Request) (*transport.Response, error) {
		return nil, errors.New("connection refused")
	}}
	s, _ := newStore(doer)
	s.SetToken("tok-1")
	s.SetRoles([]string{"editor"})

	_, err := s.GetInfo(context.Background())
	assert.Error(t, err)
	assert.Equal(t, []string{"editor"}, s.Snapshot().Roles)
}

func TestStore_GetInfoWithoutToken(t *testing.T) {
	doer := &fakeDoer{respond: func(r *transport.Request) (*transport.Response, error) {
		return jsonResponse(`{"code":200,"user":{"userName":"guest"},"roles":[]}`), nil
	}}
	s, backend := newStore(doer)

	_, err := s.GetInfo(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Empty(t, doer.requests, "nothing is sent without a token")
	assert.Empty(t, s.Snapshot().Roles)
	assert.False(t, s.HasRole(config.DefaultRole))
	_, ok, _ := backend.GetItem(auth.UserInfoKey)
	assert.False(t, ok)
}

func TestStore_LogOutClearsLocalStateEvenWhenRemoteFails(t *testing.T) {
	doer := &fakeDoer{respond: func(r *transport.Request) (*transport.Response, error) {
		return nil, errors.New("gateway unreachable")
	}}
	s, backend := newStore(doer)
	s.SetToken("abc")
	s.SetUserInfo(auth.Profile(`{"userName":"admin"}`))
	s.SetRoles([]string{"admin"})

	err := s.LogOut(context.Background())
	assert.EqualError(t, err, "gateway unreachable")

	assert.Equal(t, "", s.Token())
	assert.False(t, s.IsLoggedIn())
	assert.Empty(t, s.Snapshot().Roles)
	_, ok, _ := backend.GetItem(auth.TokenKey)
	assert.False(t, ok)
	_, ok, _ = backend.GetItem(auth.UserInfoKey)
	assert.False(t, ok)

	require.Len(t, doer.requests, 1)
	assert.Equal(t, "/logout", doer.requests[0].Path)
}

func TestStore_LogOutSuccess(t *testing.T) {
	doer := &fakeDoer{respond: func(r *transport.Request) (*transport.Response, error) {
		return jsonResponse(`{"code":200}`), nil
	}}
	s, _ := newStore(doer)
	s.SetToken("abc")

	require.NoError(t, s.LogOut(context.Background()))
	assert.False(t, s.IsLoggedIn())
}

func TestStore_FedLogOutIsLocal(t *testing.T) {
	doer := &fakeDoer{respond: func(r *transport.Request) (*transport.Response, error) {
		t.Fatal("FedLogOut must not call the gateway")
		return nil, nil
	}}
	s, backend := newStore(doer)
	s.SetToken("abc")

	s.FedLogOut()
	assert.False(t, s.IsLoggedIn())
	_, ok, _ := backend.GetItem(auth.TokenKey)
	assert.False(t, ok)
}

func TestStore_SetUserInfoNameFallback(t *testing.T) {
	s, _ := newStore(nil)
	s.SetUserInfo(auth.Profile(`{"name":"Operator"}`))
	assert.Equal(t, "Operator", s.Snapshot().Name)

	s.SetUserInfo(auth.Profile(`{"userName":"op","name":"Operator"}`))
	assert.Equal(t, "op", s.Snapshot().Name)
}

func TestStore_RecoversTokenFromStorage(t *testing.T) {
	backend := cache.NewMapBackend()
	helpers := auth.New(backend)
	helpers.SetToken("persisted")
	helpers.SetUserInfo(auth.Profile(`{"userName":"admin"}`))

	s := New(nil, helpers, Options{})
	assert.Equal(t, "persisted", s.Token())
	assert.Equal(t, "admin", s.Snapshot().Name)

	_, err := s.GetInfo(context.Background())
	assert.Error(t, err, "no client configured")
}

func TestStore_TokenSource(t *testing.T) {
	s, _ := newStore(nil)
	_, err := s.TokenSource().Token()
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	s.SetToken("abc")
	tok, err := s.TokenSource().Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.AccessToken)
	assert.True(t, tok.Valid())
}

func TestStore_AgainstGateway(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/login", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": 200, "token": "gw-token"})
	})
	r.GET("/api/getInfo", func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer gw-token" {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "no token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 200, "user": gin.H{"userName": "admin"}, "roles": []string{"admin"}, "permissions": []string{"*:*:*"}})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	cfg := config.Default()
	cfg.BaseURL = srv.URL + "/api"

	s, _ := newStore(nil)
	client, err := transport.New(cfg, transport.WithTokenSource(s.TokenSource()))
	require.NoError(t, err)
	s.SetClient(client)

	require.NoError(t, s.Login(context.Background(), Credentials{Username: "admin", Password: "x"}))
	_, err = s.GetInfo(context.Background())
	require.NoError(t, err)
	assert.True(t, s.HasRole("admin"))
}

func TestStore_SyncFollowsOtherProcesses(t *testing.T) {
	sb, err := util.NewStateBoxAt(t.TempDir())
	require.NoError(t, err)
	path := filepath.Join(sb.StorageDir(), "local.json")

	mine, err := cache.OpenFileBackend(sb, path)
	require.NoError(t, err)
	theirs, err := cache.OpenFileBackend(sb, path)
	require.NoError(t, err)

	s := New(nil, auth.New(mine), Options{})
	s.SetToken("mine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Sync(ctx, mine))

	auth.New(theirs).SetToken("theirs")
	assert.Eventually(t, func() bool { return s.Token() == "theirs" }, 3*time.Second, 20*time.Millisecond)

	auth.New(theirs).RemoveToken()
	assert.Eventually(t, func() bool { return !s.IsLoggedIn() }, 3*time.Second, 20*time.Millisecond)
}
