package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gateway struct {
	mu         sync.Mutex
	logoutFail bool
	config     []byte
	streamArgs map[string]string
	// frames, when set, replace the default reply with plain data frames
	frames []string
}

func newTestGateway(t *testing.T) (*gateway, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	g := &gateway{config: []byte(`{"ui":{"theme":"light"}}`)}
	authed := func(c *gin.Context) bool {
		if c.GetHeader("Authorization") != "Bearer tok-1" {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "unauthorized"})
			return false
		}
		return true
	}

	r := gin.New()
	r.POST("/api/login", func(c *gin.Context) {
		var body map[string]string
		_ = c.BindJSON(&body)
		if body["password"] != "secret" {
			c.JSON(http.StatusOK, gin.H{"code": 500, "msg": "bad credentials"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 200, "token": "tok-1"})
	})
	r.GET("/api/getInfo", func(c *gin.Context) {
		if !authed(c) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 200, "user": gin.H{"userName": "alice"}, "roles": []string{"admin"}, "permissions": []string{"*:*:*"}})
	})
	r.POST("/api/logout", func(c *gin.Context) {
		g.mu.Lock()
		fail := g.logoutFail
		g.mu.Unlock()
		if fail {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 200})
	})
	r.GET("/api/chat/conversations/list", func(c *gin.Context) {
		if !authed(c) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 200, "data": gin.H{"total": 2, "items": []gin.H{
			{"id": "c1", "title": "first", "message_count": 3},
			{"id": "c2", "title": "second", "message_count": 12},
		}}})
	})
	r.GET("/api/chat/messages/stream", func(c *gin.Context) {
		if !authed(c) {
			return
		}
		g.mu.Lock()
		g.streamArgs = map[string]string{"chat_id": c.Query("chat_id"), "content": c.Query("content")}
		frames := g.frames
		g.mu.Unlock()
		c.Header("X-Task-ID", "task-9")
		if frames != nil {
			c.Header("Content-Type", "text/event-stream")
			c.Status(http.StatusOK)
			for _, f := range frames {
				_, _ = c.Writer.WriteString("data: " + f + "\n\n")
				c.Writer.Flush()
			}
			return
		}
		c.SSEvent("message", `{"type":"chunk","content":"Hel"}`)
		c.SSEvent("message", `{"type":"chunk","content":"lo"}`)
		c.SSEvent("complete", `{"type":"complete"}`)
	})
	r.POST("/api/chat/export", func(c *gin.Context) {
		if !authed(c) {
			return
		}
		c.Header("Content-Disposition", `attachment; filename="chat_first.md"`)
		c.Data(http.StatusOK, "text/markdown", []byte("# first\n"))
	})
	r.GET("/api/chat/config", func(c *gin.Context) {
		if !authed(c) {
			return
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		c.Data(http.StatusOK, "application/json", []byte(`{"code":200,"data":`+string(g.config)+`}`))
	})
	r.PUT("/api/chat/config", func(c *gin.Context) {
		if !authed(c) {
			return
		}
		body, _ := io.ReadAll(c.Request.Body)
		g.mu.Lock()
		g.config = body
		g.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"code": 200})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Setenv("CHATDESK_STATE_DIR", t.TempDir())
	t.Setenv("CHATDESK_CONFIG", "")
	return g, srv.URL + "/api"
}

func runCLI(t *testing.T, baseURL string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"-base-url", baseURL}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLI_LoginWhoamiLogout(t *testing.T) {
	g, base := newTestGateway(t)

	code, _, stderr := runCLI(t, base, "login", "-u", "alice", "-p", "wrong")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "bad credentials")

	code, out, stderr := runCLI(t, base, "login", "-u", " alice ", "-p", "secret")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Logged in as alice (admin)\n", out)

	// a fresh process recovers the session from storage
	code, out, stderr = runCLI(t, base, "whoami", "-o", "json")
	require.Equal(t, 0, code, stderr)
	var who map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &who))
	assert.Equal(t, "alice", who["name"])
	assert.Equal(t, []any{"admin"}, who["roles"])

	g.mu.Lock()
	g.logoutFail = true
	g.mu.Unlock()
	code, out, stderr = runCLI(t, base, "logout")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Logged out.")
	assert.Contains(t, stderr, "local session cleared")

	code, _, stderr = runCLI(t, base, "whoami")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not logged in")
}

func login(t *testing.T, base string) {
	t.Helper()
	code, _, stderr := runCLI(t, base, "login", "-u", "alice", "-p", "secret")
	require.Equal(t, 0, code, stderr)
}

func TestCLI_ChatsListFormats(t *testing.T) {
	_, base := newTestGateway(t)
	login(t, base)

	code, out, stderr := runCLI(t, base, "chats", "-o", "json", "-where", "message_count > 5")
	require.Equal(t, 0, code, stderr)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "c2", rows[0]["id"])

	code, out, stderr = runCLI(t, base, "chats", "list")
	require.Equal(t, 0, code, stderr)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "first")

	code, out, stderr = runCLI(t, base, "chats", "-o", "yaml")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "title: second")

	code, _, stderr = runCLI(t, base, "chats", "-where", "title ==")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid --where")
}

func TestCLI_SendStreams(t *testing.T) {
	g, base := newTestGateway(t)
	login(t, base)

	code, out, stderr := runCLI(t, base, "send", "-chat", "c1", "hello", "there")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Hello\n", out)
	g.mu.Lock()
	assert.Equal(t, map[string]string{"chat_id": "c1", "content": "hello there"}, g.streamArgs)
	g.mu.Unlock()

	code, _, stderr = runCLI(t, base, "send", "hello")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "missing -chat")
}

func TestCLI_SendEndsOnCompleteDataFrame(t *testing.T) {
	g, base := newTestGateway(t)
	login(t, base)
	g.mu.Lock()
	g.frames = []string{
		`{"type":"chunk","content":"Hi"}`,
		`{"type":"complete","message_id":"m1"}`,
	}
	g.mu.Unlock()

	code, out, stderr := runCLI(t, base, "send", "-chat", "c1", "hello")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Hi\n", out)
}

func TestCLI_SendReportsGatewayError(t *testing.T) {
	g, base := newTestGateway(t)
	login(t, base)
	g.mu.Lock()
	g.frames = []string{
		`{"type":"chunk","content":"Hi"}`,
		`{"type":"error","message":"model overloaded"}`,
	}
	g.mu.Unlock()

	code, _, stderr := runCLI(t, base, "send", "-chat", "c1", "hello")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "gateway: model overloaded")

	g.mu.Lock()
	g.frames = []string{`{"type":"error","error":"legacy failure"}`}
	g.mu.Unlock()

	code, _, stderr = runCLI(t, base, "send", "-chat", "c1", "hello")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "gateway: legacy failure")
}

func TestCLI_Export(t *testing.T) {
	_, base := newTestGateway(t)
	login(t, base)

	var opened string
	orig := openFile
	openFile = func(p string) error { opened = p; return nil }
	t.Cleanup(func() { openFile = orig })

	code, out, stderr := runCLI(t, base, "export", "-format", "markdown", "-open", "c1")
	require.Equal(t, 0, code, stderr)
	want := filepath.Join(os.Getenv("CHATDESK_STATE_DIR"), "exports", "chat_first.md")
	assert.Contains(t, out, want)
	assert.Equal(t, want, opened)

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "# first\n", string(data))
}

func TestCLI_ConfigGetSet(t *testing.T) {
	g, base := newTestGateway(t)
	login(t, base)

	code, _, stderr := runCLI(t, base, "config", "set", "ui.theme", "dark")
	require.Equal(t, 0, code, stderr)
	code, _, stderr = runCLI(t, base, "config", "set", "limits.max", "42")
	require.Equal(t, 0, code, stderr)

	g.mu.Lock()
	assert.JSONEq(t, `{"ui":{"theme":"dark"},"limits":{"max":42}}`, string(g.config))
	g.mu.Unlock()

	code, out, stderr := runCLI(t, base, "config", "get", "-o", "json", "ui.theme")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "\"dark\"\n", out)

	code, _, _ = runCLI(t, base, "config", "get", "nope")
	assert.Equal(t, 1, code)
}

func TestCLI_StatusAndVersion(t *testing.T) {
	_, base := newTestGateway(t)
	login(t, base)

	code, out, stderr := runCLI(t, base, "status", "-o", "json")
	require.Equal(t, 0, code, stderr)
	var status map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, true, status["logged_in"])
	assert.Equal(t, "alice", status["user"])
	assert.NotContains(t, out, "tok-1")

	code, out, _ = runCLI(t, base, "version")
	assert.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(out, "chatdesk "))

	code, _, stderr = runCLI(t, base, "bogus")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "unknown command")
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, float64(42), parseValue("42"))
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, "dark", parseValue("dark"))
	assert.Equal(t, map[string]any{"a": float64(1)}, parseValue(`{"a":1}`))
}
