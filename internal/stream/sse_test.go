package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/traylinx/chatdesk/internal/config"
	"github.com/traylinx/chatdesk/internal/transport"
)

func newTransport(t *testing.T, baseURL string) *transport.Client {
	t.Helper()
	cfg := config.Default()
	cfg.BaseURL = baseURL + "/api"
	tc, err := transport.New(cfg, transport.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"})))
	require.NoError(t, err)
	return tc
}

func TestSSEChannel_Parsing(t *testing.T) {
	raw := strings.Join([]string{
		": keepalive",
		"id: 1",
		"data: {\"type\":\"chunk\",",
		"data:\"content\":\"hi\"}",
		"",
		"event:complete",
		"data:{}",
		"",
		"data: partial",
	}, "\r\n")
	ch := newSSEChannel(io.NopCloser(strings.NewReader(raw)), "t-1")
	ctx := context.Background()

	ev, err := ch.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, Event{ID: "1", Data: "{\"type\":\"chunk\",\n\"content\":\"hi\"}"}, ev)

	ev, err = ch.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "complete", ev.Name)
	assert.Equal(t, "{}", ev.Data)

	_, err = ch.Next(ctx)
	assert.ErrorIs(t, err, ErrStreamClosed)
	assert.NoError(t, ch.Close())
	assert.NoError(t, ch.Close())
}

func TestSSEDialer_EndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	disconnected := make(chan struct{})
	var gotQuery url.Values
	var gotAuth, gotAccept string

	r := gin.New()
	r.GET("/api/chat/messages/stream", func(c *gin.Context) {
		gotQuery = c.Request.URL.Query()
		gotAuth = c.GetHeader("Authorization")
		gotAccept = c.GetHeader("Accept")
		c.Header("X-Task-ID", "task-42")
		c.SSEvent("message", `{"type":"user_message","content":"hello"}`)
		c.Writer.Flush()
		c.SSEvent("message", `not-json`)
		c.Writer.Flush()
		c.SSEvent("complete", `{}`)
		c.Writer.Flush()
		select {
		case <-c.Request.Context().Done():
			close(disconnected)
		case <-time.After(3 * time.Second):
		}
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := NewClient(&SSEDialer{Client: newTransport(t, srv.URL), Path: "/chat/messages/stream"})
	rec := &recorder{}
	h, p := c.Send(context.Background(), url.Values{"chat_id": {"c-1"}, "content": {"hello"}}, rec.callbacks())

	assert.NoError(t, waitSettled(t, p))
	assert.Equal(t, []string{"message", "error", "complete"}, rec.snapshot())
	assert.Equal(t, "c-1", gotQuery.Get("chat_id"))
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "text/event-stream", gotAccept)
	assert.Equal(t, "task-42", h.TaskID())

	select {
	case <-disconnected:
	case <-time.After(3 * time.Second):
		t.Fatal("channel was not closed after the complete event")
	}
}

func TestSSEDialer_PrematureEOFAndHTTPError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/eof", func(c *gin.Context) {
		c.SSEvent("message", `{"type":"chunk"}`)
	})
	r.GET("/api/denied", func(c *gin.Context) {
		c.String(http.StatusUnauthorized, "token expired")
	})
	srv := httptest.NewServer(r)
	defer srv.Close()
	tc := newTransport(t, srv.URL)

	rec := &recorder{}
	_, p := NewClient(&SSEDialer{Client: tc, Path: "/eof"}).Send(context.Background(), nil, rec.callbacks())
	assert.ErrorIs(t, waitSettled(t, p), ErrStreamClosed)
	assert.Equal(t, []string{"message", "error"}, rec.snapshot())

	rec = &recorder{}
	_, p = NewClient(&SSEDialer{Client: tc, Path: "/denied"}).Send(context.Background(), nil, rec.callbacks())
	err := waitSettled(t, p)
	var apiErr *transport.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, []string{"error"}, rec.snapshot())
}

func TestSSEDialer_CancelClosesConnection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	disconnected := make(chan struct{})
	r := gin.New()
	r.GET("/api/chat/messages/stream", func(c *gin.Context) {
		tick := time.NewTicker(5 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-c.Request.Context().Done():
				close(disconnected)
				return
			case <-tick.C:
				c.SSEvent("message", `{"type":"chunk","content":"x"}`)
				c.Writer.Flush()
			}
		}
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	rec := &recorder{}
	h, p := NewClient(&SSEDialer{Client: newTransport(t, srv.URL), Path: "/chat/messages/stream"}).
		Send(context.Background(), nil, rec.callbacks())
	assert.Eventually(t, func() bool { return len(rec.snapshot()) >= 3 }, 3*time.Second, 5*time.Millisecond)

	h.Cancel()
	seen := len(rec.snapshot())
	assert.ErrorIs(t, waitSettled(t, p), ErrCanceled)

	select {
	case <-disconnected:
	case <-time.After(3 * time.Second):
		t.Fatal("server did not observe the disconnect")
	}
	assert.Len(t, rec.snapshot(), seen)
}

func TestWebSocketDialer_SameSequenceAsSSE(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, http.Header{"X-Task-ID": {"ws-task"}})
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"chunk","content":"hi"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"complete","data":{}}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	c := FromConfig(config.StreamConfig{
		Transport:     config.StreamTransportWebSocket,
		Path:          "/chat/messages/stream",
		CompleteEvent: "complete",
	}, newTransport(t, srv.URL))

	rec := &recorder{}
	h, p := c.Send(context.Background(), url.Values{"chat_id": {"c-1"}}, rec.callbacks())
	assert.NoError(t, waitSettled(t, p))
	assert.Equal(t, []string{"message", "error", "complete"}, rec.snapshot())
	assert.Equal(t, "ws-task", h.TaskID())
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestFrameEvent(t *testing.T) {
	assert.Equal(t, Event{Data: `{"type":"chunk"}`}, frameEvent([]byte(`{"type":"chunk"}`)))
	assert.Equal(t, Event{Name: "complete", Data: "done"}, frameEvent([]byte(`{"event":"complete","data":"done"}`)))
	assert.Equal(t, Event{Data: "plain"}, frameEvent([]byte("plain")))
}
