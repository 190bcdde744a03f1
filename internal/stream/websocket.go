package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/traylinx/chatdesk/internal/transport"
)

// WebSocketDialer opens the stream over a websocket. Each text frame is
// one event; a JSON frame {"event": name, "data": ...} is a named event.
type WebSocketDialer struct {
	Client *transport.Client
	Path   string
}

func (d *WebSocketDialer) Dial(ctx context.Context, query url.Values) (Channel, error) {
	u, err := url.Parse(d.Client.URL(d.Path, query))
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	proxy, err := transport.ProxyFunc(d.Client.ProxyURL())
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{
		Proxy:            proxy,
		HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
	}

	// reuse the request layer for headers and the bearer token
	probe, _ := http.NewRequest(http.MethodGet, u.String(), nil)
	d.Client.ApplyHeaders(probe)
	d.Client.Authorize(probe)

	conn, resp, err := dialer.DialContext(ctx, u.String(), probe.Header)
	if err != nil {
		if resp != nil {
			return nil, &transport.APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("websocket handshake: %v", err)}
		}
		return nil, fmt.Errorf("stream: connect: %w", err)
	}

	ch := &wsChannel{conn: conn}
	if resp != nil {
		ch.taskID = resp.Header.Get("X-Task-ID")
	}
	ch.stop = context.AfterFunc(ctx, func() { _ = ch.Close() })
	return ch, nil
}

type wsChannel struct {
	conn   *websocket.Conn
	taskID string
	stop   func() bool

	closeOnce sync.Once
}

func (c *wsChannel) TaskID() string { return c.taskID }

func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.stop != nil {
			c.stop()
		}
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = c.conn.Close()
	})
	return err
}

func (c *wsChannel) Next(ctx context.Context) (Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
				return Event{}, ErrStreamClosed
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Event{}, ctxErr
			}
			return Event{}, err
		}
		if mt != websocket.TextMessage {
			continue
		}
		return frameEvent(data), nil
	}
}

// frameEvent maps a text frame onto an Event.
func frameEvent(data []byte) Event {
	if gjson.ValidBytes(data) {
		root := gjson.ParseBytes(data)
		name := root.Get("event")
		if root.IsObject() && name.Type == gjson.String {
			ev := Event{Name: name.String(), ID: root.Get("id").String()}
			payload := root.Get("data")
			if payload.Type == gjson.String {
				ev.Data = payload.String()
			} else {
				ev.Data = strings.TrimSpace(payload.Raw)
			}
			return ev
		}
	}
	return Event{Data: string(data)}
}
