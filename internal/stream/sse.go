package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/chatdesk/internal/transport"
)

// SSEDialer opens text/event-stream channels with a GET request.
type SSEDialer struct {
	Client *transport.Client
	// Path below the base URL, e.g. /chat/messages/stream.
	Path string
}

func (d *SSEDialer) Dial(ctx context.Context, query url.Values) (Channel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.Client.URL(d.Path, query), nil)
	if err != nil {
		return nil, fmt.Errorf("stream: create request: %w", err)
	}
	d.Client.ApplyHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	d.Client.Authorize(req)

	resp, err := d.Client.StreamClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream: connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &transport.APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body)), Body: body}
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		log.Debugf("stream: unexpected content type %q", ct)
	}
	return newSSEChannel(resp.Body, resp.Header.Get("X-Task-ID")), nil
}

type sseChannel struct {
	body   io.ReadCloser
	reader *bufio.Reader
	taskID string

	closeOnce sync.Once
	lastID    string
}

func newSSEChannel(body io.ReadCloser, taskID string) *sseChannel {
	return &sseChannel{body: body, reader: bufio.NewReader(body), taskID: taskID}
}

func (c *sseChannel) TaskID() string { return c.taskID }

func (c *sseChannel) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.body.Close() })
	return err
}

// Next reads lines until a blank line ends an event. Comments and
// unknown fields are skipped; a partial event at end of stream is dropped.
func (c *sseChannel) Next(ctx context.Context) (Event, error) {
	var (
		name    string
		data    strings.Builder
		hasData bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}
		line, err := c.reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, ErrStreamClosed
			}
			return Event{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !hasData && name == "" {
				continue
			}
			return Event{Name: name, ID: c.lastID, Data: data.String()}, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			c.lastID = value
		}
	}
}
