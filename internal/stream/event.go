package stream

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"
)

var (
	// ErrMalformedEvent is reported through OnError for an event whose data
	// is not JSON. The channel stays open.
	ErrMalformedEvent = errors.New("stream: malformed event data")
	// ErrCanceled settles a Pending whose Handle was canceled.
	ErrCanceled = errors.New("stream: canceled")
	// ErrStreamClosed means the server ended the channel without the
	// complete event.
	ErrStreamClosed = errors.New("stream: channel closed before completion")
)

// MalformedEventError carries the offending data.
type MalformedEventError struct {
	Data string
	Err  error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("%v: %v", ErrMalformedEvent, e.Err)
}

func (e *MalformedEventError) Unwrap() error { return ErrMalformedEvent }

// Event is one server-push event. An empty Name is the default event.
type Event struct {
	Name string
	ID   string
	Data string
}

// isDefault reports whether the event goes to OnMessage.
func (e Event) isDefault() bool {
	return e.Name == "" || e.Name == "message"
}

// Message is the JSON payload of a default event.
type Message []byte

func (m Message) Get(path string) gjson.Result { return gjson.GetBytes(m, path) }

// Type is the payload kind: user_message, assistant_start, chunk,
// complete, cancelled or error.
func (m Message) Type() string      { return m.Get("type").String() }
func (m Message) Content() string   { return m.Get("content").String() }
func (m Message) MessageID() string { return m.Get("message_id").String() }

// Channel is an open push channel. Next blocks until the next event and
// returns an error once the channel has failed or ended.
type Channel interface {
	Next(ctx context.Context) (Event, error)
	Close() error
	// TaskID is the server task driving the stream, if announced.
	TaskID() string
}

// Dialer opens push channels.
type Dialer interface {
	Dial(ctx context.Context, query url.Values) (Channel, error)
}
