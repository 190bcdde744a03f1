package transport

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// ResponseType selects how a response body is treated.
type ResponseType int

const (
	// ResponseJSON bodies are checked for the gateway envelope.
	ResponseJSON ResponseType = iota
	// ResponseBlob bodies are returned untouched unless the server answers
	// with a JSON error.
	ResponseBlob
)

// Request describes one call to the gateway.
type Request struct {
	Method string
	// Path is appended to the base URL, e.g. /chat/groups.
	Path   string
	Params url.Values
	// Data is encoded as the JSON body. Ignored when Body is set.
	Data        any
	Body        io.Reader
	ContentType string
	Headers     map[string]string

	ResponseType ResponseType
	// NoAuth sends the request without the bearer token.
	NoAuth bool
	// OnUploadProgress is called as the body is sent.
	OnUploadProgress func(sent, total int64)
}

// Response is a fully read gateway response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON parses the body with gjson.
func (r *Response) JSON() gjson.Result {
	return gjson.ParseBytes(r.Body)
}

// Data returns the envelope's data field when the body is an envelope,
// otherwise the whole body.
func (r *Response) Data() []byte {
	if !gjson.ValidBytes(r.Body) {
		return r.Body
	}
	root := gjson.ParseBytes(r.Body)
	if root.IsObject() && root.Get("code").Exists() {
		if data := root.Get("data"); data.Exists() {
			return []byte(data.Raw)
		}
	}
	return r.Body
}

// Decode unmarshals Data into out.
func (r *Response) Decode(out any) error {
	return json.Unmarshal(r.Data(), out)
}

// Filename returns the file name announced in Content-Disposition, if any.
func (r *Response) Filename() string {
	return filenameFromDisposition(r.Header.Get("Content-Disposition"))
}

// Doer sends gateway requests. *Client implements it.
type Doer interface {
	Do(ctx context.Context, r *Request) (*Response, error)
}
