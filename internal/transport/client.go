// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package transport is the HTTP request layer shared by every API client.
// It joins paths onto the gateway base URL, attaches the bearer token,
// encodes bodies, decodes compressed responses and maps the gateway
// envelope onto errors. It never retries.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/traylinx/chatdesk/internal/config"
	"github.com/traylinx/chatdesk/internal/logging"
	"github.com/traylinx/chatdesk/internal/util"
)

// Client sends requests to the gateway.
type Client struct {
	baseURL  *url.URL
	headers  map[string]string
	tokens   oauth2.TokenSource
	proxyURL string

	http   *http.Client // bounded by the configured timeout
	stream *http.Client // no overall timeout, for long-lived responses
}

// Option configures a Client.
type Option func(*Client)

// WithTokenSource attaches the bearer token to every request.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithHTTPClient replaces both underlying http.Clients.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
		stream := *hc
		stream.Timeout = 0
		c.stream = &stream
	}
}

// New builds a Client from cfg.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", cfg.BaseURL)
	}

	rt := http.DefaultTransport.(*http.Transport).Clone()
	rt.DisableCompression = true
	if err := SetProxy(cfg.ProxyURL, rt); err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:  base,
		headers:  cfg.Headers,
		proxyURL: cfg.ProxyURL,
		http:     &http.Client{Transport: rt, Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		stream:   &http.Client{Transport: rt},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the gateway API root.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// ProxyURL returns the configured proxy, if any.
func (c *Client) ProxyURL() string {
	return c.proxyURL
}

// StreamClient returns the http.Client used for long-lived responses.
func (c *Client) StreamClient() *http.Client {
	return c.stream
}

// URL joins path and params onto the base URL.
func (c *Client) URL(path string, params url.Values) string {
	u := c.BaseURL()
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

// Authorize sets the Authorization header when a valid token is available.
func (c *Client) Authorize(req *http.Request) {
	if c.tokens == nil {
		return
	}
	tok, err := c.tokens.Token()
	if err != nil || !tok.Valid() {
		return
	}
	tok.SetAuthHeader(req)
}

// ApplyHeaders sets the configured static headers on req.
func (c *Client) ApplyHeaders(req *http.Request) {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
}

// Do sends r and reads the whole response. HTTP failures and envelopes with
// a code other than 200 are returned as *APIError.
func (c *Client) Do(ctx context.Context, r *Request) (*Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	body, contentType, size, err := r.encodeBody()
	if err != nil {
		return nil, err
	}
	if body != nil && r.OnUploadProgress != nil {
		body = &progressReader{r: body, total: size, fn: r.OnUploadProgress}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(r.Path, r.Params), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if size >= 0 && body != nil {
		req.ContentLength = size
	}

	requestID := uuid.New().String()
	c.ApplyHeaders(req)
	req.Header.Set("Accept", "application/json, */*")
	req.Header.Set("Accept-Encoding", acceptEncoding)
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if !r.NoAuth {
		c.Authorize(req)
	}

	entry := logging.WithRequestID(requestID[:8])
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		entry.Debugf("%s %s failed: %v", method, r.Path, err)
		return nil, fmt.Errorf("%s %s: %w", method, r.Path, err)
	}
	defer resp.Body.Close()

	data, err := readBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w", method, r.Path, err)
	}
	entry.WithFields(log.Fields{
		"status":  resp.StatusCode,
		"bytes":   len(data),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Debugf("%s %s", method, r.Path)

	checkEnvelope := r.ResponseType == ResponseJSON ||
		strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json")
	if err := checkResponse(resp.StatusCode, data, checkEnvelope); err != nil {
		if auth := req.Header.Get("Authorization"); auth != "" {
			entry.Debugf("request rejected (authorization %s)", util.MaskAuthorizationHeader(auth))
		}
		return nil, err
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// encodeBody returns the request body, its content type and its size
// (-1 when unknown).
func (r *Request) encodeBody() (io.Reader, string, int64, error) {
	if r.Body != nil {
		size := int64(-1)
		if l, ok := r.Body.(interface{ Len() int }); ok {
			size = int64(l.Len())
		}
		return r.Body, r.ContentType, size, nil
	}
	if r.Data == nil {
		return nil, r.ContentType, 0, nil
	}
	data, err := json.Marshal(r.Data)
	if err != nil {
		return nil, "", 0, fmt.Errorf("failed to encode request body: %w", err)
	}
	contentType := r.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	return bytes.NewReader(data), contentType, int64(len(data)), nil
}
