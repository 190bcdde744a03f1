// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api maps each gateway endpoint onto one method. Methods build
// the request and hand back the request layer's result unchanged: no
// validation, no retries, no reshaping of the response.
package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/traylinx/chatdesk/internal/transport"
)

func (c *base) get(ctx context.Context, path string, params url.Values) (*transport.Response, error) {
	return c.doer.Do(ctx, &transport.Request{Method: "GET", Path: path, Params: params})
}

func (c *base) post(ctx context.Context, path string, data any) (*transport.Response, error) {
	return c.doer.Do(ctx, &transport.Request{Method: "POST", Path: path, Data: data})
}

func (c *base) put(ctx context.Context, path string, data any) (*transport.Response, error) {
	return c.doer.Do(ctx, &transport.Request{Method: "PUT", Path: path, Data: data})
}

func (c *base) del(ctx context.Context, path string, params url.Values, data any) (*transport.Response, error) {
	return c.doer.Do(ctx, &transport.Request{Method: "DELETE", Path: path, Params: params, Data: data})
}

type base struct {
	doer transport.Doer
}

// Decode unmarshals the data of a successful response into a T.
func Decode[T any](resp *transport.Response, err error) (T, error) {
	var out T
	if err != nil {
		return out, err
	}
	if err := resp.Decode(&out); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func idPath(format string, id any) string {
	return fmt.Sprintf(format, url.PathEscape(fmt.Sprint(id)))
}
