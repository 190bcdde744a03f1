package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/traylinx/chatdesk/internal/transport"
)

// ConfigClient covers API keys, prompt templates and system configuration.
type ConfigClient struct {
	base
}

func NewConfigClient(doer transport.Doer) *ConfigClient {
	return &ConfigClient{base: base{doer: doer}}
}

// API keys

func (c *ConfigClient) ListAPIKeys(ctx context.Context, query url.Values) (*transport.Response, error) {
	return c.get(ctx, "/chat/api-keys/list", query)
}

func (c *ConfigClient) GetAPIKey(ctx context.Context, id int64) (*transport.Response, error) {
	return c.get(ctx, idPath("/chat/api-keys/%s", id), nil)
}

func (c *ConfigClient) AddAPIKey(ctx context.Context, key APIKey) (*transport.Response, error) {
	return c.post(ctx, "/chat/api-keys", key)
}

// UpdateAPIKey sends the whole record; the id travels in the body.
func (c *ConfigClient) UpdateAPIKey(ctx context.Context, key APIKey) (*transport.Response, error) {
	return c.put(ctx, "/chat/api-keys", key)
}

func (c *ConfigClient) DelAPIKey(ctx context.Context, id int64) (*transport.Response, error) {
	return c.del(ctx, idPath("/chat/api-keys/%s", id), nil, nil)
}

func (c *ConfigClient) DelAPIKeys(ctx context.Context, ids []int64) (*transport.Response, error) {
	return c.del(ctx, "/chat/api-keys/batch", nil, map[string]any{"ids": ids})
}

func (c *ConfigClient) BatchUpdateAPIKeyStatus(ctx context.Context, req BatchStatus) (*transport.Response, error) {
	return c.put(ctx, "/chat/api-keys/batch/status", req)
}

func (c *ConfigClient) TestAPIKey(ctx context.Context, test APIKeyTest) (*transport.Response, error) {
	return c.post(ctx, "/chat/api-keys/test", test)
}

func (c *ConfigClient) GetAPIKeyStats(ctx context.Context) (*transport.Response, error) {
	return c.get(ctx, "/chat/api-keys/stats", nil)
}

// Prompts

func (c *ConfigClient) ListPrompts(ctx context.Context, query url.Values) (*transport.Response, error) {
	return c.get(ctx, "/chat/prompts/list", query)
}

func (c *ConfigClient) GetPrompt(ctx context.Context, id int64) (*transport.Response, error) {
	return c.get(ctx, idPath("/chat/prompts/%s", id), nil)
}

func (c *ConfigClient) AddPrompt(ctx context.Context, p Prompt) (*transport.Response, error) {
	return c.post(ctx, "/chat/prompts", p)
}

func (c *ConfigClient) UpdatePrompt(ctx context.Context, p Prompt) (*transport.Response, error) {
	return c.put(ctx, "/chat/prompts", p)
}

func (c *ConfigClient) DelPrompt(ctx context.Context, id int64) (*transport.Response, error) {
	return c.del(ctx, idPath("/chat/prompts/%s", id), nil, nil)
}

func (c *ConfigClient) DelPrompts(ctx context.Context, ids []int64) (*transport.Response, error) {
	return c.del(ctx, "/chat/prompts/batch", nil, map[string]any{"ids": ids})
}

// CopyPrompt duplicates a prompt under a new title.
func (c *ConfigClient) CopyPrompt(ctx context.Context, id int64) (*transport.Response, error) {
	return c.post(ctx, idPath("/chat/prompts/%s/copy", id), nil)
}

func (c *ConfigClient) TestPrompt(ctx context.Context, test PromptTest) (*transport.Response, error) {
	return c.post(ctx, "/chat/prompts/test", test)
}

func (c *ConfigClient) GetPromptCategories(ctx context.Context) (*transport.Response, error) {
	return c.get(ctx, "/chat/prompts/categories", nil)
}

func (c *ConfigClient) GetPromptTags(ctx context.Context) (*transport.Response, error) {
	return c.get(ctx, "/chat/prompts/tags", nil)
}

// System configuration

func (c *ConfigClient) GetSystemConfig(ctx context.Context) (*transport.Response, error) {
	return c.get(ctx, "/chat/config", nil)
}

func (c *ConfigClient) UpdateSystemConfig(ctx context.Context, cfg SystemConfig) (*transport.Response, error) {
	return c.put(ctx, "/chat/config", cfg)
}

func (c *ConfigClient) GetStatistics(ctx context.Context, query url.Values) (*transport.Response, error) {
	return c.get(ctx, "/chat/statistics", query)
}

// PatchSystemConfig reads the system configuration, sets the value at the
// gjson path and writes the whole document back.
func (c *ConfigClient) PatchSystemConfig(ctx context.Context, path string, value any) (*transport.Response, error) {
	resp, err := c.GetSystemConfig(ctx)
	if err != nil {
		return nil, err
	}
	doc := resp.Data()
	if !gjson.ValidBytes(doc) || !gjson.ParseBytes(doc).IsObject() {
		doc = []byte("{}")
	}
	patched, err := sjson.SetBytes(doc, path, value)
	if err != nil {
		return nil, fmt.Errorf("patch %s: %w", path, err)
	}
	return c.UpdateSystemConfig(ctx, SystemConfig(patched))
}
