package api

import (
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Page is a paginated list returned by the gateway.
type Page[T any] struct {
	Total    int `json:"total"`
	Items    []T `json:"items"`
	Rows     []T `json:"rows,omitempty"`
	PageNum  int `json:"pageNum"`
	PageSize int `json:"pageSize"`
}

// All returns the records whichever key the server used.
func (p Page[T]) All() []T {
	if len(p.Items) > 0 {
		return p.Items
	}
	return p.Rows
}

// PageQuery builds the common pagination parameters.
func PageQuery(pageNum, pageSize int) url.Values {
	q := url.Values{}
	if pageNum > 0 {
		q.Set("pageNum", strconv.Itoa(pageNum))
	}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	return q
}

// Conversation is a chat conversation.
type Conversation struct {
	ID           int64          `json:"id,omitempty"`
	UUID         string         `json:"uuid,omitempty"`
	Title        string         `json:"title,omitempty"`
	Description  string         `json:"description,omitempty"`
	GroupID      *int64         `json:"group_id,omitempty"`
	ModelID      string         `json:"model_id,omitempty"`
	APIKeyID     *int64         `json:"api_key_id,omitempty"`
	PromptID     *int64         `json:"prompt_id,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
	MessageCount int            `json:"message_count,omitempty"`
	Status       string         `json:"status,omitempty"`
	CreatedAt    *time.Time     `json:"created_at,omitempty"`
	UpdatedAt    *time.Time     `json:"updated_at,omitempty"`
}

// Message is one chat message.
type Message struct {
	ID             int64          `json:"id,omitempty"`
	UUID           string         `json:"uuid,omitempty"`
	ChatID         string         `json:"chat_id,omitempty"`
	Role           string         `json:"role,omitempty"`
	Content        string         `json:"content"`
	MessageType    string         `json:"message_type,omitempty"`
	Metadata       map[string]any `json:"message_metadata,omitempty"`
	Stream         bool           `json:"stream,omitempty"`
	TokenCount     int            `json:"token_count,omitempty"`
	CharacterCount int            `json:"character_count,omitempty"`
	Status         string         `json:"status,omitempty"`
	CreatedAt      *time.Time     `json:"created_at,omitempty"`
}

// Regenerate asks for a new answer to a message.
type Regenerate struct {
	ChatID    string         `json:"chat_id"`
	MessageID string         `json:"message_id"`
	Config    map[string]any `json:"config,omitempty"`
}

// MessageEdit replaces a message's content.
type MessageEdit struct {
	MessageID string `json:"-"`
	Content   string `json:"content"`
}

// ChatGroup groups conversations.
type ChatGroup struct {
	ID            int64          `json:"id,omitempty"`
	Name          string         `json:"name,omitempty"`
	Description   string         `json:"description,omitempty"`
	Color         string         `json:"color,omitempty"`
	Sort          int            `json:"sort"`
	IsDefault     int            `json:"is_default,omitempty"`
	Status        string         `json:"status,omitempty"`
	Conversations []Conversation `json:"conversations,omitempty"`
}

// MoveToGroup moves one conversation.
type MoveToGroup struct {
	ChatID        string `json:"-"`
	TargetGroupID int64  `json:"group_id"`
}

// BatchMove moves several conversations.
type BatchMove struct {
	ChatIDs       []string `json:"chat_ids"`
	TargetGroupID int64    `json:"target_group_id"`
}

// ModelTest probes a model with a short message.
type ModelTest struct {
	ModelID     string `json:"modelId"`
	TestMessage string `json:"testMessage,omitempty"`
}

// ExportRequest selects conversations and a format (json, markdown, txt).
type ExportRequest struct {
	ChatID                string   `json:"chat_id,omitempty"`
	ChatIDs               []string `json:"chat_ids,omitempty"`
	Format                string   `json:"format"`
	IncludeSystemMessages bool     `json:"include_system_messages"`
}

// ChatSettings are per-user chat preferences.
type ChatSettings struct {
	Preferences   map[string]any `json:"preferences,omitempty"`
	DefaultConfig map[string]any `json:"default_config,omitempty"`
	AutoSave      bool           `json:"auto_save"`
	Theme         string         `json:"theme,omitempty"`
}

// TitleRequest asks the gateway to title a conversation.
type TitleRequest struct {
	Content   string `json:"content"`
	MaxLength int    `json:"max_length,omitempty"`
}

// StreamMessage is sent as the query of the streaming endpoint.
type StreamMessage struct {
	ChatID      string
	Content     string
	MessageType string
	// Extra parameters are passed through unchanged.
	Extra url.Values
}

// Values encodes m as query parameters.
func (m StreamMessage) Values() url.Values {
	q := url.Values{}
	for k, vs := range m.Extra {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("chat_id", m.ChatID)
	q.Set("content", m.Content)
	if m.MessageType != "" {
		q.Set("message_type", m.MessageType)
	}
	return q
}

// APIKey is a model credential managed by the gateway.
type APIKey struct {
	ID          int64          `json:"id,omitempty"`
	APIKey      string         `json:"api_key,omitempty"`
	ModelName   string         `json:"model_name,omitempty"`
	ModelURL    string         `json:"model_url,omitempty"`
	Description string         `json:"description,omitempty"`
	Status      string         `json:"status,omitempty"`
	Provider    string         `json:"provider,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
	Timeout     *int           `json:"timeout,omitempty"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
	UpdatedAt   *time.Time     `json:"updated_at,omitempty"`
}

// BatchStatus switches several API keys to status.
type BatchStatus struct {
	IDs    []int64 `json:"ids"`
	Status string  `json:"status"`
}

// APIKeyTest probes a stored key or ad-hoc credentials.
type APIKeyTest struct {
	ID        *int64 `json:"id,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	ModelURL  string `json:"model_url,omitempty"`
	ModelName string `json:"model_name,omitempty"`
}

// TestResult is returned by the probe endpoints.
type TestResult struct {
	Success      bool     `json:"success"`
	Message      string   `json:"message"`
	ResponseTime *float64 `json:"response_time,omitempty"`
	Result       string   `json:"result,omitempty"`
}

// APIKeyStats summarises stored keys.
type APIKeyStats struct {
	Total     int            `json:"total"`
	Active    int            `json:"active"`
	Inactive  int            `json:"inactive"`
	Providers map[string]int `json:"providers"`
}

// Prompt is a prompt template.
type Prompt struct {
	ID          int64          `json:"id,omitempty"`
	Title       string         `json:"title,omitempty"`
	Category    string         `json:"category,omitempty"`
	Content     string         `json:"content,omitempty"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	IsPublic    *bool          `json:"is_public,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	Sort        *int           `json:"sort,omitempty"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
	UpdatedAt   *time.Time     `json:"updated_at,omitempty"`
}

// PromptTest renders a prompt against an input.
type PromptTest struct {
	Content   string         `json:"content"`
	Variables map[string]any `json:"variables,omitempty"`
	TestInput string         `json:"testInput"`
}

// PromptCategory is one category with its usage count.
type PromptCategory struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// PromptTag is one tag with its usage count.
type PromptTag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SystemConfig is the gateway-wide configuration document.
type SystemConfig = json.RawMessage
