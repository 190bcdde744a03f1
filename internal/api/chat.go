package api

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/traylinx/chatdesk/internal/stream"
	"github.com/traylinx/chatdesk/internal/transport"
)

// ChatClient covers conversations, messages, groups, models, files,
// import and export, search, settings and statistics.
type ChatClient struct {
	base
	streams *stream.Client
}

// NewChatClient returns a ChatClient. streams may be nil when streaming
// is not needed.
func NewChatClient(doer transport.Doer, streams *stream.Client) *ChatClient {
	return &ChatClient{base: base{doer: doer}, streams: streams}
}

// Conversations

func (c *ChatClient) GetChatList(ctx context.Context, query url.Values) (*transport.Response, error) {
	return c.get(ctx, "/chat/conversations/list", query)
}

func (c *ChatClient) GetChatDetail(ctx context.Context, chatID string) (*transport.Response, error) {
	return c.get(ctx, idPath("/chat/conversations/%s", chatID), nil)
}

func (c *ChatClient) CreateChat(ctx context.Context, chat Conversation) (*transport.Response, error) {
	return c.post(ctx, "/chat/conversations", chat)
}

// UpdateChat sends chat to the path of chatID.
func (c *ChatClient) UpdateChat(ctx context.Context, chatID string, chat Conversation) (*transport.Response, error) {
	return c.put(ctx, idPath("/chat/conversations/%s", chatID), chat)
}

func (c *ChatClient) DeleteChat(ctx context.Context, chatID string) (*transport.Response, error) {
	return c.del(ctx, idPath("/chat/conversations/%s", chatID), nil, nil)
}

func (c *ChatClient) BatchDeleteChats(ctx context.Context, chatIDs []string) (*transport.Response, error) {
	return c.del(ctx, "/chat/conversations/batch", nil, map[string]any{"ids": chatIDs})
}

func (c *ChatClient) ClearChatMessages(ctx context.Context, chatID string) (*transport.Response, error) {
	return c.del(ctx, idPath("/chat/conversations/%s/messages", chatID), nil, nil)
}

func (c *ChatClient) GetChatMessages(ctx context.Context, chatID string, query url.Values) (*transport.Response, error) {
	return c.get(ctx, idPath("/chat/conversations/%s/messages", chatID), query)
}

// Messages

func (c *ChatClient) SendMessage(ctx context.Context, msg Message) (*transport.Response, error) {
	return c.post(ctx, "/chat/messages", msg)
}

// SendStreamMessage opens the streaming endpoint for msg. The handle can
// cancel at once; the pending value settles on completion or failure.
func (c *ChatClient) SendStreamMessage(ctx context.Context, msg StreamMessage, cb stream.Callbacks) (*stream.Handle, *stream.Pending) {
	return c.streams.Send(ctx, msg.Values(), cb)
}

// CancelStreamMessage asks the gateway to stop the task behind a stream.
func (c *ChatClient) CancelStreamMessage(ctx context.Context, taskID string) (*transport.Response, error) {
	return c.doer.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   "/chat/messages/stream/cancel",
		Params: url.Values{"task_id": {taskID}},
	})
}

func (c *ChatClient) RegenerateMessage(ctx context.Context, req Regenerate) (*transport.Response, error) {
	return c.post(ctx, "/chat/messages/regenerate", req)
}

func (c *ChatClient) DeleteMessage(ctx context.Context, messageID string) (*transport.Response, error) {
	return c.del(ctx, idPath("/chat/messages/%s", messageID), nil, nil)
}

// EditMessage sends only the new content.
func (c *ChatClient) EditMessage(ctx context.Context, edit MessageEdit) (*transport.Response, error) {
	return c.put(ctx, idPath("/chat/messages/%s", edit.MessageID), map[string]string{"content": edit.Content})
}

// Groups

func (c *ChatClient) GetChatGroups(ctx context.Context, query url.Values) (*transport.Response, error) {
	return c.get(ctx, "/chat/groups", query)
}

func (c *ChatClient) CreateChatGroup(ctx context.Context, group ChatGroup) (*transport.Response, error) {
	return c.post(ctx, "/chat/groups", group)
}

func (c *ChatClient) UpdateChatGroup(ctx context.Context, group ChatGroup) (*transport.Response, error) {
	return c.put(ctx, idPath("/chat/groups/%s", group.ID), group)
}

// DeleteGroupOption tunes DeleteChatGroup.
type DeleteGroupOption func(*bool)

// WithDeleteChats also deletes the group's conversations instead of moving
// them to the default group.
func WithDeleteChats(deleteChats bool) DeleteGroupOption {
	return func(v *bool) { *v = deleteChats }
}

// DeleteChatGroup always sends deleteChats, false unless overridden.
func (c *ChatClient) DeleteChatGroup(ctx context.Context, groupID int64, opts ...DeleteGroupOption) (*transport.Response, error) {
	deleteChats := false
	for _, opt := range opts {
		opt(&deleteChats)
	}
	params := url.Values{"deleteChats": {strconv.FormatBool(deleteChats)}}
	return c.del(ctx, idPath("/chat/groups/%s", groupID), params, nil)
}

func (c *ChatClient) MoveChatToGroup(ctx context.Context, move MoveToGroup) (*transport.Response, error) {
	return c.put(ctx, idPath("/chat/conversations/%s/move", move.ChatID), move)
}

func (c *ChatClient) BatchMoveChatToGroup(ctx context.Context, move BatchMove) (*transport.Response, error) {
	return c.put(ctx, "/chat/conversations/batch/move", move)
}

// Models

func (c *ChatClient) GetAvailableModels(ctx context.Context, query url.Values) (*transport.Response, error) {
	return c.get(ctx, "/chat/models/available", query)
}

func (c *ChatClient) TestModel(ctx context.Context, test ModelTest) (*transport.Response, error) {
	return c.post(ctx, "/chat/models/test", test)
}

func (c *ChatClient) GetModelStats(ctx context.Context, query url.Values) (*transport.Response, error) {
	return c.get(ctx, "/chat/models/stats", query)
}

// Files

// UploadFile sends one file as multipart form data. onProgress may be nil.
func (c *ChatClient) UploadFile(ctx context.Context, fileName string, file io.Reader, onProgress func(sent, total int64)) (*transport.Response, error) {
	body, contentType, err := transport.Multipart("file", fileName, file, nil)
	if err != nil {
		return nil, err
	}
	return c.doer.Do(ctx, &transport.Request{
		Method:           http.MethodPost,
		Path:             "/chat/upload",
		Body:             body,
		ContentType:      contentType,
		OnUploadProgress: onProgress,
	})
}

func (c *ChatClient) DeleteFile(ctx context.Context, fileID string) (*transport.Response, error) {
	return c.del(ctx, idPath("/chat/files/%s", fileID), nil, nil)
}

func (c *ChatClient) GetFileInfo(ctx context.Context, fileID string) (*transport.Response, error) {
	return c.get(ctx, idPath("/chat/files/%s", fileID), nil)
}

// Export and import

// ExportChat returns the exported document as a blob.
func (c *ChatClient) ExportChat(ctx context.Context, req ExportRequest) (*transport.Response, error) {
	return c.doer.Do(ctx, &transport.Request{Method: http.MethodPost, Path: "/chat/export", Data: req, ResponseType: transport.ResponseBlob})
}

func (c *ChatClient) BatchExportChats(ctx context.Context, req ExportRequest) (*transport.Response, error) {
	return c.doer.Do(ctx, &transport.Request{Method: http.MethodPost, Path: "/chat/export/batch", Data: req, ResponseType: transport.ResponseBlob})
}

// ImportChat uploads an export file, optionally into groupID.
func (c *ChatClient) ImportChat(ctx context.Context, fileName string, file io.Reader, groupID string) (*transport.Response, error) {
	body, contentType, err := transport.Multipart("file", fileName, file, nil)
	if err != nil {
		return nil, err
	}
	var params url.Values
	if groupID != "" {
		params = url.Values{"groupId": {groupID}}
	}
	return c.doer.Do(ctx, &transport.Request{
		Method:      http.MethodPost,
		Path:        "/chat/import",
		Params:      params,
		Body:        body,
		ContentType: contentType,
	})
}

// Search, settings and utilities

func (c *ChatClient) SearchChats(ctx context.Context, query url.Values) (*transport.Response, error) {
	return c.get(ctx, "/chat/search", query)
}

func (c *ChatClient) GetChatSettings(ctx context.Context) (*transport.Response, error) {
	return c.get(ctx, "/chat/settings", nil)
}

func (c *ChatClient) UpdateChatSettings(ctx context.Context, settings ChatSettings) (*transport.Response, error) {
	return c.put(ctx, "/chat/settings", settings)
}

func (c *ChatClient) GenerateChatTitle(ctx context.Context, req TitleRequest) (*transport.Response, error) {
	return c.post(ctx, "/chat/utils/generate-title", req)
}

func (c *ChatClient) GetChatStatistics(ctx context.Context, query url.Values) (*transport.Response, error) {
	return c.get(ctx, "/chat/statistics", query)
}
