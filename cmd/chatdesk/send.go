package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/chatdesk/internal/api"
	"github.com/traylinx/chatdesk/internal/stream"
)

const cancelTimeout = 5 * time.Second

func cmdSend(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("send")
	chatID := fs.String("chat", "", "conversation id (required)")
	messageType := fs.String("type", "text", "message type")
	model := fs.String("model", "", "model name, used for the context window check")
	noStream := fs.Bool("no-stream", false, "send without streaming the reply")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *chatID == "" {
		return errors.New("missing -chat conversation id")
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	content := strings.Join(fs.Args(), " ")
	if content == "" && stdinIsPipe() {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		content = strings.TrimSpace(string(data))
	}
	if content == "" {
		return errors.New("empty message")
	}

	analysis := a.tokens.Analyze(*model, content)
	log.WithField("method", a.tokens.Method()).Debugf("message estimate: %d tokens (context %d)", analysis.EstimatedTokens, analysis.ContextLimit)
	if analysis.ExceedsLimit {
		log.Warnf("message is about %d tokens, more than the %d-token context of %q", analysis.EstimatedTokens, analysis.ContextLimit, *model)
	}

	if *noStream {
		resp, err := a.chat.SendMessage(ctx, api.Message{ChatID: *chatID, Content: content, MessageType: *messageType})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(a.out, "sent message %s\n", resp.JSON().Get("data.message_id").String())
		return err
	}
	return a.streamReply(ctx, api.StreamMessage{ChatID: *chatID, Content: content, MessageType: *messageType})
}

// streamReply prints chunks as they arrive. Interrupting cancels the local
// stream and asks the gateway to stop the task.
func (a *app) streamReply(ctx context.Context, msg api.StreamMessage) error {
	var streamErr error
	handle, pending := a.chat.SendStreamMessage(context.WithoutCancel(ctx), msg, stream.Callbacks{
		OnMessage: func(m stream.Message) {
			switch m.Type() {
			case "chunk":
				fmt.Fprint(a.out, m.Content())
			case "error":
				text := m.Get("message").String()
				if text == "" {
					text = m.Get("error").String()
				}
				streamErr = fmt.Errorf("gateway: %s", text)
			case "cancelled":
				log.Info("generation cancelled by the gateway")
			}
		},
		OnError: func(err error) {
			if errors.Is(err, stream.ErrMalformedEvent) {
				log.Warnf("skipping malformed stream event: %v", err)
			}
		},
	})

	select {
	case <-pending.Done():
	case <-ctx.Done():
		handle.Cancel()
		if taskID := handle.TaskID(); taskID != "" {
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
			if _, err := a.chat.CancelStreamMessage(cctx, taskID); err != nil {
				log.Debugf("remote cancel of %s failed: %v", taskID, err)
			}
			cancel()
		}
	}
	fmt.Fprintln(a.out)

	err := pending.Err()
	switch {
	case errors.Is(err, stream.ErrCanceled):
		return errors.New("canceled")
	case err != nil:
		return err
	}
	return streamErr
}
