// Package notify pushes human-directed messages to robot webhooks (WeCom
// style). Notifications are best-effort: failures are logged and swallowed.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"qcsync/internal/config"
)

// Notifier posts text messages to the configured info and warning webhooks.
// A zero-value webhook disables that channel.
type Notifier struct {
	cfg        config.NotifyConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a notifier from configuration.
func New(cfg config.NotifyConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With(slog.String("component", "notify")),
	}
}

// message is the robot webhook payload.
type message struct {
	MsgType string      `json:"msgtype"`
	Text    messageText `json:"text"`
}

type messageText struct {
	Content string `json:"content"`
}

// Info pushes a routine progress message.
func (n *Notifier) Info(ctx context.Context, msg string) {
	n.send(ctx, n.cfg.InfoWebhook, msg)
}

// Warn pushes a warning message.
func (n *Notifier) Warn(ctx context.Context, msg string) {
	n.send(ctx, n.cfg.WarnWebhook, msg)
}

func (n *Notifier) send(ctx context.Context, webhook, content string) {
	if webhook == "" {
		return
	}

	body, err := json.Marshal(message{MsgType: "text", Text: messageText{Content: content}})
	if err != nil {
		n.logger.Warn("failed to encode notification", slog.String("error", err.Error()))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("failed to build notification request", slog.String("error", err.Error()))
		return
	}
	req.Header.Set("Content-Type", "application/json;charset=utf-8")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warn("failed to push notification", slog.String("error", err.Error()))
		return
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		n.logger.Warn("notification rejected", slog.Int("status", resp.StatusCode))
	}
}
