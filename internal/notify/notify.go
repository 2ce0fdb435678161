package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Notification tells a post owner that something needs their attention.
type Notification struct {
	UserID   int64  `json:"user_id"`
	PostID   int64  `json:"post_id"`
	Platform string `json:"platform"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

// Notifier delivers owner notifications. Callers treat delivery as best effort.
type Notifier interface {
	NotifyOwner(ctx context.Context, n Notification) error
}

type logNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier writes notifications to the log. It is the fallback when no
// webhook or queue is configured.
func NewLogNotifier(logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &logNotifier{logger: logger}
}

func (n *logNotifier) NotifyOwner(ctx context.Context, note Notification) error {
	n.logger.WarnContext(ctx, note.Title,
		slog.Int64("user_id", note.UserID),
		slog.Int64("post_id", note.PostID),
		slog.String("platform", note.Platform),
		slog.String("content", note.Content),
	)
	return nil
}

type webhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string, client *http.Client) Notifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &webhookNotifier{url: url, client: client}
}

func (n *webhookNotifier) NotifyOwner(ctx context.Context, note Notification) error {
	body, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("error marshalling notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("error calling webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
