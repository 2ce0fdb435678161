package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow-engine/internal/notify"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const defaultMaxRetry = 5

// enqueuer is the part of *asynq.Client the notifier needs.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func EnqueueNotification(ctx context.Context, client enqueuer, payload NotifyOwnerPayload, maxRetry int) (string, error) {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("error generating task id: %w", err)
	}

	task := asynq.NewTask(TaskTypeNotifyOwner, taskPayload)
	info, err := client.EnqueueContext(ctx, task, asynq.TaskID(id), asynq.MaxRetry(maxRetry))
	if err != nil {
		return "", fmt.Errorf("error enqueuing notification: %w", err)
	}

	slog.Info("notification enqueued", slog.String("task_id", info.ID), slog.Int64("post_id", payload.Notification.PostID))
	return info.ID, nil
}

type asynqNotifier struct {
	client   enqueuer
	maxRetry int
}

// NewAsynqNotifier hands notifications to the Redis-backed queue so a slow or
// failing delivery channel never holds up a batch.
func NewAsynqNotifier(client *asynq.Client, maxRetry int) notify.Notifier {
	return newAsynqNotifier(client, maxRetry)
}

func newAsynqNotifier(client enqueuer, maxRetry int) *asynqNotifier {
	if maxRetry <= 0 {
		maxRetry = defaultMaxRetry
	}
	return &asynqNotifier{client: client, maxRetry: maxRetry}
}

func (n *asynqNotifier) NotifyOwner(ctx context.Context, note notify.Notification) error {
	_, err := EnqueueNotification(ctx, n.client, NotifyOwnerPayload{Notification: note}, n.maxRetry)
	return err
}
