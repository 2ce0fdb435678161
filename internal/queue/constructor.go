package queue

import (
	"log/slog"

	"github.com/maheshrc27/postflow-engine/internal/notify"
)

// Queue consumes owner notifications enqueued by the scheduler and hands them
// to the configured delivery channel.
type Queue struct {
	delivery notify.Notifier
	logger   *slog.Logger
}

func NewQueue(delivery notify.Notifier, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		delivery: delivery,
		logger:   logger.With(slog.String("component", "queue")),
	}
}

const TaskTypeNotifyOwner = "notify:owner"

type NotifyOwnerPayload struct {
	Notification notify.Notification `json:"notification"`
}
