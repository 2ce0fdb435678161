package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// HandleNotifyOwnerTask delivers one queued notification. A delivery error is
// returned so asynq retries the task; a malformed payload is not retried.
func (j *Queue) HandleNotifyOwnerTask(ctx context.Context, task *asynq.Task) error {
	var payload NotifyOwnerPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("error decoding notification payload: %v: %w", err, asynq.SkipRetry)
	}

	note := payload.Notification
	if err := j.delivery.NotifyOwner(ctx, note); err != nil {
		j.logger.Warn("notification delivery failed",
			slog.Int64("post_id", note.PostID),
			slog.String("error", err.Error()),
		)
		return err
	}

	j.logger.Info("notification delivered", slog.Int64("post_id", note.PostID), slog.Int64("user_id", note.UserID))
	return nil
}
