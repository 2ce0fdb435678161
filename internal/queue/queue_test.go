package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow-engine/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (s *stubEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, task)
	info := &asynq.TaskInfo{Type: task.Type(), Payload: task.Payload()}
	for _, o := range opts {
		if o.Type() == asynq.TaskIDOpt {
			info.ID = o.Value().(string)
		}
		if o.Type() == asynq.MaxRetryOpt {
			info.MaxRetry = o.Value().(int)
		}
	}
	return info, nil
}

type mockDelivery struct {
	mock.Mock
}

func (m *mockDelivery) NotifyOwner(ctx context.Context, n notify.Notification) error {
	return m.Called(ctx, n).Error(0)
}

var note = notify.Notification{UserID: 7, PostID: 42, Platform: "twitter", Title: "Twitter post failed to publish", Content: "boom"}

func TestAsynqNotifier_EnqueuesNotification(t *testing.T) {
	client := &stubEnqueuer{}
	n := newAsynqNotifier(client, 0)

	require.NoError(t, n.NotifyOwner(context.Background(), note))
	require.Len(t, client.tasks, 1)
	assert.Equal(t, TaskTypeNotifyOwner, client.tasks[0].Type())

	var payload NotifyOwnerPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	assert.Equal(t, note, payload.Notification)
}

func TestEnqueueNotification_AssignsTaskID(t *testing.T) {
	client := &stubEnqueuer{}

	first, err := EnqueueNotification(context.Background(), client, NotifyOwnerPayload{Notification: note}, 3)
	require.NoError(t, err)
	second, err := EnqueueNotification(context.Background(), client, NotifyOwnerPayload{Notification: note}, 3)
	require.NoError(t, err)

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}

func TestAsynqNotifier_EnqueueError(t *testing.T) {
	n := newAsynqNotifier(&stubEnqueuer{err: errors.New("redis down")}, 3)

	err := n.NotifyOwner(context.Background(), note)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestHandleNotifyOwnerTask(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	body, err := json.Marshal(NotifyOwnerPayload{Notification: note})
	require.NoError(t, err)

	t.Run("delivers", func(t *testing.T) {
		delivery := &mockDelivery{}
		delivery.On("NotifyOwner", mock.Anything, note).Return(nil).Once()

		q := NewQueue(delivery, logger)
		require.NoError(t, q.HandleNotifyOwnerTask(context.Background(), asynq.NewTask(TaskTypeNotifyOwner, body)))
		delivery.AssertExpectations(t)
	})

	t.Run("delivery error is retried", func(t *testing.T) {
		delivery := &mockDelivery{}
		delivery.On("NotifyOwner", mock.Anything, note).Return(errors.New("webhook returned status 502"))

		q := NewQueue(delivery, logger)
		err := q.HandleNotifyOwnerTask(context.Background(), asynq.NewTask(TaskTypeNotifyOwner, body))
		require.Error(t, err)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("bad payload is not retried", func(t *testing.T) {
		delivery := &mockDelivery{}

		q := NewQueue(delivery, logger)
		err := q.HandleNotifyOwnerTask(context.Background(), asynq.NewTask(TaskTypeNotifyOwner, []byte("{")))
		assert.ErrorIs(t, err, asynq.SkipRetry)
		delivery.AssertNotCalled(t, "NotifyOwner", mock.Anything, mock.Anything)
	})
}
