package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/maheshrc27/postflow-engine/internal/models"
	"github.com/maheshrc27/postflow-engine/internal/repository"
)

// PendingWrites holds the published status of posts that went live but whose
// row could not be updated. Those posts are never sent to the platform again;
// only the write is retried.
type PendingWrites struct {
	mu      sync.Mutex
	updates map[int64]*models.PostUpdate
}

func NewPendingWrites() *PendingWrites {
	return &PendingWrites{updates: make(map[int64]*models.PostUpdate)}
}

func (w *PendingWrites) Add(postID int64, upd *models.PostUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.updates[postID] = upd
}

func (w *PendingWrites) Has(postID int64) bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.updates[postID]
	return ok
}

func (w *PendingWrites) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.updates)
}

// Flush retries every pending write and keeps the ones that fail again. It
// returns how many were written.
func (w *PendingWrites) Flush(ctx context.Context, posts repository.PostRepository, logger *slog.Logger) int {
	w.mu.Lock()
	batch := make(map[int64]*models.PostUpdate, len(w.updates))
	for id, upd := range w.updates {
		batch[id] = upd
	}
	w.mu.Unlock()

	written := 0
	for id, upd := range batch {
		if err := posts.Update(ctx, id, upd); err != nil {
			logger.Warn("published status still not saved", slog.Int64("post_id", id), slog.String("error", err.Error()))
			continue
		}
		w.mu.Lock()
		delete(w.updates, id)
		w.mu.Unlock()
		written++
	}
	return written
}
