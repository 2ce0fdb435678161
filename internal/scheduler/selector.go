package scheduler

import (
	"context"
	"time"

	"github.com/maheshrc27/postflow-engine/internal/models"
	"github.com/maheshrc27/postflow-engine/internal/repository"
)

// Selector picks the posts a batch should attempt.
type Selector struct {
	posts      repository.PostRepository
	retries    *RetryTracker
	pending    *PendingWrites
	clock      Clock
	grace      time.Duration
	retryDelay time.Duration
	batchSize  int
}

func NewSelector(posts repository.PostRepository, retries *RetryTracker, pending *PendingWrites, clock Clock, grace, retryDelay time.Duration, batchSize int) *Selector {
	return &Selector{
		posts:      posts,
		retries:    retries,
		pending:    pending,
		clock:      clock,
		grace:      grace,
		retryDelay: retryDelay,
		batchSize:  batchSize,
	}
}

// Due returns scheduled posts that are due within the grace period, oldest
// first, excluding posts still backing off and posts already published whose
// status write is pending. Skips are applied before the batch cap so they do
// not take slots. Retry entries for posts the store no longer lists as
// scheduled are dropped.
func (s *Selector) Due(ctx context.Context) ([]*models.Post, error) {
	now := s.clock.Now()
	candidates, err := s.posts.ListScheduledDue(ctx, now.Add(s.grace))
	if err != nil {
		return nil, &InternalError{Op: "select due posts", Err: err}
	}

	listed := make(map[int64]struct{}, len(candidates))
	for _, post := range candidates {
		listed[post.ID] = struct{}{}
	}
	s.retries.Retain(listed)

	due := make([]*models.Post, 0, min(len(candidates), s.batchSize))
	for _, post := range candidates {
		if len(due) == s.batchSize {
			break
		}
		if post.Status != models.PostStatusScheduled || post.ScheduledAt == nil {
			continue
		}
		if s.pending.Has(post.ID) || s.retries.InBackoff(post.ID, now, s.retryDelay) {
			continue
		}
		due = append(due, post)
	}
	return due, nil
}
