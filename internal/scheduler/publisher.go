package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow-engine/internal/models"
	"github.com/maheshrc27/postflow-engine/internal/notify"
	"github.com/maheshrc27/postflow-engine/internal/platform"
	"github.com/maheshrc27/postflow-engine/internal/repository"
)

const defaultPublishTimeout = 2 * time.Minute

type PublisherOptions struct {
	MaxRetries int
	// Timeout bounds a single adapter call.
	Timeout time.Duration
	// CountPreflightFailures makes a missing account or a dead token count
	// toward MaxRetries. Without it such posts are retried until fixed.
	CountPreflightFailures bool
}

// Publisher takes one post through account lookup, token refresh, rate
// limiting and the platform call, then records the outcome.
type Publisher struct {
	posts    repository.PostRepository
	accounts repository.SocialAccountRepository
	history  repository.PostingHistoryRepository
	registry *platform.Registry
	tokens   *TokenManager
	limiter  *RateLimiter
	retries  *RetryTracker
	pending  *PendingWrites
	notifier notify.Notifier
	clock    Clock
	logger   *slog.Logger
	opts     PublisherOptions
}

func NewPublisher(
	posts repository.PostRepository,
	accounts repository.SocialAccountRepository,
	history repository.PostingHistoryRepository,
	registry *platform.Registry,
	tokens *TokenManager,
	limiter *RateLimiter,
	retries *RetryTracker,
	pending *PendingWrites,
	notifier notify.Notifier,
	clock Clock,
	logger *slog.Logger,
	opts PublisherOptions,
) *Publisher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultPublishTimeout
	}
	return &Publisher{
		posts:    posts,
		accounts: accounts,
		history:  history,
		registry: registry,
		tokens:   tokens,
		limiter:  limiter,
		retries:  retries,
		pending:  pending,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
		opts:     opts,
	}
}

// Publish never returns an error: every failure, including a panic in an
// adapter, ends up in the result.
func (p *Publisher) Publish(ctx context.Context, post *models.Post) (result models.PostingResult) {
	logger := p.logger.With(slog.Int64("post_id", post.ID), slog.String("platform", string(post.Platform)))

	var acc *models.SocialAccount
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while publishing", slog.Any("panic", r))
			result = p.fail(ctx, logger, post, acc, fmt.Errorf("internal error: %v", r), false)
		}
	}()

	adapter, ok := p.registry.Get(post.Platform)
	if !ok {
		return p.fail(ctx, logger, post, nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, post.Platform), true)
	}

	acc, err := p.accounts.GetActiveByPlatform(ctx, post.UserID, post.Platform)
	if err != nil {
		return p.fail(ctx, logger, post, nil, fmt.Errorf("error loading %s account: %w", post.Platform.DisplayName(), err), true)
	}
	if acc == nil {
		return p.fail(ctx, logger, post, nil, noAccountError(post.Platform), true)
	}

	tokens, err := p.tokens.Ensure(ctx, acc)
	if err != nil {
		return p.fail(ctx, logger, post, acc, err, true)
	}

	if err := p.limiter.Wait(ctx, post.Platform); err != nil {
		// Shutting down; the post is picked up again on a later tick.
		return models.PostingResult{
			PostID:     post.ID,
			Platform:   post.Platform,
			Error:      err.Error(),
			RetryCount: p.retries.Count(post.ID),
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	res := adapter.Post(attemptCtx, ContentOf(post), tokens)
	if !res.Success {
		err := res.Err
		if err == nil {
			err = errors.New(res.Error)
		}
		return p.fail(ctx, logger, post, acc, err, false)
	}
	return p.succeed(ctx, logger, post, acc, res)
}

func (p *Publisher) succeed(ctx context.Context, logger *slog.Logger, post *models.Post, acc *models.SocialAccount, res platform.Result) models.PostingResult {
	now := p.clock.Now()
	status := models.PostStatusPublished
	empty := ""
	upd := &models.PostUpdate{
		Status:          &status,
		PublishedAt:     &now,
		ExternalPostID:  &res.PostID,
		ExternalPostURL: &res.PostURL,
		ErrorMessage:    &empty,
	}
	if err := p.posts.Update(ctx, post.ID, upd); err != nil {
		logger.Error("post published but status update failed", slog.String("error", err.Error()))
		p.pending.Add(post.ID, upd)
	}
	p.retries.Clear(post.ID)
	p.record(ctx, logger, post, acc, true, "")

	logger.Info("post published", slog.String("url", res.PostURL))
	return models.PostingResult{
		PostID:     post.ID,
		Platform:   post.Platform,
		Success:    true,
		PostURL:    res.PostURL,
		ExternalID: res.PostID,
	}
}

func (p *Publisher) fail(ctx context.Context, logger *slog.Logger, post *models.Post, acc *models.SocialAccount, cause error, preflight bool) models.PostingResult {
	result := models.PostingResult{
		PostID:   post.ID,
		Platform: post.Platform,
		Error:    cause.Error(),
	}
	p.record(ctx, logger, post, acc, false, result.Error)

	if preflight && !p.opts.CountPreflightFailures {
		result.RetryCount = p.retries.Count(post.ID)
		logger.Warn("post not attempted", slog.String("error", result.Error))
		return result
	}

	count := p.retries.RecordFailure(post.ID, p.clock.Now())
	result.RetryCount = count

	if count < p.opts.MaxRetries {
		logger.Warn("post attempt failed", slog.Int("attempt", count), slog.String("error", result.Error))
		if err := p.posts.Update(ctx, post.ID, &models.PostUpdate{ErrorMessage: &result.Error}); err != nil {
			logger.Error("failed to record post error", slog.String("error", err.Error()))
		}
		return result
	}

	status := models.PostStatusFailed
	if err := p.posts.Update(ctx, post.ID, &models.PostUpdate{Status: &status, ErrorMessage: &result.Error}); err != nil {
		logger.Error("failed to mark post failed", slog.String("error", err.Error()))
	}
	p.retries.Clear(post.ID)
	logger.Error("post failed permanently", slog.Int("attempts", count), slog.String("error", result.Error))

	note := notify.Notification{
		UserID:   post.UserID,
		PostID:   post.ID,
		Platform: string(post.Platform),
		Title:    fmt.Sprintf("%s post failed to publish", post.Platform.DisplayName()),
		Content:  fmt.Sprintf("Post #%d could not be published to %s after %d attempts: %s", post.ID, post.Platform.DisplayName(), count, result.Error),
	}
	if err := p.notifier.NotifyOwner(ctx, note); err != nil {
		logger.Warn("failed to notify owner", slog.String("error", err.Error()))
	}
	return result
}

func (p *Publisher) record(ctx context.Context, logger *slog.Logger, post *models.Post, acc *models.SocialAccount, success bool, errMsg string) {
	if p.history == nil {
		return
	}
	entry := &models.PostingHistory{
		UserID:       post.UserID,
		PostID:       post.ID,
		Platform:     post.Platform,
		Success:      success,
		ErrorMessage: errMsg,
	}
	if acc != nil {
		entry.AccountID = &acc.ID
	}
	if _, err := p.history.Create(ctx, entry); err != nil {
		logger.Warn("failed to save posting history", slog.String("error", err.Error()))
	}
}

// ContentOf is the text and media of a post as adapters receive it.
func ContentOf(post *models.Post) platform.Content {
	return platform.Content{
		Text:           post.Content,
		MediaURLs:      post.MediaURLs,
		AltTexts:       post.AltTexts,
		Hashtags:       post.Hashtags,
		ContentWarning: post.ContentWarning,
	}
}
