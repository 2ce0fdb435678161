package job

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maheshrc27/postflow-engine/internal/models"
	"github.com/maheshrc27/postflow-engine/internal/repository"
	"github.com/maheshrc27/postflow-engine/internal/scheduler"
)

const (
	refreshWindow    = 30 * time.Minute
	concurrencyLimit = 10
	refreshTimeout   = 30 * time.Second
)

// TokenRefreshJob renews tokens shortly before they expire so scheduled posts
// rarely hit an expired token.
type TokenRefreshJob struct {
	sr     repository.SocialAccountRepository
	tokens *scheduler.TokenManager
	now    func() time.Time
}

func NewTokenRefreshJob(sr repository.SocialAccountRepository, tokens *scheduler.TokenManager) *TokenRefreshJob {
	return &TokenRefreshJob{
		sr:     sr,
		tokens: tokens,
		now:    time.Now,
	}
}

// RefreshTokens is the cron entry point.
func (c *TokenRefreshJob) RefreshTokens() {
	c.Run(context.Background())
}

// Run refreshes every account expiring within the window and reports how many
// were refreshed and how many failed.
func (c *TokenRefreshJob) Run(ctx context.Context) (refreshed, failed int) {
	accounts, err := c.sr.ListExpiring(ctx, c.now().Add(refreshWindow))
	if err != nil {
		slog.Info(err.Error())
		return 0, 0
	}

	var ok, bad atomic.Int32
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			refreshCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
			defer cancel()

			if err := c.tokens.Refresh(refreshCtx, acc); err != nil {
				bad.Add(1)
				slog.Info("Unable to refresh tokens",
					slog.Int64("account_id", acc.ID),
					slog.String("platform", string(acc.Platform)),
					slog.String("error", err.Error()),
				)
				return
			}
			ok.Add(1)
		}(acc)
	}
	wg.Wait()

	if len(accounts) > 0 {
		slog.Info("token refresh finished", slog.Int("refreshed", int(ok.Load())), slog.Int("failed", int(bad.Load())))
	}
	return int(ok.Load()), int(bad.Load())
}
