package scheduler

import (
	"context"
	"log/slog"

	"github.com/maheshrc27/postflow-engine/internal/models"
	"github.com/maheshrc27/postflow-engine/internal/platform"
	"github.com/maheshrc27/postflow-engine/internal/repository"
)

// TokenManager keeps account tokens usable: it refreshes expired ones through
// the platform adapter and writes the result back right away.
type TokenManager struct {
	accounts repository.SocialAccountRepository
	registry *platform.Registry
	clock    Clock
	logger   *slog.Logger
}

func NewTokenManager(accounts repository.SocialAccountRepository, registry *platform.Registry, clock Clock, logger *slog.Logger) *TokenManager {
	if clock == nil {
		clock = RealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenManager{accounts: accounts, registry: registry, clock: clock, logger: logger}
}

// Ensure returns tokens for acc, refreshing them first if they have expired.
func (m *TokenManager) Ensure(ctx context.Context, acc *models.SocialAccount) (platform.Tokens, error) {
	if acc.TokenExpired(m.clock.Now()) {
		if err := m.Refresh(ctx, acc); err != nil {
			return platform.Tokens{}, err
		}
	}
	return TokensOf(acc), nil
}

// Refresh renews the account's tokens and updates acc in place. It fails with
// ErrTokenExpired when the platform cannot refresh or the refresh is rejected.
func (m *TokenManager) Refresh(ctx context.Context, acc *models.SocialAccount) error {
	refresher, ok := m.registry.Refresher(acc.Platform)
	if !ok || acc.RefreshToken == "" {
		return tokenExpiredError(acc.Platform, nil)
	}

	tok, err := refresher.RefreshToken(ctx, acc.RefreshToken)
	if err != nil {
		m.logger.Warn("token refresh failed",
			slog.Int64("account_id", acc.ID),
			slog.String("platform", string(acc.Platform)),
			slog.String("error", err.Error()),
		)
		return tokenExpiredError(acc.Platform, err)
	}

	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = acc.RefreshToken
	}
	upd := &models.SocialAccountUpdate{
		AccessToken:      &tok.AccessToken,
		RefreshToken:     &refreshToken,
		TokenExpiresAt:   tok.ExpiresAt,
		ClearTokenExpiry: tok.ExpiresAt == nil,
	}
	if err := m.accounts.Update(ctx, acc.ID, upd); err != nil {
		// The fresh token still works for this attempt.
		m.logger.Error("failed to persist refreshed token",
			slog.Int64("account_id", acc.ID),
			slog.String("platform", string(acc.Platform)),
			slog.String("error", err.Error()),
		)
	}

	acc.AccessToken = tok.AccessToken
	acc.RefreshToken = refreshToken
	acc.TokenExpiresAt = tok.ExpiresAt
	return nil
}

// TokensOf converts a stored account into adapter credentials.
func TokensOf(acc *models.SocialAccount) platform.Tokens {
	return platform.Tokens{
		AccessToken:  acc.AccessToken,
		RefreshToken: acc.RefreshToken,
		ExpiresAt:    acc.TokenExpiresAt,
		AccountID:    acc.AccountID,
		AccountName:  acc.AccountName,
	}
}
