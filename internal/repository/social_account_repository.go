package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maheshrc27/postflow-engine/internal/models"
	"github.com/maheshrc27/postflow-engine/pkg/utils"
)

type SocialAccountRepository interface {
	// GetActiveByPlatform returns the user's active account for the platform, or nil when none is connected.
	GetActiveByPlatform(ctx context.Context, userID int64, platform models.Platform) (*models.SocialAccount, error)
	// ListExpiring returns active accounts holding a refresh token whose access token expires at or before the given instant.
	ListExpiring(ctx context.Context, before time.Time) ([]*models.SocialAccount, error)
	// Connect stores a freshly linked account and deactivates any other account the user had on that platform.
	Connect(ctx context.Context, sa *models.SocialAccount) (int64, error)
	Update(ctx context.Context, id int64, upd *models.SocialAccountUpdate) error
}

type socialAccountRepository struct {
	db  *sql.DB
	key []byte
}

// NewSocialAccountRepository seals tokens at rest with the given AES key.
func NewSocialAccountRepository(db *sql.DB, secretKey string) SocialAccountRepository {
	return &socialAccountRepository{db: db, key: []byte(secretKey)}
}

const socialAccountColumns = `id, user_id, platform, account_id, account_name, access_token,
	COALESCE(refresh_token, ''), token_expires_at, is_active, created_at, updated_at`

func (r *socialAccountRepository) scan(row rowScanner) (*models.SocialAccount, error) {
	var sa models.SocialAccount
	var expiresAt sql.NullTime
	err := row.Scan(&sa.ID, &sa.UserID, &sa.Platform, &sa.AccountID, &sa.AccountName,
		&sa.AccessToken, &sa.RefreshToken, &expiresAt, &sa.IsActive, &sa.CreatedAt, &sa.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		sa.TokenExpiresAt = &expiresAt.Time
	}

	if sa.AccessToken, err = r.open(sa.AccessToken); err != nil {
		return nil, fmt.Errorf("open access token for account %d: %w", sa.ID, err)
	}
	if sa.RefreshToken, err = r.open(sa.RefreshToken); err != nil {
		return nil, fmt.Errorf("open refresh token for account %d: %w", sa.ID, err)
	}
	return &sa, nil
}

func (r *socialAccountRepository) seal(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	return utils.Encrypt([]byte(token), r.key)
}

func (r *socialAccountRepository) open(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	return utils.Decrypt(token, r.key)
}

func (r *socialAccountRepository) GetActiveByPlatform(ctx context.Context, userID int64, platform models.Platform) (*models.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + ` FROM social_accounts
		WHERE user_id = $1 AND platform = $2 AND is_active = TRUE
		ORDER BY updated_at DESC
		LIMIT 1`

	sa, err := r.scan(r.db.QueryRowContext(ctx, query, userID, platform))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return sa, nil
}

func (r *socialAccountRepository) ListExpiring(ctx context.Context, before time.Time) ([]*models.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + ` FROM social_accounts
		WHERE is_active = TRUE
		AND refresh_token IS NOT NULL AND refresh_token <> ''
		AND token_expires_at IS NOT NULL AND token_expires_at <= $1`

	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.SocialAccount
	for rows.Next() {
		sa, err := r.scan(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, sa)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return accounts, nil
}

func (r *socialAccountRepository) Connect(ctx context.Context, sa *models.SocialAccount) (int64, error) {
	accessToken, err := r.seal(sa.AccessToken)
	if err != nil {
		return 0, err
	}
	refreshToken, err := r.seal(sa.RefreshToken)
	if err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	defer tx.Rollback()

	deactivateQuery := `
		UPDATE social_accounts
		SET is_active = FALSE, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $1 AND platform = $2 AND is_active = TRUE
	`
	if _, err := tx.ExecContext(ctx, deactivateQuery, sa.UserID, sa.Platform); err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	insertQuery := `
		INSERT INTO social_accounts(
			user_id,
			platform,
			account_id,
			account_name,
			access_token,
			refresh_token,
			token_expires_at,
			is_active
		)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, TRUE)
		RETURNING id
	`
	var id int64
	err = tx.QueryRowContext(ctx, insertQuery,
		sa.UserID,
		sa.Platform,
		sa.AccountID,
		sa.AccountName,
		accessToken,
		refreshToken,
		sa.TokenExpiresAt,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *socialAccountRepository) Update(ctx context.Context, id int64, upd *models.SocialAccountUpdate) error {
	if upd == nil {
		return nil
	}

	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.AccessToken != nil {
		sealed, err := r.seal(*upd.AccessToken)
		if err != nil {
			return err
		}
		add("access_token", sealed)
	}
	if upd.RefreshToken != nil && *upd.RefreshToken != "" {
		sealed, err := r.seal(*upd.RefreshToken)
		if err != nil {
			return err
		}
		add("refresh_token", sealed)
	}
	if upd.TokenExpiresAt != nil {
		add("token_expires_at", *upd.TokenExpiresAt)
	} else if upd.ClearTokenExpiry {
		sets = append(sets, "token_expires_at = NULL")
	}
	if upd.IsActive != nil {
		add("is_active", *upd.IsActive)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE social_accounts SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		slog.Info("no rows affected; social account may not exist")
		return fmt.Errorf("social account %d not found", id)
	}
	return nil
}
