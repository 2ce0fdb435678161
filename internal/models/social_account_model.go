package models

import (
	"time"
)

type SocialAccount struct {
	ID             int64      `db:"id" json:"id"`
	UserID         int64      `db:"user_id" json:"user_id"`
	Platform       Platform   `db:"platform" json:"platform"`
	AccountID      string     `db:"account_id" json:"account_id"`
	AccountName    string     `db:"account_name" json:"account_name"`
	AccessToken    string     `db:"access_token" json:"-"`
	RefreshToken   string     `db:"refresh_token" json:"-"`
	TokenExpiresAt *time.Time `db:"token_expires_at" json:"token_expires_at,omitempty"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// TokenExpired reports whether the access token is past its expiry at now.
// Accounts without an expiry never expire.
func (sa *SocialAccount) TokenExpired(now time.Time) bool {
	return sa.TokenExpiresAt != nil && !sa.TokenExpiresAt.After(now)
}

type SocialAccountUpdate struct {
	AccessToken    *string
	RefreshToken   *string
	TokenExpiresAt *time.Time
	// ClearTokenExpiry nulls the stored expiry when TokenExpiresAt is nil.
	ClearTokenExpiry bool
	IsActive         *bool
}
