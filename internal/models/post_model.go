package models

import (
	"fmt"
	"strings"
	"time"
)

type Platform string

const (
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTwitter   Platform = "twitter"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformThreads   Platform = "threads"
	PlatformBluesky   Platform = "bluesky"
	PlatformMastodon  Platform = "mastodon"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{
	PlatformLinkedIn,
	PlatformTwitter,
	PlatformFacebook,
	PlatformInstagram,
	PlatformThreads,
	PlatformBluesky,
	PlatformMastodon,
}

func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

// DisplayName is the human readable platform name used in user-facing messages.
func (p Platform) DisplayName() string {
	switch p {
	case PlatformLinkedIn:
		return "LinkedIn"
	case PlatformTwitter:
		return "Twitter"
	case PlatformFacebook:
		return "Facebook"
	case PlatformInstagram:
		return "Instagram"
	case PlatformThreads:
		return "Threads"
	case PlatformBluesky:
		return "Bluesky"
	case PlatformMastodon:
		return "Mastodon"
	}
	return string(p)
}

// ParsePlatform accepts the platform names used in routes and env keys, plus "x" for Twitter.
func ParsePlatform(s string) (Platform, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "x" {
		return PlatformTwitter, nil
	}
	p := Platform(s)
	if !p.Valid() {
		return "", fmt.Errorf("unsupported platform %q", s)
	}
	return p, nil
}

type Post struct {
	ID              int64      `db:"id" json:"id"`
	UserID          int64      `db:"user_id" json:"user_id"`
	Platform        Platform   `db:"platform" json:"platform"`
	Content         string     `db:"content" json:"content"`
	MediaURLs       []string   `db:"media_urls" json:"media_urls,omitempty"`
	AltTexts        []string   `db:"alt_texts" json:"alt_texts,omitempty"`
	Hashtags        []string   `db:"hashtags" json:"hashtags,omitempty"`
	ContentWarning  string     `db:"content_warning" json:"content_warning,omitempty"`
	Status          string     `db:"status" json:"status"` // draft, scheduled, published, failed
	ScheduledAt     *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	PublishedAt     *time.Time `db:"published_at" json:"published_at,omitempty"`
	ExternalPostID  string     `db:"external_post_id" json:"external_post_id,omitempty"`
	ExternalPostURL string     `db:"external_post_url" json:"external_post_url,omitempty"`
	ErrorMessage    string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// PostUpdate carries the columns to change; nil fields are left untouched.
type PostUpdate struct {
	Status          *string
	PublishedAt     *time.Time
	ExternalPostID  *string
	ExternalPostURL *string
	ErrorMessage    *string
}

// PostingResult is the outcome of one publish attempt. It is never persisted.
type PostingResult struct {
	PostID     int64    `json:"post_id"`
	Platform   Platform `json:"platform"`
	Success    bool     `json:"success"`
	PostURL    string   `json:"post_url,omitempty"`
	ExternalID string   `json:"external_id,omitempty"`
	Error      string   `json:"error,omitempty"`
	RetryCount int      `json:"retry_count"`
}

const (
	PostStatusDraft     = "draft"
	PostStatusScheduled = "scheduled"
	PostStatusPublished = "published"
	PostStatusFailed    = "failed"
)
