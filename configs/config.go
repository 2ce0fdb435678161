package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

// OAuthClient holds the application credentials registered with one platform.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

type Scheduler struct {
	CheckInterval          time.Duration
	BatchSize              int
	MaxRetries             int
	RetryDelay             time.Duration
	GracePeriod            time.Duration
	PublishTimeout         time.Duration
	CountPreflightFailures bool
	Autostart              bool
	// RateLimits maps a platform name to the minimum spacing between its API calls.
	RateLimits map[string]time.Duration
}

type Config struct {
	Port     string
	LogLevel string

	PostgresURI      string
	RedisURI         string
	SecretKey        string
	OperatorAPIKey   string
	FrontendURL      string
	NotifyWebhookURL string

	Scheduler Scheduler

	LinkedIn  OAuthClient
	Twitter   OAuthClient
	Facebook  OAuthClient
	Instagram OAuthClient
	Threads   OAuthClient
	Mastodon  OAuthClient

	MastodonInstanceURL string
	BlueskyPDSURL       string

	R2 R2
}

var defaultRateLimits = map[string]time.Duration{
	"linkedin":  1000 * time.Millisecond,
	"twitter":   2000 * time.Millisecond,
	"facebook":  500 * time.Millisecond,
	"instagram": 1000 * time.Millisecond,
	"threads":   1000 * time.Millisecond,
	"bluesky":   500 * time.Millisecond,
	"mastodon":  500 * time.Millisecond,
}

func LoadConfig() *Config {
	rateLimits := make(map[string]time.Duration, len(defaultRateLimits))
	for platform, def := range defaultRateLimits {
		rateLimits[platform] = getEnvMillis("RATE_LIMIT_MS_"+strings.ToUpper(platform), def)
	}

	return &Config{
		Port:     getEnv("PORT", "3000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		PostgresURI:      getEnv("POSTGRES_URI", ""),
		RedisURI:         getEnv("REDIS_URI", ""),
		SecretKey:        getEnv("SECRET_KEY", ""),
		OperatorAPIKey:   getEnv("OPERATOR_API_KEY", ""),
		FrontendURL:      getEnv("FRONTEND_URL", "http://localhost:5173"),
		NotifyWebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),

		Scheduler: Scheduler{
			CheckInterval:          getEnvMillis("CHECK_INTERVAL_MS", 60*time.Second),
			BatchSize:              getEnvInt("BATCH_SIZE", 10),
			MaxRetries:             getEnvInt("MAX_RETRIES", 3),
			RetryDelay:             getEnvMillis("RETRY_DELAY_MS", 5*time.Minute),
			GracePeriod:            getEnvMillis("GRACE_PERIOD_MS", 5*time.Minute),
			PublishTimeout:         getEnvMillis("PUBLISH_TIMEOUT_MS", 2*time.Minute),
			CountPreflightFailures: getEnvBool("COUNT_PREFLIGHT_FAILURES", true),
			Autostart:              getEnvBool("SCHEDULER_AUTOSTART", true),
			RateLimits:             rateLimits,
		},

		LinkedIn:  loadOAuthClient("LINKEDIN"),
		Twitter:   loadOAuthClient("TWITTER"),
		Facebook:  loadOAuthClient("FACEBOOK"),
		Instagram: loadOAuthClient("INSTAGRAM"),
		Threads:   loadOAuthClient("THREADS"),
		Mastodon:  loadOAuthClient("MASTODON"),

		MastodonInstanceURL: strings.TrimRight(getEnv("MASTODON_INSTANCE_URL", "https://mastodon.social"), "/"),
		BlueskyPDSURL:       strings.TrimRight(getEnv("BLUESKY_PDS_URL", "https://bsky.social"), "/"),

		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  strings.TrimRight(getEnv("R2_PUBLIC_URL", ""), "/"),
		},
	}
}

// Validate reports settings the engine cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.PostgresURI == "" {
		errs = append(errs, errors.New("POSTGRES_URI is required"))
	}
	switch len(c.SecretKey) {
	case 16, 24, 32:
	default:
		errs = append(errs, fmt.Errorf("SECRET_KEY must be 16, 24 or 32 bytes, got %d", len(c.SecretKey)))
	}
	if c.Scheduler.BatchSize <= 0 {
		errs = append(errs, errors.New("BATCH_SIZE must be positive"))
	}
	if c.Scheduler.MaxRetries <= 0 {
		errs = append(errs, errors.New("MAX_RETRIES must be positive"))
	}
	if c.Scheduler.CheckInterval < time.Second {
		errs = append(errs, errors.New("CHECK_INTERVAL_MS must be at least 1000"))
	}
	return errors.Join(errs...)
}

// R2Enabled reports whether app-hosted media can be read from the bucket.
func (c *Config) R2Enabled() bool {
	return c.R2.AccountID != "" && c.R2.AccessKey != "" && c.R2.BucketName != "" && c.R2.PublicURL != ""
}

func loadOAuthClient(prefix string) OAuthClient {
	return OAuthClient{
		ClientID:     getEnv(prefix+"_CLIENT_ID", ""),
		ClientSecret: getEnv(prefix+"_CLIENT_SECRET", ""),
		RedirectURI:  getEnv(prefix+"_REDIRECT_URI", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvMillis reads an integer number of milliseconds.
func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
