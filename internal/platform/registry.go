package platform

import (
	"net/http"

	config "github.com/maheshrc27/postflow-engine/configs"
	"github.com/maheshrc27/postflow-engine/internal/media"
)

// NewDefaultRegistry builds the registry with one adapter per supported platform.
func NewDefaultRegistry(cfg *config.Config, client *http.Client, fetcher media.Fetcher) *Registry {
	return NewRegistry(
		NewLinkedInAdapter(LinkedInConfig{
			ClientID:     cfg.LinkedIn.ClientID,
			ClientSecret: cfg.LinkedIn.ClientSecret,
		}, client, fetcher),
		NewTwitterAdapter(TwitterConfig{
			ClientID:     cfg.Twitter.ClientID,
			ClientSecret: cfg.Twitter.ClientSecret,
		}, client, fetcher),
		NewFacebookAdapter(FacebookConfig{
			ClientID:     cfg.Facebook.ClientID,
			ClientSecret: cfg.Facebook.ClientSecret,
		}, client),
		NewInstagramAdapter(InstagramConfig{
			ClientID:     cfg.Instagram.ClientID,
			ClientSecret: cfg.Instagram.ClientSecret,
		}, client),
		NewThreadsAdapter(ThreadsConfig{
			ClientID:     cfg.Threads.ClientID,
			ClientSecret: cfg.Threads.ClientSecret,
		}, client),
		NewBlueskyAdapter(BlueskyConfig{PDSURL: cfg.BlueskyPDSURL}, client, fetcher),
		NewMastodonAdapter(MastodonConfig{
			ClientID:     cfg.Mastodon.ClientID,
			ClientSecret: cfg.Mastodon.ClientSecret,
			InstanceURL:  cfg.MastodonInstanceURL,
		}, client, fetcher),
	)
}
