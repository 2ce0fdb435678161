package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/postflow-engine/internal/models"
	"github.com/maheshrc27/postflow-engine/internal/transfer"
)

const (
	threadsCharLimit   = 500
	threadsMaxCarousel = 20

	ThreadsAuthURL  = "https://threads.net/oauth/authorize"
	ThreadsGraphURL = "https://graph.threads.net"
	threadsVersion  = "v1.0"
)

type ThreadsConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	GraphBaseURL string
	// Zero values use the package defaults.
	ContainerPollInterval time.Duration
	ContainerPollAttempts int
}

type threadsAdapter struct {
	cfg   ThreadsConfig
	api   apiClient
	graph metaGraph
	root  metaGraph
	poll  containerPoll
}

func NewThreadsAdapter(cfg ThreadsConfig, client *http.Client) Adapter {
	cfg.AuthURL = defaultString(cfg.AuthURL, ThreadsAuthURL)
	cfg.GraphBaseURL = strings.TrimRight(defaultString(cfg.GraphBaseURL, ThreadsGraphURL), "/")

	api := newAPIClient(models.PlatformThreads, client)
	return &threadsAdapter{
		cfg:   cfg,
		api:   api,
		graph: metaGraph{api: api, baseURL: cfg.GraphBaseURL, version: threadsVersion},
		root:  metaGraph{api: api, baseURL: cfg.GraphBaseURL},
		poll:  newContainerPoll(cfg.ContainerPollInterval, cfg.ContainerPollAttempts),
	}
}

func (a *threadsAdapter) Platform() models.Platform { return models.PlatformThreads }

func (a *threadsAdapter) AuthURL(redirectURI, state string) string {
	params := url.Values{}
	params.Add("client_id", a.cfg.ClientID)
	params.Add("redirect_uri", redirectURI)
	params.Add("scope", "threads_basic,threads_content_publish")
	params.Add("response_type", "code")
	params.Add("state", state)

	return fmt.Sprintf("%s?%s", a.cfg.AuthURL, params.Encode())
}

func (a *threadsAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*Tokens, error) {
	data := url.Values{}
	data.Set("client_id", a.cfg.ClientID)
	data.Set("client_secret", a.cfg.ClientSecret)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", redirectURI)
	data.Set("code", code)

	var short struct {
		AccessToken string `json:"access_token"`
	}
	if err := a.api.postForm(ctx, a.cfg.GraphBaseURL+"/oauth/access_token", nil, data, &short); err != nil {
		return nil, fmt.Errorf("failed to get short-lived token: %w", err)
	}

	var long transfer.MetaLongLivedToken
	err := a.root.get(ctx, "access_token", short.AccessToken, url.Values{
		"grant_type":    {"th_exchange_token"},
		"client_secret": {a.cfg.ClientSecret},
	}, &long)
	if err != nil {
		return nil, fmt.Errorf("failed to get long-lived token: %w", err)
	}

	var info transfer.ThreadsUserInfo
	if err := a.graph.get(ctx, "me", long.AccessToken, url.Values{"fields": {"id,username"}}, &info); err != nil {
		return nil, err
	}
	if info.ID == "" {
		return nil, ErrUnexpectedReply
	}

	return &Tokens{
		AccessToken:  long.AccessToken,
		RefreshToken: long.AccessToken,
		ExpiresAt:    expiresIn(long.ExpiresIn),
		AccountID:    info.ID,
		AccountName:  info.Username,
	}, nil
}

func (a *threadsAdapter) RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error) {
	var result transfer.MetaLongLivedToken
	err := a.root.get(ctx, "refresh_access_token", refreshToken, url.Values{"grant_type": {"th_refresh_token"}}, &result)
	if err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, ErrUnexpectedReply
	}
	return &Tokens{
		AccessToken:  result.AccessToken,
		RefreshToken: result.AccessToken,
		ExpiresAt:    expiresIn(result.ExpiresIn),
	}, nil
}

func (a *threadsAdapter) ValidateTokens(ctx context.Context, tokens Tokens) bool {
	var info transfer.ThreadsUserInfo
	return a.graph.get(ctx, "me", tokens.AccessToken, url.Values{"fields": {"id"}}, &info) == nil
}

func (a *threadsAdapter) Post(ctx context.Context, content Content, tokens Tokens) Result {
	if tokens.AccountID == "" {
		return failed(ErrMissingAccount)
	}

	text := normalizedText(content, threadsCharLimit)
	path := tokens.AccountID + "/threads"

	var params url.Values
	switch len(content.MediaURLs) {
	case 0:
		params = url.Values{"media_type": {"TEXT"}, "text": {text}}
	case 1:
		params = url.Values{"media_type": {"IMAGE"}, "image_url": {content.MediaURLs[0]}, "text": {text}}
		if alt := content.AltText(0); alt != "" {
			params.Set("alt_text", alt)
		}
	default:
		children, err := a.carouselItems(ctx, path, content, tokens.AccessToken)
		if err != nil {
			return failed(err)
		}
		params = url.Values{"media_type": {"CAROUSEL"}, "children": {strings.Join(children, ",")}, "text": {text}}
	}

	containerID, err := a.graph.create(ctx, path, tokens.AccessToken, params)
	if err != nil {
		return failed(err)
	}

	err = a.graph.waitReady(ctx, containerID, tokens.AccessToken, "status,error_message", a.poll,
		func(s transfer.MetaContainerStatus) (string, string) { return s.Status, s.ErrorMessage })
	if err != nil {
		return failed(err)
	}

	threadID, err := a.graph.create(ctx, tokens.AccountID+"/threads_publish", tokens.AccessToken, url.Values{"creation_id": {containerID}})
	if err != nil {
		return failed(err)
	}

	return succeeded(threadID, a.graph.permalink(ctx, threadID, tokens.AccessToken, "https://www.threads.net/@"+tokens.AccountName))
}

func (a *threadsAdapter) carouselItems(ctx context.Context, path string, content Content, accessToken string) ([]string, error) {
	ids := make([]string, 0, len(content.MediaURLs))
	for i, mediaURL := range content.MediaURLs {
		if i == threadsMaxCarousel {
			break
		}
		params := url.Values{
			"media_type":       {"IMAGE"},
			"image_url":        {mediaURL},
			"is_carousel_item": {"true"},
		}
		if alt := content.AltText(i); alt != "" {
			params.Set("alt_text", alt)
		}
		id, err := a.graph.create(ctx, path, accessToken, params)
		if err != nil {
			return nil, fmt.Errorf("carousel item %d: %w", i+1, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
