package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/maheshrc27/postflow-engine/internal/models"
	"github.com/maheshrc27/postflow-engine/internal/transfer"
)

const (
	instagramCharLimit   = 2200
	instagramMaxCarousel = 10

	InstagramAuthURL  = "https://www.instagram.com/oauth/authorize"
	InstagramTokenURL = "https://api.instagram.com/oauth/access_token"
	InstagramGraphURL = "https://graph.instagram.com"
	instagramVersion  = "v21.0"
)

type InstagramConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	GraphBaseURL string
	// Zero values use the package defaults.
	ContainerPollInterval time.Duration
	ContainerPollAttempts int
}

type instagramAdapter struct {
	cfg   InstagramConfig
	api   apiClient
	graph metaGraph
	poll  containerPoll
	// unversioned token endpoints live at the graph root
	root metaGraph
}

func NewInstagramAdapter(cfg InstagramConfig, client *http.Client) Adapter {
	cfg.AuthURL = defaultString(cfg.AuthURL, InstagramAuthURL)
	cfg.TokenURL = defaultString(cfg.TokenURL, InstagramTokenURL)
	cfg.GraphBaseURL = defaultString(cfg.GraphBaseURL, InstagramGraphURL)

	api := newAPIClient(models.PlatformInstagram, client)
	return &instagramAdapter{
		cfg:   cfg,
		api:   api,
		graph: metaGraph{api: api, baseURL: cfg.GraphBaseURL, version: instagramVersion},
		poll:  newContainerPoll(cfg.ContainerPollInterval, cfg.ContainerPollAttempts),
		root:  metaGraph{api: api, baseURL: cfg.GraphBaseURL},
	}
}

func (a *instagramAdapter) Platform() models.Platform { return models.PlatformInstagram }

func (a *instagramAdapter) AuthURL(redirectURI, state string) string {
	params := url.Values{}
	params.Add("client_id", a.cfg.ClientID)
	params.Add("scope", "instagram_business_basic,instagram_business_content_publish")
	params.Add("response_type", "code")
	params.Add("redirect_uri", redirectURI)
	params.Add("state", state)

	return fmt.Sprintf("%s?%s", a.cfg.AuthURL, params.Encode())
}

func (a *instagramAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*Tokens, error) {
	data := url.Values{}
	data.Set("client_id", a.cfg.ClientID)
	data.Set("client_secret", a.cfg.ClientSecret)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", redirectURI)
	data.Set("code", code)

	var short struct {
		AccessToken string `json:"access_token"`
		UserID      int64  `json:"user_id"`
	}
	if err := a.api.postForm(ctx, a.cfg.TokenURL, nil, data, &short); err != nil {
		return nil, fmt.Errorf("failed to get short-lived token: %w", err)
	}

	// Short-lived tokens last an hour; trade for a 60 day one right away.
	var long transfer.MetaLongLivedToken
	err := a.root.get(ctx, "access_token", short.AccessToken, url.Values{
		"grant_type":    {"ig_exchange_token"},
		"client_secret": {a.cfg.ClientSecret},
	}, &long)
	if err != nil {
		return nil, fmt.Errorf("failed to get long-lived token: %w", err)
	}

	var info transfer.InstagramUserInfo
	if err := a.graph.get(ctx, "me", long.AccessToken, url.Values{"fields": {"user_id,username,name"}}, &info); err != nil {
		return nil, err
	}

	accountID := info.UserID
	if accountID == "" {
		accountID = strconv.FormatInt(short.UserID, 10)
	}
	return &Tokens{
		AccessToken: long.AccessToken,
		// Instagram refreshes a long-lived token with the token itself.
		RefreshToken: long.AccessToken,
		ExpiresAt:    expiresIn(long.ExpiresIn),
		AccountID:    accountID,
		AccountName:  info.Username,
	}, nil
}

func (a *instagramAdapter) RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error) {
	var result transfer.MetaLongLivedToken
	err := a.root.get(ctx, "refresh_access_token", refreshToken, url.Values{"grant_type": {"ig_refresh_token"}}, &result)
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

func (a *instagramAdapter) ValidateTokens(ctx context.Context, tokens Tokens) bool {
	var info transfer.InstagramUserInfo
	return a.graph.get(ctx, "me", tokens.AccessToken, url.Values{"fields": {"user_id"}}, &info) == nil
}

func (a *instagramAdapter) Post(ctx context.Context, content Content, tokens Tokens) Result {
	if len(content.MediaURLs) == 0 {
		return failed(fmt.Errorf("Instagram: %w", ErrMediaRequired))
	}
	if tokens.AccountID == "" {
		return failed(ErrMissingAccount)
	}

	caption := normalizedText(content, instagramCharLimit)

	var containerID string
	var err error
	if len(content.MediaURLs) == 1 {
		containerID, err = a.singleContainer(ctx, content, caption, tokens)
	} else {
		containerID, err = a.carouselContainer(ctx, content, caption, tokens)
	}
	if err != nil {
		return failed(err)
	}

	err = a.graph.waitReady(ctx, containerID, tokens.AccessToken, "status_code,status", a.poll,
		func(s transfer.MetaContainerStatus) (string, string) { return s.StatusCode, s.Status })
	if err != nil {
		return failed(err)
	}

	mediaID, err := a.graph.create(ctx, tokens.AccountID+"/media_publish", tokens.AccessToken, url.Values{"creation_id": {containerID}})
	if err != nil {
		return failed(err)
	}

	return succeeded(mediaID, a.graph.permalink(ctx, mediaID, tokens.AccessToken, "https://www.instagram.com/"+tokens.AccountName))
}

func (a *instagramAdapter) singleContainer(ctx context.Context, content Content, caption string, tokens Tokens) (string, error) {
	params := url.Values{
		"image_url": {content.MediaURLs[0]},
		"caption":   {caption},
	}
	if alt := content.AltText(0); alt != "" {
		params.Set("alt_text", alt)
	}
	return a.graph.create(ctx, tokens.AccountID+"/media", tokens.AccessToken, params)
}

func (a *instagramAdapter) carouselContainer(ctx context.Context, content Content, caption string, tokens Tokens) (string, error) {
	children := make([]string, 0, len(content.MediaURLs))
	for i, mediaURL := range content.MediaURLs {
		if i == instagramMaxCarousel {
			break
		}
		params := url.Values{
			"image_url":        {mediaURL},
			"is_carousel_item": {"true"},
		}
		if alt := content.AltText(i); alt != "" {
			params.Set("alt_text", alt)
		}
		id, err := a.graph.create(ctx, tokens.AccountID+"/media", tokens.AccessToken, params)
		if err != nil {
			return "", fmt.Errorf("carousel item %d: %w", i+1, err)
		}
		children = append(children, id)
	}

	return a.graph.create(ctx, tokens.AccountID+"/media", tokens.AccessToken, url.Values{
		"media_type": {"CAROUSEL"},
		"caption":    {caption},
		"children":   {strings.Join(children, ",")},
	})
}
