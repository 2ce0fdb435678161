package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/maheshrc27/postflow-engine/internal/models"
	"github.com/maheshrc27/postflow-engine/internal/transfer"
	"golang.org/x/oauth2"
)

const (
	facebookCharLimit = 63206
	facebookMaxPhotos = 10

	FacebookAuthURL  = "https://www.facebook.com/v21.0/dialog/oauth"
	FacebookGraphURL = "https://graph.facebook.com"
	facebookVersion  = "v21.0"
)

var facebookScopes = []string{"pages_show_list", "pages_read_engagement", "pages_manage_posts"}

type FacebookConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	GraphBaseURL string
}

// facebookAdapter publishes to the first Page the user manages. Page tokens
// issued from a long-lived user token do not expire, so there is no refresh.
type facebookAdapter struct {
	cfg      FacebookConfig
	endpoint oauth2.Endpoint
	api      apiClient
	graph    metaGraph
}

func NewFacebookAdapter(cfg FacebookConfig, client *http.Client) Adapter {
	cfg.AuthURL = defaultString(cfg.AuthURL, FacebookAuthURL)
	cfg.GraphBaseURL = strings.TrimRight(defaultString(cfg.GraphBaseURL, FacebookGraphURL), "/")

	api := newAPIClient(models.PlatformFacebook, client)
	graph := metaGraph{api: api, baseURL: cfg.GraphBaseURL, version: facebookVersion}
	return &facebookAdapter{
		cfg: cfg,
		endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthURL,
			TokenURL:  graph.endpoint("oauth/access_token", nil),
			AuthStyle: oauth2.AuthStyleInParams,
		},
		api:   api,
		graph: graph,
	}
}

func (a *facebookAdapter) Platform() models.Platform { return models.PlatformFacebook }

func (a *facebookAdapter) AuthURL(redirectURI, state string) string {
	return oauthConfig(a.cfg.ClientID, a.cfg.ClientSecret, a.endpoint, redirectURI, facebookScopes).AuthCodeURL(state)
}

func (a *facebookAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*Tokens, error) {
	conf := oauthConfig(a.cfg.ClientID, a.cfg.ClientSecret, a.endpoint, redirectURI, facebookScopes)
	tok, err := conf.Exchange(withClient(ctx, a.api.http), code)
	if err != nil {
		return nil, wrapOAuthError(models.PlatformFacebook, err)
	}

	var long transfer.MetaLongLivedToken
	err = a.api.get(ctx, a.graph.endpoint("oauth/access_token", url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {a.cfg.ClientID},
		"client_secret":     {a.cfg.ClientSecret},
		"fb_exchange_token": {tok.AccessToken},
	}), nil, &long)
	if err != nil {
		return nil, fmt.Errorf("failed to get long-lived token: %w", err)
	}

	var pages transfer.FacebookPagesResponse
	if err := a.graph.get(ctx, "me/accounts", long.AccessToken, url.Values{"fields": {"id,name,access_token"}}, &pages); err != nil {
		return nil, err
	}
	if len(pages.Data) == 0 {
		return nil, fmt.Errorf("Facebook: no managed pages found: %w", ErrMissingAccount)
	}

	page := pages.Data[0]
	return &Tokens{
		AccessToken: page.AccessToken,
		AccountID:   page.ID,
		AccountName: page.Name,
	}, nil
}

func (a *facebookAdapter) ValidateTokens(ctx context.Context, tokens Tokens) bool {
	var out transfer.MetaObject
	return a.graph.get(ctx, "me", tokens.AccessToken, url.Values{"fields": {"id"}}, &out) == nil
}

func (a *facebookAdapter) Post(ctx context.Context, content Content, tokens Tokens) Result {
	if tokens.AccountID == "" {
		return failed(ErrMissingAccount)
	}

	message := normalizedText(content, facebookCharLimit)

	var (
		postID string
		err    error
	)
	switch len(content.MediaURLs) {
	case 0:
		postID, err = a.graph.create(ctx, tokens.AccountID+"/feed", tokens.AccessToken, url.Values{"message": {message}})
	case 1:
		postID, err = a.postPhoto(ctx, content.MediaURLs[0], message, tokens)
	default:
		postID, err = a.postAlbum(ctx, content, message, tokens)
	}
	if err != nil {
		return failed(err)
	}

	return succeeded(postID, "https://www.facebook.com/"+postID)
}

// postPhoto publishes a single photo. The photo id and the feed post id differ;
// the post id is the one that resolves as a URL.
func (a *facebookAdapter) postPhoto(ctx context.Context, imageURL, message string, tokens Tokens) (string, error) {
	form := url.Values{
		"url":          {imageURL},
		"caption":      {message},
		"access_token": {tokens.AccessToken},
	}
	var out transfer.MetaObject
	if err := a.api.postForm(ctx, a.graph.endpoint(tokens.AccountID+"/photos", nil), nil, form, &out); err != nil {
		return "", err
	}
	if out.PostID != "" {
		return out.PostID, nil
	}
	if out.ID == "" {
		return "", ErrUnexpectedReply
	}
	return out.ID, nil
}

func (a *facebookAdapter) postAlbum(ctx context.Context, content Content, message string, tokens Tokens) (string, error) {
	params := url.Values{"message": {message}}
	for i, imageURL := range content.MediaURLs {
		if i == facebookMaxPhotos {
			break
		}
		photoID, err := a.graph.create(ctx, tokens.AccountID+"/photos", tokens.AccessToken, url.Values{
			"url":       {imageURL},
			"published": {"false"},
		})
		if err != nil {
			return "", fmt.Errorf("photo %d: %w", i+1, err)
		}
		attached, err := json.Marshal(transfer.FacebookAttachedMedia{MediaFBID: photoID})
		if err != nil {
			return "", err
		}
		params.Set(fmt.Sprintf("attached_media[%d]", i), string(attached))
	}
	return a.graph.create(ctx, tokens.AccountID+"/feed", tokens.AccessToken, params)
}
