package platform

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/maheshrc27/postflow-engine/internal/media"
	"github.com/maheshrc27/postflow-engine/internal/models"
	"github.com/maheshrc27/postflow-engine/internal/transfer"
	"golang.org/x/oauth2"
)

const (
	linkedinCharLimit = 3000
	linkedinMaxImages = 9
	linkedinVersion   = "202410"

	LinkedInAuthURL  = "https://www.linkedin.com/oauth/v2/authorization"
	LinkedInTokenURL = "https://www.linkedin.com/oauth/v2/accessToken"
	LinkedInAPIURL   = "https://api.linkedin.com"
)

var linkedinScopes = []string{"openid", "profile", "w_member_social"}

// Characters that carry meaning in LinkedIn's "little text" commentary format.
var littleTextEscaper = strings.NewReplacer(
	`\`, `\\`, `|`, `\|`, `{`, `\{`, `}`, `\}`, `@`, `\@`,
	`[`, `\[`, `]`, `\]`, `(`, `\(`, `)`, `\)`, `<`, `\<`, `>`, `\>`,
	`*`, `\*`, `_`, `\_`, `~`, `\~`,
)

type LinkedInConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
}

type linkedinAdapter struct {
	cfg      LinkedInConfig
	endpoint oauth2.Endpoint
	api      apiClient
	media    media.Fetcher
}

func NewLinkedInAdapter(cfg LinkedInConfig, client *http.Client, fetcher media.Fetcher) Adapter {
	cfg.AuthURL = defaultString(cfg.AuthURL, LinkedInAuthURL)
	cfg.TokenURL = defaultString(cfg.TokenURL, LinkedInTokenURL)
	cfg.APIBaseURL = strings.TrimRight(defaultString(cfg.APIBaseURL, LinkedInAPIURL), "/")
	return &linkedinAdapter{
		cfg:      cfg,
		endpoint: oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL, AuthStyle: oauth2.AuthStyleInParams},
		api:      newAPIClient(models.PlatformLinkedIn, client),
		media:    fetcher,
	}
}

func (a *linkedinAdapter) Platform() models.Platform { return models.PlatformLinkedIn }

func (a *linkedinAdapter) oauth(redirectURI string) *oauth2.Config {
	return oauthConfig(a.cfg.ClientID, a.cfg.ClientSecret, a.endpoint, redirectURI, linkedinScopes)
}

func (a *linkedinAdapter) AuthURL(redirectURI, state string) string {
	return a.oauth(redirectURI).AuthCodeURL(state)
}

func (a *linkedinAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*Tokens, error) {
	tok, err := a.oauth(redirectURI).Exchange(withClient(ctx, a.api.http), code)
	if err != nil {
		return nil, wrapOAuthError(models.PlatformLinkedIn, err)
	}
	tokens := tokensFromOAuth(tok)

	info, err := a.userInfo(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	tokens.AccountID = info.Sub
	tokens.AccountName = info.Name
	return tokens, nil
}

func (a *linkedinAdapter) RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error) {
	src := a.oauth("").TokenSource(withClient(ctx, a.api.http), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, wrapOAuthError(models.PlatformLinkedIn, err)
	}
	return tokensFromOAuth(tok), nil
}

func (a *linkedinAdapter) ValidateTokens(ctx context.Context, tokens Tokens) bool {
	_, err := a.userInfo(ctx, tokens.AccessToken)
	return err == nil
}

func (a *linkedinAdapter) userInfo(ctx context.Context, accessToken string) (*transfer.LinkedInUserInfo, error) {
	var info transfer.LinkedInUserInfo
	if err := a.api.get(ctx, a.cfg.APIBaseURL+"/v2/userinfo", bearer(accessToken), &info); err != nil {
		return nil, err
	}
	if info.Sub == "" {
		return nil, ErrUnexpectedReply
	}
	return &info, nil
}

func (a *linkedinAdapter) restHeaders(accessToken string) map[string]string {
	h := bearer(accessToken)
	h["LinkedIn-Version"] = linkedinVersion
	h["X-Restli-Protocol-Version"] = "2.0.0"
	return h
}

func (a *linkedinAdapter) Post(ctx context.Context, content Content, tokens Tokens) Result {
	if tokens.AccountID == "" {
		return failed(ErrMissingAccount)
	}
	author := "urn:li:person:" + tokens.AccountID

	images, err := a.uploadImages(ctx, content, author, tokens.AccessToken)
	if err != nil {
		return failed(err)
	}

	payload := transfer.LinkedInPostRequest{
		Author:     author,
		Commentary: littleTextEscaper.Replace(normalizedText(content, linkedinCharLimit)),
		Visibility: "PUBLIC",
		Distribution: transfer.LinkedInDistribution{
			FeedDistribution:               "MAIN_FEED",
			TargetEntities:                 []string{},
			ThirdPartyDistributionChannels: []string{},
		},
		LifecycleState: "PUBLISHED",
	}
	switch len(images) {
	case 0:
	case 1:
		payload.Content = &transfer.LinkedInPostContent{Media: &images[0]}
	default:
		payload.Content = &transfer.LinkedInPostContent{MultiImage: &transfer.LinkedInMultiImage{Images: images}}
	}

	headers, err := a.api.postJSON(ctx, a.cfg.APIBaseURL+"/rest/posts", a.restHeaders(tokens.AccessToken), payload, nil)
	if err != nil {
		return failed(err)
	}

	urn := headers.Get("x-restli-id")
	if urn == "" {
		return failed(ErrUnexpectedReply)
	}
	return succeeded(urn, "https://www.linkedin.com/feed/update/"+urn)
}

func (a *linkedinAdapter) uploadImages(ctx context.Context, content Content, author, accessToken string) ([]transfer.LinkedInMedia, error) {
	if len(content.MediaURLs) == 0 || a.media == nil {
		return nil, nil
	}

	var images []transfer.LinkedInMedia
	for i, mediaURL := range content.MediaURLs {
		if i == linkedinMaxImages {
			break
		}
		obj, err := a.media.Fetch(ctx, mediaURL)
		if err != nil {
			return nil, fmt.Errorf("fetch media %d: %w", i+1, err)
		}
		if !obj.IsImage() {
			return nil, fmt.Errorf("media %d: %w", i+1, media.ErrUnsupported)
		}

		var req transfer.LinkedInInitializeUploadRequest
		req.InitializeUploadRequest.Owner = author
		var init transfer.LinkedInInitializeUploadResponse
		if _, err := a.api.postJSON(ctx, a.cfg.APIBaseURL+"/rest/images?action=initializeUpload", a.restHeaders(accessToken), req, &init); err != nil {
			return nil, err
		}
		if init.Value.UploadURL == "" || init.Value.Image == "" {
			return nil, ErrUnexpectedReply
		}

		if err := a.api.sendRaw(ctx, http.MethodPut, init.Value.UploadURL, bearer(accessToken), obj.MIME, obj.Data, nil); err != nil {
			return nil, fmt.Errorf("upload media %d: %w", i+1, err)
		}
		images = append(images, transfer.LinkedInMedia{ID: init.Value.Image, AltText: content.AltText(i)})
	}
	return images, nil
}
