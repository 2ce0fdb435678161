package platform

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/maheshrc27/postflow-engine/internal/media"
	"github.com/maheshrc27/postflow-engine/internal/models"
	"github.com/maheshrc27/postflow-engine/internal/transfer"
	"golang.org/x/oauth2"
)

const (
	twitterCharLimit = 280
	twitterMaxMedia  = 4

	TwitterAuthURL  = "https://x.com/i/oauth2/authorize"
	TwitterTokenURL = "https://api.x.com/2/oauth2/token"
	TwitterAPIURL   = "https://api.x.com"
)

var twitterScopes = []string{"tweet.read", "tweet.write", "users.read", "media.write", "offline.access"}

type TwitterConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
}

type twitterAdapter struct {
	cfg      TwitterConfig
	endpoint oauth2.Endpoint
	api      apiClient
	media    media.Fetcher
}

func NewTwitterAdapter(cfg TwitterConfig, client *http.Client, fetcher media.Fetcher) Adapter {
	cfg.AuthURL = defaultString(cfg.AuthURL, TwitterAuthURL)
	cfg.TokenURL = defaultString(cfg.TokenURL, TwitterTokenURL)
	cfg.APIBaseURL = strings.TrimRight(defaultString(cfg.APIBaseURL, TwitterAPIURL), "/")
	return &twitterAdapter{
		cfg:      cfg,
		endpoint: oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL, AuthStyle: oauth2.AuthStyleInHeader},
		api:      newAPIClient(models.PlatformTwitter, client),
		media:    fetcher,
	}
}

func (a *twitterAdapter) Platform() models.Platform { return models.PlatformTwitter }

func (a *twitterAdapter) oauth(redirectURI string) *oauth2.Config {
	return oauthConfig(a.cfg.ClientID, a.cfg.ClientSecret, a.endpoint, redirectURI, twitterScopes)
}

// verifier derives the PKCE code verifier from the client secret and redirect URI so the
// callback can recompute it without server-side session state.
func (a *twitterAdapter) verifier(redirectURI string) string {
	sum := sha256.Sum256([]byte(a.cfg.ClientSecret + "|" + redirectURI))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (a *twitterAdapter) AuthURL(redirectURI, state string) string {
	return a.oauth(redirectURI).AuthCodeURL(state, oauth2.S256ChallengeOption(a.verifier(redirectURI)))
}

func (a *twitterAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*Tokens, error) {
	tok, err := a.oauth(redirectURI).Exchange(withClient(ctx, a.api.http), code, oauth2.VerifierOption(a.verifier(redirectURI)))
	if err != nil {
		return nil, wrapOAuthError(models.PlatformTwitter, err)
	}
	tokens := tokensFromOAuth(tok)

	me, err := a.me(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	tokens.AccountID = me.Data.ID
	tokens.AccountName = me.Data.Username
	return tokens, nil
}

func (a *twitterAdapter) RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error) {
	src := a.oauth("").TokenSource(withClient(ctx, a.api.http), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, wrapOAuthError(models.PlatformTwitter, err)
	}
	return tokensFromOAuth(tok), nil
}

func (a *twitterAdapter) ValidateTokens(ctx context.Context, tokens Tokens) bool {
	_, err := a.me(ctx, tokens.AccessToken)
	return err == nil
}

func (a *twitterAdapter) me(ctx context.Context, accessToken string) (*transfer.TwitterUserResponse, error) {
	var out transfer.TwitterUserResponse
	if err := a.api.get(ctx, a.cfg.APIBaseURL+"/2/users/me", bearer(accessToken), &out); err != nil {
		return nil, err
	}
	if out.Data.ID == "" {
		return nil, ErrUnexpectedReply
	}
	return &out, nil
}

func (a *twitterAdapter) Post(ctx context.Context, content Content, tokens Tokens) Result {
	mediaIDs, err := a.uploadMedia(ctx, content, tokens.AccessToken)
	if err != nil {
		return failed(err)
	}

	payload := transfer.TwitterTweetRequest{Text: normalizedText(content, twitterCharLimit)}
	if len(mediaIDs) > 0 {
		payload.Media = &transfer.TwitterTweetMedia{MediaIDs: mediaIDs}
	}

	var out transfer.TwitterTweetResponse
	if _, err := a.api.postJSON(ctx, a.cfg.APIBaseURL+"/2/tweets", bearer(tokens.AccessToken), payload, &out); err != nil {
		return failed(err)
	}
	if out.Data.ID == "" {
		return failed(ErrUnexpectedReply)
	}

	return succeeded(out.Data.ID, twitterStatusURL(tokens.AccountName, out.Data.ID))
}

func (a *twitterAdapter) uploadMedia(ctx context.Context, content Content, accessToken string) ([]string, error) {
	if len(content.MediaURLs) == 0 || a.media == nil {
		return nil, nil
	}

	var ids []string
	for i, mediaURL := range content.MediaURLs {
		if i == twitterMaxMedia {
			break
		}
		obj, err := a.media.Fetch(ctx, mediaURL)
		if err != nil {
			return nil, fmt.Errorf("fetch media %d: %w", i+1, err)
		}

		category := "tweet_image"
		if !obj.IsImage() {
			category = "tweet_video"
		}

		var uploaded transfer.TwitterMediaUploadResponse
		err = a.api.postMultipart(ctx, a.cfg.APIBaseURL+"/2/media/upload", bearer(accessToken),
			map[string]string{"media_category": category},
			filePart{field: "media", filename: fmt.Sprintf("media-%d.%s", i+1, obj.Extension), mime: obj.MIME, data: obj.Data},
			&uploaded)
		if err != nil {
			return nil, err
		}
		if uploaded.Data.ID == "" {
			return nil, ErrUnexpectedReply
		}

		if alt := content.AltText(i); alt != "" {
			meta := transfer.TwitterMediaMetadataRequest{ID: uploaded.Data.ID}
			meta.Metadata.AltText.Text = Truncate(alt, 1000)
			if _, err := a.api.postJSON(ctx, a.cfg.APIBaseURL+"/2/media/metadata", bearer(accessToken), meta, nil); err != nil {
				return nil, err
			}
		}
		ids = append(ids, uploaded.Data.ID)
	}
	return ids, nil
}

func twitterStatusURL(username, id string) string {
	if username == "" {
		return "https://x.com/i/web/status/" + id
	}
	return fmt.Sprintf("https://x.com/%s/status/%s", username, id)
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
