package platform

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/maheshrc27/postflow-engine/internal/media"
	"github.com/maheshrc27/postflow-engine/internal/models"
	"github.com/maheshrc27/postflow-engine/internal/transfer"
	"golang.org/x/oauth2"
)

const (
	mastodonCharLimit = 500
	mastodonMaxMedia  = 4
)

var mastodonScopes = []string{"read:accounts", "write:statuses", "write:media"}

type MastodonConfig struct {
	ClientID     string
	ClientSecret string
	InstanceURL  string
}

// mastodonAdapter talks to a single instance. Mastodon tokens do not expire,
// so it has no refresh capability.
type mastodonAdapter struct {
	cfg   MastodonConfig
	api   apiClient
	media media.Fetcher
}

func NewMastodonAdapter(cfg MastodonConfig, client *http.Client, fetcher media.Fetcher) Adapter {
	cfg.InstanceURL = strings.TrimRight(cfg.InstanceURL, "/")
	return &mastodonAdapter{
		cfg:   cfg,
		api:   newAPIClient(models.PlatformMastodon, client),
		media: fetcher,
	}
}

func (a *mastodonAdapter) Platform() models.Platform { return models.PlatformMastodon }

func (a *mastodonAdapter) oauth(redirectURI string) *oauth2.Config {
	endpoint := oauth2.Endpoint{
		AuthURL:   a.cfg.InstanceURL + "/oauth/authorize",
		TokenURL:  a.cfg.InstanceURL + "/oauth/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	return oauthConfig(a.cfg.ClientID, a.cfg.ClientSecret, endpoint, redirectURI, mastodonScopes)
}

func (a *mastodonAdapter) AuthURL(redirectURI, state string) string {
	return a.oauth(redirectURI).AuthCodeURL(state)
}

func (a *mastodonAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*Tokens, error) {
	tok, err := a.oauth(redirectURI).Exchange(withClient(ctx, a.api.http), code)
	if err != nil {
		return nil, wrapOAuthError(models.PlatformMastodon, err)
	}
	tokens := tokensFromOAuth(tok)

	account, err := a.verifyCredentials(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	tokens.AccountID = account.ID
	tokens.AccountName = account.Acct
	return tokens, nil
}

func (a *mastodonAdapter) ValidateTokens(ctx context.Context, tokens Tokens) bool {
	_, err := a.verifyCredentials(ctx, tokens.AccessToken)
	return err == nil
}

func (a *mastodonAdapter) verifyCredentials(ctx context.Context, accessToken string) (*transfer.MastodonAccount, error) {
	var account transfer.MastodonAccount
	if err := a.api.get(ctx, a.cfg.InstanceURL+"/api/v1/accounts/verify_credentials", bearer(accessToken), &account); err != nil {
		return nil, err
	}
	if account.ID == "" {
		return nil, ErrUnexpectedReply
	}
	return &account, nil
}

func (a *mastodonAdapter) Post(ctx context.Context, content Content, tokens Tokens) Result {
	mediaIDs, err := a.uploadMedia(ctx, content, tokens.AccessToken)
	if err != nil {
		return failed(err)
	}

	// The spoiler text counts toward the instance's character limit.
	warning := Truncate(strings.TrimSpace(content.ContentWarning), mastodonCharLimit/2)
	limit := mastodonCharLimit - utf8.RuneCountInString(warning)

	payload := transfer.MastodonStatusRequest{
		Status:     normalizedText(content, limit),
		MediaIDs:   mediaIDs,
		Visibility: "public",
	}
	if warning != "" {
		payload.SpoilerText = warning
		payload.Sensitive = true
	}

	var status transfer.MastodonStatus
	if _, err := a.api.postJSON(ctx, a.cfg.InstanceURL+"/api/v1/statuses", bearer(tokens.AccessToken), payload, &status); err != nil {
		return failed(err)
	}
	if status.ID == "" {
		return failed(ErrUnexpectedReply)
	}
	return succeeded(status.ID, status.URL)
}

func (a *mastodonAdapter) uploadMedia(ctx context.Context, content Content, accessToken string) ([]string, error) {
	if len(content.MediaURLs) == 0 || a.media == nil {
		return nil, nil
	}

	var ids []string
	for i, mediaURL := range content.MediaURLs {
		if i == mastodonMaxMedia {
			break
		}
		obj, err := a.media.Fetch(ctx, mediaURL)
		if err != nil {
			return nil, fmt.Errorf("fetch media %d: %w", i+1, err)
		}

		fields := map[string]string{}
		if alt := content.AltText(i); alt != "" {
			fields["description"] = Truncate(alt, 1500)
		}

		var attachment transfer.MastodonMediaAttachment
		err = a.api.postMultipart(ctx, a.cfg.InstanceURL+"/api/v2/media", bearer(accessToken), fields,
			filePart{field: "file", filename: fmt.Sprintf("media-%d.%s", i+1, obj.Extension), mime: obj.MIME, data: obj.Data},
			&attachment)
		if err != nil {
			return nil, err
		}
		if attachment.ID == "" {
			return nil, ErrUnexpectedReply
		}
		ids = append(ids, attachment.ID)
	}
	return ids, nil
}
