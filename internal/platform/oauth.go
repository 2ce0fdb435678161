package platform

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// withClient makes golang.org/x/oauth2 use the adapter's HTTP client for token calls.
func withClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

func tokensFromOAuth(tok *oauth2.Token) *Tokens {
	t := &Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		t.ExpiresAt = &expiry
	}
	return t
}

func expiresIn(seconds int64) *time.Time {
	if seconds <= 0 {
		return nil
	}
	t := time.Now().Add(time.Duration(seconds) * time.Second)
	return &t
}

func oauthConfig(clientID, clientSecret string, endpoint oauth2.Endpoint, redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     endpoint,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
	}
}
