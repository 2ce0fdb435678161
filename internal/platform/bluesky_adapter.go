package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maheshrc27/postflow-engine/internal/media"
	"github.com/maheshrc27/postflow-engine/internal/models"
	"github.com/maheshrc27/postflow-engine/internal/transfer"
)

const (
	blueskyCharLimit    = 300
	blueskyMaxMedia     = 4
	blueskyMaxBlobBytes = 1_000_000
	blueskyAccessTTL    = 2 * time.Hour

	BlueskyPDSURL = "https://bsky.social"
)

var ErrInvalidAppPassword = errors.New(`bluesky code must be "<handle or did>:<app password>"`)

var (
	blueskyLinkPattern = regexp.MustCompile(`https?://[^\s]+`)
	blueskyTagPattern  = regexp.MustCompile(`(?:^|\s)(#[^\s#]+)`)
)

type BlueskyConfig struct {
	PDSURL string
}

// blueskyAdapter authenticates with app passwords instead of OAuth. The
// connect route hands the user to a form that posts "<identifier>:<app password>"
// back to the callback as the code.
type blueskyAdapter struct {
	cfg   BlueskyConfig
	api   apiClient
	media media.Fetcher
}

func NewBlueskyAdapter(cfg BlueskyConfig, client *http.Client, fetcher media.Fetcher) Adapter {
	cfg.PDSURL = strings.TrimRight(defaultString(cfg.PDSURL, BlueskyPDSURL), "/")
	return &blueskyAdapter{
		cfg:   cfg,
		api:   newAPIClient(models.PlatformBluesky, client),
		media: fetcher,
	}
}

func (a *blueskyAdapter) Platform() models.Platform { return models.PlatformBluesky }

func (a *blueskyAdapter) xrpc(method string) string {
	return a.cfg.PDSURL + "/xrpc/" + method
}

func (a *blueskyAdapter) AuthURL(redirectURI, state string) string {
	params := url.Values{}
	params.Set("platform", string(models.PlatformBluesky))
	params.Set("flow", "app_password")
	params.Set("state", state)

	sep := "?"
	if strings.Contains(redirectURI, "?") {
		sep = "&"
	}
	return redirectURI + sep + params.Encode()
}

func (a *blueskyAdapter) ExchangeCode(ctx context.Context, code, _ string) (*Tokens, error) {
	// App passwords never contain ':', DIDs do, so split on the last one.
	i := strings.LastIndex(code, ":")
	if i <= 0 || i == len(code)-1 {
		return nil, ErrInvalidAppPassword
	}

	req := transfer.BlueskyCreateSessionRequest{Identifier: strings.TrimSpace(code[:i]), Password: strings.TrimSpace(code[i+1:])}
	var session transfer.BlueskySession
	if _, err := a.api.postJSON(ctx, a.xrpc("com.atproto.server.createSession"), nil, req, &session); err != nil {
		return nil, err
	}
	return sessionTokens(&session)
}

func (a *blueskyAdapter) RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error) {
	var session transfer.BlueskySession
	if _, err := a.api.postJSON(ctx, a.xrpc("com.atproto.server.refreshSession"), bearer(refreshToken), struct{}{}, &session); err != nil {
		return nil, err
	}
	return sessionTokens(&session)
}

func (a *blueskyAdapter) ValidateTokens(ctx context.Context, tokens Tokens) bool {
	var session transfer.BlueskySession
	return a.api.get(ctx, a.xrpc("com.atproto.server.getSession"), bearer(tokens.AccessToken), &session) == nil
}

func sessionTokens(s *transfer.BlueskySession) (*Tokens, error) {
	if s.AccessJwt == "" || s.DID == "" {
		return nil, ErrUnexpectedReply
	}
	return &Tokens{
		AccessToken:  s.AccessJwt,
		RefreshToken: s.RefreshJwt,
		ExpiresAt:    jwtExpiry(s.AccessJwt),
		AccountID:    s.DID,
		AccountName:  s.Handle,
	}, nil
}

// jwtExpiry reads the unverified exp claim of a session token.
func jwtExpiry(token string) *time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil && claims.ExpiresAt != nil {
		t := claims.ExpiresAt.Time
		return &t
	}
	t := time.Now().Add(blueskyAccessTTL)
	return &t
}

func (a *blueskyAdapter) Post(ctx context.Context, content Content, tokens Tokens) Result {
	if tokens.AccountID == "" {
		return failed(ErrMissingAccount)
	}

	text := normalizedText(content, blueskyCharLimit)
	record := transfer.BlueskyPostRecord{
		Type:      "app.bsky.feed.post",
		Text:      text,
		Facets:    richTextFacets(text),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	images, err := a.uploadImages(ctx, content, tokens.AccessToken)
	if err != nil {
		return failed(err)
	}
	if len(images) > 0 {
		record.Embed = &transfer.BlueskyImagesEmbed{Type: "app.bsky.embed.images", Images: images}
	}

	req := transfer.BlueskyCreateRecordRequest{
		Repo:       tokens.AccountID,
		Collection: "app.bsky.feed.post",
		Record:     record,
	}
	var out transfer.BlueskyCreateRecordResponse
	if _, err := a.api.postJSON(ctx, a.xrpc("com.atproto.repo.createRecord"), bearer(tokens.AccessToken), req, &out); err != nil {
		return failed(err)
	}
	if out.URI == "" {
		return failed(ErrUnexpectedReply)
	}

	profile := tokens.AccountName
	if profile == "" {
		profile = tokens.AccountID
	}
	rkey := out.URI[strings.LastIndex(out.URI, "/")+1:]
	return succeeded(out.URI, fmt.Sprintf("https://bsky.app/profile/%s/post/%s", profile, rkey))
}

// richTextFacets marks the links and hashtags in text so they render as
// such. Bluesky does not detect them itself. Offsets are UTF-8 byte positions.
func richTextFacets(text string) []transfer.BlueskyFacet {
	var facets []transfer.BlueskyFacet
	for _, m := range blueskyLinkPattern.FindAllStringIndex(text, -1) {
		start, end := m[0], trimTrailingPunct(text, m[0], m[1])
		facets = append(facets, transfer.BlueskyFacet{
			Index:    transfer.BlueskyByteSlice{ByteStart: start, ByteEnd: end},
			Features: []transfer.BlueskyFacetFeature{{Type: "app.bsky.richtext.facet#link", URI: text[start:end]}},
		})
	}
	for _, m := range blueskyTagPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], trimTrailingPunct(text, m[2], m[3])
		if end-start < 2 {
			continue
		}
		facets = append(facets, transfer.BlueskyFacet{
			Index:    transfer.BlueskyByteSlice{ByteStart: start, ByteEnd: end},
			Features: []transfer.BlueskyFacetFeature{{Type: "app.bsky.richtext.facet#tag", Tag: text[start+1 : end]}},
		})
	}
	sort.Slice(facets, func(i, j int) bool { return facets[i].Index.ByteStart < facets[j].Index.ByteStart })
	return facets
}

func trimTrailingPunct(text string, start, end int) int {
	for end > start && strings.IndexByte(".,;:!?)'\"", text[end-1]) >= 0 {
		end--
	}
	return end
}

func (a *blueskyAdapter) uploadImages(ctx context.Context, content Content, accessToken string) ([]transfer.BlueskyImage, error) {
	if len(content.MediaURLs) == 0 || a.media == nil {
		return nil, nil
	}

	var images []transfer.BlueskyImage
	for i, mediaURL := range content.MediaURLs {
		if i == blueskyMaxMedia {
			break
		}
		obj, err := a.media.Fetch(ctx, mediaURL)
		if err != nil {
			return nil, fmt.Errorf("fetch media %d: %w", i+1, err)
		}
		if !obj.IsImage() {
			return nil, fmt.Errorf("media %d: %w", i+1, media.ErrUnsupported)
		}
		if len(obj.Data) > blueskyMaxBlobBytes {
			return nil, fmt.Errorf("media %d: %w", i+1, ErrMediaTooLarge)
		}

		var uploaded transfer.BlueskyUploadBlobResponse
		if err := a.api.sendRaw(ctx, http.MethodPost, a.xrpc("com.atproto.repo.uploadBlob"), bearer(accessToken), obj.MIME, obj.Data, &uploaded); err != nil {
			return nil, err
		}
		if len(uploaded.Blob) == 0 {
			return nil, ErrUnexpectedReply
		}
		images = append(images, transfer.BlueskyImage{Alt: content.AltText(i), Image: uploaded.Blob})
	}
	return images, nil
}
