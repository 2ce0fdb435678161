package platform

import (
	"context"
	"sort"
	"time"

	"github.com/maheshrc27/postflow-engine/internal/models"
)

// Tokens are the credentials an adapter needs to act for one linked account.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	// AccountID is the platform-side identity (person URN id, page id, DID, ...).
	AccountID   string
	AccountName string
}

// Content is a post normalized for delivery. AltTexts is positional with MediaURLs.
type Content struct {
	Text           string
	MediaURLs      []string
	AltTexts       []string
	Hashtags       []string
	ContentWarning string
}

func (c Content) AltText(i int) string {
	if i < len(c.AltTexts) {
		return c.AltTexts[i]
	}
	return ""
}

// Result is the outcome of Post. Err keeps the typed cause for callers that
// need to tell API errors from network errors; Error is the short,
// user-presentable diagnostic.
type Result struct {
	Success bool
	PostID  string
	PostURL string
	Error   string
	Err     error
}

func succeeded(postID, postURL string) Result {
	return Result{Success: true, PostID: postID, PostURL: postURL}
}

func failed(err error) Result {
	return Result{Success: false, Error: err.Error(), Err: err}
}

type Adapter interface {
	Platform() models.Platform
	// AuthURL builds the authorization URL the connect route redirects to.
	AuthURL(redirectURI, state string) string
	// ExchangeCode trades an authorization code for tokens and the external account identity.
	ExchangeCode(ctx context.Context, code, redirectURI string) (*Tokens, error)
	ValidateTokens(ctx context.Context, tokens Tokens) bool
	Post(ctx context.Context, content Content, tokens Tokens) Result
}

// Refresher is implemented by adapters whose tokens expire and can be renewed.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error)
}

// Registry maps each platform to its adapter. It is built once at startup and read-only afterwards.
type Registry struct {
	adapters map[models.Platform]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

func (r *Registry) Get(p models.Platform) (Adapter, bool) {
	a, ok := r.adapters[p]
	return a, ok
}

// Refresher returns the refresh capability of the platform's adapter, if it has one.
func (r *Registry) Refresher(p models.Platform) (Refresher, bool) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, false
	}
	ref, ok := a.(Refresher)
	return ref, ok
}

func (r *Registry) Platforms() []models.Platform {
	out := make([]models.Platform, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
