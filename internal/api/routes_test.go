package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/postflow-engine/configs"
	"github.com/maheshrc27/postflow-engine/internal/api/handlers"
	"github.com/maheshrc27/postflow-engine/internal/api/middleware"
	"github.com/maheshrc27/postflow-engine/internal/models"
	"github.com/maheshrc27/postflow-engine/internal/platform"
	"github.com/maheshrc27/postflow-engine/internal/scheduler"
	"github.com/maheshrc27/postflow-engine/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const operatorKey = "op-key"

type fakeScheduler struct {
	running  bool
	skipNext bool
	resets   int
	startCtx context.Context
}

func (f *fakeScheduler) Start(ctx context.Context) bool {
	if f.running {
		return false
	}
	f.running = true
	f.startCtx = ctx
	return true
}

func (f *fakeScheduler) Stop() bool {
	was := f.running
	f.running = false
	return was
}

func (f *fakeScheduler) Status() scheduler.Status {
	return scheduler.Status{Running: f.running, TotalProcessed: 3}
}

func (f *fakeScheduler) TriggerBatch(ctx context.Context) scheduler.BatchReport {
	if f.skipNext {
		return scheduler.BatchReport{BatchID: "b1", Skipped: true}
	}
	return scheduler.BatchReport{BatchID: "b1", Succeeded: 2}
}

func (f *fakeScheduler) ResetStats() { f.resets++ }

type historyStore struct {
	entries []*models.PostingHistory
}

func (h *historyStore) Create(ctx context.Context, ph *models.PostingHistory) (int64, error) {
	h.entries = append(h.entries, ph)
	return int64(len(h.entries)), nil
}

func (h *historyStore) ListByPostID(ctx context.Context, postID int64) ([]*models.PostingHistory, error) {
	var out []*models.PostingHistory
	for _, e := range h.entries {
		if e.PostID == postID {
			out = append(out, e)
		}
	}
	return out, nil
}

type postStore struct {
	posts map[int64]*models.Post
}

func (s *postStore) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	return s.posts[id], nil
}

func (s *postStore) ListScheduledDue(ctx context.Context, before time.Time) ([]*models.Post, error) {
	return nil, nil
}

func (s *postStore) Update(ctx context.Context, id int64, upd *models.PostUpdate) error {
	return nil
}

type accountStore struct {
	mu        sync.Mutex
	connected []*models.SocialAccount
}

func (s *accountStore) GetActiveByPlatform(ctx context.Context, userID int64, p models.Platform) (*models.SocialAccount, error) {
	return nil, nil
}

func (s *accountStore) ListExpiring(ctx context.Context, before time.Time) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (s *accountStore) Connect(ctx context.Context, sa *models.SocialAccount) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = append(s.connected, sa)
	return int64(len(s.connected)), nil
}

func (s *accountStore) Update(ctx context.Context, id int64, upd *models.SocialAccountUpdate) error {
	return nil
}

type oauthAdapter struct {
	platform     models.Platform
	lastRedirect string
	rejectTokens bool
}

func (a *oauthAdapter) Platform() models.Platform { return a.platform }

func (a *oauthAdapter) AuthURL(redirectURI, state string) string {
	return "https://provider.example.com/authorize?" + url.Values{
		"redirect_uri": {redirectURI},
		"state":        {state},
	}.Encode()
}

func (a *oauthAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*platform.Tokens, error) {
	a.lastRedirect = redirectURI
	return &platform.Tokens{AccessToken: "tok-" + code, AccountID: "acct-1", AccountName: "jane"}, nil
}

func (a *oauthAdapter) ValidateTokens(ctx context.Context, t platform.Tokens) bool {
	return !a.rejectTokens && t.AccessToken != ""
}

type refreshableAdapter struct {
	*oauthAdapter
}

func (a *refreshableAdapter) RefreshToken(ctx context.Context, rt string) (*platform.Tokens, error) {
	return &platform.Tokens{AccessToken: "fresh"}, nil
}

func (a *oauthAdapter) Post(ctx context.Context, c platform.Content, t platform.Tokens) platform.Result {
	return platform.Result{}
}

type testServer struct {
	app      *fiber.App
	cfg      config.Config
	sched    *fakeScheduler
	history  *historyStore
	posts    *postStore
	accounts *accountStore
	mastodon *oauthAdapter
	bluesky  *oauthAdapter
}

func newTestServer(t *testing.T, operatorAPIKey string) *testServer {
	t.Helper()
	cfg := config.Config{
		SecretKey:      "0123456789abcdef0123456789abcdef",
		OperatorAPIKey: operatorAPIKey,
		FrontendURL:    "https://app.example.com",
		Mastodon:       config.OAuthClient{RedirectURI: "https://api.example.com/auth/mastodon/callback"},
	}
	ts := &testServer{
		app:      fiber.New(),
		cfg:      cfg,
		sched:    &fakeScheduler{},
		history:  &historyStore{},
		posts:    &postStore{posts: map[int64]*models.Post{}},
		accounts: &accountStore{},
		mastodon: &oauthAdapter{platform: models.PlatformMastodon},
		bluesky:  &oauthAdapter{platform: models.PlatformBluesky},
	}
	registry := platform.NewRegistry(ts.mastodon, &refreshableAdapter{oauthAdapter: ts.bluesky})

	SetupRoutes(ts.app,
		middleware.NewAuthMiddleware(cfg),
		handlers.NewPlatformHandler(registry, ts.accounts, cfg),
		handlers.NewPostHandler(ts.posts, ts.history),
		handlers.NewSchedulerHandler(context.Background(), ts.sched),
	)
	return ts
}

func (ts *testServer) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func operatorRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Authorization", "Bearer "+operatorKey)
	return req
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, v), string(body))
}

func TestOperatorAuth(t *testing.T) {
	ts := newTestServer(t, operatorKey)

	resp := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/scheduler/status", nil))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/api/scheduler/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp = ts.do(t, req)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, httptest.NewRequest(http.MethodGet, "/api/scheduler/status?api_key="+operatorKey, nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = ts.do(t, operatorRequest(http.MethodGet, "/api/scheduler/status"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var st scheduler.Status
	decode(t, resp, &st)
	assert.Equal(t, int64(3), st.TotalProcessed)
}

func TestOperatorAuth_DisabledWithoutKey(t *testing.T) {
	ts := newTestServer(t, "")

	resp := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/scheduler/status?api_key=anything", nil))
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestSchedulerRoutes(t *testing.T) {
	ts := newTestServer(t, operatorKey)

	resp := ts.do(t, operatorRequest(http.MethodPost, "/api/scheduler/start"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var started struct {
		Started bool             `json:"started"`
		Status  scheduler.Status `json:"status"`
	}
	decode(t, resp, &started)
	assert.True(t, started.Started)
	assert.True(t, started.Status.Running)
	assert.NotNil(t, ts.sched.startCtx)

	resp = ts.do(t, operatorRequest(http.MethodPost, "/api/scheduler/start"))
	decode(t, resp, &started)
	assert.False(t, started.Started)

	resp = ts.do(t, operatorRequest(http.MethodPost, "/api/scheduler/stop"))
	var stopped struct {
		Stopped bool `json:"stopped"`
	}
	decode(t, resp, &stopped)
	assert.True(t, stopped.Stopped)

	resp = ts.do(t, operatorRequest(http.MethodPost, "/api/scheduler/trigger"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var report scheduler.BatchReport
	decode(t, resp, &report)
	assert.Equal(t, 2, report.Succeeded)

	ts.sched.skipNext = true
	resp = ts.do(t, operatorRequest(http.MethodPost, "/api/scheduler/trigger"))
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = ts.do(t, operatorRequest(http.MethodPost, "/api/scheduler/reset"))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, ts.sched.resets)
}

func TestPostHistory(t *testing.T) {
	ts := newTestServer(t, operatorKey)
	ts.history.entries = []*models.PostingHistory{
		{PostID: 5, Platform: models.PlatformMastodon, ErrorMessage: "Mastodon API error (status 500): boom"},
		{PostID: 5, Platform: models.PlatformMastodon, Success: true},
		{PostID: 6, Platform: models.PlatformBluesky, Success: true},
	}

	resp := ts.do(t, operatorRequest(http.MethodGet, "/api/posts/5/history"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var entries []models.PostingHistory
	decode(t, resp, &entries)
	require.Len(t, entries, 2)
	assert.True(t, entries[1].Success)

	resp = ts.do(t, operatorRequest(http.MethodGet, "/api/posts/abc/history"))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGetPost(t *testing.T) {
	ts := newTestServer(t, operatorKey)
	published := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ts.posts.posts[5] = &models.Post{
		ID:              5,
		UserID:          1,
		Platform:        models.PlatformMastodon,
		Content:         "hello",
		Status:          models.PostStatusPublished,
		PublishedAt:     &published,
		ExternalPostURL: "https://mastodon.social/@jane/109",
	}

	resp := ts.do(t, operatorRequest(http.MethodGet, "/api/posts/5"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var post models.Post
	decode(t, resp, &post)
	assert.Equal(t, models.PostStatusPublished, post.Status)
	assert.Equal(t, "https://mastodon.social/@jane/109", post.ExternalPostURL)
	require.NotNil(t, post.PublishedAt)
	assert.True(t, post.PublishedAt.Equal(published))

	resp = ts.do(t, operatorRequest(http.MethodGet, "/api/posts/6"))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, operatorRequest(http.MethodGet, "/api/posts/0"))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestListPlatforms(t *testing.T) {
	ts := newTestServer(t, operatorKey)

	resp := ts.do(t, operatorRequest(http.MethodGet, "/api/platforms"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var platforms []struct {
		Platform    models.Platform `json:"platform"`
		Name        string          `json:"name"`
		Refreshable bool            `json:"refreshable"`
	}
	decode(t, resp, &platforms)
	require.Len(t, platforms, 2)
	assert.Equal(t, models.PlatformBluesky, platforms[0].Platform)
	assert.Equal(t, "Bluesky", platforms[0].Name)
	assert.True(t, platforms[0].Refreshable)
	assert.Equal(t, models.PlatformMastodon, platforms[1].Platform)
	assert.False(t, platforms[1].Refreshable)
}

func TestCallback_RejectsUnverifiedTokens(t *testing.T) {
	ts := newTestServer(t, operatorKey)
	ts.mastodon.rejectTokens = true
	state, err := utils.GenerateStateToken(ts.cfg.SecretKey, 42, "mastodon", time.Minute)
	require.NoError(t, err)

	resp := ts.do(t, httptest.NewRequest(http.MethodGet, "/auth/mastodon/callback?code=abc&state="+url.QueryEscape(state), nil))
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "Unable to verify Mastodon account", body["error"])
	assert.Empty(t, ts.accounts.connected)
}

func TestConnectFlow(t *testing.T) {
	ts := newTestServer(t, operatorKey)

	resp := ts.do(t, operatorRequest(http.MethodGet, "/api/accounts/connect-url?platform=mastodon&user_id=42"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var link struct {
		URL string `json:"url"`
	}
	decode(t, resp, &link)

	u, err := url.Parse(link.URL)
	require.NoError(t, err)
	assert.Equal(t, "/auth/mastodon", u.Path)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)

	resp = ts.do(t, httptest.NewRequest(http.MethodGet, "/auth/mastodon?state="+url.QueryEscape(state), nil))
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	authURL, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "provider.example.com", authURL.Host)
	assert.Equal(t, ts.cfg.Mastodon.RedirectURI, authURL.Query().Get("redirect_uri"))
	assert.Equal(t, state, authURL.Query().Get("state"))

	resp = ts.do(t, httptest.NewRequest(http.MethodGet, "/auth/mastodon/callback?code=abc&state="+url.QueryEscape(state), nil))
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://app.example.com/dashboard/accounts?result=connected", resp.Header.Get("Location"))

	require.Len(t, ts.accounts.connected, 1)
	acc := ts.accounts.connected[0]
	assert.Equal(t, int64(42), acc.UserID)
	assert.Equal(t, models.PlatformMastodon, acc.Platform)
	assert.Equal(t, "tok-abc", acc.AccessToken)
	assert.Equal(t, "acct-1", acc.AccountID)
	assert.Equal(t, ts.cfg.Mastodon.RedirectURI, ts.mastodon.lastRedirect)
}

func TestCallback_BlueskyAppPasswordForm(t *testing.T) {
	ts := newTestServer(t, operatorKey)
	state, err := utils.GenerateStateToken(ts.cfg.SecretKey, 9, "bluesky", time.Minute)
	require.NoError(t, err)

	form := url.Values{
		"state":        {state},
		"identifier":   {"jane.bsky.social"},
		"app_password": {"abcd-efgh-ijkl-mnop"},
	}
	req := httptest.NewRequest(http.MethodPost, "/auth/bluesky/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp := ts.do(t, req)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	require.Len(t, ts.accounts.connected, 1)
	assert.Equal(t, "tok-jane.bsky.social:abcd-efgh-ijkl-mnop", ts.accounts.connected[0].AccessToken)
	assert.Equal(t, "https://app.example.com/connect/bluesky", ts.bluesky.lastRedirect)
}

func TestCallback_RejectsBadState(t *testing.T) {
	ts := newTestServer(t, operatorKey)

	resp := ts.do(t, httptest.NewRequest(http.MethodGet, "/auth/mastodon/callback?code=abc&state=garbage", nil))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	other, err := utils.GenerateStateToken(ts.cfg.SecretKey, 42, "bluesky", time.Minute)
	require.NoError(t, err)
	resp = ts.do(t, httptest.NewRequest(http.MethodGet, "/auth/mastodon/callback?code=abc&state="+url.QueryEscape(other), nil))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, httptest.NewRequest(http.MethodGet, "/auth/tiktok?state=x", nil))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	assert.Empty(t, ts.accounts.connected)
}

func TestCallback_DeniedAuthorization(t *testing.T) {
	ts := newTestServer(t, operatorKey)

	resp := ts.do(t, httptest.NewRequest(http.MethodGet, "/auth/mastodon/callback?error=access_denied", nil))
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://app.example.com/dashboard/accounts?result=denied", resp.Header.Get("Location"))
}
