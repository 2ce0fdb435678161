package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	config "github.com/maheshrc27/postflow-engine/configs"
	"github.com/maheshrc27/postflow-engine/internal/models"
	"github.com/maheshrc27/postflow-engine/internal/notify"
	"github.com/maheshrc27/postflow-engine/internal/platform"
	"github.com/stretchr/testify/mock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type memPosts struct {
	mu      sync.Mutex
	posts   map[int64]*models.Post
	listErr error
}

func newMemPosts(posts ...*models.Post) *memPosts {
	m := &memPosts{posts: make(map[int64]*models.Post)}
	for _, p := range posts {
		m.posts[p.ID] = p
	}
	return m
}

func (m *memPosts) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *p
	return &cp, nil
}

func (m *memPosts) ListScheduledDue(ctx context.Context, before time.Time) ([]*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.Post
	for _, p := range m.posts {
		if p.Status == models.PostStatusScheduled && p.ScheduledAt != nil && !p.ScheduledAt.After(before) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(*out[j].ScheduledAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledAt.Before(*out[j].ScheduledAt)
	})
	return out, nil
}

func (m *memPosts) Update(ctx context.Context, id int64, upd *models.PostUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return errors.New("not found")
	}
	if upd.Status != nil {
		p.Status = *upd.Status
	}
	if upd.PublishedAt != nil {
		t := *upd.PublishedAt
		p.PublishedAt = &t
	}
	if upd.ExternalPostID != nil {
		p.ExternalPostID = *upd.ExternalPostID
	}
	if upd.ExternalPostURL != nil {
		p.ExternalPostURL = *upd.ExternalPostURL
	}
	if upd.ErrorMessage != nil {
		p.ErrorMessage = *upd.ErrorMessage
	}
	return nil
}

func (m *memPosts) get(id int64) models.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.posts[id]
}

type memAccounts struct {
	mu       sync.Mutex
	accounts []*models.SocialAccount
	updates  []models.SocialAccountUpdate
}

func (m *memAccounts) GetActiveByPlatform(ctx context.Context, userID int64, p models.Platform) (*models.SocialAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.UserID == userID && a.Platform == p && a.IsActive {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memAccounts) ListExpiring(ctx context.Context, before time.Time) ([]*models.SocialAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SocialAccount
	for _, a := range m.accounts {
		if a.IsActive && a.RefreshToken != "" && a.TokenExpiresAt != nil && !a.TokenExpiresAt.After(before) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memAccounts) Connect(ctx context.Context, sa *models.SocialAccount) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.UserID == sa.UserID && a.Platform == sa.Platform {
			a.IsActive = false
		}
	}
	cp := *sa
	cp.ID = int64(len(m.accounts) + 1)
	cp.IsActive = true
	m.accounts = append(m.accounts, &cp)
	return cp.ID, nil
}

func (m *memAccounts) Update(ctx context.Context, id int64, upd *models.SocialAccountUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, *upd)
	for _, a := range m.accounts {
		if a.ID != id {
			continue
		}
		if upd.AccessToken != nil {
			a.AccessToken = *upd.AccessToken
		}
		if upd.RefreshToken != nil {
			a.RefreshToken = *upd.RefreshToken
		}
		if upd.TokenExpiresAt != nil {
			t := *upd.TokenExpiresAt
			a.TokenExpiresAt = &t
		} else if upd.ClearTokenExpiry {
			a.TokenExpiresAt = nil
		}
		return nil
	}
	return fmt.Errorf("account %d not found", id)
}

type memHistory struct {
	mu      sync.Mutex
	entries []*models.PostingHistory
}

func (m *memHistory) Create(ctx context.Context, ph *models.PostingHistory) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ph
	cp.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, &cp)
	return cp.ID, nil
}

func (m *memHistory) ListByPostID(ctx context.Context, postID int64) ([]*models.PostingHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PostingHistory
	for _, e := range m.entries {
		if e.PostID == postID {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyOwner(ctx context.Context, n notify.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// fakeAdapter records the time of every Post call and answers with post.
type fakeAdapter struct {
	platform models.Platform
	clock    Clock
	post     func(ctx context.Context, c platform.Content, t platform.Tokens) platform.Result

	mu    sync.Mutex
	calls []time.Time
}

func (a *fakeAdapter) Platform() models.Platform { return a.platform }
func (a *fakeAdapter) AuthURL(redirectURI, state string) string { return redirectURI + "?state=" + state }
func (a *fakeAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*platform.Tokens, error) {
	return &platform.Tokens{AccessToken: code}, nil
}
func (a *fakeAdapter) ValidateTokens(ctx context.Context, t platform.Tokens) bool { return true }

func (a *fakeAdapter) Post(ctx context.Context, c platform.Content, t platform.Tokens) platform.Result {
	a.mu.Lock()
	a.calls = append(a.calls, a.clock.Now())
	a.mu.Unlock()
	if a.post == nil {
		return platform.Result{Success: true, PostID: "ext", PostURL: "https://example.com/ext"}
	}
	return a.post(ctx, c, t)
}

func (a *fakeAdapter) Calls() []time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]time.Time(nil), a.calls...)
}

// refreshingAdapter adds the refresh capability to fakeAdapter.
type refreshingAdapter struct {
	*fakeAdapter
	refresh func(ctx context.Context, rt string) (*platform.Tokens, error)
}

func (a *refreshingAdapter) RefreshToken(ctx context.Context, rt string) (*platform.Tokens, error) {
	return a.refresh(ctx, rt)
}

func failingPost(msg string) func(context.Context, platform.Content, platform.Tokens) platform.Result {
	return func(context.Context, platform.Content, platform.Tokens) platform.Result {
		return platform.Result{Error: msg, Err: errors.New(msg)}
	}
}

func testConfig() config.Scheduler {
	return config.Scheduler{
		CheckInterval:          time.Second,
		BatchSize:              10,
		MaxRetries:             3,
		RetryDelay:             5 * time.Minute,
		GracePeriod:            5 * time.Minute,
		PublishTimeout:         time.Minute,
		CountPreflightFailures: true,
		RateLimits:             map[string]time.Duration{"twitter": 2 * time.Second, "linkedin": time.Second},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scheduledPost(id int64, p models.Platform, at time.Time) *models.Post {
	return &models.Post{
		ID:          id,
		UserID:      1,
		Platform:    p,
		Content:     fmt.Sprintf("post %d", id),
		Status:      models.PostStatusScheduled,
		ScheduledAt: &at,
	}
}

func activeAccount(id int64, p models.Platform) *models.SocialAccount {
	return &models.SocialAccount{
		ID:          id,
		UserID:      1,
		Platform:    p,
		AccountID:   "acct",
		AccountName: "jane",
		AccessToken: "access",
		IsActive:    true,
	}
}

type harness struct {
	clock    *fakeClock
	posts    *memPosts
	accounts *memAccounts
	history  *memHistory
	notifier *mockNotifier
	sched    *Scheduler
}

func newHarness(cfg config.Scheduler, posts *memPosts, accounts []*models.SocialAccount, adapters ...platform.Adapter) *harness {
	h := &harness{
		clock:    newFakeClock(),
		posts:    posts,
		accounts: &memAccounts{accounts: accounts},
		history:  &memHistory{},
		notifier: &mockNotifier{},
	}
	for _, a := range adapters {
		switch fa := a.(type) {
		case *fakeAdapter:
			fa.clock = h.clock
		case *refreshingAdapter:
			fa.clock = h.clock
		}
	}
	h.sched = New(cfg, Deps{
		Posts:    h.posts,
		Accounts: h.accounts,
		History:  h.history,
		Registry: platform.NewRegistry(adapters...),
		Notifier: h.notifier,
		Clock:    h.clock,
		Logger:   quietLogger(),
	})
	return h
}
