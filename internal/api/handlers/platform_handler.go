package handlers

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/postflow-engine/configs"
	"github.com/maheshrc27/postflow-engine/internal/models"
	"github.com/maheshrc27/postflow-engine/internal/platform"
	"github.com/maheshrc27/postflow-engine/internal/repository"
	"github.com/maheshrc27/postflow-engine/pkg/utils"
)

const stateTTL = 15 * time.Minute

type PlatformHandler struct {
	registry *platform.Registry
	accounts repository.SocialAccountRepository
	cfg      config.Config
}

func NewPlatformHandler(registry *platform.Registry, accounts repository.SocialAccountRepository, cfg config.Config) *PlatformHandler {
	return &PlatformHandler{
		registry: registry,
		accounts: accounts,
		cfg:      cfg,
	}
}

// ConnectURL issues a signed connect link for a user. The link is handed to
// the user, who follows it to authorize the platform.
func (h *PlatformHandler) ConnectURL(c *fiber.Ctx) error {
	p, err := models.ParsePlatform(c.Query("platform"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	userID := int64(c.QueryInt("user_id", 0))
	if userID <= 0 {
		return badRequest(c, "user_id is required")
	}

	state, err := utils.GenerateStateToken(h.cfg.SecretKey, userID, string(p), stateTTL)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to create connect link",
		})
	}

	link := fmt.Sprintf("%s/auth/%s?state=%s", c.BaseURL(), p, url.QueryEscape(state))
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"url":        link,
		"expires_in": int(stateTTL.Seconds()),
	})
}

func (h *PlatformHandler) AddSocialAccount(c *fiber.Ctx) error {
	adapter, err := h.adapter(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	state := c.Query("state")
	if _, err := h.validateState(state, adapter.Platform()); err != nil {
		return badRequest(c, "Unable to validate user")
	}

	return c.Redirect(adapter.AuthURL(h.redirectURI(adapter.Platform()), state))
}

func (h *PlatformHandler) CallbackHandler(c *fiber.Ctx) error {
	adapter, err := h.adapter(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	p := adapter.Platform()

	if denied := c.Query("error"); denied != "" {
		slog.Info("authorization denied", slog.String("platform", string(p)), slog.String("error", denied))
		return h.backToAccounts(c, "denied")
	}

	state := valueOf(c, "state")
	userID, err := h.validateState(state, p)
	if err != nil {
		return badRequest(c, "Unable to validate user")
	}

	code := valueOf(c, "code")
	if code == "" && p == models.PlatformBluesky {
		if id, pw := c.FormValue("identifier"), c.FormValue("app_password"); id != "" && pw != "" {
			code = id + ":" + pw
		}
	}
	if code == "" {
		return badRequest(c, "Missing authorization code")
	}

	tokens, err := adapter.ExchangeCode(c.Context(), code, h.redirectURI(p))
	if err != nil {
		slog.Info(err.Error())
		return badRequest(c, fmt.Sprintf("Unable to connect %s account", p.DisplayName()))
	}
	if !adapter.ValidateTokens(c.Context(), *tokens) {
		slog.Info("issued tokens failed validation", slog.String("platform", string(p)))
		return badRequest(c, fmt.Sprintf("Unable to verify %s account", p.DisplayName()))
	}

	_, err = h.accounts.Connect(c.Context(), &models.SocialAccount{
		UserID:         userID,
		Platform:       p,
		AccountID:      tokens.AccountID,
		AccountName:    tokens.AccountName,
		AccessToken:    tokens.AccessToken,
		RefreshToken:   tokens.RefreshToken,
		TokenExpiresAt: tokens.ExpiresAt,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to save social account",
		})
	}

	return h.backToAccounts(c, "connected")
}

// ListPlatforms reports the enabled platforms and whether their tokens are
// renewed automatically.
func (h *PlatformHandler) ListPlatforms(c *fiber.Ctx) error {
	platforms := h.registry.Platforms()
	out := make([]fiber.Map, 0, len(platforms))
	for _, p := range platforms {
		_, refreshable := h.registry.Refresher(p)
		out = append(out, fiber.Map{
			"platform":    p,
			"name":        p.DisplayName(),
			"refreshable": refreshable,
		})
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

func (h *PlatformHandler) adapter(c *fiber.Ctx) (platform.Adapter, error) {
	p, err := models.ParsePlatform(c.Params("platform"))
	if err != nil {
		return nil, err
	}
	adapter, ok := h.registry.Get(p)
	if !ok {
		return nil, fmt.Errorf("%s is not enabled", p.DisplayName())
	}
	return adapter, nil
}

func (h *PlatformHandler) validateState(state string, p models.Platform) (int64, error) {
	userID, claims, err := utils.UserIDFromState(h.cfg.SecretKey, state)
	if err != nil {
		return 0, err
	}
	if claims.Platform != "" && claims.Platform != string(p) {
		return 0, fmt.Errorf("state issued for %s", claims.Platform)
	}
	return userID, nil
}

func (h *PlatformHandler) redirectURI(p models.Platform) string {
	switch p {
	case models.PlatformLinkedIn:
		return h.cfg.LinkedIn.RedirectURI
	case models.PlatformTwitter:
		return h.cfg.Twitter.RedirectURI
	case models.PlatformFacebook:
		return h.cfg.Facebook.RedirectURI
	case models.PlatformInstagram:
		return h.cfg.Instagram.RedirectURI
	case models.PlatformThreads:
		return h.cfg.Threads.RedirectURI
	case models.PlatformMastodon:
		return h.cfg.Mastodon.RedirectURI
	case models.PlatformBluesky:
		// No OAuth: the frontend collects an app password and posts it back.
		return h.cfg.FrontendURL + "/connect/bluesky"
	}
	return ""
}

func (h *PlatformHandler) backToAccounts(c *fiber.Ctx, result string) error {
	redirectURL := fmt.Sprintf("%s/dashboard/accounts?result=%s", h.cfg.FrontendURL, result)
	return c.Redirect(redirectURL, fiber.StatusFound)
}

// valueOf reads a parameter from the query string or, for POST callbacks, the form.
func valueOf(c *fiber.Ctx, key string) string {
	if v := c.Query(key); v != "" {
		return v
	}
	return c.FormValue(key)
}
