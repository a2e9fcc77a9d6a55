package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"ig-autoreply/internal/ig"
	"ig-autoreply/internal/logging"
	"ig-autoreply/internal/oauth"
	"ig-autoreply/internal/store"
)

const authFailed = "Authentication failed"

type AuthFlow interface {
	AuthURL(ctx context.Context) (string, error)
	Complete(ctx context.Context, code, state string) (store.Credentials, error)
}

type CredentialReader interface {
	Get() (store.Credentials, bool)
}

type AuthHandler struct {
	flow        AuthFlow
	creds       CredentialReader
	frontendURL string
	logger      *slog.Logger
}

func NewAuthHandler(flow AuthFlow, creds CredentialReader, frontendURL string, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = logging.Noop()
	}
	return &AuthHandler{flow: flow, creds: creds, frontendURL: frontendURL, logger: logger.With(logging.Component("auth"))}
}

// HandleLogin returns the login dialog URL for the frontend to open.
func (h *AuthHandler) HandleLogin(c echo.Context) error {
	authURL, err := h.flow.AuthURL(c.Request().Context())
	if err != nil {
		h.logger.Error("generate auth url", logging.Error(err))
		return c.JSON(http.StatusInternalServerError, errorBody("Failed to generate authorization URL"))
	}
	return c.JSON(http.StatusOK, map[string]string{"authUrl": authURL})
}

func (h *AuthHandler) HandleCallback(c echo.Context) error {
	if e := c.QueryParam("error"); e != "" {
		desc := c.QueryParam("error_description")
		h.logger.Warn("oauth error from provider", slog.String("error", e), slog.String("description", desc))
		if desc == "" {
			desc = e
		}
		return c.Redirect(http.StatusFound, h.redirect(url.Values{"error": {desc}}))
	}

	creds, err := h.flow.Complete(c.Request().Context(), c.QueryParam("code"), c.QueryParam("state"))
	if err != nil {
		h.logger.Error("oauth callback failed", logging.Error(err))
		return c.Redirect(http.StatusFound, h.redirect(url.Values{"error": {callbackErrorMessage(err)}}))
	}

	return c.Redirect(http.StatusFound, h.redirect(url.Values{
		"success":   {"true"},
		"accountId": {creds.AccountID},
	}))
}

func (h *AuthHandler) HandleStatus(c echo.Context) error {
	creds, ok := h.creds.Get()
	var accountID *string
	if ok {
		accountID = &creds.AccountID
	}
	return c.JSON(http.StatusOK, map[string]any{
		"authenticated": ok,
		"accountId":     accountID,
	})
}

func (h *AuthHandler) redirect(q url.Values) string {
	u, err := url.Parse(h.frontendURL)
	if err != nil {
		return "/?" + q.Encode()
	}
	merged := u.Query()
	for k, v := range q {
		merged[k] = v
	}
	u.RawQuery = merged.Encode()
	return u.String()
}

// callbackErrorMessage picks the text shown to the user after a failed login.
// Only upstream messages and the flow's own sentinels are surfaced; anything
// else may carry internal detail and collapses to a generic message.
func callbackErrorMessage(err error) string {
	var apiErr *ig.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.ErrorDescription != "" {
		return rErr.ErrorDescription
	}
	for _, sentinel := range []error{
		oauth.ErrMissingCode,
		oauth.ErrInvalidState,
		oauth.ErrNoPages,
		oauth.ErrNoInstagramAccount,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return authFailed
}
