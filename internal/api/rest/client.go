// Package rest is the thin typed client over the remote backend's auth and
// notification endpoints. Bodies are opaque backend DTOs; the client decodes
// only the fields the core needs.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/buildflow/site-client/internal/config"
	"github.com/buildflow/site-client/internal/domain"
	util "github.com/buildflow/site-client/pkg/util"
)

// Client talks to the REST backend.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient builds a client for the configured backend.
func NewClient(cfg config.BackendConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout()},
		logger:  logger,
	}
}

// Login exchanges credentials for tokens and identity.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	resp, err := c.post(ctx, "/auth/login", LoginRequest{Email: email, Password: password}, "")
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if err := c.checkAuthStatusCode(resp, "login"); err != nil {
		return nil, err
	}

	var envelope loginEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, util.NewAuthServerError("malformed login response", err)
	}
	if envelope.Data.Auth.AccessToken == "" {
		return nil, util.NewAuthServerError("login response missing access token", nil)
	}
	return &envelope.Data, nil
}

// Refresh exchanges a refresh token for a new token set.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*AuthTokens, error) {
	resp, err := c.post(ctx, "/auth/refresh-token", RefreshRequest{RefreshToken: refreshToken}, "")
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if err := c.checkAuthStatusCode(resp, "refresh"); err != nil {
		return nil, err
	}

	var envelope refreshEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, util.NewAuthServerError("malformed refresh response", err)
	}
	if envelope.Data.Auth.AccessToken == "" {
		return nil, util.NewAuthServerError("refresh response missing access token", nil)
	}
	return &envelope.Data.Auth, nil
}

// Logout invalidates the server-side session. Callers treat failures as
// best-effort; local teardown proceeds regardless.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	resp, err := c.post(ctx, "/auth/logout", struct{}{}, accessToken)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode >= http.StatusBadRequest {
		return util.NewAuthServerError(fmt.Sprintf("logout returned %d", resp.StatusCode), nil)
	}
	return nil
}

// Notifications fetches the recent notification history for the
// authenticated user.
func (c *Client) Notifications(ctx context.Context, accessToken string) ([]domain.NotificationEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/notification", nil)
	if err != nil {
		return nil, util.NewAuthServerError("build notification request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, util.NewAuthNetworkError(err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, util.NewAuthServerError(fmt.Sprintf("notification fetch returned %d", resp.StatusCode), nil)
	}

	var envelope notificationsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, util.NewAuthServerError("malformed notification response", err)
	}
	return envelope.Data, nil
}

func (c *Client) post(ctx context.Context, path string, body any, accessToken string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, util.NewAuthServerError("encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, util.NewAuthServerError("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, util.NewAuthNetworkError(err)
	}
	return resp, nil
}

// checkAuthStatusCode maps backend status codes onto the auth error
// taxonomy. 401/403/400 mean the credentials or token were rejected;
// anything else non-2xx is a server fault.
func (c *Client) checkAuthStatusCode(resp *http.Response, op string) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	message := op + " rejected"
	var envelope errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return util.NewInvalidCredentials(message)
	default:
		c.logger.Warn("backend error", zap.String("op", op), zap.Int("status", resp.StatusCode))
		return util.NewAuthServerError(fmt.Sprintf("%s returned %d", op, resp.StatusCode), nil)
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
