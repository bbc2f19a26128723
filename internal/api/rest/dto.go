package rest

import (
	"time"

	"github.com/buildflow/site-client/internal/domain"
)

// LoginRequest payload for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest payload for POST /auth/refresh-token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AuthTokens is the token envelope returned by login and refresh.
type AuthTokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// LoginResult bundles the identity and tokens from a successful login.
type LoginResult struct {
	User domain.User `json:"user"`
	Auth AuthTokens  `json:"auth"`
}

type loginEnvelope struct {
	Data LoginResult `json:"data"`
}

type refreshEnvelope struct {
	Data struct {
		Auth AuthTokens `json:"auth"`
	} `json:"data"`
}

type notificationsEnvelope struct {
	Data []domain.NotificationEvent `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
