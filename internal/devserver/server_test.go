package devserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/buildflow/site-client/internal/auth"
	"github.com/buildflow/site-client/internal/config"
	"github.com/buildflow/site-client/internal/domain"
)

func testStubConfig() config.StubConfig {
	return config.StubConfig{
		JWTSecret:              "test-secret",
		AccessTokenTTLMinutes:  5,
		RefreshTokenTTLMinutes: 60,
		BcryptCost:             4,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testStubConfig(), zap.NewNop())
	require.NoError(t, err)
	return s
}

type authEnvelope struct {
	Data struct {
		User domain.User `json:"user"`
		Auth struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"auth"`
	} `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doJSON(t *testing.T, s *Server, method, path string, body any, bearer string) (*http.Response, authEnvelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := s.App().Test(req, 5000)
	require.NoError(t, err)

	var envelope authEnvelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &envelope)
	}
	return resp, envelope
}

func login(t *testing.T, s *Server, email, password string) authEnvelope {
	t.Helper()
	resp, envelope := doJSON(t, s, http.MethodPost, "/auth/login",
		map[string]string{"email": email, "password": password}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return envelope
}

func TestLoginIssuesDecodableToken(t *testing.T) {
	s := newTestServer(t)
	envelope := login(t, s, "homeowner@example.test", SeedPassword)

	require.NotEmpty(t, envelope.Data.Auth.AccessToken)
	require.NotEmpty(t, envelope.Data.Auth.RefreshToken)
	assert.Equal(t, domain.RoleHomeowner, envelope.Data.User.Role)

	identity, err := auth.DecodeIdentity(envelope.Data.Auth.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, envelope.Data.User.ID, identity.User.ID)
	assert.Equal(t, domain.RoleHomeowner, identity.User.Role)
	assert.False(t, identity.Expired())
}

func TestLoginRejectsBadPassword(t *testing.T) {
	s := newTestServer(t)
	resp, envelope := doJSON(t, s, http.MethodPost, "/auth/login",
		map[string]string{"email": "homeowner@example.test", "password": "nope"}, "")

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", envelope.Error.Code)
}

func TestLoginRejectsUnknownAccount(t *testing.T) {
	s := newTestServer(t)
	resp, _ := doJSON(t, s, http.MethodPost, "/auth/login",
		map[string]string{"email": "ghost@example.test", "password": SeedPassword}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRefreshRotatesGrant(t *testing.T) {
	s := newTestServer(t)
	envelope := login(t, s, "contractor@example.test", SeedPassword)
	first := envelope.Data.Auth.RefreshToken

	resp, refreshed := doJSON(t, s, http.MethodPost, "/auth/refresh-token",
		map[string]string{"refresh_token": first}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, refreshed.Data.Auth.AccessToken)
	assert.NotEqual(t, first, refreshed.Data.Auth.RefreshToken)

	// The consumed grant no longer works.
	resp, _ = doJSON(t, s, http.MethodPost, "/auth/refresh-token",
		map[string]string{"refresh_token": first}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutRevokesRefreshGrants(t *testing.T) {
	s := newTestServer(t)
	envelope := login(t, s, "admin@example.test", SeedPassword)

	resp, _ := doJSON(t, s, http.MethodPost, "/auth/logout", struct{}{}, envelope.Data.Auth.AccessToken)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, s, http.MethodPost, "/auth/refresh-token",
		map[string]string{"refresh_token": envelope.Data.Auth.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNotificationsRequireBearer(t *testing.T) {
	s := newTestServer(t)

	resp, _ := doJSON(t, s, http.MethodGet, "/notification", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	envelope := login(t, s, "supervisor@example.test", SeedPassword)
	req, err := http.NewRequest(http.MethodGet, "/notification", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+envelope.Data.Auth.AccessToken)
	listResp, err := s.App().Test(req, 5000)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var list struct {
		Data []domain.NotificationEvent `json:"data"`
	}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&list))
	require.NotEmpty(t, list.Data)
	assert.Equal(t, "welcome-"+envelope.Data.User.ID, list.Data[0].ReferenceID)
}

func TestAuthenticateResolvesToken(t *testing.T) {
	s := newTestServer(t)
	envelope := login(t, s, "homeowner@example.test", SeedPassword)

	userID, err := s.Authenticate(nil, envelope.Data.Auth.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, envelope.Data.User.ID, userID)

	_, err = s.Authenticate(nil, "garbage")
	assert.Error(t, err)
}
