package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/buildflow/site-client/internal/api/rest"
	"github.com/buildflow/site-client/internal/auth"
	"github.com/buildflow/site-client/internal/domain"
	"github.com/buildflow/site-client/internal/observability"
	"github.com/buildflow/site-client/internal/store"
	util "github.com/buildflow/site-client/pkg/util"
)

type fakeBackend struct {
	mu         sync.Mutex
	loginFn    func(email, password string) (*rest.LoginResult, error)
	refreshFn  func(refreshToken string) (*rest.AuthTokens, error)
	logoutErr  error
	logoutSeen int
}

func (f *fakeBackend) Login(_ context.Context, email, password string) (*rest.LoginResult, error) {
	return f.loginFn(email, password)
}

func (f *fakeBackend) Refresh(_ context.Context, refreshToken string) (*rest.AuthTokens, error) {
	return f.refreshFn(refreshToken)
}

func (f *fakeBackend) Logout(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutSeen++
	return f.logoutErr
}

func (f *fakeBackend) logoutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logoutSeen
}

func validLogin(user domain.User) func(string, string) (*rest.LoginResult, error) {
	return func(email, password string) (*rest.LoginResult, error) {
		if password != "correct" {
			return nil, util.NewInvalidCredentials("invalid credentials")
		}
		token, _, err := auth.NewTokenManager("test-secret", 60).GenerateToken(user)
		if err != nil {
			return nil, err
		}
		return &rest.LoginResult{
			User: user,
			Auth: rest.AuthTokens{
				AccessToken:  token,
				RefreshToken: "refresh-1",
				ExpiresAt:    time.Now().Add(time.Hour),
			},
		}, nil
	}
}

var homeowner = domain.User{
	ID:       "usr-1",
	Username: "hanna",
	Email:    "h@example.test",
	Role:     domain.RoleHomeowner,
}

func newTestManager(t *testing.T, backend Backend) (*Manager, *store.TokenStore) {
	t.Helper()
	blob, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	tokens := store.NewTokenStore(blob)
	return NewManager(backend, tokens, zap.NewNop(), observability.NewMetrics()), tokens
}

func TestLoginSuccess(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{loginFn: validLogin(homeowner)}
	m, tokens := newTestManager(t, backend)

	require.NoError(t, m.Login(ctx, homeowner.Email, "correct"))

	assert.True(t, m.IsAuthenticated())
	require.NotNil(t, m.Session())
	assert.Equal(t, domain.RoleHomeowner, m.Session().User.Role)
	assert.Equal(t, "/", auth.DashboardRouteFor(m.Session().User.Role))

	stored, err := tokens.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotEmpty(t, stored.AccessToken)

	// The route guard admits the freshly authenticated homeowner.
	decision := auth.Evaluate(m.Session(), false, []domain.Role{domain.RoleHomeowner}, "")
	assert.True(t, decision.Allowed())
}

func TestLoginFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{loginFn: validLogin(homeowner)}
	m, tokens := newTestManager(t, backend)

	err := m.Login(ctx, homeowner.Email, "wrong")
	require.Error(t, err)
	assert.True(t, util.IsAuthKind(err, util.AuthInvalidCredentials))

	assert.False(t, m.IsAuthenticated())
	stored, err := tokens.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestLogoutClearsEvenWhenServerCallFails(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{loginFn: validLogin(homeowner), logoutErr: errors.New("backend down")}
	m, tokens := newTestManager(t, backend)

	require.NoError(t, m.Login(ctx, homeowner.Email, "correct"))
	m.Logout(ctx)

	assert.False(t, m.IsAuthenticated())
	assert.Equal(t, 1, backend.logoutCalls())
	stored, err := tokens.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestRefreshSuccessRotatesTokens(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{
		loginFn: validLogin(homeowner),
		refreshFn: func(refreshToken string) (*rest.AuthTokens, error) {
			if refreshToken != "refresh-1" {
				return nil, util.NewInvalidCredentials("refresh token invalid")
			}
			return &rest.AuthTokens{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
		},
	}
	m, _ := newTestManager(t, backend)
	require.NoError(t, m.Login(ctx, homeowner.Email, "correct"))

	assert.True(t, m.RefreshToken(ctx))
	assert.Equal(t, "access-2", m.Session().AccessToken)
	assert.Equal(t, "refresh-2", m.Session().RefreshToken)
}

func TestRefreshFailureForcesLogout(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{
		loginFn: validLogin(homeowner),
		refreshFn: func(string) (*rest.AuthTokens, error) {
			return nil, util.NewInvalidCredentials("refresh token invalid")
		},
	}
	m, tokens := newTestManager(t, backend)
	require.NoError(t, m.Login(ctx, homeowner.Email, "correct"))

	channelTorndown := false
	m.OnLogout(func() { channelTorndown = true })

	assert.False(t, m.RefreshToken(ctx))
	assert.False(t, m.IsAuthenticated())
	assert.True(t, channelTorndown, "active realtime connection must be torn down")
	stored, err := tokens.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestLogoutWinsOverInflightRefresh(t *testing.T) {
	ctx := context.Background()
	refreshStarted := make(chan struct{})
	releaseRefresh := make(chan struct{})
	backend := &fakeBackend{
		loginFn: validLogin(homeowner),
		refreshFn: func(string) (*rest.AuthTokens, error) {
			close(refreshStarted)
			<-releaseRefresh
			return &rest.AuthTokens{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
		},
	}
	m, tokens := newTestManager(t, backend)
	require.NoError(t, m.Login(ctx, homeowner.Email, "correct"))

	refreshDone := make(chan bool, 1)
	go func() { refreshDone <- m.RefreshToken(ctx) }()

	<-refreshStarted
	m.Logout(ctx)
	close(releaseRefresh)

	assert.False(t, <-refreshDone, "refresh completing after logout must not win")
	assert.False(t, m.IsAuthenticated())
	stored, err := tokens.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestCheckAuthStatusIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{loginFn: validLogin(homeowner)}
	m, tokens := newTestManager(t, backend)

	token, _, err := auth.NewTokenManager("test-secret", 60).GenerateToken(homeowner)
	require.NoError(t, err)
	require.NoError(t, tokens.Save(ctx, domain.Session{
		User:         homeowner,
		AccessToken:  token,
		RefreshToken: "refresh-1",
	}))

	first := m.CheckAuthStatus(ctx)
	require.NotNil(t, first)
	assert.Equal(t, homeowner.ID, first.User.ID)

	second := m.CheckAuthStatus(ctx)
	require.NotNil(t, second)
	assert.Equal(t, first, second)
	assert.False(t, m.Snapshot().Loading)
}

func TestCheckAuthStatusWithoutStoredToken(t *testing.T) {
	backend := &fakeBackend{loginFn: validLogin(homeowner)}
	m, _ := newTestManager(t, backend)

	assert.Nil(t, m.CheckAuthStatus(context.Background()))
	assert.False(t, m.IsAuthenticated())
}

func TestCheckAuthStatusRefreshesExpiredToken(t *testing.T) {
	ctx := context.Background()
	freshToken, _, err := auth.NewTokenManager("test-secret", 60).GenerateToken(homeowner)
	require.NoError(t, err)
	backend := &fakeBackend{
		refreshFn: func(refreshToken string) (*rest.AuthTokens, error) {
			if refreshToken != "refresh-1" {
				return nil, util.NewInvalidCredentials("refresh token invalid")
			}
			return &rest.AuthTokens{AccessToken: freshToken, RefreshToken: "refresh-2"}, nil
		},
	}
	m, tokens := newTestManager(t, backend)

	require.NoError(t, tokens.Save(ctx, domain.Session{
		User:         homeowner,
		AccessToken:  expiredTokenFor(t, homeowner),
		RefreshToken: "refresh-1",
	}))

	sess := m.CheckAuthStatus(ctx)
	require.NotNil(t, sess)
	assert.Equal(t, freshToken, sess.AccessToken)
	assert.Equal(t, "refresh-2", sess.RefreshToken)
}

// expiredTokenFor signs a token whose expiry is already in the past.
func expiredTokenFor(t *testing.T, user domain.User) string {
	t.Helper()
	claims := &auth.Claims{
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestSubscribeObservesChanges(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{loginFn: validLogin(homeowner)}
	m, _ := newTestManager(t, backend)

	var mu sync.Mutex
	var states []bool
	sub := m.Subscribe(func(snap Snapshot) {
		mu.Lock()
		states = append(states, snap.IsAuthenticated())
		mu.Unlock()
	})
	defer sub.Cancel()

	require.NoError(t, m.Login(ctx, homeowner.Email, "correct"))
	m.Logout(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	assert.True(t, states[len(states)-2], "authenticated after login")
	assert.False(t, states[len(states)-1], "unauthenticated after logout")
}
