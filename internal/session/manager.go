// Package session owns the authenticated identity for the running client:
// login, logout, token refresh, and startup restoration, backed by the token
// store and the REST backend.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/buildflow/site-client/internal/api/rest"
	"github.com/buildflow/site-client/internal/auth"
	"github.com/buildflow/site-client/internal/domain"
	"github.com/buildflow/site-client/internal/observability"
	"github.com/buildflow/site-client/internal/store"
)

// Backend is the slice of the REST client the manager depends on.
type Backend interface {
	Login(ctx context.Context, email, password string) (*rest.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*rest.AuthTokens, error)
	Logout(ctx context.Context, accessToken string) error
}

// Snapshot is the observable session state: the current session (nil when
// unauthenticated) and whether a restore is still in flight.
type Snapshot struct {
	Session *domain.Session
	Loading bool
}

// IsAuthenticated reports whether the snapshot carries a live session.
func (s Snapshot) IsAuthenticated() bool {
	return s.Session != nil && s.Session.AccessToken != ""
}

// Subscription is a cancellable handle for session-change callbacks.
type Subscription struct {
	cancel func()
	once   sync.Once
}

// Cancel detaches the subscriber. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Manager is the auth session manager. Construct one at app start and tear
// it down on shutdown; it is not a package-level singleton.
type Manager struct {
	backend Backend
	tokens  *store.TokenStore
	logger  *zap.Logger
	metrics *observability.Metrics

	mu         sync.Mutex
	session    *domain.Session
	loading    bool
	checked    bool
	generation uint64
	nextSubID  int
	subs       map[int]func(Snapshot)
	teardown   []func()
}

// NewManager builds a session manager.
func NewManager(backend Backend, tokens *store.TokenStore, logger *zap.Logger, metrics *observability.Metrics) *Manager {
	return &Manager{
		backend: backend,
		tokens:  tokens,
		logger:  logger,
		metrics: metrics,
		subs:    make(map[int]func(Snapshot)),
	}
}

// Snapshot returns the current observable state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// IsAuthenticated reports whether a session is live.
func (m *Manager) IsAuthenticated() bool {
	return m.Snapshot().IsAuthenticated()
}

// Session returns a copy of the current session, or nil.
func (m *Manager) Session() *domain.Session {
	return m.Snapshot().Session
}

// AccessToken returns the live access token, or empty when unauthenticated.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ""
	}
	return m.session.AccessToken
}

// Subscribe registers a callback invoked on every session or loading-flag
// change. The returned handle must be cancelled to avoid leaked callbacks.
func (m *Manager) Subscribe(fn func(Snapshot)) *Subscription {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = fn
	m.mu.Unlock()

	return &Subscription{cancel: func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}}
}

// OnLogout registers a teardown hook run whenever the session ends, whether
// by explicit logout or forced by refresh failure. Used to close the
// realtime channel before any new connection can open.
func (m *Manager) OnLogout(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardown = append(m.teardown, fn)
}

// Login authenticates against the backend. On failure the session state is
// left unchanged and the AuthError surfaces to the caller.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	m.setLoading(true)

	result, err := m.backend.Login(ctx, email, password)
	if err != nil {
		m.metrics.RecordAuthOp("login", false)
		m.setLoading(false)
		return err
	}

	sess := domain.Session{
		User:         result.User,
		AccessToken:  result.Auth.AccessToken,
		RefreshToken: result.Auth.RefreshToken,
	}
	if err := m.tokens.Save(ctx, sess); err != nil {
		m.metrics.RecordStorageError()
		m.logger.Warn("failed to persist session", zap.Error(err))
	}

	m.mu.Lock()
	m.session = &sess
	m.loading = false
	m.checked = true
	m.mu.Unlock()

	m.metrics.RecordAuthOp("login", true)
	m.logger.Info("logged in",
		zap.String("user_id", sess.User.ID),
		zap.String("role", string(sess.User.Role)))
	m.notify()
	return nil
}

// Logout ends the session. The server-side call is best-effort; local
// clearing always succeeds, so Logout never returns an error.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.generation++
	old := m.session
	m.mu.Unlock()

	if old != nil {
		if err := m.backend.Logout(ctx, old.AccessToken); err != nil {
			m.logger.Warn("server-side logout failed", zap.Error(err))
		}
	}
	m.clearLocal(ctx)
	m.metrics.RecordAuthOp("logout", true)
}

// RefreshToken exchanges the refresh token for a new access token. Returns
// false on failure, in which case the session is forced to logged-out. A
// logout issued while the refresh is in flight wins: its result is
// discarded no matter when it completes.
func (m *Manager) RefreshToken(ctx context.Context) bool {
	m.mu.Lock()
	gen := m.generation
	refresh := ""
	if m.session != nil {
		refresh = m.session.RefreshToken
	}
	m.mu.Unlock()

	if refresh == "" {
		if stored, err := m.tokens.Load(ctx); err == nil && stored != nil {
			refresh = stored.RefreshToken
		}
	}
	if refresh == "" {
		m.metrics.RecordAuthOp("refresh", false)
		m.clearLocal(ctx)
		return false
	}

	tokens, err := m.backend.Refresh(ctx, refresh)
	if err != nil {
		m.metrics.RecordAuthOp("refresh", false)
		m.logger.Warn("token refresh failed", zap.Error(err))
		m.mu.Lock()
		stale := m.generation != gen
		m.mu.Unlock()
		if !stale {
			m.clearLocal(ctx)
		}
		return false
	}

	m.mu.Lock()
	if m.generation != gen || m.session == nil {
		// A logout settled while the refresh was in flight; logged-out wins.
		m.mu.Unlock()
		m.metrics.RecordAuthOp("refresh", false)
		return false
	}
	m.session.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		m.session.RefreshToken = tokens.RefreshToken
	}
	sess := *m.session
	m.mu.Unlock()

	if err := m.tokens.Save(ctx, sess); err != nil {
		m.metrics.RecordStorageError()
		m.logger.Warn("failed to persist refreshed session", zap.Error(err))
	}
	m.metrics.RecordAuthOp("refresh", true)
	m.notify()
	return true
}

// CheckAuthStatus restores the session from the token store if a token is
// persisted. Idempotent: repeated calls with no intervening state change
// return the same session without re-reading storage.
func (m *Manager) CheckAuthStatus(ctx context.Context) *domain.Session {
	m.mu.Lock()
	if m.checked {
		sess := copySession(m.session)
		m.mu.Unlock()
		return sess
	}
	m.loading = true
	m.mu.Unlock()
	m.notify()

	stored, err := m.tokens.Load(ctx)
	if err != nil {
		m.metrics.RecordStorageError()
		m.logger.Warn("failed to read token store", zap.Error(err))
	}

	sess := m.restoreFromStored(ctx, stored)

	m.mu.Lock()
	m.session = sess
	m.loading = false
	m.checked = true
	out := copySession(sess)
	m.mu.Unlock()
	m.notify()
	return out
}

func (m *Manager) restoreFromStored(ctx context.Context, stored *store.StoredSession) *domain.Session {
	if stored == nil || stored.AccessToken == "" {
		return nil
	}

	identity, err := auth.DecodeIdentity(stored.AccessToken)
	if err != nil {
		m.logger.Warn("discarding undecodable stored token", zap.Error(err))
		m.clearStore(ctx)
		return nil
	}

	user := identity.User
	if stored.User != nil {
		user = *stored.User
	}

	if identity.Expired() {
		if stored.RefreshToken == "" {
			m.clearStore(ctx)
			return nil
		}
		tokens, err := m.backend.Refresh(ctx, stored.RefreshToken)
		if err != nil {
			m.logger.Warn("startup refresh failed", zap.Error(err))
			m.clearStore(ctx)
			return nil
		}
		sess := &domain.Session{
			User:         user,
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
		}
		if sess.RefreshToken == "" {
			sess.RefreshToken = stored.RefreshToken
		}
		if err := m.tokens.Save(ctx, *sess); err != nil {
			m.metrics.RecordStorageError()
			m.logger.Warn("failed to persist refreshed session", zap.Error(err))
		}
		return sess
	}

	return &domain.Session{
		User:         user,
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
	}
}

// clearLocal resets to logged-out: token store cleared, session nil,
// teardown hooks run. Storage failures are logged, never propagated.
func (m *Manager) clearLocal(ctx context.Context) {
	if err := m.tokens.Clear(ctx); err != nil {
		m.metrics.RecordStorageError()
		m.logger.Warn("failed to clear token store", zap.Error(err))
	}

	m.mu.Lock()
	m.session = nil
	m.loading = false
	m.checked = true
	hooks := append([]func(){}, m.teardown...)
	m.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
	m.logger.Info("logged out")
	m.notify()
}

func (m *Manager) clearStore(ctx context.Context) {
	if err := m.tokens.Clear(ctx); err != nil {
		m.metrics.RecordStorageError()
		m.logger.Warn("failed to clear token store", zap.Error(err))
	}
}

func (m *Manager) setLoading(loading bool) {
	m.mu.Lock()
	m.loading = loading
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{Session: copySession(m.session), Loading: m.loading}
}

func (m *Manager) notify() {
	m.mu.Lock()
	snap := m.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func copySession(sess *domain.Session) *domain.Session {
	if sess == nil {
		return nil
	}
	out := *sess
	return &out
}
