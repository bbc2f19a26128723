package store

import (
	"context"
	"encoding/json"

	"github.com/buildflow/site-client/internal/domain"
)

// StoredSession is what the token store can recover after a restart.
type StoredSession struct {
	AccessToken  string
	RefreshToken string
	User         *domain.User
}

// TokenStore persists the access token, refresh token, and minimal user
// identity under fixed keys.
type TokenStore struct {
	backend Store
}

// NewTokenStore wraps a blob store.
func NewTokenStore(backend Store) *TokenStore {
	return &TokenStore{backend: backend}
}

// Save persists the full token set and identity. The access token is written
// last so a partially persisted session never looks authenticated.
func (t *TokenStore) Save(ctx context.Context, sess domain.Session) error {
	userJSON, err := json.Marshal(sess.User)
	if err != nil {
		return err
	}
	if err := t.backend.Set(ctx, KeyUser, userJSON); err != nil {
		return err
	}
	if sess.RefreshToken != "" {
		if err := t.backend.Set(ctx, KeyRefreshToken, []byte(sess.RefreshToken)); err != nil {
			return err
		}
	}
	return t.backend.Set(ctx, KeyAccessToken, []byte(sess.AccessToken))
}

// Load reads whatever session state is persisted. A missing access token
// yields (nil, nil): not an error, just unauthenticated.
func (t *TokenStore) Load(ctx context.Context) (*StoredSession, error) {
	access, ok, err := t.backend.Get(ctx, KeyAccessToken)
	if err != nil {
		return nil, err
	}
	if !ok || len(access) == 0 {
		return nil, nil
	}

	stored := &StoredSession{AccessToken: string(access)}

	if refresh, ok, err := t.backend.Get(ctx, KeyRefreshToken); err == nil && ok {
		stored.RefreshToken = string(refresh)
	}
	if userJSON, ok, err := t.backend.Get(ctx, KeyUser); err == nil && ok {
		var user domain.User
		if json.Unmarshal(userJSON, &user) == nil && user.ID != "" {
			stored.User = &user
		}
	}
	return stored, nil
}

// Clear removes all token state. The access token goes first so a failure
// partway through still leaves the session unauthenticated.
func (t *TokenStore) Clear(ctx context.Context) error {
	if err := t.backend.Delete(ctx, KeyAccessToken); err != nil {
		return err
	}
	if err := t.backend.Delete(ctx, KeyRefreshToken); err != nil {
		return err
	}
	return t.backend.Delete(ctx, KeyUser)
}
