// Package store provides the client-side persistence layer: a small keyed
// blob store playing the part browser local storage plays in the web client,
// with a file-backed and a Redis-backed implementation.
package store

import "context"

// Fixed keys namespacing everything the client persists.
const (
	KeyAccessToken   = "access_token"
	KeyRefreshToken  = "refresh_token"
	KeyUser          = "user"
	KeyNotifications = "notifications"
)

// Store is a keyed blob store. Implementations return StorageError values
// from pkg/util so callers can treat persistence as best-effort.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
