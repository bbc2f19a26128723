package util

import (
	"errors"
	"fmt"
)

// AuthErrorKind classifies authentication failures.
type AuthErrorKind string

const (
	AuthInvalidCredentials AuthErrorKind = "INVALID_CREDENTIALS"
	AuthNetworkError       AuthErrorKind = "NETWORK_ERROR"
	AuthServerError        AuthErrorKind = "SERVER_ERROR"
)

// AuthError is returned by login and token-refresh operations. It surfaces to
// the caller for user-visible messaging and is never retried automatically.
type AuthError struct {
	Kind    AuthErrorKind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Message, e.Err)
	}
	return "auth: " + e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewInvalidCredentials builds an AuthError for rejected credentials.
func NewInvalidCredentials(message string) error {
	return &AuthError{Kind: AuthInvalidCredentials, Message: message}
}

// NewAuthNetworkError wraps a transport failure reaching the backend.
func NewAuthNetworkError(err error) error {
	return &AuthError{Kind: AuthNetworkError, Message: "backend unreachable", Err: err}
}

// NewAuthServerError wraps a backend-side failure (5xx or malformed reply).
func NewAuthServerError(message string, err error) error {
	return &AuthError{Kind: AuthServerError, Message: message, Err: err}
}

// IsAuthKind reports whether err is an AuthError of the given kind.
func IsAuthKind(err error, kind AuthErrorKind) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Kind == kind
}

// ChannelErrorKind classifies realtime-channel failures.
type ChannelErrorKind string

const (
	ChannelConnectFailed ChannelErrorKind = "CONNECT_FAILED"
	ChannelSendFailed    ChannelErrorKind = "SEND_FAILED"
)

// ChannelError is returned for realtime-channel operations. Only the initial
// handshake surfaces as ConnectFailed; reconnection after an established
// connection drops is handled internally and not reported per attempt.
type ChannelError struct {
	Kind    ChannelErrorKind
	Message string
	Err     error
}

func (e *ChannelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("channel: %s: %v", e.Message, e.Err)
	}
	return "channel: " + e.Message
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// NewConnectFailed wraps a failed channel handshake.
func NewConnectFailed(err error) error {
	return &ChannelError{Kind: ChannelConnectFailed, Message: "handshake failed", Err: err}
}

// NewSendFailed wraps a failed channel invocation.
func NewSendFailed(err error) error {
	return &ChannelError{Kind: ChannelSendFailed, Message: "send failed", Err: err}
}

// IsChannelKind reports whether err is a ChannelError of the given kind.
func IsChannelKind(err error, kind ChannelErrorKind) bool {
	var chErr *ChannelError
	return errors.As(err, &chErr) && chErr.Kind == kind
}

// StorageErrorKind classifies client-side persistence failures.
type StorageErrorKind string

const (
	StorageQuotaExceeded StorageErrorKind = "QUOTA_EXCEEDED"
	StorageUnavailable   StorageErrorKind = "UNAVAILABLE"
)

// StorageError reports a persistence failure. Callers treat storage as a
// cache: these errors are caught and logged at the call site, never
// propagated into an auth or notification operation.
type StorageError struct {
	Kind    StorageErrorKind
	Message string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage: %s: %v", e.Message, e.Err)
	}
	return "storage: " + e.Message
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageUnavailable wraps a failure of the persistence layer itself.
func NewStorageUnavailable(err error) error {
	return &StorageError{Kind: StorageUnavailable, Message: "storage unavailable", Err: err}
}

// NewQuotaExceeded wraps a write rejected for lack of space.
func NewQuotaExceeded(err error) error {
	return &StorageError{Kind: StorageQuotaExceeded, Message: "storage quota exceeded", Err: err}
}

// IsStorageError reports whether err originates from the persistence layer.
func IsStorageError(err error) bool {
	var stErr *StorageError
	return errors.As(err, &stErr)
}
