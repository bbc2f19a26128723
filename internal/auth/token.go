package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/buildflow/site-client/internal/domain"
)

// Claims describes the JWT payload for access tokens.
type Claims struct {
	Username        string      `json:"username"`
	Email           string      `json:"email"`
	Role            domain.Role `json:"role"`
	IsEmailVerified bool        `json:"email_verified"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates signed access tokens. The client only
// ever validates tokens it received; issuing is used by the stub backend.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttlMinutes int) *TokenManager {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	return &TokenManager{secret: []byte(secret), ttl: time.Duration(ttlMinutes) * time.Minute}
}

// GenerateToken builds and signs a JWT for the user.
func (tm *TokenManager) GenerateToken(user domain.User) (string, time.Time, error) {
	expiresAt := time.Now().Add(tm.ttl)
	claims := &Claims{
		Username:        user.Username,
		Email:           user.Email,
		Role:            user.Role,
		IsEmailVerified: user.IsEmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseToken validates signature and expiry and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Identity is what the client can recover from a stored access token without
// a server round-trip.
type Identity struct {
	User      domain.User
	ExpiresAt time.Time
}

// Expired reports whether the token lifetime has passed.
func (i Identity) Expired() bool {
	return !i.ExpiresAt.IsZero() && time.Now().After(i.ExpiresAt)
}

// DecodeIdentity extracts the user identity from an access token without
// verifying the signature. The client does not hold the signing secret; the
// backend remains the authority and rejects tampered tokens on use.
func DecodeIdentity(tokenStr string) (*Identity, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, &claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	identity := &Identity{
		User: domain.User{
			ID:              claims.Subject,
			Username:        claims.Username,
			Email:           claims.Email,
			Role:            claims.Role,
			IsEmailVerified: claims.IsEmailVerified,
		},
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}
