package devserver

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/buildflow/site-client/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleLogin implements POST /auth/login.
func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "BAD_REQUEST", "invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return errorJSON(c, http.StatusBadRequest, "BAD_REQUEST", "email and password required")
	}

	s.mu.Lock()
	acct := s.accounts[req.Email]
	s.mu.Unlock()
	if acct == nil {
		return errorJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
	}
	if err := auth.ComparePassword(acct.passwordHash, req.Password); err != nil {
		return errorJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
	}

	accessToken, expiresAt, err := s.tokens.GenerateToken(acct.user)
	if err != nil {
		s.logger.Error("token generation failed", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
	refreshToken := s.issueRefreshToken(acct.user.ID)

	s.logger.Info("login",
		zap.String("user_id", acct.user.ID),
		zap.String("role", string(acct.user.Role)))

	return c.JSON(fiber.Map{"data": fiber.Map{
		"user": acct.user,
		"auth": fiber.Map{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_at":    expiresAt,
		},
	}})
}

// handleRefresh implements POST /auth/refresh-token with rotation: the
// presented grant is consumed and a new one issued.
func (s *Server) handleRefresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return errorJSON(c, http.StatusBadRequest, "BAD_REQUEST", "refresh_token required")
	}

	s.mu.Lock()
	grant, ok := s.refresh[req.RefreshToken]
	if ok {
		delete(s.refresh, req.RefreshToken)
	}
	s.mu.Unlock()

	if !ok || time.Now().After(grant.expiresAt) {
		return errorJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "refresh token invalid or expired")
	}

	s.mu.Lock()
	var user *account
	for _, acct := range s.accounts {
		if acct.user.ID == grant.userID {
			user = acct
			break
		}
	}
	s.mu.Unlock()
	if user == nil {
		return errorJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "unknown subject")
	}

	accessToken, expiresAt, err := s.tokens.GenerateToken(user.user)
	if err != nil {
		s.logger.Error("token generation failed", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
	refreshToken := s.issueRefreshToken(user.user.ID)

	return c.JSON(fiber.Map{"data": fiber.Map{
		"auth": fiber.Map{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_at":    expiresAt,
		},
	}})
}

// handleLogout implements POST /auth/logout: every refresh grant for the
// caller is revoked.
func (s *Server) handleLogout(c *fiber.Ctx) error {
	user, err := s.bearerUser(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
	}

	s.mu.Lock()
	for token, grant := range s.refresh {
		if grant.userID == user.ID {
			delete(s.refresh, token)
		}
	}
	s.mu.Unlock()

	s.logger.Info("logout", zap.String("user_id", user.ID))
	return c.SendStatus(http.StatusNoContent)
}

// handleNotifications implements GET /notification.
func (s *Server) handleNotifications(c *fiber.Ctx) error {
	user, err := s.bearerUser(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
	}
	return c.JSON(fiber.Map{"data": historyFor(*user)})
}

func (s *Server) issueRefreshToken(userID string) string {
	token := uuid.NewString()
	ttl := time.Duration(s.cfg.RefreshTokenTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	s.mu.Lock()
	s.refresh[token] = refreshGrant{userID: userID, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return token
}
