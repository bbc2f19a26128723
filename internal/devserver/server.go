// Package devserver is a development stand-in for the remote collaborators:
// the REST backend and the push-notification endpoint. It issues real-format
// tokens for seeded role accounts so the client always exercises the genuine
// wire contract.
package devserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/buildflow/site-client/internal/auth"
	"github.com/buildflow/site-client/internal/config"
	"github.com/buildflow/site-client/internal/domain"
	"github.com/buildflow/site-client/internal/realtime"
)

// Server bundles the fiber REST app and the realtime hub.
type Server struct {
	app    *fiber.App
	hub    *realtime.Hub
	tokens *auth.TokenManager
	logger *zap.Logger
	cfg    config.StubConfig

	mu       sync.Mutex
	accounts map[string]*account
	refresh  map[string]refreshGrant
}

type refreshGrant struct {
	userID    string
	expiresAt time.Time
}

// New builds the stub server with seeded accounts.
func New(cfg config.StubConfig, logger *zap.Logger) (*Server, error) {
	accounts, err := seedAccounts(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	s := &Server{
		hub:      realtime.NewHub(logger),
		tokens:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		logger:   logger,
		cfg:      cfg,
		accounts: accounts,
		refresh:  make(map[string]refreshGrant),
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(s.requestLogger)

	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	authGroup := app.Group("/auth")
	authGroup.Post("/login", s.handleLogin)
	authGroup.Post("/refresh-token", s.handleRefresh)
	authGroup.Post("/logout", s.handleLogout)

	app.Get("/notification", s.handleNotifications)

	s.app = app
	return s, nil
}

// App exposes the fiber app for serving and tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// HubHandler returns the websocket endpoint, authenticated with the same
// access tokens the REST side issues.
func (s *Server) HubHandler() http.Handler {
	return s.hub.Handler(s.Authenticate)
}

// Hub exposes the underlying hub for publishing demo events.
func (s *Server) Hub() *realtime.Hub {
	return s.hub
}

// Authenticate resolves an access token to its user id.
func (s *Server) Authenticate(_ context.Context, token string) (string, error) {
	claims, err := s.tokens.ParseToken(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Listen serves the REST API; blocks until shutdown.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Addr())
}

// Shutdown stops the fiber app.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// PublishDemoUpdate pushes a fabricated project update to the user's group.
func (s *Server) PublishDemoUpdate(userID string) int {
	event := domain.NotificationEvent{
		ID:          uuid.NewString(),
		Type:        domain.NotificationProjectUpdate,
		Title:       "Project status changed",
		Message:     "A milestone on Maple St moved to in-progress.",
		CreatedAt:   time.Now().UTC(),
		ReferenceID: uuid.NewString(),
		ProjectID:   "prj-maple",
	}
	return s.hub.Publish(userID, realtime.EventReceiveNotification, event)
}

// UserIDs lists the seeded account ids, for demo event publishing.
func (s *Server) UserIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.accounts))
	for _, acct := range s.accounts {
		ids = append(ids, acct.user.ID)
	}
	return ids
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
		zap.Duration("duration", time.Since(start)))
	return err
}

func (s *Server) bearerUser(c *fiber.Ctx) (*domain.User, error) {
	header := c.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, errors.New("missing bearer token")
	}
	claims, err := s.tokens.ParseToken(parts[1])
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		if acct.user.ID == claims.Subject {
			user := acct.user
			return &user, nil
		}
	}
	return nil, errors.New("unknown subject")
}

func errorJSON(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": fiber.Map{
		"code":    code,
		"message": message,
	}})
}
