package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/buildflow/site-client/internal/api/rest"
	"github.com/buildflow/site-client/internal/auth"
	"github.com/buildflow/site-client/internal/config"
	"github.com/buildflow/site-client/internal/domain"
	"github.com/buildflow/site-client/internal/notifications"
	"github.com/buildflow/site-client/internal/observability"
	"github.com/buildflow/site-client/internal/realtime"
	"github.com/buildflow/site-client/internal/session"
	"github.com/buildflow/site-client/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, cleanup, err := newStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer cleanup()

	metrics := observability.NewMetrics()
	tokens := store.NewTokenStore(backend)
	api := rest.NewClient(cfg.Backend, logger)
	manager := session.NewManager(api, tokens, logger, metrics)

	cache := notifications.NewCache(ctx, backend, logger, metrics,
		notifications.WithAlerter(notifications.LogAlerter{Logger: logger}))

	channel := realtime.NewChannel(cfg.Realtime, manager.AccessToken, logger, metrics)
	manager.OnLogout(channel.Disconnect)

	sub := channel.Subscribe(realtime.EventReceiveNotification, func(ev realtime.Event) {
		var event domain.NotificationEvent
		if err := json.Unmarshal(ev.Payload, &event); err != nil {
			logger.Warn("undecodable notification event", zap.Error(err))
			return
		}
		cache.Add(ctx, event)
	})
	defer sub.Cancel()

	stateSub := channel.SubscribeState(func(state domain.ChannelState) {
		logger.Info("channel state", zap.String("state", string(state)))
	})
	defer stateSub.Cancel()

	sess := manager.CheckAuthStatus(ctx)
	if sess == nil {
		email := envOr("CLIENT_EMAIL", "homeowner@example.test")
		password := envOr("CLIENT_PASSWORD", "buildflow")
		if err := manager.Login(ctx, email, password); err != nil {
			logger.Fatal("login failed", zap.Error(err))
		}
		sess = manager.Session()
	}

	logger.Info("session ready",
		zap.String("user_id", sess.User.ID),
		zap.String("role", auth.DisplayNameFor(sess.User.Role)),
		zap.String("dashboard", auth.DashboardRouteFor(sess.User.Role)))

	if history, err := api.Notifications(ctx, sess.AccessToken); err != nil {
		logger.Warn("notification history fetch failed", zap.Error(err))
	} else {
		added := cache.AddAll(ctx, history)
		logger.Info("notification history merged",
			zap.Int("fetched", len(history)),
			zap.Int("new", added),
			zap.Int("unread", cache.UnreadCount()))
	}

	if err := channel.Connect(ctx, sess.User.ID); err != nil {
		logger.Warn("live updates unavailable", zap.Error(err))
	}

	waitForShutdown(logger)

	channel.Disconnect()
}

func newStore(cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	if cfg.Storage.Driver == "redis" {
		redisStore := store.NewRedisStore(cfg.Redis, logger)
		return redisStore, redisStore.Close, nil
	}
	fileStore, err := store.NewFileStore(cfg.Storage.Dir)
	if err != nil {
		return nil, nil, err
	}
	return fileStore, func() {}, nil
}

func envOr(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
