package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/buildflow/site-client/internal/config"
	"github.com/buildflow/site-client/internal/devserver"
	"github.com/buildflow/site-client/internal/observability"
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

	server, err := devserver.New(cfg.Stub, logger)
	if err != nil {
		logger.Fatal("failed to build stub server", zap.Error(err))
	}

	go func() {
		logger.Info("stub REST listening", zap.String("addr", cfg.Stub.Addr()))
		if err := server.Listen(); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	wsServer := &http.Server{
		Addr:    cfg.Stub.RealtimeAddr(),
		Handler: server.HubHandler(),
	}
	go func() {
		logger.Info("stub realtime listening", zap.String("addr", cfg.Stub.RealtimeAddr()))
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("realtime listen", zap.Error(err))
		}
	}()

	// Push a demo update to every seeded user once a minute so connected
	// clients have live traffic to display.
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				for _, userID := range server.UserIDs() {
					if n := server.PublishDemoUpdate(userID); n > 0 {
						logger.Debug("demo update pushed",
							zap.String("user_id", userID), zap.Int("peers", n))
					}
				}
			}
		}
	}()

	waitForShutdown(logger)
	close(stop)

	_ = wsServer.Close()
	_ = server.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
