package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/epic1st/rtx/backend/adminbus"
	"github.com/epic1st/rtx/backend/auth"
	"github.com/epic1st/rtx/backend/broadcast"
	"github.com/epic1st/rtx/backend/config"
	"github.com/epic1st/rtx/backend/httpapi"
	"github.com/epic1st/rtx/backend/logging"
	"github.com/epic1st/rtx/backend/metrics"
	"github.com/epic1st/rtx/backend/orders"
	"github.com/epic1st/rtx/backend/pubsub"
	"github.com/epic1st/rtx/backend/session"
	"github.com/epic1st/rtx/backend/wsapi"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("failed to load configuration", err)
	}

	logFile, err := logging.NewRotatingFileWriter(logging.RotationConfig{
		Filename:           filepath.Join(os.TempDir(), "rtx-gateway", "server.log"),
		MaxSizeMB:          100,
		MaxAge:             7 * 24 * time.Hour,
		MaxBackups:         10,
		CompressionEnabled: true,
	})
	if err != nil {
		logging.Error("failed to open rotating log file, logging to stdout only", err)
	} else {
		defer logFile.Close()
		logging.SetDefault(logging.NewLogger(logging.INFO, logging.NewMultiWriter(os.Stdout, logFile)))
	}

	auditLog, err := logging.NewAuditLogger(os.TempDir())
	if err != nil {
		logging.Error("failed to initialize audit logger, continuing without it", err)
		auditLog = nil
	} else {
		defer auditLog.Close()
	}

	authority := auth.NewAuthority(cfg.JWT.Secret, parseDurationOrDefault(cfg.JWT.TTL, auth.DefaultTTL))
	authService := auth.NewService(authority, cfg.Admin.Username, cfg.Admin.PasswordHash)

	registry := session.NewRegistry(authority)
	bus := pubsub.NewBus()
	adminEventBus := adminbus.NewBus()

	orderStore := orders.NewStore(func(eventType string, order orders.Order, userID string) {
		metrics.RecordAdminEventPublished(eventType)
		adminEventBus.Publish(adminbus.NewEvent(adminbus.EventType(eventType), order, userID))
	})

	controller := broadcast.NewController(bus, cfg.DataDir)

	apiServer := httpapi.NewServer(authService, registry, orderStore, controller, auditLog)
	userWS := wsapi.NewUserHandler(registry, bus)
	adminWS := wsapi.NewAdminHandler(registry, adminEventBus)

	wsMux := http.NewServeMux()
	wsMux.Handle("GET /ws", userWS)
	wsMux.Handle("GET /admin", adminWS)

	httpServer := &http.Server{
		Addr:         cfg.HTTPBindAddress,
		Handler:      apiServer.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	wsServer := &http.Server{
		Addr:         cfg.WSBindAddress,
		Handler:      wsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout:  0,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweepStop := make(chan struct{})

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Info("http api listening", logging.String("addr", cfg.HTTPBindAddress))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logging.Info("websocket gateway listening", logging.String("addr", cfg.WSBindAddress))
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		registry.RunSweeper(sweepStop, func(count int) {
			metrics.RecordSessionsSwept(count)
			logging.Info("swept stale sessions", logging.Int("count", count))
		})
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.SetActiveSessions(registry.Count())
			case <-sweepStop:
				return nil
			}
		}
	})

	g.Go(func() error {
		<-gCtx.Done()
		logging.Info("shutting down")

		close(sweepStop)
		controller.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var shutdownErr error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = err
		}
		if err := wsServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = err
		}
		return shutdownErr
	})

	if err := g.Wait(); err != nil {
		logging.Fatal("server stopped with an error", err)
	}

	logging.Info("server stopped gracefully")
}

func parseDurationOrDefault(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		logging.Warn("invalid JWT_TTL, using default", logging.String("value", s))
		return fallback
	}
	return d
}
