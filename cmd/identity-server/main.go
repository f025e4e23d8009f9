// Command identity-server runs the identity HTTP API: it owns the user
// store, issues tokens, and bootstraps the shared service account.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/EvansOtieno/Auto-Repair/auth"
	"github.com/EvansOtieno/Auto-Repair/internal/config"
	"github.com/EvansOtieno/Auto-Repair/internal/server"
	"github.com/EvansOtieno/Auto-Repair/internal/userstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "identity-server:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log := newLogger(cfg.Log)
	slog.SetDefault(log)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	store, err := userstore.NewRedisStore(client, cfg.Redis.Prefix)
	if err != nil {
		return err
	}

	service, err := auth.New().
		WithSigningKey([]byte(cfg.Auth.SigningKey)).
		WithTokenTTL(cfg.Auth.TokenTTL).
		WithIssuerName(cfg.Auth.Issuer).
		WithVerifyLeeway(cfg.Auth.Leeway).
		WithStore(store).
		WithAuditSink(auth.NewJSONWriterSink(os.Stdout)).
		Build()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.ServiceAccount.Identifier != "" {
		bootCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := service.EnsureServiceAccount(bootCtx, cfg.ServiceAccount.Identifier, cfg.ServiceAccount.Secret)
		cancel()
		if err != nil {
			return fmt.Errorf("bootstrap service account: %w", err)
		}
		log.Info("service account ready", "identifier", cfg.ServiceAccount.Identifier)
	}

	srv, err := server.New(service, store, log)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newLogger(cfg config.LogSection) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
