package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/floor/internal/broker"
	"github.com/kiwari-pos/floor/internal/cache"
	"github.com/kiwari-pos/floor/internal/config"
	"github.com/kiwari-pos/floor/internal/database"
	"github.com/kiwari-pos/floor/internal/router"
	"github.com/kiwari-pos/floor/internal/service"
	"github.com/kiwari-pos/floor/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return err
	}
	logger.Info("connected to database")

	hub := ws.NewHub()
	go hub.Run(ctx)

	publishers := service.MultiPublisher{hub}
	if cfg.AMQPURL != "" {
		pub, err := broker.Dial(cfg.AMQPURL, cfg.AMQPExchange, logger.With("component", "broker"))
		if err != nil {
			return err
		}
		defer pub.Close()
		publishers = append(publishers, pub)
		logger.Info("publishing events to rabbitmq", "exchange", cfg.AMQPExchange)
	}

	opts := []service.Option{service.WithEvents(publishers)}
	if cfg.CacheTTL > 0 {
		opts = append(opts, service.WithCache(cache.New(cfg.CacheTTL, 2*cfg.CacheTTL), cfg.CacheTTL))
	}

	r := router.New(cfg, database.New(pool), pool, hub, logger, opts...)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	hostname, _ := os.Hostname()
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})).
		With("service", "floor", "hostname", hostname)
}
