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

	authcore "github.com/securepay/authcore"
	"github.com/securepay/authcore/internal/accountdb"
	"github.com/securepay/authcore/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gatewayd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML configuration")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	accounts, err := accountdb.Open(cfg.Database.Path)
	if err != nil {
		return err
	}

	sink, closeSink, err := auditSink(cfg.Audit.LogPath)
	if err != nil {
		return err
	}
	defer closeSink()

	core, err := authcore.New().
		WithConfig(cfg.coreConfig()).
		WithRedis(rdb).
		WithAccountProvider(accounts).
		WithAuditSink(sink).
		WithLogger(logging.NewSlog(log)).
		Build()
	if err != nil {
		return err
	}
	defer core.Close()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newRouter(core),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	return nil
}

// auditSink writes audit events as JSON lines to the configured path, or to
// stderr when none is set.
func auditSink(path string) (authcore.AuditSink, func(), error) {
	if path == "" {
		return authcore.NewJSONWriterSink(os.Stderr), func() {}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log %s: %w", path, err)
	}
	return authcore.NewJSONWriterSink(f), func() { f.Close() }, nil
}
