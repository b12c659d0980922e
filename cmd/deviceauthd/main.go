// Command deviceauthd serves the deviceauth HTTP API backed by PostgreSQL
// and Redis.
//
// Usage:
//
//	deviceauthd [-config path] [serve]
//	deviceauthd [-config path] migrate up|down
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/deviceauth"
	promexport "github.com/MrEthical07/deviceauth/metrics/export/prometheus"
	"github.com/MrEthical07/deviceauth/store/postgres"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("DEVICEAUTH_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	switch cmd := flag.Arg(0); cmd {
	case "", "serve":
		if err := serve(cfg); err != nil {
			fmt.Fprintln(os.Stderr, "serve:", err)
			os.Exit(1)
		}
	case "migrate":
		direction := flag.Arg(1)
		if direction == "" {
			direction = "up"
		}
		if err := postgres.Migrate(cfg.DB.URL, direction); err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		os.Exit(2)
	}
}

func serve(cfg *Config) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting deviceauthd", zap.String("env", cfg.App.Env), zap.String("ver", cfg.App.Version))

	db, err := postgres.New(rootCtx, cfg.DB)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	engine, err := deviceauth.New().
		WithConfig(cfg.engineConfig()).
		WithRedis(rdb).
		WithIdentityStore(db).
		WithLogger(logger.Named("engine")).
		WithAuditSink(deviceauth.NewZapSink(logger)).
		Build()
	if err != nil {
		return fmt.Errorf("engine build: %w", err)
	}
	defer engine.Close()

	report := engine.SecurityReport()
	logger.Info("security posture",
		zap.Duration("access_ttl", report.AccessTTL),
		zap.Duration("refresh_ttl", report.RefreshTTL),
		zap.Bool("key_rotation", report.KeyRotationActive),
		zap.Bool("login_rate_limit", report.LoginRateLimitActive),
		zap.Bool("legacy_bcrypt", report.LegacyBcryptAccepted),
		zap.Bool("audit", report.AuditActive),
	)

	srv := &server{
		engine:       engine,
		logger:       logger,
		defaultRoles: cfg.Auth.DefaultRoles,
		freshMaxAge:  cfg.Auth.FreshMaxAge,
		checks:       map[string]pinger{"sessions": engine, "db": db},
		metrics:      promexport.NewExporter(engine).Handler(),
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.routes(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go runSweep(rootCtx, db, cfg.Sweep.Interval, cfg.Sweep.Retention, logger.Named("sweep"))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		errCh <- httpSrv.ListenAndServe()
	}()

	var runErr error
	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal")
	case runErr = <-errCh:
		if errors.Is(runErr, http.ErrServerClosed) {
			runErr = nil
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := engine.Shutdown(shCtx); err != nil {
		logger.Warn("audit drain", zap.Error(err))
	}
	stats := engine.AuditStats()
	logger.Info("audit flushed",
		zap.Uint64("delivered", stats.Delivered),
		zap.Uint64("dropped", stats.Dropped),
		zap.Uint64("failed", stats.Failed),
	)

	logger.Info("bye")
	return runErr
}
