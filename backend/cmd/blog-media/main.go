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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/blogmedia/blogmedia/backend/internal/router"
	"github.com/blogmedia/blogmedia/backend/internal/setup"
	"github.com/blogmedia/blogmedia/shared/config"
	"github.com/blogmedia/blogmedia/shared/domain"
	"github.com/blogmedia/blogmedia/shared/jwt"
	"github.com/blogmedia/blogmedia/shared/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	var (
		configFolder string
		sweepHours   int
		issueEmail   string
		issueUserId  int64
		issueAdmin   bool
	)
	flag.StringVar(&configFolder, "config_folder", "backend/config", "path to folder with configs")
	flag.IntVar(&sweepHours, "sweep-hours", -1, "run one orphan sweep with this grace period in hours and exit")
	flag.StringVar(&issueEmail, "issue-token", "", "print a bearer token for this email and exit")
	flag.Int64Var(&issueUserId, "user-id", 1, "user id for -issue-token")
	flag.BoolVar(&issueAdmin, "admin", false, "issue an admin token")
	flag.Parse()

	cfg := config.MustLoad(configFolder)
	logger.Initialize(cfg.Public.Log.Level, cfg.Public.Log.JSON, cfg.SentryDSN())
	defer logger.Flush(2 * time.Second)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	if issueEmail != "" {
		token, err := jwt.New(cfg.JwtKey(), cfg.JwtTTL()).NewToken(domain.User{
			Id:    domain.UserId(issueUserId),
			Email: issueEmail,
			Admin: issueAdmin,
		})
		if err != nil {
			logger.Log.Error("failed to issue token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if err := run(cfg, sweepHours); err != nil {
		logger.Log.Error("blog-media stopped with error", "error", err)
		logger.Flush(2 * time.Second)
		os.Exit(1)
	}
}

func run(cfg *config.Config, sweepHours int) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := setup.SetupDependencies(ctx, cfg)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	if sweepHours >= 0 {
		return sweepOnce(ctx, deps, sweepHours)
	}

	if err := deps.Start(ctx); err != nil {
		shutdownDeps(deps)
		return fmt.Errorf("start background workers: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Public.HTTP.Addr,
		Handler:           router.New(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Log.Info("server started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		logger.Log.Info("signal received, shutting down", "signal", sig.String())
	case err := <-serverErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("http server shutdown failed", "error", err)
	}

	// stop scheduled sweeps before draining
	cancel()
	if err := deps.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("dependency shutdown incomplete", "error", err)
	}
	logger.Log.Info("server stopped")
	return runErr
}

func sweepOnce(ctx context.Context, deps *setup.Dependencies, hours int) error {
	defer shutdownDeps(deps)

	deleted, err := deps.Reaper.SweepOrphans(ctx, hours)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	logger.Log.Info("one-shot sweep finished", "deleted", deleted, "grace_hours", hours)
	return nil
}

func shutdownDeps(deps *setup.Dependencies) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := deps.Shutdown(ctx); err != nil {
		logger.Log.Error("dependency shutdown incomplete", "error", err)
	}
}
