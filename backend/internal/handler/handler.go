package handler

import (
	"context"

	"github.com/blogmedia/blogmedia/backend/internal/service"
	"github.com/blogmedia/blogmedia/shared/config"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// HealthCheck is one named dependency reported by Ready.
type HealthCheck struct {
	Name    string
	Checker HealthChecker
}

// Sweeper runs on-demand orphan sweeps for the admin endpoints.
type Sweeper interface {
	// SweepHours validates hours against service.MaxSweepHours before sweeping.
	SweepHours(ctx context.Context, hours int) (service.SweepReport, error)
	LastSweepReport() (service.SweepReport, bool)
}

type Handler struct {
	posts   service.PostService
	files   service.FileService
	sweeper Sweeper
	checks  []HealthCheck
	cfg     *config.Config
}

func New(posts service.PostService, files service.FileService, sweeper Sweeper, cfg *config.Config, checks ...HealthCheck) *Handler {
	return &Handler{
		posts:   posts,
		files:   files,
		sweeper: sweeper,
		checks:  checks,
		cfg:     cfg,
	}
}
