package setup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blogmedia/blogmedia/backend/internal/events"
	"github.com/blogmedia/blogmedia/backend/internal/handler"
	"github.com/blogmedia/blogmedia/backend/internal/service"
	"github.com/blogmedia/blogmedia/backend/internal/storage/fs"
	"github.com/blogmedia/blogmedia/backend/internal/storage/pg"
	"github.com/blogmedia/blogmedia/backend/internal/storage/redislock"
	"github.com/blogmedia/blogmedia/backend/internal/storage/s3"
	"github.com/blogmedia/blogmedia/shared/config"
	"github.com/blogmedia/blogmedia/shared/jwt"
	"github.com/blogmedia/blogmedia/shared/logger"
	mw "github.com/blogmedia/blogmedia/shared/middleware"
	"github.com/blogmedia/blogmedia/shared/middleware/ratelimiter"
	"github.com/blogmedia/blogmedia/shared/validation"
	"github.com/redis/go-redis/v9"
)

// Dependencies struct to hold all initialized dependencies.
type Dependencies struct {
	Config         *config.Config
	Storage        *pg.Storage
	LocalFiles     *fs.Storage // nil unless objects live on local disk
	Handler        *handler.Handler
	AuthMiddleware *mw.Auth
	UploadLimiter  *ratelimiter.Limiter
	Reaper         *service.OrphanReaper

	posts      *service.Post
	media      *service.Media
	dispatcher *service.Dispatcher
	broker     *events.Broker
	consumer   *events.NatsConsumer
	redis      *redis.Client
}

// SetupDependencies connects to every backing service and wires the
// services together. Nothing runs in the background until Start.
func SetupDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{Config: cfg}
	if err := deps.wire(ctx); err != nil {
		deps.closeClients()
		return nil, err
	}
	return deps, nil
}

func (d *Dependencies) wire(ctx context.Context) error {
	cfg := d.Config
	var err error
	d.Storage, err = pg.New(ctx, cfg)
	if err != nil {
		return err
	}

	objects, err := d.objectStorage(ctx)
	if err != nil {
		return err
	}

	var lock service.SweepLock
	if cfg.Public.Redis.Addr != "" {
		d.redis = redislock.NewClient(cfg)
		if err := d.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		lock = redislock.NewSweepLock(d.redis, redislock.DefaultLockKey, cfg.Public.Redis.LockTTL)
		logger.Log.Info("connected to redis", "addr", cfg.Public.Redis.Addr)
	}

	media := cfg.Public.Media
	var publisher service.MediaPublisher
	switch cfg.Public.Events.Driver {
	case "nats":
		d.broker, err = events.Connect(ctx, events.Options{
			URL:         cfg.Public.Events.NatsURL,
			Stream:      cfg.Public.Events.Stream,
			Subject:     cfg.Public.Events.Subject,
			Durable:     cfg.Public.Events.Durable,
			MaxAttempts: media.MaxAttempts,
			JobTimeout:  media.JobTimeout,
			RetryDelay:  media.RetryDelay,
		})
		if err != nil {
			return err
		}
		publisher = d.broker.Publisher()
		d.consumer = d.broker.Consumer()
	default:
		d.dispatcher = service.NewDispatcher(service.DispatcherConfig{
			Workers:     media.Workers,
			QueueSize:   media.QueueSize,
			JobTimeout:  media.JobTimeout,
			MaxAttempts: media.MaxAttempts,
			RetryDelay:  media.RetryDelay,
		})
		publisher = d.dispatcher
	}

	d.media = service.NewMedia(d.Storage, d.Storage, d.Storage, publisher)
	d.Reaper = service.NewOrphanReaper(d.Storage, objects, lock)
	d.posts = service.NewPost(d.Storage, d.media, d.Reaper, media.ReapTimeout)

	upload := cfg.Public.Upload
	files := service.NewFile(d.Storage, objects, cfg.Public.Storage.PublicBaseURL, validation.UploadLimits{
		Thumbnail: upload.MaxThumbnailSize,
		Image:     upload.MaxImageSize,
		Video:     upload.MaxVideoSize,
		Document:  upload.MaxDocumentSize,
	})

	d.Handler = handler.New(d.posts, files, d.Reaper, cfg, d.healthChecks()...)
	d.AuthMiddleware = mw.NewAuth(jwt.New(cfg.JwtKey(), cfg.JwtTTL()))
	d.UploadLimiter = ratelimiter.New(upload.PerMinute/60, float64(upload.Burst), time.Hour)

	return nil
}

func (d *Dependencies) healthChecks() []handler.HealthCheck {
	checks := []handler.HealthCheck{{Name: "database", Checker: d.Storage}}
	if d.broker != nil {
		checks = append(checks, handler.HealthCheck{Name: "nats", Checker: d.broker})
	}
	if d.redis != nil {
		checks = append(checks, handler.HealthCheck{Name: "redis", Checker: handler.HealthCheckFunc(func(ctx context.Context) error {
			return d.redis.Ping(ctx).Err()
		})})
	}
	return checks
}

func (d *Dependencies) objectStorage(ctx context.Context) (service.ObjectStorage, error) {
	switch d.Config.Public.Storage.Driver {
	case "s3":
		return s3.New(ctx, d.Config)
	default:
		local, err := fs.New(d.Config.Public.Storage.Root)
		if err != nil {
			return nil, err
		}
		d.LocalFiles = local
		return local, nil
	}
}

// Start launches association workers and the scheduled sweep. They stop when
// ctx is cancelled; call Shutdown afterwards to drain.
func (d *Dependencies) Start(ctx context.Context) error {
	if d.consumer != nil {
		if err := d.consumer.Start(ctx, d.media); err != nil {
			return err
		}
	}
	if d.dispatcher != nil {
		d.dispatcher.Start(ctx, d.media)
	}

	media := d.Config.Public.Media
	return d.Reaper.StartBackgroundSweep(ctx, service.SweepSchedule{
		DailyAt:     media.DailyAt,
		Interval:    media.SweepInterval,
		GracePeriod: media.GracePeriod,
	})
}

// Shutdown drains queued association jobs and on-demand reaping, then closes
// every client. The HTTP server must already be stopped.
func (d *Dependencies) Shutdown(ctx context.Context) error {
	var errs []error
	if d.consumer != nil {
		d.consumer.Stop()
	}
	if d.dispatcher != nil {
		if err := d.dispatcher.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("dispatcher: %w", err))
		}
	}

	done := make(chan struct{})
	go func() {
		d.posts.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("background reaping: %w", ctx.Err()))
	}

	d.UploadLimiter.Stop()
	d.closeClients()
	return errors.Join(errs...)
}

func (d *Dependencies) closeClients() {
	if d.broker != nil {
		d.broker.Close()
	}
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			logger.Log.Warn("failed to close redis client", "error", err)
		}
	}
	if d.Storage != nil {
		if err := d.Storage.Cleanup(); err != nil {
			logger.Log.Warn("failed to close database", "error", err)
		}
	}
}
