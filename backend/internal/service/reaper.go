package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	internal_errors "github.com/blogmedia/blogmedia/backend/internal/errors"
	"github.com/blogmedia/blogmedia/shared/domain"
	"github.com/blogmedia/blogmedia/shared/logger"
)

const (
	TriggerSweep  = "sweep"
	TriggerDetach = "detach"
)

// MaxSweepHours caps the grace period of a manual sweep at ten years.
const MaxSweepHours = 87600

// reapFileTimeout bounds the delete of one file once it has started.
const reapFileTimeout = 30 * time.Second

// SweepLock coordinates sweeps across processes.
type SweepLock interface {
	// Acquire returns false when another holder owns the lock.
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// SweepSchedule selects when background sweeps run. Interval wins over DailyAt.
type SweepSchedule struct {
	DailyAt     string // "HH:MM" local time
	Interval    time.Duration
	GracePeriod time.Duration
}

// SweepReport describes one reaping run.
type SweepReport struct {
	Trigger        string          `json:"trigger"`
	RunAt          time.Time       `json:"run_at"`
	GracePeriod    time.Duration   `json:"grace_period_ns"`
	Candidates     int             `json:"candidates"`
	FilesDeleted   int             `json:"files_deleted"`
	Skipped        int             `json:"skipped"` // referenced again before deletion
	BytesReclaimed int64           `json:"bytes_reclaimed"`
	DurationMs     int64           `json:"duration_ms"`
	Cancelled      bool            `json:"cancelled"`
	Deleted        []domain.FileId `json:"deleted"`
	Errors         []string        `json:"errors"`
}

// OrphanReaper deletes files that no post references. Each file is locked
// and re-checked by the registry, then the stored object goes first and the
// metadata second.
type OrphanReaper struct {
	files   FileRegistry
	objects ObjectStorage
	lock    SweepLock

	running atomic.Bool

	mu         sync.Mutex
	lastReport *SweepReport
}

// NewOrphanReaper creates a reaper. lock may be nil for single-instance deployments.
func NewOrphanReaper(files FileRegistry, objects ObjectStorage, lock SweepLock) *OrphanReaper {
	return &OrphanReaper{
		files:   files,
		objects: objects,
		lock:    lock,
	}
}

// StartBackgroundSweep runs sweeps on schedule until ctx is done.
func (r *OrphanReaper) StartBackgroundSweep(ctx context.Context, schedule SweepSchedule) error {
	var dailyAt time.Time
	if schedule.Interval <= 0 {
		var err error
		dailyAt, err = time.Parse("15:04", schedule.DailyAt)
		if err != nil {
			return fmt.Errorf("invalid daily sweep time %q: %w", schedule.DailyAt, err)
		}
	}

	next := func(now time.Time) time.Time {
		if schedule.Interval > 0 {
			return now.Add(schedule.Interval)
		}
		return nextDailyRun(now, dailyAt.Hour(), dailyAt.Minute())
	}

	logger.Log.Info("started orphan reaper",
		"component", "reaper", "daily_at", schedule.DailyAt, "interval", schedule.Interval,
		"grace_period", schedule.GracePeriod)

	go func() {
		for {
			timer := time.NewTimer(time.Until(next(time.Now())))
			select {
			case <-timer.C:
				report, err := r.RunSweep(ctx, schedule.GracePeriod)
				if err != nil {
					logger.Log.Error("orphan sweep failed", "component", "reaper", "error", err)
					continue
				}
				logger.Log.Info("orphan sweep completed",
					"component", "reaper",
					"candidates", report.Candidates,
					"deleted", report.FilesDeleted,
					"skipped", report.Skipped,
					"bytes_reclaimed", report.BytesReclaimed,
					"duration_ms", report.DurationMs,
					"errors", len(report.Errors),
				)
			case <-ctx.Done():
				timer.Stop()
				logger.Log.Info("orphan reaper shutting down gracefully", "component", "reaper")
				return
			}
		}
	}()
	return nil
}

// nextDailyRun returns the first hour:minute strictly after now, in now's location.
func nextDailyRun(now time.Time, hour, minute int) time.Time {
	run := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !run.After(now) {
		run = run.AddDate(0, 0, 1)
	}
	return run
}

// RunSweep deletes unreferenced files older than gracePeriod. Only one sweep
// runs at a time; an overlapping call gets errors.ErrSweepInProgress. If ctx
// is cancelled the sweep finishes the file in progress, stops and returns the
// partial report with ctx.Err().
func (r *OrphanReaper) RunSweep(ctx context.Context, gracePeriod time.Duration) (SweepReport, error) {
	if gracePeriod < 0 {
		return SweepReport{}, &internal_errors.ValidationError{Message: "grace period must not be negative"}
	}
	if !r.running.CompareAndSwap(false, true) {
		return SweepReport{}, internal_errors.ErrSweepInProgress
	}
	defer r.running.Store(false)

	if r.lock != nil {
		acquired, err := r.lock.Acquire(ctx)
		if err != nil {
			return SweepReport{}, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !acquired {
			return SweepReport{}, internal_errors.ErrSweepInProgress
		}
		defer func() {
			if err := r.lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Log.Warn("failed to release sweep lock", "component", "reaper", "error", err)
			}
		}()
	}

	start := time.Now()
	report := newSweepReport(TriggerSweep, start)
	report.GracePeriod = gracePeriod

	candidates, err := r.files.ListCreatedBefore(ctx, start.Add(-gracePeriod))
	if err != nil {
		reapFailuresTotal.WithLabelValues("lookup").Inc()
		return report, fmt.Errorf("list orphan candidates: %w", err)
	}
	report.Candidates = len(candidates)

	for i := range candidates {
		if ctx.Err() != nil {
			break
		}
		r.reap(ctx, &candidates[i], &report)
	}
	report.Cancelled = ctx.Err() != nil

	report.DurationMs = time.Since(start).Milliseconds()
	sweepDuration.Observe(time.Since(start).Seconds())
	r.setLastReport(report)

	if report.Cancelled {
		logger.Log.Warn("orphan sweep cancelled",
			"component", "reaper", "deleted", report.FilesDeleted, "candidates", report.Candidates)
		return report, ctx.Err()
	}
	return report, nil
}

// SweepHours runs a sweep with a grace period of hours, which must be
// within [0, MaxSweepHours].
func (r *OrphanReaper) SweepHours(ctx context.Context, hours int) (SweepReport, error) {
	if hours < 0 {
		return SweepReport{}, &internal_errors.ValidationError{Message: "hours must not be negative"}
	}
	if hours > MaxSweepHours {
		return SweepReport{}, &internal_errors.ValidationError{Message: fmt.Sprintf("hours must not exceed %d", MaxSweepHours)}
	}
	return r.RunSweep(ctx, time.Duration(hours)*time.Hour)
}

// SweepOrphans runs a sweep with a grace period of hours and returns how
// many files were deleted.
func (r *OrphanReaper) SweepOrphans(ctx context.Context, hours int) (int, error) {
	report, err := r.SweepHours(ctx, hours)
	return report.FilesDeleted, err
}

// MarkCandidates reaps the given files immediately if they are still
// unreferenced. Problems are recorded in the report, never returned.
func (r *OrphanReaper) MarkCandidates(ctx context.Context, ids []domain.FileId) SweepReport {
	start := time.Now()
	report := newSweepReport(TriggerDetach, start)
	report.Candidates = len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		file, err := r.files.FindByID(ctx, id)
		if err != nil {
			if internal_errors.Is[*internal_errors.FileNotFoundError](err) {
				report.Skipped++
				continue
			}
			reapFailuresTotal.WithLabelValues("lookup").Inc()
			report.Errors = append(report.Errors, fmt.Sprintf("find file %d: %v", id, err))
			continue
		}
		r.reap(ctx, file, &report)
	}
	report.Cancelled = ctx.Err() != nil

	report.DurationMs = time.Since(start).Milliseconds()
	logger.Log.Info("reaped detached files",
		"component", "reaper", "candidates", report.Candidates, "deleted", report.FilesDeleted,
		"skipped", report.Skipped, "errors", len(report.Errors))
	return report
}

// LastSweepReport returns the report of the last scheduled or manual sweep.
func (r *OrphanReaper) LastSweepReport() (SweepReport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastReport == nil {
		return SweepReport{}, false
	}
	return *r.lastReport, true
}

func (r *OrphanReaper) reap(ctx context.Context, file *domain.FileAsset, report *SweepReport) {
	// a started file is finished even when the sweep is cancelled
	fileCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reapFileTimeout)
	defer cancel()

	objectDeleted := false
	err := r.files.DeleteIfUnreferenced(fileCtx, file.Id, func(ctx context.Context) error {
		if err := r.objects.Delete(ctx, file.StorageKey); err != nil {
			return &internal_errors.StorageDeleteError{FileId: file.Id, StorageKey: file.StorageKey, Err: err}
		}
		objectDeleted = true
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, internal_errors.ErrFileReferenced),
		internal_errors.Is[*internal_errors.FileNotFoundError](err):
		report.Skipped++
		logger.Log.Debug("file referenced again or gone, keeping",
			"component", "reaper", "file_id", file.Id, "reason", err)
		return
	case internal_errors.Is[*internal_errors.StorageDeleteError](err):
		// metadata stays so the next sweep retries
		reapFailuresTotal.WithLabelValues("storage").Inc()
		report.Errors = append(report.Errors, err.Error())
		logger.Log.Warn("failed to delete stored object", "component", "reaper", "file_id", file.Id, "error", err)
		return
	case objectDeleted:
		metaErr := &internal_errors.MetadataDeleteError{FileId: file.Id, ObjectDeleted: true, Err: err}
		reapFailuresTotal.WithLabelValues("metadata").Inc()
		report.Errors = append(report.Errors, metaErr.Error())
		logger.Log.Error("inconsistent file: object deleted but metadata kept",
			"component", "reaper", "file_id", file.Id, "storage_key", file.StorageKey, "error", metaErr)
		return
	default:
		reapFailuresTotal.WithLabelValues("lookup").Inc()
		report.Errors = append(report.Errors, fmt.Sprintf("delete file %d: %v", file.Id, err))
		logger.Log.Warn("failed to delete file", "component", "reaper", "file_id", file.Id, "error", err)
		return
	}

	report.FilesDeleted++
	report.BytesReclaimed += file.ByteSize
	report.Deleted = append(report.Deleted, file.Id)
	filesReapedTotal.WithLabelValues(report.Trigger).Inc()
	logger.Log.Info("reaped orphaned file",
		"component", "reaper", "file_id", file.Id, "storage_key", file.StorageKey, "trigger", report.Trigger)
}

func (r *OrphanReaper) setLastReport(report SweepReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastReport = &report
}

func newSweepReport(trigger string, start time.Time) SweepReport {
	return SweepReport{
		Trigger: trigger,
		RunAt:   start,
		Deleted: []domain.FileId{},
		Errors:  []string{},
	}
}
