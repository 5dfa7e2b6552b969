package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	associationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_associations_total",
			Help: "Association attempts by result (created, duplicate, unresolved, error)",
		},
		[]string{"kind", "result"},
	)

	mediaJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_jobs_total",
			Help: "Media association jobs by outcome",
		},
		[]string{"outcome"},
	)

	mediaQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_job_queue_depth",
			Help: "Number of media jobs waiting for a worker",
		},
	)

	filesReapedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_files_reaped_total",
			Help: "Orphaned files deleted, by trigger (sweep, detach)",
		},
		[]string{"trigger"},
	)

	reapFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_reap_failures_total",
			Help: "Orphan reaping failures by stage (lookup, storage, metadata)",
		},
		[]string{"stage"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_sweep_duration_seconds",
			Help:    "Duration of orphan sweeps",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	filesUploadedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_files_uploaded_total",
			Help: "Files uploaded by kind",
		},
		[]string{"kind"},
	)
)
