package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_downloader_jobs_submitted_total",
		Help: "Total number of download jobs submitted",
	})

	JobsSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_downloader_jobs_succeeded_total",
		Help: "Total number of download jobs that produced an audio file",
	})

	JobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audio_downloader_jobs_failed_total",
		Help: "Total number of failed download jobs by reason",
	}, []string{"reason"})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audio_downloader_active_jobs",
		Help: "Number of jobs currently tracked by the controller",
	})

	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "audio_downloader_job_duration_seconds",
		Help:    "Time from subprocess start to exit in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	Observers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audio_downloader_progress_observers",
		Help: "Number of connected progress observers",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audio_downloader_progress_events_total",
		Help: "Total number of progress events published by kind",
	}, []string{"kind"})

	SweptFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_downloader_swept_files_total",
		Help: "Total number of stale output files removed by the retention sweeper",
	})

	SweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_downloader_sweep_errors_total",
		Help: "Total number of files the retention sweeper failed to remove",
	})

	CleanupErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_downloader_cleanup_errors_total",
		Help: "Total number of failed post-delivery file deletions",
	})
)
