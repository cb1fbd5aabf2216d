// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Capture session metrics
var (
	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "screencap_sessions_started_total",
			Help: "Total number of recording attempts",
		},
	)

	SessionsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screencap_sessions_finished_total",
			Help: "Total number of recording attempts by outcome",
		},
		[]string{"outcome"},
	)

	AcquisitionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screencap_device_acquisition_failures_total",
			Help: "Total number of capture device acquisition failures",
		},
		[]string{"device"},
	)

	RecordedSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "screencap_recorded_seconds",
			Help:    "Duration of finished recordings in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
	)
)

// Transcode metrics
var (
	TranscodeJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screencap_transcode_jobs_total",
			Help: "Total number of transcode jobs by status",
		},
		[]string{"status"},
	)

	TranscodeRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "screencap_transcode_rejected_total",
			Help: "Total number of transcode submissions rejected while a job was running",
		},
	)

	TranscodeProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "screencap_transcode_progress_percent",
			Help: "Progress of the running transcode job",
		},
	)
)

// Library metrics
var (
	ArtifactsStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "screencap_artifacts",
			Help: "Number of recordings held in memory",
		},
	)

	ArtifactBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "screencap_artifact_bytes",
			Help: "Total size of recordings held in memory",
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screencap_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "screencap_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
