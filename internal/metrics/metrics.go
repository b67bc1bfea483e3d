// Package metrics holds the Prometheus collectors shared by the dashboard
// components. All collectors register with the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokenResolutions counts how each session obtained its token
	// (cached, refreshed, login, failed).
	TokenResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_token_resolutions_total",
		Help: "Token resolutions by outcome.",
	}, []string{"outcome"})

	// RemoteListings counts folder listings by status.
	RemoteListings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_remote_listings_total",
		Help: "Remote folder listings by status.",
	}, []string{"status"})

	// DownloadsTotal counts file downloads by status.
	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_downloads_total",
		Help: "Remote file downloads by status.",
	}, []string{"status"})

	// DownloadBytesTotal counts bytes written by the fetcher.
	DownloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_download_bytes_total",
		Help: "Bytes written to the local database file.",
	})

	// DownloadDuration observes the wall time of a download.
	DownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dashboard_download_duration_seconds",
		Help:    "Duration of remote file downloads.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	// CacheLookups counts memo lookups by step and result (hit, miss).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_cache_lookups_total",
		Help: "Session memo lookups by step and result.",
	}, []string{"step", "result"})

	// PipelineRuns counts session pipeline runs by status.
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_pipeline_runs_total",
		Help: "Session pipeline runs by status.",
	}, []string{"status"})

	// HTTPRequestsTotal counts API requests.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration observes API request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashboard_http_request_duration_seconds",
		Help:    "HTTP request duration by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)
