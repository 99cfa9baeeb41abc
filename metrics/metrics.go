// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imageindex_db_queries_total",
			Help: "Total number of store operations",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imageindex_db_query_duration_seconds",
			Help:    "Store operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
)

// Scanner metrics
var (
	ScannerPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imageindex_scanner_passes_total",
			Help: "Total number of scan passes",
		},
		[]string{"trigger", "status"}, // trigger: "scheduled" or "forced"
	)

	ScannerFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imageindex_scanner_files_total",
			Help: "Files seen by the scanner, by outcome",
		},
		[]string{"outcome"}, // "indexed", "unchanged", "skipped", "failed"
	)

	ScannerLastPassDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imageindex_scanner_last_pass_duration_seconds",
			Help: "Duration of the last scan pass in seconds",
		},
	)

	ScannerLastPassTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imageindex_scanner_last_pass_timestamp",
			Help: "Unix timestamp of the last completed scan pass",
		},
	)

	ScannerRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imageindex_scanner_running",
			Help: "Whether a scan pass is in progress (1 = scanning, 0 = idle)",
		},
	)
)

// Thumbnail metrics
var (
	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imageindex_thumbnail_generations_total",
			Help: "Total number of thumbnail generations",
		},
		[]string{"source", "status"}, // source: "embedded" or "decoded"
	)

	ThumbnailGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "imageindex_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
)
