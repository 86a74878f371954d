package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Analysis metrics
var (
	AnalysisJobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wardial_analysis_jobs_submitted_total",
		Help: "Number of recordings submitted for tone analysis",
	})

	AnalysisJobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wardial_analysis_jobs_completed_total",
		Help: "Number of completed tone analyses by resulting tone type",
	}, []string{"tone_type"})

	AnalysisJobsAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wardial_analysis_jobs_abandoned_total",
		Help: "Number of pending analyses discarded at shutdown",
	})

	AnalysisJobsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wardial_analysis_jobs_pending",
		Help: "Number of in-flight tone analyses",
	})

	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wardial_analysis_duration_seconds",
		Help:    "Wall-clock duration of ingest plus analysis per recording",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

// Resume metrics
var (
	RangeNumbersGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wardial_range_numbers_generated_total",
		Help: "Number of candidate numbers enumerated from prefixes",
	})

	RangeNumbersFiltered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wardial_range_numbers_filtered_total",
		Help: "Number of candidates rejected by numbering-plan rules",
	})

	ResumePreparations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wardial_resume_preparations_total",
		Help: "Number of resume preparations by outcome",
	}, []string{"outcome"})
)
