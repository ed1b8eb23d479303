// Package metrics exposes prometheus collectors for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tonguekeeper"

// Pipeline counters (incremented by the orchestrator).
var (
	ChunksSubmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_submitted_total",
		Help:      "Transcription jobs submitted to the inference backend.",
	})

	ChunksCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_completed_total",
		Help:      "Chunks that reached a successful transcription.",
	})

	ChunksFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_failed_total",
		Help:      "Chunk failures by round and outcome kind.",
	}, []string{"round", "outcome"})

	ClipsUploadedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "clips_uploaded_total",
		Help:      "Word clips stored successfully.",
	})

	ClipsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "clips_failed_total",
		Help:      "Word clips dropped due to slice or upload failure.",
	})

	JobPollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_poll_duration_seconds",
		Help:      "Wall time from job submission to terminal poll result.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
	})

	RunsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "runs_in_flight",
		Help:      "Pipeline runs currently executing.",
	})

	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Completed pipeline runs by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		ChunksSubmittedTotal,
		ChunksCompletedTotal,
		ChunksFailedTotal,
		ClipsUploadedTotal,
		ClipsFailedTotal,
		JobPollDuration,
		RunsInFlight,
		RunsTotal,
	)
}
