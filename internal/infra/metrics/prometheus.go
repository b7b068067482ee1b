package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vggt_jobs_processed_total",
		Help: "Total number of reconstruction jobs processed, by status",
	}, []string{"status"})

	JobStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vggt_job_stage_duration_seconds",
		Help:    "Duration of the reconstruction pipeline, by stage",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vggt_frames_extracted_total",
		Help: "Total number of frames extracted across all jobs",
	})

	ExtractionFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vggt_extraction_fallback_total",
		Help: "Extractions that needed a recovery method, by method",
	}, []string{"method"})

	InferenceBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vggt_inference_batches_total",
		Help: "Total number of frame batches sent to the model endpoint",
	})

	InferenceBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vggt_inference_batch_duration_seconds",
		Help:    "Model-reported inference time per batch",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vggt_active_workers",
		Help: "Number of currently active workers processing jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vggt_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
