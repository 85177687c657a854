package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "csvimages"

var (
	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_finished_total",
		Help:      "Processing jobs that reached a terminal phase.",
	}, []string{"phase"})

	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Wall time of a processing job from start to terminal phase.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	JobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_running",
		Help:      "Background jobs currently holding a worker slot.",
	})

	ImagesTransformed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "images_transformed_total",
		Help:      "Images recompressed and uploaded, by detected format.",
	}, []string{"format"})

	ImageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "image_failures_total",
		Help:      "Image transforms that failed, by stage.",
	}, []string{"stage"})

	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_total",
		Help:      "CSV uploads by outcome.",
	}, []string{"outcome"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
