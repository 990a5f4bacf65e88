package engine

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "setback",
		Name:      "responses_total",
		Help:      "Failure responses generated, by severity band and archetype.",
	}, []string{"severity", "archetype"})
	metricGenerationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "setback",
		Name:      "generation_errors_total",
		Help:      "Failure responses that could not be generated, by error kind.",
	}, []string{"kind"})
	metricReassurance = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "setback",
		Name:      "reassurance_total",
		Help:      "Failure responses that asked for player reassurance.",
	})
	metricWorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "setback",
		Name:      "workers_active",
		Help:      "Number of spawned workers.",
	})
	metricHandleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "setback",
		Name:      "handle_failure_seconds",
		Help:      "Time spent handling one failure event.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
)

const (
	errorKindContent = "content"
	errorKindStorage = "storage"
)

func (e Engine) refreshWorkerGauge(ctx context.Context) {
	if e.DB == nil {
		return
	}
	if n, err := e.Repo.CountWorkers(ctx); err == nil {
		metricWorkersActive.Set(float64(n))
	}
}

// RefreshMetrics syncs gauges with the database, e.g. after startup.
func (e Engine) RefreshMetrics(ctx context.Context) {
	e.refreshWorkerGauge(ctx)
}
