package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kiesman99/imgdice/internal/dice"
)

// metrics are kept in a per-server registry so tests can create many servers.
type metrics struct {
	registry *prometheus.Registry
	tiles    *prometheus.CounterVec
	jobs     *prometheus.CounterVec
	duration prometheus.Histogram
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		tiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imgdice_tiles_total",
			Help: "Tiles processed, by result.",
		}, []string{"result"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imgdice_jobs_total",
			Help: "Dice jobs run, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "imgdice_job_duration_seconds",
			Help:    "Wall time of dice jobs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	m.registry.MustRegister(m.tiles, m.jobs, m.duration)
	return m
}

func (m *metrics) observe(report *dice.Report, outcome string, elapsed time.Duration) {
	m.jobs.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
	if report == nil {
		return
	}
	m.tiles.WithLabelValues("written").Add(float64(len(report.Written())))
	m.tiles.WithLabelValues("skipped").Add(float64(report.Skipped()))
	m.tiles.WithLabelValues("failed").Add(float64(len(report.Failures())))
	m.tiles.WithLabelValues("invalid").Add(float64(report.Invalid()))
	m.tiles.WithLabelValues("cancelled").Add(float64(report.Cancelled()))
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
