package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smartplaylist/api/internal/model"
)

// Metrics holds Prometheus collectors for the playlist service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	jobsTotal       *prometheus.CounterVec
	jobsInFlight    prometheus.Gauge
	stageDuration   *prometheus.HistogramVec
	tracksTotal     *prometheus.CounterVec
	tracksAddedHist prometheus.Histogram
}

// New creates and registers Prometheus metrics for the service.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smartplaylist_http_requests_total",
		Help: "Total number of HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})
	jobsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smartplaylist_jobs_total",
		Help: "Finished playlist jobs by final status",
	}, []string{"status"})
	jobsInFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "smartplaylist_jobs_in_flight",
		Help: "Playlist jobs currently running",
	})
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "smartplaylist_stage_duration_seconds",
		Help:    "Time spent in each pipeline stage",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})
	tracksTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smartplaylist_tracks_resolved_total",
		Help: "Candidate lookups by result (resolved or skip reason)",
	}, []string{"result"})
	tracksAddedHist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "smartplaylist_playlist_tracks",
		Help:    "Number of tracks added per created playlist",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	registry.MustRegister(
		requestsTotal,
		jobsTotal,
		jobsInFlight,
		stageDuration,
		tracksTotal,
		tracksAddedHist,
	)

	return &Metrics{
		registry:        registry,
		requestsTotal:   requestsTotal,
		jobsTotal:       jobsTotal,
		jobsInFlight:    jobsInFlight,
		stageDuration:   stageDuration,
		tracksTotal:     tracksTotal,
		tracksAddedHist: tracksAddedHist,
	}
}

func (m *Metrics) ObserveRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.jobsInFlight.Inc()
}

// JobFinished records a job's final status.
func (m *Metrics) JobFinished(status model.JobStatus) {
	if m == nil {
		return
	}
	m.jobsInFlight.Dec()
	m.jobsTotal.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) ObserveStage(stage model.Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

// ObserveOutcome counts resolved and skipped candidates of a finished run.
func (m *Metrics) ObserveOutcome(o *model.PlaylistOutcome) {
	if m == nil || o == nil {
		return
	}
	m.tracksTotal.WithLabelValues("resolved").Add(float64(len(o.AddedURIs)))
	for _, s := range o.Skipped {
		m.tracksTotal.WithLabelValues(string(s.Reason)).Inc()
	}
	m.tracksAddedHist.Observe(float64(len(o.AddedURIs)))
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
