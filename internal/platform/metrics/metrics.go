package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the capture/relay daemon.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        prometheus.Counter
	capturesTotal        prometheus.Counter
	captureFailuresTotal prometheus.Counter
	evictionsTotal       prometheus.Counter
	triggersTotal        prometheus.Counter
	triggerErrorsTotal   prometheus.Counter
	bufferedFrames       prometheus.Gauge
	connectedPeers       prometheus.Gauge
	errorsTotal          prometheus.Counter
}

// New creates and registers Prometheus metrics for the daemon.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_requests_total",
		Help: "Total number of HTTP requests received",
	})
	capturesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_captures_total",
		Help: "Total number of frames captured and stored",
	})
	captureFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_capture_failures_total",
		Help: "Total number of failed capture attempts",
	})
	evictionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_evictions_total",
		Help: "Total number of frames removed by the eviction sweep",
	})
	triggersTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_triggers_total",
		Help: "Total number of OCR trigger events received",
	})
	triggerErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_trigger_errors_total",
		Help: "Total number of triggers answered with ocr_error",
	})
	bufferedFrames := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_buffered_frames",
		Help: "Number of frames currently held in the image store",
	})
	connectedPeers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connected_peers",
		Help: "Number of peers currently connected to the event channel",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})

	registry.MustRegister(
		requestsTotal,
		capturesTotal,
		captureFailuresTotal,
		evictionsTotal,
		triggersTotal,
		triggerErrorsTotal,
		bufferedFrames,
		connectedPeers,
		errorsTotal,
	)

	return &Metrics{
		registry:             registry,
		requestsTotal:        requestsTotal,
		capturesTotal:        capturesTotal,
		captureFailuresTotal: captureFailuresTotal,
		evictionsTotal:       evictionsTotal,
		triggersTotal:        triggersTotal,
		triggerErrorsTotal:   triggerErrorsTotal,
		bufferedFrames:       bufferedFrames,
		connectedPeers:       connectedPeers,
		errorsTotal:          errorsTotal,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncCaptures increments the captured-frames counter.
func (m *Metrics) IncCaptures() {
	m.capturesTotal.Inc()
}

// IncCaptureFailures increments the failed-capture counter.
func (m *Metrics) IncCaptureFailures() {
	m.captureFailuresTotal.Inc()
}

// AddEvictions adds n to the evicted-frames counter.
func (m *Metrics) AddEvictions(n int) {
	m.evictionsTotal.Add(float64(n))
}

// IncTriggers increments the trigger counter.
func (m *Metrics) IncTriggers() {
	m.triggersTotal.Inc()
}

// IncTriggerErrors increments the trigger-error counter.
func (m *Metrics) IncTriggerErrors() {
	m.triggerErrorsTotal.Inc()
}

// SetBufferedFrames sets the buffered-frames gauge.
func (m *Metrics) SetBufferedFrames(n int) {
	m.bufferedFrames.Set(float64(n))
}

// SetConnectedPeers sets the connected-peers gauge.
func (m *Metrics) SetConnectedPeers(n int) {
	m.connectedPeers.Set(float64(n))
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. buffered frames, connected peers).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
