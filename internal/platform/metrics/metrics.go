package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the restreamer's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	streaming        prometheus.Gauge
	transitionsTotal *prometheus.CounterVec
	forcedRestarts   *prometheus.CounterVec
	outputLinesTotal *prometheus.CounterVec
	totalSizeBytes   prometheus.Gauge
	ticksTotal       prometheus.Counter
	scheduleActive   prometheus.Gauge
	requestsTotal    *prometheus.CounterVec
}

// New creates and registers the restreamer's metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		streaming: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "restreamer_streaming",
			Help: "1 while the pipeline is running, 0 while idle",
		}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restreamer_transitions_total",
			Help: "State transitions performed, by target state",
		}, []string{"to"}),
		forcedRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restreamer_forced_restarts_total",
			Help: "Forced restart decisions, by reason",
		}, []string{"reason"}),
		outputLinesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restreamer_output_lines_total",
			Help: "Pipeline output lines, by classification",
		}, []string{"class"}),
		totalSizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "restreamer_output_total_size_bytes",
			Help: "Last total_size reported by the transcoder in the current session",
		}),
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restreamer_ticks_total",
			Help: "Event loop ticks executed",
		}),
		scheduleActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "restreamer_schedule_active",
			Help: "1 while at least one schedule window is active",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restreamer_http_requests_total",
			Help: "Status server requests, by route and status class",
		}, []string{"route", "code"}),
	}

	registry.MustRegister(
		m.streaming,
		m.transitionsTotal,
		m.forcedRestarts,
		m.outputLinesTotal,
		m.totalSizeBytes,
		m.ticksTotal,
		m.scheduleActive,
		m.requestsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// SetStreaming sets the streaming gauge.
func (m *Metrics) SetStreaming(on bool) {
	if m == nil {
		return
	}
	m.streaming.Set(boolFloat(on))
}

// SetScheduleActive sets the schedule gauge.
func (m *Metrics) SetScheduleActive(on bool) {
	if m == nil {
		return
	}
	m.scheduleActive.Set(boolFloat(on))
}

// IncTransition counts a transition into state to.
func (m *Metrics) IncTransition(to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(to).Inc()
}

// IncForcedRestart counts a forced restart decision.
func (m *Metrics) IncForcedRestart(reason string) {
	if m == nil {
		return
	}
	m.forcedRestarts.WithLabelValues(reason).Inc()
}

// AddOutputLines adds n lines of the given class.
func (m *Metrics) AddOutputLines(class string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outputLinesTotal.WithLabelValues(class).Add(float64(n))
}

// SetTotalSize records the transcoder's last reported output size.
func (m *Metrics) SetTotalSize(bytes int64) {
	if m == nil {
		return
	}
	m.totalSizeBytes.Set(float64(bytes))
}

// IncTicks counts one event loop tick.
func (m *Metrics) IncTicks() {
	if m == nil {
		return
	}
	m.ticksTotal.Inc()
}

// IncRequests counts one status server request.
func (m *Metrics) IncRequests(route, code string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, code).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
