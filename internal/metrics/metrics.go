// Package metrics holds the Prometheus instrumentation for the daemon.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	WindowsLive          prometheus.Gauge
	WindowsClosing       prometheus.Gauge
	Transitions          *prometheus.CounterVec
	Events               *prometheus.CounterVec
	SecurityRejections   prometheus.Counter
	NotificationsDropped prometheus.Counter
	Screenshots          *prometheus.CounterVec
	GrabDuration         prometheus.Histogram
	IPCRequests          *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		WindowsLive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "surfman_windows",
			Help: "Number of windows in the registry",
		}),
		WindowsClosing: factory.NewGauge(prometheus.GaugeOpts{
			Name: "surfman_windows_closing",
			Help: "Number of windows waiting for release",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "surfman_lifecycle_transitions_total",
			Help: "Window lifecycle transitions by target state",
		}, []string{"state"}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "surfman_events_total",
			Help: "Surface events consumed by the lifecycle manager",
		}, []string{"kind"}),
		SecurityRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "surfman_security_rejections_total",
			Help: "Surfaces rejected because their process is unknown",
		}),
		NotificationsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "surfman_notifications_dropped_total",
			Help: "Notifications dropped because a subscriber was full",
		}),
		Screenshots: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "surfman_screenshots_total",
			Help: "Screenshot requests by result",
		}, []string{"result"}),
		GrabDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "surfman_grab_duration_seconds",
			Help:    "Duration of individual surface grabs",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		IPCRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "surfman_ipc_requests_total",
			Help: "IPC requests by command and status",
		}, []string{"command", "status"}),
	}
}

// Handler serves the collected metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

func (m *Metrics) SetWindows(live, closing int) {
	if m == nil {
		return
	}
	m.WindowsLive.Set(float64(live))
	m.WindowsClosing.Set(float64(closing))
}

func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) Event(kind string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind).Inc()
}

func (m *Metrics) SecurityRejection() {
	if m == nil {
		return
	}
	m.SecurityRejections.Inc()
}

func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.NotificationsDropped.Inc()
}

func (m *Metrics) Screenshot(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.Screenshots.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveGrab(d time.Duration) {
	if m == nil {
		return
	}
	m.GrabDuration.Observe(d.Seconds())
}

func (m *Metrics) IPCRequest(command, status string) {
	if m == nil {
		return
	}
	m.IPCRequests.WithLabelValues(command, status).Inc()
}
