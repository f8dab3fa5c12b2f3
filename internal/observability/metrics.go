package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server's Prometheus collectors. All recording methods are
// nil-safe so components can run without metrics in tests.
type Metrics struct {
	ActiveConnections    prometheus.Gauge
	EventsPublished      prometheus.Counter
	DeliveryFailures     prometheus.Counter
	GenerationsStarted   prometheus.Counter
	GenerationsSucceeded prometheus.Counter
	GenerationsFailed    prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics registers and returns the process-wide metrics instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "atelier_active_connections",
				Help: "Current number of live websocket connections",
			}),
			EventsPublished: promauto.NewCounter(prometheus.CounterOpts{
				Name: "atelier_events_published_total",
				Help: "Total number of events fanned out to canvases",
			}),
			DeliveryFailures: promauto.NewCounter(prometheus.CounterOpts{
				Name: "atelier_delivery_failures_total",
				Help: "Total number of per-connection send failures during broadcast",
			}),
			GenerationsStarted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "atelier_generations_started_total",
				Help: "Total number of image generation workflows started",
			}),
			GenerationsSucceeded: promauto.NewCounter(prometheus.CounterOpts{
				Name: "atelier_generations_succeeded_total",
				Help: "Total number of image generation workflows that succeeded",
			}),
			GenerationsFailed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "atelier_generations_failed_total",
				Help: "Total number of image generation workflows that failed",
			}),
		}
	})
	return metricsInstance
}

func (m *Metrics) ConnOpened() {
	if m == nil || m.ActiveConnections == nil {
		return
	}
	m.ActiveConnections.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil || m.ActiveConnections == nil {
		return
	}
	m.ActiveConnections.Dec()
}

func (m *Metrics) RecordEvent() {
	if m == nil || m.EventsPublished == nil {
		return
	}
	m.EventsPublished.Inc()
}

func (m *Metrics) RecordDeliveryFailure() {
	if m == nil || m.DeliveryFailures == nil {
		return
	}
	m.DeliveryFailures.Inc()
}

func (m *Metrics) RecordGenerationStarted() {
	if m == nil || m.GenerationsStarted == nil {
		return
	}
	m.GenerationsStarted.Inc()
}

func (m *Metrics) RecordGenerationSucceeded() {
	if m == nil || m.GenerationsSucceeded == nil {
		return
	}
	m.GenerationsSucceeded.Inc()
}

func (m *Metrics) RecordGenerationFailed() {
	if m == nil || m.GenerationsFailed == nil {
		return
	}
	m.GenerationsFailed.Inc()
}
