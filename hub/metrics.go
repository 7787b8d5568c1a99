package hub

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/dashhub/metric"
)

// hubMetrics holds the hub's Prometheus instrumentation. A nil *hubMetrics
// is valid and turns every update into a no-op, so the hub works without a
// metrics registry.
type hubMetrics struct {
	registry *metric.Registry

	pointsIngested  *prometheus.CounterVec
	pointsEvicted   *prometheus.CounterVec
	dispatches      *prometheus.CounterVec
	transportErrors *prometheus.CounterVec
	sources         prometheus.Gauge
	subscriptions   prometheus.Gauge
}

func newHubMetrics(registry *metric.Registry) *hubMetrics {
	return &hubMetrics{
		registry: registry,
		pointsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashhub_points_ingested_total",
			Help: "Data points appended to source buffers",
		}, []string{"source"}),
		pointsEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashhub_points_evicted_total",
			Help: "Data points evicted from source buffers by the retention bound",
		}, []string{"source"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashhub_dispatches_total",
			Help: "Buffer snapshots delivered to subscribers",
		}, []string{"source"}),
		transportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashhub_transport_errors_total",
			Help: "Errors reported by source transports",
		}, []string{"source"}),
		sources: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashhub_sources",
			Help: "Registered data sources",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashhub_subscriptions",
			Help: "Active subscriptions across all sources",
		}),
	}
}

func (m *hubMetrics) register() error {
	if err := m.registry.RegisterCounterVec("hub", "points_ingested", m.pointsIngested); err != nil {
		return err
	}
	if err := m.registry.RegisterCounterVec("hub", "points_evicted", m.pointsEvicted); err != nil {
		return err
	}
	if err := m.registry.RegisterCounterVec("hub", "dispatches", m.dispatches); err != nil {
		return err
	}
	if err := m.registry.RegisterCounterVec("hub", "transport_errors", m.transportErrors); err != nil {
		return err
	}
	if err := m.registry.RegisterGauge("hub", "sources", m.sources); err != nil {
		return err
	}
	return m.registry.RegisterGauge("hub", "subscriptions", m.subscriptions)
}

func (m *hubMetrics) ingested(sourceID string, points, evicted int) {
	if m == nil {
		return
	}
	m.pointsIngested.WithLabelValues(sourceID).Add(float64(points))
	if evicted > 0 {
		m.pointsEvicted.WithLabelValues(sourceID).Add(float64(evicted))
	}
}

func (m *hubMetrics) dispatched(sourceID string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(sourceID).Inc()
}

func (m *hubMetrics) transportError(sourceID string) {
	if m == nil {
		return
	}
	m.transportErrors.WithLabelValues(sourceID).Inc()
}

func (m *hubMetrics) setSources(n int) {
	if m == nil {
		return
	}
	m.sources.Set(float64(n))
}

func (m *hubMetrics) setSubscriptions(n int) {
	if m == nil {
		return
	}
	m.subscriptions.Set(float64(n))
}
