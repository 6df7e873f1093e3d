package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry. A nil *Collector records nothing, so services may run without one.
type Collector struct {
	reg *prometheus.Registry

	Scans              *prometheus.CounterVec // kind: applied|suppressed|unknown_code|failed
	BulkItems          *prometheus.CounterVec // result: completed|failed|duplicate
	TripTransitions    *prometheus.CounterVec // to: active|ended
	PassengerStatuses  *prometheus.CounterVec // status, method
	DirectionsRequests *prometheus.CounterVec // result: ok|unavailable
	DirectionsDuration prometheus.Histogram
	PositionFixes      *prometheus.CounterVec // outcome: accepted|throttled|suppressed|rejected
	NATSConnected      prometheus.Gauge
}

func NewCollector(service string) *Collector {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	c := &Collector{
		reg: reg,
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "schoolbus_scans_total",
			Help:        "Badge scans by outcome.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		BulkItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "schoolbus_bulk_items_total",
			Help:        "Bulk check-in items by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		TripTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "schoolbus_trip_transitions_total",
			Help:        "Trip status transitions by target status.",
			ConstLabels: constLabels,
		}, []string{"to"}),
		PassengerStatuses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "schoolbus_passenger_status_writes_total",
			Help:        "Passenger status writes by status and method.",
			ConstLabels: constLabels,
		}, []string{"status", "method"}),
		DirectionsRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "schoolbus_directions_requests_total",
			Help:        "Directions lookups by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		DirectionsDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "schoolbus_directions_duration_seconds",
			Help:        "Latency of directions lookups, cache hits included.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		PositionFixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "schoolbus_position_fixes_total",
			Help:        "Driver position fixes by cadence outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "schoolbus_nats_connected",
			Help:        "1 if the NATS connection is established, 0 otherwise.",
			ConstLabels: constLabels,
		}),
	}

	reg.MustRegister(
		c.Scans, c.BulkItems, c.TripTransitions, c.PassengerStatuses,
		c.DirectionsRequests, c.DirectionsDuration, c.PositionFixes, c.NATSConnected,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

func (c *Collector) ScanObserved(kind string) {
	if c != nil {
		c.Scans.WithLabelValues(kind).Inc()
	}
}

func (c *Collector) BulkItem(result string) {
	if c != nil {
		c.BulkItems.WithLabelValues(result).Inc()
	}
}

func (c *Collector) TripTransition(to string) {
	if c != nil {
		c.TripTransitions.WithLabelValues(to).Inc()
	}
}

func (c *Collector) PassengerStatus(status, method string) {
	if c != nil {
		c.PassengerStatuses.WithLabelValues(status, method).Inc()
	}
}

// DirectionsObserved records one lookup and its latency.
func (c *Collector) DirectionsObserved(ok bool, elapsed time.Duration) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "unavailable"
	}
	c.DirectionsRequests.WithLabelValues(result).Inc()
	c.DirectionsDuration.Observe(elapsed.Seconds())
}

func (c *Collector) PositionFix(outcome string) {
	if c != nil {
		c.PositionFixes.WithLabelValues(outcome).Inc()
	}
}

func (c *Collector) SetNATSConnected(up bool) {
	if c == nil {
		return
	}
	if up {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}
