// Package metrics exports the error pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rentalops"

// Collector owns the counters and the registry they are exposed from. It
// satisfies the observer interfaces of the tracker, the dispatcher, the
// recovery registry and the circuit breaker.
type Collector struct {
	registry *prometheus.Registry

	errors        *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	notifications *prometheus.CounterVec
	breakerTrips  *prometheus.CounterVec
	recoveries    *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors handled by the error middleware.",
		}, []string{"code", "status"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts raised by the error tracker.",
		}, []string{"type"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries per channel and result.",
		}, []string{"channel", "result"}),
		breakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_trips_total",
			Help:      "Times a circuit breaker opened.",
		}, []string{"key"}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_attempts_total",
			Help:      "Recovery attempts per strategy and result.",
		}, []string{"strategy", "result"}),
	}
	c.registry.MustRegister(
		c.errors, c.alerts, c.notifications, c.breakerTrips, c.recoveries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) ErrorTracked(code string, status int) {
	c.errors.WithLabelValues(code, strconv.Itoa(status)).Inc()
}

func (c *Collector) AlertRaised(alertType string) {
	c.alerts.WithLabelValues(alertType).Inc()
}

func (c *Collector) NotificationSent(channel string, ok bool) {
	c.notifications.WithLabelValues(channel, result(ok)).Inc()
}

func (c *Collector) CircuitOpened(key string) {
	c.breakerTrips.WithLabelValues(key).Inc()
}

func (c *Collector) RecoveryAttempted(strategy string, ok bool) {
	c.recoveries.WithLabelValues(strategy, result(ok)).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
