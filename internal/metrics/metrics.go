// Package metrics exposes relay delivery counters to Prometheus scrapes.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dcmrelay/internal/relay"
)

// Collector owns a private registry so tests and multiple daemons never
// trip over duplicate registration in the global one.
type Collector struct {
	registry   *prometheus.Registry
	deliveries *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewCollector builds the relay metric set.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dcmrelay",
			Name:      "deliveries_total",
			Help:      "Delivery attempts by route, endpoint, and outcome.",
		}, []string{"route", "endpoint", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dcmrelay",
			Name:      "delivery_duration_seconds",
			Help:      "Time spent delivering one file to one endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "endpoint"}),
	}
	registry.MustRegister(
		c.deliveries,
		c.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// RecordDelivery implements the relay delivery observer.
func (c *Collector) RecordDelivery(_ context.Context, delivery relay.Delivery) {
	c.deliveries.WithLabelValues(delivery.Route, delivery.Endpoint, string(delivery.Outcome)).Inc()
	c.duration.WithLabelValues(delivery.Route, delivery.Endpoint).Observe(delivery.Duration.Seconds())
}

// Handler serves the registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
