// Package metrics exposes Prometheus instrumentation for the media service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for rooms and media streams.
type Metrics struct {
	registry              *prometheus.Registry
	roomsActive           prometheus.Gauge
	peersActive           prometheus.Gauge
	producersCreatedTotal prometheus.Counter
	consumersCreatedTotal prometheus.Counter
}

// New creates and registers the service metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	roomsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "media_rooms_active",
		Help: "Number of rooms currently registered",
	})
	peersActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "media_peers_active",
		Help: "Number of peers currently joined across all rooms",
	})
	producersCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_producers_created_total",
		Help: "Total number of producers created",
	})
	consumersCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_consumers_created_total",
		Help: "Total number of consumers created",
	})

	registry.MustRegister(roomsActive, peersActive, producersCreatedTotal, consumersCreatedTotal)

	return &Metrics{
		registry:              registry,
		roomsActive:           roomsActive,
		peersActive:           peersActive,
		producersCreatedTotal: producersCreatedTotal,
		consumersCreatedTotal: consumersCreatedTotal,
	}
}

func (m *Metrics) RoomCreated() { m.roomsActive.Inc() }
func (m *Metrics) RoomRemoved() { m.roomsActive.Dec() }

func (m *Metrics) PeerJoined() { m.peersActive.Inc() }
func (m *Metrics) PeerLeft()   { m.peersActive.Dec() }

func (m *Metrics) ProducerCreated() { m.producersCreatedTotal.Inc() }
func (m *Metrics) ConsumerCreated() { m.consumersCreatedTotal.Inc() }

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
