// Package metrics exposes hub activity to Prometheus. Counters are fed from
// pool events; remote control and session gauges are read from the pool at
// scrape time.
package metrics

import (
	"github.com/rcgrid/rcgrid/pool"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"net/http"
)

const namespace = "rcgrid"

type Metrics struct {
	Registry *prometheus.Registry

	reservations    *prometheus.CounterVec
	reservationWait *prometheus.HistogramVec
	sessions        *prometheus.CounterVec
	remoteControls  *prometheus.CounterVec
}

// New registers the hub metrics, plus Go runtime and process metrics, on a
// fresh registry. source may be nil, in which case no gauges are exported.
func New(source Source) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		reservations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reservations_total",
				Help:      "Count of remote control reservations by environment and result.",
			},
			[]string{"environment", "result"},
		),
		reservationWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reservation_wait_seconds",
				Help:      "Time spent waiting for a remote control to become available.",
				Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
			},
			[]string{"environment"},
		),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Count of sessions started, ended by the client and reclaimed for idleness.",
			},
			[]string{"environment", "event"},
		),
		remoteControls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_control_events_total",
				Help:      "Count of remote control registrations, unregistrations and evictions.",
			},
			[]string{"environment", "event"},
		),
	}
	m.Registry.MustRegister(
		m.reservations,
		m.reservationWait,
		m.sessions,
		m.remoteControls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if source != nil {
		m.Registry.MustRegister(NewPoolCollector(source))
	}
	return m
}

// Record implements pool.EventSink.
func (m *Metrics) Record(e pool.Event) {
	switch e.Kind {
	case pool.ReservationGranted:
		m.reservations.WithLabelValues(e.Environment, "granted").Inc()
		m.reservationWait.WithLabelValues(e.Environment).Observe(e.Wait.Seconds())
	case pool.ReservationFailed:
		m.reservations.WithLabelValues(e.Environment, "unavailable").Inc()
		m.reservationWait.WithLabelValues(e.Environment).Observe(e.Wait.Seconds())
	case pool.SessionStarted, pool.SessionEnded, pool.SessionReclaimed:
		m.sessions.WithLabelValues(e.Environment, string(e.Kind)).Inc()
	case pool.RemoteControlRegistered, pool.RemoteControlUnregistered, pool.RemoteControlEvicted:
		m.remoteControls.WithLabelValues(e.Environment, string(e.Kind)).Inc()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
