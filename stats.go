package weft

import "github.com/prometheus/client_golang/prometheus"

// Stats exposes engine-wide Prometheus counters. Each Engine owns its own
// registry rather than registering against the global default registry,
// so that multiple Engines (as in the pipeline-queue test suite, one per
// spec) can coexist in the same process without an
// AlreadyRegisteredError. A host program mounts promhttp.HandlerFor(the
// Engine's Registry, ...) to expose it (see cmd/weftd).
type Stats struct {
	Registry *prometheus.Registry

	requestsTotal  *prometheus.CounterVec
	bytesInTotal   prometheus.Counter
	bytesOutTotal  prometheus.Counter
	protocolErrors prometheus.Counter
	connsActive    prometheus.Gauge
}

func newStats() *Stats {
	reg := prometheus.NewRegistry()
	s := &Stats{
		Registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weft",
			Name:      "requests_total",
			Help:      "Requests dispatched to a handler, by final status code.",
		}, []string{"status"}),
		bytesInTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weft",
			Name:      "bytes_in_total",
			Help:      "Bytes read from client connections.",
		}),
		bytesOutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weft",
			Name:      "bytes_out_total",
			Help:      "Bytes written to client connections.",
		}),
		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weft",
			Name:      "protocol_errors_total",
			Help:      "Connections closed due to a malformed request or oversized query.",
		}),
		connsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weft",
			Name:      "connections_active",
			Help:      "Currently open client connections.",
		}),
	}
	reg.MustRegister(s.requestsTotal, s.bytesInTotal, s.bytesOutTotal, s.protocolErrors, s.connsActive)
	return s
}

func (s *Stats) unregister() {
	s.Registry.Unregister(s.requestsTotal)
	s.Registry.Unregister(s.bytesInTotal)
	s.Registry.Unregister(s.bytesOutTotal)
	s.Registry.Unregister(s.protocolErrors)
	s.Registry.Unregister(s.connsActive)
}
