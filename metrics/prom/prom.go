// Package prom exports cache metrics to Prometheus.
package prom

import (
	"trackmap/cache"

	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements cache.Metrics with Prometheus counters and gauges.
type Adapter struct {
	hits        prometheus.Counter
	misses      prometheus.Counter
	loads       *prometheus.CounterVec
	evicts      *prometheus.CounterVec
	sizeEntries prometheus.Gauge
	sizeBytes   prometheus.Gauge
}

// New registers the metrics of one cache. A nil registerer means prometheus.DefaultRegisterer, the subsystem usually
// is the name of the cached value type (e.g. "tiles").
func New(registerer prometheus.Registerer, namespace, subsystem string) *Adapter {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hits_total",
			Help:      "Cache hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "misses_total",
			Help:      "Cache misses",
		}),
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "loads_total",
				Help:      "Loads from the persistent store by result",
			},
			[]string{"result"},
		),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "evictions_total",
				Help:      "Cache evictions by reason",
			},
			[]string{"reason"},
		),
		sizeEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "size_entries",
			Help:      "Number of resident entries",
		}),
		sizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "size_bytes",
			Help:      "Estimated size of all resident values",
		}),
	}
	registerer.MustRegister(a.hits, a.misses, a.loads, a.evicts, a.sizeEntries, a.sizeBytes)
	return a
}

func (a *Adapter) Hit() { a.hits.Inc() }

func (a *Adapter) Miss() { a.misses.Inc() }

func (a *Adapter) Load(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	a.loads.WithLabelValues(result).Inc()
}

func (a *Adapter) Evict(reason cache.EvictReason) {
	a.evicts.WithLabelValues(reason.String()).Inc()
}

func (a *Adapter) Size(entries int, bytes int64) {
	a.sizeEntries.Set(float64(entries))
	a.sizeBytes.Set(float64(bytes))
}

var _ cache.Metrics = (*Adapter)(nil)
