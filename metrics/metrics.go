// Package metrics exposes the page pool's cache behavior as Prometheus
// instruments: hit/miss/eviction/writeback counters and page-count gauges.
// Observation only — nothing here ever influences pool control flow.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector holds one pool's metrics. Each PagePool gets its own Collector
// (rather than registering against the global DefaultRegisterer) so that
// opening several pools in the same process, as the test suite does, never
// collides on metric names.
type Collector struct {
	Hits            prometheus.Counter
	Misses          prometheus.Counter
	Evictions       prometheus.Counter
	PoolFullErrors  prometheus.Counter
	WritebackErrors prometheus.Counter
	ReadErrors      prometheus.Counter
	PageCount       prometheus.Gauge
	PinnedCount     prometheus.Gauge
	FreeCount       prometheus.Gauge
	LRUCount        prometheus.Gauge
}

// NewCollector creates an unregistered set of instruments. Call Registry to
// get a *prometheus.Registry suitable for an HTTP /metrics handler.
func NewCollector() *Collector {
	return &Collector{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kitepagepool", Name: "cache_hits_total",
			Help: "StorePage calls satisfied from the identity map without a disk read.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kitepagepool", Name: "cache_misses_total",
			Help: "StorePage calls that required AllocPage.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kitepagepool", Name: "evictions_total",
			Help: "AllocPage calls that reused an LRU victim rather than the free list or growth.",
		}),
		PoolFullErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kitepagepool", Name: "pool_full_total",
			Help: "AllocPage calls that returned PoolFull.",
		}),
		WritebackErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kitepagepool", Name: "writeback_errors_total",
			Help: "WritePage failures observed during UnassignPageFromStore or UnpinAndWriteStorePage.",
		}),
		ReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kitepagepool", Name: "read_errors_total",
			Help: "ReadPage failures observed during AssignPageToStore or FetchStorePage.",
		}),
		PageCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kitepagepool", Name: "pages_allocated",
			Help: "Buffers currently allocated (page_count).",
		}),
		PinnedCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kitepagepool", Name: "pages_pinned",
			Help: "Buffers with a nonzero pin count (page_count minus free and LRU).",
		}),
		FreeCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kitepagepool", Name: "pages_free",
			Help: "Buffers on the free list.",
		}),
		LRUCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kitepagepool", Name: "pages_lru",
			Help: "Unpinned assigned buffers on the LRU list.",
		}),
	}
}

// Registry returns a fresh registry with every instrument registered, ready
// to back an HTTP handler (promhttp.HandlerFor) or a one-shot dump.
func (c *Collector) Registry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		c.Hits, c.Misses, c.Evictions, c.PoolFullErrors,
		c.WritebackErrors, c.ReadErrors,
		c.PageCount, c.PinnedCount, c.FreeCount, c.LRUCount,
	)
	return r
}
