package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/launchpad-portal/launchpad/internal/platform/db"
)

// PoolStatser reports connection pool statistics.
type PoolStatser interface {
	Stat() db.Stats
}

// PoolCollector exports pool statistics on every scrape.
type PoolCollector struct {
	pool PoolStatser

	leased       *prometheus.Desc
	idle         *prometheus.Desc
	total        *prometheus.Desc
	max          *prometheus.Desc
	acquires     *prometheus.Desc
	emptyAcquire *prometheus.Desc
}

// NewPoolCollector builds a collector over pool.
func NewPoolCollector(pool PoolStatser) *PoolCollector {
	return &PoolCollector{
		pool:         pool,
		leased:       prometheus.NewDesc("launchpad_db_pool_leased_connections", "Connections currently leased.", nil, nil),
		idle:         prometheus.NewDesc("launchpad_db_pool_idle_connections", "Connections idle in the pool.", nil, nil),
		total:        prometheus.NewDesc("launchpad_db_pool_total_connections", "Connections open, leased or idle.", nil, nil),
		max:          prometheus.NewDesc("launchpad_db_pool_max_connections", "Upper bound on open connections.", nil, nil),
		acquires:     prometheus.NewDesc("launchpad_db_pool_acquires_total", "Successful connection acquisitions.", nil, nil),
		emptyAcquire: prometheus.NewDesc("launchpad_db_pool_empty_acquires_total", "Acquisitions that had to wait for a connection.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.leased
	ch <- c.idle
	ch <- c.total
	ch <- c.max
	ch <- c.acquires
	ch <- c.emptyAcquire
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.leased, prometheus.GaugeValue, float64(s.Leased))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.Total))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.Max))
	ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue, float64(s.AcquireCount))
	ch <- prometheus.MustNewConstMetric(c.emptyAcquire, prometheus.CounterValue, float64(s.EmptyAcquireCount))
}
