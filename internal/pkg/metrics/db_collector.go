package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// DBStatser is the part of *pgxpool.Pool the collector reads.
type DBStatser interface {
	Stat() *pgxpool.Stat
}

// DBCollector exports connection pool statistics on every scrape.
type DBCollector struct {
	pool     DBStatser
	conns    *prometheus.Desc
	acquires *prometheus.Desc
	waits    *prometheus.Desc
}

// NewDBCollector returns a collector for pool. Register it once per process.
func NewDBCollector(pool DBStatser) *DBCollector {
	return &DBCollector{
		pool: pool,
		conns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db", "pool_connections"),
			"Number of database connections by state",
			[]string{"state"}, nil,
		),
		acquires: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db", "pool_acquires_total"),
			"Total number of connections acquired from the pool",
			nil, nil,
		),
		waits: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db", "pool_empty_acquires_total"),
			"Total number of acquires that waited for a connection",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *DBCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.conns
	ch <- c.acquires
	ch <- c.waits
}

// Collect implements prometheus.Collector.
func (c *DBCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.pool.Stat()

	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(stats.AcquiredConns()), "in_use")
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(stats.IdleConns()), "idle")
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(stats.MaxConns()), "max")
	ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue, float64(stats.AcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.waits, prometheus.CounterValue, float64(stats.EmptyAcquireCount()))
}
