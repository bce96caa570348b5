package db

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

// dbMetricsCollector reports the fields of sql.DBStats for a single *sql.DB
// each time the registry is scraped.
type dbMetricsCollector struct {
	db                 *sql.DB
	maxOpenConnections *prometheus.Desc
	openConnections    *prometheus.Desc
	inUse              *prometheus.Desc
	idle               *prometheus.Desc
	waitCount          *prometheus.Desc
	waitDuration       *prometheus.Desc
	maxIdleClosed      *prometheus.Desc
	maxLifetimeClosed  *prometheus.Desc
}

// InitDBMetrics registers a collector for the connection pool statistics of
// the provided *sql.DB. Labels are attached to every reported metric, so the
// same registerer can observe more than one pool.
func InitDBMetrics(db *sql.DB, stats prometheus.Registerer, labels prometheus.Labels) error {
	return stats.Register(newDBMetricsCollector(db, labels))
}

func newDBMetricsCollector(db *sql.DB, labels prometheus.Labels) *dbMetricsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(name, help, nil, labels)
	}
	return &dbMetricsCollector{
		db:                 db,
		maxOpenConnections: desc("db_max_open_connections", "Maximum number of DB connections allowed."),
		openConnections:    desc("db_open_connections", "Number of established DB connections (in-use and idle)."),
		inUse:              desc("db_inuse", "Number of DB connections currently in use."),
		idle:               desc("db_idle", "Number of idle DB connections."),
		waitCount:          desc("db_wait_count", "Total number of DB connections waited for."),
		waitDuration:       desc("db_wait_duration_seconds", "The total time blocked waiting for a new connection."),
		maxIdleClosed:      desc("db_max_idle_closed", "Total number of connections closed due to SetMaxIdleConns."),
		maxLifetimeClosed:  desc("db_max_lifetime_closed", "Total number of connections closed due to SetConnMaxLifetime."),
	}
}

func (c *dbMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.maxOpenConnections
	ch <- c.openConnections
	ch <- c.inUse
	ch <- c.idle
	ch <- c.waitCount
	ch <- c.waitDuration
	ch <- c.maxIdleClosed
	ch <- c.maxLifetimeClosed
}

func (c *dbMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.db.Stats()
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}
	gauge(c.maxOpenConnections, float64(s.MaxOpenConnections))
	gauge(c.openConnections, float64(s.OpenConnections))
	gauge(c.inUse, float64(s.InUse))
	gauge(c.idle, float64(s.Idle))
	counter(c.waitCount, float64(s.WaitCount))
	counter(c.waitDuration, s.WaitDuration.Seconds())
	counter(c.maxIdleClosed, float64(s.MaxIdleClosed))
	counter(c.maxLifetimeClosed, float64(s.MaxLifetimeClosed))
}
