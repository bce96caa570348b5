package executor

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	rows     *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	lobBytes prometheus.Counter
}

func newMetrics(stats prometheus.Registerer) *metrics {
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batchdml_rows_total",
		Help: "A counter of batch rows executed, labeled by batch kind and result",
	}, []string{"kind", "result"})
	stats.MustRegister(rows)

	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "batchdml_batch_latency_seconds",
		Help:    "A histogram of batch execution latencies, labeled by batch kind",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}, []string{"kind"})
	stats.MustRegister(latency)

	lobBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "batchdml_lob_bytes_written_total",
		Help: "A counter of bytes streamed into large object locators",
	})
	stats.MustRegister(lobBytes)

	return &metrics{rows: rows, latency: latency, lobBytes: lobBytes}
}
