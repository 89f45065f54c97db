// Package metrics records Prometheus metrics for external lookups and
// calculation runs, and can write them to a node_exporter textfile.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cointax"

var (
	priceLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pricing",
		Name:      "lookups_total",
		Help:      "Count of price lookups.",
	}, []string{"source", "status"})
	priceLookupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pricing",
		Name:      "lookup_duration_seconds",
		Help:      "Duration of price lookups.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source", "status"})

	explorerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "explorer",
		Name:      "fetches_total",
		Help:      "Count of explorer transaction fetches.",
	}, []string{"chain", "status"})
	explorerTransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "explorer",
		Name:      "transactions_total",
		Help:      "Count of transactions returned by the explorer.",
	}, []string{"chain"})
	explorerFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "explorer",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of explorer transaction fetches.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"chain", "status"})

	calculationGains = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "calculation",
		Name:      "gains",
		Help:      "Capital gains realized by the latest calculation.",
	}, []string{"method"})
	calculationUnmatched = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "calculation",
		Name:      "unmatched_disposals",
		Help:      "Disposals of the latest calculation that exceeded tracked lots.",
	}, []string{"method"})
	calculationOpenLots = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "calculation",
		Name:      "open_lots",
		Help:      "Lots with remaining quantity after the latest calculation.",
	}, []string{"method"})
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// WriteTextfile writes every registered metric to path in the text exposition format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
