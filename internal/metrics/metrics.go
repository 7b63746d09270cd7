// Package metrics exposes Prometheus instrumentation for the trainwatch
// service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchesRun = promauto.NewCounter(prometheus.CounterOpts{
		Name: "progress_searches_total",
		Help: "Total number of one-shot progress searches executed.",
	})
	searchMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "progress_search_misses_total",
		Help: "Total number of searches that found no matching record.",
	})
	parseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "progress_parse_failures_total",
		Help: "Total number of malformed progress lines encountered.",
	})
	recordsObserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "progress_records_observed_total",
		Help: "Total number of progress records the monitor has observed.",
	})
	monitorRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_runs_total",
		Help: "Total number of monitor scan executions.",
	})
	latestIteration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "training_latest_iteration",
		Help: "Iteration number of the most recent progress record.",
	})
	latestLoss = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "training_latest_loss",
		Help: "Loss value of the most recent progress record.",
	})

	collectorsOnce sync.Once
)

// Init registers default Go/process collectors. It is safe to call multiple
// times.
func Init() {
	collectorsOnce.Do(func() {
		registerCollector(collectors.NewGoCollector())
		registerCollector(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

func registerCollector(c prometheus.Collector) {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			_ = are.ExistingCollector
			return
		}
		panic(err)
	}
}

// IncSearches counts one executed search.
func IncSearches() {
	searchesRun.Inc()
}

// IncSearchMisses counts a search that ended in no match.
func IncSearchMisses() {
	searchMisses.Inc()
}

// IncParseFailures counts a malformed progress line.
func IncParseFailures() {
	parseFailures.Inc()
}

// AddRecordsObserved counts progress records seen by the monitor.
func AddRecordsObserved(n int) {
	if n <= 0 {
		return
	}
	recordsObserved.Add(float64(n))
}

// IncMonitorRuns counts one monitor scan.
func IncMonitorRuns() {
	monitorRuns.Inc()
}

// SetLatestIteration records the newest observed iteration number.
func SetLatestIteration(v float64) {
	latestIteration.Set(v)
}

// SetLatestLoss records the newest observed loss value.
func SetLatestLoss(v float64) {
	latestLoss.Set(v)
}
