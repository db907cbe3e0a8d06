package httpcache

import "github.com/prometheus/client_golang/prometheus"

// StatisticsCollector exposes a cache's hit and miss counters as Prometheus
// counters. Register it with prometheus.DefaultRegisterer in production and
// prometheus.NewRegistry() in tests to avoid cross-test pollution.
type StatisticsCollector struct {
	stats  *Statistics
	hits   *prometheus.Desc
	misses *prometheus.Desc
}

// NewStatisticsCollector returns a collector over the given statistics.
func NewStatisticsCollector(stats *Statistics) *StatisticsCollector {
	return &StatisticsCollector{
		stats: stats,
		hits: prometheus.NewDesc(
			"httpcache_hits_total",
			"Total number of storage lookups that returned a usable item.",
			nil, nil,
		),
		misses: prometheus.NewDesc(
			"httpcache_misses_total",
			"Total number of storage lookups that returned nothing.",
			nil, nil,
		),
	}
}

func (c *StatisticsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
}

func (c *StatisticsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(c.stats.Hits()))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(c.stats.Misses()))
}
