package metrics

import "github.com/prometheus/client_golang/prometheus"

// DBPoolStatFunc reports connection pool counters. It keeps this package
// free of any driver import.
type DBPoolStatFunc func() (total, idle, acquired int32)

var poolGauges = []struct {
	name, help string
}{
	{"kyosor_db_pool_total_conns", "Total connections in the kv store pool."},
	{"kyosor_db_pool_idle_conns", "Idle connections in the kv store pool."},
	{"kyosor_db_pool_acquired_conns", "Connections currently checked out of the kv store pool."},
}

type dbPoolCollector struct {
	stats DBPoolStatFunc
	descs []*prometheus.Desc
}

// NewDBPoolCollector exposes pool counters as gauges, sampled on scrape.
func NewDBPoolCollector(stats DBPoolStatFunc) prometheus.Collector {
	c := &dbPoolCollector{stats: stats}
	for _, g := range poolGauges {
		c.descs = append(c.descs, prometheus.NewDesc(g.name, g.help, nil, nil))
	}
	return c
}

func (c *dbPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

func (c *dbPoolCollector) Collect(ch chan<- prometheus.Metric) {
	total, idle, acquired := c.stats()
	for i, v := range []int32{total, idle, acquired} {
		ch <- prometheus.MustNewConstMetric(c.descs[i], prometheus.GaugeValue, float64(v))
	}
}
