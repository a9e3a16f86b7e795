// Package promx mirrors the Statistics Engine's and Vicinity
// Tracker's in-memory state onto Prometheus metrics, grounded on the
// teacher's dual StatsD/Prometheus Tracker (stats/common_statsd.go)
// generalised to a single prometheus.Collector implementation.
/*
 * Copyright (c) 2024, RICH project contributors.
 */
package promx

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rich-project/plexid/internal/stats"
	"github.com/rich-project/plexid/internal/topology"
)

// Collector exposes link statistics and vicinity pheromone levels as
// Prometheus gauges, computed fresh on every scrape rather than
// cached, mirroring the Statistics Engine's own "no caching" stance
// on reads.
type Collector struct {
	engine   *stats.Engine
	vicinity *topology.Tracker

	statValue *prometheus.Desc
	vicinityPheromone *prometheus.Desc
}

func NewCollector(engine *stats.Engine, vicinity *topology.Tracker) *Collector {
	return &Collector{
		engine:   engine,
		vicinity: vicinity,
		statValue: prometheus.NewDesc(
			"plexid_link_stat_value",
			"Current value of a link statistics entry.",
			[]string{"link", "id", "metric"}, nil,
		),
		vicinityPheromone: prometheus.NewDesc(
			"plexid_vicinity_pheromone",
			"Current pheromone level of a vicinity entry.",
			[]string{"peer"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.statValue
	ch <- c.vicinityPheromone
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, e := range c.engine.AllEntries() {
		ch <- prometheus.MustNewConstMetric(
			c.statValue, prometheus.GaugeValue, float64(e.Value),
			strconv.FormatUint(uint64(e.LinkHandle), 10),
			strconv.FormatUint(uint64(e.ID), 10),
			e.Metric.String(),
		)
	}
	if c.vicinity == nil {
		return
	}
	for _, v := range c.vicinity.List() {
		ch <- prometheus.MustNewConstMetric(
			c.vicinityPheromone, prometheus.GaugeValue, float64(v.Pheromone),
			v.Peer.Format(),
		)
	}
}

var _ prometheus.Collector = (*Collector)(nil)
