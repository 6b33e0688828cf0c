// Package metricsexport exposes pool, back-pressure, and recorder
// statistics as Prometheus metrics via a custom prometheus.Collector: each
// scrape reads a fresh snapshot from the underlying components rather than
// requiring call sites to instrument counters inline.
package metricsexport

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alfred-ai/alfred-pipeline/objpool"
	"github.com/alfred-ai/alfred-pipeline/recorder"
	"github.com/alfred-ai/alfred-pipeline/semaphore"
)

const namespace = "pipeline"

// Collector implements prometheus.Collector over the live state of a pool
// registry, an optional back-pressure semaphore, and an optional execution
// recorder. Any of the latter two may be nil; Collector skips what it
// wasn't given.
type Collector struct {
	registry  *objpool.PoolRegistry
	semaphore *semaphore.BackPressureSemaphore
	recorder  *recorder.Recorder

	poolAvailable   *prometheus.Desc
	poolInUse       *prometheus.Desc
	poolMaxSize     *prometheus.Desc
	poolHitRate     *prometheus.Desc
	poolEfficiency  *prometheus.Desc
	poolEvictions   *prometheus.Desc

	semaphoreActive *prometheus.Desc
	semaphoreQueued *prometheus.Desc

	recorderCount       *prometheus.Desc
	recorderSuccessRate *prometheus.Desc
}

// New builds a Collector. sem and rec may be nil when a deployment doesn't
// use back pressure or execution recording.
func New(registry *objpool.PoolRegistry, sem *semaphore.BackPressureSemaphore, rec *recorder.Recorder) *Collector {
	return &Collector{
		registry:  registry,
		semaphore: sem,
		recorder:  rec,

		poolAvailable:  prometheus.NewDesc(namespace+"_pool_available", "Items currently available in the pool.", []string{"pool"}, nil),
		poolInUse:      prometheus.NewDesc(namespace+"_pool_in_use", "Items currently on loan from the pool.", []string{"pool"}, nil),
		poolMaxSize:    prometheus.NewDesc(namespace+"_pool_max_size", "Configured maximum in-circulation count.", []string{"pool"}, nil),
		poolHitRate:    prometheus.NewDesc(namespace+"_pool_hit_rate", "Fraction of acquisitions served from the available stack.", []string{"pool"}, nil),
		poolEfficiency: prometheus.NewDesc(namespace+"_pool_efficiency", "Acquisitions per allocation.", []string{"pool"}, nil),
		poolEvictions:  prometheus.NewDesc(namespace+"_pool_evictions_total", "Items evicted rather than returned to the available stack.", []string{"pool"}, nil),

		semaphoreActive: prometheus.NewDesc(namespace+"_backpressure_active", "Currently granted, unreleased permits.", nil, nil),
		semaphoreQueued: prometheus.NewDesc(namespace+"_backpressure_queued", "Currently suspended waiters.", nil, nil),

		recorderCount:       prometheus.NewDesc(namespace+"_recorder_records", "Currently retained execution records.", nil, nil),
		recorderSuccessRate: prometheus.NewDesc(namespace+"_recorder_success_rate", "Lifetime fraction of recorded executions that succeeded.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.poolAvailable
	ch <- c.poolInUse
	ch <- c.poolMaxSize
	ch <- c.poolHitRate
	ch <- c.poolEfficiency
	ch <- c.poolEvictions
	ch <- c.semaphoreActive
	ch <- c.semaphoreQueued
	ch <- c.recorderCount
	ch <- c.recorderSuccessRate
}

// Collect implements prometheus.Collector, snapshotting every wired
// component's current state.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.registry != nil {
		for name, stats := range c.registry.AllStatistics() {
			ch <- prometheus.MustNewConstMetric(c.poolAvailable, prometheus.GaugeValue, float64(stats.CurrentlyAvailable), name)
			ch <- prometheus.MustNewConstMetric(c.poolInUse, prometheus.GaugeValue, float64(stats.CurrentlyInUse), name)
			ch <- prometheus.MustNewConstMetric(c.poolMaxSize, prometheus.GaugeValue, float64(stats.MaxSize), name)
			ch <- prometheus.MustNewConstMetric(c.poolHitRate, prometheus.GaugeValue, stats.HitRate(), name)
			ch <- prometheus.MustNewConstMetric(c.poolEfficiency, prometheus.GaugeValue, stats.Efficiency(), name)
			ch <- prometheus.MustNewConstMetric(c.poolEvictions, prometheus.CounterValue, float64(stats.Evictions), name)
		}
	}

	if c.semaphore != nil {
		ch <- prometheus.MustNewConstMetric(c.semaphoreActive, prometheus.GaugeValue, float64(c.semaphore.Active()))
		ch <- prometheus.MustNewConstMetric(c.semaphoreQueued, prometheus.GaugeValue, float64(c.semaphore.Queued()))
	}

	if c.recorder != nil {
		stats := c.recorder.Stats()
		ch <- prometheus.MustNewConstMetric(c.recorderCount, prometheus.GaugeValue, float64(stats.CurrentCount))
		ch <- prometheus.MustNewConstMetric(c.recorderSuccessRate, prometheus.GaugeValue, stats.SuccessRate())
	}
}
