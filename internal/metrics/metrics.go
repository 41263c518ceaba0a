// Package metrics exposes fetch and batch telemetry as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/darthrootbeer/movie-heat/internal/domain"
)

const namespace = "movieheat"

// Collector implements the fetch recorder and batch hooks.
type Collector struct {
	cacheLookups  *prometheus.CounterVec
	fetchAttempts *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	records       *prometheus.CounterVec
	batches       prometheus.Counter
	batchDuration prometheus.Histogram
	noData        prometheus.Counter
}

// New registers the collectors on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Record cache lookups by provider and result.",
		}, []string{"provider", "result"}),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Provider network calls by outcome.",
		}, []string{"provider", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of provider network calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Provider records produced by status.",
		}, []string{"provider", "status"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Completed batch runs.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of batch runs.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		noData: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "movies_without_score_total",
			Help:      "Movies whose aggregate is NoData.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.cacheLookups, c.fetchAttempts, c.fetchDuration, c.records, c.batches, c.batchDuration, c.noData)
	}
	return c
}

func (c *Collector) CacheLookup(provider string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(provider, result).Inc()
}

func (c *Collector) FetchAttempt(provider, outcome string, took time.Duration) {
	c.fetchAttempts.WithLabelValues(provider, outcome).Inc()
	c.fetchDuration.WithLabelValues(provider).Observe(took.Seconds())
}

func (c *Collector) RecordStatus(provider string, status domain.Status) {
	c.records.WithLabelValues(provider, string(status)).Inc()
}

// BatchDone records one finished batch.
func (c *Collector) BatchDone(took time.Duration, movies []domain.CanonicalMovie) {
	c.batches.Inc()
	c.batchDuration.Observe(took.Seconds())
	for _, m := range movies {
		if m.Aggregate.Score.IsNoData() {
			c.noData.Inc()
		}
	}
}
