// Package metrics owns the process-lifetime metrics snapshot: the
// cumulative candidate histograms and last-seen gauges the scrape
// endpoint exposes. State is explicitly constructed and never reset;
// scrapers treat a restart as a counter reset.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pipewatch/pipewatch/internal/candidate"
)

type gaugeKey struct {
	service   string
	candidate string
}

// Aggregator merges completed candidate records into the snapshot. All
// mutation goes through Merge, which serializes concurrent writers;
// scrapes read through the registry and are never blocked by an
// in-progress merge for longer than one record batch.
type Aggregator struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	recordsTotal  *prometheus.CounterVec
	lastSeen      *prometheus.GaugeVec

	mu     sync.Mutex
	latest map[gaugeKey]time.Time
}

// NewAggregator builds the snapshot and its backing registry.
func NewAggregator() *Aggregator {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &Aggregator{
		registry: registry,
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipewatch_candidate_stage_duration_seconds",
				Help:    "Span durations of candidate pipeline stages",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
			},
			[]string{"service", "stage"},
		),
		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipewatch_candidate_records_total",
				Help: "Total completed candidate records merged",
			},
			[]string{"service", "stage"},
		),
		lastSeen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pipewatch_candidate_last_seen_timestamp_seconds",
				Help: "Most recent observation timestamp per candidate",
			},
			[]string{"service", "candidate"},
		),
		latest: make(map[gaugeKey]time.Time),
	}
	registry.MustRegister(a.stageDuration, a.recordsTotal, a.lastSeen)
	return a
}

// Registry returns the registry backing the snapshot, for registering
// operational series alongside it.
func (a *Aggregator) Registry() *prometheus.Registry {
	return a.registry
}

// Handler returns the scrape handler for the snapshot.
func (a *Aggregator) Handler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}

// Merge folds one trace's records into the snapshot as a batch. Every
// record counts one histogram sample (no dedup); the last-seen gauge
// only moves forward, so out-of-order ticks never regress it.
func (a *Aggregator) Merge(records []candidate.Record) {
	if len(records) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, rec := range records {
		stage := rec.Stage.String()
		a.stageDuration.WithLabelValues(rec.Service, stage).Observe(rec.Duration.Seconds())
		a.recordsTotal.WithLabelValues(rec.Service, stage).Inc()

		key := gaugeKey{service: rec.Service, candidate: rec.Candidate}
		if prev, ok := a.latest[key]; ok && !rec.Timestamp.After(prev) {
			continue
		}
		a.latest[key] = rec.Timestamp
		a.lastSeen.WithLabelValues(rec.Service, rec.Candidate).Set(float64(rec.Timestamp.UnixMicro()) / 1e6)
	}
}

// LastSeen returns the recorded latest timestamp for a key, for tests
// and debug output.
func (a *Aggregator) LastSeen(service, candidateKey string) (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ts, ok := a.latest[gaugeKey{service: service, candidate: candidateKey}]
	return ts, ok
}
