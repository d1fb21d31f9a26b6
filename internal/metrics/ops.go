package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ops holds the daemon's operational series. Registered on the same
// registry as the snapshot so one scrape covers both.
type Ops struct {
	Cycles        *prometheus.CounterVec
	TracesFetched *prometheus.CounterVec
	FetchErrors   *prometheus.CounterVec
	DecodeErrors  *prometheus.CounterVec
	SpansDropped  *prometheus.CounterVec
	CycleDuration prometheus.Histogram
}

// NewOps creates and registers the operational series.
func NewOps(reg prometheus.Registerer) *Ops {
	o := &Ops{
		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipewatch_cycles_total",
				Help: "Processing cycles by outcome",
			},
			[]string{"status"},
		),
		TracesFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipewatch_traces_fetched_total",
				Help: "Traces fetched from the backend",
			},
			[]string{"service"},
		),
		FetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipewatch_fetch_errors_total",
				Help: "Backend fetch failures",
			},
			[]string{"service"},
		),
		DecodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipewatch_decode_errors_total",
				Help: "Malformed trace payloads skipped",
			},
			[]string{"service"},
		),
		SpansDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipewatch_spans_dropped_total",
				Help: "Spans that produced no candidate record",
			},
			[]string{"reason"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipewatch_cycle_duration_seconds",
				Help:    "Wall time of one full processing cycle",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
	}
	reg.MustRegister(o.Cycles, o.TracesFetched, o.FetchErrors, o.DecodeErrors, o.SpansDropped, o.CycleDuration)
	return o
}
