// Package daemon drives the periodic collect-resolve-aggregate cycle
// and serves the scrape endpoint.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pipewatch/pipewatch/internal/candidate"
	"github.com/pipewatch/pipewatch/internal/config"
	"github.com/pipewatch/pipewatch/internal/jaeger"
	"github.com/pipewatch/pipewatch/internal/metrics"
)

// TraceSource is the slice of the backend client the daemon uses.
type TraceSource interface {
	SearchTraces(ctx context.Context, params jaeger.SearchParams) (traces []jaeger.Trace, skipped int, err error)
	Services(ctx context.Context) ([]string, error)
}

// Daemon ticks on a fixed interval; each cycle fetches a bounded window
// of traces per service, runs the candidate pipeline over them with
// bounded parallelism and merges the results into the snapshot. A tick
// that fires while the previous cycle is still running is skipped, so
// cycles never overlap and merges follow tick order.
type Daemon struct {
	cfg    *config.Config
	source TraceSource
	agg    *metrics.Aggregator
	ops    *metrics.Ops
	opts   candidate.Options
	logger *zap.Logger
	clock  Clock

	busy atomic.Bool
	wg   sync.WaitGroup
}

// New creates a daemon. The candidate pipeline options are derived from
// the validated configuration.
func New(cfg *config.Config, source TraceSource, agg *metrics.Aggregator, logger *zap.Logger) *Daemon {
	return &Daemon{
		cfg:    cfg,
		source: source,
		agg:    agg,
		ops:    metrics.NewOps(agg.Registry()),
		opts: candidate.Options{
			Policy:         candidate.PolicyFromFlags(cfg.Daemon.RecurseParents, cfg.Daemon.RecurseChildren),
			MaxHops:        cfg.Daemon.MaxHops,
			IncludeUnknown: cfg.Daemon.IncludeUnknown,
		},
		logger: logger,
		clock:  systemClock{},
	}
}

// SetClock replaces the time source. Call before Run; used by tests.
func (d *Daemon) SetClock(c Clock) { d.clock = c }

// Run starts the scrape server and the cycle loop and blocks until ctx
// is canceled. An in-flight cycle gets the configured grace period to
// finish before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	server := d.newMetricsServer()
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	d.logger.Info("Daemon started",
		zap.Int("port", d.cfg.Daemon.Port),
		zap.Duration("frequency", d.cfg.Daemon.Frequency()),
		zap.String("policy", d.opts.Policy.String()),
		zap.Bool("include_unknown", d.opts.IncludeUnknown),
	)

	ticker := d.clock.NewTicker(d.cfg.Daemon.Frequency())
	defer ticker.Stop()

	// First cycle runs immediately rather than one interval in.
	d.startCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return d.shutdown(server)
		case err := <-serverErr:
			return fmt.Errorf("metrics server: %w", err)
		case <-ticker.Chan():
			d.startCycle(ctx)
		}
	}
}

// startCycle launches one cycle unless the previous one is still
// running, in which case the tick is skipped to keep memory bounded
// and merges non-overlapping.
func (d *Daemon) startCycle(ctx context.Context) {
	if !d.busy.CompareAndSwap(false, true) {
		d.ops.Cycles.WithLabelValues("skipped").Inc()
		d.logger.Warn("Previous cycle still running, skipping tick")
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.busy.Store(false)
		d.runCycle(ctx)
	}()
}

func (d *Daemon) runCycle(ctx context.Context) {
	start := d.clock.Now()

	services, err := d.resolveServices(ctx)
	if err != nil {
		d.ops.FetchErrors.WithLabelValues("").Inc()
		d.ops.Cycles.WithLabelValues("error").Inc()
		d.logger.Error("Service discovery failed, skipping cycle", zap.Error(err))
		return
	}

	var fetched, merged int
	for _, svc := range services {
		if ctx.Err() != nil {
			break
		}
		n, m := d.collectService(ctx, svc)
		fetched += n
		merged += m
	}

	elapsed := d.clock.Now().Sub(start)
	d.ops.CycleDuration.Observe(elapsed.Seconds())
	d.ops.Cycles.WithLabelValues("ok").Inc()
	d.logger.Info("Cycle complete",
		zap.Int("services", len(services)),
		zap.Int("traces", fetched),
		zap.Int("records", merged),
		zap.Duration("elapsed", elapsed),
	)
}

// resolveServices returns the configured service, or discovers the full
// list from the backend when none is configured.
func (d *Daemon) resolveServices(ctx context.Context) ([]string, error) {
	if d.cfg.Service != "" {
		return []string{d.cfg.Service}, nil
	}
	fctx, cancel := context.WithTimeout(ctx, d.cfg.Daemon.FetchTimeout)
	defer cancel()
	services, err := d.source.Services(fctx)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return services, nil
}

// collectService fetches one service's trace window and processes the
// traces with bounded parallelism. Fetch and decode failures are
// contained here; they never abort the cycle.
func (d *Daemon) collectService(ctx context.Context, service string) (fetched, merged int) {
	fctx, cancel := context.WithTimeout(ctx, d.cfg.Daemon.FetchTimeout)
	traces, skipped, err := d.source.SearchTraces(fctx, jaeger.SearchParams{
		Service:  service,
		Limit:    d.cfg.Limit,
		Lookback: d.cfg.Lookback,
	})
	cancel()
	if err != nil {
		var decodeErr *jaeger.DecodeError
		if errors.As(err, &decodeErr) {
			d.ops.DecodeErrors.WithLabelValues(service).Inc()
		} else {
			d.ops.FetchErrors.WithLabelValues(service).Inc()
		}
		d.logger.Warn("Trace fetch failed",
			zap.String("service", service),
			zap.Error(err),
		)
		return 0, 0
	}
	if skipped > 0 {
		d.ops.DecodeErrors.WithLabelValues(service).Add(float64(skipped))
	}
	d.ops.TracesFetched.WithLabelValues(service).Add(float64(len(traces)))

	// Each trace is an independent, immutable view; process them in
	// parallel and merge per trace so a batch lands atomically or not
	// at all.
	sem := make(chan struct{}, d.cfg.Daemon.MaxConcurrency)
	var (
		wg    sync.WaitGroup
		count atomic.Int64
	)
	for i := range traces {
		if ctx.Err() != nil {
			break
		}
		t := &traces[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			records, drops := candidate.ProcessTrace(t, d.opts)
			d.agg.Merge(records)
			count.Add(int64(len(records)))
			for reason, n := range drops {
				d.ops.SpansDropped.WithLabelValues(string(reason)).Add(float64(n))
			}
		}()
	}
	wg.Wait()

	return len(traces), int(count.Load())
}

// shutdown waits out the grace period for an in-flight cycle, then
// stops the scrape server.
func (d *Daemon) shutdown(server *http.Server) error {
	d.logger.Info("Shutting down", zap.Duration("grace", d.cfg.Daemon.ShutdownGrace))

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d.cfg.Daemon.ShutdownGrace):
		d.logger.Warn("Shutdown grace elapsed with cycle in flight")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(stopCtx); err != nil {
		return fmt.Errorf("stop metrics server: %w", err)
	}
	d.logger.Info("Shutdown complete")
	return nil
}
