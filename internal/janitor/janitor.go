// Package janitor implements the background sweep of expired temporary links
// and orphan blob cleanup. It operates independently from request traffic:
// both paths share the same atomic reclaim primitive in the store, so a sweep
// racing an inbound resolve on the same token can never double-process it,
// and overlapping sweep cycles are idempotent.
package janitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mbogdanowicz/imaginarium/internal/metrics"
)

// Sweeper reclaims all expired links and reports how many this pass
// transitioned.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Reconciler performs orphan blob cleanup (best-effort) and may return an
// error if the reconciliation scan itself fails.
type Reconciler interface {
	Reconcile(ctx context.Context) error
}

// Sink receives durable metric updates for each cycle. Optional.
type Sink interface {
	Inc(name string, delta int64)
	Observe(name string, value int64)
}

// Config holds tunables for the Janitor.
type Config struct {
	Interval time.Duration // how often a cycle begins
	Logger   *slog.Logger  // optional logger (defaults to slog.Default())
	Sink     Sink          // optional durable metrics sink
}

// Metrics accumulates counters (in-memory) for operational insight.
type Metrics struct {
	mu                  sync.Mutex
	Cycles              uint64
	Reclaimed           uint64
	CycleLastDurationMS int64
}

// MetricsView is a read-only snapshot safe to copy.
type MetricsView struct {
	Cycles              uint64
	Reclaimed           uint64
	CycleLastDurationMS int64
}

func (m *Metrics) addReclaimed(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.Reclaimed += uint64(n)
	m.mu.Unlock()
}

func (m *Metrics) recordCycle(d time.Duration) {
	m.mu.Lock()
	m.Cycles++
	m.CycleLastDurationMS = d.Milliseconds()
	m.mu.Unlock()
}

// Janitor encapsulates the background sweep loop.
type Janitor struct {
	sweeper    Sweeper
	reconciler Reconciler
	cfg        Config
	metrics    *Metrics

	ticker *time.Ticker
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// New constructs but does not start a Janitor. reconciler may be nil when the
// deployment has no blob storage to reconcile.
func New(sweeper Sweeper, reconciler Reconciler, cfg Config) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Janitor{
		sweeper:    sweeper,
		reconciler: reconciler,
		cfg:        cfg,
		metrics:    &Metrics{},
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start launches the janitor loop in a new goroutine.
func (j *Janitor) Start(ctx context.Context) {
	if j.ticker != nil {
		return
	} // already started
	j.ticker = time.NewTicker(j.cfg.Interval)
	go j.loop(ctx)
}

// Stop signals the loop to exit and waits for completion.
func (j *Janitor) Stop() {
	j.once.Do(func() { close(j.stopCh) })
	<-j.doneCh
}

// MetricsSnapshot returns a copy of current metrics.
func (j *Janitor) MetricsSnapshot() MetricsView {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()
	return MetricsView{
		Cycles:              j.metrics.Cycles,
		Reclaimed:           j.metrics.Reclaimed,
		CycleLastDurationMS: j.metrics.CycleLastDurationMS,
	}
}

func (j *Janitor) loop(ctx context.Context) {
	log := j.cfg.Logger.With("domain", "janitor")
	defer func() {
		if j.ticker != nil {
			j.ticker.Stop()
		}
		close(j.doneCh)
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info("janitor stop", "reason", "context_cancel")
			return
		case <-j.stopCh:
			log.Info("janitor stop", "reason", "stop_signal")
			return
		case <-j.ticker.C:
			j.runCycle(ctx)
		}
	}
}

// runCycle performs one full sweep + orphan cleanup cycle.
func (j *Janitor) runCycle(ctx context.Context) {
	start := time.Now()
	log := j.cfg.Logger.With("domain", "janitor", "action", "cycle")
	count, err := j.sweeper.Sweep(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("sweep", "error", err)
	}
	if j.reconciler != nil {
		if rerr := j.reconciler.Reconcile(ctx); rerr != nil && !errors.Is(rerr, context.Canceled) {
			log.Error("reconcile", "error", rerr)
		}
	}
	j.metrics.addReclaimed(count)
	j.metrics.recordCycle(time.Since(start))
	if j.cfg.Sink != nil {
		j.cfg.Sink.Inc(metrics.CounterLinksReclaimed, int64(count))
		j.cfg.Sink.Observe(metrics.SummarySweepReclaimedPerCycle, int64(count))
	}
	log.Info("cycle complete", "reclaimed", count, "ms", time.Since(start).Milliseconds())
}
