// Package reaper implements the dedicated kernel task described in
// spec.md §4.6 (component C6): on a fixed interval it sweeps the task
// registry for CANCELED tasks and destroys them, the kernel's garbage
// collector for task resources.
package reaper

import (
	"context"
	"fmt"
	"sync"

	hclog "github.com/hashicorp/go-hclog"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/skift-os/kernel/task"
	"github.com/skift-os/kernel/telemetry"
	"golang.org/x/sync/errgroup"
)

// DefaultInterval is the reaper's sleep interval in ticks, spec.md
// §4.6's "≈100 ticks".
const DefaultInterval int64 = 100

// DefaultConcurrency bounds how many tasks Sweep destroys at once.
const DefaultConcurrency = 8

// Reaper owns the sweep loop. It holds no state of its own beyond its
// configuration: the task registry remains the single source of truth
// for which tasks are CANCELED.
type Reaper struct {
	reg         *task.Registry
	interval    int64
	concurrency int
	logger      hclog.Logger
}

// Option configures a Reaper at construction.
type Option func(*Reaper)

// WithInterval overrides DefaultInterval.
func WithInterval(ticks int64) Option { return func(rp *Reaper) { rp.interval = ticks } }

// WithConcurrency overrides DefaultConcurrency.
func WithConcurrency(n int) Option { return func(rp *Reaper) { rp.concurrency = n } }

// WithLogger installs a logger; the reaper sub-scopes it.
func WithLogger(l hclog.Logger) Option { return func(rp *Reaper) { rp.logger = l.Named("reaper") } }

// New builds a Reaper driving reg.
func New(reg *task.Registry, opts ...Option) *Reaper {
	rp := &Reaper{
		reg:         reg,
		interval:    DefaultInterval,
		concurrency: DefaultConcurrency,
		logger:      hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(rp)
	}
	telemetry.Init("kernel")
	return rp
}

// Entry is the reaper task's entry point, installed via
// task.Registry.Spawn: sleep, sweep, repeat. It returns only once its
// own task has been canceled, checked before each sleep and again when
// the sleep ends, so a reaper canceled mid-sleep stops without running
// another sweep.
func (rp *Reaper) Entry(self *task.Task) {
	for {
		if self.IsCanceled() {
			return
		}
		rp.reg.Sleep(self, rp.interval)
		if self.IsCanceled() {
			return
		}
		if err := rp.Sweep(context.Background()); err != nil {
			rp.logger.Warn("sweep completed with errors", "error", err)
		}
	}
}

// Sweep takes a snapshot of every CANCELED task and destroys them
// concurrently, bounded by rp.concurrency, per spec.md §4.6. It is
// best-effort: a failure destroying one task does not stop the others,
// and every failure is aggregated into the returned error.
func (rp *Reaper) Sweep(ctx context.Context) error {
	candidates := rp.reg.Canceled()
	if len(candidates) == 0 {
		return nil
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(rp.concurrency)

	var mu sync.Mutex
	var merr *multierror.Error
	for _, t := range candidates {
		t := t
		g.Go(func() error {
			if err := rp.reg.Destroy(t); err != nil {
				mu.Lock()
				merr = multierror.Append(merr, fmt.Errorf("task %d (%s): %w", t.ID(), t.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	telemetry.IncrCounter([]string{"reaper", "swept"}, float32(len(candidates)))
	rp.logger.Trace("reaper sweep complete", "destroyed", len(candidates))
	return merr.ErrorOrNil()
}
