package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/virtwho/pkg/backend"
	"github.com/cuemby/virtwho/pkg/config"
	"github.com/cuemby/virtwho/pkg/datastore"
	"github.com/cuemby/virtwho/pkg/destination"
	"github.com/cuemby/virtwho/pkg/engine"
	"github.com/cuemby/virtwho/pkg/log"
	"github.com/cuemby/virtwho/pkg/source"
)

type worker interface {
	Run(ctx context.Context) error
	Stop()
	Terminated() bool
}

// waitPollInterval is the polling granularity waitOnThreads and
// terminateThreads use to observe a worker's terminate predicate. A
// package variable so tests can shrink it instead of waiting on real
// one-second ticks.
var waitPollInterval = time.Second

// Executor owns the full set of source and destination workers for one
// agent run: it builds them from a resolved config.Config, runs them
// concurrently against a shared datastore.Store, and tears the whole
// set down together on Shutdown, reload, or one-shot completion.
type Executor struct {
	store  *datastore.Store
	logger zerolog.Logger

	managerFactory func(dest *config.Destination) destination.Manager
	backendFactory func(logger zerolog.Logger, src *config.Source) (backend.Backend, error)

	mu            sync.Mutex
	cfg           *config.Config
	signal        *engine.Signal
	sourceWorkers []worker
	destWorkers   []worker

	reloadCh chan struct{}
}

// New constructs an Executor for cfg. managerFactory builds the
// destination.Manager for each configured destination (nil uses the
// default HTTP-backed candlepin manager); passing a stub is how tests
// avoid real network calls. Under --print the destination workers
// capture reports instead of calling the manager at all.
func New(cfg *config.Config, logger zerolog.Logger, managerFactory func(dest *config.Destination) destination.Manager) *Executor {
	if managerFactory == nil {
		managerFactory = func(dest *config.Destination) destination.Manager {
			return destination.NewHTTPManager(dest, logger)
		}
	}
	return &Executor{
		cfg:            cfg,
		store:          datastore.New(),
		logger:         logger,
		managerFactory: managerFactory,
		backendFactory: backend.New,
		reloadCh:       make(chan struct{}, 1),
	}
}

// Store returns the shared datastore backing every worker this
// Executor builds.
func (e *Executor) Store() *datastore.Store {
	return e.store
}

// SourceCount and DestCount return the number of not-yet-terminated
// source and destination workers in the current set. They back
// pkg/metrics.Sampler without introducing a circular import between
// this package and pkg/metrics.
func (e *Executor) SourceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(liveWorkers(e.sourceWorkers))
}

func (e *Executor) DestCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(liveWorkers(e.destWorkers))
}

// build rebuilds the worker set from the current configuration under a
// fresh engine.Signal: a reload never reuses a previous generation's
// signal, since Signal is monotonic and a once-Set signal would
// instantly terminate the new generation.
func (e *Executor) build() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := e.cfg
	sig := engine.NewSignal()

	var sourceWorkers, destWorkers []worker

	for _, src := range cfg.Sources {
		b, err := e.backendFactory(log.WithSource(src.Name), src)
		if err != nil {
			return fmt.Errorf("source %s: %w", src.Name, err)
		}
		interval := config.ClampInterval(src.Interval)
		if src.Interval == 0 {
			interval = config.ClampInterval(cfg.Interval)
		}
		w := source.New(log.WithSource(src.Name), src, b, e.store, sig, interval, cfg.OneShot)
		sourceWorkers = append(sourceWorkers, w)
	}

	for _, dest := range cfg.Destinations {
		mgr := e.managerFactory(dest)
		interval := dest.PollingInterval
		if interval == 0 {
			interval = config.ClampInterval(cfg.Interval)
		}
		dest.PollingInterval = config.ClampInterval(interval)

		var w worker
		switch dest.Type {
		case config.DestinationTypeSatellite5:
			w = destination.NewSatellite5(log.WithDestination(dest.Name), dest, mgr, e.store, sig, cfg.ReporterID, cfg.OneShot, cfg.Print)
		default:
			w = destination.New(log.WithDestination(dest.Name), dest, mgr, e.store, sig, cfg.ReporterID, cfg.OneShot, cfg.Print)
		}
		destWorkers = append(destWorkers, w)
	}

	e.signal = sig
	e.sourceWorkers = sourceWorkers
	e.destWorkers = destWorkers
	return nil
}

func (e *Executor) allWorkersLocked() []worker {
	all := make([]worker, 0, len(e.sourceWorkers)+len(e.destWorkers))
	all = append(all, e.sourceWorkers...)
	all = append(all, e.destWorkers...)
	return all
}

func (e *Executor) allWorkers() []worker {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allWorkersLocked()
}

// Run builds the worker set and runs every worker concurrently until
// ctx is canceled or, in one-shot mode, every worker has stopped
// itself. A Reload received while running terminates the current
// worker set (terminateThreads), rebuilds from the updated
// configuration, and starts a fresh set, without Run itself returning.
// The first worker error (or ctx cancellation) cancels the rest and is
// returned.
func (e *Executor) Run(ctx context.Context) error {
	for {
		if err := e.build(); err != nil {
			return err
		}

		all := e.allWorkers()

		g, gctx := errgroup.WithContext(ctx)
		for _, w := range all {
			w := w
			g.Go(func() error {
				return w.Run(gctx)
			})
		}

		runDone := make(chan error, 1)
		go func() { runDone <- g.Wait() }()

		select {
		case err := <-runDone:
			return err

		case <-ctx.Done():
			<-runDone
			return ctx.Err()

		case <-e.reloadCh:
			e.logger.Info().Msg("reload requested, terminating current worker set")
			terminateThreads(all)
			<-runDone
			continue
		}
	}
}

// Shutdown sets the current generation's terminate signal and blocks
// (up to maxWait) for every worker to report terminated, forcibly
// terminating any stragglers via terminateThreads once maxWait elapses.
func (e *Executor) Shutdown(maxWait time.Duration) {
	e.mu.Lock()
	sig := e.signal
	all := e.allWorkersLocked()
	e.mu.Unlock()

	if sig != nil {
		sig.Set()
	}
	e.logger.Info().Msg("shutdown requested, waiting for workers to terminate")

	if live := waitOnThreads(all, maxWait, true); len(live) > 0 {
		e.logger.Warn().Int("workers", len(live)).Msg("workers did not terminate before shutdown deadline")
	}
}

// Reload replaces the configuration used for the next worker-set build
// and, if Run is currently executing, wakes it to terminate the
// running worker set and rebuild from the new configuration
// immediately instead of waiting for the next natural stop. Callers
// drive this from a SIGHUP or a config.Watcher event.
func (e *Executor) Reload(cfg *config.Config) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()

	select {
	case e.reloadCh <- struct{}{}:
	default:
		// a reload is already pending; coalesce
	}
}

// AllTerminated reports whether every worker built by the last Run has
// stopped; used by one-shot callers to detect natural completion
// without waiting on Run's return value from a separate goroutine.
func (e *Executor) AllTerminated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, w := range e.sourceWorkers {
		if !w.Terminated() {
			return false
		}
	}
	for _, w := range e.destWorkers {
		if !w.Terminated() {
			return false
		}
	}
	return true
}

// waitOnThreads polls every worker's Terminated() predicate at
// waitPollInterval until all have terminated or maxWait elapses
// (maxWait <= 0 waits forever). On expiry, if killOnExpiry is true it
// invokes terminateThreads and returns nil; otherwise it returns the
// still-live workers.
func waitOnThreads(workers []worker, maxWait time.Duration, killOnExpiry bool) []worker {
	var elapsed time.Duration
	for {
		live := liveWorkers(workers)
		if len(live) == 0 {
			return nil
		}
		if maxWait > 0 && elapsed >= maxWait {
			if killOnExpiry {
				terminateThreads(live)
				return nil
			}
			return live
		}
		time.Sleep(waitPollInterval)
		elapsed += waitPollInterval
	}
}

func liveWorkers(workers []worker) []worker {
	live := make([]worker, 0, len(workers))
	for _, w := range workers {
		if !w.Terminated() {
			live = append(live, w)
		}
	}
	return live
}

// terminateThreads calls Stop() on every worker, then joins each by
// polling its Terminated() predicate at waitPollInterval, fanning the
// whole stop-then-join set out concurrently via errgroup.
func terminateThreads(workers []worker) {
	var g errgroup.Group
	for _, w := range workers {
		w := w
		g.Go(func() error {
			w.Stop()
			for !w.Terminated() {
				time.Sleep(waitPollInterval)
			}
			return nil
		})
	}
	_ = g.Wait()
}
