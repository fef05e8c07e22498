package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Cycle is one unit of repeatable work: gather data, hand it off. Source
// and destination workers each supply a Cycle; IntervalWorker supplies
// the scheduling, termination, and error-recovery behaviour around it.
type Cycle interface {
	// Prepare runs once before the first cycle (e.g. a manager login).
	Prepare(ctx context.Context) error
	// GetData gathers this cycle's payload.
	GetData(ctx context.Context) (interface{}, error)
	// SendData hands the payload off (publish to the datastore, submit
	// to a destination manager, render to stdout).
	SendData(ctx context.Context, data interface{}) error
	// NewErrorData builds the payload SendData should receive when a
	// cycle fails under one-shot mode, so the failure is still visible
	// to whatever consumes this worker's output.
	NewErrorData(err error) interface{}
}

// IntervalWorker runs a Cycle on a fixed interval until terminated. The
// worker is terminated when either its own Stop is called or the shared
// external Signal is set; either must be noticed within about a second.
type IntervalWorker struct {
	Name     string
	Interval time.Duration
	OneShot  bool
	Cycle    Cycle
	External *Signal
	Logger   zerolog.Logger

	internal *Signal
}

// NewIntervalWorker constructs a worker. external is the terminate
// signal shared across the whole worker set; interval is clamped by the
// caller (config.ClampInterval) before reaching here.
func NewIntervalWorker(name string, interval time.Duration, oneShot bool, cycle Cycle, external *Signal, logger zerolog.Logger) *IntervalWorker {
	return &IntervalWorker{
		Name:     name,
		Interval: interval,
		OneShot:  oneShot,
		Cycle:    cycle,
		External: external,
		Logger:   logger.With().Str("worker", name).Logger(),
		internal: NewSignal(),
	}
}

// Stop sets this worker's own terminate flag. It does not affect any
// other worker sharing the same external signal.
func (w *IntervalWorker) Stop() {
	w.internal.Set()
}

// Terminated reports whether this worker should exit: either its own
// Stop was called, or the shared external signal was set.
func (w *IntervalWorker) Terminated() bool {
	return w.internal.IsSet() || w.External.IsSet()
}

// Wait blocks for up to d, in one-second steps, returning early (true)
// the moment the worker becomes terminated. d <= 0 returns immediately
// without blocking. Exported so a Cycle can compose its own internal
// waits (rate-limit backoff, async job polling) against the same
// terminate signals the run loop itself uses.
func (w *IntervalWorker) Wait(d time.Duration) bool {
	return w.wait(d)
}

func (w *IntervalWorker) wait(d time.Duration) bool {
	if w.Terminated() {
		return true
	}
	if d <= 0 {
		return false
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case <-w.internal.Done():
			return true
		case <-w.External.Done():
			return true
		case <-timer.C:
			return false
		case <-tick.C:
			if w.Terminated() {
				return true
			}
		}
	}
}

// Run executes Prepare once and then cycles until terminated or a
// context cancellation. It returns nil on clean termination and a
// non-nil error only if Prepare itself fails.
func (w *IntervalWorker) Run(ctx context.Context) error {
	if err := w.Cycle.Prepare(ctx); err != nil {
		return err
	}

	for {
		if w.Terminated() {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		start := time.Now()
		err := func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("panic in worker cycle: %v\n%s", p, debug.Stack())
				}
			}()
			data, gerr := w.Cycle.GetData(ctx)
			if gerr != nil {
				return gerr
			}
			return w.Cycle.SendData(ctx, data)
		}()

		if err != nil {
			w.logCycleError(err)
			if w.OneShot {
				_ = w.Cycle.SendData(ctx, w.Cycle.NewErrorData(err))
				w.Stop()
				return nil
			}
			if w.wait(w.Interval) {
				return nil
			}
			continue
		}

		if w.OneShot {
			w.Stop()
			return nil
		}

		elapsed := time.Since(start)
		waitTime := w.Interval - elapsed
		if waitTime < 0 {
			w.Logger.Debug().Dur("overrun", -waitTime).Msg("cycle exceeded interval, starting next cycle immediately")
			continue
		}
		if w.wait(waitTime) {
			return nil
		}
	}
}

func (w *IntervalWorker) logCycleError(err error) {
	var ve *VirtError
	if errors.As(err, &ve) {
		w.Logger.Error().Err(ve.Err).Msg("recoverable error in worker cycle, will retry")
		return
	}
	w.Logger.Error().Err(err).Msg("unexpected error in worker cycle, will retry")
}
