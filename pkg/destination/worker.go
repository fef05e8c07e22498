package destination

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/virtwho/pkg/config"
	"github.com/cuemby/virtwho/pkg/datastore"
	"github.com/cuemby/virtwho/pkg/engine"
	"github.com/cuemby/virtwho/pkg/metrics"
	"github.com/cuemby/virtwho/pkg/report"
)

// asyncPollInterval is how often an in-flight batch checkin is re-polled
// for a terminal state when the manager has not requested a specific
// throttle wait.
const asyncPollInterval = 2 * time.Second

// Worker drains the freshest report for each of its configured source
// keys out of the datastore, batches the host/guest associations into
// one checkin, submits any domain lists individually, and tracks both
// to a terminal outcome.
type Worker struct {
	*engine.IntervalWorker

	Destination *config.Destination
	ReportsToPrint []report.Report

	store   *datastore.Store
	manager Manager
	print   bool
	logger  zerolog.Logger

	sourceKeys   []string
	lastSentHash map[string]string

	// oneShot governs destination-specific policy (mark-dealt-with,
	// prune sourceKeys, final Stop()) independently of the engine's own
	// OneShot flag. A destination worker must keep cycling on its
	// interval until every source key is dealt with, which can take
	// more than one cycle (a throttled checkin, say), so the underlying
	// IntervalWorker is always built with oneShot=false: the worker
	// decides for itself when to call Stop().
	oneShot bool
}

// New constructs a destination Worker. dest.PollingInterval is used as
// the cycle interval and should already be resolved and clamped
// (config.ClampInterval) by the caller.
func New(logger zerolog.Logger, dest *config.Destination, mgr Manager, store *datastore.Store, external *engine.Signal, reporterID string, oneShot, print bool) *Worker {
	w := &Worker{
		Destination:  dest,
		store:        store,
		manager:      mgr,
		print:        print,
		logger:       logger,
		sourceKeys:   append([]string(nil), dest.SourceKeys...),
		lastSentHash: map[string]string{},
		oneShot:      oneShot,
	}
	c := &cycle{w: w, reporterID: reporterID}
	w.IntervalWorker = engine.NewIntervalWorker(dest.Name, dest.PollingInterval, false, c, external, logger)
	return w
}

// cycle adapts Worker to engine.Cycle.
type cycle struct {
	w          *Worker
	reporterID string
}

func (c *cycle) Prepare(ctx context.Context) error { return nil }

// collected is the intermediate payload handed from GetData to SendData:
// one report per still-fresh source key.
type collected map[string]report.Report

func (c *cycle) GetData(ctx context.Context) (interface{}, error) {
	w := c.w
	out := collected{}
	for _, key := range w.sourceKeys {
		r, ok := w.store.Get(key)
		if !ok {
			continue
		}
		if _, isErr := r.(*report.ErrorReport); !isErr {
			if r.Hash() == w.lastSentHash[key] {
				continue
			}
		}
		out[key] = r
	}
	return out, nil
}

func (c *cycle) NewErrorData(err error) interface{} {
	return collected{}
}

func (c *cycle) SendData(ctx context.Context, data interface{}) error {
	w := c.w
	batch, _ := data.(collected)
	if len(batch) == 0 {
		return nil
	}

	opts := Options{ReporterID: c.reporterID, Print: w.print}

	var hypervisors []report.Hypervisor
	batchedKeys := make([]string, 0, len(batch))
	domainListKeys := make([]string, 0, len(batch))
	sourcesSent := map[string]bool{}
	sourcesErred := map[string]bool{}

	for key, r := range batch {
		switch v := r.(type) {
		case *report.HostGuestAssociationReport:
			hypervisors = append(hypervisors, v.Association()...)
			batchedKeys = append(batchedKeys, key)
		case *report.DomainListReport:
			domainListKeys = append(domainListKeys, key)
		case *report.ErrorReport:
			w.logger.Debug().Str("source", key).Err(v.Err).Msg("source reported an error, nothing to send for this cycle")
			if w.oneShot {
				sourcesErred[key] = true
			}
		}
	}

	if len(hypervisors) > 0 {
		w.checkinBatch(ctx, hypervisors, batchedKeys, batch, opts, sourcesSent, sourcesErred)
	}

	for _, key := range domainListKeys {
		dl := batch[key].(*report.DomainListReport)
		w.sendDomainList(ctx, key, dl, opts, sourcesSent, sourcesErred)
	}

	if w.oneShot {
		allDone := true
		for _, key := range w.sourceKeys {
			if !sourcesSent[key] && !sourcesErred[key] {
				allDone = false
				break
			}
		}
		if allDone {
			w.Stop()
		}
		remaining := w.sourceKeys[:0:0]
		for _, key := range w.sourceKeys {
			if !sourcesSent[key] {
				remaining = append(remaining, key)
			}
		}
		w.sourceKeys = remaining
	}

	return nil
}

// checkinBatch submits the combined association and polls it to a
// terminal state, recording the per-source last-sent hash for every
// batched key once the batch finishes. observed holds the report each
// key contributed this cycle; its hash is what gets recorded.
func (w *Worker) checkinBatch(ctx context.Context, hypervisors []report.Hypervisor, batchedKeys []string, observed collected, opts Options, sourcesSent, sourcesErred map[string]bool) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CheckinDuration, w.Destination.Name)

	batch := report.NewHostGuestAssociationReport(nil, hypervisors, []string{}, []string{})

	if w.print {
		w.ReportsToPrint = append(w.ReportsToPrint, batch)
		for _, key := range batchedKeys {
			sourcesSent[key] = true
		}
		return
	}

	var jobID string
	for {
		var err error
		jobID, err = w.manager.HypervisorCheckIn(ctx, batch, opts)
		if err == nil {
			break
		}
		if done := w.handleManagerError(ctx, err, batchedKeys, sourcesErred); done {
			metrics.ReportsSentTotal.WithLabelValues(w.Destination.Name, "failed").Inc()
			return
		}
		if w.Terminated() {
			return
		}
	}

	first := true
	for {
		if !first && w.Wait(asyncPollInterval) {
			return
		}
		first = false

		err := w.manager.CheckReportState(ctx, jobID, batch)
		if err != nil {
			// The original agent treats an async-poll failure under
			// one-shot as though the batch were sent: the checkin
			// already succeeded server-side, only the poll failed, so
			// marking the sources erred would cause a needless resend
			// on the next (nonexistent, under one-shot) cycle.
			if done := w.handleManagerError(ctx, err, batchedKeys, sourcesSent); done {
				metrics.ReportsSentTotal.WithLabelValues(w.Destination.Name, "failed").Inc()
				return
			}
			if w.Terminated() {
				return
			}
			continue
		}

		switch batch.State() {
		case report.ReportStateFinished:
			for _, key := range batchedKeys {
				w.lastSentHash[key] = observed[key].Hash()
				sourcesSent[key] = true
			}
			metrics.ReportsSentTotal.WithLabelValues(w.Destination.Name, "finished").Inc()
			return
		case report.ReportStateFailed, report.ReportStateCanceled:
			for _, key := range batchedKeys {
				sourcesErred[key] = true
			}
			metrics.ReportsSentTotal.WithLabelValues(w.Destination.Name, batch.State().String()).Inc()
			return
		default:
			continue
		}
	}
}

func (w *Worker) sendDomainList(ctx context.Context, key string, dl *report.DomainListReport, opts Options, sourcesSent, sourcesErred map[string]bool) {
	if w.print {
		w.ReportsToPrint = append(w.ReportsToPrint, dl)
		sourcesSent[key] = true
		return
	}

	for {
		err := w.manager.SendVirtGuests(ctx, dl, opts)
		if err == nil {
			w.lastSentHash[key] = dl.Hash()
			sourcesSent[key] = true
			metrics.ReportsSentTotal.WithLabelValues(w.Destination.Name, "finished").Inc()
			return
		}
		if done := w.handleManagerError(ctx, err, []string{key}, sourcesErred); done {
			metrics.ReportsSentTotal.WithLabelValues(w.Destination.Name, "failed").Inc()
			return
		}
		if w.Terminated() {
			return
		}
	}
}

// handleManagerError applies the shared error-taxonomy policy: a
// throttle error waits and lets the caller retry the same call; any
// other error reports done=true so the caller abandons this submission,
// and under one-shot also marks the affected keys in mark.
func (w *Worker) handleManagerError(ctx context.Context, err error, keys []string, mark map[string]bool) (done bool) {
	var throttle *ManagerThrottleError
	if errors.As(err, &throttle) {
		metrics.ThrottleWaitSecondsTotal.WithLabelValues(w.Destination.Name).Add(throttle.RetryAfter.Seconds())
		w.logger.Warn().Dur("retry_after", throttle.RetryAfter).Msg("destination throttled checkin, waiting")
		w.Wait(throttle.RetryAfter)
		return false
	}

	w.logger.Error().Err(err).Msg("destination checkin failed")
	if w.oneShot {
		for _, key := range keys {
			mark[key] = true
		}
	}
	return true
}
