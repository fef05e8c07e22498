package destination

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/cuemby/virtwho/pkg/config"
	"github.com/cuemby/virtwho/pkg/datastore"
	"github.com/cuemby/virtwho/pkg/engine"
	"github.com/cuemby/virtwho/pkg/metrics"
	"github.com/cuemby/virtwho/pkg/report"
)

// NewSatellite5 constructs a destination Worker for a Satellite 5
// target. Satellite 5 cannot accept a raw domain list (there is no
// batching endpoint), so DomainListReports are dropped with a warning,
// and HostGuestAssociationReports are checked in one-per-source with no
// async polling, instead of the default worker's batch-and-poll flow.
func NewSatellite5(logger zerolog.Logger, dest *config.Destination, mgr Manager, store *datastore.Store, external *engine.Signal, reporterID string, oneShot, print bool) *Worker {
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
	c := &satellite5Cycle{w: w, reporterID: reporterID}
	w.IntervalWorker = engine.NewIntervalWorker(dest.Name, dest.PollingInterval, false, c, external, logger)
	return w
}

type satellite5Cycle struct {
	w          *Worker
	reporterID string
}

func (c *satellite5Cycle) Prepare(ctx context.Context) error { return nil }

func (c *satellite5Cycle) GetData(ctx context.Context) (interface{}, error) {
	return (&cycle{w: c.w, reporterID: c.reporterID}).GetData(ctx)
}

func (c *satellite5Cycle) NewErrorData(err error) interface{} {
	return collected{}
}

func (c *satellite5Cycle) SendData(ctx context.Context, data interface{}) error {
	w := c.w
	batch, _ := data.(collected)
	if len(batch) == 0 {
		return nil
	}

	opts := Options{ReporterID: c.reporterID, Print: w.print}
	sourcesSent := map[string]bool{}
	sourcesErred := map[string]bool{}

	for key, r := range batch {
		switch v := r.(type) {
		case *report.DomainListReport:
			w.logger.Warn().Str("source", key).Msg("satellite5 cannot accept hypervisor domain lists directly, dropping source; use rhn-virtualization-host instead")
			sourcesErred[key] = true

		case *report.HostGuestAssociationReport:
			w.sendAssociationUnbatched(ctx, key, v, opts, sourcesSent, sourcesErred)

		case *report.ErrorReport:
			w.logger.Debug().Str("source", key).Err(v.Err).Msg("source reported an error, nothing to send for this cycle")
			if w.oneShot {
				sourcesErred[key] = true
			}
		}
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

// sendAssociationUnbatched checks in a single source's association with
// no batching and no async poll: Satellite 5 has no endpoint to combine
// multiple sources' associations into one communication.
func (w *Worker) sendAssociationUnbatched(ctx context.Context, key string, r *report.HostGuestAssociationReport, opts Options, sourcesSent, sourcesErred map[string]bool) {
	if w.print {
		w.ReportsToPrint = append(w.ReportsToPrint, r)
		sourcesSent[key] = true
		return
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CheckinDuration, w.Destination.Name)

	for {
		_, err := w.manager.HypervisorCheckIn(ctx, r, opts)
		if err == nil {
			w.lastSentHash[key] = r.Hash()
			sourcesSent[key] = true
			metrics.ReportsSentTotal.WithLabelValues(w.Destination.Name, "finished").Inc()
			return
		}

		var throttle *ManagerThrottleError
		if errors.As(err, &throttle) {
			metrics.ThrottleWaitSecondsTotal.WithLabelValues(w.Destination.Name).Add(throttle.RetryAfter.Seconds())
			w.logger.Warn().Dur("retry_after", throttle.RetryAfter).Msg("destination throttled checkin, retrying")
			if w.Wait(throttle.RetryAfter) {
				return
			}
			continue
		}

		w.logger.Error().Err(err).Msg("fatal error during hypervisor checkin")
		if w.oneShot {
			sourcesErred[key] = true
		}
		metrics.ReportsSentTotal.WithLabelValues(w.Destination.Name, "failed").Inc()
		return
	}
}
