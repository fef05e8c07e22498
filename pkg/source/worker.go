package source

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/virtwho/pkg/backend"
	"github.com/cuemby/virtwho/pkg/config"
	"github.com/cuemby/virtwho/pkg/datastore"
	"github.com/cuemby/virtwho/pkg/engine"
	"github.com/cuemby/virtwho/pkg/metrics"
	"github.com/cuemby/virtwho/pkg/report"
	"github.com/rs/zerolog"
)

// cycle implements engine.Cycle for one configured source, gathering
// guest data from a backend.Backend and publishing it to a shared
// datastore.
type cycle struct {
	source  *config.Source
	backend backend.Backend
	store   *datastore.Store
	worker  *engine.IntervalWorker
	logger  zerolog.Logger
}

func (c *cycle) Prepare(ctx context.Context) error {
	return nil
}

func (c *cycle) GetData(ctx context.Context) (interface{}, error) {
	start := time.Now()
	defer func() {
		metrics.CollectDuration.WithLabelValues(c.source.Name).Observe(time.Since(start).Seconds())
	}()

	if c.backend.IsHypervisor() {
		hypervisors, err := c.backend.GetHostGuestMapping(ctx)
		if err != nil {
			return nil, err
		}
		return report.NewHostGuestAssociationReport(c.source, hypervisors, nil, nil), nil
	}

	guests, err := c.backend.ListDomains(ctx)
	if err != nil {
		return nil, err
	}
	return report.NewDomainListReport(c.source, c.source.Name, guests), nil
}

// SendData publishes the gathered report to the datastore under the
// source's configuration name. If the worker has already been told to
// terminate, it exits without publishing: a terminate mid-cycle must
// not race a fresh report into the datastore after shutdown began.
func (c *cycle) SendData(ctx context.Context, data interface{}) error {
	if c.worker.Terminated() {
		return nil
	}
	r, ok := data.(report.Report)
	if !ok {
		return fmt.Errorf("source %s: unexpected data type %T", c.source.Name, data)
	}
	c.logger.Info().Str("hash", r.Hash()).Msg("report gathered, placing in datastore")
	c.store.Put(c.source.Name, r)
	return nil
}

func (c *cycle) NewErrorData(err error) interface{} {
	return report.NewErrorReport(c.source, err)
}

// Worker is one source's engine.IntervalWorker, wired to a backend and
// a shared datastore.
type Worker struct {
	*engine.IntervalWorker
}

// New constructs a source worker. interval should already be clamped by
// config.ClampInterval.
func New(logger zerolog.Logger, source *config.Source, b backend.Backend, store *datastore.Store, external *engine.Signal, interval time.Duration, oneShot bool) *Worker {
	c := &cycle{
		source:  source,
		backend: b,
		store:   store,
		logger:  logger.With().Str("source", source.Name).Str("type", source.Type).Logger(),
	}
	iw := engine.NewIntervalWorker(source.Name, interval, oneShot, c, external, logger)
	c.worker = iw
	return &Worker{IntervalWorker: iw}
}
