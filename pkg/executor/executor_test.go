package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/virtwho/pkg/config"
	"github.com/cuemby/virtwho/pkg/destination"
	"github.com/cuemby/virtwho/pkg/report"
)

type stubManager struct{}

func (stubManager) HypervisorCheckIn(ctx context.Context, batch *report.HostGuestAssociationReport, opts destination.Options) (string, error) {
	return "job-1", nil
}

func (stubManager) CheckReportState(ctx context.Context, jobID string, batch *report.HostGuestAssociationReport) error {
	batch.SetState(report.ReportStateFinished)
	return nil
}

func (stubManager) SendVirtGuests(ctx context.Context, r *report.DomainListReport, opts destination.Options) error {
	return nil
}

func TestExecutorRunsDestinationAgainstSeededStore(t *testing.T) {
	cfg := &config.Config{
		OneShot: true,
		Sources: map[string]*config.Source{},
		Destinations: map[string]*config.Destination{
			"d1": {Name: "d1", Type: config.DestinationTypeDefault, SourceKeys: []string{"s1"}},
		},
	}

	e := New(cfg, zerolog.Nop(), func(dest *config.Destination) destination.Manager {
		return stubManager{}
	})
	e.Store().Put("s1", report.NewHostGuestAssociationReport(nil, []report.Hypervisor{report.NewHypervisor("h1", "", nil, nil)}, nil, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := e.Run(ctx)
	require.NoError(t, err)
	assert.True(t, e.AllTerminated())
}

// countingWorker is a worker test double whose Terminated predicate
// flips true on its terminateAfter-th call (each poll counts as one
// cycle), simulating the source/destination workers' own tick-driven
// termination without any real interval waiting. Run does nothing.
type countingWorker struct {
	mu             sync.Mutex
	cycles         int
	terminateAfter int
	stopped        bool
}

func (w *countingWorker) Run(ctx context.Context) error { return nil }

func (w *countingWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
}

func (w *countingWorker) Terminated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return true
	}
	w.cycles++
	return w.cycles >= w.terminateAfter
}

func (w *countingWorker) wasStopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

func TestWaitOnThreadsReturnsOnceAllTerminateWithoutKilling(t *testing.T) {
	old := waitPollInterval
	waitPollInterval = time.Millisecond
	defer func() { waitPollInterval = old }()

	a := &countingWorker{terminateAfter: 2}
	b := &countingWorker{terminateAfter: 3}

	live := waitOnThreads([]worker{a, b}, 0, false)

	assert.Empty(t, live)
	assert.False(t, a.wasStopped())
	assert.False(t, b.wasStopped())
}

func TestExecutorBuildsOneWorkerPerSourceAndDestination(t *testing.T) {
	cfg := &config.Config{
		OneShot: true,
		Sources: map[string]*config.Source{
			"s1": {Name: "s1", Type: "fake", Interval: config.MinInterval},
			"s2": {Name: "s2", Type: "fake", Interval: config.MinInterval},
		},
		Destinations: map[string]*config.Destination{
			"d1": {Name: "d1", Type: config.DestinationTypeDefault, SourceKeys: []string{"s1", "s2"}},
		},
	}
	e := New(cfg, zerolog.Nop(), func(dest *config.Destination) destination.Manager {
		return stubManager{}
	})
	require.NoError(t, e.build())
	assert.Equal(t, 2, e.SourceCount())
	assert.Equal(t, 1, e.DestCount())
}
