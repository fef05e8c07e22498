package destination

import (
	"context"
	"time"

	"github.com/cuemby/virtwho/pkg/report"
)

// Options carries the per-checkin options the original agent passes
// through to its manager calls: the reporter identity and whether the
// run is print-only (suppressing outbound calls entirely).
type Options struct {
	ReporterID string
	Print      bool
}

// Manager is the destination-side contract: a subscription-management
// endpoint (candlepin, Satellite 5/6, ...) that accepts batched
// host/guest associations and per-source domain lists, and reports job
// progress asynchronously.
type Manager interface {
	// HypervisorCheckIn submits a batch association and returns a job
	// handle to poll, or an error from the taxonomy below.
	HypervisorCheckIn(ctx context.Context, batch *report.HostGuestAssociationReport, opts Options) (jobID string, err error)
	// CheckReportState polls job jobID and mutates batch's state
	// toward a terminal value (Finished, Failed, Canceled).
	CheckReportState(ctx context.Context, jobID string, batch *report.HostGuestAssociationReport) error
	// SendVirtGuests submits a single source's domain list
	// synchronously; there is no job handle to poll.
	SendVirtGuests(ctx context.Context, r *report.DomainListReport, opts Options) error
}

// ManagerError is a recoverable destination failure: the current
// batch/submission is abandoned and retried next cycle, since the
// last-sent hash is left untouched.
type ManagerError struct {
	Err error
}

func NewManagerError(err error) *ManagerError { return &ManagerError{Err: err} }
func (e *ManagerError) Error() string         { return e.Err.Error() }
func (e *ManagerError) Unwrap() error         { return e.Err }

// ManagerFatalError is a destination failure the operator must resolve;
// under one-shot the affected sources are marked erred, under
// long-running the worker still retries next interval.
type ManagerFatalError struct {
	Err error
}

func NewManagerFatalError(err error) *ManagerFatalError { return &ManagerFatalError{Err: err} }
func (e *ManagerFatalError) Error() string              { return e.Err.Error() }
func (e *ManagerFatalError) Unwrap() error              { return e.Err }

// ManagerThrottleError is not a failure: it carries the server's
// requested backoff before the caller retries the same call.
type ManagerThrottleError struct {
	RetryAfter time.Duration
}

func (e *ManagerThrottleError) Error() string {
	return "destination: throttled, retry after " + e.RetryAfter.String()
}
