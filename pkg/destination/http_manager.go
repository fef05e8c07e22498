package destination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/cuemby/virtwho/pkg/config"
	"github.com/cuemby/virtwho/pkg/report"
)

// selfThrottleRate caps outbound requests to one destination independently
// of any server-side Retry-After, so a storm of sources batching into the
// same destination can't hammer it faster than the manager can reasonably
// be expected to keep up with.
const selfThrottleRate = 5 // requests/sec

// HTTPManager is the default Manager: a REST client for a
// candlepin-compatible subscription-management API. There is no
// third-party REST client anywhere in the teacher's dependency stack
// (its own service calls are gRPC, a different transport model for a
// different protocol), so this talks net/http directly.
type HTTPManager struct {
	dest    *config.Destination
	logger  zerolog.Logger
	client  *http.Client
	scheme  string
	limiter *rate.Limiter
}

// NewHTTPManager constructs a Manager for dest. dest.Server is used as
// the API host; https is assumed unless dest.Server already carries a
// scheme.
func NewHTTPManager(dest *config.Destination, logger zerolog.Logger) *HTTPManager {
	return &HTTPManager{
		dest:    dest,
		logger:  logger.With().Str("destination", dest.Name).Logger(),
		client:  &http.Client{Timeout: 30 * time.Second},
		scheme:  "https",
		limiter: rate.NewLimiter(rate.Limit(selfThrottleRate), selfThrottleRate),
	}
}

func (m *HTTPManager) baseURL() string {
	if strings.Contains(m.dest.Server, "://") {
		return m.dest.Server
	}
	return fmt.Sprintf("%s://%s", m.scheme, m.dest.Server)
}

type checkInResponse struct {
	JobID string `json:"id"`
}

type jobStatusResponse struct {
	State string `json:"state"`
}

func (m *HTTPManager) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return NewManagerFatalError(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL()+path, &buf)
	if err != nil {
		return NewManagerFatalError(err)
	}
	req.SetBasicAuth(m.dest.Username, m.dest.Password)
	req.Header.Set("Content-Type", "application/json")

	return m.execute(req, out)
}

func (m *HTTPManager) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL()+path, nil)
	if err != nil {
		return NewManagerFatalError(err)
	}
	req.SetBasicAuth(m.dest.Username, m.dest.Password)
	return m.execute(req, out)
}

func (m *HTTPManager) execute(req *http.Request, out interface{}) error {
	if err := m.limiter.Wait(req.Context()); err != nil {
		return NewManagerError(err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return NewManagerError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 60 * time.Second
		if h := resp.Header.Get("Retry-After"); h != "" {
			if secs, err := strconv.Atoi(h); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &ManagerThrottleError{RetryAfter: retryAfter}

	case resp.StatusCode >= 500:
		body, _ := io.ReadAll(resp.Body)
		return NewManagerError(fmt.Errorf("%s: %s", resp.Status, string(body)))

	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(resp.Body)
		return NewManagerFatalError(fmt.Errorf("%s: %s", resp.Status, string(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewManagerError(err)
	}
	return nil
}

// HypervisorCheckIn submits a batch association and returns the job id
// to poll.
func (m *HTTPManager) HypervisorCheckIn(ctx context.Context, batch *report.HostGuestAssociationReport, opts Options) (string, error) {
	if opts.Print {
		return "", nil
	}
	var resp checkInResponse
	path := fmt.Sprintf("/candlepin/hypervisors/%s", opts.ReporterID)
	if err := m.post(ctx, path, batch.SerializedAssociation(), &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// CheckReportState polls jobID and advances batch's state.
func (m *HTTPManager) CheckReportState(ctx context.Context, jobID string, batch *report.HostGuestAssociationReport) error {
	var resp jobStatusResponse
	if err := m.get(ctx, "/candlepin/jobs/"+jobID, &resp); err != nil {
		return err
	}
	switch resp.State {
	case "FINISHED":
		batch.SetState(report.ReportStateFinished)
	case "FAILED":
		batch.SetState(report.ReportStateFailed)
	case "CANCELED":
		batch.SetState(report.ReportStateCanceled)
	default:
		batch.SetState(report.ReportStateProcessing)
	}
	return nil
}

// SendVirtGuests submits a single source's domain list synchronously.
func (m *HTTPManager) SendVirtGuests(ctx context.Context, r *report.DomainListReport, opts Options) error {
	if opts.Print {
		return nil
	}
	path := fmt.Sprintf("/candlepin/consumers/%s/guestids", r.HypervisorID)
	return m.post(ctx, path, r.Guests, nil)
}
