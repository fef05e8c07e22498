package backend

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/virtwho/pkg/config"
	"github.com/cuemby/virtwho/pkg/health"
	"github.com/cuemby/virtwho/pkg/report"
)

func init() {
	Register("esx", newReachabilityProbe("esx", health.CheckTypeTCP))
	Register("xen", newReachabilityProbe("xen", health.CheckTypeTCP))
	Register("rhevm", newReachabilityProbe("rhevm", health.CheckTypeTCP))
	Register("hyperv", newReachabilityProbe("hyperv", health.CheckTypeHTTP))
}

// reachabilityProbe stands in for the esx/xen/rhevm/hyperv backends' full
// scraping protocols, which are out of scope here: it only proves out the
// registry slot, construction, and error surface by confirming the
// configured server is reachable before reporting zero guests.
//
// Reachability is tracked with the same health.Status hysteresis used
// elsewhere for service monitoring, so one dropped probe inside a single
// GetHostGuestMapping call doesn't flip the source unreachable; it takes
// cfg.Retries consecutive failures.
type reachabilityProbe struct {
	tag     string
	source  *config.Source
	logger  zerolog.Logger
	checker health.Checker
	cfg     health.Config

	mu     sync.Mutex
	status *health.Status
}

func newReachabilityProbe(tag string, kind health.CheckType) Constructor {
	return func(logger zerolog.Logger, source *config.Source) (Backend, error) {
		if source.Server == "" {
			return nil, fmt.Errorf("backend %s: source %q has no server configured", tag, source.Name)
		}

		cfg := health.DefaultConfig()
		cfg.Retries = 2

		var checker health.Checker
		switch kind {
		case health.CheckTypeHTTP:
			checker = health.NewHTTPChecker(fmt.Sprintf("https://%s/wsman", serverAddr(source.Server, tag))).
				WithMethod("POST").
				WithStatusRange(200, 499).
				WithTimeout(cfg.Timeout)
		default:
			checker = health.NewTCPChecker(serverAddr(source.Server, tag)).WithTimeout(cfg.Timeout)
		}

		return &reachabilityProbe{
			tag:     tag,
			source:  source,
			logger:  logger.With().Str("backend", tag).Str("source", source.Name).Logger(),
			checker: checker,
			cfg:     cfg,
			status:  health.NewStatus(),
		}, nil
	}
}

func (p *reachabilityProbe) Type() string       { return p.tag }
func (p *reachabilityProbe) IsHypervisor() bool { return true }

func (p *reachabilityProbe) GetHostGuestMapping(ctx context.Context) ([]report.Hypervisor, error) {
	checkCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	result := p.checker.Check(checkCtx)
	cancel()

	p.mu.Lock()
	p.status.Update(result, p.cfg)
	healthy := p.status.Healthy
	failures := p.status.ConsecutiveFailures
	p.mu.Unlock()

	if !healthy {
		return nil, NewVirtError(fmt.Errorf("%s: %q unreachable after %d consecutive failures: %s", p.tag, p.source.Server, failures, result.Message))
	}

	p.logger.Debug().Str("message", result.Message).Dur("duration", result.Duration).Msg("reachability probe succeeded; full scraping protocol not implemented")
	return []report.Hypervisor{report.NewHypervisor(p.source.Server, p.source.Server, nil, nil)}, nil
}

func (p *reachabilityProbe) ListDomains(ctx context.Context) ([]report.Guest, error) {
	return nil, fmt.Errorf("backend %s: operates in hypervisor mode only", p.tag)
}

func (p *reachabilityProbe) Close() error { return nil }

func serverAddr(server, tag string) string {
	defaultPort := map[string]string{
		"esx":    "443",
		"xen":    "443",
		"rhevm":  "443",
		"hyperv": "5985",
	}[tag]
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, defaultPort)
}
