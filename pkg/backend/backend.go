package backend

import (
	"context"

	"github.com/cuemby/virtwho/pkg/config"
	"github.com/cuemby/virtwho/pkg/engine"
	"github.com/cuemby/virtwho/pkg/report"
	"github.com/rs/zerolog"
)

// VirtError is a recoverable backend failure (connection refused, auth
// rejected, malformed response). It is an alias of engine.VirtError so a
// source worker's outer run loop recognises it without backend needing
// to know about engine's retry policy.
type VirtError = engine.VirtError

// NewVirtError wraps err as a recoverable backend failure.
func NewVirtError(err error) *VirtError {
	return engine.NewVirtError(err)
}

// Backend is the source-plugin contract: discover guests for one
// configured source. A Backend is constructed fresh per source and is
// not expected to be reused across sources.
type Backend interface {
	// Type returns the configuration type tag this backend was
	// registered under (e.g. "libvirt").
	Type() string
	// IsHypervisor reports whether this backend reports full
	// host/guest associations (true) or a bare domain list (false).
	IsHypervisor() bool
	// GetHostGuestMapping returns the hypervisors (each carrying its
	// guests) this backend currently sees. Only called when
	// IsHypervisor is true.
	GetHostGuestMapping(ctx context.Context) ([]report.Hypervisor, error)
	// ListDomains returns the guests this backend currently sees on
	// its single managed host. Only called when IsHypervisor is
	// false.
	ListDomains(ctx context.Context) ([]report.Guest, error)
	// Close releases any connection the backend is holding.
	Close() error
}

// Constructor builds a Backend for one configured source.
type Constructor func(logger zerolog.Logger, source *config.Source) (Backend, error)
