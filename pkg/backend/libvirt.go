package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/virtwho/pkg/config"
	"github.com/cuemby/virtwho/pkg/report"
	libvirt "github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func init() {
	Register("libvirt", newLibvirtBackend)
	Register("vdsm", newVDSMBackend)
}

// libvirtState maps a libvirt domain state byte straight onto
// report.GuestState: the two enums are numbered identically by design.
func libvirtState(state uint8) report.GuestState {
	if state > uint8(report.GuestStatePMSuspended) {
		return report.GuestStateUnknown
	}
	return report.GuestState(state)
}

// libvirtBackend connects to libvirtd at <driver>+tcp://<server>/system
// (or <driver>:///system when no server is configured; ssh transports
// are not supported) and reports every domain it sees as one guest of a
// single hypervisor.
type libvirtBackend struct {
	tag      string
	source   *config.Source
	logger   zerolog.Logger
	virt     *libvirt.Libvirt
	connURI  libvirt.ConnectURI
	owner    string
}

func newLibvirtBackend(logger zerolog.Logger, source *config.Source) (Backend, error) {
	return newLibvirtLikeBackend("libvirt", logger, source, "qemu")
}

func newVDSMBackend(logger zerolog.Logger, source *config.Source) (Backend, error) {
	// vdsm is libvirt underneath, reached through the same transport
	// and the same qemu driver; only the reported type tag differs.
	return newLibvirtLikeBackend("vdsm", logger, source, "qemu")
}

func newLibvirtLikeBackend(tag string, logger zerolog.Logger, source *config.Source, driver string) (Backend, error) {
	uri := libvirt.ConnectURI(fmt.Sprintf("%s+tcp://%s/system", driver, source.Server))
	if source.Server == "" {
		uri = libvirt.ConnectURI(fmt.Sprintf("%s:///system", driver))
	}

	dialer := dialers.NewRemote(
		source.Server,
		dialers.WithRemoteTimeout(15*time.Second),
	)

	return &libvirtBackend{
		tag:     tag,
		source:  source,
		logger:  logger.With().Str("backend", tag).Str("source", source.Name).Logger(),
		virt:    libvirt.NewWithDialer(dialer),
		connURI: uri,
		owner:   source.Owner,
	}, nil
}

func (b *libvirtBackend) Type() string      { return b.tag }
func (b *libvirtBackend) IsHypervisor() bool { return true }

func (b *libvirtBackend) connect() error {
	if b.virt.IsConnected() {
		return nil
	}
	if err := b.virt.ConnectToURI(b.connURI); err != nil {
		return NewVirtError(fmt.Errorf("%s: connect to %s: %w", b.tag, b.connURI, err))
	}
	return nil
}

func (b *libvirtBackend) GetHostGuestMapping(ctx context.Context) ([]report.Hypervisor, error) {
	if err := b.connect(); err != nil {
		return nil, err
	}

	domains, _, err := b.virt.ConnectListAllDomains(
		1,
		libvirt.ConnectListDomainsActive|libvirt.ConnectListDomainsInactive,
	)
	if err != nil {
		return nil, NewVirtError(fmt.Errorf("%s: list domains: %w", b.tag, err))
	}

	hostname, err := b.virt.ConnectGetHostname()
	if err != nil {
		return nil, NewVirtError(fmt.Errorf("%s: get hostname: %w", b.tag, err))
	}

	guests := make([]report.Guest, 0, len(domains))
	for _, domain := range domains {
		state, _, _, _, _, err := b.virt.DomainGetInfo(domain)
		if err != nil {
			b.logger.Warn().Err(err).Str("domain", domain.Name).Msg("skipping domain, could not read info")
			continue
		}
		id, err := uuid.FromBytes(domain.UUID[:])
		if err != nil {
			b.logger.Warn().Err(err).Str("domain", domain.Name).Msg("skipping domain, malformed uuid")
			continue
		}
		guests = append(guests, report.NewGuest(id.String(), libvirtState(state), b.tag))
	}

	hv := report.NewHypervisor(hostname, hostname, guests, nil)
	return []report.Hypervisor{hv}, nil
}

func (b *libvirtBackend) ListDomains(ctx context.Context) ([]report.Guest, error) {
	hvs, err := b.GetHostGuestMapping(ctx)
	if err != nil {
		return nil, err
	}
	if len(hvs) == 0 {
		return nil, nil
	}
	return hvs[0].Guests, nil
}

func (b *libvirtBackend) Close() error {
	if !b.virt.IsConnected() {
		return nil
	}
	return b.virt.Disconnect()
}
