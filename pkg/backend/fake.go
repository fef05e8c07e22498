package backend

import (
	"context"

	"github.com/cuemby/virtwho/pkg/config"
	"github.com/cuemby/virtwho/pkg/report"
	"github.com/rs/zerolog"
)

func init() {
	Register("fake", newFakeBackend)
}

// FakeBackend is an in-memory Backend for tests and --print dry runs.
// Hypervisors/Guests/Err can be set directly by a test before the
// backend is driven by a source worker.
type FakeBackend struct {
	hypervisor bool
	Hypervisors []report.Hypervisor
	Guests      []report.Guest
	Err         error
}

// NewFake returns a hypervisor-mode FakeBackend seeded with hypervisors.
func NewFake(hypervisors []report.Hypervisor) *FakeBackend {
	return &FakeBackend{hypervisor: true, Hypervisors: hypervisors}
}

// NewFakeDomainList returns a non-hypervisor-mode FakeBackend seeded
// with a bare guest list.
func NewFakeDomainList(guests []report.Guest) *FakeBackend {
	return &FakeBackend{hypervisor: false, Guests: guests}
}

func newFakeBackend(logger zerolog.Logger, source *config.Source) (Backend, error) {
	return &FakeBackend{hypervisor: true}, nil
}

func (f *FakeBackend) Type() string       { return "fake" }
func (f *FakeBackend) IsHypervisor() bool { return f.hypervisor }

func (f *FakeBackend) GetHostGuestMapping(ctx context.Context) ([]report.Hypervisor, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Hypervisors, nil
}

func (f *FakeBackend) ListDomains(ctx context.Context) ([]report.Guest, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Guests, nil
}

func (f *FakeBackend) Close() error { return nil }
