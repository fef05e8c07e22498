package report

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/virtwho/pkg/config"
)

func testSource() *config.Source {
	return &config.Source{Name: "src1", Type: "libvirt"}
}

func TestGuestActive(t *testing.T) {
	cases := []struct {
		state  GuestState
		active bool
	}{
		{GuestStateRunning, true},
		{GuestStatePaused, true},
		{GuestStateBlocked, false},
		{GuestStateShutOff, false},
		{GuestStateCrashed, false},
		{GuestStatePMSuspended, false},
	}
	for _, c := range cases {
		g := NewGuest("g1", c.state, "libvirt")
		assert.Equal(t, c.active, g.Active(), "state %v", c.state)
	}
}

func TestHypervisorHashStableUnderGuestReorder(t *testing.T) {
	g1 := NewGuest("g1", GuestStateRunning, "libvirt")
	g2 := NewGuest("g2", GuestStateShutOff, "libvirt")

	h1 := NewHypervisor("h1", "host1", []Guest{g1, g2}, nil)
	h2 := NewHypervisor("h1", "host1", []Guest{g2, g1}, nil)

	assert.Equal(t, h1.Hash(), h2.Hash())
}

func TestHypervisorHashChangesWithGuestState(t *testing.T) {
	g1 := NewGuest("g1", GuestStateRunning, "libvirt")
	g1Paused := NewGuest("g1", GuestStatePaused, "libvirt")

	h1 := NewHypervisor("h1", "host1", []Guest{g1}, nil)
	h2 := NewHypervisor("h1", "host1", []Guest{g1Paused}, nil)

	assert.NotEqual(t, h1.Hash(), h2.Hash())
}

func TestDomainListReportHashStableUnderReorder(t *testing.T) {
	src := testSource()
	g1 := NewGuest("g1", GuestStateRunning, "libvirt")
	g2 := NewGuest("g2", GuestStateShutOff, "libvirt")

	r1 := NewDomainListReport(src, "hv1", []Guest{g1, g2})
	r2 := NewDomainListReport(src, "hv1", []Guest{g2, g1})

	assert.Equal(t, r1.Hash(), r2.Hash())
}

func TestHostGuestAssociationReportHashStableUnderReorder(t *testing.T) {
	src := testSource()
	g1 := NewGuest("g1", GuestStateRunning, "libvirt")
	h1 := NewHypervisor("hv1", "", []Guest{g1}, nil)
	h2 := NewHypervisor("hv2", "", []Guest{g1}, nil)

	r1 := NewHostGuestAssociationReport(src, []Hypervisor{h1, h2}, nil, nil)
	r2 := NewHostGuestAssociationReport(src, []Hypervisor{h2, h1}, nil, nil)

	assert.Equal(t, r1.Hash(), r2.Hash())
}

func TestHostGuestAssociationReportExcludeHosts(t *testing.T) {
	src := testSource()
	h1 := NewHypervisor("prod-1", "", nil, nil)
	h2 := NewHypervisor("test-1", "", nil, nil)

	r := NewHostGuestAssociationReport(src, []Hypervisor{h1, h2}, []string{"test-*"}, nil)
	assoc := r.Association()

	require.Len(t, assoc, 1)
	assert.Equal(t, "prod-1", assoc[0].ID)
}

func TestHostGuestAssociationReportFilterHosts(t *testing.T) {
	src := testSource()
	h1 := NewHypervisor("prod-1", "", nil, nil)
	h2 := NewHypervisor("test-1", "", nil, nil)

	r := NewHostGuestAssociationReport(src, []Hypervisor{h1, h2}, nil, []string{"^prod-.*"})
	assoc := r.Association()

	require.Len(t, assoc, 1)
	assert.Equal(t, "prod-1", assoc[0].ID)
}

func TestHostGuestAssociationReportExcludeWinsOverFilter(t *testing.T) {
	src := testSource()
	h1 := NewHypervisor("dual-1", "", nil, nil)

	r := NewHostGuestAssociationReport(src, []Hypervisor{h1}, []string{"dual-*"}, []string{"dual-*"})
	assert.Empty(t, r.Association())
}

func TestHostGuestAssociationReportHashChangesWithFilter(t *testing.T) {
	src := testSource()
	h1 := NewHypervisor("prod-1", "", nil, nil)
	h2 := NewHypervisor("test-1", "", nil, nil)

	full := NewHostGuestAssociationReport(src, []Hypervisor{h1, h2}, nil, nil)
	filtered := NewHostGuestAssociationReport(src, []Hypervisor{h1, h2}, []string{"test-*"}, nil)

	assert.NotEqual(t, full.Hash(), filtered.Hash())
}

func TestErrorReportHashAlwaysEmpty(t *testing.T) {
	r := NewErrorReport(testSource(), assert.AnError)
	assert.Equal(t, "", r.Hash())
}

func TestReportStateTransitions(t *testing.T) {
	r := NewDomainListReport(testSource(), "hv1", nil)
	assert.Equal(t, ReportStateCreated, r.State())

	r.SetState(ReportStateProcessing)
	assert.Equal(t, ReportStateProcessing, r.State())

	r.SetState(ReportStateFinished)
	assert.Equal(t, ReportStateFinished, r.State())
}

func TestHostGuestAssociationReportAssociationContents(t *testing.T) {
	src := testSource()
	g1 := NewGuest("g1", GuestStateRunning, "libvirt")
	h1 := NewHypervisor("prod-1", "host1", []Guest{g1}, nil)

	r := NewHostGuestAssociationReport(src, []Hypervisor{h1}, nil, nil)
	assoc := r.Association()

	want := []Hypervisor{h1}
	if diff := cmp.Diff(want, assoc); diff != "" {
		t.Errorf("association mismatch (-want +got):\n%s", diff)
	}
}

func TestHostMatchesGlobAndRegex(t *testing.T) {
	assert.True(t, hostMatches("WEB-01", []string{"web-*"}))
	assert.True(t, hostMatches("web-01", []string{"^web-[0-9]+$"}))
	assert.False(t, hostMatches("db-01", []string{"web-*", "^app-.*"}))
}
