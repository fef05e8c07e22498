package destination

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/virtwho/pkg/config"
	"github.com/cuemby/virtwho/pkg/datastore"
	"github.com/cuemby/virtwho/pkg/engine"
	"github.com/cuemby/virtwho/pkg/report"
)

func TestSatellite5SendsEachSourceUnbatched(t *testing.T) {
	store := datastore.New()
	src1 := &config.Source{Name: "s1"}
	src2 := &config.Source{Name: "s2"}
	store.Put("s1", report.NewHostGuestAssociationReport(src1, []report.Hypervisor{report.NewHypervisor("h1", "", nil, nil)}, nil, nil))
	store.Put("s2", report.NewHostGuestAssociationReport(src2, []report.Hypervisor{report.NewHypervisor("h2", "", nil, nil)}, nil, nil))

	mgr := &fakeManager{}
	w := NewSatellite5(zerolog.Nop(), testDestination("s1", "s2"), mgr, store, engine.NewSignal(), "", true, false)

	err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, mgr.checkinCalls)
	assert.Equal(t, 0, mgr.pollCalls)
}

func TestSatellite5DropsDomainListReports(t *testing.T) {
	store := datastore.New()
	src1 := &config.Source{Name: "s1"}
	store.Put("s1", report.NewDomainListReport(src1, "s1", nil))

	mgr := &fakeManager{}
	w := NewSatellite5(zerolog.Nop(), testDestination("s1"), mgr, store, engine.NewSignal(), "", true, false)

	err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, mgr.checkinCalls)
	assert.True(t, w.Terminated())
}
