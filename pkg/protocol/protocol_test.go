package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dmcp/lattice/pkg/catalogerr"
	"github.com/lattice-dmcp/lattice/pkg/types"
)

func TestRegistryResolveAppliesOverride(t *testing.T) {
	r := NewRegistry()
	r.Register("srm", "srm.Default", NewMockDriver)
	r.Register("srm", "gfal.Default", NewMockDriver)
	r.OverrideImpl("srm.Default", "gfal.Default")

	rse := types.RSE{
		Name: "CERN-PROD_TAPE",
		Protocols: []types.Protocol{
			{Scheme: "srm", Impl: "srm.Default"},
		},
	}

	drv, err := r.Resolve(rse, "srm")
	require.NoError(t, err)
	require.NotNil(t, drv)
}

func TestRegistryResolveUnknownScheme(t *testing.T) {
	r := NewRegistry()
	rse := types.RSE{Name: "X", Protocols: []types.Protocol{{Scheme: "srm", Impl: "srm.Default"}}}
	_, err := r.Resolve(rse, "gsiftp")
	assert.Error(t, err)
}

func TestRegistryResolveUnregisteredImpl(t *testing.T) {
	r := NewRegistry()
	rse := types.RSE{Name: "X", Protocols: []types.Protocol{{Scheme: "srm", Impl: "srm.Default"}}}
	_, err := r.Resolve(rse, "srm")
	assert.Error(t, err)
}

func TestMockDriverLifecycle(t *testing.T) {
	d := NewMockDriver(types.RSE{}, types.Protocol{})
	ctx := context.Background()
	require.NoError(t, d.Connect(ctx))

	pfns := d.LFNs2PFNs([]LFN{{Scope: "mc16", Name: "dataset001"}})
	pfn, ok := pfns["mc16:dataset001"]
	require.True(t, ok)

	require.NoError(t, d.Delete(ctx, pfn))
	require.NoError(t, d.Close())
}

func TestMockDriverScriptedDeleteError(t *testing.T) {
	d := NewMockDriver(types.RSE{}, types.Protocol{}).(*MockDriver)
	pfn := PFN("mock://mc16/dataset002")
	d.DeleteErr[pfn] = catalogerr.New(catalogerr.SourceNotFound, "gone")

	err := d.Delete(context.Background(), pfn)
	require.Error(t, err)
	assert.Equal(t, catalogerr.SourceNotFound, catalogerr.KindOf(err))
}

func TestLFNs2PFNsIsPureFunction(t *testing.T) {
	d := NewMockDriver(types.RSE{}, types.Protocol{})
	lfns := []LFN{{Scope: "mc16", Name: "dataset001"}}
	first := d.LFNs2PFNs(lfns)
	second := d.LFNs2PFNs(lfns)
	assert.Equal(t, first, second)
}
