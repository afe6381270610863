package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dmcp/lattice/pkg/catalogerr"
	"github.com/lattice-dmcp/lattice/pkg/types"
)

func openTestBoltGateway(t *testing.T) *BoltGateway {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	g, err := OpenBoltGateway(path)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

func TestBoltGatewayAddRuleAndListRules(t *testing.T) {
	g := openTestBoltGateway(t)
	ctx := context.Background()

	require.NoError(t, g.PutDID(types.DataIdentifier{Scope: "mc16", Name: "dataset001", Type: types.DIDTypeDataset}))

	rule, err := g.AddRule(ctx, AddRuleRequest{Scope: "mc16", Name: "dataset001", Copies: 2, RSEExpression: "tier=1"})
	require.NoError(t, err)
	assert.NotEmpty(t, rule.ID)

	rules, err := g.ListRules(ctx, RuleFilter{Scope: "mc16", Name: "dataset001"})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 2, rules[0].Copies)

	_, err = g.AddRule(ctx, AddRuleRequest{Scope: "mc16", Name: "dataset001", Copies: 2, RSEExpression: "tier=1"})
	require.Error(t, err)
	assert.Equal(t, catalogerr.DuplicateRule, catalogerr.KindOf(err))
}

func TestBoltGatewayReplicaLifecycle(t *testing.T) {
	g := openTestBoltGateway(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	require.NoError(t, g.PutReplica("RSE_A", types.Replica{Scope: "mc16", Name: "d1", Bytes: 100, Tombstone: &past}))

	replicas, err := g.ListUnlockedReplicas(ctx, "RSE_A", nil, nil, now)
	require.NoError(t, err)
	require.Len(t, replicas, 1)

	require.NoError(t, g.UpdateReplicasStates(ctx, "RSE_A", []ReplicaStateUpdate{
		{Scope: "mc16", Name: "d1", State: types.ReplicaStateBeingDeleted},
	}))
	require.NoError(t, g.DeleteReplicas(ctx, "RSE_A", []ReplicaKey{{Scope: "mc16", Name: "d1"}}))

	replicas, err = g.ListUnlockedReplicas(ctx, "RSE_A", nil, nil, now)
	require.NoError(t, err)
	assert.Empty(t, replicas)
}

func TestBoltGatewayRSELimitsUsageCounter(t *testing.T) {
	g := openTestBoltGateway(t)
	ctx := context.Background()

	minFree := int64(1000000)
	maxDel := 10
	require.NoError(t, g.PutRSELimits("RSE_A", types.RSELimits{MinFreeSpace: &minFree, MaxBeingDeletedFiles: &maxDel}))
	require.NoError(t, g.PutRSEUsage("RSE_A", types.RSEUsage{Source: "srm", Total: 10000000, Used: 9500000}))
	require.NoError(t, g.PutRSECounter("RSE_A", types.RSECounter{Bytes: 9500000}))

	limits, err := g.GetRSELimits(ctx, "RSE_A")
	require.NoError(t, err)
	require.NotNil(t, limits.MinFreeSpace)
	assert.Equal(t, int64(1000000), *limits.MinFreeSpace)

	usage, err := g.GetRSEUsage(ctx, "RSE_A", "srm")
	require.NoError(t, err)
	assert.Equal(t, int64(10000000), usage.Total)

	counter, err := g.GetRSECounter(ctx, "RSE_A")
	require.NoError(t, err)
	assert.Equal(t, int64(9500000), counter.Bytes)
}

func TestBoltGatewayListRSEsOrderedByName(t *testing.T) {
	g := openTestBoltGateway(t)
	ctx := context.Background()
	require.NoError(t, g.PutRSE(types.RSE{ID: "2", Name: "BNL-OSG2_DATADISK"}))
	require.NoError(t, g.PutRSE(types.RSE{ID: "1", Name: "CERN-PROD_DATADISK"}))

	rses, err := g.ListRSEs(ctx)
	require.NoError(t, err)
	require.Len(t, rses, 2)
	assert.Equal(t, "BNL-OSG2_DATADISK", rses[0].Name)
	assert.Equal(t, "CERN-PROD_DATADISK", rses[1].Name)
}

func TestBoltGatewayAddMessage(t *testing.T) {
	g := openTestBoltGateway(t)
	err := g.AddMessage(context.Background(), types.EventDeletionDone, map[string]any{"scope": "mc16"})
	require.NoError(t, err)
}

func TestBoltGatewaySetNewDIDsFlagUnknownDID(t *testing.T) {
	g := openTestBoltGateway(t)
	err := g.SetNewDIDsFlag(context.Background(), []DIDKey{{Scope: "mc16", Name: "nope"}}, false)
	require.Error(t, err)
	assert.Equal(t, catalogerr.DataIdentifierNotFound, catalogerr.KindOf(err))
}
