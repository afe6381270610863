package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dmcp/lattice/pkg/catalogerr"
	"github.com/lattice-dmcp/lattice/pkg/types"
)

func TestMemGatewayListNewDIDsIsShardDisjoint(t *testing.T) {
	g := NewMemGateway()
	for i := 0; i < 50; i++ {
		g.PutDID(types.DataIdentifier{Scope: "mc16", Name: fmt.Sprintf("dataset%03d", i), Type: types.DIDTypeDataset, IsNew: true})
	}

	ctx := context.Background()
	const totalShards = 4
	seen := make(map[string]bool)
	for shard := 0; shard < totalShards; shard++ {
		dids, err := g.ListNewDIDs(ctx, shard, totalShards, 1000)
		require.NoError(t, err)
		for _, d := range dids {
			key := d.String()
			require.False(t, seen[key], "DID %s seen in more than one shard", key)
			seen[key] = true
		}
	}
	assert.Len(t, seen, 50)
}

func TestMemGatewayGetMetadataNotFound(t *testing.T) {
	g := NewMemGateway()
	_, err := g.GetMetadata(context.Background(), "mc16", "missing")
	require.Error(t, err)
	assert.Equal(t, catalogerr.DataIdentifierNotFound, catalogerr.KindOf(err))
}

func TestMemGatewayAddRuleDuplicateFails(t *testing.T) {
	g := NewMemGateway()
	g.PutDID(types.DataIdentifier{Scope: "mc16", Name: "dataset001", Type: types.DIDTypeDataset})

	req := AddRuleRequest{Scope: "mc16", Name: "dataset001", Copies: 1, RSEExpression: "RSE_A"}
	_, err := g.AddRule(context.Background(), req)
	require.NoError(t, err)

	_, err = g.AddRule(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, catalogerr.DuplicateRule, catalogerr.KindOf(err))
}

func TestMemGatewayAddRuleUnknownDID(t *testing.T) {
	g := NewMemGateway()
	_, err := g.AddRule(context.Background(), AddRuleRequest{Scope: "mc16", Name: "nope", Copies: 1, RSEExpression: "RSE_A"})
	require.Error(t, err)
	assert.Equal(t, catalogerr.DataIdentifierNotFound, catalogerr.KindOf(err))
}

func TestMemGatewayListUnlockedReplicasSkipsLockedAndUntombstoned(t *testing.T) {
	g := NewMemGateway()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	g.PutReplica("RSE_A", types.Replica{Scope: "mc16", Name: "d1", Bytes: 100, Tombstone: &past, LockedCount: 0})
	g.PutReplica("RSE_A", types.Replica{Scope: "mc16", Name: "d2", Bytes: 100, Tombstone: &past, LockedCount: 1})
	g.PutReplica("RSE_A", types.Replica{Scope: "mc16", Name: "d3", Bytes: 100, Tombstone: nil, LockedCount: 0})

	replicas, err := g.ListUnlockedReplicas(context.Background(), "RSE_A", nil, nil, now)
	require.NoError(t, err)
	require.Len(t, replicas, 1)
	assert.Equal(t, "d1", replicas[0].Name)
}

func TestMemGatewayUpdateAndDeleteReplicas(t *testing.T) {
	g := NewMemGateway()
	g.PutReplica("RSE_A", types.Replica{Scope: "mc16", Name: "d1", State: types.ReplicaStateAvailable})

	err := g.UpdateReplicasStates(context.Background(), "RSE_A", []ReplicaStateUpdate{
		{Scope: "mc16", Name: "d1", State: types.ReplicaStateBeingDeleted},
	})
	require.NoError(t, err)

	err = g.DeleteReplicas(context.Background(), "RSE_A", []ReplicaKey{{Scope: "mc16", Name: "d1"}})
	require.NoError(t, err)

	replicas, err := g.ListUnlockedReplicas(context.Background(), "RSE_A", nil, nil, time.Now())
	require.NoError(t, err)
	assert.Empty(t, replicas)
}

func TestMemGatewayAddMessageAndDrain(t *testing.T) {
	g := NewMemGateway()
	err := g.AddMessage(context.Background(), types.EventDeletionPlanned, map[string]any{"scope": "mc16"})
	require.NoError(t, err)
	msgs := g.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, types.EventDeletionPlanned, msgs[0].EventType)
}
