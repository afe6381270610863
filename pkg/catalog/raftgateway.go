package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/lattice-dmcp/lattice/pkg/types"
)

// RaftGatewayConfig configures a single-node-bootstrap or joining
// RaftGateway, mirroring the tuning the ancestor repo applies for
// sub-10-second failover on a LAN deployment.
type RaftGatewayConfig struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// RaftGateway is the HA-replicated Gateway variant: mutations go through
// raft.Apply onto a catalogFSM wrapping a MemGateway; reads are served
// directly from that same MemGateway, since read-after-write on the
// leader's own applied state is all this daemon family needs (workers
// reconnect and re-read rather than expecting follower read consistency).
type RaftGateway struct {
	raft   *raft.Raft
	fsm    *catalogFSM
	store  *MemGateway
	nodeID string
}

// NewRaftGateway opens (or initializes) the raft log/stable/snapshot
// stores under cfg.DataDir and constructs the Raft instance. It does not
// bootstrap a cluster; call Bootstrap once, on exactly one node, to form
// a new single-node cluster.
func NewRaftGateway(cfg RaftGatewayConfig) (*RaftGateway, error) {
	store := NewMemGateway()
	fsm := newCatalogFSM(store)

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeID)
	raftConfig.HeartbeatTimeout = 500 * time.Millisecond
	raftConfig.ElectionTimeout = 500 * time.Millisecond
	raftConfig.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("catalog: resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("catalog: create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("catalog: create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("catalog: create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("catalog: create stable store: %w", err)
	}

	r, err := raft.NewRaft(raftConfig, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("catalog: create raft: %w", err)
	}

	return &RaftGateway{raft: r, fsm: fsm, store: store, nodeID: cfg.NodeID}, nil
}

// Bootstrap forms a new single-node cluster with this node as its only
// voter. Call it once when initializing a fresh data directory.
func (g *RaftGateway) Bootstrap(advertiseAddr raft.ServerAddress) error {
	cfg := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(g.nodeID), Address: advertiseAddr},
		},
	}
	return g.raft.BootstrapCluster(cfg).Error()
}

// IsLeader reports whether this node currently holds raft leadership.
func (g *RaftGateway) IsLeader() bool { return g.raft.State() == raft.Leader }

// Shutdown stops the raft instance.
func (g *RaftGateway) Shutdown() error { return g.raft.Shutdown().Error() }

func (g *RaftGateway) apply(cmd Command) (applyResult, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return applyResult{}, err
	}
	future := g.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return applyResult{}, fmt.Errorf("catalog: raft apply: %w", err)
	}
	res, ok := future.Response().(applyResult)
	if !ok {
		return applyResult{}, fmt.Errorf("catalog: unexpected apply response type %T", future.Response())
	}
	return res, res.err
}

func marshalArgs(op string, args any) (Command, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return Command{}, err
	}
	return Command{Op: op, Data: data}, nil
}

// --- Gateway ---

func (g *RaftGateway) ListNewDIDs(ctx context.Context, shard, totalShards, limit int) ([]types.DataIdentifier, error) {
	return g.store.ListNewDIDs(ctx, shard, totalShards, limit)
}

func (g *RaftGateway) GetMetadata(ctx context.Context, scope, name string) (types.DataIdentifier, error) {
	return g.store.GetMetadata(ctx, scope, name)
}

func (g *RaftGateway) SetNewDIDsFlag(ctx context.Context, dids []DIDKey, isNew bool) error {
	cmd, err := marshalArgs(opSetNewDIDsFlag, setNewDIDsFlagArgs{DIDs: dids, IsNew: isNew})
	if err != nil {
		return err
	}
	_, err = g.apply(cmd)
	return err
}

func (g *RaftGateway) ListSubscriptions(ctx context.Context, account, name string) ([]types.Subscription, error) {
	return g.store.ListSubscriptions(ctx, account, name)
}

func (g *RaftGateway) ListRules(ctx context.Context, filter RuleFilter) ([]types.Rule, error) {
	return g.store.ListRules(ctx, filter)
}

func (g *RaftGateway) AddRule(ctx context.Context, req AddRuleRequest) (types.Rule, error) {
	cmd, err := marshalArgs(opAddRule, req)
	if err != nil {
		return types.Rule{}, err
	}
	res, err := g.apply(cmd)
	if err != nil {
		return types.Rule{}, err
	}
	rule, _ := res.value.(types.Rule)
	return rule, nil
}

func (g *RaftGateway) ListUnlockedReplicas(ctx context.Context, rseID string, maxBytes *int64, limit *int, now time.Time) ([]types.Replica, error) {
	return g.store.ListUnlockedReplicas(ctx, rseID, maxBytes, limit, now)
}

func (g *RaftGateway) UpdateReplicasStates(ctx context.Context, rseID string, updates []ReplicaStateUpdate) error {
	cmd, err := marshalArgs(opUpdateReplicaStates, updateReplicasStatesArgs{RSEID: rseID, Updates: updates})
	if err != nil {
		return err
	}
	_, err = g.apply(cmd)
	return err
}

func (g *RaftGateway) DeleteReplicas(ctx context.Context, rseID string, files []ReplicaKey) error {
	cmd, err := marshalArgs(opDeleteReplicas, deleteReplicasArgs{RSEID: rseID, Files: files})
	if err != nil {
		return err
	}
	_, err = g.apply(cmd)
	return err
}

func (g *RaftGateway) GetRSELimits(ctx context.Context, rseID string) (types.RSELimits, error) {
	return g.store.GetRSELimits(ctx, rseID)
}

func (g *RaftGateway) GetRSEUsage(ctx context.Context, rseID, source string) (types.RSEUsage, error) {
	return g.store.GetRSEUsage(ctx, rseID, source)
}

func (g *RaftGateway) GetRSECounter(ctx context.Context, rseID string) (types.RSECounter, error) {
	return g.store.GetRSECounter(ctx, rseID)
}

func (g *RaftGateway) GetRSEProtocols(ctx context.Context, rseID string) ([]types.Protocol, error) {
	return g.store.GetRSEProtocols(ctx, rseID)
}

func (g *RaftGateway) ListRSEs(ctx context.Context) ([]types.RSE, error) {
	return g.store.ListRSEs(ctx)
}

func (g *RaftGateway) AddMessage(ctx context.Context, eventType types.EventType, payload map[string]any) error {
	cmd, err := marshalArgs(opAddMessage, addMessageArgs{EventType: eventType, Payload: payload})
	if err != nil {
		return err
	}
	_, err = g.apply(cmd)
	return err
}

// PutRSE, PutDID and PutSubscription seed topology through raft so every
// replica converges, instead of mutating the local store directly.
func (g *RaftGateway) PutRSE(rse types.RSE) error {
	cmd, err := marshalArgs(opPutRSE, rse)
	if err != nil {
		return err
	}
	_, err = g.apply(cmd)
	return err
}

func (g *RaftGateway) PutDID(did types.DataIdentifier) error {
	cmd, err := marshalArgs(opPutDID, did)
	if err != nil {
		return err
	}
	_, err = g.apply(cmd)
	return err
}

func (g *RaftGateway) PutSubscription(sub types.Subscription) error {
	cmd, err := marshalArgs(opPutSubscription, sub)
	if err != nil {
		return err
	}
	_, err = g.apply(cmd)
	return err
}
