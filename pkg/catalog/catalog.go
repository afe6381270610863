// Package catalog defines the Catalog Gateway of spec §4.1 and two
// backings: BoltGateway, a single-process bbolt store, and RaftGateway,
// an HA-replicated variant built the way the teacher replicates cluster
// state — a hashicorp/raft FSM applying JSON commands to an underlying
// store.
package catalog

import (
	"context"
	"time"

	"github.com/lattice-dmcp/lattice/pkg/types"
)

// DIDKey addresses one data identifier.
type DIDKey struct {
	Scope string
	Name  string
}

// ReplicaKey addresses one replica row within an RSE.
type ReplicaKey struct {
	Scope string
	Name  string
}

// ReplicaStateUpdate is one member of an UpdateReplicasStates batch.
type ReplicaStateUpdate struct {
	Scope string
	Name  string
	State types.ReplicaState
}

// RuleFilter narrows ListRules. Zero-value fields are unconstrained.
type RuleFilter struct {
	SubscriptionID string
	Scope          string
	Name           string
}

// AddRuleRequest is the input to AddRule; it mirrors one materialized
// types.Rule minus the fields the gateway assigns (ID, CreatedAt).
type AddRuleRequest struct {
	SubscriptionID          string
	Scope                   string
	Name                    string
	Account                 string
	Copies                  int
	RSEExpression           string
	Grouping                types.Grouping
	Lifetime                *int64
	Weight                  string
	Locked                  bool
	SourceReplicaExpression string
	Activity                string
	PurgeReplicas           bool
	IgnoreAvailability      bool
	Comment                 string
}

// Gateway is the Catalog Gateway capability set of spec §4.1. Every
// operation is atomic per the guarantees listed there: AddRule either
// produces a consistent rule row or fails with a typed rule-creation
// error; UpdateReplicasStates and DeleteReplicas are atomic per batch.
type Gateway interface {
	ListNewDIDs(ctx context.Context, shard, totalShards, limit int) ([]types.DataIdentifier, error)
	GetMetadata(ctx context.Context, scope, name string) (types.DataIdentifier, error)
	SetNewDIDsFlag(ctx context.Context, dids []DIDKey, isNew bool) error

	ListSubscriptions(ctx context.Context, account, name string) ([]types.Subscription, error)

	ListRules(ctx context.Context, filter RuleFilter) ([]types.Rule, error)
	AddRule(ctx context.Context, req AddRuleRequest) (types.Rule, error)

	ListUnlockedReplicas(ctx context.Context, rseID string, maxBytes *int64, limit *int, now time.Time) ([]types.Replica, error)
	UpdateReplicasStates(ctx context.Context, rseID string, updates []ReplicaStateUpdate) error
	DeleteReplicas(ctx context.Context, rseID string, files []ReplicaKey) error

	GetRSELimits(ctx context.Context, rseID string) (types.RSELimits, error)
	GetRSEUsage(ctx context.Context, rseID, source string) (types.RSEUsage, error)
	GetRSECounter(ctx context.Context, rseID string) (types.RSECounter, error)
	GetRSEProtocols(ctx context.Context, rseID string) ([]types.Protocol, error)
	ListRSEs(ctx context.Context) ([]types.RSE, error)

	AddMessage(ctx context.Context, eventType types.EventType, payload map[string]any) error
}
