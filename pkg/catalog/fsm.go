package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/lattice-dmcp/lattice/pkg/types"
)

// Command is one state change applied through the raft log, the same
// envelope shape as the ancestor repo's manager.Command: an op name plus
// its JSON-encoded argument.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opSetNewDIDsFlag      = "set_new_dids_flag"
	opAddRule             = "add_rule"
	opUpdateReplicaStates = "update_replicas_states"
	opDeleteReplicas      = "delete_replicas"
	opAddMessage          = "add_message"
	opPutDID              = "put_did"
	opPutSubscription     = "put_subscription"
	opPutRSE              = "put_rse"
)

// catalogFSM applies committed commands to an in-memory MemGateway. It
// is the consensus-replicated equivalent of the ancestor repo's
// WarrenFSM applying commands to a storage.Store.
type catalogFSM struct {
	mu    sync.RWMutex
	store *MemGateway
}

func newCatalogFSM(store *MemGateway) *catalogFSM {
	return &catalogFSM{store: store}
}

type setNewDIDsFlagArgs struct {
	DIDs  []DIDKey `json:"dids"`
	IsNew bool     `json:"is_new"`
}

type updateReplicasStatesArgs struct {
	RSEID   string               `json:"rse_id"`
	Updates []ReplicaStateUpdate `json:"updates"`
}

type deleteReplicasArgs struct {
	RSEID string       `json:"rse_id"`
	Files []ReplicaKey `json:"files"`
}

type addMessageArgs struct {
	EventType types.EventType `json:"event_type"`
	Payload   map[string]any  `json:"payload"`
}

// applyResult carries the outcome of one Apply call back to the caller
// that submitted it, since raft.Log gives Apply no channel back except
// its return value.
type applyResult struct {
	value any
	err   error
}

func (f *catalogFSM) Apply(log *raft.Log) any {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return applyResult{err: fmt.Errorf("catalog fsm: unmarshal command: %w", err)}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	ctx := context.Background()

	switch cmd.Op {
	case opPutDID:
		var did types.DataIdentifier
		if err := json.Unmarshal(cmd.Data, &did); err != nil {
			return applyResult{err: err}
		}
		f.store.PutDID(did)
		return applyResult{}

	case opPutSubscription:
		var sub types.Subscription
		if err := json.Unmarshal(cmd.Data, &sub); err != nil {
			return applyResult{err: err}
		}
		f.store.PutSubscription(sub)
		return applyResult{}

	case opPutRSE:
		var rse types.RSE
		if err := json.Unmarshal(cmd.Data, &rse); err != nil {
			return applyResult{err: err}
		}
		f.store.PutRSE(rse)
		return applyResult{}

	case opSetNewDIDsFlag:
		var args setNewDIDsFlagArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return applyResult{err: err}
		}
		err := f.store.SetNewDIDsFlag(ctx, args.DIDs, args.IsNew)
		return applyResult{err: err}

	case opAddRule:
		var req AddRuleRequest
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			return applyResult{err: err}
		}
		rule, err := f.store.AddRule(ctx, req)
		return applyResult{value: rule, err: err}

	case opUpdateReplicaStates:
		var args updateReplicasStatesArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return applyResult{err: err}
		}
		err := f.store.UpdateReplicasStates(ctx, args.RSEID, args.Updates)
		return applyResult{err: err}

	case opDeleteReplicas:
		var args deleteReplicasArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return applyResult{err: err}
		}
		err := f.store.DeleteReplicas(ctx, args.RSEID, args.Files)
		return applyResult{err: err}

	case opAddMessage:
		var args addMessageArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return applyResult{err: err}
		}
		err := f.store.AddMessage(ctx, args.EventType, args.Payload)
		return applyResult{err: err}

	default:
		return applyResult{err: fmt.Errorf("catalog fsm: unknown command %q", cmd.Op)}
	}
}

// catalogSnapshot is a point-in-time copy of every mutable entity,
// persisted the same way the ancestor repo's WarrenSnapshot is: encode
// as JSON, write to the sink.
type catalogSnapshot struct {
	DIDs          []types.DataIdentifier `json:"dids"`
	Subscriptions []types.Subscription   `json:"subscriptions"`
	Rules         []types.Rule           `json:"rules"`
	RSEs          []types.RSE            `json:"rses"`
}

func (f *catalogFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ctx := context.Background()
	dids := f.store.AllDIDs()
	subs, _ := f.store.ListSubscriptions(ctx, "", "")
	rules, _ := f.store.ListRules(ctx, RuleFilter{})
	rses, _ := f.store.ListRSEs(ctx)

	return &catalogSnapshot{DIDs: dids, Subscriptions: subs, Rules: rules, RSEs: rses}, nil
}

func (f *catalogFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var snap catalogSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("catalog fsm: decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range snap.DIDs {
		f.store.PutDID(d)
	}
	for _, s := range snap.Subscriptions {
		f.store.PutSubscription(s)
	}
	for _, r := range snap.RSEs {
		f.store.PutRSE(r)
	}
	return nil
}

func (s *catalogSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *catalogSnapshot) Release() {}
