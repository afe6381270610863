package catalog

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lattice-dmcp/lattice/pkg/catalogerr"
	"github.com/lattice-dmcp/lattice/pkg/types"
)

// MemGateway is an in-memory Gateway: the reference implementation used
// directly by single-process daemons with no durability requirement,
// and as the store the raft FSM (RaftGateway) applies commands to.
type MemGateway struct {
	mu sync.Mutex

	dids          map[DIDKey]*types.DataIdentifier
	subscriptions map[string]*types.Subscription
	rules         []*types.Rule
	ruleKeys      map[string]bool // "subscriptionID\x00scope\x00name\x00rseExpr"
	rses          map[string]*types.RSE
	limits        map[string]types.RSELimits
	usage         map[string]map[string]types.RSEUsage
	counters      map[string]types.RSECounter
	replicas      map[string][]*types.Replica // keyed by RSE id
	messages      []types.Message
}

// NewMemGateway builds an empty MemGateway.
func NewMemGateway() *MemGateway {
	return &MemGateway{
		dids:          make(map[DIDKey]*types.DataIdentifier),
		subscriptions: make(map[string]*types.Subscription),
		ruleKeys:      make(map[string]bool),
		rses:          make(map[string]*types.RSE),
		limits:        make(map[string]types.RSELimits),
		usage:         make(map[string]map[string]types.RSEUsage),
		counters:      make(map[string]types.RSECounter),
		replicas:      make(map[string][]*types.Replica),
	}
}

// --- Seeding helpers (used by tests and by daemon bootstrapping from a
// config-declared topology; not part of the Gateway interface). ---

func (g *MemGateway) PutDID(did types.DataIdentifier) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := did
	g.dids[DIDKey{Scope: d.Scope, Name: d.Name}] = &d
}

func (g *MemGateway) PutSubscription(sub types.Subscription) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := sub
	g.subscriptions[s.ID] = &s
}

func (g *MemGateway) PutRSE(rse types.RSE) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := rse
	g.rses[r.ID] = &r
}

func (g *MemGateway) PutRSELimits(rseID string, limits types.RSELimits) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limits[rseID] = limits
}

func (g *MemGateway) PutRSEUsage(rseID string, usage types.RSEUsage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.usage[rseID] == nil {
		g.usage[rseID] = make(map[string]types.RSEUsage)
	}
	g.usage[rseID][usage.Source] = usage
}

func (g *MemGateway) PutRSECounter(rseID string, counter types.RSECounter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters[rseID] = counter
}

func (g *MemGateway) PutReplica(rseID string, replica types.Replica) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := replica
	g.replicas[rseID] = append(g.replicas[rseID], &r)
}

// --- Gateway implementation ---

func didShard(scope, name string, totalShards int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(scope + ":" + name))
	return int(h.Sum32() % uint32(totalShards))
}

func (g *MemGateway) ListNewDIDs(ctx context.Context, shard, totalShards, limit int) ([]types.DataIdentifier, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	keys := make([]DIDKey, 0, len(g.dids))
	for k := range g.dids {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Scope != keys[j].Scope {
			return keys[i].Scope < keys[j].Scope
		}
		return keys[i].Name < keys[j].Name
	})

	var out []types.DataIdentifier
	for _, k := range keys {
		if len(out) >= limit {
			break
		}
		d := g.dids[k]
		if !d.IsNew {
			continue
		}
		if totalShards > 0 && didShard(k.Scope, k.Name, totalShards) != shard {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (g *MemGateway) GetMetadata(ctx context.Context, scope, name string) (types.DataIdentifier, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.dids[DIDKey{Scope: scope, Name: name}]
	if !ok {
		return types.DataIdentifier{}, catalogerr.New(catalogerr.DataIdentifierNotFound, scope+":"+name)
	}
	return *d, nil
}

func (g *MemGateway) SetNewDIDsFlag(ctx context.Context, dids []DIDKey, isNew bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, k := range dids {
		d, ok := g.dids[k]
		if !ok {
			return catalogerr.New(catalogerr.DataIdentifierNotFound, k.Scope+":"+k.Name)
		}
		d.IsNew = isNew
	}
	return nil
}

func (g *MemGateway) ListSubscriptions(ctx context.Context, account, name string) ([]types.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []types.Subscription
	for _, s := range g.subscriptions {
		if account != "" && s.Account != account {
			continue
		}
		if name != "" && s.Name != name {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *MemGateway) ListRules(ctx context.Context, filter RuleFilter) ([]types.Rule, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []types.Rule
	for _, r := range g.rules {
		if filter.SubscriptionID != "" && r.SubscriptionID != filter.SubscriptionID {
			continue
		}
		if filter.Scope != "" && r.Scope != filter.Scope {
			continue
		}
		if filter.Name != "" && r.Name != filter.Name {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func ruleKey(subscriptionID, scope, name, rseExpression string) string {
	return subscriptionID + "\x00" + scope + "\x00" + name + "\x00" + rseExpression
}

func (g *MemGateway) AddRule(ctx context.Context, req AddRuleRequest) (types.Rule, error) {
	if req.Copies <= 0 {
		return types.Rule{}, catalogerr.New(catalogerr.InvalidReplicationRule, "copies must be positive")
	}
	if req.Lifetime == nil && req.Activity == "staging" {
		return types.Rule{}, catalogerr.New(catalogerr.StagingAreaRuleRequiresLifetime, req.Scope+":"+req.Name)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.dids[DIDKey{Scope: req.Scope, Name: req.Name}]; !ok {
		return types.Rule{}, catalogerr.New(catalogerr.DataIdentifierNotFound, req.Scope+":"+req.Name)
	}

	key := ruleKey(req.SubscriptionID, req.Scope, req.Name, req.RSEExpression)
	if g.ruleKeys[key] {
		return types.Rule{}, catalogerr.New(catalogerr.DuplicateRule, key)
	}

	rule := types.Rule{
		ID:                      uuid.NewString(),
		SubscriptionID:          req.SubscriptionID,
		Scope:                   req.Scope,
		Name:                    req.Name,
		Account:                 req.Account,
		Copies:                  req.Copies,
		RSEExpression:           req.RSEExpression,
		Grouping:                req.Grouping,
		Lifetime:                req.Lifetime,
		Weight:                  req.Weight,
		Locked:                  req.Locked,
		SourceReplicaExpression: req.SourceReplicaExpression,
		Activity:                req.Activity,
		PurgeReplicas:           req.PurgeReplicas,
		IgnoreAvailability:      req.IgnoreAvailability,
		Comment:                 req.Comment,
		CreatedAt:               time.Now().UTC(),
	}
	g.rules = append(g.rules, &rule)
	g.ruleKeys[key] = true
	return rule, nil
}

func (g *MemGateway) ListUnlockedReplicas(ctx context.Context, rseID string, maxBytes *int64, limit *int, now time.Time) ([]types.Replica, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	maxCount := 10000
	if limit != nil {
		maxCount = *limit
	}

	var out []types.Replica
	var collected int64
	for _, r := range g.replicas[rseID] {
		if len(out) >= maxCount {
			break
		}
		if !r.Reapable(now) {
			continue
		}
		out = append(out, *r)
		collected += r.Bytes
		if maxBytes != nil && collected >= *maxBytes {
			break
		}
	}
	return out, nil
}

func (g *MemGateway) UpdateReplicasStates(ctx context.Context, rseID string, updates []ReplicaStateUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	index := make(map[ReplicaKey]*types.Replica, len(updates))
	for _, r := range g.replicas[rseID] {
		index[ReplicaKey{Scope: r.Scope, Name: r.Name}] = r
	}
	for _, u := range updates {
		r, ok := index[ReplicaKey{Scope: u.Scope, Name: u.Name}]
		if !ok {
			return catalogerr.New(catalogerr.RucioException, "replica not found: "+u.Scope+":"+u.Name)
		}
		r.State = u.State
	}
	return nil
}

func (g *MemGateway) DeleteReplicas(ctx context.Context, rseID string, files []ReplicaKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	toDelete := make(map[ReplicaKey]bool, len(files))
	for _, f := range files {
		toDelete[f] = true
	}
	remaining := g.replicas[rseID][:0]
	for _, r := range g.replicas[rseID] {
		if toDelete[ReplicaKey{Scope: r.Scope, Name: r.Name}] {
			continue
		}
		remaining = append(remaining, r)
	}
	g.replicas[rseID] = remaining
	return nil
}

func (g *MemGateway) GetRSELimits(ctx context.Context, rseID string) (types.RSELimits, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limits[rseID], nil
}

func (g *MemGateway) GetRSEUsage(ctx context.Context, rseID, source string) (types.RSEUsage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.usage[rseID][source]
	if !ok {
		return types.RSEUsage{}, catalogerr.New(catalogerr.RucioException, "no usage data for "+rseID+"/"+source)
	}
	return u, nil
}

func (g *MemGateway) GetRSECounter(ctx context.Context, rseID string) (types.RSECounter, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.counters[rseID]
	if !ok {
		return types.RSECounter{}, catalogerr.New(catalogerr.RucioException, "no counter for "+rseID)
	}
	return c, nil
}

func (g *MemGateway) GetRSEProtocols(ctx context.Context, rseID string) ([]types.Protocol, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rse, ok := g.rses[rseID]
	if !ok {
		return nil, catalogerr.New(catalogerr.RucioException, "unknown RSE "+rseID)
	}
	return rse.Protocols, nil
}

func (g *MemGateway) ListRSEs(ctx context.Context) ([]types.RSE, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]types.RSE, 0, len(g.rses))
	for _, r := range g.rses {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (g *MemGateway) AddMessage(ctx context.Context, eventType types.EventType, payload map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.messages = append(g.messages, types.Message{
		ID:        uuid.NewString(),
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// AllDIDs returns every known DID regardless of its IsNew flag, for use
// by the raft FSM's Snapshot/Restore cycle.
func (g *MemGateway) AllDIDs() []types.DataIdentifier {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]types.DataIdentifier, 0, len(g.dids))
	for _, d := range g.dids {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope != out[j].Scope {
			return out[i].Scope < out[j].Scope
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Messages returns a snapshot of all appended messages, newest last. It
// exists for tests and for callers that want to read back the messages
// appended through AddMessage.
func (g *MemGateway) Messages() []types.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]types.Message, len(g.messages))
	copy(out, g.messages)
	return out
}
