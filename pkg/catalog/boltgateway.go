package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/lattice-dmcp/lattice/pkg/catalogerr"
	"github.com/lattice-dmcp/lattice/pkg/types"
)

var errBudgetSatisfied = errors.New("catalog: budget satisfied")

var (
	bucketDIDs          = []byte("dids")
	bucketSubscriptions = []byte("subscriptions")
	bucketRules         = []byte("rules")
	bucketRSEs          = []byte("rses")
	bucketRSELimits     = []byte("rse_limits")
	bucketRSEUsage      = []byte("rse_usage")
	bucketRSECounters   = []byte("rse_counters")
	bucketReplicas      = []byte("replicas")
	bucketMessages      = []byte("messages")
)

var allBuckets = [][]byte{
	bucketDIDs, bucketSubscriptions, bucketRules, bucketRSEs,
	bucketRSELimits, bucketRSEUsage, bucketRSECounters, bucketReplicas, bucketMessages,
}

// BoltGateway is the default single-process Gateway backing: one bbolt
// database, one bucket per entity, the same shape as the teacher's
// BoltStore (pkg/storage/boltdb.go in the ancestor repo).
type BoltGateway struct {
	db *bolt.DB
}

// OpenBoltGateway opens or creates a bbolt database at path and ensures
// every entity bucket exists.
func OpenBoltGateway(path string) (*BoltGateway, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltGateway{db: db}, nil
}

// Close closes the underlying database.
func (g *BoltGateway) Close() error { return g.db.Close() }

func didBoltKey(scope, name string) []byte { return []byte(scope + "\x00" + name) }

func (g *BoltGateway) ListNewDIDs(ctx context.Context, shard, totalShards, limit int) ([]types.DataIdentifier, error) {
	var out []types.DataIdentifier
	err := g.db.View(func(tx *bolt.Tx) error {
		var keys []string
		b := tx.Bucket(bucketDIDs)
		if err := b.ForEach(func(k, v []byte) error {
			keys = append(keys, string(k))
			return nil
		}); err != nil {
			return err
		}
		sort.Strings(keys)
		for _, k := range keys {
			if len(out) >= limit {
				break
			}
			var d types.DataIdentifier
			if err := json.Unmarshal(b.Get([]byte(k)), &d); err != nil {
				return err
			}
			if !d.IsNew {
				continue
			}
			if totalShards > 0 && didShard(d.Scope, d.Name, totalShards) != shard {
				continue
			}
			out = append(out, d)
		}
		return nil
	})
	return out, err
}

func (g *BoltGateway) GetMetadata(ctx context.Context, scope, name string) (types.DataIdentifier, error) {
	var d types.DataIdentifier
	err := g.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketDIDs).Get(didBoltKey(scope, name))
		if v == nil {
			return catalogerr.New(catalogerr.DataIdentifierNotFound, scope+":"+name)
		}
		return json.Unmarshal(v, &d)
	})
	return d, err
}

func (g *BoltGateway) PutDID(did types.DataIdentifier) error {
	return g.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(did)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDIDs).Put(didBoltKey(did.Scope, did.Name), data)
	})
}

func (g *BoltGateway) SetNewDIDsFlag(ctx context.Context, dids []DIDKey, isNew bool) error {
	return g.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDIDs)
		for _, k := range dids {
			key := didBoltKey(k.Scope, k.Name)
			v := b.Get(key)
			if v == nil {
				return catalogerr.New(catalogerr.DataIdentifierNotFound, k.Scope+":"+k.Name)
			}
			var d types.DataIdentifier
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			d.IsNew = isNew
			data, err := json.Marshal(d)
			if err != nil {
				return err
			}
			if err := b.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (g *BoltGateway) ListSubscriptions(ctx context.Context, account, name string) ([]types.Subscription, error) {
	var out []types.Subscription
	err := g.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSubscriptions).ForEach(func(k, v []byte) error {
			var s types.Subscription
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			if account != "" && s.Account != account {
				return nil
			}
			if name != "" && s.Name != name {
				return nil
			}
			out = append(out, s)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (g *BoltGateway) PutSubscription(sub types.Subscription) error {
	return g.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(sub)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSubscriptions).Put([]byte(sub.ID), data)
	})
}

func (g *BoltGateway) ListRules(ctx context.Context, filter RuleFilter) ([]types.Rule, error) {
	var out []types.Rule
	err := g.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRules).ForEach(func(k, v []byte) error {
			var r types.Rule
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if filter.SubscriptionID != "" && r.SubscriptionID != filter.SubscriptionID {
				return nil
			}
			if filter.Scope != "" && r.Scope != filter.Scope {
				return nil
			}
			if filter.Name != "" && r.Name != filter.Name {
				return nil
			}
			out = append(out, r)
			return nil
		})
	})
	return out, err
}

func (g *BoltGateway) AddRule(ctx context.Context, req AddRuleRequest) (types.Rule, error) {
	if req.Copies <= 0 {
		return types.Rule{}, catalogerr.New(catalogerr.InvalidReplicationRule, "copies must be positive")
	}
	if req.Lifetime == nil && req.Activity == "staging" {
		return types.Rule{}, catalogerr.New(catalogerr.StagingAreaRuleRequiresLifetime, req.Scope+":"+req.Name)
	}

	var rule types.Rule
	err := g.db.Update(func(tx *bolt.Tx) error {
		didBucket := tx.Bucket(bucketDIDs)
		if didBucket.Get(didBoltKey(req.Scope, req.Name)) == nil {
			return catalogerr.New(catalogerr.DataIdentifierNotFound, req.Scope+":"+req.Name)
		}

		key := ruleKey(req.SubscriptionID, req.Scope, req.Name, req.RSEExpression)
		rules := tx.Bucket(bucketRules)
		duplicate := false
		if err := rules.ForEach(func(k, v []byte) error {
			var r types.Rule
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if ruleKey(r.SubscriptionID, r.Scope, r.Name, r.RSEExpression) == key {
				duplicate = true
			}
			return nil
		}); err != nil {
			return err
		}
		if duplicate {
			return catalogerr.New(catalogerr.DuplicateRule, key)
		}

		rule = types.Rule{
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
		data, err := json.Marshal(rule)
		if err != nil {
			return err
		}
		return rules.Put([]byte(rule.ID), data)
	})
	if err != nil {
		return types.Rule{}, err
	}
	return rule, nil
}

func replicaBoltKey(scope, name string) []byte { return []byte(scope + "\x00" + name) }

func (g *BoltGateway) PutReplica(rseID string, replica types.Replica) error {
	return g.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketReplicas).CreateBucketIfNotExists([]byte(rseID))
		if err != nil {
			return err
		}
		data, err := json.Marshal(replica)
		if err != nil {
			return err
		}
		return b.Put(replicaBoltKey(replica.Scope, replica.Name), data)
	})
}

func (g *BoltGateway) ListUnlockedReplicas(ctx context.Context, rseID string, maxBytes *int64, limit *int, now time.Time) ([]types.Replica, error) {
	maxCount := 10000
	if limit != nil {
		maxCount = *limit
	}
	var out []types.Replica
	err := g.db.View(func(tx *bolt.Tx) error {
		rb := tx.Bucket(bucketReplicas).Bucket([]byte(rseID))
		if rb == nil {
			return nil
		}
		var collected int64
		return rb.ForEach(func(k, v []byte) error {
			if len(out) >= maxCount {
				return nil
			}
			var r types.Replica
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if !r.Reapable(now) {
				return nil
			}
			out = append(out, r)
			collected += r.Bytes
			if maxBytes != nil && collected >= *maxBytes {
				return errBudgetSatisfied
			}
			return nil
		})
	})
	if errors.Is(err, errBudgetSatisfied) {
		err = nil
	}
	return out, err
}

func (g *BoltGateway) UpdateReplicasStates(ctx context.Context, rseID string, updates []ReplicaStateUpdate) error {
	return g.db.Update(func(tx *bolt.Tx) error {
		rb := tx.Bucket(bucketReplicas).Bucket([]byte(rseID))
		if rb == nil {
			return catalogerr.New(catalogerr.RucioException, "unknown RSE "+rseID)
		}
		for _, u := range updates {
			key := replicaBoltKey(u.Scope, u.Name)
			v := rb.Get(key)
			if v == nil {
				return catalogerr.New(catalogerr.RucioException, "replica not found: "+u.Scope+":"+u.Name)
			}
			var r types.Replica
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			r.State = u.State
			data, err := json.Marshal(r)
			if err != nil {
				return err
			}
			if err := rb.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (g *BoltGateway) DeleteReplicas(ctx context.Context, rseID string, files []ReplicaKey) error {
	return g.db.Update(func(tx *bolt.Tx) error {
		rb := tx.Bucket(bucketReplicas).Bucket([]byte(rseID))
		if rb == nil {
			return nil
		}
		for _, f := range files {
			if err := rb.Delete(replicaBoltKey(f.Scope, f.Name)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (g *BoltGateway) GetRSELimits(ctx context.Context, rseID string) (types.RSELimits, error) {
	var limits types.RSELimits
	err := g.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRSELimits).Get([]byte(rseID))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &limits)
	})
	return limits, err
}

func (g *BoltGateway) PutRSELimits(rseID string, limits types.RSELimits) error {
	return g.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(limits)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRSELimits).Put([]byte(rseID), data)
	})
}

func rseUsageBoltKey(rseID, source string) []byte { return []byte(rseID + "\x00" + source) }

func (g *BoltGateway) GetRSEUsage(ctx context.Context, rseID, source string) (types.RSEUsage, error) {
	var usage types.RSEUsage
	err := g.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRSEUsage).Get(rseUsageBoltKey(rseID, source))
		if v == nil {
			return catalogerr.New(catalogerr.RucioException, "no usage data for "+rseID+"/"+source)
		}
		return json.Unmarshal(v, &usage)
	})
	return usage, err
}

func (g *BoltGateway) PutRSEUsage(rseID string, usage types.RSEUsage) error {
	return g.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(usage)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRSEUsage).Put(rseUsageBoltKey(rseID, usage.Source), data)
	})
}

func (g *BoltGateway) GetRSECounter(ctx context.Context, rseID string) (types.RSECounter, error) {
	var counter types.RSECounter
	err := g.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRSECounters).Get([]byte(rseID))
		if v == nil {
			return catalogerr.New(catalogerr.RucioException, "no counter for "+rseID)
		}
		return json.Unmarshal(v, &counter)
	})
	return counter, err
}

func (g *BoltGateway) PutRSECounter(rseID string, counter types.RSECounter) error {
	return g.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(counter)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRSECounters).Put([]byte(rseID), data)
	})
}

func (g *BoltGateway) GetRSEProtocols(ctx context.Context, rseID string) ([]types.Protocol, error) {
	rse, err := g.getRSE(rseID)
	if err != nil {
		return nil, err
	}
	return rse.Protocols, nil
}

func (g *BoltGateway) getRSE(rseID string) (types.RSE, error) {
	var rse types.RSE
	err := g.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRSEs).Get([]byte(rseID))
		if v == nil {
			return catalogerr.New(catalogerr.RucioException, "unknown RSE "+rseID)
		}
		return json.Unmarshal(v, &rse)
	})
	return rse, err
}

func (g *BoltGateway) ListRSEs(ctx context.Context) ([]types.RSE, error) {
	var out []types.RSE
	err := g.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRSEs).ForEach(func(k, v []byte) error {
			var r types.RSE
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (g *BoltGateway) PutRSE(rse types.RSE) error {
	return g.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(rse)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRSEs).Put([]byte(rse.ID), data)
	})
}

func (g *BoltGateway) AddMessage(ctx context.Context, eventType types.EventType, payload map[string]any) error {
	return g.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMessages)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		msg := types.Message{
			ID:        uuid.NewString(),
			EventType: eventType,
			Payload:   payload,
			CreatedAt: time.Now().UTC(),
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
}

func itob(v uint64) []byte {
	return []byte(fmt.Sprintf("%020d", v))
}
