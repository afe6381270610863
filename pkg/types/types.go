package types

import "time"

// DIDType identifies the level of a data identifier in the naming hierarchy.
type DIDType string

const (
	DIDTypeFile      DIDType = "FILE"
	DIDTypeDataset   DIDType = "DATASET"
	DIDTypeContainer DIDType = "CONTAINER"
)

// DataIdentifier is the (scope, name) pair every file, dataset or
// container is addressed by. (scope, name) is unique.
type DataIdentifier struct {
	Scope    string
	Name     string
	Type     DIDType
	Hidden   bool
	Metadata map[string]any
	IsNew    bool
}

func (d *DataIdentifier) String() string {
	return d.Scope + ":" + d.Name
}

// SubscriptionState controls whether a subscription is evaluated by the
// transmogrifier.
type SubscriptionState string

const (
	SubscriptionStateActive   SubscriptionState = "ACTIVE"
	SubscriptionStateInactive SubscriptionState = "INACTIVE"
	SubscriptionStateUpdated  SubscriptionState = "UPDATED"
	SubscriptionStateBroken   SubscriptionState = "BROKEN"
)

// Evaluable reports whether subscriptions in this state are matched
// against new DIDs.
func (s SubscriptionState) Evaluable() bool {
	return s == SubscriptionStateActive || s == SubscriptionStateUpdated
}

// Filter is the structured document a subscription matches DIDs against.
// Metadata holds one regex (string) or a list of regexes ([]string) per
// DID-metadata key being filtered on.
type Filter struct {
	Pattern   string
	Scope     []string
	SplitRule bool
	Metadata  map[string]any
}

// Grouping controls how files of one dataset co-locate across RSEs.
type Grouping string

const (
	GroupingAll     Grouping = "ALL"
	GroupingDataset Grouping = "DATASET"
	GroupingNone    Grouping = "NONE"
)

// RuleTemplate is one entry of a subscription's replication_rules list.
type RuleTemplate struct {
	Copies                  int
	RSEExpression           string
	Grouping                Grouping
	Lifetime                *int64
	Weight                  string
	Locked                  bool
	SourceReplicaExpression string
	Activity                string
	PurgeReplicas           bool
	IgnoreAvailability      bool
}

// Subscription is a standing placement policy that generates rules for
// DIDs matching Filter.
type Subscription struct {
	ID               string
	Account          string
	Name             string
	State            SubscriptionState
	Filter           Filter
	ReplicationRules []RuleTemplate
	Comments         string
}

// Rule is the materialized form of a RuleTemplate bound to a DID. A rule
// never has Copies == 0.
type Rule struct {
	ID                      string
	SubscriptionID          string
	ChildRuleID             string
	Scope                   string
	Name                    string
	Account                 string
	Copies                  int
	RSEExpression           string
	Grouping                Grouping
	Lifetime                *int64
	Weight                  string
	Locked                  bool
	SourceReplicaExpression string
	Activity                string
	PurgeReplicas           bool
	IgnoreAvailability      bool
	Comment                 string
	CreatedAt               time.Time
}

// Protocol describes one transfer endpoint offered by an RSE, in the
// order the RSE prefers them to be tried.
type Protocol struct {
	Scheme             string
	Impl               string
	Hostname           string
	Port               int
	Prefix             string
	ExtendedAttributes map[string]any
}

// RSELimits bounds an RSE's free-space and in-flight-deletion behavior.
type RSELimits struct {
	MinFreeSpace         *int64
	MaxBeingDeletedFiles *int
}

// RSEUsage reports one usage source's accounting for an RSE (e.g. "srm").
type RSEUsage struct {
	Source string
	Total  int64
	Used   int64
}

// RSECounter is the catalog's own running tally of bytes used on an RSE.
type RSECounter struct {
	Bytes int64
}

// RSE is a named storage endpoint with protocols, attributes and limits.
type RSE struct {
	ID                 string
	Name               string
	Attributes         map[string]any
	Protocols          []Protocol
	Limits             RSELimits
	AvailabilityWrite  bool
	AvailabilityDelete bool
	Blacklisted        bool
	Weight             *float64
}

// ReplicaState is the lifecycle state of one (scope, name) copy on one RSE.
type ReplicaState string

const (
	ReplicaStateAvailable            ReplicaState = "AVAILABLE"
	ReplicaStateUnavailable          ReplicaState = "UNAVAILABLE"
	ReplicaStateCopying              ReplicaState = "COPYING"
	ReplicaStateBeingDeleted         ReplicaState = "BEING_DELETED"
	ReplicaStateBad                  ReplicaState = "BAD"
	ReplicaStateSource               ReplicaState = "SOURCE"
	ReplicaStateTemporaryUnavailable ReplicaState = "TEMPORARY_UNAVAILABLE"
)

// Replica is one copy of a DID on one RSE.
type Replica struct {
	Scope       string
	Name        string
	RSEID       string
	Bytes       int64
	State       ReplicaState
	Tombstone   *time.Time
	LockedCount int
	Path        string
}

// Unlocked reports whether the replica may be selected for deletion.
func (r *Replica) Unlocked() bool { return r.LockedCount == 0 }

// Reapable reports whether the replica is unlocked and its tombstone has
// expired as of now.
func (r *Replica) Reapable(now time.Time) bool {
	return r.Unlocked() && r.Tombstone != nil && !r.Tombstone.After(now)
}

// EventType enumerates the outbox message kinds the core emits.
type EventType string

const (
	EventDeletionPlanned EventType = "deletion-planned"
	EventDeletionDone    EventType = "deletion-done"
	EventDeletionFailed  EventType = "deletion-failed"
)

// Message is one append-only outbox entry.
type Message struct {
	ID        string
	EventType EventType
	Payload   map[string]any
	CreatedAt time.Time
}

// Heartbeat records that one worker thread of one executable was alive
// as of UpdatedAt.
type Heartbeat struct {
	Executable string
	Hostname   string
	PID        int
	ThreadID   int64
	UpdatedAt  time.Time
}

// Assignment is the derived projection handed to a worker on each Live call.
type Assignment struct {
	AssignedShard int
	TotalShards   int
}

// RSEStatus distinguishes preferred reuse from fresh placement in a
// selector result.
type RSEStatus string

const (
	RSEStatusNew      RSEStatus = "NEW"
	RSEStatusExisting RSEStatus = "EXISTING"
)

// RSESelection is one chosen placement target.
type RSESelection struct {
	RSEID  string
	Status RSEStatus
}
