package transmogrifier

import "github.com/lattice-dmcp/lattice/pkg/types"

// NormalizeBool coerces a possibly-stringy boolean field from a raw
// rule-template document (spec §4.6 step 6): the literal string "True"
// is true, everything else is false. Downstream code sees a typed bool
// only — pkg/types.RuleTemplate never carries an untyped value.
func NormalizeBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "True"
	default:
		return false
	}
}

// RawRuleTemplate is the shape a rule template takes before the
// boundary normalization of spec §4.6 step 6 is applied: locked and
// purge_replicas may arrive as a bool or as a loosely-cased string,
// matching the wire format subscription-authoring tools outside this
// module's scope still emit.
type RawRuleTemplate struct {
	Copies                  int
	RSEExpression           string
	Grouping                types.Grouping
	Lifetime                *int64
	Weight                  string
	Locked                  any
	SourceReplicaExpression string
	Activity                string
	PurgeReplicas           any
	IgnoreAvailability      bool
}

// Normalize converts a RawRuleTemplate into the typed types.RuleTemplate
// the rest of the module consumes.
func (r RawRuleTemplate) Normalize() types.RuleTemplate {
	return types.RuleTemplate{
		Copies:                  r.Copies,
		RSEExpression:           r.RSEExpression,
		Grouping:                r.Grouping,
		Lifetime:                r.Lifetime,
		Weight:                  r.Weight,
		Locked:                  NormalizeBool(r.Locked),
		SourceReplicaExpression: r.SourceReplicaExpression,
		Activity:                r.Activity,
		PurgeReplicas:           NormalizeBool(r.PurgeReplicas),
		IgnoreAvailability:      r.IgnoreAvailability,
	}
}
