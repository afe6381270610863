package transmogrifier

import (
	"context"

	"github.com/lattice-dmcp/lattice/pkg/catalog"
	"github.com/lattice-dmcp/lattice/pkg/catalogerr"
	"github.com/lattice-dmcp/lattice/pkg/lmetrics"
	"github.com/lattice-dmcp/lattice/pkg/rseexpr"
	"github.com/lattice-dmcp/lattice/pkg/selector"
	"github.com/lattice-dmcp/lattice/pkg/types"
)

// applySubscription materializes every rule template of sub against did
// (spec §4.6 step 4), branching on the subscription's split_rule filter
// key.
func (w *Worker) applySubscription(ctx context.Context, sub types.Subscription, did types.DataIdentifier, allRSEs []types.RSE) {
	for _, tmpl := range sub.ReplicationRules {
		if sub.Filter.SplitRule {
			w.applySplitRule(ctx, sub, did, tmpl, allRSEs)
		} else {
			w.applyWholeRule(ctx, sub, did, tmpl)
		}
	}
}

func (w *Worker) applyWholeRule(ctx context.Context, sub types.Subscription, did types.DataIdentifier, tmpl types.RuleTemplate) {
	req := w.buildRequest(sub, did, tmpl, tmpl.RSEExpression, tmpl.Copies)
	if err := w.attemptAddRule(ctx, req); err != nil {
		w.logger.Warn().Err(err).Str("scope", did.Scope).Str("name", did.Name).Str("subscription_id", sub.ID).Msg("rule creation did not succeed")
	}
}

// applySplitRule implements spec §4.6 step 4's split_rule branch: it
// enumerates the template's RSE set, reuses any already-placed RSEs
// still within that set as preferred targets, and selects only the
// shortfall, inserting one single-RSE rule per selected RSE.
func (w *Worker) applySplitRule(ctx context.Context, sub types.Subscription, did types.DataIdentifier, tmpl types.RuleTemplate, allRSEs []types.RSE) {
	candidates, err := rseexpr.Evaluate(tmpl.RSEExpression, allRSEs)
	if err != nil {
		w.logger.Warn().Err(err).Str("rse_expression", tmpl.RSEExpression).Msg("invalid rse_expression in rule template")
		lmetrics.AddNewRuleErrorType.WithLabelValues(catalogerr.InvalidRSEExpression.String()).Inc()
		return
	}

	existingRules, err := w.gateway.ListRules(ctx, catalog.RuleFilter{SubscriptionID: sub.ID, Scope: did.Scope, Name: did.Name})
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to list existing rules")
		return
	}

	candidateIDs := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		candidateIDs[c.ID] = true
	}

	seen := make(map[string]bool)
	var preferred []string
	for _, er := range existingRules {
		erRSEs, err := rseexpr.Evaluate(er.RSEExpression, allRSEs)
		if err != nil {
			continue
		}
		for _, rse := range erRSEs {
			if candidateIDs[rse.ID] && !seen[rse.ID] {
				seen[rse.ID] = true
				preferred = append(preferred, rse.ID)
			}
		}
	}

	if len(preferred) >= tmpl.Copies {
		return
	}
	need := tmpl.Copies - len(preferred)

	selections, err := selector.Select(w.cfg.RNG, candidates, need, preferred, w.cfg.Quota)
	if err != nil {
		w.logger.Warn().Err(err).Str("scope", did.Scope).Str("name", did.Name).Msg("rse selection failed for split rule")
		lmetrics.AddNewRuleErrorType.WithLabelValues(catalogerr.KindOf(err).String()).Inc()
		return
	}

	rseByID := make(map[string]types.RSE, len(allRSEs))
	for _, r := range allRSEs {
		rseByID[r.ID] = r
	}

	newRules := 0
	for _, sel := range selections {
		if sel.Status != types.RSEStatusNew {
			continue
		}
		if newRules >= need {
			break
		}
		rse, ok := rseByID[sel.RSEID]
		if !ok {
			continue
		}
		req := w.buildRequest(sub, did, tmpl, rse.Name, 1)
		if err := w.attemptAddRule(ctx, req); err != nil {
			w.logger.Warn().Err(err).Str("rse", rse.Name).Str("scope", did.Scope).Str("name", did.Name).Msg("split-rule placement did not succeed")
			continue
		}
		newRules++
	}
}

// attemptAddRule drives the retry policy of spec §4.6 step 5 /
// §7: up to cfg.MaxAttempts retryable attempts, terminal-success errors
// (e.g. DuplicateRule) treated as success, terminal-failure errors
// returned immediately, and unclassified errors logged and counted
// without consuming an attempt slot.
func (w *Worker) attemptAddRule(ctx context.Context, req catalog.AddRuleRequest) error {
	attempts := 0
	for attempts < w.cfg.MaxAttempts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := w.gateway.AddRule(ctx, req)
		if err == nil {
			w.recordRuleSuccess(req)
			return nil
		}

		switch catalogerr.Classify(err) {
		case catalogerr.TerminalSuccess:
			w.recordRuleSuccess(req)
			return nil
		case catalogerr.TerminalFailure:
			lmetrics.AddNewRuleErrorType.WithLabelValues(catalogerr.KindOf(err).String()).Inc()
			return err
		case catalogerr.Retryable:
			lmetrics.AddNewRuleErrorType.WithLabelValues(catalogerr.KindOf(err).String()).Inc()
			attempts++
		default:
			lmetrics.AddNewRuleErrorType.WithLabelValues("unknown").Inc()
			w.logger.Error().Err(err).Msg("unclassified error creating rule")
		}
	}
	return catalogerr.New(catalogerr.ReplicationRuleCreationTemporaryFailed, "exhausted retry attempts")
}

func (w *Worker) recordRuleSuccess(req catalog.AddRuleRequest) {
	lmetrics.AddNewRuleDone.Inc()
	lmetrics.AddNewRuleActivity.WithLabelValues(req.Activity).Inc()
}

// buildRequest assembles the AddRule input for one template invocation,
// validating the activity field against the configured schema and
// falling back to "default" on failure (spec §4.6 step 6).
func (w *Worker) buildRequest(sub types.Subscription, did types.DataIdentifier, tmpl types.RuleTemplate, rseExpression string, copies int) catalog.AddRuleRequest {
	activity := tmpl.Activity
	if !w.validActivity(activity) {
		lmetrics.AddNewRuleErrorType.WithLabelValues(catalogerr.InputValidationError.String()).Inc()
		activity = "default"
	}
	return catalog.AddRuleRequest{
		SubscriptionID:          sub.ID,
		Scope:                   did.Scope,
		Name:                    did.Name,
		Account:                 sub.Account,
		Copies:                  copies,
		RSEExpression:           rseExpression,
		Grouping:                tmpl.Grouping,
		Lifetime:                tmpl.Lifetime,
		Weight:                  tmpl.Weight,
		Locked:                  tmpl.Locked,
		SourceReplicaExpression: tmpl.SourceReplicaExpression,
		Activity:                activity,
		PurgeReplicas:           tmpl.PurgeReplicas,
		IgnoreAvailability:      tmpl.IgnoreAvailability,
		Comment:                 sub.Comments,
	}
}

func (w *Worker) validActivity(activity string) bool {
	if len(w.cfg.AllowedActivities) == 0 {
		return true
	}
	return w.cfg.AllowedActivities[activity]
}
