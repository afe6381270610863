package transmogrifier

import (
	"context"
	"strings"

	"github.com/lattice-dmcp/lattice/pkg/catalog"
	"github.com/lattice-dmcp/lattice/pkg/catalogerr"
	"github.com/lattice-dmcp/lattice/pkg/lmetrics"
	"github.com/lattice-dmcp/lattice/pkg/types"
)

// processDID handles one DID of the iteration's shard and returns the
// DIDKeys that reached a terminal state (success or ignored) and should
// therefore be flagged not-new. FILEs are counted as processed without
// any subscription evaluation (spec §4.6 step 3).
func (w *Worker) processDID(ctx context.Context, did types.DataIdentifier, subs []types.Subscription, allRSEs []types.RSE) []catalog.DIDKey {
	key := catalog.DIDKey{Scope: did.Scope, Name: did.Name}

	if did.Type == types.DIDTypeFile {
		lmetrics.DIDProcessed.WithLabelValues("file").Inc()
		lmetrics.DIDProcessedTotal.Inc()
		return []catalog.DIDKey{key}
	}

	meta, err := w.gateway.GetMetadata(ctx, did.Scope, did.Name)
	if err != nil {
		if catalogerr.KindOf(err) == catalogerr.DataIdentifierNotFound {
			w.logger.Warn().Str("scope", did.Scope).Str("name", did.Name).Msg("DID vanished before metadata lookup; treating as processed")
			return []catalog.DIDKey{key}
		}
		w.logger.Error().Err(err).Str("scope", did.Scope).Str("name", did.Name).Msg("metadata lookup failed")
		return nil
	}

	if !meta.Hidden {
		for _, sub := range subs {
			if !isMatching(sub.Filter, did, meta) {
				continue
			}
			w.applySubscription(ctx, sub, did, allRSEs)
		}
	}

	lmetrics.DIDProcessed.WithLabelValues(strings.ToLower(string(did.Type))).Inc()
	lmetrics.DIDProcessedTotal.Inc()
	return []catalog.DIDKey{key}
}
