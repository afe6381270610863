package reaper

import (
	"context"
	"time"

	"github.com/lattice-dmcp/lattice/pkg/catalog"
	"github.com/lattice-dmcp/lattice/pkg/catalogerr"
	"github.com/lattice-dmcp/lattice/pkg/lmetrics"
	"github.com/lattice-dmcp/lattice/pkg/outbox"
	"github.com/lattice-dmcp/lattice/pkg/protocol"
	"github.com/lattice-dmcp/lattice/pkg/types"
)

// processRSE implements one RSE iteration of spec §4.7 step 1.
func (w *Worker) processRSE(ctx context.Context, rseID string) error {
	rses, err := w.gateway.ListRSEs(ctx)
	if err != nil {
		return err
	}
	var rse *types.RSE
	for i := range rses {
		if rses[i].ID == rseID {
			rse = &rses[i]
			break
		}
	}
	if rse == nil {
		w.logger.Warn().Str("rse", rseID).Msg("assigned RSE no longer exists in catalog")
		return nil
	}
	if !rse.AvailabilityDelete {
		return nil
	}

	protocols, err := w.gateway.GetRSEProtocols(ctx, rseID)
	if err != nil {
		return err
	}
	rse.Protocols = protocols

	scheme := w.cfg.Scheme
	if scheme == "" {
		if len(protocols) == 0 {
			w.logger.Warn().Str("rse", rseID).Msg("RSE offers no deletion protocol")
			return nil
		}
		scheme = protocols[0].Scheme
	}

	if reachable := w.probeReachability(ctx, *rse, scheme); !reachable {
		lmetrics.ReaperRSEUnreachable.WithLabelValues(rseID).Inc()
		w.logger.Warn().Str("rse", rseID).Str("scheme", scheme).Msg("RSE endpoint unreachable, skipping this pass")
		return nil
	}

	driver, err := w.drivers.Resolve(*rse, scheme)
	if err != nil {
		return err
	}

	var budgetBytes *int64
	var budgetLimit *int
	if !w.cfg.Greedy {
		b := computeBudget(ctx, w.gateway, rseID, w.cfg.UsageSource)
		budgetBytes = b.NeededFreeSpace
		budgetLimit = b.MaxBeingDeletedFiles
	}

	listStart := time.Now()
	replicas, err := w.gateway.ListUnlockedReplicas(ctx, rseID, budgetBytes, budgetLimit, time.Now())
	lmetrics.ReaperListUnlockedReplicasDuration.Observe(time.Since(listStart).Seconds())
	if err != nil {
		return err
	}

	for _, chunk := range chunkReplicas(replicas, w.cfg.ChunkSize) {
		if ctx.Err() != nil {
			return nil
		}
		w.processChunk(ctx, *rse, scheme, driver, chunk)
	}
	return nil
}

func (w *Worker) probeReachability(ctx context.Context, rse types.RSE, scheme string) bool {
	for _, p := range rse.Protocols {
		if p.Scheme == scheme {
			return w.prober.Check(ctx, p.Hostname, p.Port).Reachable
		}
	}
	return true
}

func chunkReplicas(replicas []types.Replica, size int) [][]types.Replica {
	if len(replicas) == 0 {
		return nil
	}
	var out [][]types.Replica
	for i := 0; i < len(replicas); i += size {
		end := i + size
		if end > len(replicas) {
			end = len(replicas)
		}
		out = append(out, replicas[i:end])
	}
	return out
}

// processChunk implements spec §4.7 step 1's inner chunk loop (a-e):
// transition the chunk to BEING_DELETED, plan each deletion, connect
// once and delete each replica, close, then finalize the catalog
// removal of whatever actually succeeded.
func (w *Worker) processChunk(ctx context.Context, rse types.RSE, scheme string, driver protocol.Driver, chunk []types.Replica) {
	updates := make([]catalog.ReplicaStateUpdate, len(chunk))
	for i, r := range chunk {
		updates[i] = catalog.ReplicaStateUpdate{Scope: r.Scope, Name: r.Name, State: types.ReplicaStateBeingDeleted}
	}
	if err := w.gateway.UpdateReplicasStates(ctx, rse.ID, updates); err != nil {
		w.logger.Error().Err(err).Str("rse", rse.ID).Msg("failed to transition chunk to BEING_DELETED")
		return
	}
	lmetrics.ReaperDeletionBeingDeleted.Add(float64(len(chunk)))

	lfns := make([]protocol.LFN, len(chunk))
	for i, r := range chunk {
		lfns[i] = protocol.LFN{Scope: r.Scope, Name: r.Name, Path: r.Path}
	}
	pfns := driver.LFNs2PFNs(lfns)
	for _, r := range chunk {
		pfn := pfns[r.Scope+":"+r.Name]
		w.emit(ctx, outbox.DeletionPlanned(r.Scope, r.Name, r.Bytes, string(pfn), rse.ID))
	}

	// deleted is guaranteed non-nil before the connect/delete/close
	// sequence so that DeleteReplicas always receives a valid (possibly
	// empty) list even if Connect itself fails.
	deleted := make([]catalog.ReplicaKey, 0, len(chunk))

	if err := driver.Connect(ctx); err != nil {
		w.logger.Error().Err(err).Str("rse", rse.ID).Msg("failed to connect storage driver; chunk left BEING_DELETED")
	} else {
		for _, r := range chunk {
			pfn := pfns[r.Scope+":"+r.Name]
			start := time.Now()
			err := driver.Delete(ctx, pfn)
			duration := time.Since(start).Seconds()
			lmetrics.ReaperDeleteDuration.WithLabelValues(scheme, rse.ID).Observe(duration)

			switch {
			case err == nil:
				deleted = append(deleted, catalog.ReplicaKey{Scope: r.Scope, Name: r.Name})
				lmetrics.ReaperDeletionDone.Inc()
				w.emit(ctx, outbox.DeletionDone(r.Scope, r.Name, rse.ID, r.Bytes, string(pfn), duration))
			case catalogerr.KindOf(err) == catalogerr.SourceNotFound:
				lmetrics.ReaperDeletionFailed.WithLabelValues("not found (already deleted?)").Inc()
				w.emit(ctx, outbox.DeletionFailed(r.Scope, r.Name, rse.ID, r.Bytes, string(pfn), "not found (already deleted?)"))
			case catalogerr.KindOf(err) == catalogerr.ServiceUnavailable:
				lmetrics.ReaperDeletionFailed.WithLabelValues(err.Error()).Inc()
				w.emit(ctx, outbox.DeletionFailed(r.Scope, r.Name, rse.ID, r.Bytes, string(pfn), err.Error()))
			default:
				w.logger.Error().Err(err).Str("scope", r.Scope).Str("name", r.Name).Str("rse", rse.ID).Msg("unclassified delete failure; replica left BEING_DELETED for out-of-band reconciliation")
			}
		}

		if err := driver.Close(); err != nil {
			w.logger.Warn().Err(err).Str("rse", rse.ID).Msg("failed to close storage driver session")
		}
	}

	deleteStart := time.Now()
	if err := w.gateway.DeleteReplicas(ctx, rse.ID, deleted); err != nil {
		w.logger.Error().Err(err).Str("rse", rse.ID).Msg("failed to finalize replica deletion")
	}
	lmetrics.ReaperDeleteReplicasDuration.Observe(time.Since(deleteStart).Seconds())
}
