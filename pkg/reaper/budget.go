package reaper

import (
	"context"

	"github.com/lattice-dmcp/lattice/pkg/catalog"
)

// budget is the output of computeBudget (spec §4.7.1): a nil field
// means "no constraint of this kind," which ListUnlockedReplicas reads
// as its own default (a 10000-replica cap with no byte floor).
type budget struct {
	MaxBeingDeletedFiles *int
	NeededFreeSpace      *int64
}

// computeBudget implements spec §4.7.1. If any required input
// (MinFreeSpace, MaxBeingDeletedFiles, usage, counter) is missing, it
// returns an all-nil budget and the caller falls back to the catalog's
// default listing cap.
func computeBudget(ctx context.Context, gateway catalog.Gateway, rseID, usageSource string) budget {
	limits, err := gateway.GetRSELimits(ctx, rseID)
	if err != nil || limits.MinFreeSpace == nil || limits.MaxBeingDeletedFiles == nil {
		return budget{}
	}

	usage, err := gateway.GetRSEUsage(ctx, rseID, usageSource)
	if err != nil {
		return budget{}
	}
	counter, err := gateway.GetRSECounter(ctx, rseID)
	if err != nil {
		return budget{}
	}

	free := usage.Total - counter.Bytes
	needed := *limits.MinFreeSpace - free

	return budget{
		MaxBeingDeletedFiles: limits.MaxBeingDeletedFiles,
		NeededFreeSpace:      &needed,
	}
}
