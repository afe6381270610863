// Package selector implements the RSE Selector of spec §4.3: deterministic
// weighted sampling without replacement over a candidate RSE set.
package selector

import (
	"math/rand"

	"github.com/lattice-dmcp/lattice/pkg/catalogerr"
	"github.com/lattice-dmcp/lattice/pkg/types"
)

// QuotaChecker reports whether the caller's quota allows placing a copy
// on rse. Selection rejects any candidate for which this returns false.
type QuotaChecker func(rse types.RSE) bool

// AlwaysHasQuota is a QuotaChecker that never rejects a candidate, for
// callers (or tests) with no quota accounting to enforce.
func AlwaysHasQuota(types.RSE) bool { return true }

func effectiveWeight(r types.RSE) float64 {
	if r.Weight != nil {
		return *r.Weight
	}
	return 1.0
}

// Select draws copies RSEs from candidates without replacement,
// proportionally to effective weight, skipping any RSE whose id is in
// preferredRSEIDs (those are already counted toward the target and are
// echoed back tagged EXISTING). rng supplies the randomness; callers
// seed it explicitly for reproducible tests and vary the seed in
// production.
func Select(rng *rand.Rand, candidates []types.RSE, copies int, preferredRSEIDs []string, quota QuotaChecker) ([]types.RSESelection, error) {
	if quota == nil {
		quota = AlwaysHasQuota
	}

	preferred := make(map[string]bool, len(preferredRSEIDs))
	result := make([]types.RSESelection, 0, len(preferredRSEIDs)+max(copies, 0))
	for _, id := range preferredRSEIDs {
		preferred[id] = true
		result = append(result, types.RSESelection{RSEID: id, Status: types.RSEStatusExisting})
	}

	if copies <= 0 {
		return result, nil
	}

	eligible := make([]types.RSE, 0, len(candidates))
	for _, c := range candidates {
		if preferred[c.ID] {
			continue
		}
		if effectiveWeight(c) <= 0 {
			continue
		}
		if !c.AvailabilityWrite || c.Blacklisted {
			continue
		}
		eligible = append(eligible, c)
	}
	if len(eligible) < copies {
		return nil, catalogerr.New(catalogerr.InsufficientTargetRSEs, "not enough eligible candidate RSEs")
	}

	withinQuota := make([]types.RSE, 0, len(eligible))
	for _, c := range eligible {
		if quota(c) {
			withinQuota = append(withinQuota, c)
		}
	}
	if len(withinQuota) < copies {
		return nil, catalogerr.New(catalogerr.InsufficientAccountLimit, "account quota insufficient on enough remaining RSEs")
	}

	for _, c := range drawWeighted(rng, withinQuota, copies) {
		result = append(result, types.RSESelection{RSEID: c.ID, Status: types.RSEStatusNew})
	}
	return result, nil
}

// drawWeighted repeatedly draws one element proportional to effective
// weight and removes it from the pool, n times.
func drawWeighted(rng *rand.Rand, pool []types.RSE, n int) []types.RSE {
	remaining := make([]types.RSE, len(pool))
	copy(remaining, pool)

	chosen := make([]types.RSE, 0, n)
	for i := 0; i < n; i++ {
		total := 0.0
		for _, c := range remaining {
			total += effectiveWeight(c)
		}
		r := rng.Float64() * total
		idx := len(remaining) - 1
		cum := 0.0
		for j, c := range remaining {
			cum += effectiveWeight(c)
			if r < cum {
				idx = j
				break
			}
		}
		chosen = append(chosen, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return chosen
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
