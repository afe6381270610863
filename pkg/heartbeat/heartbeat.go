// Package heartbeat implements the Heartbeat Service of spec §4.5: a
// liveness registry that derives each worker's dense shard number from
// the set of currently-live peers sharing the same executable.
package heartbeat

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/lattice-dmcp/lattice/pkg/types"
)

// DefaultStaleAfter is the default T in "stale after T seconds without
// update".
const DefaultStaleAfter = 3600 * time.Second

// Service is the liveness registry consumed by worker loops.
type Service interface {
	// SanityCheck removes stale entries for executable on host.
	SanityCheck(ctx context.Context, executable, hostname string, now time.Time) error
	// Live atomically upserts the caller's heartbeat and returns a
	// deterministic dense numbering of currently-live peers sharing
	// executable, ordered by (host, pid, thread).
	Live(ctx context.Context, executable, hostname string, pid int, threadID int64, now time.Time) (types.Assignment, error)
	// Die removes the caller's heartbeat entry.
	Die(ctx context.Context, executable, hostname string, pid int, threadID int64) error
}

// Registry is a Service backing, parameterized over a Store so both the
// in-memory test double and the bbolt-backed registry share this logic.
type Registry struct {
	store      Store
	staleAfter time.Duration
}

// Store is the persistence interface Registry needs; BoltStore and
// MemStore both implement it.
type Store interface {
	Put(hb types.Heartbeat) error
	Delete(executable, hostname string, pid int, threadID int64) error
	List(executable string) ([]types.Heartbeat, error)
}

// NewRegistry builds a Registry over store with the default staleness
// timeout. Use WithStaleAfter to override it.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store, staleAfter: DefaultStaleAfter}
}

// WithStaleAfter overrides the staleness timeout.
func (r *Registry) WithStaleAfter(d time.Duration) *Registry {
	r.staleAfter = d
	return r
}

func heartbeatKey(executable, hostname string, pid int, threadID int64) string {
	return executable + "\x00" + hostname + "\x00" + strconv.Itoa(pid) + "\x00" + strconv.FormatInt(threadID, 10)
}

func (r *Registry) SanityCheck(ctx context.Context, executable, hostname string, now time.Time) error {
	all, err := r.store.List(executable)
	if err != nil {
		return err
	}
	for _, hb := range all {
		if hb.Hostname != hostname {
			continue
		}
		if now.Sub(hb.UpdatedAt) > r.staleAfter {
			if err := r.store.Delete(hb.Executable, hb.Hostname, hb.PID, hb.ThreadID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Registry) Live(ctx context.Context, executable, hostname string, pid int, threadID int64, now time.Time) (types.Assignment, error) {
	hb := types.Heartbeat{
		Executable: executable,
		Hostname:   hostname,
		PID:        pid,
		ThreadID:   threadID,
		UpdatedAt:  now,
	}
	if err := r.store.Put(hb); err != nil {
		return types.Assignment{}, err
	}

	all, err := r.store.List(executable)
	if err != nil {
		return types.Assignment{}, err
	}

	live := make([]types.Heartbeat, 0, len(all))
	for _, h := range all {
		if now.Sub(h.UpdatedAt) <= r.staleAfter {
			live = append(live, h)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].Hostname != live[j].Hostname {
			return live[i].Hostname < live[j].Hostname
		}
		if live[i].PID != live[j].PID {
			return live[i].PID < live[j].PID
		}
		return live[i].ThreadID < live[j].ThreadID
	})

	assignment := types.Assignment{TotalShards: len(live)}
	for i, h := range live {
		if h.Hostname == hostname && h.PID == pid && h.ThreadID == threadID {
			assignment.AssignedShard = i
			break
		}
	}
	return assignment, nil
}

func (r *Registry) Die(ctx context.Context, executable, hostname string, pid int, threadID int64) error {
	return r.store.Delete(executable, hostname, pid, threadID)
}

