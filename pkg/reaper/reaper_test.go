package reaper

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dmcp/lattice/pkg/catalog"
	"github.com/lattice-dmcp/lattice/pkg/catalogerr"
	"github.com/lattice-dmcp/lattice/pkg/heartbeat"
	"github.com/lattice-dmcp/lattice/pkg/protocol"
	"github.com/lattice-dmcp/lattice/pkg/rsecheck"
	"github.com/lattice-dmcp/lattice/pkg/types"
)

func localListener(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return "127.0.0.1", port
}

func seedRSEWithProtocol(g *catalog.MemGateway, id, hostname string, port int) {
	g.PutRSE(types.RSE{
		ID: id, Name: id, AvailabilityDelete: true,
		Protocols: []types.Protocol{{Scheme: "mock", Impl: "mock", Hostname: hostname, Port: port, Prefix: "/"}},
	})
}

func newTestWorker(t *testing.T, g *catalog.MemGateway, hostname string, port int, mock *protocol.MockDriver, cfg Config) *Worker {
	t.Helper()
	registry := protocol.NewRegistry()
	registry.Register("mock", "mock", func(types.RSE, types.Protocol) protocol.Driver { return mock })
	hb := heartbeat.NewRegistry(heartbeat.NewMemStore())
	cfg.Scheme = "mock"
	cfg.RunOnce = true
	return New(g, hb, registry, rsecheck.NewProber(), nil, cfg)
}

func TestReaperBudgetComputation(t *testing.T) {
	g := catalog.NewMemGateway()
	hostname, port := localListener(t)
	seedRSEWithProtocol(g, "RSE_1", hostname, port)

	minFree := int64(1_000_000)
	maxBeingDel := 10
	g.PutRSELimits("RSE_1", types.RSELimits{MinFreeSpace: &minFree, MaxBeingDeletedFiles: &maxBeingDel})
	g.PutRSEUsage("RSE_1", types.RSEUsage{Source: "srm", Total: 10_000_000})
	g.PutRSECounter("RSE_1", types.RSECounter{Bytes: 9_500_000})

	b := computeBudget(context.Background(), g, "RSE_1", "srm")
	require.NotNil(t, b.NeededFreeSpace)
	assert.Equal(t, int64(500_000), *b.NeededFreeSpace)
	require.NotNil(t, b.MaxBeingDeletedFiles)
	assert.Equal(t, 10, *b.MaxBeingDeletedFiles)
}

func TestReaperBudgetFallsBackOnMissingUsage(t *testing.T) {
	g := catalog.NewMemGateway()
	minFree := int64(100)
	maxBeingDel := 5
	g.PutRSELimits("RSE_2", types.RSELimits{MinFreeSpace: &minFree, MaxBeingDeletedFiles: &maxBeingDel})
	// no usage/counter seeded

	b := computeBudget(context.Background(), g, "RSE_2", "srm")
	assert.Nil(t, b.NeededFreeSpace)
	assert.Nil(t, b.MaxBeingDeletedFiles)
}

func TestReaperSourceNotFoundFinalizesOnlySuccessful(t *testing.T) {
	g := catalog.NewMemGateway()
	hostname, port := localListener(t)
	seedRSEWithProtocol(g, "RSE_1", hostname, port)

	now := time.Now()
	past := now.Add(-time.Hour)
	g.PutReplica("RSE_1", types.Replica{Scope: "s", Name: "a", Bytes: 10, State: types.ReplicaStateAvailable, Tombstone: &past})
	g.PutReplica("RSE_1", types.Replica{Scope: "s", Name: "b", Bytes: 10, State: types.ReplicaStateAvailable, Tombstone: &past})
	g.PutReplica("RSE_1", types.Replica{Scope: "s", Name: "c", Bytes: 10, State: types.ReplicaStateAvailable, Tombstone: &past})

	mock := &protocol.MockDriver{DeleteErr: make(map[protocol.PFN]error), ExistingSet: make(map[protocol.PFN]bool)}
	mock.DeleteErr["mock://s/b"] = catalogerr.New(catalogerr.SourceNotFound, "gone")

	w := newTestWorker(t, g, hostname, port, mock, Config{RSEs: []string{"RSE_1"}, Greedy: true})
	require.NoError(t, w.Run(context.Background()))

	remaining, err := g.ListUnlockedReplicas(context.Background(), "RSE_1", nil, nil, time.Now())
	require.NoError(t, err)
	var names []string
	for _, r := range remaining {
		names = append(names, r.Name)
	}
	assert.NotContains(t, names, "a")
	assert.Contains(t, names, "b", "SourceNotFound replica is not finalized by delete_replicas")
	assert.NotContains(t, names, "c")

	msgs := g.Messages()
	var planned, done, failed int
	for _, m := range msgs {
		switch m.EventType {
		case types.EventDeletionPlanned:
			planned++
		case types.EventDeletionDone:
			done++
		case types.EventDeletionFailed:
			failed++
			assert.Equal(t, "not found (already deleted?)", m.Payload["reason"])
		}
	}
	assert.Equal(t, 3, planned)
	assert.Equal(t, 2, done)
	assert.Equal(t, 1, failed)
}

func TestReaperGreedyIgnoresBudget(t *testing.T) {
	g := catalog.NewMemGateway()
	hostname, port := localListener(t)
	seedRSEWithProtocol(g, "RSE_1", hostname, port)

	minFree := int64(1)
	maxBeingDel := 0
	g.PutRSELimits("RSE_1", types.RSELimits{MinFreeSpace: &minFree, MaxBeingDeletedFiles: &maxBeingDel})
	g.PutRSEUsage("RSE_1", types.RSEUsage{Source: "srm", Total: 100})
	g.PutRSECounter("RSE_1", types.RSECounter{Bytes: 0})

	past := time.Now().Add(-time.Hour)
	g.PutReplica("RSE_1", types.Replica{Scope: "s", Name: "a", Bytes: 1, Tombstone: &past})

	mock := &protocol.MockDriver{DeleteErr: make(map[protocol.PFN]error), ExistingSet: make(map[protocol.PFN]bool)}
	w := newTestWorker(t, g, hostname, port, mock, Config{RSEs: []string{"RSE_1"}, Greedy: true})
	require.NoError(t, w.Run(context.Background()))

	assert.Len(t, mock.Deleted, 1, "greedy mode ignores the zero MaxBeingDeletedFiles budget")
}

func TestReaperSkipsUnavailableDeleteRSE(t *testing.T) {
	g := catalog.NewMemGateway()
	g.PutRSE(types.RSE{ID: "RSE_off", Name: "RSE_off", AvailabilityDelete: false})
	past := time.Now().Add(-time.Hour)
	g.PutReplica("RSE_off", types.Replica{Scope: "s", Name: "a", Bytes: 1, Tombstone: &past})

	mock := &protocol.MockDriver{DeleteErr: make(map[protocol.PFN]error), ExistingSet: make(map[protocol.PFN]bool)}
	registry := protocol.NewRegistry()
	registry.Register("mock", "mock", func(types.RSE, types.Protocol) protocol.Driver { return mock })
	hb := heartbeat.NewRegistry(heartbeat.NewMemStore())
	w := New(g, hb, registry, rsecheck.NewProber(), nil, Config{RSEs: []string{"RSE_off"}, Greedy: true, RunOnce: true})

	require.NoError(t, w.Run(context.Background()))
	assert.Empty(t, mock.Deleted)
}

func TestReaperSkipsUnreachableRSE(t *testing.T) {
	g := catalog.NewMemGateway()
	g.PutRSE(types.RSE{
		ID: "RSE_1", Name: "RSE_1", AvailabilityDelete: true,
		Protocols: []types.Protocol{{Scheme: "mock", Impl: "mock", Hostname: "127.0.0.1", Port: 1}},
	})
	past := time.Now().Add(-time.Hour)
	g.PutReplica("RSE_1", types.Replica{Scope: "s", Name: "a", Bytes: 1, Tombstone: &past})

	mock := &protocol.MockDriver{DeleteErr: make(map[protocol.PFN]error), ExistingSet: make(map[protocol.PFN]bool)}
	registry := protocol.NewRegistry()
	registry.Register("mock", "mock", func(types.RSE, types.Protocol) protocol.Driver { return mock })
	hb := heartbeat.NewRegistry(heartbeat.NewMemStore())
	prober := rsecheck.NewProber().WithTimeout(200 * time.Millisecond)
	w := New(g, hb, registry, prober, nil, Config{RSEs: []string{"RSE_1"}, Scheme: "mock", Greedy: true, RunOnce: true})

	require.NoError(t, w.Run(context.Background()))
	assert.Empty(t, mock.Deleted, "unreachable endpoint must not be deleted from")
}

func TestGracefulStopWithCancelledContextProcessesNoChunk(t *testing.T) {
	g := catalog.NewMemGateway()
	hostname, port := localListener(t)
	seedRSEWithProtocol(g, "RSE_1", hostname, port)

	past := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		g.PutReplica("RSE_1", types.Replica{Scope: "s", Name: strconv.Itoa(i), Bytes: 1, Tombstone: &past})
	}

	mock := &protocol.MockDriver{DeleteErr: make(map[protocol.PFN]error), ExistingSet: make(map[protocol.PFN]bool)}
	registry := protocol.NewRegistry()
	registry.Register("mock", "mock", func(types.RSE, types.Protocol) protocol.Driver { return mock })
	hb := heartbeat.NewRegistry(heartbeat.NewMemStore())
	w := New(g, hb, registry, rsecheck.NewProber(), nil, Config{RSEs: []string{"RSE_1"}, Greedy: true, ChunkSize: 1, Scheme: "mock", RunOnce: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already-cancelled context: only the loop's first boundary check should run

	require.NoError(t, w.Run(ctx))

	remaining, err := g.ListUnlockedReplicas(context.Background(), "RSE_1", nil, nil, time.Now())
	require.NoError(t, err)
	assert.Len(t, remaining, 3, "no chunk processed once the context is already cancelled")
	assert.Empty(t, mock.Deleted)
}
