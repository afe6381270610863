package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dmcp/lattice/pkg/catalog"
	"github.com/lattice-dmcp/lattice/pkg/heartbeat"
	"github.com/lattice-dmcp/lattice/pkg/protocol"
	"github.com/lattice-dmcp/lattice/pkg/reaper"
	"github.com/lattice-dmcp/lattice/pkg/rsecheck"
	"github.com/lattice-dmcp/lattice/pkg/transmogrifier"
)

func TestPartitionRSEsCoversEveryRSEWithRemainderOnLastNonEmptyChunk(t *testing.T) {
	rses := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"}
	partitions := PartitionRSEs(rses, 3)

	require.Len(t, partitions, 3)
	assert.Equal(t, []string{"A", "B", "C", "D"}, partitions[0])
	assert.Equal(t, []string{"E", "F", "G", "H"}, partitions[1])
	assert.Equal(t, []string{"I", "J"}, partitions[2])

	var total int
	seen := make(map[string]bool)
	for _, p := range partitions {
		total += len(p)
		for _, id := range p {
			assert.False(t, seen[id], "RSE assigned to more than one partition")
			seen[id] = true
		}
	}
	assert.Equal(t, len(rses), total)
}

func TestPartitionRSEsMoreWorkersThanRSEsYieldsIdlePartitions(t *testing.T) {
	partitions := PartitionRSEs([]string{"A", "B"}, 5)
	require.Len(t, partitions, 5)
	assert.Equal(t, []string{"A"}, partitions[0])
	assert.Equal(t, []string{"B"}, partitions[1])
	for _, p := range partitions[2:] {
		assert.Empty(t, p)
	}
}

func TestPartitionRSEsEmptyInput(t *testing.T) {
	partitions := PartitionRSEs(nil, 4)
	require.Len(t, partitions, 4)
	for _, p := range partitions {
		assert.Empty(t, p)
	}
}

func TestRunTransmogrifiersStopsOnContextCancellation(t *testing.T) {
	g := catalog.NewMemGateway()
	hb := heartbeat.NewRegistry(heartbeat.NewMemStore())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunTransmogrifiers(ctx, g, hb, 3, transmogrifier.Config{IterationFloor: 5 * time.Millisecond})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RunTransmogrifiers did not return after context cancellation")
	}
}

func TestRunReapersPartitionsAcrossWorkers(t *testing.T) {
	g := catalog.NewMemGateway()
	hb := heartbeat.NewRegistry(heartbeat.NewMemStore())
	registry := protocol.NewRegistry()

	fleet := ReaperFleet{Gateway: g, Heartbeats: hb, Drivers: registry, Prober: rsecheck.NewProber()}
	err := RunReapers(context.Background(), fleet, []string{"RSE_1", "RSE_2"}, 2, reaper.Config{RunOnce: true})
	require.NoError(t, err)
}
