// Package supervisor spawns and joins the Transmogrifier and Reaper
// worker pools of spec §4.8. It owns the shared stop flag and the
// signal plumbing that sets it; workers themselves never touch signals.
package supervisor

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/lattice-dmcp/lattice/pkg/catalog"
	"github.com/lattice-dmcp/lattice/pkg/heartbeat"
	"github.com/lattice-dmcp/lattice/pkg/outbox"
	"github.com/lattice-dmcp/lattice/pkg/protocol"
	"github.com/lattice-dmcp/lattice/pkg/reaper"
	"github.com/lattice-dmcp/lattice/pkg/rsecheck"
	"github.com/lattice-dmcp/lattice/pkg/transmogrifier"
)

// WithSignals derives a cancellable context from parent that is
// cancelled the moment SIGINT or SIGTERM arrives. The cancellation
// itself is the "global stop flag" of spec §9; workers observe ctx.Err()
// at their loop head and chunk boundaries rather than polling a flag.
func WithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// PartitionRSEs splits rses into totalWorkers partitions of at most
// ceil(len(rses)/totalWorkers) entries each, per spec §4.8. The final
// non-empty partition absorbs whatever remainder a plain floor division
// would otherwise leave unassigned (spec §9 open question); any worker
// index beyond the number of non-empty chunks gets an empty partition
// and idles, heartbeating with nothing to reap.
func PartitionRSEs(rses []string, totalWorkers int) [][]string {
	if totalWorkers <= 0 {
		totalWorkers = 1
	}
	partitions := make([][]string, totalWorkers)
	n := len(rses)
	if n == 0 {
		return partitions
	}
	chunkSize := (n + totalWorkers - 1) / totalWorkers
	i := 0
	for w := 0; w < totalWorkers && i < n; w++ {
		end := i + chunkSize
		if end > n {
			end = n
		}
		partitions[w] = rses[i:end]
		i = end
	}
	return partitions
}

// RunTransmogrifiers spawns threads Transmogrifier workers sharing one
// gateway and heartbeat registry, and blocks until every worker returns
// (ctx cancellation or, with RunOnce set, loop completion).
func RunTransmogrifiers(ctx context.Context, gateway catalog.Gateway, heartbeats heartbeat.Service, threads int, base transmogrifier.Config) error {
	if threads <= 0 {
		threads = 1
	}
	hostname, pid := identity()

	var wg sync.WaitGroup
	errs := make([]error, threads)
	for i := 0; i < threads; i++ {
		cfg := base
		cfg.Hostname = hostname
		cfg.PID = pid
		cfg.ThreadID = int64(i)

		w := transmogrifier.New(gateway, heartbeats, cfg)
		wg.Add(1)
		go func(idx int, w *transmogrifier.Worker) {
			defer wg.Done()
			errs[idx] = w.Run(ctx)
		}(i, w)
	}
	wg.Wait()

	return firstErr(errs)
}

// ReaperFleet describes the collaborators shared by every spawned
// Reaper worker; only the RSE partition and thread id differ per
// worker.
type ReaperFleet struct {
	Gateway    catalog.Gateway
	Heartbeats heartbeat.Service
	Drivers    *protocol.Registry
	Prober     *rsecheck.Prober
	Outbox     *outbox.Broker
}

// RunReapers partitions rses into totalWorkers shares via PartitionRSEs
// and spawns one Reaper worker per share, blocking until all return.
func RunReapers(ctx context.Context, fleet ReaperFleet, rses []string, totalWorkers int, base reaper.Config) error {
	if totalWorkers <= 0 {
		totalWorkers = 1
	}
	hostname, pid := identity()
	partitions := PartitionRSEs(rses, totalWorkers)

	var wg sync.WaitGroup
	errs := make([]error, totalWorkers)
	for i := 0; i < totalWorkers; i++ {
		cfg := base
		cfg.Hostname = hostname
		cfg.PID = pid
		cfg.ThreadID = int64(i)
		cfg.RSEs = partitions[i]

		w := reaper.New(fleet.Gateway, fleet.Heartbeats, fleet.Drivers, fleet.Prober, fleet.Outbox, cfg)
		wg.Add(1)
		go func(idx int, w *reaper.Worker) {
			defer wg.Done()
			errs[idx] = w.Run(ctx)
		}(i, w)
	}
	wg.Wait()

	return firstErr(errs)
}

func identity() (string, int) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return hostname, os.Getpid()
}

func firstErr(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
