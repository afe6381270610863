// Package reaper implements the Reaper Worker of spec §4.7: it walks a
// partition of RSEs, computes a per-RSE deletion budget, deletes
// unlocked expired replicas through the storage protocol driver, and
// emits the planned/done/failed message sequence for each one.
package reaper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lattice-dmcp/lattice/pkg/catalog"
	"github.com/lattice-dmcp/lattice/pkg/heartbeat"
	"github.com/lattice-dmcp/lattice/pkg/lmetrics"
	"github.com/lattice-dmcp/lattice/pkg/log"
	"github.com/lattice-dmcp/lattice/pkg/outbox"
	"github.com/lattice-dmcp/lattice/pkg/protocol"
	"github.com/lattice-dmcp/lattice/pkg/rsecheck"
	"github.com/lattice-dmcp/lattice/pkg/types"
)

const executableName = "reaper"

// Config parameterizes one Worker.
type Config struct {
	Hostname string
	PID      int
	ThreadID int64

	// RSEs is this worker's assigned partition (spec §4.8).
	RSEs []string
	// Scheme forces the protocol scheme used for deletion; empty means
	// "the RSE's first offered protocol".
	Scheme string
	// Greedy ignores the usage budget and reaps every unlocked
	// reapable replica.
	Greedy bool
	// ChunkSize bounds one delete batch. Default 100.
	ChunkSize int
	// SleepInterval is the inter-iteration sleep. Default 60s.
	SleepInterval time.Duration
	// RunOnce stops the loop after one partition pass.
	RunOnce bool
	// UsageSource is the RSEUsage accounting source consulted by the
	// budget computation. Default "srm".
	UsageSource string
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 100
	}
	if c.SleepInterval <= 0 {
		c.SleepInterval = 60 * time.Second
	}
	if c.UsageSource == "" {
		c.UsageSource = "srm"
	}
	return c
}

// Worker runs the Reaper loop over its assigned RSE partition.
type Worker struct {
	cfg        Config
	gateway    catalog.Gateway
	heartbeats heartbeat.Service
	drivers    *protocol.Registry
	prober     *rsecheck.Prober
	outbox     *outbox.Broker
	logger     zerolog.Logger
}

// New builds a Worker. drivers resolves a Driver per (scheme, impl);
// prober pre-checks reachability; broker is optional and may be nil.
func New(gateway catalog.Gateway, heartbeats heartbeat.Service, drivers *protocol.Registry, prober *rsecheck.Prober, broker *outbox.Broker, cfg Config) *Worker {
	if prober == nil {
		prober = rsecheck.NewProber()
	}
	return &Worker{
		cfg:        cfg.withDefaults(),
		gateway:    gateway,
		heartbeats: heartbeats,
		drivers:    drivers,
		prober:     prober,
		outbox:     broker,
		logger: log.WithExecutable(executableName).With().
			Int("thread_id", int(cfg.ThreadID)).Logger(),
	}
}

// Run loops over this worker's RSE partition until ctx is cancelled or,
// with RunOnce set, after one pass.
func (w *Worker) Run(ctx context.Context) error {
	defer func() {
		if err := w.heartbeats.Die(context.Background(), executableName, w.cfg.Hostname, w.cfg.PID, w.cfg.ThreadID); err != nil {
			w.logger.Warn().Err(err).Msg("failed to remove heartbeat on shutdown")
		}
	}()

	for {
		if err := w.heartbeats.SanityCheck(ctx, executableName, w.cfg.Hostname, time.Now()); err != nil {
			w.logger.Error().Err(err).Msg("heartbeat sanity check failed")
		}
		assignment, err := w.heartbeats.Live(ctx, executableName, w.cfg.Hostname, w.cfg.PID, w.cfg.ThreadID, time.Now())
		if err != nil {
			w.logger.Error().Err(err).Msg("heartbeat liveness update failed")
		} else {
			lmetrics.HeartbeatAssignedShard.WithLabelValues(executableName).Set(float64(assignment.AssignedShard))
			lmetrics.HeartbeatTotalShards.WithLabelValues(executableName).Set(float64(assignment.TotalShards))
		}

		for _, rseID := range w.cfg.RSEs {
			if ctx.Err() != nil {
				return nil
			}
			if err := w.processRSE(ctx, rseID); err != nil {
				w.logger.Error().Err(err).Str("rse", rseID).Msg("reaper pass over RSE failed")
			}
		}

		if w.cfg.RunOnce {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		t := time.NewTimer(w.cfg.SleepInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (w *Worker) emit(ctx context.Context, msg *types.Message) {
	if err := w.gateway.AddMessage(ctx, msg.EventType, msg.Payload); err != nil {
		w.logger.Error().Err(err).Str("event_type", string(msg.EventType)).Msg("failed to append outbox message")
	}
	if w.outbox != nil {
		w.outbox.Publish(msg)
	}
}
