// Package transmogrifier implements the Transmogrifier Worker of spec
// §4.6: it consumes a heartbeat-derived shard of newly registered data
// identifiers, matches them against subscriptions, and materializes
// replication rules for the matches.
package transmogrifier

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/lattice-dmcp/lattice/pkg/catalog"
	"github.com/lattice-dmcp/lattice/pkg/heartbeat"
	"github.com/lattice-dmcp/lattice/pkg/lmetrics"
	"github.com/lattice-dmcp/lattice/pkg/log"
	"github.com/lattice-dmcp/lattice/pkg/selector"
	"github.com/lattice-dmcp/lattice/pkg/types"
)

const executableName = "transmogrifier"

// Config parameterizes one Worker. Zero-valued fields fall back to the
// defaults documented alongside them.
type Config struct {
	Hostname string
	PID      int
	ThreadID int64

	// Bulk bounds ListNewDIDs per iteration. Default 1000.
	Bulk int
	// ChunkSize bounds one SetNewDIDsFlag batch. Default 100.
	ChunkSize int
	// MaxAttempts bounds retryable AddRule attempts per rule-template
	// invocation. Default 5.
	MaxAttempts int
	// IterationFloor pads every loop iteration to at least this
	// duration. Default 10s.
	IterationFloor time.Duration
	// RunOnce stops the loop after one iteration instead of looping
	// until ctx is cancelled.
	RunOnce bool
	// AllowedActivities validates the activity field (spec §4.6 step
	// 6); nil or empty means any activity is accepted.
	AllowedActivities map[string]bool
	// Quota gates selector candidates by account quota; nil means no
	// quota accounting.
	Quota selector.QuotaChecker
	// RNG supplies randomness to the selector. A time-seeded source is
	// used if nil.
	RNG *rand.Rand
}

func (c Config) withDefaults() Config {
	if c.Bulk <= 0 {
		c.Bulk = 1000
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.IterationFloor <= 0 {
		c.IterationFloor = 10 * time.Second
	}
	if c.Quota == nil {
		c.Quota = selector.AlwaysHasQuota
	}
	if c.RNG == nil {
		c.RNG = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return c
}

// Worker runs the Transmogrifier loop against one Gateway and one
// Heartbeat Service.
type Worker struct {
	cfg        Config
	gateway    catalog.Gateway
	heartbeats heartbeat.Service
	logger     zerolog.Logger
}

// New builds a Worker. cfg.ThreadID distinguishes multiple Worker
// goroutines spawned by the same process (see pkg/supervisor).
func New(gateway catalog.Gateway, heartbeats heartbeat.Service, cfg Config) *Worker {
	return &Worker{
		cfg:        cfg.withDefaults(),
		gateway:    gateway,
		heartbeats: heartbeats,
		logger: log.WithExecutable(executableName).With().
			Int("thread_id", int(cfg.ThreadID)).Logger(),
	}
}

// Run loops until ctx is cancelled or, with RunOnce set, after one
// iteration. Every iteration is floor-padded to cfg.IterationFloor.
func (w *Worker) Run(ctx context.Context) error {
	defer func() {
		if err := w.heartbeats.Die(context.Background(), executableName, w.cfg.Hostname, w.cfg.PID, w.cfg.ThreadID); err != nil {
			w.logger.Warn().Err(err).Msg("failed to remove heartbeat on shutdown")
		}
	}()

	for {
		start := time.Now()
		if err := w.runOnce(ctx); err != nil {
			lmetrics.TransmogrifierJobError.Inc()
			w.logger.Error().Err(err).Msg("transmogrifier iteration failed")
		} else {
			lmetrics.TransmogrifierJobDone.Inc()
		}
		lmetrics.TransmogrifierJobDuration.Observe(time.Since(start).Seconds())

		if w.cfg.RunOnce {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		remaining := w.cfg.IterationFloor - time.Since(start)
		if remaining <= 0 {
			continue
		}
		t := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) error {
	now := time.Now()

	if err := w.heartbeats.SanityCheck(ctx, executableName, w.cfg.Hostname, now); err != nil {
		return err
	}
	assignment, err := w.heartbeats.Live(ctx, executableName, w.cfg.Hostname, w.cfg.PID, w.cfg.ThreadID, now)
	if err != nil {
		return err
	}
	lmetrics.HeartbeatAssignedShard.WithLabelValues(executableName).Set(float64(assignment.AssignedShard))
	lmetrics.HeartbeatTotalShards.WithLabelValues(executableName).Set(float64(assignment.TotalShards))

	dids, err := w.gateway.ListNewDIDs(ctx, assignment.AssignedShard, assignment.TotalShards, w.cfg.Bulk)
	if err != nil {
		return err
	}
	if len(dids) == 0 {
		return nil
	}

	subs, err := w.gateway.ListSubscriptions(ctx, "", "")
	if err != nil {
		return err
	}
	var evaluable []types.Subscription
	for _, s := range subs {
		if s.State.Evaluable() {
			evaluable = append(evaluable, s)
		}
	}

	allRSEs, err := w.gateway.ListRSEs(ctx)
	if err != nil {
		return err
	}

	var processed []catalog.DIDKey
	for _, did := range dids {
		if ctx.Err() != nil {
			break
		}
		processed = append(processed, w.processDID(ctx, did, evaluable, allRSEs)...)
	}

	for _, chunk := range chunkDIDKeys(processed, w.cfg.ChunkSize) {
		chunk := chunk
		if err := catalog.Retrial(ctx, func() error {
			return w.gateway.SetNewDIDsFlag(ctx, chunk, false)
		}); err != nil {
			w.logger.Error().Err(err).Int("chunk_size", len(chunk)).Msg("failed to flag DIDs as processed")
		}
	}
	return nil
}

func chunkDIDKeys(keys []catalog.DIDKey, size int) [][]catalog.DIDKey {
	if len(keys) == 0 {
		return nil
	}
	var out [][]catalog.DIDKey
	for i := 0; i < len(keys); i += size {
		end := i + size
		if end > len(keys) {
			end = len(keys)
		}
		out = append(out, keys[i:end])
	}
	return out
}
