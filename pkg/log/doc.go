/*
Package log provides structured logging for the lattice daemons using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
executable- and entity-specific loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and support
filtering by severity level for production debugging.

# Architecture

The logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Context Loggers                     │          │
	│  │  - WithComponent("transmogrifier")          │          │
	│  │  - WithExecutable("reaper")                 │          │
	│  │  - WithRSE("RSE_FR_CC")                     │          │
	│  │  - WithDID(scope, name)                     │          │
	│  │  - WithSubscription(subscriptionID)         │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "rse": "RSE_FR_CC",                      │          │
	│  │    "time": "2026-07-30T10:30:00Z",         │          │
	│  │    "message": "replica deleted"             │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  2026-07-30T10:30:00Z INF replica deleted   │          │
	│  │    rse=RSE_FR_CC        (one line in output) │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from every lattice package

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add a component name (catalog, selector, protocol, ...)
  - WithExecutable: Add the daemon executable name (transmogrifier, reaper)
  - WithRSE: Add the RSE id under operation
  - WithDID: Add the (scope, name) pair of the DID under operation
  - WithSubscription: Add the subscription id driving a rule decision

# Usage

Initializing the Logger:

	import "github.com/lattice-dmcp/lattice/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Simple Logging:

	log.Info("transmogrifier starting")
	log.Warn("heartbeat sanity check removed a stale entry")
	log.Error("failed to connect to storage driver")

Structured Logging:

	log.Logger.Info().
		Str("rse", "RSE_FR_CC").
		Int("deleted", 42).
		Msg("reaper chunk finalized")

Context Loggers:

	reaperLog := log.WithExecutable("reaper")
	reaperLog.Info().Msg("starting worker loop")

	rseLog := log.WithRSE("RSE_FR_CC")
	rseLog.Warn().Msg("reachability probe failed, skipping this pass")

	didLog := log.WithDID("cms", "dataset.001")
	didLog.Debug().Msg("evaluating subscription filters")

	subLog := log.WithSubscription("sub-042")
	subLog.Info().Str("rse_expression", "T1_*&availability").Msg("rule created")

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance initialized once at startup
  - Accessible from all packages without passing it down call chains

Context Logger Pattern:
  - Create child loggers with context fields (RSE, DID, subscription)
  - Pass context loggers to functions instead of repeating fields
  - Avoids repetitive Str()/Int() calls at every log site

Structured Logging Pattern:
  - Typed fields (.Str, .Int, .Err) instead of string concatenation
  - Enables log aggregation and querying by field

# Best Practices

Do:
  - Use Info level for production
  - Create executable- and entity-specific loggers with the With* helpers
  - Log errors with .Err() so the error value is a structured field

Don't:
  - Log sensitive data (database credentials, raft transport secrets)
  - Use Debug level in production
  - Concatenate strings into the message; prefer typed fields

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
*/
package log
