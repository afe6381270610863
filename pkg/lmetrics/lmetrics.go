// Package lmetrics exposes the prometheus counters, gauges and
// histograms named by spec §4.6/§4.7, built the same way the ancestor
// repo's pkg/metrics registers its vectors: package-level vars
// registered once in init.
package lmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Transmogrifier metrics.
	DIDProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lattice_transmogrifier_did_processed_total",
			Help: "Total DIDs processed by the transmogrifier, by DID type",
		},
		[]string{"type"},
	)

	DIDProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lattice_transmogrifier_did_processed_overall_total",
			Help: "Total DIDs processed by the transmogrifier across all types",
		},
	)

	AddNewRuleDone = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lattice_transmogrifier_addnewrule_done_total",
			Help: "Total rules successfully created by the transmogrifier",
		},
	)

	AddNewRuleActivity = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lattice_transmogrifier_addnewrule_activity_total",
			Help: "Rules created by the transmogrifier, by activity",
		},
		[]string{"activity"},
	)

	AddNewRuleErrorType = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lattice_transmogrifier_addnewrule_errortype_total",
			Help: "Rule creation attempts by error kind, including the synthetic kind \"unknown\"",
		},
		[]string{"kind"},
	)

	TransmogrifierJobDone = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lattice_transmogrifier_job_done_total",
			Help: "Total transmogrifier loop iterations that completed without error",
		},
	)

	TransmogrifierJobError = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lattice_transmogrifier_job_error_total",
			Help: "Total transmogrifier loop iterations that raised an unclassified error",
		},
	)

	TransmogrifierJobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lattice_transmogrifier_job_duration_seconds",
			Help:    "Wall-clock duration of one transmogrifier loop iteration",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Reaper metrics.
	ReaperDeletionBeingDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lattice_reaper_deletion_being_deleted_total",
			Help: "Total replicas transitioned to BEING_DELETED by the reaper",
		},
	)

	ReaperDeletionDone = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lattice_reaper_deletion_done_total",
			Help: "Total replicas successfully deleted by the reaper",
		},
	)

	ReaperDeletionFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lattice_reaper_deletion_failed_total",
			Help: "Total replica deletions that failed, by reason",
		},
		[]string{"reason"},
	)

	ReaperListUnlockedReplicasDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lattice_reaper_list_unlocked_replicas_seconds",
			Help:    "Duration of the list_unlocked_replicas catalog call",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReaperDeleteReplicasDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lattice_reaper_delete_replicas_seconds",
			Help:    "Duration of the delete_replicas catalog call",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReaperDeleteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lattice_reaper_delete_seconds",
			Help:    "Duration of one storage-driver delete call, by scheme and RSE",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scheme", "rse"},
	)

	ReaperRSEUnreachable = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lattice_reaper_rse_unreachable_total",
			Help: "Total RSE iterations skipped because the reachability pre-probe failed, by RSE",
		},
		[]string{"rse"},
	)

	// Shared worker/supervisor metrics.
	HeartbeatAssignedShard = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lattice_worker_assigned_shard",
			Help: "Shard index last assigned to this worker thread",
		},
		[]string{"executable"},
	)

	HeartbeatTotalShards = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lattice_worker_total_shards",
			Help: "Total live shards last observed by this worker thread",
		},
		[]string{"executable"},
	)
)

func init() {
	prometheus.MustRegister(
		DIDProcessed,
		DIDProcessedTotal,
		AddNewRuleDone,
		AddNewRuleActivity,
		AddNewRuleErrorType,
		TransmogrifierJobDone,
		TransmogrifierJobError,
		TransmogrifierJobDuration,
		ReaperDeletionBeingDeleted,
		ReaperDeletionDone,
		ReaperDeletionFailed,
		ReaperListUnlockedReplicasDuration,
		ReaperDeleteReplicasDuration,
		ReaperDeleteDuration,
		ReaperRSEUnreachable,
		HeartbeatAssignedShard,
		HeartbeatTotalShards,
	)
}

// Handler exposes the registered collectors for a /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
