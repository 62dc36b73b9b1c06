package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PeerMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swift_peer_messages_total",
			Help: "Ingress messages processed per peer and type.",
		},
		[]string{"peer_id", "type"},
	)

	PeerLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swift_peer_limit_rejected_total",
			Help: "New peer IDs refused because the peer cap was reached.",
		},
		[]string{"dialect"},
	)

	ParseErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swift_parse_errors_total",
			Help: "Ingress line parse failures by stage and reason.",
		},
		[]string{"stage", "reason"},
	)

	BurstOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swift_burst_opened_total",
			Help: "Withdrawal bursts opened per peer.",
		},
		[]string{"peer_id"},
	)

	BurstClosedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swift_burst_closed_total",
			Help: "Withdrawal bursts closed per peer.",
		},
		[]string{"peer_id"},
	)

	BurstDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swift_burst_duration_seconds",
			Help:    "Observed duration of closed bursts.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
		[]string{"peer_id"},
	)

	BPAInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swift_bpa_invocations_total",
			Help: "Burst prediction algorithm runs per peer and algorithm.",
		},
		[]string{"peer_id", "algo"},
	)

	BPADuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swift_bpa_duration_seconds",
			Help:    "Wall time spent inside one BPA evaluation.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"algo"},
	)

	BPAScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swift_bpa_score",
			Help:    "Weighted Fowlkes-Mallows score returned by each BPA run.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"peer_id", "algo"},
	)

	BPAErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swift_bpa_errors_total",
			Help: "BPA evaluations that raised instead of returning a result.",
		},
		[]string{"peer_id"},
	)

	EncodingOccupancy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swift_encoding_mapping_occupancy",
			Help: "Fraction of a depth's code space currently assigned.",
		},
		[]string{"peer_id", "depth"},
	)

	FRRulesInstalledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swift_fr_rules_installed_total",
			Help: "Fast-reroute wildcard rules installed on the forwarding plane.",
		},
		[]string{"peer_id"},
	)

	FRRulesExpiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swift_fr_rules_expired_total",
			Help: "Fast-reroute rules removed after their TTL elapsed.",
		},
		[]string{"peer_id"},
	)

	GlobalRIBRoutesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swift_globalrib_routes",
			Help: "Routes currently held per prefix in the global RIB.",
		},
		[]string{"afi"},
	)

	GlobalRIBPrimaryChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swift_globalrib_primary_changes_total",
			Help: "Primary-route changes emitted to the forwarding plane.",
		},
		[]string{"reason"},
	)

	DBWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swift_db_write_duration_seconds",
			Help:    "Batched history write latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"op"},
	)

	DBRowsAffectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swift_db_rows_affected_total",
			Help: "History rows written or deduplicated.",
		},
		[]string{"table", "op"},
	)

	BatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swift_batch_size",
			Help:    "Batch sizes flushed to Postgres.",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 2000, 5000},
		},
		[]string{"sink"},
	)

	PersistRowsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swift_persist_rows_dropped_total",
			Help: "Closed bursts dropped because the persistence channel was full.",
		},
		[]string{"reason"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			PeerMessagesTotal,
			PeerLimitRejectedTotal,
			ParseErrorsTotal,
			BurstOpenedTotal,
			BurstClosedTotal,
			BurstDurationSeconds,
			BPAInvocationsTotal,
			BPADuration,
			BPAScore,
			BPAErrorsTotal,
			EncodingOccupancy,
			FRRulesInstalledTotal,
			FRRulesExpiredTotal,
			GlobalRIBRoutesGauge,
			GlobalRIBPrimaryChangesTotal,
			DBWriteDuration,
			DBRowsAffectedTotal,
			BatchSize,
			PersistRowsDroppedTotal,
		)
	})
}
