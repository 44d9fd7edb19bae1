package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// families lists the address families that get a bad_prefix/bad_nexthop/
// bad_afi_safi counter trio.
var families = []string{"inet", "inet6", "l3vpn", "inet6vpn", "evpn", "ermvpn", "mvpn", "rtarget"}

var (
	RxBadPrefixTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_rx_bad_prefix_count",
			Help: "Malformed NLRI prefixes received, by family.",
		},
		[]string{"family"},
	)

	RxBadNexthopTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_rx_bad_nexthop_count",
			Help: "Malformed NEXT_HOP attributes received, by family.",
		},
		[]string{"family"},
	)

	RxBadAfiSafiTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_rx_bad_afi_safi_count",
			Help: "UPDATEs referencing an unsupported AFI/SAFI pair, by family.",
		},
		[]string{"family"},
	)

	RxBadXMLTokenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_rx_bad_xml_token_count",
			Help: "Malformed config-intent tokens dropped at parse time.",
		},
		[]string{"source"},
	)

	SessionResetTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_session_reset_total",
			Help: "Sessions torn down by a fatal NOTIFICATION, by error code/subcode.",
		},
		[]string{"peer", "code", "subcode"},
	)

	AttrDBSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpd_attrdb_size",
			Help: "Number of distinct interned objects currently live, by attribute DB.",
		},
		[]string{"db"},
	)

	RibRoutesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpd_rib_routes_total",
			Help: "Routes currently present in a table.",
		},
		[]string{"table"},
	)

	ReplicatorSecondaryRoutesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpd_replicator_secondary_routes_total",
			Help: "Secondary (replicated) routes currently installed, by destination table.",
		},
		[]string{"dest_table"},
	)

	SchedulingGroupsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bgpd_scheduling_groups_total",
			Help: "Live SchedulingGroup count.",
		},
	)

	RibOutsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bgpd_ribouts_total",
			Help: "Live RibOut count.",
		},
	)

	WorkQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpd_work_queue_depth",
			Help: "Pending items on a SchedulingGroup's work channel.",
		},
		[]string{"group"},
	)

	PeersBlockedTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bgpd_peers_blocked_total",
			Help: "Peers currently blocked on SendUpdate, awaiting SendReady.",
		},
	)

	AuditWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "bgpd_audit_write_duration_seconds",
			Help: "Duration of an audit ledger batch write, by table.",
		},
		[]string{"table"},
	)

	AuditRowsAffectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_audit_rows_affected_total",
			Help: "Rows actually inserted into the audit ledger, by table.",
		},
		[]string{"table"},
	)

	AuditDedupConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_audit_dedup_conflicts_total",
			Help: "Audit rows skipped as duplicates of an already-recorded event.",
		},
		[]string{"table"},
	)

	AuditBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "bgpd_audit_batch_size",
			Help: "Number of route-change events per audit ledger flush.",
		},
	)

	TelemetryPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_telemetry_publish_total",
			Help: "Best-path-change events published to the telemetry topic, by outcome.",
		},
		[]string{"outcome"},
	)
)

var registerOnce sync.Once

// Register registers every collector exactly once; safe to call from
// multiple composition roots (cmd/bgpd, tests).
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RxBadPrefixTotal,
			RxBadNexthopTotal,
			RxBadAfiSafiTotal,
			RxBadXMLTokenTotal,
			SessionResetTotal,
			AttrDBSize,
			RibRoutesTotal,
			ReplicatorSecondaryRoutesTotal,
			SchedulingGroupsTotal,
			RibOutsTotal,
			WorkQueueDepth,
			PeersBlockedTotal,
			AuditWriteDuration,
			AuditRowsAffectedTotal,
			AuditDedupConflictsTotal,
			AuditBatchSize,
			TelemetryPublishTotal,
		)
	})
}

// Families returns the address families metrics are broken down by.
func Families() []string {
	return families
}
