// Package metrics declares every Prometheus series the hub exports.
//
// Naming convention: namespace_subsystem_name
//   - namespace: netsync (application-level grouping)
//   - subsystem: transport, discovery, registry, broadcast, rpc, nv, publisher, lifecycle, ratelimit
//   - name: specific metric
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks the current number of live transport identities.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "netsync",
		Subsystem: "transport",
		Name:      "connections_active",
		Help:      "Current number of active client connections",
	})

	// ActiveRooms tracks the current number of non-expired rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "netsync",
		Subsystem: "registry",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomClients tracks current client-record count per room.
	RoomClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "netsync",
		Subsystem: "registry",
		Name:      "clients_count",
		Help:      "Number of client records in each room",
	}, []string{"room_id"})

	// DiscoveryProbes counts discovery-responder outcomes.
	DiscoveryProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netsync",
		Subsystem: "discovery",
		Name:      "probes_total",
		Help:      "Total discovery probes by outcome",
	}, []string{"outcome"}) // allowed | denied | appid_missing | throttled

	// HandshakeOutcomes counts ingress handshake decisions.
	HandshakeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netsync",
		Subsystem: "transport",
		Name:      "handshake_total",
		Help:      "Total handshake attempts by outcome",
	}, []string{"outcome"}) // allowed | denied | throttled

	// BroadcastTickDuration measures one broadcast-scheduler pass.
	BroadcastTickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "netsync",
		Subsystem: "broadcast",
		Name:      "tick_seconds",
		Help:      "Time spent deciding and serializing one broadcast tick",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	}, []string{"room_id"})

	// SkippedBroadcasts counts per-room ticks that emitted nothing: the
	// dirty/idle threshold (§4.5) had not been reached, the room was empty or
	// had no visible clients, or encoding failed.
	SkippedBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "netsync",
		Subsystem: "broadcast",
		Name:      "skipped_total",
		Help:      "Total broadcast ticks that emitted nothing",
	})

	// RPCMessages counts routed RPC messages by kind.
	RPCMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netsync",
		Subsystem: "rpc",
		Name:      "messages_total",
		Help:      "Total RPC messages routed",
	}, []string{"kind"}) // broadcast | targeted

	// NVFlushDuration measures one NV flush pass.
	NVFlushDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "netsync",
		Subsystem: "nv",
		Name:      "flush_seconds",
		Help:      "Time spent building and publishing one NV flush",
		Buckets:   prometheus.DefBuckets,
	}, []string{"room_id"})

	// NVTruncated counts NV sets whose name or value exceeded its cap and
	// was silently truncated (§4.7.1, the Open-Question decision).
	NVTruncated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netsync",
		Subsystem: "nv",
		Name:      "truncated_total",
		Help:      "Total NV sets whose name or value was truncated to fit its wire cap",
	}, []string{"field"}) // name | value

	// NVLWWRejected counts sets rejected by last-writer-wins.
	NVLWWRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "netsync",
		Subsystem: "nv",
		Name:      "lww_rejected_total",
		Help:      "Total NV sets rejected by last-writer-wins conflict resolution",
	})

	// NVLimitRejected counts sets rejected for exceeding per-room/per-client
	// key budgets.
	NVLimitRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netsync",
		Subsystem: "nv",
		Name:      "limit_rejected_total",
		Help:      "Total NV sets rejected for exceeding the key budget",
	}, []string{"scope"})

	// NVMonitorExceeded counts devices crossing the per-second NV request
	// monitor threshold (monitoring only, never enforced — §4.7.2).
	NVMonitorExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "netsync",
		Subsystem: "nv",
		Name:      "monitor_threshold_exceeded_total",
		Help:      "Total times a device's NV request rate crossed the monitor threshold",
	})

	// PublisherDrops counts frames dropped by the bounded fan-out queue.
	PublisherDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netsync",
		Subsystem: "publisher",
		Name:      "drops_total",
		Help:      "Total frames dropped by the publisher's bounded queue",
	}, []string{"kind"})

	// LifecycleEvictions counts client/room/device-id removals by reason.
	LifecycleEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netsync",
		Subsystem: "lifecycle",
		Name:      "evictions_total",
		Help:      "Total lifecycle evictions by kind",
	}, []string{"kind"}) // client_timeout | device_id_expiry | empty_room

	// RateLimitRejected counts requests throttled by a sliding-window limiter.
	RateLimitRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netsync",
		Subsystem: "ratelimit",
		Name:      "rejected_total",
		Help:      "Total requests rejected by a rate limiter",
	}, []string{"limiter"}) // discovery_probe | handshake | nv_monitor

	// RateLimitStoreState tracks the ratelimit Redis-store circuit breaker.
	RateLimitStoreState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "netsync",
		Subsystem: "ratelimit",
		Name:      "store_circuit_state",
		Help:      "Ratelimit Redis store circuit breaker state (0=closed,1=open,2=half-open)",
	})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
