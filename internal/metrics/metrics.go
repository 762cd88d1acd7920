// Package metrics holds the zone server's Prometheus collectors. Collectors
// are package-level and auto-registered; packages increment them directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "towerwars_zone_build_info",
		Help: "Build information of the zone server.",
	}, []string{"version"})

	// Transport.
	PacketsIn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "towerwars_zone_packets_in_total", Help: "Total datagrams read from the UDP socket.",
	})
	PacketsOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "towerwars_zone_packets_out_total", Help: "Total datagrams written to the UDP socket.",
	})
	BytesIn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "towerwars_zone_bytes_in_total", Help: "Total bytes read from the UDP socket.",
	})
	BytesOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "towerwars_zone_bytes_out_total", Help: "Total bytes written to the UDP socket.",
	})
	FrameErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "towerwars_zone_frame_errors_total", Help: "Total malformed or undeliverable datagrams.",
	}, []string{"kind"})
	Retransmits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "towerwars_zone_retransmits_total", Help: "Total reliable frame retransmissions.",
	})
	ActivePeers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "towerwars_zone_active_peers", Help: "Currently connected transport peers.",
	})
	PeerDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "towerwars_zone_peer_drops_total", Help: "Total peers dropped, by reason.",
	}, []string{"reason"})

	// Protocol and routing.
	PacketDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "towerwars_zone_packet_decode_errors_total", Help: "Total application packet decode failures.",
	})
	PacketsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "towerwars_zone_packets_rejected_total", Help: "Total packets rejected by the router, by reason.",
	}, []string{"reason"})
	AuthResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "towerwars_zone_auth_results_total", Help: "Handshake outcomes, by result.",
	}, []string{"result"})

	// Simulation.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "towerwars_zone_active_sessions", Help: "Currently running game sessions.",
	})
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "towerwars_zone_ticks_total", Help: "Total simulation ticks advanced across all sessions.",
	})
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "towerwars_zone_tick_duration_seconds",
		Help:    "Wall time spent advancing one scheduler step.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})
	TickBudgetOverruns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "towerwars_zone_tick_budget_overruns_total", Help: "Scheduler steps that exceeded the tick interval.",
	})

	// Event pipeline.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "towerwars_zone_events_published_total", Help: "Game events accepted onto the stream, by type.",
	}, []string{"type"})
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "towerwars_zone_events_dropped_total", Help: "Game events discarded before reaching the stream, by reason.",
	}, []string{"reason"})
	EventPublishRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "towerwars_zone_event_publish_retries_total", Help: "Retried stream publish calls.",
	})
	EventQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "towerwars_zone_event_queue_depth", Help: "Current depth of the publish queue.",
	})

	// Consumers (events worker).
	ConsumerRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "towerwars_events_consumer_records_total", Help: "Stream records processed, by group and outcome.",
	}, []string{"group", "outcome"})
	ConsumerDeadLetters = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "towerwars_events_consumer_dead_letters_total", Help: "Records moved to the dead-letter stream, by group.",
	}, []string{"group"})
	ConsumerLag = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "towerwars_events_consumer_pending", Help: "Pending entries for the group at last check.",
	}, []string{"group"})
)
