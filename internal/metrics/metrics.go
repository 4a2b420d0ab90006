// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CapturePacketsTotal counts packets read from the capture source.
	CapturePacketsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bpsr_meter_capture_packets_total",
			Help: "Total number of packets read from the capture source",
		},
	)

	// CaptureDropsTotal counts packets dropped before decoding.
	CaptureDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bpsr_meter_capture_drops_total",
			Help: "Total number of packets dropped before decoding",
		},
		[]string{"reason"},
	)

	// StreamSegmentsTotal counts TCP segments by disposition.
	StreamSegmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bpsr_meter_stream_segments_total",
			Help: "Total number of TCP segments processed by the reassembler",
		},
		[]string{"disposition"}, // in_order | buffered | duplicate
	)

	// StreamResyncsTotal counts forced resyncs after gap timeouts.
	StreamResyncsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bpsr_meter_stream_resyncs_total",
			Help: "Total number of forced resyncs after a gap timeout",
		},
	)

	// StreamActiveFlows tracks currently tracked TCP flows.
	StreamActiveFlows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bpsr_meter_stream_active_flows",
			Help: "Number of TCP flows currently tracked",
		},
	)

	// FramesTotal counts protocol frames by outcome.
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bpsr_meter_frames_total",
			Help: "Total number of protocol frames by outcome",
		},
		[]string{"outcome"}, // decoded | compressed | corrupt
	)

	// EventsTotal counts decoded events by kind.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bpsr_meter_events_total",
			Help: "Total number of decoded combat events by kind",
		},
		[]string{"kind"},
	)

	// EventsDroppedTotal counts events dropped for missing fields.
	EventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bpsr_meter_events_dropped_total",
			Help: "Total number of events dropped for missing required fields",
		},
	)

	// SnapshotDropsTotal counts snapshots a slow consumer missed.
	SnapshotDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bpsr_meter_snapshot_drops_total",
			Help: "Total number of snapshots dropped for slow consumers",
		},
	)
)
