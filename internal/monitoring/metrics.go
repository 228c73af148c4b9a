package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the fusion pipeline. Registered on the default
// registry; cmd/fuseviz exposes them via promhttp.
var (
	// FramesFused counts successfully assembled fused frames.
	FramesFused = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fuseviz",
		Name:      "frames_fused_total",
		Help:      "Number of fused frames emitted by the dispatch loop.",
	})

	// SyncFailures counts failed synchronization attempts by reason
	// ("stream_gap" or "skew_exceeded").
	SyncFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fuseviz",
		Name:      "sync_failures_total",
		Help:      "Number of synchronization attempts that produced no frame.",
	}, []string{"reason"})

	// InvalidInputs counts fused-frame attempts dropped for malformed samples.
	InvalidInputs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fuseviz",
		Name:      "invalid_inputs_total",
		Help:      "Number of assembly attempts dropped due to malformed samples.",
	})

	// TriggersDropped counts trigger events discarded before synchronization
	// (queue full or older than the last emitted reference timestamp).
	TriggersDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fuseviz",
		Name:      "triggers_dropped_total",
		Help:      "Number of trigger events dropped before a synchronization attempt.",
	}, []string{"reason"})

	// PointsOutOfView counts projected points excluded from the overlay.
	PointsOutOfView = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fuseviz",
		Name:      "points_out_of_view_total",
		Help:      "Number of LiDAR points that projected outside the image or behind the camera.",
	})

	// FramesDropped counts fused frames superseded before a consumer took them.
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fuseviz",
		Name:      "frames_dropped_total",
		Help:      "Number of fused frames dropped because no consumer kept up.",
	})

	// SamplesIngested counts samples accepted per stream.
	SamplesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fuseviz",
		Name:      "samples_ingested_total",
		Help:      "Number of samples pushed into per-stream buffers.",
	}, []string{"stream"})
)
