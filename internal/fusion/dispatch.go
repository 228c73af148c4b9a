package fusion

import (
	"context"
	"errors"

	"github.com/newslab-data/fuseviz/internal/monitoring"
)

// DefaultFailureWarnThreshold is the number of consecutive synchronization
// failures after which one diagnostic warning is emitted.
const DefaultFailureWarnThreshold = 50

// ProjectFunc maps a point cloud into pixel space. Wired by the caller so the
// dispatch loop stays independent of the calibration package.
type ProjectFunc func(PointCloudSample) (points []ProjectedPoint, outOfView int)

// trigger is one "a sample just arrived" event.
type trigger struct {
	kind    StreamKind
	tsNanos int64
}

// Dispatcher drives the pipeline: sensor drivers call the Ingest methods from
// their own goroutines, and a single Run goroutine reacts to each arrival by
// attempting synchronization, projection, and assembly. The loop alternates
// between idle (waiting for a trigger) and one bounded unit of work per
// trigger; it never blocks on I/O and never terminates on per-sample errors.
type Dispatcher struct {
	sync      *Synchronizer
	project   ProjectFunc
	warnAfter int

	triggers chan trigger
	frames   chan *FusedFrame

	// Single-consumer state, touched only inside Run.
	lastEmittedNanos    int64
	consecutiveFailures int
	warned              bool
}

// DispatcherConfig wires a Dispatcher. Projector is required; zero values
// elsewhere take package defaults.
type DispatcherConfig struct {
	Synchronizer *Synchronizer
	Projector    ProjectFunc

	// FailureWarnThreshold is the consecutive-failure count that triggers a
	// stale-pipeline warning. Never fatal; the loop keeps running.
	FailureWarnThreshold int

	// TriggerQueueSize bounds the pending-arrival queue. Excess triggers are
	// dropped: a dropped trigger only delays the next fusion until the next
	// arrival, it never loses sample data.
	TriggerQueueSize int

	// FrameQueueSize bounds the output queue. Frames the renderer does not
	// take in time are superseded.
	FrameQueueSize int
}

// NewDispatcher creates a Dispatcher around an existing Synchronizer.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Synchronizer == nil {
		cfg.Synchronizer = NewSynchronizer(SynchronizerConfig{})
	}
	if cfg.FailureWarnThreshold <= 0 {
		cfg.FailureWarnThreshold = DefaultFailureWarnThreshold
	}
	if cfg.TriggerQueueSize <= 0 {
		cfg.TriggerQueueSize = 64
	}
	if cfg.FrameQueueSize <= 0 {
		cfg.FrameQueueSize = 8
	}
	if cfg.Projector == nil {
		// Frames then carry no overlay; useful in tests and degraded runs.
		cfg.Projector = func(PointCloudSample) ([]ProjectedPoint, int) { return nil, 0 }
	}
	return &Dispatcher{
		sync:      cfg.Synchronizer,
		project:   cfg.Projector,
		warnAfter: cfg.FailureWarnThreshold,
		triggers:  make(chan trigger, cfg.TriggerQueueSize),
		frames:    make(chan *FusedFrame, cfg.FrameQueueSize),
	}
}

// Frames returns the output channel of fused frames. The channel is closed
// when Run returns.
func (d *Dispatcher) Frames() <-chan *FusedFrame { return d.frames }

// IngestPointCloud accepts a new LiDAR sample from its driver goroutine.
func (d *Dispatcher) IngestPointCloud(sample PointCloudSample) {
	d.sync.PushPointCloud(sample)
	d.notify(StreamPointCloud, sample.TimestampNanos)
}

// IngestDetection accepts a new detector sample from its driver goroutine.
func (d *Dispatcher) IngestDetection(sample DetectionSample) {
	d.sync.PushDetection(sample)
	d.notify(StreamDetection, sample.TimestampNanos)
}

// IngestImage accepts a new camera frame from its driver goroutine.
func (d *Dispatcher) IngestImage(sample ImageSample) {
	d.sync.PushImage(sample)
	d.notify(StreamImage, sample.TimestampNanos)
}

// notify posts a trigger without blocking the producer. The sample is already
// buffered, so dropping the trigger under load is safe.
func (d *Dispatcher) notify(kind StreamKind, tsNanos int64) {
	monitoring.SamplesIngested.WithLabelValues(kind.String()).Inc()
	select {
	case d.triggers <- trigger{kind: kind, tsNanos: tsNanos}:
	default:
		monitoring.TriggersDropped.WithLabelValues("queue_full").Inc()
	}
}

// Run processes triggers until ctx is cancelled, then closes the frame
// channel and returns. It must be called exactly once.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.frames)

	for {
		select {
		case <-ctx.Done():
			return
		case trig := <-d.triggers:
			d.step(trig)
		}
	}
}

// step performs one bounded synchronization attempt: buffer lookups,
// projection, assembly. No loops over unbounded input, no blocking I/O.
func (d *Dispatcher) step(trig trigger) {
	// Ordering guarantee: emitted reference timestamps are non-decreasing,
	// so triggers older than the last emitted frame are dropped outright.
	if trig.tsNanos < d.lastEmittedNanos {
		monitoring.TriggersDropped.WithLabelValues("stale").Inc()
		return
	}

	set, err := d.sync.Align(trig.kind, trig.tsNanos)
	if err != nil {
		d.recordFailure(err)
		return
	}

	points, outOfView := d.project(set.PointCloud)
	monitoring.PointsOutOfView.Add(float64(outOfView))

	frame, err := Assemble(set, points, outOfView)
	if err != nil {
		monitoring.InvalidInputs.Inc()
		monitoring.Logf("[Dispatch] dropped frame attempt at ref=%d: %v", trig.tsNanos, err)
		return
	}

	d.consecutiveFailures = 0
	d.warned = false
	d.lastEmittedNanos = frame.ReferenceNanos
	monitoring.FramesFused.Inc()

	select {
	case d.frames <- frame:
	default:
		// The renderer is behind; this frame is superseded by the next one.
		monitoring.FramesDropped.Inc()
	}
}

// recordFailure counts a failed attempt and emits a single stale-pipeline
// warning once the consecutive-failure threshold is crossed. The condition
// is reported, never fatal.
func (d *Dispatcher) recordFailure(err error) {
	switch {
	case errors.Is(err, ErrStreamGap):
		monitoring.SyncFailures.WithLabelValues("stream_gap").Inc()
	case errors.Is(err, ErrSkewExceeded):
		monitoring.SyncFailures.WithLabelValues("skew_exceeded").Inc()
	default:
		monitoring.SyncFailures.WithLabelValues("other").Inc()
	}

	d.consecutiveFailures++
	if d.consecutiveFailures >= d.warnAfter && !d.warned {
		d.warned = true
		monitoring.Logf("[Dispatch] %d consecutive synchronization failures (stale pipeline or miscalibrated clocks); last: %v",
			d.consecutiveFailures, err)
	}
}
