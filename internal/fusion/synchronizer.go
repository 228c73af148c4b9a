package fusion

import (
	"fmt"
	"time"
)

// DefaultMaxSkew is the maximum per-stream skew against the trigger
// timestamp when none is configured.
const DefaultMaxSkew = 100 * time.Millisecond

// Default per-stream staleness thresholds. Point clouds arrive slowest (one
// per rotation) and tolerate the most age; images arrive fastest and the
// least.
const (
	DefaultPointCloudStaleness = 150 * time.Millisecond
	DefaultDetectionStaleness  = 100 * time.Millisecond
	DefaultImageStaleness      = 80 * time.Millisecond
)

// AlignedSet is one coherent tuple of samples, all within the maximum skew of
// the trigger timestamp.
type AlignedSet struct {
	ReferenceNanos int64
	Anchor         StreamKind

	PointCloud PointCloudSample
	Detection  DetectionSample
	Image      ImageSample
}

// Synchronizer selects one representative sample per stream that best matches
// a common reference time. The reference is always the timestamp of whichever
// stream just delivered a sample ("whoever just arrived is the anchor"), so
// no shared clock tick is needed and alignment never blocks.
//
// When two streams arrive near-simultaneously, first arrival wins: triggers
// are processed strictly in notification order and the later arrival simply
// anchors the next attempt.
type Synchronizer struct {
	maxSkew time.Duration

	pointClouds *SampleBuffer[PointCloudSample]
	detections  *SampleBuffer[DetectionSample]
	images      *SampleBuffer[ImageSample]
}

// SynchronizerConfig configures buffer sizes and time windows. Zero values
// take the package defaults.
type SynchronizerConfig struct {
	MaxSkew        time.Duration
	BufferCapacity int

	PointCloudStaleness time.Duration
	DetectionStaleness  time.Duration
	ImageStaleness      time.Duration
}

// NewSynchronizer creates a Synchronizer and its per-stream buffers.
func NewSynchronizer(cfg SynchronizerConfig) *Synchronizer {
	if cfg.MaxSkew <= 0 {
		cfg.MaxSkew = DefaultMaxSkew
	}
	if cfg.PointCloudStaleness <= 0 {
		cfg.PointCloudStaleness = DefaultPointCloudStaleness
	}
	if cfg.DetectionStaleness <= 0 {
		cfg.DetectionStaleness = DefaultDetectionStaleness
	}
	if cfg.ImageStaleness <= 0 {
		cfg.ImageStaleness = DefaultImageStaleness
	}
	return &Synchronizer{
		maxSkew:     cfg.MaxSkew,
		pointClouds: NewSampleBuffer[PointCloudSample](cfg.BufferCapacity, cfg.PointCloudStaleness),
		detections:  NewSampleBuffer[DetectionSample](cfg.BufferCapacity, cfg.DetectionStaleness),
		images:      NewSampleBuffer[ImageSample](cfg.BufferCapacity, cfg.ImageStaleness),
	}
}

// PushPointCloud buffers a new point-cloud sample.
func (s *Synchronizer) PushPointCloud(sample PointCloudSample) { s.pointClouds.Push(sample) }

// PushDetection buffers a new detection sample.
func (s *Synchronizer) PushDetection(sample DetectionSample) { s.detections.Push(sample) }

// PushImage buffers a new image sample.
func (s *Synchronizer) PushImage(sample ImageSample) { s.images.Push(sample) }

// Align attempts to build a coherent sample tuple anchored at refNanos, the
// timestamp of the sample that just arrived on the anchor stream. It
// succeeds iff every stream yields a sample within the maximum skew of the
// anchor. On failure the attempt is simply dropped; late data eventually
// becomes the next trigger, so there is nothing to queue.
func (s *Synchronizer) Align(anchor StreamKind, refNanos int64) (AlignedSet, error) {
	var set AlignedSet

	pc, ok := s.pointClouds.Nearest(refNanos)
	if !ok {
		return set, fmt.Errorf("%s: %w", StreamPointCloud, ErrStreamGap)
	}
	if skew(pc.TimestampNanos, refNanos) > s.maxSkew {
		return set, fmt.Errorf("%s: %w", StreamPointCloud, ErrSkewExceeded)
	}

	det, ok := s.detections.Nearest(refNanos)
	if !ok {
		return set, fmt.Errorf("%s: %w", StreamDetection, ErrStreamGap)
	}
	if skew(det.TimestampNanos, refNanos) > s.maxSkew {
		return set, fmt.Errorf("%s: %w", StreamDetection, ErrSkewExceeded)
	}

	img, ok := s.images.Nearest(refNanos)
	if !ok {
		return set, fmt.Errorf("%s: %w", StreamImage, ErrStreamGap)
	}
	if skew(img.TimestampNanos, refNanos) > s.maxSkew {
		return set, fmt.Errorf("%s: %w", StreamImage, ErrSkewExceeded)
	}

	// Success: consume all three so no sample fuses twice while another one
	// is available.
	s.pointClouds.MarkConsumed(pc.TimestampNanos)
	s.detections.MarkConsumed(det.TimestampNanos)
	s.images.MarkConsumed(img.TimestampNanos)

	return AlignedSet{
		ReferenceNanos: refNanos,
		Anchor:         anchor,
		PointCloud:     pc,
		Detection:      det,
		Image:          img,
	}, nil
}

// skew returns the absolute time difference between two timestamps.
func skew(aNanos, bNanos int64) time.Duration {
	d := aNanos - bNanos
	if d < 0 {
		d = -d
	}
	return time.Duration(d)
}
