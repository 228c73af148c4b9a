// Package fusion implements the multi-sensor synchronization core: per-stream
// sample buffers, trigger-anchored time alignment, fused-frame assembly, and
// the dispatch loop that drives them.
//
// Three independently clocked streams feed the pipeline: LiDAR point clouds,
// detector-camera bounding boxes, and raw camera images. Whenever any stream
// delivers a sample, that sample becomes the anchor of a synchronization
// attempt; if every other stream has a sample within the configured skew of
// the anchor, one immutable FusedFrame is emitted.
package fusion

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// StreamKind identifies one of the sensor streams feeding the pipeline.
type StreamKind int

const (
	StreamPointCloud StreamKind = iota
	StreamDetection
	StreamImage

	// NumStreams is the number of required streams per fused frame.
	NumStreams = 3
)

// String returns the stream name used in logs and metric labels.
func (k StreamKind) String() string {
	switch k {
	case StreamPointCloud:
		return "pointcloud"
	case StreamDetection:
		return "detection"
	case StreamImage:
		return "image"
	default:
		return "unknown"
	}
}

// PointCloudSample is one LiDAR sweep: a capture timestamp and the returned
// points in the LiDAR sensor frame. Not mutated after ingestion.
type PointCloudSample struct {
	TimestampNanos int64
	Points         []r3.Vec
}

// Box is an axis-aligned detection box in image-plane coordinates, as
// produced by the detector camera. Center-based like the detector wire
// format; Left/Top derive the corner form.
type Box struct {
	CenterX    float64
	CenterY    float64
	Width      float64
	Height     float64
	Label      string
	Confidence float32
}

// Left returns the left edge x coordinate.
func (b Box) Left() float64 { return b.CenterX - b.Width/2 }

// Top returns the top edge y coordinate.
func (b Box) Top() float64 { return b.CenterY - b.Height/2 }

// Contains reports whether pixel (u, v) falls inside the box.
func (b Box) Contains(u, v float64) bool {
	return u >= b.Left() && u < b.Left()+b.Width &&
		v >= b.Top() && v < b.Top()+b.Height
}

// DetectionSample is one detector output: a capture timestamp and the boxes
// found in that camera frame. Not mutated after ingestion.
type DetectionSample struct {
	TimestampNanos int64
	Boxes          []Box
}

// ImageSample is one raw camera frame. Data layout is PixelFormat-dependent
// (the capture driver owns validity); the pipeline treats it as opaque bytes.
type ImageSample struct {
	TimestampNanos int64
	Width          int
	Height         int
	PixelFormat    string
	Data           []byte
}

// ProjectedPoint is a LiDAR point mapped onto the image plane. U and V are
// integer pixel coordinates, rounded once at the end of the transform chain.
// BoxIndex is the index into the frame's Detections of the box containing the
// point, or -1 when no box contains it.
type ProjectedPoint struct {
	U, V     int
	Depth    float64 // camera-frame depth in meters
	Source   r3.Vec  // original LiDAR-frame point
	BoxIndex int
}

// FusedFrame is one temporally aligned, spatially fused view: the chosen
// image, the point-cloud overlay projected into its pixel space, and the
// detector boxes, all within the configured skew of ReferenceNanos.
// Consumed once by the renderer; never mutated after assembly.
type FusedFrame struct {
	FrameID        string
	ReferenceNanos int64
	Anchor         StreamKind

	Image      ImageSample
	Points     []ProjectedPoint
	Detections []Box

	// OutOfViewCount is the number of LiDAR points excluded from the overlay
	// (behind the camera, inside the minimum range, or outside image bounds).
	OutOfViewCount int

	// Per-stream skew against ReferenceNanos, for diagnostics.
	PointCloudSkew time.Duration
	DetectionSkew  time.Duration
	ImageSkew      time.Duration
}
