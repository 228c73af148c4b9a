package fusion

import (
	"fmt"

	"github.com/google/uuid"
)

// Assemble combines an aligned sample tuple with its projected point overlay
// into one immutable FusedFrame. Pure construction: no I/O, no retries. It
// fails only on malformed input, in which case the frame attempt is dropped
// (upstream drivers own sample validity).
//
// Each in-view projected point is associated with the first detection box
// containing it, recorded in the point's BoxIndex.
func Assemble(set AlignedSet, points []ProjectedPoint, outOfView int) (*FusedFrame, error) {
	img := set.Image
	if img.Width <= 0 || img.Height <= 0 {
		return nil, fmt.Errorf("image %dx%d: %w", img.Width, img.Height, ErrInvalidInput)
	}
	if len(img.Data) == 0 {
		return nil, fmt.Errorf("image with empty pixel buffer: %w", ErrInvalidInput)
	}
	if len(set.PointCloud.Points) == 0 {
		return nil, fmt.Errorf("empty point cloud: %w", ErrInvalidInput)
	}

	// Annotate a copy so the caller's slice is never written to.
	boxes := set.Detection.Boxes
	annotated := make([]ProjectedPoint, len(points))
	copy(annotated, points)
	for i := range annotated {
		annotated[i].BoxIndex = containingBox(boxes, annotated[i])
	}

	return &FusedFrame{
		FrameID:        uuid.NewString(),
		ReferenceNanos: set.ReferenceNanos,
		Anchor:         set.Anchor,
		Image:          img,
		Points:         annotated,
		Detections:     boxes,
		OutOfViewCount: outOfView,
		PointCloudSkew: skew(set.PointCloud.TimestampNanos, set.ReferenceNanos),
		DetectionSkew:  skew(set.Detection.TimestampNanos, set.ReferenceNanos),
		ImageSkew:      skew(set.Image.TimestampNanos, set.ReferenceNanos),
	}, nil
}

// containingBox returns the index of the first box containing the point's
// pixel coordinates, or -1 when none does.
func containingBox(boxes []Box, p ProjectedPoint) int {
	u, v := float64(p.U), float64(p.V)
	for i, b := range boxes {
		if b.Contains(u, v) {
			return i
		}
	}
	return -1
}
