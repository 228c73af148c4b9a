// Package visualiser streams fused frames to renderer clients over
// WebSocket. Frames are encoded as JSON wire models; raw pixel data rides
// along base64-encoded via encoding/json's []byte handling so a browser
// client can paint it directly.
package visualiser

import (
	"github.com/newslab-data/fuseviz/internal/fusion"
)

// WireFrame is the JSON wire model of one fused frame.
type WireFrame struct {
	FrameID        string `json:"frame_id"`
	ReferenceNanos int64  `json:"reference_ns"`
	Anchor         string `json:"anchor"`

	Image      WireImage   `json:"image"`
	Points     []WirePoint `json:"points"`
	Detections []WireBox   `json:"detections"`

	OutOfViewCount int `json:"out_of_view_count"`

	PointCloudSkewNanos int64 `json:"pointcloud_skew_ns"`
	DetectionSkewNanos  int64 `json:"detection_skew_ns"`
	ImageSkewNanos      int64 `json:"image_skew_ns"`
}

// WireImage carries the raw camera frame.
type WireImage struct {
	TimestampNanos int64  `json:"timestamp_ns"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	PixelFormat    string `json:"pixel_format"`
	Data           []byte `json:"data"`
}

// WirePoint is one projected LiDAR point. Depth lets the client color the
// overlay by distance; BoxIndex references the detections array (-1 = none).
type WirePoint struct {
	U        int     `json:"u"`
	V        int     `json:"v"`
	Depth    float64 `json:"depth"`
	BoxIndex int     `json:"box_index"`
}

// WireBox is one detection box in image-plane coordinates.
type WireBox struct {
	CenterX    float64 `json:"cx"`
	CenterY    float64 `json:"cy"`
	Width      float64 `json:"w"`
	Height     float64 `json:"h"`
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}

// ToWire converts a fused frame to its wire model.
func ToWire(f *fusion.FusedFrame) *WireFrame {
	points := make([]WirePoint, len(f.Points))
	for i, p := range f.Points {
		points[i] = WirePoint{U: p.U, V: p.V, Depth: p.Depth, BoxIndex: p.BoxIndex}
	}
	boxes := make([]WireBox, len(f.Detections))
	for i, b := range f.Detections {
		boxes[i] = WireBox{
			CenterX:    b.CenterX,
			CenterY:    b.CenterY,
			Width:      b.Width,
			Height:     b.Height,
			Label:      b.Label,
			Confidence: b.Confidence,
		}
	}
	return &WireFrame{
		FrameID:        f.FrameID,
		ReferenceNanos: f.ReferenceNanos,
		Anchor:         f.Anchor.String(),
		Image: WireImage{
			TimestampNanos: f.Image.TimestampNanos,
			Width:          f.Image.Width,
			Height:         f.Image.Height,
			PixelFormat:    f.Image.PixelFormat,
			Data:           f.Image.Data,
		},
		Points:              points,
		Detections:          boxes,
		OutOfViewCount:      f.OutOfViewCount,
		PointCloudSkewNanos: int64(f.PointCloudSkew),
		DetectionSkewNanos:  int64(f.DetectionSkew),
		ImageSkewNanos:      int64(f.ImageSkew),
	}
}
