package fusion

import (
	"context"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// SyntheticGenerator produces plausible sensor samples for demos and tests:
// a ring of LiDAR points around a moving target ahead of the camera, a
// detection box following the target on the image plane, and flat gray
// camera frames. Each stream runs at its own rate with its own phase, which
// exercises the synchronizer the way real unsynchronized sensors do.
type SyntheticGenerator struct {
	ImageWidth  int
	ImageHeight int
	PixelFormat string

	PointCount   int
	TargetRadius float64 // metres, circular target path radius
	TargetSpeed  float64 // radians per second along the path
	PointCloudHz float64
	DetectionHz  float64
	ImageHz      float64

	startNs int64
	rng     *rand.Rand
}

// NewSyntheticGenerator returns a generator with demo-scale defaults.
func NewSyntheticGenerator() *SyntheticGenerator {
	return &SyntheticGenerator{
		ImageWidth:   640,
		ImageHeight:  480,
		PixelFormat:  "gray8",
		PointCount:   512,
		TargetRadius: 2.0,
		TargetSpeed:  0.5,
		PointCloudHz: 10,
		DetectionHz:  15,
		ImageHz:      25,
		startNs:      time.Now().UnixNano(),
		rng:          rand.New(rand.NewSource(42)),
	}
}

// target returns the moving target's position in the LiDAR frame at t.
func (g *SyntheticGenerator) target(tsNanos int64) r3.Vec {
	elapsed := float64(tsNanos-g.startNs) / 1e9
	angle := elapsed * g.TargetSpeed
	return r3.Vec{
		X: g.TargetRadius * math.Sin(angle),
		Y: g.TargetRadius * math.Cos(angle) * 0.3,
		Z: 8.0, // metres ahead of the camera
	}
}

// PointCloud generates one sweep: points scattered around the target.
func (g *SyntheticGenerator) PointCloud(tsNanos int64) PointCloudSample {
	center := g.target(tsNanos)
	points := make([]r3.Vec, g.PointCount)
	for i := range points {
		points[i] = r3.Vec{
			X: center.X + g.rng.NormFloat64()*0.4,
			Y: center.Y + g.rng.NormFloat64()*0.4,
			Z: center.Z + g.rng.NormFloat64()*0.4,
		}
	}
	return PointCloudSample{TimestampNanos: tsNanos, Points: points}
}

// Detection generates one detector output: a single box tracking the target
// under an ideal pinhole with focal length 500 centered on the image.
func (g *SyntheticGenerator) Detection(tsNanos int64) DetectionSample {
	center := g.target(tsNanos)
	fx, fy := 500.0, 500.0
	cx, cy := float64(g.ImageWidth)/2, float64(g.ImageHeight)/2
	return DetectionSample{
		TimestampNanos: tsNanos,
		Boxes: []Box{{
			CenterX:    fx*center.X/center.Z + cx,
			CenterY:    fy*center.Y/center.Z + cy,
			Width:      120,
			Height:     90,
			Label:      "target",
			Confidence: 0.9,
		}},
	}
}

// Image generates one flat camera frame.
func (g *SyntheticGenerator) Image(tsNanos int64) ImageSample {
	data := make([]byte, g.ImageWidth*g.ImageHeight)
	for i := range data {
		data[i] = 0x20
	}
	return ImageSample{
		TimestampNanos: tsNanos,
		Width:          g.ImageWidth,
		Height:         g.ImageHeight,
		PixelFormat:    g.PixelFormat,
		Data:           data,
	}
}

// Run feeds the dispatcher from three tickers, one per stream, until ctx is
// cancelled. It stands in for the external driver collaborators during demos.
func (g *SyntheticGenerator) Run(ctx context.Context, d *Dispatcher) {
	pcTicker := time.NewTicker(hzToInterval(g.PointCloudHz))
	detTicker := time.NewTicker(hzToInterval(g.DetectionHz))
	imgTicker := time.NewTicker(hzToInterval(g.ImageHz))
	defer pcTicker.Stop()
	defer detTicker.Stop()
	defer imgTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-pcTicker.C:
			d.IngestPointCloud(g.PointCloud(t.UnixNano()))
		case t := <-detTicker.C:
			d.IngestDetection(g.Detection(t.UnixNano()))
		case t := <-imgTicker.C:
			d.IngestImage(g.Image(t.UnixNano()))
		}
	}
}

func hzToInterval(hz float64) time.Duration {
	if hz <= 0 {
		hz = 1
	}
	return time.Duration(float64(time.Second) / hz)
}
