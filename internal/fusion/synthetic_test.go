package fusion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestSyntheticGenerator_PointCloud(t *testing.T) {
	g := NewSyntheticGenerator()
	ts := g.startNs + ms(100)

	pc := g.PointCloud(ts)
	assert.Equal(t, ts, pc.TimestampNanos)
	require.Len(t, pc.Points, g.PointCount)

	// Scatter stays near the target, well in front of the sensor.
	center := g.target(ts)
	for _, p := range pc.Points {
		assert.Less(t, r3.Norm(r3.Sub(p, center)), 5.0)
		assert.Greater(t, p.Z, 1.0)
	}
}

func TestSyntheticGenerator_DetectionTracksTarget(t *testing.T) {
	g := NewSyntheticGenerator()
	ts := g.startNs

	det := g.Detection(ts)
	require.Len(t, det.Boxes, 1)
	box := det.Boxes[0]

	assert.Equal(t, "target", box.Label)
	// The box stays on the image plane for the demo geometry.
	assert.Greater(t, box.CenterX, 0.0)
	assert.Less(t, box.CenterX, float64(g.ImageWidth))
	assert.Greater(t, box.CenterY, 0.0)
	assert.Less(t, box.CenterY, float64(g.ImageHeight))
}

func TestSyntheticGenerator_Image(t *testing.T) {
	g := NewSyntheticGenerator()
	img := g.Image(g.startNs)

	assert.Equal(t, g.ImageWidth, img.Width)
	assert.Equal(t, g.ImageHeight, img.Height)
	assert.Equal(t, "gray8", img.PixelFormat)
	assert.Len(t, img.Data, g.ImageWidth*g.ImageHeight)
}

func TestSyntheticGenerator_DrivesDispatcher(t *testing.T) {
	g := NewSyntheticGenerator()
	g.PointCount = 32
	g.PointCloudHz = 50
	g.DetectionHz = 50
	g.ImageHz = 50

	d := NewDispatcher(DispatcherConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go d.Run(ctx)
	go g.Run(ctx, d)

	select {
	case frame := <-d.Frames():
		require.NotNil(t, frame)
		assert.NotEmpty(t, frame.FrameID)
		assert.NotEmpty(t, frame.Image.Data)
	case <-time.After(5 * time.Second):
		t.Fatal("synthetic streams produced no fused frame")
	}
}
