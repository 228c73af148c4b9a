package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func validSet() AlignedSet {
	return AlignedSet{
		ReferenceNanos: ms(1040),
		Anchor:         StreamImage,
		PointCloud:     cloudAt(ms(1000)),
		Detection:      detAt(ms(1050)),
		Image:          imgAt(ms(1040)),
	}
}

func TestAssemble(t *testing.T) {
	points := []ProjectedPoint{
		{U: 320, V: 240, Depth: 10, Source: r3.Vec{Z: 10}},
	}

	frame, err := Assemble(validSet(), points, 3)
	require.NoError(t, err)

	assert.NotEmpty(t, frame.FrameID)
	assert.Equal(t, ms(1040), frame.ReferenceNanos)
	assert.Equal(t, StreamImage, frame.Anchor)
	assert.Equal(t, 3, frame.OutOfViewCount)
	assert.Len(t, frame.Points, 1)
	assert.Len(t, frame.Detections, 1)

	assert.Equal(t, 40*time.Millisecond, frame.PointCloudSkew)
	assert.Equal(t, 10*time.Millisecond, frame.DetectionSkew)
	assert.Equal(t, time.Duration(0), frame.ImageSkew)
}

func TestAssemble_UniqueFrameIDs(t *testing.T) {
	a, err := Assemble(validSet(), nil, 0)
	require.NoError(t, err)
	b, err := Assemble(validSet(), nil, 0)
	require.NoError(t, err)
	assert.NotEqual(t, a.FrameID, b.FrameID)
}

func TestAssemble_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AlignedSet)
	}{
		{"zero image width", func(s *AlignedSet) { s.Image.Width = 0 }},
		{"negative image height", func(s *AlignedSet) { s.Image.Height = -1 }},
		{"empty pixel buffer", func(s *AlignedSet) { s.Image.Data = nil }},
		{"empty point cloud", func(s *AlignedSet) { s.PointCloud.Points = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := validSet()
			tt.mutate(&set)
			frame, err := Assemble(set, nil, 0)
			assert.Nil(t, frame)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestAssemble_BoxAssociation(t *testing.T) {
	set := validSet()
	set.Detection.Boxes = []Box{
		{CenterX: 100, CenterY: 100, Width: 50, Height: 50},
		{CenterX: 120, CenterY: 100, Width: 50, Height: 50}, // overlaps the first
		{CenterX: 500, CenterY: 400, Width: 20, Height: 20},
	}

	points := []ProjectedPoint{
		{U: 100, V: 100}, // inside boxes 0 and 1; first containing box wins
		{U: 130, V: 100}, // inside box 1 only
		{U: 500, V: 400}, // inside box 2
		{U: 10, V: 10},   // outside every box
	}

	frame, err := Assemble(set, points, 0)
	require.NoError(t, err)

	assert.Equal(t, 0, frame.Points[0].BoxIndex)
	assert.Equal(t, 1, frame.Points[1].BoxIndex)
	assert.Equal(t, 2, frame.Points[2].BoxIndex)
	assert.Equal(t, -1, frame.Points[3].BoxIndex)
}

func TestAssemble_DoesNotMutateInput(t *testing.T) {
	set := validSet()
	set.Detection.Boxes = []Box{
		{CenterX: 100, CenterY: 100, Width: 50, Height: 50},
	}
	points := []ProjectedPoint{
		{U: 10, V: 10}, // outside the box, annotated as -1 on the frame
	}

	frame, err := Assemble(set, points, 0)
	require.NoError(t, err)

	assert.Equal(t, -1, frame.Points[0].BoxIndex)
	assert.Equal(t, 0, points[0].BoxIndex, "caller's slice must stay untouched")
}

func TestAssemble_NoPointsIsValid(t *testing.T) {
	// Every point projected out of view still yields a frame; the overlay
	// is just empty.
	frame, err := Assemble(validSet(), nil, 42)
	require.NoError(t, err)
	assert.Empty(t, frame.Points)
	assert.Equal(t, 42, frame.OutOfViewCount)
}
