package calib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const validYAML = `
extrinsics:
  rotation: [1, 0, 0, 0, 1, 0, 0, 0, 1]
  translation: [0.1, -0.05, 0.2]
intrinsics:
  fx: 908.5
  fy: 906.2
  cx: 639.5
  cy: 359.5
  distortion:
    k1: -0.054
    k2: 0.062
    p1: 0.0005
    p2: -0.0003
    k3: -0.021
image:
  width: 1280
  height: 720
min_range_m: 1.0
min_depth_m: 0.1
`

func writeCalib(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	m, err := Load(writeCalib(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, 1280, m.ImageWidth)
	assert.Equal(t, 720, m.ImageHeight)
	assert.Equal(t, 908.5, m.Intrinsics.Fx)
	assert.Equal(t, 359.5, m.Intrinsics.Cy)
	assert.Equal(t, -0.054, m.Intrinsics.Distortion.K1)
	assert.Equal(t, 1.0, m.MinRangeMeters)
	assert.Equal(t, 0.1, m.MinDepthMeters)
	assert.Equal(t, 0.1, m.Extrinsics.Translation.X)
	assert.Equal(t, 1.0, m.Extrinsics.Rotation.At(0, 0))
	assert.Equal(t, 0.0, m.Extrinsics.Rotation.At(0, 1))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeCalib(t, "extrinsics: [not: a: mapping"))
	assert.Error(t, err)
}

func TestLoad_BadShapes(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "short rotation",
			yaml: `
extrinsics:
  rotation: [1, 0, 0, 0, 1, 0]
  translation: [0, 0, 0]
intrinsics: {fx: 500, fy: 500, cx: 320, cy: 240}
image: {width: 640, height: 480}
`,
			want: "rotation must have 9 elements",
		},
		{
			name: "short translation",
			yaml: `
extrinsics:
  rotation: [1, 0, 0, 0, 1, 0, 0, 0, 1]
  translation: [0, 0]
intrinsics: {fx: 500, fy: 500, cx: 320, cy: 240}
image: {width: 640, height: 480}
`,
			want: "translation must have 3 elements",
		},
		{
			name: "zero focal length",
			yaml: `
extrinsics:
  rotation: [1, 0, 0, 0, 1, 0, 0, 0, 1]
  translation: [0, 0, 0]
intrinsics: {fx: 0, fy: 500, cx: 320, cy: 240}
image: {width: 640, height: 480}
`,
			want: "focal lengths must be positive",
		},
		{
			name: "zero image size",
			yaml: `
extrinsics:
  rotation: [1, 0, 0, 0, 1, 0, 0, 0, 1]
  translation: [0, 0, 0]
intrinsics: {fx: 500, fy: 500, cx: 320, cy: 240}
`,
			want: "image dimensions must be positive",
		},
		{
			name: "scaled rotation",
			yaml: `
extrinsics:
  rotation: [2, 0, 0, 0, 2, 0, 0, 0, 2]
  translation: [0, 0, 0]
intrinsics: {fx: 500, fy: 500, cx: 320, cy: 240}
image: {width: 640, height: 480}
`,
			want: "not a proper rotation",
		},
		{
			name: "reflection",
			yaml: `
extrinsics:
  rotation: [-1, 0, 0, 0, 1, 0, 0, 0, 1]
  translation: [0, 0, 0]
intrinsics: {fx: 500, fy: 500, cx: 320, cy: 240}
image: {width: 640, height: 480}
`,
			want: "not a proper rotation",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeCalib(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MinDepthDefault(t *testing.T) {
	yaml := `
extrinsics:
  rotation: [1, 0, 0, 0, 1, 0, 0, 0, 1]
  translation: [0, 0, 0]
intrinsics: {fx: 500, fy: 500, cx: 320, cy: 240}
image: {width: 640, height: 480}
`
	m, err := Load(writeCalib(t, yaml))
	require.NoError(t, err)
	assert.Greater(t, m.MinDepthMeters, 0.0)
}

func TestPinhole(t *testing.T) {
	m := Pinhole(640, 480, 500, 500, 320, 240)
	require.NoError(t, m.Validate())

	assert.Equal(t, 640, m.ImageWidth)
	assert.Equal(t, 500.0, m.Intrinsics.Fx)
	assert.Equal(t, Distortion{}, m.Intrinsics.Distortion)
	assert.InDelta(t, 1.0, mat.Det(m.Extrinsics.Rotation), 1e-12)
}

func TestValidate_NilRotation(t *testing.T) {
	m := Pinhole(640, 480, 500, 500, 320, 240)
	m.Extrinsics.Rotation = nil
	assert.ErrorContains(t, m.Validate(), "missing extrinsic rotation")
}
