// Package calib loads and validates the fixed LiDAR→camera calibration: the
// extrinsic rigid transform, the camera intrinsic matrix, and the lens
// distortion coefficients.
//
// The calibration file is human-editable YAML, loaded once at startup. A
// missing or unparsable calibration is fatal: every geometric output would be
// meaningless without it. The loaded Model is read-only for the process
// lifetime and safe for concurrent reads.
package calib

import (
	"fmt"
	"math"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// RotationOrthonormalityTolerance bounds the allowed deviation of the
// rotation determinant from 1 when validating the extrinsic transform.
const RotationOrthonormalityTolerance = 0.01

// Distortion holds Brown–Conrady lens distortion coefficients.
type Distortion struct {
	K1 float64 `koanf:"k1"`
	K2 float64 `koanf:"k2"`
	P1 float64 `koanf:"p1"`
	P2 float64 `koanf:"p2"`
	K3 float64 `koanf:"k3"`
}

// Intrinsics holds the pinhole camera parameters mapping camera-frame
// coordinates to pixels.
type Intrinsics struct {
	Fx float64 `koanf:"fx"`
	Fy float64 `koanf:"fy"`
	Cx float64 `koanf:"cx"`
	Cy float64 `koanf:"cy"`

	Distortion Distortion `koanf:"distortion"`
}

// Extrinsics is the rigid transform mapping LiDAR-frame points into the
// camera frame: p_cam = R·p_lidar + T.
type Extrinsics struct {
	Rotation    *mat.Dense // 3x3
	Translation r3.Vec
}

// Model is the full calibration: extrinsics, intrinsics, image geometry, and
// the near-field cuts applied before projection.
type Model struct {
	Extrinsics Extrinsics
	Intrinsics Intrinsics

	ImageWidth  int
	ImageHeight int

	// MinRangeMeters excludes LiDAR returns closer than this to the sensor
	// (self-returns from the mounting hardware).
	MinRangeMeters float64

	// MinDepthMeters excludes points this close to or behind the camera
	// plane. Must be > 0; perspective division diverges at depth zero.
	MinDepthMeters float64
}

// fileSchema mirrors the YAML layout of a calibration file.
type fileSchema struct {
	Extrinsics struct {
		Rotation    []float64 `koanf:"rotation"` // row-major 3x3
		Translation []float64 `koanf:"translation"`
	} `koanf:"extrinsics"`
	Intrinsics Intrinsics `koanf:"intrinsics"`
	Image      struct {
		Width  int `koanf:"width"`
		Height int `koanf:"height"`
	} `koanf:"image"`
	MinRangeMeters float64 `koanf:"min_range_m"`
	MinDepthMeters float64 `koanf:"min_depth_m"`
}

// Load reads and validates a calibration file. Any error here is a startup
// failure for the pipeline.
func Load(path string) (*Model, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("read calibration %s: %w", path, err)
	}

	var raw fileSchema
	if err := k.UnmarshalWithConf("", &raw, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("parse calibration %s: %w", path, err)
	}

	if len(raw.Extrinsics.Rotation) != 9 {
		return nil, fmt.Errorf("calibration %s: rotation must have 9 elements, got %d", path, len(raw.Extrinsics.Rotation))
	}
	if len(raw.Extrinsics.Translation) != 3 {
		return nil, fmt.Errorf("calibration %s: translation must have 3 elements, got %d", path, len(raw.Extrinsics.Translation))
	}

	m := &Model{
		Extrinsics: Extrinsics{
			Rotation: mat.NewDense(3, 3, append([]float64(nil), raw.Extrinsics.Rotation...)),
			Translation: r3.Vec{
				X: raw.Extrinsics.Translation[0],
				Y: raw.Extrinsics.Translation[1],
				Z: raw.Extrinsics.Translation[2],
			},
		},
		Intrinsics:     raw.Intrinsics,
		ImageWidth:     raw.Image.Width,
		ImageHeight:    raw.Image.Height,
		MinRangeMeters: raw.MinRangeMeters,
		MinDepthMeters: raw.MinDepthMeters,
	}
	if m.MinDepthMeters <= 0 {
		m.MinDepthMeters = 1e-6
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("calibration %s: %w", path, err)
	}
	return m, nil
}

// Pinhole builds an ideal undistorted model with an identity extrinsic
// transform. Used by synthetic mode and tests.
func Pinhole(width, height int, fx, fy, cx, cy float64) *Model {
	return &Model{
		Extrinsics: Extrinsics{
			Rotation: mat.NewDense(3, 3, []float64{
				1, 0, 0,
				0, 1, 0,
				0, 0, 1,
			}),
		},
		Intrinsics:     Intrinsics{Fx: fx, Fy: fy, Cx: cx, Cy: cy},
		ImageWidth:     width,
		ImageHeight:    height,
		MinDepthMeters: 1e-6,
	}
}

// Validate checks that the model describes a usable camera: positive focal
// lengths, positive image dimensions, and a proper rotation (orthonormal,
// determinant ≈ 1, not a reflection).
func (m *Model) Validate() error {
	if m.ImageWidth <= 0 || m.ImageHeight <= 0 {
		return fmt.Errorf("image dimensions must be positive, got %dx%d", m.ImageWidth, m.ImageHeight)
	}
	if m.Intrinsics.Fx <= 0 || m.Intrinsics.Fy <= 0 {
		return fmt.Errorf("focal lengths must be positive, got fx=%g fy=%g", m.Intrinsics.Fx, m.Intrinsics.Fy)
	}
	if m.Extrinsics.Rotation == nil {
		return fmt.Errorf("missing extrinsic rotation")
	}
	if r, c := m.Extrinsics.Rotation.Dims(); r != 3 || c != 3 {
		return fmt.Errorf("rotation must be 3x3, got %dx%d", r, c)
	}
	det := mat.Det(m.Extrinsics.Rotation)
	if math.Abs(det-1.0) > RotationOrthonormalityTolerance {
		return fmt.Errorf("rotation is not a proper rotation matrix (det=%g)", det)
	}
	return nil
}
