// Package projection maps LiDAR-frame geometry onto the raw camera's image
// plane using the fixed extrinsic/intrinsic calibration.
package projection

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/newslab-data/fuseviz/internal/calib"
	"github.com/newslab-data/fuseviz/internal/fusion"
)

// Projector projects 3D point clouds into 2D pixel coordinates. It
// precomputes the calibration into flat values so the per-point hot path does
// no matrix allocation. The full transform chain runs in float64; rounding to
// integer pixels happens once, at the very end.
//
// Detection boxes are already in image-plane coordinates and pass through the
// pipeline untouched; the projector's only transform duty is the point cloud.
type Projector struct {
	r [9]float64 // row-major extrinsic rotation
	t r3.Vec

	in     calib.Intrinsics
	width  float64
	height float64

	minRange float64
	minDepth float64
}

// New builds a Projector from a validated calibration model.
func New(m *calib.Model) *Projector {
	p := &Projector{
		t:        m.Extrinsics.Translation,
		in:       m.Intrinsics,
		width:    float64(m.ImageWidth),
		height:   float64(m.ImageHeight),
		minRange: m.MinRangeMeters,
		minDepth: m.MinDepthMeters,
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			p.r[i*3+j] = m.Extrinsics.Rotation.At(i, j)
		}
	}
	return p
}

// Project transforms every point of pc into pixel space. Points behind the
// camera plane, inside the minimum range, or outside the image bounds are
// excluded from the result and counted in outOfView for diagnostics.
func (p *Projector) Project(pc fusion.PointCloudSample) (points []fusion.ProjectedPoint, outOfView int) {
	if len(pc.Points) == 0 {
		return nil, 0
	}

	points = make([]fusion.ProjectedPoint, 0, len(pc.Points))
	for _, pt := range pc.Points {
		if p.minRange > 0 && r3.Norm(pt) < p.minRange {
			outOfView++
			continue
		}

		// LiDAR frame -> camera frame.
		cx := p.r[0]*pt.X + p.r[1]*pt.Y + p.r[2]*pt.Z + p.t.X
		cy := p.r[3]*pt.X + p.r[4]*pt.Y + p.r[5]*pt.Z + p.t.Y
		cz := p.r[6]*pt.X + p.r[7]*pt.Y + p.r[8]*pt.Z + p.t.Z

		if cz < p.minDepth {
			outOfView++
			continue
		}

		// Perspective division, then lens distortion in normalized
		// coordinates, then the intrinsic matrix.
		xn := cx / cz
		yn := cy / cz
		xd, yd := p.distort(xn, yn)
		u := p.in.Fx*xd + p.in.Cx
		v := p.in.Fy*yd + p.in.Cy

		if u < 0 || u >= p.width || v < 0 || v >= p.height {
			outOfView++
			continue
		}

		points = append(points, fusion.ProjectedPoint{
			U:        int(math.Round(u)),
			V:        int(math.Round(v)),
			Depth:    cz,
			Source:   pt,
			BoxIndex: -1,
		})
	}
	return points, outOfView
}

// distort applies the Brown–Conrady radial and tangential model to
// normalized image coordinates.
func (p *Projector) distort(x, y float64) (xd, yd float64) {
	d := p.in.Distortion
	if d == (calib.Distortion{}) {
		return x, y
	}

	r2 := x*x + y*y
	radial := 1 + d.K1*r2 + d.K2*r2*r2 + d.K3*r2*r2*r2
	xd = x*radial + 2*d.P1*x*y + d.P2*(r2+2*x*x)
	yd = y*radial + d.P1*(r2+2*y*y) + 2*d.P2*x*y
	return xd, yd
}
