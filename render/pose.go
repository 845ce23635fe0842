package render

import (
	"math"

	"github.com/fogleman/fauxgl"
)

// poseEpsilon keeps the look-at basis finite when the view direction is
// parallel to world-up (pitch near the poles).
const poseEpsilon = 1e-8

// CameraPose builds a 4x4 camera-to-world transform from spherical
// parameters: pitch (elevation, degrees), yaw (azimuth, degrees) and radial
// distance from the origin. The camera sits on a sphere around the origin,
// looking at it with world-up (0, 1, 0). The rotation columns are
// [right, up, -forward] and the translation is the eye position.
func CameraPose(pitchDeg, yawDeg, distance float64) fauxgl.Matrix {
	pitch := fauxgl.Radians(pitchDeg)
	yaw := fauxgl.Radians(yawDeg)

	eye := fauxgl.V(
		distance*math.Cos(pitch)*math.Sin(yaw),
		distance*math.Sin(pitch),
		distance*math.Cos(pitch)*math.Cos(yaw),
	)
	target := fauxgl.V(0, 0, 0)
	up := fauxgl.V(0, 1, 0)

	forward := target.Sub(eye).Normalize()
	rightRaw := forward.Cross(up)
	right := rightRaw.DivScalar(rightRaw.Length() + poseEpsilon)
	camUp := right.Cross(forward)

	return fauxgl.Matrix{
		X00: right.X, X01: camUp.X, X02: -forward.X, X03: eye.X,
		X10: right.Y, X11: camUp.Y, X12: -forward.Y, X13: eye.Y,
		X20: right.Z, X21: camUp.Z, X22: -forward.Z, X23: eye.Z,
		X30: 0, X31: 0, X32: 0, X33: 1,
	}
}

// Eye extracts the camera position from a pose matrix.
func Eye(pose fauxgl.Matrix) fauxgl.Vector {
	return fauxgl.V(pose.X03, pose.X13, pose.X23)
}
