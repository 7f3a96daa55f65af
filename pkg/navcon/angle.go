package navcon

import "fmt"

// Direction is a rotation direction. Values match the wire encoding in
// motion packets (Dec byte).
type Direction uint8

// Rotation directions.
const (
	DirNone  Direction = 0
	DirLeft  Direction = 2
	DirRight Direction = 3
)

// Opposite returns the reversed direction.
func (d Direction) Opposite() Direction {
	switch d {
	case DirLeft:
		return DirRight
	case DirRight:
		return DirLeft
	}
	return DirNone
}

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case DirLeft:
		return "LEFT"
	case DirRight:
		return "RIGHT"
	}
	return "NONE"
}

// steepThresholdDeg separates shallow incidence angles, which the
// planner corrects in one rotation, from steep ones corrected in
// small steps.
const steepThresholdDeg = 45

// Incidence is a line incidence angle. It is either measured by the
// sensor subsystem, with an exact value in degrees, or inferred from
// travel distance when only an edge sensor saw the line. An inferred
// angle is known to be steep but has no exact value.
type Incidence struct {
	deg      uint8
	inferred bool
}

// Measured returns an incidence with an exact value.
func Measured(deg uint8) Incidence {
	return Incidence{deg: deg}
}

// Inferred returns a steep incidence with no exact value.
func Inferred() Incidence {
	return Incidence{inferred: true}
}

// Deg returns the measured value. ok is false for an inferred angle,
// in which case deg is meaningless.
func (a Incidence) Deg() (deg uint8, ok bool) {
	return a.deg, !a.inferred
}

// Steep reports whether the angle exceeds the steep threshold. An
// inferred angle is always steep.
func (a Incidence) Steep() bool {
	return a.inferred || a.deg > steepThresholdDeg
}

// String implements fmt.Stringer.
func (a Incidence) String() string {
	if a.inferred {
		return ">45(inferred)"
	}
	return fmt.Sprintf("%d", a.deg)
}
