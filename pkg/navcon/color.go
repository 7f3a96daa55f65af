// Package navcon implements the navigation engine: the stop / reverse /
// rotate / evaluate controller converting classified color and angle
// telemetry into motion commands while the robot is in the maze.
package navcon

import "fmt"

// Color is a classified floor color as reported by the sensor
// subsystem. White is the background; red/green mark navigable lines,
// black/blue mark walls.
type Color uint8

// Classified colors. Values match the 3-bit wire encoding.
const (
	White Color = iota
	Red
	Green
	Blue
	Black
)

// Wildcards used in edge-case rules, never reported by sensors.
const (
	// AnyColor matches every reading.
	AnyColor Color = 255
	// SameAsCenter matches when the reading equals the center sensor's.
	SameAsCenter Color = 254
)

// Navigable reports whether the color marks a crossable path line.
func (c Color) Navigable() bool {
	return c == Red || c == Green
}

// Wall reports whether the color marks a wall line.
func (c Color) Wall() bool {
	return c == Black || c == Blue
}

// String implements fmt.Stringer.
func (c Color) String() string {
	switch c {
	case White:
		return "WHITE"
	case Red:
		return "RED"
	case Green:
		return "GREEN"
	case Blue:
		return "BLUE"
	case Black:
		return "BLACK"
	case AnyColor:
		return "ANY"
	case SameAsCenter:
		return "SAME-AS-CENTER"
	}
	return fmt.Sprintf("COLOR(%d)", uint8(c))
}

// Sensor identifies one of the three downward color sensors. Values
// match the wire encoding used in motion/detection packets.
type Sensor uint8

// Sensor identities. Left and right spacing from center is the
// Calibration.SensorSpacingMM constant.
const (
	SensorNone Sensor = iota
	SensorLeft
	SensorCenter
	SensorRight
)

// String implements fmt.Stringer.
func (s Sensor) String() string {
	switch s {
	case SensorLeft:
		return "S1"
	case SensorCenter:
		return "S2"
	case SensorRight:
		return "S3"
	}
	return "S?"
}

// Colors holds one reading from all three sensors, left to right.
type Colors [3]Color

// At returns the reading of a sensor.
func (c Colors) At(s Sensor) Color {
	switch s {
	case SensorLeft:
		return c[0]
	case SensorCenter:
		return c[1]
	case SensorRight:
		return c[2]
	}
	return White
}

// Left, Center and Right access individual readings.
func (c Colors) Left() Color   { return c[0] }
func (c Colors) Center() Color { return c[1] }
func (c Colors) Right() Color  { return c[2] }

// AllBackground reports whether every sensor sees the background color.
func (c Colors) AllBackground() bool {
	return c[0] == White && c[1] == White && c[2] == White
}

// DecodeColors unpacks the sensor subsystem's 16-bit color word:
// three 3-bit fields, left sensor in the highest field.
func DecodeColors(word uint16) Colors {
	return Colors{
		Color(word >> 6 & 0x07),
		Color(word >> 3 & 0x07),
		Color(word & 0x07),
	}
}

// EncodeColors packs a reading into the 16-bit color word.
func EncodeColors(c Colors) uint16 {
	return uint16(c[0]&0x07)<<6 | uint16(c[1]&0x07)<<3 | uint16(c[2]&0x07)
}

// String implements fmt.Stringer.
func (c Colors) String() string {
	return fmt.Sprintf("[%s %s %s]", c[0], c[1], c[2])
}
