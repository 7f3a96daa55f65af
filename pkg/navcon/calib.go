package navcon

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Calibration holds the tunable motion constants. The values depend on
// physical robot geometry and motor behavior and are loaded from a TOML
// file at startup; the defaults match the reference chassis.
//
// Which physical sensor maps to which field of the color word is also a
// hardware concern: this package assumes the sensor subsystem encodes
// the left sensor in the highest 3-bit field. If a chassis wires the
// sensors differently the sensor subsystem must swap fields before
// encoding, not this side.
type Calibration struct {
	// SensorSpacingMM is the distance between the center sensor and
	// either edge sensor. It is the travel threshold after which an
	// unconfirmed edge detection is inferred to be a steep line.
	SensorSpacingMM uint16 `toml:"sensor_spacing_mm"`

	// ReverseShallowMM and ReverseSteepMM are the backup distances
	// before rotating, for shallow and steep detections.
	ReverseShallowMM uint16 `toml:"reverse_shallow_mm"`
	ReverseSteepMM   uint16 `toml:"reverse_steep_mm"`

	// SteeringStepDeg is the small incremental rotation used to work a
	// steep angle down below the threshold.
	SteeringStepDeg uint8 `toml:"steering_step_deg"`

	// ForwardSpeed is the operating speed in mm/s for forward and
	// reverse commands.
	ForwardSpeed uint8 `toml:"forward_speed"`

	// RotationToleranceDeg is the acceptance window when comparing a
	// commanded rotation against the motor subsystem's report.
	RotationToleranceDeg uint8 `toml:"rotation_tolerance_deg"`
}

// DefaultCalibration returns the reference chassis constants.
func DefaultCalibration() Calibration {
	return Calibration{
		SensorSpacingMM:      61,
		ReverseShallowMM:     60,
		ReverseSteepMM:       75,
		SteeringStepDeg:      5,
		ForwardSpeed:         10,
		RotationToleranceDeg: 5,
	}
}

// Validate checks the constants are usable.
func (c Calibration) Validate() error {
	if c.SensorSpacingMM == 0 {
		return fmt.Errorf("sensor_spacing_mm must be positive")
	}
	if c.SteeringStepDeg == 0 || c.SteeringStepDeg > steepThresholdDeg {
		return fmt.Errorf("steering_step_deg %d out of range (1..%d)", c.SteeringStepDeg, steepThresholdDeg)
	}
	if c.ForwardSpeed == 0 {
		return fmt.Errorf("forward_speed must be positive")
	}
	return nil
}

// LoadCalibration reads a TOML calibration file over the defaults, so a
// partial file overrides only the constants it names.
func LoadCalibration(path string) (Calibration, error) {
	c := DefaultCalibration()
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return c, fmt.Errorf("calibration %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("calibration %s: %w", path, err)
	}
	return c, nil
}
