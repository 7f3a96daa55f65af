package navcon

// Telemetry caches the latest sensor and motor reports. It is mutated
// by the protocol layer as peer packets are dispatched and read by the
// engine; both run on the control loop, so no locking.
type Telemetry struct {
	Colors     Colors
	PrevColors Colors

	// AngleDeg is the latest incidence angle reported by the sensor
	// subsystem.
	AngleDeg uint8

	// Wheel speeds in mm/s.
	SpeedLeft  uint8
	SpeedRight uint8

	// DistanceMM is the cumulative travel since the last stop; the
	// motor subsystem resets it on every stop.
	DistanceMM uint16

	// Last rotation the motor subsystem reported executing.
	RotationDeg uint16
	RotationDir Direction
}

// SetColors records a fresh reading, retaining the previous one for
// change detection.
func (t *Telemetry) SetColors(c Colors) {
	t.PrevColors = t.Colors
	t.Colors = c
}

// Stopped reports whether the motor subsystem last reported both
// wheels stationary.
func (t *Telemetry) Stopped() bool {
	return t.SpeedLeft == 0 && t.SpeedRight == 0
}

// Reset clears all cached values.
func (t *Telemetry) Reset() {
	*t = Telemetry{}
}
