package navcon

import (
	"github.com/golang/glog"

	"github.com/marvbots/snc.go/pkg/scs"
)

// planNavigable decides the correction for a path line. Shallow angles
// cross directly, moderate ones rotate toward the line by the exact
// angle, steep ones steer away one step at a time until the tracked
// angle is workable.
func (e *Engine) planNavigable() {
	d := &e.detection
	step := uint16(e.Calib.SteeringStepDeg)

	if d.TargetDeg <= uint16(e.Calib.RotationToleranceDeg) {
		glog.V(1).Infof("navcon: crossing at %d deg, no correction", d.TargetDeg)
		e.state = StateCrossing
		e.wall.secondArmed = false
		return
	}

	if d.TargetDeg <= steepThresholdDeg {
		dir := DirLeft
		switch d.Sensor {
		case SensorLeft:
			dir = DirLeft
		case SensorRight:
			dir = DirRight
		}
		e.startRotation(d.TargetDeg, dir)
		glog.V(1).Infof("navcon: path line, %d deg %s toward line", d.TargetDeg, dir)
		return
	}

	// Steep: one step away from the line, working the tracked angle
	// down for the next pass.
	dir := DirRight
	switch d.Sensor {
	case SensorLeft:
		dir = DirRight
	case SensorRight:
		dir = DirLeft
	}
	e.startRotation(step, dir)
	e.plan.Steering = true
	d.TargetDeg = stepDown(d.TargetDeg, step)
	glog.V(1).Infof("navcon: steep path line, %d deg %s away, target now %d", step, dir, d.TargetDeg)
}

// planWall decides the correction for a wall line: a right turn of 90
// degrees adjusted by the incidence angle, arming a follow-up of 180
// degrees minus the first turn on the next wall sighting. Steep walls
// steer away in steps first.
func (e *Engine) planWall() {
	d := &e.detection
	step := uint16(e.Calib.SteeringStepDeg)

	if e.wall.secondArmed && d.TargetDeg <= steepThresholdDeg {
		deg := uint16(180)
		if e.wall.firstTurnDeg > 0 && e.wall.firstTurnDeg < 180 {
			deg = 180 - e.wall.firstTurnDeg
		}
		e.wall.secondArmed = false
		e.startRotation(deg, DirLeft)
		glog.V(1).Infof("navcon: second wall turn, %d deg LEFT", deg)
		return
	}

	if d.TargetDeg <= steepThresholdDeg {
		deg := uint16(90)
		switch d.Sensor {
		case SensorLeft:
			deg = 90 - d.TargetDeg
		case SensorRight:
			deg = 90 + d.TargetDeg
		}
		e.wall.secondArmed = true
		e.wall.firstTurnDeg = deg
		e.startRotation(deg, DirRight)
		glog.V(1).Infof("navcon: wall turn, %d deg RIGHT (sensor %s angle %d)", deg, d.Sensor, d.TargetDeg)
		return
	}

	dir := DirRight
	switch d.Sensor {
	case SensorLeft:
		dir = DirRight
	case SensorRight:
		dir = DirLeft
	}
	e.startRotation(step, dir)
	e.plan.Steering = true
	d.TargetDeg = stepDown(d.TargetDeg, step)
	glog.V(1).Infof("navcon: steep wall, %d deg %s away, target now %d", step, dir, d.TargetDeg)
}

// startRotation records the plan and enters the stop phase of the
// correction cycle.
func (e *Engine) startRotation(deg uint16, dir Direction) {
	e.plan.InProgress = true
	e.plan.Steering = false
	e.plan.CommandedDeg = deg
	e.plan.Direction = dir
	e.plan.Attempts++
	e.beginCorrection()
	e.state = StateStopping
}

// stepDown reduces a steep tracked angle by one steering step, pinning
// it at the threshold so the next pass takes the shallow branch.
func stepDown(target, step uint16) uint16 {
	if target <= step || target-step <= steepThresholdDeg {
		return steepThresholdDeg
	}
	return target - step
}

// evaluate compares the commanded rotation with the motor subsystem's
// report. Within tolerance the correction is accepted; otherwise the
// residual becomes the next command and the cycle restarts.
func (e *Engine) evaluate() scs.Packet {
	actual := e.Telemetry.RotationDeg
	commanded := e.plan.CommandedDeg
	tol := uint16(e.Calib.RotationToleranceDeg)
	diff := absDiff(commanded, actual)
	glog.V(1).Infof("navcon: evaluate commanded=%d actual=%d", commanded, actual)

	// A steering step keeps the detection alive so the planner issues
	// the next step (or the final turn) on the way back through
	// scanning.
	if e.plan.Steering {
		if diff <= tol {
			e.plan.Reset()
			e.state = StateScanning
			return e.forwardPacket()
		}
		e.plan.CommandedDeg = diff
		e.state = StateStopping
		e.beginCorrection()
		return e.stopPacket()
	}

	switch e.detection.Kind {
	case KindNavigable:
		if diff <= tol {
			glog.V(1).Info("navcon: rotation accepted, crossing")
			e.state = StateCrossing
			return e.forwardPacket()
		}
		glog.V(1).Infof("navcon: rotation short by %d deg, retrying", diff)
		e.plan.CommandedDeg = diff
		e.state = StateStopping
		e.beginCorrection()
		return e.stopPacket()

	case KindWall:
		if diff <= tol {
			// A completed turn gets a clean slate; the armed follow-up
			// survives for the next wall sighting.
			glog.V(1).Info("navcon: wall turn complete")
			e.resetCorrection()
			return e.forwardPacket()
		}
		glog.V(1).Infof("navcon: wall turn short by %d deg, retrying", diff)
		e.plan.CommandedDeg = diff
		e.state = StateStopping
		e.beginCorrection()
		return e.stopPacket()
	}

	e.resetCorrection()
	return e.forwardPacket()
}

func absDiff(a, b uint16) uint16 {
	if a > b {
		return a - b
	}
	return b - a
}
