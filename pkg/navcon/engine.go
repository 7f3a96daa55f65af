package navcon

import (
	"errors"

	"github.com/golang/glog"

	"github.com/marvbots/snc.go/pkg/scs"
)

// ErrInvalidRotation marks a rotation request of zero or more than a
// full turn. The engine never issues one: it aborts the correction and
// resets to scanning instead.
var ErrInvalidRotation = errors.New("navcon: invalid rotation request")

// State is the engine's correction-cycle state.
type State uint8

// Engine states. No terminal state; the engine cycles until the
// mission phase leaves the maze.
const (
	// StateScanning drives forward watching the sensors.
	StateScanning State = iota
	// StateStopping halts and waits for the motor subsystem to
	// confirm zero speed.
	StateStopping
	// StateReversing backs up a calibrated distance.
	StateReversing
	// StateStoppedPreRotate halts again before issuing the rotation.
	StateStoppedPreRotate
	// StateRotating has issued the rotation command.
	StateRotating
	// StateEvaluating compares the reported rotation to the command.
	StateEvaluating
	// StateCrossing drives over a path line until clear.
	StateCrossing
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateScanning:
		return "SCANNING"
	case StateStopping:
		return "STOPPING"
	case StateReversing:
		return "REVERSING"
	case StateStoppedPreRotate:
		return "STOPPED_PRE_ROTATE"
	case StateRotating:
		return "ROTATING"
	case StateEvaluating:
		return "EVALUATING"
	case StateCrossing:
		return "CROSSING"
	}
	return "STATE(?)"
}

// Plan is the rotation correction currently being executed. It
// persists across the stop, reverse, rotate and evaluate states and is
// reset on acceptance or on a fresh detection.
type Plan struct {
	InProgress bool

	// Steering marks a small step-away rotation: evaluation keeps the
	// detection alive so planning keeps working the tracked angle down.
	Steering bool

	Direction    Direction
	CommandedDeg uint16
	Attempts     uint8
}

// Reset clears the plan.
func (p *Plan) Reset() {
	*p = Plan{}
}

// wallTurn carries the two-turn wall sequence across corrections: the
// first 90-degree-class turn arms a follow-up of 180 degrees minus the
// first turn's angle.
type wallTurn struct {
	secondArmed  bool
	firstTurnDeg uint16
}

// Engine is the navigation controller. Each Step consumes the shared
// telemetry cache and returns exactly one motion packet; the node is
// protocol-obligated to answer on its turn, so Step never returns
// nothing.
//
// Engine is not safe for concurrent use; it runs on the control loop.
type Engine struct {
	Calib     Calibration
	Telemetry *Telemetry

	state     State
	detection Detection
	plan      Plan
	wall      wallTurn

	stopConfirmed    bool
	reverseConfirmed bool

	invalidRotations uint64
}

// NewEngine creates an engine over a shared telemetry cache.
func NewEngine(calib Calibration, t *Telemetry) *Engine {
	return &Engine{Calib: calib, Telemetry: t}
}

// State returns the current correction-cycle state.
func (e *Engine) State() State {
	return e.state
}

// Detection returns the active line detection, if any.
func (e *Engine) Detection() Detection {
	return e.detection
}

// InvalidRotations returns the count of aborted rotation requests.
func (e *Engine) InvalidRotations() uint64 {
	return e.invalidRotations
}

// Reset returns the engine to scanning with all correction state
// cleared. Called on every entry into the maze phase.
func (e *Engine) Reset() {
	e.state = StateScanning
	e.detection.Reset()
	e.plan.Reset()
	e.wall = wallTurn{}
	e.stopConfirmed = false
	e.reverseConfirmed = false
}

// resetCorrection clears everything except the wall two-turn sequence,
// which survives an accepted first turn.
func (e *Engine) resetCorrection() {
	e.detection.Reset()
	e.plan.Reset()
	e.stopConfirmed = false
	e.reverseConfirmed = false
	e.state = StateScanning
}

// beginCorrection arms a fresh stop/reverse/rotate pass.
func (e *Engine) beginCorrection() {
	e.stopConfirmed = false
	e.reverseConfirmed = false
}

// NoteSpeeds is called by the protocol layer on every motor speed
// report. The pre-rotate stop is confirmed only by a zero report that
// arrives while waiting for it.
func (e *Engine) NoteSpeeds(left, right uint8) {
	if e.state == StateStoppedPreRotate && left == 0 && right == 0 {
		e.stopConfirmed = true
	}
}

// Step runs one engine invocation and returns the motion packet to
// send.
func (e *Engine) Step() scs.Packet {
	glog.V(2).Infof("navcon: step state=%s", e.state)
	switch e.state {
	case StateScanning:
		e.detect()
		if e.detection.Active && e.state == StateScanning {
			switch e.detection.Kind {
			case KindNavigable:
				e.planNavigable()
			case KindWall:
				e.planWall()
			}
		}
		if e.state == StateStopping {
			return e.stopPacket()
		}
		return e.forwardPacket()

	case StateStopping:
		if e.Telemetry.Stopped() {
			e.stopConfirmed = false
			e.state = StateReversing
			glog.V(1).Info("navcon: stop confirmed, reversing")
			return e.reversePacket()
		}
		return e.stopPacket()

	case StateReversing:
		// The motor subsystem resets its distance counter on every
		// stop, so the cached distance is the reverse travel.
		if e.Telemetry.DistanceMM >= e.reverseTarget() {
			e.reverseConfirmed = true
			e.state = StateStoppedPreRotate
			e.stopConfirmed = false
			glog.V(1).Infof("navcon: reverse complete at %dmm", e.Telemetry.DistanceMM)
			return e.stopPacket()
		}
		return e.reversePacket()

	case StateStoppedPreRotate:
		if e.stopConfirmed {
			e.stopConfirmed = false
			e.state = StateRotating
			glog.V(1).Infof("navcon: rotating %d deg %s", e.plan.CommandedDeg, e.plan.Direction)
			return e.rotatePacket(e.plan.CommandedDeg, e.plan.Direction)
		}
		return e.stopPacket()

	case StateRotating:
		if e.Telemetry.Colors.AllBackground() ||
			e.plan.CommandedDeg == 0 || e.plan.CommandedDeg > 360 {
			e.invalidRotations++
			glog.Errorf("navcon: %v (%d deg, colors %s), resetting",
				ErrInvalidRotation, e.plan.CommandedDeg, e.Telemetry.Colors)
			e.resetCorrection()
			return e.forwardPacket()
		}
		e.state = StateEvaluating
		return e.evaluate()

	case StateEvaluating:
		return e.evaluate()

	case StateCrossing:
		if e.Telemetry.Colors.AllBackground() {
			glog.V(1).Info("navcon: crossing complete")
			e.resetCorrection()
			e.wall = wallTurn{}
		}
		return e.forwardPacket()
	}
	return e.forwardPacket()
}

func (e *Engine) reverseTarget() uint16 {
	if e.detection.Angle.Steep() {
		return e.Calib.ReverseSteepMM
	}
	return e.Calib.ReverseShallowMM
}

// Motion packets. All carry the navigation turn's control field; the
// payload distinguishes stop, forward, reverse and rotate.

func (e *Engine) stopPacket() scs.Packet {
	return scs.Packet{Phase: scs.PhaseMaze, Role: scs.RoleNav, Sub: 3}
}

func (e *Engine) forwardPacket() scs.Packet {
	// Never drive forward while a steep wall detection has not been
	// reversed away from.
	if e.detection.Kind == KindWall &&
		(e.detection.Angle.Steep() || e.detection.TargetDeg > steepThresholdDeg) &&
		!e.reverseConfirmed {
		glog.Warning("navcon: forward blocked, steep wall not yet reversed")
		e.state = StateStopping
		return e.stopPacket()
	}
	return scs.Packet{
		Phase: scs.PhaseMaze,
		Role:  scs.RoleNav,
		Sub:   3,
		Dat1:  e.Calib.ForwardSpeed,
		Dat0:  e.Calib.ForwardSpeed,
	}
}

func (e *Engine) reversePacket() scs.Packet {
	return scs.Packet{
		Phase: scs.PhaseMaze,
		Role:  scs.RoleNav,
		Sub:   3,
		Dat1:  e.Calib.ForwardSpeed,
		Dat0:  e.Calib.ForwardSpeed,
		Dec:   1,
	}
}

func (e *Engine) rotatePacket(deg uint16, dir Direction) scs.Packet {
	pkt := scs.Packet{
		Phase: scs.PhaseMaze,
		Role:  scs.RoleNav,
		Sub:   3,
		Dec:   byte(dir),
	}
	pkt.SetWord(deg)
	return pkt
}
