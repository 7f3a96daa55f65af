// Package snc implements the navigation node's protocol layer: the
// mission-phase state machine predicting the next expected packet,
// transmit arbitration, and the loop controller tying the peer
// channels, the state machine and the navigation engine together.
package snc

import (
	"time"

	"github.com/golang/glog"

	"github.com/marvbots/snc.go/pkg/navcon"
	"github.com/marvbots/snc.go/pkg/scs"
)

// transmitInterval rate-limits own packets outside the navigation
// turn, so a peer that is still booting is not flooded.
const transmitInterval = 500 * time.Millisecond

// Expectation is the predicted next packet on the bus.
type Expectation struct {
	Phase scs.Phase
	Role  scs.Role
	Sub   uint8
	Desc  string
}

// Matches reports whether a packet satisfies the expectation. The
// phase field is advisory: peers may lag one phase behind during a
// transition, so matching keys on role and substate. While colors are
// expected the sensor subsystem may instead report end of maze.
func (e Expectation) Matches(p scs.Packet) bool {
	if p.Role == e.Role && p.Sub == e.Sub {
		return true
	}
	if e.Role == scs.RoleSense && e.Sub == 1 && p.Role == scs.RoleSense && p.Sub == 3 {
		return true
	}
	return false
}

// FSM is the protocol state machine: the single source of truth for
// the mission phase, the next-expected prediction, and the one-shot
// trigger flags. It is mutated only from the control loop.
type FSM struct {
	Telemetry *navcon.Telemetry
	Engine    *navcon.Engine

	phase  scs.Phase
	expect Expectation

	// One-shot triggers, consumed when folded into a packet.
	touchPending  bool
	tonePending   bool
	manualPending bool

	awaitingSecondTouch bool

	// pendingSosReport marks that a tone report was just sent: the
	// next motor distance packet closes the cycle into SOS instead of
	// handing over to the sensor subsystem. Consumed exactly once.
	pendingSosReport bool

	// needsIdlePacket schedules one idle self-packet with the touch
	// bit clear after a manual maze exit.
	needsIdlePacket bool

	// mazeComplete suppresses all output until a fresh touch in IDLE.
	mazeComplete bool

	idleSentOnce bool
	lastSend     time.Time

	unexpected uint64
}

// NewFSM creates the state machine in IDLE, sharing the engine's
// telemetry cache.
func NewFSM(engine *navcon.Engine) *FSM {
	f := &FSM{
		Telemetry: engine.Telemetry,
		Engine:    engine,
		phase:     scs.PhaseIdle,
	}
	f.expect = Expectation{scs.PhaseIdle, scs.RoleNav, 0, "touch to start calibration"}
	return f
}

// Phase returns the current mission phase.
func (f *FSM) Phase() scs.Phase {
	return f.phase
}

// Expect returns the predicted next packet.
func (f *FSM) Expect() Expectation {
	return f.expect
}

// MazeComplete reports whether the end-of-maze latch is set.
func (f *FSM) MazeComplete() bool {
	return f.mazeComplete
}

// Unexpected returns the count of out-of-sequence packets.
func (f *FSM) Unexpected() uint64 {
	return f.unexpected
}

// Touch raises the touch trigger.
func (f *FSM) Touch() {
	f.touchPending = true
	glog.Info("snc: touch trigger raised")
}

// Tone raises the pure-tone trigger.
func (f *FSM) Tone() {
	f.tonePending = true
	glog.Info("snc: tone trigger raised")
}

// ManualSend forces one transmission past the rate limit.
func (f *FSM) ManualSend() {
	f.manualPending = true
	glog.Info("snc: manual send trigger raised")
}

// Dispatch feeds one packet, own or peer, through the state machine:
// expectation check, telemetry update, next-expected prediction, phase
// transition. Must run before the same iteration's Generate.
func (f *FSM) Dispatch(p scs.Packet) {
	if !f.expect.Matches(p) {
		f.unexpected++
		glog.V(1).Infof("snc: unexpected packet %s, wanted %s:%d (%s)",
			p, f.expect.Role, f.expect.Sub, f.expect.Desc)
		return
	}
	f.updateTelemetry(p)
	f.updateExpectation(p)
	f.applyTransition(p)
}

// updateTelemetry caches sensor and motor reports while navigating.
func (f *FSM) updateTelemetry(p scs.Packet) {
	if p.Phase != scs.PhaseMaze {
		return
	}
	switch p.Role {
	case scs.RoleSense:
		switch p.Sub {
		case 1:
			f.Telemetry.SetColors(navcon.DecodeColors(p.Word()))
		case 2:
			f.Telemetry.AngleDeg = p.Dat1
		}
	case scs.RoleMotor:
		switch p.Sub {
		case 2:
			f.Telemetry.RotationDeg = p.Word()
			f.Telemetry.RotationDir = navcon.Direction(p.Dec)
		case 3:
			f.Telemetry.SpeedRight = p.Dat1
			f.Telemetry.SpeedLeft = p.Dat0
			f.Engine.NoteSpeeds(p.Dat0, p.Dat1)
		case 4:
			f.Telemetry.DistanceMM = p.Word()
		}
	}
}

// updateExpectation is the next-expected prediction table, keyed on
// the dispatched packet's phase, role, substate and lead data bit.
func (f *FSM) updateExpectation(p scs.Packet) {
	lead := p.Dat1 == 1
	switch p.Phase {
	case scs.PhaseIdle:
		if p.Role == scs.RoleNav && p.Sub == 0 {
			if lead {
				f.expect = Expectation{scs.PhaseCal, scs.RoleSense, 0, "sensor end of calibration"}
			} else {
				f.expect = Expectation{scs.PhaseIdle, scs.RoleNav, 0, "touch to start calibration"}
			}
		}

	case scs.PhaseCal:
		switch {
		case p.Role == scs.RoleSense && p.Sub == 0:
			f.expect = Expectation{scs.PhaseCal, scs.RoleMotor, 0, "motor operating speed"}
			f.awaitingSecondTouch = false
		case p.Role == scs.RoleMotor && p.Sub == 0:
			f.expect = Expectation{scs.PhaseCal, scs.RoleMotor, 1, "motor battery level"}
		case p.Role == scs.RoleMotor && p.Sub == 1:
			f.expect = Expectation{scs.PhaseCal, scs.RoleSense, 1, "sensor colors (calibration)"}
			f.awaitingSecondTouch = true
		case p.Role == scs.RoleSense && p.Sub == 1:
			f.expect = Expectation{scs.PhaseCal, scs.RoleNav, 0, "second touch to enter maze"}
		case p.Role == scs.RoleNav && p.Sub == 0:
			if lead {
				f.expect = Expectation{scs.PhaseMaze, scs.RoleNav, 1, "tone report"}
			} else {
				f.expect = Expectation{scs.PhaseCal, scs.RoleMotor, 1, "motor battery level"}
			}
		}

	case scs.PhaseMaze:
		pending := f.pendingSosReport
		f.pendingSosReport = false
		switch {
		case p.Role == scs.RoleNav && p.Sub == 1:
			if lead {
				f.pendingSosReport = true
				f.expect = Expectation{scs.PhaseSos, scs.RoleMotor, 4, "motor tone response"}
			} else {
				f.expect = Expectation{scs.PhaseMaze, scs.RoleNav, 2, "touch report"}
			}
		case p.Role == scs.RoleNav && p.Sub == 2:
			if lead {
				f.expect = Expectation{scs.PhaseIdle, scs.RoleNav, 0, "touch after manual exit"}
			} else {
				f.expect = Expectation{scs.PhaseMaze, scs.RoleNav, 3, "navigation control"}
			}
		case p.Role == scs.RoleNav && p.Sub == 3:
			f.expect = Expectation{scs.PhaseMaze, scs.RoleMotor, 1, "motor battery level"}
		case p.Role == scs.RoleMotor && p.Sub == 1:
			f.expect = Expectation{scs.PhaseMaze, scs.RoleMotor, 2, "motor rotation"}
		case p.Role == scs.RoleMotor && p.Sub == 2:
			f.expect = Expectation{scs.PhaseMaze, scs.RoleMotor, 3, "motor speeds"}
		case p.Role == scs.RoleMotor && p.Sub == 3:
			f.expect = Expectation{scs.PhaseMaze, scs.RoleMotor, 4, "motor distance"}
		case p.Role == scs.RoleMotor && p.Sub == 4:
			if pending {
				f.expect = Expectation{scs.PhaseSos, scs.RoleNav, 0, "tone to exit SOS"}
			} else {
				f.expect = Expectation{scs.PhaseMaze, scs.RoleSense, 1, "sensor colors or end of maze"}
			}
		case p.Role == scs.RoleSense && p.Sub == 1:
			f.expect = Expectation{scs.PhaseMaze, scs.RoleSense, 2, "sensor incidence angle"}
		case p.Role == scs.RoleSense && p.Sub == 2:
			f.expect = Expectation{scs.PhaseMaze, scs.RoleNav, 1, "tone report"}
		case p.Role == scs.RoleSense && p.Sub == 3:
			f.expect = Expectation{scs.PhaseIdle, scs.RoleNav, 0, "touch after maze completion"}
		}

	case scs.PhaseSos:
		switch {
		case p.Role == scs.RoleMotor && p.Sub == 4:
			f.expect = Expectation{scs.PhaseSos, scs.RoleNav, 0, "tone to exit SOS"}
		case p.Role == scs.RoleNav && p.Sub == 0:
			if lead {
				f.expect = Expectation{scs.PhaseMaze, scs.RoleNav, 1, "tone report after SOS"}
			} else {
				f.expect = Expectation{scs.PhaseSos, scs.RoleNav, 0, "tone to exit SOS"}
			}
		}
	}
}

// applyTransition moves the mission phase on the narrow trigger set.
func (f *FSM) applyTransition(p scs.Packet) {
	lead := p.Dat1 == 1
	switch {
	case p.Is(scs.PhaseIdle, scs.RoleNav, 0) && lead:
		f.phase = scs.PhaseCal
		f.awaitingSecondTouch = false
		f.mazeComplete = false
		f.Telemetry.Reset()
		f.Engine.Reset()
		glog.Info("snc: IDLE -> CAL (touch)")

	case p.Is(scs.PhaseCal, scs.RoleNav, 0) && lead:
		f.phase = scs.PhaseMaze
		f.awaitingSecondTouch = false
		f.Telemetry.Reset()
		f.Engine.Reset()
		glog.Info("snc: CAL -> MAZE (second touch)")

	case p.Is(scs.PhaseMaze, scs.RoleNav, 1) && lead:
		f.phase = scs.PhaseSos
		glog.Info("snc: MAZE -> SOS (tone)")

	case p.Is(scs.PhaseMaze, scs.RoleNav, 2) && lead:
		f.phase = scs.PhaseIdle
		f.needsIdlePacket = true
		glog.Info("snc: MAZE -> IDLE (touch, manual exit)")

	case p.Is(scs.PhaseSos, scs.RoleNav, 0) && lead:
		f.phase = scs.PhaseMaze
		glog.Info("snc: SOS -> MAZE (tone)")

	case p.Is(scs.PhaseMaze, scs.RoleSense, 3):
		f.phase = scs.PhaseIdle
		f.mazeComplete = true
		f.Engine.Reset()
		glog.Info("snc: MAZE -> IDLE (end of maze), output latched off")
	}
}

// NavTurn reports whether the predicted next packet is this node's
// navigation turn.
func (f *FSM) NavTurn() bool {
	return f.phase == scs.PhaseMaze && f.expect.Role == scs.RoleNav && f.expect.Sub == 3
}

// OwnTurn reports whether the bus expects this node to speak at all.
func (f *FSM) OwnTurn() bool {
	return f.expect.Role == scs.RoleNav
}

// ShouldTransmitNow decides transmission timing: never while the
// maze-complete latch holds (except the restarting touch), immediately
// on the navigation turn, once-only in IDLE until a flag changes, rate
// limited everywhere else.
func (f *FSM) ShouldTransmitNow(now time.Time) bool {
	if !f.OwnTurn() {
		return false
	}
	if f.mazeComplete && !(f.phase == scs.PhaseIdle && f.touchPending) {
		return false
	}
	if f.phase == scs.PhaseIdle {
		return !f.idleSentOnce || f.touchPending || f.needsIdlePacket
	}
	if f.NavTurn() {
		return true
	}
	if f.manualPending {
		return true
	}
	return now.Sub(f.lastSend) >= transmitInterval
}

// Generate builds this node's own outgoing packet from the phase and
// the pending triggers, consuming each folded-in trigger exactly once.
// On the navigation turn it delegates to the engine and returns its
// packet unmodified.
func (f *FSM) Generate() scs.Packet {
	f.manualPending = false
	switch f.phase {
	case scs.PhaseIdle:
		p := scs.Packet{Phase: scs.PhaseIdle, Role: scs.RoleNav, Sub: 0, Dat0: 50}
		if f.touchPending {
			p.Dat1 = 1
			f.touchPending = false
		}
		f.needsIdlePacket = false
		return p

	case scs.PhaseCal:
		p := scs.Packet{Phase: scs.PhaseCal, Role: scs.RoleNav, Sub: 0}
		// A touch counts as the maze-entry touch only once the
		// calibration exchange has completed; until then it stays
		// pending.
		if f.touchPending && f.awaitingSecondTouch {
			p.Dat1 = 1
			f.touchPending = false
		}
		return p

	case scs.PhaseMaze:
		switch f.expect.Sub {
		case 2:
			p := scs.Packet{Phase: scs.PhaseMaze, Role: scs.RoleNav, Sub: 2}
			if f.touchPending {
				p.Dat1 = 1
				f.touchPending = false
			}
			return p
		case 3:
			return f.Engine.Step()
		default:
			p := scs.Packet{Phase: scs.PhaseMaze, Role: scs.RoleNav, Sub: 1}
			if f.tonePending {
				p.Dat1 = 1
				f.tonePending = false
			}
			return p
		}

	default: // PhaseSos
		p := scs.Packet{Phase: scs.PhaseSos, Role: scs.RoleNav, Sub: 0}
		if f.tonePending {
			p.Dat1 = 1
			f.tonePending = false
		}
		return p
	}
}

// MarkSent records a completed transmission for the rate limiter and
// the once-only IDLE rule.
func (f *FSM) MarkSent(now time.Time) {
	f.lastSend = now
	f.idleSentOnce = f.phase == scs.PhaseIdle
}
