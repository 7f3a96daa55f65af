package navcon

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marvbots/snc.go/pkg/scs"
)

// bench drives an engine against a perfectly obedient motor
// subsystem: every commanded motion is reflected back into the
// telemetry cache the way the real peer would report it.
type bench struct {
	t   *testing.T
	tel *Telemetry
	eng *Engine

	rotations []uint16
	dirs      []Direction

	// nextRotation overrides the motor's report for the next rotation,
	// simulating a slipped or blocked wheel.
	nextRotation *uint16
}

func newBench(t *testing.T) *bench {
	tel := &Telemetry{}
	return &bench{t: t, tel: tel, eng: NewEngine(DefaultCalibration(), tel)}
}

func (b *bench) colors(c Colors) *bench {
	b.tel.SetColors(c)
	return b
}

func (b *bench) angle(deg uint8) *bench {
	b.tel.AngleDeg = deg
	return b
}

func (b *bench) reportRotation(deg uint16) *bench {
	b.nextRotation = &deg
	return b
}

// step runs one engine invocation and plays the motor's response.
func (b *bench) step() scs.Packet {
	pkt := b.eng.Step()
	require.True(b.t, pkt.Is(scs.PhaseMaze, scs.RoleNav, 3), "unexpected packet %s", pkt)
	switch {
	case pkt.Dec == 2 || pkt.Dec == 3:
		b.rotations = append(b.rotations, pkt.Word())
		b.dirs = append(b.dirs, Direction(pkt.Dec))
		reported := pkt.Word()
		if b.nextRotation != nil {
			reported = *b.nextRotation
			b.nextRotation = nil
		}
		b.tel.RotationDeg = reported
		b.tel.RotationDir = Direction(pkt.Dec)
		b.setSpeeds(0, 0)
	case pkt.Dec == 1:
		b.setSpeeds(pkt.Dat0, pkt.Dat1)
		b.tel.DistanceMM += uint16(pkt.Dat1)
	case pkt.Dat1 == 0:
		b.setSpeeds(0, 0)
		b.tel.DistanceMM = 0
	default:
		b.setSpeeds(pkt.Dat0, pkt.Dat1)
		b.tel.DistanceMM += uint16(pkt.Dat1)
	}
	return pkt
}

func (b *bench) setSpeeds(left, right uint8) {
	b.tel.SpeedLeft, b.tel.SpeedRight = left, right
	b.eng.NoteSpeeds(left, right)
}

// run steps until the engine reaches the wanted state.
func (b *bench) run(until State) {
	for i := 0; i < 256; i++ {
		b.step()
		if b.eng.State() == until {
			return
		}
	}
	require.Failf(b.t, "state not reached", "wanted %s, stuck at %s", until, b.eng.State())
}

func isStop(p scs.Packet) bool {
	return p.Dat1 == 0 && p.Dat0 == 0 && p.Dec == 0
}

func isForward(p scs.Packet) bool {
	return p.Dat1 > 0 && p.Dec == 0
}

func TestScanningDrivesForward(t *testing.T) {
	b := newBench(t)
	for i := 0; i < 5; i++ {
		pkt := b.step()
		require.True(t, isForward(pkt), "packet %s", pkt)
		require.Equal(t, StateScanning, b.eng.State())
	}
	require.Empty(t, b.rotations)
}

func TestShallowPathCrossesDirectly(t *testing.T) {
	b := newBench(t).colors(Colors{White, Red, White}).angle(5)
	pkt := b.step()
	require.True(t, isForward(pkt))
	require.Equal(t, StateCrossing, b.eng.State())
	require.Empty(t, b.rotations, "no rotation for a crossable angle")

	b.colors(Colors{White, White, White})
	b.step()
	require.Equal(t, StateScanning, b.eng.State())
	require.False(t, b.eng.Detection().Active)
}

func TestModeratePathRotatesOnce(t *testing.T) {
	b := newBench(t).colors(Colors{Red, Red, White}).angle(40)

	pkt := b.step()
	require.True(t, isStop(pkt))
	require.Equal(t, StateStopping, b.eng.State())

	b.run(StateCrossing)
	require.Equal(t, []uint16{40}, b.rotations, "exactly one rotation of the full angle")
	require.Equal(t, []Direction{DirLeft}, b.dirs, "left sensor turns toward the line")

	b.colors(Colors{White, White, White})
	b.step()
	require.Equal(t, StateScanning, b.eng.State())
}

func TestCorrectionCycleOrder(t *testing.T) {
	b := newBench(t).colors(Colors{White, Green, White}).angle(22)

	require.True(t, isStop(b.step()))
	require.Equal(t, StateStopping, b.eng.State())

	// Stop confirmed by zero speeds, then reverse to the shallow
	// distance threshold.
	pkt := b.step()
	require.Equal(t, byte(1), pkt.Dec, "reverse after confirmed stop")
	require.Equal(t, StateReversing, b.eng.State())
	for b.eng.State() == StateReversing {
		b.step()
	}
	require.Equal(t, StateStoppedPreRotate, b.eng.State())
	require.Zero(t, b.tel.DistanceMM, "distance counter reset by the pre-rotate stop")

	b.run(StateCrossing)
	require.Equal(t, []uint16{22}, b.rotations)
}

func TestSteepWallSteppedCorrection(t *testing.T) {
	b := newBench(t).colors(Colors{White, Black, White}).angle(68)

	b.step()
	require.Equal(t, StateStopping, b.eng.State())

	// The tracked angle walks 68 -> 63 -> 58 -> 53 -> 48 -> 45 in
	// fixed steps, then the shallow branch issues the 90-degree turn.
	for i := 0; i < 256 && len(b.rotations) < 6; i++ {
		b.step()
	}
	require.Equal(t, []uint16{5, 5, 5, 5, 5, 90}, b.rotations)

	b.run(StateScanning)
	require.False(t, b.eng.Detection().Active, "wall turn accepted with a clean slate")
}

func TestWallSecondTurnUsesFirstAngle(t *testing.T) {
	b := newBench(t).colors(Colors{Black, Black, White}).angle(30)

	// Center-priority pair detection, first wall turn 90-30=60 right.
	b.run(StateScanning)
	require.Equal(t, []uint16{60}, b.rotations)
	require.Equal(t, []Direction{DirRight}, b.dirs)

	// Second wall sighting: 180 minus the first turn, to the left.
	b.colors(Colors{White, White, White})
	b.step()
	b.colors(Colors{White, Blue, White}).angle(20)
	b.run(StateScanning)
	require.Equal(t, []uint16{60, 120}, b.rotations)
	require.Equal(t, []Direction{DirRight, DirLeft}, b.dirs)
}

func TestNavigableResidualRecommand(t *testing.T) {
	b := newBench(t).colors(Colors{White, Green, White}).angle(40)
	b.reportRotation(30)

	for i := 0; i < 64 && len(b.rotations) < 1; i++ {
		b.step()
	}
	require.Equal(t, []uint16{40}, b.rotations)

	// The motor undershot by 10: the residual becomes the next command
	// and the cycle restarts instead of accepting the short turn.
	b.step()
	require.Equal(t, StateStopping, b.eng.State())
	require.Equal(t, uint16(10), b.eng.plan.CommandedDeg)
	require.True(t, b.eng.Detection().Active)

	b.run(StateCrossing)
	require.Equal(t, []uint16{40, 10}, b.rotations)
	require.Equal(t, []Direction{DirLeft, DirLeft}, b.dirs)
}

func TestWallTurnResidualRecommand(t *testing.T) {
	b := newBench(t).colors(Colors{White, Black, White}).angle(30)
	b.reportRotation(50)

	for i := 0; i < 64 && len(b.rotations) < 1; i++ {
		b.step()
	}
	require.Equal(t, []uint16{90}, b.rotations)

	b.step()
	require.Equal(t, StateStopping, b.eng.State())
	require.Equal(t, uint16(40), b.eng.plan.CommandedDeg)
	require.True(t, b.eng.Detection().Active, "incomplete wall turn is not accepted")

	b.run(StateScanning)
	require.Equal(t, []uint16{90, 40}, b.rotations)
	require.False(t, b.eng.Detection().Active)
}

func TestSteeringStepResidual(t *testing.T) {
	b := newBench(t).colors(Colors{White, Black, White}).angle(68)
	b.reportRotation(12)

	for i := 0; i < 64 && len(b.rotations) < 1; i++ {
		b.step()
	}
	require.Equal(t, []uint16{5}, b.rotations)

	b.step()
	require.Equal(t, StateStopping, b.eng.State())
	require.Equal(t, uint16(7), b.eng.plan.CommandedDeg)

	// The residual completes and stepping resumes with the tracked
	// angle where the first step left it.
	for i := 0; i < 256 && len(b.rotations) < 3; i++ {
		b.step()
	}
	require.Equal(t, []uint16{5, 7, 5}, b.rotations)
	require.True(t, b.eng.Detection().Active)
	require.Equal(t, uint16(58), b.eng.Detection().TargetDeg)
}

func TestEmergencyStopAborts(t *testing.T) {
	b := newBench(t).colors(Colors{Red, Green, Black}).angle(10)

	pkt := b.step()
	require.True(t, isStop(pkt), "conflicting lines stop immediately")
	require.Equal(t, StateStopping, b.eng.State())

	// No rotation was planned; the zero-magnitude request aborts the
	// cycle instead of reaching the motors.
	b.run(StateScanning)
	require.Empty(t, b.rotations)
	require.Equal(t, uint64(1), b.eng.InvalidRotations())
	require.False(t, b.eng.Detection().Active)
}

func TestSingleEdgeInfersSteepAngle(t *testing.T) {
	b := newBench(t).colors(Colors{Green, White, White}).angle(0)

	b.step()
	require.False(t, b.eng.Detection().Active, "edge sighting tracks before acting")

	// One sensor-spacing of travel without center confirmation infers
	// a steep line.
	for !b.eng.Detection().Active {
		b.step()
	}
	d := b.eng.Detection()
	require.True(t, d.Angle.Steep())
	_, measured := d.Angle.Deg()
	require.False(t, measured, "inferred angle has no exact value")
	require.Equal(t, SensorLeft, d.Sensor)
	require.Equal(t, KindNavigable, d.Kind)
}

func TestSingleEdgeCenterConfirmation(t *testing.T) {
	b := newBench(t).colors(Colors{Blue, White, White}).angle(0)
	b.step()
	require.False(t, b.eng.Detection().Active)

	b.colors(Colors{Blue, Blue, White}).angle(30)
	b.step()
	d := b.eng.Detection()
	require.True(t, d.Active)
	deg, measured := d.Angle.Deg()
	require.True(t, measured)
	require.Equal(t, uint8(30), deg)
	require.Equal(t, SensorLeft, d.Sensor)
	require.Equal(t, KindWall, d.Kind)
}
