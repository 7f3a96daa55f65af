package snc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marvbots/snc.go/pkg/navcon"
	"github.com/marvbots/snc.go/pkg/scs"
)

func newTestFSM() *FSM {
	return NewFSM(navcon.NewEngine(navcon.DefaultCalibration(), &navcon.Telemetry{}))
}

func pkt(phase scs.Phase, role scs.Role, sub uint8) scs.Packet {
	return scs.Packet{Phase: phase, Role: role, Sub: sub}
}

func lead(p scs.Packet) scs.Packet {
	p.Dat1 = 1
	return p
}

func requireExpect(t *testing.T, f *FSM, role scs.Role, sub uint8) {
	t.Helper()
	e := f.Expect()
	require.Equal(t, role, e.Role, "expectation %q", e.Desc)
	require.Equal(t, sub, e.Sub, "expectation %q", e.Desc)
}

// runCalibration walks a fresh state machine through touch, the
// calibration exchange and the second touch, into the maze phase.
func runCalibration(t *testing.T, f *FSM) {
	t.Helper()
	f.Touch()
	own := f.Generate()
	require.True(t, own.Is(scs.PhaseIdle, scs.RoleNav, 0))
	require.Equal(t, byte(1), own.Dat1)
	f.Dispatch(own)
	require.Equal(t, scs.PhaseCal, f.Phase())

	f.Dispatch(pkt(scs.PhaseCal, scs.RoleSense, 0))
	f.Dispatch(pkt(scs.PhaseCal, scs.RoleMotor, 0))
	mb := pkt(scs.PhaseCal, scs.RoleMotor, 1)
	mb.Dat1 = 100
	f.Dispatch(mb)
	f.Dispatch(pkt(scs.PhaseCal, scs.RoleSense, 1))
	requireExpect(t, f, scs.RoleNav, 0)

	f.Touch()
	own = f.Generate()
	require.True(t, own.Is(scs.PhaseCal, scs.RoleNav, 0))
	require.Equal(t, byte(1), own.Dat1)
	f.Dispatch(own)
	require.Equal(t, scs.PhaseMaze, f.Phase())
	requireExpect(t, f, scs.RoleNav, 1)
}

func TestTouchStartsCalibration(t *testing.T) {
	f := newTestFSM()
	require.Equal(t, scs.PhaseIdle, f.Phase())
	requireExpect(t, f, scs.RoleNav, 0)

	// Stale readings from a previous run must not survive the restart.
	f.Telemetry.DistanceMM = 500
	f.Telemetry.AngleDeg = 30

	f.Touch()
	f.Dispatch(f.Generate())
	require.Equal(t, scs.PhaseCal, f.Phase())
	requireExpect(t, f, scs.RoleSense, 0)
	require.Zero(t, f.Telemetry.DistanceMM)
	require.Zero(t, f.Telemetry.AngleDeg)
	require.Equal(t, navcon.StateScanning, f.Engine.State())
}

func TestTouchlessIdlePacketStaysIdle(t *testing.T) {
	f := newTestFSM()
	own := f.Generate()
	require.True(t, own.Is(scs.PhaseIdle, scs.RoleNav, 0))
	require.Zero(t, own.Dat1, "no touch, no lead bit")
	require.Equal(t, byte(50), own.Dat0)
	f.Dispatch(own)
	require.Equal(t, scs.PhaseIdle, f.Phase())
	requireExpect(t, f, scs.RoleNav, 0)
}

func TestCalibrationToMaze(t *testing.T) {
	f := newTestFSM()
	runCalibration(t, f)
}

func TestCalibrationLoopWithoutSecondTouch(t *testing.T) {
	f := newTestFSM()
	f.Touch()
	f.Dispatch(f.Generate())
	f.Dispatch(pkt(scs.PhaseCal, scs.RoleSense, 0))
	f.Dispatch(pkt(scs.PhaseCal, scs.RoleMotor, 0))
	f.Dispatch(pkt(scs.PhaseCal, scs.RoleMotor, 1))
	f.Dispatch(pkt(scs.PhaseCal, scs.RoleSense, 1))

	// No touch: the own packet keeps the calibration reporting loop
	// going instead of entering the maze.
	f.Dispatch(f.Generate())
	require.Equal(t, scs.PhaseCal, f.Phase())
	requireExpect(t, f, scs.RoleMotor, 1)
}

func TestSecondTouchWaitsForCalibration(t *testing.T) {
	f := newTestFSM()
	f.Touch()
	f.Dispatch(f.Generate())
	require.Equal(t, scs.PhaseCal, f.Phase())

	// A touch before the calibration exchange asks for it stays
	// pending instead of entering the maze early.
	f.Touch()
	own := f.Generate()
	require.Zero(t, own.Dat1)

	f.Dispatch(pkt(scs.PhaseCal, scs.RoleSense, 0))
	f.Dispatch(pkt(scs.PhaseCal, scs.RoleMotor, 0))
	f.Dispatch(pkt(scs.PhaseCal, scs.RoleMotor, 1))
	f.Dispatch(pkt(scs.PhaseCal, scs.RoleSense, 1))

	own = f.Generate()
	require.Equal(t, byte(1), own.Dat1, "pending touch folds in after the exchange")
	f.Dispatch(own)
	require.Equal(t, scs.PhaseMaze, f.Phase())
}

func TestGenerateWithoutDispatchIsStable(t *testing.T) {
	f := newTestFSM()
	require.Equal(t, f.Generate(), f.Generate(), "no flags, no progression")

	f.Touch()
	f.Dispatch(f.Generate())
	require.Equal(t, scs.PhaseCal, f.Phase())
	require.Equal(t, f.Generate(), f.Generate())
}

func TestMazeReportCycle(t *testing.T) {
	f := newTestFSM()
	runCalibration(t, f)

	f.Dispatch(f.Generate()) // tone report, no tone pending
	requireExpect(t, f, scs.RoleNav, 2)
	f.Dispatch(f.Generate()) // touch report, no touch pending
	requireExpect(t, f, scs.RoleNav, 3)
	require.True(t, f.NavTurn())

	own := f.Generate()
	require.True(t, own.Is(scs.PhaseMaze, scs.RoleNav, 3))
	f.Dispatch(own)
	requireExpect(t, f, scs.RoleMotor, 1)

	f.Dispatch(pkt(scs.PhaseMaze, scs.RoleMotor, 1))
	rot := pkt(scs.PhaseMaze, scs.RoleMotor, 2)
	rot.SetWord(40)
	rot.Dec = 2
	f.Dispatch(rot)
	speeds := pkt(scs.PhaseMaze, scs.RoleMotor, 3)
	speeds.Dat1, speeds.Dat0 = 10, 10
	f.Dispatch(speeds)
	dist := pkt(scs.PhaseMaze, scs.RoleMotor, 4)
	dist.SetWord(120)
	f.Dispatch(dist)
	requireExpect(t, f, scs.RoleSense, 1)

	colors := pkt(scs.PhaseMaze, scs.RoleSense, 1)
	colors.SetWord(navcon.EncodeColors(navcon.Colors{navcon.White, navcon.Red, navcon.White}))
	f.Dispatch(colors)
	angle := pkt(scs.PhaseMaze, scs.RoleSense, 2)
	angle.Dat1 = 22
	f.Dispatch(angle)

	// Cycle closed, and every report landed in the telemetry cache.
	requireExpect(t, f, scs.RoleNav, 1)
	require.Equal(t, uint16(40), f.Telemetry.RotationDeg)
	require.Equal(t, navcon.DirLeft, f.Telemetry.RotationDir)
	require.Equal(t, uint8(10), f.Telemetry.SpeedLeft)
	require.Equal(t, uint16(120), f.Telemetry.DistanceMM)
	require.Equal(t, navcon.Colors{navcon.White, navcon.Red, navcon.White}, f.Telemetry.Colors)
	require.Equal(t, uint8(22), f.Telemetry.AngleDeg)
	require.Zero(t, f.Unexpected())
}

func TestToneRoundTripsThroughSos(t *testing.T) {
	f := newTestFSM()
	runCalibration(t, f)

	f.Tone()
	own := f.Generate()
	require.True(t, own.Is(scs.PhaseMaze, scs.RoleNav, 1))
	require.Equal(t, byte(1), own.Dat1)
	f.Dispatch(own)
	require.Equal(t, scs.PhaseSos, f.Phase())
	requireExpect(t, f, scs.RoleMotor, 4)

	f.Dispatch(pkt(scs.PhaseSos, scs.RoleMotor, 4))
	requireExpect(t, f, scs.RoleNav, 0)

	// A toneless own packet keeps waiting in SOS.
	f.Dispatch(f.Generate())
	require.Equal(t, scs.PhaseSos, f.Phase())
	requireExpect(t, f, scs.RoleNav, 0)

	f.Tone()
	own = f.Generate()
	require.True(t, own.Is(scs.PhaseSos, scs.RoleNav, 0))
	require.Equal(t, byte(1), own.Dat1)
	f.Dispatch(own)
	require.Equal(t, scs.PhaseMaze, f.Phase())
	requireExpect(t, f, scs.RoleNav, 1)
}

func TestEndOfMazeLatch(t *testing.T) {
	f := newTestFSM()
	runCalibration(t, f)
	f.Dispatch(f.Generate())
	f.Dispatch(f.Generate())
	f.Dispatch(f.Generate())
	f.Dispatch(pkt(scs.PhaseMaze, scs.RoleMotor, 1))
	f.Dispatch(pkt(scs.PhaseMaze, scs.RoleMotor, 2))
	f.Dispatch(pkt(scs.PhaseMaze, scs.RoleMotor, 3))
	f.Dispatch(pkt(scs.PhaseMaze, scs.RoleMotor, 4))
	requireExpect(t, f, scs.RoleSense, 1)

	// End of maze arrives in place of the color report.
	f.Dispatch(pkt(scs.PhaseMaze, scs.RoleSense, 3))
	require.Equal(t, scs.PhaseIdle, f.Phase())
	require.True(t, f.MazeComplete())
	requireExpect(t, f, scs.RoleNav, 0)

	now := time.Now()
	require.False(t, f.ShouldTransmitNow(now), "latched off after completion")
	f.ManualSend()
	require.False(t, f.ShouldTransmitNow(now), "manual send does not defeat the latch")

	// A fresh touch restarts the mission.
	f.Touch()
	require.True(t, f.ShouldTransmitNow(now))
	f.Dispatch(f.Generate())
	require.Equal(t, scs.PhaseCal, f.Phase())
	require.False(t, f.MazeComplete())
}

func TestManualMazeExit(t *testing.T) {
	f := newTestFSM()
	runCalibration(t, f)
	f.Dispatch(f.Generate()) // tone report
	requireExpect(t, f, scs.RoleNav, 2)

	f.Touch()
	own := f.Generate()
	require.True(t, own.Is(scs.PhaseMaze, scs.RoleNav, 2))
	require.Equal(t, byte(1), own.Dat1)
	f.Dispatch(own)
	require.Equal(t, scs.PhaseIdle, f.Phase())

	// One idle packet with the touch bit clear announces the exit.
	require.True(t, f.ShouldTransmitNow(time.Now()))
	own = f.Generate()
	require.True(t, own.Is(scs.PhaseIdle, scs.RoleNav, 0))
	require.Zero(t, own.Dat1)
}

func TestUnexpectedPacketsCounted(t *testing.T) {
	f := newTestFSM()
	f.Dispatch(pkt(scs.PhaseMaze, scs.RoleMotor, 2))
	f.Dispatch(pkt(scs.PhaseMaze, scs.RoleSense, 1))
	require.Equal(t, uint64(2), f.Unexpected())
	require.Equal(t, scs.PhaseIdle, f.Phase(), "out-of-sequence packets change nothing")
	requireExpect(t, f, scs.RoleNav, 0)
}

func TestTransmitTiming(t *testing.T) {
	f := newTestFSM()
	now := time.Now()

	// IDLE transmits once, then waits for a trigger.
	require.True(t, f.ShouldTransmitNow(now))
	f.MarkSent(now)
	require.False(t, f.ShouldTransmitNow(now.Add(time.Hour)))
	f.Touch()
	require.True(t, f.ShouldTransmitNow(now))

	f.Dispatch(f.Generate())
	require.Equal(t, scs.PhaseCal, f.Phase())

	// Not our turn: the sensor subsystem speaks next.
	require.False(t, f.ShouldTransmitNow(now))

	// Our turn outside the navigation turn is rate limited.
	f.Dispatch(pkt(scs.PhaseCal, scs.RoleSense, 0))
	f.Dispatch(pkt(scs.PhaseCal, scs.RoleMotor, 0))
	f.Dispatch(pkt(scs.PhaseCal, scs.RoleMotor, 1))
	f.Dispatch(pkt(scs.PhaseCal, scs.RoleSense, 1))
	requireExpect(t, f, scs.RoleNav, 0)
	f.MarkSent(now)
	require.False(t, f.ShouldTransmitNow(now.Add(100*time.Millisecond)))
	require.True(t, f.ShouldTransmitNow(now.Add(transmitInterval)))
	f.ManualSend()
	require.True(t, f.ShouldTransmitNow(now.Add(100*time.Millisecond)))

	// The navigation turn is answered immediately.
	f.Touch()
	f.Dispatch(f.Generate())
	f.Dispatch(f.Generate())
	f.Dispatch(f.Generate())
	require.True(t, f.NavTurn())
	f.MarkSent(now)
	require.True(t, f.ShouldTransmitNow(now))
}
