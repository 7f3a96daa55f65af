// Command peersim emulates the motor and sensor subsystems on two
// serial ports, for bench-testing a navigation node without a robot.
// A TOML script declares what the floor looks like at each point of
// forward travel.
package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/marvbots/snc.go/pkg/framework"
	"github.com/marvbots/snc.go/pkg/navcon"
	"github.com/marvbots/snc.go/pkg/scs"
	"github.com/marvbots/snc.go/pkg/snc"
)

var (
	motorPort  = flag.String("motor-port", "/dev/ttyUSB0", "Serial port acting as the motor subsystem.")
	sensePort  = flag.String("sense-port", "/dev/ttyUSB1", "Serial port acting as the sensor subsystem.")
	baudRate   = flag.Int("baud", 19200, "Baud rate of both ports.")
	scriptFile = flag.String("script", "", "TOML floor script; all background when empty.")
)

type scriptEvent struct {
	AtMM   uint16    `toml:"at_mm"`
	Colors [3]string `toml:"colors"`
	Angle  uint8     `toml:"angle"`
	End    bool      `toml:"end"`
}

type script struct {
	Events []scriptEvent `toml:"event"`
}

type floorEvent struct {
	atMM   uint16
	colors navcon.Colors
	angle  uint8
	end    bool
}

func parseColor(name string) (navcon.Color, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "WHITE":
		return navcon.White, nil
	case "RED":
		return navcon.Red, nil
	case "GREEN":
		return navcon.Green, nil
	case "BLUE":
		return navcon.Blue, nil
	case "BLACK":
		return navcon.Black, nil
	}
	return navcon.White, fmt.Errorf("unknown color %q", name)
}

func loadScript(path string) ([]floorEvent, error) {
	if path == "" {
		return nil, nil
	}
	var s script
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return nil, err
	}
	events := make([]floorEvent, 0, len(s.Events))
	for _, ev := range s.Events {
		fe := floorEvent{atMM: ev.AtMM, angle: ev.Angle, end: ev.End}
		for i, name := range ev.Colors {
			c, err := parseColor(name)
			if err != nil {
				return nil, err
			}
			fe.colors[i] = c
		}
		events = append(events, fe)
	}
	return events, nil
}

// sim plays both peers: it consumes the node's packets and answers
// with the motor and sensor report cycle, integrating commanded motion
// into distance and rotation feedback.
type sim struct {
	motorSide *scs.Channel
	senseSide *scs.Channel
	events    []floorEvent

	phase       scs.Phase
	traveledMM  uint16
	distanceMM  uint16
	speedLeft   uint8
	speedRight  uint8
	rotationDeg uint16
	rotationDir byte
	endSent     bool
}

func (s *sim) Name() string { return "peersim" }

func (s *sim) Control(cc framework.ControlContext) error {
	cc.Messages().ProcessMessages(framework.ProcessMessageFunc(func(mc framework.MessageProcessingContext) {
		m, ok := mc.CurrentMessage().(snc.PacketMessage)
		if !ok {
			return
		}
		mc.MessageTaken()
		if m.Packet.Role != scs.RoleNav {
			// Relayed copies of our own reports come back on the
			// opposite port; only the node's packets matter.
			return
		}
		s.handleNav(m.Packet)
	}))
	return nil
}

func (s *sim) handleNav(p scs.Packet) {
	glog.V(1).Infof("peersim: RCV %s", p)
	lead := p.Dat1 == 1
	switch {
	case p.Is(scs.PhaseIdle, scs.RoleNav, 0):
		if lead {
			s.phase = scs.PhaseCal
			s.sendCalibration()
		}
	case p.Is(scs.PhaseCal, scs.RoleNav, 0):
		if lead {
			s.phase = scs.PhaseMaze
			glog.Info("peersim: entering maze")
		} else {
			s.sendCalibration()
		}
	case p.Is(scs.PhaseMaze, scs.RoleNav, 1):
		if lead {
			s.phase = scs.PhaseSos
			s.stop()
			s.sendMotor(s.phase)
		}
	case p.Is(scs.PhaseMaze, scs.RoleNav, 2):
		if lead {
			s.phase = scs.PhaseIdle
		}
	case p.Is(scs.PhaseMaze, scs.RoleNav, 3):
		// A navigation command implies the node is in the maze; sync up
		// if the touch packets were missed.
		s.phase = scs.PhaseMaze
		s.applyMotion(p)
		s.sendMotor(s.phase)
		s.sendSense()
	case p.Is(scs.PhaseSos, scs.RoleNav, 0):
		if lead {
			s.phase = scs.PhaseMaze
		}
	}
}

func (s *sim) applyMotion(p scs.Packet) {
	switch {
	case p.Dec == 2 || p.Dec == 3:
		// Perfect rotation execution.
		s.rotationDeg = p.Word()
		s.rotationDir = p.Dec
		s.speedLeft, s.speedRight = 0, 0
	case p.Dec == 1:
		s.speedLeft, s.speedRight = p.Dat0, p.Dat1
		s.distanceMM += uint16(p.Dat1)
	case p.Dat1 == 0:
		s.stop()
	default:
		s.speedLeft, s.speedRight = p.Dat0, p.Dat1
		s.distanceMM += uint16(p.Dat1)
		s.traveledMM += uint16(p.Dat1)
	}
}

func (s *sim) stop() {
	s.speedLeft, s.speedRight = 0, 0
	// The motor subsystem resets its distance counter on every stop.
	s.distanceMM = 0
}

func (s *sim) current() floorEvent {
	cur := floorEvent{}
	for _, ev := range s.events {
		if ev.atMM <= s.traveledMM {
			cur = ev
		}
	}
	return cur
}

func (s *sim) sendCalibration() {
	s.send(s.senseSide, scs.Packet{Phase: scs.PhaseCal, Role: scs.RoleSense, Sub: 0})
	s.send(s.motorSide, scs.Packet{Phase: scs.PhaseCal, Role: scs.RoleMotor, Sub: 0})
	s.send(s.motorSide, scs.Packet{Phase: scs.PhaseCal, Role: scs.RoleMotor, Sub: 1, Dat1: 100})
	s.send(s.senseSide, scs.Packet{Phase: scs.PhaseCal, Role: scs.RoleSense, Sub: 1})
}

func (s *sim) sendMotor(phase scs.Phase) {
	s.send(s.motorSide, scs.Packet{Phase: phase, Role: scs.RoleMotor, Sub: 1})
	rot := scs.Packet{Phase: phase, Role: scs.RoleMotor, Sub: 2, Dec: s.rotationDir}
	rot.SetWord(s.rotationDeg)
	s.send(s.motorSide, rot)
	s.send(s.motorSide, scs.Packet{Phase: phase, Role: scs.RoleMotor, Sub: 3, Dat1: s.speedRight, Dat0: s.speedLeft})
	dist := scs.Packet{Phase: phase, Role: scs.RoleMotor, Sub: 4}
	dist.SetWord(s.distanceMM)
	s.send(s.motorSide, dist)
}

func (s *sim) sendSense() {
	ev := s.current()
	if ev.end && !s.endSent {
		s.endSent = true
		s.send(s.senseSide, scs.Packet{Phase: scs.PhaseMaze, Role: scs.RoleSense, Sub: 3})
		return
	}
	colors := scs.Packet{Phase: scs.PhaseMaze, Role: scs.RoleSense, Sub: 1}
	colors.SetWord(navcon.EncodeColors(ev.colors))
	s.send(s.senseSide, colors)
	s.send(s.senseSide, scs.Packet{Phase: scs.PhaseMaze, Role: scs.RoleSense, Sub: 2, Dat1: ev.angle})
}

func (s *sim) send(ch *scs.Channel, p scs.Packet) {
	glog.V(1).Infof("peersim: SND %s", p)
	if err := ch.Send(p); err != nil {
		glog.Errorf("peersim: send on %s: %v", ch.Name, err)
	}
}

func openPort(name string) serial.Port {
	port, err := serial.Open(name, &serial.Mode{BaudRate: *baudRate})
	if err != nil {
		log.Fatalf("open %s: %v", name, err)
	}
	return port
}

func main() {
	flag.Parse()

	events, err := loadScript(*scriptFile)
	if err != nil {
		log.Fatalln(err)
	}

	s := &sim{
		motorSide: scs.NewChannel("motor", openPort(*motorPort)),
		senseSide: scs.NewChannel("sense", openPort(*sensePort)),
		events:    events,
		phase:     scs.PhaseIdle,
	}

	loop := framework.NewLoop()
	post := func(ch *scs.Channel) scs.PacketHandler {
		return scs.HandlePacketFunc(func(_ context.Context, _ *scs.Channel, pkt scs.Packet) {
			loop.PostMessage(snc.PacketMessage{Channel: ch, Packet: pkt})
			loop.TriggerNext()
		})
	}
	s.motorSide.Handler = post(s.motorSide)
	s.senseSide.Handler = post(s.senseSide)
	loop.AddController(framework.StageControl, s)
	loop.AddRunnable(s.motorSide, s.senseSide)

	if err := framework.NewRunner().HandleSignals().Go(loop).Wait(); err != nil {
		log.Fatalln(err)
	}
}
