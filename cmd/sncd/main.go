package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	"go.bug.st/serial"

	"github.com/marvbots/snc.go/pkg/framework"
	"github.com/marvbots/snc.go/pkg/navcon"
	"github.com/marvbots/snc.go/pkg/scs"
	"github.com/marvbots/snc.go/pkg/snc"
	"github.com/marvbots/snc.go/pkg/telemetry"
)

var (
	motorPort = flag.String("motor-port", "/dev/ttyUSB0", "Serial port to the motor subsystem.")
	sensePort = flag.String("sense-port", "/dev/ttyUSB1", "Serial port to the sensor subsystem.")
	baudRate  = flag.Int("baud", 19200, "Baud rate of both peer ports.")
	calibFile = flag.String("calibration", "", "TOML calibration file; defaults apply when empty.")
	brokerURL = flag.String("broker", "", "MQTT broker URL for telemetry; disabled when empty.")
	nodeID    = flag.String("node-id", "", "Node identity for telemetry topics; machine id when empty.")
)

func openPort(name string) serial.Port {
	port, err := serial.Open(name, &serial.Mode{BaudRate: *baudRate})
	if err != nil {
		log.Fatalf("open %s: %v", name, err)
	}
	return port
}

func main() {
	flag.Parse()

	calib := navcon.DefaultCalibration()
	if *calibFile != "" {
		var err error
		if calib, err = navcon.LoadCalibration(*calibFile); err != nil {
			log.Fatalln(err)
		}
	}

	motorSide := scs.NewChannel("motor", openPort(*motorPort))
	senseSide := scs.NewChannel("sense", openPort(*sensePort))

	tel := &navcon.Telemetry{}
	engine := navcon.NewEngine(calib, tel)
	fsm := snc.NewFSM(engine)
	node := snc.NewNode(fsm, motorSide, senseSide)

	loop := framework.NewLoop()
	node.FeedLoop(loop)
	loop.AddController(framework.StageControl, node)
	loop.AddRunnable(motorSide, senseSide)

	if *brokerURL != "" {
		queue, err := telemetry.NewQueue(*brokerURL)
		if err != nil {
			log.Fatalln(err)
		}
		loop.Add(telemetry.NewPublisher(queue, telemetry.NodeID(*nodeID), fsm, loop))
	}

	if err := framework.NewRunner().HandleSignals().Go(loop).Wait(); err != nil {
		log.Fatalln(err)
	}
}
