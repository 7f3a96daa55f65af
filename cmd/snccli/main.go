package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/marvbots/snc.go/pkg/telemetry"
)

var (
	brokerURL = flag.String("broker", "mqtt://127.0.0.1:1883", "MQTT broker URL.")
	nodeID    = flag.String("node", "", "Target node identity; machine id when empty.")
)

type console struct {
	queue *telemetry.Queue
	node  string

	lock   sync.Mutex
	latest *telemetry.Snapshot
}

func (c *console) watchStatus() {
	c.queue.Sub(telemetry.StatusTopic(c.node), func(_ string, payload []byte) {
		snap, err := telemetry.DecodeSnapshot(payload)
		if err != nil {
			return
		}
		c.lock.Lock()
		c.latest = &snap
		c.lock.Unlock()
	})
}

func (c *console) trigger(name string) func(*ishell.Context) {
	return func(sc *ishell.Context) {
		token := c.queue.Pub(telemetry.CommandTopic(c.node), []byte(name))
		token.Wait()
		if err := token.Error(); err != nil {
			sc.Err(err)
			return
		}
		sc.Printf("%s trigger sent\n", name)
	}
}

func (c *console) snapshot() *telemetry.Snapshot {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.latest
}

func (c *console) printStatus(sc *ishell.Context) {
	snap := c.snapshot()
	if snap == nil {
		sc.Println("no snapshot received yet")
		return
	}
	sc.Println(formatSnapshot(snap))
}

func (c *console) printNav(sc *ishell.Context) {
	snap := c.snapshot()
	if snap == nil {
		sc.Println("no snapshot received yet")
		return
	}
	sc.Printf("engine: %s\n", snap.EngineState)
	sc.Printf("colors: %v  angle: %d\n", snap.Colors, snap.AngleDeg)
	sc.Printf("speeds: L=%d R=%d  distance: %dmm\n", snap.SpeedLeft, snap.SpeedRight, snap.DistanceMM)
	sc.Printf("rotation: %d %s  invalid rotations: %d\n", snap.RotationDeg, snap.RotationDir, snap.InvalidRot)
}

func (c *console) watch(sc *ishell.Context) {
	dur := 10 * time.Second
	if len(sc.Args) > 0 {
		d, err := time.ParseDuration(sc.Args[0])
		if err != nil {
			sc.Err(err)
			return
		}
		dur = d
	}
	deadline := time.Now().Add(dur)
	var last *telemetry.Snapshot
	for time.Now().Before(deadline) {
		if snap := c.snapshot(); snap != nil && snap != last {
			sc.Println(formatSnapshot(snap))
			last = snap
		}
		time.Sleep(telemetry.DefaultPublishInterval)
	}
}

func formatSnapshot(s *telemetry.Snapshot) string {
	line := fmt.Sprintf("[%s] expect %s:%d (%s)  engine=%s  unexpected=%d",
		s.Phase, s.ExpectRole, s.ExpectSub, s.ExpectDesc, s.EngineState, s.Unexpected)
	if s.MazeComplete {
		line += "  MAZE COMPLETE"
	}
	return line
}

func main() {
	flag.Parse()

	queue, err := telemetry.NewQueue(*brokerURL)
	if err != nil {
		log.Fatalln(err)
	}
	token := queue.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		log.Fatalln(err)
	}
	defer queue.Close()

	c := &console{queue: queue, node: telemetry.NodeID(*nodeID)}
	c.watchStatus()

	sh := ishell.New()
	sh.Println("snc console, node", c.node)
	sh.AddCmd(&ishell.Cmd{Name: "touch", Aliases: []string{"t"}, Help: "raise the touch trigger", Func: c.trigger("touch")})
	sh.AddCmd(&ishell.Cmd{Name: "tone", Aliases: []string{"p"}, Help: "raise the pure-tone trigger", Func: c.trigger("tone")})
	sh.AddCmd(&ishell.Cmd{Name: "send", Aliases: []string{"s"}, Help: "force one transmission", Func: c.trigger("send")})
	sh.AddCmd(&ishell.Cmd{Name: "status", Aliases: []string{"?"}, Help: "print the latest snapshot", Func: c.printStatus})
	sh.AddCmd(&ishell.Cmd{Name: "nav", Aliases: []string{"n"}, Help: "print navigation telemetry", Func: c.printNav})
	sh.AddCmd(&ishell.Cmd{Name: "watch", Aliases: []string{"w"}, Help: "stream snapshots for a duration", Func: c.watch})
	sh.Run()
}
