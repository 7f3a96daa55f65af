package telemetry

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/marvbots/snc.go/pkg/framework"
	"github.com/marvbots/snc.go/pkg/snc"
)

// DefaultPublishInterval is the snapshot push period.
const DefaultPublishInterval = 500 * time.Millisecond

// Publisher pushes node snapshots to status/<id> at a fixed interval
// and turns messages on cmd/<id> into loop trigger messages. Snapshot
// capture runs in the control loop (StagePost), so it reads protocol
// state without locking; publishing itself is asynchronous.
type Publisher struct {
	Queue    *Queue
	NodeID   string
	Interval time.Duration

	FSM  *snc.FSM
	Loop framework.LoopControl

	lastPublish time.Time
}

// NewPublisher creates a publisher for a node's state machine.
func NewPublisher(q *Queue, nodeID string, fsm *snc.FSM, loop framework.LoopControl) *Publisher {
	return &Publisher{
		Queue:    q,
		NodeID:   nodeID,
		Interval: DefaultPublishInterval,
		FSM:      fsm,
		Loop:     loop,
	}
}

// StatusTopic returns the snapshot topic for a node id.
func StatusTopic(nodeID string) string {
	return "status/" + nodeID
}

// CommandTopic returns the trigger command topic for a node id.
func CommandTopic(nodeID string) string {
	return "cmd/" + nodeID
}

// AddToLoop implements framework.LoopAdder.
func (p *Publisher) AddToLoop(loop *framework.Loop) {
	loop.AddController(framework.StagePost, p)
	loop.AddRunnable(p)
}

// Control implements framework.Controller: captures and publishes a
// snapshot when the interval has elapsed.
func (p *Publisher) Control(cc framework.ControlContext) error {
	now := cc.Time()
	if now.Sub(p.lastPublish) < p.Interval {
		return nil
	}
	p.lastPublish = now
	data, err := p.capture().Encode()
	if err != nil {
		return err
	}
	p.Queue.Pub(StatusTopic(p.NodeID), data)
	return nil
}

// Run implements framework.Runnable: subscribes the command topic and
// holds the connection until the context ends.
func (p *Publisher) Run(ctx context.Context) error {
	token := p.Queue.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}
	defer p.Queue.Close()
	p.Queue.Sub(CommandTopic(p.NodeID), p.handleCommand)
	<-ctx.Done()
	return ctx.Err()
}

// handleCommand maps a command payload to a loop trigger message. It
// runs on the MQTT client goroutine, so it only posts.
func (p *Publisher) handleCommand(_ string, payload []byte) {
	var kind snc.TriggerKind
	switch string(payload) {
	case "touch":
		kind = snc.TriggerTouch
	case "tone":
		kind = snc.TriggerTone
	case "send":
		kind = snc.TriggerManualSend
	default:
		glog.Warningf("telemetry: unknown command %q", payload)
		return
	}
	p.Loop.PostMessage(snc.TriggerMessage{Kind: kind})
	p.Loop.TriggerNext()
}

func (p *Publisher) capture() Snapshot {
	f := p.FSM
	t := f.Telemetry
	exp := f.Expect()
	s := Snapshot{
		Phase:        f.Phase().String(),
		ExpectRole:   exp.Role.String(),
		ExpectSub:    exp.Sub,
		ExpectDesc:   exp.Desc,
		EngineState:  f.Engine.State().String(),
		AngleDeg:     t.AngleDeg,
		SpeedLeft:    t.SpeedLeft,
		SpeedRight:   t.SpeedRight,
		DistanceMM:   t.DistanceMM,
		RotationDeg:  t.RotationDeg,
		RotationDir:  t.RotationDir.String(),
		MazeComplete: f.MazeComplete(),
		Unexpected:   f.Unexpected(),
		InvalidRot:   f.Engine.InvalidRotations(),
	}
	for i, c := range t.Colors {
		s.Colors[i] = c.String()
	}
	return s
}
