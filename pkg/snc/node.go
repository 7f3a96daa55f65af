package snc

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/marvbots/snc.go/pkg/framework"
	"github.com/marvbots/snc.go/pkg/scs"
)

// PacketMessage is a framed packet posted into the control loop by a
// channel reader.
type PacketMessage struct {
	Channel *scs.Channel
	Packet  scs.Packet
}

// TriggerKind identifies an external one-shot trigger.
type TriggerKind int

// Trigger kinds.
const (
	TriggerTouch TriggerKind = iota
	TriggerTone
	TriggerManualSend
)

// TriggerMessage raises one of the one-shot triggers from outside the
// loop (the command topic, the console).
type TriggerMessage struct {
	Kind TriggerKind
}

// Node is the loop controller gluing the peer channels to the protocol
// state machine. Each iteration it dispatches at most one packet per
// channel, relays every peer packet to the opposite channel, and emits
// this node's own packet on both channels when the bus expects it.
type Node struct {
	FSM *FSM

	// MotorSide and SenseSide are the two duplex peer links. The
	// protocol is symmetric: anything received on one side is
	// forwarded to the other after processing.
	MotorSide *scs.Channel
	SenseSide *scs.Channel

	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// NewNode creates the controller over two peer channels.
func NewNode(fsm *FSM, motorSide, senseSide *scs.Channel) *Node {
	return &Node{FSM: fsm, MotorSide: motorSide, SenseSide: senseSide}
}

// Name implements framework.Named.
func (n *Node) Name() string {
	return "snc"
}

// FeedLoop connects both channels' packet handlers to a loop, so
// framed packets arrive as messages and wake the next iteration.
func (n *Node) FeedLoop(loop *framework.Loop) {
	post := func(ch *scs.Channel) scs.PacketHandler {
		return scs.HandlePacketFunc(func(_ context.Context, _ *scs.Channel, pkt scs.Packet) {
			loop.PostMessage(PacketMessage{Channel: ch, Packet: pkt})
			loop.TriggerNext()
		})
	}
	n.MotorSide.Handler = post(n.MotorSide)
	n.SenseSide.Handler = post(n.SenseSide)
}

// Control implements framework.Controller.
func (n *Node) Control(cc framework.ControlContext) error {
	seen := map[*scs.Channel]bool{}
	cc.Messages().ProcessMessages(framework.ProcessMessageFunc(func(mc framework.MessageProcessingContext) {
		switch m := mc.CurrentMessage().(type) {
		case PacketMessage:
			if seen[m.Channel] {
				// One packet per channel per iteration; the rest stay
				// queued for the next pass.
				return
			}
			seen[m.Channel] = true
			mc.MessageTaken()
			n.handlePacket(m)
		case TriggerMessage:
			mc.MessageTaken()
			switch m.Kind {
			case TriggerTouch:
				n.FSM.Touch()
			case TriggerTone:
				n.FSM.Tone()
			case TriggerManualSend:
				n.FSM.ManualSend()
			}
		}
	}))

	now := n.now(cc)
	if n.FSM.ShouldTransmitNow(now) {
		pkt := n.FSM.Generate()
		n.sendBoth(pkt)
		n.FSM.MarkSent(now)
		// Own packets run through the same dispatch path as peer
		// packets; the expectation table treats them uniformly.
		n.FSM.Dispatch(pkt)
	}
	if len(seen) > 0 {
		cc.TriggerNext()
	}
	return nil
}

// handlePacket dispatches a peer packet and relays it to the opposite
// channel.
func (n *Node) handlePacket(m PacketMessage) {
	n.FSM.Dispatch(m.Packet)
	other := n.MotorSide
	if m.Channel == n.MotorSide {
		other = n.SenseSide
	}
	if other != nil && other != m.Channel {
		if err := other.Send(m.Packet); err != nil {
			glog.Errorf("snc: relay to %s: %v", other.Name, err)
		}
	}
}

func (n *Node) sendBoth(pkt scs.Packet) {
	glog.V(1).Infof("snc: SND %s", pkt)
	for _, ch := range []*scs.Channel{n.MotorSide, n.SenseSide} {
		if ch == nil {
			continue
		}
		if err := ch.Send(pkt); err != nil {
			glog.Errorf("snc: send on %s: %v", ch.Name, err)
		}
	}
}

func (n *Node) now(cc framework.ControlContext) time.Time {
	if n.Clock != nil {
		return n.Clock()
	}
	return cc.Time()
}
