package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// Message is an item delivered into the control loop. Background
// goroutines post messages; the loop consumes them, so all protocol
// state stays single-writer.
type Message interface{}

// Controller defines the abstract controlling logic invoked once per
// loop iteration.
type Controller interface {
	Control(ControlContext) error
}

// ControlFunc is the func form of Controller.
type ControlFunc func(ControlContext) error

// Control implements Controller.
func (f ControlFunc) Control(cc ControlContext) error {
	return f(cc)
}

// ControlContext provides the context of the current iteration.
type ControlContext interface {
	// Context retrieves context.Context.
	Context() context.Context
	// Time is the timestamp the iteration started, shared by all
	// controllers in the iteration.
	Time() time.Time
	// Messages retrieves messages collected when this iteration starts.
	Messages() MessageStore

	LoopControl
}

// Stages of one loop iteration, executed in order.
const (
	// StageSense runs controllers consuming inbound messages.
	StageSense int = iota
	// StageControl runs decision logic.
	StageControl
	// StageActuate runs controllers emitting outbound packets.
	StageActuate
	// StagePost runs post-processing such as telemetry capture.
	StagePost

	StageCount
)

// LoopControl exposes access to the controlling loop.
type LoopControl interface {
	// PostMessage enqueues a message for the next iteration. Safe to
	// call from any goroutine.
	PostMessage(Message)
	// TriggerNext schedules an immediate iteration after the current
	// one instead of waiting for the tick.
	TriggerNext()
}

// MessageStore provides access to the iteration's messages.
type MessageStore interface {
	// ProcessMessages uses a processor to examine all messages.
	ProcessMessages(MessageProcessor)
	// AddMessages appends messages for the next processing cycle.
	AddMessages(msgs ...Message)
}

// MessageProcessor is used by MessageStore to process messages.
type MessageProcessor interface {
	ProcessMessage(MessageProcessingContext)
}

// ProcessMessageFunc is the func form of MessageProcessor.
type ProcessMessageFunc func(MessageProcessingContext)

// ProcessMessage implements MessageProcessor.
func (f ProcessMessageFunc) ProcessMessage(mc MessageProcessingContext) {
	f(mc)
}

// MessageProcessingContext provides context for the current message.
type MessageProcessingContext interface {
	// CurrentMessage gets the message being processed.
	CurrentMessage() Message
	// MessageTaken marks the message consumed; it is removed from the
	// store.
	MessageTaken()
	// StopProcessing indicates no need to examine further messages.
	StopProcessing()
}
