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

// Message is anything posted into the loop inbox, typically by a
// receive goroutine, and consumed by controllers on the loop goroutine.
type Message interface{}

// Controller defines the abstract controlling logic.
// Control must not block: each call advances at most one step.
type Controller interface {
	Control(ControlContext) error
}

// ControlFunc defines the func form of Controller.
type ControlFunc func(ControlContext) error

// Control implements Controller.
func (f ControlFunc) Control(ctx ControlContext) error {
	return f(ctx)
}

// Clock provides the monotonic time used by state machines.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ControlContext provides the context of current control
// iteration.
type ControlContext interface {
	// Now is the time sampled when the iteration started.
	Now() time.Time
	// Context retrieves context.Context.
	Context() context.Context
	// PriorityLevel gets the current priority level.
	PriorityLevel() int
	// Messages retrieves messages drained from the inbox when
	// this iteration started.
	Messages() MessageStore

	LoopControl
}

// PriorityLevels is the total levels of priorities.
const PriorityLevels int = 16

// Predefine priority levels
const (
	PrLvTop    int = 0
	PrLvHigh   int = 4
	PrLvNormal int = 8
	PrLvLow    int = 12
	PrLvIdle   int = PriorityLevels - 1

	// PrLvSense is for controllers polling hardware links.
	PrLvSense = PrLvHigh
	// PrLvControl is for state machines and evaluation.
	PrLvControl = PrLvNormal
	// PrLvReport is for controllers emitting results.
	PrLvReport = PrLvLow
)

// LoopControl exposes access to the controlling loop.
// It is safe to use from any goroutine.
type LoopControl interface {
	// PostMessage enqueues the message without blocking.
	// It returns false if the inbox is full and the message was dropped.
	PostMessage(Message) bool
	// TriggerNext schedules the next iteration to be executed
	// immediately after the current iteration.
	TriggerNext()
}

// MessageStore provides access to messages of the current iteration.
type MessageStore interface {
	// ProcessMessages calls fn on every pending message in order.
	// Messages for which fn returns true are taken and removed;
	// the rest stay visible to lower priority levels.
	ProcessMessages(fn func(Message) bool)
	// Len returns the number of pending messages.
	Len() int
}
