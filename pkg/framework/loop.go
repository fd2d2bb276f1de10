package framework

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultInboxSize is the inbox capacity used when Loop.InboxSize is zero.
const DefaultInboxSize = 256

// Loop drives controllers cooperatively on a single goroutine.
// All state owned by controllers is only touched from that goroutine;
// other goroutines hand data over through PostMessage.
type Loop struct {
	Interval  time.Duration
	Clock     Clock
	InboxSize int

	controllers [PriorityLevels][]Controller
	runners     []Runnable

	initOnce sync.Once
	inbox    chan Message
	wakeUpCh chan struct{}
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

type loopIteration struct {
	*Loop
	ctx           context.Context
	now           time.Time
	priorityLevel int
	messages      []Message
}

type loopCtxKeyType struct{}

var loopCtxKey loopCtxKeyType

// LoopCtlFrom gets LoopControl from the context passed to runners
// started by the loop.
func LoopCtlFrom(ctx context.Context) LoopControl {
	lc, _ := ctx.Value(loopCtxKey).(LoopControl)
	return lc
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Interval: 10 * time.Millisecond, Clock: SystemClock{}}
}

func (l *Loop) init() {
	l.initOnce.Do(func() {
		size := l.InboxSize
		if size <= 0 {
			size = DefaultInboxSize
		}
		l.inbox = make(chan Message, size)
		l.wakeUpCh = make(chan struct{}, 1)
		if l.Clock == nil {
			l.Clock = SystemClock{}
		}
	})
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers to the loop. Controllers also
// implementing Runnable are started with the loop.
func (l *Loop) AddController(priorityLevel int, ctls ...Controller) *Loop {
	l.controllers[priorityLevel] = append(l.controllers[priorityLevel], ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementions.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	l.init()
	runCtx, cancel := context.WithCancel(context.WithValue(ctx, loopCtxKey, LoopControl(l)))
	defer cancel()

	runner := NewRunnerWith(runCtx)
	runner.Go(l.runners...)

	interval := l.Interval
	if interval == 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cancel()
			if err := runner.Wait(); err != nil {
				glog.Errorf("runner error: %v", err)
			}
			return ctx.Err()
		case err := <-runner.Failed():
			cancel()
			runner.Wait()
			return err
		case <-ticker.C:
			l.Iterate(runCtx)
		case <-l.wakeUpCh:
			l.Iterate(runCtx)
		}
	}
}

// RunOrFail is intended to be used in main to simply run the loop.
func (l *Loop) RunOrFail(ctx context.Context) {
	if err := l.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalln(err)
	}
}

// PostMessage implements LoopControl.
func (l *Loop) PostMessage(msg Message) bool {
	l.init()
	select {
	case l.inbox <- msg:
		return true
	default:
		glog.Warningf("loop inbox full, dropped %T", msg)
		return false
	}
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	l.init()
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// Iterate runs exactly one iteration over all priority levels.
func (l *Loop) Iterate(ctx context.Context) {
	l.init()
	iter := &loopIteration{Loop: l, now: l.Clock.Now()}
	iter.ctx = ctx
	for drained := false; !drained; {
		select {
		case msg := <-l.inbox:
			iter.messages = append(iter.messages, msg)
		default:
			drained = true
		}
	}
	for i := 0; i < PriorityLevels; i++ {
		iter.priorityLevel = i
		for _, ctl := range l.controllers[i] {
			if err := ctl.Control(iter); err != nil {
				glog.Errorf("controller error: %v", err)
			}
		}
	}
	if n := len(iter.messages); n > 0 {
		glog.V(4).Infof("%d messages not taken", n)
	}
}

func (t *loopIteration) Context() context.Context {
	return t.ctx
}

func (t *loopIteration) Now() time.Time {
	return t.now
}

func (t *loopIteration) PriorityLevel() int {
	return t.priorityLevel
}

func (t *loopIteration) Messages() MessageStore {
	return t
}

func (t *loopIteration) ProcessMessages(fn func(Message) bool) {
	remains := t.messages[:0]
	for _, msg := range t.messages {
		if !fn(msg) {
			remains = append(remains, msg)
		}
	}
	for i := len(remains); i < len(t.messages); i++ {
		t.messages[i] = nil
	}
	t.messages = remains
}

func (t *loopIteration) Len() int {
	return len(t.messages)
}
