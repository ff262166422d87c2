// Package bartest provides a fake barclock.Instance for driving modules in
// tests.
package bartest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pgaskin/barclock"
	"github.com/pgaskin/barclock/barproto"
)

// Instance records everything a module renders. Ticks, events and stop
// notifications are sent manually.
type Instance struct {
	ctx     context.Context
	eventCh chan barproto.Event
	tickCh  chan struct{}
	stopCh  chan struct{}
	stopped atomic.Bool
	tick    atomic.Int64

	mu      sync.Mutex
	blocks  []barproto.Block
	updates int
	nows    int
}

var _ barclock.Instance = (*Instance)(nil)

// New creates an instance which is done when ctx is.
func New(ctx context.Context) *Instance {
	return &Instance{
		ctx:     ctx,
		eventCh: make(chan barproto.Event, 16),
		tickCh:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}, 1),
	}
}

func (i *Instance) Context() context.Context {
	return i.ctx
}

func (i *Instance) Tick(d time.Duration) {
	i.tick.Store(int64(d))
}

func (i *Instance) Update(now bool, fn func(barclock.Renderer)) {
	var blocks []barproto.Block
	fn(func(b barproto.Block) {
		b.Name = "0"
		blocks = append(blocks, b)
	})
	i.mu.Lock()
	defer i.mu.Unlock()
	i.blocks = blocks
	i.updates++
	if now {
		i.nows++
	}
}

func (i *Instance) IsStopped() bool {
	return i.stopped.Load()
}

func (i *Instance) Event() <-chan barproto.Event {
	return i.eventCh
}

func (i *Instance) Stopped() <-chan struct{} {
	return i.stopCh
}

func (i *Instance) Ticked() <-chan struct{} {
	return i.tickCh
}

func (i *Instance) Debug(format string, a ...any) {
	if t, ok := i.ctx.Value(testingKey{}).(testing.TB); ok {
		t.Logf("debug: "+format, a...)
	}
}

// Interval returns the last tick interval set by the module.
func (i *Instance) Interval() time.Duration {
	return time.Duration(i.tick.Load())
}

// SendTick triggers a tick, dropping it if one is already pending.
func (i *Instance) SendTick() {
	select {
	case i.tickCh <- struct{}{}:
	default:
	}
}

// SendEvent queues a click event.
func (i *Instance) SendEvent(e barproto.Event) {
	e.Name = "0"
	i.eventCh <- e
}

// Click queues a click with button on the block with the given instance
// field.
func (i *Instance) Click(button int, instance string) {
	i.SendEvent(barproto.Event{Button: button, Instance: instance})
}

// SetStopped hides or shows the bar.
func (i *Instance) SetStopped(stopped bool) {
	i.stopped.Store(stopped)
	select {
	case i.stopCh <- struct{}{}:
	default:
	}
}

// Blocks returns the blocks from the last update.
func (i *Instance) Blocks() []barproto.Block {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]barproto.Block(nil), i.blocks...)
}

// Text returns the concatenated full text of the last update.
func (i *Instance) Text() string {
	var b strings.Builder
	for _, blk := range i.Blocks() {
		b.WriteString(blk.FullText)
	}
	return b.String()
}

// Updates returns the number of updates, and how many of them were
// immediate.
func (i *Instance) Updates() (total, now int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.updates, i.nows
}

func (i *Instance) String() string {
	total, now := i.Updates()
	return fmt.Sprintf("bartest.Instance{updates: %d (%d now), text: %q}", total, now, i.Text())
}

type testingKey struct{}

// WithT routes Debug output to t.Log.
func WithT(ctx context.Context, t testing.TB) context.Context {
	return context.WithValue(ctx, testingKey{}, t)
}
