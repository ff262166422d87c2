// Package barclock hosts immediate-mode status bar modules speaking the i3bar
// protocol, and provides the plumbing shared by the modules in this
// repository.
package barclock

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pgaskin/barclock/barproto"
	"golang.org/x/sys/unix"
)

// Module is a single immediate-mode status bar module with its own main loop
// and state.
type Module interface {
	// Run contains the main loop for the module. It returns nil once the
	// instance context is done, or an error if a fatal error occurs.
	Run(Instance) error
}

// ModuleFunc wraps a function in a Module.
type ModuleFunc func(Instance) error

func (fn ModuleFunc) Run(instance Instance) error {
	return fn(instance)
}

// Instance provides per-instance functions to interact with the bar.
type Instance interface {
	// Context is done when the bar is shutting down.
	Context() context.Context

	// Tick enables the Ticked event. The interval is rounded to a multiple of
	// the bar's base tick rate so ticks for all instances coincide and the
	// bar redraws once for all of them. Zero disables ticks.
	Tick(time.Duration)

	// Update builds and submits an update for the bar. The renderer must only
	// be used within the function. If now is true, the new bar will be drawn
	// immediately instead of attempting to coalesce draws. The Block.Name field
	// is used internally and will be overridden. Update is safe to call from
	// any goroutine.
	Update(now bool, fn func(render Renderer))

	// IsStopped checks whether the bar is currently hidden. This is just a
	// hint, and doesn't need to be followed.
	IsStopped() bool

	// Event gets the event channel. Up to 16 events are buffered.
	Event() <-chan barproto.Event

	// Stopped gets a channel which notifies when IsStopped changes. The buffer
	// size is 1 since the actual value is read from IsStopped.
	Stopped() <-chan struct{}

	// Ticked gets a channel which notifies at the configured tick interval. The
	// buffer size is 1.
	Ticked() <-chan struct{}

	// Debug writes debug logs.
	Debug(format string, a ...any)
}

// Renderer renders raw blocks.
type Renderer func(barproto.Block)

// Err renders an error message block.
func (r Renderer) Err(err error) {
	s := "<nil>"
	if err != nil {
		s = err.Error()
	}
	r(barproto.Block{
		FullText:            " error: " + s + " ",
		ShortText:           "ERR",
		Urgent:              true,
		Separator:           true,
		Background:          0xFF0000FF,
		SeparatorBlockWidth: -1,
	})
}

type instanceImpl struct {
	ctx        context.Context
	name       string
	log        *slog.Logger
	invalidate func(now bool)
	tickBase   time.Duration

	// notify
	eventCh   chan barproto.Event
	tickCh    chan struct{}
	stoppedCh chan struct{}

	// tick state
	tickInterval atomic.Uint64
	tickCount    atomic.Uint64

	// stopped state
	stopped atomic.Bool

	// last renderer output
	buf1m sync.Mutex
	buf1b []byte

	// renderer output
	buf2m sync.Mutex
	buf2b []byte
}

func newInstance(ctx context.Context, name string, log *slog.Logger, tickBase time.Duration, invalidate func(now bool)) *instanceImpl {
	return &instanceImpl{
		ctx:        ctx,
		name:       name,
		log:        log.With("instance", name),
		invalidate: invalidate,
		tickBase:   tickBase,
		eventCh:    make(chan barproto.Event, 16),
		tickCh:     make(chan struct{}, 1),
		stoppedCh:  make(chan struct{}, 1),
	}
}

// run runs m until the context is done, replacing its output with an error
// block and restarting it on the next event whenever it fails.
func (i *instanceImpl) run(m Module) {
	for {
		err := func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("panic: %v", p)
				}
			}()
			return m.Run(i)
		}()
		if err == nil || i.ctx.Err() != nil {
			return
		}
		i.log.Error("module failed", "error", err)
		i.Tick(0)
		for drained := false; !drained; {
			select {
			case <-i.eventCh:
			case <-i.tickCh:
			default:
				drained = true
			}
		}
		i.Update(true, func(r Renderer) {
			r.Err(fmt.Errorf("fatal: %w", err))
		})
		select {
		case <-i.eventCh:
		case <-i.ctx.Done():
			return
		}
	}
}

func (i *instanceImpl) Context() context.Context {
	return i.ctx
}

func (i *instanceImpl) Tick(interval time.Duration) {
	n := (interval + i.tickBase/2) / i.tickBase
	if interval > 0 && n == 0 {
		n = 1 // faster than the bar ticks
	}
	i.tickInterval.Store(uint64(n))
}

func (i *instanceImpl) Update(now bool, fn func(Renderer)) {
	i.buf2m.Lock()
	defer i.buf2m.Unlock()

	i.buf2b = i.buf2b[:0]
	fn(Renderer(func(b barproto.Block) {
		b.Name = i.name
		i.buf2b = b.AppendJSON(append(i.buf2b, ','))
	}))

	i.buf1m.Lock()
	defer i.buf1m.Unlock()

	i.buf1b, i.buf2b = i.buf2b, i.buf1b

	if !bytes.Equal(i.buf1b, i.buf2b) {
		i.invalidate(now)
	}
}

func (i *instanceImpl) IsStopped() bool {
	return i.stopped.Load()
}

func (i *instanceImpl) Event() <-chan barproto.Event {
	return i.eventCh
}

func (i *instanceImpl) Stopped() <-chan struct{} {
	return i.stoppedCh
}

func (i *instanceImpl) Ticked() <-chan struct{} {
	return i.tickCh
}

func (i *instanceImpl) Debug(format string, a ...any) {
	i.log.Debug(fmt.Sprintf(format, a...))
}

func (i *instanceImpl) SendTick() {
	if interval := i.tickInterval.Load(); interval != 0 {
		if i.tickCount.Add(1)%interval == 0 {
			select {
			case i.tickCh <- struct{}{}:
			default:
			}
		}
	}
}

func (i *instanceImpl) SendEvent(event barproto.Event) {
	if event.Name == i.name {
		select {
		case i.eventCh <- event:
		default:
			i.log.Warn("dropped event, buffer full", "event_instance", event.Instance)
		}
	}
}

func (i *instanceImpl) SendStopped(stopped bool) {
	i.stopped.Store(stopped)
	select {
	case i.stoppedCh <- struct{}{}:
	default:
	}
}

func (i *instanceImpl) WriteTo(w io.Writer, comma bool) (bool, error) {
	i.buf1m.Lock()
	defer i.buf1m.Unlock()

	if len(i.buf1b) <= 1 {
		return comma, nil
	}

	var err error
	if comma {
		_, err = w.Write(i.buf1b)
	} else {
		_, err = w.Write(i.buf1b[1:])
	}
	return true, err
}

// Bar is an i3bar status line.
type Bar struct {
	In       io.Reader     // click events
	Out      io.Writer     // status lines
	Logger   *slog.Logger  // defaults to slog.Default
	TickRate time.Duration // base tick rate, defaults to 250ms

	// Restart re-executes the current binary when it is rebuilt in place.
	Restart bool

	// Signals handles the i3bar stop/cont signals.
	Signals bool
}

const (
	restartEnv  = "BARCLOCK_RESTARTED=1"
	stopSignal  = unix.SIGUSR1
	contSignal  = unix.SIGUSR2
	updateDelay = time.Millisecond * 25
)

// Main runs the status bar on stdin/stdout with the provided modules until ctx
// is done.
//
// Do not use the Block/Event Name field from the modules; this is used
// internally to differentiate between instantiated modules for events. Use the
// Event Instance field for handling click events on different blocks
// differently.
func Main(ctx context.Context, tickRate time.Duration, modules ...Module) error {
	return (&Bar{
		In:       os.Stdin,
		Out:      os.Stdout,
		TickRate: tickRate,
		Restart:  true,
		Signals:  true,
	}).Run(ctx, modules...)
}

// Run runs the bar until ctx is done or the event stream ends, then waits for
// all modules to return.
func (b *Bar) Run(ctx context.Context, modules ...Module) error {
	log := b.Logger
	if log == nil {
		log = slog.Default()
	}
	tickRate := b.TickRate
	if tickRate <= 0 {
		tickRate = time.Second / 4
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		ticker          = time.NewTicker(tickRate)
		delayer         *time.Timer
		instances       = make([]*instanceImpl, len(modules))
		invalidateCh    = make(chan struct{}, 1)
		invalidateNowCh = make(chan struct{}, 1)
		wg              sync.WaitGroup
	)
	defer ticker.Stop()

	if b.Restart {
		go watchSelf(ctx, log)
	}
	for i, module := range modules {
		instances[i] = newInstance(ctx, strconv.Itoa(i), log, tickRate, func(now bool) {
			ch := invalidateCh
			if now {
				ch = invalidateNowCh
			}
			select {
			case ch <- struct{}{}:
			default:
			}
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			instances[i].run(module)
		}()
	}
	defer wg.Wait()
	defer cancel(nil)

	if b.In != nil {
		go func() {
			err := readEvents(b.In, log, func(event barproto.Event) {
				for _, instance := range instances {
					instance.SendEvent(event)
				}
			})
			cancel(fmt.Errorf("read events: %w", err))
		}()
	}
	if b.Signals {
		sigCh := make(chan os.Signal, 2)
		signal.Notify(sigCh, stopSignal, contSignal)
		defer signal.Stop(sigCh)
		go func() {
			for {
				select {
				case sig := <-sigCh:
					for _, instance := range instances {
						instance.SendStopped(sig == stopSignal)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	if !slices.Contains(os.Environ(), restartEnv) {
		hdr := barproto.Init{
			StopSignal:  stopSignal,
			ContSignal:  contSignal,
			ClickEvents: true,
		}.AppendJSON(nil)
		if _, err := b.Out.Write(append(hdr, "\n[[]\n"...)); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	var line bytes.Buffer
	for render := false; ; {
		if render {
			select {
			case <-invalidateCh:
				continue
			default:
			}
			select {
			case <-invalidateNowCh:
				continue
			default:
			}
			render = false

			line.Reset()
			line.WriteString(",[")
			var comma bool
			for _, instance := range instances {
				comma, _ = instance.WriteTo(&line, comma)
			}
			line.WriteString("]\n")
			if _, err := line.WriteTo(b.Out); err != nil {
				return fmt.Errorf("write status line: %w", err)
			}
		}
		select {
		case <-ctx.Done():
			if err := context.Cause(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case <-ticker.C:
			for _, instance := range instances {
				instance.SendTick()
			}
		case <-invalidateNowCh:
			render = true
			continue
		case <-invalidateCh:
			render = true
		}
		if delayer == nil {
			delayer = time.NewTimer(updateDelay)
		} else {
			delayer.Reset(updateDelay)
		}
		select {
		case <-delayer.C:
		case <-invalidateNowCh:
			render = true
		case <-ctx.Done():
		}
	}
}

// readEvents parses the infinite array of click events from r.
func readEvents(r io.Reader, log *slog.Logger, fn func(barproto.Event)) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		buf := sc.Bytes()
		if len(buf) == 0 {
			continue
		}
		if buf[0] == '[' || buf[0] == ',' {
			buf = buf[1:]
		}
		if len(buf) == 0 || buf[0] != '{' || buf[len(buf)-1] != '}' {
			if sc.Text() != "[" {
				log.Warn("invalid event line", "line", sc.Text())
			}
			continue
		}
		var event barproto.Event
		event.FromJSON(buf)
		fn(event)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

// watchSelf re-executes the binary after it is rebuilt in place.
func watchSelf(ctx context.Context, log *slog.Logger) {
	log = log.With("component", "watcher")

	exe, err := os.Executable()
	if err != nil {
		log.Warn("failed to watch own binary", "error", err)
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("failed to watch own binary", "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(exe); err != nil {
		log.Warn("failed to watch own binary", "error", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if ok && event.Has(fsnotify.Chmod) {
				// go build chmods it at the end of the build
				log.Info("binary changed, restarting in 500ms")
				time.Sleep(time.Millisecond * 500)
				if err := syscall.Exec(exe, os.Args, append(os.Environ(), restartEnv)); err != nil {
					log.Error("restart failed", "error", err)
				}
			}
		case err, ok := <-watcher.Errors:
			if ok {
				log.Warn("watcher error", "error", err)
			}
		}
	}
}
