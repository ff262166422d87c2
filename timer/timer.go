// Package timer provides the base for modules which recompute their output at
// a fixed interval.
//
// A module embeds *Base, implements Impl, and binds itself with Base.Bind. The
// Base then implements barclock.Module: Run calls Update on every tick and on
// every wakeup, and renders through Build whenever something changed. All
// calls to Update and Build happen on the Run goroutine.
package timer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pgaskin/barclock"
	"github.com/pgaskin/barclock/action"
	"github.com/pgaskin/barclock/barproto"
	"github.com/pgaskin/barclock/builder"
	"github.com/pgaskin/barclock/config"
	"github.com/pgaskin/barclock/format"
)

// ErrStarted is returned when starting a module twice.
var ErrStarted = errors.New("module already started")

// Settings are the bar-wide settings passed to every module.
type Settings struct {
	Locale   string
	Location *time.Location  // defaults to time.Local
	Logger   *slog.Logger    // defaults to slog.Default
	Clock    clockwork.Clock // defaults to the real clock
}

// Impl is implemented by the concrete module.
type Impl interface {
	// Update recomputes the module state, returning false if nothing
	// visible changed.
	Update() bool

	// Build renders tag, returning false if the tag isn't supported.
	Build(b *builder.Builder, tag string) bool
}

// Starter is implemented by modules which need to do something after the
// Base is started, such as launching a background goroutine. Start must call
// Base.Start first.
type Starter interface {
	Start(ctx context.Context) error
}

// Teardowner is implemented by modules which need to release resources after
// the Base is stopped.
type Teardowner interface {
	Teardown()
}

// Base implements the scheduling shared by interval-driven modules.
type Base struct {
	name      string
	section   string
	settings  Settings
	log       *slog.Logger
	router    action.Router
	formatter *format.Formatter
	impl      Impl

	interval atomic.Int64
	started  atomic.Bool
	running  atomic.Bool

	wakeCh   chan struct{}
	redrawCh chan struct{}

	ctxMu  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	warned sync.Map // tag -> struct{}
}

// New creates a base for the module name, reading from the module/<name>
// section of conf.
func New(bar Settings, name string, conf *config.Config) *Base {
	if bar.Location == nil {
		bar.Location = time.Local
	}
	if bar.Logger == nil {
		bar.Logger = slog.Default()
	}
	if bar.Clock == nil {
		bar.Clock = clockwork.NewRealClock()
	}
	section := "module/" + name
	return &Base{
		name:      name,
		section:   section,
		settings:  bar,
		log:       bar.Logger.With("module", name),
		formatter: format.NewFormatter(conf, section),
		wakeCh:    make(chan struct{}, 1),
		redrawCh:  make(chan struct{}, 1),
	}
}

// Bind sets the module implementation. It must be called once, before Run.
func (b *Base) Bind(impl Impl) {
	b.impl = impl
}

func (b *Base) Name() string                 { return b.name }
func (b *Base) Section() string              { return b.section }
func (b *Base) Settings() Settings           { return b.settings }
func (b *Base) Logger() *slog.Logger         { return b.log }
func (b *Base) Clock() clockwork.Clock       { return b.settings.Clock }
func (b *Base) Router() *action.Router       { return &b.router }
func (b *Base) Formatter() *format.Formatter { return b.formatter }

// SetInterval sets the coarse update interval.
func (b *Base) SetInterval(d time.Duration) {
	b.interval.Store(int64(d))
}

// Interval returns the coarse update interval.
func (b *Base) Interval() time.Duration {
	return time.Duration(b.interval.Load())
}

// Running checks whether the module has been started and not yet stopped.
func (b *Base) Running() bool {
	return b.running.Load()
}

// Wakeup requests an immediate update and redraw.
func (b *Base) Wakeup() {
	select {
	case b.wakeCh <- struct{}{}:
	default:
	}
}

// Broadcast requests a redraw without an update.
func (b *Base) Broadcast() {
	select {
	case b.redrawCh <- struct{}{}:
	default:
	}
}

// Start marks the module as running. The context returned by Context is
// cancelled by Stop or when ctx is done. Starting again is only allowed once
// Run has torn the module down.
func (b *Base) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	b.ctxMu.Lock()
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.ctxMu.Unlock()
	b.running.Store(true)
	return nil
}

// Context returns the running context, which is done once the module is
// stopped. Before Start, it returns an already cancelled context.
func (b *Base) Context() context.Context {
	b.ctxMu.Lock()
	defer b.ctxMu.Unlock()
	if b.ctx == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return b.ctx
}

// Stop signals the module to stop. It does not wait for anything.
func (b *Base) Stop() {
	b.running.Store(false)
	b.ctxMu.Lock()
	defer b.ctxMu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
}

// Teardown is a no-op; modules with background work override it.
func (b *Base) Teardown() {}

// Run implements barclock.Module.
func (b *Base) Run(i barclock.Instance) error {
	if b.impl == nil {
		return errors.New("timer: module " + b.name + " not bound")
	}

	start := b.Start
	if s, ok := b.impl.(Starter); ok {
		start = s.Start
	}
	teardown := b.Teardown
	if t, ok := b.impl.(Teardowner); ok {
		teardown = t.Teardown
	}
	if err := start(i.Context()); err != nil {
		return err
	}
	defer func() {
		b.Stop()
		teardown()
		b.started.Store(false)
	}()

	render := func(now bool) {
		i.Update(now, b.Render)
	}

	i.Tick(b.Interval())
	b.impl.Update()
	render(true)

	done := b.Context().Done()
	for {
		select {
		case <-done:
			return nil
		case <-i.Stopped():
			if !i.IsStopped() {
				b.impl.Update()
				render(true)
			}
		case <-i.Ticked():
			if !i.IsStopped() && b.impl.Update() {
				render(false)
			}
		case <-b.wakeCh:
			b.impl.Update()
			render(true)
		case <-b.redrawCh:
			if !i.IsStopped() {
				render(false)
			}
		case event := <-i.Event():
			b.dispatch(event)
		}
	}
}

// Render builds every segment of the default format.
func (b *Base) Render(r barclock.Renderer) {
	fm := b.formatter.Get(format.Default)
	if fm == nil {
		return
	}
	var bld builder.Builder
	for _, seg := range fm.Segments {
		if !seg.Tag {
			bld.Text(seg.Text)
			continue
		}
		if !b.impl.Build(&bld, seg.Text) {
			b.unknownTag(seg.Text)
		}
	}
	bld.Flush(r)
}

func (b *Base) unknownTag(tag string) {
	if _, warned := b.warned.LoadOrStore(tag, struct{}{}); !warned {
		err := &barclock.UnknownTagError{Module: b.name, Tag: tag}
		b.log.Warn("skipping format tag", "error", err)
	}
}

// dispatch runs the action referenced by a click event, if it belongs to this
// module and the button matches.
func (b *Base) dispatch(event barproto.Event) {
	if event.Instance == "" {
		return
	}
	a, err := action.Parse(event.Instance)
	if err != nil {
		b.log.Debug("ignoring click", "error", err)
		return
	}
	if a.Module != b.name || a.Button != event.Button {
		return
	}
	if err := b.router.Invoke(a.Name, a.Data); err != nil {
		b.log.Warn("failed to run action", "action", a.String(), "error", err)
	}
}
