// Package date implements a clock module showing the date and time with
// strftime patterns, with an alternate pair of patterns toggled by clicking
// the label, and an optional clock animation.
package date

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pgaskin/barclock"
	"github.com/pgaskin/barclock/animation"
	"github.com/pgaskin/barclock/barproto"
	"github.com/pgaskin/barclock/builder"
	"github.com/pgaskin/barclock/config"
	"github.com/pgaskin/barclock/format"
	"github.com/pgaskin/barclock/label"
	"github.com/pgaskin/barclock/timefmt"
	"github.com/pgaskin/barclock/timer"
)

// Type is the module type in the configuration.
const Type = "internal/date"

// EventToggle is the action which switches between the primary and alternate
// formats.
const EventToggle = "toggle"

const (
	TagLabel          = "<label>"
	TagDate           = "<date>" // deprecated alias for TagLabel
	TagAnimationClock = "<animation-clock>"
)

// FormatPair is a primary pattern with its alternate.
type FormatPair struct {
	Primary   string
	Alternate string
}

type formatters struct {
	primary   *timefmt.Formatter
	alternate *timefmt.Formatter
}

func (f formatters) active(toggled bool) *timefmt.Formatter {
	if toggled {
		return f.alternate
	}
	return f.primary
}

// Text is a rendered date and time.
type Text struct {
	Date string
	Time string
}

// Module is the date module.
type Module struct {
	*timer.Base

	dateFormat FormatPair
	timeFormat FormatPair
	dateFmt    formatters
	timeFmt    formatters

	label     *label.Label
	animation *animation.Animation

	toggled atomic.Bool
	text    Text // only touched by Update

	wg sync.WaitGroup
}

// New creates a date module from the module/<name> section of conf.
func New(bar timer.Settings, name string, conf *config.Config) (*Module, error) {
	m := &Module{Base: timer.New(bar, name, conf)}
	m.Bind(m)

	if err := m.Router().Register(EventToggle, func(string) { m.Toggle() }); err != nil {
		return nil, &barclock.ConfigurationError{Module: name, Err: err}
	}

	section := m.Section()
	m.dateFormat = FormatPair{
		Primary:   conf.Get(section, "date", ""),
		Alternate: conf.Get(section, "date-alt", ""),
	}
	m.timeFormat = FormatPair{
		Primary:   conf.Get(section, "time", ""),
		Alternate: conf.Get(section, "time-alt", ""),
	}
	if m.dateFormat.Primary == "" && m.timeFormat.Primary == "" {
		return nil, barclock.ConfigErrorf(name, "no date or time format specified")
	}

	loc := m.Settings().Location
	for _, f := range []struct {
		dst     **timefmt.Formatter
		key     string
		pattern string
	}{
		{&m.dateFmt.primary, "date", m.dateFormat.Primary},
		{&m.dateFmt.alternate, "date-alt", m.dateFormat.Alternate},
		{&m.timeFmt.primary, "time", m.timeFormat.Primary},
		{&m.timeFmt.alternate, "time-alt", m.timeFormat.Alternate},
	} {
		tf, err := timefmt.New(f.pattern, loc)
		if err != nil {
			return nil, barclock.ConfigErrorf(name, "%s: %w", f.key, err)
		}
		*f.dst = tf
	}
	if l := m.Settings().Locale; !isCLocale(l) {
		m.Logger().Debug("locale is not supported by the formatter, using C names", "locale", l)
	}

	m.SetInterval(time.Second)

	unknown, err := m.Formatter().Add(format.Default, TagLabel, TagLabel, TagDate, TagAnimationClock)
	if err != nil {
		return nil, &barclock.ConfigurationError{Module: name, Err: err}
	}
	for _, tag := range unknown {
		m.Logger().Warn("format contains an unsupported tag", "tag", tag)
	}

	if m.Formatter().Has(TagAnimationClock) {
		if m.animation, err = animation.Load(conf, section, format.TagName(TagAnimationClock)); err != nil {
			return nil, &barclock.ConfigurationError{Module: name, Err: err}
		}
	}
	if m.Formatter().Has(TagDate) {
		m.Logger().Warn("the format tag " + TagDate + " is deprecated, use " + TagLabel + " instead")
		m.Formatter().Replace(format.Default, TagDate, TagLabel)
	}
	if m.Formatter().Has(TagLabel) {
		if m.label, err = label.Load(conf, section, "label", "%date%"); err != nil {
			return nil, &barclock.ConfigurationError{Module: name, Err: err}
		}
	}
	return m, nil
}

// DateFormat returns the configured date patterns.
func (m *Module) DateFormat() FormatPair {
	return m.dateFormat
}

// TimeFormat returns the configured time patterns.
func (m *Module) TimeFormat() FormatPair {
	return m.timeFormat
}

// Toggled checks whether the alternate formats are active.
func (m *Module) Toggled() bool {
	return m.toggled.Load()
}

// Update formats the current time, returning false if the text didn't change.
func (m *Module) Update() bool {
	now := m.Clock().Now()
	toggled := m.toggled.Load()

	text := Text{
		Date: m.dateFmt.active(toggled).Format(now),
		Time: m.timeFmt.active(toggled).Format(now),
	}
	if text == m.text {
		return false
	}
	m.text = text

	if m.label != nil {
		m.label.ResetTokens()
		m.label.ReplaceToken("%date%", text.Date)
		m.label.ReplaceToken("%time%", text.Time)
	}
	return true
}

// Start starts the module and, if there is an animation, the goroutine
// driving it.
func (m *Module) Start(ctx context.Context) error {
	if err := m.Base.Start(ctx); err != nil {
		return err
	}
	if m.animation != nil {
		m.wg.Add(1)
		go m.animate(m.Context())
	}
	return nil
}

// animate advances the animation and requests a redraw once per frame until
// the module stops. Frames are scheduled from the start of each iteration, so
// the time spent redrawing doesn't add up.
func (m *Module) animate(ctx context.Context) {
	defer m.wg.Done()

	m.Logger().Debug("start of animation loop", "framerate", m.animation.Framerate())
	defer m.Logger().Debug("end of animation loop")

	clock := m.Clock()
	for m.Running() {
		next := clock.Now().Add(m.animation.Framerate())
		m.animation.Increment()
		m.Broadcast()
		select {
		case <-clock.After(clock.Until(next)):
		case <-ctx.Done():
			return
		}
	}
}

// Teardown waits for the animation goroutine to exit. The module must have
// been stopped first.
func (m *Module) Teardown() {
	m.wg.Wait()
}

// Build renders tag.
func (m *Module) Build(b *builder.Builder, tag string) bool {
	switch tag {
	case TagAnimationClock:
		b.Node(m.animation)
	case TagLabel:
		if m.dateFmt.alternate.Empty() && m.timeFmt.alternate.Empty() {
			b.Node(m.label)
		} else {
			b.Action(barproto.ButtonLeft, m.Name(), EventToggle, "", m.label)
		}
	default:
		return false
	}
	return true
}

// Toggle switches between the primary and alternate formats and redraws
// immediately.
func (m *Module) Toggle() {
	for {
		v := m.toggled.Load()
		if m.toggled.CompareAndSwap(v, !v) {
			break
		}
	}
	m.Wakeup()
}

func isCLocale(l string) bool {
	l, _, _ = strings.Cut(l, ".")
	return l == "" || l == "C" || l == "POSIX" || strings.HasPrefix(l, "en_")
}
