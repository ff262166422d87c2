package date

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pgaskin/barclock"
	"github.com/pgaskin/barclock/barproto"
	"github.com/pgaskin/barclock/bartest"
	"github.com/pgaskin/barclock/builder"
	"github.com/pgaskin/barclock/config"
	"github.com/pgaskin/barclock/timer"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var instant = time.Date(2024, time.March, 9, 17, 4, 5, 0, time.UTC)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	clock *clockwork.FakeClock
	logs  *syncBuffer
}

func (f *fixture) settings() timer.Settings {
	return timer.Settings{
		Location: time.UTC,
		Clock:    f.clock,
		Logger:   slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
}

func newFixture() *fixture {
	return &fixture{
		clock: clockwork.NewFakeClockAt(instant),
		logs:  &syncBuffer{},
	}
}

func (f *fixture) module(t *testing.T, kv map[string]any) (*Module, error) {
	t.Helper()
	v := viper.New()
	for k, val := range kv {
		v.Set("module/date."+k, val)
	}
	return New(f.settings(), "date", config.New(v))
}

func (f *fixture) mustModule(t *testing.T, kv map[string]any) *Module {
	t.Helper()
	m, err := f.module(t, kv)
	require.NoError(t, err)
	return m
}

func render(m *Module) []barproto.Block {
	var blocks []barproto.Block
	m.Render(func(b barproto.Block) {
		blocks = append(blocks, b)
	})
	return blocks
}

func TestNew(t *testing.T) {
	f := newFixture()
	m := f.mustModule(t, map[string]any{
		"date":     "%Y-%m-%d",
		"date-alt": "%A",
		"time":     "%H:%M",
	})
	assert.Equal(t, FormatPair{Primary: "%Y-%m-%d", Alternate: "%A"}, m.DateFormat())
	assert.Equal(t, FormatPair{Primary: "%H:%M"}, m.TimeFormat())
	assert.Equal(t, time.Second, m.Interval())
	assert.True(t, m.Router().Has(EventToggle))
	assert.Equal(t, "<label>", m.Formatter().Get("format").Value)
	assert.Equal(t, "%date%", m.label.Raw())
	assert.Nil(t, m.animation)
}

func TestNewErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		kv   map[string]any
		err  string
	}{
		{"NoFormat", map[string]any{"date-alt": "%Y", "time-alt": "%H"}, "no date or time format"},
		{"EmptyFormat", map[string]any{"date": "", "time": ""}, "no date or time format"},
		{"InvalidPattern", map[string]any{"date": "%Y", "time-alt": "%Q"}, "time-alt"},
		{"NoFrames", map[string]any{"date": "%Y", "format": "<animation-clock>"}, "no frames"},
		{"BadLabel", map[string]any{"date": "%Y", "label-foreground": "blue"}, "label-foreground"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newFixture().module(t, tc.kv)
			var cerr *barclock.ConfigurationError
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.Equal(t, "date", cerr.Module)
			assert.ErrorContains(t, err, tc.err)
		})
	}
}

func TestUpdateSkipsUnchanged(t *testing.T) {
	f := newFixture()
	m := f.mustModule(t, map[string]any{
		"date":  "%Y-%m-%d",
		"time":  "%H:%M:%S",
		"label": "%date% %time%",
	})

	assert.True(t, m.Update())
	assert.False(t, m.Update(), "same instant")
	assert.Equal(t, "2024-03-09 17:04:05", m.label.Text())

	f.clock.Advance(300 * time.Millisecond)
	assert.False(t, m.Update(), "same second")

	f.clock.Advance(time.Second)
	assert.True(t, m.Update())
	assert.Equal(t, "2024-03-09 17:04:06", m.label.Text())
}

func TestToggle(t *testing.T) {
	f := newFixture()
	m := f.mustModule(t, map[string]any{
		"date":     "%Y-%m-%d",
		"date-alt": "%d/%m/%Y",
		"time":     "%H:%M",
		"time-alt": "%I:%M %p",
		"label":    "%date% %time%",
	})

	require.True(t, m.Update())
	primary := m.label.Text()
	assert.Equal(t, "2024-03-09 17:04", primary)

	m.Toggle()
	assert.True(t, m.Toggled())
	require.True(t, m.Update())
	assert.Equal(t, "09/03/2024 05:04 PM", m.label.Text())
	assert.NotEqual(t, primary, m.label.Text())

	m.Toggle()
	assert.False(t, m.Toggled())
	require.True(t, m.Update())
	assert.Equal(t, primary, m.label.Text())
}

func TestToggleConcurrent(t *testing.T) {
	m := newFixture().mustModule(t, map[string]any{"date": "%Y", "date-alt": "%y"})

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Toggle()
		}()
	}
	wg.Wait()
	assert.False(t, m.Toggled(), "an even number of toggles cancels out")
}

func TestToggleEmptyAlternate(t *testing.T) {
	f := newFixture()
	m := f.mustModule(t, map[string]any{"date": "%Y-%m-%d"})

	require.True(t, m.Update())
	assert.Equal(t, Text{Date: "2024-03-09"}, m.text)
	assert.Equal(t, "2024-03-09", m.label.Text())

	blocks := render(m)
	require.Len(t, blocks, 1)
	assert.Empty(t, blocks[0].Instance, "nothing to toggle, so not clickable")

	// the empty alternate is shown as-is rather than falling back
	m.Toggle()
	require.True(t, m.Update())
	assert.Equal(t, Text{}, m.text)
	assert.Equal(t, "", m.label.Text())
}

func TestBuild(t *testing.T) {
	f := newFixture()
	m := f.mustModule(t, map[string]any{
		"time":                      "%H:%M",
		"time-alt":                  "%H:%M:%S",
		"label":                     "%time%",
		"format":                    "<animation-clock> <label>",
		"animation-clock":           []string{"a", "b"},
		"animation-clock-framerate": 200,
	})
	require.True(t, m.Update())

	var b builder.Builder
	assert.True(t, m.Build(&b, TagLabel))
	assert.True(t, m.Build(&b, TagAnimationClock))
	assert.False(t, m.Build(&b, "<bar>"))
	assert.False(t, m.Build(&b, TagDate), "only handled through the format rewrite")
	require.Len(t, b.Blocks(), 2)
	assert.Equal(t, "17:04", b.Blocks()[0].FullText)
	assert.Equal(t, "1#date.toggle", b.Blocks()[0].Instance)
	assert.Equal(t, "a", b.Blocks()[1].FullText)

	blocks := render(m)
	require.Len(t, blocks, 3)
	assert.Equal(t, []string{"a", " ", "17:04"}, []string{blocks[0].FullText, blocks[1].FullText, blocks[2].FullText})
}

func TestLegacyTag(t *testing.T) {
	f := newFixture()
	legacy := f.mustModule(t, map[string]any{
		"date":     "%Y-%m-%d",
		"date-alt": "%A",
		"format":   "[<date>]",
	})
	assert.Contains(t, f.logs.String(), "deprecated")
	assert.Equal(t, "[<label>]", legacy.Formatter().Get("format").Value)
	assert.False(t, legacy.Formatter().Has(TagDate))

	g := newFixture()
	current := g.mustModule(t, map[string]any{
		"date":     "%Y-%m-%d",
		"date-alt": "%A",
		"format":   "[<label>]",
	})
	assert.NotContains(t, g.logs.String(), "deprecated")

	legacy.Update()
	current.Update()
	assert.Equal(t, render(current), render(legacy))
}

func TestUnsupportedTagWarning(t *testing.T) {
	f := newFixture()
	f.mustModule(t, map[string]any{"date": "%Y", "format": "<label> <ramp>"})
	assert.Contains(t, f.logs.String(), "tag=<ramp>")
}

func TestAnimationWorker(t *testing.T) {
	f := newFixture()
	m := f.mustModule(t, map[string]any{
		"date":                      "%H:%M",
		"format":                    "<animation-clock> <label>",
		"animation-clock":           []string{"0", "1", "2", "3"},
		"animation-clock-framerate": 200,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, "1", m.animation.Frame(), "advanced once on start")

	assert.ErrorIs(t, m.Start(context.Background()), timer.ErrStarted)
	short, cancelShort := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancelShort()
	assert.Error(t, f.clock.BlockUntilContext(short, 2), "exactly one worker")

	f.clock.Advance(199 * time.Millisecond)
	assert.Equal(t, "1", m.animation.Frame())
	f.clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool {
		return m.animation.Frame() == "2"
	}, time.Second, time.Millisecond)
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))

	done := make(chan struct{})
	go func() {
		m.Stop()
		m.Teardown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("teardown did not join the animation worker")
	}
	assert.False(t, m.Running())
	assert.Contains(t, f.logs.String(), "end of animation loop")
}

func TestNoAnimationNoWorker(t *testing.T) {
	f := newFixture()
	m := f.mustModule(t, map[string]any{"date": "%H:%M"})
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, f.clock.BlockUntilContext(short, 1))
	assert.NotContains(t, f.logs.String(), "start of animation loop")

	done := make(chan struct{})
	go func() {
		m.Teardown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("teardown blocked without a worker")
	}
}

func TestRun(t *testing.T) {
	f := newFixture()
	m := f.mustModule(t, map[string]any{
		"date":                      "%Y-%m-%d",
		"date-alt":                  "%a %e %b",
		"format":                    "<animation-clock> <label>",
		"animation-clock":           []string{"🕐", "🕑"},
		"animation-clock-framerate": 500,
	})

	ctx, cancel := context.WithCancel(bartest.WithT(context.Background(), t))
	defer cancel()
	inst := bartest.New(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Run(inst)
	}()

	require.Eventually(t, func() bool {
		return inst.Text() == "🕑 2024-03-09"
	}, time.Second, time.Millisecond)
	assert.Equal(t, time.Second, inst.Interval())

	blocks := inst.Blocks()
	require.Len(t, blocks, 3)
	inst.Click(barproto.ButtonLeft, blocks[2].Instance)
	require.Eventually(t, func() bool {
		return inst.Text() == "🕑 Sat  9 Mar"
	}, time.Second, time.Millisecond)

	waitCtx, cancelWait := context.WithTimeout(ctx, 5*time.Second)
	defer cancelWait()
	require.NoError(t, f.clock.BlockUntilContext(waitCtx, 1))
	f.clock.Advance(500 * time.Millisecond)
	require.Eventually(t, func() bool {
		return inst.Text() == "🕐 Sat  9 Mar"
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not return")
	}
	assert.False(t, m.Running())
}
