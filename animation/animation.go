// Package animation implements frame-based text animations.
package animation

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pgaskin/barclock/barproto"
	"github.com/pgaskin/barclock/config"
	"github.com/pgaskin/barclock/label"
)

// DefaultFramerate is used when the framerate isn't configured.
const DefaultFramerate = time.Second

// Animation cycles through a fixed list of frames. Increment and Frame may be
// called concurrently.
type Animation struct {
	frames     []string
	framerate  time.Duration
	foreground uint32
	frame      atomic.Uint64
}

// New creates an animation. It panics if there are no frames or the
// framerate isn't positive.
func New(frames []string, framerate time.Duration) *Animation {
	if len(frames) == 0 {
		panic("animation: no frames")
	}
	if framerate <= 0 {
		panic("animation: framerate must be positive")
	}
	return &Animation{frames: frames, framerate: framerate}
}

// Load reads the animation name from section. Frames are read as a list from
// name, the framerate in milliseconds from name-framerate, and the color from
// name-foreground.
func Load(conf *config.Config, section, name string) (*Animation, error) {
	frames := conf.GetList(section, name)
	if len(frames) == 0 {
		return nil, errors.New(name + ": no frames defined")
	}
	ms, err := conf.GetInt(section, name+"-framerate", int(DefaultFramerate/time.Millisecond))
	if err != nil {
		return nil, err
	}
	if ms <= 0 {
		return nil, fmt.Errorf("%s-framerate: must be positive, got %d", name, ms)
	}
	fg, err := label.ParseColor(conf.Get(section, name+"-foreground", ""))
	if err != nil {
		return nil, fmt.Errorf("%s-foreground: %w", name, err)
	}
	a := New(frames, time.Duration(ms)*time.Millisecond)
	a.foreground = fg
	return a, nil
}

// Increment advances to the next frame, wrapping around at the end.
func (a *Animation) Increment() {
	a.frame.Add(1)
}

// Framerate returns the time each frame should be shown for.
func (a *Animation) Framerate() time.Duration {
	return a.framerate
}

// Index returns the index of the current frame.
func (a *Animation) Index() int {
	return int(a.frame.Load() % uint64(len(a.frames)))
}

// Frame returns the current frame.
func (a *Animation) Frame() string {
	return a.frames[a.Index()]
}

// Block renders the current frame.
func (a *Animation) Block() barproto.Block {
	return barproto.Block{
		FullText: a.Frame(),
		Color:    a.foreground,
	}
}
