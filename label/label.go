// Package label implements text labels with %token% substitution.
package label

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pgaskin/barclock/barproto"
	"github.com/pgaskin/barclock/config"
)

// Label is a text template. Tokens are replaced on a working copy of the
// template, so ResetTokens can restore it before the next substitution round.
type Label struct {
	Foreground uint32 // 0xRRGGBBAA, 0 for the bar default
	Background uint32
	MaxLen     int // in runes, 0 for unlimited
	Ellipsis   bool

	raw string

	mu   sync.RWMutex
	text string
}

// New creates a label from a template.
func New(text string) *Label {
	return &Label{raw: text, text: text}
}

// Load reads a label from section. Keys are name (the template, def if
// unset), name-foreground, name-background, name-maxlen and name-ellipsis.
func Load(conf *config.Config, section, name, def string) (*Label, error) {
	l := New(conf.Get(section, name, def))

	var err error
	if l.Foreground, err = ParseColor(conf.Get(section, name+"-foreground", "")); err != nil {
		return nil, fmt.Errorf("%s-foreground: %w", name, err)
	}
	if l.Background, err = ParseColor(conf.Get(section, name+"-background", "")); err != nil {
		return nil, fmt.Errorf("%s-background: %w", name, err)
	}
	if l.MaxLen, err = conf.GetInt(section, name+"-maxlen", 0); err != nil {
		return nil, err
	}
	if l.MaxLen < 0 {
		return nil, fmt.Errorf("%s-maxlen: must not be negative", name)
	}
	if l.Ellipsis, err = conf.GetBool(section, name+"-ellipsis", true); err != nil {
		return nil, err
	}
	return l, nil
}

// Raw returns the unsubstituted template.
func (l *Label) Raw() string {
	return l.raw
}

// ResetTokens discards all substitutions.
func (l *Label) ResetTokens() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.text = l.raw
}

// ReplaceToken replaces every occurrence of token with value.
func (l *Label) ReplaceToken(token, value string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.text = strings.ReplaceAll(l.text, token, value)
}

// Text returns the current text, truncated to MaxLen.
func (l *Label) Text() string {
	l.mu.RLock()
	text := l.text
	l.mu.RUnlock()

	if l.MaxLen <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= l.MaxLen {
		return text
	}
	if l.Ellipsis && l.MaxLen > 3 {
		return string(r[:l.MaxLen-3]) + "..."
	}
	return string(r[:l.MaxLen])
}

// Block renders the label.
func (l *Label) Block() barproto.Block {
	return barproto.Block{
		FullText:   l.Text(),
		Color:      l.Foreground,
		Background: l.Background,
	}
}

// ParseColor parses #RGB, #RRGGBB or #AARRGGBB (alpha first) into
// 0xRRGGBBAA. An empty string is the default color, 0.
func ParseColor(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	h, ok := strings.CutPrefix(s, "#")
	if !ok {
		return 0, fmt.Errorf("invalid color %q: missing #", s)
	}
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q", s)
	}
	switch len(h) {
	case 6:
		return uint32(v)<<8 | 0xFF, nil
	case 8:
		return uint32(v)<<8 | uint32(v)>>24, nil
	default:
		return 0, fmt.Errorf("invalid color %q", s)
	}
}
