// Package timefmt formats times with strftime-style patterns.
//
// The C conversions are supported, plus %s for unix seconds and %L for
// milliseconds. Names are always English, as in the C/POSIX locale.
package timefmt

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/strftime"
)

// Formatter is a compiled pattern. The zero value formats everything as an
// empty string.
type Formatter struct {
	pattern string
	loc     *time.Location
	f       *strftime.Strftime
}

// New compiles pattern. Times are converted to loc before formatting, or left
// as-is if loc is nil.
func New(pattern string, loc *time.Location) (*Formatter, error) {
	if pattern == "" {
		return &Formatter{loc: loc}, nil
	}
	f, err := strftime.New(pattern,
		strftime.WithUnixSeconds('s'),
		strftime.WithMilliseconds('L'),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid time format %q: %w", pattern, err)
	}
	return &Formatter{pattern: pattern, loc: loc, f: f}, nil
}

// Pattern returns the uncompiled pattern.
func (f *Formatter) Pattern() string {
	if f == nil {
		return ""
	}
	return f.pattern
}

// Empty checks whether the pattern is empty.
func (f *Formatter) Empty() bool {
	return f.Pattern() == ""
}

// Format formats t. An empty pattern always gives an empty string.
func (f *Formatter) Format(t time.Time) string {
	if f == nil || f.f == nil {
		return ""
	}
	if f.loc != nil {
		t = t.In(f.loc)
	}
	return f.f.FormatString(t)
}
