// Package format parses module output formats, which are strings mixing
// literal text with <tag> placeholders.
package format

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pgaskin/barclock/config"
)

// Default is the name of the format used when a module has only one.
const Default = "format"

// Segment is either a tag or literal text.
type Segment struct {
	Tag  bool
	Text string // including the angle brackets for tags
}

// Format is a parsed format string.
type Format struct {
	Name     string
	Value    string
	Segments []Segment
}

// Tags returns the tags in order of appearance, including duplicates.
func (f *Format) Tags() []string {
	var tags []string
	for _, s := range f.Segments {
		if s.Tag {
			tags = append(tags, s.Text)
		}
	}
	return tags
}

// Has checks whether the format contains tag.
func (f *Format) Has(tag string) bool {
	return slices.Contains(f.Tags(), tag)
}

// Parse splits s into segments. Tags are <name> where name consists of
// lowercase letters, digits, '-' and '_'; anything else is literal text.
func Parse(s string) []Segment {
	var (
		segs []Segment
		lit  strings.Builder
	)
	for i := 0; i < len(s); {
		if s[i] == '<' {
			if n := tagLen(s[i:]); n != 0 {
				if lit.Len() != 0 {
					segs = append(segs, Segment{Text: lit.String()})
					lit.Reset()
				}
				segs = append(segs, Segment{Tag: true, Text: s[i : i+n]})
				i += n
				continue
			}
		}
		lit.WriteByte(s[i])
		i++
	}
	if lit.Len() != 0 {
		segs = append(segs, Segment{Text: lit.String()})
	}
	return segs
}

// tagLen returns the length of the tag at the start of s, or 0.
func tagLen(s string) int {
	for i := 1; i < len(s); i++ {
		switch c := s[i]; {
		case c == '>':
			if i == 1 {
				return 0
			}
			return i + 1
		case 'a' <= c && c <= 'z', '0' <= c && c <= '9', c == '-', c == '_':
		default:
			return 0
		}
	}
	return 0
}

// TagName strips the angle brackets from a tag.
func TagName(tag string) string {
	return strings.TrimSuffix(strings.TrimPrefix(tag, "<"), ">")
}

// Formatter holds the formats of one module.
type Formatter struct {
	conf    *config.Config
	section string
	formats map[string]*Format
}

// NewFormatter creates a formatter reading from section.
func NewFormatter(conf *config.Config, section string) *Formatter {
	return &Formatter{
		conf:    conf,
		section: section,
		formats: make(map[string]*Format),
	}
}

// Add loads the format name, falling back to def. Tags not in whitelist are
// returned so the caller can report them; they are kept in the format.
func (f *Formatter) Add(name, def string, whitelist ...string) (unknown []string, err error) {
	if _, ok := f.formats[name]; ok {
		return nil, fmt.Errorf("format %q already added", name)
	}
	value := f.conf.Get(f.section, name, def)
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("format %q is empty", name)
	}
	fm := &Format{
		Name:     name,
		Value:    value,
		Segments: Parse(value),
	}
	for _, tag := range fm.Tags() {
		if !slices.Contains(whitelist, tag) && !slices.Contains(unknown, tag) {
			unknown = append(unknown, tag)
		}
	}
	f.formats[name] = fm
	return unknown, nil
}

// Get returns the format name, or nil.
func (f *Formatter) Get(name string) *Format {
	return f.formats[name]
}

// Has checks whether any format contains tag.
func (f *Formatter) Has(tag string) bool {
	for _, fm := range f.formats {
		if fm.Has(tag) {
			return true
		}
	}
	return false
}

// Replace rewrites every occurrence of the old tag in the format name with
// the new one.
func (f *Formatter) Replace(name, old, new string) {
	fm, ok := f.formats[name]
	if !ok {
		return
	}
	value := strings.ReplaceAll(fm.Value, old, new)
	f.formats[name] = &Format{
		Name:     name,
		Value:    value,
		Segments: Parse(value),
	}
}
