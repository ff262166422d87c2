// Package barproto implements the subset of the i3bar protocol used by
// barclock.
//
// https://i3wm.org/docs/i3bar-protocol.html
package barproto

import (
	"slices"
	"strconv"
	"syscall"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/tidwall/gjson"
)

const Version = 1 // i3 v4.3+

// Mouse buttons as reported in click events.
const (
	ButtonLeft       = xproto.ButtonIndex1
	ButtonMiddle     = xproto.ButtonIndex2
	ButtonRight      = xproto.ButtonIndex3
	ButtonScrollUp   = xproto.ButtonIndex4
	ButtonScrollDown = xproto.ButtonIndex5
)

// Init is the header sent before the infinite array of status lines.
type Init struct {
	StopSignal  syscall.Signal
	ContSignal  syscall.Signal
	ClickEvents bool
}

func (x Init) MarshalJSON() ([]byte, error) {
	return x.AppendJSON(nil), nil
}

func (x Init) AppendJSON(s []byte) []byte {
	s = append(s, `{"version":`...)
	s = strconv.AppendInt(s, Version, 10)
	s = appendIntField(s, "stop_signal", int(x.StopSignal))
	s = appendIntField(s, "cont_signal", int(x.ContSignal))
	if x.ClickEvents {
		s = append(s, `,"click_events":true`...)
	}
	return append(s, '}')
}

// Event is a click event sent by i3bar on stdin.
type Event struct {
	Name      string
	Instance  string
	Button    int // Button*
	Modifiers int // xproto.ModMask*
	X         int
	Y         int
	RelativeX int
	RelativeY int
	Width     int
	Height    int
}

var modifiers = map[string]int{
	"Shift":   xproto.ModMaskShift,
	"Control": xproto.ModMaskControl,
	"Mod1":    xproto.ModMask1, // Alt
	"Mod2":    xproto.ModMask2,
	"Mod3":    xproto.ModMask3,
	"Mod4":    xproto.ModMask4, // Super
	"Mod5":    xproto.ModMask5,
}

// FromJSON parses b without any error checking. Unknown keys are ignored.
func (e *Event) FromJSON(b []byte) {
	var event Event
	gjson.ParseBytes(b).ForEach(func(key, value gjson.Result) bool {
		switch key.Str {
		case "name":
			event.Name = value.Str
		case "instance":
			event.Instance = value.Str
		case "button":
			event.Button = int(value.Int())
		case "modifiers":
			value.ForEach(func(_, value gjson.Result) bool {
				event.Modifiers |= modifiers[value.Str]
				return true
			})
		case "x":
			event.X = int(value.Int())
		case "y":
			event.Y = int(value.Int())
		case "relative_x":
			event.RelativeX = int(value.Int())
		case "relative_y":
			event.RelativeY = int(value.Int())
		case "width":
			event.Width = int(value.Int())
		case "height":
			event.Height = int(value.Int())
		}
		return true
	})
	*e = event
}

// Block is a single i3bar block. A module's output is a run of blocks which
// are drawn without separators between them except after the last one.
type Block struct {
	Name                string // set by the bar, used to route events
	Instance            string // passed back as-is in click events
	FullText            string
	ShortText           string // optional
	Color               uint32 // 0xRRGGBBAA, 0 is the bar default
	Background          uint32 // ^
	MinWidthString      string // optional
	Align               string // left|center|right, used with MinWidthString
	Urgent              bool
	Separator           bool
	SeparatorBlockWidth int // pixels, -1 for the i3bar default
}

func (b Block) MarshalJSON() ([]byte, error) {
	return b.AppendJSON(nil), nil
}

func (b Block) AppendJSON(s []byte) []byte {
	s = append(s, `{"full_text":`...)
	s = jsonString(s, b.FullText)
	s = appendStringField(s, "short_text", b.ShortText)
	s = appendColorField(s, "color", b.Color)
	s = appendStringField(s, "name", b.Name)
	s = appendStringField(s, "instance", b.Instance)
	s = appendColorField(s, "background", b.Background)
	s = appendStringField(s, "min_width", b.MinWidthString)
	s = appendStringField(s, "align", b.Align)
	if b.Urgent {
		s = append(s, `,"urgent":true`...)
	}
	if b.Separator {
		s = append(s, `,"separator":true`...)
	} else {
		s = append(s, `,"separator":false`...)
	}
	if b.SeparatorBlockWidth >= 0 {
		s = append(s, `,"separator_block_width":`...)
		s = strconv.AppendInt(s, int64(b.SeparatorBlockWidth), 10)
	}
	return append(s, '}')
}

func appendIntField(s []byte, key string, v int) []byte {
	if v == 0 {
		return s
	}
	s = append(s, ',', '"')
	s = append(s, key...)
	s = append(s, '"', ':')
	return strconv.AppendInt(s, int64(v), 10)
}

func appendStringField(s []byte, key, v string) []byte {
	if v == "" {
		return s
	}
	s = append(s, ',', '"')
	s = append(s, key...)
	s = append(s, '"', ':')
	return jsonString(s, v)
}

func appendColorField(s []byte, key string, v uint32) []byte {
	if v == 0 {
		return s
	}
	s = append(s, ',', '"')
	s = append(s, key...)
	s = append(s, '"', ':', '"')
	s = hexColor(s, v)
	return append(s, '"')
}

// hexColor writes #RRGGBB, or #RRGGBBAA if the color isn't opaque.
func hexColor(b []byte, rrggbbaa uint32) []byte {
	const hex = "0123456789ABCDEF"
	n := 8
	if rrggbbaa&0xFF == 0xFF {
		n = 6
	}
	b = slices.Grow(b, n+1)
	b = append(b, '#')
	for i := range n {
		b = append(b, hex[(rrggbbaa>>(28-4*i))&0xF])
	}
	return b
}

func jsonString(b []byte, s string) []byte {
	const hex = "0123456789abcdef"
	b = slices.Grow(b, len(s)+2)
	b = append(b, '"')
	x := 0 // only bytes < 0x20 are escaped, so utf-8 passes through
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 && c != '\\' && c != '"' {
			continue
		}
		b = append(b, s[x:i]...)
		switch c {
		case '\\', '"':
			b = append(b, '\\', c)
		case '\n':
			b = append(b, '\\', 'n')
		case '\r':
			b = append(b, '\\', 'r')
		case '\t':
			b = append(b, '\\', 't')
		default:
			b = append(b, '\\', 'u', '0', '0', hex[c>>4], hex[c&0xF])
		}
		x = i + 1
	}
	b = append(b, s[x:]...)
	return append(b, '"')
}
