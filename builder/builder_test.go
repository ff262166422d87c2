package builder

import (
	"testing"

	"github.com/pgaskin/barclock/barproto"
	"github.com/stretchr/testify/assert"
)

type colored struct {
	text  string
	color uint32
}

func (c colored) Block() barproto.Block {
	return barproto.Block{FullText: c.text, Color: c.color}
}

func TestBuilder(t *testing.T) {
	var b Builder
	b.Node(colored{"🕐", 0xFF0000FF})
	b.Text(" ")
	b.Action(barproto.ButtonLeft, "date", "toggle", "", colored{"12:00", 0})
	b.Node(nil)

	var got []barproto.Block
	b.Flush(func(blk barproto.Block) {
		got = append(got, blk)
	})
	assert.Equal(t, []barproto.Block{
		{FullText: "🕐", Color: 0xFF0000FF},
		{FullText: " "},
		{FullText: "12:00", Instance: "1#date.toggle", Separator: true, SeparatorBlockWidth: -1},
	}, got)
	assert.Empty(t, b.Blocks(), "flush resets the builder")
}

func TestBuilderEmpty(t *testing.T) {
	var (
		b Builder
		n int
	)
	b.Flush(func(barproto.Block) { n++ })
	assert.Zero(t, n)
}
