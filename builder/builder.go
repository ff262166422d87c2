// Package builder assembles a module's output into i3bar blocks.
package builder

import (
	"github.com/pgaskin/barclock"
	"github.com/pgaskin/barclock/action"
	"github.com/pgaskin/barclock/barproto"
)

// Renderable is something which can be drawn as a single block.
type Renderable interface {
	Block() barproto.Block
}

// Text is a Renderable plain string.
type Text string

func (t Text) Block() barproto.Block {
	return barproto.Block{FullText: string(t)}
}

// Builder collects the blocks for one render of a module. The zero value is
// ready to use.
type Builder struct {
	blocks []barproto.Block
}

// Node adds r as a plain block.
func (b *Builder) Node(r Renderable) {
	if r == nil {
		return
	}
	b.blocks = append(b.blocks, r.Block())
}

// Text adds a plain text block.
func (b *Builder) Text(s string) {
	b.Node(Text(s))
}

// Action adds r as a block which triggers the action name on module when
// clicked with button. The data is passed to the action handler.
func (b *Builder) Action(button int, module, name, data string, r Renderable) {
	if r == nil {
		return
	}
	blk := r.Block()
	blk.Instance = action.Action{
		Button: button,
		Module: module,
		Name:   name,
		Data:   data,
	}.String()
	b.blocks = append(b.blocks, blk)
}

// Blocks returns the blocks added so far.
func (b *Builder) Blocks() []barproto.Block {
	return b.blocks
}

// Flush renders the blocks as one visual unit, with a separator only after
// the last one, and resets the builder.
func (b *Builder) Flush(render barclock.Renderer) {
	for i, blk := range b.blocks {
		if i == len(b.blocks)-1 {
			blk.Separator = true
			blk.SeparatorBlockWidth = -1
		} else {
			blk.Separator = false
			blk.SeparatorBlockWidth = 0
		}
		render(blk)
	}
	b.blocks = b.blocks[:0]
}
