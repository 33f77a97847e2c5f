package model

import "fmt"

// Block is a top-level, link-addressable struct instance. Its identity is
// stable for the lifetime of its graph; the arena index is assigned when
// the block enters the graph and the write index is reassigned on every
// linearization.
type Block struct {
	// ArenaIndex is the block's slot in its graph's arena, fixed at
	// creation. It keys visited sets during traversal.
	ArenaIndex uint32

	// WriteIndex is the index assigned by the most recent write-time
	// linearization, or -1 when the block was not part of it.
	WriteIndex int64

	// TypeName is the schema struct type of the block's value.
	TypeName string

	// Value is the block's parsed struct value.
	Value *Value
}

func (b *Block) String() string {
	return fmt.Sprintf("%s#%d", b.TypeName, b.ArenaIndex)
}
