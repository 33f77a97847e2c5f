package graph

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/formaproject/forma/cursor"
	"github.com/formaproject/forma/model"
)

// Linearize assigns write indices by a depth-first walk from the roots,
// then from the retained blocks, visiting children in field declaration
// order. Each block gets the index of its first discovery; cycles are
// entered once and never revisited. Blocks the walk does not reach keep a
// write index of -1 and are excluded from the output. The returned slice
// is the blocks in write order.
func (g *Graph) Linearize() []*model.Block {
	visited := roaring.New()
	order := make([]*model.Block, 0, g.Len())

	var visit func(b *model.Block)
	visit = func(b *model.Block) {
		if visited.Contains(b.ArenaIndex) || g.removed.Contains(b.ArenaIndex) {
			return
		}
		visited.Add(b.ArenaIndex)
		order = append(order, b)
		for _, c := range Children(b) {
			visit(c)
		}
	}
	for _, r := range g.roots {
		visit(r)
	}
	for _, b := range g.retained {
		visit(b)
	}

	for _, b := range g.blocks {
		b.WriteIndex = -1
	}
	for i, b := range order {
		b.WriteIndex = int64(i)
	}
	return order
}

// WriteBlocks linearizes the graph and serializes the reachable blocks to
// cur in write order. Links are re-encoded as the target's write index;
// links to nothing, and links to blocks the traversal dropped, become the
// nil sentinel. The written blocks are returned in order so callers can
// emit matching type tables.
func (g *Graph) WriteBlocks(cur *cursor.Cursor) ([]*model.Block, error) {
	order := g.Linearize()
	for _, b := range order {
		walkLinks(b.Value, "", func(link *model.Value, _ string) {
			if t := link.Target(); t != nil && t.WriteIndex >= 0 {
				link.SetRawIndex(t.WriteIndex)
			} else {
				link.SetRawIndex(model.NilLink)
			}
		})
	}
	var werr error
	for _, b := range order {
		if err := g.codec.Write(cur, b.Value); err != nil {
			werr = fmt.Errorf("block %s: %w", b, err)
			break
		}
	}
	// Targets stay authoritative in memory; the raw indices were only
	// staged for serialization.
	for _, b := range order {
		walkLinks(b.Value, "", func(link *model.Value, _ string) {
			link.SetRawIndex(model.NilLink)
		})
	}
	if werr != nil {
		return nil, werr
	}
	return order, nil
}
