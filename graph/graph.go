// Package graph holds the in-memory block arena of a parsed file and the
// link topology between blocks. Blocks are addressed by a stable arena
// index; write order is assigned separately during linearization, so
// mutating the graph never invalidates existing block handles.
package graph

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/formaproject/forma/codec"
	"github.com/formaproject/forma/model"
)

// Graph is an arena of typed blocks plus their resolved link structure.
// It is not safe for concurrent mutation.
type Graph struct {
	codec      *codec.Codec
	blocks     []*model.Block
	roots      []*model.Block
	retained   []*model.Block
	refCounts  []int
	referenced *roaring.Bitmap
	removed    *roaring.Bitmap
	conditions []Condition
}

// New returns an empty graph that reads and writes blocks with c.
func New(c *codec.Codec) *Graph {
	return &Graph{
		codec:      c,
		referenced: roaring.New(),
		removed:    roaring.New(),
	}
}

// Codec returns the codec this graph parses and serializes blocks with.
func (g *Graph) Codec() *codec.Codec {
	return g.codec
}

// NewBlock materializes a default-initialized block of the given struct
// type and adds it to the arena.
func (g *Graph) NewBlock(typeName string) (*model.Block, error) {
	v, err := g.codec.NewValue(typeName)
	if err != nil {
		return nil, err
	}
	return g.add(typeName, v), nil
}

func (g *Graph) add(typeName string, v *model.Value) *model.Block {
	b := &model.Block{
		ArenaIndex: uint32(len(g.blocks)),
		WriteIndex: -1,
		TypeName:   typeName,
		Value:      v,
	}
	g.blocks = append(g.blocks, b)
	g.refCounts = append(g.refCounts, 0)
	return b
}

// Block returns the block at the given arena index.
func (g *Graph) Block(i int) (*model.Block, error) {
	if i < 0 || i >= len(g.blocks) || g.removed.Contains(uint32(i)) {
		return nil, fmt.Errorf("%w: index %d", ErrBlockNotFound, i)
	}
	return g.blocks[i], nil
}

// Blocks returns the live blocks in arena order.
func (g *Graph) Blocks() []*model.Block {
	out := make([]*model.Block, 0, len(g.blocks))
	for _, b := range g.blocks {
		if !g.removed.Contains(b.ArenaIndex) {
			out = append(out, b)
		}
	}
	return out
}

// Len returns the number of live blocks.
func (g *Graph) Len() int {
	return len(g.blocks) - int(g.removed.GetCardinality())
}

// SetRoots declares the root blocks. Roots seed write-time traversal and
// are emitted in the container root list.
func (g *Graph) SetRoots(roots ...*model.Block) {
	g.roots = append(g.roots[:0], roots...)
}

// Roots returns the declared root blocks.
func (g *Graph) Roots() []*model.Block {
	return g.roots
}

// Retain keeps a block in the written output even when no root reaches it.
func (g *Graph) Retain(b *model.Block) {
	for _, r := range g.retained {
		if r == b {
			return
		}
	}
	g.retained = append(g.retained, b)
}

// RefCount returns how many resolved links point at b. Counts reflect the
// last ResolveLinks or graph mutation.
func (g *Graph) RefCount(b *model.Block) int {
	if int(b.ArenaIndex) >= len(g.refCounts) {
		return 0
	}
	return g.refCounts[b.ArenaIndex]
}

// Referenced reports whether any resolved link points at b.
func (g *Graph) Referenced(b *model.Block) bool {
	return g.referenced.Contains(b.ArenaIndex)
}

// DeleteBlock detaches b from the graph: every link pointing at it is
// cleared, link-array slots holding it are removed with their count fields
// kept in sync, and b is dropped from roots and retained blocks. The arena
// slot stays allocated so other block indices remain stable; the block is
// simply never written again.
func (g *Graph) DeleteBlock(b *model.Block) error {
	if err := g.owns(b); err != nil {
		return err
	}
	for _, p := range g.blocks {
		if p == b || g.removed.Contains(p.ArenaIndex) {
			continue
		}
		g.clearInValue(p.Value, b)
	}
	g.roots = dropBlock(g.roots, b)
	g.retained = dropBlock(g.retained, b)
	g.removed.Add(b.ArenaIndex)
	g.recount()
	return nil
}

// ReplaceBlock points every link that targets old at repl instead, and
// swaps old for repl in the root and retained lists.
func (g *Graph) ReplaceBlock(old, repl *model.Block) error {
	if err := g.owns(old); err != nil {
		return err
	}
	if err := g.owns(repl); err != nil {
		return err
	}
	for _, b := range g.blocks {
		walkLinks(b.Value, "", func(link *model.Value, _ string) {
			if link.Target() == old {
				link.SetTarget(repl)
			}
		})
	}
	swapBlock(g.roots, old, repl)
	swapBlock(g.retained, old, repl)
	g.recount()
	return nil
}

// Children returns the blocks b links to, in field declaration order.
// Cleared and unresolved links are skipped.
func Children(b *model.Block) []*model.Block {
	var out []*model.Block
	walkLinks(b.Value, "", func(link *model.Value, _ string) {
		if t := link.Target(); t != nil {
			out = append(out, t)
		}
	})
	return out
}

func (g *Graph) owns(b *model.Block) error {
	if int(b.ArenaIndex) >= len(g.blocks) || g.blocks[b.ArenaIndex] != b {
		return fmt.Errorf("%w: %s", ErrBlockNotFound, b)
	}
	if g.removed.Contains(b.ArenaIndex) {
		return fmt.Errorf("%w: %s was deleted", ErrBlockNotFound, b)
	}
	return nil
}

// clearInValue removes references to target below v. Link elements are cut
// out of arrays; scalar links are cleared in place.
func (g *Graph) clearInValue(v *model.Value, target *model.Block) {
	switch v.Kind() {
	case model.KindLink:
		if v.Target() == target {
			v.SetTarget(nil)
		}
	case model.KindArray:
		for _, e := range v.Elems() {
			g.clearInValue(e, target)
		}
	case model.KindStruct:
		for _, f := range v.Fields() {
			if f.Value.Kind() == model.KindArray && g.pruneArray(f.Value, target) > 0 {
				g.syncCount(v, f.Name, f.Value)
			}
			g.clearInValue(f.Value, target)
		}
	}
}

func (g *Graph) pruneArray(arr *model.Value, target *model.Block) int {
	removed := 0
	for i := arr.Len() - 1; i >= 0; i-- {
		e := arr.At(i)
		if e.Kind() == model.KindLink && e.Target() == target {
			arr.RemoveAt(i)
			removed++
		}
	}
	return removed
}

// syncCount updates the sibling count field of a shortened link array when
// the array's first dimension is a bare count-field reference.
func (g *Graph) syncCount(parent *model.Value, name string, arr *model.Value) {
	fields, err := g.codec.Schema().FieldsOf(parent.Type(), g.codec.Version(), g.codec.UserVersion())
	if err != nil {
		return
	}
	for _, f := range fields {
		if f.Name != name {
			continue
		}
		if len(f.Dims) == 0 {
			return
		}
		countName, ok := f.Dims[0].Ident()
		if !ok {
			return
		}
		if cnt := parent.Field(countName); cnt != nil && cnt.Kind() == model.KindInt {
			cnt.SetInt(int64(arr.Len()))
		}
		return
	}
}

// recount rebuilds reference counts and the referenced bitmap from the
// current link targets.
func (g *Graph) recount() {
	g.refCounts = make([]int, len(g.blocks))
	g.referenced.Clear()
	for _, b := range g.blocks {
		if g.removed.Contains(b.ArenaIndex) {
			continue
		}
		walkLinks(b.Value, "", func(link *model.Value, _ string) {
			if t := link.Target(); t != nil {
				g.refCounts[t.ArenaIndex]++
				g.referenced.Add(t.ArenaIndex)
			}
		})
	}
}

// walkLinks invokes fn for every link value below v, in field and element
// order. The path uses the same dotted-and-indexed form as codec errors.
func walkLinks(v *model.Value, path string, fn func(link *model.Value, path string)) {
	switch v.Kind() {
	case model.KindLink:
		fn(v, path)
	case model.KindArray:
		for i, e := range v.Elems() {
			walkLinks(e, fmt.Sprintf("%s[%d]", path, i), fn)
		}
	case model.KindStruct:
		for _, f := range v.Fields() {
			p := f.Name
			if path != "" {
				p = path + "." + f.Name
			}
			walkLinks(f.Value, p, fn)
		}
	}
}

func dropBlock(s []*model.Block, b *model.Block) []*model.Block {
	out := s[:0]
	for _, e := range s {
		if e != b {
			out = append(out, e)
		}
	}
	return out
}

func swapBlock(s []*model.Block, old, repl *model.Block) {
	for i, e := range s {
		if e == old {
			s[i] = repl
		}
	}
}
