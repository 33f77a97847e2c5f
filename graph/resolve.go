package graph

import (
	"fmt"

	"github.com/formaproject/forma/cursor"
	"github.com/formaproject/forma/model"
)

// Condition records a recoverable defect found while resolving links. The
// offending link is cleared so the graph stays usable; callers decide
// whether the condition is fatal for their purposes.
type Condition struct {
	Block *model.Block // block containing the bad link
	Path  string       // field path of the link inside the block
	Index int64        // raw index the link carried
	Err   error        // wraps ErrDanglingLink
}

func (c Condition) Error() string {
	return c.Err.Error()
}

func (c Condition) Unwrap() error {
	return c.Err
}

// ReadBlocks parses one block per entry of typeNames from cur, appends them
// to the arena and resolves all links. A decode error aborts the read;
// dangling links do not, they are reported by Conditions.
func (g *Graph) ReadBlocks(cur *cursor.Cursor, typeNames []string) error {
	for i, name := range typeNames {
		v, err := g.codec.Read(cur, name)
		if err != nil {
			return fmt.Errorf("block %d (%s): %w", i, name, err)
		}
		g.add(name, v)
	}
	g.ResolveLinks()
	return nil
}

// ResolveLinks turns every raw link index in the arena into a block
// pointer. Negative indices mean no reference. Indices past the end of the
// arena are recorded as dangling-link conditions and cleared. Reference
// counts are rebuilt as a side effect. The returned slice is the full
// condition list, also available from Conditions.
func (g *Graph) ResolveLinks() []Condition {
	g.conditions = g.conditions[:0]
	g.refCounts = make([]int, len(g.blocks))
	g.referenced.Clear()

	for _, b := range g.blocks {
		if g.removed.Contains(b.ArenaIndex) {
			continue
		}
		walkLinks(b.Value, "", func(link *model.Value, path string) {
			raw := link.Int()
			if t := link.Target(); t != nil && raw == model.NilLink {
				// Already resolved by a previous pass or built in memory.
				g.refCounts[t.ArenaIndex]++
				g.referenced.Add(t.ArenaIndex)
				return
			}
			switch {
			case raw < 0:
				link.SetTarget(nil)
			case raw >= int64(len(g.blocks)):
				link.SetTarget(nil)
				g.conditions = append(g.conditions, Condition{
					Block: b,
					Path:  path,
					Index: raw,
					Err: fmt.Errorf("%w: %s in %s points at block %d, arena holds %d",
						ErrDanglingLink, path, b, raw, len(g.blocks)),
				})
			default:
				t := g.blocks[raw]
				link.SetTarget(t)
				g.refCounts[raw]++
				g.referenced.Add(uint32(raw))
			}
		})
	}
	return g.conditions
}

// Conditions returns the defects recorded by the last ResolveLinks.
func (g *Graph) Conditions() []Condition {
	return g.conditions
}
