package spell

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formaproject/forma/codec"
	"github.com/formaproject/forma/graph"
	"github.com/formaproject/forma/model"
	"github.com/formaproject/forma/schema"
)

const testdoc = `
<schema>
  <basic name="uint32" size="4"/>
  <basic name="ref" size="4" signed="true" link="true"/>

  <struct name="Node">
    <field name="Tag" type="uint32"/>
    <field name="Num Children" type="uint32"/>
    <field name="Children" type="ref" arr1="Num Children"/>
  </struct>
</schema>
`

func testGraph(t *testing.T) *graph.Graph {
	t.Helper()
	s, err := schema.Load(strings.NewReader(testdoc))
	require.NoError(t, err)
	c, err := codec.New(s, 0, 0)
	require.NoError(t, err)
	return graph.New(c)
}

func newNode(t *testing.T, g *graph.Graph, tag int64) *model.Block {
	t.Helper()
	b, err := g.NewBlock("Node")
	require.NoError(t, err)
	b.Value.Field("Tag").SetInt(tag)
	return b
}

func link(t *testing.T, parent, child *model.Block) {
	t.Helper()
	l := model.NewLink("ref", model.NilLink)
	l.SetTarget(child)
	arr := parent.Value.Field("Children")
	arr.Append(l)
	parent.Value.Field("Num Children").SetInt(int64(arr.Len()))
}

// chain builds n nodes tagged 1..n where each links to the next, sets the
// first as root and returns them all.
func chain(t *testing.T, g *graph.Graph, n int) []*model.Block {
	t.Helper()
	blocks := make([]*model.Block, n)
	for i := range blocks {
		blocks[i] = newNode(t, g, int64(i+1))
	}
	for i := 0; i < n-1; i++ {
		link(t, blocks[i], blocks[i+1])
	}
	g.SetRoots(blocks[0])
	g.ResolveLinks()
	return blocks
}

// tagCollector records the Tag of every block it sees.
type tagCollector struct {
	Base
	tags []int64
}

func (s *tagCollector) Entry(b *model.Block) (Result, error) {
	s.tags = append(s.tags, b.Value.IntField("Tag"))
	return Result{}, nil
}

// deleteTag deletes blocks carrying one specific tag.
type deleteTag struct {
	Base
	tag int64
}

func (s *deleteTag) Entry(b *model.Block) (Result, error) {
	if b.Value.IntField("Tag") == s.tag {
		return Result{Action: ActionDelete}, nil
	}
	return Result{}, nil
}

func TestEngine_PreOrderWalk(t *testing.T) {
	g := testGraph(t)
	chain(t, g, 3)

	col := &tagCollector{}
	rep, err := NewEngine(g, []Spell{col}).Run()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, col.tags)
	assert.Equal(t, 3, rep.Visited)
	assert.Empty(t, rep.Applied)
}

func TestEngine_DeleteInChain(t *testing.T) {
	g := testGraph(t)
	blocks := chain(t, g, 5)

	rep, err := NewEngine(g, []Spell{&deleteTag{tag: 3}}).Run()
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Deleted)

	// Block 2's child slot for block 3 is gone.
	children := blocks[1].Value.Field("Children")
	assert.Equal(t, 0, children.Len())
	assert.Equal(t, int64(0), blocks[1].Value.IntField("Num Children"))

	assert.Equal(t, 4, g.Len())

	// Block 4 was only held by block 3, so it drops out of the next
	// write along with block 5.
	order := g.Linearize()
	require.Len(t, order, 2)
	assert.Same(t, blocks[0], order[0])
	assert.Same(t, blocks[1], order[1])
}

func TestEngine_CycleVisitedOnce(t *testing.T) {
	g := testGraph(t)
	a := newNode(t, g, 1)
	b := newNode(t, g, 2)
	link(t, a, b)
	link(t, b, a)
	g.SetRoots(a)
	g.ResolveLinks()

	col := &tagCollector{}
	rep, err := NewEngine(g, []Spell{col}).Run()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, col.tags)
	assert.Equal(t, 2, rep.Visited)
}

func TestEngine_Replace(t *testing.T) {
	g := testGraph(t)
	chain(t, g, 2)

	swap := &replaceTag{from: 2, to: 99}
	rep, err := NewEngine(g, []Spell{swap}).Run()
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Replaced)

	last := g.Blocks()[1]
	assert.Equal(t, int64(99), last.Value.IntField("Tag"))
}

// replaceTag rewrites a block's value, changing its tag.
type replaceTag struct {
	Base
	from, to int64
}

func (s *replaceTag) Entry(b *model.Block) (Result, error) {
	if b.Value.IntField("Tag") != s.from {
		return Result{}, nil
	}
	v := b.Value.Clone()
	v.Field("Tag").SetInt(s.to)
	return Result{Action: ActionReplace, Value: v}, nil
}

func TestEngine_RecurseGate(t *testing.T) {
	g := testGraph(t)
	chain(t, g, 3)

	// The only spell forbids descent, so just the root is visited.
	var tags []int64
	rep, err := NewEngine(g, []Spell{&recordingNoRecurse{tags: &tags}}).Run()
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, tags)
	assert.Equal(t, 1, rep.Visited)

	// Any one permissive spell re-opens descent.
	tags = nil
	rep, err = NewEngine(g, []Spell{&recordingNoRecurse{tags: &tags}, Base{}}).Run()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, tags)
	assert.Equal(t, 3, rep.Visited)
}

type recordingNoRecurse struct {
	Base
	tags *[]int64
}

func (s *recordingNoRecurse) Entry(b *model.Block) (Result, error) {
	*s.tags = append(*s.tags, b.Value.IntField("Tag"))
	return Result{}, nil
}

func (s *recordingNoRecurse) Recurse(*model.Block) bool { return false }

func TestEngine_ApplicabilityFilter(t *testing.T) {
	g := testGraph(t)
	chain(t, g, 2)

	s := &typedSpell{}
	_, err := NewEngine(g, []Spell{s}).Run()
	require.NoError(t, err)
	assert.Zero(t, s.calls)
}

type typedSpell struct {
	Base
	calls int
}

func (s *typedSpell) Applicable(typeName string) bool { return typeName == "Other" }

func (s *typedSpell) Entry(*model.Block) (Result, error) {
	s.calls++
	return Result{}, nil
}

func TestEngine_SpellErrorAborts(t *testing.T) {
	g := testGraph(t)
	chain(t, g, 2)

	boom := errors.New("boom")
	_, err := NewEngine(g, []Spell{&failingSpell{err: boom}}).Run()
	assert.ErrorIs(t, err, boom)
}

type failingSpell struct {
	Base
	err error
}

func (s *failingSpell) Entry(*model.Block) (Result, error) {
	return Result{}, s.err
}
