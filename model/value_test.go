package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_StructFields(t *testing.T) {
	v := NewStruct("Node")
	v.AddField("Count", NewInt("uint32", 2))
	v.AddField("Scale", NewFloat("float", 1.5))

	assert.Equal(t, int64(2), v.IntField("Count"))
	require.NotNil(t, v.Field("Scale"))
	assert.Equal(t, 1.5, v.Field("Scale").Float())
	assert.Nil(t, v.Field("Missing"))

	// A later duplicate shadows the earlier one for lookup but both stay
	// in declaration order.
	v.AddField("Count", NewInt("uint32", 9))
	assert.Equal(t, int64(9), v.IntField("Count"))
	assert.Len(t, v.Fields(), 3)
}

func TestValue_Array(t *testing.T) {
	arr := NewArray("uint16", nil)
	for i := int64(1); i <= 3; i++ {
		arr.Append(NewInt("uint16", i))
	}
	assert.Equal(t, 3, arr.Len())
	assert.Equal(t, int64(2), arr.At(1).Int())

	arr.RemoveAt(1)
	assert.Equal(t, 2, arr.Len())
	assert.Equal(t, int64(3), arr.At(1).Int())
}

func TestValue_Links(t *testing.T) {
	b := &Block{ArenaIndex: 4, TypeName: "Node"}
	l := NewLink("ref", 4)
	assert.Equal(t, int64(4), l.Int())
	assert.Nil(t, l.Target())

	l.SetTarget(b)
	assert.Same(t, b, l.Target())
	assert.Equal(t, NilLink, l.Int())

	l.SetTarget(nil)
	assert.Nil(t, l.Target())
}

func TestValue_Clone(t *testing.T) {
	target := &Block{ArenaIndex: 1, TypeName: "Node"}

	v := NewStruct("Node")
	v.AddField("Count", NewInt("uint32", 1))
	link := NewLink("ref", NilLink)
	link.SetTarget(target)
	arr := NewArray("ref", []*Value{link})
	v.AddField("Children", arr)

	c := v.Clone()
	require.True(t, v.Equal(c))

	// Deep copy of values, shared link targets.
	c.Field("Count").SetInt(7)
	assert.Equal(t, int64(1), v.IntField("Count"))
	assert.Same(t, target, c.Field("Children").At(0).Target())
}

func TestValue_Equal(t *testing.T) {
	a := NewStruct("S")
	a.AddField("F", NewFloat("float", math.NaN()))
	b := NewStruct("S")
	b.AddField("F", NewFloat("float", math.NaN()))

	// NaN payloads compare equal so round-tripped junk floats do not
	// break graph comparison.
	assert.True(t, a.Equal(b))

	b.AddField("G", NewInt("uint32", 0))
	assert.False(t, a.Equal(b))

	assert.False(t, NewInt("uint32", 1).Equal(NewInt("uint32", 2)))
	assert.False(t, NewInt("uint32", 1).Equal(NewFloat("float", 1)))
	assert.True(t, NewBits("Flags", 0xff).Equal(NewBits("Flags", 0xff)))
}

func TestBlock_String(t *testing.T) {
	b := &Block{ArenaIndex: 3, TypeName: "Node"}
	assert.Equal(t, "Node#3", b.String())
}
