// Package model defines the in-memory object representation produced by the
// codec: a generic typed value tree (scalars, arrays, ordered struct fields,
// bit-packed storage, block links) plus the Block identity that participates
// in the object graph.
package model

import (
	"fmt"
	"math"
)

// Kind discriminates value variants.
type Kind uint8

const (
	// KindInt holds an integer scalar (includes enums and booleans).
	KindInt Kind = iota
	// KindFloat holds a floating-point scalar.
	KindFloat
	// KindBits holds a bit-packed storage integer plus named members.
	KindBits
	// KindLink holds a reference to another block, or nil.
	KindLink
	// KindArray holds an ordered element sequence.
	KindArray
	// KindStruct holds ordered named fields.
	KindStruct
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBits:
		return "bits"
	case KindLink:
		return "link"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// NilLink is the stream sentinel for "no reference".
const NilLink int64 = -1

// Value is one node of a parsed value tree. The zero Value is not useful;
// use the constructors.
type Value struct {
	kind Kind
	typ  string // schema type name

	i int64   // KindInt, KindLink (raw index)
	f float64 // KindFloat

	raw    uint64 // KindBits: full storage integer including undeclared bits
	target *Block // KindLink: resolved reference, nil for no reference

	elems  []*Value     // KindArray
	fields []FieldValue // KindStruct, KindBits (named members)
	index  map[string]int
}

// FieldValue is one named member of a struct or bit-struct value.
// Insertion order is schema declaration order and is never reordered.
type FieldValue struct {
	Name  string
	Value *Value
}

// NewInt returns an integer scalar of the given schema type.
func NewInt(typ string, v int64) *Value {
	return &Value{kind: KindInt, typ: typ, i: v}
}

// NewFloat returns a floating-point scalar.
func NewFloat(typ string, v float64) *Value {
	return &Value{kind: KindFloat, typ: typ, f: v}
}

// NewBits returns a bit-struct value with the given raw storage integer.
// Named members are added with AddField.
func NewBits(typ string, raw uint64) *Value {
	return &Value{kind: KindBits, typ: typ, raw: raw}
}

// NewLink returns an unresolved link holding a raw block index.
func NewLink(typ string, rawIndex int64) *Value {
	return &Value{kind: KindLink, typ: typ, i: rawIndex}
}

// NewStruct returns an empty struct value.
func NewStruct(typ string) *Value {
	return &Value{kind: KindStruct, typ: typ}
}

// NewArray returns an array value with the given elements.
func NewArray(typ string, elems []*Value) *Value {
	return &Value{kind: KindArray, typ: typ, elems: elems}
}

// Kind returns the variant of this value.
func (v *Value) Kind() Kind {
	return v.kind
}

// Type returns the schema type name of this value.
func (v *Value) Type() string {
	return v.typ
}

// Int returns the integer payload of a KindInt or the raw index of a
// KindLink value.
func (v *Value) Int() int64 {
	return v.i
}

// SetInt replaces the integer payload.
func (v *Value) SetInt(n int64) {
	v.i = n
}

// Float returns the floating-point payload.
func (v *Value) Float() float64 {
	return v.f
}

// SetFloat replaces the floating-point payload.
func (v *Value) SetFloat(n float64) {
	v.f = n
}

// Raw returns the full bit-struct storage integer, undeclared bits included.
func (v *Value) Raw() uint64 {
	return v.raw
}

// SetRaw replaces the bit-struct storage integer.
func (v *Value) SetRaw(raw uint64) {
	v.raw = raw
}

// Target returns the resolved block of a link, or nil for no reference.
func (v *Value) Target() *Block {
	return v.target
}

// SetTarget points the link at a block (nil clears it). The raw index is
// reset to the sentinel; write-time linearization assigns the real index.
func (v *Value) SetTarget(b *Block) {
	v.target = b
	v.i = NilLink
}

// SetRawIndex stores a raw, unresolved block index on a link.
func (v *Value) SetRawIndex(i int64) {
	v.i = i
}

// Len returns the element count of an array.
func (v *Value) Len() int {
	return len(v.elems)
}

// At returns the i-th array element.
func (v *Value) At(i int) *Value {
	return v.elems[i]
}

// Elems returns the backing element slice of an array.
func (v *Value) Elems() []*Value {
	return v.elems
}

// Append adds an element to an array.
func (v *Value) Append(e *Value) {
	v.elems = append(v.elems, e)
}

// SetElems replaces the element slice of an array. Callers resizing an
// array must also update its length-governing sibling field, or the next
// write fails.
func (v *Value) SetElems(elems []*Value) {
	v.elems = elems
}

// RemoveAt deletes the i-th element of an array, shifting the rest down.
func (v *Value) RemoveAt(i int) {
	v.elems = append(v.elems[:i], v.elems[i+1:]...)
}

// AddField appends a named member to a struct or bit-struct value.
func (v *Value) AddField(name string, val *Value) {
	if v.index == nil {
		v.index = make(map[string]int)
	}
	// Duplicate names occur when inheritance redeclares a field; the later
	// declaration shadows the earlier for lookup.
	v.fields = append(v.fields, FieldValue{Name: name, Value: val})
	v.index[name] = len(v.fields) - 1
}

// Field returns the named member, or nil when absent (for instance a field
// whose condition evaluated false on read).
func (v *Value) Field(name string) *Value {
	if v.index == nil {
		return nil
	}
	if i, ok := v.index[name]; ok {
		return v.fields[i].Value
	}
	return nil
}

// Fields returns the ordered members of a struct or bit-struct value.
func (v *Value) Fields() []FieldValue {
	return v.fields
}

// SetField replaces an existing member's value and returns false when the
// member is absent.
func (v *Value) SetField(name string, val *Value) bool {
	if v.index == nil {
		return false
	}
	i, ok := v.index[name]
	if !ok {
		return false
	}
	v.fields[i].Value = val
	return true
}

// IntField is a convenience for reading an integer member; it returns 0
// when the member is absent or not an integer.
func (v *Value) IntField(name string) int64 {
	f := v.Field(name)
	if f == nil {
		return 0
	}
	switch f.kind {
	case KindInt, KindLink:
		return f.i
	case KindBits:
		return int64(f.raw)
	case KindFloat:
		return int64(f.f)
	default:
		return 0
	}
}

// Clone returns a deep copy of the value tree. Link targets are shared, not
// copied: cloned trees still point at the same blocks until re-resolved.
func (v *Value) Clone() *Value {
	if v == nil {
		return nil
	}
	out := &Value{kind: v.kind, typ: v.typ, i: v.i, f: v.f, raw: v.raw, target: v.target}
	if v.elems != nil {
		out.elems = make([]*Value, len(v.elems))
		for i, e := range v.elems {
			out.elems[i] = e.Clone()
		}
	}
	for _, f := range v.fields {
		out.AddField(f.Name, f.Value.Clone())
	}
	return out
}

// Equal reports deep equality of two value trees. Links compare by raw
// index and target identity.
func (v *Value) Equal(o *Value) bool {
	if v == nil || o == nil {
		return v == o
	}
	if v.kind != o.kind || v.typ != o.typ {
		return false
	}
	switch v.kind {
	case KindInt, KindLink:
		if v.i != o.i {
			return false
		}
		if v.kind == KindLink && v.target != o.target {
			return false
		}
	case KindFloat:
		if v.f != o.f && !(math.IsNaN(v.f) && math.IsNaN(o.f)) {
			return false
		}
	case KindBits:
		if v.raw != o.raw {
			return false
		}
	case KindArray:
		if len(v.elems) != len(o.elems) {
			return false
		}
		for i := range v.elems {
			if !v.elems[i].Equal(o.elems[i]) {
				return false
			}
		}
	case KindStruct:
		if len(v.fields) != len(o.fields) {
			return false
		}
		for i := range v.fields {
			if v.fields[i].Name != o.fields[i].Name ||
				!v.fields[i].Value.Equal(o.fields[i].Value) {
				return false
			}
		}
	}
	return true
}
