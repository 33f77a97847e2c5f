package codec

import (
	"fmt"
	"math"

	"github.com/formaproject/forma/model"
	"github.com/formaproject/forma/schema"
)

// NewValue constructs a fresh, materialized value of the named type with
// schema defaults applied: integer and float fields take their declared
// defaults, links start unreferenced, bit-struct members take their member
// defaults with all undeclared bits zero-filled, and arrays start at the
// length their dimensions evaluate to against the defaulted siblings.
//
// Unlike Read, materialization includes every version-admitted field even
// when its condition is currently false; Write skips inactive members, so
// a materialized value always writes cleanly.
func (c *Codec) NewValue(typeName string) (*model.Value, error) {
	t, err := c.schema.Resolve(typeName)
	if err != nil {
		return nil, err
	}
	return c.materialize(t, nil, &scope{c: c})
}

func (c *Codec) materialize(t *schema.Type, f *schema.Field, sc *scope) (*model.Value, error) {
	switch t.Kind {
	case schema.KindBasic:
		switch {
		case t.Float:
			v := model.NewFloat(t.Name, 0)
			if f != nil && f.HasDefault {
				v.SetFloat(f.DefaultFloat)
			}
			return v, nil
		case t.Link:
			return model.NewLink(t.Name, model.NilLink), nil
		default:
			v := model.NewInt(t.Name, 0)
			if f != nil && f.HasDefault {
				v.SetInt(f.Default)
			}
			return v, nil
		}
	case schema.KindEnum:
		v := model.NewInt(t.Name, 0)
		if f != nil && f.HasDefault {
			v.SetInt(f.Default)
		} else if len(t.Values) > 0 {
			v.SetInt(t.Values[0].Value)
		}
		return v, nil
	case schema.KindBitStruct:
		return c.materializeBits(t, sc)
	case schema.KindStruct:
		return c.materializeStruct(t, sc)
	default:
		return nil, fmt.Errorf("cannot construct %s type %q", t.Kind, t.Name)
	}
}

func (c *Codec) materializeBits(t *schema.Type, sc *scope) (*model.Value, error) {
	layout, err := c.bitLayout(t, sc, t.Name)
	if err != nil {
		return nil, err
	}
	// Undeclared bits zero-fill: synthesized data has no stream to inherit
	// them from, and zero needs no extra schema vocabulary.
	var raw uint64
	v := model.NewBits(t.Name, 0)
	for i, m := range t.Members {
		slot := layout[i]
		mask := widthMask(slot.width)
		raw |= (m.Default & mask) << slot.pos
		v.AddField(m.Name, model.NewInt("", int64(m.Default&mask)))
	}
	v.SetRaw(raw)
	return v, nil
}

func (c *Codec) materializeStruct(t *schema.Type, outer *scope) (*model.Value, error) {
	fields, err := c.schema.FieldsOf(t.Name, c.version, c.userVersion)
	if err != nil {
		return nil, err
	}
	v := model.NewStruct(t.Name)
	sc := &scope{c: c, strct: v, arg: outer.arg, hasArg: outer.hasArg}

	for i := range fields {
		f := &fields[i]
		if f.Abstract {
			continue
		}
		inner, err := c.fieldScope(f, sc, t.Name+"."+f.Name)
		if err != nil {
			return nil, err
		}
		var fv *model.Value
		if len(f.Dims) == 0 {
			fv, err = c.materialize(resolved(f.Type), f, inner)
			if err != nil {
				return nil, err
			}
		} else {
			extents, dimErr := c.evalDims(f, sc, t.Name+"."+f.Name)
			if dimErr != nil {
				// Dimensions referencing a cond-guarded sibling may not
				// resolve for synthesized data; such arrays start empty.
				extents = make([]int64, len(f.Dims))
			}
			fv, err = c.materializeArray(f, extents, inner)
			if err != nil {
				return nil, err
			}
		}
		v.AddField(f.Name, fv)
	}
	return v, nil
}

func (c *Codec) materializeArray(f *schema.Field, extents []int64, inner *scope) (*model.Value, error) {
	n := extents[0]
	elems := make([]*model.Value, 0, n)
	for i := int64(0); i < n; i++ {
		var (
			e   *model.Value
			err error
		)
		if len(extents) > 1 {
			e, err = c.materializeArray(f, extents[1:], inner)
		} else {
			e, err = c.materialize(resolved(f.Type), nil, inner)
		}
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	return model.NewArray(f.Type.Name, elems), nil
}

func floatFromBits(raw uint64, size int) float64 {
	if size == 4 {
		return float64(math.Float32frombits(uint32(raw)))
	}
	return math.Float64frombits(raw)
}

func floatToBits(v float64, size int) uint64 {
	if size == 4 {
		return uint64(math.Float32bits(float32(v)))
	}
	return math.Float64bits(v)
}
