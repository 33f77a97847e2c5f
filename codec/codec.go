// Package codec walks a schema against a byte cursor in both directions.
// Reading produces a model.Value tree; writing reproduces the original
// bytes exactly for any unmutated tree, including unrecognized enum values
// and undeclared bit-struct bits.
package codec

import (
	"fmt"

	"github.com/formaproject/forma/cursor"
	"github.com/formaproject/forma/model"
	"github.com/formaproject/forma/schema"
)

// Codec binds a schema to an active format version and user version. It is
// stateless across calls and safe to share between workers.
type Codec struct {
	schema      *schema.Schema
	version     uint32
	userVersion uint32
}

// New returns a codec for the given versions. Schemas that declare a
// version list reject versions outside it.
func New(s *schema.Schema, version, userVersion uint32) (*Codec, error) {
	if !s.SupportsVersion(version) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, schema.FormatVersion(version))
	}
	return &Codec{schema: s, version: version, userVersion: userVersion}, nil
}

// Schema returns the bound schema.
func (c *Codec) Schema() *schema.Schema { return c.schema }

// Version returns the active format version.
func (c *Codec) Version() uint32 { return c.version }

// UserVersion returns the active user version.
func (c *Codec) UserVersion() uint32 { return c.userVersion }

// scope resolves expression identifiers against the struct currently being
// decoded or encoded, plus the ambient names.
type scope struct {
	c      *Codec
	strct  *model.Value // nil for version-only scopes (vercond, bit widths)
	arg    int64
	hasArg bool
}

// Lookup implements exprs.Scope.
func (s *scope) Lookup(name string) (int64, bool) {
	switch name {
	case "Version":
		return int64(s.c.version), true
	case "User Version":
		return int64(s.c.userVersion), true
	case "arg":
		if s.hasArg {
			return s.arg, true
		}
		return 0, false
	}
	if s.strct == nil {
		return 0, false
	}
	f := s.strct.Field(name)
	if f == nil {
		return 0, false
	}
	switch f.Kind() {
	case model.KindInt, model.KindLink:
		return f.Int(), true
	case model.KindFloat:
		return int64(f.Float()), true
	case model.KindBits:
		return int64(f.Raw()), true
	default:
		return 0, false
	}
}

// Read decodes one value of the named type from the cursor.
func (c *Codec) Read(cur *cursor.Cursor, typeName string) (*model.Value, error) {
	t, err := c.schema.Resolve(typeName)
	if err != nil {
		return nil, err
	}
	return c.readValue(cur, t, typeName, &scope{c: c})
}

// Write encodes a value tree previously produced by Read or NewValue. Link
// fields must carry their raw indices; the graph layer assigns them during
// linearization.
func (c *Codec) Write(cur *cursor.Cursor, v *model.Value) error {
	t, err := c.schema.Resolve(v.Type())
	if err != nil {
		return err
	}
	return c.writeValue(cur, v, t, v.Type(), &scope{c: c})
}

func (c *Codec) readValue(cur *cursor.Cursor, t *schema.Type, path string, sc *scope) (*model.Value, error) {
	switch t.Kind {
	case schema.KindBasic:
		return c.readBasic(cur, t, path)
	case schema.KindEnum:
		// Unrecognized values are preserved verbatim; format evolution
		// introduces values before schemas learn their names.
		raw, err := cur.ReadUint(t.Storage.Size, t.Storage.BigEndian)
		if err != nil {
			return nil, fieldErr(path, cur.Tell(), err)
		}
		return model.NewInt(t.Name, signExtend(raw, t.Storage)), nil
	case schema.KindBitStruct:
		return c.readBits(cur, t, path, sc)
	case schema.KindStruct:
		return c.readStruct(cur, t, path, sc)
	default:
		return nil, fieldErr(path, cur.Tell(), fmt.Errorf("cannot decode %s type %q", t.Kind, t.Name))
	}
}

func (c *Codec) readBasic(cur *cursor.Cursor, t *schema.Type, path string) (*model.Value, error) {
	raw, err := cur.ReadUint(t.Size, t.BigEndian)
	if err != nil {
		return nil, fieldErr(path, cur.Tell(), err)
	}
	switch {
	case t.Float:
		return model.NewFloat(t.Name, floatFromBits(raw, t.Size)), nil
	case t.Link:
		return model.NewLink(t.Name, signExtend(raw, t)), nil
	default:
		return model.NewInt(t.Name, signExtend(raw, t)), nil
	}
}

func (c *Codec) readBits(cur *cursor.Cursor, t *schema.Type, path string, sc *scope) (*model.Value, error) {
	raw, err := cur.ReadUint(t.Storage.Size, t.Storage.BigEndian)
	if err != nil {
		return nil, fieldErr(path, cur.Tell(), err)
	}
	// The raw storage integer is retained so undeclared bits survive a
	// round trip untouched.
	v := model.NewBits(t.Name, raw)
	layout, err := c.bitLayout(t, sc, path)
	if err != nil {
		return nil, err
	}
	for _, m := range layout {
		mask := widthMask(m.width)
		v.AddField(m.name, model.NewInt("", int64((raw>>m.pos)&mask)))
	}
	return v, nil
}

type bitSlot struct {
	name  string
	width int
	pos   int
}

// bitLayout positions each member within the storage integer. LSB-first
// packs the first declared member at bit 0; MSB-first packs it at the top.
func (c *Codec) bitLayout(t *schema.Type, sc *scope, path string) ([]bitSlot, error) {
	storageBits := t.Storage.Size * 8
	slots := make([]bitSlot, 0, len(t.Members))
	used := 0
	for _, m := range t.Members {
		width := m.Width
		if m.WidthExpr != nil {
			w, err := m.WidthExpr.Eval(&scope{c: c, arg: sc.arg, hasArg: sc.hasArg})
			if err != nil {
				return nil, fieldErr(path+"."+m.Name, 0, err)
			}
			if w <= 0 || w > 64 {
				return nil, fieldErr(path+"."+m.Name, 0,
					fmt.Errorf("evaluated bit width %d out of range", w))
			}
			width = int(w)
		}
		if used+width > storageBits {
			return nil, fieldErr(path+"."+m.Name, 0,
				fmt.Errorf("bit members overflow %d-bit storage", storageBits))
		}
		pos := used
		if t.Order == schema.MSBFirst {
			pos = storageBits - used - width
		}
		slots = append(slots, bitSlot{name: m.Name, width: width, pos: pos})
		used += width
	}
	return slots, nil
}

func (c *Codec) readStruct(cur *cursor.Cursor, t *schema.Type, path string, outer *scope) (*model.Value, error) {
	fields, err := c.schema.FieldsOf(t.Name, c.version, c.userVersion)
	if err != nil {
		return nil, err
	}
	v := model.NewStruct(t.Name)
	sc := &scope{c: c, strct: v, arg: outer.arg, hasArg: outer.hasArg}

	// Fields decode strictly in declaration order: later conditions and
	// dimensions see the values decoded before them.
	for i := range fields {
		f := &fields[i]
		active, err := c.fieldActive(f, sc, path)
		if err != nil {
			return nil, err
		}
		if !active {
			continue
		}
		fieldPath := path + "." + f.Name
		inner, err := c.fieldScope(f, sc, fieldPath)
		if err != nil {
			return nil, err
		}
		fv, err := c.readField(cur, f, fieldPath, sc, inner)
		if err != nil {
			return nil, err
		}
		v.AddField(f.Name, fv)
	}
	return v, nil
}

func (c *Codec) readField(cur *cursor.Cursor, f *schema.Field, path string, sc, inner *scope) (*model.Value, error) {
	if len(f.Dims) == 0 {
		return c.readValue(cur, resolved(f.Type), path, inner)
	}
	extents, err := c.evalDims(f, sc, path)
	if err != nil {
		return nil, err
	}
	return c.readArray(cur, f, extents, path, inner)
}

// readArray decodes one array level; extents beyond the first become
// nested arrays, stored row-major.
func (c *Codec) readArray(cur *cursor.Cursor, f *schema.Field, extents []int64, path string, inner *scope) (*model.Value, error) {
	n := extents[0]
	elems := make([]*model.Value, 0, n)
	for i := int64(0); i < n; i++ {
		elemPath := fmt.Sprintf("%s[%d]", path, i)
		var (
			e   *model.Value
			err error
		)
		if len(extents) > 1 {
			e, err = c.readArray(cur, f, extents[1:], elemPath, inner)
		} else {
			e, err = c.readValue(cur, resolved(f.Type), elemPath, inner)
		}
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	return model.NewArray(f.Type.Name, elems), nil
}

func (c *Codec) writeValue(cur *cursor.Cursor, v *model.Value, t *schema.Type, path string, sc *scope) error {
	switch t.Kind {
	case schema.KindBasic:
		if t.Float {
			return cur.WriteUint(floatToBits(v.Float(), t.Size), t.Size, t.BigEndian)
		}
		// Links carry their raw index here; signed values truncate to
		// two's complement of the declared width.
		return cur.WriteUint(uint64(v.Int()), t.Size, t.BigEndian)
	case schema.KindEnum:
		return cur.WriteUint(uint64(v.Int()), t.Storage.Size, t.Storage.BigEndian)
	case schema.KindBitStruct:
		return c.writeBits(cur, v, t, path, sc)
	case schema.KindStruct:
		return c.writeStruct(cur, v, t, path, sc)
	default:
		return fieldErr(path, cur.Tell(), fmt.Errorf("cannot encode %s type %q", t.Kind, t.Name))
	}
}

func (c *Codec) writeBits(cur *cursor.Cursor, v *model.Value, t *schema.Type, path string, sc *scope) error {
	layout, err := c.bitLayout(t, sc, path)
	if err != nil {
		return err
	}
	// Start from the retained storage integer and splice the named members
	// back in, so undeclared bits are written back untouched even after
	// member mutation.
	raw := v.Raw()
	for _, m := range layout {
		mv := v.Field(m.name)
		if mv == nil {
			continue
		}
		mask := widthMask(m.width)
		raw = (raw &^ (mask << m.pos)) | ((uint64(mv.Int()) & mask) << m.pos)
	}
	return cur.WriteUint(raw, t.Storage.Size, t.Storage.BigEndian)
}

func (c *Codec) writeStruct(cur *cursor.Cursor, v *model.Value, t *schema.Type, path string, outer *scope) error {
	fields, err := c.schema.FieldsOf(t.Name, c.version, c.userVersion)
	if err != nil {
		return err
	}
	sc := &scope{c: c, strct: v, arg: outer.arg, hasArg: outer.hasArg}

	for i := range fields {
		f := &fields[i]
		active, err := c.fieldActive(f, sc, path)
		if err != nil {
			return err
		}
		if !active {
			// A field whose condition is false contributes nothing to the
			// stream, even if the value tree carries a materialized member.
			continue
		}
		fieldPath := path + "." + f.Name
		fv := v.Field(f.Name)
		if fv == nil {
			return fieldErr(fieldPath, cur.Tell(), ErrMissingField)
		}
		inner, err := c.fieldScope(f, sc, fieldPath)
		if err != nil {
			return err
		}
		if err := c.writeField(cur, f, fv, fieldPath, sc, inner); err != nil {
			return err
		}
	}
	return nil
}

func (c *Codec) writeField(cur *cursor.Cursor, f *schema.Field, fv *model.Value, path string, sc, inner *scope) error {
	if len(f.Dims) == 0 {
		return c.writeValue(cur, fv, resolved(f.Type), path, inner)
	}
	extents, err := c.evalDims(f, sc, path)
	if err != nil {
		return err
	}
	return c.writeArray(cur, f, fv, extents, path, inner)
}

func (c *Codec) writeArray(cur *cursor.Cursor, f *schema.Field, fv *model.Value, extents []int64, path string, inner *scope) error {
	if fv.Kind() != model.KindArray {
		return fieldErr(path, cur.Tell(), fmt.Errorf("expected array, have %s", fv.Kind()))
	}
	if int64(fv.Len()) != extents[0] {
		return fieldErr(path, cur.Tell(), fmt.Errorf("%w: have %d elements, dimension evaluates to %d",
			ErrInconsistentArrayLength, fv.Len(), extents[0]))
	}
	for i := 0; i < fv.Len(); i++ {
		elemPath := fmt.Sprintf("%s[%d]", path, i)
		var err error
		if len(extents) > 1 {
			err = c.writeArray(cur, f, fv.At(i), extents[1:], elemPath, inner)
		} else {
			err = c.writeValue(cur, fv.At(i), resolved(f.Type), elemPath, inner)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// fieldActive applies the abstract flag and both condition expressions.
// Version and user-version gates were already applied by FieldsOf.
func (c *Codec) fieldActive(f *schema.Field, sc *scope, path string) (bool, error) {
	if f.Abstract {
		return false, nil
	}
	if f.VerCond != nil {
		ok, err := f.VerCond.EvalBool(&scope{c: c})
		if err != nil {
			return false, fieldErr(path+"."+f.Name, 0, err)
		}
		if !ok {
			return false, nil
		}
	}
	if f.Cond != nil {
		ok, err := f.Cond.EvalBool(sc)
		if err != nil {
			return false, fieldErr(path+"."+f.Name, 0, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// fieldScope derives the scope the field's own type is decoded in,
// evaluating the auxiliary argument expression in the enclosing scope.
func (c *Codec) fieldScope(f *schema.Field, sc *scope, path string) (*scope, error) {
	if f.Arg == nil {
		return &scope{c: c}, nil
	}
	arg, err := f.Arg.Eval(sc)
	if err != nil {
		return nil, fieldErr(path, 0, err)
	}
	return &scope{c: c, arg: arg, hasArg: true}, nil
}

func (c *Codec) evalDims(f *schema.Field, sc *scope, path string) ([]int64, error) {
	extents := make([]int64, 0, len(f.Dims))
	for _, dim := range f.Dims {
		n, err := dim.Eval(sc)
		if err != nil {
			return nil, fieldErr(path, 0, err)
		}
		if n < 0 {
			return nil, fieldErr(path, 0, fmt.Errorf("array dimension %q evaluates to %d", dim.Text(), n))
		}
		extents = append(extents, n)
	}
	return extents, nil
}

func resolved(t *schema.Type) *schema.Type {
	for t.Kind == schema.KindAlias {
		t = t.Target
	}
	return t
}

func signExtend(raw uint64, t *schema.Type) int64 {
	if !t.Signed || t.Size == 8 {
		return int64(raw)
	}
	shift := uint(64 - t.Size*8)
	return int64(raw<<shift) >> shift
}

func widthMask(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}
