// Package schema holds the declarative description of a block-structured
// binary file format: basic types, aliases, enums, bit-packed structures and
// composite structures whose field layout may depend on earlier field
// values, the format version and the user version.
//
// A Schema is loaded once from an XML document and is immutable afterwards;
// it is safe to share across concurrent workers.
package schema

import (
	"fmt"

	"github.com/formaproject/forma/exprs"
)

// Kind discriminates type descriptors.
type Kind uint8

const (
	// KindBasic is a fixed-width primitive.
	KindBasic Kind = iota
	// KindAlias is a named synonym for another type.
	KindAlias
	// KindEnum is a basic storage type plus named integer values.
	KindEnum
	// KindBitStruct is a fixed-width integer unpacked into bit members.
	KindBitStruct
	// KindStruct is an ordered list of fields.
	KindStruct
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindBasic:
		return "basic"
	case KindAlias:
		return "alias"
	case KindEnum:
		return "enum"
	case KindBitStruct:
		return "bitstruct"
	case KindStruct:
		return "struct"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// BitOrder selects the member unpack direction of a bit struct.
type BitOrder uint8

const (
	// LSBFirst positions the first declared member at the lowest bits.
	LSBFirst BitOrder = iota
	// MSBFirst positions the first declared member at the highest bits.
	MSBFirst
)

// Type is a single type descriptor. Exactly the fields relevant to its Kind
// are populated; the rest stay zero.
type Type struct {
	Name string
	Kind Kind

	// Basic.
	Size      int  // byte width
	BigEndian bool
	Signed    bool
	Float     bool
	Link      bool // value is a block index resolved by the graph layer

	// Alias.
	Target *Type

	// Enum.
	Storage *Type
	Values  []EnumValue

	// BitStruct. Storage doubles as the backing integer type.
	Order   BitOrder
	Members []BitMember

	// Struct.
	Base   *Type
	Fields []Field // own fields, in declaration order; see AllFields

	allFields []Field // base fields prepended, resolved at load
}

// EnumValue is one named enum constant.
type EnumValue struct {
	Name  string
	Value int64
}

// ValueName returns the declared name for v, or ok=false when the value is
// not part of the enum. Unrecognized values are legal in streams; format
// evolution introduces values before schemas learn their names.
func (t *Type) ValueName(v int64) (string, bool) {
	for _, ev := range t.Values {
		if ev.Value == v {
			return ev.Name, true
		}
	}
	return "", false
}

// BitMember is one named bit field inside a bit struct. Width is fixed for
// most members; WidthExpr instead derives the width at runtime from the
// ambient versions and the enclosing field's argument ("arg"), for formats
// whose slot widths depend on a sibling value.
type BitMember struct {
	Name      string
	Width     int
	WidthExpr *exprs.Expr
	Default   uint64
}

// Field is one member of a struct.
type Field struct {
	Name     string
	Type     *Type
	Dims     []*exprs.Expr // array dimensions, outermost first; empty = scalar
	Cond     *exprs.Expr   // sibling-value condition
	VerCond  *exprs.Expr   // version-scope condition
	Since    uint32        // minimum format version, 0 = unbounded
	Until    uint32        // maximum format version, 0 = unbounded
	UserVer  int64         // user version gate
	HasUserVer bool
	Default      int64
	DefaultFloat float64
	HasDefault   bool
	Arg      *exprs.Expr // auxiliary argument passed to the field's type
	Abstract bool        // declared but never read or written
}

// ActiveIn reports whether the field's version and user-version gates admit
// the given versions. A gated-out field is absent: it contributes nothing
// to the byte stream for either read or write.
func (f *Field) ActiveIn(version uint32, userVersion uint32) bool {
	if f.Since != 0 && version < f.Since {
		return false
	}
	if f.Until != 0 && version > f.Until {
		return false
	}
	if f.HasUserVer && int64(userVersion) != f.UserVer {
		return false
	}
	return true
}

// Schema is an immutable set of type descriptors plus the format versions
// the document declares as supported.
type Schema struct {
	types    map[string]*Type
	order    []string
	versions []uint32
}

// Resolve returns the descriptor for a type name, chasing aliases to their
// target so callers always see a concrete type.
func (s *Schema) Resolve(name string) (*Type, error) {
	t, ok := s.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	for t.Kind == KindAlias {
		t = t.Target
	}
	return t, nil
}

// TypeNames returns all declared type names in document order.
func (s *Schema) TypeNames() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Versions returns the format versions the document declares, in document
// order. An empty slice means the schema does not restrict versions.
func (s *Schema) Versions() []uint32 {
	out := make([]uint32, len(s.versions))
	copy(out, s.versions)
	return out
}

// SupportsVersion reports whether the schema admits the given format
// version. Schemas that declare no versions admit everything.
func (s *Schema) SupportsVersion(version uint32) bool {
	if len(s.versions) == 0 {
		return true
	}
	for _, v := range s.versions {
		if v == version {
			return true
		}
	}
	return false
}

// FieldsOf returns the ordered, version-filtered field list of a struct,
// with inherited fields logically prepended. Conditions (cond/vercond) are
// not applied here; they depend on decoded sibling values and are the
// codec's job.
func (s *Schema) FieldsOf(structName string, version uint32, userVersion uint32) ([]Field, error) {
	t, err := s.Resolve(structName)
	if err != nil {
		return nil, err
	}
	if t.Kind != KindStruct {
		return nil, fmt.Errorf("%w: %q is a %s, not a struct", ErrUnknownType, structName, t.Kind)
	}
	out := make([]Field, 0, len(t.allFields))
	for _, f := range t.allFields {
		if f.ActiveIn(version, userVersion) {
			out = append(out, f)
		}
	}
	return out, nil
}

// AllFields returns the flattened field list of a struct type, base fields
// first, without version filtering.
func (t *Type) AllFields() []Field {
	return t.allFields
}

// IsDescendantOf reports whether t is other or inherits from it.
func (t *Type) IsDescendantOf(other *Type) bool {
	for cur := t; cur != nil; cur = cur.Base {
		if cur == other {
			return true
		}
	}
	return false
}
