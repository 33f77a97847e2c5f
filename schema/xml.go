package schema

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/formaproject/forma/exprs"
)

// The schema document is a stable, versioned XML format. Changing its
// grammar is a breaking change for every consumer.

type xmlDocument struct {
	XMLName    xml.Name        `xml:"schema"`
	Versions   []xmlVersion    `xml:"version"`
	Basics     []xmlBasic      `xml:"basic"`
	Aliases    []xmlAlias      `xml:"alias"`
	Enums      []xmlEnum       `xml:"enum"`
	BitStructs []xmlBitStruct  `xml:"bitstruct"`
	Structs    []xmlStruct     `xml:"struct"`
}

type xmlVersion struct {
	ID string `xml:"id,attr"`
}

type xmlBasic struct {
	Name   string `xml:"name,attr"`
	Size   int    `xml:"size,attr"`
	Endian string `xml:"endian,attr"`
	Signed bool   `xml:"signed,attr"`
	Float  bool   `xml:"float,attr"`
	Link   bool   `xml:"link,attr"`
}

type xmlAlias struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

type xmlEnum struct {
	Name    string      `xml:"name,attr"`
	Storage string      `xml:"storage,attr"`
	Options []xmlOption `xml:"option"`
}

type xmlOption struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type xmlBitStruct struct {
	Name    string      `xml:"name,attr"`
	Storage string      `xml:"storage,attr"`
	Order   string      `xml:"order,attr"`
	Members []xmlMember `xml:"member"`
}

type xmlMember struct {
	Name      string `xml:"name,attr"`
	Width     int    `xml:"width,attr"`
	WidthExpr string `xml:"widthexpr,attr"`
	Default   string `xml:"default,attr"`
}

type xmlStruct struct {
	Name    string     `xml:"name,attr"`
	Inherit string     `xml:"inherit,attr"`
	Fields  []xmlField `xml:"field"`
}

type xmlField struct {
	Name     string `xml:"name,attr"`
	Type     string `xml:"type,attr"`
	Arr1     string `xml:"arr1,attr"`
	Arr2     string `xml:"arr2,attr"`
	Cond     string `xml:"cond,attr"`
	VerCond  string `xml:"vercond,attr"`
	Since    string `xml:"since,attr"`
	Until    string `xml:"until,attr"`
	UserVer  string `xml:"userver,attr"`
	Default  string `xml:"default,attr"`
	Arg      string `xml:"arg,attr"`
	Abstract bool   `xml:"abstract,attr"`
}

// Load parses a schema document. There is no partial schema: any unresolved
// type, malformed expression or inheritance cycle fails the whole load.
func Load(r io.Reader) (*Schema, error) {
	var doc xmlDocument
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	s := &Schema{types: make(map[string]*Type)}

	for _, v := range doc.Versions {
		ver, err := ParseVersion(v.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: version %q", ErrMalformedDocument, v.ID)
		}
		s.versions = append(s.versions, ver)
	}

	// First pass registers every name so type references may point forward.
	register := func(name string, t *Type) error {
		if name == "" {
			return fmt.Errorf("%w: type with empty name", ErrMalformedDocument)
		}
		if _, dup := s.types[name]; dup {
			return fmt.Errorf("%w: duplicate type name %q", ErrMalformedDocument, name)
		}
		s.types[name] = t
		s.order = append(s.order, name)
		return nil
	}
	for _, b := range doc.Basics {
		if err := register(b.Name, &Type{Name: b.Name, Kind: KindBasic}); err != nil {
			return nil, err
		}
	}
	for _, a := range doc.Aliases {
		if err := register(a.Name, &Type{Name: a.Name, Kind: KindAlias}); err != nil {
			return nil, err
		}
	}
	for _, e := range doc.Enums {
		if err := register(e.Name, &Type{Name: e.Name, Kind: KindEnum}); err != nil {
			return nil, err
		}
	}
	for _, b := range doc.BitStructs {
		if err := register(b.Name, &Type{Name: b.Name, Kind: KindBitStruct}); err != nil {
			return nil, err
		}
	}
	for _, st := range doc.Structs {
		if err := register(st.Name, &Type{Name: st.Name, Kind: KindStruct}); err != nil {
			return nil, err
		}
	}

	// Second pass fills descriptors in.
	for _, b := range doc.Basics {
		t := s.types[b.Name]
		switch b.Size {
		case 1, 2, 4, 8:
		default:
			return nil, fmt.Errorf("%w: basic %q has unsupported size %d", ErrMalformedDocument, b.Name, b.Size)
		}
		t.Size = b.Size
		switch strings.ToLower(b.Endian) {
		case "", "little":
		case "big":
			t.BigEndian = true
		default:
			return nil, fmt.Errorf("%w: basic %q has unknown endianness %q", ErrMalformedDocument, b.Name, b.Endian)
		}
		t.Signed = b.Signed
		t.Float = b.Float
		t.Link = b.Link
		if t.Float && (t.Size != 4 && t.Size != 8) {
			return nil, fmt.Errorf("%w: float basic %q must be 4 or 8 bytes", ErrMalformedDocument, b.Name)
		}
	}

	for _, a := range doc.Aliases {
		target, ok := s.types[a.Type]
		if !ok {
			return nil, fmt.Errorf("%w: alias %q references %q", ErrUnknownType, a.Name, a.Type)
		}
		s.types[a.Name].Target = target
	}
	if err := s.checkAliasCycles(); err != nil {
		return nil, err
	}

	for _, e := range doc.Enums {
		t := s.types[e.Name]
		storage, err := s.basicStorage(e.Name, e.Storage)
		if err != nil {
			return nil, err
		}
		t.Storage = storage
		for _, opt := range e.Options {
			v, err := strconv.ParseInt(opt.Value, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: enum %q option %q has value %q",
					ErrMalformedDocument, e.Name, opt.Name, opt.Value)
			}
			t.Values = append(t.Values, EnumValue{Name: opt.Name, Value: v})
		}
	}

	for _, b := range doc.BitStructs {
		t := s.types[b.Name]
		storage, err := s.basicStorage(b.Name, b.Storage)
		if err != nil {
			return nil, err
		}
		t.Storage = storage
		switch strings.ToLower(b.Order) {
		case "", "lsb":
			t.Order = LSBFirst
		case "msb":
			t.Order = MSBFirst
		default:
			return nil, fmt.Errorf("%w: bitstruct %q has unknown bit order %q", ErrMalformedDocument, b.Name, b.Order)
		}
		totalBits := 0
		dynamic := false
		for _, m := range b.Members {
			member := BitMember{Name: m.Name, Width: m.Width}
			switch {
			case m.WidthExpr != "":
				if m.Width != 0 {
					return nil, fmt.Errorf("%w: bitstruct %q member %q has both width and widthexpr",
						ErrMalformedDocument, b.Name, m.Name)
				}
				e, err := exprs.Compile(m.WidthExpr)
				if err != nil {
					return nil, fmt.Errorf("%w: bitstruct %q member %q widthexpr: %v",
						ErrMalformedExpression, b.Name, m.Name, err)
				}
				member.WidthExpr = e
				dynamic = true
			case m.Width <= 0 || m.Width > 64:
				return nil, fmt.Errorf("%w: bitstruct %q member %q has width %d",
					ErrMalformedDocument, b.Name, m.Name, m.Width)
			default:
				totalBits += m.Width
			}
			if m.Default != "" {
				v, err := strconv.ParseUint(m.Default, 0, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: bitstruct %q member %q default %q",
						ErrMalformedDocument, b.Name, m.Name, m.Default)
				}
				member.Default = v
			}
			t.Members = append(t.Members, member)
		}
		// Members need not cover the storage; uncovered bits round-trip
		// through the raw storage integer. Overflow is always a mistake,
		// though it can only be checked up front when all widths are fixed.
		if !dynamic && totalBits > storage.Size*8 {
			return nil, fmt.Errorf("%w: bitstruct %q declares %d bits in %d-byte storage",
				ErrMalformedDocument, b.Name, totalBits, storage.Size)
		}
	}

	for _, st := range doc.Structs {
		t := s.types[st.Name]
		if st.Inherit != "" {
			base, ok := s.types[st.Inherit]
			if !ok {
				return nil, fmt.Errorf("%w: struct %q inherits %q", ErrUnknownType, st.Name, st.Inherit)
			}
			if base.Kind != KindStruct {
				return nil, fmt.Errorf("%w: struct %q inherits %s %q",
					ErrMalformedDocument, st.Name, base.Kind, st.Inherit)
			}
			t.Base = base
		}
		for _, xf := range st.Fields {
			f, err := s.buildField(st.Name, xf)
			if err != nil {
				return nil, err
			}
			t.Fields = append(t.Fields, f)
		}
	}

	if err := s.flattenStructs(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Schema) basicStorage(owner, name string) (*Type, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: %q is missing a storage type", ErrMalformedDocument, owner)
	}
	storage, err := s.Resolve(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q storage %q", ErrUnknownType, owner, name)
	}
	if storage.Kind != KindBasic || storage.Float {
		return nil, fmt.Errorf("%w: %q storage %q must be an integer basic type",
			ErrMalformedDocument, owner, name)
	}
	return storage, nil
}

func (s *Schema) buildField(structName string, xf xmlField) (Field, error) {
	f := Field{Name: xf.Name, Abstract: xf.Abstract}
	if xf.Name == "" {
		return f, fmt.Errorf("%w: struct %q has a field with no name", ErrMalformedDocument, structName)
	}
	ft, ok := s.types[xf.Type]
	if !ok {
		return f, fmt.Errorf("%w: field %q.%q has type %q", ErrUnknownType, structName, xf.Name, xf.Type)
	}
	f.Type = ft

	compile := func(attr, src string) (*exprs.Expr, error) {
		if src == "" {
			return nil, nil
		}
		e, err := exprs.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q.%q %s: %v",
				ErrMalformedExpression, structName, xf.Name, attr, err)
		}
		return e, nil
	}
	var err error
	for _, dim := range []string{xf.Arr1, xf.Arr2} {
		if dim == "" {
			continue
		}
		e, err := compile("array dimension", dim)
		if err != nil {
			return f, err
		}
		f.Dims = append(f.Dims, e)
	}
	if f.Cond, err = compile("cond", xf.Cond); err != nil {
		return f, err
	}
	if f.VerCond, err = compile("vercond", xf.VerCond); err != nil {
		return f, err
	}
	if f.Arg, err = compile("arg", xf.Arg); err != nil {
		return f, err
	}

	if xf.Since != "" {
		v, err := ParseVersion(xf.Since)
		if err != nil {
			return f, fmt.Errorf("%w: field %q.%q since=%q", ErrMalformedDocument, structName, xf.Name, xf.Since)
		}
		f.Since = v
	}
	if xf.Until != "" {
		v, err := ParseVersion(xf.Until)
		if err != nil {
			return f, fmt.Errorf("%w: field %q.%q until=%q", ErrMalformedDocument, structName, xf.Name, xf.Until)
		}
		f.Until = v
	}
	if xf.UserVer != "" {
		v, err := strconv.ParseInt(xf.UserVer, 0, 64)
		if err != nil {
			return f, fmt.Errorf("%w: field %q.%q userver=%q", ErrMalformedDocument, structName, xf.Name, xf.UserVer)
		}
		f.UserVer = v
		f.HasUserVer = true
	}
	if xf.Default != "" {
		resolved := ft
		for resolved.Kind == KindAlias {
			resolved = resolved.Target
		}
		if resolved.Kind == KindBasic && resolved.Float {
			fv, err := strconv.ParseFloat(xf.Default, 64)
			if err != nil {
				return f, fmt.Errorf("%w: field %q.%q default=%q", ErrMalformedDocument, structName, xf.Name, xf.Default)
			}
			f.DefaultFloat = fv
		} else {
			v, err := strconv.ParseInt(xf.Default, 0, 64)
			if err != nil {
				return f, fmt.Errorf("%w: field %q.%q default=%q", ErrMalformedDocument, structName, xf.Name, xf.Default)
			}
			f.Default = v
		}
		f.HasDefault = true
	}
	return f, nil
}

func (s *Schema) checkAliasCycles() error {
	for _, name := range s.order {
		t := s.types[name]
		if t.Kind != KindAlias {
			continue
		}
		slow, fast := t, t
		for fast.Kind == KindAlias && fast.Target.Kind == KindAlias {
			slow = slow.Target
			fast = fast.Target.Target
			if slow == fast {
				return fmt.Errorf("%w: alias %q", ErrCyclicInheritance, name)
			}
		}
	}
	return nil
}

// flattenStructs resolves inheritance once at load time: a struct's full
// field list is its base's fields logically prepended to its own.
func (s *Schema) flattenStructs() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[*Type]int)

	var flatten func(t *Type) error
	flatten = func(t *Type) error {
		switch state[t] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: involving %q", ErrCyclicInheritance, t.Name)
		}
		state[t] = visiting
		if t.Base != nil {
			if err := flatten(t.Base); err != nil {
				return err
			}
			t.allFields = append(t.allFields, t.Base.allFields...)
		}
		t.allFields = append(t.allFields, t.Fields...)
		state[t] = done
		return nil
	}

	for _, name := range s.order {
		t := s.types[name]
		if t.Kind == KindStruct {
			if err := flatten(t); err != nil {
				return err
			}
		}
	}
	return nil
}
