package schema

import "errors"

var (
	// ErrUnknownType is returned when a type reference does not resolve.
	ErrUnknownType = errors.New("unknown type")

	// ErrCyclicInheritance is returned when struct inheritance forms a cycle.
	ErrCyclicInheritance = errors.New("cyclic struct inheritance")

	// ErrMalformedExpression is returned when a field expression fails to
	// compile at load time.
	ErrMalformedExpression = errors.New("malformed expression")

	// ErrMalformedDocument is returned for structural problems in the
	// schema document itself: bad XML, duplicate type names, invalid
	// widths and the like.
	ErrMalformedDocument = errors.New("malformed schema document")
)
