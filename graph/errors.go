package graph

import "errors"

var (
	// ErrDanglingLink marks a link whose raw index points outside the block
	// arena. Resolution records it as a condition and clears the link rather
	// than failing the read.
	ErrDanglingLink = errors.New("graph: dangling link")

	// ErrBlockNotFound is returned when an operation names a block that is
	// not part of this graph.
	ErrBlockNotFound = errors.New("graph: block not in graph")
)
