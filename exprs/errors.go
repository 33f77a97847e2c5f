package exprs

import "fmt"

// SyntaxError indicates the expression source could not be parsed.
type SyntaxError struct {
	Source string
	Pos    int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error in %q at offset %d: %s", e.Source, e.Pos, e.Msg)
}

// UnknownIdentifierError indicates an identifier that the scope could not
// resolve at evaluation time.
type UnknownIdentifierError struct {
	Name string
}

func (e *UnknownIdentifierError) Error() string {
	return fmt.Sprintf("unknown identifier %q", e.Name)
}

// TypeMismatchError indicates an operation that is not meaningful for its
// operands, such as division by zero.
type TypeMismatchError struct {
	Op  string
	Msg string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("operator %q: %s", e.Op, e.Msg)
}
