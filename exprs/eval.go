package exprs

// Eval evaluates the expression against a scope and returns an integer.
func (e *Expr) Eval(s Scope) (int64, error) {
	return e.root.eval(s)
}

// EvalBool evaluates the expression as a condition: any nonzero result is
// true, matching how conditions behave in the schema language.
func (e *Expr) EvalBool(s Scope) (bool, error) {
	v, err := e.root.eval(s)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

type literalNode struct {
	val int64
}

func (n *literalNode) eval(Scope) (int64, error) {
	return n.val, nil
}

type identNode struct {
	name string
}

func (n *identNode) eval(s Scope) (int64, error) {
	if s != nil {
		if v, ok := s.Lookup(n.name); ok {
			return v, nil
		}
	}
	return 0, &UnknownIdentifierError{Name: n.name}
}

type unaryNode struct {
	op      string
	operand node
}

func (n *unaryNode) eval(s Scope) (int64, error) {
	v, err := n.operand.eval(s)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case "!":
		if v == 0 {
			return 1, nil
		}
		return 0, nil
	case "-":
		return -v, nil
	}
	return 0, &TypeMismatchError{Op: n.op, Msg: "unsupported unary operator"}
}

type binaryNode struct {
	op          string
	left, right node
}

func (n *binaryNode) eval(s Scope) (int64, error) {
	l, err := n.left.eval(s)
	if err != nil {
		return 0, err
	}
	// Short-circuit so conditions can guard identifiers that only exist
	// when an earlier field was present.
	switch n.op {
	case "&&":
		if l == 0 {
			return 0, nil
		}
		r, err := n.right.eval(s)
		if err != nil {
			return 0, err
		}
		return boolToInt(r != 0), nil
	case "||":
		if l != 0 {
			return 1, nil
		}
		r, err := n.right.eval(s)
		if err != nil {
			return 0, err
		}
		return boolToInt(r != 0), nil
	}

	r, err := n.right.eval(s)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return 0, &TypeMismatchError{Op: "/", Msg: "division by zero"}
		}
		return l / r, nil
	case "&":
		return l & r, nil
	case "==":
		return boolToInt(l == r), nil
	case "!=":
		return boolToInt(l != r), nil
	case "<":
		return boolToInt(l < r), nil
	case "<=":
		return boolToInt(l <= r), nil
	case ">":
		return boolToInt(l > r), nil
	case ">=":
		return boolToInt(l >= r), nil
	}
	return 0, &TypeMismatchError{Op: n.op, Msg: "unsupported operator"}
}

// rangeNode implements "value in lo..hi", inclusive on both ends.
type rangeNode struct {
	value, lo, hi node
}

func (n *rangeNode) eval(s Scope) (int64, error) {
	v, err := n.value.eval(s)
	if err != nil {
		return 0, err
	}
	lo, err := n.lo.eval(s)
	if err != nil {
		return 0, err
	}
	hi, err := n.hi.eval(s)
	if err != nil {
		return 0, err
	}
	return boolToInt(v >= lo && v <= hi), nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
