// Package exprs implements the small expression language used by schema
// field conditions, version conditions and array dimensions.
//
// Values are 64-bit integers; booleans are represented as 0 and 1.
// Identifiers resolve against a Scope supplied at evaluation time and may
// contain single spaces ("Num Vertices"), matching the names fields carry
// in the schema document. Version literals are dotted quads ("20.2.0.7")
// packed into a uint32, and "x in lo..hi" tests range membership.
package exprs

import (
	"fmt"
	"strconv"
	"strings"
)

// Scope resolves identifiers during evaluation. Implementations supply the
// values of already-decoded sibling fields plus the ambient names
// "Version", "User Version" and "arg".
type Scope interface {
	Lookup(name string) (int64, bool)
}

// MapScope is a Scope backed by a plain map, used in tests and for
// version-only scopes.
type MapScope map[string]int64

// Lookup implements Scope.
func (m MapScope) Lookup(name string) (int64, bool) {
	v, ok := m[name]
	return v, ok
}

// Expr is a compiled expression. Compilation is done once at schema load;
// evaluation is pure and safe for concurrent use.
type Expr struct {
	text string
	root node
}

// Text returns the original expression source.
func (e *Expr) Text() string {
	return e.text
}

// Ident returns the identifier name when the whole expression is a single
// bare identifier, as in an array dimension that is just a sibling count
// field. Graph mutation uses this to keep such counts in sync.
func (e *Expr) Ident() (string, bool) {
	if id, ok := e.root.(*identNode); ok {
		return id.name, true
	}
	return "", false
}

type node interface {
	eval(s Scope) (int64, error)
}

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp     // one of the operator strings below
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	val  int64 // for tokNumber
	pos  int
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && l.src[l.pos] == ' ' {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}
	start := l.pos
	ch := l.src[l.pos]

	switch {
	case ch == '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case ch == ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case ch >= '0' && ch <= '9':
		return l.lexNumber()
	case isWordStart(ch):
		return l.lexIdent()
	}

	for _, op := range [...]string{"||", "&&", "==", "!=", "<=", ">=", "..", "<", ">", "&", "+", "-", "*", "/", "!"} {
		if strings.HasPrefix(l.src[l.pos:], op) {
			l.pos += len(op)
			return token{kind: tokOp, text: op, pos: start}, nil
		}
	}
	return token{}, &SyntaxError{Source: l.src, Pos: start, Msg: fmt.Sprintf("unexpected character %q", ch)}
}

// lexNumber lexes either a plain integer (decimal or 0x hex) or a dotted
// version literal of up to four components, packed big-endian into a uint32
// (so 20.2.0.7 becomes 0x14020007).
func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	if strings.HasPrefix(l.src[l.pos:], "0x") || strings.HasPrefix(l.src[l.pos:], "0X") {
		l.pos += 2
		for l.pos < len(l.src) && isHexDigit(l.src[l.pos]) {
			l.pos++
		}
		v, err := strconv.ParseUint(l.src[start+2:l.pos], 16, 64)
		if err != nil {
			return token{}, &SyntaxError{Source: l.src, Pos: start, Msg: "malformed hex literal"}
		}
		return token{kind: tokNumber, text: l.src[start:l.pos], val: int64(v), pos: start}, nil
	}

	parts := make([]uint64, 0, 4)
	for {
		digitStart := l.pos
		for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
			l.pos++
		}
		v, err := strconv.ParseUint(l.src[digitStart:l.pos], 10, 64)
		if err != nil {
			return token{}, &SyntaxError{Source: l.src, Pos: digitStart, Msg: "malformed number"}
		}
		parts = append(parts, v)
		// A further dotted component only if followed by a digit and we
		// still have room; "1..5" must lex as 1, "..", 5.
		if len(parts) < 4 && l.pos+1 < len(l.src) && l.src[l.pos] == '.' &&
			l.src[l.pos+1] >= '0' && l.src[l.pos+1] <= '9' {
			l.pos++
			continue
		}
		break
	}

	if len(parts) == 1 {
		return token{kind: tokNumber, text: l.src[start:l.pos], val: int64(parts[0]), pos: start}, nil
	}
	var packed uint64
	shift := 24
	for _, p := range parts {
		if p > 0xff {
			return token{}, &SyntaxError{Source: l.src, Pos: start, Msg: "version component exceeds 255"}
		}
		packed |= p << shift
		shift -= 8
	}
	return token{kind: tokNumber, text: l.src[start:l.pos], val: int64(packed), pos: start}, nil
}

// lexIdent lexes an identifier, coalescing words separated by single spaces
// so that "Num Vertices" is one name. The keyword "in" terminates
// coalescing, as does anything that is not a word.
func (l *lexer) lexIdent() (token, error) {
	start := l.pos
	words := []string{l.lexWord()}
	for {
		save := l.pos
		if l.pos >= len(l.src) || l.src[l.pos] != ' ' {
			break
		}
		l.pos++
		if l.pos >= len(l.src) || !isWordStart(l.src[l.pos]) {
			l.pos = save
			break
		}
		w := l.lexWord()
		if w == "in" {
			l.pos = save
			break
		}
		words = append(words, w)
	}
	name := strings.Join(words, " ")
	if name == "in" {
		return token{kind: tokOp, text: "in", pos: start}, nil
	}
	return token{kind: tokIdent, text: name, pos: start}, nil
}

func (l *lexer) lexWord() string {
	start := l.pos
	for l.pos < len(l.src) && isWordChar(l.src[l.pos]) {
		l.pos++
	}
	return l.src[start:l.pos]
}

func isWordStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isWordChar(ch byte) bool {
	return isWordStart(ch) || (ch >= '0' && ch <= '9')
}

func isHexDigit(ch byte) bool {
	return (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

type parser struct {
	lex  *lexer
	tok  token
	src  string
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

// Compile parses exprText into an evaluable expression.
func Compile(exprText string) (*Expr, error) {
	p := &parser{lex: &lexer{src: exprText}, src: exprText}
	if err := p.advance(); err != nil {
		return nil, err
	}
	root, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, &SyntaxError{Source: exprText, Pos: p.tok.pos,
			Msg: fmt.Sprintf("unexpected %q after expression", p.tok.text)}
	}
	return &Expr{text: exprText, root: root}, nil
}

// MustCompile is Compile for expressions known to be valid, used in tests.
func MustCompile(exprText string) *Expr {
	e, err := Compile(exprText)
	if err != nil {
		panic(err)
	}
	return e
}

// Binding powers, lowest first. "in" sits with the comparisons.
var binaryPower = map[string]int{
	"||": 1,
	"&&": 2,
	"==": 3, "!=": 3,
	"<": 4, "<=": 4, ">": 4, ">=": 4, "in": 4,
	"&": 5,
	"+": 6, "-": 6,
	"*": 7, "/": 7,
}

func (p *parser) parseBinary(minPower int) (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp {
		op := p.tok.text
		power, ok := binaryPower[op]
		if !ok || power < minPower {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if op == "in" {
			lo, err := p.parseBinary(binaryPower["&"])
			if err != nil {
				return nil, err
			}
			if p.tok.kind != tokOp || p.tok.text != ".." {
				return nil, &SyntaxError{Source: p.src, Pos: p.tok.pos, Msg: "expected '..' in range test"}
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			hi, err := p.parseBinary(binaryPower["&"])
			if err != nil {
				return nil, err
			}
			left = &rangeNode{value: left, lo: lo, hi: hi}
			continue
		}
		right, err := p.parseBinary(power + 1)
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.tok.kind == tokOp && (p.tok.text == "!" || p.tok.text == "-") {
		op := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	switch p.tok.kind {
	case tokNumber:
		n := &literalNode{val: p.tok.val}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return n, nil
	case tokIdent:
		n := &identNode{name: p.tok.text}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return n, nil
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseBinary(0)
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, &SyntaxError{Source: p.src, Pos: p.tok.pos, Msg: "expected ')'"}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil
	case tokEOF:
		return nil, &SyntaxError{Source: p.src, Pos: p.tok.pos, Msg: "unexpected end of expression"}
	default:
		return nil, &SyntaxError{Source: p.src, Pos: p.tok.pos,
			Msg: fmt.Sprintf("unexpected %q", p.tok.text)}
	}
}
