package exprs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEval_Arithmetic(t *testing.T) {
	tests := []struct {
		expr string
		want int64
	}{
		{"1 + 2", 3},
		{"2 * 3 + 4", 10},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"20 / 4", 5},
		{"7 - 10", -3},
		{"-5 + 2", -3},
		{"0x10 + 1", 17},
		{"6 & 3", 2},
	}
	for _, tt := range tests {
		e, err := Compile(tt.expr)
		require.NoError(t, err, tt.expr)

		got, err := e.Eval(nil)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, got, tt.expr)
	}
}

func TestEval_Comparisons(t *testing.T) {
	sc := MapScope{"A": 5, "B": 5, "C": 7}
	tests := []struct {
		expr string
		want bool
	}{
		{"A == B", true},
		{"A != C", true},
		{"A < C", true},
		{"C <= A", false},
		{"C > B", true},
		{"A >= B", true},
		{"A == B && C > A", true},
		{"A != B || C > A", true},
		{"!(A == B)", false},
	}
	for _, tt := range tests {
		e, err := Compile(tt.expr)
		require.NoError(t, err, tt.expr)

		got, err := e.EvalBool(sc)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, got, tt.expr)
	}
}

func TestEval_SpacedIdentifiers(t *testing.T) {
	sc := MapScope{"Num Vertices": 3, "Has Normals": 1}

	e, err := Compile("Num Vertices * 3")
	require.NoError(t, err)
	got, err := e.Eval(sc)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got)

	e, err = Compile("Has Normals && Num Vertices > 0")
	require.NoError(t, err)
	ok, err := e.EvalBool(sc)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEval_VersionLiterals(t *testing.T) {
	e, err := Compile("20.2.0.7")
	require.NoError(t, err)
	got, err := e.Eval(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0x14020007), got)

	// A two-part version still packs from the high byte down.
	e, err = Compile("4.2")
	require.NoError(t, err)
	got, err = e.Eval(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0x04020000), got)
}

func TestEval_RangeMembership(t *testing.T) {
	e, err := Compile("Version in 4.0.0.2..20.2.0.7")
	require.NoError(t, err)

	for _, tt := range []struct {
		version int64
		want    bool
	}{
		{0x04000002, true},  // lower bound inclusive
		{0x14020007, true},  // upper bound inclusive
		{0x0a010000, true},  // interior
		{0x04000001, false}, // below
		{0x14020008, false}, // above
	} {
		got, err := e.EvalBool(MapScope{"Version": tt.version})
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "version %#x", tt.version)
	}
}

func TestEval_ShortCircuit(t *testing.T) {
	// The right operand would divide by zero; && must not reach it.
	e, err := Compile("A != 0 && 10 / A > 1")
	require.NoError(t, err)

	got, err := e.EvalBool(MapScope{"A": 0})
	require.NoError(t, err)
	assert.False(t, got)

	got, err = e.EvalBool(MapScope{"A": 5})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEval_Errors(t *testing.T) {
	e, err := Compile("Missing + 1")
	require.NoError(t, err)
	_, err = e.Eval(MapScope{})
	var unknown *UnknownIdentifierError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "Missing", unknown.Name)

	e, err = Compile("1 / 0")
	require.NoError(t, err)
	_, err = e.Eval(nil)
	var mismatch *TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestCompile_SyntaxErrors(t *testing.T) {
	for _, src := range []string{
		"",
		"1 +",
		"(1 + 2",
		"* 3",
		"1 ? 2",
	} {
		_, err := Compile(src)
		var syn *SyntaxError
		assert.ErrorAs(t, err, &syn, "source %q", src)
	}
}

func TestExpr_Ident(t *testing.T) {
	e := MustCompile("Num Vertices")
	name, ok := e.Ident()
	require.True(t, ok)
	assert.Equal(t, "Num Vertices", name)

	e = MustCompile("Num Vertices + 1")
	_, ok = e.Ident()
	assert.False(t, ok)
}
