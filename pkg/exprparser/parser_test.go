package exprparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaarutyunov/tofu/pkg/ast"
	"github.com/gaarutyunov/tofu/pkg/report"
)

func parse(t *testing.T, src string) (ast.ExprNode, *report.Reporter) {
	t.Helper()
	r := report.New()
	base := ast.Point{Filename: "t.soy", Line: 1, Column: 1}
	node := ParseExpression("t.soy", src, base, r)
	return node, r
}

func TestPrecedenceChain(t *testing.T) {
	// Left-associative access chain below binary +.
	node, r := parse(t, "$aaa[0].bbb + round(3.14)")
	require.False(t, r.HasErrors())

	plus, ok := node.(*ast.OperatorNode)
	require.True(t, ok)
	assert.Equal(t, ast.OpAdd, plus.Op)

	fa, ok := plus.Operands[0].(*ast.FieldAccessNode)
	require.True(t, ok)
	assert.Equal(t, "bbb", fa.Field)

	item, ok := fa.Parent.(*ast.ItemAccessNode)
	require.True(t, ok)
	varRef, ok := item.Parent.(*ast.VarRefNode)
	require.True(t, ok)
	assert.Equal(t, "aaa", varRef.Name)

	call, ok := plus.Operands[1].(*ast.FunctionCallNode)
	require.True(t, ok)
	assert.Equal(t, "round", call.Name)
	require.Len(t, call.Args, 1)
	f, ok := call.Args[0].(*ast.FloatNode)
	require.True(t, ok)
	assert.InDelta(t, 3.14, f.Value, 1e-9)
}

func TestProtoInitAndDuplicateField(t *testing.T) {
	node, r := parse(t, "my.Pb(a: 1, b: $x)")
	require.False(t, r.HasErrors())
	pb, ok := node.(*ast.ProtoInitNode)
	require.True(t, ok)
	assert.Equal(t, "my.Pb", pb.Name)
	require.Len(t, pb.Fields, 2)
	assert.Equal(t, "a", pb.Fields[0].Name)
	assert.Equal(t, "b", pb.Fields[1].Name)

	_, r2 := parse(t, "my.Pb(a: 1, a: 2)")
	require.True(t, r2.HasErrors())
	assert.Equal(t, report.DuplicateParamName, r2.Diagnostics()[0].Kind)
}

func TestMapVsListLiterals(t *testing.T) {
	emptyMap, r := parse(t, "[:]")
	require.False(t, r.HasErrors())
	m, ok := emptyMap.(*ast.MapLiteralNode)
	require.True(t, ok)
	assert.Empty(t, m.Pairs)

	emptyList, r := parse(t, "[]")
	require.False(t, r.HasErrors())
	l, ok := emptyList.(*ast.ListLiteralNode)
	require.True(t, ok)
	assert.Empty(t, l.Items)

	trailing, r := parse(t, "['k': 1,]")
	require.False(t, r.HasErrors())
	m2, ok := trailing.(*ast.MapLiteralNode)
	require.True(t, ok)
	require.Len(t, m2.Pairs, 1)
	k, ok := m2.Pairs[0].Key.(*ast.StrNode)
	require.True(t, ok)
	assert.Equal(t, "k", k.Value)
}

func TestIntegerOutOfRange(t *testing.T) {
	node, r := parse(t, "9007199254740993")
	require.True(t, r.HasErrors())
	assert.Equal(t, report.IntegerOutOfRange, r.Diagnostics()[0].Kind)
	n, ok := node.(*ast.IntNode)
	require.True(t, ok)
	assert.Zero(t, n.Value)
}

func TestParseExpressionListEmptyIffError(t *testing.T) {
	r := report.New()
	base := ast.Point{Filename: "t.soy", Line: 1, Column: 1}
	list := ParseExpressionList("t.soy", "1, 2, 3", base, r)
	require.False(t, r.HasErrors())
	assert.Len(t, list, 3)

	r2 := report.New()
	list2 := ParseExpressionList("t.soy", "1, , 3", base, r2)
	assert.True(t, r2.HasErrors())
	assert.Empty(t, list2)
}

func TestParseVariableRejectsBareIJ(t *testing.T) {
	r := report.New()
	base := ast.Point{Filename: "t.soy", Line: 1, Column: 1}
	ParseVariable("t.soy", "$ij", base, r)
	require.True(t, r.HasErrors())
	assert.Equal(t, report.InvalidVarNameIJ, r.Diagnostics()[0].Kind)

	r2 := report.New()
	v := ParseVariable("t.soy", "$ij.name", base, r2)
	require.False(t, r2.HasErrors())
	assert.Equal(t, "name", v.Name)
	assert.True(t, v.IsInjected)
}

func TestSingleIdentifierMapKeyHint(t *testing.T) {
	_, r := parse(t, "[a: 1]")
	require.True(t, r.HasErrors())
	assert.Equal(t, report.SingleIdentifierKeyInMapLiteral, r.Diagnostics()[0].Kind)
}

func TestTernaryRightAssociative(t *testing.T) {
	node, r := parse(t, "$a ? $b : $c ? $d : $e")
	require.False(t, r.HasErrors())
	outer, ok := node.(*ast.OperatorNode)
	require.True(t, ok)
	assert.Equal(t, ast.OpTernary, outer.Op)
	_, ok = outer.Operands[2].(*ast.OperatorNode)
	require.True(t, ok, "else-branch should itself be the nested ternary")
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"$aaa[0].bbb + round(3.14)",
		"my.Pb(a: 1, b: $x)",
		"['k': 1, 'j': 2]",
		"1 + 2 * 3",
		"(1 + 2) * 3",
		"not $a and $b or $c ?: $d",
		"$a ? $b : $c",
	}
	for _, in := range inputs {
		node1, r1 := parse(t, in)
		require.False(t, r1.HasErrors(), "input %q", in)
		rendered := SourceString(node1)
		node2, r2 := parse(t, rendered)
		require.False(t, r2.HasErrors(), "re-parse of %q", rendered)
		assert.Equal(t, SourceString(node1), SourceString(node2), "round trip for %q via %q", in, rendered)
	}
}

func TestHexLiteral(t *testing.T) {
	node, r := parse(t, "0x1f")
	require.False(t, r.HasErrors())
	n, ok := node.(*ast.IntNode)
	require.True(t, ok)
	assert.Equal(t, int64(31), n.Value)
}

func TestUnaryMinusBindsTighterThanBinary(t *testing.T) {
	node, r := parse(t, "-$a + $b")
	require.False(t, r.HasErrors())
	plus, ok := node.(*ast.OperatorNode)
	require.True(t, ok)
	assert.Equal(t, ast.OpAdd, plus.Op)
	neg, ok := plus.Operands[0].(*ast.OperatorNode)
	require.True(t, ok)
	assert.Equal(t, ast.OpNeg, neg.Op)
}

func TestNullSafeAccessChain(t *testing.T) {
	node, r := parse(t, "$a?.b?[0]")
	require.False(t, r.HasErrors())
	item, ok := node.(*ast.ItemAccessNode)
	require.True(t, ok)
	assert.True(t, item.NullSafe)
	fa, ok := item.Parent.(*ast.FieldAccessNode)
	require.True(t, ok)
	assert.True(t, fa.NullSafe)
	assert.Equal(t, "b", fa.Field)
}

func TestNullCoalesceRightAssociative(t *testing.T) {
	node, r := parse(t, "$a ?: $b ?: $c")
	require.False(t, r.HasErrors())
	outer, ok := node.(*ast.OperatorNode)
	require.True(t, ok)
	assert.Equal(t, ast.OpNullCoalesce, outer.Op)
	inner, ok := outer.Operands[1].(*ast.OperatorNode)
	require.True(t, ok)
	assert.Equal(t, ast.OpNullCoalesce, inner.Op)
}

func TestUppercaseExponentRejected(t *testing.T) {
	node, r := parse(t, "1e3")
	require.False(t, r.HasErrors())
	_, ok := node.(*ast.FloatNode)
	require.True(t, ok)

	_, r2 := parse(t, "1E3")
	assert.True(t, r2.HasErrors())
}

func TestNoArgCallStaysFunctionCall(t *testing.T) {
	node, r := parse(t, "my.Pb()")
	require.False(t, r.HasErrors())
	call, ok := node.(*ast.FunctionCallNode)
	require.True(t, ok)
	assert.Equal(t, "my.Pb", call.Name)
	assert.Empty(t, call.Args)
}

func TestLegacyOperatorsReportPreciseErrors(t *testing.T) {
	_, r := parse(t, "$a && $b")
	require.True(t, r.HasErrors())

	_, r2 := parse(t, "$a || $b")
	require.True(t, r2.HasErrors())

	_, r3 := parse(t, "!$a")
	require.True(t, r3.HasErrors())
}
