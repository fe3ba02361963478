package htmlrewriter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaarutyunov/tofu/pkg/ast"
	"github.com/gaarutyunov/tofu/pkg/report"
)

func newFile(t *testing.T, text string) (*ast.SoyFileNode, *ast.IdGenerator) {
	t.Helper()
	ids := ast.NewIdGenerator()
	begin := ast.Point{Filename: "t.soy", Line: 1, Column: 1}
	loc := ast.NewSourceLocation(begin, begin)
	file := ast.NewSoyFileNode(ids, loc, "t", ast.ContentHTML)
	file.AddChildren(ast.NewRawTextNode(ids, loc, text))
	return file, ids
}

func rewrite(t *testing.T, text string) (*ast.SoyFileNode, *report.Reporter) {
	t.Helper()
	file, ids := newFile(t, text)
	errs := report.New()
	rw := New([]string{"stricthtml"}, errs)
	rw.Run(file, ids)
	return file, errs
}

func hasKind(r *report.Reporter, kind report.Kind) bool {
	for _, d := range r.Diagnostics() {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

func TestHtmlMinimal(t *testing.T) {
	file, errs := rewrite(t, `<a href="x">hi</a>`)
	require.False(t, errs.HasErrors())

	children := file.Children()
	require.Len(t, children, 3)

	open, ok := children[0].(*ast.HtmlOpenTagNode)
	require.True(t, ok)
	assert.Equal(t, "a", open.Tag.Literal)
	require.Len(t, open.Children(), 1)
	attr, ok := open.Children()[0].(*ast.HtmlAttributeNode)
	require.True(t, ok)
	nameText, ok := attr.Name.(*ast.RawTextNode)
	require.True(t, ok)
	assert.Equal(t, "href", nameText.Text)
	require.NotNil(t, attr.Value)
	assert.Equal(t, ast.QuoteDouble, attr.Value.Quote)
	require.Len(t, attr.Value.Children(), 1)
	val, ok := attr.Value.Children()[0].(*ast.RawTextNode)
	require.True(t, ok)
	assert.Equal(t, "x", val.Text)

	text, ok := children[1].(*ast.RawTextNode)
	require.True(t, ok)
	assert.Equal(t, "hi", text.Text)

	closeTag, ok := children[2].(*ast.HtmlCloseTagNode)
	require.True(t, ok)
	assert.Equal(t, "a", closeTag.Tag.Literal)
}

func TestSelfClosingTag(t *testing.T) {
	file, errs := rewrite(t, `<br/>`)
	require.False(t, errs.HasErrors())
	require.Len(t, file.Children(), 1)
	open, ok := file.Children()[0].(*ast.HtmlOpenTagNode)
	require.True(t, ok)
	assert.Equal(t, "br", open.Tag.Literal)
	assert.True(t, open.SelfClosing)
}

func TestConditionalAttributeValueReconciles(t *testing.T) {
	// <a href={if $c}"x"{else}"y"{/if}> — both branches contribute their
	// value to a single attribute, with the {if} preserved inside the value.
	ids := ast.NewIdGenerator()
	begin := ast.Point{Filename: "t.soy", Line: 1, Column: 1}
	loc := ast.NewSourceLocation(begin, begin)
	file := ast.NewSoyFileNode(ids, loc, "t", ast.ContentHTML)
	file.AddChildren(ast.NewRawTextNode(ids, loc, `<a href=`))

	ifNode := ast.NewIfNode(ids, loc)
	cond := ast.NewIfCondNode(ids, loc, ast.ContentHTML, ast.NewBoolNode(true, loc))
	cond.AddChildren(ast.NewRawTextNode(ids, loc, `"x"`))
	elseNode := ast.NewIfElseNode(ids, loc, ast.ContentHTML)
	elseNode.AddChildren(ast.NewRawTextNode(ids, loc, `"y"`))
	ifNode.AddChildren(cond, elseNode)
	file.AddChildren(ifNode)
	file.AddChildren(ast.NewRawTextNode(ids, loc, `>`))

	errs := report.New()
	rw := New([]string{"stricthtml"}, errs)
	rw.Run(file, ids)

	require.False(t, errs.HasErrors())
	require.Len(t, file.Children(), 1)
	open, ok := file.Children()[0].(*ast.HtmlOpenTagNode)
	require.True(t, ok)
	require.Len(t, open.Children(), 1)
	attr, ok := open.Children()[0].(*ast.HtmlAttributeNode)
	require.True(t, ok)
	require.NotNil(t, attr.Value)
	assert.Equal(t, ast.QuoteDouble, attr.Value.Quote)
	require.Len(t, attr.Value.Children(), 1)
	movedIf, ok := attr.Value.Children()[0].(*ast.IfNode)
	require.True(t, ok)

	branches := movedIf.Children()
	require.Len(t, branches, 2)
	condBranch, ok := branches[0].(*ast.IfCondNode)
	require.True(t, ok)
	require.Len(t, condBranch.Children(), 1)
	part, ok := condBranch.Children()[0].(*ast.RawTextNode)
	require.True(t, ok)
	assert.Equal(t, "x", part.Text)
}

func TestUnquotedConditionalValue(t *testing.T) {
	ids := ast.NewIdGenerator()
	begin := ast.Point{Filename: "t.soy", Line: 1, Column: 1}
	loc := ast.NewSourceLocation(begin, begin)
	file := ast.NewSoyFileNode(ids, loc, "t", ast.ContentHTML)
	file.AddChildren(ast.NewRawTextNode(ids, loc, `<a href=`))

	ifNode := ast.NewIfNode(ids, loc)
	cond := ast.NewIfCondNode(ids, loc, ast.ContentHTML, ast.NewBoolNode(true, loc))
	cond.AddChildren(ast.NewRawTextNode(ids, loc, `a`))
	elseNode := ast.NewIfElseNode(ids, loc, ast.ContentHTML)
	elseNode.AddChildren(ast.NewRawTextNode(ids, loc, `b`))
	ifNode.AddChildren(cond, elseNode)
	file.AddChildren(ifNode)
	file.AddChildren(ast.NewRawTextNode(ids, loc, `>`))

	errs := report.New()
	rw := New([]string{"stricthtml"}, errs)
	rw.Run(file, ids)

	require.False(t, errs.HasErrors())
	require.Len(t, file.Children(), 1)
	open, ok := file.Children()[0].(*ast.HtmlOpenTagNode)
	require.True(t, ok)
	require.Len(t, open.Children(), 1)
	attr, ok := open.Children()[0].(*ast.HtmlAttributeNode)
	require.True(t, ok)
	require.NotNil(t, attr.Value)
	assert.Equal(t, ast.QuoteNone, attr.Value.Quote)
	require.Len(t, attr.Value.Children(), 1)
	_, ok = attr.Value.Children()[0].(*ast.IfNode)
	assert.True(t, ok)
}

func TestConditionalAttributesInsideTag(t *testing.T) {
	// <a {if $c}x="1"{else}y="2"{/if}> — the {if} becomes a child of the
	// open tag, each branch holding its finished attribute.
	ids := ast.NewIdGenerator()
	begin := ast.Point{Filename: "t.soy", Line: 1, Column: 1}
	loc := ast.NewSourceLocation(begin, begin)
	file := ast.NewSoyFileNode(ids, loc, "t", ast.ContentHTML)
	file.AddChildren(ast.NewRawTextNode(ids, loc, `<a `))

	ifNode := ast.NewIfNode(ids, loc)
	cond := ast.NewIfCondNode(ids, loc, ast.ContentHTML, ast.NewBoolNode(true, loc))
	cond.AddChildren(ast.NewRawTextNode(ids, loc, `x="1"`))
	elseNode := ast.NewIfElseNode(ids, loc, ast.ContentHTML)
	elseNode.AddChildren(ast.NewRawTextNode(ids, loc, `y="2"`))
	ifNode.AddChildren(cond, elseNode)
	file.AddChildren(ifNode)
	file.AddChildren(ast.NewRawTextNode(ids, loc, `>`))

	errs := report.New()
	rw := New([]string{"stricthtml"}, errs)
	rw.Run(file, ids)

	require.False(t, errs.HasErrors())
	require.Len(t, file.Children(), 1)
	open, ok := file.Children()[0].(*ast.HtmlOpenTagNode)
	require.True(t, ok)
	require.Len(t, open.Children(), 1)
	movedIf, ok := open.Children()[0].(*ast.IfNode)
	require.True(t, ok)

	condBranch, ok := movedIf.Children()[0].(*ast.IfCondNode)
	require.True(t, ok)
	require.Len(t, condBranch.Children(), 1)
	attr, ok := condBranch.Children()[0].(*ast.HtmlAttributeNode)
	require.True(t, ok)
	name, ok := attr.Name.(*ast.RawTextNode)
	require.True(t, ok)
	assert.Equal(t, "x", name.Text)
}

func TestIllegalCrossing(t *testing.T) {
	// {if $c}<a{/if}> — the `>` finishes a tag begun in another block.
	ids := ast.NewIdGenerator()
	begin := ast.Point{Filename: "t.soy", Line: 1, Column: 1}
	loc := ast.NewSourceLocation(begin, begin)
	file := ast.NewSoyFileNode(ids, loc, "t", ast.ContentHTML)

	ifNode := ast.NewIfNode(ids, loc)
	cond := ast.NewIfCondNode(ids, loc, ast.ContentHTML, ast.NewBoolNode(true, loc))
	cond.AddChildren(ast.NewRawTextNode(ids, loc, `<a`))
	ifNode.AddChildren(cond)
	file.AddChildren(ifNode)
	file.AddChildren(ast.NewRawTextNode(ids, loc, `>`))

	errs := report.New()
	rw := New([]string{"stricthtml"}, errs)
	rw.Run(file, ids)

	require.True(t, errs.HasErrors())
	assert.True(t, hasKind(errs, report.FoundEndTagStartedInAnotherBlock))
}

func TestQuoteClosedInAnotherBlock(t *testing.T) {
	ids := ast.NewIdGenerator()
	begin := ast.Point{Filename: "t.soy", Line: 1, Column: 1}
	loc := ast.NewSourceLocation(begin, begin)
	file := ast.NewSoyFileNode(ids, loc, "t", ast.ContentHTML)
	file.AddChildren(ast.NewRawTextNode(ids, loc, `<a href="`))

	ifNode := ast.NewIfNode(ids, loc)
	cond := ast.NewIfCondNode(ids, loc, ast.ContentHTML, ast.NewBoolNode(true, loc))
	cond.AddChildren(ast.NewRawTextNode(ids, loc, `x"`))
	ifNode.AddChildren(cond)
	file.AddChildren(ifNode)
	file.AddChildren(ast.NewRawTextNode(ids, loc, `">`))

	errs := report.New()
	rw := New([]string{"stricthtml"}, errs)
	rw.Run(file, ids)

	require.True(t, errs.HasErrors())
	assert.True(t, hasKind(errs, report.FoundEndOfAttributeStartedInAnotherBlock))
}

func TestBranchesEndingInIncompatibleStates(t *testing.T) {
	ids := ast.NewIdGenerator()
	begin := ast.Point{Filename: "t.soy", Line: 1, Column: 1}
	loc := ast.NewSourceLocation(begin, begin)
	file := ast.NewSoyFileNode(ids, loc, "t", ast.ContentHTML)

	ifNode := ast.NewIfNode(ids, loc)
	cond := ast.NewIfCondNode(ids, loc, ast.ContentHTML, ast.NewBoolNode(true, loc))
	cond.AddChildren(ast.NewRawTextNode(ids, loc, `<a href="x">`))
	elseNode := ast.NewIfElseNode(ids, loc, ast.ContentHTML)
	elseNode.AddChildren(ast.NewRawTextNode(ids, loc, `<a `))
	ifNode.AddChildren(cond, elseNode)
	file.AddChildren(ifNode)

	errs := report.New()
	rw := New([]string{"stricthtml"}, errs)
	rw.Run(file, ids)

	require.True(t, errs.HasErrors())
	assert.True(t, hasKind(errs, report.BlockChangesContext))
}

func TestExpectedAttributeValue(t *testing.T) {
	_, errs := rewrite(t, `<a href=>`)
	require.True(t, errs.HasErrors())
	assert.True(t, hasKind(errs, report.ExpectedAttributeValue))
}

func TestWhitespaceAfterLT(t *testing.T) {
	file, errs := rewrite(t, `a < b`)
	require.True(t, errs.HasErrors())
	assert.True(t, hasKind(errs, report.UnexpectedWSAfterLT))
	// The cancelled tag keeps the text intact.
	require.Len(t, file.Children(), 1)
}

func TestCommentAndCdataStayText(t *testing.T) {
	file, errs := rewrite(t, `a<!-- <not a tag> -->b<![CDATA[ <x> ]]>c`)
	require.False(t, errs.HasErrors())
	require.Len(t, file.Children(), 1)
	raw, ok := file.Children()[0].(*ast.RawTextNode)
	require.True(t, ok)
	assert.Equal(t, `a<!-- <not a tag> -->b<![CDATA[ <x> ]]>c`, raw.Text)
}

func TestRcdataContent(t *testing.T) {
	file, errs := rewrite(t, `<script>if (a < b) x();</script>`)
	require.False(t, errs.HasErrors())
	children := file.Children()
	require.Len(t, children, 3)
	open, ok := children[0].(*ast.HtmlOpenTagNode)
	require.True(t, ok)
	assert.Equal(t, "script", open.Tag.Literal)
	body, ok := children[1].(*ast.RawTextNode)
	require.True(t, ok)
	assert.Equal(t, "if (a < b) x();", body.Text)
	_, ok = children[2].(*ast.HtmlCloseTagNode)
	require.True(t, ok)
}

func TestJoinedWhitespaceDelimitsUnquotedValue(t *testing.T) {
	ids := ast.NewIdGenerator()
	begin := ast.Point{Filename: "t.soy", Line: 1, Column: 1}
	loc := ast.NewSourceLocation(begin, begin)
	file := ast.NewSoyFileNode(ids, loc, "t", ast.ContentHTML)
	raw := ast.NewRawTextNode(ids, loc, `<a href=xid=y>`)
	raw.MarkJoinedWhitespace(9) // between the value `x` and the name `id`
	file.AddChildren(raw)

	errs := report.New()
	rw := New([]string{"stricthtml"}, errs)
	rw.Run(file, ids)

	require.False(t, errs.HasErrors())
	require.Len(t, file.Children(), 1)
	open, ok := file.Children()[0].(*ast.HtmlOpenTagNode)
	require.True(t, ok)
	require.Len(t, open.Children(), 2)

	first, ok := open.Children()[0].(*ast.HtmlAttributeNode)
	require.True(t, ok)
	firstName, ok := first.Name.(*ast.RawTextNode)
	require.True(t, ok)
	assert.Equal(t, "href", firstName.Text)
	require.NotNil(t, first.Value)
	require.Len(t, first.Value.Children(), 1)
	firstVal, ok := first.Value.Children()[0].(*ast.RawTextNode)
	require.True(t, ok)
	assert.Equal(t, "x", firstVal.Text)

	second, ok := open.Children()[1].(*ast.HtmlAttributeNode)
	require.True(t, ok)
	secondName, ok := second.Name.(*ast.RawTextNode)
	require.True(t, ok)
	assert.Equal(t, "id", secondName.Text)
}

func TestAttributesKindBlock(t *testing.T) {
	ids := ast.NewIdGenerator()
	begin := ast.Point{Filename: "t.soy", Line: 1, Column: 1}
	loc := ast.NewSourceLocation(begin, begin)
	file := ast.NewSoyFileNode(ids, loc, "t", ast.ContentAttributes)
	file.AddChildren(ast.NewRawTextNode(ids, loc, `href="x" id="y"`))

	errs := report.New()
	rw := New([]string{"stricthtml"}, errs)
	rw.Run(file, ids)

	require.False(t, errs.HasErrors())
	children := file.Children()
	require.Len(t, children, 2)
	for i, want := range []string{"href", "id"} {
		attr, ok := children[i].(*ast.HtmlAttributeNode)
		require.True(t, ok)
		name, ok := attr.Name.(*ast.RawTextNode)
		require.True(t, ok)
		assert.Equal(t, want, name.Text)
	}
}

func TestDynamicTagName(t *testing.T) {
	ids := ast.NewIdGenerator()
	begin := ast.Point{Filename: "t.soy", Line: 1, Column: 1}
	loc := ast.NewSourceLocation(begin, begin)
	file := ast.NewSoyFileNode(ids, loc, "t", ast.ContentHTML)
	file.AddChildren(ast.NewRawTextNode(ids, loc, `<`))
	file.AddChildren(ast.NewPrintNode(ids, loc, ast.NewVarRefNode("tag", false, loc)))
	file.AddChildren(ast.NewRawTextNode(ids, loc, `>`))

	errs := report.New()
	rw := New([]string{"stricthtml"}, errs)
	rw.Run(file, ids)

	require.False(t, errs.HasErrors())
	require.Len(t, file.Children(), 1)
	open, ok := file.Children()[0].(*ast.HtmlOpenTagNode)
	require.True(t, ok)
	assert.False(t, open.Tag.IsStatic())
	_, ok = open.Tag.Dynamic.(*ast.VarRefNode)
	assert.True(t, ok)
}

func TestDeterminism(t *testing.T) {
	file1, errs1 := rewrite(t, `<div class="box"><span>hi</span></div>`)
	file2, errs2 := rewrite(t, `<div class="box"><span>hi</span></div>`)
	require.False(t, errs1.HasErrors())
	require.False(t, errs2.HasErrors())
	assert.Equal(t, ast.Count(file1), ast.Count(file2))
	assert.Len(t, file2.Children(), len(file1.Children()))
}

func TestIdempotence(t *testing.T) {
	file, ids := newFile(t, `<div class="box">hi</div>`)
	errs := report.New()
	rw := New([]string{"stricthtml"}, errs)
	rw.Run(file, ids)
	require.False(t, errs.HasErrors())
	count := ast.Count(file)

	rw.Run(file, ids)
	require.False(t, errs.HasErrors())
	assert.Equal(t, count, ast.Count(file), "second pass must not restructure the tree")
}

func TestDryRunDiscardsEdits(t *testing.T) {
	ids := ast.NewIdGenerator()
	begin := ast.Point{Filename: "t.soy", Line: 1, Column: 1}
	loc := ast.NewSourceLocation(begin, begin)
	file := ast.NewSoyFileNode(ids, loc, "t", ast.ContentHTML)
	file.AddChildren(ast.NewRawTextNode(ids, loc, `<a href="x">hi</a>`))

	errs := report.New()
	rw := New(nil, errs) // no "stricthtml": dry-run
	rw.Run(file, ids)

	require.False(t, errs.HasErrors())
	require.Len(t, file.Children(), 1)
	_, ok := file.Children()[0].(*ast.RawTextNode)
	assert.True(t, ok, "dry-run must not mutate the file")
}

func TestReconcileHelper(t *testing.T) {
	s, ok := reconcile([]State{Pcdata, Pcdata})
	assert.True(t, ok)
	assert.Equal(t, Pcdata, s)

	s, ok = reconcile([]State{AfterAttributeName, BeforeAttributeName})
	assert.True(t, ok)
	assert.Equal(t, AfterTagNameOrAttribute, s)

	s, ok = reconcile([]State{BeforeAttributeValue, UnquotedAttrValue, AfterTagNameOrAttribute})
	assert.True(t, ok)
	assert.Equal(t, AfterTagNameOrAttribute, s)

	_, ok = reconcile([]State{Pcdata, BeforeAttributeName})
	assert.False(t, ok)
}
