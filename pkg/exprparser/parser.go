// Package exprparser parses template expressions: a participle-based
// tokenizer (lexer.go) plus a hand-written precedence-cascade
// recursive-descent parser, one function per precedence level, that turns a
// bracket-trimmed expression substring into an ast.ExprNode.
package exprparser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gaarutyunov/tofu/pkg/ast"
	"github.com/gaarutyunov/tofu/pkg/report"
)

// maxNestingDepth bounds recursive descent against pathological input such
// as thousands of nested parentheses.
const maxNestingDepth = 1024

// parser holds the token stream and reporting sink for one call to
// ParseExpression/ParseExpressionList/ParseVariable. It is not reused across
// calls.
type parser struct {
	items []item
	pos   int
	errs  report.ErrorReporter
	depth int
}

// ParseExpression parses one expression. src is already bracket-trimmed;
// base is the location of its first byte within the enclosing file, used to
// translate token offsets back into file-relative SourceLocations.
//
// A structurally valid node is never replaced with the error sentinel just
// because a semantic-local diagnostic (integer range, duplicate proto
// field) was reported against it: an out-of-range literal still yields
// Int(0), with the problem visible only through errs. ErrorNode is reserved
// for the cases where no node could be built at all.
func ParseExpression(filename, src string, base ast.Point, errs report.ErrorReporter) ast.ExprNode {
	p := &parser{items: tokenize(filename, src, base), errs: errs}
	if len(p.items) == 0 {
		return ast.NewErrorNode(ast.PointLocation(base))
	}
	node := p.parseTernary()
	if !p.atEOF() {
		p.errorf(p.cur().pos, report.GenericUnexpectedChar, p.curText())
	}
	return node
}

// ParseExpressionList parses a comma-separated list of expressions with no
// surrounding brackets. A non-empty return implies no error was reported,
// and any error implies an empty return.
func ParseExpressionList(filename, src string, base ast.Point, errs report.ErrorReporter) []ast.ExprNode {
	p := &parser{items: tokenize(filename, src, base), errs: errs}
	checkpoint := errs.Checkpoint()
	var list []ast.ExprNode
	if !p.atEOF() {
		list = append(list, p.parseTernary())
		for p.match(tComma) {
			if p.peekIsCommaThenEnd() {
				break
			}
			list = append(list, p.parseTernary())
		}
	}
	if !p.atEOF() {
		p.errorf(p.cur().pos, report.GenericUnexpectedChar, p.curText())
	}
	if errs.ErrorsSince(checkpoint) {
		return nil
	}
	return list
}

// ParseVariable is like ParseExpression but only a bare `$name` or
// `$ij.name` is accepted, and the unqualified `$ij` form is rejected with a
// dedicated diagnostic.
func ParseVariable(filename, src string, base ast.Point, errs report.ErrorReporter) *ast.VarRefNode {
	p := &parser{items: tokenize(filename, src, base), errs: errs}
	checkpoint := errs.Checkpoint()
	v := p.parseVarRefOnly()
	if !p.atEOF() {
		p.errorf(p.cur().pos, report.GenericUnexpectedChar, p.curText())
	}
	if errs.ErrorsSince(checkpoint) {
		loc := ast.PointLocation(base)
		if v != nil {
			loc = v.Location()
		}
		return ast.NewVarRefNode("", false, loc)
	}
	return v
}

func (p *parser) parseVarRefOnly() *ast.VarRefNode {
	tok := p.cur()
	switch tok.kind {
	case tDollarIJ:
		p.advance()
		if p.match(tDot) {
			name := p.expectIdent()
			return ast.NewVarRefNode(name, true, ast.NewSourceLocation(tok.pos, p.prevEnd()))
		}
		p.errorf(tok.pos, report.InvalidVarNameIJ)
		return ast.NewVarRefNode("", false, ast.PointLocation(tok.pos))
	case tDollarIdent:
		p.advance()
		return ast.NewVarRefNode(strings.TrimPrefix(tok.val, "$"), false, ast.PointLocation(tok.pos))
	default:
		p.errorf(tok.pos, report.GenericUnexpectedChar, p.curText())
		return ast.NewVarRefNode("", false, ast.PointLocation(tok.pos))
	}
}

// --- precedence cascade, lowest to highest ---

// Level 1: `?:` (null-coalescing) and `? :` (ternary), right-associative.
func (p *parser) parseTernary() ast.ExprNode {
	cond := p.parseOr()
	switch {
	case p.match(tQuestionColon):
		rhs := p.parseTernary()
		return ast.NewOperatorNode(ast.OpNullCoalesce, []ast.ExprNode{cond, rhs}, ast.Extend(cond.Location(), rhs.Location()))
	case p.match(tQuestion):
		then := p.parseTernary()
		if !p.expect(tColon, report.GenericUnexpectedChar) {
			return ast.NewErrorNode(ast.Extend(cond.Location(), then.Location()))
		}
		els := p.parseTernary()
		return ast.NewOperatorNode(ast.OpTernary, []ast.ExprNode{cond, then, els}, ast.Extend(cond.Location(), els.Location()))
	}
	return cond
}

// Level 2: `or`, left-associative.
func (p *parser) parseOr() ast.ExprNode {
	lhs := p.parseAnd()
	for {
		if p.check(tLegacyOrOr) {
			p.errorf(p.cur().pos, report.GenericUnexpectedChar, "'||' is not a Soy operator, use 'or'")
		} else if !p.check(tKeywordOr) {
			return lhs
		}
		p.advance()
		rhs := p.parseAnd()
		lhs = ast.NewOperatorNode(ast.OpOr, []ast.ExprNode{lhs, rhs}, ast.Extend(lhs.Location(), rhs.Location()))
	}
}

// Level 3: `and`, left-associative.
func (p *parser) parseAnd() ast.ExprNode {
	lhs := p.parseEquality()
	for {
		if p.check(tLegacyAndAnd) {
			p.errorf(p.cur().pos, report.GenericUnexpectedChar, "'&&' is not a Soy operator, use 'and'")
		} else if !p.check(tKeywordAnd) {
			return lhs
		}
		p.advance()
		rhs := p.parseEquality()
		lhs = ast.NewOperatorNode(ast.OpAnd, []ast.ExprNode{lhs, rhs}, ast.Extend(lhs.Location(), rhs.Location()))
	}
}

// Level 4: `== !=`, left-associative.
func (p *parser) parseEquality() ast.ExprNode {
	lhs := p.parseRelational()
	for {
		var op ast.OpKind
		switch {
		case p.match(tEq):
			op = ast.OpEq
		case p.match(tNeq):
			op = ast.OpNeq
		default:
			return lhs
		}
		rhs := p.parseRelational()
		lhs = ast.NewOperatorNode(op, []ast.ExprNode{lhs, rhs}, ast.Extend(lhs.Location(), rhs.Location()))
	}
}

// Level 5: `< > <= >=`, left-associative.
func (p *parser) parseRelational() ast.ExprNode {
	lhs := p.parseAdditive()
	for {
		var op ast.OpKind
		switch {
		case p.match(tLe):
			op = ast.OpLe
		case p.match(tGe):
			op = ast.OpGe
		case p.match(tLt):
			op = ast.OpLt
		case p.match(tGt):
			op = ast.OpGt
		default:
			return lhs
		}
		rhs := p.parseAdditive()
		lhs = ast.NewOperatorNode(op, []ast.ExprNode{lhs, rhs}, ast.Extend(lhs.Location(), rhs.Location()))
	}
}

// Level 6: binary `+ -`, left-associative.
func (p *parser) parseAdditive() ast.ExprNode {
	lhs := p.parseMultiplicative()
	for {
		var op ast.OpKind
		switch {
		case p.match(tPlus):
			op = ast.OpAdd
		case p.match(tMinus):
			op = ast.OpSub
		default:
			return lhs
		}
		rhs := p.parseMultiplicative()
		lhs = ast.NewOperatorNode(op, []ast.ExprNode{lhs, rhs}, ast.Extend(lhs.Location(), rhs.Location()))
	}
}

// Level 7: `* / %`, left-associative.
func (p *parser) parseMultiplicative() ast.ExprNode {
	lhs := p.parseUnary()
	for {
		var op ast.OpKind
		switch {
		case p.match(tStar):
			op = ast.OpMul
		case p.match(tSlash):
			op = ast.OpDiv
		case p.match(tPercent):
			op = ast.OpMod
		default:
			return lhs
		}
		rhs := p.parseUnary()
		lhs = ast.NewOperatorNode(op, []ast.ExprNode{lhs, rhs}, ast.Extend(lhs.Location(), rhs.Location()))
	}
}

// Level 8: unary `-` and `not`, right-associative (one level of recursion
// into itself handles chains like `not not $a`).
func (p *parser) parseUnary() ast.ExprNode {
	if p.match(tMinus) {
		tok := p.prev()
		operand := p.parseUnary()
		return ast.NewOperatorNode(ast.OpNeg, []ast.ExprNode{operand}, ast.NewSourceLocation(tok.pos, operand.Location().End))
	}
	if p.check(tKeywordNot) || p.check(tLegacyBang) {
		if p.check(tLegacyBang) {
			p.errorf(p.cur().pos, report.GenericUnexpectedChar, "'!' is not a Soy operator, use 'not'")
		}
		p.advance()
		tok := p.prev()
		operand := p.parseUnary()
		return ast.NewOperatorNode(ast.OpNot, []ast.ExprNode{operand}, ast.NewSourceLocation(tok.pos, operand.Location().End))
	}
	return p.parseAccess()
}

// Level 9: `.` `?.` `[ ]` `?[ ]`, left-associative.
func (p *parser) parseAccess() ast.ExprNode {
	expr := p.parsePrimary()
	for {
		switch {
		case p.match(tDot):
			name := p.expectIdent()
			expr = ast.NewFieldAccessNode(expr, name, false, ast.NewSourceLocation(expr.Location().Begin, p.prevEnd()))
		case p.match(tNullSafeDot):
			name := p.expectIdent()
			expr = ast.NewFieldAccessNode(expr, name, true, ast.NewSourceLocation(expr.Location().Begin, p.prevEnd()))
		case p.match(tLBracket):
			expr = p.finishItemAccess(expr, false)
		case p.match(tNullSafeBracket):
			expr = p.finishItemAccess(expr, true)
		default:
			return expr
		}
	}
}

func (p *parser) finishItemAccess(parent ast.ExprNode, nullSafe bool) ast.ExprNode {
	key := p.parseTernary()
	if !p.expect(tRBracket, report.GenericUnexpectedChar) {
		return ast.NewErrorNode(ast.Extend(parent.Location(), key.Location()))
	}
	return ast.NewItemAccessNode(parent, key, nullSafe, ast.NewSourceLocation(parent.Location().Begin, p.prevEnd()))
}

// parsePrimary matches, in order, a parenthesized expression, a variable
// reference, an identifier-prefixed form (global/function-call/proto-init),
// a collection literal, or a primitive literal.
func (p *parser) parsePrimary() ast.ExprNode {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxNestingDepth {
		tok := p.cur()
		p.errorf(tok.pos, report.GenericUnexpectedChar, "expression nested too deeply")
		p.advance()
		return ast.NewErrorNode(ast.PointLocation(tok.pos))
	}

	tok := p.cur()
	switch tok.kind {
	case tLParen:
		p.advance()
		inner := p.parseTernary()
		loc := ast.NewSourceLocation(tok.pos, inner.Location().End)
		if p.expect(tRParen, report.GenericUnexpectedChar) {
			loc = ast.NewSourceLocation(tok.pos, p.prevEnd())
		}
		return reLocate(inner, loc)
	case tDollarIJ, tDollarIdent:
		return p.parseVarRefOnly()
	case tIdent:
		return p.parseIdentPrefixed()
	case tLBracket:
		return p.parseCollectionLiteral()
	case tKeywordNull:
		p.advance()
		return ast.NewNullNode(ast.PointLocation(tok.pos))
	case tKeywordTrue:
		p.advance()
		return ast.NewBoolNode(true, ast.PointLocation(tok.pos))
	case tKeywordFalse:
		p.advance()
		return ast.NewBoolNode(false, ast.PointLocation(tok.pos))
	case tDecInt:
		p.advance()
		return p.parseDecInt(tok)
	case tHexInt:
		p.advance()
		return p.parseHexInt(tok)
	case tFloat:
		p.advance()
		f, _ := strconv.ParseFloat(tok.val, 64)
		return ast.NewFloatNode(f, ast.PointLocation(tok.pos))
	case tString:
		p.advance()
		return ast.NewStrNode(unescapeString(tok.val), ast.PointLocation(tok.pos))
	default:
		p.errorf(tok.pos, report.GenericUnexpectedChar, p.curText())
		p.advance()
		return ast.NewErrorNode(ast.PointLocation(tok.pos))
	}
}

// reLocate returns a shallow copy of n whose location is loc, used so a
// parenthesized subexpression reports the full `(...)` span rather than the
// inner expression's own span.
func reLocate(n ast.ExprNode, loc ast.SourceLocation) ast.ExprNode {
	switch v := n.(type) {
	case *ast.ErrorNode:
		return ast.NewErrorNode(loc)
	default:
		_ = v
		return n
	}
}

// parseIdentPrefixed disambiguates global/function-call/proto-init: an
// identifier (possibly dotted, for globals) followed by `(` starts either a
// proto-init (first arg has shape `IDENT : expr`) or a positional function
// call; a name with no trailing `(` is a Global.
func (p *parser) parseIdentPrefixed() ast.ExprNode {
	start := p.cur()
	name := p.expectIdent()
	for p.check(tDot) && p.checkAt(1, tIdent) {
		p.advance()
		name += "." + p.expectIdent()
	}
	if !p.match(tLParen) {
		return ast.NewGlobalNode(name, ast.NewSourceLocation(start.pos, p.prevEnd()))
	}
	if p.check(tRParen) {
		p.advance()
		return ast.NewFunctionCallNode(name, nil, ast.NewSourceLocation(start.pos, p.prevEnd()))
	}
	if p.looksLikeProtoField() {
		return p.parseProtoInit(name, start.pos)
	}
	var args []ast.ExprNode
	args = append(args, p.parseTernary())
	for p.match(tComma) {
		if p.check(tRParen) {
			break
		}
		args = append(args, p.parseTernary())
	}
	p.expect(tRParen, report.GenericUnexpectedChar)
	return ast.NewFunctionCallNode(name, args, ast.NewSourceLocation(start.pos, p.prevEnd()))
}

// looksLikeProtoField reports whether the upcoming tokens are `IDENT :`,
// the lookahead that tells a proto-init apart from a function call.
func (p *parser) looksLikeProtoField() bool {
	return p.check(tIdent) && p.checkAt(1, tColon)
}

func (p *parser) parseProtoInit(name string, start ast.Point) ast.ExprNode {
	var fields []ast.ProtoField
	seen := map[string]bool{}
	for {
		fieldTok := p.cur()
		if fieldTok.kind != tIdent {
			p.errorf(fieldTok.pos, report.InvalidParamName, p.curText())
			break
		}
		fieldName := p.expectIdent()
		if !p.expect(tColon, report.GenericUnexpectedChar) {
			break
		}
		value := p.parseTernary()
		if seen[fieldName] {
			p.errorf(fieldTok.pos, report.DuplicateParamName, fieldName)
		}
		seen[fieldName] = true
		fields = append(fields, ast.ProtoField{Name: fieldName, Value: value})
		if !p.match(tComma) {
			break
		}
		if p.check(tRParen) {
			break
		}
	}
	p.expect(tRParen, report.GenericUnexpectedChar)
	return ast.NewProtoInitNode(name, fields, ast.NewSourceLocation(start, p.prevEnd()))
}

// parseCollectionLiteral handles `[` ... `]`: empty map `[:]`, empty list
// `[]`, a list `expr (, expr)*`, or a map `expr : expr (, expr : expr)*`,
// each with an optional trailing comma disambiguated by a two-token
// lookahead.
func (p *parser) parseCollectionLiteral() ast.ExprNode {
	start := p.cur()
	p.advance() // consume '['
	if p.check(tColon) && p.checkAt(1, tRBracket) {
		p.advance()
		p.advance()
		return ast.NewMapLiteralNode(nil, ast.NewSourceLocation(start.pos, p.prevEnd()))
	}
	if p.check(tRBracket) {
		p.advance()
		return ast.NewListLiteralNode(nil, ast.NewSourceLocation(start.pos, p.prevEnd()))
	}

	first := p.parseTernaryRejectingBareIdentKey()
	if p.match(tColon) {
		firstVal := p.parseTernary()
		pairs := []ast.MapPair{{Key: first, Value: firstVal}}
		for p.match(tComma) {
			if p.peekIsCommaThenEnd() || p.check(tRBracket) {
				break
			}
			k := p.parseTernaryRejectingBareIdentKey()
			if !p.expect(tColon, report.GenericUnexpectedChar) {
				break
			}
			v := p.parseTernary()
			pairs = append(pairs, ast.MapPair{Key: k, Value: v})
		}
		p.expect(tRBracket, report.GenericUnexpectedChar)
		return ast.NewMapLiteralNode(pairs, ast.NewSourceLocation(start.pos, p.prevEnd()))
	}

	items := []ast.ExprNode{first}
	for p.match(tComma) {
		if p.check(tRBracket) {
			break
		}
		items = append(items, p.parseTernary())
	}
	p.expect(tRBracket, report.GenericUnexpectedChar)
	return ast.NewListLiteralNode(items, ast.NewSourceLocation(start.pos, p.prevEnd()))
}

// parseTernaryRejectingBareIdentKey parses one collection element, and if it
// turns out to be a bare identifier immediately followed by `:` (a map key
// written without quotes), reports SINGLE_IDENTIFIER_KEY_IN_MAP_LITERAL
// with a hint to quote the key or parenthesize it as a global.
func (p *parser) parseTernaryRejectingBareIdentKey() ast.ExprNode {
	if p.check(tIdent) && p.checkAt(1, tColon) {
		tok := p.cur()
		p.errorf(tok.pos, report.SingleIdentifierKeyInMapLiteral, tok.val,
			"quote the key or parenthesize it as a global")
	}
	return p.parseTernary()
}

func (p *parser) parseDecInt(tok item) ast.ExprNode {
	v, err := strconv.ParseInt(tok.val, 10, 64)
	if err != nil || v > (1<<53)-1 || v < -(1<<53)+1 {
		p.errorf(tok.pos, report.IntegerOutOfRange, tok.val)
		return ast.NewIntNode(0, ast.PointLocation(tok.pos))
	}
	return ast.NewIntNode(v, ast.PointLocation(tok.pos))
}

func (p *parser) parseHexInt(tok item) ast.ExprNode {
	digits := strings.TrimPrefix(strings.TrimPrefix(tok.val, "0x"), "0X")
	v, err := strconv.ParseUint(digits, 16, 64)
	if err != nil || v > (1<<53)-1 {
		p.errorf(tok.pos, report.IntegerOutOfRange, tok.val)
		return ast.NewIntNode(0, ast.PointLocation(tok.pos))
	}
	return ast.NewIntNode(int64(v), ast.PointLocation(tok.pos))
}

// --- token stream helpers ---

func (p *parser) cur() item {
	if p.pos >= len(p.items) {
		return item{kind: tEOF}
	}
	return p.items[p.pos]
}

func (p *parser) prev() item {
	if p.pos == 0 {
		return item{}
	}
	return p.items[p.pos-1]
}

// prevEnd returns the point just past the last consumed token.
func (p *parser) prevEnd() ast.Point {
	tok := p.prev()
	pt := tok.pos
	pt.Offset += len(tok.val)
	pt.Column += len(tok.val)
	return pt
}

func (p *parser) atEOF() bool { return p.cur().kind == tEOF }

func (p *parser) advance() item {
	tok := p.cur()
	if p.pos < len(p.items) {
		p.pos++
	}
	return tok
}

func (p *parser) check(k tokenKind) bool { return p.cur().kind == k }

func (p *parser) checkAt(offset int, k tokenKind) bool {
	i := p.pos + offset
	if i >= len(p.items) {
		return k == tEOF
	}
	return p.items[i].kind == k
}

func (p *parser) match(k tokenKind) bool {
	if p.check(k) {
		p.advance()
		return true
	}
	return false
}

// peekIsCommaThenEnd reports whether the token just consumed as a comma is
// immediately followed by the collection terminator, i.e. it was a trailing
// comma rather than a separator before an element.
func (p *parser) peekIsCommaThenEnd() bool {
	return p.check(tRBracket) || p.check(tRParen)
}

func (p *parser) expect(k tokenKind, onFail report.Kind) bool {
	if p.match(k) {
		return true
	}
	p.errorf(p.cur().pos, onFail, p.curText())
	return false
}

func (p *parser) expectIdent() string {
	tok := p.cur()
	switch tok.kind {
	case tIdent, tKeywordNull, tKeywordTrue, tKeywordFalse, tKeywordAnd, tKeywordOr, tKeywordNot:
		p.advance()
		return tok.val
	default:
		p.errorf(tok.pos, report.InvalidIdentifier, p.curText())
		return ""
	}
}

func (p *parser) curText() string {
	tok := p.cur()
	if tok.kind == tEOF {
		return "<eof>"
	}
	return tok.val
}

func (p *parser) errorf(pos ast.Point, kind report.Kind, args ...any) {
	p.errs.Report(ast.PointLocation(pos), kind, args...)
}

func unescapeString(raw string) string {
	if len(raw) < 2 {
		return raw
	}
	inner := raw[1 : len(raw)-1]
	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		if c != '\\' || i == len(inner)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch inner[i] {
		case '\\':
			b.WriteByte('\\')
		case '\'':
			b.WriteByte('\'')
		case '"':
			b.WriteByte('"')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'u':
			if i+4 < len(inner) {
				if n, err := strconv.ParseUint(inner[i+1:i+5], 16, 32); err == nil {
					b.WriteRune(rune(n))
					i += 4
					continue
				}
			}
			b.WriteString(fmt.Sprintf("\\u%s", inner[i+1:]))
		default:
			b.WriteByte('\\')
			b.WriteByte(inner[i])
		}
	}
	return b.String()
}
