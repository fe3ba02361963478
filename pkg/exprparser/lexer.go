package exprparser

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/gaarutyunov/tofu/pkg/ast"
)

// tokenKind names a lexical category. The tokenizer itself is built on
// participle/v2/lexer.MustStateful, used here purely for tokenization; a
// hand-written precedence cascade turns the tokens into an ast.ExprNode.
type tokenKind int

const (
	tEOF tokenKind = iota
	tKeywordNull
	tKeywordTrue
	tKeywordFalse
	tKeywordAnd
	tKeywordOr
	tKeywordNot
	tHexInt
	tFloat
	tDecInt
	tString
	tDollarIJ
	tDollarIdent
	tIdent
	tQuestionColon // ?:
	tEq
	tNeq
	tLe
	tGe
	tLt
	tGt
	tNullSafeDot    // ?.
	tNullSafeBracket // ?[
	tQuestion
	tColon
	tPlus
	tMinus
	tStar
	tSlash
	tPercent
	tDot
	tLBracket
	tRBracket
	tComma
	tLParen
	tRParen
	tLegacyAndAnd
	tLegacyOrOr
	tLegacyBang
	tLegacyQuote
	tUnknown
)

// Rules are ordered so the more specific pattern always wins: $ij before
// $ident, the two-character operators before their single-character
// prefixes, and Float before DecInt. Float and scientific notation require
// a lowercase `e`; hex requires a lowercase `x`.
var exprRules = lexer.Rules{
	"Root": {
		{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
		{Name: "Null", Pattern: `null\b`},
		{Name: "True", Pattern: `true\b`},
		{Name: "False", Pattern: `false\b`},
		{Name: "And", Pattern: `and\b`},
		{Name: "Or", Pattern: `or\b`},
		{Name: "Not", Pattern: `not\b`},
		{Name: "HexInt", Pattern: `0x[0-9a-fA-F]+`},
		{Name: "Float", Pattern: `(\d+\.\d+(e[+-]?\d+)?|\d+e[+-]?\d+)`},
		{Name: "DecInt", Pattern: `\d+`},
		{Name: "String", Pattern: `'(?:\\.|[^'\\])*'`},
		{Name: "DollarIJ", Pattern: `\$ij\b`},
		{Name: "DollarIdent", Pattern: `\$[A-Za-z_][A-Za-z_0-9]*`},
		{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z_0-9]*`},
		{Name: "QuestionColon", Pattern: `\?:`},
		{Name: "NullSafeDot", Pattern: `\?\.`},
		{Name: "NullSafeBracket", Pattern: `\?\[`},
		{Name: "Eq", Pattern: `==`},
		{Name: "Neq", Pattern: `!=`},
		{Name: "Le", Pattern: `<=`},
		{Name: "Ge", Pattern: `>=`},
		{Name: "LegacyAndAnd", Pattern: `&&`},
		{Name: "LegacyOrOr", Pattern: `\|\|`},
		{Name: "LegacyBang", Pattern: `!`},
		{Name: "Lt", Pattern: `<`},
		{Name: "Gt", Pattern: `>`},
		{Name: "Question", Pattern: `\?`},
		{Name: "Colon", Pattern: `:`},
		{Name: "Plus", Pattern: `\+`},
		{Name: "Minus", Pattern: `-`},
		{Name: "Star", Pattern: `\*`},
		{Name: "Slash", Pattern: `/`},
		{Name: "Percent", Pattern: `%`},
		{Name: "Dot", Pattern: `\.`},
		{Name: "LBracket", Pattern: `\[`},
		{Name: "RBracket", Pattern: `\]`},
		{Name: "Comma", Pattern: `,`},
		{Name: "LParen", Pattern: `\(`},
		{Name: "RParen", Pattern: `\)`},
		{Name: "LegacyQuote", Pattern: `"`},
	},
}

var exprLexer = lexer.MustStateful(exprRules)

var kindByName = map[string]tokenKind{
	"Null": tKeywordNull, "True": tKeywordTrue, "False": tKeywordFalse,
	"And": tKeywordAnd, "Or": tKeywordOr, "Not": tKeywordNot,
	"HexInt": tHexInt, "Float": tFloat, "DecInt": tDecInt, "String": tString,
	"DollarIJ": tDollarIJ, "DollarIdent": tDollarIdent, "Ident": tIdent,
	"QuestionColon": tQuestionColon, "NullSafeDot": tNullSafeDot, "NullSafeBracket": tNullSafeBracket,
	"Eq": tEq, "Neq": tNeq, "Le": tLe, "Ge": tGe, "Lt": tLt, "Gt": tGt,
	"Question": tQuestion, "Colon": tColon, "Plus": tPlus, "Minus": tMinus,
	"Star": tStar, "Slash": tSlash, "Percent": tPercent, "Dot": tDot,
	"LBracket": tLBracket, "RBracket": tRBracket, "Comma": tComma,
	"LParen": tLParen, "RParen": tRParen,
	"LegacyAndAnd": tLegacyAndAnd, "LegacyOrOr": tLegacyOrOr, "LegacyBang": tLegacyBang,
	"LegacyQuote": tLegacyQuote,
}

// symbolKinds maps every lexer.TokenType participle assigned back to our
// tokenKind, built once against the live Symbols() table rather than
// hard-coded ints, since participle is free to renumber symbols across
// versions.
var symbolKinds = buildSymbolKinds()

func buildSymbolKinds() map[lexer.TokenType]tokenKind {
	m := make(map[lexer.TokenType]tokenKind)
	for name, typ := range exprLexer.Symbols() {
		if k, ok := kindByName[name]; ok {
			m[typ] = k
		}
	}
	return m
}

// item is one lexed token together with its source point.
type item struct {
	kind tokenKind
	val  string
	pos  ast.Point
}

// tokenize lexes src in full, starting at base (the point just past the
// bracket the outer tag parser trimmed). Whitespace tokens are elided. An
// unrecognized character yields a single tUnknown item rather than an error
// return, so the parser can report GENERIC_UNEXPECTED_CHAR at the offending
// location instead of losing position information to a bare lexer error.
func tokenize(filename, src string, base ast.Point) []item {
	lx, err := exprLexer.Lex(filename, strings.NewReader(src))
	if err != nil {
		return []item{{kind: tUnknown, val: src, pos: base}}
	}
	var items []item
	for {
		tok, err := lx.Next()
		if err != nil {
			items = append(items, item{kind: tUnknown, val: err.Error(), pos: base})
			break
		}
		if tok.EOF() {
			items = append(items, item{kind: tEOF, pos: offsetPoint(base, tok)})
			break
		}
		if tok.Type == exprLexer.Symbols()["Whitespace"] {
			continue
		}
		k, ok := symbolKinds[tok.Type]
		if !ok {
			k = tUnknown
		}
		items = append(items, item{kind: k, val: tok.Value, pos: offsetPoint(base, tok)})
	}
	return items
}

// offsetPoint translates a lexer.Token position (relative to the expression
// substring) into an ast.Point relative to base, the point the outer parser
// supplied for the start of that substring.
func offsetPoint(base ast.Point, tok lexer.Token) ast.Point {
	p := base
	p.Offset += tok.Pos.Offset
	if tok.Pos.Line > 1 {
		p.Line = base.Line + tok.Pos.Line - 1
		p.Column = tok.Pos.Column
	} else {
		p.Column = base.Column + tok.Pos.Column - 1
	}
	return p
}
