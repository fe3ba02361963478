// Package ast defines the abstract syntax trees shared by the expression
// parser and the HTML rewriter: source locations, the expression sum type,
// the template/HTML node slice, and the id generator that backs both.
package ast

import (
	"fmt"

	"github.com/alecthomas/participle/v2/lexer"
)

// Point is a single position in a source file. It mirrors participle's
// lexer.Position field for field, so a SourceLocation can be built directly
// from whatever a participle-based outer file parser hands us.
type Point struct {
	Filename string
	Offset   int
	Line     int
	Column   int
}

// PointFromLexer converts a participle lexer.Position into a Point.
func PointFromLexer(p lexer.Position) Point {
	return Point{Filename: p.Filename, Offset: p.Offset, Line: p.Line, Column: p.Column}
}

// Before reports whether p sorts strictly before o within the same file.
func (p Point) Before(o Point) bool {
	return p.Offset < o.Offset
}

func (p Point) String() string {
	return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column)
}

// SourceLocation is an immutable span between two Points in the same file.
type SourceLocation struct {
	Begin Point
	End   Point
}

// NewSourceLocation returns the span [begin, end).
func NewSourceLocation(begin, end Point) SourceLocation {
	return SourceLocation{Begin: begin, End: end}
}

// PointLocation returns a zero-width span at p, used for single-character
// diagnostics (e.g. the location of an unexpected token).
func PointLocation(p Point) SourceLocation {
	return SourceLocation{Begin: p, End: p}
}

// Extend returns the span covering both a and b.
func Extend(a, b SourceLocation) SourceLocation {
	begin, end := a.Begin, a.End
	if b.Begin.Offset < begin.Offset {
		begin = b.Begin
	}
	if b.End.Offset > end.Offset {
		end = b.End
	}
	return SourceLocation{Begin: begin, End: end}
}

func (l SourceLocation) String() string {
	if l.Begin == l.End {
		return l.Begin.String()
	}
	return fmt.Sprintf("%s-%d:%d", l.Begin, l.End.Line, l.End.Column)
}

// HasLocation is the capability trait every AST node implements.
type HasLocation interface {
	Location() SourceLocation
}

// HasId is implemented by every template/HTML node; the id comes from a
// per-file IdGenerator.
type HasId interface {
	NodeId() uint32
}
