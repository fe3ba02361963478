package exprparser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gaarutyunov/tofu/pkg/ast"
)

// SourceString renders node back to expression syntax such that re-parsing
// the result yields a structurally equal tree. It is a plain recursive
// printer, not an ast.ExprVisitor, since every case returns a string and
// there is no traversal state to share.
func SourceString(node ast.ExprNode) string {
	var b strings.Builder
	writeExpr(&b, node, 0)
	return b.String()
}

// writeExpr parenthesizes an operand whenever its own precedence is lower
// than outerPrec, so re-parsing the rendered text reproduces the same tree.
func writeExpr(b *strings.Builder, node ast.ExprNode, outerPrec uint8) {
	switch n := node.(type) {
	case *ast.NullNode:
		b.WriteString("null")
	case *ast.BoolNode:
		if n.Value {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case *ast.IntNode:
		b.WriteString(strconv.FormatInt(n.Value, 10))
	case *ast.FloatNode:
		b.WriteString(strconv.FormatFloat(n.Value, 'g', -1, 64))
	case *ast.StrNode:
		b.WriteString(quoteString(n.Value))
	case *ast.VarRefNode:
		if n.IsInjected {
			b.WriteString("$ij.")
			b.WriteString(n.Name)
		} else {
			b.WriteString("$")
			b.WriteString(n.Name)
		}
	case *ast.GlobalNode:
		b.WriteString(n.Name)
	case *ast.FieldAccessNode:
		writeExpr(b, n.Parent, 9)
		if n.NullSafe {
			b.WriteString("?.")
		} else {
			b.WriteString(".")
		}
		b.WriteString(n.Field)
	case *ast.ItemAccessNode:
		writeExpr(b, n.Parent, 9)
		if n.NullSafe {
			b.WriteString("?[")
		} else {
			b.WriteString("[")
		}
		writeExpr(b, n.Key, 0)
		b.WriteString("]")
	case *ast.OperatorNode:
		writeOperator(b, n, outerPrec)
	case *ast.FunctionCallNode:
		b.WriteString(n.Name)
		b.WriteString("(")
		for i, a := range n.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			writeExpr(b, a, 0)
		}
		b.WriteString(")")
	case *ast.ProtoInitNode:
		b.WriteString(n.Name)
		b.WriteString("(")
		for i, f := range n.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(": ")
			writeExpr(b, f.Value, 0)
		}
		b.WriteString(")")
	case *ast.ListLiteralNode:
		b.WriteString("[")
		for i, it := range n.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			writeExpr(b, it, 0)
		}
		b.WriteString("]")
	case *ast.MapLiteralNode:
		b.WriteString("[")
		if len(n.Pairs) == 0 {
			b.WriteString(":")
		} else {
			for i, pair := range n.Pairs {
				if i > 0 {
					b.WriteString(", ")
				}
				writeExpr(b, pair.Key, 0)
				b.WriteString(": ")
				writeExpr(b, pair.Value, 0)
			}
		}
		b.WriteString("]")
	case *ast.ErrorNode:
		b.WriteString("$$error$$")
	default:
		b.WriteString(fmt.Sprintf("/* unknown expr %T */", node))
	}
}

func writeOperator(b *strings.Builder, n *ast.OperatorNode, outerPrec uint8) {
	prec := n.Op.Precedence()
	needParens := prec < outerPrec
	if needParens {
		b.WriteString("(")
	}
	switch n.Op {
	case ast.OpNeg:
		b.WriteString("-")
		writeExpr(b, n.Operands[0], prec)
	case ast.OpNot:
		b.WriteString("not ")
		writeExpr(b, n.Operands[0], prec)
	case ast.OpNullCoalesce:
		writeExpr(b, n.Operands[0], prec+1)
		b.WriteString(" ?: ")
		writeExpr(b, n.Operands[1], prec)
	case ast.OpTernary:
		writeExpr(b, n.Operands[0], prec+1)
		b.WriteString(" ? ")
		writeExpr(b, n.Operands[1], prec)
		b.WriteString(" : ")
		writeExpr(b, n.Operands[2], prec)
	default:
		writeExpr(b, n.Operands[0], prec)
		b.WriteString(" ")
		b.WriteString(n.Op.String())
		b.WriteString(" ")
		writeExpr(b, n.Operands[1], prec+1)
	}
	if needParens {
		b.WriteString(")")
	}
}

// quoteString re-escapes a decoded string literal value back into its
// single-quoted source form.
func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString("\\'")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
