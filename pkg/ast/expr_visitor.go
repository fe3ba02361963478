package ast

// ExprVisitor visits every ExprNode variant. Implementations traverse or
// transform the expression AST by implementing each method; the return type
// is `any` to let a single visitor double as an evaluator, a printer, or an
// analysis pass.
type ExprVisitor interface {
	VisitNull(*NullNode) any
	VisitBool(*BoolNode) any
	VisitInt(*IntNode) any
	VisitFloat(*FloatNode) any
	VisitStr(*StrNode) any
	VisitVarRef(*VarRefNode) any
	VisitGlobal(*GlobalNode) any
	VisitFieldAccess(*FieldAccessNode) any
	VisitItemAccess(*ItemAccessNode) any
	VisitOperator(*OperatorNode) any
	VisitFunctionCall(*FunctionCallNode) any
	VisitProtoInit(*ProtoInitNode) any
	VisitListLiteral(*ListLiteralNode) any
	VisitMapLiteral(*MapLiteralNode) any
	VisitError(*ErrorNode) any
}

// BaseExprVisitor implements ExprVisitor with a pure structural walk that
// recurses into children and returns nil. Embed it and override only the
// methods a pass cares about.
type BaseExprVisitor struct{}

func (BaseExprVisitor) VisitNull(*NullNode) any   { return nil }
func (BaseExprVisitor) VisitBool(*BoolNode) any   { return nil }
func (BaseExprVisitor) VisitInt(*IntNode) any     { return nil }
func (BaseExprVisitor) VisitFloat(*FloatNode) any { return nil }
func (BaseExprVisitor) VisitStr(*StrNode) any     { return nil }
func (BaseExprVisitor) VisitVarRef(*VarRefNode) any { return nil }
func (BaseExprVisitor) VisitGlobal(*GlobalNode) any { return nil }

func (b BaseExprVisitor) VisitFieldAccess(n *FieldAccessNode) any {
	if n.Parent != nil {
		n.Parent.Accept(b)
	}
	return nil
}

func (b BaseExprVisitor) VisitItemAccess(n *ItemAccessNode) any {
	if n.Parent != nil {
		n.Parent.Accept(b)
	}
	if n.Key != nil {
		n.Key.Accept(b)
	}
	return nil
}

func (b BaseExprVisitor) VisitOperator(n *OperatorNode) any {
	for _, o := range n.Operands {
		o.Accept(b)
	}
	return nil
}

func (b BaseExprVisitor) VisitFunctionCall(n *FunctionCallNode) any {
	for _, a := range n.Args {
		a.Accept(b)
	}
	return nil
}

func (b BaseExprVisitor) VisitProtoInit(n *ProtoInitNode) any {
	for _, f := range n.Fields {
		f.Value.Accept(b)
	}
	return nil
}

func (b BaseExprVisitor) VisitListLiteral(n *ListLiteralNode) any {
	for _, item := range n.Items {
		item.Accept(b)
	}
	return nil
}

func (b BaseExprVisitor) VisitMapLiteral(n *MapLiteralNode) any {
	for _, p := range n.Pairs {
		p.Key.Accept(b)
		p.Value.Accept(b)
	}
	return nil
}

func (BaseExprVisitor) VisitError(*ErrorNode) any { return nil }
