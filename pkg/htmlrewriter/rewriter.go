package htmlrewriter

import (
	"slices"

	"github.com/gaarutyunov/tofu/pkg/ast"
	"github.com/gaarutyunov/tofu/pkg/report"
)

// abortBlock unwinds a block-local fatal error to the nearest block-visit
// frame. It never escapes Run and is never a Go error value returned from an
// exported function.
type abortBlock struct{}

// Rewriter scans the raw text of html/attributes blocks into structured
// open-tag, close-tag, attribute, and attribute-value nodes, and validates
// that every HTML construct begun inside a control-flow branch is closed in
// the same branch.
type Rewriter struct {
	stricthtml bool
	errs       report.ErrorReporter
}

// New returns a Rewriter. experimentalFeatures gates the dry-run/mutate
// choice of Run: only when it contains "stricthtml" does Run mutate file in
// place.
func New(experimentalFeatures []string, errs report.ErrorReporter) *Rewriter {
	return &Rewriter{
		stricthtml: slices.Contains(experimentalFeatures, "stricthtml"),
		errs:       errs,
	}
}

// Run rewrites file's template bodies in place when the rewriter was built
// with "stricthtml"; otherwise it runs the same logic against each block's
// own edit buffer and discards every buffer afterward, so callers can still
// observe diagnostics without committing structural changes.
func (rw *Rewriter) Run(file *ast.SoyFileNode, ids *ast.IdGenerator) {
	rw.runBlockCatchingAbort(file, ids)
}

// runBlockCatchingAbort runs one independent block, catching abortBlock at
// the block boundary and restoring the block's starting state as its ending
// state.
func (rw *Rewriter) runBlockCatchingAbort(blk ast.IsBlock, ids *ast.IdGenerator) (end State) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(abortBlock); ok {
				end = InitialState(blk.ContentKind())
				return
			}
			panic(r)
		}
	}()
	return rw.runBlock(blk, ids)
}

// runBlock scans one block: snapshot the starting state, scan children in a
// fresh parsing context, close any pending unquoted attribute, and apply the
// error-explosion guard (any diagnostic since block entry restores the
// starting state and discards the block's edits).
func (rw *Rewriter) runBlock(blk ast.IsBlock, ids *ast.IdGenerator) State {
	start := InitialState(blk.ContentKind())
	if start == None {
		return None // text/css/js/uri/trustedResourceUri: no rewriting
	}
	ctx := newParsingContext(start, blk.Location().Begin)
	buf := &editBuffer{}
	checkpoint := rw.errs.Checkpoint()

	rw.scanChildren(blk, ctx, ids, buf)

	if ctx.state == UnquotedAttrValue {
		rw.finishPendingUnquoted(ctx, ids)
		ctx.transitionTo(BeforeAttributeName, ctx.stateTransitionPoint)
	}
	if ctx.state.InvalidEndOfBlock() && ctx.moved {
		rw.errs.Report(ast.PointLocation(ctx.stateTransitionPoint), report.BlockEndsInInvalidState)
	}
	if start == BeforeAttributeName && len(ctx.tagChildren) > 0 {
		// An attributes-kind block owns no tag of its own: the attributes it
		// produced become its direct children.
		buf.addChildren(blk, ctx.tagChildren...)
		ctx.tagChildren = nil
	}
	if isTextState(ctx.state) {
		ctx.checkEmpty()
	}

	if rw.errs.ErrorsSince(checkpoint) {
		return start
	}
	if !rw.stricthtml {
		return ctx.state // dry-run: report diagnostics, discard buf
	}
	buf.apply()
	return ctx.state
}

// finishPendingUnquoted closes out an unquoted attribute value left open at
// block end. A value belonging to an attribute named in an enclosing block
// is parked in ctx for the reconciliation pass to promote.
func (rw *Rewriter) finishPendingUnquoted(ctx *parsingContext, ids *ast.IdGenerator) {
	val := ast.NewHtmlAttributeValueNode(ids, ast.PointLocation(ctx.attrQuotedStart), ast.QuoteNone)
	val.SetChildren(ctx.attrValueParts)
	ctx.attrValueParts = nil
	if ctx.attrName == nil {
		ctx.completedOuterValue = val
		return
	}
	loc := ast.Extend(ctx.attrName.Location(), val.Location())
	attr := ast.NewHtmlAttributeNode(ids, loc, ctx.attrName)
	attr.EqualsLoc = ctx.attrEqualsLoc
	attr.Value = val
	ctx.tagChildren = append(ctx.tagChildren, attr)
	ctx.resetAttribute()
}

// scanChildren walks blk's current children left to right, dispatching raw
// text to the character scanner and recursing into nested control-flow
// nodes for reconciliation.
func (rw *Rewriter) scanChildren(blk ast.IsBlock, ctx *parsingContext, ids *ast.IdGenerator, buf *editBuffer) {
	for _, child := range blk.Children() {
		switch n := child.(type) {
		case *ast.RawTextNode:
			rw.scanRawText(blk, n, ctx, ids, buf)
		case *ast.IfNode:
			rw.checkControlFlowAllowed(ctx, n)
			rw.reconcileBranches(blk, n, branchChildren(n), ctx, ids, buf)
		case *ast.SwitchNode:
			rw.checkControlFlowAllowed(ctx, n)
			rw.reconcileBranches(blk, n, branchChildren(n), ctx, ids, buf)
		case *ast.ForeachNode:
			rw.checkControlFlowAllowed(ctx, n)
			branches := []ast.IsBlock{n}
			if n.IfEmpty != nil {
				branches = append(branches, n.IfEmpty)
			}
			rw.reconcileBranches(blk, n, branches, ctx, ids, buf)
		case *ast.ForNode:
			rw.checkControlFlowAllowed(ctx, n)
			rw.reconcileBranches(blk, n, []ast.IsBlock{n}, ctx, ids, buf)
		default:
			rw.attachInlineNode(blk, child, ctx, ids, buf)
		}
	}
}

// checkControlFlowAllowed rejects a control-flow construct sitting where a
// branch could not legally begin: mid-tag-name (a tag may only start from
// PCDATA) or inside a comment, CDATA section, or XML declaration.
func (rw *Rewriter) checkControlFlowAllowed(ctx *parsingContext, n ast.SoyNode) {
	switch ctx.state {
	case HtmlTagName:
		rw.errs.Report(n.Location(), report.BlockTransitionDisallowed, ctx.state.String())
		panic(abortBlock{})
	case HtmlComment, Cdata, XmlDeclaration, SingleQuotedXmlAttrValue, DoubleQuotedXmlAttrValue:
		rw.errs.Report(n.Location(), report.InvalidLocationForControlFlow, ctx.state.String())
		panic(abortBlock{})
	}
}

func branchChildren(parent ast.ParentNode) []ast.IsBlock {
	var out []ast.IsBlock
	for _, c := range parent.Children() {
		if b, ok := c.(ast.IsBlock); ok {
			out = append(out, b)
		}
	}
	return out
}

// scanRawText runs the character scanner over one raw-text node and
// schedules its structural output as a replacement in the edit buffer. A
// node that came back as a single identical text run is already fully split
// and is left untouched, which is what makes a second rewrite pass a no-op.
func (rw *Rewriter) scanRawText(parent ast.ParentNode, n *ast.RawTextNode, ctx *parsingContext, ids *ast.IdGenerator, buf *editBuffer) {
	if ctx.state == None {
		return
	}
	sc := newScanner(rw, ctx, ids, n)
	sc.run()
	if len(sc.output) == 1 {
		if only, ok := sc.output[0].(*ast.RawTextNode); ok && only.Text == n.Text {
			return
		}
	}
	buf.replace(parent, n, sc.output)
}

// isNonPrintable reports whether n renders no output at all, so its
// placement inside a tag name or before an attribute value can never supply
// the content those positions require.
func isNonPrintable(n ast.SoyNode) bool {
	switch n.(type) {
	case *ast.DebuggerNode, *ast.LogNode, *ast.LetNode:
		return true
	}
	return false
}

// attachInlineNode handles a non-text, non-control-flow child (a {print},
// {call}, {msg}, {let}, {debugger}, ...). Nodes with content blocks of their
// own are scanned independently first; the node itself is then reparented
// according to the surrounding state: tag-name position (dynamic tag name),
// attribute-value position (value part), inside a tag (tag child), or plain
// content (left in place).
func (rw *Rewriter) attachInlineNode(parent ast.ParentNode, n ast.SoyNode, ctx *parsingContext, ids *ast.IdGenerator, buf *editBuffer) {
	if blk, ok := n.(ast.IsBlock); ok {
		rw.runBlockCatchingAbort(blk, ids)
	} else if g, ok := n.(*ast.MsgFallbackGroupNode); ok {
		for _, c := range g.Children() {
			if mb, ok := c.(ast.IsBlock); ok {
				rw.runBlockCatchingAbort(mb, ids)
			}
		}
	}
	switch {
	case ctx.state == HtmlTagName:
		if pn, ok := n.(*ast.PrintNode); ok && ctx.tagName == "" && ctx.tagNameDynamic == nil {
			ctx.tagNameDynamic = pn.Expr
			buf.remove(parent, n)
			return
		}
		if isNonPrintable(n) {
			rw.errs.Report(n.Location(), report.InvalidLocationForNonprintable)
			return
		}
		rw.errs.Report(n.Location(), report.InvalidTagName)
		panic(abortBlock{})
	case ctx.state == BeforeAttributeValue:
		if isNonPrintable(n) {
			rw.errs.Report(n.Location(), report.InvalidLocationForNonprintable)
			return
		}
		ctx.attrQuotedStart = n.Location().Begin
		ctx.transitionTo(UnquotedAttrValue, n.Location().End)
		ctx.attrValueParts = append(ctx.attrValueParts, n)
		buf.remove(parent, n)
	case ctx.state == UnquotedAttrValue || ctx.state == SingleQuotedAttrValue || ctx.state == DoubleQuotedAttrValue:
		ctx.attrValueParts = append(ctx.attrValueParts, n)
		buf.remove(parent, n)
	case ctx.state.InTag():
		ctx.tagChildren = append(ctx.tagChildren, n)
		buf.remove(parent, n)
	default:
		// PCDATA, rcdata, None: the node stays a direct sibling untouched.
	}
}

// scanBranch scans one branch body, catching abortBlock so a fatal error in
// one branch does not unwind its siblings or the enclosing block.
func (rw *Rewriter) scanBranch(br ast.IsBlock, brCtx *parsingContext, ids *ast.IdGenerator, buf *editBuffer) (aborted bool) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(abortBlock); ok {
				aborted = true
				return
			}
			panic(r)
		}
	}()
	rw.scanChildren(br, brCtx, ids, buf)
	return false
}

func isValueState(s State) bool {
	switch s {
	case SingleQuotedAttrValue, DoubleQuotedAttrValue, UnquotedAttrValue:
		return true
	}
	return false
}

// reconcileBranches runs every branch of a control-flow construct from the
// surrounding state, reconciles the branches' ending states, and promotes
// the construct according to where it sits: a construct inside a tag moves
// into the tag's children, a construct that completes an attribute value
// becomes that value's single child, and a construct inside an open value
// becomes one of the value's parts. In every promoted case each branch's
// scanned partial nodes are reattached as that branch's children, so the
// construct keeps choosing between them at render time.
func (rw *Rewriter) reconcileBranches(parent ast.ParentNode, owner ast.SoyNode, branches []ast.IsBlock, ctx *parsingContext, ids *ast.IdGenerator, buf *editBuffer) {
	if len(branches) == 0 {
		return
	}
	start := ctx.state
	ends := make([]State, len(branches))
	branchCtxs := make([]*parsingContext, len(branches))
	for i, br := range branches {
		brCtx := newParsingContext(start, br.Location().Begin)
		m := buf.mark()
		checkpoint := rw.errs.Checkpoint()
		aborted := rw.scanBranch(br, brCtx, ids, buf)
		if !aborted {
			if brCtx.state == UnquotedAttrValue {
				rw.finishPendingUnquoted(brCtx, ids)
				brCtx.transitionTo(BeforeAttributeName, brCtx.stateTransitionPoint)
			}
			if brCtx.state.InvalidEndOfBlock() && brCtx.moved {
				rw.errs.Report(ast.PointLocation(brCtx.stateTransitionPoint), report.BlockEndsInInvalidState)
			}
			if start == BeforeAttributeValue && len(brCtx.tagChildren) > 0 {
				// A branch here must produce a value, not start the next
				// attribute.
				rw.errs.Report(br.Location(), report.BlockTransitionDisallowed, start.String())
			}
		}
		if aborted || rw.errs.ErrorsSince(checkpoint) {
			buf.truncate(m)
			ends[i] = start
			branchCtxs[i] = newParsingContext(start, br.Location().Begin)
			continue
		}
		ends[i] = brCtx.state
		branchCtxs[i] = brCtx
	}

	reconciled, ok := reconcile(ends)
	if !ok {
		rw.errs.Report(owner.Location(), report.BlockChangesContext, hintFor(ends))
		ctx.state = start
		return
	}

	anyCompleted := false
	quote := ast.QuoteNone
	for _, bc := range branchCtxs {
		if bc.completedOuterValue != nil {
			anyCompleted = true
			quote = bc.completedOuterValue.Quote
		}
	}

	if !guaranteesExactlyOne(owner) &&
		(anyIs(ends, BeforeAttributeValue) || (anyCompleted && start == BeforeAttributeValue)) &&
		reconciled != BeforeAttributeValue {
		rw.errs.Report(owner.Location(), report.ConditionalBlockIsntGuaranteedToProduceOneAttrVal)
	}

	ctx.state = reconciled
	switch {
	case anyCompleted && (start == BeforeAttributeValue || start == UnquotedAttrValue):
		// The branches jointly finished the value of the attribute whose
		// name and `=` precede the construct. Parts scanned before the
		// construct (an unquoted value already begun) stay ahead of it.
		val := ast.NewHtmlAttributeValueNode(ids, owner.Location(), quote)
		val.SetChildren(append(ctx.attrValueParts, owner))
		ctx.attrValueParts = nil
		buf.remove(parent, owner)
		for i, bc := range branchCtxs {
			if bc.completedOuterValue != nil {
				buf.addChildren(branches[i], bc.completedOuterValue.Children()...)
			}
		}
		if ctx.attrName == nil {
			ctx.completedOuterValue = val
			return
		}
		loc := ast.Extend(ctx.attrName.Location(), owner.Location())
		attr := ast.NewHtmlAttributeNode(ids, loc, ctx.attrName)
		attr.EqualsLoc = ctx.attrEqualsLoc
		attr.Value = val
		ctx.tagChildren = append(ctx.tagChildren, attr)
		ctx.resetAttribute()
	case start.InTag() && reconciled.InTag():
		buf.remove(parent, owner)
		ctx.tagChildren = append(ctx.tagChildren, owner)
		for i, bc := range branchCtxs {
			if len(bc.tagChildren) > 0 {
				buf.addChildren(branches[i], bc.tagChildren...)
			}
		}
	case isValueState(start) && isValueState(reconciled):
		buf.remove(parent, owner)
		ctx.attrValueParts = append(ctx.attrValueParts, owner)
		for i, bc := range branchCtxs {
			if len(bc.attrValueParts) > 0 {
				buf.addChildren(branches[i], bc.attrValueParts...)
			}
		}
	default:
		// Plain content position: branches already rewrote themselves in
		// place and the construct stays where it is.
	}
}

func anyIs(states []State, target State) bool {
	for _, s := range states {
		if s == target {
			return true
		}
	}
	return false
}

// guaranteesExactlyOne reports whether owner is guaranteed to render exactly
// one of its branches: an {if} with {else}, a {switch} with {default}, or a
// {foreach} with {ifempty}.
func guaranteesExactlyOne(owner ast.SoyNode) bool {
	switch n := owner.(type) {
	case *ast.IfNode:
		return n.HasElse()
	case *ast.SwitchNode:
		return n.HasDefault()
	case *ast.ForeachNode:
		return n.HasIfempty()
	}
	return false
}

func hintFor(ends []State) string {
	for _, s := range ends {
		if s == BeforeAttributeValue {
			return "did you forget to close the attribute value?"
		}
	}
	return "branches leave HTML parsing in incompatible states"
}
