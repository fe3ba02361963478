package htmlrewriter

import (
	"github.com/gaarutyunov/tofu/pkg/ast"
)

// parsingContext is the per-block scratch state of the scan. A fresh one is
// created for every block the rewriter enters (template body, each
// {if}/{case}/{ifempty} branch, {let}/{param} content, {call} body).
type parsingContext struct {
	state                State
	stateTransitionPoint ast.Point

	// moved records whether the FSM took any transition inside this block,
	// distinguishing a block that merely inherited BeforeAttributeValue from
	// one that ended there after writing `name=` itself.
	moved bool

	// Tag-in-progress. tagStartText is nil when the enclosing tag was begun
	// in another block.
	tagStart       ast.Point
	tagStartText   *ast.RawTextNode
	tagIsCloseTag  bool
	tagName        string
	tagNameDynamic ast.ExprNode
	tagChildren    []ast.SoyNode

	// Attribute-in-progress. attrQuoteOpened is false when a quoted value's
	// opening quote was consumed in another block.
	attrName        ast.SoyNode
	attrEqualsLoc   *ast.SourceLocation
	attrValue       *ast.HtmlAttributeValueNode
	attrQuotedStart ast.Point
	attrQuoteOpened bool
	attrValueParts  []ast.SoyNode

	// completedOuterValue is a value completed in this block for an
	// attribute whose name (and `=`) live in an enclosing block; the
	// reconciliation pass folds it into that attribute.
	completedOuterValue *ast.HtmlAttributeValueNode
}

func newParsingContext(start State, at ast.Point) *parsingContext {
	return &parsingContext{state: start, stateTransitionPoint: at}
}

// reset clears all in-progress tag and attribute state.
func (c *parsingContext) reset() {
	c.tagStart = ast.Point{}
	c.tagStartText = nil
	c.tagIsCloseTag = false
	c.tagName = ""
	c.tagNameDynamic = nil
	c.tagChildren = nil
	c.completedOuterValue = nil
	c.resetAttribute()
}

// resetAttribute clears only the attribute-in-progress fields.
func (c *parsingContext) resetAttribute() {
	c.attrName = nil
	c.attrEqualsLoc = nil
	c.attrValue = nil
	c.attrQuotedStart = ast.Point{}
	c.attrQuoteOpened = false
	c.attrValueParts = nil
}

// checkEmpty validates that nothing remains in progress once a block's
// partial nodes have been promoted into their parent. A violation is an
// internal bug, not a user-facing diagnostic.
func (c *parsingContext) checkEmpty() {
	if c.tagStartText != nil || c.attrName != nil || c.attrValue != nil {
		panic("htmlrewriter: parsingContext not empty after reparenting")
	}
}

func (c *parsingContext) transitionTo(s State, at ast.Point) {
	c.state = s
	c.stateTransitionPoint = at
	c.moved = true
}

// --- deferred edit buffer ---

type removeOp struct {
	parent      ast.ParentNode
	id          uint32
	replacement []ast.SoyNode
}

type addOp struct {
	parent   ast.ParentNode
	children []ast.SoyNode
}

// editBuffer records remove/replace/addChildren operations without touching
// the tree, so the rewriter can discard a whole block's edits if any error
// is reported before the block finishes. The tree is only ever mutated by
// apply, never mid-traversal.
type editBuffer struct {
	removes []removeOp
	adds    []addOp
}

// remove marks node for unlink from parent with no replacement.
func (b *editBuffer) remove(parent ast.ParentNode, node ast.SoyNode) {
	b.removes = append(b.removes, removeOp{parent: parent, id: node.NodeId()})
}

// replace marks old for unlink from parent, to be replaced in place by
// newList.
func (b *editBuffer) replace(parent ast.ParentNode, old ast.SoyNode, newList []ast.SoyNode) {
	b.removes = append(b.removes, removeOp{parent: parent, id: old.NodeId(), replacement: newList})
}

// addChildren appends children to parent, applied after all removes so a
// node being replaced may legally appear in its own replacement list.
func (b *editBuffer) addChildren(parent ast.ParentNode, children ...ast.SoyNode) {
	if len(children) == 0 {
		return
	}
	b.adds = append(b.adds, addOp{parent: parent, children: children})
}

// editMark is a high-water mark for rollback.
type editMark struct {
	removes int
	adds    int
}

func (b *editBuffer) mark() editMark {
	return editMark{removes: len(b.removes), adds: len(b.adds)}
}

// truncate discards every operation recorded after m, rolling the buffer
// back to the state it had when m was taken.
func (b *editBuffer) truncate(m editMark) {
	b.removes = b.removes[:m.removes]
	b.adds = b.adds[:m.adds]
}

// apply executes pending removes (inserting each node's replacement list at
// the removed index) and then pending additions, in recording order.
func (b *editBuffer) apply() {
	for _, op := range b.removes {
		i := op.parent.ChildIndex(op.id)
		if i < 0 {
			continue
		}
		op.parent.RemoveChildAt(i)
		if len(op.replacement) > 0 {
			op.parent.InsertChildrenAt(i, op.replacement)
		}
	}
	for _, op := range b.adds {
		op.parent.AddChildren(op.children...)
	}
	b.removes = nil
	b.adds = nil
}
