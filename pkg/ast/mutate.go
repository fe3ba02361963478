package ast

// ParentNode is the AST mutation contract rewrite passes depend on. The
// HTML rewriter never mutates a parent mid-traversal; these methods are
// only ever called when a block's deferred edits are applied.
type ParentNode interface {
	Children() []SoyNode
	ChildIndex(id uint32) int
	RemoveChildAt(i int) SoyNode
	InsertChildrenAt(i int, nodes []SoyNode)
	AddChildren(nodes ...SoyNode)
	SetChildren(nodes []SoyNode)
}

// ChildList is the reusable implementation of ParentNode every block and
// tag/attribute node embeds, keeping child mutation logic in one place
// instead of re-deriving it per node kind.
type ChildList struct {
	children []SoyNode
}

// Children returns the live child slice; callers must not retain it across
// a mutation.
func (c *ChildList) Children() []SoyNode { return c.children }

// ChildIndex returns the index of the child with the given node id, or -1.
func (c *ChildList) ChildIndex(id uint32) int {
	for i, ch := range c.children {
		if ch.NodeId() == id {
			return i
		}
	}
	return -1
}

// RemoveChildAt unlinks and returns the child at i.
func (c *ChildList) RemoveChildAt(i int) SoyNode {
	removed := c.children[i]
	c.children = append(c.children[:i], c.children[i+1:]...)
	return removed
}

// InsertChildrenAt splices nodes into the child list at i, used to replace
// a removed node with its replacement list in place.
func (c *ChildList) InsertChildrenAt(i int, nodes []SoyNode) {
	if len(nodes) == 0 {
		return
	}
	grown := make([]SoyNode, 0, len(c.children)+len(nodes))
	grown = append(grown, c.children[:i]...)
	grown = append(grown, nodes...)
	grown = append(grown, c.children[i:]...)
	c.children = grown
}

// AddChildren appends nodes to the end of the child list.
func (c *ChildList) AddChildren(nodes ...SoyNode) {
	c.children = append(c.children, nodes...)
}

// SetChildren replaces the child list wholesale.
func (c *ChildList) SetChildren(nodes []SoyNode) {
	c.children = nodes
}
