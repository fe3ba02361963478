package ast

// SoyNode is the minimal contract every template/HTML node satisfies: an id
// from a per-file IdGenerator and a source location. IsBlock below is the
// second capability trait, implemented only by nodes that are a branch of
// some control-flow construct.
type SoyNode interface {
	HasLocation
	HasId
}

// ContentKind selects the HTML rewriter's initial scanner state for a
// block. It is attached to templates, {let} content blocks, and {param}
// content blocks.
type ContentKind uint8

const (
	ContentHTML ContentKind = iota
	ContentAttributes
	ContentText
	ContentCSS
	ContentJS
	ContentURI
	ContentTrustedResourceURI
)

// IsBlock marks a node as a branch of a control-flow construct: the body of
// an {if}/{elseif}/{else}, a {switch} case/default, a {foreach}/{ifempty},
// a {for}, {let}/{param} content, a {call}, or a template body. The HTML
// rewriter snapshots and reconciles scanner state across exactly these
// boundaries.
type IsBlock interface {
	SoyNode
	ParentNode
	ContentKind() ContentKind
}

type nodeBase struct {
	id  uint32
	loc SourceLocation
}

func (n nodeBase) NodeId() uint32           { return n.id }
func (n nodeBase) Location() SourceLocation { return n.loc }

// block is the reusable implementation backing every IsBlock node.
type block struct {
	nodeBase
	ChildList
	kind ContentKind
}

func newBlock(ids *IdGenerator, loc SourceLocation, kind ContentKind) block {
	return block{nodeBase: nodeBase{id: ids.Gen(), loc: loc}, kind: kind}
}

func (b *block) ContentKind() ContentKind { return b.kind }

// RawTextNode holds literal text plus a mapping from byte offsets back to
// source Points, so a substring split off by the rewriter still carries a
// correct location.
type RawTextNode struct {
	nodeBase
	Text string

	points           []Point // len(points) == len(Text)+1
	joinedWhitespace map[int]bool
}

// NewRawTextNode builds a RawTextNode whose byte offset i maps to
// pointAt(i) = begin advanced by the text consumed so far. This is the
// straightforward mapping the outer tag parser hands raw text nodes with in
// practice: one contiguous run starting at loc.Begin.
func NewRawTextNode(ids *IdGenerator, loc SourceLocation, text string) *RawTextNode {
	points := make([]Point, len(text)+1)
	p := loc.Begin
	for i := 0; i <= len(text); i++ {
		points[i] = p
		if i < len(text) {
			p = advance(p, text[i])
		}
	}
	return &RawTextNode{nodeBase: nodeBase{id: ids.Gen(), loc: loc}, Text: text, points: points}
}

func advance(p Point, b byte) Point {
	p.Offset++
	if b == '\n' {
		p.Line++
		p.Column = 1
	} else {
		p.Column++
	}
	return p
}

// Substring returns the text in [start,end) as a new RawTextNode carrying a
// freshly generated id and the correct sliced locations.
func (n *RawTextNode) Substring(ids *IdGenerator, start, end int) *RawTextNode {
	sub := &RawTextNode{
		nodeBase: nodeBase{id: ids.Gen(), loc: NewSourceLocation(n.points[start], n.points[end])},
		Text:     n.Text[start:end],
		points:   append([]Point(nil), n.points[start:end+1]...),
	}
	if n.joinedWhitespace != nil {
		for idx := range n.joinedWhitespace {
			if idx >= start && idx <= end {
				if sub.joinedWhitespace == nil {
					sub.joinedWhitespace = make(map[int]bool)
				}
				sub.joinedWhitespace[idx-start] = true
			}
		}
	}
	return sub
}

// LocationOf returns the source Point for byte offset index, 0 <= index <=
// len(Text).
func (n *RawTextNode) LocationOf(index int) Point {
	return n.points[index]
}

// MissingWhitespaceAt reports whether index is a joined-whitespace point:
// two raw text runs were concatenated with intervening whitespace stripped
// by the outer parser.
func (n *RawTextNode) MissingWhitespaceAt(index int) bool {
	return n.joinedWhitespace != nil && n.joinedWhitespace[index]
}

// MarkJoinedWhitespace records index as a joined-whitespace point. Called by
// the outer file parser when it concatenates adjacent raw text runs.
func (n *RawTextNode) MarkJoinedWhitespace(index int) {
	if n.joinedWhitespace == nil {
		n.joinedWhitespace = make(map[int]bool)
	}
	n.joinedWhitespace[index] = true
}

// TagName is either a literal tag name or a dynamic print expression, e.g.
// `<{$tag}>`.
type TagName struct {
	Literal string
	Dynamic ExprNode
}

func (t TagName) IsStatic() bool { return t.Dynamic == nil }

// QuoteStyle is the quoting used around an attribute value.
type QuoteStyle uint8

const (
	QuoteNone QuoteStyle = iota
	QuoteSingle
	QuoteDouble
)

// HtmlOpenTagNode is `<tag attr="value" ...>` or, if SelfClosing, `<tag />`.
// Children holds attributes interleaved with inline dynamic nodes such as
// `{if}` blocks that themselves produce attributes.
type HtmlOpenTagNode struct {
	nodeBase
	ChildList
	Tag         TagName
	SelfClosing bool
}

// NewHtmlOpenTagNode returns an open tag node with no children yet.
func NewHtmlOpenTagNode(ids *IdGenerator, loc SourceLocation, tag TagName, selfClosing bool) *HtmlOpenTagNode {
	return &HtmlOpenTagNode{nodeBase: nodeBase{id: ids.Gen(), loc: loc}, Tag: tag, SelfClosing: selfClosing}
}

// HtmlCloseTagNode is `</tag>`.
type HtmlCloseTagNode struct {
	nodeBase
	Tag TagName
}

// NewHtmlCloseTagNode returns a close tag node.
func NewHtmlCloseTagNode(ids *IdGenerator, loc SourceLocation, tag TagName) *HtmlCloseTagNode {
	return &HtmlCloseTagNode{nodeBase: nodeBase{id: ids.Gen(), loc: loc}, Tag: tag}
}

// HtmlAttributeNode is one `name` or `name=value` pair inside a tag.
type HtmlAttributeNode struct {
	nodeBase
	Name      SoyNode // usually *RawTextNode; may be dynamic (e.g. {if})
	EqualsLoc *SourceLocation
	Value     *HtmlAttributeValueNode
}

// NewHtmlAttributeNode returns an attribute node.
func NewHtmlAttributeNode(ids *IdGenerator, loc SourceLocation, name SoyNode) *HtmlAttributeNode {
	return &HtmlAttributeNode{nodeBase: nodeBase{id: ids.Gen(), loc: loc}, Name: name}
}

// HtmlAttributeValueNode holds the (possibly multi-part, possibly dynamic)
// value of an attribute, plus the quote style it was written with.
type HtmlAttributeValueNode struct {
	nodeBase
	ChildList
	Quote QuoteStyle
}

// NewHtmlAttributeValueNode returns an attribute-value node.
func NewHtmlAttributeValueNode(ids *IdGenerator, loc SourceLocation, quote QuoteStyle) *HtmlAttributeValueNode {
	return &HtmlAttributeValueNode{nodeBase: nodeBase{id: ids.Gen(), loc: loc}, Quote: quote}
}

// --- control-flow nodes -----------------------------------------------

// IfNode is `{if}...{elseif}...{else}...{/if}`; Children are *IfCondNode
// followed by an optional trailing *IfElseNode.
type IfNode struct {
	nodeBase
	ChildList
}

func NewIfNode(ids *IdGenerator, loc SourceLocation) *IfNode {
	return &IfNode{nodeBase: nodeBase{id: ids.Gen(), loc: loc}}
}

// HasElse reports whether the last child is an IfElseNode, i.e. exactly one
// branch is guaranteed to render.
func (n *IfNode) HasElse() bool {
	cs := n.Children()
	if len(cs) == 0 {
		return false
	}
	_, ok := cs[len(cs)-1].(*IfElseNode)
	return ok
}

// IfCondNode is one `{if cond}` or `{elseif cond}` branch.
type IfCondNode struct {
	block
	Cond ExprNode
}

func NewIfCondNode(ids *IdGenerator, loc SourceLocation, kind ContentKind, cond ExprNode) *IfCondNode {
	return &IfCondNode{block: newBlock(ids, loc, kind), Cond: cond}
}

// IfElseNode is the trailing `{else}` branch of an {if}.
type IfElseNode struct{ block }

func NewIfElseNode(ids *IdGenerator, loc SourceLocation, kind ContentKind) *IfElseNode {
	return &IfElseNode{block: newBlock(ids, loc, kind)}
}

// SwitchNode is `{switch expr}{case ...}{default}{/switch}`.
type SwitchNode struct {
	nodeBase
	ChildList
	Expr ExprNode
}

func NewSwitchNode(ids *IdGenerator, loc SourceLocation, expr ExprNode) *SwitchNode {
	return &SwitchNode{nodeBase: nodeBase{id: ids.Gen(), loc: loc}, Expr: expr}
}

func (n *SwitchNode) HasDefault() bool {
	cs := n.Children()
	if len(cs) == 0 {
		return false
	}
	_, ok := cs[len(cs)-1].(*SwitchDefaultNode)
	return ok
}

// SwitchCaseNode is one `{case v1, v2, ...}` branch.
type SwitchCaseNode struct {
	block
	Values []ExprNode
}

func NewSwitchCaseNode(ids *IdGenerator, loc SourceLocation, kind ContentKind, values []ExprNode) *SwitchCaseNode {
	return &SwitchCaseNode{block: newBlock(ids, loc, kind), Values: values}
}

// SwitchDefaultNode is the trailing `{default}` branch.
type SwitchDefaultNode struct{ block }

func NewSwitchDefaultNode(ids *IdGenerator, loc SourceLocation, kind ContentKind) *SwitchDefaultNode {
	return &SwitchDefaultNode{block: newBlock(ids, loc, kind)}
}

// ForeachNode is `{foreach $v in expr}...{ifempty}...{/foreach}`.
type ForeachNode struct {
	block
	VarName string
	List    ExprNode
	IfEmpty *ForeachIfemptyNode
}

func NewForeachNode(ids *IdGenerator, loc SourceLocation, kind ContentKind, varName string, list ExprNode) *ForeachNode {
	return &ForeachNode{block: newBlock(ids, loc, kind), VarName: varName, List: list}
}

// HasIfempty reports whether the loop guarantees exactly one branch runs,
// the same precondition IfNode.HasElse / SwitchNode.HasDefault encode.
func (n *ForeachNode) HasIfempty() bool { return n.IfEmpty != nil }

// ForeachIfemptyNode is the `{ifempty}` branch of a {foreach}.
type ForeachIfemptyNode struct{ block }

func NewForeachIfemptyNode(ids *IdGenerator, loc SourceLocation, kind ContentKind) *ForeachIfemptyNode {
	return &ForeachIfemptyNode{block: newBlock(ids, loc, kind)}
}

// ForNode is `{for $v in range(...)}...{/for}`; the rewriter reconciles it
// as a single-branch block (its body may execute zero times at runtime, but
// only the static body is ever scanned).
type ForNode struct {
	block
	VarName string
	Range   ExprNode
}

func NewForNode(ids *IdGenerator, loc SourceLocation, kind ContentKind, varName string, rangeExpr ExprNode) *ForNode {
	return &ForNode{block: newBlock(ids, loc, kind), VarName: varName, Range: rangeExpr}
}

// LetNode is `{let $v: expr /}` (Value set, Body nil) or
// `{let $v kind="html"}...{/let}` (Body set, Value nil).
type LetNode struct {
	block
	VarName string
	Value   ExprNode
}

func NewLetNode(ids *IdGenerator, loc SourceLocation, kind ContentKind, varName string, value ExprNode) *LetNode {
	return &LetNode{block: newBlock(ids, loc, kind), VarName: varName, Value: value}
}

// CallNode is `{call name}...{/call}`; Children are *CallParamValueNode and
// *CallParamContentNode.
type CallNode struct {
	block
	CalleeName string
}

func NewCallNode(ids *IdGenerator, loc SourceLocation, kind ContentKind, callee string) *CallNode {
	return &CallNode{block: newBlock(ids, loc, kind), CalleeName: callee}
}

// CallParamValueNode is `{param name: expr /}`.
type CallParamValueNode struct {
	nodeBase
	Name  string
	Value ExprNode
}

func NewCallParamValueNode(ids *IdGenerator, loc SourceLocation, name string, value ExprNode) *CallParamValueNode {
	return &CallParamValueNode{nodeBase: nodeBase{id: ids.Gen(), loc: loc}, Name: name, Value: value}
}

// CallParamContentNode is `{param name kind="html"}...{/param}`.
type CallParamContentNode struct {
	block
	Name string
}

func NewCallParamContentNode(ids *IdGenerator, loc SourceLocation, kind ContentKind, name string) *CallParamContentNode {
	return &CallParamContentNode{block: newBlock(ids, loc, kind), Name: name}
}

// MsgNode is the body of a `{msg}...{/msg}` translation unit.
type MsgNode struct{ block }

func NewMsgNode(ids *IdGenerator, loc SourceLocation, kind ContentKind) *MsgNode {
	return &MsgNode{block: newBlock(ids, loc, kind)}
}

// MsgFallbackGroupNode is `{msg}...{fallbackmsg}...{/msg}`; Children are
// *MsgNode.
type MsgFallbackGroupNode struct {
	nodeBase
	ChildList
}

func NewMsgFallbackGroupNode(ids *IdGenerator, loc SourceLocation) *MsgFallbackGroupNode {
	return &MsgFallbackGroupNode{nodeBase: nodeBase{id: ids.Gen(), loc: loc}}
}

// LogNode is `{log}...{/log}`, rewritten as PCDATA but never emitted.
type LogNode struct{ block }

func NewLogNode(ids *IdGenerator, loc SourceLocation) *LogNode {
	return &LogNode{block: newBlock(ids, loc, ContentText)}
}

// DebuggerNode is the `{debugger}` marker command.
type DebuggerNode struct{ nodeBase }

func NewDebuggerNode(ids *IdGenerator, loc SourceLocation) *DebuggerNode {
	return &DebuggerNode{nodeBase{id: ids.Gen(), loc: loc}}
}

// PrintNode is `{$expr}` or `{print $expr}`.
type PrintNode struct {
	nodeBase
	Expr ExprNode
}

func NewPrintNode(ids *IdGenerator, loc SourceLocation, expr ExprNode) *PrintNode {
	return &PrintNode{nodeBase: nodeBase{id: ids.Gen(), loc: loc}, Expr: expr}
}

// CssNode is `{css selectorExpr}`.
type CssNode struct {
	nodeBase
	Expr ExprNode
}

func NewCssNode(ids *IdGenerator, loc SourceLocation, expr ExprNode) *CssNode {
	return &CssNode{nodeBase: nodeBase{id: ids.Gen(), loc: loc}, Expr: expr}
}

// XidNode is `{xid name}`.
type XidNode struct {
	nodeBase
	Name string
}

func NewXidNode(ids *IdGenerator, loc SourceLocation, name string) *XidNode {
	return &XidNode{nodeBase: nodeBase{id: ids.Gen(), loc: loc}, Name: name}
}

// SoyFileNode is the root of a parsed template file. Its body is itself the
// outermost block: kind ContentHTML unless the file overrides it.
type SoyFileNode struct {
	block
	Name string
}

// NewSoyFileNode returns an (initially empty) file root.
func NewSoyFileNode(ids *IdGenerator, loc SourceLocation, name string, kind ContentKind) *SoyFileNode {
	f := &SoyFileNode{block: newBlock(ids, loc, kind), Name: name}
	return f
}
