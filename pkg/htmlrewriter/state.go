// Package htmlrewriter implements the contextual HTML rewrite pass of the
// template compiler: a finite-state-machine scanner that turns the raw-text
// children of an html/attributes-kind block into structured open/close tags
// and attributes, validating that every tag and attribute opened within a
// control-flow branch is also closed within it, and reconciling the trailing
// scanner state across parallel branches of conditionals and loops.
package htmlrewriter

import "github.com/gaarutyunov/tofu/pkg/ast"

// State is one position of the tag-lexing state machine.
type State uint8

const (
	None State = iota
	Pcdata
	RcdataScript
	RcdataStyle
	RcdataTitle
	RcdataTextarea
	HtmlComment
	Cdata
	XmlDeclaration
	SingleQuotedXmlAttrValue
	DoubleQuotedXmlAttrValue
	HtmlTagName
	AfterAttributeName
	BeforeAttributeValue
	SingleQuotedAttrValue
	DoubleQuotedAttrValue
	UnquotedAttrValue
	AfterTagNameOrAttribute
	BeforeAttributeName
)

func (s State) String() string {
	switch s {
	case None:
		return "None"
	case Pcdata:
		return "Pcdata"
	case RcdataScript:
		return "RcdataScript"
	case RcdataStyle:
		return "RcdataStyle"
	case RcdataTitle:
		return "RcdataTitle"
	case RcdataTextarea:
		return "RcdataTextarea"
	case HtmlComment:
		return "HtmlComment"
	case Cdata:
		return "Cdata"
	case XmlDeclaration:
		return "XmlDeclaration"
	case SingleQuotedXmlAttrValue:
		return "SingleQuotedXmlAttrValue"
	case DoubleQuotedXmlAttrValue:
		return "DoubleQuotedXmlAttrValue"
	case HtmlTagName:
		return "HtmlTagName"
	case AfterAttributeName:
		return "AfterAttributeName"
	case BeforeAttributeValue:
		return "BeforeAttributeValue"
	case SingleQuotedAttrValue:
		return "SingleQuotedAttrValue"
	case DoubleQuotedAttrValue:
		return "DoubleQuotedAttrValue"
	case UnquotedAttrValue:
		return "UnquotedAttrValue"
	case AfterTagNameOrAttribute:
		return "AfterTagNameOrAttribute"
	case BeforeAttributeName:
		return "BeforeAttributeName"
	}
	return "?"
}

// InTag reports whether s is within a tag but outside an attribute value.
func (s State) InTag() bool {
	switch s {
	case AfterAttributeName, AfterTagNameOrAttribute, BeforeAttributeName:
		return true
	}
	return false
}

// InvalidEndOfBlock reports whether a block may not legally end while in s:
// a block must not end with an attribute name and `=` but no value.
func (s State) InvalidEndOfBlock() bool {
	return s == BeforeAttributeValue
}

// InitialState returns the scanner start state for a block of the given
// content kind. Only html and attributes content is rewritten.
func InitialState(kind ast.ContentKind) State {
	switch kind {
	case ast.ContentHTML:
		return Pcdata
	case ast.ContentAttributes:
		return BeforeAttributeName
	default:
		return None
	}
}

// rcdataStateFor returns the rcdata state a non-self-closing open tag named
// tag enters, or Pcdata if tag isn't one of script/style/textarea/title.
func rcdataStateFor(tag string) State {
	switch lowerASCII(tag) {
	case "script":
		return RcdataScript
	case "style":
		return RcdataStyle
	case "title":
		return RcdataTitle
	case "textarea":
		return RcdataTextarea
	}
	return Pcdata
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
