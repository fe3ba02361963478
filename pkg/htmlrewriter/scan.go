package htmlrewriter

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gaarutyunov/tofu/pkg/ast"
	"github.com/gaarutyunov/tofu/pkg/report"
)

// scanner turns one RawTextNode's character stream into structured HTML
// nodes, threading parsingContext across calls so a tag or attribute value
// may span multiple raw-text nodes within the same block.
type scanner struct {
	rw  *Rewriter
	ctx *parsingContext
	ids *ast.IdGenerator

	text string
	src  *ast.RawTextNode
	i    int // byte offset into text

	// output accumulates top-level siblings: literal text runs and finished
	// tags. Attributes and attribute-value parts go through ctx instead.
	output []ast.SoyNode

	// pendingStart marks the offset the current literal-text run began at,
	// or -1 if none is open.
	pendingStart int
}

func newScanner(rw *Rewriter, ctx *parsingContext, ids *ast.IdGenerator, src *ast.RawTextNode) *scanner {
	return &scanner{rw: rw, ctx: ctx, ids: ids, text: src.Text, src: src, pendingStart: -1}
}

func (s *scanner) report(at ast.Point, kind report.Kind, args ...any) {
	s.rw.errs.Report(ast.PointLocation(at), kind, args...)
}

// abort reports kind and unwinds to the enclosing block-visit frame.
func (s *scanner) abort(at ast.Point, kind report.Kind, args ...any) {
	s.report(at, kind, args...)
	panic(abortBlock{})
}

func (s *scanner) pointAt(i int) ast.Point { return s.src.LocationOf(i) }

func (s *scanner) peekByte(off int) byte {
	j := s.i + off
	if j < 0 || j >= len(s.text) {
		return 0
	}
	return s.text[j]
}

func (s *scanner) openTextRun() {
	if s.pendingStart < 0 {
		s.pendingStart = s.i
	}
}

// closeTextRun flushes any accumulated literal text as a RawTextNode
// fragment into output.
func (s *scanner) closeTextRun(end int) {
	if s.pendingStart < 0 || end <= s.pendingStart {
		s.pendingStart = -1
		return
	}
	s.output = append(s.output, s.src.Substring(s.ids, s.pendingStart, end))
	s.pendingStart = -1
}

// run scans the whole node, returning the ending FSM state. It mutates
// s.ctx in place and leaves the constructed top-level siblings in s.output.
func (s *scanner) run() State {
	for s.i < len(s.text) {
		if s.src.MissingWhitespaceAt(s.i) {
			s.applyJoinedWhitespace()
		}
		switch s.ctx.state {
		case Pcdata:
			s.stepPcdata()
		case RcdataScript, RcdataStyle, RcdataTitle, RcdataTextarea:
			s.stepRcdata()
		case HtmlComment:
			s.stepUntil("-->", Pcdata)
		case Cdata:
			s.stepUntil("]]>", Pcdata)
		case XmlDeclaration:
			s.stepXmlDeclaration()
		case SingleQuotedXmlAttrValue:
			s.stepUntil("'", XmlDeclaration)
		case DoubleQuotedXmlAttrValue:
			s.stepUntil(`"`, XmlDeclaration)
		case HtmlTagName:
			s.stepTagName()
		case AfterTagNameOrAttribute:
			s.stepAfterTagNameOrAttribute()
		case BeforeAttributeName:
			s.stepBeforeAttributeName()
		case AfterAttributeName:
			s.stepAfterAttributeName()
		case BeforeAttributeValue:
			s.stepBeforeAttributeValue()
		case SingleQuotedAttrValue, DoubleQuotedAttrValue:
			s.stepQuotedAttrValue()
		case UnquotedAttrValue:
			s.stepUnquotedAttrValue()
		case None:
			s.i = len(s.text)
		}
	}
	if s.src.MissingWhitespaceAt(len(s.text)) {
		s.applyJoinedWhitespace()
	}
	if isTextState(s.ctx.state) {
		s.closeTextRun(len(s.text))
	}
	return s.ctx.state
}

// isTextState reports whether st accumulates literal text into output runs
// rather than into a tag or attribute in progress.
func isTextState(st State) bool {
	switch st {
	case Pcdata, None, RcdataScript, RcdataStyle, RcdataTitle, RcdataTextarea,
		HtmlComment, Cdata, XmlDeclaration, SingleQuotedXmlAttrValue, DoubleQuotedXmlAttrValue:
		return true
	}
	return false
}

// applyJoinedWhitespace handles an index where the outer parser stripped
// whitespace while concatenating raw-text runs. Stripped whitespace still
// delimits unquoted values and attribute names, so the state machine takes
// the transition the missing space would have caused.
func (s *scanner) applyJoinedWhitespace() {
	at := s.pointAt(s.i)
	switch s.ctx.state {
	case UnquotedAttrValue:
		s.finishAttributeValue(ast.QuoteNone)
		s.finishAttribute()
		s.ctx.transitionTo(BeforeAttributeName, at)
	case AfterTagNameOrAttribute:
		s.ctx.transitionTo(BeforeAttributeName, at)
	case AfterAttributeName:
		next := s.peekByte(0)
		if next == 0 || (!isWS(next) && next != '=') {
			s.finishAttribute()
			s.ctx.transitionTo(BeforeAttributeName, at)
		}
	}
}

func isHtmlIdentDelim(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ', '>', '=', '/', '"', '\'':
		return true
	}
	return false
}

// identRuneWidth returns the byte width of the identifier character (if
// any) starting at text[i], or 0 if it is a delimiter. Unicode category Cc
// runes are delimiters in addition to the named ASCII ones.
func identRuneWidth(text string, i int) int {
	c := text[i]
	if isHtmlIdentDelim(c) {
		return 0
	}
	if c < utf8.RuneSelf {
		return 1
	}
	r, width := utf8.DecodeRuneInString(text[i:])
	if unicode.IsControl(r) {
		return 0
	}
	return width
}

func isWS(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}

func (s *scanner) stepPcdata() {
	if s.text[s.i] != '<' {
		s.openTextRun()
		s.i++
		return
	}
	start := s.i
	rest := s.text[s.i:]
	switch {
	case strings.HasPrefix(rest, "<!--"):
		s.openTextRun()
		s.i += len("<!--")
		s.ctx.transitionTo(HtmlComment, s.pointAt(start))
		return
	case hasPrefixFold(rest, "<![cdata["):
		s.openTextRun()
		s.i += len("<![CDATA[")
		s.ctx.transitionTo(Cdata, s.pointAt(start))
		return
	case strings.HasPrefix(rest, "<!"), strings.HasPrefix(rest, "<?"):
		s.openTextRun()
		s.i += 2
		s.ctx.transitionTo(XmlDeclaration, s.pointAt(start))
		return
	}
	j := s.i + 1
	isClose := false
	if j < len(s.text) && s.text[j] == '/' {
		isClose = true
		j++
	}
	if j < len(s.text) && isWS(s.text[j]) {
		// Whitespace right after `<` cancels the tag; the `<` stays text.
		s.report(s.pointAt(j), report.UnexpectedWSAfterLT)
		s.openTextRun()
		s.i = j
		return
	}
	s.closeTextRun(start)
	s.ctx.reset()
	s.ctx.tagStart = s.pointAt(start)
	s.ctx.tagStartText = s.src
	s.ctx.tagIsCloseTag = isClose
	s.i = j
	s.ctx.transitionTo(HtmlTagName, s.pointAt(s.i))
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	return strings.EqualFold(s[:len(prefix)], prefix)
}

func (s *scanner) stepTagName() {
	start := s.i
	for s.i < len(s.text) {
		c := s.text[s.i]
		if c == '\'' || c == '"' || c == 0 {
			s.report(s.pointAt(s.i), report.InvalidIdentifier, string(c))
			s.i++
			continue
		}
		w := identRuneWidth(s.text, s.i)
		if w == 0 {
			break
		}
		s.i += w
	}
	s.ctx.tagName += s.text[start:s.i]
	if s.i < len(s.text) {
		s.ctx.transitionTo(AfterTagNameOrAttribute, s.pointAt(s.i))
	}
}

func (s *scanner) stepAfterTagNameOrAttribute() {
	c := s.text[s.i]
	switch {
	case isWS(c):
		s.i++
		s.ctx.transitionTo(BeforeAttributeName, s.pointAt(s.i))
	case c == '>':
		s.i++
		s.finishTag(false)
	case c == '/' && s.peekByte(1) == '>':
		s.i += 2
		s.finishTag(true)
	default:
		s.report(s.pointAt(s.i), report.ExpectedWSOrCloseAfterTagOrAttribute, string(c))
		s.ctx.transitionTo(BeforeAttributeName, s.pointAt(s.i))
	}
}

func (s *scanner) stepBeforeAttributeName() {
	c := s.text[s.i]
	if isWS(c) {
		s.i++
		return
	}
	if c == '>' {
		s.i++
		s.finishTag(false)
		return
	}
	if c == '/' && s.peekByte(1) == '>' {
		s.i += 2
		s.finishTag(true)
		return
	}
	if c == '\'' || c == '"' {
		s.report(s.pointAt(s.i), report.IllegalHtmlAttributeCharacter, string(c))
		s.i++
		return
	}
	start := s.i
	for s.i < len(s.text) {
		if s.i > start && s.src.MissingWhitespaceAt(s.i) {
			break
		}
		w := identRuneWidth(s.text, s.i)
		if w == 0 {
			break
		}
		s.i += w
	}
	if s.i == start {
		// `=`, a stray `/`, or a control character with no name before it.
		s.report(s.pointAt(s.i), report.GenericUnexpectedChar, string(c))
		s.i++
		return
	}
	nameNode := s.src.Substring(s.ids, start, s.i)
	s.ctx.resetAttribute()
	s.ctx.attrName = nameNode
	s.ctx.transitionTo(AfterAttributeName, s.pointAt(s.i))
}

func (s *scanner) stepAfterAttributeName() {
	c := s.text[s.i]
	if isWS(c) {
		s.i++
		return
	}
	if c == '=' {
		if s.ctx.attrName == nil {
			s.abort(s.pointAt(s.i), report.FoundEqWithAttributeInAnotherBlock)
		}
		loc := ast.PointLocation(s.pointAt(s.i))
		s.i++
		s.ctx.attrEqualsLoc = &loc
		s.ctx.transitionTo(BeforeAttributeValue, s.pointAt(s.i))
		return
	}
	if c == '\'' || c == '"' {
		s.report(s.pointAt(s.i), report.ExpectedWSEqOrCloseAfterAttributeName, string(c))
		s.i++
		return
	}
	s.finishAttribute()
	if c == '>' || (c == '/' && s.peekByte(1) == '>') {
		s.ctx.transitionTo(AfterTagNameOrAttribute, s.pointAt(s.i))
	} else {
		s.ctx.transitionTo(BeforeAttributeName, s.pointAt(s.i))
	}
}

func (s *scanner) stepBeforeAttributeValue() {
	c := s.text[s.i]
	if isWS(c) {
		s.i++
		return
	}
	if c == '>' || (c == '/' && s.peekByte(1) == '>') {
		s.report(s.pointAt(s.i), report.ExpectedAttributeValue)
		s.finishAttribute()
		s.ctx.transitionTo(AfterTagNameOrAttribute, s.pointAt(s.i))
		return
	}
	switch c {
	case '"':
		s.ctx.attrQuotedStart = s.pointAt(s.i)
		s.ctx.attrQuoteOpened = true
		s.i++
		s.ctx.transitionTo(DoubleQuotedAttrValue, s.pointAt(s.i))
	case '\'':
		s.ctx.attrQuotedStart = s.pointAt(s.i)
		s.ctx.attrQuoteOpened = true
		s.i++
		s.ctx.transitionTo(SingleQuotedAttrValue, s.pointAt(s.i))
	default:
		s.ctx.attrQuotedStart = s.pointAt(s.i)
		s.ctx.transitionTo(UnquotedAttrValue, s.pointAt(s.i))
	}
}

func (s *scanner) stepQuotedAttrValue() {
	quote := byte('"')
	qs := ast.QuoteDouble
	if s.ctx.state == SingleQuotedAttrValue {
		quote = '\''
		qs = ast.QuoteSingle
	}
	start := s.i
	for s.i < len(s.text) && s.text[s.i] != quote {
		s.i++
	}
	if start < s.i {
		s.ctx.attrValueParts = append(s.ctx.attrValueParts, s.src.Substring(s.ids, start, s.i))
	}
	if s.i >= len(s.text) {
		return
	}
	if !s.ctx.attrQuoteOpened {
		s.abort(s.pointAt(s.i), report.FoundEndOfAttributeStartedInAnotherBlock)
	}
	s.finishAttributeValue(qs)
	s.i++
	s.finishAttribute()
	s.ctx.transitionTo(AfterTagNameOrAttribute, s.pointAt(s.i))
}

func (s *scanner) stepUnquotedAttrValue() {
	start := s.i
	for s.i < len(s.text) {
		if s.i > start && s.src.MissingWhitespaceAt(s.i) {
			break
		}
		c := s.text[s.i]
		if isWS(c) || c == '>' {
			break
		}
		if c == '/' && s.peekByte(1) == '>' {
			break
		}
		if c == '<' || c == '\'' || c == '"' || c == '`' {
			s.report(s.pointAt(s.i), report.IllegalHtmlAttributeCharacter, string(c))
		}
		s.i++
	}
	if start < s.i {
		s.ctx.attrValueParts = append(s.ctx.attrValueParts, s.src.Substring(s.ids, start, s.i))
	}
	if s.i >= len(s.text) {
		return
	}
	s.finishAttributeValue(ast.QuoteNone)
	s.finishAttribute()
	switch {
	case s.text[s.i] == '>':
		s.i++
		s.finishTag(false)
	case s.text[s.i] == '/' && s.peekByte(1) == '>':
		s.i += 2
		s.finishTag(true)
	default:
		s.ctx.transitionTo(BeforeAttributeName, s.pointAt(s.i))
	}
}

// stepRcdata scans raw content for the matching `</tagname` without
// consuming it; the close tag itself is then lexed from Pcdata.
func (s *scanner) stepRcdata() {
	needle := "</" + rcdataTagFor(s.ctx.state)
	idx := indexFold(s.text[s.i:], needle)
	if idx < 0 {
		s.openTextRun()
		s.i = len(s.text)
		return
	}
	if idx > 0 {
		s.openTextRun()
		s.i += idx
	}
	s.closeTextRun(s.i)
	s.ctx.transitionTo(Pcdata, s.pointAt(s.i))
}

// rcdataTagFor maps an rcdata state back to the tag name that opened it.
func rcdataTagFor(st State) string {
	switch st {
	case RcdataScript:
		return "script"
	case RcdataStyle:
		return "style"
	case RcdataTitle:
		return "title"
	case RcdataTextarea:
		return "textarea"
	}
	return ""
}

func indexFold(haystack, needle string) int {
	return strings.Index(strings.ToLower(haystack), strings.ToLower(needle))
}

func (s *scanner) stepUntil(terminator string, next State) {
	s.openTextRun()
	idx := strings.Index(s.text[s.i:], terminator)
	if idx < 0 {
		s.i = len(s.text)
		return
	}
	s.i += idx + len(terminator)
	s.ctx.transitionTo(next, s.pointAt(s.i))
}

func (s *scanner) stepXmlDeclaration() {
	s.openTextRun()
	for s.i < len(s.text) {
		c := s.text[s.i]
		s.i++
		switch c {
		case '"':
			s.ctx.transitionTo(DoubleQuotedXmlAttrValue, s.pointAt(s.i))
			return
		case '\'':
			s.ctx.transitionTo(SingleQuotedXmlAttrValue, s.pointAt(s.i))
			return
		case '>':
			s.ctx.transitionTo(Pcdata, s.pointAt(s.i))
			return
		}
	}
}

// finishAttribute builds an HtmlAttributeNode from the in-progress attribute
// fields and appends it to the enclosing tag's children. An attribute whose
// name lives in an enclosing block (only its value was completed here) is
// left in ctx for the block-reconciliation pass to fold into that attribute.
func (s *scanner) finishAttribute() {
	if s.ctx.attrName == nil {
		if s.ctx.attrValue != nil {
			s.ctx.completedOuterValue = s.ctx.attrValue
			s.ctx.attrValue = nil
		}
		return
	}
	loc := s.ctx.attrName.Location()
	if s.ctx.attrValue != nil {
		loc = ast.Extend(loc, s.ctx.attrValue.Location())
	}
	attr := ast.NewHtmlAttributeNode(s.ids, loc, s.ctx.attrName)
	attr.EqualsLoc = s.ctx.attrEqualsLoc
	attr.Value = s.ctx.attrValue
	s.ctx.tagChildren = append(s.ctx.tagChildren, attr)
	s.ctx.resetAttribute()
}

func (s *scanner) finishAttributeValue(quote ast.QuoteStyle) {
	val := ast.NewHtmlAttributeValueNode(s.ids, ast.PointLocation(s.ctx.attrQuotedStart), quote)
	val.SetChildren(s.ctx.attrValueParts)
	s.ctx.attrValue = val
	s.ctx.attrValueParts = nil
}

func (s *scanner) finishTag(selfClosing bool) {
	closerLen := 1
	if selfClosing {
		closerLen = 2
	}
	closerAt := s.pointAt(s.i - closerLen)
	if s.ctx.tagStartText == nil {
		s.abort(closerAt, report.FoundEndTagStartedInAnotherBlock)
	}
	if s.ctx.tagName == "" && s.ctx.tagNameDynamic == nil {
		s.report(s.ctx.tagStart, report.InvalidTagName)
		s.ctx.reset()
		s.ctx.transitionTo(Pcdata, s.pointAt(s.i))
		return
	}
	tagLoc := ast.NewSourceLocation(s.ctx.tagStart, s.pointAt(s.i))
	name := ast.TagName{Literal: s.ctx.tagName, Dynamic: s.ctx.tagNameDynamic}
	isCloseTag := s.ctx.tagIsCloseTag
	tagName := s.ctx.tagName
	if isCloseTag {
		if selfClosing {
			s.report(closerAt, report.SelfClosingCloseTag, tagName)
		}
		if len(s.ctx.tagChildren) > 0 {
			s.report(closerAt, report.UnexpectedCloseTagContent, tagName)
		}
		s.output = append(s.output, ast.NewHtmlCloseTagNode(s.ids, tagLoc, name))
	} else {
		openTag := ast.NewHtmlOpenTagNode(s.ids, tagLoc, name, selfClosing)
		openTag.SetChildren(s.ctx.tagChildren)
		s.output = append(s.output, openTag)
	}
	s.ctx.reset()
	if selfClosing || isCloseTag || name.Dynamic != nil {
		s.ctx.transitionTo(Pcdata, s.pointAt(s.i))
		return
	}
	s.ctx.transitionTo(rcdataStateFor(tagName), s.pointAt(s.i))
}
