// Package report collects compile diagnostics: parsers and the HTML
// rewriter report problems through an ErrorReporter instead of returning Go
// errors from every call, so a single file can keep producing a (partially
// sentinel-filled) AST after the first mistake.
package report

import (
	"errors"
	"fmt"

	"github.com/gaarutyunov/tofu/pkg/ast"
)

// Kind is a stable error code, used verbatim in user-facing messages by a
// downstream formatter (out of scope here).
type Kind string

const (
	IntegerOutOfRange                               Kind = "INTEGER_OUT_OF_RANGE"
	InvalidFunctionName                             Kind = "INVALID_FUNCTION_NAME"
	InvalidParamName                                Kind = "INVALID_PARAM_NAME"
	InvalidVarNameIJ                                Kind = "INVALID_VAR_NAME_IJ"
	DuplicateParamName                              Kind = "DUPLICATE_PARAM_NAME"
	UnexpectedIJDataReference                       Kind = "UNEXPECTED_IJ_DATA_REFERENCE"
	SingleIdentifierKeyInMapLiteral                 Kind = "SINGLE_IDENTIFIER_KEY_IN_MAP_LITERAL"
	BlockChangesContext                             Kind = "BLOCK_CHANGES_CONTEXT"
	BlockEndsInInvalidState                         Kind = "BLOCK_ENDS_IN_INVALID_STATE"
	BlockTransitionDisallowed                       Kind = "BLOCK_TRANSITION_DISALLOWED"
	ExpectedAttributeValue                          Kind = "EXPECTED_ATTRIBUTE_VALUE"
	ExpectedWSEqOrCloseAfterAttributeName           Kind = "EXPECTED_WS_EQ_OR_CLOSE_AFTER_ATTRIBUTE_NAME"
	ExpectedWSOrCloseAfterTagOrAttribute            Kind = "EXPECTED_WS_OR_CLOSE_AFTER_TAG_OR_ATTRIBUTE"
	FoundEndOfAttributeStartedInAnotherBlock        Kind = "FOUND_END_OF_ATTRIBUTE_STARTED_IN_ANOTHER_BLOCK"
	FoundEndTagStartedInAnotherBlock                Kind = "FOUND_END_TAG_STARTED_IN_ANOTHER_BLOCK"
	FoundEqWithAttributeInAnotherBlock              Kind = "FOUND_EQ_WITH_ATTRIBUTE_IN_ANOTHER_BLOCK"
	GenericUnexpectedChar                           Kind = "GENERIC_UNEXPECTED_CHAR"
	IllegalHtmlAttributeCharacter                   Kind = "ILLEGAL_HTML_ATTRIBUTE_CHARACTER"
	InvalidIdentifier                               Kind = "INVALID_IDENTIFIER"
	InvalidLocationForControlFlow                   Kind = "INVALID_LOCATION_FOR_CONTROL_FLOW"
	InvalidLocationForNonprintable                  Kind = "INVALID_LOCATION_FOR_NONPRINTABLE"
	InvalidTagName                                  Kind = "INVALID_TAG_NAME"
	SelfClosingCloseTag                             Kind = "SELF_CLOSING_CLOSE_TAG"
	UnexpectedCloseTagContent                       Kind = "UNEXPECTED_CLOSE_TAG_CONTENT"
	UnexpectedWSAfterLT                             Kind = "UNEXPECTED_WS_AFTER_LT"
	ConditionalBlockIsntGuaranteedToProduceOneAttrVal Kind = "CONDITIONAL_BLOCK_ISNT_GUARANTEED_TO_PRODUCE_ONE_ATTRIBUTE_VALUE"
)

// Severity classifies a Kind: syntactic, semantic-local, HTML-structural,
// or invariant-violation. Callers can branch on the class instead of
// string-matching codes.
type Severity uint8

const (
	Syntactic Severity = iota
	SemanticLocal
	HTMLStructural
	InvariantViolation
)

func (k Kind) Severity() Severity {
	switch k {
	case IntegerOutOfRange, InvalidVarNameIJ, DuplicateParamName,
		UnexpectedIJDataReference, SingleIdentifierKeyInMapLiteral,
		InvalidFunctionName, InvalidParamName:
		return SemanticLocal
	case BlockChangesContext, BlockEndsInInvalidState, BlockTransitionDisallowed,
		FoundEndOfAttributeStartedInAnotherBlock, FoundEndTagStartedInAnotherBlock,
		FoundEqWithAttributeInAnotherBlock, ConditionalBlockIsntGuaranteedToProduceOneAttrVal:
		return HTMLStructural
	case GenericUnexpectedChar, IllegalHtmlAttributeCharacter, InvalidIdentifier,
		InvalidTagName, SelfClosingCloseTag, UnexpectedCloseTagContent, UnexpectedWSAfterLT,
		ExpectedAttributeValue, ExpectedWSEqOrCloseAfterAttributeName,
		ExpectedWSOrCloseAfterTagOrAttribute, InvalidLocationForControlFlow,
		InvalidLocationForNonprintable:
		return Syntactic
	}
	return InvariantViolation
}

// ErrorReporter is the narrow interface exprparser and htmlrewriter depend
// on, satisfied by *Reporter. Depending on the interface rather than the
// concrete type lets tests substitute a reporter that records calls without
// building real diagnostics.
type ErrorReporter interface {
	Report(loc ast.SourceLocation, kind Kind, args ...any)
	Checkpoint() int
	ErrorsSince(checkpoint int) bool
}

// Diagnostic is one reported problem.
type Diagnostic struct {
	Location ast.SourceLocation
	Kind     Kind
	Args     []any
}

func (d Diagnostic) Error() string {
	if len(d.Args) == 0 {
		return fmt.Sprintf("%s: %s", d.Location, d.Kind)
	}
	return fmt.Sprintf("%s: %s %v", d.Location, d.Kind, d.Args)
}

// Reporter is the canonical ErrorReporter. It never panics and never
// returns an error from Report; callers consult Diagnostics/Err once
// parsing finishes.
type Reporter struct {
	diags []Diagnostic
}

// New returns an empty Reporter.
func New() *Reporter {
	return &Reporter{}
}

// Report records a diagnostic in source order.
func (r *Reporter) Report(loc ast.SourceLocation, kind Kind, args ...any) {
	r.diags = append(r.diags, Diagnostic{Location: loc, Kind: kind, Args: args})
}

// Checkpoint returns a token representing "no diagnostics reported yet" as
// of this call; pass it to ErrorsSince later.
func (r *Reporter) Checkpoint() int {
	return len(r.diags)
}

// ErrorsSince reports whether any diagnostic was recorded after checkpoint.
// The HTML rewriter uses this as its error-explosion guard: if true at
// block exit, the block's starting scanner state is restored as its ending
// state instead of whatever state scanning actually reached.
func (r *Reporter) ErrorsSince(checkpoint int) bool {
	return len(r.diags) > checkpoint
}

// Diagnostics returns every diagnostic reported so far, in source order.
func (r *Reporter) Diagnostics() []Diagnostic {
	return r.diags
}

// HasErrors reports whether any diagnostic has been recorded.
func (r *Reporter) HasErrors() bool {
	return len(r.diags) > 0
}

// Err aggregates every diagnostic into a single error via errors.Join, or
// nil if there were none.
func (r *Reporter) Err() error {
	if len(r.diags) == 0 {
		return nil
	}
	errs := make([]error, len(r.diags))
	for i, d := range r.diags {
		errs[i] = d
	}
	return errors.Join(errs...)
}
