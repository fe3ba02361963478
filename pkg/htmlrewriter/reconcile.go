package htmlrewriter

// reconcile computes the least upper bound of the ending states of every
// branch of a multi-branch control-flow construct. ok is false when no
// single state can represent every branch, in which case the caller reports
// BLOCK_CHANGES_CONTEXT.
func reconcile(states []State) (State, bool) {
	if len(states) == 0 {
		return None, true
	}
	first := states[0]
	allEqual := true
	allInTag := first.InTag()
	for _, s := range states[1:] {
		if s != first {
			allEqual = false
		}
		if !s.InTag() {
			allInTag = false
		}
	}
	if allEqual {
		return first, true
	}
	if allInTag {
		return AfterTagNameOrAttribute, true
	}
	if isBeforeAttributeValueReconcilable(states) {
		return AfterTagNameOrAttribute, true
	}
	return None, false
}

// isBeforeAttributeValueReconcilable handles the one cross-trait join that
// is still unambiguous: BeforeAttributeValue next to states that already
// completed (or never started) a value, which is what lets
// `x={if $c}"a"{else}"b"{/if}` parse. The quote itself is consumed inside
// each branch; only a branch that never opened a value is left in
// BeforeAttributeValue.
func isBeforeAttributeValueReconcilable(states []State) bool {
	sawBeforeAttributeValue := false
	for _, s := range states {
		switch s {
		case BeforeAttributeValue:
			sawBeforeAttributeValue = true
		case UnquotedAttrValue, AfterTagNameOrAttribute, BeforeAttributeName:
			// allowed alongside BeforeAttributeValue
		default:
			return false
		}
	}
	return sawBeforeAttributeValue
}
