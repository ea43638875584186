package sr

// resolveNumeric returns the numeric value of the node's first measured value
// entry. Empty values count as absent.
func resolveNumeric(n *Node) (string, bool) {
	measured := n.Items(TagMeasuredValueSequence)
	if len(measured) == 0 {
		return "", false
	}
	v, ok := measured[0].Scalar(TagNumericValue)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// resolveDate returns the raw value of a DATE item.
func resolveDate(n *Node) (string, bool) {
	v, ok := n.Scalar(TagDate)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
