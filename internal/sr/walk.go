package sr

// Walk visits root and all of its descendants in pre-order and returns the
// values matched along the way. Every sequence-valued field is descended
// into, whether or not its owner matched.
func Walk(root *Node, targets TargetSet) Result {
	out := Result{}
	walk(root, targets, out)
	return out
}

func walk(n *Node, targets TargetSet, out Result) {
	if n == nil {
		return
	}
	match(n, targets, out)
	for _, seq := range n.Sequences() {
		for _, child := range seq {
			walk(child, targets, out)
		}
	}
}
