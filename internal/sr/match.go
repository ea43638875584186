package sr

// Concept meanings and coded values the matcher treats specially.
const (
	MeaningPulsatilityIndex = "Pulsatility Index"
	MeaningLaterality       = "Laterality"
	MeaningLMP              = "LMP"

	SiteMiddleCerebralArtery = "Middle Cerebral Artery"
	SiteDuctusVenosus        = "Ductus Venosus"

	SideLeft  = "Left"
	SideRight = "Right"
)

// UterinePIKey is the label of a lateral uterine artery pulsatility index.
func UterinePIKey(side string) string {
	return side + " Uterine " + MeaningPulsatilityIndex
}

func isSide(s string) bool {
	return s == SideLeft || s == SideRight
}

// match applies every rule to a single node and records hits in out.
func match(n *Node, targets TargetSet, out Result) {
	meaning, named := n.ConceptMeaning()
	if !named {
		return
	}

	if meaning == MeaningLMP {
		if d, ok := resolveDate(n); ok {
			out[KeyLMP] = d
		}
	}

	if n.IsMeasurement() {
		matchMeasurement(n, meaning, targets, out)
	}
}

func matchMeasurement(n *Node, meaning string, targets TargetSet, out Result) {
	value, hasValue := resolveNumeric(n)

	side, lateral := "", false
	if meaning == MeaningPulsatilityIndex {
		if hasValue {
			if middleCerebralArtery(n) {
				out[KeyMiddleCerebralArtery] = value
			}
			if ductusVenosus(n) {
				out[KeyDuctusVenosus] = value
			}
		}

		side, lateral = laterality(n)
		if lateral && hasValue {
			out[UterinePIKey(side)] = value
			updateUterineMean(out)
		}
	}

	if !hasValue || !targets.Contains(meaning) {
		return
	}
	if meaning == MeaningPulsatilityIndex && lateral {
		return
	}
	out[meaning] = value
}

// middleCerebralArtery reports whether one of the node's content items names
// the middle cerebral artery as its site and carries a left/right qualifier
// among its own content items.
func middleCerebralArtery(n *Node) bool {
	for _, site := range n.Content() {
		for _, code := range site.Items(TagConceptCodeSequence) {
			if m, _ := code.Scalar(TagCodeMeaning); m != SiteMiddleCerebralArtery {
				continue
			}
			for _, qualifier := range site.Content() {
				if s, _ := qualifier.CodeMeaning(); isSide(s) {
					return true
				}
			}
		}
	}
	return false
}

// ductusVenosus reports whether one of the node's content items is coded as
// the ductus venosus.
func ductusVenosus(n *Node) bool {
	for _, site := range n.Content() {
		if m, _ := site.CodeMeaning(); m == SiteDuctusVenosus {
			return true
		}
	}
	return false
}

// laterality looks two levels down (content items of the node's content
// items) for a "Laterality" item coded Left or Right. The first hit wins.
func laterality(n *Node) (string, bool) {
	for _, sub := range n.Content() {
		for _, item := range sub.Content() {
			if m, _ := item.ConceptMeaning(); m != MeaningLaterality {
				continue
			}
			if side, _ := item.CodeMeaning(); isSide(side) {
				return side, true
			}
		}
	}
	return "", false
}

// updateUterineMean writes the rounded mean of the lateral indices once both
// sides are present.
func updateUterineMean(out Result) {
	left, lok := out[UterinePIKey(SideLeft)]
	right, rok := out[UterinePIKey(SideRight)]
	if !lok || !rok {
		return
	}
	if mean, ok := lateralMean(left, right); ok {
		out[KeyUterine] = mean
	}
}
