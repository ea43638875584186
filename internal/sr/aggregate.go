package sr

import "fmt"

// QuadrantKey is the label of the i-th amniotic fluid index quadrant (1..4).
func QuadrantKey(i int) string {
	return fmt.Sprintf("AMNIOTIC FLUID INDEX LEN q%d", i)
}

// lateralMean averages two index strings and rounds to two decimals.
func lateralMean(left, right string) (string, bool) {
	l, ok := parseNumber(left)
	if !ok {
		return "", false
	}
	r, ok := parseNumber(right)
	if !ok {
		return "", false
	}
	return formatNumber(roundTo((l+r)/2, 2)), true
}

// largestPocket returns the deepest quadrant that parses. The value is not
// rounded.
func largestPocket(r Result) (string, bool) {
	var (
		deepest float64
		found   bool
	)
	for i := 1; i <= 4; i++ {
		raw, ok := r[QuadrantKey(i)]
		if !ok {
			continue
		}
		v, ok := parseNumber(raw)
		if !ok {
			continue
		}
		if !found || v > deepest {
			deepest, found = v, true
		}
	}
	if !found {
		return "", false
	}
	return formatNumber(deepest), true
}

// aggregate derives post-walk values and copies the patient demographics.
func aggregate(doc *Document, out Result) {
	if v, ok := largestPocket(out); ok {
		out[KeySingleLargestVerticalPocket] = v
	}
	out[KeyPatientName] = doc.Demographic(TagPatientName)
	out[KeyPatientID] = doc.Demographic(TagPatientID)
	out[KeyPatientBirthDate] = doc.Demographic(TagPatientBirthDate)
}
