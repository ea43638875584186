package sr

import (
	"math"
	"strconv"
	"strings"
)

// Well-known result labels.
const (
	KeyUterine                     = "Uterine"
	KeySingleLargestVerticalPocket = "Single Largest Vertical Pocket"
	KeyLMP                         = "LMP"
	KeyMiddleCerebralArtery        = "Middle Cerebral Artery"
	KeyDuctusVenosus               = "Ductus Venosus"
	KeyPatientName                 = "PatientName"
	KeyPatientID                   = "PatientID"
	KeyPatientBirthDate            = "PatientBirthDate"
)

// Result maps a label to its extracted value. A later write for the same
// label replaces the earlier one.
type Result map[string]string

// Clone returns an independent copy of r.
func (r Result) Clone() Result {
	out := make(Result, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// parseNumber parses a decimal measurement string. Surrounding whitespace is
// allowed; NaN and infinities are rejected.
func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// formatNumber renders f in its shortest round-trip form the way report
// consumers expect: plain decimals keep a fractional part ("5" becomes
// "5.0"), and decimal exponents below -4 or from 16 up switch to scientific
// notation with a signed two-digit exponent ("1e-05", "1e+20").
func formatNumber(f float64) string {
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	if exp, err := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:]); err == nil && (exp < -4 || exp >= 16) {
		return sci
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// roundTo rounds f to the given number of decimal places, resolving against
// the exact binary value of f.
func roundTo(f float64, places int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(f, 'f', places, 64), 64)
	if err != nil {
		return f
	}
	return r
}
