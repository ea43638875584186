package sr

import "sort"

// defaultMeanings are the concept meanings captured by the fetal ultrasound
// report template when no explicit target list is configured.
var defaultMeanings = []string{
	"Biparietal Diameter",
	"Head Circumference",
	"Abdominal Circumference",
	"Femur Length",
	"Cerebroplacental Ratio",
	"Umbilical Artery",
	"Trans Cerebellar Diameter",
	"Uterine",
	"Estimated Weight",
	"Amniotic Fluid Index",
	"Single Largest Vertical Pocket",
	"nasal bone length",
	"Nuchal Translucency",
	"Intercranial Translucency",
	"Pulsatility Index",
	"AMNIOTIC FLUID INDEX LEN q1",
	"AMNIOTIC FLUID INDEX LEN q2",
	"AMNIOTIC FLUID INDEX LEN q3",
	"AMNIOTIC FLUID INDEX LEN q4",
	"Crown Rump Length",
}

// TargetSet is the immutable set of concept meanings whose numeric values are
// copied verbatim into a Result. Matching is exact and case sensitive.
type TargetSet struct {
	m map[string]struct{}
}

// NewTargetSet builds a set from meanings. Empty strings are ignored.
func NewTargetSet(meanings ...string) TargetSet {
	m := make(map[string]struct{}, len(meanings))
	for _, s := range meanings {
		if s == "" {
			continue
		}
		m[s] = struct{}{}
	}
	return TargetSet{m: m}
}

// DefaultTargets returns the built-in target meanings.
func DefaultTargets() TargetSet {
	return NewTargetSet(defaultMeanings...)
}

// Contains reports whether meaning is a target.
func (t TargetSet) Contains(meaning string) bool {
	_, ok := t.m[meaning]
	return ok
}

// Len returns the number of targets.
func (t TargetSet) Len() int { return len(t.m) }

// Meanings returns the targets sorted alphabetically.
func (t TargetSet) Meanings() []string {
	out := make([]string, 0, len(t.m))
	for s := range t.m {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
